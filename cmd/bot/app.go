package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/sync/errgroup"

	"seriesbell/internal/common/pagination"
	"seriesbell/internal/config"
	"seriesbell/internal/domain/event"
	"seriesbell/internal/infra/adapter/persistence/sqlite"
	"seriesbell/internal/infra/db"
	"seriesbell/internal/infra/discord"
	"seriesbell/internal/infra/health"
	"seriesbell/internal/infra/notifier"
	"seriesbell/internal/infra/platform"
	"seriesbell/internal/observability/metrics"
	"seriesbell/internal/observability/tracing"
	"seriesbell/internal/resilience/circuitbreaker"
	"seriesbell/internal/usecase/delivery"
	"seriesbell/internal/usecase/eventbus"
	"seriesbell/internal/usecase/feedpoll"
	"seriesbell/internal/usecase/subscription"
	"seriesbell/internal/usecase/voice"
)

const dbStatsInterval = 30 * time.Second

// app holds every long-lived component of the bot.
type app struct {
	cfg    config.Config
	logger *slog.Logger

	conn      *sql.DB
	dbBreaker *circuitbreaker.DBCircuitBreaker
	store     *sqlite.Store
	platforms *platform.Registry
	bus       *eventbus.Bus
	subs      *subscription.Service
	webhook   *notifier.WebhookNotifier // nil when WEBHOOK_URL is unset
	session   *discordgo.Session
	tracker   *voice.Tracker
	heartbeat *voice.Heartbeat
	poller    *feedpoll.Poller

	shutdownTracing func(context.Context) error
}

// newApp opens the database, applies migrations and wires the services.
// Nothing is started yet.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	a.shutdownTracing = func(context.Context) error { return nil }
	if cfg.TracingEnabled {
		a.shutdownTracing = tracing.Init(1.0)
	}

	conn, err := db.Open(ctx, cfg.DatabaseURL, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	a.conn = conn
	if err := db.MigrateUp(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	a.dbBreaker = circuitbreaker.NewDBCircuitBreaker(conn, sqlite.IsBenignError)
	a.store = sqlite.NewStore(conn).WithExecutor(a.dbBreaker)
	repos := a.store.Repositories()

	a.platforms = platform.NewDefaultRegistry(platform.Options{Timeout: cfg.HTTPTimeout})
	a.bus = eventbus.NewBus(cfg.BusMaxConcurrent, eventbus.WithLogger(logger))
	a.subs = &subscription.Service{
		Repos:      repos,
		Tx:         a.store,
		Platforms:  a.platforms,
		Events:     a.bus,
		Pagination: pagination.LoadFromEnv(),
	}

	session, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	a.session = session

	tracker, err := voice.NewTracker(ctx, repos)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("load voice settings: %w", err)
	}
	a.tracker = tracker
	a.heartbeat = voice.NewHeartbeat(repos, time.Now, logger)
	a.heartbeat.SetSchedule(cfg.HeartbeatSchedule)

	a.registerSubscribers()
	a.poller = feedpoll.New(a.subs, a.bus, cfg.PollInterval, logger)
	return a, nil
}

func (a *app) registerSubscribers() {
	messenger := notifier.NewDiscordMessenger(a.session)
	subscribers := a.store.Repositories().Subscribers

	eventbus.Register[event.FeedUpdate](a.bus, delivery.NewGuildSubscriber(subscribers, a.subs, messenger))
	eventbus.Register[event.FeedUpdate](a.bus, delivery.NewDMSubscriber(subscribers, messenger))
	if a.cfg.WebhookURL != "" {
		a.webhook = notifier.NewWebhookNotifier(notifier.WebhookConfig{
			Enabled:  true,
			URL:      a.cfg.WebhookURL,
			Username: "seriesbell",
			Timeout:  a.cfg.HTTPTimeout,
		})
		eventbus.Register[event.FeedUpdate](a.bus, delivery.NewWebhookSubscriber(a.webhook))
		a.logger.Info("webhook delivery enabled")
	} else {
		a.logger.Info("webhook delivery disabled")
	}

	// voice events must be applied in gateway order
	eventbus.Register[event.VoiceState](a.bus, a.tracker, eventbus.Ordered())
	eventbus.Register(a.bus, eventbus.Func("voice-settings", a.tracker.ApplySettings), eventbus.Ordered())
}

// run starts every component and blocks until ctx is cancelled or one of
// the servers fails.
func (a *app) run(ctx context.Context) error {
	closed, err := a.heartbeat.RecoverFromCrash(ctx)
	if err != nil {
		return fmt.Errorf("recover voice sessions: %w", err)
	}
	a.logger.Info("voice sessions recovered", slog.Int64("closed", closed))
	if err := a.heartbeat.Start(ctx); err != nil {
		return err
	}

	gateway := discord.New(a.session, a.bus, a.tracker, a.logger)
	if err := gateway.Open(ctx); err != nil {
		a.heartbeat.Stop()
		return err
	}
	a.poller.Start(ctx)

	healthServer := health.NewServer(fmt.Sprintf(":%d", a.cfg.HealthPort), a.logger)
	healthServer.AddCheck("database", a.conn.PingContext)
	healthServer.AddCheck("gateway", func(context.Context) error {
		if !gateway.Ready() {
			return errors.New("gateway not connected")
		}
		return nil
	})
	healthServer.SetReady(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := healthServer.Start(gctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return startMetricsServer(gctx, a.logger, a.cfg.MetricsPort, a.bus, a.breakers)
	})
	g.Go(func() error {
		a.collectDBStats(gctx)
		return nil
	})

	a.logger.Info("seriesbell started",
		slog.Duration("poll_interval", a.cfg.PollInterval),
		slog.Int("metrics_port", a.cfg.MetricsPort),
		slog.Int("health_port", a.cfg.HealthPort))

	err = g.Wait()
	a.logger.Info("shutting down")
	healthServer.SetReady(false)

	a.poller.Stop()
	a.heartbeat.Stop()
	// open sessions are closed by RecoverFromCrash on the next start
	a.logger.Info("voice sessions left open", slog.Int("sessions", a.tracker.ActiveCount()))
	if cerr := gateway.Close(); cerr != nil {
		a.logger.Error("close gateway", slog.Any("error", cerr))
	}
	return err
}

// collectDBStats exports connection pool gauges until ctx ends.
func (a *app) collectDBStats(ctx context.Context) {
	ticker := time.NewTicker(dbStatsInterval)
	defer ticker.Stop()
	for {
		stats := a.conn.Stats()
		metrics.UpdateDBConnectionStats(stats.InUse, stats.Idle)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// breakers reports every circuit breaker guarding an outside dependency.
func (a *app) breakers() []BreakerStatus {
	var out []BreakerStatus
	for id, b := range a.platforms.Breakers() {
		out = append(out, breakerStatus("platform:"+id, b))
	}
	if a.webhook != nil {
		out = append(out, breakerStatus("discord-webhook", a.webhook.Breaker()))
	}
	out = append(out, breakerStatus("database", a.dbBreaker))
	return out
}

// close drains the bus and releases the database. It is safe after a
// failed run.
func (a *app) close() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.bus.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("event bus did not drain", slog.Any("error", err))
	}
	if err := a.shutdownTracing(shutdownCtx); err != nil {
		a.logger.Warn("tracer shutdown failed", slog.Any("error", err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close database", slog.Any("error", err))
	}
}
