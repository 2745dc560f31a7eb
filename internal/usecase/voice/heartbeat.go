package voice

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"seriesbell/internal/observability/metrics"
	"seriesbell/internal/repository"
)

const (
	// HeartbeatKey is the bot_meta key holding the last heartbeat (unix seconds).
	HeartbeatKey = "voice_heartbeat"

	// HeartbeatSchedule is the default cron spec of the heartbeat job.
	HeartbeatSchedule = "@every 10s"
)

// Heartbeat periodically stamps open sessions with a liveness time so that
// sessions left open by a crash can be closed at the last moment the bot
// was known to be running.
type Heartbeat struct {
	voice  repository.VoiceSessionRepository
	meta   repository.MetaRepository
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	schedule string
	cron     *cron.Cron
}

// NewHeartbeat creates a heartbeat over the store. now defaults to time.Now.
func NewHeartbeat(repos repository.Repositories, now func() time.Time, logger *slog.Logger) *Heartbeat {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeat{voice: repos.Voice, meta: repos.Meta, now: now, logger: logger, schedule: HeartbeatSchedule}
}

// SetSchedule replaces the cron spec used by the next Start.
func (h *Heartbeat) SetSchedule(spec string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.schedule = spec
}

// Beat stamps every open session and records the heartbeat time.
func (h *Heartbeat) Beat(ctx context.Context) error {
	now := h.now().UTC()
	n, err := h.voice.TouchActive(ctx, now)
	if err != nil {
		metrics.RecordVoiceHeartbeat(false)
		return fmt.Errorf("heartbeat: touch sessions: %w", err)
	}
	if err := h.meta.Set(ctx, HeartbeatKey, strconv.FormatInt(now.Unix(), 10)); err != nil {
		metrics.RecordVoiceHeartbeat(false)
		return fmt.Errorf("heartbeat: write timestamp: %w", err)
	}
	metrics.RecordVoiceHeartbeat(true)
	if n > 0 {
		h.logger.Debug("voice heartbeat", slog.Int64("sessions", n))
	}
	return nil
}

// LastBeat returns the last recorded heartbeat.
func (h *Heartbeat) LastBeat(ctx context.Context) (time.Time, bool, error) {
	v, ok, err := h.meta.Get(ctx, HeartbeatKey)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %s %q: %w", HeartbeatKey, v, err)
	}
	return time.Unix(sec, 0).UTC(), true, nil
}

// RecoverFromCrash closes sessions left open by a previous run. Each closes
// at its last liveness stamp, else at the last heartbeat. Sessions with
// neither are dropped. It must run before the gateway connects.
func (h *Heartbeat) RecoverFromCrash(ctx context.Context) (int64, error) {
	orphans, err := h.voice.FindActiveSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("recover voice sessions: %w", err)
	}
	metrics.SetVoiceActiveSessions(0)
	if len(orphans) == 0 {
		return 0, nil
	}
	perGuild := make(map[string]int)
	for _, s := range orphans {
		perGuild[s.GuildID]++
	}
	for guildID, n := range perGuild {
		h.logger.Debug("orphaned voice sessions", slog.String("guild_id", guildID), slog.Int("sessions", n))
	}

	last, ok, err := h.LastBeat(ctx)
	if err != nil {
		h.logger.Warn("unreadable heartbeat, closing orphaned sessions without it", slog.Any("error", err))
	}
	if !ok {
		last = time.Unix(0, 0).UTC()
	}
	closed, err := h.voice.CloseOrphaned(ctx, last)
	if err != nil {
		return 0, fmt.Errorf("recover voice sessions: %w", err)
	}
	if closed > 0 {
		h.logger.Info("closed orphaned voice sessions",
			slog.Int64("closed", closed),
			slog.Time("last_heartbeat", last))
	}
	return closed, nil
}

// Start schedules Beat until Stop is called.
func (h *Heartbeat) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cron != nil {
		return nil
	}

	c := cron.New(cron.WithLocation(time.UTC))
	_, err := c.AddFunc(h.schedule, func() {
		if err := h.Beat(ctx); err != nil {
			h.logger.Error("voice heartbeat failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule heartbeat %q: %w", h.schedule, err)
	}
	c.Start()
	h.cron = c
	h.logger.Info("voice heartbeat started", slog.String("schedule", h.schedule))
	return nil
}

// Stop cancels the schedule and waits for a running beat to finish.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	c := h.cron
	h.cron = nil
	h.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}
