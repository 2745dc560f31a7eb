// Package feedpoll runs the periodic pass over series feeds that detects
// new chapters and episodes and publishes them on the event bus.
package feedpoll

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"seriesbell/internal/domain/entity"
	"seriesbell/internal/domain/event"
	"seriesbell/internal/infra/platform"
	"seriesbell/internal/observability/logging"
	"seriesbell/internal/observability/metrics"
	"seriesbell/internal/usecase/subscription"
)

// DefaultInterval is the length of one full pass over all feeds.
const DefaultInterval = 60 * time.Second

// Checker is the slice of subscription.Service the poller needs.
type Checker interface {
	GetFeedsByTag(ctx context.Context, tag string) ([]*entity.Feed, error)
	CheckFeedUpdate(ctx context.Context, feed *entity.Feed) (subscription.FeedUpdateResult, error)
}

// Publisher receives feed updates. *eventbus.Bus satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event any) int
}

// TickReport summarises one pass.
type TickReport struct {
	Feeds    int
	Updated  int
	Finished int
	Errors   int
}

// Poller checks every series feed once per interval, spacing the checks
// evenly across the interval. At most one loop runs at a time.
type Poller struct {
	checker  Checker
	events   Publisher
	interval time.Duration
	logger   *slog.Logger

	running atomic.Bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a poller. A zero interval disables pacing between feeds.
func New(checker Checker, events Publisher, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		checker:  checker,
		events:   events,
		interval: interval,
		logger:   logger,
	}
}

// FeedInterval is the pause between two feed checks so that n checks span
// one interval.
func FeedInterval(interval time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return interval / time.Duration(n)
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool { return p.running.Load() }

// Start spawns the polling loop. It is a no-op when the loop already runs.
func (p *Poller) Start(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	p.logger.Info("feed poller started", slog.Duration("interval", p.interval))
	go func() {
		defer close(done)
		defer p.running.Store(false)
		p.loop(loopCtx)
	}()
}

// Stop ends the loop and waits for the current feed check to finish. The
// check itself is not cancelled; only the pause that follows it is.
func (p *Poller) Stop() {
	p.running.Store(false)

	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("feed poller stopped")
}

// loop runs passes until ctx ends. Feed checks get a context that Stop does
// not cancel, so a check in flight always completes.
func (p *Poller) loop(ctx context.Context) {
	work := context.WithoutCancel(ctx)
	for p.running.Load() && ctx.Err() == nil {
		report := p.tick(work, ctx)
		if report.Feeds == 0 || p.interval <= 0 {
			// nothing paced the pass, so wait here
			if !sleep(ctx, max(p.interval, time.Second)) {
				return
			}
		}
	}
}

// Tick runs one full pass over the series feeds. Per-feed failures are
// logged and skipped. Between feeds it sleeps FeedInterval, returning early
// when ctx is cancelled.
func (p *Poller) Tick(ctx context.Context) TickReport {
	return p.tick(ctx, ctx)
}

// tick checks feeds under ctx and sleeps between them under wait. The pass
// ends at the first feed boundary after wait is done.
func (p *Poller) tick(ctx, wait context.Context) TickReport {
	start := time.Now()
	ctx, logger := logging.WithCorrelationID(ctx, p.logger)

	var report TickReport
	feeds, err := p.checker.GetFeedsByTag(ctx, entity.TagSeries)
	if err != nil {
		logger.Error("poll: list feeds failed", slog.Any("error", err))
		report.Errors++
		return report
	}
	report.Feeds = len(feeds)
	pause := FeedInterval(p.interval, len(feeds))

	for i, feed := range feeds {
		if wait.Err() != nil || ctx.Err() != nil {
			break
		}
		p.checkOne(ctx, logger, feed, &report)
		if i < len(feeds)-1 || p.running.Load() {
			if !sleep(wait, pause) {
				break
			}
		}
	}

	duration := time.Since(start)
	metrics.RecordPollTick(len(feeds), duration)
	logger.Info("poll pass complete",
		slog.Int("feeds", report.Feeds),
		slog.Int("updated", report.Updated),
		slog.Int("finished", report.Finished),
		slog.Int("errors", report.Errors),
		slog.Duration("duration", duration))
	return report
}

func (p *Poller) checkOne(ctx context.Context, logger *slog.Logger, feed *entity.Feed, report *TickReport) {
	logger = logger.With(slog.Int64("feed_id", feed.ID), slog.String("feed", feed.Name))

	res, err := p.checker.CheckFeedUpdate(ctx, feed)
	if err != nil {
		report.Errors++
		metrics.RecordFeedCheck(feed.PlatformID, "error")
		logger.Warn("feed check failed",
			slog.String("platform", feed.PlatformID),
			slog.String("kind", kindLabel(err)),
			slog.Any("error", err))
		return
	}
	metrics.RecordFeedCheck(feed.PlatformID, res.Status.String())

	switch res.Status {
	case subscription.FeedSourceFinished:
		report.Finished++
	case subscription.FeedUpdated:
		report.Updated++
		n := p.events.Publish(ctx, event.FeedUpdate{
			Feed:    feed,
			Info:    res.Info,
			OldItem: res.Old,
			NewItem: res.New,
		})
		logger.Info("feed updated",
			slog.String("item", res.New.Description),
			slog.Int("subscribers", n))
	}
}

func kindLabel(err error) string {
	if k := platform.KindOf(err); k != 0 {
		return k.String()
	}
	return "other"
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
