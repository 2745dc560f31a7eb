// Package eventbus is an in-process, type-keyed publish/subscribe bus.
// Subscribers register for one concrete event type and are invoked
// asynchronously, so a slow or failing subscriber never blocks the publisher
// or the other subscribers of the same event.
package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"seriesbell/internal/observability/logging"
	"seriesbell/internal/observability/tracing"
)

const (
	DefaultMaxConcurrent   = 10
	DefaultAcquireTimeout  = 5 * time.Second  // wait for a worker slot before dropping
	DefaultCallbackTimeout = 30 * time.Second // per-callback deadline
	unhealthyThreshold     = 5                // consecutive failures before a subscriber reports unhealthy
)

// Subscriber handles events of type E.
type Subscriber[E any] interface {
	// Name identifies the subscriber in logs, metrics and health output.
	Name() string
	Handle(ctx context.Context, event E) error
}

// Func adapts a function into a Subscriber.
func Func[E any](name string, fn func(ctx context.Context, event E) error) Subscriber[E] {
	return funcSubscriber[E]{name: name, fn: fn}
}

type funcSubscriber[E any] struct {
	name string
	fn   func(ctx context.Context, event E) error
}

func (f funcSubscriber[E]) Name() string { return f.name }

func (f funcSubscriber[E]) Handle(ctx context.Context, event E) error { return f.fn(ctx, event) }

// Option configures a single registration.
type Option func(*registration)

// Ordered makes the bus hand events to the subscriber one at a time, in
// publication order, through a dedicated queue. Use it for subscribers whose
// state depends on event order, such as voice presence.
func Ordered() Option {
	return func(r *registration) { r.ordered = true }
}

// Bus dispatches published events to the subscribers registered for the
// event's concrete type.
type Bus struct {
	mu       sync.RWMutex
	subs     map[reflect.Type][]*registration
	all      []*registration // registration order, for health output
	closed   bool
	logger   *slog.Logger
	now      func() time.Time
	queuesWG sync.WaitGroup

	workerPool      chan struct{}   // semaphore bounding concurrent callbacks
	acquireTimeout  time.Duration   // how long a dispatch waits for a slot
	callbackTimeout time.Duration   // deadline of each callback
	wg              sync.WaitGroup  // in-flight dispatches
	shutdownCtx     context.Context // parent of every callback context
	shutdownCancel  context.CancelFunc
}

type registration struct {
	name      string
	eventType reflect.Type
	ordered   bool
	queue     *fifo
	handle    func(ctx context.Context, event any) error
	health    subscriberHealth
}

type dispatch struct {
	event  any
	logger *slog.Logger
	span   trace.SpanContext
}

// subscriberHealth tracks callback outcomes for one subscriber.
type subscriberHealth struct {
	mu                  sync.Mutex
	consecutiveFailures int
	delivered           uint64
	failed              uint64
	dropped             uint64
	lastError           string
	lastFailure         time.Time
}

// SubscriberHealth is a snapshot of one subscriber's dispatch history.
type SubscriberHealth struct {
	Name                string     `json:"name"`
	EventType           string     `json:"event_type"`
	Healthy             bool       `json:"healthy"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Delivered           uint64     `json:"delivered"`
	Failed              uint64     `json:"failed"`
	Dropped             uint64     `json:"dropped"`
	LastError           string     `json:"last_error,omitempty"`
	LastFailure         *time.Time `json:"last_failure,omitempty"`
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithAcquireTimeout overrides DefaultAcquireTimeout.
func WithAcquireTimeout(d time.Duration) BusOption {
	return func(b *Bus) { b.acquireTimeout = d }
}

// WithCallbackTimeout overrides DefaultCallbackTimeout.
func WithCallbackTimeout(d time.Duration) BusOption {
	return func(b *Bus) { b.callbackTimeout = d }
}

// WithLogger sets the logger used when the publisher's context carries none.
func WithLogger(l *slog.Logger) BusOption {
	return func(b *Bus) { b.logger = l }
}

// NewBus creates a bus running at most maxConcurrent callbacks at a time.
// Values below 1 fall back to DefaultMaxConcurrent.
func NewBus(maxConcurrent int, opts ...BusOption) *Bus {
	if maxConcurrent < 1 {
		maxConcurrent = DefaultMaxConcurrent
	}
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	b := &Bus{
		subs:            make(map[reflect.Type][]*registration),
		logger:          slog.Default(),
		now:             time.Now,
		workerPool:      make(chan struct{}, maxConcurrent),
		acquireTimeout:  DefaultAcquireTimeout,
		callbackTimeout: DefaultCallbackTimeout,
		shutdownCtx:     shutdownCtx,
		shutdownCancel:  shutdownCancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register adds sub to the subscribers of events of type E.
// Registering after Shutdown is a no-op.
func Register[E any](b *Bus, sub Subscriber[E], opts ...Option) {
	r := &registration{
		name:      sub.Name(),
		eventType: reflect.TypeFor[E](),
		handle: func(ctx context.Context, event any) error {
			e, ok := event.(E)
			if !ok {
				return fmt.Errorf("eventbus: %s received %T", sub.Name(), event)
			}
			return sub.Handle(ctx, e)
		},
	}
	for _, opt := range opts {
		opt(r)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if r.ordered {
		r.queue = newFIFO()
		b.queuesWG.Add(1)
		go b.drain(r)
	}
	b.subs[r.eventType] = append(b.subs[r.eventType], r)
	b.all = append(b.all, r)
	setSubscribers(len(b.all))
}

// Publish hands event to every subscriber registered for its concrete type,
// in registration order, and returns without waiting for them. It reports
// how many subscribers the event was handed to.
func (b *Bus) Publish(ctx context.Context, event any) int {
	if event == nil {
		return 0
	}
	t := reflect.TypeOf(event)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		b.loggerFor(ctx).Warn("event published after shutdown", slog.String("event_type", t.String()))
		return 0
	}
	regs := b.subs[t]
	if len(regs) == 0 {
		b.loggerFor(ctx).Debug("no subscribers for event", slog.String("event_type", t.String()))
		return 0
	}

	_, logger := logging.WithCorrelationID(ctx, b.loggerFor(ctx))
	d := dispatch{event: event, logger: logger, span: trace.SpanContextFromContext(ctx)}

	for _, r := range regs {
		RecordPublished(r.name)
		b.wg.Add(1)
		if r.ordered {
			b.enqueue(r, d)
			continue
		}
		go func(r *registration) {
			defer b.wg.Done()
			b.run(r, d)
		}(r)
	}
	return len(regs)
}

// enqueue hands d to an ordered subscriber without waiting. The queue is
// unbounded so a subscriber that falls behind never stalls the publisher.
func (b *Bus) enqueue(r *registration, d dispatch) {
	if !r.queue.push(d) {
		b.wg.Done()
		b.drop(r, d, "shutdown")
		return
	}
	setQueueDepth(r.name, r.queue.len())
}

func (b *Bus) drain(r *registration) {
	defer b.queuesWG.Done()
	for {
		d, ok := r.queue.pop()
		if !ok {
			return
		}
		setQueueDepth(r.name, r.queue.len())
		b.run(r, d)
		b.wg.Done()
	}
}

// run executes one callback under a worker slot.
func (b *Bus) run(r *registration, d dispatch) {
	logger := d.logger.With(slog.String("subscriber", r.name), slog.String("event_type", r.eventType.String()))

	timer := time.NewTimer(b.acquireTimeout)
	select {
	case b.workerPool <- struct{}{}:
		timer.Stop()
		defer func() { <-b.workerPool }()
	case <-timer.C:
		b.drop(r, d, "pool_full")
		return
	case <-b.shutdownCtx.Done():
		timer.Stop()
		b.drop(r, d, "shutdown")
		return
	}

	IncrementActiveHandlers()
	defer DecrementActiveHandlers()

	ctx, cancel := context.WithTimeout(b.shutdownCtx, b.callbackTimeout)
	defer cancel()
	if d.span.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, d.span)
	}
	ctx = logging.WithLogger(ctx, logger)
	ctx, span := tracing.StartSpan(ctx, "eventbus.dispatch",
		attribute.String("subscriber", r.name),
		attribute.String("event_type", r.eventType.String()),
	)

	start := b.now()
	err := b.invoke(ctx, r, d.event)
	duration := b.now().Sub(start)
	tracing.EndSpan(span, err)

	r.health.record(err, b.now())
	if err != nil {
		RecordFailure(r.name, duration)
		logger.Warn("subscriber failed",
			slog.Duration("duration", duration),
			slog.Any("error", err))
		return
	}
	RecordSuccess(r.name, duration)
	logger.Debug("subscriber handled event", slog.Duration("duration", duration))
}

// invoke calls the subscriber and converts a panic into an error.
func (b *Bus) invoke(ctx context.Context, r *registration, event any) (err error) {
	defer func() {
		if p := recover(); p != nil {
			RecordPanic(r.name)
			logging.FromContext(ctx).Error("panic in subscriber",
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())))
			err = fmt.Errorf("eventbus: subscriber %s panicked: %v", r.name, p)
		}
	}()
	return r.handle(ctx, event)
}

func (b *Bus) drop(r *registration, d dispatch, reason string) {
	r.health.mu.Lock()
	r.health.dropped++
	r.health.mu.Unlock()
	RecordDropped(r.name, reason)
	d.logger.Warn("event dropped",
		slog.String("subscriber", r.name),
		slog.String("event_type", r.eventType.String()),
		slog.String("reason", reason))
}

func (b *Bus) loggerFor(ctx context.Context) *slog.Logger {
	if l := logging.FromContext(ctx); l != slog.Default() {
		return l
	}
	return b.logger
}

func (h *subscriberHealth) record(err error, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		h.consecutiveFailures = 0
		h.delivered++
		return
	}
	h.consecutiveFailures++
	h.failed++
	h.lastError = err.Error()
	h.lastFailure = at
}

// Health returns a snapshot per subscriber, in registration order.
func (b *Bus) Health() []SubscriberHealth {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]SubscriberHealth, 0, len(b.all))
	for _, r := range b.all {
		r.health.mu.Lock()
		s := SubscriberHealth{
			Name:                r.name,
			EventType:           r.eventType.String(),
			Healthy:             r.health.consecutiveFailures < unhealthyThreshold,
			ConsecutiveFailures: r.health.consecutiveFailures,
			Delivered:           r.health.delivered,
			Failed:              r.health.failed,
			Dropped:             r.health.dropped,
			LastError:           r.health.lastError,
		}
		if !r.health.lastFailure.IsZero() {
			t := r.health.lastFailure
			s.LastFailure = &t
		}
		r.health.mu.Unlock()
		out = append(out, s)
	}
	return out
}

// Shutdown stops accepting events and waits for in-flight callbacks.
// When ctx expires first, running callbacks are cancelled and ctx.Err() is
// returned.
func (b *Bus) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, r := range b.all {
		if r.queue != nil {
			r.queue.close()
		}
	}
	b.mu.Unlock()

	b.logger.Info("shutting down event bus")

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		b.queuesWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.shutdownCancel()
		b.logger.Info("event bus shutdown complete")
		return nil
	case <-ctx.Done():
		b.shutdownCancel()
		b.logger.Warn("event bus shutdown timeout")
		return ctx.Err()
	}
}
