package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"wallet-activity/internal/activity"
	"wallet-activity/internal/metrics"
	"wallet-activity/internal/pager"
)

// ErrClosed is returned by loads issued against, or finishing after, a closed view.
var ErrClosed = errors.New("reconcile: view closed")

// Sink receives every successfully loaded result set. Publish is called with
// the view lock held and must not call back into the view.
type Sink interface {
	Publish(address string, records []activity.ClassifiedTransaction)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(address string, records []activity.ClassifiedTransaction)

// Publish implements Sink.
func (f SinkFunc) Publish(address string, records []activity.ClassifiedTransaction) {
	f(address, records)
}

// Schedule is the burst of forced loads that follows a confirmed write.
type Schedule struct {
	InitialDelay time.Duration
	Interval     time.Duration
	Attempts     int
}

// DefaultSchedule refreshes at 4s, 7s, 10s and 13s.
func DefaultSchedule() Schedule {
	return Schedule{InitialDelay: 4 * time.Second, Interval: 3 * time.Second, Attempts: 4}
}

// Delays lists the offsets of each refresh from the trigger.
func (s Schedule) Delays() []time.Duration {
	if s.Attempts <= 0 {
		return nil
	}
	out := make([]time.Duration, s.Attempts)
	for i := range out {
		out[i] = s.InitialDelay + time.Duration(i)*s.Interval
	}
	return out
}

// Stopper is the part of *time.Timer a view needs.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// ViewOption customises a View.
type ViewOption func(*View)

// WithSchedule overrides the post-write refresh schedule.
func WithSchedule(s Schedule) ViewOption {
	return func(v *View) {
		v.schedule = s
	}
}

// WithSink adds a publish target besides the pager.
func WithSink(s Sink) ViewOption {
	return func(v *View) {
		if s != nil {
			v.sinks = append(v.sinks, s)
		}
	}
}

// WithAfterFunc replaces the timer factory.
func WithAfterFunc(f AfterFunc) ViewOption {
	return func(v *View) {
		if f != nil {
			v.afterFunc = f
		}
	}
}

// WithViewMetrics attaches a metrics recorder for refresh scheduling.
func WithViewMetrics(m *metrics.Metrics) ViewOption {
	return func(v *View) {
		v.metrics = m
	}
}

// View is one consumer of an address history. It publishes loads to its pager
// and sinks and owns the post-write refresh timers.
type View struct {
	engine    *Engine
	address   string
	pager     *pager.Pager
	sinks     []Sink
	schedule  Schedule
	afterFunc AfterFunc
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	// ctx is cancelled by Close and bounds timer-driven loads.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	generation uint64
	timers     []Stopper
	pending    int
	loading    int
	err        error
	closed     bool
}

// NewView binds a view to address. A nil pager gets a default one.
func NewView(engine *Engine, address string, p *pager.Pager, logger zerolog.Logger, opts ...ViewOption) *View {
	if p == nil {
		p = pager.New(pager.DefaultPageSize)
	}
	ctx, cancel := context.WithCancel(context.Background())
	v := &View{
		engine:    engine,
		address:   address,
		pager:     p,
		schedule:  DefaultSchedule(),
		afterFunc: realAfterFunc,
		logger:    logger.With().Str("component", "view").Str("address", address).Logger(),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Address returns the bound address.
func (v *View) Address() string {
	return v.address
}

// Pager returns the pager the view publishes to.
func (v *View) Pager() *pager.Pager {
	return v.pager
}

// Load runs one load and publishes its result. On failure the previous
// result stays published and Err reports the user-safe error.
func (v *View) Load(ctx context.Context, force bool) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	v.loading++
	v.mu.Unlock()

	return v.finishLoad(ctx, force)
}

// finishLoad expects the caller to have counted the load in v.loading.
func (v *View) finishLoad(ctx context.Context, force bool) error {
	records, err := v.engine.Load(ctx, v.address, force)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading--
	if v.closed {
		return ErrClosed
	}
	if err != nil {
		v.err = err
		return err
	}
	v.err = nil
	v.pager.Set(records)
	for _, s := range v.sinks {
		s.Publish(v.address, records)
	}
	return nil
}

// Refresh is a load that always bypasses the cache.
func (v *View) Refresh(ctx context.Context) error {
	return v.Load(ctx, true)
}

// NotifyWriteCompleted schedules the post-write burst of forced loads,
// replacing any burst that is still pending.
func (v *View) NotifyWriteCompleted() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}

	cancelled := v.stopTimersLocked()
	v.generation++
	gen := v.generation

	delays := v.schedule.Delays()
	v.timers = make([]Stopper, 0, len(delays))
	for _, d := range delays {
		v.timers = append(v.timers, v.afterFunc(d, func() { v.fire(gen) }))
	}
	v.pending = len(delays)

	v.metrics.RecordRefreshesCancelled(cancelled)
	v.metrics.RecordRefreshesScheduled(len(delays))
	v.logger.Debug().Int("scheduled", len(delays)).Int("cancelled", cancelled).Msg("post-write refresh scheduled")
}

func (v *View) fire(gen uint64) {
	v.mu.Lock()
	if v.closed || gen != v.generation {
		v.mu.Unlock()
		return
	}
	if v.pending > 0 {
		v.pending--
	}
	v.loading++
	v.mu.Unlock()

	if err := v.finishLoad(v.ctx, true); err != nil && !errors.Is(err, ErrClosed) {
		v.logger.Debug().Err(err).Msg("scheduled refresh failed")
	}
}

// Close stops pending refreshes and aborts in-flight timer loads. Loads that
// complete afterwards are discarded.
func (v *View) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	v.generation++
	cancelled := v.stopTimersLocked()
	v.metrics.RecordRefreshesCancelled(cancelled)
	v.cancel()
}

// Pending reports refreshes that are scheduled and have not fired.
func (v *View) Pending() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pending
}

// Loading reports whether a load is in flight.
func (v *View) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading > 0
}

// Idle reports that no refresh is scheduled or in flight.
func (v *View) Idle() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pending == 0 && v.loading == 0
}

// Err returns the error of the most recent completed load, or nil.
func (v *View) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// ErrMessage returns the user-safe text of Err.
func (v *View) ErrMessage() string {
	err := v.Err()
	if err == nil {
		return ""
	}
	var le *LoadError
	if errors.As(err, &le) {
		return le.Message
	}
	return err.Error()
}

func (v *View) stopTimersLocked() int {
	stopped := 0
	for _, t := range v.timers {
		if t.Stop() {
			stopped++
		}
	}
	v.timers = nil
	v.pending = 0
	return stopped
}
