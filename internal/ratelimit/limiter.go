// Package ratelimit serializes outbound calls to one external provider so
// that neither its burst window nor its daily quota is exceeded.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"
)

// Provider names used as quota keys.
const (
	ProviderYouTube = "youtube"
	ProviderDiscogs = "discogs"
)

// Config describes the budget of a single provider.
type Config struct {
	Provider string

	// WindowLimit requests are allowed per Window. Zero disables the burst check.
	WindowLimit int
	Window      time.Duration

	// DailyBudget is measured in provider units; each request costs
	// CostPerRequest units. Zero disables the daily check.
	DailyBudget    int
	CostPerRequest int
	DailyWindow    time.Duration

	// MinDelay is the pause enforced between consecutive dispatches.
	MinDelay time.Duration
}

// YouTubeDefaults returns the YouTube Data API budget: 10 requests per
// second and 9000 of the 10000 daily units at 100 units per search.
func YouTubeDefaults() Config {
	return Config{
		Provider:       ProviderYouTube,
		WindowLimit:    10,
		Window:         time.Second,
		DailyBudget:    9000,
		CostPerRequest: 100,
		DailyWindow:    24 * time.Hour,
		MinDelay:       100 * time.Millisecond,
	}
}

// DiscogsDefaults returns the Discogs budget: 55 of the 60 authenticated
// requests allowed per minute.
func DiscogsDefaults() Config {
	return Config{
		Provider:       ProviderDiscogs,
		WindowLimit:    55,
		Window:         time.Minute,
		CostPerRequest: 1,
		DailyWindow:    24 * time.Hour,
		MinDelay:       250 * time.Millisecond,
	}
}

// Status is a read-only snapshot of a provider's budget.
type Status struct {
	Provider         string  `json:"provider"`
	Used             int     `json:"used"`
	Max              int     `json:"max"`
	PercentUsed      float64 `json:"percent_used"`
	QueueLength      int     `json:"queue_length"`
	RequestsInWindow int     `json:"requests_in_window"`
}

// Limiter runs queued tasks one at a time, in FIFO order, within budget.
// When the daily budget is spent the queue blocks until the day rolls over;
// tasks are never dropped and never sent over budget.
type Limiter struct {
	cfg    Config
	store  QuotaStore
	pacer  *rate.Limiter
	logger hclog.Logger

	mu       sync.Mutex
	queue    []*job
	draining bool
	last     QuotaState

	dispatched atomic.Int64
}

type job struct {
	ctx  context.Context
	task func(context.Context) error
	done chan error

	// started is set under Limiter.mu once the dispatcher takes the job.
	started bool
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithStore sets the quota store. The default is a private MemoryStore.
func WithStore(s QuotaStore) Option {
	return func(l *Limiter) {
		if s != nil {
			l.store = s
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger hclog.Logger) Option {
	return func(l *Limiter) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a Limiter for cfg.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.CostPerRequest <= 0 {
		cfg.CostPerRequest = 1
	}
	if cfg.DailyWindow <= 0 {
		cfg.DailyWindow = 24 * time.Hour
	}

	pace := rate.Inf
	if cfg.MinDelay > 0 {
		pace = rate.Every(cfg.MinDelay)
	}

	l := &Limiter{
		cfg:    cfg,
		store:  NewMemoryStore(),
		pacer:  rate.NewLimiter(pace, 1),
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Provider returns the provider name this limiter guards.
func (l *Limiter) Provider() string {
	return l.cfg.Provider
}

// Dispatched returns how many tasks have been started since creation.
func (l *Limiter) Dispatched() int64 {
	return l.dispatched.Load()
}

// Enqueue adds task to the queue and waits for its outcome.
// If ctx is cancelled before the task is dispatched the task never runs and
// ctx.Err() is returned. Once dispatched, Enqueue waits for the task to
// return, so nothing the task touches outlives the call.
func (l *Limiter) Enqueue(ctx context.Context, task func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j := &job{ctx: ctx, task: task, done: make(chan error, 1)}

	l.mu.Lock()
	l.queue = append(l.queue, j)
	if !l.draining {
		l.draining = true
		go l.drain()
	}
	l.mu.Unlock()

	select {
	case err := <-j.done:
		return err
	case <-ctx.Done():
	}

	l.mu.Lock()
	started := j.started
	l.mu.Unlock()
	if !started {
		// dispatch sees the cancelled ctx and skips the task.
		return ctx.Err()
	}
	return <-j.done
}

// Do enqueues fn on l and returns its result.
func Do[T any](ctx context.Context, l *Limiter, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := l.Enqueue(ctx, func(ctx context.Context) error {
		var err error
		result, err = fn(ctx)
		return err
	})
	return result, err
}

// drain is the single dispatcher for this limiter.
func (l *Limiter) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.draining = false
			l.mu.Unlock()
			return
		}
		j := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		j.started = true
		l.mu.Unlock()

		j.done <- l.dispatch(j)
	}
}

func (l *Limiter) dispatch(j *job) (err error) {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	if err := l.acquire(j.ctx); err != nil {
		return err
	}

	l.dispatched.Add(1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s task panicked: %v", l.cfg.Provider, r)
		}
	}()
	return j.task(j.ctx)
}

// acquire blocks until one request fits the budget, then records it.
func (l *Limiter) acquire(ctx context.Context) error {
	if err := l.pacer.Wait(ctx); err != nil {
		return err
	}

	exhaustedLogged := false
	for {
		state, err := l.store.Load(ctx, l.cfg.Provider)
		if err != nil {
			return fmt.Errorf("loading %s quota state: %w", l.cfg.Provider, err)
		}

		now := time.Now()
		state = l.roll(state, now)

		if wait, daily := l.blockedFor(state, now); wait > 0 {
			if daily && !exhaustedLogged {
				l.logger.Warn("daily budget exhausted, holding queue",
					"provider", l.cfg.Provider,
					"used", state.DailyBudgetUsed,
					"budget", l.cfg.DailyBudget,
					"resumes_in", wait)
				exhaustedLogged = true
			}
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		state.RequestsInWindow++
		state.DailyBudgetUsed += l.cfg.CostPerRequest
		if err := l.store.Save(ctx, l.cfg.Provider, state); err != nil {
			return fmt.Errorf("saving %s quota state: %w", l.cfg.Provider, err)
		}
		l.remember(state)
		return nil
	}
}

// roll resets the burst and daily counters whose windows have elapsed.
func (l *Limiter) roll(state QuotaState, now time.Time) QuotaState {
	if state.WindowStart.IsZero() || (l.cfg.Window > 0 && now.Sub(state.WindowStart) >= l.cfg.Window) {
		state.WindowStart = now
		state.RequestsInWindow = 0
	}
	if state.DayStart.IsZero() || now.Sub(state.DayStart) >= l.cfg.DailyWindow {
		state.DayStart = now
		state.DailyBudgetUsed = 0
	}
	return state
}

// blockedFor reports how long dispatch must wait and whether the daily
// budget is the reason.
func (l *Limiter) blockedFor(state QuotaState, now time.Time) (time.Duration, bool) {
	if l.cfg.DailyBudget > 0 && state.DailyBudgetUsed+l.cfg.CostPerRequest > l.cfg.DailyBudget {
		return state.DayStart.Add(l.cfg.DailyWindow).Sub(now), true
	}
	if l.cfg.WindowLimit > 0 && state.RequestsInWindow >= l.cfg.WindowLimit {
		return state.WindowStart.Add(l.cfg.Window).Sub(now), false
	}
	return 0, false
}

// MarkExhausted spends the rest of today's budget, used when the provider
// itself reports that the quota is gone.
func (l *Limiter) MarkExhausted(ctx context.Context) error {
	if l.cfg.DailyBudget <= 0 {
		return nil
	}
	state, err := l.store.Load(ctx, l.cfg.Provider)
	if err != nil {
		return fmt.Errorf("loading %s quota state: %w", l.cfg.Provider, err)
	}
	state = l.roll(state, time.Now())
	state.DailyBudgetUsed = l.cfg.DailyBudget
	if err := l.store.Save(ctx, l.cfg.Provider, state); err != nil {
		return fmt.Errorf("saving %s quota state: %w", l.cfg.Provider, err)
	}
	l.remember(state)
	return nil
}

// Status returns a snapshot of the budget. It has no side effects; if the
// store cannot be read the last state seen by this limiter is reported.
func (l *Limiter) Status(ctx context.Context) Status {
	state, err := l.store.Load(ctx, l.cfg.Provider)
	if err != nil {
		l.logger.Warn("reading quota state", "provider", l.cfg.Provider, "error", err)
		l.mu.Lock()
		state = l.last
		l.mu.Unlock()
	}
	state = l.roll(state, time.Now())

	l.mu.Lock()
	queued := len(l.queue)
	l.mu.Unlock()

	st := Status{
		Provider:         l.cfg.Provider,
		QueueLength:      queued,
		RequestsInWindow: state.RequestsInWindow,
	}
	if l.cfg.DailyBudget > 0 {
		st.Used = state.DailyBudgetUsed
		st.Max = l.cfg.DailyBudget
	} else {
		st.Used = state.RequestsInWindow
		st.Max = l.cfg.WindowLimit
	}
	if st.Max > 0 {
		st.PercentUsed = float64(st.Used) / float64(st.Max) * 100
	}
	return st
}

func (l *Limiter) remember(state QuotaState) {
	l.mu.Lock()
	l.last = state
	l.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
