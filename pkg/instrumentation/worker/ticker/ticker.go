// Package ticker runs an instrumented job on a fixed interval.
package ticker

import (
	"context"
	"sync"
	"time"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/guance/pkg/instrumentation/worker"
)

var (
	// ErrRunning is returned by Start while a previous Start is still active.
	ErrRunning = ewrap.New("scheduler already running")
	// ErrNoJob is returned when the job function is nil.
	ErrNoJob = ewrap.New("job function is required")
)

// JobFunc is executed on every tick.
type JobFunc func(context.Context) error

// Config configures a Scheduler.
type Config struct {
	Interval time.Duration
	Job      worker.JobInfo
	// RunOnStart executes the job once before the first tick.
	RunOnStart bool
	// Timeout bounds a single execution. Zero leaves runs unbounded.
	Timeout time.Duration
	// ErrorHandler receives every failed execution.
	ErrorHandler func(error)
}

// clock returns a tick channel and a stop function.
type clock func(time.Duration) (<-chan time.Time, func())

// Scheduler executes a job through a worker.Helper, so each run becomes a job span.
type Scheduler struct {
	helper *worker.Helper
	cfg    Config
	clock  clock

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New validates cfg and returns an idle Scheduler.
func New(helper *worker.Helper, cfg Config) (*Scheduler, error) {
	if helper == nil {
		return nil, ewrap.New("worker helper is required")
	}

	if cfg.Interval <= 0 {
		return nil, ewrap.Newf("interval must be greater than zero, got %s", cfg.Interval)
	}

	if cfg.Job.Name == "" {
		cfg.Job.Name = "scheduled-job"
	}

	if cfg.Job.Schedule == "" {
		cfg.Job.Schedule = "@every " + cfg.Interval.String()
	}

	return &Scheduler{
		helper: helper,
		cfg:    cfg,
		clock:  realClock,
	}, nil
}

// Run executes fn on every tick and blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context, fn JobFunc) error {
	if fn == nil {
		return ErrNoJob
	}

	ticks, stop := s.clock(s.cfg.Interval)
	defer stop()

	if s.cfg.RunOnStart {
		s.once(ctx, fn)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticks:
			s.once(ctx, fn)
		}
	}
}

// Start runs the scheduler in the background until Stop is called or ctx is canceled.
func (s *Scheduler) Start(ctx context.Context, fn JobFunc) error {
	if fn == nil {
		return ErrNoJob
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		return ErrRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		defer s.release(done)

		_ = s.Run(runCtx, fn)
	}()

	return nil
}

// Stop cancels a started scheduler and waits for the running execution to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ewrap.Wrap(ctx.Err(), "stop scheduler")
	}
}

func (s *Scheduler) once(ctx context.Context, fn JobFunc) {
	runCtx := ctx

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	err := s.helper.Instrument(runCtx, s.cfg.Job, fn)
	if err != nil && s.cfg.ErrorHandler != nil {
		s.cfg.ErrorHandler(err)
	}
}

// release clears the running state unless a newer Start replaced it.
func (s *Scheduler) release(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done == done {
		s.cancel()
		s.cancel = nil
		s.done = nil
	}
}

func realClock(interval time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(interval)

	return t.C, t.Stop
}
