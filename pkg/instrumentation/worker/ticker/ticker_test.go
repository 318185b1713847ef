package ticker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hyp3rd/ewrap"
	"go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/hyp3rd/guance/pkg/instrumentation/worker"
)

const waitFor = time.Second

func TestNewValidation(t *testing.T) {
	t.Parallel()

	helper, _ := newTestHelper(t)

	tests := []struct {
		name   string
		helper *worker.Helper
		cfg    Config
	}{
		{name: "nil helper", cfg: Config{Interval: time.Second}},
		{name: "zero interval", helper: helper},
		{name: "negative interval", helper: helper, cfg: Config{Interval: -time.Second}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := New(tc.helper, tc.cfg); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestNewFillsJobDefaults(t *testing.T) {
	t.Parallel()

	helper, _ := newTestHelper(t)

	s, err := New(helper, Config{Interval: 30 * time.Second})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if s.cfg.Job.Name != "scheduled-job" || s.cfg.Job.Schedule != "@every 30s" {
		t.Fatalf("unexpected job defaults: %+v", s.cfg.Job)
	}
}

func TestSchedulerReportsFailedRuns(t *testing.T) {
	t.Parallel()

	helper, recorder := newTestHelper(t)
	jobErr := ewrap.New("job failed")
	handled := make(chan error, 1)

	s, err := New(helper, Config{
		Interval: time.Second,
		Job:      worker.JobInfo{Name: "flush-buffers"},
		ErrorHandler: func(err error) {
			select {
			case handled <- err:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	clk := newFakeClock()
	s.clock = clk.ticker

	err = s.Start(t.Context(), func(context.Context) error { return jobErr })
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	clk.tick()

	select {
	case got := <-handled:
		if !errors.Is(got, jobErr) {
			t.Fatalf("expected handler error %v, got %v", jobErr, got)
		}
	case <-time.After(waitFor):
		t.Fatal("expected error handler to be invoked")
	}

	stop(t, s)

	if len(recorder.Ended()) == 0 || recorder.Ended()[0].Name() != "flush-buffers" {
		t.Fatalf("expected a flush-buffers job span, got %d spans", len(recorder.Ended()))
	}
}

func TestSchedulerStartErrors(t *testing.T) {
	t.Parallel()

	helper, _ := newTestHelper(t)

	s, err := New(helper, Config{Interval: time.Hour})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if !errors.Is(s.Start(t.Context(), nil), ErrNoJob) {
		t.Fatal("expected ErrNoJob for a nil job")
	}

	noop := func(context.Context) error { return nil }

	err = s.Start(t.Context(), noop)
	if err != nil {
		t.Fatalf("expected first start to succeed, got %v", err)
	}

	if !errors.Is(s.Start(t.Context(), noop), ErrRunning) {
		t.Fatal("expected ErrRunning when starting twice")
	}

	stop(t, s)

	err = s.Start(t.Context(), noop)
	if err != nil {
		t.Fatalf("expected restart after Stop to succeed, got %v", err)
	}

	stop(t, s)
}

func TestSchedulerRunOnStart(t *testing.T) {
	t.Parallel()

	helper, _ := newTestHelper(t)

	s, err := New(helper, Config{
		Interval:   time.Hour,
		Job:        worker.JobInfo{Name: "warmup"},
		RunOnStart: true,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	s.clock = newFakeClock().ticker

	ctx, cancel := context.WithCancel(t.Context())
	ran := make(chan struct{})

	go func() {
		<-ran
		cancel()
	}()

	err = s.Run(ctx, func(context.Context) error {
		close(ran)

		return nil
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
}

func TestSchedulerTimeoutBoundsRun(t *testing.T) {
	t.Parallel()

	helper, _ := newTestHelper(t)
	handled := make(chan error, 1)

	s, err := New(helper, Config{
		Interval:     time.Hour,
		RunOnStart:   true,
		Timeout:      10 * time.Millisecond,
		ErrorHandler: func(err error) { handled <- err },
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	s.clock = newFakeClock().ticker

	err = s.Start(t.Context(), func(ctx context.Context) error {
		<-ctx.Done()

		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	select {
	case got := <-handled:
		if !errors.Is(got, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", got)
		}
	case <-time.After(waitFor):
		t.Fatal("expected the run to time out")
	}

	stop(t, s)
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()

	helper, _ := newTestHelper(t)

	s, err := New(helper, Config{Interval: time.Second})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	err = s.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
}

func stop(t *testing.T, s *Scheduler) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	err := s.Stop(ctx)
	if err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
}

func newTestHelper(t *testing.T) (*worker.Helper, *tracetest.SpanRecorder) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	mp := metric.NewMeterProvider(metric.WithReader(metric.NewManualReader()))

	helper, err := worker.NewHelper(tp, mp)
	if err != nil {
		t.Fatalf("NewHelper returned error: %v", err)
	}

	return helper, recorder
}

type fakeClock struct {
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{ch: make(chan time.Time, 1)}
}

func (c *fakeClock) ticker(time.Duration) (<-chan time.Time, func()) {
	return c.ch, func() {}
}

func (c *fakeClock) tick() {
	c.ch <- time.Now()
}
