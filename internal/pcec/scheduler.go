package pcec

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler interval bounds.
const (
	DefaultInterval = 3 * time.Hour
	MinInterval     = 30 * time.Minute
	MaxInterval     = 6 * time.Hour
)

// ClampInterval forces an interval into the allowed band; non-positive
// values get the default.
func ClampInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultInterval
	}
	if d < MinInterval {
		return MinInterval
	}
	if d > MaxInterval {
		return MaxInterval
	}
	return d
}

// CycleFunc runs one scheduled cycle. Errors are logged and swallowed so
// scheduling continues.
type CycleFunc func(ctx context.Context) error

// Scheduler serializes timer-driven cycle invocations: the next tick is
// armed only after the current invocation settles, so cycles never overlap.
// Stopping is cooperative; an in-flight cycle is signalled through its
// context but not forcibly interrupted.
type Scheduler struct {
	interval time.Duration
	fn       CycleFunc
	log      *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewScheduler builds a stopped scheduler. The logger may be nil.
func NewScheduler(interval time.Duration, fn CycleFunc, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		interval: ClampInterval(interval),
		fn:       fn,
		log:      log,
	}
}

// Interval returns the effective (clamped) interval.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches the loop. Starting a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, s.done)
}

// Stop clears the pending timer, flips the running flag and waits for any
// in-flight cycle to settle.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.invoke(ctx)
			// Arm the next tick only after the cycle settled.
			timer.Reset(s.interval)
		}
	}
}

// invoke runs one cycle, containing both errors and panics so the loop
// keeps scheduling.
func (s *Scheduler) invoke(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduled cycle panicked", zap.Any("panic", r))
		}
	}()
	if err := s.fn(ctx); err != nil {
		s.log.Warn("scheduled cycle failed", zap.Error(err))
	}
}
