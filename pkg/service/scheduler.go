// Package service drives entity service methods through their lifecycle:
// seed methods on first start, startup and shutdown hooks, and interval
// methods on a cyclic scheduler.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handle identifies one scheduled cyclic job.
type Handle string

// Scheduler runs functions on a fixed period.
type Scheduler interface {
	// Cyclic schedules fn to run every period until cancelled. The first
	// run happens one full period after registration.
	Cyclic(period time.Duration, fn func(context.Context)) Handle

	// Cancel stops and forgets the job with the given handle.
	Cancel(h Handle) error
}

// job is one cyclic schedule's bookkeeping.
type job struct {
	period  time.Duration
	fn      func(context.Context)
	nextRun time.Time
	lastRun time.Time
	running bool
}

// CyclicScheduler checks schedules on a fixed cadence and launches due
// jobs in their own goroutines. A job still running when its next tick
// arrives is skipped until it finishes, so slow jobs never overlap
// themselves.
type CyclicScheduler struct {
	logger  *zap.Logger
	cadence time.Duration

	mu   sync.RWMutex
	jobs map[Handle]*job

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
}

// NewCyclicScheduler creates a scheduler that checks schedules once a
// second.
func NewCyclicScheduler(logger *zap.Logger) *CyclicScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CyclicScheduler{
		logger:  logger,
		cadence: time.Second,
		jobs:    make(map[Handle]*job),
	}
}

// SetCadence changes how often the scheduler checks for due jobs. Call
// it before Start; a running loop keeps the cadence it started with.
func (s *CyclicScheduler) SetCadence(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cadence = d
}

// Start launches the check loop. Starting an already started scheduler
// does nothing.
func (s *CyclicScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.stopChan = make(chan struct{})
	s.wg.Add(1)
	go s.loop(s.stopChan, s.cadence)
}

// Stop halts the check loop and waits for in-flight jobs to finish.
// Registered schedules survive a stop.
func (s *CyclicScheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Debug("scheduler stopped")
}

// Cyclic registers fn to run every period.
func (s *CyclicScheduler) Cyclic(period time.Duration, fn func(context.Context)) Handle {
	h := Handle(uuid.NewString())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[h] = &job{
		period:  period,
		fn:      fn,
		nextRun: time.Now().Add(period),
	}
	s.logger.Debug("job scheduled",
		zap.String("handle", string(h)),
		zap.Duration("period", period))
	return h
}

// Cancel removes a scheduled job. A run already in flight finishes.
func (s *CyclicScheduler) Cancel(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[h]; !ok {
		return fmt.Errorf("no scheduled job with handle %s", h)
	}
	delete(s.jobs, h)
	return nil
}

// Len returns the number of registered schedules.
func (s *CyclicScheduler) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}

func (s *CyclicScheduler) loop(stop <-chan struct{}, cadence time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(cadence)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			s.runDue(now)
		}
	}
}

// runDue launches every job whose next run has arrived.
func (s *CyclicScheduler) runDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, j := range s.jobs {
		if j.running || now.Before(j.nextRun) {
			continue
		}
		j.running = true
		j.lastRun = now
		j.nextRun = now.Add(j.period)

		handle, fn := h, j.fn
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.finish(handle)
			fn(context.Background())
		}()
	}
}

func (s *CyclicScheduler) finish(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[h]; ok {
		j.running = false
	}
}
