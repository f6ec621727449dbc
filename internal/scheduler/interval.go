package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/Ning0612/filesync/internal/logger"
)

// IntervalScheduler runs every configured remote once per interval. Cycles
// never overlap: a slow cycle delays the next tick instead of stacking.
type IntervalScheduler struct {
	config Config
	runner CycleRunner
	clock  clockwork.Clock

	mu          sync.RWMutex
	running     bool
	stopped     bool
	stopOnce    sync.Once
	closeOnce   sync.Once
	stopChan    chan struct{}
	stoppedChan chan struct{}

	stats Status
}

// NewIntervalScheduler creates a new interval-based scheduler
func NewIntervalScheduler(config Config, runner CycleRunner) (*IntervalScheduler, error) {
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %v", config.Interval)
	}
	if runner == nil {
		return nil, fmt.Errorf("cycle runner cannot be nil")
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}

	return &IntervalScheduler{
		config:      config,
		runner:      runner,
		clock:       config.Clock,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}, nil
}

// Start begins the scheduling loop
func (s *IntervalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if s.stopped {
		return fmt.Errorf("scheduler cannot be restarted after stop")
	}

	s.running = true
	if s.config.RunOnStart {
		s.stats.NextRunTime = s.clock.Now()
	} else {
		s.stats.NextRunTime = s.clock.Now().Add(s.config.Interval)
	}

	go s.run(ctx)
	return nil
}

// Done is closed once the loop has exited
func (s *IntervalScheduler) Done() <-chan struct{} {
	return s.stoppedChan
}

func (s *IntervalScheduler) run(ctx context.Context) {
	defer s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.running = false
		s.mu.Unlock()
		close(s.stoppedChan)
	})

	if s.config.RunOnStart {
		s.executeCycle(ctx)
	}

	ticker := s.clock.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.Chan():
			s.executeCycle(ctx)
		}
	}
}

// executeCycle runs the configured remotes one after another
func (s *IntervalScheduler) executeCycle(ctx context.Context) {
	s.mu.Lock()
	s.stats.LastRunTime = s.clock.Now()
	s.stats.TotalRuns++
	s.stats.NextRunTime = s.stats.LastRunTime.Add(s.config.Interval)
	s.mu.Unlock()

	remotes := s.config.Remotes
	if len(remotes) == 0 {
		remotes = []string{""}
	}

	var lastErr error
	for _, remote := range remotes {
		if ctx.Err() != nil {
			break
		}
		if err := s.runner.RunCycle(ctx, remote); err != nil {
			lastErr = err
			logger.Get().Warn("scheduled cycle failed", "remote", remote, "error", err)
		}
	}

	s.mu.Lock()
	if lastErr != nil {
		s.stats.FailedRuns++
		s.stats.LastError = lastErr.Error()
	} else {
		s.stats.SuccessfulRuns++
		s.stats.LastError = ""
	}
	s.mu.Unlock()
}

// Stop gracefully stops the scheduler, waiting for a running cycle
func (s *IntervalScheduler) Stop() error {
	s.mu.RLock()
	if !s.running {
		s.mu.RUnlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.RUnlock()

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	<-s.stoppedChan
	return nil
}

// Status returns the current scheduler status
func (s *IntervalScheduler) Status() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := s.stats
	status.Running = s.running
	return &status
}
