package scheduler

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Scheduler defines the interface for cycle schedulers
type Scheduler interface {
	// Start begins the scheduling loop
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler
	Stop() error

	// Status returns the current scheduler status
	Status() *Status
}

// Status represents the current state of a scheduler
type Status struct {
	Running        bool
	LastRunTime    time.Time
	NextRunTime    time.Time
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int
	LastError      string
}

// Config contains scheduler configuration
type Config struct {
	// Interval between cycles
	Interval time.Duration

	// Remotes to update each tick, in order (empty = runner decides, usually all)
	Remotes []string

	// RunOnStart runs one cycle immediately instead of waiting a full interval
	RunOnStart bool

	// Clock defaults to the real clock
	Clock clockwork.Clock
}

// CycleRunner executes one update cycle for a remote
type CycleRunner interface {
	RunCycle(ctx context.Context, remote string) error
}

// CycleRunnerFunc adapts a function to CycleRunner
type CycleRunnerFunc func(ctx context.Context, remote string) error

// RunCycle implements CycleRunner
func (f CycleRunnerFunc) RunCycle(ctx context.Context, remote string) error {
	return f(ctx, remote)
}
