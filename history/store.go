package history

import (
	"context"
	"math"
)

// Store persists execution history for one scheduler and keeps its counters.
//
// Implementations must be safe for concurrent use. Get returns nil, nil when
// the fire instance is unknown. The Filter* methods only see entries of the
// bound scheduler name and return each group oldest first.
type Store interface {
	SchedulerName() string
	SetSchedulerName(name string)

	Get(ctx context.Context, fireInstanceID string) (*Entry, error)
	Save(ctx context.Context, entry *Entry) error
	Purge(ctx context.Context) error

	FilterLastOfEveryJob(ctx context.Context, limitPerJob int) ([]*Entry, error)
	FilterLastOfEveryTrigger(ctx context.Context, limitPerTrigger int) ([]*Entry, error)
	FilterLast(ctx context.Context, limit int) ([]*Entry, error)

	TotalJobsExecuted(ctx context.Context) (int, error)
	TotalJobsFailed(ctx context.Context) (int, error)
	IncrementTotalJobsExecuted(ctx context.Context) error
	IncrementTotalJobsFailed(ctx context.Context) error
}

// Stat names shared by every backend.
const (
	StatTotalJobsExecuted = "TOTAL_JOBS_EXECUTED"
	StatTotalJobsFailed   = "TOTAL_JOBS_FAILED"
)

// CounterOverflow is reported in place of a counter that no longer fits
// in 32 bits.
const CounterOverflow = -1

// NarrowCounter converts a stored counter to the reported width.
func NarrowCounter(v int64) int {
	if v > math.MaxInt32 || v < math.MinInt32 {
		return CounterOverflow
	}
	return int(v)
}
