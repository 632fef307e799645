package schedule

import (
	"context"
	"time"
)

// ExecutionContext describes one firing of a job.
type ExecutionContext struct {
	FireInstanceID      string
	SchedulerName       string
	SchedulerInstanceID string
	JobKey              JobKey
	TriggerKey          TriggerKey
	// ScheduledFireTime is nil for fires that were not planned by a
	// schedule, such as manual triggers.
	ScheduledFireTime *time.Time
	FireTime          time.Time
	Recovering        bool
}

// Job is the work run when a trigger fires.
type Job interface {
	Execute(ctx context.Context, ec *ExecutionContext) error
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context, ec *ExecutionContext) error

// Execute calls f.
func (f JobFunc) Execute(ctx context.Context, ec *ExecutionContext) error {
	return f(ctx, ec)
}

// JobListener observes job firings. Errors returned by a listener are
// logged by the scheduler and never affect the job.
type JobListener interface {
	Name() string
	JobToBeExecuted(ctx context.Context, ec *ExecutionContext) error
	JobExecutionVetoed(ctx context.Context, ec *ExecutionContext) error
	JobWasExecuted(ctx context.Context, ec *ExecutionContext, jobErr error) error
}

// Matcher selects the jobs a listener is told about.
type Matcher func(JobKey) bool

// AllJobs matches every job.
func AllJobs() Matcher {
	return func(JobKey) bool { return true }
}

// GroupEquals matches jobs in group.
func GroupEquals(group string) Matcher {
	return func(k JobKey) bool { return k.Group == group }
}

// KeyEquals matches a single job.
func KeyEquals(key JobKey) Matcher {
	return func(k JobKey) bool { return k == key }
}

// Vetoer may cancel a firing after listeners were told it is about to run.
type Vetoer interface {
	VetoJobExecution(ctx context.Context, ec *ExecutionContext) bool
}

// VetoFunc adapts a function to Vetoer.
type VetoFunc func(ctx context.Context, ec *ExecutionContext) bool

// VetoJobExecution calls f.
func (f VetoFunc) VetoJobExecution(ctx context.Context, ec *ExecutionContext) bool {
	return f(ctx, ec)
}
