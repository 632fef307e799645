// Package history records a bounded, rolling window of job executions.
//
// A Store persists Entry values keyed by fire instance id, answers
// "last N" queries and keeps per-scheduler counters. Stores purge
// themselves, so no external compaction job is needed.
package history

import "time"

// Entry describes one firing of a job, from about-to-run to finished or vetoed.
//
// An entry is created when the job is about to execute and updated in place
// when it finishes or is vetoed. A vetoed entry never has FinishedTime set.
// An entry with FinishedTime set is complete; ExceptionMessage tells success
// from failure.
type Entry struct {
	FireInstanceID      string     `json:"fire_instance_id"`
	SchedulerInstanceID string     `json:"scheduler_instance_id"`
	SchedulerName       string     `json:"scheduler_name"`
	Job                 string     `json:"job"`
	Trigger             string     `json:"trigger"`
	ScheduledFireTime   *time.Time `json:"scheduled_fire_time,omitempty"`
	ActualFireTime      time.Time  `json:"actual_fire_time"`
	Recovering          bool       `json:"recovering"`
	Vetoed              bool       `json:"vetoed"`
	FinishedTime        *time.Time `json:"finished_time,omitempty"`
	ExceptionMessage    *string    `json:"exception_message,omitempty"`
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	if e.ScheduledFireTime != nil {
		t := *e.ScheduledFireTime
		c.ScheduledFireTime = &t
	}
	if e.FinishedTime != nil {
		t := *e.FinishedTime
		c.FinishedTime = &t
	}
	if e.ExceptionMessage != nil {
		m := *e.ExceptionMessage
		c.ExceptionMessage = &m
	}
	return &c
}

// Finished reports whether the execution completed, successfully or not.
func (e *Entry) Finished() bool {
	return e.FinishedTime != nil
}

// Failed reports whether the execution completed with an error.
func (e *Entry) Failed() bool {
	return e.ExceptionMessage != nil
}

// Running reports whether the job started but has neither finished nor been vetoed.
func (e *Entry) Running() bool {
	return !e.Vetoed && e.FinishedTime == nil
}

// Duration is the execution time, measured up to now while still running.
// Vetoed entries have no duration.
func (e *Entry) Duration(now time.Time) time.Duration {
	if e.Vetoed {
		return 0
	}
	end := now
	if e.FinishedTime != nil {
		end = *e.FinishedTime
	}
	if end.Before(e.ActualFireTime) {
		return 0
	}
	return end.Sub(e.ActualFireTime)
}

// Delay is how late the job fired relative to its schedule.
// It is zero when no scheduled time was recorded.
func (e *Entry) Delay() time.Duration {
	if e.ScheduledFireTime == nil {
		return 0
	}
	return e.ActualFireTime.Sub(*e.ScheduledFireTime)
}
