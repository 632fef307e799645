// Package view projects recorded history into the shapes the dashboard,
// the history page and the job and trigger lists display.
package view

import (
	"context"
	"slices"
	"time"

	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/history"
	"github.com/teranos/recenthistory/internal/util"
	"github.com/teranos/recenthistory/pulse/schedule"
)

// Window sizes read from the store.
const (
	OverviewSize = 10
	RecentSize   = 100
	PerKeySize   = 10

	// OverviewBarWidth is the bar width of the dashboard histogram.
	OverviewBarWidth = 14
)

// Reader builds views from the store published in a history.Context.
type Reader struct {
	hctx *history.Context
	now  func() time.Time
}

// NewReader returns a Reader over hctx.
func NewReader(hctx *history.Context) *Reader {
	return &Reader{hctx: hctx, now: time.Now}
}

// WithClock sets the time used to measure running executions.
func (r *Reader) WithClock(now func() time.Time) *Reader {
	r.now = now
	return r
}

// Overview is the dashboard summary.
type Overview struct {
	Enabled  bool       `json:"enabled"`
	History  *Histogram `json:"history"`
	Executed int        `json:"executed"`
	Failed   int        `json:"failed"`
}

// Overview returns the last executions as a detailed histogram with the
// totals. Without a store the placeholder histogram is returned.
func (r *Reader) Overview(ctx context.Context) (*Overview, error) {
	store := r.hctx.Store()
	out := &Overview{Enabled: store != nil}
	if store == nil {
		out.History = EmptyHistogram()
		out.History.SetBarWidth(OverviewBarWidth)
		return out, nil
	}

	entries, err := store.FilterLast(ctx, OverviewSize)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load recent executions")
	}
	if out.Executed, err = store.TotalJobsExecuted(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to read executed total")
	}
	if out.Failed, err = store.TotalJobsFailed(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to read failed total")
	}

	out.History = NewHistogram(entries, true, r.now())
	if out.History == nil {
		out.History = EmptyHistogram()
	}
	out.History.SetBarWidth(OverviewBarWidth)
	return out, nil
}

// Row is one line of the history page.
type Row struct {
	FireInstanceID    string `json:"fire_instance_id"`
	JobGroup          string `json:"job_group"`
	JobName           string `json:"job_name"`
	TriggerGroup      string `json:"trigger_group"`
	TriggerName       string `json:"trigger_name"`
	ScheduledFireTime string `json:"scheduled_fire_time,omitempty"`
	ActualFireTime    string `json:"actual_fire_time"`
	FinishedTime      string `json:"finished_time,omitempty"`
	Duration          string `json:"duration,omitempty"`
	State             State  `json:"state"`
	Error             string `json:"error,omitempty"`

	Entry *history.Entry `json:"-"`
}

// NewRow presents e. A running entry's duration is measured up to now.
func NewRow(e *history.Entry, now time.Time) Row {
	jobGroup, jobName := schedule.SplitKey(e.Job)
	triggerGroup, triggerName := schedule.SplitKey(e.Trigger)

	row := Row{
		FireInstanceID:    e.FireInstanceID,
		JobGroup:          jobGroup,
		JobName:           jobName,
		TriggerGroup:      triggerGroup,
		TriggerName:       triggerName,
		ScheduledFireTime: formatTimePtr(e.ScheduledFireTime),
		ActualFireTime:    formatTime(e.ActualFireTime),
		FinishedTime:      formatTimePtr(e.FinishedTime),
		State:             StateOf(e),
		Error:             util.Deref(e.ExceptionMessage),
		Entry:             e,
	}
	if !e.Vetoed {
		row.Duration = Clock(e.Duration(now))
	}
	return row
}

// Recent is the history page.
type Recent struct {
	Enabled bool  `json:"enabled"`
	Rows    []Row `json:"rows"`
}

// Recent lists the last executions newest first.
func (r *Reader) Recent(ctx context.Context) (*Recent, error) {
	return r.RecentN(ctx, RecentSize)
}

// RecentN is Recent with a custom window.
func (r *Reader) RecentN(ctx context.Context, limit int) (*Recent, error) {
	store := r.hctx.Store()
	out := &Recent{Enabled: store != nil, Rows: []Row{}}
	if store == nil {
		return out, nil
	}

	entries, err := store.FilterLast(ctx, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load recent executions")
	}
	entries = slices.Clone(entries)
	slices.Reverse(entries)

	now := r.now()
	for _, e := range entries {
		out.Rows = append(out.Rows, NewRow(e, now))
	}
	return out, nil
}

// ByJob returns a histogram of the last executions of every job.
func (r *Reader) ByJob(ctx context.Context) (Histograms, error) {
	return r.grouped(ctx, "job", history.ByJob, history.Store.FilterLastOfEveryJob)
}

// ByTrigger returns a histogram of the last executions of every trigger.
func (r *Reader) ByTrigger(ctx context.Context) (Histograms, error) {
	return r.grouped(ctx, "trigger", history.ByTrigger, history.Store.FilterLastOfEveryTrigger)
}

type filterFunc func(history.Store, context.Context, int) ([]*history.Entry, error)

func (r *Reader) grouped(ctx context.Context, what string, key history.KeyFunc, filter filterFunc) (Histograms, error) {
	store := r.hctx.Store()
	if store == nil {
		return Histograms{}, nil
	}
	entries, err := filter(store, ctx, PerKeySize)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load history by %s", what)
	}
	return groupHistograms(entries, key, r.now()), nil
}
