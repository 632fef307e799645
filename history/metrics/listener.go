package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/teranos/recenthistory/pulse/schedule"
)

// Outcome label values.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeVetoed    = "vetoed"
)

// Listener is a job listener that times firings as they happen. Unlike
// Collector it does not depend on a history store.
type Listener struct {
	FiringsTotal    *prometheus.CounterVec
	DurationSeconds *prometheus.HistogramVec
	Running         prometheus.Gauge

	mu      sync.Mutex
	started map[string]time.Time
	now     func() time.Time
}

// NewListener creates and registers firing metrics on reg.
func NewListener(reg prometheus.Registerer) *Listener {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Listener{
		FiringsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "scheduler",
				Name:      "firings_total",
				Help:      "Job firings by job and outcome",
			},
			[]string{"job", "outcome"},
		),
		DurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "scheduler",
				Name:      "job_duration_seconds",
				Help:      "Duration of job execution in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 16), // 10ms to ~5.5min
			},
			[]string{"job"},
		),
		Running: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "scheduler",
				Name:      "jobs_running",
				Help:      "Jobs currently executing",
			},
		),
		started: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Name implements schedule.JobListener.
func (l *Listener) Name() string { return "metrics" }

// JobToBeExecuted implements schedule.JobListener.
func (l *Listener) JobToBeExecuted(_ context.Context, ec *schedule.ExecutionContext) error {
	l.mu.Lock()
	l.started[ec.FireInstanceID] = l.now()
	l.mu.Unlock()
	l.Running.Inc()
	return nil
}

// JobExecutionVetoed implements schedule.JobListener.
func (l *Listener) JobExecutionVetoed(_ context.Context, ec *schedule.ExecutionContext) error {
	l.finish(ec.FireInstanceID)
	l.FiringsTotal.WithLabelValues(ec.JobKey.String(), OutcomeVetoed).Inc()
	return nil
}

// JobWasExecuted implements schedule.JobListener.
func (l *Listener) JobWasExecuted(_ context.Context, ec *schedule.ExecutionContext, jobErr error) error {
	job := ec.JobKey.String()
	if start, ok := l.finish(ec.FireInstanceID); ok {
		l.DurationSeconds.WithLabelValues(job).Observe(l.now().Sub(start).Seconds())
	}

	outcome := OutcomeSucceeded
	if jobErr != nil {
		outcome = OutcomeFailed
	}
	l.FiringsTotal.WithLabelValues(job, outcome).Inc()
	return nil
}

func (l *Listener) finish(fireID string) (time.Time, bool) {
	l.mu.Lock()
	start, ok := l.started[fireID]
	delete(l.started, fireID)
	l.mu.Unlock()
	if ok {
		l.Running.Dec()
	}
	return start, ok
}

var _ schedule.JobListener = (*Listener)(nil)
