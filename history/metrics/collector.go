// Package metrics exposes recorded history to Prometheus.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/teranos/recenthistory/history"
	"github.com/teranos/recenthistory/history/view"
	"github.com/teranos/recenthistory/logger"
)

const (
	// Namespace is the namespace for all recenthistory metrics.
	Namespace = "recenthistory"

	// Subsystem is the subsystem for history metrics.
	Subsystem = "history"

	// ScrapeTimeout bounds the store reads made during one scrape.
	ScrapeTimeout = 5 * time.Second
)

var states = []view.State{view.StateFinished, view.StateRunning, view.StateFailed, view.StateVetoed}

// Collector reads counters and the recent window from the published store
// at scrape time. Nothing is exported while no store is published except
// the enabled gauge.
type Collector struct {
	hctx   *history.Context
	logger *zap.SugaredLogger

	enabled  *prometheus.Desc
	executed *prometheus.Desc
	failed   *prometheus.Desc
	recent   *prometheus.Desc
	errors   *prometheus.Desc
}

// NewCollector creates a Collector for the scheduler's history.
func NewCollector(hctx *history.Context, schedulerName string, log *zap.SugaredLogger) *Collector {
	labels := prometheus.Labels{"scheduler": schedulerName}
	name := func(n string) string { return prometheus.BuildFQName(Namespace, Subsystem, n) }

	return &Collector{
		hctx:   hctx,
		logger: logger.OrNop(log),
		enabled: prometheus.NewDesc(name("enabled"),
			"Whether a history store is configured", nil, labels),
		executed: prometheus.NewDesc(name("jobs_executed_total"),
			"Jobs that completed without error, as recorded by the history store", nil, labels),
		failed: prometheus.NewDesc(name("jobs_failed_total"),
			"Jobs that completed with an error, as recorded by the history store", nil, labels),
		recent: prometheus.NewDesc(name("recent_executions"),
			"Executions in the recent history window by state", []string{"state"}, labels),
		errors: prometheus.NewDesc(name("scrape_errors"),
			"Store reads that failed or overflowed during this scrape", nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.enabled
	ch <- c.executed
	ch <- c.failed
	ch <- c.recent
	ch <- c.errors
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	store := c.hctx.Store()
	if store == nil {
		ch <- prometheus.MustNewConstMetric(c.enabled, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.enabled, prometheus.GaugeValue, 1)

	ctx, cancel := context.WithTimeout(context.Background(), ScrapeTimeout)
	defer cancel()

	failures := 0
	counter := func(desc *prometheus.Desc, read func(context.Context) (int, error)) {
		v, err := read(ctx)
		if err != nil || v == history.CounterOverflow {
			failures++
			if err != nil {
				c.logger.Warnw("Failed to read history counter", logger.FieldError, err)
			}
			return
		}
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v))
	}
	counter(c.executed, store.TotalJobsExecuted)
	counter(c.failed, store.TotalJobsFailed)

	entries, err := store.FilterLast(ctx, view.RecentSize)
	if err != nil {
		failures++
		c.logger.Warnw("Failed to read recent history", logger.FieldError, err)
	} else {
		byState := make(map[view.State]int, len(states))
		for _, e := range entries {
			byState[view.StateOf(e)]++
		}
		for _, s := range states {
			ch <- prometheus.MustNewConstMetric(c.recent, prometheus.GaugeValue, float64(byState[s]), string(s))
		}
	}

	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.GaugeValue, float64(failures))
}

var _ prometheus.Collector = (*Collector)(nil)
