// Package daemon assembles a running scheduler from configuration: jobs,
// the history plugin, and the optional metrics endpoint.
package daemon

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/teranos/recenthistory/am"
	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/history"
	"github.com/teranos/recenthistory/history/listener"
	"github.com/teranos/recenthistory/history/metrics"
	"github.com/teranos/recenthistory/history/stores"
	"github.com/teranos/recenthistory/logger"
	"github.com/teranos/recenthistory/plugin"
	"github.com/teranos/recenthistory/pulse/schedule"
	"github.com/teranos/recenthistory/server"
	"github.com/teranos/recenthistory/sym"
	"github.com/teranos/recenthistory/version"
)

// Daemon owns the scheduler and everything attached to it.
type Daemon struct {
	cfg    *am.Config
	logger *zap.SugaredLogger

	Scheduler *schedule.Scheduler
	History   *history.Context
	Plugins   *plugin.Registry
	Registry  *prometheus.Registry

	factories *history.Factories
	metrics   *server.Server
}

// Option customises a Daemon.
type Option func(*Daemon)

// WithFactories replaces the built-in history store factories.
func WithFactories(f *history.Factories) Option {
	return func(d *Daemon) { d.factories = f }
}

// New builds a stopped daemon from cfg. The configuration is validated.
func New(cfg *am.Config, log *zap.SugaredLogger, opts ...Option) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	if log == nil {
		log = logger.ComponentLogger("daemon")
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:     cfg,
		logger:  log,
		History: history.NewContext(),
		Plugins: plugin.NewRegistry(version.Get().Version),
		Scheduler: schedule.New(schedule.Config{
			Name:       cfg.Scheduler.Name,
			InstanceID: cfg.Scheduler.InstanceID,
			Location:   loc,
		}, log.Named("scheduler")),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.factories == nil {
		d.factories = stores.Default(log.Named("history"))
	}

	if cfg.History.Enabled() {
		p := listener.New(d.History, log.Named("history"),
			listener.WithFactory(d.factories, cfg.History.Store, cfg.HistoryOptions()))
		if err := d.Plugins.Register(p); err != nil {
			return nil, err
		}
	}

	if err := ScheduleJobs(d.Scheduler, cfg.Scheduler.Jobs, log.Named("job")); err != nil {
		return nil, err
	}

	if cfg.Metrics.Address != "" {
		d.Registry = prometheus.NewRegistry()
		d.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			metrics.NewCollector(d.History, d.Scheduler.SchedulerName(), log.Named("metrics")),
		)
		d.Scheduler.AddJobListener(metrics.NewListener(d.Registry), schedule.AllJobs())
		d.metrics = server.New(cfg.Metrics.Address, d.Registry, log.Named("server"))
	}

	return d, nil
}

// MetricsAddr returns the bound metrics address, or "" when metrics are off.
func (d *Daemon) MetricsAddr() string {
	if d.metrics == nil {
		return ""
	}
	return d.metrics.Addr()
}

// Start initializes and starts plugins, then the metrics endpoint and the
// scheduler. A plugin failing to start aborts startup.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.Plugins.InitializeAll(ctx, d.Scheduler); err != nil {
		return err
	}
	if err := d.Plugins.StartAll(ctx); err != nil {
		d.closeStore()
		return err
	}
	if d.metrics != nil {
		if err := d.metrics.Start(); err != nil {
			_ = d.Plugins.ShutdownAll(ctx)
			d.closeStore()
			return err
		}
	}

	d.Scheduler.Start()
	d.logger.Infow(sym.Pulse+" Scheduler running",
		logger.FieldScheduler, d.Scheduler.SchedulerName(),
		logger.FieldSchedulerInstance, d.Scheduler.SchedulerInstanceID(),
		"history", d.History.Enabled(),
		logger.FieldVersion, version.Get().Version,
	)
	return nil
}

// Stop halts the scheduler, waiting for running jobs until ctx expires,
// then shuts plugins down and releases the history store.
func (d *Daemon) Stop(ctx context.Context) error {
	var errs []error
	if err := d.Scheduler.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := d.Plugins.ShutdownAll(ctx); err != nil {
		errs = append(errs, err)
	}
	if d.metrics != nil {
		if err := d.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := d.closeStore(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		d.logger.Infow(sym.PulseClose + " Scheduler stopped")
		return nil
	}
	err := errs[0]
	for _, other := range errs[1:] {
		err = errors.WithSecondaryError(err, other)
	}
	return err
}

func (d *Daemon) closeStore() error {
	store := d.History.Store()
	if store == nil {
		return nil
	}
	d.History.SetStore(nil)
	if err := history.Close(store); err != nil {
		return errors.Wrap(err, "failed to close history store")
	}
	return nil
}

// Run starts the daemon and blocks until ctx is cancelled, then stops it
// within the configured stop timeout.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.StopTimeout())
	defer cancel()
	return d.Stop(stopCtx)
}
