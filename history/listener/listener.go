// Package listener records scheduler job events into a history.Store.
//
// The Plugin is registered with a scheduler's plugin registry. On Start it
// resolves the store published in the scheduler's history.Context or
// creates one from the configured factory, then publishes it so the read
// path can find it.
package listener

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/history"
	"github.com/teranos/recenthistory/internal/util"
	"github.com/teranos/recenthistory/logger"
	"github.com/teranos/recenthistory/plugin"
	"github.com/teranos/recenthistory/pulse/schedule"
	"github.com/teranos/recenthistory/version"
)

// DefaultName is the plugin and listener name used when Initialize is
// given an empty one.
const DefaultName = "RecentHistoryPlugin"

// ErrStoreNotConfigured is returned by Start when no store is published
// and none can be created.
var ErrStoreNotConfigured = errors.Wrap(errors.ErrNotConfigured, "history store not configured")

// Plugin is a scheduler plugin and job listener that keeps recent history.
type Plugin struct {
	plugin.Lifecycle

	hctx      *history.Context
	factories *history.Factories
	storeType string
	opts      history.Options
	log       *zap.SugaredLogger
	now       func() time.Time

	name  string
	host  plugin.Host
	store history.Store
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithFactory makes Start create a store of storeType when hctx has none.
func WithFactory(factories *history.Factories, storeType string, opts history.Options) Option {
	return func(p *Plugin) {
		p.factories = factories
		p.storeType = storeType
		p.opts = opts
	}
}

// WithClock replaces the time source used for finished times.
func WithClock(now func() time.Time) Option {
	return func(p *Plugin) { p.now = now }
}

// New creates a history plugin publishing into hctx.
func New(hctx *history.Context, log *zap.SugaredLogger, opts ...Option) *Plugin {
	if hctx == nil {
		hctx = history.NewContext()
	}
	p := &Plugin{
		hctx: hctx,
		log:  logger.OrNop(log).With(logger.FieldComponent, "history"),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Metadata implements plugin.SchedulerPlugin.
func (p *Plugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        DefaultName,
		Version:     version.Get().Version,
		Description: "Keeps a bounded window of recent job executions",
	}
}

// Name identifies the listener to the scheduler.
func (p *Plugin) Name() string {
	if p.name == "" {
		return DefaultName
	}
	return p.name
}

// Store returns the store in use after Start, or nil.
func (p *Plugin) Store() history.Store {
	return p.store
}

// Initialize records the host and subscribes to every job.
func (p *Plugin) Initialize(_ context.Context, name string, host plugin.Host) error {
	return p.Transition(plugin.StateUninitialized, plugin.StateInitialized, func() error {
		if host == nil {
			return errors.NewInvalidRequestError("history plugin needs a scheduler")
		}
		if name == "" {
			name = DefaultName
		}
		p.name = name
		p.host = host
		p.log = p.log.With(logger.FieldPlugin, name, logger.FieldScheduler, host.SchedulerName())
		host.AddJobListener(p, schedule.AllJobs())
		return nil
	})
}

// Start resolves the store, binds it to the scheduler and publishes it.
func (p *Plugin) Start(ctx context.Context) error {
	return p.Transition(plugin.StateInitialized, plugin.StateStarted, func() error {
		store, err := p.resolveStore(ctx)
		if err != nil {
			return err
		}

		store.SetSchedulerName(p.host.SchedulerName())
		p.hctx.SetStore(store)
		p.store = store

		if err := store.Purge(ctx); err != nil {
			return errors.Wrap(err, "failed to purge history on start")
		}
		p.log.Infow("History recording started", logger.FieldStoreType, p.storeTypeName())
		return nil
	})
}

func (p *Plugin) resolveStore(ctx context.Context) (history.Store, error) {
	if store := p.hctx.Store(); store != nil {
		return store, nil
	}
	if p.factories == nil || p.storeType == "" {
		return nil, errors.WithHint(ErrStoreNotConfigured,
			"set history.store in am.toml (memory, sqlite or postgres)")
	}

	opts := p.opts
	if opts.Logger == nil {
		opts.Logger = p.log
	}
	store, err := p.factories.Create(ctx, p.storeType, opts)
	if err != nil {
		return nil, errors.WithSecondaryError(ErrStoreNotConfigured, err)
	}
	return store, nil
}

func (p *Plugin) storeTypeName() string {
	if p.storeType == "" {
		return "published"
	}
	return p.storeType
}

// Shutdown ends recording. The store is left open for its owner.
func (p *Plugin) Shutdown(context.Context) error {
	return p.Transition(plugin.StateStarted, plugin.StateShutdown, nil)
}

func (p *Plugin) started() (history.Store, error) {
	if p.State() != plugin.StateStarted || p.store == nil {
		return nil, errors.Wrapf(plugin.ErrInvalidState, "history plugin is %s", p.State())
	}
	return p.store, nil
}

// JobToBeExecuted saves a new entry for the firing.
func (p *Plugin) JobToBeExecuted(ctx context.Context, ec *schedule.ExecutionContext) error {
	store, err := p.started()
	if err != nil {
		return err
	}

	entry := &history.Entry{
		FireInstanceID:      ec.FireInstanceID,
		SchedulerInstanceID: ec.SchedulerInstanceID,
		SchedulerName:       ec.SchedulerName,
		Job:                 ec.JobKey.String(),
		Trigger:             ec.TriggerKey.String(),
		ActualFireTime:      ec.FireTime.UTC(),
		Recovering:          ec.Recovering,
	}
	if ec.ScheduledFireTime != nil {
		scheduled := ec.ScheduledFireTime.UTC()
		entry.ScheduledFireTime = &scheduled
	}

	if err := store.Save(ctx, entry); err != nil {
		return errors.Wrapf(err, "failed to record firing %s", ec.FireInstanceID)
	}
	p.log.Debugw("Recorded firing",
		logger.FieldFireInstanceID, ec.FireInstanceID,
		logger.FieldJob, entry.Job,
		logger.FieldTrigger, entry.Trigger)
	return nil
}

// JobExecutionVetoed marks a recorded firing as vetoed.
func (p *Plugin) JobExecutionVetoed(ctx context.Context, ec *schedule.ExecutionContext) error {
	store, err := p.started()
	if err != nil {
		return err
	}

	entry, err := store.Get(ctx, ec.FireInstanceID)
	if err != nil {
		return errors.Wrapf(err, "failed to load firing %s", ec.FireInstanceID)
	}
	if entry == nil {
		return nil
	}
	entry.Vetoed = true
	if err := store.Save(ctx, entry); err != nil {
		return errors.Wrapf(err, "failed to record veto of %s", ec.FireInstanceID)
	}
	return nil
}

// JobWasExecuted completes a recorded firing and bumps the counters. The
// counter is incremented even when the entry has already been purged.
func (p *Plugin) JobWasExecuted(ctx context.Context, ec *schedule.ExecutionContext, jobErr error) error {
	store, err := p.started()
	if err != nil {
		return err
	}

	entry, err := store.Get(ctx, ec.FireInstanceID)
	if err != nil {
		return errors.Wrapf(err, "failed to load firing %s", ec.FireInstanceID)
	}
	if entry != nil {
		finished := p.now().UTC()
		entry.FinishedTime = &finished
		entry.ExceptionMessage = nil
		if jobErr != nil {
			entry.ExceptionMessage = util.Ptr(errors.Message(jobErr))
		}
		if err := store.Save(ctx, entry); err != nil {
			return errors.Wrapf(err, "failed to record completion of %s", ec.FireInstanceID)
		}
	}

	if jobErr != nil {
		err = store.IncrementTotalJobsFailed(ctx)
	} else {
		err = store.IncrementTotalJobsExecuted(ctx)
	}
	if err != nil {
		return errors.Wrap(err, "failed to increment history counters")
	}
	return nil
}

var (
	_ plugin.SchedulerPlugin = (*Plugin)(nil)
	_ schedule.JobListener   = (*Plugin)(nil)
)
