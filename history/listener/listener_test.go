package listener

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/history"
	"github.com/teranos/recenthistory/history/memory"
	"github.com/teranos/recenthistory/plugin"
	"github.com/teranos/recenthistory/pulse/schedule"
)

var finishedAt = time.Date(2024, 3, 1, 12, 0, 5, 0, time.UTC)

func newScheduler(t *testing.T) *schedule.Scheduler {
	return schedule.New(schedule.Config{Name: "TestScheduler", InstanceID: "instance-1"}, zaptest.NewLogger(t).Sugar())
}

// startPlugin wires a plugin with a memory store published in hctx.
func startPlugin(t *testing.T, sched *schedule.Scheduler) (*Plugin, *memory.Store, *history.Context) {
	t.Helper()
	hctx := history.NewContext()
	store := memory.New()
	hctx.SetStore(store)

	p := New(hctx, zaptest.NewLogger(t).Sugar(), WithClock(func() time.Time { return finishedAt }))
	ctx := context.Background()
	require.NoError(t, p.Initialize(ctx, "", sched))
	require.NoError(t, p.Start(ctx))
	return p, store, hctx
}

func scheduleJob(t *testing.T, sched *schedule.Scheduler, name string, job schedule.JobFunc) schedule.JobKey {
	t.Helper()
	key := schedule.NewJobKey(name, "reports")
	require.NoError(t, sched.ScheduleJob(key, schedule.NewTriggerKey(name, "nightly"), "@every 1h", job))
	return key
}

func TestPluginRecordsSuccessfulFiring(t *testing.T) {
	sched := newScheduler(t)
	p, store, _ := startPlugin(t, sched)
	assert.Equal(t, "TestScheduler", store.SchedulerName())
	assert.Equal(t, DefaultName, p.Name())

	key := scheduleJob(t, sched, "daily", func(context.Context, *schedule.ExecutionContext) error { return nil })

	ctx := context.Background()
	fireID, err := sched.TriggerJob(ctx, key)
	require.NoError(t, err)

	entry, err := store.Get(ctx, fireID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "TestScheduler", entry.SchedulerName)
	assert.Equal(t, "instance-1", entry.SchedulerInstanceID)
	assert.Equal(t, "reports.daily", entry.Job)
	assert.Equal(t, "nightly.daily", entry.Trigger)
	assert.Nil(t, entry.ScheduledFireTime, "manual fires have no scheduled time")
	require.NotNil(t, entry.FinishedTime)
	assert.True(t, finishedAt.Equal(*entry.FinishedTime))
	assert.Nil(t, entry.ExceptionMessage)
	assert.False(t, entry.Vetoed)

	executed, err := store.TotalJobsExecuted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, executed)
	failed, err := store.TotalJobsFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, failed)
}

func TestPluginRecordsRootCauseOfFailure(t *testing.T) {
	sched := newScheduler(t)
	_, store, _ := startPlugin(t, sched)

	key := scheduleJob(t, sched, "broken", func(context.Context, *schedule.ExecutionContext) error {
		return errors.Wrap(errors.New("disk full"), "failed to write report")
	})

	ctx := context.Background()
	fireID, err := sched.TriggerJob(ctx, key)
	require.Error(t, err)

	entry, err := store.Get(ctx, fireID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.NotNil(t, entry.ExceptionMessage)
	assert.Equal(t, "disk full", *entry.ExceptionMessage)
	assert.True(t, entry.Failed())

	failed, err := store.TotalJobsFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
	executed, err := store.TotalJobsExecuted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, executed)
}

func TestPluginRecordsVeto(t *testing.T) {
	sched := newScheduler(t)
	_, store, _ := startPlugin(t, sched)
	sched.AddVetoer(schedule.VetoFunc(func(context.Context, *schedule.ExecutionContext) bool { return true }))

	ran := false
	key := scheduleJob(t, sched, "vetoed", func(context.Context, *schedule.ExecutionContext) error {
		ran = true
		return nil
	})

	ctx := context.Background()
	fireID, err := sched.TriggerJob(ctx, key)
	require.ErrorIs(t, err, schedule.ErrJobVetoed)
	assert.False(t, ran)

	entry, err := store.Get(ctx, fireID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.True(t, entry.Vetoed)
	assert.Nil(t, entry.FinishedTime)

	executed, _ := store.TotalJobsExecuted(ctx)
	failed, _ := store.TotalJobsFailed(ctx)
	assert.Zero(t, executed)
	assert.Zero(t, failed)
}

func TestPluginEventsForUnknownFiring(t *testing.T) {
	sched := newScheduler(t)
	p, store, _ := startPlugin(t, sched)
	ctx := context.Background()

	ec := &schedule.ExecutionContext{
		FireInstanceID: "purged",
		SchedulerName:  "TestScheduler",
		JobKey:         schedule.NewJobKey("j", "g"),
		TriggerKey:     schedule.NewTriggerKey("t", "g"),
		FireTime:       finishedAt,
	}

	require.NoError(t, p.JobExecutionVetoed(ctx, ec))
	assert.Equal(t, 0, store.Len())

	require.NoError(t, p.JobWasExecuted(ctx, ec, nil))
	assert.Equal(t, 0, store.Len())

	executed, err := store.TotalJobsExecuted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, executed, "counters move even when the entry is gone")
}

func TestPluginKeepsScheduledFireTime(t *testing.T) {
	sched := newScheduler(t)
	p, store, _ := startPlugin(t, sched)
	ctx := context.Background()

	scheduled := time.Date(2024, 3, 1, 11, 59, 59, 0, time.FixedZone("CET", 3600))
	ec := &schedule.ExecutionContext{
		FireInstanceID:    "f1",
		SchedulerName:     "TestScheduler",
		JobKey:            schedule.NewJobKey("j", "g"),
		TriggerKey:        schedule.NewTriggerKey("t", "g"),
		ScheduledFireTime: &scheduled,
		FireTime:          finishedAt,
		Recovering:        true,
	}
	require.NoError(t, p.JobToBeExecuted(ctx, ec))

	entry, err := store.Get(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, entry.ScheduledFireTime)
	assert.Equal(t, time.UTC, entry.ScheduledFireTime.Location())
	assert.True(t, scheduled.Equal(*entry.ScheduledFireTime))
	assert.True(t, entry.Recovering)
	assert.True(t, entry.Running())
}

func TestPluginCreatesStoreFromFactory(t *testing.T) {
	sched := newScheduler(t)
	factories := history.NewFactories()
	created := memory.New()
	factories.Register("memory", func(context.Context, history.Options) (history.Store, error) {
		return created, nil
	})

	hctx := history.NewContext()
	p := New(hctx, zaptest.NewLogger(t).Sugar(), WithFactory(factories, "memory", history.Options{}))
	ctx := context.Background()
	require.NoError(t, p.Initialize(ctx, "history", sched))
	require.NoError(t, p.Start(ctx))

	assert.Same(t, created, hctx.Store())
	assert.Same(t, created, p.Store())
	assert.Equal(t, "TestScheduler", created.SchedulerName())
	assert.Equal(t, "history", p.Name())
}

func TestPluginStartWithoutStoreFails(t *testing.T) {
	ctx := context.Background()

	t.Run("no factory", func(t *testing.T) {
		p := New(history.NewContext(), zaptest.NewLogger(t).Sugar())
		require.NoError(t, p.Initialize(ctx, "", newScheduler(t)))
		err := p.Start(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStoreNotConfigured)
		assert.Equal(t, plugin.StateInitialized, p.State())
	})

	t.Run("unknown type", func(t *testing.T) {
		hctx := history.NewContext()
		p := New(hctx, zaptest.NewLogger(t).Sugar(), WithFactory(history.NewFactories(), "redis", history.Options{}))
		require.NoError(t, p.Initialize(ctx, "", newScheduler(t)))
		err := p.Start(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrStoreNotConfigured)
		assert.False(t, hctx.Enabled())
	})
}

func TestPluginLifecycleOrder(t *testing.T) {
	ctx := context.Background()
	hctx := history.NewContext()
	hctx.SetStore(memory.New())
	p := New(hctx, zaptest.NewLogger(t).Sugar())

	assert.ErrorIs(t, p.Start(ctx), plugin.ErrInvalidState)
	assert.ErrorIs(t, p.Shutdown(ctx), plugin.ErrInvalidState)

	ec := &schedule.ExecutionContext{FireInstanceID: "early"}
	assert.ErrorIs(t, p.JobToBeExecuted(ctx, ec), plugin.ErrInvalidState)

	require.NoError(t, p.Initialize(ctx, "", newScheduler(t)))
	assert.ErrorIs(t, p.Initialize(ctx, "", newScheduler(t)), plugin.ErrInvalidState)
	require.NoError(t, p.Start(ctx))
	require.NoError(t, p.Shutdown(ctx))
	assert.Equal(t, plugin.StateShutdown, p.State())

	assert.ErrorIs(t, p.Start(ctx), plugin.ErrInvalidState)
	assert.ErrorIs(t, p.JobToBeExecuted(ctx, ec), plugin.ErrInvalidState)
	assert.True(t, hctx.Enabled(), "shutdown leaves the store published")
}

func TestPluginThroughRegistry(t *testing.T) {
	sched := newScheduler(t)
	hctx := history.NewContext()
	hctx.SetStore(memory.New())

	reg := plugin.NewRegistry("dev")
	require.NoError(t, reg.Register(New(hctx, zaptest.NewLogger(t).Sugar())))

	ctx := context.Background()
	require.NoError(t, reg.InitializeAll(ctx, sched))
	require.NoError(t, reg.StartAll(ctx))
	assert.Equal(t, plugin.StateStarted, reg.States()[DefaultName])
	require.NoError(t, reg.ShutdownAll(ctx))
}
