// Package historytest holds behaviour tests shared by every history.Store
// backend.
package historytest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/recenthistory/history"
)

// SchedulerName is the name every store under test is bound to.
const SchedulerName = "TestScheduler"

// Base is the reference instant entries are built around.
var Base = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// NewEntry builds an entry for SchedulerName fired at Base+offset.
func NewEntry(id, job, trigger string, offset time.Duration) *history.Entry {
	scheduled := Base.Add(offset).Add(-250 * time.Millisecond)
	return &history.Entry{
		FireInstanceID:      id,
		SchedulerInstanceID: "instance-1",
		SchedulerName:       SchedulerName,
		Job:                 job,
		Trigger:             trigger,
		ScheduledFireTime:   &scheduled,
		ActualFireTime:      Base.Add(offset),
	}
}

// Factory returns a fresh, empty store bound to SchedulerName.
type Factory func(t *testing.T) history.Store

// Run exercises the behaviour every Store must share.
func Run(t *testing.T, newStore Factory) {
	t.Run("get missing returns nil", func(t *testing.T) {
		store := newStore(t)
		entry, err := store.Get(context.Background(), "missing")
		require.NoError(t, err)
		assert.Nil(t, entry)
	})

	t.Run("save is an upsert", func(t *testing.T) { testUpsert(t, newStore(t)) })
	t.Run("vetoed entry round trips", func(t *testing.T) { testVetoed(t, newStore(t)) })
	t.Run("filter last", func(t *testing.T) { testFilterLast(t, newStore(t)) })
	t.Run("filter last of every trigger", func(t *testing.T) { testFilterLastOfEveryTrigger(t, newStore(t)) })
	t.Run("filter last of every job", func(t *testing.T) { testFilterLastOfEveryJob(t, newStore(t)) })
	t.Run("filters are scoped to scheduler name", func(t *testing.T) { testScoped(t, newStore(t)) })
	t.Run("counters start at zero", func(t *testing.T) { testCountersZero(t, newStore(t)) })
	t.Run("concurrent increments are not lost", func(t *testing.T) { testConcurrentIncrements(t, newStore(t)) })
	t.Run("purge is idempotent", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		require.NoError(t, store.Purge(ctx))
		require.NoError(t, store.Purge(ctx))
	})
}

func testUpsert(t *testing.T, store history.Store) {
	ctx := context.Background()

	entry := NewEntry("F1", "G.J1", "G.T1", 0)
	require.NoError(t, store.Save(ctx, entry))

	got, err := store.Get(ctx, "F1")
	require.NoError(t, err)
	require.NotNil(t, got)
	AssertEntryEqual(t, entry, got)

	finished := Base.Add(5 * time.Second)
	got.FinishedTime = &finished
	require.NoError(t, store.Save(ctx, got))

	updated, err := store.Get(ctx, "F1")
	require.NoError(t, err)
	require.NotNil(t, updated)
	require.NotNil(t, updated.FinishedTime)
	assert.True(t, finished.Equal(*updated.FinishedTime))
	assert.Equal(t, "G.J1", updated.Job)
	assert.Equal(t, "G.T1", updated.Trigger)
	assert.True(t, Base.Equal(updated.ActualFireTime))
	assert.Nil(t, updated.ExceptionMessage)

	all, err := store.FilterLast(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 1, "upsert must not duplicate")
}

func testVetoed(t *testing.T, store history.Store) {
	ctx := context.Background()

	entry := NewEntry("V1", "G.J1", "G.T1", 0)
	entry.Recovering = true
	require.NoError(t, store.Save(ctx, entry))

	entry.Vetoed = true
	require.NoError(t, store.Save(ctx, entry))

	msg := "boom"
	failed := NewEntry("E1", "G.J1", "G.T1", time.Second)
	failed.FinishedTime = &failed.ActualFireTime
	failed.ExceptionMessage = &msg
	require.NoError(t, store.Save(ctx, failed))

	got, err := store.Get(ctx, "V1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Vetoed)
	assert.True(t, got.Recovering)
	assert.Nil(t, got.FinishedTime)

	got, err = store.Get(ctx, "E1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.ExceptionMessage)
	assert.Equal(t, "boom", *got.ExceptionMessage)
	assert.True(t, got.Failed())
}

func testFilterLast(t *testing.T, store history.Store) {
	ctx := context.Background()

	// Saved out of order so the store has to sort.
	for _, i := range []int{3, 0, 4, 1, 2} {
		e := NewEntry(fmt.Sprintf("F%d", i), "G.J1", "G.T1", time.Duration(i)*time.Second)
		require.NoError(t, store.Save(ctx, e))
	}

	got, err := store.FilterLast(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"F2", "F3", "F4"}, IDs(got))

	got, err = store.FilterLast(ctx, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"F0", "F1", "F2", "F3", "F4"}, IDs(got))

	got, err = store.FilterLast(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testFilterLastOfEveryTrigger(t *testing.T, store history.Store) {
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Save(ctx, NewEntry(fmt.Sprintf("T1-%d", i), "G.J1", "G.T1", time.Duration(i)*time.Second)))
		require.NoError(t, store.Save(ctx, NewEntry(fmt.Sprintf("T2-%d", i), "G.J1", "G.T2", time.Duration(i)*time.Second)))
	}

	got, err := store.FilterLastOfEveryTrigger(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"T1-2", "T1-3", "T1-4", "T2-2", "T2-3", "T2-4"}, IDs(got))

	perTrigger := history.GroupBy(got, history.ByTrigger)
	assert.Len(t, perTrigger["G.T1"], 3)
	assert.Len(t, perTrigger["G.T2"], 3)
}

func testFilterLastOfEveryJob(t *testing.T, store history.Store) {
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, store.Save(ctx, NewEntry(fmt.Sprintf("A-%d", i), "G.A", "G.TA", time.Duration(i)*time.Second)))
	}
	require.NoError(t, store.Save(ctx, NewEntry("B-0", "G.B", "G.TB", 10*time.Second)))

	got, err := store.FilterLastOfEveryJob(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"A-2", "A-3", "B-0"}, IDs(got))
}

func testScoped(t *testing.T, store history.Store) {
	ctx := context.Background()

	mine := NewEntry("MINE", "G.J1", "G.T1", 0)
	other := NewEntry("OTHER", "G.J1", "G.T1", time.Second)
	other.SchedulerName = "OtherScheduler"
	require.NoError(t, store.Save(ctx, mine))
	require.NoError(t, store.Save(ctx, other))

	last, err := store.FilterLast(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"MINE"}, IDs(last))

	byTrigger, err := store.FilterLastOfEveryTrigger(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"MINE"}, IDs(byTrigger))

	byJob, err := store.FilterLastOfEveryJob(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"MINE"}, IDs(byJob))
}

func testCountersZero(t *testing.T, store history.Store) {
	ctx := context.Background()

	executed, err := store.TotalJobsExecuted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, executed)

	failed, err := store.TotalJobsFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, failed)

	require.NoError(t, store.IncrementTotalJobsExecuted(ctx))
	require.NoError(t, store.IncrementTotalJobsExecuted(ctx))
	require.NoError(t, store.IncrementTotalJobsFailed(ctx))

	executed, err = store.TotalJobsExecuted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, executed)

	failed, err = store.TotalJobsFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, failed)
}

func testConcurrentIncrements(t *testing.T, store history.Store) {
	ctx := context.Background()
	const callers = 100

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.IncrementTotalJobsFailed(ctx)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	failed, err := store.TotalJobsFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, callers, failed)

	executed, err := store.TotalJobsExecuted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, executed)
}

// IDs projects entries to their fire instance ids.
func IDs(entries []*history.Entry) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.FireInstanceID)
	}
	return ids
}

// AssertEntryEqual compares entries field by field, using instant equality
// for times so that backends may return a different location.
func AssertEntryEqual(t *testing.T, want, got *history.Entry) {
	t.Helper()
	assert.Equal(t, want.FireInstanceID, got.FireInstanceID)
	assert.Equal(t, want.SchedulerInstanceID, got.SchedulerInstanceID)
	assert.Equal(t, want.SchedulerName, got.SchedulerName)
	assert.Equal(t, want.Job, got.Job)
	assert.Equal(t, want.Trigger, got.Trigger)
	assert.Equal(t, want.Recovering, got.Recovering)
	assert.Equal(t, want.Vetoed, got.Vetoed)
	assert.True(t, want.ActualFireTime.Equal(got.ActualFireTime), "actual fire time %v != %v", want.ActualFireTime, got.ActualFireTime)
	assertTimePtr(t, "scheduled fire time", want.ScheduledFireTime, got.ScheduledFireTime)
	assertTimePtr(t, "finished time", want.FinishedTime, got.FinishedTime)
	assert.Equal(t, want.ExceptionMessage, got.ExceptionMessage)
}

func assertTimePtr(t *testing.T, what string, want, got *time.Time) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got, what)
		return
	}
	if assert.NotNil(t, got, what) {
		assert.True(t, want.Equal(*got), "%s %v != %v", what, *want, *got)
	}
}
