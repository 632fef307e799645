package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/recenthistory/errors"
)

type event struct {
	kind   string
	fireID string
	jobErr error
}

type recordingListener struct {
	mu     sync.Mutex
	events []event
	fail   bool
}

func (r *recordingListener) Name() string { return "recorder" }

func (r *recordingListener) record(e event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	if r.fail {
		return errors.New("listener broke")
	}
	return nil
}

func (r *recordingListener) JobToBeExecuted(_ context.Context, ec *ExecutionContext) error {
	return r.record(event{kind: "to_be_executed", fireID: ec.FireInstanceID})
}

func (r *recordingListener) JobExecutionVetoed(_ context.Context, ec *ExecutionContext) error {
	return r.record(event{kind: "vetoed", fireID: ec.FireInstanceID})
}

func (r *recordingListener) JobWasExecuted(_ context.Context, ec *ExecutionContext, jobErr error) error {
	return r.record(event{kind: "was_executed", fireID: ec.FireInstanceID, jobErr: jobErr})
}

func (r *recordingListener) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.kind)
	}
	return out
}

func newTestScheduler(t *testing.T) *Scheduler {
	s := New(Config{Name: "Test", InstanceID: "inst-1"}, zaptest.NewLogger(t).Sugar())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestTriggerJobDispatchOrder(t *testing.T) {
	s := newTestScheduler(t)
	jobKey := NewJobKey("report", "billing")
	triggerKey := NewTriggerKey("nightly", "billing")

	var seen *ExecutionContext
	require.NoError(t, s.ScheduleJob(jobKey, triggerKey, "@daily", JobFunc(func(_ context.Context, ec *ExecutionContext) error {
		seen = ec
		return nil
	})))

	rec := &recordingListener{}
	s.AddJobListener(rec, AllJobs())

	fireID, err := s.TriggerJob(context.Background(), jobKey)
	require.NoError(t, err)
	require.NotEmpty(t, fireID)

	assert.Equal(t, []string{"to_be_executed", "was_executed"}, rec.kinds())
	require.NotNil(t, seen)
	assert.Equal(t, fireID, seen.FireInstanceID)
	assert.Equal(t, "Test", seen.SchedulerName)
	assert.Equal(t, "inst-1", seen.SchedulerInstanceID)
	assert.Equal(t, "billing.report", seen.JobKey.String())
	assert.Equal(t, "billing.nightly", seen.TriggerKey.String())
	assert.Nil(t, seen.ScheduledFireTime, "manual fires have no scheduled time")
	assert.Equal(t, time.UTC, seen.FireTime.Location())
}

func TestTriggerJobReportsJobError(t *testing.T) {
	s := newTestScheduler(t)
	jobKey := NewJobKey("flaky", "")
	boom := errors.New("boom")
	require.NoError(t, s.ScheduleJob(jobKey, NewTriggerKey("t", ""), "@hourly", JobFunc(func(context.Context, *ExecutionContext) error {
		return boom
	})))

	rec := &recordingListener{}
	s.AddJobListener(rec)

	_, err := s.TriggerJob(context.Background(), jobKey)
	assert.ErrorIs(t, err, boom)
	require.Len(t, rec.events, 2)
	assert.ErrorIs(t, rec.events[1].jobErr, boom)
}

func TestTriggerJobRecoversPanics(t *testing.T) {
	s := newTestScheduler(t)
	jobKey := NewJobKey("panicky", "")
	require.NoError(t, s.ScheduleJob(jobKey, NewTriggerKey("t", ""), "@hourly", JobFunc(func(context.Context, *ExecutionContext) error {
		panic("kaboom")
	})))

	rec := &recordingListener{}
	s.AddJobListener(rec)

	_, err := s.TriggerJob(context.Background(), jobKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, []string{"to_be_executed", "was_executed"}, rec.kinds())
}

func TestVetoSkipsJob(t *testing.T) {
	s := newTestScheduler(t)
	jobKey := NewJobKey("guarded", "")
	ran := false
	require.NoError(t, s.ScheduleJob(jobKey, NewTriggerKey("t", ""), "@hourly", JobFunc(func(context.Context, *ExecutionContext) error {
		ran = true
		return nil
	})))

	rec := &recordingListener{}
	s.AddJobListener(rec)
	s.AddVetoer(VetoFunc(func(context.Context, *ExecutionContext) bool { return true }))

	fireID, err := s.TriggerJob(context.Background(), jobKey)
	assert.ErrorIs(t, err, ErrJobVetoed)
	assert.False(t, ran)
	assert.Equal(t, []string{"to_be_executed", "vetoed"}, rec.kinds())
	assert.Equal(t, fireID, rec.events[1].fireID)
}

func TestListenerErrorsDoNotAffectJob(t *testing.T) {
	s := newTestScheduler(t)
	jobKey := NewJobKey("sturdy", "")
	ran := false
	require.NoError(t, s.ScheduleJob(jobKey, NewTriggerKey("t", ""), "@hourly", JobFunc(func(context.Context, *ExecutionContext) error {
		ran = true
		return nil
	})))
	s.AddJobListener(&recordingListener{fail: true})

	_, err := s.TriggerJob(context.Background(), jobKey)
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestMatchersSelectListeners(t *testing.T) {
	s := newTestScheduler(t)
	a := NewJobKey("a", "reports")
	b := NewJobKey("b", "cleanup")
	noop := JobFunc(func(context.Context, *ExecutionContext) error { return nil })
	require.NoError(t, s.ScheduleJob(a, NewTriggerKey("ta", ""), "@hourly", noop))
	require.NoError(t, s.ScheduleJob(b, NewTriggerKey("tb", ""), "@hourly", noop))

	reports := &recordingListener{}
	exact := &recordingListener{}
	s.AddJobListener(reports, GroupEquals("reports"))
	s.AddJobListener(exact, KeyEquals(b))

	_, err := s.TriggerJob(context.Background(), a)
	require.NoError(t, err)
	_, err = s.TriggerJob(context.Background(), b)
	require.NoError(t, err)

	assert.Len(t, reports.kinds(), 2)
	assert.Len(t, exact.kinds(), 2)
}

func TestScheduleJobValidation(t *testing.T) {
	s := newTestScheduler(t)
	noop := JobFunc(func(context.Context, *ExecutionContext) error { return nil })
	key := NewJobKey("j", "")

	require.Error(t, s.ScheduleJob(key, NewTriggerKey("t", ""), "not a cron", noop))
	require.NoError(t, s.ScheduleJob(key, NewTriggerKey("t", ""), "*/5 * * * *", noop))
	assert.ErrorIs(t, s.ScheduleJob(key, NewTriggerKey("t2", ""), "@daily", noop), ErrJobExists)

	_, err := s.TriggerJob(context.Background(), NewJobKey("missing", ""))
	assert.True(t, errors.IsNotFoundError(err))

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "*/5 * * * *", jobs[0].Spec)
	assert.True(t, jobs[0].Next.After(time.Now().Add(-time.Second)))
	assert.NoError(t, s.ValidateSpec("@every 10s"))
	assert.Error(t, s.ValidateSpec("61 * * * *"))
}

func TestScheduledFireCarriesScheduledTime(t *testing.T) {
	s := newTestScheduler(t)
	key := NewJobKey("ticking", "")

	fired := make(chan *ExecutionContext, 4)
	require.NoError(t, s.ScheduleJob(key, NewTriggerKey("every-second", ""), "@every 1s", JobFunc(func(_ context.Context, ec *ExecutionContext) error {
		fired <- ec
		return nil
	})))
	s.Start()

	select {
	case ec := <-fired:
		require.NotNil(t, ec.ScheduledFireTime)
		assert.WithinDuration(t, *ec.ScheduledFireTime, ec.FireTime, 2*time.Second)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled job did not fire")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestDefaultsAndKeys(t *testing.T) {
	s := New(Config{}, nil)
	assert.NotEmpty(t, s.SchedulerInstanceID())
	assert.Equal(t, "RecentHistoryScheduler", s.SchedulerName())
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, "DEFAULT.j", NewJobKey("j", "").String())
	group, name := SplitKey("billing.report.v2")
	assert.Equal(t, "billing", group)
	assert.Equal(t, "report.v2", name)
	group, name = SplitKey("solo")
	assert.Equal(t, DefaultGroup, group)
	assert.Equal(t, "solo", name)
}
