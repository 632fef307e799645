package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/logger"
	"github.com/teranos/recenthistory/sym"
)

var (
	// ErrJobVetoed is returned by TriggerJob when a Vetoer cancelled the firing.
	ErrJobVetoed = errors.New("job execution vetoed")
	// ErrJobExists is returned when a job key is scheduled twice.
	ErrJobExists = errors.New("job already scheduled")
)

// Config names a scheduler instance.
type Config struct {
	Name       string
	InstanceID string
	// Location is the time zone cron expressions are evaluated in.
	Location *time.Location
}

// JobInfo describes a scheduled job for listings.
type JobInfo struct {
	JobKey     JobKey
	TriggerKey TriggerKey
	Spec       string
	Next       time.Time
}

type scheduledJob struct {
	jobKey     JobKey
	triggerKey TriggerKey
	spec       string
	job        Job
	schedule   cron.Schedule
	entryID    cron.EntryID
}

type listenerEntry struct {
	listener JobListener
	matchers []Matcher
}

func (e listenerEntry) matches(k JobKey) bool {
	for _, m := range e.matchers {
		if m(k) {
			return true
		}
	}
	return false
}

// Scheduler runs jobs on cron schedules and notifies listeners.
type Scheduler struct {
	name       string
	instanceID string

	cron   *cron.Cron
	parser cron.Parser

	mu        sync.RWMutex
	jobs      map[JobKey]*scheduledJob
	listeners []listenerEntry
	vetoers   []Vetoer
	started   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	now    func() time.Time
	logger *zap.SugaredLogger
}

// New creates a stopped scheduler. An empty instance id is replaced with a
// random one.
func New(cfg Config, log *zap.SugaredLogger) *Scheduler {
	if cfg.Name == "" {
		cfg.Name = "RecentHistoryScheduler"
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if log == nil {
		log = logger.ComponentLogger("pulse.schedule")
	}

	parser := SpecParser
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		name:       cfg.Name,
		instanceID: cfg.InstanceID,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.Recover(cron.DefaultLogger)),
		),
		parser: parser,
		jobs:   make(map[JobKey]*scheduledJob),
		ctx:    ctx,
		cancel: cancel,
		now:    time.Now,
		logger: log.With(logger.FieldScheduler, cfg.Name),
	}
}

// SchedulerName returns the configured scheduler name.
func (s *Scheduler) SchedulerName() string { return s.name }

// SchedulerInstanceID returns the id of this scheduler instance.
func (s *Scheduler) SchedulerInstanceID() string { return s.instanceID }

// AddJobListener subscribes l to firings of jobs selected by any of matchers.
// With no matchers the listener sees every job.
func (s *Scheduler) AddJobListener(l JobListener, matchers ...Matcher) {
	if len(matchers) == 0 {
		matchers = []Matcher{AllJobs()}
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, listenerEntry{listener: l, matchers: matchers})
	s.mu.Unlock()
	s.logger.Debugw("Job listener added", "listener", l.Name())
}

// AddVetoer registers v. Any vetoer returning true cancels a firing.
func (s *Scheduler) AddVetoer(v Vetoer) {
	s.mu.Lock()
	s.vetoers = append(s.vetoers, v)
	s.mu.Unlock()
}

// ValidateSpec reports whether spec is a cron expression this scheduler accepts.
func (s *Scheduler) ValidateSpec(spec string) error {
	return ValidateSpec(spec)
}

// SpecParser accepts five-field cron expressions and descriptors such as
// "@hourly" or "@every 5m".
var SpecParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSpec reports whether spec parses with SpecParser.
func ValidateSpec(spec string) error {
	if _, err := SpecParser.Parse(spec); err != nil {
		return errors.Wrapf(err, "invalid cron expression %q", spec)
	}
	return nil
}

// ScheduleJob registers job to fire on spec. The job may also be fired
// manually with TriggerJob.
func (s *Scheduler) ScheduleJob(jobKey JobKey, triggerKey TriggerKey, spec string, job Job) error {
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return errors.Wrapf(err, "invalid cron expression %q for %s", spec, jobKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[jobKey]; exists {
		return errors.Wrapf(ErrJobExists, "%s", jobKey)
	}

	sj := &scheduledJob{
		jobKey:     jobKey,
		triggerKey: triggerKey,
		spec:       spec,
		job:        job,
		schedule:   schedule,
	}
	sj.entryID = s.cron.Schedule(schedule, cron.FuncJob(func() {
		s.fireScheduled(sj)
	}))
	s.jobs[jobKey] = sj

	s.logger.Infow("Job scheduled",
		logger.FieldJob, jobKey.String(),
		logger.FieldTrigger, triggerKey.String(),
		"schedule", spec,
		"next_run", schedule.Next(s.now()).Format(time.RFC3339),
	)
	return nil
}

// Jobs lists scheduled jobs ordered by job key.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	out := make([]JobInfo, 0, len(s.jobs))
	for _, sj := range s.jobs {
		next := s.cron.Entry(sj.entryID).Next
		if next.IsZero() {
			next = sj.schedule.Next(now)
		}
		out = append(out, JobInfo{JobKey: sj.jobKey, TriggerKey: sj.triggerKey, Spec: sj.spec, Next: next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobKey.String() < out[j].JobKey.String() })
	return out
}

// Start begins firing scheduled jobs.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.cron.Start()
	s.logger.Infow("Scheduler started",
		"symbol", sym.PulseOpen,
		logger.FieldSchedulerInstance, s.instanceID,
		logger.FieldCount, len(s.jobs),
	)
}

// Stop halts cron and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	wasStarted := s.started
	s.started = false
	s.mu.Unlock()

	s.cancel()

	var cronDone <-chan struct{}
	if wasStarted {
		cronDone = s.cron.Stop().Done()
	} else {
		closed := make(chan struct{})
		close(closed)
		cronDone = closed
	}

	done := make(chan struct{})
	go func() {
		<-cronDone
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Infow("Scheduler stopped", "symbol", sym.PulseClose)
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "scheduler stop timed out waiting for running jobs")
	}
}

// TriggerJob fires the job now, on the caller's goroutine, and returns its
// fire instance id with the job's error. A vetoed firing returns ErrJobVetoed.
func (s *Scheduler) TriggerJob(ctx context.Context, jobKey JobKey) (string, error) {
	s.mu.RLock()
	sj, ok := s.jobs[jobKey]
	s.mu.RUnlock()
	if !ok {
		return "", errors.NewNotFoundError("job %s", jobKey)
	}
	return s.fire(ctx, sj, nil)
}

// fireScheduled runs on a cron goroutine. By the time the job body runs,
// cron has moved the entry's Prev to the instant this firing was planned for.
func (s *Scheduler) fireScheduled(sj *scheduledJob) {
	var scheduled *time.Time
	if prev := s.cron.Entry(sj.entryID).Prev; !prev.IsZero() {
		scheduled = &prev
	}
	s.fire(s.ctx, sj, scheduled)
}

func (s *Scheduler) fire(ctx context.Context, sj *scheduledJob, scheduled *time.Time) (string, error) {
	s.wg.Add(1)
	defer s.wg.Done()

	ec := &ExecutionContext{
		FireInstanceID:      uuid.NewString(),
		SchedulerName:       s.name,
		SchedulerInstanceID: s.instanceID,
		JobKey:              sj.jobKey,
		TriggerKey:          sj.triggerKey,
		FireTime:            s.now().UTC(),
	}
	if scheduled != nil {
		t := scheduled.UTC()
		ec.ScheduledFireTime = &t
	}

	ctx = logger.WithFireInstanceID(ctx, ec.FireInstanceID)
	log := logger.LoggerFromContext(ctx, s.logger).With(logger.FieldJob, sj.jobKey.String())
	listeners, vetoers := s.subscribers(sj.jobKey)

	for _, l := range listeners {
		if err := l.JobToBeExecuted(ctx, ec); err != nil {
			log.Warnw("Job listener failed", "listener", l.Name(), "event", "to_be_executed", logger.FieldError, err)
		}
	}

	for _, v := range vetoers {
		if v.VetoJobExecution(ctx, ec) {
			log.Infow("Job execution vetoed", "symbol", sym.Pulse)
			for _, l := range listeners {
				if err := l.JobExecutionVetoed(ctx, ec); err != nil {
					log.Warnw("Job listener failed", "listener", l.Name(), "event", "vetoed", logger.FieldError, err)
				}
			}
			return ec.FireInstanceID, ErrJobVetoed
		}
	}

	start := s.now()
	jobErr := run(ctx, sj.job, ec)
	elapsed := s.now().Sub(start)

	if jobErr != nil {
		log.Warnw("Job failed", logger.FieldError, jobErr, logger.FieldDurationMS, elapsed.Milliseconds())
	} else {
		log.Debugw("Job executed", "symbol", sym.Pulse, logger.FieldDurationMS, elapsed.Milliseconds())
	}

	for _, l := range listeners {
		if err := l.JobWasExecuted(ctx, ec, jobErr); err != nil {
			log.Warnw("Job listener failed", "listener", l.Name(), "event", "was_executed", logger.FieldError, err)
		}
	}

	return ec.FireInstanceID, jobErr
}

// run executes job, converting a panic into an error.
func run(ctx context.Context, job Job, ec *ExecutionContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf("job panicked: %s", fmt.Sprint(r))
		}
	}()
	return job.Execute(ctx, ec)
}

func (s *Scheduler) subscribers(k JobKey) ([]JobListener, []Vetoer) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var listeners []JobListener
	for _, e := range s.listeners {
		if e.matches(k) {
			listeners = append(listeners, e.listener)
		}
	}
	return listeners, append([]Vetoer(nil), s.vetoers...)
}
