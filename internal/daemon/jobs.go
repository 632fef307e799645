package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/recenthistory/am"
	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/logger"
	"github.com/teranos/recenthistory/pulse/schedule"
)

// BuildJob turns a configured job into a schedule.Job: a CommandJob when a
// command is set, otherwise a job that logs the message.
func BuildJob(cfg am.JobConfig, log *zap.SugaredLogger) (schedule.Job, error) {
	if cfg.Command != "" {
		job, err := schedule.NewCommandJob(cfg.Command)
		if err != nil {
			return nil, errors.Wrapf(err, "job %s", cfg.Name)
		}
		job.Dir = cfg.Dir
		job.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
		return job, nil
	}

	message := cfg.Message
	log = logger.OrNop(log)
	return schedule.JobFunc(func(ctx context.Context, ec *schedule.ExecutionContext) error {
		logger.LoggerFromContext(ctx, log).Infow(message,
			logger.FieldJob, ec.JobKey.String(),
			logger.FieldTrigger, ec.TriggerKey.String())
		return nil
	}), nil
}

// ScheduleJobs registers every configured job with sched.
func ScheduleJobs(sched *schedule.Scheduler, jobs []am.JobConfig, log *zap.SugaredLogger) error {
	for _, jc := range jobs {
		job, err := BuildJob(jc, log)
		if err != nil {
			return err
		}
		jobKey := schedule.NewJobKey(jc.Name, jc.Group)
		triggerKey := schedule.NewTriggerKey(jc.TriggerName(), jc.Group)
		if err := sched.ScheduleJob(jobKey, triggerKey, jc.Schedule, job); err != nil {
			return err
		}
	}
	return nil
}
