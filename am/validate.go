package am

import (
	"strings"

	"github.com/teranos/recenthistory/db"
	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/pulse/schedule"
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Scheduler.Name) == "" {
		return errors.New("scheduler.name cannot be empty")
	}
	if c.Scheduler.StopTimeoutSeconds < 0 {
		return errors.Newf("scheduler.stop_timeout_seconds must be >= 0, got %d", c.Scheduler.StopTimeoutSeconds)
	}
	if _, err := c.Location(); err != nil {
		return errors.Wrapf(err, "scheduler.timezone %q is not a known time zone", c.Scheduler.Timezone)
	}

	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateJobs() error {
	seen := make(map[string]bool, len(c.Scheduler.Jobs))
	for i, job := range c.Scheduler.Jobs {
		if job.Name == "" {
			return errors.Newf("scheduler.jobs[%d].name cannot be empty", i)
		}
		key := schedule.NewJobKey(job.Name, job.Group).String()
		if seen[key] {
			return errors.Newf("scheduler.jobs[%d]: duplicate job %s", i, key)
		}
		seen[key] = true

		if err := schedule.ValidateSpec(job.Schedule); err != nil {
			return errors.Wrapf(err, "scheduler.jobs[%d] (%s)", i, key)
		}
		if job.Command == "" && job.Message == "" {
			return errors.Newf("scheduler.jobs[%d] (%s) needs a command or a message", i, key)
		}
		if job.TimeoutSeconds < 0 {
			return errors.Newf("scheduler.jobs[%d].timeout_seconds must be >= 0, got %d", i, job.TimeoutSeconds)
		}
	}
	return nil
}

func (c *Config) validateHistory() error {
	h := c.History
	switch strings.ToLower(h.Store) {
	case "", StoreMemory, StoreInProc, StoreSQLite:
	case StorePostgres:
		if h.Connection == "" && c.Database.Postgres.ConnectionString() == "" {
			return errors.WithHint(
				errors.New("history.store is postgres but no connection is configured"),
				"set database.postgres.dsn or database.postgres.host")
		}
	default:
		return errors.Newf("history.store must be one of memory, sqlite, postgres (or empty), got %q", h.Store)
	}

	// 0 = default, negative = invalid
	if h.PurgeIntervalMinutes < 0 {
		return errors.Newf("history.purge_interval_minutes must be >= 0, got %d", h.PurgeIntervalMinutes)
	}
	if h.EntryTTLMinutes < 0 {
		return errors.Newf("history.entry_ttl_minutes must be >= 0, got %d", h.EntryTTLMinutes)
	}
	if h.TablePrefix != "" {
		if err := db.ValidatePrefix(h.TablePrefix); err != nil {
			return errors.Wrap(err, "history.table_prefix")
		}
	}
	return nil
}
