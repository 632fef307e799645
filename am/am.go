// Package am loads the recenthistory configuration ("I am").
//
// Values come from built-in defaults, then /etc/recenthistory/am.toml,
// ~/.recenthistory/am.toml, the nearest am.toml above the working
// directory and finally RECENTHISTORY_* environment variables.
package am

import (
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/recenthistory/history"
)

// Config represents the recenthistory configuration
type Config struct {
	Scheduler SchedulerConfig `mapstructure:"scheduler" toml:"scheduler" json:"scheduler" yaml:"scheduler"`
	History   HistoryConfig   `mapstructure:"history" toml:"history" json:"history" yaml:"history"`
	Database  DatabaseConfig  `mapstructure:"database" toml:"database" json:"database" yaml:"database"`
	Metrics   MetricsConfig   `mapstructure:"metrics" toml:"metrics" json:"metrics" yaml:"metrics"`
}

// SchedulerConfig configures the cron scheduler
type SchedulerConfig struct {
	Name               string      `mapstructure:"name" toml:"name" json:"name" yaml:"name"`
	InstanceID         string      `mapstructure:"instance_id" toml:"instance_id" json:"instance_id" yaml:"instance_id"` // empty = random per process
	Timezone           string      `mapstructure:"timezone" toml:"timezone" json:"timezone" yaml:"timezone"`             // IANA name, empty = local
	StopTimeoutSeconds int         `mapstructure:"stop_timeout_seconds" toml:"stop_timeout_seconds" json:"stop_timeout_seconds" yaml:"stop_timeout_seconds"`
	Jobs               []JobConfig `mapstructure:"jobs" toml:"jobs" json:"jobs" yaml:"jobs"`
}

// JobConfig declares one scheduled job. A job either runs Command or, when
// Command is empty, logs Message.
type JobConfig struct {
	Name           string `mapstructure:"name" toml:"name" json:"name" yaml:"name"`
	Group          string `mapstructure:"group" toml:"group,omitempty" json:"group,omitempty" yaml:"group,omitempty"`
	Trigger        string `mapstructure:"trigger" toml:"trigger,omitempty" json:"trigger,omitempty" yaml:"trigger,omitempty"` // defaults to Name
	Schedule       string `mapstructure:"schedule" toml:"schedule" json:"schedule" yaml:"schedule"`
	Command        string `mapstructure:"command" toml:"command,omitempty" json:"command,omitempty" yaml:"command,omitempty"`
	Message        string `mapstructure:"message" toml:"message,omitempty" json:"message,omitempty" yaml:"message,omitempty"`
	Dir            string `mapstructure:"dir" toml:"dir,omitempty" json:"dir,omitempty" yaml:"dir,omitempty"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds" toml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// TriggerName returns the trigger name, defaulting to the job name.
func (j JobConfig) TriggerName() string {
	if j.Trigger == "" {
		return j.Name
	}
	return j.Trigger
}

// HistoryConfig configures execution history recording
type HistoryConfig struct {
	Store                string `mapstructure:"store" toml:"store" json:"store" yaml:"store"`                // memory, sqlite, postgres; empty disables history
	Connection           string `mapstructure:"connection" toml:"connection" json:"connection" yaml:"connection"` // overrides the database section
	TablePrefix          string `mapstructure:"table_prefix" toml:"table_prefix" json:"table_prefix" yaml:"table_prefix"`
	PurgeIntervalMinutes int    `mapstructure:"purge_interval_minutes" toml:"purge_interval_minutes" json:"purge_interval_minutes" yaml:"purge_interval_minutes"`
	EntryTTLMinutes      int    `mapstructure:"entry_ttl_minutes" toml:"entry_ttl_minutes" json:"entry_ttl_minutes" yaml:"entry_ttl_minutes"`
	BackgroundPurge      bool   `mapstructure:"background_purge" toml:"background_purge" json:"background_purge" yaml:"background_purge"`
}

// Enabled reports whether a history store is configured.
func (h HistoryConfig) Enabled() bool {
	return h.Store != ""
}

// DatabaseConfig configures the durable history backends
type DatabaseConfig struct {
	Path     string         `mapstructure:"path" toml:"path" json:"path" yaml:"path"` // SQLite file
	Postgres PostgresConfig `mapstructure:"postgres" toml:"postgres" json:"postgres" yaml:"postgres"`
}

// PostgresConfig configures the PostgreSQL connection. DSN wins over the
// individual fields when set.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn" toml:"dsn,omitempty" json:"dsn,omitempty" yaml:"dsn,omitempty"`
	Host     string `mapstructure:"host" toml:"host" json:"host" yaml:"host"`
	Port     int    `mapstructure:"port" toml:"port" json:"port" yaml:"port"`
	User     string `mapstructure:"user" toml:"user" json:"user" yaml:"user"`
	Password string `mapstructure:"password" toml:"-" json:"-" yaml:"-"`
	DBName   string `mapstructure:"dbname" toml:"dbname" json:"dbname" yaml:"dbname"`
	SSLMode  string `mapstructure:"sslmode" toml:"sslmode" json:"sslmode" yaml:"sslmode"`
}

// ConnectionString returns DSN or a postgres:// URL built from the fields.
func (p PostgresConfig) ConnectionString() string {
	if p.DSN != "" {
		return p.DSN
	}
	if p.Host == "" {
		return ""
	}

	u := url.URL{Scheme: "postgres", Host: p.Host, Path: "/" + p.DBName}
	if p.Port > 0 {
		u.Host = net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
	}
	if p.User != "" {
		if p.Password != "" {
			u.User = url.UserPassword(p.User, p.Password)
		} else {
			u.User = url.User(p.User)
		}
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{p.SSLMode}}.Encode()
	}
	return u.String()
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Address string `mapstructure:"address" toml:"address" json:"address" yaml:"address"` // empty disables /metrics
}

// HistoryOptions converts the history and database sections into store
// options. The connection falls back to the database section matching
// the store type.
func (c *Config) HistoryOptions() history.Options {
	opts := history.Options{
		Connection:      c.History.Connection,
		TablePrefix:     c.History.TablePrefix,
		PurgeInterval:   time.Duration(c.History.PurgeIntervalMinutes) * time.Minute,
		EntryTTL:        time.Duration(c.History.EntryTTLMinutes) * time.Minute,
		BackgroundPurge: c.History.BackgroundPurge,
	}
	if opts.Connection == "" {
		switch strings.ToLower(c.History.Store) {
		case StoreSQLite:
			opts.Connection = c.Database.Path
		case StorePostgres:
			opts.Connection = c.Database.Postgres.ConnectionString()
		}
	}
	return opts.WithDefaults()
}

// StopTimeout is how long a stopping scheduler waits for running jobs.
func (c *Config) StopTimeout() time.Duration {
	if c.Scheduler.StopTimeoutSeconds <= 0 {
		return DefaultStopTimeout
	}
	return time.Duration(c.Scheduler.StopTimeoutSeconds) * time.Second
}

// Location returns the scheduler time zone, or time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduler.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Scheduler.Timezone)
}

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
