package am

import (
	"time"

	"github.com/spf13/viper"

	"github.com/teranos/recenthistory/db"
)

// Store type names accepted in history.store.
const (
	StoreMemory   = "memory"
	StoreInProc   = "inproc"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Defaults
const (
	DefaultSchedulerName = "RecentHistoryScheduler"
	DefaultDatabasePath  = "recenthistory.db"
	DefaultStopTimeout   = 30 * time.Second
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Scheduler defaults
	v.SetDefault("scheduler.name", DefaultSchedulerName)
	v.SetDefault("scheduler.instance_id", "")
	v.SetDefault("scheduler.timezone", "")
	v.SetDefault("scheduler.stop_timeout_seconds", int(DefaultStopTimeout/time.Second))

	// History defaults: in-memory recording, same retention as the durable stores
	v.SetDefault("history.store", StoreMemory)
	v.SetDefault("history.connection", "")
	v.SetDefault("history.table_prefix", db.DefaultTablePrefix)
	v.SetDefault("history.purge_interval_minutes", 1)
	v.SetDefault("history.entry_ttl_minutes", 2)
	v.SetDefault("history.background_purge", true)

	// Database defaults
	v.SetDefault("database.path", DefaultDatabasePath)
	v.SetDefault("database.postgres.dsn", "")
	v.SetDefault("database.postgres.host", "")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.dbname", "recenthistory")
	v.SetDefault("database.postgres.sslmode", "disable")

	// Metrics are off unless an address is given
	v.SetDefault("metrics.address", "")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.postgres.dsn", "RECENTHISTORY_POSTGRES_DSN", "DATABASE_URL")
	v.BindEnv("database.postgres.password", "RECENTHISTORY_POSTGRES_PASSWORD", "PGPASSWORD")
}
