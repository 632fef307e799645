package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"go.uber.org/zap"

	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/sym"
)

// Driver names as registered with database/sql.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// MemoryPath opens a private in-memory SQLite database.
const MemoryPath = ":memory:"

const (
	// SQLiteBusyTimeoutMS is how long SQLite waits on a locked database
	SQLiteBusyTimeoutMS = 5000

	// DefaultMaxOpenConns is the default maximum number of open PostgreSQL connections
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle PostgreSQL connections
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultPingTimeout is the default timeout for ping operations
	DefaultPingTimeout = 5 * time.Second
)

// Open opens a SQLite database at path with WAL journaling and a busy timeout.
// MemoryPath yields a single-connection in-memory database, since every
// connection to ":memory:" would otherwise see its own empty database.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(path string, logger *zap.SugaredLogger) (*sqlx.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path, "symbol", sym.DB)
	}

	db, err := sqlx.Open(DriverSQLite, path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if path == MemoryPath {
		db.SetMaxOpenConns(1)
	}

	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA journal_mode = WAL", "enable WAL mode"},
		{"PRAGMA foreign_keys = ON", "enable foreign keys"},
		{"PRAGMA busy_timeout = 5000", "set busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to %s", p.what)
		}
	}

	if logger != nil {
		logger.Infow("Database opened",
			"path", path,
			"symbol", sym.DB,
			"driver", DriverSQLite,
		)
	}

	return db, nil
}

// OpenPostgres connects to PostgreSQL using dsn and verifies the connection
// with a bounded ping.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.SugaredLogger) (*sqlx.DB, error) {
	db, err := sqlx.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.WithHint(
			errors.Wrap(err, "failed to ping database"),
			"check database.postgres.dsn in am.toml",
		)
	}

	if logger != nil {
		logger.Infow("Database opened",
			"symbol", sym.DB,
			"driver", DriverPostgres,
		)
	}

	return db, nil
}

// IsPostgres reports whether db speaks the PostgreSQL dialect.
func IsPostgres(db *sqlx.DB) bool {
	return db.DriverName() == DriverPostgres
}
