package sqlstore

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/teranos/recenthistory/db"
	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/history"
)

// OpenSQLite opens (creating if needed) a SQLite database at opts.Connection,
// migrates the history schema and returns a store that owns the connection.
// An empty connection opens a private in-memory database.
func OpenSQLite(ctx context.Context, opts history.Options) (*Store, error) {
	path := opts.Connection
	if path == "" {
		path = db.MemoryPath
	}
	conn, err := db.Open(path, opts.Logger)
	if err != nil {
		return nil, err
	}
	return open(ctx, conn, opts)
}

// OpenPostgres connects to the DSN in opts.Connection, migrates the history
// schema and returns a store that owns the connection.
func OpenPostgres(ctx context.Context, opts history.Options) (*Store, error) {
	if opts.Connection == "" {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("postgres history store needs a connection string"),
			"set history.connection or database.postgres.dsn",
		)
	}
	conn, err := db.OpenPostgres(ctx, opts.Connection, opts.Logger)
	if err != nil {
		return nil, err
	}
	return open(ctx, conn, opts)
}

func open(ctx context.Context, conn *sqlx.DB, opts history.Options) (*Store, error) {
	opts = opts.WithDefaults()
	prefix := opts.TablePrefix
	if prefix == "" {
		prefix = db.DefaultTablePrefix
	}

	if err := db.Migrate(ctx, conn, prefix, opts.Logger); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "failed to migrate history schema")
	}

	store, err := New(conn, Config{
		TablePrefix:   prefix,
		PurgeInterval: opts.PurgeInterval,
		EntryTTL:      opts.EntryTTL,
	}, opts.Logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	store.ownsDB = true

	if opts.BackgroundPurge {
		store.StartPurger(context.WithoutCancel(ctx))
	}
	return store, nil
}
