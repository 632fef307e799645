// Package stores registers the built-in history store types.
package stores

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/recenthistory/history"
	"github.com/teranos/recenthistory/history/memory"
	"github.com/teranos/recenthistory/history/sqlstore"
	"github.com/teranos/recenthistory/logger"
)

// Built-in store type names.
const (
	Memory   = "memory"
	InProc   = "inproc"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// Default returns factories for every built-in store. Stores created
// without a logger in their options log through log.
func Default(log *zap.SugaredLogger) *history.Factories {
	f := history.NewFactories()
	Register(f, log)
	return f
}

// Register adds the built-in stores to f.
func Register(f *history.Factories, log *zap.SugaredLogger) {
	if log == nil {
		log = logger.ComponentLogger("history")
	}
	withLogger := func(opts history.Options, store string) history.Options {
		if opts.Logger == nil {
			opts.Logger = log
		}
		opts.Logger = opts.Logger.With(logger.FieldStoreType, store)
		return opts
	}

	newMemory := func(_ context.Context, opts history.Options) (history.Store, error) {
		opts = withLogger(opts, Memory)
		return memory.New(memory.WithLogger(opts.Logger)), nil
	}
	f.Register(Memory, newMemory)
	f.Register(InProc, newMemory)

	f.Register(SQLite, func(ctx context.Context, opts history.Options) (history.Store, error) {
		store, err := sqlstore.OpenSQLite(ctx, withLogger(opts, SQLite))
		if err != nil {
			return nil, err
		}
		return store, nil
	})

	f.Register(Postgres, func(ctx context.Context, opts history.Options) (history.Store, error) {
		store, err := sqlstore.OpenPostgres(ctx, withLogger(opts, Postgres))
		if err != nil {
			return nil, err
		}
		return store, nil
	})
}
