// Package sqlstore implements a durable history.Store on SQLite or PostgreSQL.
//
// Entries live in <prefix>execution_history_entries and counters in
// <prefix>execution_history_stats. Every write is a single upsert statement,
// so concurrent listeners never lose updates. Retention is time based:
// entries older than the configured TTL are deleted by Purge.
package sqlstore

import (
	"context"
	"database/sql"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/teranos/recenthistory/db"
	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/history"
	"github.com/teranos/recenthistory/logger"
	"github.com/teranos/recenthistory/sym"
)

// Config controls table naming and retention.
type Config struct {
	TablePrefix   string
	PurgeInterval time.Duration
	EntryTTL      time.Duration
}

// DefaultConfig returns the stock prefix and retention.
func DefaultConfig() Config {
	return Config{
		TablePrefix:   db.DefaultTablePrefix,
		PurgeInterval: history.DefaultPurgeInterval,
		EntryTTL:      history.DefaultEntryTTL,
	}
}

// Store is a history.Store backed by a relational database.
type Store struct {
	db     *sqlx.DB
	ownsDB bool
	cfg    Config
	q      queries

	mu            sync.RWMutex
	schedulerName string

	nextPurge atomic.Int64 // unix nanoseconds
	purger    *history.Purger

	now    func() time.Time
	logger *zap.SugaredLogger
}

var _ history.Store = (*Store)(nil)

// New wraps an already migrated database. The table prefix is validated
// here because it is spliced into every statement.
func New(conn *sqlx.DB, cfg Config, log *zap.SugaredLogger) (*Store, error) {
	if cfg.TablePrefix == "" {
		cfg.TablePrefix = db.DefaultTablePrefix
	}
	if err := db.ValidatePrefix(cfg.TablePrefix); err != nil {
		return nil, err
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = history.DefaultPurgeInterval
	}
	if cfg.EntryTTL <= 0 {
		cfg.EntryTTL = history.DefaultEntryTTL
	}
	if log == nil {
		log = logger.ComponentLogger("history.sqlstore")
	}

	s := &Store{
		db:     conn,
		cfg:    cfg,
		q:      buildQueries(EntriesTable(cfg.TablePrefix), StatsTable(cfg.TablePrefix), conn.Rebind),
		now:    time.Now,
		logger: log.With(logger.FieldStoreType, conn.DriverName()),
	}
	s.nextPurge.Store(s.now().UnixNano())
	s.purger = history.NewPurger(s.Purge, cfg.PurgeInterval, log.Named("purger"))
	return s, nil
}

// EntriesTable is the entry table name for prefix.
func EntriesTable(prefix string) string { return prefix + "execution_history_entries" }

// StatsTable is the counter table name for prefix.
func StatsTable(prefix string) string { return prefix + "execution_history_stats" }

// Config returns the effective configuration.
func (s *Store) Config() Config { return s.cfg }

// DB exposes the underlying connection.
func (s *Store) DB() *sqlx.DB { return s.db }

func (s *Store) SchedulerName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.schedulerName
}

func (s *Store) SetSchedulerName(name string) {
	s.mu.Lock()
	s.schedulerName = name
	s.mu.Unlock()
}

// StartPurger moves purging to a background loop. Save then only signals
// the loop when a purge is due.
func (s *Store) StartPurger(ctx context.Context) {
	s.purger.Start(ctx)
}

// StopPurger stops the background loop; Save resumes purging inline.
func (s *Store) StopPurger() {
	s.purger.Stop()
}

// Close stops the purger and closes the database when the store opened it.
func (s *Store) Close() error {
	s.purger.Stop()
	if !s.ownsDB {
		return nil
	}
	return errors.Wrap(s.db.Close(), "failed to close history database")
}

// purgeDue claims the next purge slot. Only one caller wins per interval.
func (s *Store) purgeDue() bool {
	now := s.now()
	next := s.nextPurge.Load()
	if now.UnixNano() <= next {
		return false
	}
	return s.nextPurge.CompareAndSwap(next, now.Add(s.cfg.PurgeInterval).UnixNano())
}

func (s *Store) Get(ctx context.Context, fireInstanceID string) (*history.Entry, error) {
	var row entryRow
	err := s.db.GetContext(ctx, &row, s.q.get, fireInstanceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get history entry %s", fireInstanceID)
	}
	return row.toEntry(), nil
}

// Save upserts entry. When a purge is due it is handed to the background
// purger, or run inline before the write when no purger is running.
func (s *Store) Save(ctx context.Context, entry *history.Entry) error {
	if s.purgeDue() && !s.purger.Trigger() {
		if err := s.Purge(ctx); err != nil {
			return err
		}
	}

	if _, err := s.db.ExecContext(ctx, s.q.upsert, upsertArgs(entry)...); err != nil {
		return errors.Wrapf(err, "failed to save history entry %s", entry.FireInstanceID)
	}
	return nil
}

// Purge deletes entries of every scheduler fired before now minus the TTL.
func (s *Store) Purge(ctx context.Context) error {
	cutoff := s.now().Add(-s.cfg.EntryTTL).UTC()
	result, err := s.db.ExecContext(ctx, s.q.purge, cutoff)
	if err != nil {
		return errors.Wrap(err, "failed to purge execution history")
	}

	if n, err := result.RowsAffected(); err == nil && n > 0 {
		s.logger.Debugw("Purged execution history",
			logger.FieldCount, n,
			logger.FieldCutoff, cutoff,
			"symbol", sym.DB,
		)
	}
	return nil
}

func (s *Store) FilterLastOfEveryJob(ctx context.Context, limitPerJob int) ([]*history.Entry, error) {
	return s.selectEntries(ctx, "last of every job", limitPerJob, s.q.lastOfJob)
}

func (s *Store) FilterLastOfEveryTrigger(ctx context.Context, limitPerTrigger int) ([]*history.Entry, error) {
	return s.selectEntries(ctx, "last of every trigger", limitPerTrigger, s.q.lastOfTrig)
}

func (s *Store) FilterLast(ctx context.Context, limit int) ([]*history.Entry, error) {
	entries, err := s.selectEntries(ctx, "last", limit, s.q.last)
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	return entries, nil
}

func (s *Store) selectEntries(ctx context.Context, what string, limit int, query string) ([]*history.Entry, error) {
	if limit <= 0 {
		return []*history.Entry{}, nil
	}
	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, query, s.SchedulerName(), limit); err != nil {
		return nil, errors.Wrapf(err, "failed to filter %s %d entries", what, limit)
	}
	return toEntries(rows), nil
}

func (s *Store) TotalJobsExecuted(ctx context.Context) (int, error) {
	return s.readStat(ctx, history.StatTotalJobsExecuted)
}

func (s *Store) TotalJobsFailed(ctx context.Context) (int, error) {
	return s.readStat(ctx, history.StatTotalJobsFailed)
}

func (s *Store) IncrementTotalJobsExecuted(ctx context.Context) error {
	return s.increment(ctx, history.StatTotalJobsExecuted)
}

func (s *Store) IncrementTotalJobsFailed(ctx context.Context) error {
	return s.increment(ctx, history.StatTotalJobsFailed)
}

func (s *Store) readStat(ctx context.Context, stat string) (int, error) {
	var raw interface{}
	err := s.db.QueryRowxContext(ctx, s.q.readStat, s.SchedulerName(), stat).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read %s", stat)
	}
	return statValue(raw)
}

func (s *Store) increment(ctx context.Context, stat string) error {
	_, err := s.db.ExecContext(ctx, s.q.incrementSt, s.SchedulerName(), stat)
	if err == nil {
		return nil
	}
	if db.IsNumericOverflow(err) {
		s.logger.Warnw("History counter overflowed, increment skipped",
			"stat", stat,
			logger.FieldScheduler, s.SchedulerName(),
			logger.FieldErrorCode, db.CodeNumericOverflow,
		)
		return nil
	}
	return errors.Wrapf(err, "failed to increment %s", stat)
}

// ClearSchedulerData deletes every entry and counter of the bound scheduler.
func (s *Store) ClearSchedulerData(ctx context.Context) error {
	name := s.SchedulerName()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin clear transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q.clearEntries, name); err != nil {
		return errors.Wrapf(err, "failed to clear history entries of %s", name)
	}
	if _, err := tx.ExecContext(ctx, s.q.clearStats, name); err != nil {
		return errors.Wrapf(err, "failed to clear history stats of %s", name)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit clear")
	}

	s.logger.Infow("Cleared scheduler history", logger.FieldScheduler, name)
	return nil
}
