// Package memory implements a bounded, process-local history.Store.
//
// The store purges itself on Save: every tenth update, or when a minute has
// passed since the last purge, it drops everything except the ten most
// recent entries of each trigger.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/recenthistory/history"
	"github.com/teranos/recenthistory/logger"
)

const (
	// PurgeEveryUpdates is how many saves may happen between purges.
	PurgeEveryUpdates = 10
	// PurgeEvery is the longest time between purges while saves keep arriving.
	PurgeEvery = time.Minute
	// KeepPerTrigger is how many entries survive a purge for each trigger.
	KeepPerTrigger = 10
)

// Store keeps entries in a map guarded by a single mutex.
type Store struct {
	mu            sync.Mutex
	schedulerName string
	entries       map[string]*history.Entry
	updates       int
	nextPurge     time.Time

	executed atomic.Int64
	failed   atomic.Int64

	now    func() time.Time
	logger *zap.SugaredLogger
}

// Option customises a Store.
type Option func(*Store)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*history.Entry),
		now:     time.Now,
		logger:  logger.ComponentLogger("history.memory"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.nextPurge = s.now()
	return s
}

var _ history.Store = (*Store)(nil)

func (s *Store) SchedulerName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedulerName
}

func (s *Store) SetSchedulerName(name string) {
	s.mu.Lock()
	s.schedulerName = name
	s.mu.Unlock()
}

// Get returns a copy of the entry, or nil when it is not held.
func (s *Store) Get(_ context.Context, fireInstanceID string) (*history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[fireInstanceID].Clone(), nil
}

// Save stores a copy of entry, replacing any entry with the same fire
// instance id. A due purge runs first, so the new entry always survives.
func (s *Store) Save(_ context.Context, entry *history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.updates++
	now := s.now()
	if s.updates >= PurgeEveryUpdates || now.After(s.nextPurge) {
		s.purgeLocked()
		s.updates = 0
		s.nextPurge = now.Add(PurgeEvery)
	}

	s.entries[entry.FireInstanceID] = entry.Clone()
	return nil
}

// Purge keeps the KeepPerTrigger most recent entries of each trigger of the
// bound scheduler and deletes everything else.
func (s *Store) Purge(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	return nil
}

func (s *Store) purgeLocked() {
	keep := history.LastOfEvery(s.scopedLocked(), history.ByTrigger, KeepPerTrigger)
	if len(keep) == len(s.entries) {
		return
	}

	kept := make(map[string]*history.Entry, len(keep))
	for _, e := range keep {
		kept[e.FireInstanceID] = e
	}
	removed := len(s.entries) - len(kept)
	s.entries = kept

	s.logger.Debugw("Purged in-memory history",
		logger.FieldScheduler, s.schedulerName,
		logger.FieldCount, removed,
	)
}

// scopedLocked returns the held entries of the bound scheduler.
func (s *Store) scopedLocked() []*history.Entry {
	out := make([]*history.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.SchedulerName == s.schedulerName {
			out = append(out, e)
		}
	}
	return out
}

func cloneAll(entries []*history.Entry) []*history.Entry {
	out := make([]*history.Entry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

func (s *Store) FilterLastOfEveryJob(_ context.Context, limitPerJob int) ([]*history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(history.LastOfEvery(s.scopedLocked(), history.ByJob, limitPerJob)), nil
}

func (s *Store) FilterLastOfEveryTrigger(_ context.Context, limitPerTrigger int) ([]*history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(history.LastOfEvery(s.scopedLocked(), history.ByTrigger, limitPerTrigger)), nil
}

func (s *Store) FilterLast(_ context.Context, limit int) ([]*history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(history.LastN(s.scopedLocked(), limit)), nil
}

func (s *Store) TotalJobsExecuted(context.Context) (int, error) {
	return history.NarrowCounter(s.executed.Load()), nil
}

func (s *Store) TotalJobsFailed(context.Context) (int, error) {
	return history.NarrowCounter(s.failed.Load()), nil
}

func (s *Store) IncrementTotalJobsExecuted(context.Context) error {
	s.executed.Add(1)
	return nil
}

func (s *Store) IncrementTotalJobsFailed(context.Context) error {
	s.failed.Add(1)
	return nil
}

// Len is the number of entries held, across all scheduler names.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
