package sqlstore

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/history"
	"github.com/teranos/recenthistory/history/historytest"
	rhtest "github.com/teranos/recenthistory/internal/testing"
)

// clock is a settable time source for retention tests.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func useClock(s *Store, c *clock) {
	s.now = c.now
	s.nextPurge.Store(c.now().UnixNano())
}

func newSQLiteStore(t *testing.T, cfg Config) (*Store, *clock) {
	t.Helper()
	conn := rhtest.CreateTestDBWithPrefix(t, cfg.TablePrefix)
	s, err := New(conn, cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	s.SetSchedulerName(historytest.SchedulerName)

	c := &clock{t: historytest.Base.Add(time.Minute)}
	useClock(s, c)
	return s, c
}

func TestSQLiteStoreContract(t *testing.T) {
	historytest.Run(t, func(t *testing.T) history.Store {
		s, _ := newSQLiteStore(t, DefaultConfig())
		return s
	})
}

func TestSQLiteStoreCustomPrefix(t *testing.T) {
	historytest.Run(t, func(t *testing.T) history.Store {
		cfg := DefaultConfig()
		cfg.TablePrefix = "app_"
		s, _ := newSQLiteStore(t, cfg)
		return s
	})
}

func TestNewRejectsUnsafePrefix(t *testing.T) {
	conn := rhtest.CreateTestDB(t)
	_, err := New(conn, Config{TablePrefix: "qrtz_; DROP TABLE x"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestNewAppliesDefaults(t *testing.T) {
	conn := rhtest.CreateTestDB(t)
	s, err := New(conn, Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), s.Config())
}

func TestPurgeRemovesEntriesOlderThanTTL(t *testing.T) {
	ctx := context.Background()
	s, c := newSQLiteStore(t, Config{TablePrefix: "qrtz_", EntryTTL: 5 * time.Minute})

	old := historytest.NewEntry("OLD", "G.J", "G.T", -100*24*time.Hour)
	foreignOld := historytest.NewEntry("FOREIGN-OLD", "G.J", "G.T", -100*24*time.Hour)
	foreignOld.SchedulerName = "Other"
	fresh := historytest.NewEntry("FRESH", "G.J", "G.T", 0)
	for _, e := range []*history.Entry{old, foreignOld, fresh} {
		require.NoError(t, s.Save(ctx, e))
	}

	require.NoError(t, s.Purge(ctx))

	got, err := s.Get(ctx, "OLD")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.Get(ctx, "FOREIGN-OLD")
	require.NoError(t, err)
	assert.Nil(t, got, "purge is not scoped to the scheduler name")

	got, err = s.Get(ctx, "FRESH")
	require.NoError(t, err)
	assert.NotNil(t, got)

	// Once the clock passes the TTL the fresh entry goes too.
	c.advance(10 * time.Minute)
	require.NoError(t, s.Purge(ctx))
	got, err = s.Get(ctx, "FRESH")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSavePurgesInlineWhenDue(t *testing.T) {
	ctx := context.Background()
	s, c := newSQLiteStore(t, DefaultConfig())

	require.NoError(t, s.Save(ctx, historytest.NewEntry("A", "G.J", "G.T", 0)))
	c.advance(30 * time.Second)
	require.NoError(t, s.Save(ctx, historytest.NewEntry("B", "G.J", "G.T", 0)))

	// A is past the TTL, but no save has run since.
	c.advance(2 * time.Minute)
	got, err := s.Get(ctx, "A")
	require.NoError(t, err)
	require.NotNil(t, got)

	require.NoError(t, s.Save(ctx, historytest.NewEntry("C", "G.J", "G.T", 3*time.Minute)))
	got, err = s.Get(ctx, "A")
	require.NoError(t, err)
	assert.Nil(t, got, "save purges before writing once the interval has elapsed")

	got, err = s.Get(ctx, "C")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestSaveHandsPurgeToBackgroundPurger(t *testing.T) {
	ctx := context.Background()
	s, c := newSQLiteStore(t, Config{TablePrefix: "qrtz_", PurgeInterval: time.Hour})
	s.cfg.PurgeInterval = time.Minute

	require.NoError(t, s.Save(ctx, historytest.NewEntry("A", "G.J", "G.T", 0)))

	s.StartPurger(ctx)
	t.Cleanup(s.StopPurger)

	c.advance(5 * time.Minute)
	require.NoError(t, s.Save(ctx, historytest.NewEntry("B", "G.J", "G.T", 5*time.Minute)))

	require.Eventually(t, func() bool {
		got, err := s.Get(ctx, "A")
		return err == nil && got == nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, s.purger.Runs(), int64(1))
}

func TestCountersAreScopedBySchedulerName(t *testing.T) {
	ctx := context.Background()
	s, _ := newSQLiteStore(t, DefaultConfig())

	require.NoError(t, s.IncrementTotalJobsExecuted(ctx))

	s.SetSchedulerName("Other")
	n, err := s.TotalJobsExecuted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	s.SetSchedulerName(historytest.SchedulerName)
	n, err = s.TotalJobsExecuted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCounterOverflowSentinel(t *testing.T) {
	ctx := context.Background()
	s, _ := newSQLiteStore(t, DefaultConfig())

	_, err := s.DB().Exec(`INSERT INTO qrtz_execution_history_stats (sched_name, stat_name, stat_value) VALUES (?, ?, ?)`,
		historytest.SchedulerName, history.StatTotalJobsExecuted, int64(math.MaxInt32)+1)
	require.NoError(t, err)

	n, err := s.TotalJobsExecuted(ctx)
	require.NoError(t, err)
	assert.Equal(t, history.CounterOverflow, n)

	// SQLite widens to REAL when the 64-bit value overflows.
	_, err = s.DB().Exec(`INSERT INTO qrtz_execution_history_stats (sched_name, stat_name, stat_value) VALUES (?, ?, ?)`,
		historytest.SchedulerName, history.StatTotalJobsFailed, int64(math.MaxInt64))
	require.NoError(t, err)
	require.NoError(t, s.IncrementTotalJobsFailed(ctx))

	n, err = s.TotalJobsFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, history.CounterOverflow, n)
}

func TestClearSchedulerData(t *testing.T) {
	ctx := context.Background()
	s, _ := newSQLiteStore(t, DefaultConfig())

	mine := historytest.NewEntry("MINE", "G.J", "G.T", 0)
	other := historytest.NewEntry("OTHER", "G.J", "G.T", 0)
	other.SchedulerName = "Other"
	require.NoError(t, s.Save(ctx, mine))
	require.NoError(t, s.Save(ctx, other))
	require.NoError(t, s.IncrementTotalJobsExecuted(ctx))

	require.NoError(t, s.ClearSchedulerData(ctx))

	got, err := s.Get(ctx, "MINE")
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = s.Get(ctx, "OTHER")
	require.NoError(t, err)
	assert.NotNil(t, got)

	n, err := s.TotalJobsExecuted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestOpenSQLiteOwnsConnection(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := OpenSQLite(ctx, history.Options{
		Connection:      path,
		TablePrefix:     "rh_",
		BackgroundPurge: true,
		Logger:          zaptest.NewLogger(t).Sugar(),
	})
	require.NoError(t, err)
	assert.True(t, s.purger.Running())
	assert.Equal(t, history.DefaultEntryTTL, s.Config().EntryTTL)

	s.SetSchedulerName("S")
	e := historytest.NewEntry("F1", "G.J", "G.T", 0)
	e.SchedulerName = "S"
	e.ActualFireTime = time.Now().UTC()
	require.NoError(t, s.Save(ctx, e))
	require.NoError(t, s.Close())
	assert.False(t, s.purger.Running())

	reopened, err := OpenSQLite(ctx, history.Options{Connection: path, TablePrefix: "rh_"})
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Get(ctx, "F1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "S", got.SchedulerName)
}

func TestOpenPostgresRequiresConnection(t *testing.T) {
	_, err := OpenPostgres(context.Background(), history.Options{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
}

func TestClosedDatabaseErrorsAreWrapped(t *testing.T) {
	ctx := context.Background()
	s, _ := newSQLiteStore(t, DefaultConfig())
	require.NoError(t, s.DB().Close())

	_, err := s.Get(ctx, "F1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get history entry F1")

	err = s.Purge(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to purge execution history")
}
