package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/recenthistory/errors"
)

func tableExists(t *testing.T, db interface {
	Get(dest interface{}, query string, args ...interface{}) error
}, name string) bool {
	t.Helper()
	var count int
	require.NoError(t, db.Get(&count, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name))
	return count == 1
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()

	t.Run("creates prefixed tables", func(t *testing.T) {
		db, err := Open(MemoryPath, nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(ctx, db, DefaultTablePrefix, nil))

		assert.True(t, tableExists(t, db, "qrtz_execution_history_entries"))
		assert.True(t, tableExists(t, db, "qrtz_execution_history_stats"))
		assert.True(t, tableExists(t, db, "qrtz_history_schema_migrations"))

		var versions []string
		require.NoError(t, db.Select(&versions, "SELECT version FROM qrtz_history_schema_migrations ORDER BY version"))
		assert.Equal(t, []string{"001", "002"}, versions)
	})

	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open(filepath.Join(t.TempDir(), "history.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(ctx, db, "app_", nil))
		require.NoError(t, Migrate(ctx, db, "app_", nil), "running migrations twice should be safe")
		assert.True(t, tableExists(t, db, "app_execution_history_entries"))
	})

	t.Run("separate prefixes coexist", func(t *testing.T) {
		db, err := Open(MemoryPath, nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(ctx, db, "a_", nil))
		require.NoError(t, Migrate(ctx, db, "b_", nil))
		assert.True(t, tableExists(t, db, "a_execution_history_stats"))
		assert.True(t, tableExists(t, db, "b_execution_history_stats"))
	})

	t.Run("rejects unsafe prefix", func(t *testing.T) {
		db, err := Open(MemoryPath, nil)
		require.NoError(t, err)
		defer db.Close()

		err = Migrate(ctx, db, "x; DROP TABLE y; --", nil)
		require.Error(t, err)
		assert.True(t, errors.IsInvalidRequestError(err))
	})

	t.Run("closed database fails", func(t *testing.T) {
		db, err := Open(MemoryPath, nil)
		require.NoError(t, err)
		db.Close()

		err = Migrate(ctx, db, DefaultTablePrefix, nil)
		require.Error(t, err)
		assert.True(t, IsDatabaseClosed(err))
	})
}

func TestValidatePrefix(t *testing.T) {
	for _, ok := range []string{"qrtz_", "_", "History2_", "a"} {
		assert.NoError(t, ValidatePrefix(ok), ok)
	}
	for _, bad := range []string{"", "1abc", "a-b", "a b", "qrtz_;"} {
		assert.Error(t, ValidatePrefix(bad), bad)
	}
}
