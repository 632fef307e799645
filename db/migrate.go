package db

import (
	"bytes"
	"context"
	"embed"
	"path"
	"regexp"
	"sort"
	"strings"
	"text/template"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/sym"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// DefaultTablePrefix is prepended to every history table name.
const DefaultTablePrefix = "qrtz_"

var prefixPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidatePrefix rejects table prefixes that are not plain SQL identifiers.
// The prefix is spliced into statements, so nothing else may pass.
func ValidatePrefix(prefix string) error {
	if !prefixPattern.MatchString(prefix) {
		return errors.NewInvalidRequestError("table prefix %q must match %s", prefix, prefixPattern.String())
	}
	return nil
}

// MigrationsTable returns the name of the table recording applied versions.
func MigrationsTable(prefix string) string {
	return prefix + "history_schema_migrations"
}

type migrationData struct {
	Prefix string
}

// Migrate applies every pending history migration for the dialect of db,
// rendering table names with prefix. Each migration runs in its own
// transaction and is recorded by version, so Migrate is idempotent.
// If logger is provided, logs migration progress; otherwise operates silently.
func Migrate(ctx context.Context, db *sqlx.DB, prefix string, logger *zap.SugaredLogger) error {
	if err := ValidatePrefix(prefix); err != nil {
		return err
	}

	dir := "migrations/sqlite"
	if IsPostgres(db) {
		dir = "migrations/postgres"
	}

	entries, err := migrations.ReadDir(dir)
	if err != nil {
		return errors.Wrap(err, "read migrations")
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	table := MigrationsTable(prefix)
	createTable := "CREATE TABLE IF NOT EXISTS " + table +
		" (version VARCHAR(16) NOT NULL PRIMARY KEY, applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP)"
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return errors.Wrapf(err, "create %s", table)
	}

	applied := 0
	for _, filename := range files {
		version := strings.Split(filename, "_")[0]

		var count int
		query := db.Rebind("SELECT COUNT(*) FROM " + table + " WHERE version = ?")
		if err := db.GetContext(ctx, &count, query, version); err != nil {
			return errors.Wrapf(err, "check %s", filename)
		}
		if count > 0 {
			if logger != nil {
				logger.Debugw("Skipping migration (already applied)",
					"migration", filename,
					"version", version,
				)
			}
			continue
		}

		stmt, err := render(path.Join(dir, filename), prefix)
		if err != nil {
			return err
		}

		if logger != nil {
			logger.Infow("Applying migration",
				"migration", filename,
				"version", version,
				"table_prefix", prefix,
			)
		}

		tx, err := db.BeginTxx(ctx, nil)
		if err != nil {
			return errors.Wrapf(err, "begin tx for %s", filename)
		}

		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "execute %s", filename)
		}

		if _, err := tx.ExecContext(ctx, tx.Rebind("INSERT INTO "+table+" (version) VALUES (?)"), version); err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "record %s", filename)
		}

		if err := tx.Commit(); err != nil {
			return errors.Wrapf(err, "commit %s", filename)
		}
		applied++
	}

	if logger != nil {
		logger.Infow("Migrations complete",
			"symbol", sym.DB,
			"applied", applied,
			"total_migrations", len(files),
		)
	}

	return nil
}

func render(name, prefix string) (string, error) {
	raw, err := migrations.ReadFile(name)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", name)
	}
	tmpl, err := template.New(path.Base(name)).Parse(string(raw))
	if err != nil {
		return "", errors.Wrapf(err, "parse %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, migrationData{Prefix: prefix}); err != nil {
		return "", errors.Wrapf(err, "render %s", name)
	}
	return buf.String(), nil
}
