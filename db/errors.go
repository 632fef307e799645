package db

import (
	"strings"

	"github.com/lib/pq"

	"github.com/teranos/recenthistory/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed database.
// This typically occurs during shutdown when the connection is closed before
// background goroutines have finished.
var ErrDatabaseClosed = errors.New("database is closed")

// SQLSTATE codes inspected by callers.
const (
	CodeNumericOverflow = "22003"
	CodeUndefinedTable  = "42P01"
)

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// Driver errors are matched by message since database/sql returns them unwrapped.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}

// HasCode reports whether err carries a PostgreSQL error with the given SQLSTATE.
func HasCode(err error, code string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == code
	}
	return false
}

// IsNumericOverflow reports whether err is a PostgreSQL numeric overflow.
func IsNumericOverflow(err error) bool {
	return HasCode(err, CodeNumericOverflow)
}
