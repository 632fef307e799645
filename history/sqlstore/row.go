package sqlstore

import (
	"database/sql"
	"database/sql/driver"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/teranos/recenthistory/errors"
	"github.com/teranos/recenthistory/history"
)

// utcTime scans timestamps from either driver. SQLite hands back text
// when it cannot see the column's declared type, so strings in the
// driver's own formats are accepted too.
type utcTime struct {
	Time  time.Time
	Valid bool
}

func (t *utcTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = v.UTC(), true
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	}
	return errors.Newf("cannot scan %T into timestamp", src)
}

func (t *utcTime) parse(s string) error {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if parsed, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			t.Time, t.Valid = parsed.UTC(), true
			return nil
		}
	}
	return errors.Newf("cannot parse timestamp %q", s)
}

func (t *utcTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

type entryRow struct {
	FireInstanceID      string         `db:"fire_instance_id"`
	SchedulerInstanceID string         `db:"scheduler_instance_id"`
	SchedName           string         `db:"sched_name"`
	JobName             string         `db:"job_name"`
	TriggerName         string         `db:"trigger_name"`
	ScheduledFireTime   utcTime        `db:"scheduled_fire_time_utc"`
	ActualFireTime      utcTime        `db:"actual_fire_time_utc"`
	Recovering          bool           `db:"recovering"`
	Vetoed              bool           `db:"vetoed"`
	FinishedTime        utcTime        `db:"finished_time_utc"`
	ExceptionMessage    sql.NullString `db:"exception_message"`
}

func (r *entryRow) toEntry() *history.Entry {
	e := &history.Entry{
		FireInstanceID:      r.FireInstanceID,
		SchedulerInstanceID: r.SchedulerInstanceID,
		SchedulerName:       r.SchedName,
		Job:                 r.JobName,
		Trigger:             r.TriggerName,
		ScheduledFireTime:   r.ScheduledFireTime.ptr(),
		ActualFireTime:      r.ActualFireTime.Time,
		Recovering:          r.Recovering,
		Vetoed:              r.Vetoed,
		FinishedTime:        r.FinishedTime.ptr(),
	}
	if r.ExceptionMessage.Valid {
		msg := r.ExceptionMessage.String
		e.ExceptionMessage = &msg
	}
	return e
}

func toEntries(rows []entryRow) []*history.Entry {
	out := make([]*history.Entry, len(rows))
	for i := range rows {
		out[i] = rows[i].toEntry()
	}
	return out
}

// nullableTime binds an optional timestamp in UTC.
func nullableTime(t *time.Time) driver.Valuer {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullableString(s *string) driver.Valuer {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// upsertArgs orders entry fields to match entryColumns.
func upsertArgs(e *history.Entry) []interface{} {
	return []interface{}{
		e.FireInstanceID,
		e.SchedulerInstanceID,
		e.SchedulerName,
		e.Job,
		e.Trigger,
		nullableTime(e.ScheduledFireTime),
		e.ActualFireTime.UTC(),
		e.Recovering,
		e.Vetoed,
		nullableTime(e.FinishedTime),
		nullableString(e.ExceptionMessage),
	}
}

// statValue converts a raw stat_value to the reported counter width.
// A non-integer value means the backend widened the column on overflow.
func statValue(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case int64:
		return history.NarrowCounter(v), nil
	case int32:
		return int(v), nil
	case int:
		return history.NarrowCounter(int64(v)), nil
	case float64:
		return history.CounterOverflow, nil
	case []byte:
		return parseStat(string(v))
	case string:
		return parseStat(v)
	}
	return 0, errors.Newf("unexpected stat value type %T", raw)
}

func parseStat(s string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return history.CounterOverflow, nil
	}
	return history.NarrowCounter(n), nil
}
