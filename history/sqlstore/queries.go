package sqlstore

import "fmt"

const entryColumns = `fire_instance_id, scheduler_instance_id, sched_name, job_name, trigger_name,
	scheduled_fire_time_utc, actual_fire_time_utc, recovering, vetoed, finished_time_utc, exception_message`

// queries holds the statements for one table prefix, written with `?`
// placeholders and rebound for the connection's driver.
type queries struct {
	upsert       string
	get          string
	last         string
	lastOfJob    string
	lastOfTrig   string
	purge        string
	incrementSt  string
	readStat     string
	clearEntries string
	clearStats   string
}

func buildQueries(entries, stats string, rebind func(string) string) queries {
	window := func(partition string) string {
		return rebind(fmt.Sprintf(`SELECT %[1]s FROM (
	SELECT %[1]s,
		ROW_NUMBER() OVER (PARTITION BY %[3]s ORDER BY actual_fire_time_utc DESC, fire_instance_id DESC) AS row_key
	FROM %[2]s
	WHERE sched_name = ?
) ranked
WHERE row_key <= ?
ORDER BY %[3]s, row_key DESC`, entryColumns, entries, partition))
	}

	return queries{
		upsert: rebind(fmt.Sprintf(`INSERT INTO %s (%s)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (fire_instance_id) DO UPDATE SET
	scheduler_instance_id = excluded.scheduler_instance_id,
	sched_name = excluded.sched_name,
	job_name = excluded.job_name,
	trigger_name = excluded.trigger_name,
	scheduled_fire_time_utc = excluded.scheduled_fire_time_utc,
	actual_fire_time_utc = excluded.actual_fire_time_utc,
	recovering = excluded.recovering,
	vetoed = excluded.vetoed,
	finished_time_utc = excluded.finished_time_utc,
	exception_message = excluded.exception_message`, entries, entryColumns)),

		get: rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE fire_instance_id = ?`, entryColumns, entries)),

		last: rebind(fmt.Sprintf(`SELECT %s FROM %s
WHERE sched_name = ?
ORDER BY actual_fire_time_utc DESC, fire_instance_id DESC
LIMIT ?`, entryColumns, entries)),

		lastOfJob:  window("job_name"),
		lastOfTrig: window("trigger_name"),

		purge: rebind(fmt.Sprintf(`DELETE FROM %s WHERE actual_fire_time_utc < ?`, entries)),

		incrementSt: rebind(fmt.Sprintf(`INSERT INTO %[1]s (sched_name, stat_name, stat_value)
VALUES (?, ?, 1)
ON CONFLICT (sched_name, stat_name) DO UPDATE SET stat_value = %[1]s.stat_value + 1`, stats)),

		readStat: rebind(fmt.Sprintf(`SELECT stat_value FROM %s WHERE sched_name = ? AND stat_name = ?`, stats)),

		clearEntries: rebind(fmt.Sprintf(`DELETE FROM %s WHERE sched_name = ?`, entries)),
		clearStats:   rebind(fmt.Sprintf(`DELETE FROM %s WHERE sched_name = ?`, stats)),
	}
}
