package database

// Checkpoints persist per-run collection progress so a restarted
// invocation resumes at the first artist not yet marked done. A run is
// identified by (run_date, source); completed runs clear their rows.

// MarkDone records that an artist was processed for a run. Marking the
// same artist twice is a no-op.
func (db *DB) MarkDone(runDate, source, artist string) error {
	_, err := db.conn.Exec(
		`INSERT INTO checkpoints (run_date, source, artist) VALUES (?, ?, ?)
		ON CONFLICT(run_date, source, artist) DO NOTHING`,
		runDate, source, artist,
	)
	return err
}

// DoneArtists returns the set of artists already marked done for a run.
func (db *DB) DoneArtists(runDate, source string) (map[string]bool, error) {
	rows, err := db.conn.Query(
		"SELECT artist FROM checkpoints WHERE run_date = ? AND source = ?",
		runDate, source,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var artist string
		if err := rows.Scan(&artist); err != nil {
			return nil, err
		}
		done[artist] = true
	}
	return done, rows.Err()
}

// ClearCheckpoints removes a completed run's checkpoint rows.
func (db *DB) ClearCheckpoints(runDate, source string) error {
	_, err := db.conn.Exec(
		"DELETE FROM checkpoints WHERE run_date = ? AND source = ?",
		runDate, source,
	)
	return err
}

// PruneCheckpoints removes checkpoint rows from runs older than the
// given date. Stale checkpoints from abandoned runs would otherwise
// accumulate forever.
func (db *DB) PruneCheckpoints(before string) error {
	_, err := db.conn.Exec("DELETE FROM checkpoints WHERE run_date < ?", before)
	return err
}
