package database

// RunReport summarizes one source's completed batch.
type RunReport struct {
	ID            int64
	RunDate       string
	Source        string
	ArtistsDone   int
	ArtistsFailed int
	Observations  int
	ThrottleWaits int
	FinishedAt    string
}

// InsertRunReport records a completed batch run.
func (db *DB) InsertRunReport(r RunReport) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO run_reports (run_date, source, artists_done, artists_failed, observations, throttle_waits)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.RunDate, r.Source, r.ArtistsDone, r.ArtistsFailed, r.Observations, r.ThrottleWaits,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// LatestRunReports returns the most recent report per source, newest
// first.
func (db *DB) LatestRunReports() ([]RunReport, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_date, source, artists_done, artists_failed, observations, throttle_waits, finished_at
		FROM run_reports
		WHERE id IN (SELECT MAX(id) FROM run_reports GROUP BY source)
		ORDER BY finished_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRunReports(rows)
}

// RunReportsForDate returns all reports recorded for one run date.
func (db *DB) RunReportsForDate(runDate string) ([]RunReport, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_date, source, artists_done, artists_failed, observations, throttle_waits, finished_at
		FROM run_reports WHERE run_date = ? ORDER BY id`,
		runDate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRunReports(rows)
}

// Stats holds the counters shown by the status command.
type Stats struct {
	TotalRuns          int
	SourcesWithRuns    int
	PendingCheckpoints int
}

// GetStats returns summary counters for the status command.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM run_reports").Scan(&s.TotalRuns); err != nil {
		return nil, err
	}
	if err := db.conn.QueryRow("SELECT COUNT(DISTINCT source) FROM run_reports").Scan(&s.SourcesWithRuns); err != nil {
		return nil, err
	}
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM checkpoints").Scan(&s.PendingCheckpoints); err != nil {
		return nil, err
	}
	return s, nil
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanRunReports(rows rowScanner) ([]RunReport, error) {
	var reports []RunReport
	for rows.Next() {
		var r RunReport
		if err := rows.Scan(&r.ID, &r.RunDate, &r.Source, &r.ArtistsDone, &r.ArtistsFailed,
			&r.Observations, &r.ThrottleWaits, &r.FinishedAt); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}
