package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS checkpoints (
    run_date TEXT NOT NULL,
    source TEXT NOT NULL,
    artist TEXT NOT NULL,
    done_at TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (run_date, source, artist)
);

CREATE TABLE IF NOT EXISTS run_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_date TEXT NOT NULL,
    source TEXT NOT NULL,
    artists_done INTEGER DEFAULT 0,
    artists_failed INTEGER DEFAULT 0,
    observations INTEGER DEFAULT 0,
    throttle_waits INTEGER DEFAULT 0,
    finished_at TEXT DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_date, source);
CREATE INDEX IF NOT EXISTS idx_run_reports_date ON run_reports(run_date);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
