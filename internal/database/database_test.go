package database

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := getSchemaVersion(db.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	db1.Close()

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	db2.Close()
}

func TestMarkDoneAndDoneArtists(t *testing.T) {
	db := openTestDB(t)

	if err := db.MarkDone("2026-08-25", "x", "Alpha"); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	if err := db.MarkDone("2026-08-25", "x", "Beta"); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	// Re-marking the same artist must not error.
	if err := db.MarkDone("2026-08-25", "x", "Alpha"); err != nil {
		t.Fatalf("MarkDone duplicate: %v", err)
	}

	done, err := db.DoneArtists("2026-08-25", "x")
	if err != nil {
		t.Fatalf("DoneArtists: %v", err)
	}
	if len(done) != 2 || !done["Alpha"] || !done["Beta"] {
		t.Errorf("expected Alpha and Beta done, got %v", done)
	}
}

func TestCheckpointsScopedByRunAndSource(t *testing.T) {
	db := openTestDB(t)

	db.MarkDone("2026-08-25", "x", "Alpha")
	db.MarkDone("2026-08-25", "youtube", "Alpha")
	db.MarkDone("2026-08-24", "x", "Beta")

	done, err := db.DoneArtists("2026-08-25", "x")
	if err != nil {
		t.Fatalf("DoneArtists: %v", err)
	}
	if len(done) != 1 || !done["Alpha"] {
		t.Errorf("expected only Alpha for (2026-08-25, x), got %v", done)
	}
}

func TestClearCheckpoints(t *testing.T) {
	db := openTestDB(t)

	db.MarkDone("2026-08-25", "x", "Alpha")
	db.MarkDone("2026-08-25", "youtube", "Alpha")

	if err := db.ClearCheckpoints("2026-08-25", "x"); err != nil {
		t.Fatalf("ClearCheckpoints: %v", err)
	}

	xDone, _ := db.DoneArtists("2026-08-25", "x")
	if len(xDone) != 0 {
		t.Errorf("expected x checkpoints cleared, got %v", xDone)
	}
	ytDone, _ := db.DoneArtists("2026-08-25", "youtube")
	if len(ytDone) != 1 {
		t.Errorf("expected youtube checkpoints untouched, got %v", ytDone)
	}
}

func TestPruneCheckpoints(t *testing.T) {
	db := openTestDB(t)

	db.MarkDone("2026-08-20", "x", "Old")
	db.MarkDone("2026-08-25", "x", "Fresh")

	if err := db.PruneCheckpoints("2026-08-25"); err != nil {
		t.Fatalf("PruneCheckpoints: %v", err)
	}

	done, _ := db.DoneArtists("2026-08-20", "x")
	if len(done) != 0 {
		t.Errorf("expected old checkpoints pruned, got %v", done)
	}
	fresh, _ := db.DoneArtists("2026-08-25", "x")
	if len(fresh) != 1 {
		t.Errorf("expected fresh checkpoints kept, got %v", fresh)
	}
}

func TestRunReports(t *testing.T) {
	db := openTestDB(t)

	id, err := db.InsertRunReport(RunReport{
		RunDate: "2026-08-25", Source: "x",
		ArtistsDone: 10, ArtistsFailed: 2, Observations: 48, ThrottleWaits: 3,
	})
	if err != nil {
		t.Fatalf("InsertRunReport: %v", err)
	}
	if id == 0 {
		t.Error("expected non-zero report ID")
	}
	db.InsertRunReport(RunReport{RunDate: "2026-08-25", Source: "x", ArtistsDone: 12})
	db.InsertRunReport(RunReport{RunDate: "2026-08-25", Source: "charts", ArtistsDone: 12})

	latest, err := db.LatestRunReports()
	if err != nil {
		t.Fatalf("LatestRunReports: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected one latest report per source, got %d", len(latest))
	}
	for _, r := range latest {
		if r.Source == "x" && r.ArtistsDone != 12 {
			t.Errorf("expected latest x report with 12 done, got %d", r.ArtistsDone)
		}
	}

	byDate, err := db.RunReportsForDate("2026-08-25")
	if err != nil {
		t.Fatalf("RunReportsForDate: %v", err)
	}
	if len(byDate) != 3 {
		t.Errorf("expected 3 reports for date, got %d", len(byDate))
	}
}

func TestGetStats(t *testing.T) {
	db := openTestDB(t)

	db.InsertRunReport(RunReport{RunDate: "2026-08-25", Source: "x"})
	db.MarkDone("2026-08-25", "youtube", "Alpha")

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.TotalRuns != 1 {
		t.Errorf("expected 1 run, got %d", stats.TotalRuns)
	}
	if stats.SourcesWithRuns != 1 {
		t.Errorf("expected 1 source with runs, got %d", stats.SourcesWithRuns)
	}
	if stats.PendingCheckpoints != 1 {
		t.Errorf("expected 1 pending checkpoint, got %d", stats.PendingCheckpoints)
	}
}
