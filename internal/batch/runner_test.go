package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalindex/signalindex/internal/source"
)

func testArtists(names ...string) []source.Artist {
	var out []source.Artist
	for _, n := range names {
		out = append(out, source.Artist{Name: n, Category: "K-pop", Active: true})
	}
	return out
}

func obsFor(name string) []source.Observation {
	return []source.Observation{{
		Artist:  name,
		Source:  source.X,
		Date:    "2026-08-25",
		Metrics: map[string]float64{"engagement": 100},
	}}
}

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestRunEmptyArtistList(t *testing.T) {
	r := &Runner{
		Source:  source.X,
		RunDate: "2026-08-25",
		Fetch: func(ctx context.Context, a source.Artist) source.Outcome {
			t.Fatal("fetch should not be called for an empty list")
			return source.Observations()
		},
	}
	res, err := r.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Observations) != 0 || len(res.Done) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestRunCollectsAllArtistsInOrder(t *testing.T) {
	var fetched []string
	r := &Runner{
		Source:  source.X,
		RunDate: "2026-08-25",
		Fetch: func(ctx context.Context, a source.Artist) source.Outcome {
			fetched = append(fetched, a.Name)
			return source.Observations(obsFor(a.Name))
		},
		Sleep: noSleep,
	}
	res, err := r.Run(context.Background(), testArtists("Alpha", "Beta", "Gamma"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Observations) != 3 {
		t.Errorf("expected 3 observations, got %d", len(res.Observations))
	}
	want := []string{"Alpha", "Beta", "Gamma"}
	for i, name := range want {
		if fetched[i] != name {
			t.Errorf("fetch order: expected %s at %d, got %s", name, i, fetched[i])
		}
	}
}

func TestHardFailureDoesNotBlockBatch(t *testing.T) {
	r := &Runner{
		Source:  source.X,
		RunDate: "2026-08-25",
		Fetch: func(ctx context.Context, a source.Artist) source.Outcome {
			if a.Name == "Beta" {
				return source.Failed(errors.New("user not found"))
			}
			return source.Observations(obsFor(a.Name))
		},
		Sleep: noSleep,
	}
	res, err := r.Run(context.Background(), testArtists("Alpha", "Beta", "Gamma"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Observations) != 2 {
		t.Errorf("expected 2 observations, got %d", len(res.Observations))
	}
	if len(res.Failed) != 1 || res.Failed[0] != "Beta" {
		t.Errorf("expected Beta failed, got %v", res.Failed)
	}
	if len(res.Done) != 3 {
		t.Errorf("expected all 3 artists done, got %v", res.Done)
	}
}

func TestAllArtistsHardFailIsStillSuccess(t *testing.T) {
	r := &Runner{
		Source:  source.X,
		RunDate: "2026-08-25",
		Fetch: func(ctx context.Context, a source.Artist) source.Outcome {
			return source.Failed(errors.New("revoked"))
		},
		Sleep: noSleep,
	}
	res, err := r.Run(context.Background(), testArtists("Alpha", "Beta"))
	if err != nil {
		t.Fatalf("expected success with empty result, got error: %v", err)
	}
	if len(res.Observations) != 0 {
		t.Errorf("expected no observations, got %d", len(res.Observations))
	}
	if len(res.Failed) != 2 {
		t.Errorf("expected 2 failures, got %v", res.Failed)
	}
}

func TestThrottleRetriesSameArtistOnce(t *testing.T) {
	throttled := false
	var slept []time.Duration
	r := &Runner{
		Source:   source.X,
		RunDate:  "2026-08-25",
		Cooldown: 15 * time.Minute,
		Fetch: func(ctx context.Context, a source.Artist) source.Outcome {
			if a.Name == "Beta" && !throttled {
				throttled = true
				return source.Throttled()
			}
			return source.Observations(obsFor(a.Name))
		},
		Sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}
	res, err := r.Run(context.Background(), testArtists("Alpha", "Beta", "Gamma"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Exactly one observation set for Beta: no duplication, no loss.
	betaCount := 0
	for _, o := range res.Observations {
		if o.Artist == "Beta" {
			betaCount++
		}
	}
	if betaCount != 1 {
		t.Errorf("expected exactly 1 observation for Beta, got %d", betaCount)
	}
	if len(res.Done) != 3 {
		t.Errorf("expected run to cover all artists, got %v", res.Done)
	}
	if res.ThrottleWaits != 1 {
		t.Errorf("expected 1 throttle wait, got %d", res.ThrottleWaits)
	}
	if len(slept) != 1 || slept[0] != 15*time.Minute {
		t.Errorf("expected one 15m cooldown, got %v", slept)
	}
}

func TestThrottlePreservesCollectedObservations(t *testing.T) {
	attempts := 0
	var flushedAtThrottle []source.Observation
	r := &Runner{
		Source:  source.X,
		RunDate: "2026-08-25",
		Fetch: func(ctx context.Context, a source.Artist) source.Outcome {
			if a.Name == "Beta" {
				attempts++
				if attempts < 3 {
					return source.Throttled()
				}
			}
			return source.Observations(obsFor(a.Name))
		},
		Flush: func(obs []source.Observation) error {
			flushedAtThrottle = append([]source.Observation(nil), obs...)
			return nil
		},
		Sleep: noSleep,
	}
	res, err := r.Run(context.Background(), testArtists("Alpha", "Beta"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Observations) != 2 {
		t.Errorf("expected 2 observations after repeated throttling, got %d", len(res.Observations))
	}
	// The flush that ran when the throttle hit must still contain Alpha.
	found := false
	for _, o := range flushedAtThrottle {
		if o.Artist == "Alpha" {
			found = true
		}
	}
	if !found {
		t.Error("cooldown flush dropped previously collected observations")
	}
}

func TestCheckpointResumption(t *testing.T) {
	store := NewMemoryCheckpoints()
	artists := testArtists("A1", "A2", "A3", "A4")

	// First invocation: stop (by failing infrastructure) after A2 by
	// simulating a crash — run a runner that only processes two artists.
	first := &Runner{
		Source: source.X, RunDate: "2026-08-25", Checkpoints: store,
		Fetch: func(ctx context.Context, a source.Artist) source.Outcome {
			return source.Observations(obsFor(a.Name))
		},
		Sleep: noSleep,
	}
	if _, err := first.Run(context.Background(), artists[:2]); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// Completed runs clear their checkpoints; re-mark to simulate an
	// interrupted run that stopped after A2.
	store.MarkDone("2026-08-25", "x", "A1")
	store.MarkDone("2026-08-25", "x", "A2")

	var fetched []string
	second := &Runner{
		Source: source.X, RunDate: "2026-08-25", Checkpoints: store,
		Fetch: func(ctx context.Context, a source.Artist) source.Outcome {
			fetched = append(fetched, a.Name)
			return source.Observations(obsFor(a.Name))
		},
		Sleep: noSleep,
	}
	res, err := second.Run(context.Background(), artists)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(fetched) != 2 || fetched[0] != "A3" || fetched[1] != "A4" {
		t.Errorf("expected resume at A3, fetched %v", fetched)
	}
	for _, o := range res.Observations {
		if o.Artist == "A1" || o.Artist == "A2" {
			t.Errorf("re-emitted observation for already-done artist %s", o.Artist)
		}
	}
	if res.Resumed != 2 {
		t.Errorf("expected 2 resumed artists, got %d", res.Resumed)
	}

	// Checkpoints are discarded once the batch completes.
	done, _ := store.DoneArtists("2026-08-25", "x")
	if len(done) != 0 {
		t.Errorf("expected checkpoints cleared after completion, got %v", done)
	}
}

func TestFlushAfterEverySuccess(t *testing.T) {
	flushes := 0
	r := &Runner{
		Source: source.X, RunDate: "2026-08-25",
		Fetch: func(ctx context.Context, a source.Artist) source.Outcome {
			return source.Observations(obsFor(a.Name))
		},
		Flush: func(obs []source.Observation) error {
			flushes++
			return nil
		},
		Sleep: noSleep,
	}
	if _, err := r.Run(context.Background(), testArtists("Alpha", "Beta", "Gamma")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if flushes != 3 {
		t.Errorf("expected a flush per successful artist, got %d", flushes)
	}
}

func TestCancelDuringCooldown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		Source: source.X, RunDate: "2026-08-25",
		Cooldown: time.Hour,
		Fetch: func(c context.Context, a source.Artist) source.Outcome {
			return source.Throttled()
		},
		Sleep: func(c context.Context, d time.Duration) error {
			cancel()
			return c.Err()
		},
	}
	_, err := r.Run(ctx, testArtists("Alpha"))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
