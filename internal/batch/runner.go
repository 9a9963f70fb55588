// Package batch drives checkpointed, throttle-tolerant collection of
// per-artist metrics from one rate-limited source.
//
// The runner walks an ordered worklist of artists, invoking a fetch
// function for each. A throttled outcome pauses the whole batch for the
// source's cooldown window and then retries the same artist; throttling
// is expected behavior for these sources, so there is no retry cap and
// it is never surfaced as an error. A permanent per-artist failure is
// recorded and skipped so one bad handle can never stall the batch.
// Progress is flushed after every successful artist, so a crash loses
// at most the in-flight artist.
package batch

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/signalindex/signalindex/internal/source"
)

// CheckpointStore persists which artists a run has already processed.
// The SQLite database implements it; NewMemoryCheckpoints gives a
// process-local fallback.
type CheckpointStore interface {
	MarkDone(runDate, source, artist string) error
	DoneArtists(runDate, source string) (map[string]bool, error)
	ClearCheckpoints(runDate, source string) error
}

// FlushFunc persists the observations accumulated so far. It is called
// after every successful artist and before every cooldown wait, always
// with the full result set collected by this invocation.
type FlushFunc func(obs []source.Observation) error

// Runner executes one source's batch.
type Runner struct {
	Source      source.Name
	RunDate     string // YYYY-MM-DD; scopes the checkpoint rows
	Fetch       source.FetchFunc
	Checkpoints CheckpointStore
	Flush       FlushFunc
	Pace        time.Duration // delay between consecutive successful calls
	Cooldown    time.Duration // wait after a throttle signal

	// Sleep performs the cooldown wait. Overridable in tests; defaults
	// to a context-aware timer wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Result summarizes one batch run. A run with hard-failed artists, or
// with no observations at all, is still a successful run; partial data
// is a normal outcome.
type Result struct {
	Observations  []source.Observation
	Done          []string // artists processed this invocation, in order
	Failed        []string // subset of Done that hard-failed
	Resumed       int      // artists skipped because a checkpoint covered them
	ThrottleWaits int
}

// Run processes the artist list in order. It returns an error only for
// infrastructure problems (checkpoint store failures, flush failures,
// context cancellation) — never for per-artist failures or throttling.
func (r *Runner) Run(ctx context.Context, artists []source.Artist) (*Result, error) {
	res := &Result{}
	if len(artists) == 0 {
		return res, nil
	}

	store := r.Checkpoints
	if store == nil {
		store = NewMemoryCheckpoints()
	}
	done, err := store.DoneArtists(r.RunDate, string(r.Source))
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}

	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var pacer *rate.Limiter
	if r.Pace > 0 {
		pacer = rate.NewLimiter(rate.Every(r.Pace), 1)
	}

	worklist := make([]source.Artist, 0, len(artists))
	for _, a := range artists {
		if done[a.Name] {
			res.Resumed++
			continue
		}
		worklist = append(worklist, a)
	}
	if res.Resumed > 0 {
		log.Printf("[%s] resuming: %d of %d artists already done", r.Source, res.Resumed, len(artists))
	}

	for _, artist := range worklist {
		for {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			outcome := r.Fetch(ctx, artist)
			switch outcome.Kind() {
			case source.KindThrottled:
				res.ThrottleWaits++
				if err := r.flush(res.Observations); err != nil {
					return nil, err
				}
				log.Printf("[%s] rate limit hit at %s; waiting %s before resuming",
					r.Source, artist.Name, r.Cooldown)
				if err := sleep(ctx, r.Cooldown); err != nil {
					return nil, err
				}
				continue // retry the same artist

			case source.KindFailed:
				log.Printf("[%s] %s failed permanently: %v", r.Source, artist.Name, outcome.Err())
				res.Failed = append(res.Failed, artist.Name)

			default:
				res.Observations = append(res.Observations, outcome.Records()...)
			}

			if err := store.MarkDone(r.RunDate, string(r.Source), artist.Name); err != nil {
				return nil, fmt.Errorf("checkpointing %s: %w", artist.Name, err)
			}
			res.Done = append(res.Done, artist.Name)

			if outcome.Kind() == source.KindObservations {
				if err := r.flush(res.Observations); err != nil {
					return nil, err
				}
				if pacer != nil {
					if err := pacer.Wait(ctx); err != nil {
						return nil, err
					}
				}
			}
			break
		}
	}

	if err := store.ClearCheckpoints(r.RunDate, string(r.Source)); err != nil {
		return nil, fmt.Errorf("clearing checkpoint: %w", err)
	}

	log.Printf("[%s] batch complete: %d done (%d failed), %d observations, %d throttle waits",
		r.Source, len(res.Done)+res.Resumed, len(res.Failed), len(res.Observations), res.ThrottleWaits)
	return res, nil
}

func (r *Runner) flush(obs []source.Observation) error {
	if r.Flush == nil {
		return nil
	}
	if err := r.Flush(obs); err != nil {
		return fmt.Errorf("flushing progress: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MemoryCheckpoints is a process-local CheckpointStore for runs that do
// not need to survive a restart.
type MemoryCheckpoints struct {
	done map[string]map[string]bool
}

// NewMemoryCheckpoints creates an empty in-memory checkpoint store.
func NewMemoryCheckpoints() *MemoryCheckpoints {
	return &MemoryCheckpoints{done: make(map[string]map[string]bool)}
}

func (m *MemoryCheckpoints) key(runDate, src string) string {
	return runDate + "/" + src
}

// MarkDone records an artist as processed.
func (m *MemoryCheckpoints) MarkDone(runDate, src, artist string) error {
	k := m.key(runDate, src)
	if m.done[k] == nil {
		m.done[k] = make(map[string]bool)
	}
	m.done[k][artist] = true
	return nil
}

// DoneArtists returns a copy of the processed set for a run.
func (m *MemoryCheckpoints) DoneArtists(runDate, src string) (map[string]bool, error) {
	out := make(map[string]bool, len(m.done[m.key(runDate, src)]))
	for artist := range m.done[m.key(runDate, src)] {
		out[artist] = true
	}
	return out, nil
}

// ClearCheckpoints discards a run's processed set.
func (m *MemoryCheckpoints) ClearCheckpoints(runDate, src string) error {
	delete(m.done, m.key(runDate, src))
	return nil
}
