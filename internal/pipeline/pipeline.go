// Package pipeline orchestrates a full collection-and-scoring run:
// one checkpointed batch per enabled source, then the scoring pass and
// the rankings rewrite. Per-source problems are recorded on the step
// and never abort the run; a source being down is a data gap, not a
// pipeline failure.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/signalindex/signalindex/internal/batch"
	"github.com/signalindex/signalindex/internal/collect"
	"github.com/signalindex/signalindex/internal/config"
	"github.com/signalindex/signalindex/internal/database"
	"github.com/signalindex/signalindex/internal/registry"
	"github.com/signalindex/signalindex/internal/report"
	"github.com/signalindex/signalindex/internal/score"
	"github.com/signalindex/signalindex/internal/source"
	"github.com/signalindex/signalindex/internal/store"
)

// StepResult holds the result of a single pipeline step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// Result holds the results of a full pipeline run.
type Result struct {
	RunDate string
	Steps   []StepResult
}

// Pipeline runs collection batches and scoring against one data
// directory.
type Pipeline struct {
	cfg *config.Config
	db  *database.DB
	reg *registry.Registry
	st  *store.Store

	// Collectors overrides the per-source clients; tests inject stubs
	// here. Leave nil for the real clients.
	Collectors map[source.Name]collect.Collector
}

// New creates a pipeline.
func New(cfg *config.Config, db *database.DB, reg *registry.Registry, st *store.Store) *Pipeline {
	return &Pipeline{cfg: cfg, db: db, reg: reg, st: st}
}

// Run executes every enabled source batch, then scores and rewrites the
// rankings table.
func (p *Pipeline) Run(ctx context.Context) *Result {
	runDate := database.Today()
	r := &Result{RunDate: runDate}

	// Checkpoints from abandoned earlier run dates are dead; a resumed
	// run only ever continues the same day's batches.
	if err := p.db.PruneCheckpoints(runDate); err != nil {
		log.Printf("pruning stale checkpoints: %v", err)
	}

	total := len(source.All) + 2
	for i, src := range source.All {
		log.Printf("Step %d/%d: collecting %s...", i+1, total, src)
		r.Steps = append(r.Steps, p.CollectSource(ctx, src, runDate))
	}

	log.Printf("Step %d/%d: scoring...", total-1, total)
	r.Steps = append(r.Steps, p.Score(runDate))

	log.Printf("Step %d/%d: writing report...", total, total)
	r.Steps = append(r.Steps, p.Report(runDate))
	return r
}

// CollectSource runs one source's checkpointed batch and records a run
// report. Disabled and unconfigured sources are skipped, not failed.
func (p *Pipeline) CollectSource(ctx context.Context, src source.Name, runDate string) StepResult {
	name := "Collect " + string(src)

	settings := p.settingsFor(src)
	if !settings.enabled {
		return StepResult{Name: name, Summary: "skipped: disabled in config"}
	}
	client := p.collector(src)
	if !client.Configured() {
		return StepResult{Name: name, Summary: "skipped: credentials not configured"}
	}

	artists := p.reg.Active()

	// Rows already collected under this run date survive the table
	// rewrite; a resumed run must not drop the artists it is skipping.
	carried, err := p.carriedObservations(src, runDate)
	if err != nil {
		return StepResult{Name: name, Err: err}
	}

	runner := &batch.Runner{
		Source:      src,
		RunDate:     runDate,
		Fetch:       client.Fetch,
		Checkpoints: p.db,
		Pace:        settings.pace,
		Cooldown:    settings.cooldown,
		Flush: func(obs []source.Observation) error {
			return p.st.WriteObservations(src, append(carried[:len(carried):len(carried)], obs...))
		},
	}

	res, err := runner.Run(ctx, artists)
	if err != nil {
		return StepResult{Name: name, Err: err}
	}

	if _, err := p.db.InsertRunReport(database.RunReport{
		RunDate:       runDate,
		Source:        string(src),
		ArtistsDone:   len(res.Done) + res.Resumed,
		ArtistsFailed: len(res.Failed),
		Observations:  len(carried) + len(res.Observations),
		ThrottleWaits: res.ThrottleWaits,
	}); err != nil {
		log.Printf("[%s] recording run report: %v", src, err)
	}

	return StepResult{
		Name: name,
		Summary: fmt.Sprintf("%d artists (%d failed, %d resumed), %d observations, %d throttle waits",
			len(res.Done)+res.Resumed, len(res.Failed), res.Resumed,
			len(carried)+len(res.Observations), res.ThrottleWaits),
	}
}

// Score recomputes the composite ranking from every stored observation
// table and atomically rewrites rankings.csv.
func (p *Pipeline) Score(runDate string) StepResult {
	tables, err := p.st.ReadAllObservations()
	if err != nil {
		return StepResult{Name: "Score", Err: err}
	}

	rows := score.Rank(tables, p.reg.Active(), p.cfg.Scoring)
	if err := p.st.WriteRankings(rows, runDate); err != nil {
		return StepResult{Name: "Score", Err: err}
	}

	return StepResult{
		Name:    "Score",
		Summary: fmt.Sprintf("ranked %d artists from %d source tables", len(rows), len(tables)),
	}
}

// Report rebuilds the markdown run report from the current rankings
// and the run date's collection reports.
func (p *Pipeline) Report(runDate string) StepResult {
	rows, err := p.st.ReadRankings()
	if err != nil {
		return StepResult{Name: "Report", Err: err}
	}
	reports, err := p.db.RunReportsForDate(runDate)
	if err != nil {
		return StepResult{Name: "Report", Err: err}
	}
	if err := report.Save(p.st.Dir(), report.Build(rows, reports, runDate)); err != nil {
		return StepResult{Name: "Report", Err: err}
	}
	return StepResult{
		Name:    "Report",
		Summary: fmt.Sprintf("wrote %s covering %d ranked artists", report.FileName, len(rows)),
	}
}

// DryRun reports what a run would do without touching any source.
func (p *Pipeline) DryRun() *Result {
	runDate := database.Today()
	r := &Result{RunDate: runDate}
	artists := p.reg.Active()

	for _, src := range source.All {
		name := "Collect " + string(src)
		settings := p.settingsFor(src)
		if !settings.enabled {
			r.Steps = append(r.Steps, StepResult{Name: name, Summary: "[dry-run] disabled in config"})
			continue
		}
		if !p.collector(src).Configured() {
			r.Steps = append(r.Steps, StepResult{Name: name, Summary: "[dry-run] credentials not configured"})
			continue
		}
		done, _ := p.db.DoneArtists(runDate, string(src))
		r.Steps = append(r.Steps, StepResult{
			Name:    name,
			Summary: fmt.Sprintf("[dry-run] %d artists to collect, %d already checkpointed", len(artists)-len(done), len(done)),
		})
	}

	tables, _ := p.st.ReadAllObservations()
	r.Steps = append(r.Steps, StepResult{
		Name:    "Score",
		Summary: fmt.Sprintf("[dry-run] would rank from %d populated source tables", len(tables)),
	})
	r.Steps = append(r.Steps, StepResult{
		Name:    "Report",
		Summary: "[dry-run] would rewrite " + report.FileName,
	})
	return r
}

// carriedObservations returns the stored rows that belong to artists
// already checkpointed under this run date.
func (p *Pipeline) carriedObservations(src source.Name, runDate string) ([]source.Observation, error) {
	done, err := p.db.DoneArtists(runDate, string(src))
	if err != nil {
		return nil, fmt.Errorf("loading checkpoint: %w", err)
	}
	if len(done) == 0 {
		return nil, nil
	}

	prior, err := p.st.ReadObservations(src)
	if err != nil {
		return nil, fmt.Errorf("reading prior observations: %w", err)
	}
	var carried []source.Observation
	for _, o := range prior {
		if done[o.Artist] {
			carried = append(carried, o)
		}
	}
	return carried, nil
}

func (p *Pipeline) collector(src source.Name) collect.Collector {
	if c, ok := p.Collectors[src]; ok {
		return c
	}
	switch src {
	case source.X:
		return collect.NewXClient(p.cfg.Sources.X)
	case source.YouTube:
		return collect.NewYouTubeClient(p.cfg.Sources.YouTube)
	case source.Lastfm:
		return collect.NewLastfmClient(p.cfg.Sources.Lastfm)
	case source.Charts:
		return collect.NewChartsClient()
	default:
		return collect.NewSalesClient(p.cfg.Sources.Sales)
	}
}

type sourceSettings struct {
	enabled  bool
	pace     time.Duration
	cooldown time.Duration
}

func (p *Pipeline) settingsFor(src source.Name) sourceSettings {
	s := p.cfg.Sources
	switch src {
	case source.X:
		return sourceSettings{s.X.Enabled, s.X.Pace, s.X.Cooldown}
	case source.YouTube:
		return sourceSettings{s.YouTube.Enabled, s.YouTube.Pace, s.YouTube.Cooldown}
	case source.Lastfm:
		return sourceSettings{s.Lastfm.Enabled, s.Lastfm.Pace, s.Lastfm.Cooldown}
	case source.Charts:
		return sourceSettings{s.Charts.Enabled, s.Charts.Pace, s.Charts.Cooldown}
	default:
		return sourceSettings{enabled: s.Sales.Enabled}
	}
}
