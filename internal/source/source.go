package source

import "context"

// Name identifies one external metric source.
type Name string

const (
	X       Name = "x"
	YouTube Name = "youtube"
	Lastfm  Name = "lastfm"
	Charts  Name = "charts"
	Sales   Name = "sales"
)

// All lists every known source in pipeline order.
var All = []Name{X, YouTube, Lastfm, Charts, Sales}

// Observation is one normalized metric record pulled from one source for
// one artist. Observations are immutable once written; later collection
// runs replace the whole table rather than patching rows.
type Observation struct {
	Artist   string
	Category string
	Source   Name
	Date     string // YYYY-MM-DD collection date
	Metrics  map[string]float64
	Note     string // short free-text context (post preview, video title)
}

// Metric returns a named metric value, or 0 if absent.
func (o Observation) Metric(key string) float64 {
	return o.Metrics[key]
}

// OutcomeKind distinguishes the three results a fetch can produce.
type OutcomeKind int

const (
	// KindObservations means the fetch succeeded (possibly with zero records).
	KindObservations OutcomeKind = iota
	// KindThrottled means the source reported the request budget is exhausted.
	KindThrottled
	// KindFailed means this artist permanently failed (bad handle, not found).
	KindFailed
)

// Outcome is the tagged result of one per-artist fetch. Modeling the
// throttle signal as a value instead of an error keeps the batch runner
// a plain state machine over three cases.
type Outcome struct {
	kind OutcomeKind
	obs  []Observation
	err  error
}

// Observations wraps a successful fetch result.
func Observations(obs ...[]Observation) Outcome {
	var all []Observation
	for _, o := range obs {
		all = append(all, o...)
	}
	return Outcome{kind: KindObservations, obs: all}
}

// Throttled signals the caller must back off and retry later.
func Throttled() Outcome {
	return Outcome{kind: KindThrottled}
}

// Failed records a permanent per-artist failure.
func Failed(err error) Outcome {
	return Outcome{kind: KindFailed, err: err}
}

// Kind returns the outcome variant.
func (o Outcome) Kind() OutcomeKind { return o.kind }

// Records returns the collected observations for a successful outcome.
func (o Outcome) Records() []Observation { return o.obs }

// Err returns the failure cause for a failed outcome.
func (o Outcome) Err() error { return o.err }

// FetchFunc is the per-source collector contract: one artist in, a
// tagged outcome out. The concrete wire format of each external API is
// the collector's business.
type FetchFunc func(ctx context.Context, artist Artist) Outcome

// Artist is one tracked entity from the registry, as seen by collectors.
type Artist struct {
	Name     string
	Category string
	Handles  map[Name]string
	Active   bool
}

// Handle returns the artist's identifier on a source, and whether one
// is configured. An absent handle means the source skips this artist.
func (a Artist) Handle(s Name) (string, bool) {
	h, ok := a.Handles[s]
	if !ok || h == "" {
		return "", false
	}
	return h, true
}
