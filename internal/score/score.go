// Package score turns heterogeneous per-source observations into one
// comparable 0-100 composite per artist and ranks them.
package score

import (
	"log"
	"math"
	"sort"

	"github.com/signalindex/signalindex/internal/config"
	"github.com/signalindex/signalindex/internal/source"
)

// Row is one artist's final ranking entry.
type Row struct {
	Rank      int
	Artist    string
	Category  string
	Composite float64

	// Per-source sub-scores on the 0-100 scale.
	XScore       float64
	YouTubeScore float64
	LastfmScore  float64
	ChartScore   float64
	SalesScore   float64

	// Display extras carried alongside the scores.
	EngagementRate    float64 // percent of followers per post
	YouTubeViews      float64
	LastfmListeners   float64
	SalesCopies       float64
	BestChartPosition int // 0 means not charting anywhere
	ProductMentions   int
}

// Tables holds the per-source observation sets for one scoring run.
type Tables map[source.Name][]source.Observation

// Rank computes composites for every artist with at least one
// observation and returns them ranked descending. Artists with zero
// observations anywhere are omitted entirely — "scored 0" and "not
// ranked" are different things.
//
// The scoring policy is passed in as a value: two calls with the same
// tables and the same policy produce identical output.
//
// Missing-source policy: a source with no observations for an artist
// contributes weight x 0. Weights are never renormalized over present
// sources; an artist strong only on a low-weighted source ranks low on
// purpose, and historical rankings depend on that.
func Rank(tables Tables, registryOrder []source.Artist, policy config.Scoring) []Row {
	byArtist := groupByArtist(tables)

	// Scoring order: registry order first, then artists that appear
	// only in observation tables, in table order. Exact composite ties
	// keep this order (stable sort below).
	order := make([]string, 0, len(byArtist))
	seen := make(map[string]bool, len(byArtist))
	for _, a := range registryOrder {
		if _, ok := byArtist[a.Name]; ok && !seen[a.Name] {
			order = append(order, a.Name)
			seen[a.Name] = true
		}
	}
	for _, s := range source.All {
		for _, o := range tables[s] {
			if _, ok := byArtist[o.Artist]; ok && !seen[o.Artist] {
				order = append(order, o.Artist)
				seen[o.Artist] = true
			}
		}
	}

	w := policy.Weights
	rows := make([]Row, 0, len(order))
	for _, name := range order {
		obs := byArtist[name]
		row := Row{Artist: name, Category: category(obs)}

		row.XScore, row.EngagementRate, row.ProductMentions = engagementScore(obs[source.X], policy.Ceilings.EngagementRate)
		row.YouTubeScore, row.YouTubeViews = volumeScore(obs[source.YouTube], "views", policy.Ceilings.YouTubeViews)
		row.LastfmScore, row.LastfmListeners = audienceScore(obs[source.Lastfm], "listeners", policy.Ceilings.LastfmListeners)
		row.SalesScore, row.SalesCopies = volumeScore(obs[source.Sales], "copies", policy.Ceilings.SalesCopies)
		row.ChartScore, row.BestChartPosition = chartScore(obs[source.Charts], row.Category)

		row.Composite = w.X*row.XScore +
			w.YouTube*row.YouTubeScore +
			w.Lastfm*row.LastfmScore +
			w.Charts*row.ChartScore +
			w.Sales*row.SalesScore
		row.Composite = round1(row.Composite)

		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Composite > rows[j].Composite
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}

	log.Printf("scored %d artists across %d sources", len(rows), len(tables))
	return rows
}

// groupByArtist splits each table's observations per (artist, source).
func groupByArtist(tables Tables) map[string]map[source.Name][]source.Observation {
	out := make(map[string]map[source.Name][]source.Observation)
	for s, obs := range tables {
		for _, o := range obs {
			if o.Artist == "" {
				continue
			}
			if out[o.Artist] == nil {
				out[o.Artist] = make(map[source.Name][]source.Observation)
			}
			out[o.Artist][s] = append(out[o.Artist][s], o)
		}
	}
	return out
}

func category(obs map[source.Name][]source.Observation) string {
	for _, s := range source.All {
		for _, o := range obs[s] {
			if o.Category != "" {
				return o.Category
			}
		}
	}
	return "Other"
}

// engagementScore converts X observations into a 0-100 sub-score:
// mean engagement per post divided by follower count, scaled so that
// ceilRate percent maps to 100, clamped at 100. Averaging per post
// keeps a crash-resumed run's duplicate posts from inflating the score.
// Zero audience data yields 0, never an error.
func engagementScore(obs []source.Observation, ceilRate float64) (sub, rate float64, mentions int) {
	if len(obs) == 0 {
		return 0, 0, 0
	}
	var engagement, followers float64
	for _, o := range obs {
		engagement += o.Metric("engagement")
		if f := o.Metric("followers"); f > followers {
			followers = f
		}
		if o.Metric("product_mention") > 0 {
			mentions++
		}
	}
	if followers <= 0 {
		return 0, 0, mentions
	}
	meanEngagement := engagement / float64(len(obs))
	rate = meanEngagement / followers * 100
	return clamp(rate*100/ceilRate, 0, 100), round3(rate), mentions
}

// volumeScore sums a metric across all observations and scales it so
// that ceiling maps to 100, clamped at 100.
func volumeScore(obs []source.Observation, metric string, ceiling float64) (sub, total float64) {
	for _, o := range obs {
		total += o.Metric(metric)
	}
	if total <= 0 {
		return 0, total
	}
	return clamp(total*100/ceiling, 0, 100), total
}

// audienceScore scales the largest seen value of a point-in-time
// audience metric (summing would double-count a re-collected artist).
func audienceScore(obs []source.Observation, metric string, ceiling float64) (sub, value float64) {
	for _, o := range obs {
		if v := o.Metric(metric); v > value {
			value = v
		}
	}
	if value <= 0 {
		return 0, value
	}
	return clamp(value*100/ceiling, 0, 100), value
}

// Chart sub-source weighting. Melon only counts for K-pop artists; the
// weights are renormalized over the charts an artist actually appears
// on. This renormalization is internal to the chart sub-score — the
// top-level composite weights are never renormalized.
var chartCharts = []struct {
	metric      string
	weight      float64
	maxPosition int
	kpopOnly    bool
}{
	{"spotify_position", 0.40, 200, false},
	{"billboard_hot100", 0.30, 100, false},
	{"billboard_200", 0.15, 200, false},
	{"melon_position", 0.15, 100, true},
}

func chartScore(obs []source.Observation, artistCategory string) (sub float64, best int) {
	if len(obs) == 0 {
		return 0, 0
	}

	// Best (minimum) position per chart across observations; a
	// re-collected artist keeps its strongest showing.
	positions := make(map[string]int)
	for _, o := range obs {
		for _, c := range chartCharts {
			p := int(o.Metric(c.metric))
			if p <= 0 {
				continue
			}
			if cur, ok := positions[c.metric]; !ok || p < cur {
				positions[c.metric] = p
			}
		}
	}

	var weightSum, scoreSum float64
	for _, c := range chartCharts {
		if c.kpopOnly && artistCategory != "K-pop" {
			continue
		}
		p, ok := positions[c.metric]
		if !ok {
			continue
		}
		s := positionToScore(p, c.maxPosition)
		if s <= 0 {
			continue
		}
		weightSum += c.weight
		scoreSum += c.weight * s
		if best == 0 || p < best {
			best = p
		}
	}
	if weightSum == 0 {
		return 0, best
	}
	return clamp(scoreSum/weightSum, 0, 100), best
}

// positionToScore maps chart position 1 to 100 and position p to
// 100-(p-1), floored at 0. Positions beyond the chart's length score 0.
func positionToScore(position, maxPosition int) float64 {
	if position <= 0 || position > maxPosition {
		return 0
	}
	return clamp(float64(100-(position-1)), 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
