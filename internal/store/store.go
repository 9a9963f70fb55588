// Package store reads and writes the flat tabular result files: one
// observation table per source plus the final rankings table. The files
// are plain CSV so they stay inspectable with any spreadsheet tool.
//
// Every write replaces the whole table via a temp file and rename, so a
// concurrent reader sees either the previous complete file or the next
// complete file, never a half-written one.
package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/signalindex/signalindex/internal/score"
	"github.com/signalindex/signalindex/internal/source"
)

// metricColumns fixes the column layout of each source's table.
var metricColumns = map[source.Name][]string{
	source.X:       {"engagement", "likes", "reposts", "replies", "followers", "product_mention"},
	source.YouTube: {"views", "likes", "comments"},
	source.Lastfm:  {"listeners", "playcount"},
	source.Charts:  {"spotify_position", "billboard_hot100", "billboard_200", "melon_position"},
	source.Sales:   {"copies"},
}

// Store manages the result files under one data directory.
type Store struct {
	dir string
}

// New creates a store rooted at dir, creating it if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

// ObservationPath returns the table file for one source.
func (s *Store) ObservationPath(src source.Name) string {
	return filepath.Join(s.dir, string(src)+"_data.csv")
}

// RankingsPath returns the ranked-output table file.
func (s *Store) RankingsPath() string {
	return filepath.Join(s.dir, "rankings.csv")
}

// WriteObservations replaces one source's observation table.
func (s *Store) WriteObservations(src source.Name, obs []source.Observation) error {
	cols, ok := metricColumns[src]
	if !ok {
		return fmt.Errorf("unknown source %q", src)
	}

	header := append([]string{"artist", "category", "date"}, cols...)
	header = append(header, "note")

	records := [][]string{header}
	for _, o := range obs {
		row := []string{o.Artist, o.Category, o.Date}
		for _, c := range cols {
			v, present := o.Metrics[c]
			if !present {
				row = append(row, "")
				continue
			}
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		row = append(row, o.Note)
		records = append(records, row)
	}

	return s.replace(s.ObservationPath(src), records)
}

// ReadObservations loads one source's observation table. A missing
// table reads as empty; partial data is a normal state, not an error.
func (s *Store) ReadObservations(src source.Name) ([]source.Observation, error) {
	records, err := readCSV(s.ObservationPath(src))
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	var obs []source.Observation
	for _, row := range records[1:] {
		if len(row) != len(header) {
			continue
		}
		o := source.Observation{Source: src, Metrics: map[string]float64{}}
		for i, col := range header {
			switch col {
			case "artist":
				o.Artist = row[i]
			case "category":
				o.Category = row[i]
			case "date":
				o.Date = row[i]
			case "note":
				o.Note = row[i]
			default:
				if row[i] == "" {
					continue
				}
				v, err := strconv.ParseFloat(row[i], 64)
				if err != nil {
					continue
				}
				o.Metrics[col] = v
			}
		}
		if o.Artist == "" {
			continue
		}
		obs = append(obs, o)
	}
	return obs, nil
}

// ReadAllObservations loads every source table into scoring input.
func (s *Store) ReadAllObservations() (score.Tables, error) {
	tables := score.Tables{}
	for _, src := range source.All {
		obs, err := s.ReadObservations(src)
		if err != nil {
			return nil, err
		}
		if len(obs) > 0 {
			tables[src] = obs
		}
	}
	return tables, nil
}

var rankingsHeader = []string{
	"rank", "artist", "category", "signal_score",
	"x_score", "youtube_score", "lastfm_score", "chart_score", "sales_score",
	"engagement_rate", "youtube_views", "lastfm_listeners", "sales_copies",
	"chart_position", "product_mentions", "date",
}

// WriteRankings replaces the ranked-output table.
func (s *Store) WriteRankings(rows []score.Row, date string) error {
	records := [][]string{rankingsHeader}
	for _, r := range rows {
		chartPos := ""
		if r.BestChartPosition > 0 {
			chartPos = strconv.Itoa(r.BestChartPosition)
		}
		records = append(records, []string{
			strconv.Itoa(r.Rank),
			r.Artist,
			r.Category,
			formatFloat(r.Composite),
			formatFloat(r.XScore),
			formatFloat(r.YouTubeScore),
			formatFloat(r.LastfmScore),
			formatFloat(r.ChartScore),
			formatFloat(r.SalesScore),
			formatFloat(r.EngagementRate),
			formatFloat(r.YouTubeViews),
			formatFloat(r.LastfmListeners),
			formatFloat(r.SalesCopies),
			chartPos,
			strconv.Itoa(r.ProductMentions),
			date,
		})
	}
	return s.replace(s.RankingsPath(), records)
}

// ReadRankings loads the ranked-output table. Missing file reads as empty.
func (s *Store) ReadRankings() ([]score.Row, error) {
	records, err := readCSV(s.RankingsPath())
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, nil
	}

	var rows []score.Row
	for _, rec := range records[1:] {
		if len(rec) != len(rankingsHeader) {
			continue
		}
		var r score.Row
		r.Rank, _ = strconv.Atoi(rec[0])
		r.Artist = rec[1]
		r.Category = rec[2]
		r.Composite = parseFloat(rec[3])
		r.XScore = parseFloat(rec[4])
		r.YouTubeScore = parseFloat(rec[5])
		r.LastfmScore = parseFloat(rec[6])
		r.ChartScore = parseFloat(rec[7])
		r.SalesScore = parseFloat(rec[8])
		r.EngagementRate = parseFloat(rec[9])
		r.YouTubeViews = parseFloat(rec[10])
		r.LastfmListeners = parseFloat(rec[11])
		r.SalesCopies = parseFloat(rec[12])
		r.BestChartPosition, _ = strconv.Atoi(rec[13])
		r.ProductMentions, _ = strconv.Atoi(rec[14])
		rows = append(rows, r)
	}
	return rows, nil
}

// replace writes records to path atomically: temp file in the same
// directory, then rename over the target.
func (s *Store) replace(path string, records [][]string) error {
	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(records); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
