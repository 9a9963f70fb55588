// Package report assembles the markdown run report: the current
// ranking table plus a collection summary per source. The dashboard
// renders it to HTML; the same text is also written next to the CSV
// tables for reading straight from the data directory.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/signalindex/signalindex/internal/database"
	"github.com/signalindex/signalindex/internal/score"
)

// FileName is the report file written into the data directory.
const FileName = "report.md"

// Build assembles the markdown report.
func Build(rows []score.Row, reports []database.RunReport, runDate string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Signal Index — %s\n\n", runDate)

	if len(rows) == 0 {
		b.WriteString("No artists ranked yet. Run a collection first.\n")
	} else {
		b.WriteString("## Ranking\n\n")
		b.WriteString("| # | Artist | Category | Composite | X | YouTube | Last.fm | Charts | Sales |\n")
		b.WriteString("|---|--------|----------|-----------|---|---------|---------|--------|-------|\n")
		for _, r := range rows {
			fmt.Fprintf(&b, "| %d | %s | %s | %.1f | %.1f | %.1f | %.1f | %.1f | %.1f |\n",
				r.Rank, r.Artist, r.Category, r.Composite,
				r.XScore, r.YouTubeScore, r.LastfmScore, r.ChartScore, r.SalesScore)
		}
		b.WriteString("\n")

		if leader := rows[0]; leader.Composite > 0 {
			fmt.Fprintf(&b, "**%s** leads with a composite of %.1f", leader.Artist, leader.Composite)
			if leader.BestChartPosition > 0 {
				fmt.Fprintf(&b, ", charting as high as #%d", leader.BestChartPosition)
			}
			b.WriteString(".\n\n")
		}
	}

	if len(reports) > 0 {
		b.WriteString("## Collection\n\n")
		b.WriteString("| Source | Artists | Failed | Observations | Throttle waits | Finished |\n")
		b.WriteString("|--------|---------|--------|--------------|----------------|----------|\n")
		for _, r := range reports {
			fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %s |\n",
				r.Source, r.ArtistsDone, r.ArtistsFailed, r.Observations, r.ThrottleWaits, r.FinishedAt)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// Save writes the report into the data directory via a temp file and
// rename, matching how the CSV tables are replaced.
func Save(dataDir, content string) error {
	path := filepath.Join(dataDir, FileName)
	tmp, err := os.CreateTemp(dataDir, FileName+".tmp")
	if err != nil {
		return fmt.Errorf("creating temp report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("writing report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing report: %w", err)
	}
	return nil
}

// Load reads the saved report; a missing report reads as empty.
func Load(dataDir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, FileName))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}
