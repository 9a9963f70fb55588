package collect

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/signalindex/signalindex/internal/config"
	"github.com/signalindex/signalindex/internal/source"
)

// salesEntryRe matches one chart entry in a Hanteo feed item body:
// a hashtagged artist name followed by a copies figure.
var salesEntryRe = regexp.MustCompile(`#([^\s#<]+)[^#\d]*?([\d,]+)\s*copies`)

// SalesClient reads album sales figures from the Hanteo daily chart RSS
// feed. The feed carries every charting artist in one item, so it is
// parsed once per run and matched against artists from memory.
type SalesClient struct {
	parser  *gofeed.Parser
	feedURL string

	feed    *gofeed.Feed
	feedErr error
	fetched bool
}

// NewSalesClient creates a sales collector from config.
func NewSalesClient(cfg config.SalesConfig) *SalesClient {
	return &SalesClient{
		parser:  gofeed.NewParser(),
		feedURL: cfg.FeedURL,
	}
}

// Configured returns whether a feed URL is set.
func (c *SalesClient) Configured() bool {
	return c.feedURL != ""
}

// Fetch looks the artist up in the most recent daily chart item. An
// artist missing from the chart simply sold too few copies to list, so
// that is a success with zero observations, not a failure.
func (c *SalesClient) Fetch(ctx context.Context, artist source.Artist) source.Outcome {
	item, err := c.latestDailyChart(ctx)
	if err != nil {
		return source.Failed(err)
	}
	if item == nil {
		return source.Failed(fmt.Errorf("sales feed has no daily chart item"))
	}

	name, _ := artist.Handle(source.Sales)
	copies, ok := findCopies(item.Description+" "+item.Content, name)
	if !ok {
		return source.Observations()
	}

	return source.Observations([]source.Observation{{
		Artist:   artist.Name,
		Category: artist.Category,
		Source:   source.Sales,
		Date:     time.Now().Format("2006-01-02"),
		Metrics:  map[string]float64{"copies": copies},
		Note:     item.Title,
	}})
}

// latestDailyChart parses the feed once and returns the newest item
// that looks like a daily album chart.
func (c *SalesClient) latestDailyChart(ctx context.Context) (*gofeed.Item, error) {
	if !c.fetched {
		c.feed, c.feedErr = c.parser.ParseURLWithContext(c.feedURL, ctx)
		if c.feedErr != nil {
			c.feedErr = fmt.Errorf("parsing sales feed: %w", c.feedErr)
		}
		c.fetched = true
	}
	if c.feedErr != nil {
		return nil, c.feedErr
	}

	for _, item := range c.feed.Items {
		title := strings.ToLower(item.Title)
		if strings.Contains(title, "album chart") && strings.Contains(title, "daily") {
			return item, nil
		}
	}
	return nil, nil
}

// findCopies scans a chart item body for the artist's entry and sums
// the copies figures attributed to them. Matching is on a normalized
// form of the name since hashtags drop spaces and punctuation.
func findCopies(body, artist string) (float64, bool) {
	want := normalizeName(artist)
	if want == "" {
		return 0, false
	}

	total := 0.0
	found := false
	for _, m := range salesEntryRe.FindAllStringSubmatch(body, -1) {
		if normalizeName(m[1]) != want {
			continue
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
		if err != nil {
			continue
		}
		total += v
		found = true
	}
	return total, found
}

// normalizeName lowercases a name and strips everything that a hashtag
// would drop.
func normalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
