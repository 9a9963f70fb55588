package collect

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/signalindex/signalindex/internal/source"
)

const chartsUserAgent = "signalindex/1.0 (chart tracker)"

// errChartThrottled marks a scrape rejected for sending too many
// requests; it pauses the whole charts batch.
var errChartThrottled = errors.New("chart source throttled")

// ChartsClient scrapes chart positions from public chart pages:
// Kworb (Spotify aggregate), Billboard Hot 100, Billboard 200, and
// Melon. Chart pages list every position, so each page is fetched once
// per run and served from cache for the remaining artists.
type ChartsClient struct {
	client *http.Client
	cache  map[string]*goquery.Document

	// Page URLs are fields so tests can point them at local servers.
	KworbURL  string
	Hot100URL string
	BB200URL  string
	MelonURL  string
}

// NewChartsClient creates a chart scraper with the default page URLs.
func NewChartsClient() *ChartsClient {
	return &ChartsClient{
		client:    &http.Client{Timeout: 15 * time.Second},
		cache:     make(map[string]*goquery.Document),
		KworbURL:  "https://kworb.net/spotify/artists.html",
		Hot100URL: "https://www.billboard.com/charts/hot-100/",
		BB200URL:  "https://www.billboard.com/charts/billboard-200/",
		MelonURL:  "https://www.melon.com/chart/index.htm",
	}
}

// Configured is always true: chart pages need no credentials.
func (c *ChartsClient) Configured() bool { return true }

// Fetch looks the artist up on every chart. A single chart page failing
// leaves the other charts' positions intact; the artist still gets an
// observation row so "checked but not charting" is distinguishable from
// "never collected".
func (c *ChartsClient) Fetch(ctx context.Context, artist source.Artist) source.Outcome {
	metrics := map[string]float64{}

	charts := []struct {
		metric   string
		url      string
		scrape   func(*goquery.Document, string) (int, bool)
		kpopOnly bool
	}{
		{"spotify_position", c.KworbURL, scrapeKworb, false},
		{"billboard_hot100", c.Hot100URL, scrapeBillboard, false},
		{"billboard_200", c.BB200URL, scrapeBillboard, false},
		{"melon_position", c.MelonURL, scrapeMelon, true},
	}

	for _, chart := range charts {
		if chart.kpopOnly && artist.Category != "K-pop" {
			continue
		}
		doc, err := c.page(ctx, chart.url)
		if errors.Is(err, errChartThrottled) {
			return source.Throttled()
		}
		if err != nil {
			log.Printf("charts: %s unavailable: %v", chart.metric, err)
			continue
		}
		if pos, ok := chart.scrape(doc, artist.Name); ok {
			metrics[chart.metric] = float64(pos)
		}
	}

	return source.Observations([]source.Observation{{
		Artist:   artist.Name,
		Category: artist.Category,
		Source:   source.Charts,
		Date:     time.Now().Format("2006-01-02"),
		Metrics:  metrics,
	}})
}

// page fetches and parses a chart page, caching the document for the
// rest of the run.
func (c *ChartsClient) page(ctx context.Context, pageURL string) (*goquery.Document, error) {
	if doc, ok := c.cache[pageURL]; ok {
		return doc, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", chartsUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errChartThrottled
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", pageURL, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", pageURL, err)
	}
	c.cache[pageURL] = doc
	return doc, nil
}

// scrapeKworb finds an artist in Kworb's Spotify artists table. The
// first cell is the position, the second the artist name.
func scrapeKworb(doc *goquery.Document, artist string) (int, bool) {
	needle := strings.ToLower(artist)
	position := 0
	found := false

	doc.Find("table tr").EachWithBreak(func(i int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return true // header row
		}
		name := strings.ToLower(strings.TrimSpace(cells.Eq(1).Text()))
		if !strings.Contains(name, needle) {
			return true
		}
		pos, err := strconv.Atoi(strings.ReplaceAll(strings.TrimSpace(cells.Eq(0).Text()), ",", ""))
		if err != nil {
			return true
		}
		position = pos
		found = true
		return false
	})
	return position, found
}

// scrapeBillboard finds an artist on a Billboard chart page. Chart
// entries are list items in rank order; the artist name sits in a
// c-label span.
func scrapeBillboard(doc *goquery.Document, artist string) (int, bool) {
	needle := strings.ToLower(artist)
	position := 0
	found := false

	doc.Find("li.o-chart-results-list__item").EachWithBreak(func(i int, item *goquery.Selection) bool {
		item.Find("span.c-label").EachWithBreak(func(j int, label *goquery.Selection) bool {
			if strings.Contains(strings.ToLower(strings.TrimSpace(label.Text())), needle) {
				position = i + 1
				found = true
				return false
			}
			return true
		})
		return !found
	})
	return position, found
}

// scrapeMelon finds an artist on the Melon realtime chart. Rows carry
// the rank in a span.rank and the artist in the rank02 block.
func scrapeMelon(doc *goquery.Document, artist string) (int, bool) {
	needle := strings.ToLower(artist)
	position := 0
	found := false

	doc.Find("tr.lst50, tr.lst100").EachWithBreak(func(i int, row *goquery.Selection) bool {
		name := strings.ToLower(strings.TrimSpace(row.Find("div.ellipsis.rank02").Text()))
		if !strings.Contains(name, needle) {
			return true
		}
		rank, err := strconv.Atoi(strings.TrimSpace(row.Find("span.rank").First().Text()))
		if err != nil {
			return true
		}
		position = rank
		found = true
		return false
	})
	return position, found
}
