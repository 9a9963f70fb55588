package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/signalindex/signalindex/internal/config"
	"github.com/signalindex/signalindex/internal/source"
)

const youtubeAPIBaseURL = "https://www.googleapis.com/youtube/v3"

// YouTubeClient fetches recent video statistics from the YouTube Data API.
type YouTubeClient struct {
	apiKey     string
	client     *http.Client
	baseURL    string
	windowDays int
	maxVideos  int
}

// NewYouTubeClient creates a YouTube collector from config; the API key
// comes from the environment.
func NewYouTubeClient(cfg config.YouTubeConfig) *YouTubeClient {
	return &YouTubeClient{
		apiKey:     os.Getenv(cfg.APIKeyEnv),
		client:     &http.Client{Timeout: 30 * time.Second},
		baseURL:    youtubeAPIBaseURL,
		windowDays: cfg.WindowDays,
		maxVideos:  cfg.MaxVideos,
	}
}

// Configured returns whether the API key is available.
func (c *YouTubeClient) Configured() bool {
	return c.apiKey != ""
}

// Fetch collects stats for an artist's most recent videos inside the
// trailing window. Only recent uploads count toward momentum; an old
// viral video says nothing about current influence. Quota exhaustion
// (HTTP 403) is treated as a throttle signal since the daily quota
// resets on its own.
func (c *YouTubeClient) Fetch(ctx context.Context, artist source.Artist) source.Outcome {
	channelID, ok := artist.Handle(source.YouTube)
	if !ok {
		return source.Observations()
	}

	publishedAfter := time.Now().AddDate(0, 0, -c.windowDays).UTC().Format(time.RFC3339)
	params := url.Values{
		"part":           {"id,snippet"},
		"channelId":      {channelID},
		"maxResults":     {strconv.Itoa(c.maxVideos)},
		"order":          {"date"},
		"type":           {"video"},
		"publishedAfter": {publishedAfter},
		"key":            {c.apiKey},
	}

	var search struct {
		Items []struct {
			ID struct {
				VideoID string `json:"videoId"`
			} `json:"id"`
		} `json:"items"`
	}
	if outcome, ok := c.get(ctx, c.baseURL+"/search?"+params.Encode(), &search); !ok {
		return outcome
	}

	var ids []string
	for _, item := range search.Items {
		if item.ID.VideoID != "" {
			ids = append(ids, item.ID.VideoID)
		}
	}
	if len(ids) == 0 {
		return source.Observations()
	}

	statsParams := url.Values{
		"part": {"statistics,snippet"},
		"id":   {strings.Join(ids, ",")},
		"key":  {c.apiKey},
	}
	var stats struct {
		Items []struct {
			ID      string `json:"id"`
			Snippet struct {
				Title       string `json:"title"`
				PublishedAt string `json:"publishedAt"`
			} `json:"snippet"`
			Statistics struct {
				ViewCount    string `json:"viewCount"`
				LikeCount    string `json:"likeCount"`
				CommentCount string `json:"commentCount"`
			} `json:"statistics"`
		} `json:"items"`
	}
	if outcome, ok := c.get(ctx, c.baseURL+"/videos?"+statsParams.Encode(), &stats); !ok {
		return outcome
	}

	today := time.Now().Format("2006-01-02")
	var obs []source.Observation
	for _, v := range stats.Items {
		title := v.Snippet.Title
		if len(title) > 100 {
			title = title[:100]
		}
		obs = append(obs, source.Observation{
			Artist:   artist.Name,
			Category: artist.Category,
			Source:   source.YouTube,
			Date:     today,
			Metrics: map[string]float64{
				"views":    parseCount(v.Statistics.ViewCount),
				"likes":    parseCount(v.Statistics.LikeCount),
				"comments": parseCount(v.Statistics.CommentCount),
			},
			Note: title,
		})
	}
	return source.Observations(obs)
}

func (c *YouTubeClient) get(ctx context.Context, endpoint string, v any) (source.Outcome, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return source.Failed(err), false
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return source.Failed(fmt.Errorf("youtube request: %w", err)), false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		// 403 here is almost always quotaExceeded on the free tier.
		return source.Throttled(), false
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		return source.Failed(fmt.Errorf("youtube API status %d", resp.StatusCode)), false
	case resp.StatusCode != http.StatusOK:
		return source.Failed(fmt.Errorf("youtube API status %d", resp.StatusCode)), false
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return source.Failed(fmt.Errorf("decoding youtube response: %w", err)), false
	}
	return source.Outcome{}, true
}

func parseCount(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
