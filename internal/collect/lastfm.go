package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/signalindex/signalindex/internal/config"
	"github.com/signalindex/signalindex/internal/source"
)

const lastfmBaseURL = "https://ws.audioscrobbler.com/2.0/"

// Last.fm error codes that mean the artist itself is the problem.
const (
	lastfmErrInvalidParams = 6
	lastfmErrRateLimited   = 29
)

// LastfmClient fetches listener and playcount figures from the
// Last.fm API.
type LastfmClient struct {
	apiKey  string
	client  *http.Client
	baseURL string
}

// NewLastfmClient creates a Last.fm collector from config.
func NewLastfmClient(cfg config.LastfmConfig) *LastfmClient {
	return &LastfmClient{
		apiKey:  os.Getenv(cfg.APIKeyEnv),
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: lastfmBaseURL,
	}
}

// Configured returns whether the API key is available.
func (c *LastfmClient) Configured() bool {
	return c.apiKey != ""
}

// Fetch collects one artist's audience stats.
func (c *LastfmClient) Fetch(ctx context.Context, artist source.Artist) source.Outcome {
	handle, ok := artist.Handle(source.Lastfm)
	if !ok {
		return source.Observations()
	}

	params := url.Values{
		"method":  {"artist.getinfo"},
		"artist":  {handle},
		"api_key": {c.apiKey},
		"format":  {"json"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return source.Failed(err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return source.Failed(fmt.Errorf("lastfm request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return source.Throttled()
	}

	var result struct {
		Error   int    `json:"error"`
		Message string `json:"message"`
		Artist  *struct {
			Stats struct {
				Listeners string `json:"listeners"`
				Playcount string `json:"playcount"`
			} `json:"stats"`
		} `json:"artist"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return source.Failed(fmt.Errorf("decoding lastfm response: %w", err))
	}

	switch {
	case result.Error == lastfmErrRateLimited:
		return source.Throttled()
	case result.Error == lastfmErrInvalidParams:
		return source.Failed(fmt.Errorf("lastfm: artist not found: %s", handle))
	case result.Error != 0:
		return source.Failed(fmt.Errorf("lastfm error %d: %s", result.Error, result.Message))
	case result.Artist == nil:
		return source.Failed(fmt.Errorf("lastfm: empty response for %s", handle))
	}

	listeners, _ := strconv.ParseFloat(result.Artist.Stats.Listeners, 64)
	playcount, _ := strconv.ParseFloat(result.Artist.Stats.Playcount, 64)

	return source.Observations([]source.Observation{{
		Artist:   artist.Name,
		Category: artist.Category,
		Source:   source.Lastfm,
		Date:     time.Now().Format("2006-01-02"),
		Metrics: map[string]float64{
			"listeners": listeners,
			"playcount": playcount,
		},
	}})
}
