package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/signalindex/signalindex/internal/config"
	"github.com/signalindex/signalindex/internal/source"
)

const xAPIBaseURL = "https://api.twitter.com/2"

// XClient fetches recent posts and engagement metrics from the X API.
type XClient struct {
	token    string
	client   *http.Client
	baseURL  string
	maxPosts int
	keywords []string
}

// NewXClient creates an X collector from config; the bearer token comes
// from the environment.
func NewXClient(cfg config.XConfig) *XClient {
	return &XClient{
		token:    os.Getenv(cfg.BearerTokenEnv),
		client:   &http.Client{Timeout: 30 * time.Second},
		baseURL:  xAPIBaseURL,
		maxPosts: cfg.MaxPosts,
		keywords: cfg.ProductKeywords,
	}
}

// Configured returns whether the bearer token is available.
func (c *XClient) Configured() bool {
	return c.token != ""
}

// Fetch collects one artist's recent posts. An absent handle skips the
// artist (success with zero observations); HTTP 429 is a throttle
// signal; a missing or suspended account is a permanent failure.
func (c *XClient) Fetch(ctx context.Context, artist source.Artist) source.Outcome {
	handle, ok := artist.Handle(source.X)
	if !ok {
		return source.Observations()
	}

	user, outcome := c.lookupUser(ctx, handle)
	if user == nil {
		return outcome
	}

	posts, outcome := c.recentPosts(ctx, user.ID)
	if posts == nil {
		return outcome
	}

	today := time.Now().Format("2006-01-02")
	var obs []source.Observation
	for _, p := range posts {
		engagement := float64(p.PublicMetrics.LikeCount + p.PublicMetrics.RetweetCount)
		mention := 0.0
		lower := strings.ToLower(p.Text)
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				mention = 1
				break
			}
		}

		note := p.Text
		if len(note) > 100 {
			note = note[:100]
		}

		obs = append(obs, source.Observation{
			Artist:   artist.Name,
			Category: artist.Category,
			Source:   source.X,
			Date:     today,
			Metrics: map[string]float64{
				"engagement":      engagement,
				"likes":           float64(p.PublicMetrics.LikeCount),
				"reposts":         float64(p.PublicMetrics.RetweetCount),
				"replies":         float64(p.PublicMetrics.ReplyCount),
				"followers":       float64(user.PublicMetrics.FollowersCount),
				"product_mention": mention,
			},
			Note: note,
		})
	}
	return source.Observations(obs)
}

type xUser struct {
	ID            string `json:"id"`
	PublicMetrics struct {
		FollowersCount int `json:"followers_count"`
	} `json:"public_metrics"`
}

func (c *XClient) lookupUser(ctx context.Context, handle string) (*xUser, source.Outcome) {
	endpoint := fmt.Sprintf("%s/users/by/username/%s?user.fields=public_metrics",
		c.baseURL, url.PathEscape(handle))

	var result struct {
		Data   *xUser `json:"data"`
		Errors []struct {
			Title string `json:"title"`
		} `json:"errors"`
	}
	if outcome, ok := c.get(ctx, endpoint, &result); !ok {
		return nil, outcome
	}
	if result.Data == nil {
		return nil, source.Failed(fmt.Errorf("user not found: @%s", handle))
	}
	return result.Data, source.Outcome{}
}

type xPost struct {
	Text          string `json:"text"`
	PublicMetrics struct {
		LikeCount    int `json:"like_count"`
		RetweetCount int `json:"retweet_count"`
		ReplyCount   int `json:"reply_count"`
	} `json:"public_metrics"`
}

func (c *XClient) recentPosts(ctx context.Context, userID string) ([]xPost, source.Outcome) {
	maxResults := c.maxPosts
	if maxResults < 5 {
		maxResults = 5 // API minimum
	}
	endpoint := fmt.Sprintf("%s/users/%s/tweets?max_results=%d&tweet.fields=created_at,public_metrics",
		c.baseURL, url.PathEscape(userID), maxResults)

	var result struct {
		Data []xPost `json:"data"`
	}
	if outcome, ok := c.get(ctx, endpoint, &result); !ok {
		return nil, outcome
	}
	if result.Data == nil {
		return []xPost{}, source.Outcome{}
	}
	if len(result.Data) > c.maxPosts {
		result.Data = result.Data[:c.maxPosts]
	}
	return result.Data, source.Outcome{}
}

// get performs an authenticated GET and decodes the JSON body. The
// second return is false when the caller should stop and return the
// outcome instead.
func (c *XClient) get(ctx context.Context, endpoint string, v any) (source.Outcome, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return source.Failed(err), false
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return source.Failed(fmt.Errorf("x request: %w", err)), false
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return source.Throttled(), false
	case resp.StatusCode != http.StatusOK:
		return source.Failed(fmt.Errorf("x API status %d", resp.StatusCode)), false
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return source.Failed(fmt.Errorf("decoding x response: %w", err)), false
	}
	return source.Outcome{}, true
}
