package config

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Registry string  `yaml:"registry"`
	Sources  Sources `yaml:"sources"`
	Scoring  Scoring `yaml:"scoring"`
	Output   Output  `yaml:"output"`
	Server   Server  `yaml:"server"`
}

type Sources struct {
	X       XConfig       `yaml:"x"`
	YouTube YouTubeConfig `yaml:"youtube"`
	Lastfm  LastfmConfig  `yaml:"lastfm"`
	Charts  ChartsConfig  `yaml:"charts"`
	Sales   SalesConfig   `yaml:"sales"`
}

type XConfig struct {
	Enabled         bool          `yaml:"enabled"`
	BearerTokenEnv  string        `yaml:"bearer_token_env"`
	MaxPosts        int           `yaml:"max_posts"`
	Pace            time.Duration `yaml:"pace"`
	Cooldown        time.Duration `yaml:"cooldown"`
	ProductKeywords []string      `yaml:"product_keywords"`
}

type YouTubeConfig struct {
	Enabled    bool          `yaml:"enabled"`
	APIKeyEnv  string        `yaml:"api_key_env"`
	WindowDays int           `yaml:"window_days"`
	MaxVideos  int           `yaml:"max_videos"`
	Pace       time.Duration `yaml:"pace"`
	Cooldown   time.Duration `yaml:"cooldown"`
}

type LastfmConfig struct {
	Enabled   bool          `yaml:"enabled"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Pace      time.Duration `yaml:"pace"`
	Cooldown  time.Duration `yaml:"cooldown"`
}

type ChartsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Pace     time.Duration `yaml:"pace"`
	Cooldown time.Duration `yaml:"cooldown"`
}

type SalesConfig struct {
	Enabled bool   `yaml:"enabled"`
	FeedURL string `yaml:"feed_url"`
}

// Scoring holds the weighted-composite policy. It is passed into the
// scoring engine as a value so runs with different weights can be
// compared side by side.
type Scoring struct {
	Weights  Weights  `yaml:"weights"`
	Ceilings Ceilings `yaml:"ceilings"`
}

// Weights are the per-source composite weights. They must sum to 1.0.
// A source with no observations contributes weight x 0; the remaining
// weights are never renormalized.
type Weights struct {
	X       float64 `yaml:"x"`
	YouTube float64 `yaml:"youtube"`
	Lastfm  float64 `yaml:"lastfm"`
	Charts  float64 `yaml:"charts"`
	Sales   float64 `yaml:"sales"`
}

// Ceilings map raw metric levels to a sub-score of 100.
type Ceilings struct {
	EngagementRate  float64 `yaml:"engagement_rate"`  // percent of followers
	YouTubeViews    float64 `yaml:"youtube_views"`    // summed views in window
	LastfmListeners float64 `yaml:"lastfm_listeners"` // listener count
	SalesCopies     float64 `yaml:"sales_copies"`     // album copies sold
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

// ConfigDir returns the XDG config directory for signalindex.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "signalindex")
}

// DataDir returns the XDG data directory for signalindex.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "signalindex")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/signalindex/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'signalindex init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses, and validates a config YAML file. Validation is
// strict on purpose: a bad weight table should fail here, not hours
// into a collection run.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Registry: "artists.json",
		Sources: Sources{
			X: XConfig{
				Enabled:        true,
				BearerTokenEnv: "X_BEARER_TOKEN",
				MaxPosts:       5,
				Pace:           2 * time.Second,
				Cooldown:       15 * time.Minute,
				ProductKeywords: []string{
					"merch", "album", "vinyl", "buy", "sold out", "pre-order",
					"drop", "collection", "tour", "tickets", "concert", "shop",
					"limited edition", "exclusive", "purchase", "store",
				},
			},
			YouTube: YouTubeConfig{
				Enabled:    true,
				APIKeyEnv:  "YOUTUBE_API_KEY",
				WindowDays: 90,
				MaxVideos:  3,
				Pace:       time.Second,
				Cooldown:   time.Hour,
			},
			Lastfm: LastfmConfig{
				Enabled:   true,
				APIKeyEnv: "LASTFM_API_KEY",
				Pace:      time.Second,
				Cooldown:  5 * time.Minute,
			},
			Charts: ChartsConfig{
				Enabled:  true,
				Pace:     2 * time.Second,
				Cooldown: 10 * time.Minute,
			},
			Sales: SalesConfig{
				Enabled: false,
			},
		},
		Scoring: Scoring{
			Weights: Weights{X: 0.3, YouTube: 0.2, Charts: 0.5},
			Ceilings: Ceilings{
				EngagementRate:  5.0,
				YouTubeViews:    10_000_000,
				LastfmListeners: 5_000_000,
				SalesCopies:     1_000_000,
			},
		},
		Server: Server{Port: 8000},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks the scoring policy and source settings.
func (c *Config) Validate() error {
	w := c.Scoring.Weights
	sum := w.X + w.YouTube + w.Lastfm + w.Charts + w.Sales
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("scoring weights must sum to 1.0, got %.4f", sum)
	}
	for _, weight := range []float64{w.X, w.YouTube, w.Lastfm, w.Charts, w.Sales} {
		if weight < 0 {
			return fmt.Errorf("scoring weights must not be negative")
		}
	}

	ceil := c.Scoring.Ceilings
	if ceil.EngagementRate <= 0 || ceil.YouTubeViews <= 0 || ceil.LastfmListeners <= 0 || ceil.SalesCopies <= 0 {
		return fmt.Errorf("scoring ceilings must be positive")
	}

	if c.Sources.YouTube.WindowDays <= 0 {
		return fmt.Errorf("youtube window_days must be positive")
	}
	if c.Sources.Sales.Enabled && c.Sources.Sales.FeedURL == "" {
		return fmt.Errorf("sales source is enabled but feed_url is not set")
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
