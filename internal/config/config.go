// Package config loads runtime settings from an optional TOML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hashicorp/go-hclog"

	"github.com/justestif/radio-track-enhancer/internal/discogs"
	"github.com/justestif/radio-track-enhancer/internal/ratelimit"
)

var (
	ErrFileNotFound  = errors.New("configuration file not found")
	ErrInvalidFormat = errors.New("invalid configuration file format")
	ErrInvalid       = errors.New("invalid configuration")
)

// Duration is a time.Duration written as "250ms" or "1m" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the full application configuration.
type Config struct {
	Addr        string `toml:"addr"`
	LogLevel    string `toml:"log_level"`
	DatabaseURL string `toml:"database_url"`

	YouTube YouTubeConfig `toml:"youtube"`
	Discogs DiscogsConfig `toml:"discogs"`
	Spotify SpotifyConfig `toml:"spotify"`
	Enhance EnhanceConfig `toml:"enhance"`
}

// YouTubeConfig holds the YouTube key and budget.
type YouTubeConfig struct {
	APIKey         string   `toml:"api_key"`
	WindowLimit    int      `toml:"window_limit"`
	Window         Duration `toml:"window"`
	DailyBudget    int      `toml:"daily_budget"`
	CostPerRequest int      `toml:"cost_per_request"`
	MinDelay       Duration `toml:"min_delay"`
}

// DiscogsConfig holds the Discogs token and budget.
type DiscogsConfig struct {
	Token       string   `toml:"token"`
	UserAgent   string   `toml:"user_agent"`
	WindowLimit int      `toml:"window_limit"`
	Window      Duration `toml:"window"`
	MinDelay    Duration `toml:"min_delay"`
}

// SpotifyConfig holds client credentials for playlist import.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// EnhanceConfig sets the default batch options.
type EnhanceConfig struct {
	SkipExisting     bool `toml:"skip_existing"`
	ConcurrentPhases bool `toml:"concurrent_phases"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	yt := ratelimit.YouTubeDefaults()
	dg := ratelimit.DiscogsDefaults()
	return &Config{
		Addr:     ":8080",
		LogLevel: "info",
		YouTube: YouTubeConfig{
			WindowLimit:    yt.WindowLimit,
			Window:         Duration{yt.Window},
			DailyBudget:    yt.DailyBudget,
			CostPerRequest: yt.CostPerRequest,
			MinDelay:       Duration{yt.MinDelay},
		},
		Discogs: DiscogsConfig{
			UserAgent:   discogs.DefaultUserAgent,
			WindowLimit: dg.WindowLimit,
			Window:      Duration{dg.Window},
			MinDelay:    Duration{dg.MinDelay},
		},
		Enhance: EnhanceConfig{
			SkipExisting: true,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFormat, path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return nil, fmt.Errorf("%w: %s: unknown keys %s", ErrInvalidFormat, path, strings.Join(keys, ", "))
		}
	}

	cfg.ApplyEnvironmentOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvironmentOverrides replaces settings with any that are set in the
// environment. Secrets are normally supplied this way.
func (c *Config) ApplyEnvironmentOverrides() {
	setString(&c.Addr, "ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.YouTube.APIKey, "YOUTUBE_API_KEY")
	setString(&c.Discogs.Token, "DISCOGS_API_TOKEN")
	setString(&c.Discogs.UserAgent, "DISCOGS_USER_AGENT")
	setString(&c.Spotify.ClientID, "SPOTIFY_ID")
	setString(&c.Spotify.ClientSecret, "SPOTIFY_SECRET")
	setInt(&c.YouTube.DailyBudget, "YOUTUBE_DAILY_BUDGET")
	setInt(&c.Discogs.WindowLimit, "DISCOGS_REQUESTS_PER_MINUTE")

	if port := os.Getenv("PORT"); port != "" && os.Getenv("ADDR") == "" {
		c.Addr = ":" + port
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// Validate checks the budget settings. Missing API credentials are not an
// error; the affected provider is simply skipped.
func (c *Config) Validate() error {
	var problems []string

	if hclog.LevelFromString(c.LogLevel) == hclog.NoLevel {
		problems = append(problems, fmt.Sprintf("log_level %q is not a valid level", c.LogLevel))
	}
	if c.YouTube.DailyBudget < 0 {
		problems = append(problems, "youtube.daily_budget must not be negative")
	}
	if c.YouTube.CostPerRequest <= 0 {
		problems = append(problems, "youtube.cost_per_request must be positive")
	}
	if c.YouTube.DailyBudget > 0 && c.YouTube.DailyBudget < c.YouTube.CostPerRequest {
		problems = append(problems, "youtube.daily_budget is smaller than one request")
	}
	if c.YouTube.WindowLimit > 0 && c.YouTube.Window.Duration <= 0 {
		problems = append(problems, "youtube.window must be positive when window_limit is set")
	}
	if c.Discogs.WindowLimit > 0 && c.Discogs.Window.Duration <= 0 {
		problems = append(problems, "discogs.window must be positive when window_limit is set")
	}
	if c.Discogs.UserAgent == "" {
		problems = append(problems, "discogs.user_agent is required")
	}
	if c.YouTube.MinDelay.Duration < 0 || c.Discogs.MinDelay.Duration < 0 {
		problems = append(problems, "min_delay must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// YouTubeLimits returns the limiter configuration for YouTube.
func (c *Config) YouTubeLimits() ratelimit.Config {
	cfg := ratelimit.YouTubeDefaults()
	cfg.WindowLimit = c.YouTube.WindowLimit
	cfg.Window = c.YouTube.Window.Duration
	cfg.DailyBudget = c.YouTube.DailyBudget
	cfg.CostPerRequest = c.YouTube.CostPerRequest
	cfg.MinDelay = c.YouTube.MinDelay.Duration
	return cfg
}

// DiscogsLimits returns the limiter configuration for Discogs.
func (c *Config) DiscogsLimits() ratelimit.Config {
	cfg := ratelimit.DiscogsDefaults()
	cfg.WindowLimit = c.Discogs.WindowLimit
	cfg.Window = c.Discogs.Window.Duration
	cfg.MinDelay = c.Discogs.MinDelay.Duration
	return cfg
}
