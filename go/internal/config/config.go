// Package config loads runtime settings from a YAML file overlaid with environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is read when CONFIG_PATH is unset.
const DefaultPath = "config.yaml"

var ErrInvalid = errors.New("invalid config")

type Config struct {
	API      APIConfig      `yaml:"api"`
	Viewer   ViewerConfig   `yaml:"viewer"`
	Events   EventsConfig   `yaml:"events"`
	Layout   LayoutConfig   `yaml:"layout"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	LogLevel string         `yaml:"log_level"`
}

type APIConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
	// RateLimit is requests per second; zero disables throttling.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type ViewerConfig struct {
	Port string `yaml:"port"`
}

type EventsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	NATSURL       string `yaml:"nats_url"`
	StreamName    string `yaml:"stream_name"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type LayoutConfig struct {
	MinWidth          int `yaml:"min_width"`
	FallbackFootprint int `yaml:"fallback_footprint"`
}

type DispatchConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

func Default() Config {
	return Config{
		API: APIConfig{
			URL:       "http://localhost:5000",
			Timeout:   30 * time.Second,
			RateLimit: 5,
			RateBurst: 10,
		},
		Viewer: ViewerConfig{Port: "8080"},
		Events: EventsConfig{
			NATSURL:       "nats://localhost:4222",
			StreamName:    "TOWER_EVENTS",
			SubjectPrefix: "tower.events",
		},
		Layout: LayoutConfig{
			MinWidth:          20,
			FallbackFootprint: 2,
		},
		Dispatch: DispatchConfig{RequestTimeout: 10 * time.Second},
		LogLevel: "info",
	}
}

// Load reads the file at path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads the file named by CONFIG_PATH.
func LoadFromEnv() (*Config, error) {
	return Load(getEnv("CONFIG_PATH", DefaultPath))
}

func (c *Config) applyEnv() {
	c.API.URL = getEnv("GAME_API_URL", c.API.URL)
	c.API.Token = getEnv("GAME_API_TOKEN", c.API.Token)
	c.API.RateLimit = getEnvAsFloat("API_RATE_LIMIT", c.API.RateLimit)
	c.API.RateBurst = getEnvAsInt("API_RATE_BURST", c.API.RateBurst)
	c.Viewer.Port = getEnv("VIEWER_PORT", c.Viewer.Port)
	c.Events.NATSURL = getEnv("NATS_URL", c.Events.NATSURL)
	c.Events.Enabled = getEnvAsBool("EVENTS_ENABLED", c.Events.Enabled)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

func (c *Config) Validate() error {
	switch {
	case c.API.URL == "":
		return fmt.Errorf("%w: api url is required", ErrInvalid)
	case c.API.Token == "":
		return fmt.Errorf("%w: api token is required (GAME_API_TOKEN)", ErrInvalid)
	case c.Layout.MinWidth < 1:
		return fmt.Errorf("%w: layout min_width must be positive", ErrInvalid)
	case c.Layout.FallbackFootprint < 1:
		return fmt.Errorf("%w: layout fallback_footprint must be positive", ErrInvalid)
	case c.Events.Enabled && c.Events.NATSURL == "":
		return fmt.Errorf("%w: nats url is required when events are enabled", ErrInvalid)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
