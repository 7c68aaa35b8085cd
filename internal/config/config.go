package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StorageConfig selects the change-history backend.
type StorageConfig struct {
	Backend      string // "memory", "sqlite", or "influx"
	SQLiteDSN    string
	InfluxURL    string
	InfluxOrg    string
	InfluxBucket string
	InfluxToken  string
}

// Config holds the daemon's runtime settings. Values come from an optional
// YAML file, DASH_-prefixed environment variables, and built-in defaults,
// in that precedence order.
type Config struct {
	APIBaseURL   string
	PollInterval time.Duration
	FetchTimeout time.Duration
	ListenAddr   string
	LogLevel     string
	HubSubBuffer int
	Storage      StorageConfig
}

// Load reads configuration, optionally from the YAML file at path.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("api.base_url", "http://localhost:5000/api/v1")
	v.SetDefault("poll.interval_ms", 100)
	v.SetDefault("poll.timeout_ms", 80)
	v.SetDefault("http.addr", ":8090")
	v.SetDefault("log.level", "info")
	v.SetDefault("hub.sub_buffer", 16)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.sqlite_dsn", "file:dashboard-history.db?_busy_timeout=5000")
	v.SetDefault("storage.influx_url", "")
	v.SetDefault("storage.influx_org", "")
	v.SetDefault("storage.influx_bucket", "")
	v.SetDefault("storage.influx_token", "")

	v.SetEnvPrefix("DASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		APIBaseURL:   v.GetString("api.base_url"),
		PollInterval: time.Duration(v.GetInt("poll.interval_ms")) * time.Millisecond,
		FetchTimeout: time.Duration(v.GetInt("poll.timeout_ms")) * time.Millisecond,
		ListenAddr:   v.GetString("http.addr"),
		LogLevel:     v.GetString("log.level"),
		HubSubBuffer: v.GetInt("hub.sub_buffer"),
		Storage: StorageConfig{
			Backend:      v.GetString("storage.backend"),
			SQLiteDSN:    v.GetString("storage.sqlite_dsn"),
			InfluxURL:    v.GetString("storage.influx_url"),
			InfluxOrg:    v.GetString("storage.influx_org"),
			InfluxBucket: v.GetString("storage.influx_bucket"),
			InfluxToken:  v.GetString("storage.influx_token"),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll.interval_ms must be positive")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("poll.timeout_ms must be positive")
	}
	// a hung fetch must not outlive the polling interval
	if c.FetchTimeout >= c.PollInterval {
		return fmt.Errorf("poll.timeout_ms (%s) must be below poll.interval_ms (%s)",
			c.FetchTimeout, c.PollInterval)
	}
	switch c.Storage.Backend {
	case "memory", "sqlite", "influx":
	default:
		return fmt.Errorf("storage.backend must be memory, sqlite, or influx, got %q", c.Storage.Backend)
	}
	return nil
}
