// Package config loads and validates crawldir configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every automatically bound environment variable, e.g.
// CRAWLDIR_CRAWL_PARALLELISM.
const EnvPrefix = "CRAWLDIR"

// Config captures all knobs loaded via Viper.
type Config struct {
	Aleph   AlephConfig   `mapstructure:"aleph"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Logging LoggingConfig `mapstructure:"logging"`
	Ledger  LedgerConfig  `mapstructure:"ledger"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// AlephConfig points the client at a server.
type AlephConfig struct {
	Host           string `mapstructure:"host"`
	APIKey         string `mapstructure:"api_key"`
	Retries        int    `mapstructure:"retries"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	SessionID      string `mapstructure:"session_id"`
}

// CrawlConfig governs the crawl pipeline.
type CrawlConfig struct {
	Parallelism      int  `mapstructure:"parallelism"`
	NoJunk           bool `mapstructure:"nojunk"`
	Index            bool `mapstructure:"index"`
	BackoffInitialMs int  `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int  `mapstructure:"backoff_max_ms"`
	// MaxRPS caps ingest calls per second; 0 disables the limit.
	MaxRPS float64 `mapstructure:"max_rps"`
	Burst  int     `mapstructure:"burst"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// LedgerConfig enables the Postgres outcome ledger when DSN is set.
type LedgerConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// MetricsConfig serves Prometheus metrics while crawling when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load builds a Config from v, an optional file at path and the environment.
// A nil v uses a fresh instance; callers pass their own to bind CLI flags.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return Config{}, err
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	// Fewer than one worker would never drain the upload queue.
	if cfg.Crawl.Parallelism < 1 {
		cfg.Crawl.Parallelism = 1
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// bindLegacyEnv keeps the variable names the Aleph tooling has always read.
// The prefixed name is listed first so it wins.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"aleph.host":    {EnvPrefix + "_ALEPH_HOST", "ALEPH_HOST", "MEMORIOUS_ALEPH_HOST"},
		"aleph.api_key": {EnvPrefix + "_ALEPH_API_KEY", "ALEPH_API_KEY", "MEMORIOUS_ALEPH_API_KEY"},
		"aleph.retries": {EnvPrefix + "_ALEPH_RETRIES", "ALEPHCLIENT_MAX_TRIES"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("aleph.host", "")
	v.SetDefault("aleph.api_key", "")
	v.SetDefault("aleph.retries", 5)
	v.SetDefault("aleph.timeout_seconds", 120)
	v.SetDefault("aleph.session_id", "")
	v.SetDefault("crawl.parallelism", 1)
	v.SetDefault("crawl.nojunk", false)
	v.SetDefault("crawl.index", true)
	v.SetDefault("crawl.backoff_initial_ms", 1000)
	v.SetDefault("crawl.backoff_max_ms", 30000)
	v.SetDefault("crawl.max_rps", 0.0)
	v.SetDefault("crawl.burst", 1)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("ledger.dsn", "")
	v.SetDefault("ledger.table", "crawl_outcomes")
	v.SetDefault("ledger.max_conns", 4)
	v.SetDefault("metrics.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Aleph.Host) == "" {
		return fmt.Errorf("aleph.host is required (or set ALEPH_HOST)")
	}
	if u, err := url.Parse(c.Aleph.Host); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("aleph.host must be an absolute URL, got %q", c.Aleph.Host)
	}
	if c.Aleph.Retries <= 0 {
		return fmt.Errorf("aleph.retries must be > 0")
	}
	if c.Aleph.TimeoutSeconds <= 0 {
		return fmt.Errorf("aleph.timeout_seconds must be > 0")
	}
	if c.Crawl.BackoffInitialMs <= 0 {
		return fmt.Errorf("crawl.backoff_initial_ms must be > 0")
	}
	if c.Crawl.BackoffMaxMs < c.Crawl.BackoffInitialMs {
		return fmt.Errorf("crawl.backoff_max_ms must be >= crawl.backoff_initial_ms")
	}
	if c.Crawl.MaxRPS < 0 {
		return fmt.Errorf("crawl.max_rps must be >= 0")
	}
	if c.Crawl.MaxRPS > 0 && c.Crawl.Burst <= 0 {
		return fmt.Errorf("crawl.burst must be > 0 when crawl.max_rps is set")
	}
	if c.Ledger.MaxConns < 0 {
		return fmt.Errorf("ledger.max_conns must be >= 0")
	}
	return nil
}

// Timeout bounds connecting to Aleph and waiting for its response headers.
// Uploads are not limited by it while their bodies are streaming.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Aleph.TimeoutSeconds) * time.Second
}

// BackoffInitial returns the first retry delay bound.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Crawl.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry delay ceiling.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Crawl.BackoffMaxMs) * time.Millisecond
}
