// Package common provides shared utilities for EdgarWatch
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for EdgarWatch
type Config struct {
	Environment string           `toml:"environment"`
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Edgar       EdgarConfig      `toml:"edgar"`
	Providers   ProvidersConfig  `toml:"providers"`
	Quote       QuoteConfig      `toml:"quote"`
	JobManager  JobManagerConfig `toml:"jobmanager"`
	Poller      PollerConfig     `toml:"poller"`
	Delivery    DeliveryConfig   `toml:"delivery"`
	Summarizer  SummarizerConfig `toml:"summarizer"`
	Logging     LoggingConfig    `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds the data directory for the embedded store.
type StorageConfig struct {
	Path string `toml:"path"`
}

// EdgarConfig holds EDGAR fetcher configuration.
// UserAgent is mandatory — EDGAR rejects anonymous clients. Format:
// "<app-identifier> <contact-email>".
type EdgarConfig struct {
	BaseURL    string `toml:"base_url"`
	UserAgent  string `toml:"user_agent"`
	RateLimit  int    `toml:"rate_limit"` // requests per second
	Timeout    string `toml:"timeout"`
	MaxRetries int    `toml:"max_retries"`
}

// GetTimeout parses and returns the timeout duration
func (c *EdgarConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// ProviderConfig holds configuration for a single quote provider.
type ProviderConfig struct {
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	RateLimit int    `toml:"rate_limit"` // requests per second
	Enabled   bool   `toml:"enabled"`
}

// ProvidersConfig holds quote provider configurations in chain order.
type ProvidersConfig struct {
	Alpha   ProviderConfig `toml:"alpha"`
	Finnhub ProviderConfig `toml:"finnhub"`
	Yahoo   ProviderConfig `toml:"yahoo"`
	IEX     ProviderConfig `toml:"iex"`
}

// QuoteConfig holds the quote service configuration.
type QuoteConfig struct {
	CacheTTL        string `toml:"cache_ttl"`
	ProviderTimeout string `toml:"provider_timeout"`
}

// GetCacheTTL parses and returns the cache TTL duration
func (c *QuoteConfig) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetProviderTimeout parses and returns the per-provider timeout
func (c *QuoteConfig) GetProviderTimeout() time.Duration {
	d, err := time.ParseDuration(c.ProviderTimeout)
	if err != nil {
		return 5 * time.Second
	}
	return d
}

// JobManagerConfig holds worker pool configuration.
type JobManagerConfig struct {
	Enabled       bool   `toml:"enabled"`
	MaxConcurrent int    `toml:"max_concurrent"`
	MaxRetries    int    `toml:"max_retries"`
	Heartbeat     string `toml:"heartbeat"`
	ShutdownGrace string `toml:"shutdown_grace"`
	PurgeAfter    string `toml:"purge_after"`
}

// GetMaxConcurrent returns the worker count, defaulting to 3.
func (c *JobManagerConfig) GetMaxConcurrent() int {
	if c.MaxConcurrent <= 0 {
		return 3
	}
	return c.MaxConcurrent
}

// GetMaxRetries returns the retry budget, defaulting to 3.
func (c *JobManagerConfig) GetMaxRetries() int {
	if c.MaxRetries <= 0 {
		return 3
	}
	return c.MaxRetries
}

// GetHeartbeat parses and returns the worker heartbeat interval.
func (c *JobManagerConfig) GetHeartbeat() time.Duration {
	d, err := time.ParseDuration(c.Heartbeat)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetShutdownGrace parses and returns the graceful shutdown window.
func (c *JobManagerConfig) GetShutdownGrace() time.Duration {
	d, err := time.ParseDuration(c.ShutdownGrace)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetPurgeAfter parses and returns the terminal-job retention window.
func (c *JobManagerConfig) GetPurgeAfter() time.Duration {
	d, err := time.ParseDuration(c.PurgeAfter)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// PollerConfig holds the EDGAR polling schedule.
type PollerConfig struct {
	Enabled      bool   `toml:"enabled"`
	Interval     string `toml:"interval"`
	StartupDelay string `toml:"startup_delay"`
}

// GetInterval parses and returns the poll interval, defaulting to 15 minutes.
func (c *PollerConfig) GetInterval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// GetStartupDelay parses and returns the delay before the first poll tick.
func (c *PollerConfig) GetStartupDelay() time.Duration {
	d, err := time.ParseDuration(c.StartupDelay)
	if err != nil {
		return 0
	}
	return d
}

// DeliveryConfig throttles the outbox delivery worker.
type DeliveryConfig struct {
	RateLimit  int `toml:"rate_limit"` // dispatches per second
	MaxRetries int `toml:"max_retries"`
}

// GetRateLimit returns the dispatch rate, defaulting to 5/s.
func (c *DeliveryConfig) GetRateLimit() int {
	if c.RateLimit <= 0 {
		return 5
	}
	return c.RateLimit
}

// GetMaxRetries returns the delivery retry budget, defaulting to 3.
func (c *DeliveryConfig) GetMaxRetries() int {
	if c.MaxRetries <= 0 {
		return 3
	}
	return c.MaxRetries
}

// SummarizerConfig holds the optional AI filing summarizer configuration.
type SummarizerConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Path: "data",
		},
		Edgar: EdgarConfig{
			BaseURL:    "https://data.sec.gov",
			UserAgent:  "edgarwatch/dev admin@example.com",
			RateLimit:  10,
			Timeout:    "30s",
			MaxRetries: 3,
		},
		Providers: ProvidersConfig{
			Alpha:   ProviderConfig{BaseURL: "https://www.alphavantage.co", RateLimit: 5, Enabled: true},
			Finnhub: ProviderConfig{BaseURL: "https://finnhub.io/api/v1", RateLimit: 10, Enabled: true},
			Yahoo:   ProviderConfig{BaseURL: "https://query1.finance.yahoo.com", RateLimit: 5, Enabled: true},
			IEX:     ProviderConfig{BaseURL: "https://cloud.iexapis.com/stable", RateLimit: 10, Enabled: true},
		},
		Quote: QuoteConfig{
			CacheTTL:        "60s",
			ProviderTimeout: "5s",
		},
		JobManager: JobManagerConfig{
			Enabled:       true,
			MaxConcurrent: 3,
			MaxRetries:    3,
			Heartbeat:     "30s",
			ShutdownGrace: "30s",
			PurgeAfter:    "24h",
		},
		Poller: PollerConfig{
			Enabled:  true,
			Interval: "15m",
		},
		Delivery: DeliveryConfig{
			RateLimit:  5,
			MaxRetries: 3,
		},
		Summarizer: SummarizerConfig{
			Model: "gemini-2.0-flash",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"console"},
			FilePath:   "./logs/edgarwatch.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("EDGARWATCH_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("EDGARWATCH_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("EDGARWATCH_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("EDGARWATCH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if path := os.Getenv("EDGARWATCH_DATA_PATH"); path != "" {
		config.Storage.Path = path
	}

	if ua := os.Getenv("EDGARWATCH_EDGAR_USER_AGENT"); ua != "" {
		config.Edgar.UserAgent = ua
	}

	if v := os.Getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		config.Providers.Alpha.APIKey = v
	}
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		config.Providers.Finnhub.APIKey = v
	}
	if v := os.Getenv("IEX_API_KEY"); v != "" {
		config.Providers.IEX.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		config.Summarizer.APIKey = v
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ResolveDataPath resolves the storage path relative to a base directory
// when it is not absolute.
func (c *Config) ResolveDataPath(baseDir string) string {
	if filepath.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return filepath.Join(baseDir, c.Storage.Path)
}
