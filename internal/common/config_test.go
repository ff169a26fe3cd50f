package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Edgar.BaseURL != "https://data.sec.gov" {
		t.Errorf("edgar base url = %q", cfg.Edgar.BaseURL)
	}
	if cfg.Edgar.RateLimit != 10 {
		t.Errorf("edgar rate limit = %d, want 10", cfg.Edgar.RateLimit)
	}
	if cfg.JobManager.GetMaxConcurrent() != 3 {
		t.Errorf("max concurrent = %d, want 3", cfg.JobManager.GetMaxConcurrent())
	}
	if cfg.Poller.GetInterval() != 15*time.Minute {
		t.Errorf("poll interval = %v, want 15m", cfg.Poller.GetInterval())
	}
	if cfg.Quote.GetCacheTTL() != 60*time.Second {
		t.Errorf("cache ttl = %v, want 60s", cfg.Quote.GetCacheTTL())
	}
	if cfg.Quote.GetProviderTimeout() != 5*time.Second {
		t.Errorf("provider timeout = %v, want 5s", cfg.Quote.GetProviderTimeout())
	}
}

func TestLoadConfig_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "edgarwatch.toml")
	content := `
environment = "production"

[server]
port = 9090

[edgar]
user_agent = "myapp ops@myapp.example"
rate_limit = 5

[poller]
interval = "5m"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if !cfg.IsProduction() {
		t.Error("expected production environment")
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Edgar.UserAgent != "myapp ops@myapp.example" {
		t.Errorf("user agent = %q", cfg.Edgar.UserAgent)
	}
	if cfg.Edgar.RateLimit != 5 {
		t.Errorf("rate limit = %d", cfg.Edgar.RateLimit)
	}
	if cfg.Poller.GetInterval() != 5*time.Minute {
		t.Errorf("interval = %v", cfg.Poller.GetInterval())
	}
	// Untouched sections keep defaults.
	if cfg.Quote.GetCacheTTL() != 60*time.Second {
		t.Errorf("cache ttl = %v", cfg.Quote.GetCacheTTL())
	}
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path.toml")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("EDGARWATCH_PORT", "7070")
	t.Setenv("EDGARWATCH_LOG_LEVEL", "debug")
	t.Setenv("EDGARWATCH_EDGAR_USER_AGENT", "envapp env@example.com")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	if cfg.Edgar.UserAgent != "envapp env@example.com" {
		t.Errorf("user agent = %q", cfg.Edgar.UserAgent)
	}
}

func TestDurationGettersFallBack(t *testing.T) {
	edgar := EdgarConfig{Timeout: "not-a-duration"}
	if edgar.GetTimeout() != 30*time.Second {
		t.Errorf("timeout fallback = %v", edgar.GetTimeout())
	}

	jm := JobManagerConfig{}
	if jm.GetHeartbeat() != 30*time.Second {
		t.Errorf("heartbeat fallback = %v", jm.GetHeartbeat())
	}
	if jm.GetPurgeAfter() != 24*time.Hour {
		t.Errorf("purge fallback = %v", jm.GetPurgeAfter())
	}
}
