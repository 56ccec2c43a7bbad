package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Fetch.MaxRetries != 3 || cfg.Fetch.BatchConcurrency != 3 {
		t.Errorf("fetch defaults: %+v", cfg.Fetch)
	}
	if cfg.Cache.TTLSeconds != 300 || cfg.Cache.MaxEntries != 1000 {
		t.Errorf("cache defaults: %+v", cfg.Cache)
	}
	if cfg.Store.Driver != "" {
		t.Errorf("store should be disabled by default, got %q", cfg.Store.Driver)
	}
	if !cfg.Yahoo.Enabled {
		t.Error("yahoo should be enabled by default")
	}
	if cfg.AlphaVantage.RateLimit.PerDay != 25 {
		t.Errorf("alphavantage daily cap = %d", cfg.AlphaVantage.RateLimit.PerDay)
	}
	if !cfg.Nasdaq.Enabled || cfg.Nasdaq.RateLimit.PerSecond != 2 {
		t.Errorf("nasdaq defaults: %+v", cfg.Nasdaq)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		"server": {"port": "9090"},
		"store": {"driver": "postgres"},
		"alphavantage": {"api_key": "from-file"},
		"retention": {"days": 30}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.Store.Driver != "postgres" {
		t.Errorf("driver = %q", cfg.Store.Driver)
	}
	if cfg.AlphaVantage.APIKey != "from-file" {
		t.Errorf("api key = %q", cfg.AlphaVantage.APIKey)
	}
	if cfg.Retention.Days != 30 {
		t.Errorf("retention days = %d", cfg.Retention.Days)
	}
	// Untouched sections keep their defaults.
	if cfg.Fetch.MaxRetries != 3 {
		t.Errorf("max retries = %d", cfg.Fetch.MaxRetries)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("malformed config should fail loudly")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("ALPHAVANTAGE_API_KEY", "env-key")
	t.Setenv("FINNHUB_API_KEY", "fh-key")
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("CACHE_TTL_SEC", "600")
	t.Setenv("CACHE_DISK_ENABLED", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("port = %q", cfg.Server.Port)
	}
	if cfg.AlphaVantage.APIKey != "env-key" || cfg.Finnhub.APIKey != "fh-key" {
		t.Errorf("keys: %q %q", cfg.AlphaVantage.APIKey, cfg.Finnhub.APIKey)
	}
	if cfg.Store.Driver != "redis" || cfg.Store.RedisAddr != "redis.internal:6379" {
		t.Errorf("store: %+v", cfg.Store)
	}
	if cfg.Cache.TTLSeconds != 600 {
		t.Errorf("ttl = %d", cfg.Cache.TTLSeconds)
	}
	if cfg.Cache.DiskEnabled {
		t.Error("disk cache should be disabled via env")
	}
}
