package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config failed: %v", err)
	}
	return path
}

func TestLoadFromPathMergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
dataDir: /var/lib/signfeed
storage:
  backend: dir
gateway:
  api: /dns4/ipfs.local/tcp/5001
  timeout: 5s
  fetchRPS: 0
feed:
  fetchConcurrency: 3
`)
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.DataDir != "/var/lib/signfeed" || cfg.Storage.Backend != BackendDir {
		t.Fatalf("unexpected storage config: %+v", cfg)
	}
	if cfg.Gateway.API != "/dns4/ipfs.local/tcp/5001" || cfg.Gateway.Timeout != 5*time.Second {
		t.Fatalf("unexpected gateway config: %+v", cfg.Gateway)
	}
	if cfg.Gateway.FetchRPS != 0 {
		t.Fatalf("explicit fetchRPS=0 must disable throttling, got %v", cfg.Gateway.FetchRPS)
	}
	if cfg.Gateway.Transport != TransportIPFS || cfg.Gateway.FetchBurst != Default().Gateway.FetchBurst {
		t.Fatalf("unset fields must keep defaults: %+v", cfg.Gateway)
	}
	if cfg.Feed.FetchConcurrency != 3 || cfg.Feed.CacheSize != Default().Feed.CacheSize {
		t.Fatalf("unexpected feed config: %+v", cfg.Feed)
	}
}

func TestLoadFromPathRejectsMalformedAndUnknownValues(t *testing.T) {
	if _, err := LoadFromPath(writeConfig(t, "storage: [\n")); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for bad yaml, got %v", err)
	}
	if _, err := LoadFromPath(writeConfig(t, "storage:\n  backend: s3\n")); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for unknown backend, got %v", err)
	}
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("explicit missing config path must fail")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SIGNFEED_DATA_DIR", "/tmp/feed")
	t.Setenv("SIGNFEED_STORAGE_BACKEND", "memory")
	t.Setenv("SIGNFEED_STORAGE_SECRET", "s3cret")
	t.Setenv("SIGNFEED_GATEWAY_TRANSPORT", "memory")
	t.Setenv("SIGNFEED_FETCH_CONCURRENCY", "2")
	t.Setenv("SIGNFEED_FETCH_RPS", "bogus")

	cfg := Default()
	ApplyEnvOverrides(&cfg)

	if cfg.DataDir != "/tmp/feed" || cfg.Storage.Backend != BackendMemory || cfg.Storage.Secret != "s3cret" {
		t.Fatalf("storage overrides not applied: %+v", cfg)
	}
	if cfg.Gateway.Transport != TransportMemory || cfg.Feed.FetchConcurrency != 2 {
		t.Fatalf("gateway/feed overrides not applied: %+v", cfg)
	}
	if cfg.Gateway.FetchRPS != Default().Gateway.FetchRPS {
		t.Fatalf("malformed rps must be ignored, got %v", cfg.Gateway.FetchRPS)
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}
