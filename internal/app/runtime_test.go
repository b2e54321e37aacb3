package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"ipfs-social/go-backend/internal/config"
	"ipfs-social/go-backend/internal/feed"
	"ipfs-social/go-backend/internal/metrics"
	"ipfs-social/go-backend/internal/testutil/fsperm"
)

func testConfig(t *testing.T, backend string) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage.Backend = backend
	cfg.Gateway.Transport = config.TransportMemory
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildWiresWorkingService(t *testing.T) {
	rt, err := Build(testConfig(t, config.BackendMemory), quietLogger())
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer rt.Close()

	ctx := context.Background()
	kp, err := rt.Service.LoadOrCreateIdentity()
	if err != nil {
		t.Fatalf("load identity failed: %v", err)
	}
	if _, err := rt.Service.Publish(ctx, "wired", kp); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	timeline, err := rt.Service.RefreshFeed(ctx, feed.NewFollowSet(kp.Author()))
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if len(timeline) != 1 || timeline[0].Content != "wired" {
		t.Fatalf("unexpected timeline: %+v", timeline)
	}
	if got := testutil.ToFloat64(rt.Metrics.PublishedCount()); got != 1 {
		t.Fatalf("expected one published post metric, got %v", got)
	}
	if got := testutil.ToFloat64(rt.Metrics.RefreshCount(metrics.RefreshOK)); got != 1 {
		t.Fatalf("expected one ok refresh metric, got %v", got)
	}
}

func TestBuildPersistsIdentityAcrossRestart(t *testing.T) {
	for _, backend := range []string{config.BackendDir, config.BackendLevelDB} {
		t.Run(backend, func(t *testing.T) {
			cfg := testConfig(t, backend)
			cfg.Storage.Secret = "correct horse"

			first, err := Build(cfg, quietLogger())
			if err != nil {
				t.Fatalf("build failed: %v", err)
			}
			kp, err := first.Service.LoadOrCreateIdentity()
			if err != nil {
				t.Fatalf("load identity failed: %v", err)
			}
			if err := first.Close(); err != nil {
				t.Fatalf("close failed: %v", err)
			}
			if backend == config.BackendDir {
				fsperm.AssertPrivateDir(t, filepath.Join(cfg.DataDir, "kv"))
				fsperm.AssertPrivateFiles(t, filepath.Join(cfg.DataDir, "kv"))
			}

			second, err := Build(cfg, quietLogger())
			if err != nil {
				t.Fatalf("rebuild failed: %v", err)
			}
			defer second.Close()
			again, err := second.Service.LoadOrCreateIdentity()
			if err != nil {
				t.Fatalf("reload identity failed: %v", err)
			}
			if again.Author() != kp.Author() {
				t.Fatalf("identity changed across restart: %s != %s", again.Author(), kp.Author())
			}
		})
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "tape")
	if _, err := Build(cfg, quietLogger()); !errors.Is(err, config.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
