package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ipfs-social/go-backend/internal/config"
	"ipfs-social/go-backend/internal/contentstore"
	"ipfs-social/go-backend/internal/feed"
	"ipfs-social/go-backend/internal/kvstore"
	"ipfs-social/go-backend/internal/metrics"
)

// Runtime holds everything Build opened so the caller can close it in one place.
type Runtime struct {
	Config     config.Config
	KV         kvstore.Store
	Gateway    contentstore.Gateway
	Registry   *feed.Registry
	Aggregator *feed.Aggregator
	Metrics    *metrics.Feed
	Prometheus *prometheus.Registry
	Service    *Service
}

func Build(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	kv, err := openKV(cfg)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, KV: kv}
	fail := func(err error) (*Runtime, error) {
		_ = rt.Close()
		return nil, err
	}

	rt.Gateway, err = openGateway(cfg.Gateway)
	if err != nil {
		return fail(err)
	}

	rt.Prometheus = prometheus.NewRegistry()
	rt.Prometheus.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	rt.Metrics = metrics.NewFeed(rt.Prometheus)

	rt.Registry, err = feed.NewRegistry(kv)
	if err != nil {
		return fail(err)
	}
	rt.Aggregator, err = feed.NewAggregator(feed.AggregatorOptions{
		Registry:    rt.Registry,
		Gateway:     rt.Gateway,
		Concurrency: cfg.Feed.FetchConcurrency,
		CacheSize:   cfg.Feed.CacheSize,
		Metrics:     rt.Metrics,
		Logger:      logger,
	})
	if err != nil {
		return fail(err)
	}
	rt.Service, err = New(Options{
		KV:         kv,
		Gateway:    rt.Gateway,
		Registry:   rt.Registry,
		Aggregator: rt.Aggregator,
		Logger:     logger,
		Metrics:    rt.Metrics,
	})
	if err != nil {
		return fail(err)
	}
	return rt, nil
}

func (r *Runtime) Close() error {
	if r == nil || r.KV == nil {
		return nil
	}
	err := r.KV.Close()
	if errors.Is(err, kvstore.ErrClosed) {
		return nil
	}
	return err
}

func openKV(cfg config.Config) (kvstore.Store, error) {
	var (
		kv  kvstore.Store
		err error
	)
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		kv = kvstore.NewMemory()
	case config.BackendDir:
		kv, err = kvstore.OpenDir(filepath.Join(cfg.DataDir, "kv"))
	case config.BackendLevelDB:
		if err = os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		kv, err = kvstore.OpenLevelDB(filepath.Join(cfg.DataDir, "store.ldb"))
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", config.ErrInvalidConfig, cfg.Storage.Backend)
	}
	if err != nil {
		return nil, err
	}
	if cfg.Storage.Secret == "" {
		return kv, nil
	}
	sealed, err := kvstore.NewSealed(kv, cfg.Storage.Secret)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	return sealed, nil
}

func openGateway(cfg config.GatewayConfig) (contentstore.Gateway, error) {
	var gw contentstore.Gateway
	switch cfg.Transport {
	case config.TransportMemory:
		gw = contentstore.NewMemoryGateway()
	case config.TransportIPFS:
		ipfs, err := contentstore.NewIPFSGateway(contentstore.IPFSOptions{
			Endpoint: cfg.API,
			Timeout:  cfg.Timeout,
			MaxSize:  cfg.MaxSize,
		})
		if err != nil {
			return nil, err
		}
		gw = ipfs
	default:
		return nil, fmt.Errorf("%w: unknown gateway transport %q", config.ErrInvalidConfig, cfg.Transport)
	}
	return contentstore.Throttle(gw, cfg.FetchRPS, cfg.FetchBurst), nil
}
