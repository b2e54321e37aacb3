package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"ipfs-social/go-backend/internal/contentstore"
	"ipfs-social/go-backend/internal/feed"

	"gopkg.in/yaml.v3"
)

const (
	BackendLevelDB = "leveldb"
	BackendDir     = "dir"
	BackendMemory  = "memory"

	TransportIPFS   = "ipfs"
	TransportMemory = "memory"
)

var ErrInvalidConfig = errors.New("invalid config")

type Config struct {
	DataDir string
	Storage StorageConfig
	Gateway GatewayConfig
	Feed    FeedConfig
	Log     LogConfig
	Metrics MetricsConfig
}

type StorageConfig struct {
	Backend string
	// Secret enables at-rest sealing of the local store when non-empty.
	Secret string
}

type GatewayConfig struct {
	Transport  string
	API        string
	Timeout    time.Duration
	MaxSize    int64
	FetchRPS   float64
	FetchBurst int
}

type FeedConfig struct {
	FetchConcurrency int
	CacheSize        int
}

type LogConfig struct {
	Level  string
	Format string
}

type MetricsConfig struct {
	Addr string
}

// File mirrors config.yaml; pointer and zero fields leave defaults alone.
type File struct {
	DataDir string      `yaml:"dataDir"`
	Storage FileStorage `yaml:"storage"`
	Gateway FileGateway `yaml:"gateway"`
	Feed    FileFeed    `yaml:"feed"`
	Log     FileLog     `yaml:"log"`
	Metrics FileMetrics `yaml:"metrics"`
}

type FileStorage struct {
	Backend string `yaml:"backend"`
	Secret  string `yaml:"secret"`
}

type FileGateway struct {
	Transport  string        `yaml:"transport"`
	API        string        `yaml:"api"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxSize    int64         `yaml:"maxSize"`
	FetchRPS   *float64      `yaml:"fetchRPS"`
	FetchBurst int           `yaml:"fetchBurst"`
}

type FileFeed struct {
	FetchConcurrency int `yaml:"fetchConcurrency"`
	CacheSize        int `yaml:"cacheSize"`
}

type FileLog struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type FileMetrics struct {
	Addr string `yaml:"addr"`
}

func Default() Config {
	return Config{
		DataDir: defaultDataDir(),
		Storage: StorageConfig{Backend: BackendLevelDB},
		Gateway: GatewayConfig{
			Transport:  TransportIPFS,
			API:        contentstore.DefaultAPIEndpoint,
			Timeout:    30 * time.Second,
			MaxSize:    contentstore.DefaultMaxPostSize,
			FetchRPS:   20,
			FetchBurst: 8,
		},
		Feed: FeedConfig{
			FetchConcurrency: feed.DefaultConcurrency,
			CacheSize:        feed.DefaultCacheSize,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// LoadFromPath reads the first readable candidate, merges it over the defaults
// and applies SIGNFEED_* environment overrides. A missing file is not an error;
// a present but malformed one is.
func LoadFromPath(configPath string) (Config, error) {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates,
			"configs/config.yaml",
			"config.yaml",
		)
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			if configPath != "" {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
			continue
		}

		var parsed File
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
		}
		Merge(&cfg, parsed)
		break
	}

	ApplyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Merge(dst *Config, src File) {
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.Storage.Backend != "" {
		dst.Storage.Backend = src.Storage.Backend
	}
	if src.Storage.Secret != "" {
		dst.Storage.Secret = src.Storage.Secret
	}
	if src.Gateway.Transport != "" {
		dst.Gateway.Transport = src.Gateway.Transport
	}
	if src.Gateway.API != "" {
		dst.Gateway.API = src.Gateway.API
	}
	if src.Gateway.Timeout != 0 {
		dst.Gateway.Timeout = src.Gateway.Timeout
	}
	if src.Gateway.MaxSize != 0 {
		dst.Gateway.MaxSize = src.Gateway.MaxSize
	}
	if src.Gateway.FetchRPS != nil {
		dst.Gateway.FetchRPS = *src.Gateway.FetchRPS
	}
	if src.Gateway.FetchBurst != 0 {
		dst.Gateway.FetchBurst = src.Gateway.FetchBurst
	}
	if src.Feed.FetchConcurrency != 0 {
		dst.Feed.FetchConcurrency = src.Feed.FetchConcurrency
	}
	if src.Feed.CacheSize != 0 {
		dst.Feed.CacheSize = src.Feed.CacheSize
	}
	if src.Log.Level != "" {
		dst.Log.Level = src.Log.Level
	}
	if src.Log.Format != "" {
		dst.Log.Format = src.Log.Format
	}
	if src.Metrics.Addr != "" {
		dst.Metrics.Addr = src.Metrics.Addr
	}
}

func ApplyEnvOverrides(cfg *Config) {
	envString("SIGNFEED_DATA_DIR", &cfg.DataDir)
	envString("SIGNFEED_STORAGE_BACKEND", &cfg.Storage.Backend)
	envString("SIGNFEED_STORAGE_SECRET", &cfg.Storage.Secret)
	envString("SIGNFEED_GATEWAY_TRANSPORT", &cfg.Gateway.Transport)
	envString("SIGNFEED_IPFS_API", &cfg.Gateway.API)
	envInt("SIGNFEED_FETCH_CONCURRENCY", &cfg.Feed.FetchConcurrency)
	envString("SIGNFEED_LOG_LEVEL", &cfg.Log.Level)

	raw := strings.TrimSpace(os.Getenv("SIGNFEED_FETCH_RPS"))
	if raw == "" {
		return
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return
	}
	cfg.Gateway.FetchRPS = v
}

func (c Config) Validate() error {
	switch c.Storage.Backend {
	case BackendLevelDB, BackendDir:
		if strings.TrimSpace(c.DataDir) == "" {
			return fmt.Errorf("%w: storage backend %q needs a data dir", ErrInvalidConfig, c.Storage.Backend)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: unknown storage backend %q", ErrInvalidConfig, c.Storage.Backend)
	}
	switch c.Gateway.Transport {
	case TransportIPFS, TransportMemory:
	default:
		return fmt.Errorf("%w: unknown gateway transport %q", ErrInvalidConfig, c.Gateway.Transport)
	}
	if c.Gateway.FetchRPS < 0 || c.Gateway.FetchBurst < 0 {
		return fmt.Errorf("%w: negative fetch rate", ErrInvalidConfig)
	}
	if c.Feed.FetchConcurrency < 0 || c.Feed.CacheSize < 0 {
		return fmt.Errorf("%w: negative feed limits", ErrInvalidConfig)
	}
	return nil
}

func envString(name string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		*dst = v
	}
}

func envInt(name string, dst *int) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return
	}
	*dst = v
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return dir + string(os.PathSeparator) + "signfeed"
	}
	return ".signfeed"
}
