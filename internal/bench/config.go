package bench

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/opendata-oss/opendata-go/pkg/config"
)

// Config drives one benchmark run, loaded from a YAML or JSON file.
type Config struct {
	Topic      string `yaml:"topic" json:"topic"`
	Partitions int    `yaml:"partitions" json:"partitions"`
	Producers  int    `yaml:"producers" json:"producers"`

	// PayloadBytes is the size of each message body.
	PayloadBytes int `yaml:"payloadBytes" json:"payloadBytes"`

	// RatePerSec throttles each producer; 0 means unthrottled.
	RatePerSec float64 `yaml:"ratePerSec" json:"ratePerSec"`

	// DurationMs bounds the run; producers stop publishing once elapsed.
	DurationMs int `yaml:"durationMs" json:"durationMs"`

	// DrainMs is how long after producers stop the consumer keeps polling
	// to catch up on the tail.
	DrainMs int `yaml:"drainMs" json:"drainMs"`

	// Filter is an optional CEL expression gating delivery.
	Filter string `yaml:"filter" json:"filter"`

	BatchLimit      int `yaml:"batchLimit" json:"batchLimit"`
	ReaderRefreshMs int `yaml:"readerRefreshMs" json:"readerRefreshMs"`
	SealIntervalMs  int `yaml:"sealIntervalMs" json:"sealIntervalMs"`

	Storage StorageConfig `yaml:"storage" json:"storage"`
}

// StorageConfig selects the store backing the run.
type StorageConfig struct {
	// Type is "memory" or "persistent".
	Type     string `yaml:"type" json:"type"`
	DataPath string `yaml:"dataPath" json:"dataPath"`

	// ObjectStore is "memory", "local" or "cloud"; only meaningful for the
	// persistent type.
	ObjectStore     string `yaml:"objectStore" json:"objectStore"`
	ObjectStorePath string `yaml:"objectStorePath" json:"objectStorePath"`
	CloudRegion     string `yaml:"cloudRegion" json:"cloudRegion"`
	CloudBucket     string `yaml:"cloudBucket" json:"cloudBucket"`

	SettingsPath string `yaml:"settingsPath" json:"settingsPath"`
}

// Default returns built-in defaults for a short in-memory run.
func Default() Config {
	return Config{
		Topic:           "bench",
		Partitions:      4,
		Producers:       2,
		PayloadBytes:    128,
		DurationMs:      10_000,
		DrainMs:         2_000,
		BatchLimit:      256,
		ReaderRefreshMs: int(time.Second / time.Millisecond),
		Storage:         StorageConfig{Type: "memory"},
	}
}

// Load reads configuration from a YAML or JSON file (by extension) on top
// of defaults, then overlays OPENDATA_* environment variables. An empty
// path returns defaults with the env overlay applied.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		switch filepath.Ext(path) {
		case ".json":
			if err := json.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	FromEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromEnv overlays OPENDATA_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("OPENDATA_BENCH_TOPIC"); v != "" {
		cfg.Topic = v
	}
	if v := os.Getenv("OPENDATA_BENCH_PARTITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Partitions = n
		}
	}
	if v := os.Getenv("OPENDATA_BENCH_PRODUCERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Producers = n
		}
	}
	if v := os.Getenv("OPENDATA_BENCH_PAYLOAD_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PayloadBytes = n
		}
	}
	if v := os.Getenv("OPENDATA_BENCH_RATE_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RatePerSec = f
		}
	}
	if v := os.Getenv("OPENDATA_BENCH_DURATION_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DurationMs = n
		}
	}
	if v := os.Getenv("OPENDATA_BENCH_FILTER"); v != "" {
		cfg.Filter = v
	}
	if v := os.Getenv("OPENDATA_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("OPENDATA_STORAGE_DATA_PATH"); v != "" {
		cfg.Storage.DataPath = v
	}
	if v := os.Getenv("OPENDATA_STORAGE_OBJECT_STORE"); v != "" {
		cfg.Storage.ObjectStore = v
	}
	if v := os.Getenv("OPENDATA_STORAGE_OBJECT_STORE_PATH"); v != "" {
		cfg.Storage.ObjectStorePath = v
	}
	if v := os.Getenv("OPENDATA_STORAGE_SETTINGS_PATH"); v != "" {
		cfg.Storage.SettingsPath = v
	}
}

// Validate checks the run parameters. Storage variant validation happens in
// ToStorage via the config package.
func (c Config) Validate() error {
	if c.Topic == "" {
		return fmt.Errorf("topic must not be empty")
	}
	if c.Partitions < 1 {
		return fmt.Errorf("partitions must be >= 1, got %d", c.Partitions)
	}
	if c.Producers < 1 {
		return fmt.Errorf("producers must be >= 1, got %d", c.Producers)
	}
	if c.PayloadBytes < 1 {
		return fmt.Errorf("payloadBytes must be >= 1, got %d", c.PayloadBytes)
	}
	if c.DurationMs < 1 {
		return fmt.Errorf("durationMs must be >= 1, got %d", c.DurationMs)
	}
	if c.RatePerSec < 0 {
		return fmt.Errorf("ratePerSec must be >= 0, got %v", c.RatePerSec)
	}
	return nil
}

// ToStorage maps the flat file representation onto a storage variant.
func (c StorageConfig) ToStorage() (config.Storage, error) {
	switch c.Type {
	case "", "memory":
		return config.InMemory{}, nil
	case "persistent":
		var store config.ObjectStore
		switch c.ObjectStore {
		case "", "memory":
			store = config.InMemoryObjectStore{}
		case "local":
			store = config.Local{Path: c.ObjectStorePath}
		case "cloud":
			store = config.Cloud{Region: c.CloudRegion, Bucket: c.CloudBucket}
		default:
			return nil, fmt.Errorf("unknown object store %q", c.ObjectStore)
		}
		st := config.Persistent{
			DataPath:     c.DataPath,
			ObjectStore:  store,
			SettingsPath: c.SettingsPath,
		}
		if err := st.Validate(); err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", c.Type)
	}
}
