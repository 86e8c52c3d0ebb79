// Package config provides the resolved set of tunables for an export run.
// Configuration is layered: compiled-in defaults, then an optional YAML
// file, then environment variables (the names the deployment has always
// used, e.g. GCP_PROJECT and ROW_LIMIT). The struct itself is pure data;
// behavior lives in the components it is handed to.
package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/eventrelay/eventrelay/pkg/errors"
)

// Config is the resolved configuration for a run.
type Config struct {
	// ProjectID is the cloud project holding the secret/checkpoint store
	ProjectID string `yaml:"project_id"`

	Source  SourceConfig `yaml:"source"`
	Sink    SinkConfig   `yaml:"sink"`
	Secrets SecretSlots  `yaml:"secrets"`
	Batch   BatchConfig  `yaml:"batch"`
	Log     LogConfig    `yaml:"log"`
}

// SourceConfig locates the analytics query endpoint.
type SourceConfig struct {
	// APIRoot is the host of the query API, e.g. "api.tinybird.co"
	APIRoot string `yaml:"api_root"`
	// Endpoint is the published pipe name to read from
	Endpoint string `yaml:"endpoint"`
	// RowLimit bounds a single read
	RowLimit int `yaml:"row_limit"`
}

// SinkConfig locates the ingestion endpoint.
type SinkConfig struct {
	// Endpoint is the full batch ingestion URL
	Endpoint string `yaml:"endpoint"`
}

// SecretSlots names the keys in the secret store for each stored value.
type SecretSlots struct {
	SourceToken string `yaml:"source_token"`
	WriteKey    string `yaml:"write_key"`
	Watermark   string `yaml:"watermark"`
}

// BatchConfig controls transformation and chunking.
type BatchConfig struct {
	// MaxChunkBytes is the sink's payload budget per delivery
	MaxChunkBytes int `yaml:"max_chunk_bytes"`
	// MaxEventSize is the per-event size cap; larger rows are skipped
	MaxEventSize int `yaml:"max_event_size"`
	// SampleSize is how many head events seed the chunk-size estimate
	SampleSize int `yaml:"sample_size"`
	// SendDelay is the pause between successive chunk deliveries
	SendDelay time.Duration `yaml:"send_delay"`

	// Field names extracted from each source row
	UserField      string `yaml:"user_field"`
	EventField     string `yaml:"event_field"`
	TimestampField string `yaml:"timestamp_field"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Source: SourceConfig{
			APIRoot:  "api.tinybird.co",
			Endpoint: "api_enriched_user_events_export",
			RowLimit: 5000,
		},
		Sink: SinkConfig{
			Endpoint: "https://api.segment.io/v1/batch",
		},
		Secrets: SecretSlots{
			SourceToken: "demo-segment-tinybird-token",
			WriteKey:    "demo-segment-write-key",
			Watermark:   "demo-segment-last-ts",
		},
		Batch: BatchConfig{
			MaxChunkBytes:  500 * 1024,
			MaxEventSize:   32 * 1024,
			SampleSize:     50,
			SendDelay:      1 * time.Second,
			UserField:      "user_id",
			EventField:     "event",
			TimestampField: "timestamp",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// envBindings maps config keys to the environment variables the deployment
// has historically used.
var envBindings = map[string]string{
	"project_id":            "GCP_PROJECT",
	"source.api_root":       "TINYBIRD_API_ROOT",
	"source.endpoint":       "TINYBIRD_API_ENDPOINT",
	"source.row_limit":      "ROW_LIMIT",
	"sink.endpoint":         "SEGMENT_API_ENDPOINT",
	"batch.max_chunk_bytes": "MAX_SEGMENT_BATCH_SIZE",
	"batch.max_event_size":  "MAX_SEGMENT_ROW_SIZE",
	"batch.send_delay":      "SEGMENT_BATCH_SEND_DELAY",
	"batch.sample_size":     "SEGMENT_BATCH_SAMPLE_SIZE",
	"secrets.source_token":  "TINYBIRD_TOKEN_SECRET",
	"secrets.write_key":     "SEGMENT_WRITE_KEY_SECRET",
	"secrets.watermark":     "LAST_TS_SECRET",
	"log.level":             "LOG_LEVEL",
}

// Load resolves configuration from defaults, an optional YAML file and the
// environment, in that order of increasing precedence. An empty path skips
// the file layer.
func Load(path string) (*Config, error) {
	cfg := New()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to bind environment")
		}
	}

	applyEnv(v, cfg)
	return cfg, nil
}

// loadFile layers a YAML file over cfg.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse config file")
	}
	return nil
}

// applyEnv overrides cfg fields for which an environment variable is set.
func applyEnv(v *viper.Viper, cfg *Config) {
	setString := func(key string, dst *string) {
		if v.IsSet(key) && v.GetString(key) != "" {
			*dst = v.GetString(key)
		}
	}
	setInt := func(key string, dst *int) {
		if v.IsSet(key) && v.GetInt(key) > 0 {
			*dst = v.GetInt(key)
		}
	}

	setString("project_id", &cfg.ProjectID)
	setString("source.api_root", &cfg.Source.APIRoot)
	setString("source.endpoint", &cfg.Source.Endpoint)
	setInt("source.row_limit", &cfg.Source.RowLimit)
	setString("sink.endpoint", &cfg.Sink.Endpoint)
	setInt("batch.max_chunk_bytes", &cfg.Batch.MaxChunkBytes)
	setInt("batch.max_event_size", &cfg.Batch.MaxEventSize)
	setInt("batch.sample_size", &cfg.Batch.SampleSize)
	setString("secrets.source_token", &cfg.Secrets.SourceToken)
	setString("secrets.write_key", &cfg.Secrets.WriteKey)
	setString("secrets.watermark", &cfg.Secrets.Watermark)
	setString("log.level", &cfg.Log.Level)

	if v.IsSet("batch.send_delay") {
		if d := v.GetDuration("batch.send_delay"); d > 0 {
			cfg.Batch.SendDelay = d
		}
	}
}

// Validate checks that required settings are present and bounds are sane.
// Failures are fatal before a run starts.
func (c *Config) Validate() error {
	if c.ProjectID == "" {
		return errors.New(errors.ErrorTypeConfig, "project ID is required (set GCP_PROJECT)")
	}
	if c.Source.APIRoot == "" || c.Source.Endpoint == "" {
		return errors.New(errors.ErrorTypeConfig, "source endpoint is required")
	}
	if c.Sink.Endpoint == "" {
		return errors.New(errors.ErrorTypeConfig, "sink endpoint is required")
	}
	if c.Source.RowLimit <= 0 {
		return errors.New(errors.ErrorTypeConfig, "row limit must be positive")
	}
	if c.Batch.MaxChunkBytes <= 0 || c.Batch.MaxEventSize <= 0 {
		return errors.New(errors.ErrorTypeConfig, "size limits must be positive")
	}
	if c.Batch.SampleSize <= 0 {
		return errors.New(errors.ErrorTypeConfig, "sample size must be positive")
	}
	if c.Secrets.SourceToken == "" || c.Secrets.WriteKey == "" || c.Secrets.Watermark == "" {
		return errors.New(errors.ErrorTypeConfig, "secret slot names are required")
	}
	return nil
}
