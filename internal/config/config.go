package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad"
	"github.com/strongdm/hoptoad-notifier/pkg/hoptoad/delivery"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultAPIKeyEnv     = "HOPTOAD_API_KEY"
	DefaultFlushInterval = time.Minute
	DefaultUploadTimeout = 30 * time.Second
)

// Config is the hoptoad-flush configuration. The flusher only delivers
// notices that are already encoded, so capture settings such as the
// environment name or scrubbing belong to the application's Register call
// and are rejected here as unknown keys.
type Config struct {
	// StorageRoot is the directory holding buffered notices.
	StorageRoot string `yaml:"storage_root"`

	// APIKeyEnv is the name of the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`

	// Endpoint is the collector URL notices are posted to.
	Endpoint string `yaml:"endpoint"`

	// FlushInterval is the pause between flush attempts in periodic mode.
	FlushInterval time.Duration `yaml:"flush_interval"`

	// UploadTimeout bounds a single upload.
	UploadTimeout time.Duration `yaml:"upload_timeout"`
}

// APIKey returns the API key resolved from the environment.
// Returns empty string if APIKeyEnv is unset or the variable is not found.
func (c *Config) APIKey() string {
	if c.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.APIKeyEnv)
}

// Options returns the notifier options described by the config.
func (c *Config) Options() []hoptoad.Option {
	return []hoptoad.Option{
		hoptoad.WithEndpoint(c.Endpoint),
		hoptoad.WithUploadTimeout(c.UploadTimeout),
	}
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		APIKeyEnv:     DefaultAPIKeyEnv,
		Endpoint:      delivery.DefaultEndpoint,
		FlushInterval: DefaultFlushInterval,
		UploadTimeout: DefaultUploadTimeout,
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	if cfg.StorageRoot == "" {
		return fmt.Errorf("storage_root is required")
	}
	if cfg.APIKeyEnv == "" {
		return fmt.Errorf("api_key_env must not be empty")
	}
	if cfg.Endpoint == "" {
		return fmt.Errorf("endpoint must not be empty")
	}
	if cfg.FlushInterval <= 0 {
		return fmt.Errorf("flush_interval must be positive")
	}
	if cfg.UploadTimeout <= 0 {
		return fmt.Errorf("upload_timeout must be positive")
	}
	return nil
}
