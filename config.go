package nsbundle

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/nsbundle/types"
)

// Config is the configuration for the Engine.
//
// All duration fields accept standard Go duration strings like "100ms", "5s".
type Config struct {
	// DefaultNumBundles is the bundle count used when bootstrapping a
	// namespace that has neither a local policy nor a namespace-wide
	// default. Recommended: 4.
	DefaultNumBundles int `yaml:"defaultNumBundles"`

	// LoadRetryInitialBackoff is the first retry delay after a transient
	// metadata failure during a bundle table load.
	// Recommended: 100ms.
	LoadRetryInitialBackoff time.Duration `yaml:"loadRetryInitialBackoff"`

	// LoadRetryMaxBackoff caps the exponential retry delay.
	// Recommended: 5s.
	LoadRetryMaxBackoff time.Duration `yaml:"loadRetryMaxBackoff"`

	// LoadRetryDeadline bounds a whole load, retries included, measured
	// from the first attempt. Exceeding it fails the lookup with the
	// underlying cause; callers see service-unavailable semantics.
	// Recommended: 10s.
	LoadRetryDeadline time.Duration `yaml:"loadRetryDeadline"`

	// SelectionTimeout bounds the metadata and topic-listing work inside
	// bundle selection operations (highest topic count / throughput)
	// when the caller's context carries no deadline.
	// Recommended: 30s.
	SelectionTimeout time.Duration `yaml:"selectionTimeout"`
}

// DefaultConfig returns a Config with sensible defaults.
//
// Returns:
//   - Config: Configuration with default values
func DefaultConfig() Config {
	return Config{
		DefaultNumBundles:       4,
		LoadRetryInitialBackoff: 100 * time.Millisecond,
		LoadRetryMaxBackoff:     5 * time.Second,
		LoadRetryDeadline:       10 * time.Second,
		SelectionTimeout:        30 * time.Second,
	}
}

// LoadConfig reads a YAML configuration file, applying defaults for
// omitted fields.
//
// Parameters:
//   - path: YAML file path
//
// Returns:
//   - Config: Parsed configuration
//   - error: File or YAML error
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: parse config file: %w", types.ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks configuration invariants.
//
// Returns:
//   - error: ErrInvalidConfig describing the first violated constraint
func (c *Config) Validate() error {
	if c.DefaultNumBundles <= 0 {
		return fmt.Errorf("%w: defaultNumBundles must be positive, got %d",
			types.ErrInvalidConfig, c.DefaultNumBundles)
	}
	if c.LoadRetryInitialBackoff <= 0 {
		return fmt.Errorf("%w: loadRetryInitialBackoff must be positive, got %s",
			types.ErrInvalidConfig, c.LoadRetryInitialBackoff)
	}
	if c.LoadRetryMaxBackoff < c.LoadRetryInitialBackoff {
		return fmt.Errorf("%w: loadRetryMaxBackoff (%s) must be >= loadRetryInitialBackoff (%s)",
			types.ErrInvalidConfig, c.LoadRetryMaxBackoff, c.LoadRetryInitialBackoff)
	}
	if c.LoadRetryDeadline <= 0 {
		return fmt.Errorf("%w: loadRetryDeadline must be positive, got %s",
			types.ErrInvalidConfig, c.LoadRetryDeadline)
	}
	if c.SelectionTimeout <= 0 {
		return fmt.Errorf("%w: selectionTimeout must be positive, got %s",
			types.ErrInvalidConfig, c.SelectionTimeout)
	}

	return nil
}
