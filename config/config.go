// Package config assembles Settings for a loadcache instance from the
// environment (and optionally a YAML file), for operators wiring the
// cache into a service without hand-writing Go option literals.
//
// Grounded on _examples/p-agent-test-kog-demo/internal/config/config.go
// for the envconfig.Process("PREFIX", &cfg) pattern and the
// Load()/error-wrapping shape; the YAML layer is new (this module's
// teacher has no file-based config), grounded on gopkg.in/yaml.v3's
// own documented Unmarshal usage as depended on by
// ammario-tlru and the other examples listed in SPEC_FULL.md §2.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Settings is the subset of loadcache.Option values worth exposing to
// operators outside of Go code: queue capacity, the default TTL for a
// backing/ttl-backed cache, LRU capacity, and Prometheus namespace.
type Settings struct {
	QueueCapacity int           `envconfig:"QUEUE_CAPACITY" yaml:"queueCapacity" default:"128"`
	TTLDefault    time.Duration `envconfig:"TTL_DEFAULT" yaml:"ttlDefault" default:"5m"`
	LRUCapacity   int           `envconfig:"LRU_CAPACITY" yaml:"lruCapacity" default:"10000"`
	MetricsNamespace string     `envconfig:"METRICS_NAMESPACE" yaml:"metricsNamespace" default:"loadcache"`
	LogLevel      string        `envconfig:"LOG_LEVEL" yaml:"logLevel" default:"info"`
}

// Option configures Load.
type Option func(*loadOptions)

type loadOptions struct {
	envPrefix  string
	yamlPath   string
}

// WithEnvPrefix changes the envconfig prefix from the default "CACHE"
// (so e.g. QueueCapacity is read from CACHE_QUEUE_CAPACITY).
func WithEnvPrefix(prefix string) Option {
	return func(o *loadOptions) { o.envPrefix = prefix }
}

// WithYAMLFile layers a YAML file's values over the defaults before
// environment variables are applied; fields present in the file but
// absent from the environment keep the file's value, since envconfig
// only overwrites fields whose corresponding variable is actually set.
func WithYAMLFile(path string) Option {
	return func(o *loadOptions) { o.yamlPath = path }
}

// Load assembles Settings, applying (in order) struct defaults, an
// optional YAML file, then environment variables, matching the
// teacher pack's convention of environment variables being the final,
// highest-precedence override.
func Load(opts ...Option) (Settings, error) {
	lo := loadOptions{envPrefix: "CACHE"}
	for _, o := range opts {
		o(&lo)
	}

	var s Settings
	if lo.yamlPath != "" {
		if err := loadYAML(lo.yamlPath, &s); err != nil {
			return Settings{}, fmt.Errorf("config: %w", err)
		}
	}

	if err := envconfig.Process(lo.envPrefix, &s); err != nil {
		return Settings{}, fmt.Errorf("config: loading from environment: %w", err)
	}
	return s, nil
}

func loadYAML(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
