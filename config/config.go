// Package config loads YAML definitions of tiered operators together with
// the logging, metrics and tier store settings around them.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultMetricsPath = "/metrics"

// Config is the root of a configuration file.
type Config struct {
	Logging   LoggingConfig    `yaml:"logging"`
	Metrics   MetricsConfig    `yaml:"metrics"`
	Store     StoreConfig      `yaml:"store"`
	Operators []OperatorConfig `yaml:"operators"`
}

// LoggingConfig selects the zap logger built by NewLogger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// StoreConfig holds the settings of the shared tier store.
type StoreConfig struct {
	// MaxTierBytes bounds every tier buffer of the store. Zero means no limit.
	MaxTierBytes ByteSize `yaml:"max_tier_bytes"`
	// SnapshotPath is the bbolt file used to save and restore tier buffers.
	SnapshotPath string `yaml:"snapshot_path"`
}

// Endpoint returns the address and path to serve metrics on. A non-empty
// override address serves metrics even when they are disabled in the file.
// ok is false when metrics are not served.
func (m MetricsConfig) Endpoint(override string) (addr, path string, ok bool) {
	path = m.Path
	if path == "" {
		path = defaultMetricsPath
	}

	switch {
	case override != "":
		return override, path, true
	case m.Enabled && m.Listen != "":
		return m.Listen, path, true
	default:
		return "", "", false
	}
}

// OperatorConfig is one named operator definition. Parameters are handed to
// the operator as strings; YAML numbers and booleans are accepted unquoted.
type OperatorConfig struct {
	Name       string         `yaml:"name"`
	Parameters map[string]any `yaml:"parameters"`
}

// Params returns the parameters rendered as strings.
func (o OperatorConfig) Params() map[string]string {
	params := make(map[string]string, len(o.Parameters))
	for k, v := range o.Parameters {
		if v == nil {
			params[k] = ""
			continue
		}
		params[k] = fmt.Sprint(v)
	}

	return params
}

// Operator returns the definition with the given name.
func (c *Config) Operator(name string) (OperatorConfig, bool) {
	for _, op := range c.Operators {
		if op.Name == name {
			return op, true
		}
	}

	return OperatorConfig{}, false
}

// OperatorNames returns the operator names in sorted order.
func (c *Config) OperatorNames() []string {
	names := make([]string, 0, len(c.Operators))
	for _, op := range c.Operators {
		names = append(names, op.Name)
	}
	sort.Strings(names)

	return names
}

// Load reads, parses and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse parses and validates YAML data on top of DefaultConfig.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate reports the first invalid setting in c.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}
	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	if c.Store.MaxTierBytes < 0 {
		return fmt.Errorf("store.max_tier_bytes must be >= 0, got %d", c.Store.MaxTierBytes)
	}

	if len(c.Operators) == 0 {
		return fmt.Errorf("at least one operator must be configured")
	}

	seen := make(map[string]struct{}, len(c.Operators))
	for i, op := range c.Operators {
		if op.Name == "" {
			return fmt.Errorf("operators[%d].name is required", i)
		}
		if _, dup := seen[op.Name]; dup {
			return fmt.Errorf("operators[%d]: duplicate name %q", i, op.Name)
		}
		seen[op.Name] = struct{}{}

		if _, ok := op.Parameters["tiers"]; !ok {
			return fmt.Errorf("operators[%d] (%s): parameters.tiers is required", i, op.Name)
		}
	}

	return nil
}

// DefaultConfig returns the settings used for keys a file leaves out.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Listen: ":9090",
			Path:   defaultMetricsPath,
		},
	}
}
