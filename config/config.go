// Package config provides configuration loading and management for
// conformity. Configuration is layered: defaults, then the user config
// file, then the project config file found near the checked
// repository, with later layers taking precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/conformity/report"
)

// Config represents the complete conformity configuration
type Config struct {
	Output  OutputConfig  `yaml:"output"`
	Scan    ScanConfig    `yaml:"scan"`
	Rules   RulesConfig   `yaml:"rules"`
	Watch   WatchConfig   `yaml:"watch"`
	Publish PublishConfig `yaml:"publish"`
	// Workers caps concurrent validation goroutines (0 or 1 = sequential)
	Workers int `yaml:"workers,omitempty"`
}

// OutputConfig configures report rendering
type OutputConfig struct {
	// Format is the report format: "text" or "json"
	Format string `yaml:"format"`
	// Strict escalates ambiguous and unclassified entities to failures
	Strict bool `yaml:"strict"`
}

// ScanConfig configures the repository walk
type ScanConfig struct {
	// Ignore lists gitignore-style patterns skipped during the walk,
	// on top of the built-in defaults and the repository's .gitignore
	Ignore []string `yaml:"ignore,omitempty"`
	// PlaybookDirs are the directories searched for playbooks ("." = repo root)
	PlaybookDirs []string `yaml:"playbook_dirs,omitempty"`
}

// RulesConfig customizes the rule table
type RulesConfig struct {
	// Clusters lists cluster names recognized as specific-group prefixes
	Clusters []string `yaml:"clusters,omitempty"`
	// ClusterPattern matches the first dash segment of cluster-specific group names
	ClusterPattern string `yaml:"cluster_pattern,omitempty"`
	// PluralExceptions lists words excluded from plurality checks
	PluralExceptions []string `yaml:"plural_exceptions,omitempty"`
	// ExemptGroups lists group names excluded from plurality and prefix checks
	ExemptGroups []string `yaml:"exempt_groups,omitempty"`
}

// WatchConfig configures watch mode
type WatchConfig struct {
	// Debounce is the settle delay between a file change and a re-run
	Debounce time.Duration `yaml:"debounce"`
	// MetricsAddr exposes Prometheus metrics on this address when non-empty (e.g. ":9187")
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// PublishConfig configures report publishing
type PublishConfig struct {
	// URL is the NATS server address (empty = publishing disabled)
	URL string `yaml:"url,omitempty"`
	// Subject overrides the default report subject
	Subject string `yaml:"subject,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Output: OutputConfig{
			Format: report.FormatText.String(),
		},
		Watch: WatchConfig{
			Debounce: 500 * time.Millisecond,
		},
		Workers: 1,
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if !report.Format(c.Output.Format).IsValid() {
		return fmt.Errorf("output.format %q is not a known format", c.Output.Format)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	if c.Rules.ClusterPattern != "" {
		if _, err := regexp.Compile(c.Rules.ClusterPattern); err != nil {
			return fmt.Errorf("rules.cluster_pattern: %w", err)
		}
	}
	for _, dir := range c.Scan.PlaybookDirs {
		if dir == "" {
			return fmt.Errorf("scan.playbook_dirs must not contain empty entries")
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Output
	if other.Output.Format != "" {
		c.Output.Format = other.Output.Format
	}
	if other.Output.Strict {
		c.Output.Strict = true
	}

	// Scan
	if len(other.Scan.Ignore) > 0 {
		c.Scan.Ignore = other.Scan.Ignore
	}
	if len(other.Scan.PlaybookDirs) > 0 {
		c.Scan.PlaybookDirs = other.Scan.PlaybookDirs
	}

	// Rules
	if len(other.Rules.Clusters) > 0 {
		c.Rules.Clusters = other.Rules.Clusters
	}
	if other.Rules.ClusterPattern != "" {
		c.Rules.ClusterPattern = other.Rules.ClusterPattern
	}
	if len(other.Rules.PluralExceptions) > 0 {
		c.Rules.PluralExceptions = other.Rules.PluralExceptions
	}
	if len(other.Rules.ExemptGroups) > 0 {
		c.Rules.ExemptGroups = other.Rules.ExemptGroups
	}

	// Watch
	if other.Watch.Debounce > 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.Watch.MetricsAddr != "" {
		c.Watch.MetricsAddr = other.Watch.MetricsAddr
	}

	// Publish
	if other.Publish.URL != "" {
		c.Publish.URL = other.Publish.URL
	}
	if other.Publish.Subject != "" {
		c.Publish.Subject = other.Publish.Subject
	}

	if other.Workers > 0 {
		c.Workers = other.Workers
	}
}
