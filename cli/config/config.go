// Package config provides configuration management for the ferret CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, as in FERRET_DATABASE_URL.
const EnvPrefix = "FERRET_"

// Supported values for the enumerated settings.
var (
	Drivers     = []string{"memory", "postgres", "sqlite"}
	Serializers = []string{"json", "msgpack", "protobuf"}
	LogLevels   = []string{"debug", "info", "warn", "error"}
)

// Config represents the ferret CLI configuration
type Config struct {
	// Version of the config file format
	Version string `yaml:"version"`

	Project ProjectConfig `yaml:"project"`

	Database DatabaseConfig `yaml:"database" envPrefix:"DATABASE_"`

	// Serializer encodes event payloads: json, msgpack or protobuf
	Serializer string `yaml:"serializer" env:"SERIALIZER"`

	Log LogConfig `yaml:"log" envPrefix:"LOG_"`

	// Trace prints OpenTelemetry spans for each command to stderr
	Trace bool `yaml:"trace" env:"TRACE"`

	Counter CounterConfig `yaml:"counter"`
}

// ProjectConfig contains project-level settings
type ProjectConfig struct {
	Name string `yaml:"name"`
}

// DatabaseConfig contains event log connection settings
type DatabaseConfig struct {
	// Driver is the event log backend (memory, postgres, sqlite)
	Driver string `yaml:"driver" env:"DRIVER"`

	// URL is the postgres connection string. ${VAR} references are expanded.
	URL string `yaml:"url,omitempty" env:"URL"`

	// Schema is the postgres schema to use
	Schema string `yaml:"schema,omitempty" env:"SCHEMA"`

	// Path is the sqlite database file, relative to the config file
	Path string `yaml:"path,omitempty" env:"PATH"`
}

// LogConfig controls CLI logging
type LogConfig struct {
	Level string `yaml:"level" env:"LEVEL"`
}

// CounterConfig configures the built-in counter domain
type CounterConfig struct {
	Limit int64 `yaml:"limit"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Project: ProjectConfig{
			Name: "my-ferret-app",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Schema: "ferret",
			Path:   "ferret.db",
		},
		Serializer: "json",
		Log: LogConfig{
			Level: "warn",
		},
		Counter: CounterConfig{
			Limit: 10,
		},
	}
}

// ConfigFileName is the default config file name
const ConfigFileName = "ferret.yaml"

// Load loads configuration from the specified directory
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, ConfigFileName))
}

// LoadFile loads configuration from a specific file path. Settings missing
// from the file keep their defaults and environment overrides win over both.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides settings from FERRET_* environment variables.
func (c *Config) ApplyEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("config: environment: %w", err)
	}
	return nil
}

// Save saves the configuration to the specified directory
func (c *Config) Save(dir string) error {
	return c.SaveFile(filepath.Join(dir, ConfigFileName))
}

// SaveFile saves the configuration to a specific file path
func (c *Config) SaveFile(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Exists checks if a config file exists in the directory
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConfigFileName))
	return err == nil
}

// FindConfig searches for a config file starting from dir and going up
func FindConfig(dir string) (string, *Config, error) {
	current := dir
	for {
		configPath := filepath.Join(current, ConfigFileName)
		if _, err := os.Stat(configPath); err == nil {
			cfg, err := LoadFile(configPath)
			if err != nil {
				return "", nil, err
			}
			return current, cfg, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", nil, os.ErrNotExist
		}
		current = parent
	}
}

// DatabaseURL returns the postgres URL with environment references expanded.
func (c *Config) DatabaseURL() string {
	return os.ExpandEnv(c.Database.URL)
}

// DatabasePath resolves the sqlite file against dir unless it is absolute.
func (c *Config) DatabasePath(dir string) string {
	if c.Database.Path == "" || filepath.IsAbs(c.Database.Path) {
		return c.Database.Path
	}
	return filepath.Join(dir, c.Database.Path)
}

// Validate validates the configuration
func (c *Config) Validate() []string {
	var errors []string

	if c.Project.Name == "" {
		errors = append(errors, "project.name is required")
	}

	switch {
	case c.Database.Driver == "":
		errors = append(errors, "database.driver is required")
	case !slices.Contains(Drivers, c.Database.Driver):
		errors = append(errors, "database.driver must be 'memory', 'postgres' or 'sqlite'")
	case c.Database.Driver == "postgres" && c.Database.URL == "":
		errors = append(errors, "database.url is required for postgres driver")
	case c.Database.Driver == "sqlite" && c.Database.Path == "":
		errors = append(errors, "database.path is required for sqlite driver")
	}

	if !slices.Contains(Serializers, c.Serializer) {
		errors = append(errors, "serializer must be 'json', 'msgpack' or 'protobuf'")
	}

	if c.Log.Level != "" && !slices.Contains(LogLevels, c.Log.Level) {
		errors = append(errors, "log.level must be 'debug', 'info', 'warn' or 'error'")
	}

	if c.Counter.Limit < 0 {
		errors = append(errors, "counter.limit must not be negative")
	}

	return errors
}

// GenerateYAML generates YAML content with comments
func GenerateYAML(cfg *Config) string {
	return `# Ferret Configuration File

version: "1"

project:
  name: "` + cfg.Project.Name + `"

# Event log backend (override with FERRET_DATABASE_* variables)
database:
  # Driver: memory, postgres or sqlite
  driver: "` + cfg.Database.Driver + `"

  # Connection URL (postgres only)
  url: "${DATABASE_URL}"

  # Database schema (postgres only)
  schema: "` + cfg.Database.Schema + `"

  # Database file relative to this config (sqlite only)
  path: "` + cfg.Database.Path + `"

# Event payload encoding: json, msgpack or protobuf
serializer: "` + cfg.Serializer + `"

log:
  level: "` + cfg.Log.Level + `"

# Print spans for each command to stderr
trace: ` + fmt.Sprint(cfg.Trace) + `

counter:
  # Increments are rejected once a counter reaches this value
  limit: ` + fmt.Sprint(cfg.Counter.Limit) + `
`
}
