// Package config loads the rawlayer configuration from YAML, RAWLAYER_* environment
// variables and defaults.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/TFMV/rawlayer/pkg/anomaly"
	"github.com/TFMV/rawlayer/pkg/core"
	"github.com/TFMV/rawlayer/pkg/generate"
	"github.com/TFMV/rawlayer/pkg/temporal"
)

// EnvPrefix prefixes every environment variable, e.g. RAWLAYER_OUTPUT_FORMAT.
const EnvPrefix = "RAWLAYER"

// Formats are the accepted output formats.
var Formats = []string{"parquet", "arrow", "json", "duckdb"}

// --- Configuration Structs ---

type OutputConfig struct {
	Dir          string `mapstructure:"dir" yaml:"dir"`
	Format       string `mapstructure:"format" yaml:"format"`
	Compression  string `mapstructure:"compression" yaml:"compression"`
	DuckDBPath   string `mapstructure:"duckdb_path" yaml:"duckdb_path"`
	DuckDBDriver string `mapstructure:"duckdb_driver" yaml:"duckdb_driver"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

type ServerConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

type AuditConfig struct {
	MinCoverage   float64  `mapstructure:"min_coverage" yaml:"min_coverage"`
	RateTolerance float64  `mapstructure:"rate_tolerance" yaml:"rate_tolerance"`
	Contracts     []string `mapstructure:"contracts" yaml:"contracts"`
}

type Config struct {
	Seed      int64              `mapstructure:"seed" yaml:"seed"`
	Scale     string             `mapstructure:"scale" yaml:"scale"`
	Overrides map[string]int     `mapstructure:"overrides" yaml:"overrides"`
	BatchSize int                `mapstructure:"batch_size" yaml:"batch_size"`
	Anchor    string             `mapstructure:"anchor" yaml:"anchor"`
	Anomalies map[string]float64 `mapstructure:"anomalies" yaml:"anomalies"`
	// NoAnomalies disables every rule regardless of Anomalies.
	NoAnomalies bool         `mapstructure:"no_anomalies" yaml:"no_anomalies"`
	Output      OutputConfig `mapstructure:"output" yaml:"output"`
	Log         LogConfig    `mapstructure:"log" yaml:"log"`
	Server      ServerConfig `mapstructure:"server" yaml:"server"`
	Audit       AuditConfig  `mapstructure:"audit" yaml:"audit"`
}

// --- Load Configuration ---

func setDefaults(v *viper.Viper) {
	v.SetDefault("seed", 42)
	v.SetDefault("scale", "xs")
	v.SetDefault("batch_size", 100_000)
	v.SetDefault("anchor", temporal.DefaultAnchor.Format(time.RFC3339))
	v.SetDefault("output.dir", "data")
	v.SetDefault("output.format", "parquet")
	v.SetDefault("output.compression", "")
	v.SetDefault("output.duckdb_path", "rawlayer.duckdb")
	v.SetDefault("output.duckdb_driver", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "rawlayer.log")
	v.SetDefault("server.port", 8080)
	v.SetDefault("audit.min_coverage", 0.99)
	v.SetDefault("audit.rate_tolerance", 0.005)
}

// New returns a viper instance with the defaults and environment binding applied.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configPath, when given, over the defaults and environment.
func Load(configPath string) (*Config, error) {
	v := New()
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// --- Validation Functions ---

// validate is a helper function to reduce repetition.
func validate(condition bool, field string, value any, format string, a ...any) error {
	if !condition {
		return &core.ConfigError{Field: field, Value: value, Message: fmt.Sprintf(format, a...)}
	}
	return nil
}

func (c *Config) Validate() error {
	if err := validate(c.BatchSize > 0, "batch_size", c.BatchSize, "must be positive"); err != nil {
		return err
	}
	if _, err := c.AnchorTime(); err != nil {
		return err
	}
	if _, err := generate.ResolveCounts(c.Scale, c.Overrides); err != nil {
		return err
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if err := c.Output.Validate(); err != nil {
		return err
	}
	return c.Audit.Validate()
}

func (oc *OutputConfig) Validate() error {
	if err := validate(slices.Contains(Formats, oc.Format), "output.format", oc.Format,
		"must be one of %s", strings.Join(Formats, ", ")); err != nil {
		return err
	}
	if oc.Format == "duckdb" {
		return validate(oc.DuckDBPath != "", "output.duckdb_path", oc.DuckDBPath, "is required for the duckdb format")
	}
	return validate(oc.Dir != "", "output.dir", oc.Dir, "is required")
}

func (ac *AuditConfig) Validate() error {
	if err := validate(ac.MinCoverage >= 0 && ac.MinCoverage <= 1, "audit.min_coverage", ac.MinCoverage,
		"must be between 0 and 1"); err != nil {
		return err
	}
	return validate(ac.RateTolerance >= 0, "audit.rate_tolerance", ac.RateTolerance, "must not be negative")
}

// AnchorTime parses the anchor as RFC3339. An empty anchor selects the default.
func (c *Config) AnchorTime() (time.Time, error) {
	if c.Anchor == "" {
		return temporal.DefaultAnchor, nil
	}
	t, err := time.Parse(time.RFC3339, c.Anchor)
	if err != nil {
		return time.Time{}, &core.ConfigError{Field: "anchor", Value: c.Anchor, Message: "must be RFC3339"}
	}
	return temporal.Normalize(t), nil
}

// Policy builds the anomaly policy from the default rates and the configured overrides.
func (c *Config) Policy() (*anomaly.Policy, error) {
	p, err := anomaly.Default().With(c.Anomalies)
	if err != nil {
		return nil, err
	}
	if c.NoAnomalies {
		return p.Disabled(), nil
	}
	return p, nil
}

// Request builds the generation request the configuration describes.
func (c *Config) Request() (generate.Request, error) {
	anchor, err := c.AnchorTime()
	if err != nil {
		return generate.Request{}, err
	}
	policy, err := c.Policy()
	if err != nil {
		return generate.Request{}, err
	}
	return generate.Request{
		Seed:      c.Seed,
		Scale:     c.Scale,
		Overrides: c.Overrides,
		BatchSize: c.BatchSize,
		Anchor:    anchor,
		Policy:    policy,
	}, nil
}
