// Package config loads the service configuration from a YAML file, a .env
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/veloclimat/veloclimat/internal/auth"
	"github.com/veloclimat/veloclimat/internal/database"
	"github.com/veloclimat/veloclimat/internal/errs"
	"github.com/veloclimat/veloclimat/internal/interp"
	"github.com/veloclimat/veloclimat/internal/landcover"
	"github.com/veloclimat/veloclimat/internal/pipeline"
	"github.com/veloclimat/veloclimat/internal/sink"
	"github.com/veloclimat/veloclimat/internal/store"
	"github.com/veloclimat/veloclimat/internal/telemetry"
	"github.com/veloclimat/veloclimat/internal/worker"
)

// ServiceName is reported to telemetry and used as the default token issuer.
const ServiceName = "veloclimat"

// Config is the complete service configuration.
type Config struct {
	Database      database.Config   `yaml:"database"`
	Tables        store.Tables      `yaml:"tables"`
	Interpolation interp.Config     `yaml:"interpolation"`
	LandCover     landcover.Config  `yaml:"land_cover"`
	Targets       []pipeline.Target `yaml:"targets" validate:"required,min=1,dive"`
	Telemetry     telemetry.Config  `yaml:"telemetry"`
	Worker        worker.Config     `yaml:"worker"`
	Sinks         Sinks             `yaml:"sinks"`
	Ledger        Ledger            `yaml:"ledger"`
	Auth          auth.Config       `yaml:"auth"`

	// Location is the IANA zone calendar days are cut in.
	// Default: UTC
	Location string `yaml:"location"`
}

// Sinks holds the optional run sinks. A sink without an address is disabled.
type Sinks struct {
	ClickHouse sink.ClickHouseConfig `yaml:"clickhouse"`
	NATS       sink.NATSConfig       `yaml:"nats"`
}

// Ledger configures the local run history.
type Ledger struct {
	// Path of the SQLite file. Empty keeps the history in memory.
	// Default: veloclimat-runs.db
	Path string `yaml:"path"`

	// Retain is the number of runs kept. Zero keeps every run.
	// Default: 500
	Retain int `yaml:"retain" validate:"min=0"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Database:      database.DefaultConfig(),
		Tables:        store.DefaultTables(),
		Interpolation: interp.DefaultConfig(),
		LandCover:     landcover.DefaultConfig(),
		Telemetry:     telemetry.DefaultConfig(ServiceName),
		Worker:        worker.DefaultConfig(),
		Ledger: Ledger{
			Path:   "veloclimat-runs.db",
			Retain: 500,
		},
		Auth: auth.Config{
			Issuer:   ServiceName,
			Audience: ServiceName + "-ops",
		},
		Location: "UTC",
	}
}

// Load reads path over the defaults, applies the environment and validates
// the result. A missing .env file is ignored.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML data over the defaults, applies the environment and
// validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errs.New(errs.ErrInvalidParameter, "parse config", "yaml", err)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields with the environment variables that are set.
func (c *Config) ApplyEnv() {
	c.Database.ApplyEnv()
	c.Telemetry.ApplyEnv()

	if port, err := strconv.Atoi(os.Getenv("APP_PORT")); err == nil {
		c.Worker.Port = port
	}
	if v := os.Getenv("JWT_SIGNING_KEY"); v != "" {
		c.Auth.SigningKey = v
	}
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		c.Worker.PubSub.ProjectID = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.Sinks.ClickHouse.Password = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.Sinks.NATS.URL = v
	}
}

var validate = validator.New()

// Validate checks struct constraints, then the run configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return errs.New(errs.ErrInvalidParameter, "validate config",
				fmt.Sprintf("%s=%v", fe.Namespace(), fe.Value()), err)
		}
		return errs.New(errs.ErrInvalidParameter, "validate config", "", err)
	}

	if _, err := c.TimeLocation(); err != nil {
		return err
	}
	if err := c.Interpolation.Validate(); err != nil {
		return err
	}
	return c.Pipeline().Validate()
}

// TimeLocation resolves Location.
func (c *Config) TimeLocation() (*time.Location, error) {
	if c.Location == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, errs.New(errs.ErrInvalidParameter, "load config", "location="+c.Location, err)
	}
	return loc, nil
}

// Pipeline returns the run configuration.
func (c *Config) Pipeline() pipeline.Config {
	loc, err := c.TimeLocation()
	if err != nil {
		loc = time.UTC
	}
	return pipeline.Config{
		Interpolation: c.Interpolation,
		LandCover:     c.LandCover,
		Targets:       c.Targets,
		Location:      loc,
	}
}
