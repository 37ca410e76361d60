// Package pipeline runs the interpolation stages against the data store and
// fans the run summary out to the configured sinks.
package pipeline

import (
	"fmt"
	"time"

	"github.com/veloclimat/veloclimat/internal/errs"
	"github.com/veloclimat/veloclimat/internal/interp"
	"github.com/veloclimat/veloclimat/internal/landcover"
	"github.com/veloclimat/veloclimat/internal/store"
)

// Target is one sensor family processed by a run.
type Target struct {
	// Name identifies the target in logs, metrics and run summaries.
	Name string `yaml:"name" validate:"required"`

	// Samples maps the cleaned sensor table.
	Samples store.SampleTable `yaml:"samples"`

	// Results receives one row per resolved sample.
	Results string `yaml:"results" validate:"required"`

	// GroupColumn, when set, receives the sample group in Results.
	GroupColumn string `yaml:"group_column"`

	// Profiles, when set, receives the land-cover profile of every result.
	Profiles string `yaml:"profiles"`

	// DailyIndex, when set, receives the daily biometeorological index of
	// the measured temperatures.
	DailyIndex string `yaml:"daily_index"`
}

// Config holds the run configuration.
type Config struct {
	Interpolation interp.Config    `yaml:"interpolation"`
	LandCover     landcover.Config `yaml:"land_cover"`
	Targets       []Target         `yaml:"targets"`

	// Location is the zone calendar days are cut in.
	// Default: UTC
	Location *time.Location `yaml:"-"`
}

// DefaultConfig returns the configuration without targets.
func DefaultConfig() Config {
	return Config{
		Interpolation: interp.DefaultConfig(),
		LandCover:     landcover.DefaultConfig(),
		Location:      time.UTC,
	}
}

// Validate checks the targets and the land-cover settings they use.
func (c Config) Validate() error {
	if len(c.Targets) == 0 {
		return errs.Invalid("pipeline config", "targets", "none")
	}

	seen := make(map[string]bool, len(c.Targets))
	profiles := false
	for _, t := range c.Targets {
		if t.Name == "" {
			return errs.Invalid("pipeline config", "target name", "empty")
		}
		if seen[t.Name] {
			return errs.Invalid("pipeline config", "target name", t.Name)
		}
		seen[t.Name] = true

		if t.Samples.Name == "" {
			return errs.Invalid("pipeline config", fmt.Sprintf("target %s samples", t.Name), "empty")
		}
		if t.Results == "" {
			return errs.Invalid("pipeline config", fmt.Sprintf("target %s results", t.Name), "empty")
		}
		if t.Profiles != "" {
			if t.Profiles == t.Results {
				return errs.Invalid("pipeline config", fmt.Sprintf("target %s profiles", t.Name), t.Profiles)
			}
			profiles = true
		}
	}

	if profiles {
		return c.LandCover.Validate()
	}
	return nil
}
