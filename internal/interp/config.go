package interp

import (
	"time"

	"github.com/veloclimat/veloclimat/internal/errs"
)

// Config holds the interpolation parameters.
type Config struct {
	// LookBack bounds how old a station observation may be relative to the
	// sample. Observations at or before sample time minus LookBack are ignored.
	// Default: 6 minutes
	LookBack time.Duration `yaml:"look_back"`

	// TimeNormalization divides the sample-to-observation offset to obtain the
	// time weight applied to the delta surface. The weight is not clamped.
	// Default: 360 seconds
	TimeNormalization time.Duration `yaml:"time_normalization"`

	// LapseRate is the temperature decrease per unit of elevation (°C/m).
	// Default: 0.0065
	LapseRate float64 `yaml:"lapse_rate"`
}

// DefaultConfig returns the reference deployment parameters.
func DefaultConfig() Config {
	return Config{
		LookBack:          6 * time.Minute,
		TimeNormalization: 360 * time.Second,
		LapseRate:         0.0065,
	}
}

// withDefaults replaces zero durations by their defaults. A zero lapse rate
// is kept: it disables the elevation correction.
func (c Config) withDefaults() Config {
	if c.LookBack == 0 {
		c.LookBack = DefaultConfig().LookBack
	}
	if c.TimeNormalization == 0 {
		c.TimeNormalization = DefaultConfig().TimeNormalization
	}
	return c
}

// Validate rejects negative windows and normalizations.
func (c Config) Validate() error {
	if c.LookBack < 0 {
		return errs.Invalid("interpolation", "look_back", c.LookBack)
	}
	if c.TimeNormalization < 0 {
		return errs.Invalid("interpolation", "time_normalization", c.TimeNormalization)
	}
	if c.LapseRate < 0 {
		return errs.Invalid("interpolation", "lapse_rate", c.LapseRate)
	}
	return nil
}
