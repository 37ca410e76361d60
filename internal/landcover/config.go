package landcover

import (
	"github.com/veloclimat/veloclimat/internal/errs"
)

// Config holds the aggregator parameters.
type Config struct {
	// Radius of the buffer around each site, in meters of the metric
	// projection.
	// Default: 100
	Radius float64 `yaml:"radius"`

	// Segments is the number of buffer vertices per quarter circle.
	// Default: 8
	Segments int `yaml:"segments"`

	// Columns are the source columns carried through to the profile table.
	// At least one is required.
	Columns []string `yaml:"columns"`

	// DeleteSource drops the source table once the profile table is written.
	// Default: false
	DeleteSource bool `yaml:"delete_source"`

	// Geographic marks layers and sites stored in WGS84 longitude/latitude.
	// They are projected to Web Mercator before buffering.
	// Default: true
	Geographic bool `yaml:"geographic"`

	// Mapping groups classes into macro categories.
	// Default: DefaultMapping()
	Mapping Mapping `yaml:"mapping"`
}

// DefaultConfig returns the reference parameters. Columns are left empty:
// they depend on the source table.
func DefaultConfig() Config {
	return Config{
		Radius:     100,
		Segments:   8,
		Geographic: true,
		Mapping:    DefaultMapping(),
	}
}

// Validate rejects unusable parameters.
func (c Config) Validate() error {
	if c.Radius <= 0 {
		return errs.Invalid("land cover", "radius", c.Radius)
	}
	if c.Segments < 1 {
		return errs.Invalid("land cover", "segments", c.Segments)
	}
	if len(c.Columns) == 0 {
		return errs.Invalid("land cover", "columns", "empty")
	}
	return c.Mapping.Validate()
}
