package store

// StationTable maps the station layer.
type StationTable struct {
	Name     string `yaml:"name"`
	ID       string `yaml:"id"`
	Geometry string `yaml:"geometry"`
}

// ObservationTable maps the station time series.
type ObservationTable struct {
	Name      string `yaml:"name"`
	StationID string `yaml:"station_id"`
	Time      string `yaml:"time"`
	Baseline  string `yaml:"baseline"`
	Delta     string `yaml:"delta"`
}

// LandCoverTable maps the land-cover polygon layer.
type LandCoverTable struct {
	Name     string `yaml:"name"`
	Class    string `yaml:"class"`
	Geometry string `yaml:"geometry"`
}

// SampleTable maps a cleaned sensor table. Group is optional.
type SampleTable struct {
	Name      string `yaml:"name"`
	ID        string `yaml:"id"`
	Geometry  string `yaml:"geometry"`
	Time      string `yaml:"time"`
	Elevation string `yaml:"elevation"`
	Measured  string `yaml:"measured"`
	Group     string `yaml:"group"`
}

// ResultTable names an interpolation output. GroupColumn, when set, receives
// the sample group.
type ResultTable struct {
	Name        string
	GroupColumn string
}

// ProfileTable describes a land-cover profile output. Sites are read from
// Source with their Columns carried through.
type ProfileTable struct {
	Name         string
	Source       string
	Columns      []string
	DeleteSource bool
}

// Tables maps the shared inputs and the network outputs.
type Tables struct {
	Stations     StationTable     `yaml:"stations"`
	Observations ObservationTable `yaml:"observations"`
	LandCover    LandCoverTable   `yaml:"land_cover"`

	// Triangles and Vertices receive the network on every run.
	Triangles string `yaml:"triangles"`
	Vertices  string `yaml:"vertices"`

	// SRID of every geometry column written.
	// Default: 4326
	SRID int `yaml:"srid"`
}

// DefaultTables returns the reference deployment layout.
func DefaultTables() Tables {
	return Tables{
		Stations: StationTable{
			Name:     "veloclimat.weather_stations_mf",
			ID:       "numer_insee",
			Geometry: "the_geom",
		},
		Observations: ObservationTable{
			Name:      "veloclimat.weather_data_stations_mf",
			StationID: "numer_sta",
			Time:      "date",
			Baseline:  "t_ground_0",
			Delta:     "delta_t",
		},
		LandCover: LandCoverTable{
			Name:     "veloclimat.rsu_lcz",
			Class:    "lcz_primary",
			Geometry: "the_geom",
		},
		Triangles: "veloclimat.weather_stations_mf_delaunay",
		Vertices:  "veloclimat.weather_stations_mf_delaunay_pts",
		SRID:      4326,
	}
}

// DefaultSampleTable returns the column names of a preprocessed sensor table.
func DefaultSampleTable(name string) SampleTable {
	return SampleTable{
		Name:      name,
		ID:        "id",
		Geometry:  "the_geom",
		Time:      "timestamp",
		Elevation: "elevation",
		Measured:  "temperature",
	}
}

// WithDefaults fills empty column names with the reference names.
func (s SampleTable) WithDefaults() SampleTable {
	d := DefaultSampleTable(s.Name)
	if s.ID == "" {
		s.ID = d.ID
	}
	if s.Geometry == "" {
		s.Geometry = d.Geometry
	}
	if s.Time == "" {
		s.Time = d.Time
	}
	if s.Elevation == "" {
		s.Elevation = d.Elevation
	}
	if s.Measured == "" {
		s.Measured = d.Measured
	}
	return s
}
