// Package sink delivers run reports outside the PostGIS store.
package sink

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/rs/zerolog"

	"github.com/veloclimat/veloclimat/internal/landcover"
	"github.com/veloclimat/veloclimat/internal/pipeline"
	"github.com/veloclimat/veloclimat/internal/store"
)

// ClickHouseConfig holds the analytics export configuration.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// Table receives one row per profiled site and run.
	// Default: land_cover_profiles
	Table string `yaml:"table"`
}

// Enabled reports whether an export target is configured.
func (c ClickHouseConfig) Enabled() bool {
	return c.Host != ""
}

// ProfileExporter appends the land-cover profiles of successful runs to a
// ClickHouse MergeTree table.
type ProfileExporter struct {
	conn   driver.Conn
	table  string
	logger zerolog.Logger
}

// OpenClickHouse connects, checks the server and creates the export table.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig, logger zerolog.Logger) (*ProfileExporter, error) {
	if cfg.Table == "" {
		cfg.Table = "land_cover_profiles"
	}
	if _, err := store.ParseIdent(cfg.Table); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = 9000
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	e := &ProfileExporter{conn: conn, table: cfg.Table, logger: logger}
	if err := e.createSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.Info().Str("table", cfg.Table).Msg("clickhouse profile export enabled")
	return e, nil
}

func (e *ProfileExporter) createSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id String,
			target LowCardinality(String),
			site_id Int64,
			x Float64,
			y Float64,
			top1 UInt16,
			top2 UInt16,
			fractions Map(UInt16, Float64),
			urban Float64,
			vegetation Float64,
			bare Float64,
			water Float64,
			computed_at DateTime64(3)
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(computed_at)
		ORDER BY (target, computed_at, site_id)
	`, e.table)
	if err := e.conn.Exec(ctx, q); err != nil {
		return fmt.Errorf("create profile table: %w", err)
	}
	return nil
}

// Name identifies the sink.
func (e *ProfileExporter) Name() string {
	return "clickhouse"
}

// Publish appends the report profiles in one batch. Failed runs and runs
// without profiles are skipped.
func (e *ProfileExporter) Publish(ctx context.Context, report *pipeline.Report) error {
	rows := ProfileRows(report)
	if len(rows) == 0 {
		return nil
	}

	batch, err := e.conn.PrepareBatch(ctx, "INSERT INTO "+e.table)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, r := range rows {
		err := batch.Append(r.RunID, r.Target, r.SiteID, r.X, r.Y, r.Top1, r.Top2, r.Fractions,
			r.Urban, r.Vegetation, r.Bare, r.Water, r.ComputedAt)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	e.logger.Debug().Int("rows", len(rows)).Str("run_id", report.Run.ID).Msg("profiles exported")
	return nil
}

// Close closes the connection.
func (e *ProfileExporter) Close() error {
	return e.conn.Close()
}

// ProfileRow is one exported row.
type ProfileRow struct {
	RunID      string
	Target     string
	SiteID     int64
	X, Y       float64
	Top1, Top2 uint16
	Fractions  map[uint16]float64
	Urban      float64
	Vegetation float64
	Bare       float64
	Water      float64
	ComputedAt time.Time
}

// ProfileRows flattens the profiles of a successful run, targets in name
// order and sites in profile order.
func ProfileRows(report *pipeline.Report) []ProfileRow {
	if report == nil || report.Run == nil || report.Run.Status != pipeline.StatusSucceeded {
		return nil
	}

	targets := make([]string, 0, len(report.Profiles))
	for name := range report.Profiles {
		targets = append(targets, name)
	}
	sort.Strings(targets)

	var rows []ProfileRow
	for _, target := range targets {
		for _, p := range report.Profiles[target] {
			fractions := make(map[uint16]float64, len(p.Fractions))
			for c, f := range p.Fractions {
				if c.IsTracked() {
					fractions[uint16(c)] = f //nolint:gosec // tracked classes fit
				}
			}
			rows = append(rows, ProfileRow{
				RunID:      report.Run.ID,
				Target:     target,
				SiteID:     p.Site.ID,
				X:          p.Site.Position.X(),
				Y:          p.Site.Position.Y(),
				Top1:       uint16(p.Top1), //nolint:gosec // tracked classes fit
				Top2:       uint16(p.Top2), //nolint:gosec // tracked classes fit
				Fractions:  fractions,
				Urban:      p.Macro[landcover.MacroUrban],
				Vegetation: p.Macro[landcover.MacroVegetation],
				Bare:       p.Macro[landcover.MacroBare],
				Water:      p.Macro[landcover.MacroWater],
				ComputedAt: report.Run.FinishedAt,
			})
		}
	}
	return rows
}
