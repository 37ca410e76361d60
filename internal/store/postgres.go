package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/rs/zerolog"

	"github.com/veloclimat/veloclimat/internal/errs"
	"github.com/veloclimat/veloclimat/internal/ibm"
	"github.com/veloclimat/veloclimat/internal/interp"
	"github.com/veloclimat/veloclimat/internal/landcover"
)

// PostgresRepository is a PostGIS implementation of Repository.
// Naive timestamp columns are read and written as UTC.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	tables Tables
	logger zerolog.Logger
}

// NewPostgresRepository creates a new PostGIS repository.
func NewPostgresRepository(pool *pgxpool.Pool, tables Tables, logger zerolog.Logger) *PostgresRepository {
	if tables.SRID == 0 {
		tables.SRID = DefaultTables().SRID
	}
	return &PostgresRepository{pool: pool, tables: tables, logger: logger}
}

// LoadStations returns the station layer ordered by id.
func (r *PostgresRepository) LoadStations(ctx context.Context) ([]interp.Station, error) {
	t := r.tables.Stations
	q, err := quote(t.Name)
	if err != nil {
		return nil, err
	}
	c, err := quoteColumns(t.ID, t.Geometry)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %[2]s::bigint, ST_X(%[3]s), ST_Y(%[3]s)
		FROM %[1]s
		WHERE %[3]s IS NOT NULL
		ORDER BY 1
	`, q[0], c[0], c[1])

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errs.Storage("load stations", t.Name, err)
	}
	defer rows.Close()

	var stations []interp.Station
	for rows.Next() {
		var s interp.Station
		if err := rows.Scan(&s.ID, &s.Position[0], &s.Position[1]); err != nil {
			return nil, errs.Storage("load stations", t.Name, err)
		}
		stations = append(stations, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("load stations", t.Name, err)
	}
	return stations, nil
}

// LoadObservations returns the station series with a time in (from, to].
func (r *PostgresRepository) LoadObservations(ctx context.Context, from, to time.Time) ([]interp.Observation, error) {
	t := r.tables.Observations
	q, err := quote(t.Name)
	if err != nil {
		return nil, err
	}
	c, err := quoteColumns(t.StationID, t.Time, t.Baseline, t.Delta)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %[2]s::bigint, %[3]s, %[4]s::double precision, %[5]s::double precision
		FROM %[1]s
		WHERE %[3]s > $1 AND %[3]s <= $2
		  AND %[4]s IS NOT NULL AND %[5]s IS NOT NULL
		ORDER BY 1, 2
	`, q[0], c[0], c[1], c[2], c[3])

	rows, err := r.pool.Query(ctx, query, from.UTC(), to.UTC())
	if err != nil {
		return nil, errs.Storage("load observations", t.Name, err)
	}
	defer rows.Close()

	var observations []interp.Observation
	for rows.Next() {
		var o interp.Observation
		if err := rows.Scan(&o.StationID, &o.Time, &o.Baseline, &o.Delta); err != nil {
			return nil, errs.Storage("load observations", t.Name, err)
		}
		observations = append(observations, o)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("load observations", t.Name, err)
	}
	return observations, nil
}

// LoadSamples returns the rows of a sensor table ordered by id. Rows missing
// a position, time or measurement are skipped; a missing elevation reads as 0.
func (r *PostgresRepository) LoadSamples(ctx context.Context, table SampleTable) ([]interp.Sample, error) {
	table = table.WithDefaults()
	q, err := quote(table.Name)
	if err != nil {
		return nil, err
	}
	c, err := quoteColumns(table.ID, table.Geometry, table.Time, table.Elevation, table.Measured)
	if err != nil {
		return nil, err
	}
	group := "NULL::text"
	if table.Group != "" {
		g, err := quoteColumns(table.Group)
		if err != nil {
			return nil, err
		}
		group = g[0] + "::text"
	}

	query := fmt.Sprintf(`
		SELECT %[2]s::bigint, ST_X(%[3]s), ST_Y(%[3]s), %[4]s,
		       COALESCE(%[5]s, 0)::double precision, %[6]s::double precision, %[7]s
		FROM %[1]s
		WHERE %[3]s IS NOT NULL AND %[4]s IS NOT NULL AND %[6]s IS NOT NULL
		ORDER BY 1
	`, q[0], c[0], c[1], c[2], c[3], c[4], group)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errs.Storage("load samples", table.Name, err)
	}
	defer rows.Close()

	var samples []interp.Sample
	for rows.Next() {
		var s interp.Sample
		var g *string
		if err := rows.Scan(&s.ID, &s.Position[0], &s.Position[1], &s.Time, &s.Elevation, &s.Measured, &g); err != nil {
			return nil, errs.Storage("load samples", table.Name, err)
		}
		if g != nil {
			s.Group = *g
		}
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("load samples", table.Name, err)
	}
	return samples, nil
}

// LoadLandCover returns the land-cover layer in its stored coordinates.
func (r *PostgresRepository) LoadLandCover(ctx context.Context) ([]landcover.Polygon, error) {
	t := r.tables.LandCover
	q, err := quote(t.Name)
	if err != nil {
		return nil, err
	}
	c, err := quoteColumns(t.Class, t.Geometry)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %[2]s::integer, ST_AsBinary(ST_Force2D(%[3]s))
		FROM %[1]s
		WHERE %[2]s IS NOT NULL AND %[3]s IS NOT NULL
	`, q[0], c[0], c[1])

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errs.Storage("load land cover", t.Name, err)
	}
	defer rows.Close()

	var polygons []landcover.Polygon
	skipped := 0
	for rows.Next() {
		var class int
		var raw []byte
		if err := rows.Scan(&class, &raw); err != nil {
			return nil, errs.Storage("load land cover", t.Name, err)
		}
		g, err := wkb.Unmarshal(raw)
		if err != nil {
			return nil, errs.Storage("load land cover", t.Name, fmt.Errorf("decode geometry: %w", err))
		}
		switch g.(type) {
		case orb.Polygon, orb.MultiPolygon:
			polygons = append(polygons, landcover.Polygon{Class: landcover.Class(class), Geometry: g})
		default:
			skipped++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("load land cover", t.Name, err)
	}

	if skipped > 0 {
		r.logger.Warn().
			Str("table", t.Name).
			Int("skipped", skipped).
			Msg("non polygonal land cover features ignored")
	}
	return polygons, nil
}

// LoadSites returns the points of table ordered by id, carrying columns.
func (r *PostgresRepository) LoadSites(ctx context.Context, table string, columns []string) ([]landcover.Site, error) {
	q, err := quote(table)
	if err != nil {
		return nil, err
	}
	c, err := quoteColumns(append([]string{ColumnID, ColumnGeometry}, columns...)...)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT %[1]s::bigint, ST_X(%[2]s), ST_Y(%[2]s)`, c[0], c[1])
	for _, col := range c[2:] {
		query += ", " + col
	}
	query += fmt.Sprintf(" FROM %s WHERE %s IS NOT NULL ORDER BY 1", q[0], c[1])

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, errs.Storage("load sites", table, err)
	}
	defer rows.Close()

	var sites []landcover.Site
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errs.Storage("load sites", table, err)
		}
		id, okID := values[0].(int64)
		x, okX := values[1].(float64)
		y, okY := values[2].(float64)
		if !okID || !okX || !okY {
			return nil, errs.Storage("load sites", table, errors.New("unexpected id or coordinate type"))
		}
		sites = append(sites, landcover.Site{
			ID:       id,
			Position: orb.Point{x, y},
			Carry:    values[3:],
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("load sites", table, err)
	}
	return sites, nil
}

// ReplaceNetwork writes the triangles and their vertices in one transaction.
func (r *PostgresRepository) ReplaceNetwork(ctx context.Context, network *interp.Network) error {
	tri, err := ParseIdent(r.tables.Triangles)
	if err != nil {
		return err
	}
	vtx, err := ParseIdent(r.tables.Vertices)
	if err != nil {
		return err
	}
	station, err := parseColumn(r.tables.Stations.ID)
	if err != nil {
		return err
	}
	srid := r.tables.SRID

	_, err = r.replace(ctx, "replace network", r.tables.Triangles, func(tx pgx.Tx) (int64, error) {
		triangles := network.Triangles()
		stmts := []string{
			"DROP TABLE IF EXISTS " + tri.Sanitize(),
			fmt.Sprintf(`CREATE TABLE %s (
				id_triangle integer PRIMARY KEY,
				x0 double precision, y0 double precision,
				x1 double precision, y1 double precision,
				x2 double precision, y2 double precision
			)`, tri.Sanitize()),
		}
		if err := execAll(ctx, tx, stmts); err != nil {
			return 0, err
		}

		_, err := tx.CopyFrom(ctx, tri,
			[]string{"id_triangle", "x0", "y0", "x1", "y1", "x2", "y2"},
			pgx.CopyFromSlice(len(triangles), func(i int) ([]any, error) {
				t := triangles[i]
				v := t.Vertices
				return []any{
					int32(t.ID), //nolint:gosec // triangle ids are bounded by the station count
					v[0].Position[0], v[0].Position[1],
					v[1].Position[0], v[1].Position[1],
					v[2].Position[0], v[2].Position[1],
				}, nil
			}),
		)
		if err != nil {
			return 0, fmt.Errorf("copy triangles: %w", err)
		}

		stmts = []string{
			fmt.Sprintf("ALTER TABLE %s ADD COLUMN the_geom geometry(Polygon, %d)", tri.Sanitize(), srid),
			fmt.Sprintf(`UPDATE %s SET the_geom = ST_SetSRID(ST_MakePolygon(ST_MakeLine(ARRAY[
				ST_MakePoint(x0, y0), ST_MakePoint(x1, y1), ST_MakePoint(x2, y2), ST_MakePoint(x0, y0)
			])), %d)`, tri.Sanitize(), srid),
			fmt.Sprintf("ALTER TABLE %s DROP COLUMN x0, DROP COLUMN y0, DROP COLUMN x1, DROP COLUMN y1, DROP COLUMN x2, DROP COLUMN y2", tri.Sanitize()),
			fmt.Sprintf("CREATE INDEX %s ON %s USING GIST (the_geom)", indexName(tri, "geom"), tri.Sanitize()),

			"DROP TABLE IF EXISTS " + vtx.Sanitize(),
			fmt.Sprintf(`CREATE TABLE %s (
				id_pt integer,
				id_triangle integer,
				%s bigint,
				x double precision,
				y double precision
			)`, vtx.Sanitize(), station.Sanitize()),
		}
		if err := execAll(ctx, tx, stmts); err != nil {
			return 0, err
		}

		vertices := network.Vertices()
		_, err = tx.CopyFrom(ctx, vtx,
			[]string{ColumnVertex, ColumnTriangle, r.tables.Stations.ID, "x", "y"},
			pgx.CopyFromSlice(len(vertices), func(i int) ([]any, error) {
				v := vertices[i]
				return []any{
					int32(v.Index + 1),  //nolint:gosec // 1..3
					int32(v.TriangleID), //nolint:gosec // bounded by the station count
					v.StationID,
					v.Position[0],
					v.Position[1],
				}, nil
			}),
		)
		if err != nil {
			return 0, fmt.Errorf("copy vertices: %w", err)
		}

		stmts = append(pointGeometry(vtx, srid),
			fmt.Sprintf("CREATE INDEX %s ON %s (%s)", indexName(vtx, "station"), vtx.Sanitize(), station.Sanitize()),
			"ANALYZE "+tri.Sanitize(),
			"ANALYZE "+vtx.Sanitize(),
		)
		return int64(len(triangles)), execAll(ctx, tx, stmts)
	})
	return err
}

// ReplaceResults writes the selected interpolation results.
func (r *PostgresRepository) ReplaceResults(ctx context.Context, table ResultTable, results []interp.Result) (int64, error) {
	id, err := ParseIdent(table.Name)
	if err != nil {
		return 0, err
	}

	columns := []string{ColumnID, ColumnTime, ColumnMeasured, ColumnInterpolated, ColumnDifference, ColumnTriangle, "x", "y"}
	defs := []string{"bigint", "timestamptz", "double precision", "double precision", "double precision", "integer", "double precision", "double precision"}
	if table.GroupColumn != "" {
		if _, err := parseColumn(table.GroupColumn); err != nil {
			return 0, err
		}
		columns = append(columns, table.GroupColumn)
		defs = append(defs, "text")
	}

	return r.replace(ctx, "replace results", table.Name, func(tx pgx.Tx) (int64, error) {
		if err := execAll(ctx, tx, []string{
			"DROP TABLE IF EXISTS " + id.Sanitize(),
			createTable(id, columns, defs),
		}); err != nil {
			return 0, err
		}

		n, err := tx.CopyFrom(ctx, id, columns, pgx.CopyFromSlice(len(results), func(i int) ([]any, error) {
			res := results[i]
			row := []any{
				res.SampleID,
				res.Time,
				res.Measured,
				res.Interpolated,
				res.Difference,
				int32(res.TriangleID), //nolint:gosec // bounded by the station count
				res.Position[0],
				res.Position[1],
			}
			if table.GroupColumn != "" {
				row = append(row, res.Group)
			}
			return row, nil
		}))
		if err != nil {
			return 0, fmt.Errorf("copy results: %w", err)
		}

		stmts := append(pointGeometry(id, r.tables.SRID),
			fmt.Sprintf("CREATE INDEX %s ON %s (%s)", indexName(id, "id"), id.Sanitize(), ColumnID),
			"ANALYZE "+id.Sanitize(),
		)
		return n, execAll(ctx, tx, stmts)
	})
}

// ReplaceProfiles writes one row per profile: the site id, its carried
// columns, the top classes, every tracked class fraction and the macro
// fractions. Every site gets a row: a buffer touching no land-cover polygon
// has all fractions at 0 and NULL top classes. Filter on lcz_primary_max IS NOT
// NULL to keep covered sites only.
func (r *PostgresRepository) ReplaceProfiles(ctx context.Context, table ProfileTable, profiles []landcover.Profile) (int64, error) {
	out, err := ParseIdent(table.Name)
	if err != nil {
		return 0, err
	}
	src, err := ParseIdent(table.Source)
	if err != nil {
		return 0, err
	}
	if out.Sanitize() == src.Sanitize() {
		return 0, errs.Invalid("replace profiles", "table", table.Name+" is also the source")
	}
	carried, err := quoteColumns(append([]string{ColumnID}, table.Columns...)...)
	if err != nil {
		return 0, err
	}

	added := []string{"x double precision", "y double precision", ColumnTop1 + " integer", ColumnTop2 + " integer"}
	for _, c := range landcover.TrackedClasses {
		added = append(added, classColumn(c)+" double precision")
	}
	for _, m := range landcover.Macros {
		added = append(added, macroColumn(m)+" double precision")
	}

	columns := append([]string{ColumnID}, table.Columns...)
	columns = append(columns, "x", "y", ColumnTop1, ColumnTop2)
	for _, c := range landcover.TrackedClasses {
		columns = append(columns, classColumn(c))
	}
	for _, m := range landcover.Macros {
		columns = append(columns, macroColumn(m))
	}

	return r.replace(ctx, "replace profiles", table.Name, func(tx pgx.Tx) (int64, error) {
		stmts := []string{
			"DROP TABLE IF EXISTS " + out.Sanitize(),
			fmt.Sprintf("CREATE TABLE %s AS SELECT %s FROM %s WITH NO DATA",
				out.Sanitize(), strings.Join(carried, ", "), src.Sanitize()),
			fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", out.Sanitize(), strings.Join(added, ", ADD COLUMN ")),
		}
		if err := execAll(ctx, tx, stmts); err != nil {
			return 0, err
		}

		n, err := tx.CopyFrom(ctx, out, columns, pgx.CopyFromSlice(len(profiles), func(i int) ([]any, error) {
			p := profiles[i]
			if len(p.Site.Carry) != len(table.Columns) {
				return nil, fmt.Errorf("site %d carries %d values, want %d", p.Site.ID, len(p.Site.Carry), len(table.Columns))
			}
			row := make([]any, 0, len(columns))
			row = append(row, p.Site.ID)
			row = append(row, p.Site.Carry...)
			row = append(row, p.Site.Position[0], p.Site.Position[1], classValue(p.Top1), classValue(p.Top2))
			for _, c := range landcover.TrackedClasses {
				row = append(row, p.Fraction(c))
			}
			for _, m := range landcover.Macros {
				row = append(row, p.Macro[m])
			}
			return row, nil
		}))
		if err != nil {
			return 0, fmt.Errorf("copy profiles: %w", err)
		}

		stmts = append(pointGeometry(out, r.tables.SRID),
			fmt.Sprintf("CREATE INDEX %s ON %s (%s)", indexName(out, "id"), out.Sanitize(), ColumnID),
		)
		if table.DeleteSource {
			stmts = append(stmts, "DROP TABLE IF EXISTS "+src.Sanitize())
		}
		stmts = append(stmts, "ANALYZE "+out.Sanitize())
		return n, execAll(ctx, tx, stmts)
	})
}

// ReplaceDailyIndex writes the daily biometeorological index.
func (r *PostgresRepository) ReplaceDailyIndex(ctx context.Context, table string, days []ibm.Day) (int64, error) {
	id, err := ParseIdent(table)
	if err != nil {
		return 0, err
	}
	columns := []string{"day", "tn", "tx", "ibm"}

	return r.replace(ctx, "replace daily index", table, func(tx pgx.Tx) (int64, error) {
		if err := execAll(ctx, tx, []string{
			"DROP TABLE IF EXISTS " + id.Sanitize(),
			createTable(id, columns, []string{"date PRIMARY KEY", "double precision", "double precision", "double precision"}),
		}); err != nil {
			return 0, err
		}

		n, err := tx.CopyFrom(ctx, id, columns, pgx.CopyFromSlice(len(days), func(i int) ([]any, error) {
			d := days[i]
			return []any{d.Date, d.Tn, d.Tx, d.IBM}, nil
		}))
		if err != nil {
			return 0, fmt.Errorf("copy daily index: %w", err)
		}
		return n, nil
	})
}

// replace runs fn in a transaction and commits. Uncategorized failures are
// reported as storage errors on table.
func (r *PostgresRepository) replace(ctx context.Context, op, table string, fn func(pgx.Tx) (int64, error)) (int64, error) {
	start := time.Now()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, errs.Storage(op, table, fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n, err := fn(tx)
	if err != nil {
		if errs.KindOf(err) != nil {
			return 0, err
		}
		return 0, errs.Storage(op, table, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, errs.Storage(op, table, fmt.Errorf("commit: %w", err))
	}

	r.logger.Debug().
		Str("table", table).
		Int64("rows", n).
		Dur("duration", time.Since(start)).
		Msg(op)
	return n, nil
}

func execAll(ctx context.Context, tx pgx.Tx, stmts []string) error {
	for _, s := range stmts {
		if _, err := tx.Exec(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(s), err)
		}
	}
	return nil
}

// pointGeometry turns the x and y columns of table into a point geometry
// column with a spatial index.
func pointGeometry(table pgx.Identifier, srid int) []string {
	t := table.Sanitize()
	return []string{
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s geometry(Point, %d)", t, ColumnGeometry, srid),
		fmt.Sprintf("UPDATE %s SET %s = ST_SetSRID(ST_MakePoint(x, y), %d)", t, ColumnGeometry, srid),
		fmt.Sprintf("ALTER TABLE %s DROP COLUMN x, DROP COLUMN y", t),
		fmt.Sprintf("CREATE INDEX %s ON %s USING GIST (%s)", indexName(table, "geom"), t, ColumnGeometry),
	}
}

func createTable(table pgx.Identifier, columns, defs []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = pgx.Identifier{c}.Sanitize() + " " + defs[i]
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", table.Sanitize(), strings.Join(parts, ", "))
}

func classColumn(c landcover.Class) string {
	return "lcz_" + strconv.Itoa(int(c))
}

func macroColumn(m landcover.Macro) string {
	return "lcz_" + string(m)
}

func classValue(c landcover.Class) any {
	if c == 0 {
		return nil
	}
	return int32(c) //nolint:gosec // class codes are small
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
