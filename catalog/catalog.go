// Package catalog persists raster source descriptors to Postgres so an index
// can warm-start without re-opening every raster.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/paulmach/orb"

	"github.com/earthscan/tsprofile/timeseries"
)

const schema = `
CREATE TABLE IF NOT EXISTS raster_sources (
	uri        TEXT PRIMARY KEY,
	provider   TEXT NOT NULL,
	name       TEXT NOT NULL,
	crs        TEXT NOT NULL,
	min_x      DOUBLE PRECISION NOT NULL,
	min_y      DOUBLE PRECISION NOT NULL,
	max_x      DOUBLE PRECISION NOT NULL,
	max_y      DOUBLE PRECISION NOT NULL,
	nb         INTEGER NOT NULL,
	nl         INTEGER NOT NULL,
	ns         INTEGER NOT NULL,
	sensor_id  TEXT NOT NULL,
	dtg        TIMESTAMPTZ NOT NULL,
	is_visible BOOLEAN NOT NULL DEFAULT TRUE
);
CREATE INDEX IF NOT EXISTS raster_sources_dtg_idx ON raster_sources (dtg);
CREATE INDEX IF NOT EXISTS raster_sources_sensor_idx ON raster_sources (sensor_id);
`

const upsertSource = `
INSERT INTO raster_sources
	(uri, provider, name, crs, min_x, min_y, max_x, max_y, nb, nl, ns, sensor_id, dtg, is_visible)
VALUES
	($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (uri) DO UPDATE SET
	provider = EXCLUDED.provider, name = EXCLUDED.name, crs = EXCLUDED.crs,
	min_x = EXCLUDED.min_x, min_y = EXCLUDED.min_y,
	max_x = EXCLUDED.max_x, max_y = EXCLUDED.max_y,
	nb = EXCLUDED.nb, nl = EXCLUDED.nl, ns = EXCLUDED.ns,
	sensor_id = EXCLUDED.sensor_id, dtg = EXCLUDED.dtg,
	is_visible = EXCLUDED.is_visible
`

const selectSources = `
SELECT uri, provider, name, crs, min_x, min_y, max_x, max_y, nb, nl, ns, sensor_id, dtg, is_visible
FROM raster_sources ORDER BY dtg, uri
`

// Catalog is a Postgres-backed source store.
type Catalog struct {
	db      *sql.DB
	verbose bool
}

// Open connects and ensures the schema. poolSize bounds the connection pool.
func Open(connStr string, poolSize int, verbose bool) (*Catalog, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("catalog open: %v", err)
	}
	if poolSize > 0 {
		db.SetMaxOpenConns(poolSize)
		db.SetMaxIdleConns(poolSize)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog schema: %v", err)
	}
	return &Catalog{db: db, verbose: verbose}, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

// SaveSources upserts descriptors in one transaction.
func (c *Catalog) SaveSources(ctx context.Context, sources []*timeseries.RasterSource) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog save: %v", err)
	}
	stmt, err := tx.PrepareContext(ctx, upsertSource)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("catalog save: %v", err)
	}
	defer stmt.Close()

	for _, s := range sources {
		_, err := stmt.ExecContext(ctx, s.URI, s.Provider, s.Name, s.CRS,
			s.Extent.Min[0], s.Extent.Min[1], s.Extent.Max[0], s.Extent.Max[1],
			s.Bands, s.Lines, s.Samples, s.SensorID, s.DTG, s.IsVisible())
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("catalog save %s: %v", s.URI, err)
		}
	}
	if c.verbose {
		log.Printf("catalog: saved %d sources", len(sources))
	}
	return tx.Commit()
}

// LoadSources reads every stored descriptor. Rows failing the descriptor
// invariants are logged and skipped.
func (c *Catalog) LoadSources(ctx context.Context) ([]*timeseries.RasterSource, error) {
	rows, err := c.db.QueryContext(ctx, selectSources)
	if err != nil {
		return nil, fmt.Errorf("catalog load: %v", err)
	}
	defer rows.Close()

	var out []*timeseries.RasterSource
	for rows.Next() {
		var uri, provider, name, crs, sensorID string
		var minX, minY, maxX, maxY float64
		var nb, nl, ns int
		var dtg time.Time
		var visible bool
		if err := rows.Scan(&uri, &provider, &name, &crs, &minX, &minY, &maxX, &maxY, &nb, &nl, &ns, &sensorID, &dtg, &visible); err != nil {
			return nil, fmt.Errorf("catalog load: %v", err)
		}

		extent := orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}
		s, err := timeseries.RestoreRasterSource(uri, provider, name, crs, extent, nb, nl, ns, sensorID, dtg, visible)
		if err != nil {
			log.Printf("catalog: skipping %s: %v", uri, err)
			continue
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeleteSources drops descriptors by URI.
func (c *Catalog) DeleteSources(ctx context.Context, uris []string) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog delete: %v", err)
	}
	stmt, err := tx.PrepareContext(ctx, `DELETE FROM raster_sources WHERE uri = $1`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("catalog delete: %v", err)
	}
	defer stmt.Close()

	for _, uri := range uris {
		if _, err := stmt.ExecContext(ctx, uri); err != nil {
			tx.Rollback()
			return fmt.Errorf("catalog delete %s: %v", uri, err)
		}
	}
	return tx.Commit()
}
