package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wegman-software/lasstat-go/internal/config"
	"github.com/wegman-software/lasstat-go/internal/pipeline"
	"github.com/wegman-software/lasstat-go/internal/wkb"
)

const tempTable = "las_load_tmp"

// copyColumns are the columns of the temp table, in row order
var copyColumns = []string{
	"batch_id", "name", "path", "point_count", "density",
	"footprint_acres", "decimation",
	"min_x", "min_y", "min_z", "max_x", "max_y", "max_z",
	"las_version", "point_format",
	"crs", "crs_source", "vertical_datum", "epsg", "unit",
	"file_size", "elapsed_ms", "error",
	"footprint_wkb", "bbox_wkb",
}

// Store writes batch results to a PostGIS table
type Store struct {
	pool  *pgxpool.Pool
	table string // sanitized schema.table
	short string
	log   *zap.Logger
}

// NewStore connects to PostgreSQL
func NewStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &Store{
		pool:  pool,
		table: tableName(cfg.DBSchema, cfg.DBTable),
		short: cfg.DBTable,
		log:   log,
	}, nil
}

// Close closes connections
func (s *Store) Close() {
	s.pool.Close()
}

func tableName(schema, table string) string {
	if schema == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}

// EnsureTable creates the PostGIS extension, the catalog table and its
// indexes if they do not exist
func (s *Store) EnsureTable(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS postgis"); err != nil {
		return fmt.Errorf("failed to create PostGIS extension: %w", err)
	}

	for _, stmt := range createStatements(s.table, s.short) {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create catalog table: %w", err)
		}
	}
	return nil
}

func createStatements(table, short string) []string {
	return []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			batch_id UUID NOT NULL,
			name TEXT NOT NULL,
			path TEXT NOT NULL,
			point_count BIGINT,
			density DOUBLE PRECISION,
			footprint_acres DOUBLE PRECISION,
			decimation DOUBLE PRECISION,
			min_x DOUBLE PRECISION, min_y DOUBLE PRECISION, min_z DOUBLE PRECISION,
			max_x DOUBLE PRECISION, max_y DOUBLE PRECISION, max_z DOUBLE PRECISION,
			las_version TEXT,
			point_format SMALLINT,
			crs TEXT,
			crs_source TEXT,
			vertical_datum TEXT,
			epsg INTEGER,
			unit TEXT,
			file_size BIGINT,
			elapsed_ms BIGINT,
			error TEXT,
			footprint GEOMETRY(Polygon),
			bbox GEOMETRY(Polygon),
			loaded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s USING GIST (footprint)",
			pgx.Identifier{short + "_footprint_idx"}.Sanitize(), table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (path)",
			pgx.Identifier{short + "_path_idx"}.Sanitize(), table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (batch_id)",
			pgx.Identifier{short + "_batch_idx"}.Sanitize(), table),
	}
}

// Load copies results into the catalog in one transaction. Rows for paths
// already in the catalog are replaced.
func (s *Store) Load(ctx context.Context, batchID uuid.UUID, results []pipeline.Result) (int64, error) {
	if len(results) == 0 {
		return 0, nil
	}
	start := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tempSQL := fmt.Sprintf(`
		CREATE TEMP TABLE %s (
			batch_id TEXT, name TEXT, path TEXT,
			point_count BIGINT, density DOUBLE PRECISION,
			footprint_acres DOUBLE PRECISION, decimation DOUBLE PRECISION,
			min_x DOUBLE PRECISION, min_y DOUBLE PRECISION, min_z DOUBLE PRECISION,
			max_x DOUBLE PRECISION, max_y DOUBLE PRECISION, max_z DOUBLE PRECISION,
			las_version TEXT, point_format SMALLINT,
			crs TEXT, crs_source TEXT, vertical_datum TEXT, epsg INTEGER, unit TEXT,
			file_size BIGINT, elapsed_ms BIGINT, error TEXT,
			footprint_wkb BYTEA, bbox_wkb BYTEA
		) ON COMMIT DROP`, tempTable)
	if _, err := tx.Exec(ctx, tempSQL); err != nil {
		return 0, fmt.Errorf("failed to create temp table: %w", err)
	}

	enc := wkb.NewEncoder(1024, wkb.SRIDUnknown)
	copied, err := tx.CopyFrom(ctx, pgx.Identifier{tempTable}, copyColumns,
		pgx.CopyFromSlice(len(results), func(i int) ([]any, error) {
			return rowValues(batchID, &results[i], enc), nil
		}))
	if err != nil {
		return 0, fmt.Errorf("COPY failed: %w", err)
	}

	deleteSQL := fmt.Sprintf("DELETE FROM %s t USING %s n WHERE t.path = n.path", s.table, tempTable)
	if _, err := tx.Exec(ctx, deleteSQL); err != nil {
		return 0, fmt.Errorf("failed to replace existing rows: %w", err)
	}

	if _, err := tx.Exec(ctx, insertSQL(s.table)); err != nil {
		return 0, fmt.Errorf("failed to insert from temp table: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	s.log.Info("Catalog loaded",
		zap.String("table", s.table),
		zap.Int64("rows", copied),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
	return copied, nil
}

func insertSQL(table string) string {
	return fmt.Sprintf(`
		INSERT INTO %s (
			batch_id, name, path, point_count, density,
			footprint_acres, decimation,
			min_x, min_y, min_z, max_x, max_y, max_z,
			las_version, point_format,
			crs, crs_source, vertical_datum, epsg, unit,
			file_size, elapsed_ms, error,
			footprint, bbox
		)
		SELECT
			batch_id::uuid, name, path, point_count, density,
			footprint_acres, decimation,
			min_x, min_y, min_z, max_x, max_y, max_z,
			las_version, point_format,
			crs, crs_source, vertical_datum, epsg, unit,
			file_size, elapsed_ms, error,
			ST_GeomFromEWKB(footprint_wkb),
			ST_GeomFromEWKB(bbox_wkb)
		FROM %s`, table, tempTable)
}

// rowValues converts a result into temp table values. Geometries carry the
// file's EPSG code as SRID. Failed files keep only identity and error.
func rowValues(batchID uuid.UUID, r *pipeline.Result, enc *wkb.Encoder) []any {
	row := make([]any, len(copyColumns))
	row[0] = batchID.String()
	row[1] = r.Name
	row[2] = r.Path
	row[20] = r.FileSize
	row[21] = r.Elapsed.Milliseconds()

	if r.Err != nil {
		row[22] = r.Err.Error()
		return row
	}

	row[3] = r.PointCount
	row[4] = r.Density
	if r.FootprintAcres != nil {
		row[5] = *r.FootprintAcres
		row[6] = r.Decimation
	}
	for i := 0; i < 3; i++ {
		row[7+i] = r.Min[i]
		row[10+i] = r.Max[i]
	}
	row[13] = r.Version
	row[14] = int16(r.PointFormat)
	row[15] = nullString(r.CRS)
	row[16] = nullString(string(r.CRSSource))
	row[17] = nullString(r.VerticalDatum)
	if r.EPSG > 0 {
		row[18] = int32(r.EPSG)
	}
	row[19] = r.Unit.String()

	enc.SetSRID(r.EPSG)
	row[23] = bytesOrNil(wkb.Clone(enc.EncodeRing(r.Footprint)))
	row[24] = bytesOrNil(wkb.Clone(enc.EncodeBound(r.Bound())))
	return row
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// bytesOrNil turns an empty geometry into SQL NULL
func bytesOrNil(b []byte) any {
	if b == nil {
		return nil
	}
	return b
}
