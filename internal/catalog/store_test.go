package catalog

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/lasstat-go/internal/config"
	"github.com/wegman-software/lasstat-go/internal/crs"
	"github.com/wegman-software/lasstat-go/internal/pipeline"
	"github.com/wegman-software/lasstat-go/internal/units"
	"github.com/wegman-software/lasstat-go/internal/wkb"
)

func validResult() pipeline.Result {
	acres := 2.47105
	return pipeline.Result{
		Path: "/data/a.las", Name: "a.las",
		PointCount: 100, Density: 0.01,
		FootprintAcres: &acres,
		Footprint:      orb.Ring{{0, 0}, {100, 0}, {100, 100}, {0, 100}},
		Decimation:     0.5,
		Min:            [3]float64{0, 0, 1}, Max: [3]float64{100, 100, 9},
		Version: "1.4", PointFormat: 6,
		CRS: crs.LabelUTMMeters, CRSSource: crs.SourceMetadata,
		EPSG: 26919, Unit: units.Meters,
		FileSize: 4096, Elapsed: 1500 * time.Millisecond,
	}
}

func TestRowValues(t *testing.T) {
	id := uuid.New()
	r := validResult()
	enc := wkb.NewEncoder(64, wkb.SRIDUnknown)

	row := rowValues(id, &r, enc)
	require.Len(t, row, len(copyColumns))

	assert.Equal(t, id.String(), row[0])
	assert.Equal(t, "a.las", row[1])
	assert.Equal(t, int64(100), row[3])
	assert.Equal(t, 2.47105, row[5])
	assert.Equal(t, 0.5, row[6])
	assert.Equal(t, 100.0, row[10])
	assert.Equal(t, int16(6), row[14])
	assert.Equal(t, "metadata", row[16])
	assert.Nil(t, row[17], "vertical datum")
	assert.Equal(t, int32(26919), row[18])
	assert.Equal(t, "meters", row[19])
	assert.Equal(t, int64(1500), row[21])
	assert.Nil(t, row[22], "error")

	footprint, ok := row[23].([]byte)
	require.True(t, ok)
	assert.Equal(t, uint32(26919), binary.LittleEndian.Uint32(footprint[5:9]), "SRID")
	bbox, ok := row[24].([]byte)
	require.True(t, ok)
	assert.NotSame(t, &footprint[0], &bbox[0], "rows must not share the encoder buffer")
}

func TestRowValuesFailedFile(t *testing.T) {
	r := pipeline.Result{Path: "/data/bad.las", Name: "bad.las", FileSize: 12, Err: errors.New("not a LAS file")}
	row := rowValues(uuid.New(), &r, wkb.NewEncoder(64, 0))

	assert.Equal(t, "bad.las", row[1])
	assert.Equal(t, int64(12), row[20])
	assert.Equal(t, "not a LAS file", row[22])
	for _, i := range []int{3, 4, 5, 13, 18, 19, 23, 24} {
		assert.Nil(t, row[i], copyColumns[i])
	}
}

func TestRowValuesNoFootprint(t *testing.T) {
	r := validResult()
	r.FootprintAcres = nil
	r.Footprint = nil
	r.EPSG = 0

	row := rowValues(uuid.New(), &r, wkb.NewEncoder(64, 0))
	assert.Nil(t, row[5])
	assert.Nil(t, row[6])
	assert.Nil(t, row[18])
	assert.Nil(t, row[23])
	assert.NotNil(t, row[24], "bbox comes from the header")
}

func TestTableName(t *testing.T) {
	assert.Equal(t, `"public"."las_files"`, tableName("public", "las_files"))
	assert.Equal(t, `"las_files"`, tableName("", "las_files"))
	assert.Equal(t, `"odd""name"`, tableName("", `odd"name`))
}

func TestStatements(t *testing.T) {
	stmts := createStatements(`"public"."las_files"`, "las_files")
	require.Len(t, stmts, 4)
	assert.Contains(t, stmts[0], "footprint GEOMETRY(Polygon)")
	assert.Contains(t, stmts[1], `"las_files_footprint_idx"`)
	assert.Contains(t, stmts[1], "USING GIST")

	ins := insertSQL(`"public"."las_files"`)
	assert.Contains(t, ins, "ST_GeomFromEWKB(footprint_wkb)")
	assert.Contains(t, ins, "FROM "+tempTable)
	for _, col := range copyColumns {
		assert.True(t, strings.Contains(ins, col), "insert is missing %s", col)
	}
}

// TestLoadIntegration runs against a live PostGIS when LASSTAT_TEST_DB names
// a database on localhost.
func TestLoadIntegration(t *testing.T) {
	dbName := os.Getenv("LASSTAT_TEST_DB")
	if dbName == "" {
		t.Skip("LASSTAT_TEST_DB not set")
	}

	cfg := config.DefaultConfig()
	cfg.DBName = dbName
	cfg.DBTable = "las_files_test"
	if u := os.Getenv("PGUSER"); u != "" {
		cfg.DBUser = u
	}

	ctx := context.Background()
	store, err := NewStore(ctx, cfg, nil)
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.EnsureTable(ctx))
	_, err = store.pool.Exec(ctx, "TRUNCATE "+store.table)
	require.NoError(t, err)

	results := []pipeline.Result{validResult(), {Path: "/data/bad.las", Name: "bad.las", Err: errors.New("bad")}}
	n, err := store.Load(ctx, uuid.New(), results)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// reloading replaces rows by path
	_, err = store.Load(ctx, uuid.New(), results)
	require.NoError(t, err)

	var count int
	require.NoError(t, store.pool.QueryRow(ctx, "SELECT count(*) FROM "+store.table).Scan(&count))
	assert.Equal(t, 2, count)

	var srid int
	require.NoError(t, store.pool.QueryRow(ctx,
		"SELECT ST_SRID(footprint) FROM "+store.table+" WHERE name = 'a.las'").Scan(&srid))
	assert.Equal(t, 26919, srid)
}
