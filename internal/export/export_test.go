package export

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/google/uuid"
	"github.com/paulmach/orb"
	orbwkb "github.com/paulmach/orb/encoding/wkb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/wegman-software/lasstat-go/internal/budget"
	"github.com/wegman-software/lasstat-go/internal/crs"
	"github.com/wegman-software/lasstat-go/internal/pipeline"
	"github.com/wegman-software/lasstat-go/internal/units"
)

func sampleReport() *pipeline.Report {
	acres := 2.47105
	returns := pipeline.ReturnCounts{80, 20}
	classes := pipeline.ClassCounts{2: 60, 6: 40}

	results := []pipeline.Result{
		{
			Path: "/data/a.las", Name: "a.las",
			PointCount: 100, Density: 0.01,
			FootprintAcres: &acres,
			Footprint:      orb.Ring{{0, 0}, {100, 0}, {100, 100}, {0, 100}},
			Decimation:     1,
			Min:            [3]float64{0, 0, 1}, Max: [3]float64{100, 100, 9},
			Version: "1.2", PointFormat: 1,
			CRS: crs.LabelUTMMeters, CRSSource: crs.SourceCoordinates,
			EPSG: 26919, Unit: units.Meters,
			Returns: &returns, Classes: &classes,
			FileSize: 4096, Elapsed: 1500 * time.Millisecond,
		},
		{
			Path: "/data/b.las", Name: "b.las",
			FileSize: 10, Err: errors.New("failed to open: not a LAS file"),
		},
	}

	return &pipeline.Report{
		BatchID: uuid.MustParse("8f14e45f-ceea-467a-9d3b-1c2e3f4a5b6c"),
		State:   pipeline.StateCompleted,
		Plan:    budget.Plan{Files: 2, AvgFileSizeMB: 0.004, AvailableRAMGB: 16, Workers: 2},
		Results: results,
		Stats:   pipeline.Aggregate(results),
		Elapsed: 2 * time.Second,
	}
}

func column(t *testing.T, tbl arrow.Table, name string) arrow.Array {
	t.Helper()
	idx := tbl.Schema().FieldIndices(name)
	require.Len(t, idx, 1, "column %s", name)
	chunks := tbl.Column(idx[0]).Data().Chunks()
	require.NotEmpty(t, chunks)
	return chunks[0]
}

func TestWriteParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.parquet")
	report := sampleReport()
	require.NoError(t, WriteParquet(path, report.Results))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	tbl, err := pqarrow.ReadTable(context.Background(), f, parquet.NewReaderProperties(memory.DefaultAllocator),
		pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	require.NoError(t, err)
	defer tbl.Release()

	assert.Equal(t, int64(2), tbl.NumRows())

	names := column(t, tbl, "name").(*array.String)
	assert.Equal(t, "a.las", names.Value(0))
	assert.Equal(t, "b.las", names.Value(1))

	points := column(t, tbl, "point_count").(*array.Int64)
	assert.Equal(t, int64(100), points.Value(0))

	fp := column(t, tbl, "footprint_acres").(*array.Float64)
	assert.InDelta(t, 2.47105, fp.Value(0), 1e-9)
	assert.True(t, fp.IsNull(1))

	epsg := column(t, tbl, "epsg").(*array.Int32)
	assert.Equal(t, int32(26919), epsg.Value(0))
	assert.True(t, epsg.IsNull(1))

	errs := column(t, tbl, "error").(*array.String)
	assert.True(t, errs.IsNull(0))
	assert.Contains(t, errs.Value(1), "not a LAS file")

	classes := column(t, tbl, "classes").(*array.List)
	assert.True(t, classes.IsNull(1))
	start, end := classes.ValueOffsets(0)
	assert.Equal(t, int64(10), end-start)

	geoms := column(t, tbl, "footprint_wkb").(*array.Binary)
	assert.True(t, geoms.IsNull(1))
	g, err := orbwkb.Unmarshal(geoms.Value(0))
	require.NoError(t, err)
	poly, ok := g.(orb.Polygon)
	require.True(t, ok)
	assert.Len(t, poly[0], 5)
	assert.True(t, poly[0].Closed())
}

func TestWriteParquetEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")
	require.NoError(t, WriteParquet(path, nil))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestWriteParquetBadPath(t *testing.T) {
	err := WriteParquet(filepath.Join(t.TempDir(), "missing", "x.parquet"), nil)
	assert.Error(t, err)
}

func TestNewSummary(t *testing.T) {
	s := NewSummary(sampleReport())

	assert.Equal(t, "8f14e45f-ceea-467a-9d3b-1c2e3f4a5b6c", s.BatchID)
	assert.Equal(t, "completed", s.State)
	assert.Equal(t, "2s", s.Elapsed)
	assert.Equal(t, 2, s.Plan.Workers)
	assert.Equal(t, 1, s.Stats.ValidFiles)
	assert.Equal(t, 1, s.Stats.FailedFiles)
	assert.Equal(t, map[int]int64{1: 80, 2: 20}, s.Stats.Returns)
	assert.Equal(t, map[string]int64{"Ground": 60, "Building": 40}, s.Stats.Classes)

	require.Len(t, s.Files, 2)
	assert.Equal(t, 26919, s.Files[0].EPSG)
	assert.Empty(t, s.Files[0].Error)
	assert.Zero(t, s.Files[1].Points)
	assert.Contains(t, s.Files[1].Error, "not a LAS file")
}

func TestWriteSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.yaml")
	require.NoError(t, WriteSummary(path, sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got Summary
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, "completed", got.State)
	assert.Equal(t, int64(100), got.Stats.TotalPoints)
	require.Len(t, got.Files, 2)
	require.NotNil(t, got.Files[0].FootprintAcres)
	assert.InDelta(t, 2.47105, *got.Files[0].FootprintAcres, 1e-9)
	assert.Nil(t, got.Files[1].FootprintAcres)
}

func TestWriteAll(t *testing.T) {
	dir := t.TempDir()
	out := Outputs{
		Parquet: filepath.Join(dir, "r.parquet"),
		Summary: filepath.Join(dir, "s.yaml"),
	}
	require.NoError(t, WriteAll(context.Background(), out, sampleReport()))
	assert.FileExists(t, out.Parquet)
	assert.FileExists(t, out.Summary)

	// skipped outputs
	require.NoError(t, WriteAll(context.Background(), Outputs{}, sampleReport()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := WriteAll(ctx, Outputs{Summary: filepath.Join(dir, "never.yaml")}, sampleReport())
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, filepath.Join(dir, "never.yaml"))
}
