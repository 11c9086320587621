package export

import (
	"errors"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/paulmach/orb"
	orbwkb "github.com/paulmach/orb/encoding/wkb"

	"github.com/wegman-software/lasstat-go/internal/pipeline"
)

// DefaultBatchSize is the number of rows buffered before a row group is written
const DefaultBatchSize = 1024

// Column indexes into resultSchema
const (
	colName = iota
	colPath
	colPointCount
	colDensity
	colFootprintAcres
	colDecimation
	colMinX
	colMinY
	colMinZ
	colMaxX
	colMaxY
	colMaxZ
	colVersion
	colPointFormat
	colCRS
	colCRSSource
	colVerticalDatum
	colEPSG
	colUnit
	colReturns
	colClasses
	colFileSize
	colElapsedMS
	colError
	colFootprintWKB
)

var resultSchema = arrow.NewSchema([]arrow.Field{
	{Name: "name", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "path", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "point_count", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "density", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "footprint_acres", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "decimation", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "min_x", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "min_y", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "min_z", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "max_x", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "max_y", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "max_z", Type: arrow.PrimitiveTypes.Float64, Nullable: false},
	{Name: "las_version", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "point_format", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
	{Name: "crs", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "crs_source", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "vertical_datum", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "epsg", Type: arrow.PrimitiveTypes.Int32, Nullable: true},
	{Name: "unit", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "returns", Type: arrow.ListOf(arrow.PrimitiveTypes.Int64), Nullable: true},
	{Name: "classes", Type: arrow.ListOf(arrow.PrimitiveTypes.Int64), Nullable: true},
	{Name: "file_size_bytes", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "elapsed_ms", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "error", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "footprint_wkb", Type: arrow.BinaryTypes.Binary, Nullable: true},
}, nil)

// ResultWriter writes per-file results to a zstd-compressed Parquet file.
// The footprint is stored as ISO WKB.
type ResultWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
}

// NewResultWriter creates a new result Parquet writer
func NewResultWriter(path string, batchSize int) (*ResultWriter, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(resultSchema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	return &ResultWriter{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, resultSchema),
		batchSize: batchSize,
	}, nil
}

// Write appends one result row
func (w *ResultWriter) Write(r *pipeline.Result) error {
	geom, err := footprintWKB(r.Footprint)
	if err != nil {
		return fmt.Errorf("failed to encode footprint of %s: %w", r.Name, err)
	}

	b := w.builder

	b.Field(colName).(*array.StringBuilder).Append(r.Name)
	b.Field(colPath).(*array.StringBuilder).Append(r.Path)
	b.Field(colPointCount).(*array.Int64Builder).Append(r.PointCount)
	b.Field(colDensity).(*array.Float64Builder).Append(r.Density)

	if r.FootprintAcres != nil {
		b.Field(colFootprintAcres).(*array.Float64Builder).Append(*r.FootprintAcres)
		b.Field(colDecimation).(*array.Float64Builder).Append(r.Decimation)
	} else {
		b.Field(colFootprintAcres).AppendNull()
		b.Field(colDecimation).AppendNull()
	}

	for i, col := range [...]int{colMinX, colMinY, colMinZ} {
		b.Field(col).(*array.Float64Builder).Append(r.Min[i])
	}
	for i, col := range [...]int{colMaxX, colMaxY, colMaxZ} {
		b.Field(col).(*array.Float64Builder).Append(r.Max[i])
	}

	b.Field(colVersion).(*array.StringBuilder).Append(r.Version)
	b.Field(colPointFormat).(*array.Int32Builder).Append(int32(r.PointFormat))

	appendString(b.Field(colCRS), r.CRS)
	appendString(b.Field(colCRSSource), string(r.CRSSource))
	appendString(b.Field(colVerticalDatum), r.VerticalDatum)
	if r.EPSG > 0 {
		b.Field(colEPSG).(*array.Int32Builder).Append(int32(r.EPSG))
	} else {
		b.Field(colEPSG).AppendNull()
	}
	b.Field(colUnit).(*array.StringBuilder).Append(r.Unit.String())

	if r.Returns != nil {
		appendCounts(b.Field(colReturns).(*array.ListBuilder), r.Returns[:])
	} else {
		b.Field(colReturns).AppendNull()
	}
	if r.Classes != nil {
		appendCounts(b.Field(colClasses).(*array.ListBuilder), r.Classes[:])
	} else {
		b.Field(colClasses).AppendNull()
	}

	b.Field(colFileSize).(*array.Int64Builder).Append(r.FileSize)
	b.Field(colElapsedMS).(*array.Int64Builder).Append(r.Elapsed.Milliseconds())

	if r.Err != nil {
		b.Field(colError).(*array.StringBuilder).Append(r.Err.Error())
	} else {
		b.Field(colError).AppendNull()
	}

	if geom != nil {
		b.Field(colFootprintWKB).(*array.BinaryBuilder).Append(geom)
	} else {
		b.Field(colFootprintWKB).AppendNull()
	}

	w.count++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

func (w *ResultWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close flushes buffered rows and closes the file
func (w *ResultWriter) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return err
	}
	// the parquet writer may already have closed the sink
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// WriteParquet writes all results to path
func WriteParquet(path string, results []pipeline.Result) error {
	w, err := NewResultWriter(path, DefaultBatchSize)
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	for i := range results {
		if err := w.Write(&results[i]); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close parquet file: %w", err)
	}
	return nil
}

func appendString(b array.Builder, s string) {
	if s == "" {
		b.AppendNull()
		return
	}
	b.(*array.StringBuilder).Append(s)
}

func appendCounts(lb *array.ListBuilder, counts []int64) {
	lb.Append(true)
	lb.ValueBuilder().(*array.Int64Builder).AppendValues(counts, nil)
}

func footprintWKB(ring orb.Ring) ([]byte, error) {
	if len(ring) < 3 {
		return nil, nil
	}
	if !ring.Closed() {
		ring = append(ring[:len(ring):len(ring)], ring[0])
	}
	return orbwkb.Marshal(orb.Polygon{ring})
}
