package pipeline

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/wegman-software/lasstat-go/internal/crs"
	"github.com/wegman-software/lasstat-go/internal/las"
)

// Header is the subset of a point-cloud header the engine reads
type Header struct {
	Version     string
	PointFormat uint8
	PointCount  int64
	Scale       [3]float64
	Offset      [3]float64
	Min         [3]float64
	Max         [3]float64
}

// Bound returns the XY extent
func (h Header) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{h.Min[0], h.Min[1]},
		Max: orb.Point{h.Max[0], h.Max[1]},
	}
}

// Source is an opened point-cloud file
type Source interface {
	Header() Header
	Records() []crs.Record
	XY(ctx context.Context, stride int) ([]orb.Point, error)
	Histograms(ctx context.Context) (returns [5]int64, classes [10]int64, err error)
	Close() error
}

// Opener opens a file for reading
type Opener func(path string) (Source, error)

// OpenLAS opens an uncompressed LAS file
func OpenLAS(path string) (Source, error) {
	f, err := las.Open(path)
	if err != nil {
		return nil, err
	}
	return lasSource{f}, nil
}

type lasSource struct {
	f *las.File
}

func (s lasSource) Header() Header {
	h := s.f.Header
	return Header{
		Version:     h.Version(),
		PointFormat: h.PointFormat,
		PointCount:  int64(h.PointCount),
		Scale:       h.Scale,
		Offset:      h.Offset,
		Min:         h.Min,
		Max:         h.Max,
	}
}

func (s lasSource) Records() []crs.Record {
	return s.f.Records()
}

func (s lasSource) XY(ctx context.Context, stride int) ([]orb.Point, error) {
	return s.f.XY(ctx, stride)
}

func (s lasSource) Histograms(ctx context.Context) ([5]int64, [10]int64, error) {
	return s.f.Histograms(ctx)
}

func (s lasSource) Close() error {
	return s.f.Close()
}
