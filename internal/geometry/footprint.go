package geometry

import (
	"github.com/paulmach/orb"

	"github.com/wegman-software/lasstat-go/internal/units"
)

// Footprint is the convex-hull footprint of a point cloud
type Footprint struct {
	Hull         orb.Ring
	Area         float64 // in squared source units
	SquareMeters float64
	Acres        float64
}

// ComputeFootprint computes the hull of the given points, its area and the
// area converted to m² and acres using the file's linear unit (unknown is
// treated as meters). Points is reordered in place.
func ComputeFootprint(points []orb.Point, unit units.Unit) (Footprint, error) {
	hull, err := ConvexHull(points)
	if err != nil {
		return Footprint{}, err
	}

	area := PolygonArea(hull)
	if area <= 0 {
		return Footprint{}, ErrDegenerate
	}

	sqm := unit.ToSquareMeters(area)
	return Footprint{
		Hull:         hull,
		Area:         area,
		SquareMeters: sqm,
		Acres:        units.SquareMetersToAcres(sqm),
	}, nil
}

// Density returns points per m² over the footprint, or 0 for an empty footprint
func (f Footprint) Density(pointCount int64) float64 {
	if f.SquareMeters <= 0 {
		return 0
	}
	return float64(pointCount) / f.SquareMeters
}

// BoundsDensity returns points per m² over the axis-aligned bounding box.
// This is the header-only estimate used when no footprint is computed.
func BoundsDensity(pointCount int64, bound orb.Bound, unit units.Unit) float64 {
	w := bound.Max[0] - bound.Min[0]
	h := bound.Max[1] - bound.Min[1]
	if w <= 0 || h <= 0 || pointCount <= 0 {
		return 0
	}
	sqm := unit.ToSquareMeters(w * h)
	return float64(pointCount) / sqm
}
