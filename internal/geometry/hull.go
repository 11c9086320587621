package geometry

import (
	"cmp"
	"errors"
	"slices"

	"github.com/paulmach/orb"
)

// ErrDegenerate is returned when points do not enclose any area
var ErrDegenerate = errors.New("degenerate point set: no enclosed area")

// ConvexHull computes the convex hull of a 2-D point set using Andrew's
// monotone chain. The returned ring is counter-clockwise and closed (first
// vertex repeated at the end). Points is sorted in place.
func ConvexHull(points []orb.Point) (orb.Ring, error) {
	if len(points) < 3 {
		return nil, ErrDegenerate
	}

	slices.SortFunc(points, func(a, b orb.Point) int {
		if c := cmp.Compare(a[0], b[0]); c != 0 {
			return c
		}
		return cmp.Compare(a[1], b[1])
	})
	points = slices.Compact(points)
	if len(points) < 3 {
		return nil, ErrDegenerate
	}

	hull := make([]orb.Point, 0, 64)

	// Lower hull
	for _, p := range points {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// Upper hull
	lower := len(hull) + 1
	for i := len(points) - 2; i >= 0; i-- {
		p := points[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}

	// The last point equals the first, which closes the ring.
	// A closed ring needs at least 3 distinct vertices.
	if len(hull) < 4 {
		return nil, ErrDegenerate
	}

	return orb.Ring(hull), nil
}

// cross returns the z component of (a->b) x (a->c)
func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// PolygonArea returns the enclosed area of a simple polygon using the
// shoelace formula. The ring may be open or closed.
func PolygonArea(ring orb.Ring) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}
	if ring.Closed() {
		n--
	}
	if n < 3 {
		return 0
	}

	// Shift to the first vertex to keep large projected coordinates
	// from swamping the products.
	ox, oy := ring[0][0], ring[0][1]

	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		x1, y1 := ring[i][0]-ox, ring[i][1]-oy
		x2, y2 := ring[j][0]-ox, ring[j][1]-oy
		sum += x1*y2 - x2*y1
	}

	if sum < 0 {
		sum = -sum
	}
	return sum / 2
}
