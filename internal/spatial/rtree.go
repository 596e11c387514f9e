// Package spatial holds the range-query indexes over open restaurant coordinates.
// Every index answers "which positions may lie within r km of this point"; a
// superset is fine, callers post-filter by exact distance.
package spatial

import (
	"context"
	"math"

	"github.com/dhconnelly/rtreego"

	"delivery-match/internal/models"
)

const (
	EarthRadiusKm = 6371.0

	// Points are stored as unit-sphere vectors, so these are in earth radii.
	pointTolerance = 1e-12
	queryEpsilon   = 1e-9

	minBranch = 25
	maxBranch = 50
)

type item struct {
	rect rtreego.Rect
	pos  int
}

func (it *item) Bounds() rtreego.Rect {
	return it.rect
}

// RTree is a 3-D R-tree over unit vectors. Chord distance grows monotonically
// with great-circle distance, so a cube around the query vector bounds every
// point within the radius without antimeridian or pole handling.
type RTree struct {
	tree *rtreego.Rtree
	n    int
}

// NewRTree bulk loads the index. Position i in the index is points[i].
func NewRTree(points []models.Coordinate) *RTree {
	objs := make([]rtreego.Spatial, len(points))
	for i, p := range points {
		objs[i] = &item{rect: unitVector(p).ToRect(pointTolerance), pos: i}
	}
	return &RTree{tree: rtreego.NewTree(3, minBranch, maxBranch, objs...), n: len(points)}
}

func (t *RTree) Len() int { return t.n }

func (t *RTree) Within(_ context.Context, center models.Coordinate, radiusKm float64) ([]int, error) {
	if t.n == 0 || radiusKm < 0 {
		return nil, nil
	}
	half := ChordLength(radiusKm) + queryEpsilon
	v := unitVector(center)
	corner := rtreego.Point{v[0] - half, v[1] - half, v[2] - half}
	side := 2 * half
	rect, err := rtreego.NewRect(corner, []float64{side, side, side})
	if err != nil {
		return nil, err
	}

	hits := t.tree.SearchIntersect(rect)
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.(*item).pos
	}
	return out, nil
}

func (t *RTree) Close() error { return nil }

// ChordLength converts a great-circle distance to the straight-line distance
// between the two points on a unit sphere.
func ChordLength(radiusKm float64) float64 {
	theta := radiusKm / EarthRadiusKm
	if theta >= math.Pi {
		return 2
	}
	return 2 * math.Sin(theta/2)
}

func unitVector(c models.Coordinate) rtreego.Point {
	lat := c.Lat * math.Pi / 180
	lon := c.Lon * math.Pi / 180
	cosLat := math.Cos(lat)
	return rtreego.Point{cosLat * math.Cos(lon), cosLat * math.Sin(lon), math.Sin(lat)}
}
