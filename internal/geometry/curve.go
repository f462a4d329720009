package geometry

import (
	"math"

	"github.com/raceplayback/server/pkg/core"
)

const (
	// tangentEpsilon is the percent step used for central-difference tangents.
	tangentEpsilon = 0.001
	// minSegmentLength guards interpolation and normalization against zero lengths.
	minSegmentLength = 0.001
)

// DefaultTangent is returned when a tangent cannot be derived.
var DefaultTangent = core.Vec3{X: 1, Y: 0, Z: 0}

// ArcLengthCurve is an immutable polyline indexed by cumulative arc length.
type ArcLengthCurve struct {
	points      []core.Vec3
	lengths     []float64
	totalLength float64
}

// NewArcLengthCurve copies points and computes their cumulative lengths.
func NewArcLengthCurve(points []core.Vec3) *ArcLengthCurve {
	c := &ArcLengthCurve{
		points:  append([]core.Vec3(nil), points...),
		lengths: make([]float64, len(points)),
	}
	for i := 1; i < len(c.points); i++ {
		c.lengths[i] = c.lengths[i-1] + c.points[i-1].Distance(c.points[i])
	}
	if len(c.lengths) > 0 {
		c.totalLength = c.lengths[len(c.lengths)-1]
	}
	return c
}

// Len returns the number of points.
func (c *ArcLengthCurve) Len() int {
	return len(c.points)
}

// TotalLength is the arc length of the last point.
func (c *ArcLengthCurve) TotalLength() float64 {
	return c.totalLength
}

// Point returns the i-th point.
func (c *ArcLengthCurve) Point(i int) core.Vec3 {
	return c.points[i]
}

// Points returns a copy of the points.
func (c *ArcLengthCurve) Points() []core.Vec3 {
	return append([]core.Vec3(nil), c.points...)
}

// CumulativeLength returns the arc length at point i.
func (c *ArcLengthCurve) CumulativeLength(i int) float64 {
	return c.lengths[i]
}

// finitePercent maps NaN to the start of the curve.
func finitePercent(p float64) float64 {
	if math.IsNaN(p) {
		return 0
	}
	return p
}

// PositionAtPercent samples the polyline at a fraction of its total length.
// An empty curve yields the zero vector. NaN samples the first point.
func (c *ArcLengthCurve) PositionAtPercent(p float64) core.Vec3 {
	p = finitePercent(p)
	n := len(c.points)
	if n == 0 {
		return core.Vec3{}
	}
	if p <= 0 || n == 1 {
		return c.points[0]
	}
	if p >= 1 {
		return c.points[n-1]
	}

	target := c.totalLength * p
	i := c.segmentAt(target)

	segment := c.lengths[i+1] - c.lengths[i]
	if segment < minSegmentLength {
		return c.points[i]
	}
	t := (target - c.lengths[i]) / segment
	return c.points[i].Lerp(c.points[i+1], t)
}

// segmentAt returns the index i of the segment [i, i+1] containing target.
func (c *ArcLengthCurve) segmentAt(target float64) int {
	lo, hi := 0, len(c.lengths)-2
	for lo < hi {
		mid := (lo + hi) / 2
		if c.lengths[mid+1] < target {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// TangentAtPercent is the unit ground-plane direction of travel at p.
// Degenerate curves return DefaultTangent.
func (c *ArcLengthCurve) TangentAtPercent(p float64) core.Vec3 {
	if len(c.points) < 2 {
		return DefaultTangent
	}
	p = finitePercent(p)
	a := c.PositionAtPercent(math.Max(0, p-tangentEpsilon))
	b := c.PositionAtPercent(math.Min(1, p+tangentEpsilon))
	return unitXZ(b.X-a.X, b.Z-a.Z)
}

// FindClosestIndex returns the index of the point nearest to target on the
// ground plane. The lowest index wins ties. An empty curve returns -1.
func (c *ArcLengthCurve) FindClosestIndex(target core.Vec3) int {
	best := -1
	bestDist := math.Inf(1)
	for i, pt := range c.points {
		if d := pt.DistanceSquaredXZ(target); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// PercentAtIndex converts a point index to a fraction of the total length.
func (c *ArcLengthCurve) PercentAtIndex(i int) float64 {
	if c.totalLength < minSegmentLength || i < 0 || i >= len(c.lengths) {
		return 0
	}
	return c.lengths[i] / c.totalLength
}

func unitXZ(dx, dz float64) core.Vec3 {
	l := math.Hypot(dx, dz)
	if l < minSegmentLength {
		return DefaultTangent
	}
	return core.Vec3{X: dx / l, Z: dz / l}
}
