package geometry

import (
	"math"

	"github.com/raceplayback/server/pkg/core"
)

const (
	// DefaultCenterlineSteps is the number of percent steps sampled across both edges.
	DefaultCenterlineSteps = 1000
	// DefaultTrackWidth is reported when no width samples exist.
	DefaultTrackWidth = 10.0

	curvatureEpsilon = 0.01
)

// TrackCenterline is the midline between a left and a right edge.
type TrackCenterline struct {
	*ArcLengthCurve
	left   *TrackEdge
	right  *TrackEdge
	widths []float64
}

// NewTrackCenterline samples both edges at DefaultCenterlineSteps steps.
func NewTrackCenterline(left, right *TrackEdge) *TrackCenterline {
	return NewTrackCenterlineWithSteps(left, right, DefaultCenterlineSteps)
}

// NewTrackCenterlineWithSteps samples both edges at steps+1 evenly spaced
// percents and indexes the midpoints by their own arc length.
func NewTrackCenterlineWithSteps(left, right *TrackEdge, steps int) *TrackCenterline {
	if steps < 1 {
		steps = DefaultCenterlineSteps
	}
	mids := make([]core.Vec3, 0, steps+1)
	widths := make([]float64, 0, steps+1)
	for i := 0; i <= steps; i++ {
		p := float64(i) / float64(steps)
		l := left.PositionAtPercent(p)
		r := right.PositionAtPercent(p)
		mids = append(mids, l.Lerp(r, 0.5))
		widths = append(widths, l.Distance(r))
	}
	return &TrackCenterline{
		ArcLengthCurve: NewArcLengthCurve(mids),
		left:           left,
		right:          right,
		widths:         widths,
	}
}

// Left returns the left edge.
func (c *TrackCenterline) Left() *TrackEdge { return c.left }

// Right returns the right edge.
func (c *TrackCenterline) Right() *TrackEdge { return c.right }

// NormalAtPercent is the tangent rotated 90 degrees in the ground plane.
func (c *TrackCenterline) NormalAtPercent(p float64) core.Vec3 {
	t := c.TangentAtPercent(p)
	return core.Vec3{X: -t.Z, Z: t.X}
}

// CurvatureAtPercent estimates curvature as the angle between tangents at
// p-0.01 and p+0.01 divided by the arc length they span.
func (c *TrackCenterline) CurvatureAtPercent(p float64) float64 {
	p = finitePercent(p)
	t1 := c.TangentAtPercent(math.Max(0, p-curvatureEpsilon))
	t2 := c.TangentAtPercent(math.Min(1, p+curvatureEpsilon))

	dot := t1.X*t2.X + t1.Z*t2.Z
	dot = math.Max(-1, math.Min(1, dot))

	span := c.totalLength * 2 * curvatureEpsilon
	if span < minSegmentLength {
		return 0
	}
	return math.Acos(dot) / span
}

// FindClosestPercent returns the percent of the centerline sample nearest to target.
func (c *TrackCenterline) FindClosestPercent(target core.Vec3) float64 {
	i := c.FindClosestIndex(target)
	if i < 0 {
		return 0
	}
	return c.PercentAtIndex(i)
}

// TrackWidthAtPercent returns the edge-to-edge width recorded at the sample
// nearest below p.
func (c *TrackCenterline) TrackWidthAtPercent(p float64) float64 {
	n := len(c.widths)
	if n == 0 {
		return DefaultTrackWidth
	}
	i := int(finitePercent(p) * float64(n-1))
	i = max(0, min(n-1, i))
	return c.widths[i]
}
