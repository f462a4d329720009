package geometry

import (
	"math"

	"github.com/raceplayback/server/pkg/core"
)

// refineSteps is the number of sub-steps checked per neighbouring segment
// when refining a closest-point lookup on an edge.
const refineSteps = 10

// TrackEdge is one physical boundary of a track.
type TrackEdge struct {
	*ArcLengthCurve
	Name string
}

// NewTrackEdge builds an edge from ordered boundary samples.
func NewTrackEdge(name string, points []core.Vec3) *TrackEdge {
	return &TrackEdge{
		ArcLengthCurve: NewArcLengthCurve(points),
		Name:           name,
	}
}

// FindClosestPercent returns the percent along the edge nearest to target.
// The nearest sample is refined by probing the segments on either side of it.
func (e *TrackEdge) FindClosestPercent(target core.Vec3) float64 {
	closest := e.FindClosestIndex(target)
	if closest < 0 || e.totalLength < minSegmentLength {
		return 0
	}

	best := e.PercentAtIndex(closest)
	bestDist := e.points[closest].DistanceSquaredXZ(target)

	start := max(0, closest-1)
	end := min(len(e.points)-1, closest+1)
	for i := start; i < end; i++ {
		for j := 0; j <= refineSteps; j++ {
			t := float64(j) / refineSteps
			d := e.points[i].Lerp(e.points[i+1], t).DistanceSquaredXZ(target)
			if d < bestDist {
				bestDist = d
				best = (e.lengths[i] + t*(e.lengths[i+1]-e.lengths[i])) / e.totalLength
			}
		}
	}
	return math.Min(1, math.Max(0, best))
}
