package geometry

import (
	"math"

	"github.com/raceplayback/server/pkg/core"
)

// RacingLine is the curve driven in one lap, built 1:1 from its telemetry.
type RacingLine struct {
	*ArcLengthCurve
	telemetry []core.TelemetryPoint
}

// TelemetryPosition places a raw telemetry sample on the ground plane:
// telemetry X maps to X and telemetry Y maps to Z.
func TelemetryPosition(p core.TelemetryPoint) core.Vec3 {
	x, y := p.RawXY()
	return core.Vec3{X: x, Y: 0, Z: y}
}

// NewRacingLine builds a racing line from a lap of telemetry.
func NewRacingLine(telemetry []core.TelemetryPoint) *RacingLine {
	points := make([]core.Vec3, len(telemetry))
	for i, p := range telemetry {
		points[i] = TelemetryPosition(p)
	}
	return &RacingLine{
		ArcLengthCurve: NewArcLengthCurve(points),
		telemetry:      append([]core.TelemetryPoint(nil), telemetry...),
	}
}

// TelemetryAt returns the sample behind curve index i.
func (r *RacingLine) TelemetryAt(i int) (core.TelemetryPoint, bool) {
	if i < 0 || i >= len(r.telemetry) {
		return core.TelemetryPoint{}, false
	}
	return r.telemetry[i], true
}

// LateralOffset is the signed distance of pos from the segment starting at
// index i, measured along the segment's left-hand normal. It is 0 at the
// last index or on a zero-length segment.
func (r *RacingLine) LateralOffset(pos core.Vec3, i int) float64 {
	if i < 0 || i >= len(r.points)-1 {
		return 0
	}
	a, b := r.points[i], r.points[i+1]
	dx, dz := b.X-a.X, b.Z-a.Z
	l := math.Hypot(dx, dz)
	if l < minSegmentLength {
		return 0
	}
	dx /= l
	dz /= l

	tx, tz := pos.X-a.X, pos.Z-a.Z
	return tx*(-dz) + tz*dx
}
