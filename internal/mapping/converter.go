package mapping

import (
	"math"

	"github.com/raceplayback/server/pkg/core"
)

// DefaultScale converts telemetry units to world units.
const DefaultScale = 0.082

// Converter maps raw telemetry coordinates into world space by translation,
// uniform scale and a ground-plane rotation. The first converted sample
// becomes the local origin and stays fixed for the converter's lifetime.
type Converter struct {
	origin   core.Vec3
	rotation float64 // degrees
	scale    float64

	hasFirst       bool
	firstX, firstY float64
}

// NewConverter places the first converted sample at origin and rotates the
// track by rotationOffset degrees around it.
func NewConverter(origin core.Vec3, rotationOffset, scale float64) *Converter {
	if scale == 0 {
		scale = DefaultScale
	}
	return &Converter{origin: origin, rotation: rotationOffset, scale: scale}
}

// ToWorld converts a raw pair, placing the result at the given height.
func (c *Converter) ToWorld(x, y, height float64) core.Vec3 {
	if !c.hasFirst {
		c.firstX, c.firstY = x, y
		c.hasFirst = true
	}

	dx := (x - c.firstX) * c.scale
	dz := -(y - c.firstY) * c.scale

	rad := c.rotation * math.Pi / 180
	sin, cos := math.Sincos(rad)
	rx := dx*cos - dz*sin
	rz := dx*sin + dz*cos

	return core.Vec3{X: c.origin.X + rx, Y: height, Z: c.origin.Z + rz}
}

// Convert maps a telemetry sample.
func (c *Converter) Convert(p core.TelemetryPoint, height float64) core.Vec3 {
	x, y := p.RawXY()
	return c.ToWorld(x, y, height)
}

// Origin returns the world origin.
func (c *Converter) Origin() core.Vec3 {
	return c.origin
}

// CalculateYaw is the heading between two converted positions.
func (c *Converter) CalculateYaw(from, to core.Vec3) float64 {
	return Yaw(from, to)
}
