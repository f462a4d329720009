package mapping

import (
	"math"

	"github.com/raceplayback/server/pkg/core"
)

// minYawDisplacement is the per-axis movement below which heading is undefined.
const minYawDisplacement = 0.001

// Yaw returns the heading in degrees from one world position to another.
// 0 points along +Z; the result lies in (-180, 180]. Near-identical
// positions yield 0.
func Yaw(from, to core.Vec3) float64 {
	dx := to.X - from.X
	dz := to.Z - from.Z
	if math.Abs(dx) < minYawDisplacement && math.Abs(dz) < minYawDisplacement {
		return 0
	}
	angle := math.Atan2(dz, dx) * 180 / math.Pi
	return NormalizeDegrees(90 - angle)
}

// NormalizeDegrees wraps an angle into (-180, 180].
func NormalizeDegrees(a float64) float64 {
	a = math.Mod(a, 360)
	if a > 180 {
		a -= 360
	} else if a <= -180 {
		a += 360
	}
	return a
}
