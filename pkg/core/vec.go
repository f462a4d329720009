// pkg/core/vec.go
package core

import "math"

// Vec3 is a world-space position. Y is height; X and Z span the ground plane.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Point2D is a ground-plane pair used for curve math.
type Point2D struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

// Ground drops the height component.
func (v Vec3) Ground() Point2D {
	return Point2D{X: v.X, Z: v.Z}
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale multiplies every component by f.
func (v Vec3) Scale(f float64) Vec3 {
	return Vec3{X: v.X * f, Y: v.Y * f, Z: v.Z * f}
}

// Lerp interpolates between v and o; t=0 yields v and t=1 yields o.
func (v Vec3) Lerp(o Vec3, t float64) Vec3 {
	return Vec3{
		X: v.X + (o.X-v.X)*t,
		Y: v.Y + (o.Y-v.Y)*t,
		Z: v.Z + (o.Z-v.Z)*t,
	}
}

// Distance is the full 3-D Euclidean distance.
func (v Vec3) Distance(o Vec3) float64 {
	dx, dy, dz := o.X-v.X, o.Y-v.Y, o.Z-v.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// DistanceSquaredXZ is the squared ground-plane distance.
func (v Vec3) DistanceSquaredXZ(o Vec3) float64 {
	dx, dz := o.X-v.X, o.Z-v.Z
	return dx*dx + dz*dz
}

// WithY returns a copy of v at height y.
func (v Vec3) WithY(y float64) Vec3 {
	v.Y = y
	return v
}
