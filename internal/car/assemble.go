package car

import (
	"math"

	"github.com/raceplayback/server/pkg/core"
)

// Quaternion is a rotation in the render target's frame.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Identity is the zero rotation.
var Identity = Quaternion{W: 1}

// YawRotation rotates about the vertical axis by yaw degrees.
func YawRotation(yaw float64) Quaternion {
	half := -yaw * math.Pi / 360
	return Quaternion{Y: math.Sin(half), W: math.Cos(half)}
}

// RollRotation rotates about the forward axis by roll degrees.
func RollRotation(roll float64) Quaternion {
	half := roll * math.Pi / 360
	return Quaternion{Z: math.Sin(half), W: math.Cos(half)}
}

// Mul returns the rotation q followed by r in q's local frame.
func (q Quaternion) Mul(r Quaternion) Quaternion {
	return Quaternion{
		W: q.W*r.W - q.X*r.X - q.Y*r.Y - q.Z*r.Z,
		X: q.W*r.X + q.X*r.W + q.Y*r.Z - q.Z*r.Y,
		Y: q.W*r.Y - q.X*r.Z + q.Y*r.W + q.Z*r.X,
		Z: q.W*r.Z + q.X*r.Y - q.Y*r.X + q.Z*r.W,
	}
}

// State is the car pose plus the auxiliary visuals.
type State struct {
	Compound core.Compound
	Position core.Vec3
	Yaw      float64 // degrees
	DRSOpen  bool
	Steering float64 // degrees
}

// Pose is a part placed in the world.
type Pose struct {
	Name     string     `json:"name"`
	Model    string     `json:"model"`
	Position core.Vec3  `json:"position"`
	Rotation Quaternion `json:"rotation"`
	Scale    core.Vec3  `json:"scale"`
}

// RotateOffset turns a car-local offset by yaw degrees about the vertical axis.
func RotateOffset(offset core.Vec3, yaw float64) core.Vec3 {
	rad := yaw * math.Pi / 180
	sin, cos := math.Sincos(rad)
	return core.Vec3{
		X: offset.X*cos - offset.Z*sin,
		Y: offset.Y,
		Z: offset.X*sin + offset.Z*cos,
	}
}

// Assemble places every part of the car for s.
func Assemble(s State) []Pose {
	parts := Parts(s.Compound, s.DRSOpen)
	poses := make([]Pose, len(parts))
	for i, p := range parts {
		rot := YawRotation(s.Yaw + p.RotationOffset)
		if p.Kind == KindSteeringWheel {
			rot = rot.Mul(RollRotation(s.Steering))
		}
		poses[i] = Pose{
			Name:     p.Name,
			Model:    p.Model,
			Position: s.Position.Add(RotateOffset(p.Offset, s.Yaw)),
			Rotation: rot,
			Scale:    p.Scale,
		}
	}
	return poses
}
