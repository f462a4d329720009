package car

import (
	"math"
	"testing"

	"github.com/raceplayback/server/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byName(poses []Pose) map[string]Pose {
	m := make(map[string]Pose, len(poses))
	for _, p := range poses {
		m[p.Name] = p
	}
	return m
}

func TestParts_Models(t *testing.T) {
	parts := Parts(core.CompoundMedium, false)
	require.Len(t, parts, 13)

	models := map[string]string{}
	for _, p := range parts {
		models[p.Name] = p.Model
	}
	assert.Equal(t, "wheel_medium", models["front_wheel_left"])
	assert.Equal(t, "wheel_medium", models["front_wheel_right"])
	assert.Equal(t, RearWingClosedModel, models["rear_wing"])
	assert.Equal(t, "cockpit_middle", models["cockpit_middle"])

	open := Parts(core.CompoundWet, true)
	for _, p := range open {
		if p.Name == "rear_wing" {
			assert.Equal(t, RearWingOpenModel, p.Model)
		}
	}
}

func TestParts_DoesNotShareLayout(t *testing.T) {
	a := Parts(core.CompoundSoft, false)
	a[0].Offset.X = 99
	b := Parts(core.CompoundSoft, false)
	assert.Equal(t, 0.3125, b[0].Offset.X)
}

func TestRotateOffset(t *testing.T) {
	tests := []struct {
		yaw  float64
		want core.Vec3
	}{
		{0, core.Vec3{X: 1, Y: 0.5, Z: 2}},
		{90, core.Vec3{X: -2, Y: 0.5, Z: 1}},
		{180, core.Vec3{X: -1, Y: 0.5, Z: -2}},
		{-90, core.Vec3{X: 2, Y: 0.5, Z: -1}},
	}
	for _, tt := range tests {
		got := RotateOffset(core.Vec3{X: 1, Y: 0.5, Z: 2}, tt.yaw)
		assert.InDelta(t, tt.want.X, got.X, 1e-9, "yaw %v", tt.yaw)
		assert.InDelta(t, tt.want.Y, got.Y, 1e-9, "yaw %v", tt.yaw)
		assert.InDelta(t, tt.want.Z, got.Z, 1e-9, "yaw %v", tt.yaw)
	}
}

func TestYawRotation(t *testing.T) {
	q := YawRotation(90)
	assert.InDelta(t, -math.Sqrt2/2, q.Y, 1e-9)
	assert.InDelta(t, math.Sqrt2/2, q.W, 1e-9)
	assert.Zero(t, q.X)
	assert.Zero(t, q.Z)

	assert.Equal(t, Identity, YawRotation(0))
}

func TestQuaternion_MulIdentity(t *testing.T) {
	q := YawRotation(37)
	assert.Equal(t, q, q.Mul(Identity))
	assert.Equal(t, q, Identity.Mul(q))
}

func TestAssemble(t *testing.T) {
	pos := core.Vec3{X: 10, Y: 42, Z: -5}
	poses := byName(Assemble(State{
		Compound: core.CompoundHard,
		Position: pos,
		Yaw:      0,
		DRSOpen:  true,
		Steering: 30,
	}))
	require.Len(t, poses, 13)

	wheel := poses["front_wheel_left"]
	assert.InDelta(t, 11.3, wheel.Position.X, 1e-9)
	assert.InDelta(t, 42.3, wheel.Position.Y, 1e-9)
	assert.InDelta(t, -2.475, wheel.Position.Z, 1e-9)
	assert.Equal(t, WheelScale, wheel.Scale)
	assert.Equal(t, "wheel_hard", wheel.Model)

	assert.Equal(t, RearWingOpenModel, poses["rear_wing"].Model)
	assert.Equal(t, BodyScale, poses["cockpit_left"].Scale)
	assert.Equal(t, Identity, poses["cockpit_left"].Rotation)

	sw := poses["steering_wheel"]
	want := YawRotation(180).Mul(RollRotation(30))
	assert.InDelta(t, want.X, sw.Rotation.X, 1e-9)
	assert.InDelta(t, want.Y, sw.Rotation.Y, 1e-9)
	assert.InDelta(t, want.Z, sw.Rotation.Z, 1e-9)
	assert.InDelta(t, want.W, sw.Rotation.W, 1e-9)
	assert.Equal(t, SteeringWheelScale, sw.Scale)
}

func TestAssemble_RotatesWithCar(t *testing.T) {
	poses := byName(Assemble(State{Yaw: 90}))
	wing := poses["rear_wing"]
	assert.InDelta(t, 2.3125, wing.Position.X, 1e-9)
	assert.InDelta(t, 1.063, wing.Position.Y, 1e-9)
	assert.InDelta(t, 0.0, wing.Position.Z, 1e-9)
}
