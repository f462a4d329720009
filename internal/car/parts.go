// Package car describes the rendered car as data and assembles per-part
// world poses from a single car pose.
package car

import "github.com/raceplayback/server/pkg/core"

// Kind groups parts that share scale and model rules.
type Kind int

const (
	KindBody Kind = iota
	KindWheel
	KindRearWing
	KindSteeringWheel
)

// Part is the static description of one car part relative to the car origin.
type Part struct {
	Name           string
	Kind           Kind
	Offset         core.Vec3
	Scale          core.Vec3
	RotationOffset float64 // degrees, added to the car yaw
	Model          string
}

var (
	BodyScale          = core.Vec3{X: 1.28, Y: 1.01, Z: 1.24}
	WheelScale         = core.Vec3{X: 0.54, Y: 0.66, Z: 0.66}
	SteeringWheelScale = core.Vec3{X: 0.3, Y: 0.3, Z: 0.3}
)

const (
	RearWingOpenModel   = "rear_wing_drs_open"
	RearWingClosedModel = "rear_wing_drs_closed"
	SteeringWheelModel  = "steering_wheel"
)

var layout = []Part{
	{Name: "cockpit_left", Kind: KindBody, Offset: core.Vec3{X: 0.3125, Y: 0.5}},
	{Name: "cockpit_middle", Kind: KindBody, Offset: core.Vec3{Y: 0.5}},
	{Name: "cockpit_right", Kind: KindBody, Offset: core.Vec3{X: -0.5, Y: 0.5}},
	{Name: "front_wing_left", Kind: KindBody, Offset: core.Vec3{X: 0.439, Y: 0.5, Z: 1.0}},
	{Name: "front_wing_right", Kind: KindBody, Offset: core.Vec3{X: -0.437, Y: 0.4375, Z: 1.75}},
	{Name: "rear_assembly", Kind: KindBody, Offset: core.Vec3{Y: 0.5, Z: -1.875}},
	{Name: "rear_chassis_centre", Kind: KindBody, Offset: core.Vec3{Y: 0.5, Z: -0.9375}},
	{Name: "rear_chassis_left", Kind: KindBody, Offset: core.Vec3{X: 0.5, Y: 0.5, Z: -1.0}},
	{Name: "rear_chassis_right", Kind: KindBody, Offset: core.Vec3{X: -0.5625, Y: 0.5, Z: -1.0}},
	{Name: "front_wheel_left", Kind: KindWheel, Offset: core.Vec3{X: 1.3, Y: 0.3, Z: 2.525}},
	{Name: "front_wheel_right", Kind: KindWheel, Offset: core.Vec3{X: -1.3, Y: 0.3, Z: 2.525}},
	{Name: "rear_wing", Kind: KindRearWing, Offset: core.Vec3{Y: 1.063, Z: -2.3125}},
	{Name: "steering_wheel", Kind: KindSteeringWheel, Offset: core.Vec3{Y: 0.5, Z: 0.5}, RotationOffset: 180},
}

// Parts returns the car's parts with models resolved for the tyre compound
// and DRS state.
func Parts(compound core.Compound, drsOpen bool) []Part {
	parts := make([]Part, len(layout))
	for i, p := range layout {
		switch p.Kind {
		case KindBody:
			p.Scale = BodyScale
			p.Model = p.Name
		case KindWheel:
			p.Scale = WheelScale
			p.Model = "wheel_" + compound.ModelName()
		case KindRearWing:
			p.Scale = BodyScale
			p.Model = RearWingClosedModel
			if drsOpen {
				p.Model = RearWingOpenModel
			}
		case KindSteeringWheel:
			p.Scale = SteeringWheelScale
			p.Model = SteeringWheelModel
		}
		parts[i] = p
	}
	return parts
}
