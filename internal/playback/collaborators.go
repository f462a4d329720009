package playback

import (
	"context"

	"github.com/raceplayback/server/pkg/core"
)

// TelemetrySource fetches one lap of telemetry.
type TelemetrySource interface {
	LapTelemetry(ctx context.Context, ref core.LapRef) ([]core.TelemetryPoint, error)
}

// SessionSource fetches session metadata.
type SessionSource interface {
	SessionInfo(ctx context.Context, year int, track string, session core.SessionType) (core.SessionInfo, error)
}

// Object describes the rendered car.
type Object struct {
	Driver   string
	Compound core.Compound
}

// AuxState is the auxiliary visual state of the car.
type AuxState struct {
	DRSOpen  bool
	Steering float64 // degrees
}

// Renderer owns the rendered object in the world.
type Renderer interface {
	PlaceObject(obj Object, pos core.Vec3, yaw float64) error
	UpdateObject(pos core.Vec3, yaw float64) error
	SetAuxiliaryState(state AuxState) error
	RemoveObject() error
}

// Observer receives every point pushed to the renderer.
type Observer interface {
	ObservePoint(ref core.LapRef, p TimelinePoint)
}
