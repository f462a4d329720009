// Package streaming defines the wire messages of the render stream.
package streaming

import (
	"encoding/json"

	"github.com/raceplayback/server/pkg/core"
)

// Message type constants of the render stream protocol.
const (
	TypePlaceObject  = "place_object"
	TypeUpdateObject = "update_object"
	TypeAuxState     = "aux_state"
	TypeRemoveObject = "remove_object"
	TypeAck          = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Session string          `json:"session"`
	Seq     uint64          `json:"seq"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type    string `json:"type"` // always "ack"
	For     string `json:"for"`  // the message type being acknowledged
	Session string `json:"session,omitempty"`
}

// Rotation is a quaternion.
type Rotation struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// PartPose places one car part in the world.
type PartPose struct {
	Name     string    `json:"name"`
	Model    string    `json:"model"`
	Position core.Vec3 `json:"position"`
	Rotation Rotation  `json:"rotation"`
	Scale    core.Vec3 `json:"scale"`
}

// PlaceObjectPayload spawns the car.
type PlaceObjectPayload struct {
	Driver   string        `json:"driver"`
	Compound core.Compound `json:"compound"`
	Position core.Vec3     `json:"position"`
	Yaw      float64       `json:"yaw"`
	Parts    []PartPose    `json:"parts"`
}

// UpdateObjectPayload moves the car.
type UpdateObjectPayload struct {
	Position core.Vec3  `json:"position"`
	Yaw      float64    `json:"yaw"`
	Parts    []PartPose `json:"parts"`
}

// AuxStatePayload carries the auxiliary visuals and the parts they affect.
type AuxStatePayload struct {
	DRSOpen  bool       `json:"drsOpen"`
	Steering float64    `json:"steering"`
	Parts    []PartPose `json:"parts"`
}

// RemoveObjectPayload despawns the car.
type RemoveObjectPayload struct {
	Driver string `json:"driver"`
}
