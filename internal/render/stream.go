// Package render implements the render collaborators that receive a
// playback session's car poses.
package render

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/raceplayback/server/internal/car"
	"github.com/raceplayback/server/internal/playback"
	"github.com/raceplayback/server/pkg/core"
	"github.com/raceplayback/server/pkg/streaming"
)

// StreamConfig configures a StreamRenderer.
type StreamConfig struct {
	URL    string
	Secret string
}

// StreamRenderer streams the car of one session to a render server over
// WebSocket. Position updates are fire-and-forget; placing the car waits
// for the server's ack.
type StreamRenderer struct {
	cfg     StreamConfig
	conn    *connection
	session string
	seq     atomic.Uint64
	logger  *slog.Logger

	mu     sync.Mutex
	driver string
	state  car.State
	placed bool
}

// NewStreamRenderer creates a renderer with its own session ID.
func NewStreamRenderer(cfg StreamConfig, logger *slog.Logger) *StreamRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	session := uuid.NewString()
	logger = logger.With("renderSession", session)
	r := &StreamRenderer{
		cfg:     cfg,
		conn:    newConnection(logger),
		session: session,
		logger:  logger,
	}
	r.conn.setReplay(r.replayMessage)
	return r
}

// Connect dials the render server.
func (r *StreamRenderer) Connect() error {
	return r.conn.dial(r.cfg.URL, r.cfg.Secret)
}

// Close disconnects from the render server.
func (r *StreamRenderer) Close() error {
	return r.conn.close()
}

// Session is the ID stamped on every envelope.
func (r *StreamRenderer) Session() string {
	return r.session
}

func (r *StreamRenderer) envelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(streaming.Envelope{
		Type:    msgType,
		Session: r.session,
		Seq:     r.seq.Add(1),
		Payload: raw,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

func (r *StreamRenderer) send(msgType string, payload any) error {
	data, err := r.envelope(msgType, payload)
	if err != nil {
		return err
	}
	r.conn.send(data)
	return nil
}

func (r *StreamRenderer) placePayload() streaming.PlaceObjectPayload {
	return streaming.PlaceObjectPayload{
		Driver:   r.driver,
		Compound: r.state.Compound,
		Position: r.state.Position,
		Yaw:      r.state.Yaw,
		Parts:    partPoses(car.Assemble(r.state)),
	}
}

// replayMessage restores the car at its latest pose after a reconnect.
func (r *StreamRenderer) replayMessage() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.placed {
		return nil
	}
	data, err := r.envelope(streaming.TypePlaceObject, r.placePayload())
	if err != nil {
		r.logger.Warn("Failed to build replay message", "error", err)
		return nil
	}
	return data
}

// PlaceObject spawns the car and waits for the server's ack.
func (r *StreamRenderer) PlaceObject(obj playback.Object, pos core.Vec3, yaw float64) error {
	r.mu.Lock()
	r.driver = obj.Driver
	r.state = car.State{Compound: obj.Compound, Position: pos, Yaw: yaw}
	r.placed = true
	data, err := r.envelope(streaming.TypePlaceObject, r.placePayload())
	r.mu.Unlock()
	if err != nil {
		return err
	}
	return r.conn.sendAndWait(data, streaming.TypePlaceObject, ackTimeout)
}

// UpdateObject moves the car.
func (r *StreamRenderer) UpdateObject(pos core.Vec3, yaw float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.placed {
		return ErrNotPlaced
	}
	r.state.Position = pos
	r.state.Yaw = yaw
	return r.send(streaming.TypeUpdateObject, streaming.UpdateObjectPayload{
		Position: pos,
		Yaw:      yaw,
		Parts:    partPoses(car.Assemble(r.state)),
	})
}

// SetAuxiliaryState updates the rear wing and steering wheel.
func (r *StreamRenderer) SetAuxiliaryState(aux playback.AuxState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.placed {
		return ErrNotPlaced
	}
	r.state.DRSOpen = aux.DRSOpen
	r.state.Steering = aux.Steering

	var parts []car.Pose
	for _, p := range car.Assemble(r.state) {
		if p.Name == "rear_wing" || p.Name == "steering_wheel" {
			parts = append(parts, p)
		}
	}
	return r.send(streaming.TypeAuxState, streaming.AuxStatePayload{
		DRSOpen:  aux.DRSOpen,
		Steering: aux.Steering,
		Parts:    partPoses(parts),
	})
}

// RemoveObject despawns the car.
func (r *StreamRenderer) RemoveObject() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.placed {
		return nil
	}
	r.placed = false
	return r.send(streaming.TypeRemoveObject, streaming.RemoveObjectPayload{Driver: r.driver})
}

func partPoses(poses []car.Pose) []streaming.PartPose {
	out := make([]streaming.PartPose, len(poses))
	for i, p := range poses {
		out[i] = streaming.PartPose{
			Name:     p.Name,
			Model:    p.Model,
			Position: p.Position,
			Rotation: streaming.Rotation(p.Rotation),
			Scale:    p.Scale,
		}
	}
	return out
}
