package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/raceplayback/server/pkg/core"
)

// ErrLapExhausted is returned by DebugController.Next after the last sample.
var ErrLapExhausted = errors.New("end of lap reached")

// DebugStep describes one manually advanced sample.
type DebugStep struct {
	Index     int
	Raw       core.TelemetryPoint
	Position  core.Vec3
	Yaw       float64
	LookAhead *core.TelemetryPoint
}

// DebugController steps through lap 1 one sample at a time, logging the raw
// and mapped values of each step.
type DebugController struct {
	ref    core.LapRef
	origin core.Vec3
	deps   Deps
	logger *slog.Logger

	mu       sync.Mutex
	samples  []core.TelemetryPoint
	timeline *SessionTimeline
	index    int
	placed   bool
	stopped  bool
}

// NewDebugController creates a stepper for ref's driver anchored at origin.
// Only Telemetry, Renderer, Mapping and Logger of deps are used.
func NewDebugController(ref core.LapRef, origin core.Vec3, deps Deps) (*DebugController, error) {
	if deps.Telemetry == nil || deps.Renderer == nil || deps.Mapping == nil {
		return nil, errors.New("telemetry source, renderer and mapping factory are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	ref.Lap = 1
	return &DebugController{
		ref:    ref,
		origin: origin,
		deps:   deps,
		logger: deps.Logger.With("debug", ref.String()),
	}, nil
}

// Initialize loads lap 1 and places the car at its first sample.
func (d *DebugController) Initialize(ctx context.Context) error {
	samples, err := d.deps.Telemetry.LapTelemetry(ctx, d.ref)
	if err != nil {
		return fmt.Errorf("fetching telemetry: %w", err)
	}
	if len(samples) == 0 {
		return ErrNoTelemetry
	}
	strategy, err := d.deps.Mapping(d.origin)
	if err != nil {
		return fmt.Errorf("creating mapper: %w", err)
	}
	timeline := NewSessionTimeline(nil)
	if err := timeline.BuildFromTelemetry(samples, strategy); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return ErrStopped
	}

	first, _ := timeline.First()
	obj := Object{Driver: d.ref.Driver, Compound: samples[0].Compound}
	if err := d.deps.Renderer.PlaceObject(obj, first.Position, first.Yaw); err != nil {
		return fmt.Errorf("placing car: %w", err)
	}
	d.placed = true
	d.samples = samples
	d.timeline = timeline
	d.index = 0

	d.logger.Info("Debug lap loaded", "points", len(samples), "start", first.Position)
	return nil
}

// Next advances one sample and moves the car there.
func (d *DebugController) Next() (DebugStep, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.stopped:
		return DebugStep{}, ErrStopped
	case d.timeline == nil:
		return DebugStep{}, ErrNotInitialized
	case d.index >= len(d.samples):
		d.logger.Info("End of lap reached")
		return DebugStep{}, ErrLapExhausted
	}

	i := d.index
	p := d.timeline.Point(i)
	step := DebugStep{
		Index:    i,
		Raw:      d.samples[i],
		Position: p.Position,
		Yaw:      p.Yaw,
	}
	if i+1 < len(d.samples) {
		next := d.samples[i+1]
		step.LookAhead = &next
	}

	x, y := step.Raw.RawXY()
	attrs := []any{
		"index", i,
		"rawX", x,
		"rawY", y,
		"position", step.Position,
		"yaw", step.Yaw,
	}
	if step.LookAhead != nil {
		nx, ny := step.LookAhead.RawXY()
		attrs = append(attrs, "nextX", nx, "nextY", ny)
	}
	d.logger.Info("Debug step", attrs...)

	if err := d.deps.Renderer.UpdateObject(p.Position, p.Yaw); err != nil {
		return step, fmt.Errorf("updating car: %w", err)
	}
	d.index++
	return step, nil
}

// Remaining is the number of samples not yet stepped.
func (d *DebugController) Remaining() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.samples) - d.index
}

// Stop removes the car. It is safe to call repeatedly.
func (d *DebugController) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.placed {
		if err := d.deps.Renderer.RemoveObject(); err != nil {
			d.logger.Warn("Failed to remove car", "error", err)
		}
		d.placed = false
	}
}
