package playback

import (
	"errors"
	"fmt"
	"time"

	"github.com/raceplayback/server/internal/mapping"
	"github.com/raceplayback/server/pkg/core"
)

// ErrNoTelemetry is returned when a lap has no samples.
var ErrNoTelemetry = errors.New("no telemetry for lap")

// Clock provides the wall-clock time used to drive playback.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the real wall clock.
var SystemClock Clock = systemClock{}

// TimelinePoint is one immutable, time-stamped pose of the car.
type TimelinePoint struct {
	Position  core.Vec3
	Yaw       float64
	Timestamp int64 // ms since the lap's first sample
	DRSOpen   bool
	Gear      int
	Speed     float64
	Throttle  float64
	RPM       float64
	Braking   bool
	Compound  core.Compound
}

// State is the playback state of a timeline.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StateFinished
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateFinished:
		return "finished"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SessionTimeline plays one lap of points against elapsed wall-clock time.
// It is driven from a single goroutine.
type SessionTimeline struct {
	points []TimelinePoint
	clock  Clock

	state  State
	cursor int
	start  time.Time
}

// NewSessionTimeline creates an empty timeline using clock; nil means SystemClock.
func NewSessionTimeline(clock Clock) *SessionTimeline {
	if clock == nil {
		clock = SystemClock
	}
	return &SessionTimeline{clock: clock}
}

// BuildFromTelemetry maps every sample through strategy and derives each
// point's heading from the following sample. The final point reuses the
// previous heading. Timestamps are relative to the first sample.
func (t *SessionTimeline) BuildFromTelemetry(samples []core.TelemetryPoint, strategy mapping.Strategy) error {
	if len(samples) == 0 {
		return ErrNoTelemetry
	}
	if err := strategy.Load(samples); err != nil {
		return fmt.Errorf("failed to load lap into mapper: %w", err)
	}

	positions := make([]core.Vec3, len(samples))
	for i := range samples {
		pos, err := strategy.Position(i)
		if err != nil {
			return fmt.Errorf("failed to map sample %d: %w", i, err)
		}
		positions[i] = pos
	}

	base := samples[0].SessionTime
	points := make([]TimelinePoint, len(samples))
	for i, s := range samples {
		var yaw float64
		switch {
		case i < len(samples)-1:
			yaw = mapping.Yaw(positions[i], positions[i+1])
		case i > 0:
			yaw = points[i-1].Yaw
		}
		points[i] = TimelinePoint{
			Position:  positions[i],
			Yaw:       yaw,
			Timestamp: s.SessionTime - base,
			DRSOpen:   s.IsDRSOpen(),
			Gear:      s.Gear,
			Speed:     s.Speed.InexactFloat64(),
			Throttle:  s.Throttle.InexactFloat64(),
			RPM:       s.RPM.InexactFloat64(),
			Braking:   s.Braking,
			Compound:  s.Compound,
		}
	}

	t.points = points
	t.state = StateIdle
	t.cursor = 0
	return nil
}

// Start rewinds the cursor and anchors elapsed time at now.
func (t *SessionTimeline) Start() {
	t.state = StatePlaying
	t.cursor = 0
	t.start = t.clock.Now()
}

// Stop halts playback. A finished timeline stays finished.
func (t *SessionTimeline) Stop() {
	if t.state == StatePlaying || t.state == StateIdle {
		t.state = StateStopped
	}
}

// CurrentPoint advances past every point whose timestamp has elapsed and
// returns the latest one crossed. Intermediate points crossed in the same
// call are skipped. It returns false when not playing or when no new point
// is due. Crossing the final point finishes the timeline.
func (t *SessionTimeline) CurrentPoint() (TimelinePoint, bool) {
	if t.state != StatePlaying {
		return TimelinePoint{}, false
	}
	if len(t.points) == 0 {
		t.state = StateFinished
		return TimelinePoint{}, false
	}

	elapsed := t.clock.Now().Sub(t.start).Milliseconds()

	crossed := -1
	for t.cursor < len(t.points) && t.points[t.cursor].Timestamp <= elapsed {
		crossed = t.cursor
		t.cursor++
	}

	if t.cursor >= len(t.points) {
		t.state = StateFinished
	}
	if crossed < 0 {
		return TimelinePoint{}, false
	}
	return t.points[crossed], true
}

// IsFinished reports whether the timeline is no longer playing or has no
// points left.
func (t *SessionTimeline) IsFinished() bool {
	return t.state != StatePlaying || t.cursor >= len(t.points)
}

// State returns the current playback state.
func (t *SessionTimeline) State() State {
	return t.state
}

// Len is the number of points.
func (t *SessionTimeline) Len() int {
	return len(t.points)
}

// Cursor is the index of the next point to be crossed.
func (t *SessionTimeline) Cursor() int {
	return t.cursor
}

// Point returns the i-th point.
func (t *SessionTimeline) Point(i int) TimelinePoint {
	return t.points[i]
}

// First returns the first point.
func (t *SessionTimeline) First() (TimelinePoint, bool) {
	if len(t.points) == 0 {
		return TimelinePoint{}, false
	}
	return t.points[0], true
}

// Last returns the final point, where the next lap is expected to begin.
func (t *SessionTimeline) Last() (TimelinePoint, bool) {
	if len(t.points) == 0 {
		return TimelinePoint{}, false
	}
	return t.points[len(t.points)-1], true
}

// Duration is the timestamp of the final point.
func (t *SessionTimeline) Duration() time.Duration {
	last, ok := t.Last()
	if !ok {
		return 0
	}
	return time.Duration(last.Timestamp) * time.Millisecond
}
