package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raceplayback/server/internal/mapping"
	"github.com/raceplayback/server/pkg/core"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 9, 1, 13, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type manualTimer struct {
	interval  time.Duration
	fn        func()
	cancelled bool
}

// manualScheduler fires timers and background work only when told to.
type manualScheduler struct {
	mu         sync.Mutex
	timers     []*manualTimer
	background []func()
}

func (s *manualScheduler) Every(interval time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{interval: interval, fn: fn}
	s.timers = append(s.timers, t)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		t.cancelled = true
	}
}

func (s *manualScheduler) Submit(fn func()) { fn() }

func (s *manualScheduler) Go(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.background = append(s.background, fn)
}

// fire runs every live timer registered with interval once.
func (s *manualScheduler) fire(interval time.Duration) {
	s.mu.Lock()
	var due []func()
	for _, t := range s.timers {
		if !t.cancelled && t.interval == interval {
			due = append(due, t.fn)
		}
	}
	s.mu.Unlock()
	for _, fn := range due {
		fn()
	}
}

func (s *manualScheduler) active(interval time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.cancelled && t.interval == interval {
			n++
		}
	}
	return n
}

// runBackground runs queued background work, including work queued by it.
func (s *manualScheduler) runBackground() int {
	ran := 0
	for {
		s.mu.Lock()
		work := s.background
		s.background = nil
		s.mu.Unlock()
		if len(work) == 0 {
			return ran
		}
		for _, fn := range work {
			fn()
			ran++
		}
	}
}

type fakeSource struct {
	mu    sync.Mutex
	laps  map[int][]core.TelemetryPoint
	errs  map[int]error
	calls []int

	info    core.SessionInfo
	infoErr error
}

func (s *fakeSource) LapTelemetry(_ context.Context, ref core.LapRef) ([]core.TelemetryPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ref.Lap)
	if err := s.errs[ref.Lap]; err != nil {
		return nil, err
	}
	return s.laps[ref.Lap], nil
}

func (s *fakeSource) SessionInfo(context.Context, int, string, core.SessionType) (core.SessionInfo, error) {
	return s.info, s.infoErr
}

func (s *fakeSource) fetched() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.calls...)
}

type fakeRenderer struct {
	mu      sync.Mutex
	placed  []Object
	places  []core.Vec3
	updates []core.Vec3
	yaws    []float64
	aux     []AuxState
	removed int
	failPut error
}

func (r *fakeRenderer) PlaceObject(obj Object, pos core.Vec3, _ float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failPut != nil {
		return r.failPut
	}
	r.placed = append(r.placed, obj)
	r.places = append(r.places, pos)
	return nil
}

func (r *fakeRenderer) UpdateObject(pos core.Vec3, yaw float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, pos)
	r.yaws = append(r.yaws, yaw)
	return nil
}

func (r *fakeRenderer) SetAuxiliaryState(state AuxState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aux = append(r.aux, state)
	return nil
}

func (r *fakeRenderer) RemoveObject() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed++
	return nil
}

type recordingObserver struct {
	mu   sync.Mutex
	laps []int
}

func (o *recordingObserver) ObservePoint(ref core.LapRef, _ TimelinePoint) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.laps = append(o.laps, ref.Lap)
}

var errProvider = errors.New("provider unavailable")

// lapSamples returns n samples 100 ms apart moving +X from rawX.
func lapSamples(n int, rawX float64, drs int) []core.TelemetryPoint {
	out := make([]core.TelemetryPoint, n)
	for i := range out {
		out[i] = core.TelemetryPoint{
			Compound:    core.CompoundSoft,
			DRS:         drs,
			SessionTime: int64(60000 + i*100),
			Speed:       decimal.NewFromInt(250),
			X:           decimal.NewFromFloat(rawX + float64(i)*10),
			Y:           decimal.Zero,
			Gear:        7,
		}
	}
	return out
}

func affineFactory(t *testing.T) mapping.Factory {
	t.Helper()
	f, err := mapping.NewFactory(mapping.Config{Mode: mapping.ModeAffine, Scale: 1, Height: 42}, nil, nil)
	require.NoError(t, err)
	return f
}

var testRef = core.LapRef{Year: 2024, Track: "monza", Session: core.SessionRace, Driver: "LEC", Lap: 1}
