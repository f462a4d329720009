package playback

import (
	"testing"
	"time"

	"github.com/raceplayback/server/internal/mapping"
	"github.com/raceplayback/server/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTimeline(t *testing.T, clock Clock, samples []core.TelemetryPoint) *SessionTimeline {
	t.Helper()
	strategy, err := affineFactory(t)(core.Vec3{})
	require.NoError(t, err)
	tl := NewSessionTimeline(clock)
	require.NoError(t, tl.BuildFromTelemetry(samples, strategy))
	return tl
}

func TestSessionTimeline_BuildFromTelemetry(t *testing.T) {
	samples := lapSamples(3, 500, 12)
	tl := buildTimeline(t, newFakeClock(), samples)

	require.Equal(t, 3, tl.Len())
	assert.Equal(t, StateIdle, tl.State())

	for i := 0; i < 3; i++ {
		p := tl.Point(i)
		assert.InDelta(t, float64(i*10), p.Position.X, 1e-9)
		assert.Equal(t, 42.0, p.Position.Y)
		assert.Equal(t, int64(i*100), p.Timestamp)
		assert.InDelta(t, 90.0, p.Yaw, 1e-9, "moving along +X")
		assert.True(t, p.DRSOpen)
		assert.Equal(t, 7, p.Gear)
		assert.Equal(t, 250.0, p.Speed)
		assert.Equal(t, core.CompoundSoft, p.Compound)
	}
	assert.Equal(t, 200*time.Millisecond, tl.Duration())
}

func TestSessionTimeline_LastPointReusesHeading(t *testing.T) {
	samples := lapSamples(3, 0, 0)
	// Last step turns towards -Z; the final heading still copies the one before.
	samples[2].Y = samples[1].Y.Add(samples[2].X.Sub(samples[1].X))
	samples[2].X = samples[1].X

	tl := buildTimeline(t, newFakeClock(), samples)
	assert.InDelta(t, 180.0, tl.Point(1).Yaw, 1e-9)
	assert.Equal(t, tl.Point(1).Yaw, tl.Point(2).Yaw)
}

func TestSessionTimeline_BuildRejectsEmpty(t *testing.T) {
	strategy, err := affineFactory(t)(core.Vec3{})
	require.NoError(t, err)

	tl := NewSessionTimeline(nil)
	assert.ErrorIs(t, tl.BuildFromTelemetry(nil, strategy), ErrNoTelemetry)
	_, ok := tl.First()
	assert.False(t, ok)
	_, ok = tl.Last()
	assert.False(t, ok)
	assert.Zero(t, tl.Duration())
}

func TestSessionTimeline_UnsetScaleUsesDefault(t *testing.T) {
	f, err := mapping.NewFactory(mapping.Config{Mode: mapping.ModeAffine}, nil, nil)
	require.NoError(t, err)
	strategy, err := f(core.Vec3{X: 5})
	require.NoError(t, err)

	tl := NewSessionTimeline(nil)
	require.NoError(t, tl.BuildFromTelemetry(lapSamples(2, 0, 0), strategy))
	assert.InDelta(t, 5.0, tl.Point(0).Position.X, 1e-9)
	assert.InDelta(t, 5+10*mapping.DefaultScale, tl.Point(1).Position.X, 1e-9)
}

func TestSessionTimeline_CurrentPointFollowsElapsedTime(t *testing.T) {
	clock := newFakeClock()
	samples := lapSamples(3, 0, 0)
	samples[2].SessionTime = samples[0].SessionTime + 250
	tl := buildTimeline(t, clock, samples)

	_, ok := tl.CurrentPoint()
	assert.False(t, ok, "idle timeline yields nothing")

	tl.Start()
	p, ok := tl.CurrentPoint()
	require.True(t, ok)
	assert.Equal(t, int64(0), p.Timestamp)

	_, ok = tl.CurrentPoint()
	assert.False(t, ok, "no new point due yet")

	clock.Advance(120 * time.Millisecond)
	p, ok = tl.CurrentPoint()
	require.True(t, ok)
	assert.Equal(t, int64(100), p.Timestamp)
	assert.False(t, tl.IsFinished())

	clock.Advance(140 * time.Millisecond)
	p, ok = tl.CurrentPoint()
	require.True(t, ok)
	assert.Equal(t, int64(250), p.Timestamp)
	assert.True(t, tl.IsFinished())
	assert.Equal(t, StateFinished, tl.State())

	_, ok = tl.CurrentPoint()
	assert.False(t, ok)
}

func TestSessionTimeline_CurrentPointSkipsToLatest(t *testing.T) {
	clock := newFakeClock()
	tl := buildTimeline(t, clock, lapSamples(5, 0, 0))

	tl.Start()
	clock.Advance(350 * time.Millisecond)
	p, ok := tl.CurrentPoint()
	require.True(t, ok)
	assert.Equal(t, int64(300), p.Timestamp)
	assert.Equal(t, 4, tl.Cursor())
	assert.False(t, tl.IsFinished())
}

func TestSessionTimeline_StartRewinds(t *testing.T) {
	clock := newFakeClock()
	tl := buildTimeline(t, clock, lapSamples(2, 0, 0))

	tl.Start()
	clock.Advance(time.Second)
	_, ok := tl.CurrentPoint()
	require.True(t, ok)
	require.True(t, tl.IsFinished())

	tl.Start()
	assert.Equal(t, 0, tl.Cursor())
	assert.Equal(t, StatePlaying, tl.State())
	p, ok := tl.CurrentPoint()
	require.True(t, ok)
	assert.Equal(t, int64(0), p.Timestamp)
}

func TestSessionTimeline_Stop(t *testing.T) {
	clock := newFakeClock()
	tl := buildTimeline(t, clock, lapSamples(3, 0, 0))

	tl.Start()
	tl.Stop()
	assert.Equal(t, StateStopped, tl.State())
	assert.True(t, tl.IsFinished())
	clock.Advance(time.Second)
	_, ok := tl.CurrentPoint()
	assert.False(t, ok)

	finished := buildTimeline(t, clock, lapSamples(1, 0, 0))
	finished.Start()
	_, ok = finished.CurrentPoint()
	require.True(t, ok)
	finished.Stop()
	assert.Equal(t, StateFinished, finished.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "finished", StateFinished.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "state(9)", State(9).String())
}
