package mapping

import (
	"testing"

	"github.com/raceplayback/server/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConverter_FirstSampleIsOrigin(t *testing.T) {
	origin := core.Vec3{X: 100, Y: 0, Z: 200}
	c := NewConverter(origin, 0, DefaultScale)

	tests := []struct {
		name string
		x, y float64
		want core.Vec3
	}{
		{"first sample", 1000, 2000, core.Vec3{X: 100, Y: 42, Z: 200}},
		{"east", 1100, 2000, core.Vec3{X: 108.2, Y: 42, Z: 200}},
		{"north flips z", 1000, 2100, core.Vec3{X: 100, Y: 42, Z: 191.8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ToWorld(tt.x, tt.y, 42)
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.Equal(t, tt.want.Y, got.Y)
			assert.InDelta(t, tt.want.Z, got.Z, 1e-9)
		})
	}
}

func TestConverter_Rotation(t *testing.T) {
	c := NewConverter(core.Vec3{}, 90, DefaultScale)
	c.ToWorld(0, 0, 0)

	got := c.ToWorld(100, 0, 0)
	assert.InDelta(t, 0.0, got.X, 1e-9)
	assert.InDelta(t, 8.2, got.Z, 1e-9)
}

func TestConverter_DefaultScaleAndYaw(t *testing.T) {
	c := NewConverter(core.Vec3{}, 0, 0)
	a := c.Convert(rawSample(0, 0), 5)
	b := c.Convert(rawSample(100, 0), 5)

	assert.InDelta(t, 8.2, b.X, 1e-9)
	assert.Equal(t, 5.0, a.Y)
	assert.InDelta(t, 90.0, c.CalculateYaw(a, b), 1e-9)
}

func TestAffineStrategy(t *testing.T) {
	s := NewAffineStrategy(NewConverter(core.Vec3{X: 1, Z: 1}, 0, DefaultScale), 42)

	_, err := s.Position(0)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, s.Load(nil), ErrNoTelemetry)

	require.NoError(t, s.Load([]core.TelemetryPoint{rawSample(10, 10), rawSample(20, 10)}))
	p0, err := s.Position(0)
	require.NoError(t, err)
	assert.Equal(t, core.Vec3{X: 1, Y: 42, Z: 1}, p0)

	p1, err := s.Position(1)
	require.NoError(t, err)
	assert.InDelta(t, 1.82, p1.X, 1e-9)

	fallback, err := s.Position(5)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	assert.Equal(t, core.Vec3{X: 1, Y: 42, Z: 1}, fallback)
}

func TestNewFactory(t *testing.T) {
	t.Run("affine", func(t *testing.T) {
		f, err := NewFactory(Config{Mode: ModeAffine, Height: 42}, nil, nil)
		require.NoError(t, err)
		s, err := f(core.Vec3{X: 3})
		require.NoError(t, err)
		assert.IsType(t, &AffineStrategy{}, s)
	})

	t.Run("adaptive requires centerline", func(t *testing.T) {
		_, err := NewFactory(Config{Mode: ModeAdaptive}, nil, nil)
		assert.ErrorIs(t, err, ErrCenterlineRequired)
	})

	t.Run("adaptive", func(t *testing.T) {
		f, err := NewFactory(Config{Mode: ModeAdaptive, Height: 42, CurvatureAdaptive: true}, straightCenterline(), nil)
		require.NoError(t, err)
		a, err := f(core.Vec3{})
		require.NoError(t, err)
		b, err := f(core.Vec3{})
		require.NoError(t, err)
		assert.IsType(t, &AdaptiveMapper{}, a)
		assert.NotSame(t, a, b)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewFactory(Config{Mode: "polar"}, nil, nil)
		assert.Error(t, err)
	})
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Adaptive ")
	require.NoError(t, err)
	assert.Equal(t, ModeAdaptive, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAffine, m)

	_, err = ParseMode("spline")
	assert.Error(t, err)
}

var _ Strategy = (*AffineStrategy)(nil)
var _ Strategy = (*AdaptiveMapper)(nil)
