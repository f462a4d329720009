package mapping

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/raceplayback/server/internal/geometry"
	"github.com/raceplayback/server/pkg/core"
)

// Mode selects how telemetry is placed in the world.
type Mode string

const (
	// ModeAffine translates, scales and rotates raw coordinates directly.
	ModeAffine Mode = "affine"
	// ModeAdaptive projects telemetry onto a scanned track centerline.
	ModeAdaptive Mode = "adaptive"
)

// ErrCenterlineRequired is returned when adaptive mode has no centerline.
var ErrCenterlineRequired = errors.New("adaptive mapping requires a track centerline")

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAffine, ModeAdaptive:
		return m, nil
	case "":
		return ModeAffine, nil
	default:
		return "", fmt.Errorf("unknown mapping mode %q", s)
	}
}

// Config holds the parameters shared by all strategies.
type Config struct {
	Mode              Mode
	Scale             float64
	RotationOffset    float64
	Height            float64
	CurvatureAdaptive bool
	MaxCurvature      float64
}

// Strategy turns one lap of telemetry into world positions.
type Strategy interface {
	// Load prepares the strategy for a lap.
	Load(points []core.TelemetryPoint) error
	// Position maps the sample at index i of the loaded lap.
	Position(i int) (core.Vec3, error)
}

// Factory creates a fresh strategy whose world origin is origin. Each lap
// gets its own strategy.
type Factory func(origin core.Vec3) (Strategy, error)

// NewFactory returns a Factory for cfg. Adaptive mode needs a centerline.
func NewFactory(cfg Config, centerline *geometry.TrackCenterline, logger *slog.Logger) (Factory, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Mode {
	case ModeAffine, "":
		return func(origin core.Vec3) (Strategy, error) {
			return NewAffineStrategy(NewConverter(origin, cfg.RotationOffset, cfg.Scale), cfg.Height), nil
		}, nil
	case ModeAdaptive:
		if centerline == nil {
			return nil, ErrCenterlineRequired
		}
		opts := []AdaptiveOption{WithLogger(logger)}
		if cfg.CurvatureAdaptive {
			opts = append(opts, WithCurvatureScaling(cfg.MaxCurvature))
		}
		return func(core.Vec3) (Strategy, error) {
			return NewAdaptiveMapper(centerline, cfg.Height, opts...), nil
		}, nil
	default:
		return nil, fmt.Errorf("unknown mapping mode %q", cfg.Mode)
	}
}

// AffineStrategy adapts a Converter to the Strategy interface.
type AffineStrategy struct {
	converter *Converter
	height    float64
	points    []core.TelemetryPoint
}

// NewAffineStrategy wraps a converter placing positions at height.
func NewAffineStrategy(c *Converter, height float64) *AffineStrategy {
	return &AffineStrategy{converter: c, height: height}
}

// Load keeps the lap's samples. The converter's origin is taken from the
// first sample converted.
func (s *AffineStrategy) Load(points []core.TelemetryPoint) error {
	if len(points) == 0 {
		return ErrNoTelemetry
	}
	s.points = points
	return nil
}

// Position converts sample i.
func (s *AffineStrategy) Position(i int) (core.Vec3, error) {
	if s.points == nil {
		return core.Vec3{}, ErrNotInitialized
	}
	if i < 0 || i >= len(s.points) {
		return s.converter.Origin().WithY(s.height), fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	return s.converter.Convert(s.points[i], s.height), nil
}

// Load initializes the mapper with the lap.
func (m *AdaptiveMapper) Load(points []core.TelemetryPoint) error {
	return m.InitializeWithTelemetry(points)
}

// Position maps sample i, returning the fallback position with any error.
func (m *AdaptiveMapper) Position(i int) (core.Vec3, error) {
	r, err := m.MapTelemetryPoint(i)
	return r.Position, err
}
