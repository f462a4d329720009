package mapping

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/raceplayback/server/internal/geometry"
	"github.com/raceplayback/server/pkg/core"
)

const (
	// DefaultMaxCurvature is the curvature at which the offset scale bottoms out.
	DefaultMaxCurvature = 0.1
	// MinCurvatureScale is the floor of the lateral offset scale factor.
	MinCurvatureScale = 0.7
)

var (
	// ErrNotInitialized is returned when mapping is attempted before
	// InitializeWithTelemetry.
	ErrNotInitialized = errors.New("mapper not initialized with telemetry")
	// ErrIndexOutOfRange is returned for telemetry indexes outside the loaded lap.
	ErrIndexOutOfRange = errors.New("telemetry index out of range")
	// ErrNoTelemetry is returned when a lap without samples is loaded.
	ErrNoTelemetry = errors.New("no telemetry samples")
)

// MappingResult is the projection of one telemetry sample onto the centerline.
type MappingResult struct {
	Position        core.Vec3
	TrackPercent    float64
	LateralOffset   float64
	RacingLineIndex int
}

func (r MappingResult) String() string {
	return fmt.Sprintf("MappingResult{pos=(%.2f, %.2f, %.2f), percent=%.2f%%, offset=%.2f}",
		r.Position.X, r.Position.Y, r.Position.Z, r.TrackPercent*100, r.LateralOffset)
}

// AdaptiveMapper projects telemetry onto a track centerline through the lap's
// own racing line. Results are memoized per telemetry index. An instance is
// owned by a single lap and is not safe for concurrent use.
type AdaptiveMapper struct {
	centerline       *geometry.TrackCenterline
	racingLine       *geometry.RacingLine
	cache            map[int]MappingResult
	height           float64
	curvatureScaling bool
	maxCurvature     float64
	projections      int
	logger           *slog.Logger
}

// AdaptiveOption configures an AdaptiveMapper.
type AdaptiveOption func(*AdaptiveMapper)

// WithCurvatureScaling shrinks lateral offsets in corners, reaching the
// 0.7 floor at maxCurvature.
func WithCurvatureScaling(maxCurvature float64) AdaptiveOption {
	return func(m *AdaptiveMapper) {
		m.curvatureScaling = true
		if maxCurvature > 0 {
			m.maxCurvature = maxCurvature
		}
	}
}

// WithLogger sets the mapper's logger.
func WithLogger(l *slog.Logger) AdaptiveOption {
	return func(m *AdaptiveMapper) {
		m.logger = l
	}
}

// NewAdaptiveMapper creates a mapper placing every position at height.
func NewAdaptiveMapper(centerline *geometry.TrackCenterline, height float64, opts ...AdaptiveOption) *AdaptiveMapper {
	m := &AdaptiveMapper{
		centerline:   centerline,
		cache:        make(map[int]MappingResult),
		height:       height,
		maxCurvature: DefaultMaxCurvature,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger.Debug("adaptive mapper created", "trackLength", centerline.TotalLength())
	return m
}

// InitializeWithTelemetry builds the racing line for a lap and clears the cache.
func (m *AdaptiveMapper) InitializeWithTelemetry(telemetry []core.TelemetryPoint) error {
	if len(telemetry) == 0 {
		return ErrNoTelemetry
	}
	m.racingLine = geometry.NewRacingLine(telemetry)
	clear(m.cache)
	m.logger.Debug("racing line extracted",
		"points", m.racingLine.Len(),
		"length", m.racingLine.TotalLength())
	return nil
}

// MapTelemetryPoint projects the sample at index i. For an index outside the
// lap it returns ErrIndexOutOfRange together with the start of the
// centerline, which callers may use as a fallback position.
func (m *AdaptiveMapper) MapTelemetryPoint(i int) (MappingResult, error) {
	if m.racingLine == nil {
		return MappingResult{}, ErrNotInitialized
	}
	if cached, ok := m.cache[i]; ok {
		return cached, nil
	}

	sample, ok := m.racingLine.TelemetryAt(i)
	if !ok {
		fallback := MappingResult{
			Position:        m.centerline.PositionAtPercent(0).WithY(m.height),
			RacingLineIndex: -1,
		}
		return fallback, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}

	m.projections++
	raw := geometry.TelemetryPosition(sample)
	nearest := m.racingLine.FindClosestIndex(raw)
	percent := m.racingLine.PercentAtIndex(nearest)
	offset := m.racingLine.LateralOffset(raw, nearest)

	center := m.centerline.PositionAtPercent(percent)
	normal := m.centerline.NormalAtPercent(percent)

	scaled := offset
	if m.curvatureScaling {
		scaled *= CurvatureScale(m.centerline.CurvatureAtPercent(percent), m.maxCurvature)
	}

	result := MappingResult{
		Position: core.Vec3{
			X: center.X + normal.X*scaled,
			Y: m.height,
			Z: center.Z + normal.Z*scaled,
		},
		TrackPercent:    percent,
		LateralOffset:   offset,
		RacingLineIndex: nearest,
	}
	m.cache[i] = result
	return result, nil
}

// MapCoordinates maps an arbitrary raw pair through the nearest racing line sample.
func (m *AdaptiveMapper) MapCoordinates(x, y float64) (MappingResult, error) {
	if m.racingLine == nil {
		return MappingResult{}, ErrNotInitialized
	}
	nearest := m.racingLine.FindClosestIndex(core.Vec3{X: x, Z: y})
	return m.MapTelemetryPoint(nearest)
}

// CalculateYaw returns the heading from sample i to sample i+1. It is 0
// before initialization and at the last sample.
func (m *AdaptiveMapper) CalculateYaw(i int) float64 {
	if m.racingLine == nil || i < 0 || i >= m.racingLine.Len()-1 {
		return 0
	}
	cur, err := m.MapTelemetryPoint(i)
	if err != nil {
		return 0
	}
	next, err := m.MapTelemetryPoint(i + 1)
	if err != nil {
		return 0
	}
	return Yaw(cur.Position, next.Position)
}

// Result returns the cached or freshly computed result for index i.
func (m *AdaptiveMapper) Result(i int) (MappingResult, error) {
	return m.MapTelemetryPoint(i)
}

// ClearCache forgets all memoized results.
func (m *AdaptiveMapper) ClearCache() {
	clear(m.cache)
}

// Cached reports whether index i has a memoized result.
func (m *AdaptiveMapper) Cached(i int) bool {
	_, ok := m.cache[i]
	return ok
}

// Projections counts projection computations, excluding cache hits.
func (m *AdaptiveMapper) Projections() int {
	return m.projections
}

// Centerline returns the centerline the mapper projects onto.
func (m *AdaptiveMapper) Centerline() *geometry.TrackCenterline {
	return m.centerline
}

// RacingLine returns the current lap's racing line, nil before initialization.
func (m *AdaptiveMapper) RacingLine() *geometry.RacingLine {
	return m.racingLine
}

// CurvatureScale is the lateral offset factor for a curvature: a linear
// falloff from 1.0 at zero curvature to 0.7 at maxCurvature, clamped.
func CurvatureScale(curvature, maxCurvature float64) float64 {
	if maxCurvature <= 0 {
		maxCurvature = DefaultMaxCurvature
	}
	if curvature >= maxCurvature {
		return MinCurvatureScale
	}
	f := 1 - (curvature/maxCurvature)*(1-MinCurvatureScale)
	return max(MinCurvatureScale, min(1, f))
}
