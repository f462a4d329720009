package playback

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/raceplayback/server/internal/playback"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	ticks           metric.Int64Counter
	lapsCompleted   metric.Int64Counter
	preloadFailures metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	m := meter()
	var (
		pm  metrics
		err error
	)

	pm.ticks, err = m.Int64Counter(
		"playback.ticks",
		metric.WithDescription("Control ticks that pushed a point to the renderer"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ticks counter: %w", err)
	}

	pm.lapsCompleted, err = m.Int64Counter(
		"playback.laps_completed",
		metric.WithDescription("Laps played to the end"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating laps counter: %w", err)
	}

	pm.preloadFailures, err = m.Int64Counter(
		"playback.preload_failures",
		metric.WithDescription("Next-lap preloads that failed"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating preload failure counter: %w", err)
	}

	return &pm, nil
}
