package influx

import (
	"strconv"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/raceplayback/server/internal/playback"
	"github.com/raceplayback/server/pkg/core"
	"github.com/rs/zerolog"
)

// Measurement is the name of the per-tick playback point.
const Measurement = "car_telemetry"

// CarTelemetryPoint converts one pushed timeline point.
func CarTelemetryPoint(ref core.LapRef, p playback.TimelinePoint, ts time.Time) *influxdb2_write.Point {
	return influxdb2_write.NewPoint(Measurement,
		map[string]string{
			"driver":  ref.Driver,
			"track":   ref.Track,
			"session": string(ref.Session),
			"year":    strconv.Itoa(ref.Year),
			"lap":     strconv.Itoa(ref.Lap),
		},
		map[string]any{
			"speed":    p.Speed,
			"throttle": p.Throttle,
			"rpm":      p.RPM,
			"gear":     p.Gear,
			"drs_open": p.DRSOpen,
			"braking":  p.Braking,
			"yaw":      p.Yaw,
			"x":        p.Position.X,
			"z":        p.Position.Z,
			"lap_ms":   p.Timestamp,
		},
		ts)
}

// Observer is a playback.Observer writing every pushed point.
type Observer struct {
	manager *Manager
	logger  zerolog.Logger
	now     func() time.Time
}

func NewObserver(m *Manager, log zerolog.Logger) *Observer {
	return &Observer{manager: m, logger: log, now: time.Now}
}

func (o *Observer) ObservePoint(ref core.LapRef, p playback.TimelinePoint) {
	if err := o.manager.WritePoint(CarTelemetryPoint(ref, p, o.now())); err != nil {
		o.logger.Debug().Err(err).Str("driver", ref.Driver).Msg("Dropped telemetry point")
	}
}
