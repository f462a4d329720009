package influx

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/raceplayback/server/internal/playback"
	"github.com/raceplayback/server/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRef = core.LapRef{Year: 2024, Track: "monza", Session: core.SessionRace, Driver: "LEC", Lap: 3}

func testPoint() playback.TimelinePoint {
	return playback.TimelinePoint{
		Position:  core.Vec3{X: 12.5, Y: 42, Z: -3},
		Yaw:       90,
		Timestamp: 1500,
		DRSOpen:   true,
		Gear:      7,
		Speed:     312.4,
		Throttle:  100,
		RPM:       11800,
	}
}

func TestCarTelemetryPoint(t *testing.T) {
	ts := time.Unix(1725195600, 0)
	line := influxdb2_write.PointToLineProtocol(CarTelemetryPoint(testRef, testPoint(), ts), time.Second)

	assert.Contains(t, line, "car_telemetry,driver=LEC,lap=3,session=R,track=monza,year=2024 ")
	assert.Contains(t, line, "drs_open=true")
	assert.Contains(t, line, "braking=false")
	assert.Contains(t, line, "gear=7i")
	assert.Contains(t, line, "speed=312.4")
	assert.Contains(t, line, "lap_ms=1500i")
	assert.Contains(t, line, " 1725195600")
}

func TestManager_Disabled(t *testing.T) {
	m := NewManager(Config{}, zerolog.Nop())
	assert.ErrorIs(t, m.Connect(context.Background()), ErrDisabled)
	assert.Error(t, m.WritePoint(CarTelemetryPoint(testRef, testPoint(), time.Now())))
}

func TestManager_BackupWhenUnreachable(t *testing.T) {
	backup := filepath.Join(t.TempDir(), "influx_backup.log.gz")
	m := NewManager(Config{
		Enabled:    true,
		URL:        "http://127.0.0.1:1",
		Org:        "raceplayback",
		Bucket:     "playback",
		BackupPath: backup,
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Connect(ctx))
	assert.False(t, m.Valid())

	obs := NewObserver(m, zerolog.Nop())
	obs.now = func() time.Time { return time.Unix(1725195600, 0) }
	obs.ObservePoint(testRef, testPoint())
	require.NoError(t, m.Close())

	f, err := os.Open(backup)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)

	assert.Contains(t, string(data), "car_telemetry,driver=LEC")
	assert.Contains(t, string(data), "1725195600000000000\n")
}
