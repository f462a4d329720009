package export

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/raceplayback/server/internal/playback"
	"github.com/raceplayback/server/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tkrajina/gpxgo/gpx"
)

var monza = Anchor{Lat: 45.6156, Lon: 9.2811}

func TestGeoreferencer_Origin(t *testing.T) {
	origin := core.Vec3{X: 100, Y: 42, Z: 200}
	g, err := NewGeoreferencer(monza, origin, 1)
	require.NoError(t, err)

	lat, lon := g.LatLon(origin)
	assert.InDelta(t, monza.Lat, lat, 1e-9)
	assert.InDelta(t, monza.Lon, lon, 1e-9)
}

func TestGeoreferencer_Directions(t *testing.T) {
	origin := core.Vec3{}
	g, err := NewGeoreferencer(monza, origin, 1)
	require.NoError(t, err)

	// 1000 ground meters east and north.
	latE, lonE := g.LatLon(core.Vec3{X: 1000})
	latN, lonN := g.LatLon(core.Vec3{Z: -1000})

	assert.InDelta(t, monza.Lat, latE, 1e-6)
	assert.Greater(t, lonE, monza.Lon)
	assert.InDelta(t, monza.Lon, lonN, 1e-6)
	assert.Greater(t, latN, monza.Lat)

	// One degree of latitude is about 111.2 km.
	assert.InDelta(t, 1000.0/111200, latN-monza.Lat, 1e-4)
}

func TestNewGeoreferencer_InvalidAnchor(t *testing.T) {
	_, err := NewGeoreferencer(Anchor{Lat: 91}, core.Vec3{}, 1)
	assert.ErrorIs(t, err, ErrInvalidAnchor)
	_, err = NewGeoreferencer(Anchor{Lon: 200}, core.Vec3{}, 1)
	assert.ErrorIs(t, err, ErrInvalidAnchor)
}

func testLap() []playback.TimelinePoint {
	return []playback.TimelinePoint{
		{Position: core.Vec3{X: 0, Y: 42, Z: 0}, Timestamp: 0, Speed: 280, Gear: 7},
		{Position: core.Vec3{X: 10, Y: 42, Z: 0}, Timestamp: 120, Speed: 285, Gear: 7, DRSOpen: true},
		{Position: core.Vec3{X: 20, Y: 43, Z: -5}, Timestamp: 250, Speed: 290, Gear: 8},
	}
}

func TestWriteLapGPX_RoundTrip(t *testing.T) {
	ref := core.LapRef{Year: 2024, Track: "monza", Session: core.SessionRace, Driver: "LEC", Lap: 1}
	start := time.Date(2024, 9, 1, 13, 0, 0, 0, time.UTC)
	g, err := NewGeoreferencer(monza, core.Vec3{}, 1)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteLapGPX(&buf, ref, testLap(), start, g))

	doc, err := gpx.ParseBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, Creator, doc.Creator)
	require.Len(t, doc.Tracks, 1)
	assert.Equal(t, "LEC 2024 monza R lap 1", doc.Tracks[0].Name)
	require.Len(t, doc.Tracks[0].Segments, 1)

	pts := doc.Tracks[0].Segments[0].Points
	require.Len(t, pts, 3)
	assert.Equal(t, start.Add(250*time.Millisecond), pts[2].Timestamp.UTC())
	assert.InDelta(t, 43.0, pts[2].Elevation.Value(), 1e-9)
	assert.Equal(t, "speed=285.0 gear=7 drs=true", pts[1].Comment)
	assert.InDelta(t, monza.Lat, pts[0].Latitude, 1e-6)
}

func TestSaveLapGPX(t *testing.T) {
	g, err := NewGeoreferencer(monza, core.Vec3{}, 1)
	require.NoError(t, err)
	ref := core.LapRef{Year: 2024, Track: "monza", Session: core.SessionQualifying, Driver: "VER", Lap: 2}

	path := filepath.Join(t.TempDir(), "gpx", "ver.gpx")
	require.NoError(t, SaveLapGPX(path, ref, testLap(), time.Now(), g))

	doc, err := gpx.ParseFile(path)
	require.NoError(t, err)
	assert.Len(t, doc.Tracks[0].Segments[0].Points, 3)

	assert.ErrorIs(t, SaveLapGPX(path, ref, nil, time.Now(), g), ErrNoPoints)
}

func TestSaveCenterlineGPX(t *testing.T) {
	g, err := NewGeoreferencer(monza, core.Vec3{}, 1)
	require.NoError(t, err)
	samples := []CenterlineSample{
		{Center: core.Vec3{X: 0, Y: 10}, Left: core.Vec3{Y: 10, Z: 5}, Right: core.Vec3{Y: 10, Z: -5}, Width: 10},
		{Center: core.Vec3{X: 50, Y: 11}, Left: core.Vec3{X: 50, Y: 11, Z: 6}, Right: core.Vec3{X: 50, Y: 11, Z: -6}, Width: 12},
	}

	path := filepath.Join(t.TempDir(), "monza_centerline.gpx")
	require.NoError(t, SaveCenterlineGPX(path, "monza", samples, g))

	doc, err := gpx.ParseFile(path)
	require.NoError(t, err)
	require.Len(t, doc.Tracks, 3)
	assert.Equal(t, "center", doc.Tracks[0].Name)
	center := doc.Tracks[0].Segments[0].Points
	require.Len(t, center, 2)
	assert.Equal(t, "width=12.00", center[1].Comment)
	assert.InDelta(t, 11.0, center[1].Elevation.Value(), 1e-9)
	assert.Len(t, doc.Tracks[2].Segments[0].Points, 2)

	assert.ErrorIs(t, SaveCenterlineGPX(path, "monza", nil, g), ErrNoPoints)
}
