package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/raceplayback/server/internal/playback"
	"github.com/raceplayback/server/pkg/core"
	"github.com/tkrajina/gpxgo/gpx"
)

// Creator is written into every GPX document.
const Creator = "raceplayback"

// ErrNoPoints is returned when there is nothing to export.
var ErrNoPoints = errors.New("no points to export")

// LapGPX builds a single-track GPX document of a mapped lap. Point times
// are start plus each point's lap timestamp; elevation is the world height.
func LapGPX(ref core.LapRef, points []playback.TimelinePoint, start time.Time, geo *Georeferencer) (*gpx.GPX, error) {
	if len(points) == 0 {
		return nil, ErrNoPoints
	}

	seg := gpx.GPXTrackSegment{Points: make([]gpx.GPXPoint, 0, len(points))}
	for _, p := range points {
		lat, lon := geo.LatLon(p.Position)
		seg.Points = append(seg.Points, gpx.GPXPoint{
			Point: gpx.Point{
				Latitude:  lat,
				Longitude: lon,
				Elevation: *gpx.NewNullableFloat64(p.Position.Y),
			},
			Timestamp: start.Add(time.Duration(p.Timestamp) * time.Millisecond).UTC(),
			Comment:   fmt.Sprintf("speed=%.1f gear=%d drs=%t", p.Speed, p.Gear, p.DRSOpen),
		})
	}

	name := fmt.Sprintf("%s %d %s %s lap %d", ref.Driver, ref.Year, ref.Track, ref.Session, ref.Lap)
	return &gpx.GPX{
		Version: "1.1",
		Creator: Creator,
		Name:    name,
		Time:    &start,
		Tracks: []gpx.GPXTrack{{
			Name:     name,
			Type:     ref.Session.PathSegment(),
			Segments: []gpx.GPXTrackSegment{seg},
		}},
	}, nil
}

// CenterlineSample is one sampled point of a track centerline with the
// edge points at half the track width on either side.
type CenterlineSample struct {
	Center core.Vec3
	Left   core.Vec3
	Right  core.Vec3
	Width  float64
}

// CenterlineGPX builds a GPX document with one track each for the
// centerline and its two edges.
func CenterlineGPX(track string, samples []CenterlineSample, geo *Georeferencer) (*gpx.GPX, error) {
	if len(samples) == 0 {
		return nil, ErrNoPoints
	}

	point := func(p core.Vec3) gpx.GPXPoint {
		lat, lon := geo.LatLon(p)
		return gpx.GPXPoint{Point: gpx.Point{
			Latitude:  lat,
			Longitude: lon,
			Elevation: *gpx.NewNullableFloat64(p.Y),
		}}
	}
	var center, left, right gpx.GPXTrackSegment
	for _, smp := range samples {
		c := point(smp.Center)
		c.Comment = fmt.Sprintf("width=%.2f", smp.Width)
		center.Points = append(center.Points, c)
		left.Points = append(left.Points, point(smp.Left))
		right.Points = append(right.Points, point(smp.Right))
	}

	return &gpx.GPX{
		Version: "1.1",
		Creator: Creator,
		Name:    track + " centerline",
		Tracks: []gpx.GPXTrack{
			{Name: "center", Segments: []gpx.GPXTrackSegment{center}},
			{Name: "left", Segments: []gpx.GPXTrackSegment{left}},
			{Name: "right", Segments: []gpx.GPXTrackSegment{right}},
		},
	}, nil
}

func writeGPX(w io.Writer, doc *gpx.GPX) error {
	data, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return fmt.Errorf("encoding gpx: %w", err)
	}
	_, err = w.Write(data)
	return err
}

func saveGPX(path string, doc *gpx.GPX) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := writeGPX(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteLapGPX encodes a lap as indented GPX 1.1 XML.
func WriteLapGPX(w io.Writer, ref core.LapRef, points []playback.TimelinePoint, start time.Time, geo *Georeferencer) error {
	doc, err := LapGPX(ref, points, start, geo)
	if err != nil {
		return err
	}
	return writeGPX(w, doc)
}

// SaveLapGPX writes the lap to path, creating parent directories.
func SaveLapGPX(path string, ref core.LapRef, points []playback.TimelinePoint, start time.Time, geo *Georeferencer) error {
	doc, err := LapGPX(ref, points, start, geo)
	if err != nil {
		return err
	}
	return saveGPX(path, doc)
}

// SaveCenterlineGPX writes sampled centerline points to path.
func SaveCenterlineGPX(path, track string, samples []CenterlineSample, geo *Georeferencer) error {
	doc, err := CenterlineGPX(track, samples, geo)
	if err != nil {
		return err
	}
	return saveGPX(path, doc)
}
