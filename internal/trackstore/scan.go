package trackstore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/raceplayback/server/internal/geometry"
	"github.com/raceplayback/server/pkg/core"
	"golang.org/x/sync/errgroup"
)

// Edge length ratios outside this band suggest a bad scan or ordering.
const (
	MinEdgeRatio = 0.8
	MaxEdgeRatio = 1.2
)

// ErrEmptyEdge is returned when a boundary has no samples.
var ErrEmptyEdge = errors.New("edge has no points")

// ScanResult holds the ordered edges of a scan.
type ScanResult struct {
	Left    *geometry.TrackEdge
	Right   *geometry.TrackEdge
	Ratio   float64
	Warning string
}

// Boundaries returns the scan as storable boundaries for track.
func (r ScanResult) Boundaries(track string) Boundaries {
	return Boundaries{Track: NormalizeTrack(track), Left: r.Left.Points(), Right: r.Right.Points()}
}

// OrderPath chains unordered samples into a path by repeatedly walking to
// the nearest remaining sample, starting from the first one.
func OrderPath(points []core.Vec3) []core.Vec3 {
	if len(points) == 0 {
		return nil
	}
	remaining := append([]core.Vec3(nil), points...)
	ordered := make([]core.Vec3, 0, len(points))

	current := remaining[0]
	remaining = remaining[1:]
	ordered = append(ordered, current)

	for len(remaining) > 0 {
		best := 0
		bestDist := current.Distance(remaining[0])
		for i := 1; i < len(remaining); i++ {
			if d := current.Distance(remaining[i]); d < bestDist {
				best, bestDist = i, d
			}
		}
		current = remaining[best]
		remaining = append(remaining[:best], remaining[best+1:]...)
		ordered = append(ordered, current)
	}
	return ordered
}

// ScanEdges orders both boundary sample sets and builds the track edges.
func ScanEdges(ctx context.Context, left, right []core.Vec3) (ScanResult, error) {
	if len(left) == 0 || len(right) == 0 {
		return ScanResult{}, fmt.Errorf("%w: left %d, right %d", ErrEmptyEdge, len(left), len(right))
	}

	var orderedLeft, orderedRight []core.Vec3
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		orderedLeft = OrderPath(left)
		return ctx.Err()
	})
	g.Go(func() error {
		orderedRight = OrderPath(right)
		return ctx.Err()
	})
	if err := g.Wait(); err != nil {
		return ScanResult{}, err
	}

	res := ScanResult{
		Left:  geometry.NewTrackEdge("left", orderedLeft),
		Right: geometry.NewTrackEdge("right", orderedRight),
	}
	if rl := res.Right.TotalLength(); rl > 0 {
		res.Ratio = res.Left.TotalLength() / rl
	}
	if res.Ratio < MinEdgeRatio || res.Ratio > MaxEdgeRatio {
		res.Warning = fmt.Sprintf("edge lengths differ significantly (ratio %.3f); edge detection or ordering may be wrong", res.Ratio)
	}
	return res, nil
}

// ReadPointsCSV reads "x,y,z" rows. Blank lines and lines starting with
// '#' are skipped, as is a leading "x,y,z" header.
func ReadPointsCSV(r io.Reader) ([]core.Vec3, error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	var points []core.Vec3
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return points, nil
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "x") {
			continue
		}
		var v [3]float64
		for i, field := range rec {
			f, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("csv record %d field %d: %w", line, i+1, err)
			}
			v[i] = f
		}
		points = append(points, core.Vec3{X: v[0], Y: v[1], Z: v[2]})
	}
}
