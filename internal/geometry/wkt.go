package geometry

import (
	"errors"
	"fmt"

	"github.com/raceplayback/server/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// ErrNotLineString is returned when WKT input does not describe a LINESTRING.
var ErrNotLineString = errors.New("geometry is not a linestring")

// ToLineString converts world points to an XYZ LineString. The ground plane
// (X, Z) becomes the geometry's XY and height becomes Z. It fails unless
// at least two points differ on the ground plane.
func ToLineString(points []core.Vec3) (geom.LineString, error) {
	flat := make([]float64, 0, len(points)*3)
	for _, p := range points {
		flat = append(flat, p.X, p.Z, p.Y)
	}
	seq := geom.NewSequence(flat, geom.DimXYZ)
	ls, err := geom.NewLineString(seq)
	if err != nil {
		return geom.LineString{}, fmt.Errorf("invalid linestring: %w", err)
	}
	return ls, nil
}

// FromLineString is the inverse of ToLineString. 2-D input gets height 0.
func FromLineString(ls geom.LineString) []core.Vec3 {
	seq := ls.Coordinates()
	out := make([]core.Vec3, seq.Length())
	for i := range out {
		c := seq.Get(i)
		out[i] = core.Vec3{X: c.XY.X, Y: c.Z, Z: c.XY.Y}
	}
	return out
}

// CurveToWKT encodes a curve's points as WKT.
func CurveToWKT(c *ArcLengthCurve) (string, error) {
	ls, err := ToLineString(c.points)
	if err != nil {
		return "", err
	}
	return ls.AsText(), nil
}

// PointsFromWKT parses a WKT LINESTRING into world points.
func PointsFromWKT(wkt string) ([]core.Vec3, error) {
	g, err := geom.UnmarshalWKT(wkt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse WKT: %w", err)
	}
	ls, ok := g.AsLineString()
	if !ok {
		return nil, fmt.Errorf("%w: got %s", ErrNotLineString, g.Type())
	}
	return FromLineString(ls), nil
}

// EdgeFromWKT parses a WKT LINESTRING into a named edge.
func EdgeFromWKT(name, wkt string) (*TrackEdge, error) {
	points, err := PointsFromWKT(wkt)
	if err != nil {
		return nil, err
	}
	return NewTrackEdge(name, points), nil
}
