// Package export writes mapped laps in external formats.
package export

import (
	"errors"
	"math"

	"github.com/raceplayback/server/pkg/core"
	"github.com/wroge/wgs84"
)

// EPSG codes used for georeferencing.
const (
	EPSGWGS84       = 4326
	EPSGWebMercator = 3857
)

// ErrInvalidAnchor is returned for anchors outside valid latitude/longitude ranges.
var ErrInvalidAnchor = errors.New("invalid anchor coordinates")

// Anchor pins a world position to a geographic location.
type Anchor struct {
	Lat float64
	Lon float64
}

// Georeferencer places world positions on the globe. World +X is east,
// world -Z is north and one world unit is MetersPerUnit ground meters.
type Georeferencer struct {
	origin        core.Vec3
	anchorX       float64
	anchorY       float64
	mercatorScale float64
	toWGS84       func(a, b, c float64) (float64, float64, float64)
	MetersPerUnit float64
}

// NewGeoreferencer maps origin to anchor.
func NewGeoreferencer(anchor Anchor, origin core.Vec3, metersPerUnit float64) (*Georeferencer, error) {
	if anchor.Lat <= -85 || anchor.Lat >= 85 || anchor.Lon < -180 || anchor.Lon > 180 {
		return nil, ErrInvalidAnchor
	}
	if metersPerUnit <= 0 {
		metersPerUnit = 1
	}
	epsg := wgs84.EPSG()
	x, y, _ := epsg.Transform(EPSGWGS84, EPSGWebMercator)(anchor.Lon, anchor.Lat, 0)
	return &Georeferencer{
		origin:        origin,
		anchorX:       x,
		anchorY:       y,
		mercatorScale: 1 / math.Cos(anchor.Lat*math.Pi/180),
		toWGS84:       epsg.Transform(EPSGWebMercator, EPSGWGS84),
		MetersPerUnit: metersPerUnit,
	}, nil
}

// LatLon returns the location of a world position.
func (g *Georeferencer) LatLon(p core.Vec3) (lat, lon float64) {
	east := (p.X - g.origin.X) * g.MetersPerUnit * g.mercatorScale
	north := -(p.Z - g.origin.Z) * g.MetersPerUnit * g.mercatorScale
	lon, lat, _ = g.toWGS84(g.anchorX+east, g.anchorY+north, 0)
	return lat, lon
}
