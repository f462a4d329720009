// pkg/core/telemetry.go
package core

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// decimalPlaces is the fixed precision kept for decoded telemetry values.
const decimalPlaces = 4

// Compound is a tyre compound.
type Compound string

const (
	CompoundSoft         Compound = "SOFT"
	CompoundMedium       Compound = "MEDIUM"
	CompoundHard         Compound = "HARD"
	CompoundIntermediate Compound = "INTERMEDIATE"
	CompoundWet          Compound = "WET"
	CompoundUnknown      Compound = "UNKNOWN"
)

// ParseCompound maps a provider compound name onto a known compound.
// Unrecognized names yield CompoundUnknown.
func ParseCompound(s string) Compound {
	switch c := Compound(strings.ToUpper(strings.TrimSpace(s))); c {
	case CompoundSoft, CompoundMedium, CompoundHard, CompoundIntermediate, CompoundWet:
		return c
	default:
		return CompoundUnknown
	}
}

// ModelName is the lowercase name used by wheel models.
func (c Compound) ModelName() string {
	return strings.ToLower(string(c))
}

// drsOpenCodes are the raw DRS codes reported while the flap is open.
var drsOpenCodes = map[int]struct{}{10: {}, 12: {}, 14: {}}

// TelemetryPoint is one decoded telemetry sample.
type TelemetryPoint struct {
	Braking     bool
	Compound    Compound
	DRS         int
	Distance    decimal.Decimal
	RPM         decimal.Decimal
	SessionTime int64 // milliseconds since session start
	Speed       decimal.Decimal
	Throttle    decimal.Decimal
	X           decimal.Decimal
	Y           decimal.Decimal
	Gear        int
}

// NewTelemetryPoint builds a sample, rounding every decimal field half-up to
// four fractional digits.
func NewTelemetryPoint(
	braking bool,
	compound Compound,
	drs int,
	distance, rpm decimal.Decimal,
	sessionTime int64,
	speed, throttle, x, y decimal.Decimal,
	gear int,
) TelemetryPoint {
	return TelemetryPoint{
		Braking:     braking,
		Compound:    compound,
		DRS:         drs,
		Distance:    distance.Round(decimalPlaces),
		RPM:         rpm.Round(decimalPlaces),
		SessionTime: sessionTime,
		Speed:       speed.Round(decimalPlaces),
		Throttle:    throttle.Round(decimalPlaces),
		X:           x.Round(decimalPlaces),
		Y:           y.Round(decimalPlaces),
		Gear:        gear,
	}
}

// IsDRSOpen reports whether the raw DRS code is one of the known open codes.
func (p TelemetryPoint) IsDRSOpen() bool {
	_, ok := drsOpenCodes[p.DRS]
	return ok
}

// RawXY returns the raw coordinate pair as floats.
func (p TelemetryPoint) RawXY() (x, y float64) {
	return p.X.InexactFloat64(), p.Y.InexactFloat64()
}

func (p TelemetryPoint) String() string {
	return fmt.Sprintf("t=%dms x=%s y=%s speed=%s gear=%d drs=%d",
		p.SessionTime, p.X.String(), p.Y.String(), p.Speed.String(), p.Gear, p.DRS)
}
