package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/raceplayback/server/pkg/core"
	"github.com/shopspring/decimal"
)

type lapJSON struct {
	Telemetry []sampleJSON `json:"telemetry"`
}

// sampleJSON is one provider sample. Key matching is case-insensitive, so
// cached responses spelling "sessionTime_ms" decode the same as fresh ones.
type sampleJSON struct {
	Brake       flexBool        `json:"Brake"`
	Compound    string          `json:"Compound"`
	DRS         flexInt         `json:"DRS"`
	Distance    decimal.Decimal `json:"Distance"`
	RPM         decimal.Decimal `json:"RPM"`
	SessionTime flexInt         `json:"SessionTime_ms"`
	Speed       decimal.Decimal `json:"Speed"`
	Throttle    decimal.Decimal `json:"Throttle"`
	X           decimal.Decimal `json:"X"`
	Y           decimal.Decimal `json:"Y"`
	Gear        flexInt         `json:"nGear"`
}

func (s sampleJSON) point() core.TelemetryPoint {
	return core.NewTelemetryPoint(
		bool(s.Brake),
		core.ParseCompound(s.Compound),
		int(s.DRS),
		s.Distance,
		s.RPM,
		int64(s.SessionTime),
		s.Speed,
		s.Throttle,
		s.X,
		s.Y,
		int(s.Gear),
	)
}

// flexBool accepts true/false, numbers (non-zero is true) and null.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null", "false":
		*b = false
		return nil
	case "true":
		*b = true
		return nil
	}
	f, err := strconv.ParseFloat(string(bytes.Trim(data, `"`)), 64)
	if err != nil {
		return fmt.Errorf("invalid boolean %s", data)
	}
	*b = f != 0
	return nil
}

// flexInt accepts integers, floats (truncated), numeric strings and null.
type flexInt int64

func (n *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*n = 0
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("invalid number %s", data)
		}
		num = json.Number(s)
	}
	if i, err := num.Int64(); err == nil {
		*n = flexInt(i)
		return nil
	}
	f, err := num.Float64()
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid number %s", data)
	}
	*n = flexInt(int64(f))
	return nil
}
