package mapping

import (
	"github.com/raceplayback/server/pkg/core"
	"github.com/shopspring/decimal"
)

func rawSample(x, y float64) core.TelemetryPoint {
	return core.TelemetryPoint{X: decimal.NewFromFloat(x), Y: decimal.NewFromFloat(y)}
}
