package core

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelemetryPoint_IsDRSOpen(t *testing.T) {
	tests := []struct {
		code int
		open bool
	}{
		{0, false},
		{1, false},
		{8, false},
		{10, true},
		{12, true},
		{14, true},
		{13, false},
	}
	for _, tt := range tests {
		p := TelemetryPoint{DRS: tt.code}
		assert.Equal(t, tt.open, p.IsDRSOpen(), "code %d", tt.code)
	}
}

func TestNewTelemetryPoint_RoundsHalfUp(t *testing.T) {
	p := NewTelemetryPoint(
		false, CompoundSoft, 0,
		decimal.RequireFromString("1.00005"),
		decimal.RequireFromString("11000"),
		1000,
		decimal.RequireFromString("250.123449"),
		decimal.RequireFromString("99.99995"),
		decimal.RequireFromString("-1234.56785"),
		decimal.RequireFromString("42"),
		7,
	)

	assert.Equal(t, "1.0001", p.Distance.String())
	assert.Equal(t, "250.1234", p.Speed.String())
	assert.Equal(t, "100", p.Throttle.String())
	assert.Equal(t, "-1234.5679", p.X.String())
	x, y := p.RawXY()
	assert.InDelta(t, -1234.5679, x, 1e-9)
	assert.InDelta(t, 42.0, y, 1e-9)
}

func TestParseCompound(t *testing.T) {
	assert.Equal(t, CompoundSoft, ParseCompound("soft"))
	assert.Equal(t, CompoundIntermediate, ParseCompound(" INTERMEDIATE "))
	assert.Equal(t, CompoundUnknown, ParseCompound("nan"))
	assert.Equal(t, "wet", CompoundWet.ModelName())
}

func TestParseSessionType(t *testing.T) {
	st, err := ParseSessionType("sq")
	require.NoError(t, err)
	assert.Equal(t, SessionSprintQ, st)
	assert.Equal(t, "Sprint Qualifying", st.TitleCase())
	assert.Equal(t, "sq", st.PathSegment())

	_, err = ParseSessionType("fp4")
	assert.ErrorIs(t, err, ErrUnknownSessionType)
}

func TestSessionInfo(t *testing.T) {
	info := SessionInfo{
		GrandPrix:    "italian",
		Year:         2024,
		SessionType:  SessionRace,
		Date:         time.Date(2024, 9, 1, 13, 0, 0, 0, time.UTC),
		NumberOfLaps: 53,
	}
	assert.True(t, info.IsRace())
	assert.False(t, info.IsQualifying())
	assert.False(t, info.IsPractice())
	assert.Equal(t, "Italian Grand Prix 2024 - Race - 01/09/2024 13:00:00", info.FullName())
}

func TestLapRef(t *testing.T) {
	ref := LapRef{Year: 2024, Track: "monza", Session: SessionRace, Driver: "LEC", Lap: 1}
	require.NoError(t, ref.Validate())
	assert.Equal(t, 2, ref.Next().Lap)
	assert.Equal(t, 1, ref.Lap)
	assert.Equal(t, "2024/monza/R/LEC/lap1", ref.String())

	old := ref
	old.Year = 2017
	assert.ErrorIs(t, old.Validate(), ErrUnsupportedYear)

	noLap := ref
	noLap.Lap = 0
	assert.Error(t, noLap.Validate())
}

func TestVec3(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: 4, Y: 6, Z: 3}
	assert.Equal(t, Vec3{X: 5, Y: 8, Z: 6}, a.Add(b))
	assert.Equal(t, Vec3{X: 3, Y: 4, Z: 0}, b.Sub(a))
	assert.InDelta(t, 5.0, a.Distance(b), 1e-12)
	assert.InDelta(t, 9.0, a.DistanceSquaredXZ(b), 1e-12)
	assert.Equal(t, Vec3{X: 2.5, Y: 4, Z: 3}, a.Lerp(b, 0.5))
	assert.Equal(t, Point2D{X: 1, Z: 3}, a.Ground())
	assert.Equal(t, 9.0, a.WithY(9).Y)
}
