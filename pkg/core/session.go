// pkg/core/session.go
package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinSupportedYear is the earliest season with position telemetry.
const MinSupportedYear = 2018

var (
	// ErrUnknownSessionType is returned when a session type name cannot be parsed
	ErrUnknownSessionType = errors.New("unknown session type")
	// ErrUnsupportedYear is returned for seasons without position telemetry
	ErrUnsupportedYear = errors.New("season not supported")
)

// SessionType identifies a session within an event weekend.
type SessionType string

const (
	SessionFP1        SessionType = "FP1"
	SessionFP2        SessionType = "FP2"
	SessionFP3        SessionType = "FP3"
	SessionQualifying SessionType = "Q"
	SessionSprintQ    SessionType = "SQ"
	SessionSprint     SessionType = "S"
	SessionRace       SessionType = "R"
	SessionPreseason  SessionType = "P"
)

var sessionTypeNames = map[SessionType]string{
	SessionFP1:        "free practice 1",
	SessionFP2:        "free practice 2",
	SessionFP3:        "free practice 3",
	SessionQualifying: "qualifying",
	SessionSprintQ:    "sprint qualifying",
	SessionSprint:     "sprint",
	SessionRace:       "race",
	SessionPreseason:  "pre-season testing",
}

// ParseSessionType parses a session code case-insensitively.
func ParseSessionType(s string) (SessionType, error) {
	t := SessionType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := sessionTypeNames[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSessionType, s)
	}
	return t, nil
}

// FullName returns the lowercase descriptive name, e.g. "sprint qualifying".
func (t SessionType) FullName() string {
	return sessionTypeNames[t]
}

// TitleCase returns FullName with every word capitalized.
func (t SessionType) TitleCase() string {
	words := strings.Fields(t.FullName())
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// PathSegment is the lowercase form used in provider URLs.
func (t SessionType) PathSegment() string {
	return strings.ToLower(string(t))
}

// SessionInfo is the metadata of one session.
type SessionInfo struct {
	CircuitName  string
	Date         time.Time
	GrandPrix    string
	NumberOfLaps int
	SessionType  SessionType
	Year         int
}

// IsRace reports whether the session is a race or sprint.
func (s SessionInfo) IsRace() bool {
	return s.SessionType == SessionRace || s.SessionType == SessionSprint
}

// IsQualifying reports whether the session is a qualifying or sprint qualifying.
func (s SessionInfo) IsQualifying() bool {
	return s.SessionType == SessionQualifying || s.SessionType == SessionSprintQ
}

// IsPractice reports whether the session is a free practice.
func (s SessionInfo) IsPractice() bool {
	return s.SessionType == SessionFP1 || s.SessionType == SessionFP2 || s.SessionType == SessionFP3
}

// FullName renders e.g. "Monza Grand Prix 2024 - Race - 01/09/2024 13:00:00".
func (s SessionInfo) FullName() string {
	gp := s.GrandPrix
	if gp != "" {
		gp = strings.ToUpper(gp[:1]) + gp[1:]
	}
	return fmt.Sprintf("%s Grand Prix %d - %s - %s",
		gp, s.Year, s.SessionType.TitleCase(), s.Date.Format("02/01/2006 15:04:05"))
}

// LapRef addresses one lap of one driver in one session.
type LapRef struct {
	Year    int
	Track   string
	Session SessionType
	Driver  string
	Lap     int
}

// Next returns the reference to the following lap.
func (r LapRef) Next() LapRef {
	r.Lap++
	return r
}

// Validate checks the fields needed to query a provider.
func (r LapRef) Validate() error {
	if r.Year < MinSupportedYear {
		return fmt.Errorf("%w: %d (minimum %d)", ErrUnsupportedYear, r.Year, MinSupportedYear)
	}
	if r.Track == "" {
		return errors.New("track is required")
	}
	if _, ok := sessionTypeNames[r.Session]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSessionType, r.Session)
	}
	if r.Driver == "" {
		return errors.New("driver is required")
	}
	if r.Lap < 1 {
		return fmt.Errorf("lap must be >= 1, got %d", r.Lap)
	}
	return nil
}

func (r LapRef) String() string {
	return fmt.Sprintf("%d/%s/%s/%s/lap%d", r.Year, r.Track, r.Session, r.Driver, r.Lap)
}
