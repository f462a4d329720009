// Package trackstore persists scanned track boundaries and builds
// centerlines from them.
package trackstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/raceplayback/server/internal/geometry"
	"github.com/raceplayback/server/pkg/core"
)

// ErrTrackNotScanned is returned when no boundaries are stored for a track.
var ErrTrackNotScanned = errors.New("please scan the track first")

// Boundaries are the two scanned edges of a track, ordered along the lap.
type Boundaries struct {
	Track string
	Left  []core.Vec3
	Right []core.Vec3
}

// Edges builds the left and right edges.
func (b Boundaries) Edges() (left, right *geometry.TrackEdge) {
	return geometry.NewTrackEdge("left", b.Left), geometry.NewTrackEdge("right", b.Right)
}

func (b Boundaries) validate() error {
	if NormalizeTrack(b.Track) == "" {
		return errors.New("track name is required")
	}
	if len(b.Left) < 2 || len(b.Right) < 2 {
		return fmt.Errorf("track %s needs at least two points per edge", b.Track)
	}
	return nil
}

// Store persists track boundaries by track name.
type Store interface {
	Load(ctx context.Context, track string) (Boundaries, error)
	Save(ctx context.Context, b Boundaries) error
	List(ctx context.Context) ([]string, error)
	Close() error
}

// NormalizeTrack is the canonical form of a track name used as a key.
func NormalizeTrack(track string) string {
	return strings.ToLower(strings.TrimSpace(track))
}
