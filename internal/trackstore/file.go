package trackstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/raceplayback/server/pkg/core"
)

// fileDoc is the on-disk JSON layout of one track.
type fileDoc struct {
	Track           string      `json:"track"`
	LeftEdge        []core.Vec3 `json:"leftEdge"`
	RightEdge       []core.Vec3 `json:"rightEdge"`
	LeftEdgeLength  float64     `json:"leftEdgeLength"`
	RightEdgeLength float64     `json:"rightEdgeLength"`
	LeftEdgePoints  int         `json:"leftEdgePoints"`
	RightEdgePoints int         `json:"rightEdgePoints"`
}

// FileStore keeps one JSON file per track in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create track directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(track string) string {
	return filepath.Join(s.dir, NormalizeTrack(track)+".json")
}

func (s *FileStore) Load(_ context.Context, track string) (Boundaries, error) {
	data, err := os.ReadFile(s.path(track))
	if errors.Is(err, fs.ErrNotExist) {
		return Boundaries{}, fmt.Errorf("%w: %s", ErrTrackNotScanned, track)
	}
	if err != nil {
		return Boundaries{}, fmt.Errorf("failed to read track %s: %w", track, err)
	}

	var doc fileDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Boundaries{}, fmt.Errorf("failed to decode track %s: %w", track, err)
	}
	return Boundaries{Track: NormalizeTrack(track), Left: doc.LeftEdge, Right: doc.RightEdge}, nil
}

func (s *FileStore) Save(_ context.Context, b Boundaries) error {
	if err := b.validate(); err != nil {
		return err
	}
	left, right := b.Edges()
	doc := fileDoc{
		Track:           NormalizeTrack(b.Track),
		LeftEdge:        b.Left,
		RightEdge:       b.Right,
		LeftEdgeLength:  left.TotalLength(),
		RightEdgeLength: right.TotalLength(),
		LeftEdgePoints:  left.Len(),
		RightEdgePoints: right.Len(),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode track %s: %w", b.Track, err)
	}

	tmp := s.path(b.Track) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write track %s: %w", b.Track, err)
	}
	return os.Rename(tmp, s.path(b.Track))
}

func (s *FileStore) List(context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	var tracks []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		tracks = append(tracks, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(tracks)
	return tracks, nil
}

func (s *FileStore) Close() error { return nil }

