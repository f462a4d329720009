package render

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/raceplayback/server/internal/playback"
	"github.com/raceplayback/server/internal/queue"
	"github.com/raceplayback/server/pkg/core"
	"github.com/raceplayback/server/pkg/streaming"
)

// RecorderConfig configures a Recorder.
type RecorderConfig struct {
	OutputDir      string
	CompressOutput bool
	Label          string // prefix of the export file name
	MaxFrames      int    // oldest frames are dropped beyond this; 0 keeps all
}

// Frame is one recorded render call.
type Frame struct {
	Type     string     `json:"type"`
	AtMs     int64      `json:"atMs"`
	Position *core.Vec3 `json:"position,omitempty"`
	Yaw      *float64   `json:"yaw,omitempty"`
	DRSOpen  *bool      `json:"drsOpen,omitempty"`
	Steering *float64   `json:"steering,omitempty"`
}

// Recording is the exported JSON document.
type Recording struct {
	Label     string        `json:"label"`
	Driver    string        `json:"driver"`
	Compound  core.Compound `json:"compound"`
	StartedAt time.Time     `json:"startedAt"`
	Dropped   int           `json:"dropped,omitempty"`
	Frames    []Frame       `json:"frames"`
}

// Recorder keeps every render call in memory and writes them to a JSON
// file when the car is removed.
type Recorder struct {
	cfg    RecorderConfig
	frames *queue.Queue[Frame]
	now    func() time.Time

	mu             sync.Mutex
	driver         string
	compound       core.Compound
	startedAt      time.Time
	lastExportPath string
}

// NewRecorder creates an in-memory recorder.
func NewRecorder(cfg RecorderConfig) *Recorder {
	return &Recorder{
		cfg:    cfg,
		frames: queue.NewBounded[Frame](cfg.MaxFrames),
		now:    time.Now,
	}
}

func (r *Recorder) since() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now().Sub(r.startedAt).Milliseconds()
}

func (r *Recorder) PlaceObject(obj playback.Object, pos core.Vec3, yaw float64) error {
	r.mu.Lock()
	r.driver = obj.Driver
	r.compound = obj.Compound
	r.startedAt = r.now()
	r.mu.Unlock()

	r.frames.Clear()
	r.frames.Push(Frame{Type: streaming.TypePlaceObject, Position: &pos, Yaw: &yaw})
	return nil
}

func (r *Recorder) UpdateObject(pos core.Vec3, yaw float64) error {
	r.frames.Push(Frame{Type: streaming.TypeUpdateObject, AtMs: r.since(), Position: &pos, Yaw: &yaw})
	return nil
}

func (r *Recorder) SetAuxiliaryState(aux playback.AuxState) error {
	r.frames.Push(Frame{Type: streaming.TypeAuxState, AtMs: r.since(), DRSOpen: &aux.DRSOpen, Steering: &aux.Steering})
	return nil
}

// RemoveObject records the removal and exports the recording.
func (r *Recorder) RemoveObject() error {
	r.frames.Push(Frame{Type: streaming.TypeRemoveObject, AtMs: r.since()})
	if r.cfg.OutputDir == "" {
		return nil
	}
	return r.export()
}

// Frames returns the frames recorded so far.
func (r *Recorder) Frames() []Frame {
	return r.frames.Snapshot()
}

// LastExportPath is the file written by the latest export.
func (r *Recorder) LastExportPath() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastExportPath
}

func (r *Recorder) export() error {
	r.mu.Lock()
	rec := Recording{
		Label:     r.cfg.Label,
		Driver:    r.driver,
		Compound:  r.compound,
		StartedAt: r.startedAt,
		Dropped:   r.frames.Dropped(),
	}
	r.mu.Unlock()
	rec.Frames = r.frames.GetAndEmpty()

	name := strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(rec.Label + "_" + rec.Driver)
	filename := fmt.Sprintf("%s_%s.json", name, rec.StartedAt.Format("20060102_150405"))
	if r.cfg.CompressOutput {
		filename += ".gz"
	}

	if err := os.MkdirAll(r.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(r.cfg.OutputDir, filename)
	if err := writeRecording(path, rec, r.cfg.CompressOutput); err != nil {
		return err
	}

	r.mu.Lock()
	r.lastExportPath = path
	r.mu.Unlock()
	return nil
}

func writeRecording(path string, rec Recording, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	if compress {
		gz := gzip.NewWriter(f)
		defer gz.Close()
		w = gz
	}
	return json.NewEncoder(w).Encode(rec)
}
