// Package monitor periodically reports the state of active playback sessions.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/raceplayback/server/internal/playback"
)

// DefaultInterval is the reporting period.
const DefaultInterval = 5 * time.Second

// StatusSource lists the sessions to report.
type StatusSource interface {
	Statuses() map[string]playback.Status
}

// Dependencies holds everything the monitor reads.
type Dependencies struct {
	Sessions   StatusSource
	Logger     *slog.Logger
	StatusFile string
	Interval   time.Duration
}

// SessionStatus is one line of the status report.
type SessionStatus struct {
	Owner    string `json:"owner"`
	Session  string `json:"session"`
	Lap      string `json:"lap"`
	Driver   string `json:"driver"`
	Track    string `json:"track"`
	Running  bool   `json:"running"`
	Progress string `json:"progress"`
}

// Report is a snapshot of every active session.
type Report struct {
	Time     time.Time       `json:"time"`
	Active   int             `json:"active"`
	Sessions []SessionStatus `json:"sessions"`
}

// Service runs the reporting loop.
type Service struct {
	deps Dependencies

	mu        sync.RWMutex
	isRunning bool
	stopChan  chan struct{}
	stopped   chan struct{}
}

func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{deps: deps}
}

// IsRunning reports whether the loop is active.
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot builds a report, ordered by owner.
func (s *Service) Snapshot(now time.Time) Report {
	statuses := s.deps.Sessions.Statuses()
	r := Report{Time: now.UTC(), Active: len(statuses), Sessions: make([]SessionStatus, 0, len(statuses))}
	for owner, st := range statuses {
		r.Sessions = append(r.Sessions, SessionStatus{
			Owner:    owner,
			Session:  st.ID,
			Lap:      lapString(st),
			Driver:   st.Ref.Driver,
			Track:    st.Ref.Track,
			Running:  st.Running,
			Progress: progressString(st),
		})
	}
	sort.Slice(r.Sessions, func(i, j int) bool { return r.Sessions[i].Owner < r.Sessions[j].Owner })
	return r
}

func lapString(st playback.Status) string {
	return fmt.Sprintf("%d/%d", st.Lap, st.TotalLaps)
}

func progressString(st playback.Status) string {
	if st.Points == 0 {
		return "0%"
	}
	return fmt.Sprintf("%d%%", st.Cursor*100/st.Points)
}

// Start launches the loop; it is a no-op when already running.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.stopped = make(chan struct{})
	go s.run(s.stopChan, s.stopped)
}

func (s *Service) run(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	logger := s.deps.Logger
	logger.Debug("Status monitor started", "interval", s.deps.Interval)

	ticker := time.NewTicker(s.deps.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			s.report(now)
		}
	}
}

func (s *Service) report(now time.Time) {
	r := s.Snapshot(now)
	for _, st := range r.Sessions {
		s.deps.Logger.Info("Session status",
			"owner", st.Owner,
			"driver", st.Driver,
			"track", st.Track,
			"lap", st.Lap,
			"progress", st.Progress,
			"running", st.Running)
	}
	if s.deps.StatusFile == "" {
		return
	}
	if err := writeStatusFile(s.deps.StatusFile, r); err != nil {
		s.deps.Logger.Error("Error writing status file", "error", err)
	}
}

func writeStatusFile(path string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Stop ends the loop and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	stopped := s.stopped
	s.mu.Unlock()
	<-stopped
}
