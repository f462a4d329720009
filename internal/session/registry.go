// Package session tracks the playback sessions of every owner (a player or
// a world) so that several can run side by side.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/raceplayback/server/internal/playback"
)

var (
	// ErrSessionExists is returned when an owner already has an active session.
	ErrSessionExists = errors.New("a session is already active")
	// ErrNoSession is returned when an owner has no session.
	ErrNoSession = errors.New("no active session")
)

// Playback is a running lap-by-lap session.
type Playback interface {
	ID() string
	Done() <-chan struct{}
	Err() error
	Stop()
	Status() playback.Status
}

// Stepper is a manually advanced debug session.
type Stepper interface {
	Next() (playback.DebugStep, error)
	Remaining() int
	Stop()
}

// Registry holds at most one playback and one debug session per owner.
// Playbacks leave the registry on their own once they stop.
type Registry struct {
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]Playback
	debug    map[string]Stepper
	watchers sync.WaitGroup
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:   logger,
		sessions: make(map[string]Playback),
		debug:    make(map[string]Stepper),
	}
}

// Start registers p for owner and removes it again when it stops.
func (r *Registry) Start(owner string, p Playback) error {
	r.mu.Lock()
	if _, ok := r.sessions[owner]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w for %s", ErrSessionExists, owner)
	}
	r.sessions[owner] = p
	r.mu.Unlock()

	r.logger.Info("Session registered", "owner", owner, "session", p.ID())

	r.watchers.Add(1)
	go r.watch(owner, p)
	return nil
}

func (r *Registry) watch(owner string, p Playback) {
	defer r.watchers.Done()
	<-p.Done()

	r.mu.Lock()
	if cur, ok := r.sessions[owner]; ok && cur == p {
		delete(r.sessions, owner)
	}
	r.mu.Unlock()

	if err := p.Err(); err != nil {
		r.logger.Warn("Session ended with error", "owner", owner, "session", p.ID(), "error", err)
		return
	}
	r.logger.Info("Session ended", "owner", owner, "session", p.ID())
}

// Get returns the active session of owner.
func (r *Registry) Get(owner string) (Playback, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.sessions[owner]
	return p, ok
}

// Stop stops and removes the session of owner.
func (r *Registry) Stop(owner string) error {
	r.mu.Lock()
	p, ok := r.sessions[owner]
	delete(r.sessions, owner)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w for %s", ErrNoSession, owner)
	}
	p.Stop()
	return nil
}

// StopAll stops every playback and debug session and waits until all of
// them have been released. It returns how many were stopped.
func (r *Registry) StopAll() int {
	r.mu.Lock()
	sessions := r.sessions
	debug := r.debug
	r.sessions = make(map[string]Playback)
	r.debug = make(map[string]Stepper)
	r.mu.Unlock()

	for _, p := range sessions {
		p.Stop()
	}
	for _, s := range debug {
		s.Stop()
	}
	r.watchers.Wait()
	return len(sessions) + len(debug)
}

// Count is the number of active playback sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Statuses returns a snapshot of every playback keyed by owner.
func (r *Registry) Statuses() map[string]playback.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]playback.Status, len(r.sessions))
	for owner, p := range r.sessions {
		out[owner] = p.Status()
	}
	return out
}

// Owners lists the owners with an active playback.
func (r *Registry) Owners() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owners := make([]string, 0, len(r.sessions))
	for o := range r.sessions {
		owners = append(owners, o)
	}
	sort.Strings(owners)
	return owners
}

// StartDebug registers a debug stepper for owner.
func (r *Registry) StartDebug(owner string, s Stepper) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.debug[owner]; ok {
		return fmt.Errorf("%w for %s", ErrSessionExists, owner)
	}
	r.debug[owner] = s
	return nil
}

// Debug returns the debug stepper of owner.
func (r *Registry) Debug(owner string) (Stepper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.debug[owner]
	return s, ok
}

// StopDebug stops and removes the debug stepper of owner.
func (r *Registry) StopDebug(owner string) error {
	r.mu.Lock()
	s, ok := r.debug[owner]
	delete(r.debug, owner)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w for %s", ErrNoSession, owner)
	}
	s.Stop()
	return nil
}
