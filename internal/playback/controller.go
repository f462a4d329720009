package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/raceplayback/server/internal/mapping"
	"github.com/raceplayback/server/pkg/core"
)

// Defaults for Config.
const (
	DefaultFallbackLaps      = 57
	DefaultCountdownTicks    = 15
	DefaultCountdownInterval = time.Second
	DefaultTickInterval      = 50 * time.Millisecond
	DefaultSteeringGain      = 4.0
	DefaultSteeringLimit     = 90.0
)

var (
	// ErrPreloadMissing stops a session whose next lap was not ready in time.
	ErrPreloadMissing = errors.New("next lap not preloaded")
	// ErrNotInitialized is returned when starting before Initialize succeeded.
	ErrNotInitialized = errors.New("controller not initialized")
	// ErrStopped is returned when operating on a stopped controller.
	ErrStopped = errors.New("controller stopped")
)

// Config tunes a Controller.
type Config struct {
	Ref               core.LapRef
	FallbackLaps      int
	CountdownTicks    int
	CountdownInterval time.Duration
	TickInterval      time.Duration
	SteeringGain      float64
	SteeringLimit     float64
}

// DefaultConfig returns the default tuning for ref.
func DefaultConfig(ref core.LapRef) Config {
	return Config{
		Ref:               ref,
		FallbackLaps:      DefaultFallbackLaps,
		CountdownTicks:    DefaultCountdownTicks,
		CountdownInterval: DefaultCountdownInterval,
		TickInterval:      DefaultTickInterval,
		SteeringGain:      DefaultSteeringGain,
		SteeringLimit:     DefaultSteeringLimit,
	}
}

// Deps are the collaborators of a Controller. Sessions, Observer, Clock and
// Logger are optional.
type Deps struct {
	Telemetry TelemetrySource
	Sessions  SessionSource
	Renderer  Renderer
	Mapping   mapping.Factory
	Scheduler Scheduler
	Observer  Observer
	Clock     Clock
	Logger    *slog.Logger
}

// preloadSlot holds the single next-lap result.
type preloadSlot struct {
	lap      int
	timeline *SessionTimeline
	err      error
}

// Status is a snapshot of a controller.
type Status struct {
	ID        string
	Ref       core.LapRef
	Lap       int
	TotalLaps int
	Running   bool
	Stopped   bool
	Cursor    int
	Points    int
}

// Controller plays a driver's session lap by lap, preloading each next lap
// in the background.
type Controller struct {
	id      string
	cfg     Config
	origin  core.Vec3
	deps    Deps
	logger  *slog.Logger
	metrics *metrics

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu              sync.Mutex
	current         *SessionTimeline
	next            *preloadSlot
	preloading      bool
	currentLap      int
	totalLaps       int
	initialized     bool
	placed          bool
	running         bool
	stopped         bool
	countdown       int
	cancelTick      func()
	cancelCountdown func()
	lastYaw         float64
	hasYaw          bool
	err             error
}

// NewController creates a controller whose first lap starts at origin.
func NewController(cfg Config, origin core.Vec3, deps Deps) (*Controller, error) {
	if deps.Telemetry == nil || deps.Renderer == nil || deps.Mapping == nil || deps.Scheduler == nil {
		return nil, errors.New("telemetry source, renderer, mapping factory and scheduler are required")
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.FallbackLaps <= 0 {
		cfg.FallbackLaps = DefaultFallbackLaps
	}
	if cfg.CountdownInterval <= 0 {
		cfg.CountdownInterval = DefaultCountdownInterval
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	if cfg.SteeringLimit <= 0 {
		cfg.SteeringLimit = DefaultSteeringLimit
	}

	m, err := newMetrics()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		id:      id,
		cfg:     cfg,
		origin:  origin,
		deps:    deps,
		metrics: m,
		logger: deps.Logger.With(
			"session", id,
			"driver", cfg.Ref.Driver,
			"track", cfg.Ref.Track),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}, nil
}

// ID identifies the controller.
func (c *Controller) ID() string {
	return c.id
}

// Done is closed once the controller has stopped.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the controller stopped, nil for a normal stop.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Running reports whether the control tick is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		ID:        c.id,
		Ref:       c.cfg.Ref,
		Lap:       c.currentLap,
		TotalLaps: c.totalLaps,
		Running:   c.running,
		Stopped:   c.stopped,
	}
	if c.current != nil {
		s.Cursor = c.current.Cursor()
		s.Points = c.current.Len()
	}
	return s
}

// Initialize resolves the lap count, builds lap 1, places the car at its
// first point and starts preloading lap 2. A missing lap 1 stops the
// controller and is returned as an error.
func (c *Controller) Initialize(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.stopped:
		c.mu.Unlock()
		return ErrStopped
	case c.initialized:
		c.mu.Unlock()
		return errors.New("controller already initialized")
	}
	c.mu.Unlock()

	total := c.resolveTotalLaps(ctx)

	c.logger.Info("Loading lap 1", "totalLaps", total)
	samples, timeline, err := c.buildLap(ctx, 1, c.origin)
	if err != nil {
		err = fmt.Errorf("lap 1: %w", err)
		c.logger.Error("Failed to load first lap", "error", err)
		c.mu.Lock()
		c.stopLocked(err)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return ErrStopped
	}

	first, _ := timeline.First()
	obj := Object{Driver: c.cfg.Ref.Driver, Compound: samples[0].Compound}
	if err := c.deps.Renderer.PlaceObject(obj, first.Position, first.Yaw); err != nil {
		err = fmt.Errorf("placing car: %w", err)
		c.stopLocked(err)
		return err
	}
	c.placed = true

	c.totalLaps = total
	c.currentLap = 1
	c.current = timeline
	c.initialized = true

	c.logger.Info("Lap 1 loaded", "points", timeline.Len(), "duration", timeline.Duration())
	c.preloadLocked(2)
	return nil
}

func (c *Controller) resolveTotalLaps(ctx context.Context) int {
	if c.deps.Sessions == nil {
		return c.cfg.FallbackLaps
	}
	ref := c.cfg.Ref
	info, err := c.deps.Sessions.SessionInfo(ctx, ref.Year, ref.Track, ref.Session)
	if err != nil || info.NumberOfLaps <= 0 {
		c.logger.Warn("Session metadata unavailable, using fallback lap count",
			"fallback", c.cfg.FallbackLaps, "error", err)
		return c.cfg.FallbackLaps
	}
	return info.NumberOfLaps
}

// buildLap fetches a lap and maps it relative to origin.
func (c *Controller) buildLap(ctx context.Context, lap int, origin core.Vec3) ([]core.TelemetryPoint, *SessionTimeline, error) {
	ref := c.cfg.Ref
	ref.Lap = lap

	samples, err := c.deps.Telemetry.LapTelemetry(ctx, ref)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching telemetry: %w", err)
	}
	if len(samples) == 0 {
		return nil, nil, ErrNoTelemetry
	}

	strategy, err := c.deps.Mapping(origin)
	if err != nil {
		return nil, nil, fmt.Errorf("creating mapper: %w", err)
	}

	timeline := NewSessionTimeline(c.deps.Clock)
	if err := timeline.BuildFromTelemetry(samples, strategy); err != nil {
		return nil, nil, err
	}
	return samples, timeline, nil
}

// preloadLocked builds lap in the background, anchored where the current
// lap ends. Only one preload runs at a time.
func (c *Controller) preloadLocked(lap int) {
	if c.stopped || c.preloading || lap > c.totalLaps {
		return
	}
	origin := c.origin
	if last, ok := c.current.Last(); ok {
		origin = last.Position
	}
	c.preloading = true
	c.next = nil

	c.logger.Info("Preloading lap", "lap", lap)
	ctx := c.ctx
	c.deps.Scheduler.Go(func() {
		_, timeline, err := c.buildLap(ctx, lap, origin)
		c.publishPreload(lap, timeline, err)
	})
}

// publishPreload stores a preload result unless the controller has stopped
// or moved past that lap.
func (c *Controller) publishPreload(lap int, timeline *SessionTimeline, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preloading = false

	if c.stopped || lap != c.currentLap+1 {
		c.logger.Debug("Discarding stale preload", "lap", lap, "currentLap", c.currentLap)
		return
	}
	if err != nil {
		c.metrics.preloadFailures.Add(context.Background(), 1)
		c.logger.Warn("Failed to preload lap", "lap", lap, "error", err)
		c.next = &preloadSlot{lap: lap, err: err}
		return
	}
	c.next = &preloadSlot{lap: lap, timeline: timeline}
	c.logger.Info("Lap preloaded", "lap", lap, "points", timeline.Len())
}

// StartWithCountdown counts down on a 1-second tick and starts playback
// once the counter reaches zero.
func (c *Controller) StartWithCountdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.stopped:
		return ErrStopped
	case !c.initialized:
		return ErrNotInitialized
	case c.running || c.cancelCountdown != nil:
		return nil
	}

	c.countdown = c.cfg.CountdownTicks
	c.logger.Info("Starting countdown", "seconds", c.countdown)
	c.cancelCountdown = c.deps.Scheduler.Every(c.cfg.CountdownInterval, c.countdownTick)
	return nil
}

func (c *Controller) countdownTick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped || c.running {
		return
	}
	if c.countdown > 0 {
		c.logger.Info(fmt.Sprintf("Starting in %d...", c.countdown))
		c.countdown--
		return
	}
	if c.cancelCountdown != nil {
		c.cancelCountdown()
	}
	c.startLocked()
}

// Start begins playback immediately.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.stopped:
		return ErrStopped
	case !c.initialized:
		return ErrNotInitialized
	}
	c.startLocked()
	return nil
}

func (c *Controller) startLocked() {
	if c.running {
		return
	}
	c.running = true
	c.current.Start()
	c.logger.Info("Replay started", "lap", c.currentLap, "points", c.current.Len())
	c.cancelTick = c.deps.Scheduler.Every(c.cfg.TickInterval, c.tick)
}

// tick is the control loop body.
func (c *Controller) tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}

	if p, ok := c.current.CurrentPoint(); ok {
		c.push(p)
	}
	if c.current.IsFinished() {
		c.onLapFinished()
	}
}

func (c *Controller) push(p TimelinePoint) {
	if err := c.deps.Renderer.UpdateObject(p.Position, p.Yaw); err != nil {
		c.logger.Warn("Failed to update car", "error", err)
	}
	aux := AuxState{DRSOpen: p.DRSOpen, Steering: c.steering(p.Yaw)}
	if err := c.deps.Renderer.SetAuxiliaryState(aux); err != nil {
		c.logger.Warn("Failed to set car state", "error", err)
	}
	if c.deps.Observer != nil {
		ref := c.cfg.Ref
		ref.Lap = c.currentLap
		c.deps.Observer.ObservePoint(ref, p)
	}
	c.metrics.ticks.Add(context.Background(), 1)
}

// steering derives a steering angle from the heading change since the
// previous pushed point.
func (c *Controller) steering(yaw float64) float64 {
	if !c.hasYaw {
		c.lastYaw, c.hasYaw = yaw, true
		return 0
	}
	delta := mapping.NormalizeDegrees(yaw - c.lastYaw)
	c.lastYaw = yaw
	s := delta * c.cfg.SteeringGain
	return max(-c.cfg.SteeringLimit, min(c.cfg.SteeringLimit, s))
}

func (c *Controller) onLapFinished() {
	c.metrics.lapsCompleted.Add(context.Background(), 1)
	c.logger.Info("Lap finished", "lap", c.currentLap)
	c.currentLap++

	if c.currentLap > c.totalLaps {
		c.logger.Info("Session finished", "laps", c.totalLaps)
		c.stopLocked(nil)
		return
	}

	slot := c.next
	if slot == nil || slot.lap != c.currentLap || slot.timeline == nil {
		err := fmt.Errorf("%w: lap %d", ErrPreloadMissing, c.currentLap)
		if slot != nil && slot.err != nil {
			err = fmt.Errorf("%w: %w", err, slot.err)
		}
		c.logger.Error("Next lap not available, stopping session", "lap", c.currentLap, "error", err)
		c.stopLocked(err)
		return
	}

	c.next = nil
	c.current = slot.timeline
	c.current.Start()
	c.logger.Info("Starting lap", "lap", c.currentLap)
	c.preloadLocked(c.currentLap + 1)
}

// Stop halts playback and removes the car. It is safe to call repeatedly.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked(nil)
}

func (c *Controller) stopLocked(err error) {
	if c.stopped {
		return
	}
	c.stopped = true
	c.running = false
	c.err = err

	if c.cancelCountdown != nil {
		c.cancelCountdown()
	}
	if c.cancelTick != nil {
		c.cancelTick()
	}
	if c.current != nil {
		c.current.Stop()
	}
	c.next = nil
	c.cancel()

	if c.placed {
		if rerr := c.deps.Renderer.RemoveObject(); rerr != nil {
			c.logger.Warn("Failed to remove car", "error", rerr)
		}
		c.placed = false
	}
	close(c.done)
	c.logger.Info("Playback stopped", "lap", c.currentLap, "error", err)
}
