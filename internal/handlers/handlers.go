package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/raceplayback/server/internal/api"
	"github.com/raceplayback/server/internal/dispatcher"
	"github.com/raceplayback/server/internal/export"
	"github.com/raceplayback/server/internal/geometry"
	"github.com/raceplayback/server/internal/logging"
	"github.com/raceplayback/server/internal/mapping"
	"github.com/raceplayback/server/internal/playback"
	"github.com/raceplayback/server/internal/session"
	"github.com/raceplayback/server/internal/trackstore"
	"github.com/raceplayback/server/pkg/core"
)

// ErrArgs is returned when a command has missing or malformed arguments.
var ErrArgs = errors.New("invalid arguments")

// DefaultCenterlineSamples is how many points :TRACK:CENTERLINE: samples.
const DefaultCenterlineSamples = 500

// DefaultTimeout bounds the provider and store calls of one command.
const DefaultTimeout = 2 * time.Minute

// Provider is the telemetry backend used by the session commands.
type Provider interface {
	playback.TelemetrySource
	playback.SessionSource
	Drivers(ctx context.Context, year int, track string, session core.SessionType) ([]api.Driver, error)
}

// RendererFactory builds the renderer of one session. The closer is called
// once the session has ended.
type RendererFactory func(owner string, ref core.LapRef) (playback.Renderer, io.Closer, error)

// ExportSettings configures GPX export.
type ExportSettings struct {
	Dir           string
	MetersPerUnit float64
	Anchors       map[string]export.Anchor // keyed by normalized track name
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Provider    Provider
	Store       trackstore.Store
	Centerlines *trackstore.CenterlineCache
	Sessions    *session.Registry
	Scheduler   playback.Scheduler
	Renderers   RendererFactory
	Observer    playback.Observer // optional
	LogManager  *logging.SlogManager
	Playback    playback.Config
	Mapping     mapping.Config
	Origin      core.Vec3
	Export      ExportSettings
	Version     string
	Timeout     time.Duration
	Logger      *slog.Logger
}

// Service provides the command handlers
type Service struct {
	deps   Dependencies
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultTimeout
	}
	return &Service{
		deps:   deps,
		logger: deps.Logger.With("component", "handlers"),
		now:    time.Now,
	}
}

// Register wires every command onto d. Commands that hit the network or the
// disk are buffered so the input loop is never blocked by them.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	d.Register(":SESSION:START:", s.StartSession, dispatcher.Buffered(16), dispatcher.Logged())
	d.Register(":SESSION:STOP:", s.StopSession, dispatcher.Logged())
	d.Register(":SESSION:STATUS:", s.SessionStatus)
	d.Register(":SESSION:DEBUG:", s.StartDebug, dispatcher.Buffered(4), dispatcher.Logged())
	d.Register(":DEBUG:NEXT:", s.DebugNext)
	d.Register(":DEBUG:STOP:", s.StopDebug, dispatcher.Logged())
	d.Register(":TRACK:LIST:", s.TrackList)
	d.Register(":TRACK:CLEARCACHE:", s.TrackClearCache, dispatcher.Logged())
	d.Register(":TRACK:SCAN:", s.TrackScan, dispatcher.Buffered(4), dispatcher.Logged())
	d.Register(":TRACK:CENTERLINE:", s.TrackCenterline, dispatcher.Buffered(4), dispatcher.Logged())
	d.Register(":EXPORT:GPX:", s.ExportGPX, dispatcher.Buffered(4), dispatcher.Logged())
	d.Register(":DRIVERS:", s.Drivers)
	d.Register(":LOG:LEVEL:", s.SetLogLevel, dispatcher.Logged())
	d.Register(":VERSION:", func(dispatcher.Event) (any, error) {
		return s.deps.Version, nil
	})
	d.Register(":HELP:", func(dispatcher.Event) (any, error) {
		return strings.Join(d.Commands(), " "), nil
	})
}

func (s *Service) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.deps.Timeout)
}

func requireArgs(e dispatcher.Event, n int, usage string) error {
	if len(e.Args) < n {
		return fmt.Errorf("%w: %s expects %s", ErrArgs, e.Command, usage)
	}
	return nil
}

// parseSession reads year, track and session from args.
func parseSession(args []string) (core.LapRef, error) {
	year, err := strconv.Atoi(args[0])
	if err != nil {
		return core.LapRef{}, fmt.Errorf("%w: year %q", ErrArgs, args[0])
	}
	st, err := core.ParseSessionType(args[2])
	if err != nil {
		return core.LapRef{}, err
	}
	return core.LapRef{Year: year, Track: trackstore.NormalizeTrack(args[1]), Session: st, Lap: 1}, nil
}

// parseRef reads year, track, session and driver from args.
func parseRef(args []string) (core.LapRef, error) {
	ref, err := parseSession(args)
	if err != nil {
		return core.LapRef{}, err
	}
	ref.Driver = strings.ToUpper(strings.TrimSpace(args[3]))
	return ref, nil
}

// mappingFactory builds the strategy factory for track. Adaptive mode needs
// the track's scanned centerline.
func (s *Service) mappingFactory(ctx context.Context, track string) (mapping.Factory, error) {
	var centerline *geometry.TrackCenterline
	if s.deps.Mapping.Mode == mapping.ModeAdaptive {
		cl, err := s.deps.Centerlines.Get(ctx, track)
		if err != nil {
			return nil, err
		}
		centerline = cl
	}
	return mapping.NewFactory(s.deps.Mapping, centerline, s.deps.Logger)
}

func closeRenderer(logger *slog.Logger, c io.Closer) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logger.Warn("Failed to close renderer", "error", err)
	}
}

// StartSession starts playback of a driver's session for an owner.
// Args: owner, year, track, session, driver.
func (s *Service) StartSession(e dispatcher.Event) (any, error) {
	if err := requireArgs(e, 5, "owner, year, track, session, driver"); err != nil {
		return nil, err
	}
	owner := e.Args[0]
	ref, err := parseRef(e.Args[1:5])
	if err != nil {
		return nil, err
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if _, ok := s.deps.Sessions.Get(owner); ok {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionExists, owner)
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	factory, err := s.mappingFactory(ctx, ref.Track)
	if err != nil {
		return nil, err
	}
	renderer, closer, err := s.deps.Renderers(owner, ref)
	if err != nil {
		return nil, fmt.Errorf("creating renderer: %w", err)
	}

	cfg := s.deps.Playback
	cfg.Ref = ref
	c, err := playback.NewController(cfg, s.deps.Origin, playback.Deps{
		Telemetry: s.deps.Provider,
		Sessions:  s.deps.Provider,
		Renderer:  renderer,
		Mapping:   factory,
		Scheduler: s.deps.Scheduler,
		Observer:  s.deps.Observer,
		Logger:    s.deps.Logger.With("owner", owner),
	})
	if err != nil {
		closeRenderer(s.logger, closer)
		return nil, err
	}
	if err := s.deps.Sessions.Start(owner, c); err != nil {
		closeRenderer(s.logger, closer)
		return nil, err
	}
	go func() {
		<-c.Done()
		closeRenderer(s.logger, closer)
	}()

	if err := c.Initialize(ctx); err != nil {
		c.Stop()
		return nil, err
	}
	if err := c.StartWithCountdown(); err != nil {
		c.Stop()
		return nil, err
	}

	s.logger.Info("Session started", "owner", owner, "session", c.ID(), "ref", ref.String())
	return fmt.Sprintf("session %s started: %s", c.ID(), ref), nil
}

// StopSession stops an owner's playback. Args: owner.
func (s *Service) StopSession(e dispatcher.Event) (any, error) {
	if err := requireArgs(e, 1, "owner"); err != nil {
		return nil, err
	}
	if err := s.deps.Sessions.Stop(e.Args[0]); err != nil {
		return nil, err
	}
	return "session stopped", nil
}

func formatStatus(owner string, st playback.Status) string {
	state := "countdown"
	switch {
	case st.Stopped:
		state = "stopped"
	case st.Running:
		state = "running"
	}
	return fmt.Sprintf("%s: %s %s lap %d/%d point %d/%d %s",
		owner, st.Ref.Driver, st.Ref.Track, st.Lap, st.TotalLaps, st.Cursor, st.Points, state)
}

// SessionStatus reports one owner's playback, or all of them when no owner
// is given.
func (s *Service) SessionStatus(e dispatcher.Event) (any, error) {
	if owner := e.Arg(0); owner != "" {
		p, ok := s.deps.Sessions.Get(owner)
		if !ok {
			return nil, fmt.Errorf("%w: %s", session.ErrNoSession, owner)
		}
		return formatStatus(owner, p.Status()), nil
	}

	statuses := s.deps.Sessions.Statuses()
	if len(statuses) == 0 {
		return "no active sessions", nil
	}
	owners := make([]string, 0, len(statuses))
	for owner := range statuses {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	lines := make([]string, 0, len(owners))
	for _, owner := range owners {
		lines = append(lines, formatStatus(owner, statuses[owner]))
	}
	return strings.Join(lines, "; "), nil
}

// debugSession closes the renderer once the stepper is stopped.
type debugSession struct {
	*playback.DebugController
	closer io.Closer
	logger *slog.Logger
	once   sync.Once
}

func (d *debugSession) Stop() {
	d.DebugController.Stop()
	d.once.Do(func() { closeRenderer(d.logger, d.closer) })
}

// StartDebug loads lap 1 for step-by-step inspection.
// Args: owner, year, track, session, driver.
func (s *Service) StartDebug(e dispatcher.Event) (any, error) {
	if err := requireArgs(e, 5, "owner, year, track, session, driver"); err != nil {
		return nil, err
	}
	owner := e.Args[0]
	ref, err := parseRef(e.Args[1:5])
	if err != nil {
		return nil, err
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	if _, ok := s.deps.Sessions.Debug(owner); ok {
		return nil, fmt.Errorf("%w: %s", session.ErrSessionExists, owner)
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	factory, err := s.mappingFactory(ctx, ref.Track)
	if err != nil {
		return nil, err
	}
	renderer, closer, err := s.deps.Renderers(owner, ref)
	if err != nil {
		return nil, fmt.Errorf("creating renderer: %w", err)
	}
	dc, err := playback.NewDebugController(ref, s.deps.Origin, playback.Deps{
		Telemetry: s.deps.Provider,
		Renderer:  renderer,
		Mapping:   factory,
		Logger:    s.deps.Logger.With("owner", owner),
	})
	if err != nil {
		closeRenderer(s.logger, closer)
		return nil, err
	}
	ds := &debugSession{DebugController: dc, closer: closer, logger: s.logger}
	if err := s.deps.Sessions.StartDebug(owner, ds); err != nil {
		ds.Stop()
		return nil, err
	}
	if err := dc.Initialize(ctx); err != nil {
		_ = s.deps.Sessions.StopDebug(owner)
		return nil, err
	}
	return fmt.Sprintf("debug session started: %s, %d samples", ref, dc.Remaining()), nil
}

// DebugNext advances an owner's debug session by one sample. Args: owner.
func (s *Service) DebugNext(e dispatcher.Event) (any, error) {
	if err := requireArgs(e, 1, "owner"); err != nil {
		return nil, err
	}
	owner := e.Args[0]
	st, ok := s.deps.Sessions.Debug(owner)
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrNoSession, owner)
	}

	step, err := st.Next()
	if errors.Is(err, playback.ErrLapExhausted) {
		_ = s.deps.Sessions.StopDebug(owner)
		return "end of lap reached, debug session stopped", nil
	}
	if err != nil {
		return nil, err
	}

	x, y := step.Raw.RawXY()
	return fmt.Sprintf("step %d: raw (%.4f, %.4f) -> (%.3f, %.3f, %.3f) yaw %.2f, %d remaining",
		step.Index, x, y, step.Position.X, step.Position.Y, step.Position.Z, step.Yaw, st.Remaining()), nil
}

// StopDebug ends an owner's debug session. Args: owner.
func (s *Service) StopDebug(e dispatcher.Event) (any, error) {
	if err := requireArgs(e, 1, "owner"); err != nil {
		return nil, err
	}
	if err := s.deps.Sessions.StopDebug(e.Args[0]); err != nil {
		return nil, err
	}
	return "debug session stopped", nil
}

// TrackList lists the scanned tracks and the ones with a cached centerline.
func (s *Service) TrackList(dispatcher.Event) (any, error) {
	ctx, cancel := s.commandContext()
	defer cancel()

	tracks, err := s.deps.Store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tracks: %w", err)
	}
	if len(tracks) == 0 {
		return "no tracks scanned", nil
	}
	out := "tracks: " + strings.Join(tracks, ", ")
	if cached := s.deps.Centerlines.Tracks(); len(cached) > 0 {
		out += " (cached: " + strings.Join(cached, ", ") + ")"
	}
	return out, nil
}

// TrackClearCache drops cached centerlines, for one track when given.
func (s *Service) TrackClearCache(e dispatcher.Event) (any, error) {
	if track := e.Arg(0); track != "" {
		s.deps.Centerlines.Invalidate(track)
		return "cleared centerline of " + trackstore.NormalizeTrack(track), nil
	}
	n := s.deps.Centerlines.Clear()
	return fmt.Sprintf("cleared %d cached centerlines", n), nil
}

func readPointsFile(path string) ([]core.Vec3, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	points, err := trackstore.ReadPointsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return points, nil
}

// TrackScan orders two boundary sample files into edges and saves them.
// Args: track, left CSV, right CSV.
func (s *Service) TrackScan(e dispatcher.Event) (any, error) {
	if err := requireArgs(e, 3, "track, left file, right file"); err != nil {
		return nil, err
	}
	track := trackstore.NormalizeTrack(e.Args[0])
	left, err := readPointsFile(e.Args[1])
	if err != nil {
		return nil, err
	}
	right, err := readPointsFile(e.Args[2])
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	res, err := trackstore.ScanEdges(ctx, left, right)
	if err != nil {
		return nil, err
	}
	if err := s.deps.Store.Save(ctx, res.Boundaries(track)); err != nil {
		return nil, fmt.Errorf("saving %s: %w", track, err)
	}
	s.deps.Centerlines.Invalidate(track)

	out := fmt.Sprintf("scanned %s: left %.1f (%d points), right %.1f (%d points)",
		track, res.Left.TotalLength(), len(res.Left.Points()), res.Right.TotalLength(), len(res.Right.Points()))
	if res.Warning != "" {
		s.logger.Warn("Track scan warning", "track", track, "warning", res.Warning)
		out += "; warning: " + res.Warning
	}
	return out, nil
}

func (s *Service) centerlinePath(track string) string {
	return filepath.Join(s.deps.Export.Dir, track+"_centerline.gpx")
}

// TrackCenterline samples a scanned track's centerline and its edges and
// writes them as GPX tracks. "clear" removes the written file.
// Args: track, optional sample count or "clear", optional output path.
func (s *Service) TrackCenterline(e dispatcher.Event) (any, error) {
	if err := requireArgs(e, 1, "track"); err != nil {
		return nil, err
	}
	track := trackstore.NormalizeTrack(e.Args[0])
	path := e.Arg(2)
	if path == "" {
		path = s.centerlinePath(track)
	}

	if strings.EqualFold(e.Arg(1), "clear") {
		if err := os.Remove(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "no centerline export for " + track, nil
			}
			return nil, err
		}
		return "removed " + path, nil
	}

	samples := DefaultCenterlineSamples
	if arg := e.Arg(1); arg != "" {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 2 {
			return nil, fmt.Errorf("%w: samples %q", ErrArgs, arg)
		}
		samples = n
	}
	anchor, ok := s.deps.Export.Anchors[track]
	if !ok {
		return nil, fmt.Errorf("no export anchor configured for track %q", track)
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	cl, err := s.deps.Centerlines.Get(ctx, track)
	if err != nil {
		return nil, err
	}
	points := make([]export.CenterlineSample, samples)
	for i := range points {
		p := float64(i) / float64(samples)
		center := cl.PositionAtPercent(p)
		width := cl.TrackWidthAtPercent(p)
		offset := cl.NormalAtPercent(p).Scale(width / 2)
		points[i] = export.CenterlineSample{
			Center: center,
			Left:   center.Add(offset),
			Right:  center.Sub(offset),
			Width:  width,
		}
	}

	geo, err := export.NewGeoreferencer(anchor, s.deps.Origin, s.deps.Export.MetersPerUnit)
	if err != nil {
		return nil, err
	}
	if err := export.SaveCenterlineGPX(path, track, points, geo); err != nil {
		return nil, err
	}
	return fmt.Sprintf("exported %d centerline samples of %s (length %.1f) to %s", samples, track, cl.TotalLength(), path), nil
}

// ExportGPX maps one lap and writes it as a GPX track.
// Args: year, track, session, driver, lap, optional output path.
func (s *Service) ExportGPX(e dispatcher.Event) (any, error) {
	if err := requireArgs(e, 5, "year, track, session, driver, lap"); err != nil {
		return nil, err
	}
	ref, err := parseRef(e.Args[0:4])
	if err != nil {
		return nil, err
	}
	if ref.Lap, err = strconv.Atoi(e.Args[4]); err != nil {
		return nil, fmt.Errorf("%w: lap %q", ErrArgs, e.Args[4])
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	anchor, ok := s.deps.Export.Anchors[ref.Track]
	if !ok {
		return nil, fmt.Errorf("no export anchor configured for track %q", ref.Track)
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	samples, err := s.deps.Provider.LapTelemetry(ctx, ref)
	if err != nil {
		return nil, err
	}
	factory, err := s.mappingFactory(ctx, ref.Track)
	if err != nil {
		return nil, err
	}
	strategy, err := factory(s.deps.Origin)
	if err != nil {
		return nil, err
	}
	timeline := playback.NewSessionTimeline(nil)
	if err := timeline.BuildFromTelemetry(samples, strategy); err != nil {
		return nil, err
	}
	points := make([]playback.TimelinePoint, timeline.Len())
	for i := range points {
		points[i] = timeline.Point(i)
	}

	geo, err := export.NewGeoreferencer(anchor, s.deps.Origin, s.deps.Export.MetersPerUnit)
	if err != nil {
		return nil, err
	}

	start := s.now().UTC()
	if info, err := s.deps.Provider.SessionInfo(ctx, ref.Year, ref.Track, ref.Session); err == nil && !info.Date.IsZero() {
		start = info.Date
	}

	path := e.Arg(5)
	if path == "" {
		name := fmt.Sprintf("%d_%s_%s_%s_lap%d.gpx", ref.Year, ref.Track, ref.Session, ref.Driver, ref.Lap)
		path = filepath.Join(s.deps.Export.Dir, name)
	}
	if err := export.SaveLapGPX(path, ref, points, start, geo); err != nil {
		return nil, err
	}
	return fmt.Sprintf("exported %d points to %s", len(points), path), nil
}

// Drivers lists the drivers of a session. Args: year, track, session.
func (s *Service) Drivers(e dispatcher.Event) (any, error) {
	if err := requireArgs(e, 3, "year, track, session"); err != nil {
		return nil, err
	}
	ref, err := parseSession(e.Args)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.commandContext()
	defer cancel()

	drivers, err := s.deps.Provider.Drivers(ctx, ref.Year, ref.Track, ref.Session)
	if err != nil {
		return nil, err
	}
	if len(drivers) == 0 {
		return "no drivers", nil
	}
	names := make([]string, len(drivers))
	for i, d := range drivers {
		names[i] = fmt.Sprintf("%s (%d) %s", d.Abbreviation, d.Number, d.Name)
	}
	return strings.Join(names, ", "), nil
}

// SetLogLevel changes the log level at runtime. Args: level.
func (s *Service) SetLogLevel(e dispatcher.Event) (any, error) {
	if err := requireArgs(e, 1, "level"); err != nil {
		return nil, err
	}
	if s.deps.LogManager == nil {
		return nil, errors.New("log manager not configured")
	}
	level := s.deps.LogManager.SetLevel(e.Args[0])
	return "log level set to " + level.String(), nil
}
