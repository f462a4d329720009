package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raceplayback/server/internal/api"
	"github.com/raceplayback/server/internal/config"
	"github.com/raceplayback/server/internal/dispatcher"
	"github.com/raceplayback/server/internal/export"
	"github.com/raceplayback/server/internal/handlers"
	"github.com/raceplayback/server/internal/influx"
	"github.com/raceplayback/server/internal/logging"
	"github.com/raceplayback/server/internal/monitor"
	intOtel "github.com/raceplayback/server/internal/otel"
	"github.com/raceplayback/server/internal/playback"
	"github.com/raceplayback/server/internal/render"
	"github.com/raceplayback/server/internal/session"
	"github.com/raceplayback/server/internal/trackstore"
	"github.com/raceplayback/server/pkg/core"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"
)

// ConfigDirEnv overrides the directory the config file is read from.
const ConfigDirEnv = "RACEPLAYBACK_CONFIG_DIR"

var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// ZLogger is the zerolog logger shared by the dispatcher and the stores
	ZLogger zerolog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	LogFilePath string
	LogFile     *os.File

	SessionStartTime time.Time = time.Now()

	// Services
	apiClient       *api.Client
	trackStore      trackstore.Store
	centerlines     *trackstore.CenterlineCache
	influxManager   *influx.Manager
	scheduler       *playback.Loop
	registry        *session.Registry
	monitorService  *monitor.Service
	eventDispatcher *dispatcher.Dispatcher
	handlerService  *handlers.Service
)

func main() {
	configDir := os.Getenv(ConfigDirEnv)
	if configDir == "" {
		configDir = "."
	}
	if err := setup(configDir); err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := 0
	if args := os.Args[1:]; len(args) > 0 {
		code = runOnce(args, os.Stdout)
	} else {
		Logger.Info("Reading commands from stdin")
		readCommands(ctx, eventDispatcher, os.Stdin, os.Stdout)
	}
	shutdown()
	os.Exit(code)
}

func setup(configDir string) error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil, nil)
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "dir", configDir)
	}

	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}
	LogFilePath = logging.LogFilePath(logsDir, logging.ServiceName, SessionStartTime)
	if _, err := os.Stat(LogFilePath); err == nil {
		os.Rename(LogFilePath, LogFilePath+".old")
	}
	var err error
	LogFile, err = os.OpenFile(LogFilePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", LogFilePath)
		LogFile = nil
	}

	setupOTel()

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	logLevel := viper.GetString("logLevel")
	if LogFile != nil {
		SlogManager.Setup(LogFile, logLevel, otelLogProvider, dynamicAttrs)
		ZLogger = logging.NewZerolog(LogFile, logLevel)
	} else {
		SlogManager.Setup(nil, logLevel, otelLogProvider, dynamicAttrs)
		ZLogger = logging.NewZerolog(os.Stdout, logLevel)
	}
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFilePath, "version", CurrentVersion, "buildDate", BuildDate)

	if err := setupStorage(); err != nil {
		return err
	}
	observer := setupInflux()

	apiClient = api.New(config.GetAPIConfig(), Logger)
	go checkProviderStatus()

	scheduler = playback.NewLoop(Logger)
	registry = session.NewRegistry(Logger)

	monitorService = monitor.NewService(monitor.Dependencies{
		Sessions:   registry,
		Logger:     Logger,
		StatusFile: viper.GetString("statusFile"),
		Interval:   config.GetDuration("monitorInterval", monitor.DefaultInterval),
	})
	monitorService.Start()

	eventDispatcher, err = dispatcher.New(logging.NewDispatcherLogger(ZLogger))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	deps, err := handlerDependencies(observer)
	if err != nil {
		return err
	}
	handlerService = handlers.NewService(deps)
	handlerService.Register(eventDispatcher)
	Logger.Info("Handlers registered", "commands", eventDispatcher.Commands())
	return nil
}

func setupOTel() {
	otelCfg := config.GetOTelConfig()
	if !otelCfg.Enabled {
		return
	}
	var w io.Writer
	if LogFile != nil {
		w = LogFile
	}
	p, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    w,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
		Metrics:      otelCfg.Metrics,
	})
	if err != nil {
		Logger.Error("Failed to initialize OTel provider", "error", err)
		return
	}
	OTelProvider = p
	if otelCfg.Endpoint != "" {
		Logger.Info("OTel provider initialized", "file", LogFilePath, "endpoint", otelCfg.Endpoint)
	} else {
		Logger.Info("OTel provider initialized", "file", LogFilePath)
	}
}

// dynamicAttrs are added to every log record.
func dynamicAttrs() []slog.Attr {
	attrs := []slog.Attr{}
	if registry != nil {
		attrs = append(attrs, slog.Int("activeSessions", registry.Count()))
	}
	if monitorService != nil {
		attrs = append(attrs, slog.Bool("monitorRunning", monitorService.IsRunning()))
	}
	return attrs
}

func handlerDependencies(observer playback.Observer) (handlers.Dependencies, error) {
	mappingCfg, err := config.GetMappingConfig()
	if err != nil {
		return handlers.Dependencies{}, err
	}
	origin, err := config.GetOrigin()
	if err != nil {
		return handlers.Dependencies{}, err
	}
	exportCfg, err := config.GetExportConfig()
	if err != nil {
		return handlers.Dependencies{}, err
	}
	anchors := make(map[string]export.Anchor, len(exportCfg.Anchors))
	for track, a := range exportCfg.Anchors {
		anchors[track] = export.Anchor{Lat: a.Lat, Lon: a.Lon}
	}

	renderOpts := config.GetRenderConfig()
	return handlers.Dependencies{
		Provider:    apiClient,
		Store:       trackStore,
		Centerlines: centerlines,
		Sessions:    registry,
		Scheduler:   scheduler,
		Renderers: func(owner string, ref core.LapRef) (playback.Renderer, io.Closer, error) {
			return render.Build(renderOpts, owner, ref, Logger)
		},
		Observer:   observer,
		LogManager: SlogManager,
		Playback:   config.GetPlaybackConfig(),
		Mapping:    mappingCfg,
		Origin:     origin,
		Export: handlers.ExportSettings{
			Dir:           exportCfg.Dir,
			MetersPerUnit: exportCfg.MetersPerUnit,
			Anchors:       anchors,
		},
		Version: CurrentVersion,
		Logger:  Logger,
	}, nil
}

// checkProviderStatus logs whether the telemetry provider answers.
func checkProviderStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiClient.Healthcheck(ctx); err != nil {
		Logger.Info("Telemetry provider is offline", "error", err)
		return
	}
	Logger.Info("Telemetry provider is online")
}

func shutdown() {
	Logger.Info("Shutting down...")

	// queued commands may still start sessions
	if eventDispatcher != nil {
		eventDispatcher.Close()
	}
	if registry != nil {
		n := registry.StopAll()
		Logger.Info("Stopped sessions", "count", n)
	}
	if monitorService != nil {
		monitorService.Stop()
	}
	if scheduler != nil {
		scheduler.Close()
	}
	if influxManager != nil {
		if err := influxManager.Close(); err != nil {
			Logger.Warn("Failed to close InfluxDB client", "error", err)
		}
	}
	if trackStore != nil {
		if err := trackStore.Close(); err != nil {
			Logger.Warn("Failed to close track store", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to flush logs: %v\n", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to shut down OTel: %v\n", err)
		}
	}
	if LogFile != nil {
		LogFile.Close()
	}
}
