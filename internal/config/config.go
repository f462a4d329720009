// Package config loads raceplayback.cfg.json and environment overrides
// through viper and exposes typed views of each section.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raceplayback/server/internal/api"
	"github.com/raceplayback/server/internal/influx"
	"github.com/raceplayback/server/internal/mapping"
	"github.com/raceplayback/server/internal/playback"
	"github.com/raceplayback/server/internal/render"
	"github.com/raceplayback/server/internal/trackstore"
	"github.com/raceplayback/server/pkg/core"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "raceplayback.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. RACEPLAYBACK_API_BASEURL.
const EnvPrefix = "RACEPLAYBACK"

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
	Metrics      bool
}

// ExportConfig holds GPX export settings.
type ExportConfig struct {
	Dir           string
	MetersPerUnit float64
	Anchors       map[string]Anchor
}

// Anchor is the geographic location of a track's world origin.
type Anchor struct {
	Lat float64 `mapstructure:"lat"`
	Lon float64 `mapstructure:"lon"`
}


// Load sets defaults, binds environment overrides and reads the config file
// from configDir when it exists.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.SetConfigType("json")
	viper.AddConfigPath(configDir)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("statusFile", "")
	viper.SetDefault("monitorInterval", "5s")

	viper.SetDefault("api.baseUrl", "https://raceplayback.com/api/v1/sessions")
	viper.SetDefault("api.timeout", "30s")
	viper.SetDefault("api.retries", 3)
	viper.SetDefault("api.retryBackoff", "500ms")

	viper.SetDefault("playback.height", 42.0)
	viper.SetDefault("playback.fallbackLaps", playback.DefaultFallbackLaps)
	viper.SetDefault("playback.countdownTicks", playback.DefaultCountdownTicks)
	viper.SetDefault("playback.countdownInterval", "1s")
	viper.SetDefault("playback.tickInterval", "50ms")
	viper.SetDefault("playback.steeringGain", playback.DefaultSteeringGain)
	viper.SetDefault("playback.steeringLimit", playback.DefaultSteeringLimit)
	viper.SetDefault("playback.origin", []float64{0, 42, 0})

	viper.SetDefault("mapping.mode", string(mapping.ModeAffine))
	viper.SetDefault("mapping.scale", mapping.DefaultScale)
	viper.SetDefault("mapping.rotationOffset", 0.0)
	viper.SetDefault("mapping.curvatureAdaptive", true)
	viper.SetDefault("mapping.maxCurvature", 0.1)
	viper.SetDefault("mapping.centerlineSteps", 1000)

	viper.SetDefault("trackstore.type", "file")
	viper.SetDefault("trackstore.dir", "data/tracks")
	viper.SetDefault("trackstore.sqlitePath", "data/tracks.db")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "raceplayback")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.url", "http://localhost:8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "raceplayback")
	viper.SetDefault("influx.bucket", "playback")
	viper.SetDefault("influx.batchSize", 2500)
	viper.SetDefault("influx.flushInterval", "1s")
	viper.SetDefault("influx.backupPath", "influx_backup.log.gz")

	viper.SetDefault("render.websocket.url", "")
	viper.SetDefault("render.websocket.secret", "")
	viper.SetDefault("render.recorder.outputDir", "")
	viper.SetDefault("render.recorder.compress", true)
	viper.SetDefault("render.recorder.maxFrames", 200000)
	viper.SetDefault("render.log", true)

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "raceplayback")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
	viper.SetDefault("otel.metrics", false)

	viper.SetDefault("export.dir", "exports")
	viper.SetDefault("export.metersPerUnit", 1.0)
}

// duration parses key, falling back to def when unset or malformed.
func duration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil {
		return def
	}
	return d
}

func GetString(key string) string { return viper.GetString(key) }

func GetInt(key string) int { return viper.GetInt(key) }

func GetBool(key string) bool { return viper.GetBool(key) }

// GetDuration parses a duration value, returning def when it is unset or invalid.
func GetDuration(key string, def time.Duration) time.Duration { return duration(key, def) }

func GetAPIConfig() api.Config {
	return api.Config{
		BaseURL:      viper.GetString("api.baseUrl"),
		Timeout:      duration("api.timeout", 30*time.Second),
		Retries:      viper.GetInt("api.retries"),
		RetryBackoff: duration("api.retryBackoff", 500*time.Millisecond),
	}
}

// GetPlaybackConfig returns the controller tuning; Ref is left empty.
func GetPlaybackConfig() playback.Config {
	return playback.Config{
		FallbackLaps:      viper.GetInt("playback.fallbackLaps"),
		CountdownTicks:    viper.GetInt("playback.countdownTicks"),
		CountdownInterval: duration("playback.countdownInterval", playback.DefaultCountdownInterval),
		TickInterval:      duration("playback.tickInterval", playback.DefaultTickInterval),
		SteeringGain:      viper.GetFloat64("playback.steeringGain"),
		SteeringLimit:     viper.GetFloat64("playback.steeringLimit"),
	}
}

// GetMappingConfig returns the mapping settings; Height comes from
// playback.height.
func GetMappingConfig() (mapping.Config, error) {
	mode, err := mapping.ParseMode(viper.GetString("mapping.mode"))
	if err != nil {
		return mapping.Config{}, err
	}
	return mapping.Config{
		Mode:              mode,
		Scale:             viper.GetFloat64("mapping.scale"),
		RotationOffset:    viper.GetFloat64("mapping.rotationOffset"),
		Height:            viper.GetFloat64("playback.height"),
		CurvatureAdaptive: viper.GetBool("mapping.curvatureAdaptive"),
		MaxCurvature:      viper.GetFloat64("mapping.maxCurvature"),
	}, nil
}

func GetTrackStoreConfig() trackstore.Config {
	return trackstore.Config{
		Type:       strings.ToLower(viper.GetString("trackstore.type")),
		Dir:        viper.GetString("trackstore.dir"),
		SQLitePath: viper.GetString("trackstore.sqlitePath"),
		Postgres: trackstore.PostgresConfig{
			Host:     viper.GetString("db.host"),
			Port:     viper.GetString("db.port"),
			Username: viper.GetString("db.username"),
			Password: viper.GetString("db.password"),
			Database: viper.GetString("db.database"),
		},
	}
}

func GetInfluxConfig() influx.Config {
	return influx.Config{
		Enabled:       viper.GetBool("influx.enabled"),
		URL:           viper.GetString("influx.url"),
		Token:         viper.GetString("influx.token"),
		Org:           viper.GetString("influx.org"),
		Bucket:        viper.GetString("influx.bucket"),
		BatchSize:     viper.GetUint("influx.batchSize"),
		FlushInterval: duration("influx.flushInterval", time.Second),
		BackupPath:    viper.GetString("influx.backupPath"),
	}
}

func GetRenderConfig() render.Options {
	return render.Options{
		Stream: render.StreamConfig{
			URL:    viper.GetString("render.websocket.url"),
			Secret: viper.GetString("render.websocket.secret"),
		},
		Recorder: render.RecorderConfig{
			OutputDir:      viper.GetString("render.recorder.outputDir"),
			CompressOutput: viper.GetBool("render.recorder.compress"),
			MaxFrames:      viper.GetInt("render.recorder.maxFrames"),
		},
		LogRenderer: viper.GetBool("render.log"),
	}
}

func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: duration("otel.batchTimeout", 5*time.Second),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
		Metrics:      viper.GetBool("otel.metrics"),
	}
}

// GetExportConfig returns export settings with anchors keyed by lowercase
// track name.
func GetExportConfig() (ExportConfig, error) {
	cfg := ExportConfig{
		Dir:           viper.GetString("export.dir"),
		MetersPerUnit: viper.GetFloat64("export.metersPerUnit"),
		Anchors:       map[string]Anchor{},
	}
	var anchors map[string]Anchor
	if err := viper.UnmarshalKey("export.anchors", &anchors); err != nil {
		return ExportConfig{}, fmt.Errorf("invalid export anchors: %w", err)
	}
	for track, a := range anchors {
		cfg.Anchors[trackstore.NormalizeTrack(track)] = a
	}
	return cfg, nil
}

// GetOrigin returns playback.origin, the world position where lap 1 starts.
func GetOrigin() (core.Vec3, error) {
	var v []float64
	if err := viper.UnmarshalKey("playback.origin", &v); err != nil {
		return core.Vec3{}, fmt.Errorf("invalid playback.origin: %w", err)
	}
	if len(v) != 3 {
		return core.Vec3{}, fmt.Errorf("playback.origin needs 3 values, got %d", len(v))
	}
	return core.Vec3{X: v[0], Y: v[1], Z: v[2]}, nil
}
