package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raceplayback/server/internal/config"
	"github.com/raceplayback/server/internal/influx"
	"github.com/raceplayback/server/internal/playback"
	"github.com/raceplayback/server/internal/trackstore"
	"github.com/spf13/viper"
)

func setupStorage() error {
	storeCfg := config.GetTrackStoreConfig()

	store, err := trackstore.New(storeCfg, ZLogger.With().Str("component", "trackstore").Logger())
	if err != nil {
		Logger.Error("Failed to create track store", "type", storeCfg.Type, "error", err)
		return fmt.Errorf("failed to create track store: %w", err)
	}
	trackStore = store
	centerlines = trackstore.NewCenterlineCache(trackStore, viper.GetInt("mapping.centerlineSteps"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	tracks, err := trackStore.List(ctx)
	if err != nil {
		Logger.Warn("Failed to list scanned tracks", "error", err)
	}
	Logger.Info("Track store initialized", "type", storeCfg.Type, "tracks", tracks)
	return nil
}

// setupInflux connects the optional telemetry observer. A nil observer
// means points are not recorded.
func setupInflux() playback.Observer {
	influxCfg := config.GetInfluxConfig()
	if !influxCfg.Enabled {
		return nil
	}

	log := ZLogger.With().Str("component", "influx").Logger()
	influxManager = influx.NewManager(influxCfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := influxManager.Connect(ctx); err != nil {
		if !errors.Is(err, influx.ErrDisabled) {
			Logger.Error("Failed to set up InfluxDB, telemetry points will not be recorded", "error", err)
		}
		influxManager.Close()
		influxManager = nil
		return nil
	}
	return influx.NewObserver(influxManager, log)
}
