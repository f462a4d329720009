package render

import (
	"errors"
	"log/slog"

	"github.com/raceplayback/server/internal/playback"
	"github.com/raceplayback/server/pkg/core"
)

// ErrNotPlaced is returned when moving a car that was never placed.
var ErrNotPlaced = errors.New("object not placed")

// LogRenderer logs every render call at debug level.
type LogRenderer struct {
	logger *slog.Logger
}

// NewLogRenderer creates a renderer writing to logger; nil means slog.Default().
func NewLogRenderer(logger *slog.Logger) *LogRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRenderer{logger: logger.With("renderer", "log")}
}

func (r *LogRenderer) PlaceObject(obj playback.Object, pos core.Vec3, yaw float64) error {
	r.logger.Debug("Place object", "driver", obj.Driver, "compound", obj.Compound, "position", pos, "yaw", yaw)
	return nil
}

func (r *LogRenderer) UpdateObject(pos core.Vec3, yaw float64) error {
	r.logger.Debug("Update object", "position", pos, "yaw", yaw)
	return nil
}

func (r *LogRenderer) SetAuxiliaryState(aux playback.AuxState) error {
	r.logger.Debug("Aux state", "drsOpen", aux.DRSOpen, "steering", aux.Steering)
	return nil
}

func (r *LogRenderer) RemoveObject() error {
	r.logger.Debug("Remove object")
	return nil
}

// Multi fans every call out to several renderers and joins their errors.
type Multi []playback.Renderer

func (m Multi) PlaceObject(obj playback.Object, pos core.Vec3, yaw float64) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.PlaceObject(obj, pos, yaw))
	}
	return errors.Join(errs...)
}

func (m Multi) UpdateObject(pos core.Vec3, yaw float64) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.UpdateObject(pos, yaw))
	}
	return errors.Join(errs...)
}

func (m Multi) SetAuxiliaryState(aux playback.AuxState) error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.SetAuxiliaryState(aux))
	}
	return errors.Join(errs...)
}

func (m Multi) RemoveObject() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.RemoveObject())
	}
	return errors.Join(errs...)
}
