package render

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/raceplayback/server/internal/playback"
	"github.com/raceplayback/server/pkg/core"
)

// Options selects the renderers built for every session.
type Options struct {
	Stream      StreamConfig   // skipped when URL is empty
	Recorder    RecorderConfig // skipped when OutputDir is empty
	LogRenderer bool
}

// Enabled reports whether any renderer besides the log renderer is configured.
func (o Options) Enabled() bool {
	return o.Stream.URL != "" || o.Recorder.OutputDir != ""
}

// Build composes the configured renderers for owner's session of ref. The
// returned closer releases every connection once playback is over. When
// nothing is configured the log renderer is used alone.
func Build(opts Options, owner string, ref core.LapRef, logger *slog.Logger) (playback.Renderer, io.Closer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("owner", owner)

	var (
		renderers Multi
		closers   closerList
	)
	if opts.LogRenderer || !opts.Enabled() {
		renderers = append(renderers, NewLogRenderer(logger))
	}
	if opts.Stream.URL != "" {
		sr := NewStreamRenderer(opts.Stream, logger)
		if err := sr.Connect(); err != nil {
			return nil, nil, fmt.Errorf("connecting to render server: %w", err)
		}
		renderers = append(renderers, sr)
		closers = append(closers, sr)
	}
	if opts.Recorder.OutputDir != "" {
		rc := opts.Recorder
		rc.Label = fmt.Sprintf("%s_%d_%s_%s_%s", owner, ref.Year, ref.Track, ref.Session, ref.Driver)
		renderers = append(renderers, NewRecorder(rc))
	}

	if len(renderers) == 1 {
		return renderers[0], closers, nil
	}
	return renderers, closers, nil
}

type closerList []io.Closer

func (l closerList) Close() error {
	var errs []error
	for _, c := range l {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
