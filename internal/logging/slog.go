package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName is the instrumentation scope of the otel log bridge.
const ServiceName = "raceplayback"

// osStdout is the console sink, replaceable in tests.
var osStdout io.Writer = os.Stdout

// SlogManager owns the process logger and its optional OTel bridge.
type SlogManager struct {
	logger *slog.Logger
	level  slog.LevelVar

	logProvider *sdklog.LoggerProvider
}

// NewSlogManager creates a manager; Logger returns slog.Default until Setup.
func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

// parseLevel converts a level name to slog.Level, defaulting to info.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup builds the logger. Records go to file when it is non-nil and to
// stdout otherwise, plus the OTel bridge when provider is non-nil. Every
// record gets the attributes returned by dynamic.
func (m *SlogManager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider, dynamic ContextProvider) {
	m.level.Set(parseLevel(level))
	m.logProvider = provider

	opts := &slog.HandlerOptions{
		Level: &m.level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	sink := file
	if sink == nil {
		sink = osStdout
	}
	handlers := []slog.Handler{slog.NewTextHandler(sink, opts)}
	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider)))
	}

	var h slog.Handler = NewMultiHandler(handlers...)
	if dynamic != nil {
		h = NewContextHandler(h, dynamic)
	}

	m.logger = slog.New(h)
	m.logger.Info("Logging initialized", "level", m.level.Level().String())
}

// SetLevel changes the level of the console/file handler at runtime.
func (m *SlogManager) SetLevel(level string) slog.Level {
	lvl := parseLevel(level)
	m.level.Set(lvl)
	return lvl
}

// Logger returns the configured logger.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces pending OTel records out.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider != nil {
		return m.logProvider.ForceFlush(ctx)
	}
	return nil
}
