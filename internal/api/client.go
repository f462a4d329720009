// internal/api/client.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/raceplayback/server/pkg/core"
)

var (
	// ErrNotFound is returned when the provider has no such session or lap.
	ErrNotFound = errors.New("not found")
	// ErrEmptyTelemetry is returned when a lap decodes to zero samples.
	ErrEmptyTelemetry = errors.New("empty telemetry")
)

const dateLayout = "2006-01-02 15:04:05"

// Config holds provider client settings.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
}

// Client fetches session metadata and lap telemetry from the telemetry
// provider.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
	backoff    time.Duration
	logger     *slog.Logger
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.URL, e.StatusCode)
}

// Is lets a 404 match ErrNotFound.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// New creates a new provider client.
func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retries:    cfg.Retries,
		backoff:    cfg.RetryBackoff,
		logger:     logger,
	}
}

func (c *Client) sessionURL(year int, track string, session core.SessionType, endpoint ...string) string {
	parts := []string{
		c.baseURL,
		fmt.Sprint(year),
		url.PathEscape(strings.ToLower(track)),
		session.PathSegment(),
	}
	for _, e := range endpoint {
		parts = append(parts, url.PathEscape(e))
	}
	return strings.Join(parts, "/")
}

// Healthcheck checks that the provider answers.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// getJSON fetches rawURL into out, retrying network errors and 5xx
// responses with linear backoff.
func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			wait := c.backoff * time.Duration(attempt)
			c.logger.Warn("Retrying provider request", "url", rawURL, "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		body, err := c.fetch(ctx, rawURL)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("failed to decode %s: %w", rawURL, err)
			}
			return nil
		}
		lastErr = err

		var se *StatusError
		if errors.As(err, &se) && se.StatusCode < http.StatusInternalServerError {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("giving up after %d attempts: %w", c.retries+1, lastErr)
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

type sessionInfoJSON struct {
	CircuitName  string `json:"circuit_name"`
	Date         string `json:"date"`
	GrandPrix    string `json:"grand_prix"`
	NumberOfLaps int    `json:"number_of_laps"`
	Year         int    `json:"year"`
}

// SessionInfo fetches the metadata of a session.
func (c *Client) SessionInfo(ctx context.Context, year int, track string, session core.SessionType) (core.SessionInfo, error) {
	if year < core.MinSupportedYear {
		return core.SessionInfo{}, fmt.Errorf("%w: %d", core.ErrUnsupportedYear, year)
	}

	var raw sessionInfoJSON
	if err := c.getJSON(ctx, c.sessionURL(year, track, session, "info"), &raw); err != nil {
		return core.SessionInfo{}, err
	}

	info := core.SessionInfo{
		CircuitName:  raw.CircuitName,
		GrandPrix:    raw.GrandPrix,
		NumberOfLaps: raw.NumberOfLaps,
		SessionType:  session,
		Year:         raw.Year,
	}
	if raw.Date != "" {
		date, err := time.Parse(dateLayout, raw.Date)
		if err != nil {
			c.logger.Warn("Ignoring unparseable session date", "date", raw.Date, "error", err)
		} else {
			info.Date = date
		}
	}
	if info.Year == 0 {
		info.Year = year
	}
	return info, nil
}

// LapTelemetry fetches one lap of one driver. The telemetry of every lap
// object in the response is concatenated.
func (c *Client) LapTelemetry(ctx context.Context, ref core.LapRef) ([]core.TelemetryPoint, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	var laps []lapJSON
	u := c.sessionURL(ref.Year, ref.Track, ref.Session, "telemetry", strings.ToUpper(ref.Driver), fmt.Sprint(ref.Lap))
	if err := c.getJSON(ctx, u, &laps); err != nil {
		return nil, err
	}

	var points []core.TelemetryPoint
	for _, lap := range laps {
		for _, s := range lap.Telemetry {
			points = append(points, s.point())
		}
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyTelemetry, ref)
	}
	c.logger.Debug("Fetched lap telemetry", "lap", ref.String(), "points", len(points))
	return points, nil
}

// Driver is a session participant.
type Driver struct {
	Abbreviation string `json:"abbreviation"`
	Name         string `json:"name"`
	Number       int    `json:"code"`
}

// Drivers lists the drivers of a session.
func (c *Client) Drivers(ctx context.Context, year int, track string, session core.SessionType) ([]Driver, error) {
	var drivers []Driver
	if err := c.getJSON(ctx, c.sessionURL(year, track, session, "drivers"), &drivers); err != nil {
		return nil, err
	}
	return drivers, nil
}
