// Package holodex fetches channel videos from the Holodex API.
package holodex

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

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"livewatch/internal/presence"
)

const (
	// DefaultBaseURL is the public Holodex v2 API.
	DefaultBaseURL = "https://holodex.net/api/v2"
	// DefaultTimeout bounds a single request.
	DefaultTimeout = 10 * time.Second

	apiKeyHeader = "X-APIKEY"
	maxBodyBytes = 4 << 20
)

var (
	// ErrUnauthorized is returned when the API key is missing or rejected.
	ErrUnauthorized = errors.New("holodex: unauthorized")
	// ErrRateLimited is returned when Holodex answers 429.
	ErrRateLimited = errors.New("holodex: rate limited")
	// ErrCircuitOpen is returned without contacting Holodex while the breaker is open.
	ErrCircuitOpen = errors.New("holodex: circuit open")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("holodex: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("holodex: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Unwrap maps well-known statuses onto sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	case http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return nil
	}
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration

	// BreakerFailures consecutive failures open the circuit. Zero disables the breaker.
	BreakerFailures uint
	// BreakerDelay is how long the circuit stays open before a trial request.
	BreakerDelay time.Duration

	// OnBreakerChange is called with the new state ("closed", "half-open", "open").
	OnBreakerChange func(state string)
}

// Client is a Holodex API client. It implements presence.Fetcher.
type Client struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	executor failsafe.Executor[[]presence.VideoRecord]
	log      *slog.Logger
}

// NewClient returns a Client for cfg. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpClient,
		log:     log,
	}
	if cfg.BreakerFailures > 0 {
		c.executor = failsafe.With(newBreaker(cfg, log))
	}
	return c
}

func newBreaker(cfg Config, log *slog.Logger) circuitbreaker.CircuitBreaker[[]presence.VideoRecord] {
	delay := cfg.BreakerDelay
	if delay <= 0 {
		delay = time.Minute
	}
	return circuitbreaker.NewBuilder[[]presence.VideoRecord]().
		WithFailureThreshold(cfg.BreakerFailures).
		WithDelay(delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			to := breakerStateName(event.NewState)
			log.Warn("holodex circuit breaker state change",
				slog.String("from_state", breakerStateName(event.OldState)),
				slog.String("to_state", to))
			if cfg.OnBreakerChange != nil {
				cfg.OnBreakerChange(to)
			}
		}).
		Build()
}

func breakerStateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	default:
		return "closed"
	}
}

// Fetch returns the videos of channelID as presence records.
func (c *Client) Fetch(ctx context.Context, channelID string) ([]presence.VideoRecord, error) {
	if c.executor == nil {
		return c.fetch(ctx, channelID)
	}

	records, err := c.executor.WithContext(ctx).Get(func() ([]presence.VideoRecord, error) {
		return c.fetch(ctx, channelID)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, ErrCircuitOpen
	}
	return records, err
}

func (c *Client) fetch(ctx context.Context, channelID string) ([]presence.VideoRecord, error) {
	endpoint := c.baseURL + "/channels/" + url.PathEscape(channelID) + "/videos"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("holodex: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("holodex: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("holodex: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet(body)}
	}

	var videos []video
	if err := json.Unmarshal(body, &videos); err != nil {
		return nil, fmt.Errorf("holodex: decode videos: %w", err)
	}

	c.log.Debug("holodex videos fetched",
		slog.String("channel_id", channelID),
		slog.Int("count", len(videos)))
	return toRecords(videos), nil
}

func snippet(b []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		s = s[:limit]
	}
	return s
}
