package capi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/dekoor/whatsapp-crm-backend/internal/metrics"
)

const defaultBaseURL = "https://graph.facebook.com/v19.0"

// UserData holds hashed user identifiers. Fields follow the Conversions API
// schema; every value is a hex SHA-256, never raw PII.
type UserData struct {
	Ph []string `json:"ph,omitempty"`
	Fn string   `json:"fn,omitempty"`
	Em []string `json:"em,omitempty"`
}

// Event is one conversion event in the API's envelope.
type Event struct {
	EventName    string         `json:"event_name"`
	EventTime    int64          `json:"event_time"`
	EventID      string         `json:"event_id"`
	ActionSource string         `json:"action_source"`
	UserData     UserData       `json:"user_data"`
	CustomData   map[string]any `json:"custom_data,omitempty"`
}

type envelope struct {
	Data []Event `json:"data"`
}

// Client dispatches conversion events to the Meta Conversions API.
type Client struct {
	logger  *slog.Logger
	baseURL string
	pixelID string
	token   string
	http    *http.Client
	metrics *metrics.Metrics
}

// Config holds Conversions API client configuration.
type Config struct {
	BaseURL string
	PixelID string
	Token   string
	Timeout time.Duration
}

// New creates a Conversions API client.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		logger:  logger.With("component", "capi"),
		baseURL: base,
		pixelID: cfg.PixelID,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		metrics: m,
	}
}

// Configured reports whether credentials are present. An unconfigured client
// must not be asked to dispatch.
func (c *Client) Configured() bool {
	return c.pixelID != "" && c.token != ""
}

// SendEvents posts the events envelope. Any network error or non-2xx
// response is returned to the caller, which decides whether the
// corresponding idempotency flag may be set.
func (c *Client) SendEvents(ctx context.Context, events []Event) error {
	if !c.Configured() {
		return fmt.Errorf("conversions api credentials not configured")
	}

	payload, err := json.Marshal(envelope{Data: events})
	if err != nil {
		return fmt.Errorf("marshal events: %w", err)
	}

	url := fmt.Sprintf("%s/%s/events", c.baseURL, c.pixelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.CAPIRequests.WithLabelValues("error").Inc()
		}
		return fmt.Errorf("conversions api request: %w", err)
	}
	defer res.Body.Close()

	statusLabel := fmt.Sprintf("%d", res.StatusCode)
	if c.metrics != nil {
		c.metrics.CAPIRequests.WithLabelValues(statusLabel).Inc()
		c.metrics.CAPILatency.WithLabelValues(statusLabel).Observe(time.Since(start).Seconds())
	}

	if res.StatusCode >= 400 {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("conversions api error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	c.logger.Debug("conversion events dispatched", "count", len(events))
	return nil
}
