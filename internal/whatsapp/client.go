package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dekoor/whatsapp-crm-backend/internal/metrics"
)

// Client wraps the WhatsApp Cloud (Graph) API for the one phone number this
// deployment serves.
type Client struct {
	logger        *slog.Logger
	baseURL       string
	token         string
	phoneNumberID string
	http          *http.Client
	metrics       *metrics.Metrics
}

// Config holds Graph API client configuration.
type Config struct {
	BaseURL       string
	GraphVersion  string
	Token         string
	PhoneNumberID string
	Timeout       time.Duration
}

// New creates a Graph API client.
func New(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		version := cfg.GraphVersion
		if version == "" {
			version = "v19.0"
		}
		base = "https://graph.facebook.com/" + version
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		logger:        logger.With("component", "whatsapp"),
		baseURL:       base,
		token:         cfg.Token,
		phoneNumberID: cfg.PhoneNumberID,
		http:          &http.Client{Timeout: timeout},
		metrics:       m,
	}
}

type textObj struct {
	Body string `json:"body"`
}

type mediaObj struct {
	Link    string `json:"link,omitempty"`
	Caption string `json:"caption,omitempty"`
}

type outboundMessage struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             *textObj  `json:"text,omitempty"`
	Image            *mediaObj `json:"image,omitempty"`
	Document         *mediaObj `json:"document,omitempty"`
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText sends a free-form text message and returns the provider-assigned
// message id (wamid).
func (c *Client) SendText(ctx context.Context, to, body string) (string, error) {
	return c.send(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textObj{Body: body},
	})
}

// SendMedia sends a media message by public link. fileType must be "image"
// or "document".
func (c *Client) SendMedia(ctx context.Context, to, fileURL, fileType string) (string, error) {
	msg := outboundMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             fileType,
	}
	switch fileType {
	case "image":
		msg.Image = &mediaObj{Link: fileURL}
	case "document":
		msg.Document = &mediaObj{Link: fileURL}
	default:
		return "", fmt.Errorf("unsupported file type %q", fileType)
	}
	return c.send(ctx, msg)
}

func (c *Client) send(ctx context.Context, msg outboundMessage) (string, error) {
	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	respBody, err := c.request(ctx, http.MethodPost, url, msg, "messages")
	if err != nil {
		return "", err
	}

	var resp sendResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	if len(resp.Messages) == 0 {
		return "", fmt.Errorf("send response carried no message id")
	}
	return resp.Messages[0].ID, nil
}

// MediaURL resolves a media id to the provider's short-lived download URL.
func (c *Client) MediaURL(ctx context.Context, mediaID string) (string, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, mediaID)
	respBody, err := c.request(ctx, http.MethodGet, url, nil, "media_lookup")
	if err != nil {
		return "", err
	}

	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(respBody, &obj); err != nil {
		return "", fmt.Errorf("decode media lookup: %w", err)
	}
	if obj.URL == "" {
		return "", fmt.Errorf("media %s has no download url", mediaID)
	}
	return obj.URL, nil
}

// DownloadMedia fetches the media binary. The URL expires quickly and the
// request must carry the same bearer token as the API calls.
func (c *Client) DownloadMedia(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("download media: status=%d", res.StatusCode)
	}
	return io.ReadAll(res.Body)
}

func (c *Client) request(ctx context.Context, method, url string, body any, endpoint string) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	res, err := c.http.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.GraphRequests.WithLabelValues(endpoint, "error").Inc()
		}
		return nil, fmt.Errorf("graph request: %w", err)
	}
	defer res.Body.Close()

	statusLabel := fmt.Sprintf("%d", res.StatusCode)
	if c.metrics != nil {
		c.metrics.GraphRequests.WithLabelValues(endpoint, statusLabel).Inc()
		c.metrics.GraphLatency.WithLabelValues(endpoint, statusLabel).Observe(time.Since(start).Seconds())
	}

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode >= 400 {
		return respBody, fmt.Errorf("graph api error: %s - %s", res.Status, strings.TrimSpace(string(respBody)))
	}
	return respBody, nil
}
