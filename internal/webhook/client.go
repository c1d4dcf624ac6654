package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/concierge/internal/reliability"
)

const maxResponseBytes = 4 << 20

// Request is the payload posted to the webhook for one user message.
type Request struct {
	Message   string `json:"message"`
	UserName  string `json:"user_name"`
	UserPhone string `json:"user_phone"`
	Timestamp string `json:"timestamp"`
}

// Result is the outcome of a single webhook call. Failures are folded into
// Text so callers can display every outcome the same way.
type Result struct {
	Status int    `json:"status"`
	Text   string `json:"text"`
}

// Messages holds the user-facing texts used when the backend cannot answer.
type Messages struct {
	// Timeout is formatted with the timeout in seconds.
	Timeout string
	// Failure is formatted with the error description.
	Failure string
	// Fallback replaces a response without a message field.
	Fallback string
}

// Observer receives one call per finished request.
type Observer interface {
	ObserveWebhook(status int, latency time.Duration)
}

// Config controls client construction.
type Config struct {
	URL      string
	Timeout  time.Duration
	Messages Messages
	Observer Observer
}

// Client forwards chat messages to a webhook endpoint. A single attempt is
// made per message; failures are reported, never retried.
type Client struct {
	url      string
	timeout  time.Duration
	client   *http.Client
	messages Messages
	observer Observer
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Messages.Timeout == "" {
		cfg.Messages.Timeout = "Error: request to the AI service timed out after %s seconds."
	}
	if cfg.Messages.Failure == "" {
		cfg.Messages.Failure = "Error: unexpected connection failure: %s"
	}
	if cfg.Messages.Fallback == "" {
		cfg.Messages.Fallback = "Sorry, something went wrong on the AI service."
	}
	return &Client{
		url:      strings.TrimSpace(cfg.URL),
		timeout:  cfg.Timeout,
		messages: cfg.Messages,
		observer: cfg.Observer,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// Timeout returns the configured per-request timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Send posts req and always returns a displayable Result.
func (c *Client) Send(ctx context.Context, req Request) Result {
	started := time.Now()
	res, err := c.send(ctx, req)
	if err != nil {
		res = c.resultForError(err)
	}
	latency := time.Since(started)

	level := slog.LevelInfo
	if err != nil || !reliability.IsSuccessStatus(res.Status) {
		level = slog.LevelWarn
	}
	attrs := []any{"status", res.Status, "latency_ms", latency.Milliseconds()}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	slog.Log(ctx, level, "webhook call finished", attrs...)

	if c.observer != nil {
		c.observer.ObserveWebhook(res.Status, latency)
	}
	return res
}

func (c *Client) send(ctx context.Context, req Request) (Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return Result{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return Result{}, fmt.Errorf("decode response (status %d): %w", res.StatusCode, err)
	}

	return Result{Status: res.StatusCode, Text: c.extractMessage(obj)}, nil
}

func (c *Client) extractMessage(obj map[string]any) string {
	v, ok := obj["message"]
	if !ok || v == nil {
		return c.messages.Fallback
	}
	switch m := v.(type) {
	case string:
		return m
	default:
		raw, err := json.Marshal(m)
		if err != nil {
			return c.messages.Fallback
		}
		return string(raw)
	}
}

func (c *Client) resultForError(err error) Result {
	status := reliability.StatusForError(err)
	if status == http.StatusRequestTimeout {
		return Result{
			Status: status,
			Text:   fmt.Sprintf(c.messages.Timeout, formatSeconds(c.timeout)),
		}
	}
	return Result{
		Status: status,
		Text:   fmt.Sprintf(c.messages.Failure, err.Error()),
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
