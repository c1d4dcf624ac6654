package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type statusCheck struct {
	ID     string `json:"id"`
	Status string `json:"status"` // ok|warn|error
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Fix    string `json:"fix,omitempty"`
}

type statusResponse struct {
	Status         string        `json:"status"`
	ActiveSessions int           `json:"active_sessions"`
	Checks         []statusCheck `json:"checks"`
}

const dialTimeout = 250 * time.Millisecond

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.statusReport(r.Context()))
}

// handleReady returns 503 only for error-level checks. An unreachable webhook
// is reported as a warning.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	report := s.statusReport(r.Context())
	code := http.StatusOK
	if report.Status == "error" {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, report)
}

func (s *Server) statusReport(ctx context.Context) statusResponse {
	checks := make([]statusCheck, 0, 3)
	checks = append(checks, s.webhookCheck())
	checks = append(checks, s.transcriptCheck(ctx))
	if s.dispatcher != nil {
		checks = append(checks, statusCheck{
			ID:     "dispatcher",
			Status: "ok",
			Label:  "Webhook workers",
			Detail: fmt.Sprintf("limit %d, running %d, queued %d", s.dispatcher.Limit(), s.dispatcher.Running(), s.dispatcher.Queued()),
		})
	}

	overall := "ok"
	for _, c := range checks {
		if c.Status == "error" {
			overall = "error"
			break
		}
		if c.Status == "warn" {
			overall = "warn"
		}
	}
	return statusResponse{
		Status:         overall,
		ActiveSessions: s.sessions.ActiveCount(),
		Checks:         checks,
	}
}

func (s *Server) webhookCheck() statusCheck {
	raw := strings.TrimSpace(s.cfg.Webhook.URL)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return statusCheck{
			ID:     "webhook",
			Status: "error",
			Label:  "AI webhook",
			Detail: "WEBHOOK_URL is not a valid http(s) URL",
			Fix:    "Set WEBHOOK_URL to the chat webhook endpoint.",
		}
	}
	addr := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		addr = net.JoinHostPort(u.Hostname(), port)
	}
	c, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return statusCheck{
			ID:     "webhook",
			Status: "warn",
			Label:  "AI webhook",
			Detail: fmt.Sprintf("%s unreachable: %v", addr, err),
			Fix:    "Start the workflow engine or check WEBHOOK_URL.",
		}
	}
	_ = c.Close()
	return statusCheck{ID: "webhook", Status: "ok", Label: "AI webhook", Detail: addr}
}

func (s *Server) transcriptCheck(ctx context.Context) statusCheck {
	if s.transcript == nil {
		return statusCheck{ID: "transcript", Status: "warn", Label: "Transcript archive", Detail: "disabled"}
	}
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.transcript.Ping(pingCtx); err != nil {
		return statusCheck{
			ID:     "transcript",
			Status: "error",
			Label:  "Transcript archive",
			Detail: err.Error(),
			Fix:    "Check TRANSCRIPT_URL and that the backend is running.",
		}
	}
	return statusCheck{ID: "transcript", Status: "ok", Label: "Transcript archive", Detail: transcriptMode(s.cfg.Transcript.URL)}
}

func transcriptMode(raw string) string {
	switch {
	case raw == "":
		return "in-memory"
	case strings.HasPrefix(raw, "postgres"):
		return "postgres"
	case strings.HasPrefix(raw, "redis"):
		return "redis"
	default:
		return "sqlite"
	}
}
