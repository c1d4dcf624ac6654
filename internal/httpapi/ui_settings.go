package httpapi

import (
	"net/http"

	"github.com/ent0n29/concierge/internal/chat"
)

type uiSettingsResponse struct {
	Stages             []string `json:"stages"`
	StageIntervalMS    int64    `json:"stage_interval_ms"`
	PollIntervalMS     int64    `json:"poll_interval_ms"`
	WebhookTimeoutMS   int64    `json:"webhook_timeout_ms"`
	MaxProgressPercent int      `json:"max_progress_percent"`
	PhonePrefix        string   `json:"phone_prefix"`
	PhoneMinLength     int      `json:"phone_min_length"`
}

func (s *Server) handleUISettings(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, uiSettingsResponse{
		Stages:             s.cfg.Progress.Stages,
		StageIntervalMS:    s.cfg.Progress.StageInterval.Milliseconds(),
		PollIntervalMS:     s.cfg.Progress.PollInterval.Milliseconds(),
		WebhookTimeoutMS:   s.cfg.Webhook.Timeout.Milliseconds(),
		MaxProgressPercent: chat.MaxProgressPercent,
		PhonePrefix:        s.rules.Prefix,
		PhoneMinLength:     s.rules.MinLength,
	})
}
