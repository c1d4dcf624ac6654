package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ent0n29/concierge/internal/chat"
	"github.com/ent0n29/concierge/internal/onboarding"
	"github.com/ent0n29/concierge/internal/policy"
	"github.com/ent0n29/concierge/internal/protocol"
	"github.com/ent0n29/concierge/internal/transcript"
)

const (
	defaultTranscriptLimit = 50
	maxTranscriptLimit     = 500
)

type onboardingRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type messageRequest struct {
	Message string `json:"message"`
}

type transcriptResponse struct {
	SessionID string              `json:"session_id"`
	Records   []transcript.Record `json:"records"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	s.metrics.ObserveSessionEvent("created", s.sessions.ActiveCount())
	slog.InfoContext(r.Context(), "session created", "session_id", sess.ID)
	respondJSON(w, http.StatusCreated, s.wireSnapshot(s.controller.Snapshot(sess)))
}

// handleGetSession is one render cycle: a finished request is folded into
// the history before the snapshot is returned.
func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.wireSnapshot(s.controller.Poll(r.Context(), sess)))
}

func (s *Server) handleOnboarding(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req onboardingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	profile, err := onboarding.Validate(req.Name, req.Phone, s.rules)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, onboardingErrorCode(err), err.Error())
		return
	}
	greeting := onboarding.Greeting(s.cfg.Onboarding.Greeting, profile.Name)
	if err := s.controller.Onboard(r.Context(), sess, profile, greeting); err != nil {
		if errors.Is(err, chat.ErrAlreadyOnboarded) {
			respondError(w, http.StatusConflict, "already_onboarded", err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}
	s.metrics.ObserveSessionEvent("onboarded", s.sessions.ActiveCount())
	slog.InfoContext(r.Context(), "profile accepted", "session_id", sess.ID, "phone", policy.MaskPhone(profile.Phone))
	respondJSON(w, http.StatusOK, s.wireSnapshot(s.controller.Snapshot(sess)))
}

func (s *Server) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := s.controller.Submit(r.Context(), sess, req.Message); err != nil {
		status, code := submitErrorStatus(err)
		respondError(w, status, code, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, s.wireSnapshot(s.controller.Snapshot(sess)))
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	limit := defaultTranscriptLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, maxTranscriptLimit)
	}

	resp := transcriptResponse{SessionID: sess.ID, Records: []transcript.Record{}}
	if s.transcript != nil {
		records, err := s.transcript.ListTurns(r.Context(), sess.ID, limit)
		if err != nil {
			slog.ErrorContext(r.Context(), "list transcript failed", "session_id", sess.ID, "error", err)
			respondError(w, http.StatusInternalServerError, "transcript_unavailable", "transcript could not be loaded")
			return
		}
		if records != nil {
			resp.Records = records
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.metrics.ObserveSessionEvent("ended", s.sessions.ActiveCount())
	slog.InfoContext(r.Context(), "session ended", "session_id", sess.ID)
	respondJSON(w, http.StatusOK, map[string]any{
		"session_id": sess.ID,
		"status":     "ended",
	})
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return nil, false
	}
	sess, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return nil, false
	}
	_ = s.sessions.Touch(id)
	return sess, true
}

func submitErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, "empty_message"
	case errors.Is(err, chat.ErrNotOnboarded):
		return http.StatusForbidden, "onboarding_required"
	case errors.Is(err, chat.ErrRequestPending):
		return http.StatusConflict, "request_pending"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func onboardingErrorCode(err error) string {
	switch {
	case errors.Is(err, onboarding.ErrNameRequired):
		return "name_required"
	case errors.Is(err, onboarding.ErrPhoneRequired):
		return "phone_required"
	default:
		return "phone_invalid"
	}
}

// wireSnapshot converts a controller snapshot into its JSON form with
// rendered HTML for every turn.
func (s *Server) wireSnapshot(snap chat.Snapshot) protocol.Snapshot {
	out := protocol.Snapshot{
		SessionID:    snap.SessionID,
		Onboarded:    snap.Onboarded,
		Status:       string(snap.Status),
		Turns:        make([]protocol.Turn, 0, len(snap.Turns)),
		RetryAfterMS: snap.RetryAfterMS,
	}
	if snap.Profile != nil {
		out.Profile = &protocol.Profile{Name: snap.Profile.Name, Phone: snap.Profile.Phone}
	}
	for _, t := range snap.Turns {
		out.Turns = append(out.Turns, s.wireTurn(t))
	}
	if snap.Progress != nil {
		p := wireProgress(*snap.Progress)
		out.Progress = &p
	}
	return out
}

func (s *Server) wireTurn(t chat.Turn) protocol.Turn {
	return protocol.Turn{
		Role:    string(t.Role),
		Content: t.Content,
		HTML:    s.renderer.HTML(t.Content),
		At:      t.At,
	}
}

func wireProgress(p chat.Progress) protocol.Progress {
	return protocol.Progress{
		Percent:   p.Percent,
		Stage:     p.Stage,
		StageText: p.StageText,
		ElapsedMS: p.ElapsedMS,
	}
}
