package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/concierge/internal/chat"
	"github.com/ent0n29/concierge/internal/config"
	"github.com/ent0n29/concierge/internal/dispatch"
	"github.com/ent0n29/concierge/internal/observability"
	"github.com/ent0n29/concierge/internal/onboarding"
	"github.com/ent0n29/concierge/internal/protocol"
	"github.com/ent0n29/concierge/internal/render"
	"github.com/ent0n29/concierge/internal/session"
	"github.com/ent0n29/concierge/internal/transcript"
)

// Deps are the collaborators the HTTP surface drives.
type Deps struct {
	Sessions   *session.Manager
	Controller *chat.Controller
	Renderer   *render.Renderer
	Transcript transcript.Store
	Dispatcher *dispatch.Dispatcher
	Metrics    *observability.Metrics
}

type Server struct {
	cfg        config.Config
	sessions   *session.Manager
	controller *chat.Controller
	renderer   *render.Renderer
	transcript transcript.Store
	dispatcher *dispatch.Dispatcher
	metrics    *observability.Metrics
	rules      onboarding.Rules
	upgrader   websocket.Upgrader
	static     http.Handler
}

func New(cfg config.Config, deps Deps) *Server {
	if deps.Renderer == nil {
		deps.Renderer = render.New()
	}
	return &Server{
		cfg:        cfg,
		sessions:   deps.Sessions,
		controller: deps.Controller,
		renderer:   deps.Renderer,
		transcript: deps.Transcript,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		rules: onboarding.Rules{
			Prefix:    cfg.Onboarding.PhonePrefix,
			MinLength: cfg.Onboarding.PhoneMinLength,
		},
		static: newStaticHandler(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may attach to a session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", s.metrics.Handler())

	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/ui/settings", s.handleUISettings)
	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Get("/poll", s.handleGetSession)
			r.Post("/onboarding", s.handleOnboarding)
			r.Post("/messages", s.handleSubmitMessage)
			r.Get("/transcript", s.handleTranscript)
			r.Post("/end", s.handleEndSession)
			r.Get("/ws", s.handleSessionWS)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ChatSubmit:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.SessionSnapshot:
		return m.Type, true
	case protocol.RequestProgress:
		return m.Type, true
	case protocol.AssistantTurn:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
