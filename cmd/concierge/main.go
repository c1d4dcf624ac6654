package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ent0n29/concierge/internal/chat"
	"github.com/ent0n29/concierge/internal/config"
	"github.com/ent0n29/concierge/internal/dispatch"
	"github.com/ent0n29/concierge/internal/httpapi"
	"github.com/ent0n29/concierge/internal/observability"
	"github.com/ent0n29/concierge/internal/render"
	"github.com/ent0n29/concierge/internal/session"
	"github.com/ent0n29/concierge/internal/transcript"
	"github.com/ent0n29/concierge/internal/webhook"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file; environment variables override it")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before reading the environment")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat))

	if err := run(cfg); err != nil {
		slog.Error("concierge stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(cfg.MetricsNamespace, cfg.Webhook.Timeout)

	store, err := transcript.NewStore(ctx, cfg.Transcript.URL, cfg.Transcript.TTL)
	if err != nil {
		return fmt.Errorf("transcript store init failed: %w", err)
	}
	defer store.Close()
	archiver := transcript.NewArchiver(store, cfg.Transcript.RedactPII)
	archiver.OnError(metrics.ObserveTranscriptError)

	dispatcher := dispatch.New(cfg.Webhook.Concurrency, metrics)
	client := webhook.NewClient(webhook.Config{
		URL:     cfg.Webhook.URL,
		Timeout: cfg.Webhook.Timeout,
		Messages: webhook.Messages{
			Timeout:  cfg.Webhook.TimeoutMessage,
			Failure:  cfg.Webhook.FailureMessage,
			Fallback: cfg.Webhook.FallbackMessage,
		},
		Observer: metrics,
	})
	controller := chat.NewController(chat.ControllerConfig{
		Sender:     client,
		Dispatcher: dispatcher,
		Archiver:   archiver,
		Observer:   metrics,
		Stages: chat.Stages{
			Texts:    cfg.Progress.Stages,
			Interval: cfg.Progress.StageInterval,
		},
		Timeout:      client.Timeout(),
		PollInterval: cfg.Progress.PollInterval,
	})

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *chat.Session) {
		// Archive a reply that finished after the visitor left.
		controller.Poll(context.Background(), s)
		metrics.ObserveSessionEvent("expired", sessions.ActiveCount())
		slog.Info("session expired", "session_id", s.ID)
	})
	sessions.StartJanitor(ctx, janitorInterval(cfg.SessionInactivityTimeout))

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:   sessions,
		Controller: controller,
		Renderer:   render.New(),
		Transcript: store,
		Dispatcher: dispatcher,
		Metrics:    metrics,
	})
	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server listening",
			"addr", cfg.BindAddr,
			"webhook_url", cfg.Webhook.URL,
			"webhook_concurrency", cfg.Webhook.Concurrency,
			"transcript", transcriptKind(cfg.Transcript.URL),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		slog.Warn("in-flight webhook calls cancelled", "error", err)
	}
	if err := archiver.Close(shutdownCtx); err != nil {
		slog.Warn("transcript archive not fully flushed", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// janitorInterval sweeps a few times per inactivity window.
func janitorInterval(timeout time.Duration) time.Duration {
	interval := timeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	return interval
}

func transcriptKind(url string) string {
	if url == "" {
		return "in-memory"
	}
	if i := strings.Index(url, ":"); i > 0 {
		return url[:i]
	}
	return "unknown"
}
