package chat

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/concierge/internal/dispatch"
	"github.com/ent0n29/concierge/internal/webhook"
)

// Sender performs the blocking webhook call. Implementations must fold every
// failure into the returned Result.
type Sender interface {
	Send(ctx context.Context, req webhook.Request) webhook.Result
}

// Dispatcher runs jobs in the background under a global bound.
type Dispatcher interface {
	Submit(job dispatch.Job) error
}

// Archiver receives every appended turn. Failures stay inside the archiver.
type Archiver interface {
	Archive(ctx context.Context, sessionID string, profile Profile, turn Turn)
}

// Observer receives controller outcomes for metrics.
type Observer interface {
	ObserveSubmit(outcome string)
	ObserveRoundTrip(status int, d time.Duration)
}

type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
)

// Progress is the transient loading indicator of a pending request.
type Progress struct {
	Percent   int    `json:"percent"`
	Stage     int    `json:"stage"`
	StageText string `json:"stage_text"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// Snapshot is everything a renderer needs for one frame.
type Snapshot struct {
	SessionID    string    `json:"session_id"`
	Onboarded    bool      `json:"onboarded"`
	Profile      *Profile  `json:"profile,omitempty"`
	Status       Status    `json:"status"`
	Turns        []Turn    `json:"turns"`
	Progress     *Progress `json:"progress,omitempty"`
	RetryAfterMS int64     `json:"retry_after_ms,omitempty"`
}

// ControllerConfig wires the controller.
type ControllerConfig struct {
	Sender       Sender
	Dispatcher   Dispatcher
	Archiver     Archiver
	Observer     Observer
	Stages       Stages
	Timeout      time.Duration
	PollInterval time.Duration
	// UnavailableText is shown when the request could not be dispatched at all.
	UnavailableText string
	Now             func() time.Time
}

// Controller drives the Idle/Pending lifecycle of sessions.
type Controller struct {
	sender          Sender
	dispatcher      Dispatcher
	archiver        Archiver
	observer        Observer
	stages          Stages
	timeout         time.Duration
	pollInterval    time.Duration
	unavailableText string
	now             func() time.Time
}

func NewController(cfg ControllerConfig) *Controller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.UnavailableText == "" {
		cfg.UnavailableText = "Sorry, the assistant is not accepting requests right now."
	}
	return &Controller{
		sender:          cfg.Sender,
		dispatcher:      cfg.Dispatcher,
		archiver:        cfg.Archiver,
		observer:        cfg.Observer,
		stages:          cfg.Stages,
		timeout:         cfg.Timeout,
		pollInterval:    cfg.PollInterval,
		unavailableText: cfg.UnavailableText,
		now:             cfg.Now,
	}
}

// Onboard completes the onboarding gate for s and archives the greeting.
func (c *Controller) Onboard(ctx context.Context, s *Session, p Profile, greeting string) error {
	now := c.now()
	if err := s.Onboard(p, greeting, now); err != nil {
		return err
	}
	if greeting != "" {
		c.archive(ctx, s.ID, p, Turn{Role: RoleAssistant, Content: greeting, At: now})
	}
	slog.InfoContext(ctx, "session onboarded", "session_id", s.ID)
	return nil
}

// Submit moves s from Idle to Pending: the user turn is appended before the
// webhook call is dispatched.
func (c *Controller) Submit(ctx context.Context, s *Session, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		c.observeSubmit("rejected_empty")
		return ErrEmptyMessage
	}

	now := c.now()
	task := newTask(now)
	turn, profile, err := s.begin(message, task, now)
	if err != nil {
		switch err {
		case ErrRequestPending:
			c.observeSubmit("rejected_pending")
		case ErrNotOnboarded:
			c.observeSubmit("rejected_onboarding")
		}
		return err
	}
	c.observeSubmit("accepted")
	c.archive(ctx, s.ID, profile, turn)

	req := webhook.Request{
		Message:   message,
		UserName:  profile.Name,
		UserPhone: profile.Phone,
		Timestamp: now.Format(time.RFC3339Nano),
	}
	job := func(jobCtx context.Context) {
		res := webhook.Result{Status: http.StatusInternalServerError, Text: c.unavailableText}
		defer func() { task.finish(res) }()
		res = c.sender.Send(jobCtx, req)
	}
	if err := c.dispatcher.Submit(job); err != nil {
		slog.WarnContext(ctx, "dispatch rejected request", "session_id", s.ID, "error", err)
		task.finish(webhook.Result{Status: http.StatusServiceUnavailable, Text: c.unavailableText})
	}
	slog.InfoContext(ctx, "chat request dispatched", "session_id", s.ID)
	return nil
}

// Poll is one render cycle. A finished task is consumed into an assistant
// turn; otherwise the snapshot carries the progress indicator and the delay
// before the next poll.
func (c *Controller) Poll(ctx context.Context, s *Session) Snapshot {
	now := c.now()
	if turn, task, ok := s.consume(now); ok {
		profile, _ := s.Profile()
		c.archive(ctx, s.ID, profile, turn)
		if res, ok := task.Result(); ok && c.observer != nil {
			c.observer.ObserveRoundTrip(res.Status, now.Sub(task.StartedAt))
		}
	}
	return c.snapshot(s, now)
}

// Wait blocks until the pending request of s completes, calling onProgress
// with a pending snapshot every poll interval. It returns the idle snapshot
// that includes the assistant turn.
func (c *Controller) Wait(ctx context.Context, s *Session, onProgress func(Snapshot)) (Snapshot, error) {
	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()
	for {
		snap := c.Poll(ctx, s)
		if snap.Status == StatusIdle {
			return snap, nil
		}
		task := s.PendingTask()
		if task == nil {
			continue
		}
		if onProgress != nil {
			onProgress(snap)
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.pollInterval)
		select {
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		case <-task.Done():
		case <-timer.C:
		}
	}
}

// Snapshot renders s without consuming a finished task.
func (c *Controller) Snapshot(s *Session) Snapshot {
	return c.snapshot(s, c.now())
}

func (c *Controller) snapshot(s *Session, now time.Time) Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		SessionID: s.ID,
		Onboarded: s.onboarded,
		Status:    StatusIdle,
		Turns:     make([]Turn, len(s.turns)),
	}
	copy(snap.Turns, s.turns)
	if s.onboarded {
		p := s.profile
		snap.Profile = &p
	}
	task := s.pending
	s.mu.Unlock()

	if task == nil {
		return snap
	}
	elapsed := now.Sub(task.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	snap.Status = StatusPending
	snap.Progress = &Progress{
		Percent:   ProgressPercent(elapsed, c.timeout),
		Stage:     c.stages.Index(elapsed),
		StageText: c.stages.Text(elapsed),
		ElapsedMS: elapsed.Milliseconds(),
	}
	snap.RetryAfterMS = c.pollInterval.Milliseconds()
	return snap
}

func (c *Controller) archive(ctx context.Context, sessionID string, p Profile, t Turn) {
	if c.archiver == nil {
		return
	}
	c.archiver.Archive(ctx, sessionID, p, t)
}

func (c *Controller) observeSubmit(outcome string) {
	if c.observer != nil {
		c.observer.ObserveSubmit(outcome)
	}
}
