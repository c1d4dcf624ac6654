package chat

import (
	"errors"
	"sync"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	ErrEmptyMessage     = errors.New("message is empty")
	ErrNotOnboarded     = errors.New("onboarding not completed")
	ErrAlreadyOnboarded = errors.New("onboarding already completed")
	ErrRequestPending   = errors.New("a request is already pending")
)

// Turn is one entry of the conversation log. Turns are never edited.
type Turn struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Profile identifies the user for the lifetime of a session.
type Profile struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Session is the per-visitor conversation state. The turn log only grows and
// at most one Task is pending at any time.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	profile      Profile
	onboarded    bool
	turns        []Turn
	pending      *Task
	lastActivity time.Time
	changed      chan struct{}
}

func NewSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		CreatedAt:    now,
		lastActivity: now,
		changed:      make(chan struct{}),
	}
}

// Onboard stores the profile once and appends the greeting, if any, as the
// first assistant turn.
func (s *Session) Onboard(p Profile, greeting string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.onboarded {
		return ErrAlreadyOnboarded
	}
	s.profile = p
	s.onboarded = true
	if greeting != "" {
		s.turns = append(s.turns, Turn{Role: RoleAssistant, Content: greeting, At: now})
	}
	s.lastActivity = now
	s.signalLocked()
	return nil
}

func (s *Session) Profile() (Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile, s.onboarded
}

// Turns returns a copy of the conversation log.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// PendingTask returns the in-flight task or nil when idle.
func (s *Session) PendingTask() *Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// LastActivity returns the time of the last state change or Touch.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.After(s.lastActivity) {
		s.lastActivity = now
	}
}

// Changed returns a channel that is closed on the next state change.
func (s *Session) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// begin appends the user turn and installs task as pending in one step.
func (s *Session) begin(content string, task *Task, now time.Time) (Turn, Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.onboarded {
		return Turn{}, Profile{}, ErrNotOnboarded
	}
	if s.pending != nil {
		return Turn{}, Profile{}, ErrRequestPending
	}
	turn := Turn{Role: RoleUser, Content: content, At: now}
	s.turns = append(s.turns, turn)
	s.pending = task
	s.lastActivity = now
	s.signalLocked()
	return turn, s.profile, nil
}

// consume turns a finished pending task into an assistant turn and clears it.
// It reports false when there is nothing to consume, so a result is appended
// exactly once even with concurrent renders.
func (s *Session) consume(now time.Time) (Turn, *Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := s.pending
	if task == nil {
		return Turn{}, nil, false
	}
	res, ok := task.Result()
	if !ok {
		return Turn{}, nil, false
	}
	turn := Turn{Role: RoleAssistant, Content: res.Text, At: now}
	s.turns = append(s.turns, turn)
	s.pending = nil
	s.lastActivity = now
	s.signalLocked()
	return turn, task, true
}

func (s *Session) signalLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}
