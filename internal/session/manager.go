package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/concierge/internal/chat"
)

var ErrNotFound = errors.New("session not found")

// Manager owns the live chat sessions of the process.
type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*chat.Session
	inactivityTimeout time.Duration
	onExpire          func(*chat.Session)
	now               func() time.Time
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*chat.Session),
		inactivityTimeout: inactivityTimeout,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// SetExpireHook registers a callback invoked for sessions removed by the
// janitor. It runs outside the manager lock.
func (m *Manager) SetExpireHook(hook func(*chat.Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Create() *chat.Session {
	s := chat.NewSession(uuid.NewString(), m.now())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return s
}

func (m *Manager) Get(sessionID string) (*chat.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *Manager) Touch(sessionID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	s.Touch(m.now())
	return nil
}

// End forgets the session. A dispatched request keeps running but its result
// is never rendered.
func (m *Manager) End(sessionID string) (*chat.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.sessions, sessionID)
	return s, nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// expireInactive drops idle sessions. A session whose webhook call is still
// running is kept; one whose result was never collected expires like any
// other and the expire hook gets the chance to collect it.
func (m *Manager) expireInactive() {
	now := m.now()
	var expired []*chat.Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if t := s.PendingTask(); t != nil && !t.IsDone() {
			continue
		}
		if now.Sub(s.LastActivity()) < m.inactivityTimeout {
			continue
		}
		delete(m.sessions, id)
		expired = append(expired, s)
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}
