package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ent0n29/concierge/internal/chat"
	"github.com/ent0n29/concierge/internal/dispatch"
	"github.com/ent0n29/concierge/internal/webhook"
)

func TestManagerCreateGetEnd(t *testing.T) {
	m := NewManager(time.Minute)
	s := m.Create()
	if s.ID == "" {
		t.Fatalf("session ID should not be empty")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != s {
		t.Fatalf("Get() returned a different session")
	}
	if _, ok := got.Profile(); ok {
		t.Fatalf("new session should not be onboarded")
	}
	if m.ActiveCount() != 1 {
		t.Fatalf("ActiveCount() = %d, want 1", m.ActiveCount())
	}

	if _, err := m.End(s.ID); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() after End error = %v, want ErrNotFound", err)
	}
	if _, err := m.End(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("End() twice error = %v, want ErrNotFound", err)
	}
	if m.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0", m.ActiveCount())
	}
}

func TestManagerTouchUnknown(t *testing.T) {
	m := NewManager(time.Minute)
	if err := m.Touch("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Touch() error = %v, want ErrNotFound", err)
	}
}

func TestManagerExpireInactive(t *testing.T) {
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	now := start
	m := NewManager(time.Minute)
	m.now = func() time.Time { return now }

	idle := m.Create()
	active := m.Create()

	var mu sync.Mutex
	var expired []string
	m.SetExpireHook(func(s *chat.Session) {
		mu.Lock()
		defer mu.Unlock()
		expired = append(expired, s.ID)
	})

	now = start.Add(50 * time.Second)
	if err := m.Touch(active.ID); err != nil {
		t.Fatalf("Touch() error = %v", err)
	}
	now = start.Add(70 * time.Second)
	m.expireInactive()

	if _, err := m.Get(idle.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("idle session should be expired, Get() error = %v", err)
	}
	if _, err := m.Get(active.ID); err != nil {
		t.Fatalf("touched session should survive, Get() error = %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(expired) != 1 || expired[0] != idle.ID {
		t.Fatalf("expired = %v, want [%s]", expired, idle.ID)
	}
}

type blockingSender struct{ release chan struct{} }

func (b blockingSender) Send(ctx context.Context, _ webhook.Request) webhook.Result {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return webhook.Result{Status: 200, Text: "ok"}
}

func TestManagerKeepsPendingSessions(t *testing.T) {
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	now := start
	m := NewManager(time.Minute)
	m.now = func() time.Time { return now }

	sender := blockingSender{release: make(chan struct{})}
	d := dispatch.New(1, nil)
	defer func() {
		close(sender.release)
		_ = d.Close(context.Background())
	}()
	ctrl := chat.NewController(chat.ControllerConfig{
		Sender:     sender,
		Dispatcher: d,
		Now:        func() time.Time { return start },
	})

	s := m.Create()
	ctx := context.Background()
	if err := ctrl.Onboard(ctx, s, chat.Profile{Name: "Ana", Phone: "081234567890"}, ""); err != nil {
		t.Fatalf("Onboard() error = %v", err)
	}
	if err := ctrl.Submit(ctx, s, "hi"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	now = start.Add(time.Hour)
	m.expireInactive()
	if _, err := m.Get(s.ID); err != nil {
		t.Fatalf("pending session should not expire, Get() error = %v", err)
	}
}

type instantSender struct{}

func (instantSender) Send(context.Context, webhook.Request) webhook.Result {
	return webhook.Result{Status: 200, Text: "ok"}
}

func TestManagerExpiresSessionsWithUncollectedResult(t *testing.T) {
	start := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	now := start
	m := NewManager(time.Minute)
	m.now = func() time.Time { return now }

	d := dispatch.New(1, nil)
	defer func() { _ = d.Close(context.Background()) }()
	ctrl := chat.NewController(chat.ControllerConfig{
		Sender:     instantSender{},
		Dispatcher: d,
		Now:        func() time.Time { return start },
	})

	var collected []chat.Turn
	m.SetExpireHook(func(s *chat.Session) {
		collected = ctrl.Poll(context.Background(), s).Turns
	})

	s := m.Create()
	ctx := context.Background()
	if err := ctrl.Onboard(ctx, s, chat.Profile{Name: "Ana", Phone: "081234567890"}, ""); err != nil {
		t.Fatalf("Onboard() error = %v", err)
	}
	if err := ctrl.Submit(ctx, s, "hi"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	task := s.PendingTask()
	if task == nil {
		t.Fatalf("Submit() left no pending task")
	}
	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("webhook call did not finish")
	}

	now = start.Add(24 * time.Hour)
	m.expireInactive()
	if _, err := m.Get(s.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("session with a finished, uncollected result should expire, Get() error = %v", err)
	}
	if len(collected) != 2 || collected[1].Content != "ok" {
		t.Fatalf("expire hook collected turns = %+v, want user turn then \"ok\"", collected)
	}
}

func TestManagerJanitorExpiresInactive(t *testing.T) {
	m := NewManager(30 * time.Millisecond)
	s := m.Create()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartJanitor(ctx, 10*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := m.Get(s.ID); errors.Is(err, ErrNotFound) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("session %s was not expired by the janitor", s.ID)
}
