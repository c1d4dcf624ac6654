package chat

import (
	"sync"
	"time"

	"github.com/ent0n29/concierge/internal/webhook"
)

// Task is the handle of one dispatched webhook call.
type Task struct {
	StartedAt time.Time

	once   sync.Once
	done   chan struct{}
	result webhook.Result
}

func newTask(startedAt time.Time) *Task {
	return &Task{
		StartedAt: startedAt,
		done:      make(chan struct{}),
	}
}

// Done is closed once the result is available.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// IsDone reports completion without blocking.
func (t *Task) IsDone() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Result returns the outcome and whether it is available yet.
func (t *Task) Result() (webhook.Result, bool) {
	if !t.IsDone() {
		return webhook.Result{}, false
	}
	return t.result, true
}

// finish records the first result; later calls are ignored.
func (t *Task) finish(res webhook.Result) {
	t.once.Do(func() {
		t.result = res
		close(t.done)
	})
}
