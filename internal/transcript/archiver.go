package transcript

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/ent0n29/concierge/internal/chat"
	"github.com/ent0n29/concierge/internal/policy"
)

const (
	archiveTimeout   = 5 * time.Second
	archiveQueueSize = 256
)

var (
	ErrArchiveQueueFull = errors.New("transcript archive queue is full")
	ErrArchiverClosed   = errors.New("transcript archiver is closed")
)

type archiveJob struct {
	ctx     context.Context
	record  Record
	flushed chan struct{}
}

// Archiver writes chat turns to a Store from a single background writer, so
// turns of a session are stored in the order they were appended and a slow
// store never delays the caller. Failures are logged and dropped.
type Archiver struct {
	store     Store
	redactPII bool
	onError   func(error)

	mu     sync.RWMutex
	closed bool
	queue  chan archiveJob
	wg     conc.WaitGroup
}

func NewArchiver(store Store, redactPII bool) *Archiver {
	a := &Archiver{
		store:     store,
		redactPII: redactPII,
		queue:     make(chan archiveJob, archiveQueueSize),
	}
	a.wg.Go(a.run)
	return a
}

// OnError registers a callback for failed writes, e.g. a metrics counter.
// Call it before the first Archive.
func (a *Archiver) OnError(fn func(error)) {
	a.onError = fn
}

// Archive queues turn for writing and returns immediately.
func (a *Archiver) Archive(ctx context.Context, sessionID string, profile chat.Profile, turn chat.Turn) {
	record := Record{
		SessionID: sessionID,
		UserName:  profile.Name,
		UserPhone: profile.Phone,
		Role:      string(turn.Role),
		Content:   turn.Content,
		CreatedAt: turn.At.UTC(),
	}
	if a.redactPII {
		record.Content, record.PIIRedacted = policy.RedactPII(turn.Content)
	}

	// The write outlives a client that disconnects right after submitting.
	job := archiveJob{ctx: context.WithoutCancel(ctx), record: record}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.fail(job, ErrArchiverClosed)
		return
	}
	select {
	case a.queue <- job:
	default:
		a.fail(job, ErrArchiveQueueFull)
	}
}

// Flush blocks until every turn queued before the call has been written.
func (a *Archiver) Flush(ctx context.Context) error {
	marker := archiveJob{flushed: make(chan struct{})}

	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return ErrArchiverClosed
	}
	select {
	case a.queue <- marker:
		a.mu.RUnlock()
	case <-ctx.Done():
		a.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case <-marker.flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake and waits for queued turns to be written.
func (a *Archiver) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Archiver) run() {
	for job := range a.queue {
		if job.flushed != nil {
			close(job.flushed)
			continue
		}
		a.save(job)
	}
}

func (a *Archiver) save(job archiveJob) {
	ctx, cancel := context.WithTimeout(job.ctx, archiveTimeout)
	defer cancel()
	if err := a.store.SaveTurn(ctx, job.record); err != nil {
		a.fail(job, err)
	}
}

func (a *Archiver) fail(job archiveJob, err error) {
	slog.ErrorContext(job.ctx, "archive turn failed",
		"session_id", job.record.SessionID, "role", job.record.Role, "error", err)
	if a.onError != nil {
		a.onError(err)
	}
}
