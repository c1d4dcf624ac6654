// Package transcript archives every conversation turn together with the
// profile of the session it belongs to.
package transcript

import (
	"context"
	"errors"
	"time"
)

var ErrUnsupportedURL = errors.New("unsupported transcript url")

// Record stores a single user or assistant turn.
type Record struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	UserName    string    `json:"user_name"`
	UserPhone   string    `json:"user_phone"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists and retrieves transcript records.
type Store interface {
	SaveTurn(ctx context.Context, record Record) error
	// ListTurns returns the newest limit records of a session in chronological
	// order. A non-positive limit returns all of them.
	ListTurns(ctx context.Context, sessionID string, limit int) ([]Record, error)
	Ping(ctx context.Context) error
	Close() error
}
