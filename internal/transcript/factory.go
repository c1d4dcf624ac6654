package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NewStore picks a backend from the URL scheme: empty for in-memory,
// postgres:// or postgresql://, redis:// or rediss://, sqlite://path or a
// file: DSN. ttl only applies to redis.
func NewStore(ctx context.Context, url string, ttl time.Duration) (Store, error) {
	url = strings.TrimSpace(url)
	switch {
	case url == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return NewPostgresStore(ctx, url)
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return NewRedisStore(ctx, url, ttl)
	case strings.HasPrefix(url, "sqlite://"):
		path := strings.TrimPrefix(url, "sqlite://")
		if path == "" {
			return nil, fmt.Errorf("%w: sqlite url without path", ErrUnsupportedURL)
		}
		return NewSQLiteStore(ctx, path)
	case strings.HasPrefix(url, "file:"):
		return NewSQLiteStore(ctx, url)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, redactURL(url))
	}
}

// redactURL drops everything after the scheme so credentials never reach
// error messages.
func redactURL(url string) string {
	if i := strings.Index(url, "://"); i >= 0 {
		return url[:i+3] + "..."
	}
	return "..."
}
