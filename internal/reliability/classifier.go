package reliability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
)

// IsTimeout reports whether err came from a deadline: an http.Client timeout,
// an expired context, or a net.Error that says so.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// StatusForError maps a failed outbound call onto the status tag shown with
// the downgraded chat reply.
func StatusForError(err error) int {
	if IsTimeout(err) {
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

// IsSuccessStatus classifies 2xx responses.
func IsSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}
