package reliability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

type fakeNetError struct{ timeout bool }

func (e fakeNetError) Error() string   { return "net failure" }
func (e fakeNetError) Timeout() bool   { return e.timeout }
func (e fakeNetError) Temporary() bool { return false }

func TestStatusForError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"deadline", context.DeadlineExceeded, http.StatusRequestTimeout},
		{"wrapped deadline", fmt.Errorf("send request: %w", context.DeadlineExceeded), http.StatusRequestTimeout},
		{"net timeout", fakeNetError{timeout: true}, http.StatusRequestTimeout},
		{"net refused", fakeNetError{timeout: false}, http.StatusInternalServerError},
		{"canceled", context.Canceled, http.StatusInternalServerError},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := StatusForError(tc.err); got != tc.want {
			t.Fatalf("%s: StatusForError() = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestIsTimeoutNil(t *testing.T) {
	if IsTimeout(nil) {
		t.Fatalf("IsTimeout(nil) = true, want false")
	}
}

func TestIsSuccessStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, true},
		{204, true},
		{301, false},
		{404, false},
		{500, false},
	}
	for _, tc := range cases {
		if got := IsSuccessStatus(tc.code); got != tc.want {
			t.Fatalf("IsSuccessStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
