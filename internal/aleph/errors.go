package aleph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found")
	// ErrLocalRead marks a failure to read the file being uploaded. It is
	// never transient, even when the HTTP client reports it.
	ErrLocalRead = errors.New("read local file")
)

// Error is a failed API call. StatusCode is zero when the request never got
// an HTTP response (connection refused, reset, timeout).
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode == 0 && e.Err != nil:
		return fmt.Sprintf("aleph request failed: %v", e.Err)
	case e.Message != "":
		return fmt.Sprintf("aleph error %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("aleph error %d", e.StatusCode)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the failure is worth retrying.
func (e *Error) Transient() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

// IsTransient classifies err: transport failures and 5xx responses are
// transient, everything else (4xx, local I/O, cancellation) is not.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, ErrLocalRead) {
		return false
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
