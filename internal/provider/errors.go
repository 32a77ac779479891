package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnsupported marks an operation a provider cannot serve; callers fall
// back to another provider rather than treating it as a failure.
var ErrUnsupported = errors.New("operation not supported by provider")

// TransientError covers network failures, 429s and 5xx responses. These
// are retried with exponential backoff up to the configured attempt cap.
type TransientError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: transient: status %d", e.Op, e.StatusCode)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError covers malformed requests, unknown symbols and API-level
// rejections. Never retried.
type PermanentError struct {
	Op         string
	StatusCode int
	Msg        string
}

func (e *PermanentError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// classifyStatus maps a non-200 HTTP response onto the error taxonomy.
func classifyStatus(op string, code int, body string) error {
	if code == http.StatusTooManyRequests || code >= 500 {
		return &TransientError{Op: op, StatusCode: code}
	}
	return &PermanentError{Op: op, StatusCode: code, Msg: body}
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
