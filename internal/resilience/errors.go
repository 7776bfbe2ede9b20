package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (timeouts, 429, 5xx,
// dropped connections).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// SessionFatalError marks a session that can no longer serve queries. The
// owner must tear it down and open a fresh one before retrying.
type SessionFatalError struct {
	Err error
}

func (e *SessionFatalError) Error() string {
	return "session unusable: " + e.Err.Error()
}

func (e *SessionFatalError) Unwrap() error {
	return e.Err
}

// NewSessionFatalError wraps err as a session-fatal failure.
func NewSessionFatalError(err error) *SessionFatalError {
	return &SessionFatalError{Err: err}
}

// IsSessionFatal reports whether err (or any error in its chain) is a
// SessionFatalError.
func IsSessionFatal(err error) bool {
	var se *SessionFatalError
	return errors.As(err, &se)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or if it matches common transient error patterns (network
// timeouts, connection resets, DNS failures).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
		"client.timeout exceeded",
		"unexpected eof",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsRetryable is the default retry predicate for catalog queries: transient
// fetch errors and session-fatal errors are both retried after the session is
// replaced.
func IsRetryable(err error) bool {
	return IsTransient(err) || IsSessionFatal(err)
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

// ClassifyError categorizes an error as "transient" or "permanent" for the
// failure ledger.
func ClassifyError(err error) string {
	if IsRetryable(err) {
		return "transient"
	}
	return "permanent"
}
