package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies engine failures
type ErrorKind string

const (
	ErrTimeout              ErrorKind = "timeout"
	ErrAuthenticationFailed ErrorKind = "authentication_failed"
	ErrRateLimited          ErrorKind = "rate_limited"
	ErrTransport            ErrorKind = "transport" // connection-level, retryable
	ErrProtocol             ErrorKind = "protocol"  // malformed JSON or unexpected shape
	ErrUnknownProvider      ErrorKind = "unknown_provider"
	ErrUnknownTool          ErrorKind = "unknown_tool"
	ErrMaxIterations        ErrorKind = "max_iterations"
)

// Error is a classified provider or engine failure. Model call failures are
// not retried by the loop; retries belong to the tool transport client.
type Error struct {
	Kind       ErrorKind `json:"kind"`
	Provider   string    `json:"provider,omitempty"`
	Message    string    `json:"message"`
	StatusCode int       `json:"status_code,omitempty"`
}

func (e *Error) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Classify wraps err as an *Error. An existing classification is preserved,
// deadline and network timeouts map to ErrTimeout, everything else is an
// opaque transport failure.
func Classify(provider string, err error) *Error {
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: ErrTimeout, Provider: provider, Message: "request timed out"}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: ErrTimeout, Provider: provider, Message: "request timed out"}
	}
	return &Error{Kind: ErrTransport, Provider: provider, Message: err.Error()}
}

// statusError classifies a non-2xx provider response by status code.
func statusError(provider string, status int, body []byte) *Error {
	kind := ErrTransport
	switch status {
	case 401, 403:
		kind = ErrAuthenticationFailed
	case 429:
		kind = ErrRateLimited
	}
	return &Error{
		Kind:       kind,
		Provider:   provider,
		Message:    fmt.Sprintf("API request failed with status %d: %s", status, body),
		StatusCode: status,
	}
}
