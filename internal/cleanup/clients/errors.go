package client

import (
	"errors"
	"fmt"
	"strings"

	"ScanCleanup/internal/cleanup/domain"
)

var ErrNotLoggedIn = fmt.Errorf("not logged in: %w", domain.ErrSessionExpired)
var ErrLoginRejected = errors.New("console rejected credentials")

// APIError is a failed console call. Kind is one of the domain sentinels (or
// nil when the failure does not map onto one) and is what errors.Is sees.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	Kind       error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": status %d", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Kind != nil {
		fmt.Fprintf(&b, " (%v)", e.Kind)
	}
	return b.String()
}

func (e *APIError) Unwrap() error {
	return e.Kind
}

// classifyFailure turns an API-level failure message into an APIError.
func classifyFailure(op, message string) *APIError {
	apiErr := &APIError{Op: op, Message: message}
	lower := strings.ToLower(message)
	if op != opLogin && (strings.Contains(lower, "session") || strings.Contains(lower, "not logged in")) {
		apiErr.Kind = domain.ErrSessionExpired
	}
	return apiErr
}
