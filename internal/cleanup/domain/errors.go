package domain

import "errors"

var (
	ErrConnectivity   = errors.New("console unreachable")
	ErrSessionExpired = errors.New("console session expired")
	ErrResumeCommand  = errors.New("resume command failed")
	ErrStopCommand    = errors.New("stop command failed")
	ErrConfiguration  = errors.New("invalid configuration")
)

// IsRetryable reports whether err is a transient console failure that the
// polling loops retry after backoff.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConnectivity) || errors.Is(err, ErrSessionExpired)
}
