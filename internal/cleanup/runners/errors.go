package runner

import "errors"

var ErrServiceUnavailable = errors.New("console service unavailable")
