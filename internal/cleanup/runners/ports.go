package runner

import "context"

// Runner executes one network probe against a target and reports what it saw.
type Runner interface {
	Execute(ctx context.Context, target string, options map[string]interface{}) (map[string]interface{}, error)
}

type ProbeType string

const (
	DNSProbe  ProbeType = "dns"
	TCPProbe  ProbeType = "tcp"
	HTTPProbe ProbeType = "http"
)
