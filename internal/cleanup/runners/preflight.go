package runner

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
)

// ConsoleTarget is where the console listens.
type ConsoleTarget struct {
	Host      string
	Port      int
	Path      string
	VerifySSL bool
	DNSServer string
}

func (t ConsoleTarget) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

func (t ConsoleTarget) URL() string {
	path := t.Path
	if path == "" {
		path = "/login.html"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := url.URL{Scheme: "https", Host: t.Address(), Path: path}
	return u.String()
}

type CheckResult struct {
	Probe   ProbeType              `json:"probe"`
	Target  string                 `json:"target"`
	OK      bool                   `json:"ok"`
	Details map[string]interface{} `json:"details,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// Preflight runs the DNS, TCP and HTTP probes against the console once.
type Preflight struct {
	factory *Factory
	target  ConsoleTarget
	logger  *slog.Logger
}

func NewPreflight(factory *Factory, target ConsoleTarget, logger *slog.Logger) *Preflight {
	if logger == nil {
		logger = slog.Default()
	}
	return &Preflight{
		factory: factory,
		target:  target,
		logger:  logger.With("component", "preflight"),
	}
}

// Run returns one result per probe and ErrServiceUnavailable if any failed.
// Probes after a failed one still run so the report is complete.
func (p *Preflight) Run(ctx context.Context) ([]CheckResult, error) {
	checks := []struct {
		probe  ProbeType
		target string
	}{
		{DNSProbe, p.target.Host},
		{TCPProbe, p.target.Address()},
		{HTTPProbe, p.target.URL()},
	}

	options := map[string]interface{}{
		"server":     p.target.DNSServer,
		"verify_ssl": p.target.VerifySSL,
	}

	results := make([]CheckResult, 0, len(checks))
	failed := 0
	for _, check := range checks {
		result := p.runCheck(ctx, check.probe, check.target, options)
		if !result.OK {
			failed++
		}
		p.logger.Info("preflight check",
			"probe", result.Probe,
			"target", result.Target,
			"ok", result.OK,
			"error", result.Error,
		)
		results = append(results, result)
	}

	if failed > 0 {
		return results, fmt.Errorf("%w: %d of %d preflight checks failed", ErrServiceUnavailable, failed, len(checks))
	}
	return results, nil
}

func (p *Preflight) runCheck(ctx context.Context, probe ProbeType, target string, options map[string]interface{}) CheckResult {
	result := CheckResult{Probe: probe, Target: target}

	runner, err := p.factory.GetRunner(probe)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	details, err := runner.Execute(ctx, target, options)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.Details = details

	switch probe {
	case DNSProbe:
		records, _ := details["records"].([]string)
		result.OK = len(records) > 0
		if !result.OK {
			result.Error = "no address records"
		}
	case TCPProbe:
		result.OK, _ = details["port_open"].(bool)
		if msg, ok := details["error"].(string); ok {
			result.Error = msg
		}
	case HTTPProbe:
		code, _ := details["status_code"].(int)
		result.OK = code == 200
		if !result.OK {
			result.Error = fmt.Sprintf("unexpected status %d", code)
		}
	}

	return result
}
