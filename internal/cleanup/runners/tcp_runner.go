package runner

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"ScanCleanup/internal/shared/constants"
)

// TCPRunner checks that the console port accepts connections.
type TCPRunner struct {
	timeout time.Duration
}

func NewTCPRunner() *TCPRunner {
	return &TCPRunner{
		timeout: constants.TCPTimeout,
	}
}

// Execute dials target ("host:port"). A refused or timed out dial is reported
// through port_open=false rather than an error.
func (r *TCPRunner) Execute(ctx context.Context, target string, options map[string]interface{}) (map[string]interface{}, error) {
	host, port := splitTarget(target)
	address := net.JoinHostPort(host, strconv.Itoa(port))

	timeout := getDurationOption(options, "timeout", r.timeout)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	connectTime := time.Since(start)

	result := map[string]interface{}{
		"host":         host,
		"port":         port,
		"address":      address,
		"connect_time": connectTime.Milliseconds(),
	}

	if err != nil {
		result["port_open"] = false
		result["error"] = err.Error()

		var netErr net.Error
		if errors.As(err, &netErr) {
			result["timeout"] = netErr.Timeout()
		}

		return result, nil
	}
	defer conn.Close()

	result["port_open"] = true
	result["remote_address"] = conn.RemoteAddr().String()

	return result, nil
}

func splitTarget(target string) (string, int) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return target, constants.DefaultConsolePort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return host, constants.DefaultConsolePort
	}
	return host, port
}

func extractHost(target string) string {
	host, _, err := net.SplitHostPort(target)
	if err != nil {
		return target
	}
	return host
}
