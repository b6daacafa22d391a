package validator

import (
	"net"
	"strings"
)

// ValidateHost accepts a bare host name or IP address, the form the console
// address is configured in. URLs and host:port pairs are rejected.
func ValidateHost(host string) bool {
	if host == "" || strings.Contains(host, "://") {
		return false
	}

	if net.ParseIP(host) != nil {
		return true
	}

	if _, _, err := net.SplitHostPort(host); err == nil {
		return false
	}

	if len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(strings.TrimSuffix(host, "."), ".") {
		if label == "" || len(label) > 63 || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return false
		}
		for _, r := range label {
			if !(r == '-' || r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
				return false
			}
		}
	}
	return true
}

// ValidateOutputFormat reports whether format is a supported CLI output format.
func ValidateOutputFormat(format string) bool {
	validFormats := map[string]bool{
		"table": true,
		"json":  true,
		"yaml":  true,
	}
	return validFormats[format]
}
