package runner

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"

	"ScanCleanup/internal/shared/constants"
)

const (
	resolvConfPath   = "/etc/resolv.conf"
	fallbackResolver = "8.8.8.8:53"
)

// DNSRunner resolves the console host name through a DNS server.
type DNSRunner struct {
	timeout time.Duration
	server  string
}

// NewDNSRunner queries server, or the first resolv.conf nameserver when server is empty.
func NewDNSRunner(server string) *DNSRunner {
	return &DNSRunner{
		timeout: constants.DNSTimeout,
		server:  server,
	}
}

func (r *DNSRunner) Execute(ctx context.Context, target string, options map[string]interface{}) (map[string]interface{}, error) {
	host := extractHost(target)
	if ip := net.ParseIP(host); ip != nil {
		return map[string]interface{}{
			"host":    host,
			"records": []string{ip.String()},
			"skipped": true,
		}, nil
	}

	recordType := getStringOption(options, "record_type", "A")
	server := getStringOption(options, "server", r.defaultServer())
	timeout := getDurationOption(options, "timeout", r.timeout)

	client := &dns.Client{
		Timeout: timeout,
	}

	msg := dns.Msg{}
	msg.SetQuestion(dns.Fqdn(host), recordTypeToDNSType(recordType))

	response, rtt, err := client.ExchangeContext(ctx, &msg, server)
	if err != nil {
		return nil, fmt.Errorf("DNS query failed: %w", err)
	}

	if response.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("DNS error: %s", dns.RcodeToString[response.Rcode])
	}

	records := make([]string, 0, len(response.Answer))
	for _, answer := range response.Answer {
		switch rr := answer.(type) {
		case *dns.A:
			records = append(records, rr.A.String())
		case *dns.AAAA:
			records = append(records, rr.AAAA.String())
		case *dns.CNAME:
			records = append(records, rr.Target)
		default:
			records = append(records, answer.String())
		}
	}

	result := map[string]interface{}{
		"host":          host,
		"records":       records,
		"server":        server,
		"response_time": rtt.Milliseconds(),
		"answer_count":  len(response.Answer),
		"record_type":   recordType,
	}

	if ttl := extractMinTTL(response.Answer); ttl > 0 {
		result["ttl"] = ttl
	}

	return result, nil
}

func (r *DNSRunner) defaultServer() string {
	if r.server != "" {
		return r.server
	}
	conf, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil || len(conf.Servers) == 0 {
		return fallbackResolver
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port)
}

func recordTypeToDNSType(recordType string) uint16 {
	switch recordType {
	case "AAAA":
		return dns.TypeAAAA
	case "CNAME":
		return dns.TypeCNAME
	default:
		return dns.TypeA
	}
}

func extractMinTTL(answers []dns.RR) uint32 {
	if len(answers) == 0 {
		return 0
	}

	minTTL := answers[0].Header().Ttl
	for _, answer := range answers[1:] {
		if answer.Header().Ttl < minTTL {
			minTTL = answer.Header().Ttl
		}
	}
	return minTTL
}
