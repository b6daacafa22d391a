package runner

import (
	"fmt"
)

type Factory struct {
	httpRunner *HTTPRunner
	tcpRunner  *TCPRunner
	dnsRunner  *DNSRunner
}

func NewFactory(http *HTTPRunner, tcp *TCPRunner, dns *DNSRunner) *Factory {
	return &Factory{
		httpRunner: http,
		tcpRunner:  tcp,
		dnsRunner:  dns,
	}
}

func (f *Factory) GetRunner(probeType ProbeType) (Runner, error) {
	switch probeType {
	case HTTPProbe:
		return f.httpRunner, nil
	case TCPProbe:
		return f.tcpRunner, nil
	case DNSProbe:
		return f.dnsRunner, nil
	default:
		return nil, fmt.Errorf("unknown probe type: %s", probeType)
	}
}
