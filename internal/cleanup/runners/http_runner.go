package runner

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ScanCleanup/internal/shared/constants"
)

// HTTPRunner fetches a console page. Redirects are not followed unless asked
// for, since a redirect to the maintenance page means the console is not ready.
type HTTPRunner struct {
	client *http.Client
}

func NewHTTPRunner(timeout time.Duration) *HTTPRunner {
	if timeout <= 0 {
		timeout = constants.HTTPProbeTimeout
	}
	return &HTTPRunner{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}
}

func (r *HTTPRunner) Execute(ctx context.Context, target string, options map[string]interface{}) (map[string]interface{}, error) {
	fullURL, err := r.normalizeURL(target)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	followRedirects := getBoolOption(options, "follow_redirects", false)
	verifySSL := getBoolOption(options, "verify_ssl", true)

	client := r.configureClient(followRedirects, verifySSL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range getHeadersOption(options) {
		req.Header.Set(key, value)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "ScanCleanup/1.0")
	}

	start := time.Now()
	resp, err := client.Do(req)
	responseTime := time.Since(start)

	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	result := map[string]interface{}{
		"status_code":   resp.StatusCode,
		"status":        resp.Status,
		"response_time": responseTime.Milliseconds(),
		"url":           fullURL,
	}

	if location := resp.Header.Get("Location"); location != "" {
		result["location"] = location
	}

	if resp.TLS != nil && len(resp.TLS.PeerCertificates) > 0 {
		cert := resp.TLS.PeerCertificates[0]
		result["ssl"] = map[string]interface{}{
			"valid":      time.Now().Before(cert.NotAfter),
			"expires_at": cert.NotAfter.Format(time.RFC3339),
			"subject":    cert.Subject.String(),
		}
	}

	return result, nil
}

func (r *HTTPRunner) normalizeURL(target string) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		httpsURL, err := url.Parse("https://" + target)
		if err != nil || httpsURL.Host == "" {
			return "", fmt.Errorf("invalid URL format: %s", target)
		}
		return httpsURL.String(), nil
	}
	return parsed.String(), nil
}

func (r *HTTPRunner) configureClient(followRedirects, verifySSL bool) *http.Client {
	transport := r.client.Transport.(*http.Transport).Clone()
	transport.TLSClientConfig.InsecureSkipVerify = !verifySSL

	client := *r.client
	client.Transport = transport

	if !followRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &client
}
