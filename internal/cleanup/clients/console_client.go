package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"ScanCleanup/internal/cleanup/domain"
	"ScanCleanup/internal/shared/constants"
)

const (
	defaultAPIPath  = "/api/1.1/xml"
	maxResponseSize = 16 << 20
)

// ClientConfig is everything needed to talk to one console.
type ClientConfig struct {
	BaseURL            string
	APIPath            string
	Username           string
	Password           string
	CACertPath         string
	InsecureSkipVerify bool
	RequestTimeout     time.Duration
}

// ConsoleClient is a session-based client for the console XML API. It holds a
// single session and is safe for use by one loop at a time plus concurrent
// readers of the session state.
type ConsoleClient struct {
	baseURL  string
	apiPath  string
	username string
	password string
	timeout  time.Duration
	http     *http.Client
	logger   *slog.Logger

	mu        sync.RWMutex
	sessionID string
}

func NewConsoleClient(cfg ClientConfig, logger *slog.Logger) (*ConsoleClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("console base URL is required: %w", domain.ErrConfiguration)
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = constants.ConsoleRequestTimeout
	}

	apiPath := cfg.APIPath
	if apiPath == "" {
		apiPath = defaultAPIPath
	}

	if logger == nil {
		logger = slog.Default()
	}

	var roots *x509.CertPool
	if cfg.CACertPath != "" {
		rootPEM, err := os.ReadFile(cfg.CACertPath)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate %s: %w", cfg.CACertPath, err)
		}
		roots = x509.NewCertPool()
		if ok := roots.AppendCertsFromPEM(rootPEM); !ok {
			return nil, fmt.Errorf("could not append certs from PEM %s: %w", cfg.CACertPath, domain.ErrConfiguration)
		}
	}

	return &ConsoleClient{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiPath:  apiPath,
		username: cfg.Username,
		password: cfg.Password,
		timeout:  timeout,
		logger:   logger,
		http: &http.Client{
			Timeout: timeout,
			// A console that is starting up redirects the API to a status page.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: cfg.InsecureSkipVerify,
					RootCAs:            roots,
					MinVersion:         tls.VersionTLS12,
				},
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
	}, nil
}

// Login opens a new session, replacing any previous one.
func (c *ConsoleClient) Login(ctx context.Context) error {
	c.logger.Info("logging into console", "console", c.baseURL, "user", c.username)

	var resp loginResponse
	err := c.doRequest(ctx, opLogin, loginRequest{UserID: c.username, Password: c.password}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Kind == nil {
			return fmt.Errorf("%w: %s", ErrLoginRejected, apiErr.Message)
		}
		return err
	}
	if resp.SessionID == "" {
		return &APIError{Op: opLogin, Message: "empty session id", Kind: domain.ErrSessionExpired}
	}

	c.mu.Lock()
	c.sessionID = resp.SessionID
	c.mu.Unlock()

	c.logger.Debug("console session opened", "console", c.baseURL)
	return nil
}

// Logout invalidates the current session. It is a no-op without a session.
func (c *ConsoleClient) Logout(ctx context.Context) error {
	session := c.session()
	if session == "" {
		c.logger.Debug("not logged in, nothing to do to logout")
		return nil
	}

	c.mu.Lock()
	c.sessionID = ""
	c.mu.Unlock()

	c.logger.Info("logging out of console", "console", c.baseURL)
	var resp emptyResponse
	return c.doRequest(ctx, opLogout, logoutRequest{SessionID: session}, &resp)
}

// LoggedIn reports whether the client holds a session.
func (c *ConsoleClient) LoggedIn() bool {
	return c.session() != ""
}

// ScanActivity returns every scan the console currently tracks as in progress,
// paused ones included.
func (c *ConsoleClient) ScanActivity(ctx context.Context) ([]domain.ScanRecord, error) {
	session := c.session()
	if session == "" {
		return nil, &APIError{Op: opScanActivity, Message: ErrNotLoggedIn.Error(), Kind: domain.ErrSessionExpired}
	}

	var resp scanActivityResponse
	if err := c.doRequest(ctx, opScanActivity, scanActivityRequest{SessionID: session}, &resp); err != nil {
		return nil, err
	}

	scans := make([]domain.ScanRecord, 0, len(resp.Scans))
	for _, summary := range resp.Scans {
		scans = append(scans, summary.toRecord())
	}
	return scans, nil
}

// ScanQueue splits a single scan activity snapshot into the scans occupying
// the queue and the paused ones.
func (c *ConsoleClient) ScanQueue(ctx context.Context) (active, paused []domain.ScanRecord, err error) {
	scans, err := c.ScanActivity(ctx)
	if err != nil {
		return nil, nil, err
	}
	return filterScans(scans, isQueued), filterScans(scans, domain.ScanRecord.IsPaused), nil
}

// ActiveScans returns the scans occupying the console scan queue.
func (c *ConsoleClient) ActiveScans(ctx context.Context) ([]domain.ScanRecord, error) {
	scans, err := c.ScanActivity(ctx)
	if err != nil {
		return nil, err
	}
	return filterScans(scans, isQueued), nil
}

// PausedScans returns the scans that are suspended and can be resumed.
func (c *ConsoleClient) PausedScans(ctx context.Context) ([]domain.ScanRecord, error) {
	scans, err := c.ScanActivity(ctx)
	if err != nil {
		return nil, err
	}
	return filterScans(scans, domain.ScanRecord.IsPaused), nil
}

func (c *ConsoleClient) ResumeScan(ctx context.Context, scanID int64) error {
	session := c.session()
	if session == "" {
		return &APIError{Op: opScanResume, Message: ErrNotLoggedIn.Error(), Kind: domain.ErrSessionExpired}
	}
	var resp emptyResponse
	return c.doRequest(ctx, opScanResume, scanResumeRequest{SessionID: session, ScanID: scanID}, &resp)
}

func (c *ConsoleClient) StopScan(ctx context.Context, scanID int64) error {
	session := c.session()
	if session == "" {
		return &APIError{Op: opScanStop, Message: ErrNotLoggedIn.Error(), Kind: domain.ErrSessionExpired}
	}
	var resp emptyResponse
	return c.doRequest(ctx, opScanStop, scanStopRequest{SessionID: session, ScanID: scanID}, &resp)
}

// Site loads the name and scan template of a site.
func (c *ConsoleClient) Site(ctx context.Context, siteID int64) (*domain.SiteInfo, error) {
	session := c.session()
	if session == "" {
		return nil, &APIError{Op: opSiteConfig, Message: ErrNotLoggedIn.Error(), Kind: domain.ErrSessionExpired}
	}

	var resp siteConfigResponse
	if err := c.doRequest(ctx, opSiteConfig, siteConfigRequest{SessionID: session, SiteID: siteID}, &resp); err != nil {
		return nil, err
	}

	return &domain.SiteInfo{
		ID:             siteID,
		Name:           resp.Site.Name,
		ScanTemplateID: resp.Site.ScanConfig.TemplateID,
	}, nil
}

func (c *ConsoleClient) session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// doRequest posts one XML API request under its own deadline. Transport
// failures, timeouts, redirects, unexpected statuses and replies that are not
// the expected API document become ErrConnectivity; 401/403 and session
// failures become ErrSessionExpired.
func (c *ConsoleClient) doRequest(ctx context.Context, op string, payload any, out apiResponse) error {
	body, err := xml.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", op, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+c.apiPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("Accept", "text/xml")
	req.Header.Set("User-Agent", "ScanCleanup/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &APIError{Op: op, Message: err.Error(), Kind: domain.ErrConnectivity}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind := domain.ErrSessionExpired
		if op == opLogin {
			kind = nil
		}
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Kind: kind}
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		message := "redirected"
		if location := resp.Header.Get("Location"); location != "" {
			message = "redirected to " + location
		}
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: message, Kind: domain.ErrConnectivity}
	case resp.StatusCode != http.StatusOK:
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode), Kind: domain.ErrConnectivity}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: err.Error(), Kind: domain.ErrConnectivity}
	}

	if root, want := documentRoot(data), responseElements[op]; root != want {
		return &APIError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("unexpected <%s> document, want <%s>", root, want),
			Kind:       domain.ErrConnectivity,
		}
	}

	if err := xml.Unmarshal(data, out); err != nil {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err), Kind: domain.ErrConnectivity}
	}

	result := out.result()
	if result.Success == "" {
		return &APIError{Op: op, StatusCode: resp.StatusCode, Message: "response has no success attribute", Kind: domain.ErrConnectivity}
	}

	if !result.ok() {
		if result.Failure == nil {
			return &APIError{Op: op, StatusCode: resp.StatusCode, Message: "unsuccessful response without a failure", Kind: domain.ErrConnectivity}
		}
		return classifyFailure(op, result.failureMessage())
	}

	return nil
}

func isQueued(s domain.ScanRecord) bool {
	return !s.IsPaused()
}

func filterScans(scans []domain.ScanRecord, keep func(domain.ScanRecord) bool) []domain.ScanRecord {
	filtered := make([]domain.ScanRecord, 0, len(scans))
	for _, scan := range scans {
		if keep(scan) {
			filtered = append(filtered, scan)
		}
	}
	return filtered
}
