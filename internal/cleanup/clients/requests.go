package client

import (
	"bytes"
	"encoding/xml"
	"strings"
	"time"

	"ScanCleanup/internal/cleanup/domain"
)

const (
	opLogin        = "login"
	opLogout       = "logout"
	opScanActivity = "scan activity"
	opScanResume   = "scan resume"
	opScanStop     = "scan stop"
	opSiteConfig   = "site config"
)

// responseElements maps each operation to the root element of its reply.
var responseElements = map[string]string{
	opLogin:        "LoginResponse",
	opLogout:       "LogoutResponse",
	opScanActivity: "ScanActivityResponse",
	opScanResume:   "ScanResumeResponse",
	opScanStop:     "ScanStopResponse",
	opSiteConfig:   "SiteConfigResponse",
}

// startTimeLayout is the console timestamp format without its trailing
// milliseconds, e.g. 20140904T101010123.
const startTimeLayout = "20060102T150405"

type loginRequest struct {
	XMLName  xml.Name `xml:"LoginRequest"`
	UserID   string   `xml:"user-id,attr"`
	Password string   `xml:"password,attr"`
}

type logoutRequest struct {
	XMLName   xml.Name `xml:"LogoutRequest"`
	SessionID string   `xml:"session-id,attr"`
}

type scanActivityRequest struct {
	XMLName   xml.Name `xml:"ScanActivityRequest"`
	SessionID string   `xml:"session-id,attr"`
}

type scanResumeRequest struct {
	XMLName   xml.Name `xml:"ScanResumeRequest"`
	SessionID string   `xml:"session-id,attr"`
	ScanID    int64    `xml:"scan-id,attr"`
}

type scanStopRequest struct {
	XMLName   xml.Name `xml:"ScanStopRequest"`
	SessionID string   `xml:"session-id,attr"`
	ScanID    int64    `xml:"scan-id,attr"`
}

type siteConfigRequest struct {
	XMLName   xml.Name `xml:"SiteConfigRequest"`
	SessionID string   `xml:"session-id,attr"`
	SiteID    int64    `xml:"site-id,attr"`
}

// apiResult is embedded in every response; success="0" comes with a Failure.
type apiResult struct {
	Success string      `xml:"success,attr"`
	Failure *apiFailure `xml:"Failure"`
}

type apiFailure struct {
	Message   string `xml:"message"`
	Exception *struct {
		Message string `xml:"message"`
	} `xml:"Exception"`
}

type apiResponse interface {
	result() *apiResult
}

func (r *apiResult) result() *apiResult {
	return r
}

func (r *apiResult) ok() bool {
	return r.Success == "1" || strings.EqualFold(r.Success, "true")
}

func (r *apiResult) failureMessage() string {
	if r.Failure == nil {
		return "request was not successful"
	}
	if r.Failure.Exception != nil && r.Failure.Exception.Message != "" {
		return strings.TrimSpace(r.Failure.Exception.Message)
	}
	if r.Failure.Message != "" {
		return strings.TrimSpace(r.Failure.Message)
	}
	return "request was not successful"
}

type loginResponse struct {
	apiResult
	SessionID string `xml:"session-id,attr"`
}

type emptyResponse struct {
	apiResult
}

type scanActivityResponse struct {
	apiResult
	Scans []scanSummary `xml:"ScanSummary"`
}

type scanSummary struct {
	ScanID    int64  `xml:"scan-id,attr"`
	SiteID    int64  `xml:"site-id,attr"`
	EngineID  int64  `xml:"engine-id,attr"`
	Name      string `xml:"name,attr"`
	StartTime string `xml:"startTime,attr"`
	Status    string `xml:"status,attr"`
	Nodes     struct {
		Live int `xml:"live,attr"`
	} `xml:"nodes"`
}

func (s scanSummary) toRecord() domain.ScanRecord {
	return domain.ScanRecord{
		ID:               s.ScanID,
		SiteID:           s.SiteID,
		Name:             s.Name,
		Status:           domain.ParseScanStatus(s.Status),
		DiscoveredAssets: s.Nodes.Live,
		EngineID:         s.EngineID,
		StartTime:        parseStartTime(s.StartTime),
	}
}

type siteConfigResponse struct {
	apiResult
	Site struct {
		ID         int64  `xml:"id,attr"`
		Name       string `xml:"name,attr"`
		ScanConfig struct {
			TemplateID string `xml:"templateID,attr"`
		} `xml:"ScanConfig"`
	} `xml:"Site"`
}

// documentRoot returns the local name of the first element in data, or "" when
// there is none.
func documentRoot(data []byte) string {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	for {
		tok, err := decoder.Token()
		if err != nil {
			return ""
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local
		}
	}
}

func parseStartTime(raw string) time.Time {
	if len(raw) < len(startTimeLayout) {
		return time.Time{}
	}
	t, err := time.ParseInLocation(startTimeLayout, raw[:len(startTimeLayout)], time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}
