// Package consoletest provides an in-process fake console speaking the XML
// API subset used by the cleanup tooling.
package consoletest

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

const APIPath = "/api/1.1/xml"

type Scan struct {
	ID        int64
	SiteID    int64
	EngineID  int64
	Name      string
	Status    string
	Live      int
	StartTime string
}

type Site struct {
	ID         int64
	Name       string
	TemplateID string
}

type failure struct {
	status  int
	message string
}

// Server is a fake console. Zero-valued credentials accept any login.
type Server struct {
	*httptest.Server

	Username string
	Password string
	// FinishOnResume removes a scan from scan activity as soon as it is
	// resumed, so cleanup runs drain deterministically.
	FinishOnResume bool

	mu       sync.Mutex
	session  string
	sessions int
	scans    []*Scan
	sites    map[int64]Site
	calls    map[string]int
	resumed  []int64
	stopped  []int64
	failures map[string][]failure
}

func NewServer() *Server {
	s := &Server{
		sites:    make(map[int64]Site),
		calls:    make(map[string]int),
		failures: make(map[string][]failure),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

func (s *Server) SetScans(scans ...Scan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scans = s.scans[:0]
	for i := range scans {
		scan := scans[i]
		s.scans = append(s.scans, &scan)
	}
}

func (s *Server) SetSite(site Site) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[site.ID] = site
}

// Scans returns a copy of the scans currently reported by scan activity.
func (s *Server) Scans() []Scan {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Scan, 0, len(s.scans))
	for _, scan := range s.scans {
		out = append(out, *scan)
	}
	return out
}

func (s *Server) Resumed() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.resumed...)
}

func (s *Server) Stopped() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.stopped...)
}

// Calls returns how many times a request element (e.g. "LoginRequest") was received.
func (s *Server) Calls(request string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[request]
}

func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

func (s *Server) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != ""
}

// FailNext makes the next request of the given kind answer with an HTTP status.
func (s *Server) FailNext(request string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[request] = append(s.failures[request], failure{status: status})
}

// FailNextMessage makes the next request of the given kind answer with an API failure.
func (s *Server) FailNextMessage(request, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[request] = append(s.failures[request], failure{message: message})
}

// ExpireSession invalidates the current session on the console side.
func (s *Server) ExpireSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = ""
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost || r.URL.Path != APIPath {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	name, attrs, err := rootElement(body)
	if err != nil {
		http.Error(w, "malformed xml", http.StatusBadRequest)
		return
	}
	response := responseName(name)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[name]++

	if queued := s.failures[name]; len(queued) > 0 {
		f := queued[0]
		s.failures[name] = queued[1:]
		if f.status != 0 {
			w.WriteHeader(f.status)
			return
		}
		writeFailure(w, response, f.message)
		return
	}

	if name == "LoginRequest" {
		if s.Username != "" && (attrs["user-id"] != s.Username || attrs["password"] != s.Password) {
			writeFailure(w, response, "Login failed")
			return
		}
		s.sessions++
		s.session = fmt.Sprintf("session-%d", s.sessions)
		writeXML(w, fmt.Sprintf(`<%s success="1" session-id="%s"/>`, response, s.session))
		return
	}

	if s.session == "" || attrs["session-id"] != s.session {
		writeFailure(w, response, "Invalid session ID")
		return
	}

	switch name {
	case "LogoutRequest":
		s.session = ""
		writeXML(w, fmt.Sprintf(`<%s success="1"/>`, response))
	case "ScanActivityRequest":
		var buf bytes.Buffer
		fmt.Fprintf(&buf, `<%s success="1">`, response)
		for _, scan := range s.scans {
			fmt.Fprintf(&buf, `<ScanSummary scan-id="%d" site-id="%d" engine-id="%d" name="%s" startTime="%s" status="%s">`,
				scan.ID, scan.SiteID, scan.EngineID, escape(scan.Name), escape(scan.StartTime), escape(scan.Status))
			fmt.Fprintf(&buf, `<nodes live="%d" dead="0" filtered="0" unresolved="0" other="0"/></ScanSummary>`, scan.Live)
		}
		fmt.Fprintf(&buf, `</%s>`, response)
		writeXML(w, buf.String())
	case "ScanResumeRequest":
		scan := s.find(attrs["scan-id"])
		if scan == nil || scan.Status != "paused" {
			writeFailure(w, response, "Scan is not paused")
			return
		}
		scan.Status = "running"
		s.resumed = append(s.resumed, scan.ID)
		if s.FinishOnResume {
			s.remove(scan.ID)
		}
		writeXML(w, fmt.Sprintf(`<%s success="1"/>`, response))
	case "ScanStopRequest":
		scan := s.find(attrs["scan-id"])
		if scan == nil {
			writeFailure(w, response, "Scan not found")
			return
		}
		s.stopped = append(s.stopped, scan.ID)
		s.remove(scan.ID)
		writeXML(w, fmt.Sprintf(`<%s success="1"/>`, response))
	case "SiteConfigRequest":
		id, _ := strconv.ParseInt(attrs["site-id"], 10, 64)
		site, ok := s.sites[id]
		if !ok {
			writeFailure(w, response, "Site not found")
			return
		}
		writeXML(w, fmt.Sprintf(`<%s success="1"><Site id="%d" name="%s"><ScanConfig templateID="%s"/></Site></%s>`,
			response, site.ID, escape(site.Name), escape(site.TemplateID), response))
	default:
		writeFailure(w, response, "Unsupported request "+name)
	}
}

func (s *Server) find(rawID string) *Scan {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return nil
	}
	for _, scan := range s.scans {
		if scan.ID == id {
			return scan
		}
	}
	return nil
}

func (s *Server) remove(id int64) {
	kept := s.scans[:0]
	for _, scan := range s.scans {
		if scan.ID != id {
			kept = append(kept, scan)
		}
	}
	s.scans = kept
}

func rootElement(body []byte) (string, map[string]string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	for {
		tok, err := decoder.Token()
		if err != nil {
			return "", nil, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			attrs := make(map[string]string, len(start.Attr))
			for _, attr := range start.Attr {
				attrs[attr.Name.Local] = attr.Value
			}
			return start.Name.Local, attrs, nil
		}
	}
}

func responseName(request string) string {
	if len(request) > len("Request") && request[len(request)-len("Request"):] == "Request" {
		return request[:len(request)-len("Request")] + "Response"
	}
	return "Response"
}

func writeFailure(w http.ResponseWriter, response, message string) {
	writeXML(w, fmt.Sprintf(`<%s success="0"><Failure><Exception><message>%s</message></Exception></Failure></%s>`,
		response, escape(message), response))
}

func writeXML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

func escape(v string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(v))
	return buf.String()
}
