package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
)

type logEntry struct {
	level  string
	msg    string
	fields Fields
}

// capturingLogger records every line for assertions.
type capturingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *capturingLogger) Warn(msg string, fields Fields) {
	l.add("warn", msg, fields)
}

func (l *capturingLogger) Error(msg string, fields Fields) {
	l.add("error", msg, fields)
}

func (l *capturingLogger) add(level, msg string, fields Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *capturingLogger) count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

func (l *capturingLogger) byLevel(level string) []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []logEntry
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e)
		}
	}
	return out
}

// scriptedSession answers attempt n with outcomes[n-1], repeating the last
// outcome once the script runs out.
type scriptedSession struct {
	mu       sync.Mutex
	outcomes []outcome
	requests []*Request
	closed   int
}

type outcome struct {
	status int
	body   string
	err    error
}

func (s *scriptedSession) Do(_ context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	idx := len(s.requests) - 1
	if idx >= len(s.outcomes) {
		idx = len(s.outcomes) - 1
	}

	o := s.outcomes[idx]
	if o.err != nil {
		return nil, o.err
	}
	return stubResponse(o.status, o.body, req.URL), nil
}

func (s *scriptedSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *scriptedSession) attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// sessionRecorder is a SessionFactory that hands out scripted sessions and
// keeps every SessionConfig it was called with.
type sessionRecorder struct {
	mu       sync.Mutex
	outcomes []outcome
	sessions []*scriptedSession
	configs  []SessionConfig
}

func newSessionRecorder(outcomes ...outcome) *sessionRecorder {
	return &sessionRecorder{outcomes: outcomes}
}

func (r *sessionRecorder) factory(sc SessionConfig) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &scriptedSession{outcomes: r.outcomes}
	r.sessions = append(r.sessions, s)
	r.configs = append(r.configs, sc)
	return s, nil
}

func (r *sessionRecorder) opened() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *sessionRecorder) last() *scriptedSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) == 0 {
		return nil
	}
	return r.sessions[len(r.sessions)-1]
}

func stubResponse(status int, body, requestURL string) *Response {
	resp := &http.Response{
		StatusCode: status,
		Status:     strconv.Itoa(status) + " " + http.StatusText(status),
		Header:     make(http.Header),
	}
	return newResponseFromBytes(resp, []byte(body), requestURL)
}

// echo is what the test origin reports about a request.
type echo struct {
	Method      string            `json:"method"`
	Query       map[string]string `json:"query"`
	Headers     map[string]string `json:"headers"`
	Cookies     map[string]string `json:"cookies"`
	ContentType string            `json:"content_type"`
	Body        string            `json:"body"`
}

// newOrigin starts a test server:
//
//	/echo            reports the request as JSON
//	/status/{code}   answers with the given status
//	/redirect        redirects to /echo
func newOrigin(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(originRouter())
	t.Cleanup(srv.Close)
	return srv
}

// newTLSOrigin is newOrigin over HTTPS with httptest's self-signed certificate.
func newTLSOrigin(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewTLSServer(originRouter())
	t.Cleanup(srv.Close)
	return srv
}

func originRouter() http.Handler {
	r := chi.NewRouter()
	r.HandleFunc("/echo", func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)

		e := echo{
			Method:      req.Method,
			Query:       map[string]string{},
			Headers:     map[string]string{},
			Cookies:     map[string]string{},
			ContentType: req.Header.Get("Content-Type"),
			Body:        string(body),
		}
		for k := range req.URL.Query() {
			e.Query[k] = req.URL.Query().Get(k)
		}
		for k := range req.Header {
			e.Headers[k] = req.Header.Get(k)
		}
		for _, c := range req.Cookies() {
			e.Cookies[c.Name] = c.Value
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(e)
	})
	r.HandleFunc("/status/{code}", func(w http.ResponseWriter, req *http.Request) {
		code, err := strconv.Atoi(chi.URLParam(req, "code"))
		if err != nil {
			code = http.StatusBadRequest
		}
		w.WriteHeader(code)
		_, _ = w.Write([]byte(http.StatusText(code)))
	})
	r.Get("/redirect", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/echo", http.StatusFound)
	})
	return r
}

func decodeEcho(t *testing.T, resp *Response) echo {
	t.Helper()
	var e echo
	if err := json.Unmarshal(resp.Body(), &e); err != nil {
		t.Fatalf("decode echo: %v (body %q)", err, resp.String())
	}
	return e
}
