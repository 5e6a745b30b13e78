package httpclient

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"sync"
)

// MockTransport replaces the network under plain sessions in tests.
//
// An attempt is answered by the first source that has something for it:
// the queue (consumed in order), then routes (first match wins), then the
// fallback set with Respond or Fail. That makes retry sequences easy to
// script:
//
//	mock := httpclient.NewMockTransport().
//	    QueueError(io.ErrUnexpectedEOF).
//	    QueueError(io.ErrUnexpectedEOF).
//	    Respond(http.StatusOK, `ok`)
//
//	client := httpclient.New(httpclient.WithMockTransport(mock))
//	resp, _ := client.Get(ctx, "https://example.com")
//	// resp.Attempts() == 3
type MockTransport struct {
	mu       sync.Mutex
	queue    []mockReply
	routes   []mockRoute
	fallback *mockReply
	calls    []*http.Request
	onCall   func(*http.Request)
}

// RequestMatcher selects the requests a route answers.
type RequestMatcher func(*http.Request) bool

// MatchPath matches an exact URL path.
func MatchPath(path string) RequestMatcher {
	return func(req *http.Request) bool {
		return req.URL.Path == path
	}
}

// MatchPathRegex matches URL paths against pattern. It panics if pattern
// does not compile.
func MatchPathRegex(pattern string) RequestMatcher {
	re := regexp.MustCompile(pattern)
	return func(req *http.Request) bool {
		return re.MatchString(req.URL.Path)
	}
}

// MatchMethod matches a request method.
func MatchMethod(method string) RequestMatcher {
	return func(req *http.Request) bool {
		return req.Method == method
	}
}

// mockReply is either an error or a response built fresh per attempt.
type mockReply struct {
	status int
	body   []byte
	err    error
}

func (r mockReply) build(req *http.Request) (*http.Response, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &http.Response{
		Status:        strconv.Itoa(r.status) + " " + http.StatusText(r.status),
		StatusCode:    r.status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        make(http.Header),
		Body:          io.NopCloser(bytes.NewReader(r.body)),
		ContentLength: int64(len(r.body)),
		Request:       req,
	}, nil
}

type mockRoute struct {
	match RequestMatcher
	reply mockReply
}

// NewMockTransport creates a MockTransport with nothing to answer.
func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// QueueResponse answers the next attempt with a response.
func (m *MockTransport) QueueResponse(status int, body string) *MockTransport {
	return m.enqueue(mockReply{status: status, body: []byte(body)})
}

// QueueError fails the next attempt with err.
func (m *MockTransport) QueueError(err error) *MockTransport {
	return m.enqueue(mockReply{err: err})
}

func (m *MockTransport) enqueue(r mockReply) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, r)
	return m
}

// Respond answers every otherwise unanswered attempt with a response.
func (m *MockTransport) Respond(status int, body string) *MockTransport {
	return m.setFallback(mockReply{status: status, body: []byte(body)})
}

// Fail makes every otherwise unanswered attempt fail with err.
func (m *MockTransport) Fail(err error) *MockTransport {
	return m.setFallback(mockReply{err: err})
}

func (m *MockTransport) setFallback(r mockReply) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &r
	return m
}

// Route answers requests selected by match with a response.
func (m *MockTransport) Route(match RequestMatcher, status int, body string) *MockTransport {
	return m.addRoute(match, mockReply{status: status, body: []byte(body)})
}

// RouteError fails requests selected by match with err.
func (m *MockTransport) RouteError(match RequestMatcher, err error) *MockTransport {
	return m.addRoute(match, mockReply{err: err})
}

func (m *MockTransport) addRoute(match RequestMatcher, r mockReply) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, mockRoute{match: match, reply: r})
	return m
}

// OnRequest sets a hook that sees each request before it is answered.
func (m *MockTransport) OnRequest(fn func(*http.Request)) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCall = fn
	return m
}

// RoundTrip implements http.RoundTripper.
func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	hook := m.onCall
	m.mu.Unlock()

	// The hook runs unlocked so it may inspect the transport.
	if hook != nil {
		hook(req)
	}

	reply, ok := m.next(req)
	if !ok {
		return nil, fmt.Errorf("httpclient: mock transport has no reply for %s %s", req.Method, req.URL)
	}
	return reply.build(req)
}

func (m *MockTransport) next(req *http.Request) (mockReply, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) > 0 {
		r := m.queue[0]
		m.queue = m.queue[1:]
		return r, true
	}
	for _, route := range m.routes {
		if route.match(req) {
			return route.reply, true
		}
	}
	if m.fallback != nil {
		return *m.fallback, true
	}
	return mockReply{}, false
}

// Calls returns every request seen, oldest first.
func (m *MockTransport) Calls() []*http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*http.Request(nil), m.calls...)
}

// CallCount returns the number of requests seen.
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastCall returns the latest request, or nil.
func (m *MockTransport) LastCall() *http.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

// Reset forgets recorded calls and every scripted reply.
func (m *MockTransport) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue, m.routes, m.fallback = nil, nil, nil
	m.calls, m.onCall = nil, nil
}

// WithMockTransport makes plain sessions send through mock instead of the
// network.
func WithMockTransport(mock *MockTransport) Option {
	return func(cfg *internalConfig) {
		cfg.MockTransport = mock
	}
}
