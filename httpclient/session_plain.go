package httpclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
)

// plainSession issues requests through net/http with a transport of its own.
type plainSession struct {
	client    *http.Client
	transport *http.Transport
	headers   map[string]string
	cookies   []*http.Cookie
}

// newPlainSession builds the transport chain for one call:
// base (or mock) -> chaos -> otel.
func newPlainSession(cfg *internalConfig, sc SessionConfig) (*plainSession, error) {
	s := &plainSession{
		headers: sc.Headers,
		cookies: cookieList(sc.Cookies),
	}

	var base http.RoundTripper
	if cfg.MockTransport != nil {
		base = cfg.MockTransport
	} else {
		s.transport = cfg.buildTransport(sc)
		base = s.transport
	}

	if cfg.Chaos != nil {
		base = newChaosTransport(base, *cfg.Chaos)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	s.client = &http.Client{
		Transport: newOtelTransport(base, cfg),
		Timeout:   cfg.httpConfig.Timeout,
		Jar:       jar,
	}

	return s, nil
}

// Do implements Session.
func (s *plainSession) Do(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, err
	}

	for k, v := range s.headers {
		httpReq.Header.Set(k, v)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	for _, c := range s.cookies {
		httpReq.AddCookie(c)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}

	return newResponse(resp, req.URL)
}

// Close implements Session.
func (s *plainSession) Close() error {
	if s.transport != nil {
		s.transport.CloseIdleConnections()
	}
	return nil
}

// cookieList converts name/value pairs into request cookies.
func cookieList(cookies map[string]string) []*http.Cookie {
	if len(cookies) == 0 {
		return nil
	}
	list := make([]*http.Cookie, 0, len(cookies))
	for name, value := range cookies {
		list = append(list, &http.Cookie{Name: name, Value: value})
	}
	return list
}
