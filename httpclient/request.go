package httpclient

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/kroma-labs/bypass-go/proxy"
)

// DefaultRetries is the number of attempts made when WithRetries is not used.
const DefaultRetries = 3

// RequestOptions is the per-call parameter bundle.
//
// Build it with RequestOption values rather than directly:
//
//	resp, err := client.Post(ctx, "https://api.example.com/login",
//	    httpclient.WithHeader("User-Agent", "bot/1.0"),
//	    httpclient.WithForm(map[string]string{"user": "john"}),
//	    httpclient.WithProxyString("http://10.0.0.1:3128"),
//	    httpclient.WithRetries(5),
//	)
type RequestOptions struct {
	// Headers are sent with every attempt of the call.
	Headers map[string]string

	// Cookies seed the session's cookies.
	Cookies map[string]string

	// Params are merged into the URL's query string.
	Params map[string]string

	// JSON is encoded as the request body (POST and PUT only).
	JSON any

	// Form is url-encoded as the request body (POST and PUT only).
	// When both JSON and Form are set, Form wins.
	Form map[string]string

	// Proxy routes the call through a proxy. Nil means the transport default.
	Proxy *proxy.Config

	// Retries is the total number of attempts, first one included.
	// Zero or less means no attempt is made.
	// Default: 3
	Retries int

	// NoWait skips the fingerprint transport's pacing delay.
	// The plain transport ignores it.
	NoWait bool
}

// RequestOption configures a single call.
type RequestOption func(*RequestOptions)

func newRequestOptions(defaultRetries int, opts ...RequestOption) *RequestOptions {
	ro := &RequestOptions{Retries: defaultRetries}
	for _, opt := range opts {
		opt(ro)
	}
	return ro
}

// WithHeaders merges headers into the call.
func WithHeaders(headers map[string]string) RequestOption {
	return func(ro *RequestOptions) {
		if ro.Headers == nil {
			ro.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			ro.Headers[k] = v
		}
	}
}

// WithHeader sets a single header.
func WithHeader(key, value string) RequestOption {
	return WithHeaders(map[string]string{key: value})
}

// WithCookies merges cookies into the call.
func WithCookies(cookies map[string]string) RequestOption {
	return func(ro *RequestOptions) {
		if ro.Cookies == nil {
			ro.Cookies = make(map[string]string, len(cookies))
		}
		for k, v := range cookies {
			ro.Cookies[k] = v
		}
	}
}

// WithParams merges query string parameters into the call.
func WithParams(params map[string]string) RequestOption {
	return func(ro *RequestOptions) {
		if ro.Params == nil {
			ro.Params = make(map[string]string, len(params))
		}
		for k, v := range params {
			ro.Params[k] = v
		}
	}
}

// WithJSON sets a JSON body.
func WithJSON(v any) RequestOption {
	return func(ro *RequestOptions) {
		ro.JSON = v
	}
}

// WithForm sets a form-encoded body.
func WithForm(fields map[string]string) RequestOption {
	return func(ro *RequestOptions) {
		ro.Form = fields
	}
}

// WithProxy routes the call through the given proxy pair. Scheme
// prefixes are stripped here, once.
func WithProxy(cfg proxy.Config) RequestOption {
	return func(ro *RequestOptions) {
		p := proxy.Normalize(cfg.HTTP, cfg.HTTPS)
		ro.Proxy = &p
	}
}

// WithProxyString routes the call through a single proxy, scheme prefix
// optional, for both http and https targets.
func WithProxyString(spec string) RequestOption {
	return WithProxy(proxy.Config{HTTP: spec, HTTPS: spec})
}

// WithRetries sets the total number of attempts.
func WithRetries(n int) RequestOption {
	return func(ro *RequestOptions) {
		ro.Retries = n
	}
}

// WithNoWait skips the fingerprint transport's pacing delay.
func WithNoWait() RequestOption {
	return func(ro *RequestOptions) {
		ro.NoWait = true
	}
}

// Request is the encoded form of a call handed to a Session.
// It is built once and replayed unchanged on every attempt.
type Request struct {
	// Method is the upper-case HTTP method.
	Method string

	// URL is the target with query parameters already merged.
	URL string

	// Body is the encoded body, nil when there is none.
	Body []byte

	// ContentType describes Body.
	ContentType string
}

// supportedMethods lists the verbs the client issues.
var supportedMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodPost:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

// carriesBody reports whether the verb sends JSON or form bodies.
func carriesBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut
}

// buildRequest validates the method and encodes URL and body.
func (ro *RequestOptions) buildRequest(method, rawURL string) (*Request, error) {
	method = strings.ToUpper(method)
	if !supportedMethods[method] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}

	target, err := buildURL(rawURL, ro.Params)
	if err != nil {
		return nil, err
	}

	req := &Request{Method: method, URL: target}
	if !carriesBody(method) {
		return req, nil
	}

	switch {
	case ro.Form != nil:
		values := make(url.Values, len(ro.Form))
		for k, v := range ro.Form {
			values.Set(k, v)
		}
		req.Body = []byte(values.Encode())
		req.ContentType = "application/x-www-form-urlencoded"
	case ro.JSON != nil:
		data, err := json.Marshal(ro.JSON)
		if err != nil {
			return nil, fmt.Errorf("httpclient: encode json body: %w", err)
		}
		req.Body = data
		req.ContentType = "application/json"
	}

	return req, nil
}

// buildURL merges params into the URL's query string.
func buildURL(rawURL string, params map[string]string) (string, error) {
	if len(params) == 0 {
		return rawURL, nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
