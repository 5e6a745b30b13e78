package httpclient

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrResponseDecode wraps failures while reading or decoding a response
// body. It is transient: the attempt is repeated.
var ErrResponseDecode = errors.New("httpclient: response decode failed")

// Response wraps http.Response with a body that was fully read before the
// session that produced it was released.
//
// Example:
//
//	resp, err := client.Get(ctx, "https://example.com/")
//	if err != nil {
//	    return err
//	}
//	if resp.IsError() {
//	    log.Printf("status %d: %s", resp.StatusCode, resp.String())
//	}
type Response struct {
	// Response embeds the standard http.Response.
	// Body is replaced by a reader over the cached bytes.
	*http.Response

	body     []byte
	finalURL string
	attempts int
}

// newResponse drains and closes resp.Body, caching its bytes.
// requestURL is reported by FinalURL when resp carries no request.
func newResponse(resp *http.Response, requestURL string) (*Response, error) {
	var body []byte
	if resp.Body != nil {
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrResponseDecode, err)
		}
		body = data
	}

	return newResponseFromBytes(resp, body, requestURL), nil
}

// newResponseFromBytes wraps a response whose body is already read.
func newResponseFromBytes(resp *http.Response, body []byte, requestURL string) *Response {
	resp.Body = io.NopCloser(bytes.NewReader(body))

	finalURL := requestURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		Response: resp,
		body:     body,
		finalURL: finalURL,
	}
}

// Body returns the response body.
func (r *Response) Body() []byte {
	return r.body
}

// String returns the response body as a string.
func (r *Response) String() string {
	return string(r.body)
}

// FinalURL returns the URL of the last request after redirects.
func (r *Response) FinalURL() string {
	return r.finalURL
}

// IsSuccess reports a 2xx status code.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsError reports a 4xx or 5xx status code.
func (r *Response) IsError() bool {
	return r.StatusCode >= 400
}

// Attempts returns how many attempts the call made, this one included.
func (r *Response) Attempts() int {
	return r.attempts
}
