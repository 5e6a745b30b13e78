package httpclient

import (
	"context"
	"net/http"
	"sync"
)

var (
	defaultOnce   sync.Once
	defaultClient *Client
)

// Default returns the client behind the package-level functions. It is
// built on first use from BYPASS_* variables. If they are invalid the
// problem is logged and built-in defaults are used.
func Default() *Client {
	defaultOnce.Do(func() {
		c, err := NewFromEnv(EnvPrefix)
		if err != nil {
			c = New()
			c.config.Logger.Error("invalid environment configuration, using defaults", Fields{
				"error": err.Error(),
			})
		}
		defaultClient = c
	})
	return defaultClient
}

// Do performs a call with the default client.
func Do(ctx context.Context, method, rawURL string, opts ...RequestOption) (*Response, error) {
	return Default().Do(ctx, method, rawURL, opts...)
}

// Get performs a GET call with the default client.
func Get(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	return Default().Do(ctx, http.MethodGet, rawURL, opts...)
}

// Post performs a POST call with the default client.
func Post(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	return Default().Do(ctx, http.MethodPost, rawURL, opts...)
}

// Put performs a PUT call with the default client.
func Put(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	return Default().Do(ctx, http.MethodPut, rawURL, opts...)
}

// Delete performs a DELETE call with the default client.
func Delete(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	return Default().Do(ctx, http.MethodDelete, rawURL, opts...)
}

// Options performs an OPTIONS call with the default client.
func Options(ctx context.Context, rawURL string, opts ...RequestOption) (*Response, error) {
	return Default().Do(ctx, http.MethodOptions, rawURL, opts...)
}
