package httpclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"
)

// ErrExhausted means every attempt of a call failed transiently and no
// response was obtained. It is distinct from a response with an error
// status code, which is returned normally.
//
//	resp, err := client.Get(ctx, target)
//	switch {
//	case errors.Is(err, httpclient.ErrExhausted):
//	    // no response after all attempts
//	case err != nil:
//	    // non-transient failure (bad URL, cancelled, breaker open, ...)
//	case resp.IsError():
//	    // the server answered with 4xx/5xx
//	}
var ErrExhausted = errors.New("httpclient: attempts exhausted")

// errNoResponse is returned when a custom Session reports neither a
// response nor an error.
var errNoResponse = errors.New("httpclient: session returned no response")

// callState is what the retry loop learned about a call.
type callState struct {
	attempts  int
	lastErr   error
	transient bool
}

// execute runs the retry loop of one call inside its own session.
//
// ATTEMPT -> SUCCESS: return
// ATTEMPT -> TRANSIENT_FAILURE: log, attempt again while attempts remain
// ATTEMPT -> NON_TRANSIENT: return the error
// no attempts left -> ErrExhausted
func (c *Client) execute(
	ctx context.Context,
	callID string,
	req *Request,
	ro *RequestOptions,
) (*Response, *callState, error) {
	cfg := c.config
	attrs := c.callAttributes(req)
	state := &callState{}

	if ro.Retries <= 0 {
		cfg.Logger.Warn("no attempts allowed, skipping request", Fields{
			"call_id": callID,
			"method":  req.Method,
			"url":     req.URL,
			"retries": ro.Retries,
		})
		cfg.Metrics.recordRetryExhausted(ctx, attrs)
		return nil, state, fmt.Errorf("%w: retries=%d", ErrExhausted, ro.Retries)
	}

	session, err := c.factory(c.sessionConfig(ro))
	if err != nil {
		return nil, state, fmt.Errorf("httpclient: open session: %w", err)
	}
	cfg.Metrics.recordSessionOpened(ctx, attrs)
	defer func() {
		if cerr := session.Close(); cerr != nil {
			cfg.Logger.Warn("session close failed", Fields{
				"call_id": callID,
				"error":   cerr.Error(),
			})
		}
		cfg.Metrics.recordSessionClosed(ctx, attrs)
	}()

	resp, err := backoff.Retry(ctx, func() (*Response, error) {
		state.attempts++
		cfg.Metrics.recordAttempt(ctx, attrs, state.attempts)

		resp, err := c.attempt(ctx, session, callID, req, state.attempts)
		if err == nil {
			return resp, nil
		}

		state.lastErr = err
		state.transient = ctx.Err() == nil && cfg.Classifier(err)
		if !state.transient {
			return nil, backoff.Permanent(err)
		}

		cfg.Metrics.recordTransientFailure(ctx, attrs, errorType(err))
		cfg.Logger.Warn("request failed", Fields{
			"call_id":      callID,
			"method":       req.Method,
			"url":          req.URL,
			"attempt":      state.attempts,
			"max_attempts": ro.Retries,
			"error":        err.Error(),
		})
		return nil, err
	},
		backoff.WithBackOff(cfg.newBackOff()),
		backoff.WithMaxTries(uint(ro.Retries)),
		backoff.WithMaxElapsedTime(0),
	)

	switch {
	case err == nil:
		resp.attempts = state.attempts
		return resp, state, nil
	case !state.transient:
		return nil, state, state.lastErr
	case ctx.Err() != nil:
		// Cancelled while waiting between attempts.
		return nil, state, err
	}

	cfg.Logger.Error("request failed after all attempts", Fields{
		"call_id":  callID,
		"method":   req.Method,
		"url":      req.URL,
		"attempts": state.attempts,
		"error":    state.lastErr.Error(),
	})
	cfg.Metrics.recordRetryExhausted(ctx, attrs)

	return nil, state, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, state.attempts, state.lastErr)
}

// attempt issues one request through the rate limiter and breaker.
func (c *Client) attempt(
	ctx context.Context,
	session Session,
	callID string,
	req *Request,
	n int,
) (*Response, error) {
	if err := c.limiter.acquire(ctx); err != nil {
		return nil, err
	}

	debug := c.config.Debug
	if debug {
		logAttempt(c.config.DebugLogger, callID, req, n)
	}

	start := time.Now()
	resp, err := c.breaker.do(ctx, func() (*Response, error) {
		resp, err := session.Do(ctx, req)
		if err == nil && resp == nil {
			return nil, errNoResponse
		}
		return resp, err
	})

	if debug {
		logOutcome(c.config.DebugLogger, callID, n, resp, err, time.Since(start))
	}

	return resp, err
}

// sessionConfig derives the per-call session state.
func (c *Client) sessionConfig(ro *RequestOptions) SessionConfig {
	sc := SessionConfig{
		Headers:   ro.Headers,
		Cookies:   ro.Cookies,
		ProxyMode: c.config.ProxyMode,
		NoWait:    ro.NoWait,
	}
	if ro.Proxy != nil {
		p := *ro.Proxy
		sc.Proxy = &p
	}
	return sc
}

// callAttributes are attached to every per-call metric.
func (c *Client) callAttributes(req *Request) []attribute.KeyValue {
	return withAttr(c.config.baseAttributes(), attribute.String("http.request.method", req.Method))
}
