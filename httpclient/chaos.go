package httpclient

import (
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// ErrChaosInjected is returned when chaos injection simulates a network error.
var ErrChaosInjected = errors.New("chaos: simulated network error")

// ChaosConfig injects failures into plain sessions so retry handling can be
// exercised against a healthy target. Every injected failure is transient.
//
// Example:
//
//	client := httpclient.New(
//	    httpclient.WithChaos(httpclient.ChaosConfig{
//	        LatencyMs: 200,
//	        ErrorRate: 0.3,
//	    }),
//	)
type ChaosConfig struct {
	// LatencyMs adds a fixed delay to every attempt.
	LatencyMs int

	// LatencyJitterMs adds up to this many extra milliseconds.
	LatencyJitterMs int

	// ErrorRate is the probability (0.0-1.0) of a simulated connection error.
	ErrorRate float64

	// TimeoutRate is the probability (0.0-1.0) of a simulated read timeout.
	TimeoutRate float64

	// TimeoutAfter is how long a simulated timeout hangs before failing.
	// Default: 0 (fails at once)
	TimeoutAfter time.Duration
}

// WithChaos enables chaos injection on plain sessions.
func WithChaos(c ChaosConfig) Option {
	return func(cfg *internalConfig) {
		cfg.Chaos = &c
	}
}

// Delay returns the total delay to apply, including jitter.
func (c ChaosConfig) Delay() time.Duration {
	delay := time.Duration(c.LatencyMs) * time.Millisecond
	if c.LatencyJitterMs > 0 {
		delay += time.Duration(rand.IntN(c.LatencyJitterMs)) * time.Millisecond //nolint:gosec
	}
	return delay
}

// ShouldInjectError reports whether this attempt gets a simulated error.
func (c ChaosConfig) ShouldInjectError() bool {
	return c.ErrorRate > 0 && rand.Float64() < c.ErrorRate //nolint:gosec
}

// ShouldInjectTimeout reports whether this attempt gets a simulated timeout.
func (c ChaosConfig) ShouldInjectTimeout() bool {
	return c.TimeoutRate > 0 && rand.Float64() < c.TimeoutRate //nolint:gosec
}

// chaosTimeoutError looks like a read timeout to the classifier.
type chaosTimeoutError struct{}

func (chaosTimeoutError) Error() string   { return "chaos: simulated i/o timeout" }
func (chaosTimeoutError) Timeout() bool   { return true }
func (chaosTimeoutError) Temporary() bool { return true }

var _ net.Error = chaosTimeoutError{}

// chaosTransport wraps an http.RoundTripper to inject failures.
type chaosTransport struct {
	next   http.RoundTripper
	config ChaosConfig
}

func newChaosTransport(next http.RoundTripper, cfg ChaosConfig) http.RoundTripper {
	return &chaosTransport{
		next:   next,
		config: cfg,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *chaosTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.config.ShouldInjectTimeout() {
		if err := sleepCtx(req, t.config.TimeoutAfter); err != nil {
			return nil, err
		}
		return nil, &net.OpError{Op: "read", Net: "tcp", Err: chaosTimeoutError{}}
	}

	if t.config.ShouldInjectError() {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: ErrChaosInjected}
	}

	if err := sleepCtx(req, t.config.Delay()); err != nil {
		return nil, err
	}

	return t.next.RoundTrip(req)
}

// sleepCtx waits for d or until the request is cancelled.
func sleepCtx(req *http.Request, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-req.Context().Done():
		return req.Context().Err()
	}
}
