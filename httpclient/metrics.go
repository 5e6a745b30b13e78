package httpclient

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the metric instruments for client calls.
type metrics struct {
	// === Per Attempt ===

	// requestDuration measures a single attempt in seconds.
	requestDuration metric.Float64Histogram

	// requestErrors counts attempts that ended without a response.
	requestErrors metric.Int64Counter

	// === Per Call ===

	// callDuration measures a whole call, every attempt included.
	callDuration metric.Float64Histogram

	// attempts counts attempts issued by the retry loop.
	attempts metric.Int64Counter

	// transientFailures counts attempts that failed transiently.
	transientFailures metric.Int64Counter

	// retryExhausted counts calls that returned ErrExhausted.
	retryExhausted metric.Int64Counter

	// openSessions tracks sessions not yet closed.
	openSessions metric.Int64UpDownCounter

	// === Circuit Breaker ===

	// breakerRequests counts breaker outcomes (success, failure, excluded, rejected).
	breakerRequests metric.Int64Counter

	// breakerState reports the last observed breaker state.
	breakerState metric.Int64Gauge
}

// newMetrics creates and registers metric instruments.
func newMetrics(meter metric.Meter) (*metrics, error) {
	m := &metrics{}
	var err error

	m.requestDuration, err = meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of a single HTTP attempt in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
		),
	)
	if err != nil {
		return nil, err
	}

	m.requestErrors, err = meter.Int64Counter(
		"http.client.request.error",
		metric.WithDescription("Number of HTTP attempts that ended without a response"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	m.callDuration, err = meter.Float64Histogram(
		"http.client.call.duration",
		metric.WithDescription("Duration of a client call across all attempts in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
		),
	)
	if err != nil {
		return nil, err
	}

	m.attempts, err = meter.Int64Counter(
		"http.client.retry.attempts",
		metric.WithDescription("Number of attempts issued by the retry loop"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	m.transientFailures, err = meter.Int64Counter(
		"http.client.retry.transient_failures",
		metric.WithDescription("Number of attempts that failed with a transient error"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	m.retryExhausted, err = meter.Int64Counter(
		"http.client.retry.exhausted",
		metric.WithDescription("Number of calls that exhausted all attempts"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	m.openSessions, err = meter.Int64UpDownCounter(
		"http.client.open_sessions",
		metric.WithDescription("Number of sessions currently open"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, err
	}

	m.breakerRequests, err = meter.Int64Counter(
		"http.client.breaker.requests",
		metric.WithDescription("Number of attempts seen by the circuit breaker by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	m.breakerState, err = meter.Int64Gauge(
		"http.client.breaker.state",
		metric.WithDescription("Circuit breaker state: 0 closed, 1 half-open, 2 open"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// recordRequestDuration records the duration of one attempt.
func (m *metrics) recordRequestDuration(
	ctx context.Context,
	duration time.Duration,
	attrs []attribute.KeyValue,
) {
	if m == nil || m.requestDuration == nil {
		return
	}
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// recordRequestError records an attempt that produced no response.
func (m *metrics) recordRequestError(ctx context.Context, kind string, attrs []attribute.KeyValue) {
	if m == nil || m.requestErrors == nil {
		return
	}
	m.requestErrors.Add(ctx, 1, metric.WithAttributes(withAttr(attrs, attribute.String("error.type", kind))...))
}

// recordCallDuration records a whole call with its result.
func (m *metrics) recordCallDuration(
	ctx context.Context,
	duration time.Duration,
	attrs []attribute.KeyValue,
) {
	if m == nil || m.callDuration == nil {
		return
	}
	m.callDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// recordAttempt records an attempt being issued.
func (m *metrics) recordAttempt(ctx context.Context, attrs []attribute.KeyValue, attempt int) {
	if m == nil || m.attempts == nil {
		return
	}
	m.attempts.Add(ctx, 1, metric.WithAttributes(withAttr(attrs, attribute.Int("retry.attempt", attempt))...))
}

// recordTransientFailure records an attempt that will be retried or exhausts the call.
func (m *metrics) recordTransientFailure(ctx context.Context, attrs []attribute.KeyValue, kind string) {
	if m == nil || m.transientFailures == nil {
		return
	}
	m.transientFailures.Add(ctx, 1, metric.WithAttributes(withAttr(attrs, attribute.String("error.type", kind))...))
}

// recordRetryExhausted records a call that ran out of attempts.
func (m *metrics) recordRetryExhausted(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.retryExhausted == nil {
		return
	}
	m.retryExhausted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// recordSessionOpened records a session being opened.
func (m *metrics) recordSessionOpened(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.openSessions == nil {
		return
	}
	m.openSessions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// recordSessionClosed records a session being closed.
func (m *metrics) recordSessionClosed(ctx context.Context, attrs []attribute.KeyValue) {
	if m == nil || m.openSessions == nil {
		return
	}
	m.openSessions.Add(ctx, -1, metric.WithAttributes(attrs...))
}

// recordBreakerRequest records a breaker outcome.
func (m *metrics) recordBreakerRequest(ctx context.Context, name, outcome string) {
	if m == nil || m.breakerRequests == nil {
		return
	}
	m.breakerRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker.name", name),
		attribute.String("breaker.outcome", outcome),
	))
}

// recordBreakerState records a breaker state transition.
func (m *metrics) recordBreakerState(ctx context.Context, name string, state int64) {
	if m == nil || m.breakerState == nil {
		return
	}
	m.breakerState.Record(ctx, state, metric.WithAttributes(attribute.String("breaker.name", name)))
}

// withAttr returns attrs plus extra without modifying attrs.
func withAttr(attrs []attribute.KeyValue, extra ...attribute.KeyValue) []attribute.KeyValue {
	all := make([]attribute.KeyValue, 0, len(attrs)+len(extra))
	all = append(all, attrs...)
	return append(all, extra...)
}
