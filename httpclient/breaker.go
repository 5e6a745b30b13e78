package httpclient

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"
	gobreakerredis "github.com/sony/gobreaker/v2/redis"
)

// NewRedisStore creates a SharedDataStore backed by Redis so that several
// processes trip and recover the same breaker.
//
// Usage:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	client := httpclient.New(
//	    httpclient.WithBreaker(httpclient.DistributedBreakerConfig(httpclient.NewRedisStore(rdb))),
//	)
func NewRedisStore(client redis.UniversalClient) gobreaker.SharedDataStore {
	return gobreakerredis.NewStoreFromClient(client)
}

// CircuitBreaker is satisfied by gobreaker's local and distributed breakers.
type CircuitBreaker interface {
	Execute(req func() (*Response, error)) (*Response, error)
}

// BreakerClassifier reports whether an attempt counts as a failure for the
// breaker. Exactly one of resp and err is non-nil.
type BreakerClassifier func(resp *Response, err error) bool

// BreakerConfig holds the configuration for the circuit breaker.
//
// The breaker is shared by every call of the Client and sees each attempt.
// While it is open, attempts fail with gobreaker.ErrOpenState, which is not
// transient, so the call returns at once instead of burning its attempts.
type BreakerConfig struct {
	// MaxRequests is the number of trial requests allowed while half-open.
	// If 0, one trial request is allowed.
	MaxRequests uint32

	// Interval is the closed-state period after which counts are cleared.
	// If 0, counts are never cleared while closed.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing.
	// If 0, gobreaker uses 60s.
	Timeout time.Duration

	// FailureThreshold is the minimum number of attempts before the
	// breaker may trip.
	FailureThreshold uint32

	// FailureRatio trips the breaker at this failure ratio (0.0-1.0).
	FailureRatio float64

	// ConsecutiveFailures trips the breaker after this many failures in a
	// row. If 0, this rule is disabled.
	ConsecutiveFailures uint32

	// Store shares breaker state between processes. Nil keeps it local.
	Store gobreaker.SharedDataStore

	// Classifier determines which attempts count as failures.
	// Default: DefaultBreakerClassifier
	Classifier BreakerClassifier

	// OnStateChange is invoked when the breaker changes state.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns a local breaker that trips after 5
// consecutive failures, or at 50% failures over at least 20 attempts.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:         1,
		Interval:            10 * time.Second,
		Timeout:             10 * time.Second,
		FailureThreshold:    20,
		FailureRatio:        0.5,
		ConsecutiveFailures: 5,
		Classifier:          DefaultBreakerClassifier,
	}
}

// DistributedBreakerConfig returns DefaultBreakerConfig backed by store.
func DistributedBreakerConfig(store gobreaker.SharedDataStore) BreakerConfig {
	cfg := DefaultBreakerConfig()
	cfg.Store = store
	return cfg
}

// DefaultBreakerClassifier counts transient errors and 5xx responses.
func DefaultBreakerClassifier(resp *Response, err error) bool {
	if err != nil {
		return IsTransient(err)
	}
	return resp != nil && resp.StatusCode >= 500
}

// WithBreaker enables the circuit breaker.
func WithBreaker(c BreakerConfig) Option {
	return func(cfg *internalConfig) {
		cfg.BreakerConfig = &c
	}
}

// errSyntheticFailure tells the breaker that a response (e.g. 500) was a
// failure. It never leaves attemptBreaker.
var errSyntheticFailure = errors.New("synthetic failure")

// passthroughError carries an error the breaker excludes from its counts.
type passthroughError struct {
	err error
}

func (e *passthroughError) Error() string { return e.err.Error() }
func (e *passthroughError) Unwrap() error { return e.err }

// attemptBreaker runs attempts through a CircuitBreaker.
// A nil *attemptBreaker runs them directly.
type attemptBreaker struct {
	breaker    CircuitBreaker
	classifier BreakerClassifier
	metrics    *metrics
	name       string
}

func newAttemptBreaker(cfg *internalConfig) *attemptBreaker {
	bc := cfg.BreakerConfig
	if bc == nil {
		return nil
	}

	name := cfg.ServiceName
	if name == "" {
		name = "bypass-httpclient"
	}

	classifier := bc.Classifier
	if classifier == nil {
		classifier = DefaultBreakerClassifier
	}

	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: bc.MaxRequests,
		Interval:    bc.Interval,
		Timeout:     bc.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if bc.ConsecutiveFailures > 0 &&
				counts.ConsecutiveFailures >= bc.ConsecutiveFailures {
				return true
			}
			if bc.FailureThreshold > 0 && counts.Requests < bc.FailureThreshold {
				return false
			}
			if bc.FailureRatio > 0 && counts.Requests > 0 {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= bc.FailureRatio
			}
			return false
		},
		IsExcluded: func(err error) bool {
			var pe *passthroughError
			return errors.As(err, &pe)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			cfg.Metrics.recordBreakerState(context.Background(), name, int64(to))
			if bc.OnStateChange != nil {
				bc.OnStateChange(name, from, to)
			}
		},
	}

	var cb CircuitBreaker
	if bc.Store != nil {
		dcb, err := gobreaker.NewDistributedCircuitBreaker[*Response](bc.Store, st)
		if err != nil {
			// Degrade to a process-local breaker.
			cb = gobreaker.NewCircuitBreaker[*Response](st)
		} else {
			cb = dcb
		}
	} else {
		cb = gobreaker.NewCircuitBreaker[*Response](st)
	}

	return &attemptBreaker{
		breaker:    cb,
		classifier: classifier,
		metrics:    cfg.Metrics,
		name:       name,
	}
}

// do runs one attempt through the breaker.
func (b *attemptBreaker) do(ctx context.Context, attempt func() (*Response, error)) (*Response, error) {
	if b == nil {
		return attempt()
	}

	res, err := b.breaker.Execute(func() (*Response, error) {
		resp, err := attempt()
		switch {
		case !b.classifier(resp, err):
			if err != nil {
				return nil, &passthroughError{err: err}
			}
			return resp, nil
		case err != nil:
			return nil, err
		default:
			return resp, errSyntheticFailure
		}
	})

	var pe *passthroughError
	switch {
	case err == nil:
		b.metrics.recordBreakerRequest(ctx, b.name, "success")
		return res, nil
	case errors.As(err, &pe):
		b.metrics.recordBreakerRequest(ctx, b.name, "excluded")
		return nil, pe.err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		b.metrics.recordBreakerRequest(ctx, b.name, "rejected")
		return nil, err
	case errors.Is(err, errSyntheticFailure):
		b.metrics.recordBreakerRequest(ctx, b.name, "failure")
		return res, nil
	default:
		b.metrics.recordBreakerRequest(ctx, b.name, "failure")
		return nil, err
	}
}
