package httpclient

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DefaultJitterFactor is the randomization applied when a strategy is built
// through its constructor.
const DefaultJitterFactor = 0.5

var (
	_ backoff.BackOff = (*LinearBackOff)(nil)
	_ backoff.BackOff = (*DecorrelatedJitterBackOff)(nil)
	_ backoff.BackOff = (*ConstantBackOffWithJitter)(nil)
)

// The client retries back to back by default: a transient failure is
// usually a dropped proxy connection and the next attempt opens a new one.
// The strategies below add a pause for targets that punish that.

// LinearBackOff adds Increment to the wait after every failure.
//
// It fits a rotating proxy pool that hands out a new exit per connection:
// most failures are one bad exit, so the early waits stay short, while a
// pool that is wholly saturated still gets steadily more room. Stateful,
// so register it with WithBackOffFactory.
//
// With Initial=1s, Increment=500ms, JitterFactor=0.3 the waits are
// 1s ± 0.3s, then 1.5s ± 0.45s, then 2s ± 0.6s.
type LinearBackOff struct {
	// InitialInterval is the first wait.
	// Default: 500ms
	InitialInterval time.Duration

	// Increment is added after every wait.
	// Default: 500ms
	Increment time.Duration

	// MaxInterval caps the wait before jitter.
	// Default: 30s
	MaxInterval time.Duration

	// JitterFactor randomizes each wait (0.0-1.0).
	// Default: 0.5
	JitterFactor float64

	currentInterval time.Duration
	attempt         int
}

// NewLinearBackOff creates a LinearBackOff with defaults.
func NewLinearBackOff() *LinearBackOff {
	return &LinearBackOff{
		InitialInterval: 500 * time.Millisecond,
		Increment:       500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		JitterFactor:    DefaultJitterFactor,
	}
}

// Reset implements backoff.BackOff.
func (b *LinearBackOff) Reset() {
	b.currentInterval = b.InitialInterval
	b.attempt = 0
}

// NextBackOff implements backoff.BackOff.
func (b *LinearBackOff) NextBackOff() time.Duration {
	if b.currentInterval == 0 {
		b.currentInterval = b.InitialInterval
	}

	interval := applyJitter(b.currentInterval, b.JitterFactor)

	b.attempt++
	b.currentInterval = b.InitialInterval + time.Duration(b.attempt)*b.Increment
	if b.MaxInterval > 0 && b.currentInterval > b.MaxInterval {
		b.currentInterval = b.MaxInterval
	}

	return interval
}

// DecorrelatedJitterBackOff draws each wait between Base and three times
// the previous wait, capped at Cap.
//
// It fits many workers scraping the same site through the same proxy.
// When the site starts dropping connections they all fail at once, and
// the spread keeps their retries from landing together again. Stateful,
// so register it with WithBackOffFactory.
//
// See https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter/
type DecorrelatedJitterBackOff struct {
	// Base is the minimum wait.
	// Default: 500ms
	Base time.Duration

	// Cap is the maximum wait.
	// Default: 30s
	Cap time.Duration

	sleep time.Duration
}

// NewDecorrelatedJitterBackOff creates a DecorrelatedJitterBackOff with defaults.
func NewDecorrelatedJitterBackOff() *DecorrelatedJitterBackOff {
	return &DecorrelatedJitterBackOff{
		Base: 500 * time.Millisecond,
		Cap:  30 * time.Second,
	}
}

// Reset implements backoff.BackOff.
func (b *DecorrelatedJitterBackOff) Reset() {
	b.sleep = b.Base
}

// NextBackOff implements backoff.BackOff.
func (b *DecorrelatedJitterBackOff) NextBackOff() time.Duration {
	if b.sleep == 0 {
		b.sleep = b.Base
	}

	upperBound := b.sleep * 3
	if upperBound > b.Cap {
		upperBound = b.Cap
	}

	b.sleep = randomBetween(b.Base, upperBound)
	return b.sleep
}

// ConstantBackOffWithJitter waits Interval ± JitterFactor every time.
//
// It fits an origin that throttles per request rate rather than per
// failure count, where waiting longer on later attempts buys nothing. It
// holds no state, so one instance passed to WithBackOff serves every
// concurrent call.
type ConstantBackOffWithJitter struct {
	// Interval is the base wait.
	// Default: 1s
	Interval time.Duration

	// JitterFactor randomizes each wait (0.0-1.0).
	// Default: 0.5
	JitterFactor float64
}

// NewConstantBackOffWithJitter creates a ConstantBackOffWithJitter with defaults.
func NewConstantBackOffWithJitter() *ConstantBackOffWithJitter {
	return &ConstantBackOffWithJitter{
		Interval:     1 * time.Second,
		JitterFactor: DefaultJitterFactor,
	}
}

// Reset implements backoff.BackOff.
func (b *ConstantBackOffWithJitter) Reset() {}

// NextBackOff implements backoff.BackOff.
func (b *ConstantBackOffWithJitter) NextBackOff() time.Duration {
	return applyJitter(b.Interval, b.JitterFactor)
}

// NewExponentialBackOff doubles the wait from initial up to maxInterval.
//
// It fits an upstream that fails in bursts, such as an anti-bot layer
// that blocks an address for a while: the first retries are quick, later
// ones wait out the block. The elapsed-time limit is left to the retry
// loop, which only stops on attempts or the call context. Register it
// with WithBackOffFactory.
func NewExponentialBackOff(initial, maxInterval time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = maxInterval
	b.Multiplier = 2.0
	b.RandomizationFactor = DefaultJitterFactor
	b.Reset()
	return b
}

// applyJitter returns a duration uniformly drawn from
// [interval×(1-factor), interval×(1+factor)]. The factor is clamped to 1.
func applyJitter(interval time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 || interval <= 0 {
		return interval
	}
	if jitterFactor > 1 {
		jitterFactor = 1
	}

	delta := float64(interval) * jitterFactor
	minInterval := float64(interval) - delta
	maxInterval := float64(interval) + delta

	//nolint:gosec // intentional weak rand for jitter (not cryptographic)
	return time.Duration(minInterval + rand.Float64()*(maxInterval-minInterval))
}

// randomBetween returns a random duration in [minDur, maxDur).
//
//nolint:gosec // intentional weak rand for jitter (not cryptographic)
func randomBetween(minDur, maxDur time.Duration) time.Duration {
	if minDur >= maxDur {
		return minDur
	}
	return minDur + time.Duration(rand.Int64N(int64(maxDur-minDur)))
}
