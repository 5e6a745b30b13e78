package httpclient

import (
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinearBackOff(t *testing.T) {
	type args struct {
		initialInterval time.Duration
		increment       time.Duration
		maxInterval     time.Duration
	}
	tests := []struct {
		name string
		args args
		want []time.Duration
	}{
		{
			name: "given no jitter, then increases linearly",
			args: args{
				initialInterval: 500 * time.Millisecond,
				increment:       500 * time.Millisecond,
				maxInterval:     30 * time.Second,
			},
			want: []time.Duration{
				500 * time.Millisecond,
				1 * time.Second,
				1500 * time.Millisecond,
				2 * time.Second,
			},
		},
		{
			name: "given max interval, then caps at max",
			args: args{
				initialInterval: 1 * time.Second,
				increment:       1 * time.Second,
				maxInterval:     3 * time.Second,
			},
			want: []time.Duration{
				1 * time.Second,
				2 * time.Second,
				3 * time.Second,
				3 * time.Second,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &LinearBackOff{
				InitialInterval: tt.args.initialInterval,
				Increment:       tt.args.increment,
				MaxInterval:     tt.args.maxInterval,
			}
			b.Reset()

			for i, want := range tt.want {
				assert.Equal(t, want, b.NextBackOff(), "wait %d", i+1)
			}

			b.Reset()
			assert.Equal(t, tt.args.initialInterval, b.NextBackOff(), "reset starts over")
		})
	}
}

func TestNewLinearBackOff(t *testing.T) {
	b := NewLinearBackOff()
	assert.Equal(t, 500*time.Millisecond, b.InitialInterval)
	assert.Equal(t, 500*time.Millisecond, b.Increment)
	assert.Equal(t, 30*time.Second, b.MaxInterval)
	assert.InDelta(t, DefaultJitterFactor, b.JitterFactor, 0.001)
}

func TestDecorrelatedJitterBackOff(t *testing.T) {
	b := &DecorrelatedJitterBackOff{Base: 100 * time.Millisecond, Cap: time.Second}
	b.Reset()

	for i := 0; i < 100; i++ {
		d := b.NextBackOff()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, time.Second)
	}
}

func TestConstantBackOffWithJitter(t *testing.T) {
	tests := []struct {
		name    string
		b       *ConstantBackOffWithJitter
		wantMin time.Duration
		wantMax time.Duration
	}{
		{
			name:    "given no jitter, then always the interval",
			b:       &ConstantBackOffWithJitter{Interval: time.Second},
			wantMin: time.Second,
			wantMax: time.Second,
		},
		{
			name:    "given 50% jitter, then within half either side",
			b:       NewConstantBackOffWithJitter(),
			wantMin: 500 * time.Millisecond,
			wantMax: 1500 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 100; i++ {
				d := tt.b.NextBackOff()
				assert.GreaterOrEqual(t, d, tt.wantMin)
				assert.LessOrEqual(t, d, tt.wantMax)
			}
		})
	}
}

func TestNewExponentialBackOff(t *testing.T) {
	b := NewExponentialBackOff(100*time.Millisecond, time.Second)
	require.NotNil(t, b)
	assert.Equal(t, 100*time.Millisecond, b.InitialInterval)
	assert.Equal(t, time.Second, b.MaxInterval)
	assert.InDelta(t, 2.0, b.Multiplier, 0.001)

	for i := 0; i < 10; i++ {
		assert.LessOrEqual(t, b.NextBackOff(), time.Duration(float64(time.Second)*1.5))
	}
}

func TestApplyJitter(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		factor   float64
		wantMin  time.Duration
		wantMax  time.Duration
	}{
		{name: "given zero factor, then unchanged", interval: time.Second, factor: 0, wantMin: time.Second, wantMax: time.Second},
		{name: "given zero interval, then zero", interval: 0, factor: 0.5, wantMin: 0, wantMax: 0},
		{
			name:     "given factor above 1, then clamped to 1",
			interval: time.Second,
			factor:   3,
			wantMin:  0,
			wantMax:  2 * time.Second,
		},
		{
			name:     "given 25% factor, then within range",
			interval: time.Second,
			factor:   0.25,
			wantMin:  750 * time.Millisecond,
			wantMax:  1250 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 100; i++ {
				d := applyJitter(tt.interval, tt.factor)
				assert.GreaterOrEqual(t, d, tt.wantMin)
				assert.LessOrEqual(t, d, tt.wantMax)
			}
		})
	}
}

func TestInternalConfig_NewBackOff(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want time.Duration
	}{
		{name: "given no option, then never waits", want: 0},
		{
			name: "given constant backoff, then waits its interval",
			opts: []Option{WithBackOff(backoff.NewConstantBackOff(time.Second))},
			want: time.Second,
		},
		{
			name: "given factory returning nil, then falls back to no wait",
			opts: []Option{WithBackOffFactory(func() backoff.BackOff { return nil })},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newConfig(append(tt.opts, WithLogger(NopLogger()))...)
			assert.Equal(t, tt.want, cfg.newBackOff().NextBackOff())
		})
	}
}

func TestInternalConfig_NewBackOff_PerCall(t *testing.T) {
	t.Run("given linear factory, then every call starts from the first wait", func(t *testing.T) {
		cfg := newConfig(WithLogger(NopLogger()), WithBackOffFactory(func() backoff.BackOff {
			return &LinearBackOff{InitialInterval: time.Second, Increment: time.Second}
		}))

		first := cfg.newBackOff()
		assert.Equal(t, time.Second, first.NextBackOff())
		assert.Equal(t, 2*time.Second, first.NextBackOff())

		second := cfg.newBackOff()
		assert.Equal(t, time.Second, second.NextBackOff(), "a new call does not inherit the escalation")
	})

	t.Run("given shared constant with jitter, then calls draw from the same band", func(t *testing.T) {
		shared := &ConstantBackOffWithJitter{Interval: time.Second, JitterFactor: 0.2}
		cfg := newConfig(WithLogger(NopLogger()), WithBackOff(shared))

		for range 20 {
			d := cfg.newBackOff().NextBackOff()
			assert.GreaterOrEqual(t, d, 800*time.Millisecond)
			assert.LessOrEqual(t, d, 1200*time.Millisecond)
		}
	})
}
