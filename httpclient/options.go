package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/kroma-labs/bypass-go/proxy"
)

const (
	// scope is the instrumentation scope name for OpenTelemetry.
	scope = "github.com/kroma-labs/bypass-go/httpclient"
)

// =============================================================================
// Config - HTTP Transport Configuration
// =============================================================================

// Config holds the settings of the net/http transport each plain session
// builds. The fingerprint transport only honours Timeout.
//
// Every call gets a fresh session that is closed when the call returns, so
// the pool fields bound what one call can hold open: its retries to one
// target plus any redirect hosts. Nothing is shared between calls.
//
// Start from one of the presets and adjust:
//
//	cfg := httpclient.FailFastConfig()
//	cfg.Timeout = 3 * time.Second
//
//	client := httpclient.New(httpclient.WithConfig(cfg))
type Config struct {
	// Timeout bounds a single attempt: connect, headers and body.
	// Zero means no timeout.
	// Default: 15s
	Timeout time.Duration

	// MaxIdleConns caps idle connections one call keeps across the target
	// and its redirect hosts.
	// Default: 4
	MaxIdleConns int

	// MaxIdleConnsPerHost caps idle connections one call keeps to a host.
	// Retries reuse the connection of the previous attempt when it is
	// still healthy.
	// Default: 2
	MaxIdleConnsPerHost int

	// MaxConnsPerHost caps idle plus active connections one call opens to
	// a host. Zero means unlimited.
	// Default: 0
	MaxConnsPerHost int

	// IdleConnTimeout is how long an idle connection is kept between the
	// attempts of one call.
	// Default: 30s
	IdleConnTimeout time.Duration

	// TLSHandshakeTimeout bounds the TLS handshake, including the one
	// made through a CONNECT tunnel.
	// Default: 10s
	TLSHandshakeTimeout time.Duration

	// ExpectContinueTimeout is the wait for "100 Continue".
	// Default: 1s
	ExpectContinueTimeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers once the
	// request is written. Zero defers to Timeout.
	// Default: 0
	ResponseHeaderTimeout time.Duration

	// DialTimeout bounds TCP connection establishment to the target or
	// to the proxy.
	// Default: 5s
	DialTimeout time.Duration

	// KeepAlive is the TCP keep-alive interval.
	// Default: 30s
	KeepAlive time.Duration

	// FallbackDelay is the RFC 6555 dual-stack delay. Negative disables it.
	// Default: 300ms
	FallbackDelay time.Duration

	// WriteBufferSize is the per-connection write buffer.
	// Default: 64KB
	WriteBufferSize int

	// ReadBufferSize is the per-connection read buffer.
	// Default: 64KB
	ReadBufferSize int

	// MaxResponseHeaderBytes limits response header size.
	// Default: 0 (net/http default)
	MaxResponseHeaderBytes int64

	// DisableKeepAlives forces one connection per attempt.
	// Default: false
	DisableKeepAlives bool

	// DisableCompression stops the transport from asking for gzip.
	// Default: false
	DisableCompression bool

	// ForceHTTP2 attempts HTTP/2 over TLS.
	// Default: false
	ForceHTTP2 bool
}

// DefaultConfig returns balanced settings for scraping and API calls.
func DefaultConfig() Config {
	return Config{
		Timeout: 15 * time.Second,

		MaxIdleConns:        4,
		MaxIdleConnsPerHost: 2,
		MaxConnsPerHost:     0,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 0, // Uses overall Timeout

		DialTimeout:   5 * time.Second,
		KeepAlive:     30 * time.Second,
		FallbackDelay: 300 * time.Millisecond,

		WriteBufferSize: 64 * 1024,
		ReadBufferSize:  64 * 1024,
	}
}

// SlowTargetConfig gives congested proxies and heavy pages room to answer
// before an attempt counts as failed.
//
// Key differences from DefaultConfig:
//   - 30s timeout, 20s handshake
//   - 10s dial timeout
//   - 128KB read buffer
func SlowTargetConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 30 * time.Second
	cfg.TLSHandshakeTimeout = 20 * time.Second
	cfg.DialTimeout = 10 * time.Second
	cfg.ReadBufferSize = 128 * 1024
	return cfg
}

// FailFastConfig gives up on a dead proxy or stalled origin quickly so the
// retry loop moves on to the next attempt.
//
// Key differences from DefaultConfig:
//   - 5s timeout, 3s header timeout
//   - 2s dial timeout, 5s handshake
//   - HTTP/2 preferred
func FailFastConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 5 * time.Second
	cfg.TLSHandshakeTimeout = 5 * time.Second
	cfg.ExpectContinueTimeout = 500 * time.Millisecond
	cfg.ResponseHeaderTimeout = 3 * time.Second
	cfg.DialTimeout = 2 * time.Second
	cfg.KeepAlive = 15 * time.Second
	cfg.FallbackDelay = 150 * time.Millisecond
	cfg.ForceHTTP2 = true
	return cfg
}

// FreshConnectionConfig opens a new connection for every attempt, so a
// retry never rides a connection the target or proxy already flagged.
//
// Key differences from DefaultConfig:
//   - keep-alives disabled
//   - 10s timeout
//   - 4KB write buffer
func FreshConnectionConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 10 * time.Second
	cfg.DisableKeepAlives = true
	cfg.MaxIdleConns = 0
	cfg.MaxIdleConnsPerHost = 0
	cfg.WriteBufferSize = 4 * 1024
	return cfg
}

// =============================================================================
// Internal Configuration
// =============================================================================

// internalConfig holds everything a Client is built from.
type internalConfig struct {
	httpConfig Config

	// === Sessions ===

	Transport      TransportKind
	Fingerprint    FingerprintConfig
	SessionFactory SessionFactory

	// MockTransport replaces the plain session's network transport.
	MockTransport http.RoundTripper

	// === Proxy ===

	ProxyMode            proxy.Mode
	ProxyFromEnvironment bool
	TLSConfig            *tls.Config

	// === Retry ===

	DefaultRetries int
	NewBackOff     func() backoff.BackOff
	Classifier     TransientClassifier

	// === Guards ===

	RateLimit     *RateLimitConfig
	BreakerConfig *BreakerConfig
	Chaos         *ChaosConfig

	// === Logging ===

	Logger      Logger
	Debug       bool
	DebugLogger zerolog.Logger

	// === OpenTelemetry ===

	ServiceName    string
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Propagators    propagation.TextMapPropagator
	Tracer         trace.Tracer
	Meter          metric.Meter
	Metrics        *metrics
}

// newConfig creates a new internal config with defaults and applies options.
func newConfig(opts ...Option) *internalConfig {
	cfg := &internalConfig{
		httpConfig:           DefaultConfig(),
		Transport:            TransportPlain,
		Fingerprint:          DefaultFingerprintConfig(),
		ProxyMode:            proxy.ModeSplit,
		ProxyFromEnvironment: true,
		DefaultRetries:       DefaultRetries,
		Classifier:           IsTransient,
		DebugLogger:          zerolog.New(os.Stdout).With().Timestamp().Logger(),
		TracerProvider:       otel.GetTracerProvider(),
		MeterProvider:        otel.GetMeterProvider(),
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = NewZerologLogger(defaultLogger())
	}

	cfg.Tracer = cfg.TracerProvider.Tracer(scope)
	cfg.Meter = cfg.MeterProvider.Meter(scope)

	// Metrics stay nil on failure; every record method is nil-safe.
	cfg.Metrics, _ = newMetrics(cfg.Meter)

	return cfg
}

// buildTransport creates the net/http transport of one plain session.
func (cfg *internalConfig) buildTransport(sc SessionConfig) *http.Transport {
	hc := cfg.httpConfig

	dialer := &net.Dialer{
		Timeout:       hc.DialTimeout,
		KeepAlive:     hc.KeepAlive,
		FallbackDelay: hc.FallbackDelay,
	}

	transport := &http.Transport{
		DialContext:            dialer.DialContext,
		MaxIdleConns:           hc.MaxIdleConns,
		MaxIdleConnsPerHost:    hc.MaxIdleConnsPerHost,
		MaxConnsPerHost:        hc.MaxConnsPerHost,
		IdleConnTimeout:        hc.IdleConnTimeout,
		TLSHandshakeTimeout:    hc.TLSHandshakeTimeout,
		ResponseHeaderTimeout:  hc.ResponseHeaderTimeout,
		ExpectContinueTimeout:  hc.ExpectContinueTimeout,
		DisableKeepAlives:      hc.DisableKeepAlives,
		DisableCompression:     hc.DisableCompression,
		WriteBufferSize:        hc.WriteBufferSize,
		ReadBufferSize:         hc.ReadBufferSize,
		MaxResponseHeaderBytes: hc.MaxResponseHeaderBytes,
		TLSClientConfig:        cfg.TLSConfig,
		ForceAttemptHTTP2:      hc.ForceHTTP2,
	}

	if sc.Proxy != nil && !sc.Proxy.IsZero() {
		transport.Proxy = sc.Proxy.ProxyFunc(sc.ProxyMode)
	} else if cfg.ProxyFromEnvironment {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return transport
}

// newBackOff returns a fresh backoff for one call. The default never waits.
func (cfg *internalConfig) newBackOff() backoff.BackOff {
	if cfg.NewBackOff != nil {
		if b := cfg.NewBackOff(); b != nil {
			return b
		}
	}
	return &backoff.ZeroBackOff{}
}

// propagators returns the configured propagators or W3C TraceContext + Baggage.
func (cfg *internalConfig) propagators() propagation.TextMapPropagator {
	if cfg.Propagators != nil {
		return cfg.Propagators
	}
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// baseAttributes returns common attributes for all spans and metrics.
func (cfg *internalConfig) baseAttributes() []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if cfg.ServiceName != "" {
		attrs = append(attrs, attribute.String("http.client.name", cfg.ServiceName))
	}
	attrs = append(attrs, attribute.String("bypass.transport", cfg.Transport.String()))
	return attrs
}

// =============================================================================
// Options - Functional Options for Client Configuration
// =============================================================================

// Option configures the Client.
type Option func(*internalConfig)

// WithConfig sets the plain transport configuration.
//
// Example:
//
//	client := httpclient.New(
//	    httpclient.WithConfig(httpclient.SlowTargetConfig()),
//	)
func WithConfig(c Config) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig = c
	}
}

// WithTimeout overrides only the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(cfg *internalConfig) {
		cfg.httpConfig.Timeout = d
	}
}

// WithTransport selects the built-in session implementation.
// Default: TransportPlain
func WithTransport(kind TransportKind) Option {
	return func(cfg *internalConfig) {
		cfg.Transport = kind
	}
}

// WithFingerprint configures the fingerprint transport and selects it.
func WithFingerprint(fc FingerprintConfig) Option {
	return func(cfg *internalConfig) {
		cfg.Fingerprint = fc
		cfg.Transport = TransportFingerprint
	}
}

// WithSessionFactory replaces the built-in sessions entirely.
// WithTransport, WithConfig and WithMockTransport no longer apply.
func WithSessionFactory(f SessionFactory) Option {
	return func(cfg *internalConfig) {
		cfg.SessionFactory = f
	}
}

// WithProxyMode selects how per-call proxies map to target schemes.
// Default: proxy.ModeSplit
func WithProxyMode(mode proxy.Mode) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyMode = mode
	}
}

// WithProxyFromEnvironment enables or disables HTTP_PROXY, HTTPS_PROXY and
// NO_PROXY for calls made without a per-call proxy.
//
// Default: true
func WithProxyFromEnvironment(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.ProxyFromEnvironment = enabled
	}
}

// WithTLSConfig sets the plain transport's TLS configuration.
// The fingerprint transport only honours InsecureSkipVerify.
func WithTLSConfig(tlsCfg *tls.Config) Option {
	return func(cfg *internalConfig) {
		cfg.TLSConfig = tlsCfg
	}
}

// WithDefaultRetries sets the attempt count used when a call does not
// pass WithRetries.
// Default: 3
func WithDefaultRetries(n int) Option {
	return func(cfg *internalConfig) {
		cfg.DefaultRetries = n
	}
}

// WithBackOff sets the delay between attempts. The same instance serves
// every call, so it must be stateless (backoff.ConstantBackOff,
// ConstantBackOffWithJitter) unless calls never overlap. Use
// WithBackOffFactory for stateful strategies.
//
// Default: no delay
func WithBackOff(b backoff.BackOff) Option {
	return func(cfg *internalConfig) {
		cfg.NewBackOff = func() backoff.BackOff {
			return b
		}
	}
}

// WithBackOffFactory builds a fresh backoff for every call.
//
// Example:
//
//	client := httpclient.New(
//	    httpclient.WithBackOffFactory(func() backoff.BackOff {
//	        return httpclient.NewDecorrelatedJitterBackOff()
//	    }),
//	)
func WithBackOffFactory(f func() backoff.BackOff) Option {
	return func(cfg *internalConfig) {
		cfg.NewBackOff = f
	}
}

// WithTransientClassifier replaces IsTransient.
func WithTransientClassifier(c TransientClassifier) Option {
	return func(cfg *internalConfig) {
		if c != nil {
			cfg.Classifier = c
		}
	}
}

// WithLogger sets the sink for retry warnings and exhaustion errors.
// Default: zerolog JSON on stderr, warn level.
func WithLogger(l Logger) Option {
	return func(cfg *internalConfig) {
		cfg.Logger = l
	}
}

// WithDebug logs every attempt and its outcome at debug level.
func WithDebug(enabled bool) Option {
	return func(cfg *internalConfig) {
		cfg.Debug = enabled
	}
}

// WithDebugLogger sets the zerolog logger used by WithDebug.
// Default: JSON lines on stdout.
func WithDebugLogger(logger zerolog.Logger) Option {
	return func(cfg *internalConfig) {
		cfg.DebugLogger = logger
	}
}

// WithServiceName sets the "http.client.name" span and metric attribute
// and names the circuit breaker.
func WithServiceName(name string) Option {
	return func(cfg *internalConfig) {
		cfg.ServiceName = name
	}
}

// WithTracerProvider sets a custom OpenTelemetry TracerProvider.
// If not called, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *internalConfig) {
		cfg.TracerProvider = tp
	}
}

// WithMeterProvider sets a custom OpenTelemetry MeterProvider.
// If not called, the global provider is used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(cfg *internalConfig) {
		cfg.MeterProvider = mp
	}
}

// WithPropagators sets the propagators injected into plain session requests.
// Default: W3C TraceContext + Baggage
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *internalConfig) {
		cfg.Propagators = p
	}
}
