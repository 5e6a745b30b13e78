package httpclient

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"

	"github.com/kroma-labs/bypass-go/proxy"
)

// EnvPrefix is the prefix of the variables the default client reads.
const EnvPrefix = "BYPASS"

// EnvConfig is the client configuration read from the environment.
//
// With prefix "BYPASS":
//
//	BYPASS_TRANSPORT=fingerprint
//	BYPASS_RETRIES=5
//	BYPASS_TIMEOUT=10s
//	BYPASS_PROXY_MODE=http-only
//	BYPASS_FINGERPRINT=firefox
//	BYPASS_PACING=0s
//	BYPASS_LOG_LEVEL=error
type EnvConfig struct {
	Transport            string        `envconfig:"TRANSPORT" default:"plain"`
	Retries              int           `envconfig:"RETRIES" default:"3"`
	Timeout              time.Duration `envconfig:"TIMEOUT" default:"15s"`
	ProxyMode            string        `envconfig:"PROXY_MODE" default:"split"`
	ProxyFromEnvironment bool          `envconfig:"PROXY_FROM_ENVIRONMENT" default:"true"`
	Fingerprint          string        `envconfig:"FINGERPRINT" default:"chrome"`
	Pacing               time.Duration `envconfig:"PACING" default:"750ms"`
	PacingJitter         float64       `envconfig:"PACING_JITTER" default:"0.5"`
	LogLevel             string        `envconfig:"LOG_LEVEL" default:"warn"`
	ServiceName          string        `envconfig:"SERVICE_NAME"`
	Debug                bool          `envconfig:"DEBUG" default:"false"`
}

// LoadEnvConfig reads an EnvConfig from variables named PREFIX_FIELD.
func LoadEnvConfig(prefix string) (EnvConfig, error) {
	var ec EnvConfig
	if err := envconfig.Process(prefix, &ec); err != nil {
		return EnvConfig{}, fmt.Errorf("httpclient: load env config: %w", err)
	}
	return ec, nil
}

// Options converts the configuration into client options.
func (ec EnvConfig) Options() ([]Option, error) {
	kind, err := ParseTransportKind(ec.Transport)
	if err != nil {
		return nil, err
	}

	mode, err := proxy.ParseMode(ec.ProxyMode)
	if err != nil {
		return nil, err
	}

	profile, err := ParseFingerprintProfile(ec.Fingerprint)
	if err != nil {
		return nil, err
	}

	level, err := zerolog.ParseLevel(ec.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("httpclient: invalid log level %q: %w", ec.LogLevel, err)
	}

	return []Option{
		WithFingerprint(FingerprintConfig{
			Profile:      profile,
			Pacing:       ec.Pacing,
			PacingJitter: ec.PacingJitter,
		}),
		WithTransport(kind),
		WithDefaultRetries(ec.Retries),
		WithTimeout(ec.Timeout),
		WithProxyMode(mode),
		WithProxyFromEnvironment(ec.ProxyFromEnvironment),
		WithLogger(NewZerologLogger(defaultLogger().Level(level))),
		WithServiceName(ec.ServiceName),
		WithDebug(ec.Debug),
	}, nil
}

// NewFromEnv creates a Client configured from the environment. Extra
// options are applied after the environment ones.
func NewFromEnv(prefix string, opts ...Option) (*Client, error) {
	ec, err := LoadEnvConfig(prefix)
	if err != nil {
		return nil, err
	}

	envOpts, err := ec.Options()
	if err != nil {
		return nil, err
	}

	return New(append(envOpts, opts...)...), nil
}
