package httpclient

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kroma-labs/bypass-go/proxy"
)

func TestLoadEnvConfig(t *testing.T) {
	t.Run("given no variables, then defaults apply", func(t *testing.T) {
		ec, err := LoadEnvConfig("BYPASSTEST")
		require.NoError(t, err)

		assert.Equal(t, EnvConfig{
			Transport:            "plain",
			Retries:              3,
			Timeout:              15 * time.Second,
			ProxyMode:            "split",
			ProxyFromEnvironment: true,
			Fingerprint:          "chrome",
			Pacing:               750 * time.Millisecond,
			PacingJitter:         0.5,
			LogLevel:             "warn",
		}, ec)
	})

	t.Run("given overrides, then they are read", func(t *testing.T) {
		t.Setenv("BYPASSTEST_TRANSPORT", "fingerprint")
		t.Setenv("BYPASSTEST_RETRIES", "5")
		t.Setenv("BYPASSTEST_TIMEOUT", "2s")
		t.Setenv("BYPASSTEST_PROXY_MODE", "http-only")
		t.Setenv("BYPASSTEST_PROXY_FROM_ENVIRONMENT", "false")
		t.Setenv("BYPASSTEST_FINGERPRINT", "firefox")
		t.Setenv("BYPASSTEST_PACING", "0s")
		t.Setenv("BYPASSTEST_LOG_LEVEL", "error")
		t.Setenv("BYPASSTEST_SERVICE_NAME", "scraper")
		t.Setenv("BYPASSTEST_DEBUG", "true")

		ec, err := LoadEnvConfig("BYPASSTEST")
		require.NoError(t, err)

		assert.Equal(t, "fingerprint", ec.Transport)
		assert.Equal(t, 5, ec.Retries)
		assert.Equal(t, 2*time.Second, ec.Timeout)
		assert.Equal(t, "http-only", ec.ProxyMode)
		assert.False(t, ec.ProxyFromEnvironment)
		assert.Equal(t, "firefox", ec.Fingerprint)
		assert.Zero(t, ec.Pacing)
		assert.Equal(t, "error", ec.LogLevel)
		assert.Equal(t, "scraper", ec.ServiceName)
		assert.True(t, ec.Debug)
	})

	t.Run("given malformed number, then error", func(t *testing.T) {
		t.Setenv("BYPASSTEST_RETRIES", "many")

		_, err := LoadEnvConfig("BYPASSTEST")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "httpclient: load env config")
	})
}

func TestEnvConfig_Options(t *testing.T) {
	base := EnvConfig{
		Transport:            "plain",
		Retries:              3,
		Timeout:              15 * time.Second,
		ProxyMode:            "split",
		ProxyFromEnvironment: true,
		Fingerprint:          "chrome",
		Pacing:               750 * time.Millisecond,
		PacingJitter:         0.5,
		LogLevel:             "warn",
	}

	t.Run("given fingerprint settings, then they reach the config", func(t *testing.T) {
		ec := base
		ec.Transport = "fingerprint"
		ec.Fingerprint = "safari"
		ec.Pacing = 0
		ec.Retries = 6
		ec.Timeout = 4 * time.Second
		ec.ProxyMode = "http_only"
		ec.ProxyFromEnvironment = false
		ec.ServiceName = "crawler"
		ec.Debug = true

		opts, err := ec.Options()
		require.NoError(t, err)

		cfg := newConfig(opts...)
		assert.Equal(t, TransportFingerprint, cfg.Transport)
		assert.Equal(t, ProfileSafari, cfg.Fingerprint.Profile)
		assert.Zero(t, cfg.Fingerprint.Pacing)
		assert.Equal(t, 6, cfg.DefaultRetries)
		assert.Equal(t, 4*time.Second, cfg.httpConfig.Timeout)
		assert.Equal(t, proxy.ModeHTTPOnly, cfg.ProxyMode)
		assert.False(t, cfg.ProxyFromEnvironment)
		assert.Equal(t, "crawler", cfg.ServiceName)
		assert.True(t, cfg.Debug)
	})

	t.Run("given plain transport, then fingerprint settings do not select it", func(t *testing.T) {
		opts, err := base.Options()
		require.NoError(t, err)

		cfg := newConfig(opts...)
		assert.Equal(t, TransportPlain, cfg.Transport)
	})

	tests := []struct {
		name   string
		mutate func(*EnvConfig)
	}{
		{name: "given unknown transport, then error", mutate: func(ec *EnvConfig) { ec.Transport = "carrier-pigeon" }},
		{name: "given unknown proxy mode, then error", mutate: func(ec *EnvConfig) { ec.ProxyMode = "sideways" }},
		{name: "given unknown profile, then error", mutate: func(ec *EnvConfig) { ec.Fingerprint = "netscape" }},
		{name: "given unknown log level, then error", mutate: func(ec *EnvConfig) { ec.LogLevel = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := base
			tt.mutate(&ec)

			_, err := ec.Options()
			assert.Error(t, err)
		})
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Run("given valid variables, then extra options apply last", func(t *testing.T) {
		t.Setenv("BYPASSTEST_RETRIES", "1")

		rec := newSessionRecorder(outcome{err: errTransient}, outcome{status: http.StatusOK})
		client, err := NewFromEnv("BYPASSTEST", WithSessionFactory(rec.factory), WithLogger(NopLogger()))
		require.NoError(t, err)

		resp, err := client.Get(context.Background(), "https://example.com/")
		assert.Nil(t, resp)
		require.ErrorIs(t, err, ErrExhausted)
		assert.Equal(t, 1, rec.last().attempts())
	})

	t.Run("given invalid variables, then error", func(t *testing.T) {
		t.Setenv("BYPASSTEST_PROXY_MODE", "sideways")

		client, err := NewFromEnv("BYPASSTEST")
		require.Error(t, err)
		assert.Nil(t, client)
	})
}
