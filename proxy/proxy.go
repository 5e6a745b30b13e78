// Package proxy normalizes proxy specifications into host:port pairs and
// resolves them into outbound proxy URLs.
//
// A proxy is given either as a bare "host:port" string or with a scheme
// prefix such as "http://host:port". Normalization strips everything up to
// and including the first "//", so both forms end up as "host:port":
//
//	cfg := proxy.Normalize("http://10.0.0.1:8080", "https://10.0.0.1:8443")
//	// cfg.HTTP  == "10.0.0.1:8080"
//	// cfg.HTTPS == "10.0.0.1:8443"
//
// The proxy hop itself is always plain HTTP, even for HTTPS targets, so the
// resolved URL is always "http://" + host:port.
package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Config is a normalized proxy pair.
//
// Neither field carries a scheme prefix once built through Normalize or
// FromString. No host:port validation is performed; malformed values pass
// through and fail inside the transport.
type Config struct {
	// HTTP is the proxy host:port used for plain http targets.
	HTTP string

	// HTTPS is the proxy host:port used for https targets in ModeSplit.
	HTTPS string
}

// Mode selects which Config field is used for a given target scheme.
type Mode int

const (
	// ModeSplit routes http targets through HTTP and https targets through
	// HTTPS, one mount per scheme.
	ModeSplit Mode = iota

	// ModeHTTPOnly routes every target through the HTTP field and ignores
	// HTTPS entirely.
	ModeHTTPOnly
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeSplit:
		return "split"
	case ModeHTTPOnly:
		return "http-only"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode converts a mode name ("split", "http-only") into a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "split":
		return ModeSplit, nil
	case "http-only", "http_only", "httponly":
		return ModeHTTPOnly, nil
	default:
		return ModeSplit, fmt.Errorf("proxy: unknown mode %q", s)
	}
}

// Normalize strips scheme prefixes from both specs.
func Normalize(httpSpec, httpsSpec string) Config {
	return Config{
		HTTP:  stripScheme(httpSpec),
		HTTPS: stripScheme(httpsSpec),
	}
}

// FromString uses a single proxy spec for both HTTP and HTTPS targets.
func FromString(spec string) Config {
	return Normalize(spec, spec)
}

// stripScheme keeps only what follows the first "//", if any.
func stripScheme(spec string) string {
	if _, rest, ok := strings.Cut(spec, "//"); ok {
		return rest
	}
	return spec
}

// IsZero reports whether neither proxy is set.
func (c Config) IsZero() bool {
	return c.HTTP == "" && c.HTTPS == ""
}

// String returns "http=<host:port> https=<host:port>" for logging.
func (c Config) String() string {
	return "http=" + c.HTTP + " https=" + c.HTTPS
}

// HostFor returns the host:port used for the target scheme under mode.
func (c Config) HostFor(scheme string, mode Mode) string {
	if mode == ModeSplit && strings.EqualFold(scheme, "https") {
		return c.HTTPS
	}
	return c.HTTP
}

// URLFor resolves the proxy URL for the target scheme.
// It returns nil when the selected field is empty.
func (c Config) URLFor(scheme string, mode Mode) (*url.URL, error) {
	host := c.HostFor(scheme, mode)
	if host == "" {
		return nil, nil
	}
	u, err := url.Parse("http://" + host)
	if err != nil {
		return nil, fmt.Errorf("proxy: invalid proxy %q: %w", host, err)
	}
	return u, nil
}

// ProxyFunc adapts the config for http.Transport.Proxy.
func (c Config) ProxyFunc(mode Mode) func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		return c.URLFor(req.URL.Scheme, mode)
	}
}
