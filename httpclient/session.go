package httpclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/kroma-labs/bypass-go/proxy"
)

// Session issues the attempts of a single call.
//
// A session is opened when a call starts and closed when it ends, whatever
// the outcome. It is never shared between calls, so implementations need
// not be safe for concurrent use.
type Session interface {
	// Do performs one attempt. The returned Response has its body fully read.
	Do(ctx context.Context, req *Request) (*Response, error)

	// Close releases the session's connections.
	Close() error
}

// SessionConfig is the per-call state a session is built from.
type SessionConfig struct {
	// Headers are sent with every request of the session.
	Headers map[string]string

	// Cookies seed the session's cookies.
	Cookies map[string]string

	// Proxy is the per-call proxy, nil for the transport default.
	Proxy *proxy.Config

	// ProxyMode selects which Proxy field serves each target scheme.
	ProxyMode proxy.Mode

	// NoWait skips pacing delays where the session has any.
	NoWait bool
}

// SessionFactory opens a session for one call.
//
// Example that counts opened sessions:
//
//	var opened atomic.Int32
//	base := client.SessionFactory()
//	counting := httpclient.New(
//	    httpclient.WithSessionFactory(func(sc httpclient.SessionConfig) (httpclient.Session, error) {
//	        opened.Add(1)
//	        return base(sc)
//	    }),
//	)
type SessionFactory func(sc SessionConfig) (Session, error)

// TransportKind selects the built-in session implementation.
type TransportKind int

const (
	// TransportPlain uses net/http.
	TransportPlain TransportKind = iota

	// TransportFingerprint emulates a browser's TLS and HTTP/2 fingerprint.
	TransportFingerprint
)

// String returns the transport name.
func (k TransportKind) String() string {
	switch k {
	case TransportPlain:
		return "plain"
	case TransportFingerprint:
		return "fingerprint"
	default:
		return fmt.Sprintf("TransportKind(%d)", int(k))
	}
}

// ParseTransportKind converts "plain" or "fingerprint" into a TransportKind.
func ParseTransportKind(s string) (TransportKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "plain", "http":
		return TransportPlain, nil
	case "fingerprint", "impersonate", "browser":
		return TransportFingerprint, nil
	default:
		return TransportPlain, fmt.Errorf("httpclient: unknown transport %q", s)
	}
}

// sessionFactory returns the configured factory, or the built-in one for
// the selected transport.
func (cfg *internalConfig) sessionFactory() SessionFactory {
	if cfg.SessionFactory != nil {
		return cfg.SessionFactory
	}

	switch cfg.Transport {
	case TransportFingerprint:
		return func(sc SessionConfig) (Session, error) {
			s, err := newFingerprintSession(cfg, sc)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	default:
		return func(sc SessionConfig) (Session, error) {
			s, err := newPlainSession(cfg, sc)
			if err != nil {
				return nil, err
			}
			return s, nil
		}
	}
}
