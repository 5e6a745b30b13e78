package httpclient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/imroc/req/v3"
)

// FingerprintProfile selects the browser whose TLS and HTTP/2 fingerprint
// the fingerprint transport presents.
type FingerprintProfile int

const (
	// ProfileChrome impersonates a recent desktop Chrome.
	ProfileChrome FingerprintProfile = iota

	// ProfileFirefox impersonates a recent desktop Firefox.
	ProfileFirefox

	// ProfileSafari impersonates a recent desktop Safari.
	ProfileSafari
)

// String returns the profile name.
func (p FingerprintProfile) String() string {
	switch p {
	case ProfileChrome:
		return "chrome"
	case ProfileFirefox:
		return "firefox"
	case ProfileSafari:
		return "safari"
	default:
		return fmt.Sprintf("FingerprintProfile(%d)", int(p))
	}
}

// ParseFingerprintProfile converts a browser name into a FingerprintProfile.
func ParseFingerprintProfile(s string) (FingerprintProfile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "chrome":
		return ProfileChrome, nil
	case "firefox":
		return ProfileFirefox, nil
	case "safari":
		return ProfileSafari, nil
	default:
		return ProfileChrome, fmt.Errorf("httpclient: unknown fingerprint profile %q", s)
	}
}

// FingerprintConfig configures the browser-emulating transport.
//
// Example:
//
//	client := httpclient.New(
//	    httpclient.WithTransport(httpclient.TransportFingerprint),
//	    httpclient.WithFingerprint(httpclient.FingerprintConfig{
//	        Profile:      httpclient.ProfileFirefox,
//	        Pacing:       2 * time.Second,
//	        PacingJitter: 0.5,
//	    }),
//	)
type FingerprintConfig struct {
	// Profile is the impersonated browser.
	// Default: ProfileChrome
	Profile FingerprintProfile

	// Pacing is the humanlike pause taken before every request.
	// Calls made with WithNoWait skip it.
	// Default: 750ms
	Pacing time.Duration

	// PacingJitter randomizes Pacing (0.0-1.0).
	// Default: 0.5 (±50%)
	PacingJitter float64
}

// DefaultFingerprintConfig returns Chrome with a 750ms ±50% pause.
func DefaultFingerprintConfig() FingerprintConfig {
	return FingerprintConfig{
		Profile:      ProfileChrome,
		Pacing:       750 * time.Millisecond,
		PacingJitter: 0.5,
	}
}

// fingerprintSession issues requests through a req client that
// impersonates a browser.
type fingerprintSession struct {
	client *req.Client
	pacing time.Duration
	jitter float64
	noWait bool
}

func newFingerprintSession(cfg *internalConfig, sc SessionConfig) (*fingerprintSession, error) {
	c := req.C().SetTimeout(cfg.httpConfig.Timeout)

	switch cfg.Fingerprint.Profile {
	case ProfileFirefox:
		c.ImpersonateFirefox()
	case ProfileSafari:
		c.ImpersonateSafari()
	default:
		c.ImpersonateChrome()
	}

	if len(sc.Headers) > 0 {
		c.SetCommonHeaders(sc.Headers)
	}
	if cookies := cookieList(sc.Cookies); len(cookies) > 0 {
		c.SetCommonCookies(cookies...)
	}

	switch {
	case sc.Proxy != nil && !sc.Proxy.IsZero():
		c.SetProxy(sc.Proxy.ProxyFunc(sc.ProxyMode))
	case !cfg.ProxyFromEnvironment:
		c.SetProxy(nil)
	}

	if cfg.TLSConfig != nil && cfg.TLSConfig.InsecureSkipVerify {
		c.EnableInsecureSkipVerify()
	}

	return &fingerprintSession{
		client: c,
		pacing: cfg.Fingerprint.Pacing,
		jitter: cfg.Fingerprint.PacingJitter,
		noWait: sc.NoWait,
	}, nil
}

// Do implements Session.
func (s *fingerprintSession) Do(ctx context.Context, r *Request) (*Response, error) {
	if err := s.pace(ctx); err != nil {
		return nil, err
	}

	rb := s.client.R().SetContext(ctx)
	if r.Body != nil {
		rb.SetBodyBytes(r.Body)
	}
	if r.ContentType != "" {
		rb.SetContentType(r.ContentType)
	}

	resp, err := rb.Send(r.Method, r.URL)
	if err != nil {
		// Headers arrived but the body could not be read.
		if resp != nil && resp.Response != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("%w: %w", ErrResponseDecode, err)
		}
		return nil, err
	}

	body, err := resp.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrResponseDecode, err)
	}

	return newResponseFromBytes(resp.Response, body, r.URL), nil
}

// pace sleeps for the jittered pacing delay unless the call opted out.
func (s *fingerprintSession) pace(ctx context.Context) error {
	if s.noWait || s.pacing <= 0 {
		return nil
	}

	timer := time.NewTimer(applyJitter(s.pacing, s.jitter))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements Session.
func (s *fingerprintSession) Close() error {
	s.client.GetTransport().CloseIdleConnections()
	return nil
}
