package httpclient

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"syscall"

	"github.com/sony/gobreaker/v2"
)

// TransientClassifier reports whether a failed attempt may succeed when
// repeated. Responses never reach the classifier: any status code ends
// the retry loop.
//
// Example that also retries rate limiter rejections:
//
//	client := httpclient.New(
//	    httpclient.WithTransientClassifier(func(err error) bool {
//	        return errors.Is(err, httpclient.ErrRateLimited) ||
//	            httpclient.IsTransient(err)
//	    }),
//	)
type TransientClassifier func(err error) bool

// IsTransient is the default TransientClassifier.
//
// Transient:
//   - connection failures (refused, reset, unreachable, DNS lookups)
//   - connect and read timeouts
//   - truncated or undecodable response bodies, chunked encoding errors
//
// Not transient:
//   - caller cancellation
//   - TLS certificate verification failures
//   - rate limiter and circuit breaker rejections
//   - malformed requests and anything unrecognised
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	if isRejection(err) || isPermanentError(err) {
		return false
	}

	if errors.Is(err, ErrResponseDecode) || isDecodeError(err) {
		return true
	}

	return isRetryableNetworkError(err)
}

// isRejection matches errors produced by the client's own guards.
func isRejection(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) ||
		errors.Is(err, ErrUnsupportedMethod)
}

// isDecodeError matches content-encoding failures surfaced while reading a body.
func isDecodeError(err error) bool {
	if errors.Is(err, gzip.ErrHeader) || errors.Is(err, gzip.ErrChecksum) {
		return true
	}
	var corrupt flate.CorruptInputError
	return errors.As(err, &corrupt)
}

// isRetryableNetworkError returns true for network errors that are
// typically transient and may succeed on retry.
func isRetryableNetworkError(err error) bool {
	// url.Error implements net.Error too, so only Timeout() is trusted here.
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return containsTransientPattern(err)
}

// containsTransientPattern is a fallback for errors from third-party
// transports that arrive as plain strings.
func containsTransientPattern(err error) bool {
	errStr := causeText(err)
	patterns := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is down",
		"network is unreachable",
		"i/o timeout",
		"timeout awaiting",
		"temporary failure",
		"server closed",
		"broken pipe",
		"unexpected eof",
		"malformed chunked encoding",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}

// isPermanentError returns true for failures that repeating the same
// request cannot fix.
func isPermanentError(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}

	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}

	return containsPermanentPattern(err)
}

func containsPermanentPattern(err error) bool {
	errStr := causeText(err)
	patterns := []string{
		"x509:",
		"certificate",
		"unsupported protocol scheme",
		"invalid url escape",
		"missing protocol scheme",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}

// causeText is the lower-cased error text to match patterns against.
// A *url.Error puts the request URL into its message, so only its cause
// is used: a path like /api/certificates must not read as a TLS failure.
func causeText(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return strings.ToLower(urlErr.Err.Error())
	}
	return strings.ToLower(err.Error())
}

// errorType returns a low-cardinality label for span and metric attributes.
func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "breaker_open"
	case errors.Is(err, ErrResponseDecode), isDecodeError(err):
		return "decode"
	case isPermanentError(err):
		return "tls_error"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns_error"
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "connection_refused"
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return "connection_reset"
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return "eof"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "connection_error"
	}
	return "unknown"
}
