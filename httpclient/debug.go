package httpclient

import (
	"time"

	"github.com/rs/zerolog"
)

// logAttempt logs an attempt about to be issued.
func logAttempt(logger zerolog.Logger, callID string, req *Request, attempt int) {
	logger.Debug().
		Str("call_id", callID).
		Str("method", req.Method).
		Str("url", req.URL).
		Int("attempt", attempt).
		Int("body_bytes", len(req.Body)).
		Msg("HTTP request")
}

// logOutcome logs how an attempt ended.
func logOutcome(
	logger zerolog.Logger,
	callID string,
	attempt int,
	resp *Response,
	err error,
	duration time.Duration,
) {
	event := logger.Debug().
		Str("call_id", callID).
		Int("attempt", attempt).
		Dur("duration_ms", duration)

	if err != nil {
		event.Err(err).Msg("HTTP attempt failed")
		return
	}

	event.
		Int("status", resp.StatusCode).
		Str("status_text", resp.Status).
		Int("body_bytes", len(resp.Body())).
		Str("final_url", resp.FinalURL()).
		Msg("HTTP response")
}
