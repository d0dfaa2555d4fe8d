package services

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// maxRetryAfter caps how long a 429 may ask us to wait before the call gives up instead.
const maxRetryAfter = 10 * time.Second

// shouldRetry decides whether attempt (0-based) is followed by another one, and after how long.
//
// A POST may already have been applied when the connection drops or a 5xx comes back, so it is only
// repeated when Spotify refused it outright.
func (s *SpotifyService) shouldRetry(method string, err error, attempt int) (bool, time.Duration) {
	if attempt >= s.opts.MaxRetries {
		return false, 0
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Retryable() {
		return false, 0
	}
	if !idempotent(method) && !apiErr.Rejected() {
		return false, 0
	}

	if apiErr.RetryAfter > 0 {
		if apiErr.RetryAfter > maxRetryAfter {
			return false, 0
		}
		return true, apiErr.RetryAfter
	}
	return true, s.backoff(attempt)
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

func (s *SpotifyService) backoff(attempt int) time.Duration {
	delay := s.opts.BaseDelay << attempt
	if delay <= 0 || delay > s.opts.MaxDelay {
		delay = s.opts.MaxDelay
	}
	return delay
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
