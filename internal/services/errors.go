package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/desertthunder/incommon/internal/shared"
)

// APIError is a failed Spotify Web API call.
//
// Status is 0 when the request never produced a response.
type APIError struct {
	Status     int
	Method     string
	Endpoint   string
	Message    string
	RetryAfter time.Duration
	Err        error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("spotify %s %s: %v", e.Method, e.Endpoint, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("spotify %s %s: status %d: %s", e.Method, e.Endpoint, e.Status, e.Message)
	}
	return fmt.Sprintf("spotify %s %s: status %d", e.Method, e.Endpoint, e.Status)
}

func (e *APIError) Unwrap() error { return e.Err }

// Is maps the status onto the shared error taxonomy.
//
// 401 and 403 are [shared.ErrNotAuthenticated]. Everything else is [shared.ErrAPIRequest], and transient failures are
// also [shared.ErrServiceUnavailable].
func (e *APIError) Is(target error) bool {
	switch target {
	case shared.ErrNotAuthenticated:
		return e.auth()
	case shared.ErrAPIRequest:
		return !e.auth()
	case shared.ErrServiceUnavailable:
		return e.Retryable()
	}
	return false
}

func (e *APIError) auth() bool {
	return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
}

// Retryable reports whether the call may succeed if repeated: network errors, 429 and 5xx.
func (e *APIError) Retryable() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// Rejected reports whether Spotify turned the request away without acting on it: 429, or 503 with Retry-After.
func (e *APIError) Rejected() bool {
	return e.Status == http.StatusTooManyRequests ||
		(e.Status == http.StatusServiceUnavailable && e.RetryAfter > 0)
}

// newAPIError builds an APIError from a non-2xx response and its body.
func newAPIError(method, endpoint string, resp *http.Response, body []byte) *APIError {
	e := &APIError{Status: resp.StatusCode, Method: method, Endpoint: endpoint}

	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		e.Message = payload.Error.Message
	}

	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return e
}

// DecodeError is a 2xx response whose body could not be decoded. It is never retried.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s response: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == shared.ErrAPIRequest }
