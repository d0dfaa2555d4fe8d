// Package services implements the Spotify Web API calls used by the web app and the CLI.
//
// # Client
//
// [SpotifyService] wraps an [http.Client] that is already authorized, usually one returned by the auth package's
// Manager.Client. The service never handles tokens itself; a rejected refresh surfaces as
// [shared.ErrNotAuthenticated].
//
// # Retries
//
// Each attempt waits on the shared [rate.Limiter] and runs under its own timeout. Network errors, 429 and 5xx
// responses are retried with exponential backoff, and a 429 Retry-After header replaces the computed delay.
// Decode errors and other 4xx responses fail immediately.
//
// # Error Handling
//
// Failures are returned as [APIError] or [DecodeError], which match the shared sentinels through errors.Is:
//   - [shared.ErrNotAuthenticated] : 401 or 403, the visitor must consent again
//   - [shared.ErrAPIRequest] : any other failed call
//   - [shared.ErrServiceUnavailable] : network errors, 429 and 5xx
package services
