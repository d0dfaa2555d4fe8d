// Package server provides HTTP routing, middleware, and the OAuth callback handler for the web app and CLI.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [ChiRouter] implements it on chi.
//
// [Middleware] follows the standard Go pattern. The web app stacks them as:
//
//	Recoverer → Logging → Instrument → SecurityHeaders → (session) → RateLimiter
//
// Inner handlers record the visitor identity with [WithIdentity]; [Logging] and [RateLimiter] read it back.
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the one-shot authorization code callback used by `incommon reference auth`.
//
// The handler validates the state parameter (CSRF protection), hands the code to an [Exchanger] that stores the
// token, and sends the result through a channel. It only processes one callback to prevent replay attacks.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
