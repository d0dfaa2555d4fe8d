// package server contains the router, middleware & OAuth callback handler shared by the web app and CLI
package server

import "net/http"

// Middleware decorates a handler. The web app stacks recovery, logging, metrics, headers and rate limiting.
type Middleware func(http.Handler) http.Handler

// Handler is a handler that knows which paths it answers on.
type Handler interface {
	http.Handler
	Routes() []string
}

// Router registers handlers behind a shared middleware stack.
type Router interface {
	http.Handler
	Use(middleware ...Middleware)
	Handle(method, path string, handler http.Handler)
	Handler(handler Handler)
}
