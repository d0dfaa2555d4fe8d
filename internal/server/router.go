package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

var _ Router = (*ChiRouter)(nil)

// ChiRouter implements the [Router] interface on a [chi.Mux].
//
// Requests for a registered path with the wrong method get a 405 from chi.
type ChiRouter struct {
	mux *chi.Mux
}

// NewRouter creates a new [ChiRouter] instance.
func NewRouter() *ChiRouter {
	return &ChiRouter{mux: chi.NewRouter()}
}

// Use adds [Middleware] to the stack, applied in the order it's added.
//
// chi requires all middleware to be registered before the first route.
func (r *ChiRouter) Use(middleware ...Middleware) {
	for _, m := range middleware {
		r.mux.Use(m)
	}
}

// Handle registers a handler for the specified HTTP method and path.
func (r *ChiRouter) Handle(method, path string, handler http.Handler) {
	r.mux.Method(method, path, handler)
}

// Handler registers a custom Handler implementation.
//
// All routes returned by [Handler.Routes] are registered for every method.
func (r *ChiRouter) Handler(handler Handler) {
	for _, route := range handler.Routes() {
		r.mux.Handle(route, handler)
	}
}

// ServeHTTP implements [http.Handler] for the entire router.
func (r *ChiRouter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RoutePattern returns the chi route pattern matched by req, or "unmatched".
func RoutePattern(req *http.Request) string {
	if rctx := chi.RouteContext(req.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}
