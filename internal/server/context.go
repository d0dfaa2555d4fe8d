package server

import (
	"context"
	"net/http"
	"sync"
)

type requestInfoKey struct{}

// requestInfo is filled in by inner handlers and read by outer middleware after the request completes.
type requestInfo struct {
	mu       sync.Mutex
	identity string
}

func withRequestInfo(r *http.Request) (*http.Request, *requestInfo) {
	if info, ok := r.Context().Value(requestInfoKey{}).(*requestInfo); ok {
		return r, info
	}
	info := &requestInfo{}
	return r.WithContext(context.WithValue(r.Context(), requestInfoKey{}, info)), info
}

// WithIdentity records the visitor identity on the request so middleware can log and rate limit by it.
func WithIdentity(r *http.Request, identity string) *http.Request {
	r, info := withRequestInfo(r)
	info.mu.Lock()
	info.identity = identity
	info.mu.Unlock()
	return r
}

// Identity returns the identity recorded by [WithIdentity], or "".
func Identity(ctx context.Context) string {
	info, ok := ctx.Value(requestInfoKey{}).(*requestInfo)
	if !ok {
		return ""
	}
	info.mu.Lock()
	defer info.mu.Unlock()
	return info.identity
}
