package server

import (
	"context"
	"crypto/subtle"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/desertthunder/incommon/internal/shared"
)

// Exchanger trades an authorization code for a token and stores it. Implemented by auth.Manager.
type Exchanger interface {
	Exchange(ctx context.Context, code string) error
}

// OAuthResult is the outcome of a single callback.
type OAuthResult struct {
	err error
}

// Error is nil when the reference account was authorized.
func (o *OAuthResult) Error() error { return o.err }

var callbackPage = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>incommon · {{.Heading}}</title>
<style>
body { font-family: system-ui, sans-serif; display: grid; place-items: center; min-height: 100vh; margin: 0; background: #121212; color: #b3b3b3; }
main { text-align: center; padding: 2rem 3rem; border-radius: 12px; background: #181818; }
h1 { margin: 0 0 .75rem; color: {{.Color}}; }
</style>
</head>
<body>
<main>
<h1>{{.Heading}}</h1>
<p>{{.Detail}}</p>
</main>
</body>
</html>
`))

type callbackView struct {
	Heading string
	Detail  string
	Color   template.CSS
}

// OAuthHandler serves the one-shot callback of `incommon reference auth`.
// Only the first request is processed; later ones are rejected so a leaked URL cannot be replayed.
type OAuthHandler struct {
	exchanger Exchanger
	state     string
	used      atomic.Bool
	results   chan OAuthResult
	once      sync.Once
}

// NewOAuthHandler expects state to be the random value sent with the authorize URL.
func NewOAuthHandler(exchanger Exchanger, state string) *OAuthHandler {
	return &OAuthHandler{
		exchanger: exchanger,
		state:     state,
		results:   make(chan OAuthResult, 1),
	}
}

func (h *OAuthHandler) Routes() []string { return []string{"/callback"} }

func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.used.CompareAndSwap(false, true) {
		http.Error(w, "callback already used", http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	if subtle.ConstantTimeCompare([]byte(query.Get("state")), []byte(h.state)) != 1 {
		h.fail(w, http.StatusBadRequest, shared.ErrInvalidState, "The state parameter did not match this login attempt.")
		return
	}

	code := query.Get("code")
	if code == "" {
		reason := query.Get("error")
		if reason == "" {
			reason = "no code returned"
		}
		h.fail(w, http.StatusBadRequest, fmt.Errorf("%w: %s", shared.ErrAuthFailed, reason), "Spotify did not grant access.")
		return
	}

	if err := h.exchanger.Exchange(r.Context(), code); err != nil {
		h.fail(w, http.StatusInternalServerError, err, "The authorization code could not be exchanged for a token.")
		return
	}

	h.Send(OAuthResult{})
	render(w, http.StatusOK, callbackView{
		Heading: "Reference account authorized",
		Detail:  "You can close this window and return to the terminal.",
		Color:   "#1db954",
	})
}

func (h *OAuthHandler) fail(w http.ResponseWriter, status int, err error, detail string) {
	h.Send(OAuthResult{err: err})
	render(w, status, callbackView{Heading: "Authorization failed", Detail: detail, Color: "#e91429"})
}

func render(w http.ResponseWriter, status int, view callbackView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = callbackPage.Execute(w, view)
}

// Send delivers result to [OAuthHandler.Result]. Only the first call has any effect.
func (h *OAuthHandler) Send(result OAuthResult) {
	h.once.Do(func() {
		h.results <- result
		close(h.results)
	})
}

// Result yields exactly one value and is then closed.
func (h *OAuthHandler) Result() <-chan OAuthResult { return h.results }
