package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/desertthunder/incommon/internal/auth"
	"github.com/desertthunder/incommon/internal/models"
	"github.com/desertthunder/incommon/internal/server"
	"github.com/desertthunder/incommon/internal/services"
	"github.com/desertthunder/incommon/internal/shared"
)

type sessionKey struct{}

func sessionFrom(ctx context.Context) *models.Session {
	s, _ := ctx.Value(sessionKey{}).(*models.Session)
	return s
}

// visitor resolves the session before h runs and rate limits by the session identity.
//
// Sessions that have not been stored yet carry a throwaway identity, so those requests are limited by client IP.
func (a *App) visitor(h http.HandlerFunc) http.Handler {
	var next http.Handler = h
	if a.limiter != nil {
		next = a.limiter.Middleware()(next)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := a.sessions.Resolve(r)
		if err != nil {
			a.logger.Error("failed to resolve session", "err", err)
			a.render(w, http.StatusInternalServerError, pageError, errorPage{
				Title:   "Something went wrong",
				Message: "We couldn't start your session. Please try again.",
				Retry:   "/",
			})
			return
		}

		if s.Stored() {
			r = server.WithIdentity(r, s.Identity())
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, s)))
	})
}

// manager returns the authorization manager for the session's identity.
func (a *App) manager(s *models.Session) (*auth.Manager, error) {
	return auth.NewManager(auth.ManagerOpts{
		Config:   a.oauth,
		Store:    a.tokens,
		Identity: s.Identity(),
		Logger:   a.logger,
		Metrics:  a.metrics,
	})
}

// state reports the visitor's authorization state, including a consent redirect still in flight.
func (a *App) state(m *auth.Manager, s *models.Session) auth.State {
	st, err := m.Status()
	if err != nil {
		a.logger.Warn("failed to read token cache", "identity", s.Identity(), "err", err)
		return auth.NoToken
	}
	if st == auth.NoToken && s.OAuthState() != "" {
		return auth.AwaitingCode
	}
	return st
}

// visitorAPI returns an API client authorized as the visitor.
func (a *App) visitorAPI(ctx context.Context, m *auth.Manager) (*services.SpotifyService, error) {
	client, err := m.Client(ctx)
	if err != nil {
		return nil, err
	}
	return services.NewSpotifyService(client, a.clientOpts), nil
}

// referenceAPI returns an API client authorized as the reference account.
func (a *App) referenceAPI(ctx context.Context) (*referenceService, error) {
	client, err := a.reference.Client(ctx)
	if err != nil {
		return nil, referenceErr(err)
	}
	return &referenceService{api: services.NewSpotifyService(client, a.clientOpts)}, nil
}

// referenceErr keeps reference account auth failures from being mistaken for the visitor's.
func referenceErr(err error) error {
	if err == nil || !errors.Is(err, shared.ErrNotAuthenticated) {
		return err
	}
	return fmt.Errorf("%w: reference account needs to be authorized again: %v", shared.ErrServiceUnavailable, err)
}

// referenceService wraps the reference account's client so its errors pass through [referenceErr].
type referenceService struct {
	api services.API
}

func (r *referenceService) SavedTracks(ctx context.Context, limit, offset int) (*services.SpotifyPaginatedTracks, error) {
	page, err := r.api.SavedTracks(ctx, limit, offset)
	return page, referenceErr(err)
}

func (r *referenceService) TopArtists(ctx context.Context, limit int) ([]services.SpotifyArtist, error) {
	items, err := r.api.TopArtists(ctx, limit)
	return items, referenceErr(err)
}

func (r *referenceService) TopTracks(ctx context.Context, limit int) ([]services.SpotifyTrack, error) {
	items, err := r.api.TopTracks(ctx, limit)
	return items, referenceErr(err)
}

func (r *referenceService) CreatePlaylist(ctx context.Context, userID string, p services.NewPlaylist) (*services.SpotifyPlaylist, error) {
	playlist, err := r.api.CreatePlaylist(ctx, userID, p)
	return playlist, referenceErr(err)
}

func (r *referenceService) AddTracks(ctx context.Context, playlistID string, uris []string) (string, error) {
	snapshot, err := r.api.AddTracks(ctx, playlistID, uris)
	return snapshot, referenceErr(err)
}

// fail maps an error to a response.
//
// Visitor auth failures clear the visitor's token cache and send them back to sign in. Upstream failures render a
// 502 page. Nothing from err reaches the response body.
func (a *App) fail(w http.ResponseWriter, r *http.Request, m *auth.Manager, err error) {
	logger := a.logger.With("path", r.URL.Path, "identity", server.Identity(r.Context()))

	switch {
	case errors.Is(err, shared.ErrNotAuthenticated):
		logger.Info("visitor not authenticated", "err", err)
		if m != nil {
			if err := m.SignOut(); err != nil {
				logger.Error("failed to clear token cache", "err", err)
			}
		}
		http.Redirect(w, r, "/", http.StatusFound)
	case errors.Is(err, shared.ErrAPIRequest),
		errors.Is(err, shared.ErrServiceUnavailable),
		errors.Is(err, shared.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded):
		logger.Error("upstream request failed", "err", err)
		a.render(w, http.StatusBadGateway, pageError, errorPage{
			Title:   "Spotify isn't responding",
			Message: "We couldn't reach Spotify just now. Please try again in a moment.",
			Retry:   r.URL.Path,
		})
	default:
		logger.Error("request failed", "err", err)
		a.render(w, http.StatusInternalServerError, pageError, errorPage{
			Title:   "Something went wrong",
			Message: "Please try again.",
			Retry:   "/",
		})
	}
}
