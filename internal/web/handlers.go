package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/desertthunder/incommon/internal/auth"
	"github.com/desertthunder/incommon/internal/library"
	"github.com/desertthunder/incommon/internal/models"
	"github.com/desertthunder/incommon/internal/services"
	"github.com/desertthunder/incommon/internal/shared"
)

// playlistsPageSize is how many playlists /playlists returns.
const playlistsPageSize = 50

type signInData struct {
	Reference    string
	AuthorizeURL string
}

type homeData struct {
	Visitor string
}

type commonData struct {
	Reference string
	Count     int
	Added     int
	Batch     int
	EmbedURL  string
}

type topData struct {
	Reference string
	Count     int
	Items     []library.CommonItem
}

// index handles the OAuth redirect, the sign-in link and the greeting.
func (a *App) index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := sessionFrom(ctx)
	m, err := a.manager(s)
	if err != nil {
		a.fail(w, r, nil, err)
		return
	}

	query := r.URL.Query()
	if query.Has("code") || query.Has("error") {
		if err := a.sessions.CheckState(s, query.Get("state")); err != nil {
			a.logger.Warn("discarding oauth callback", "identity", s.Identity(), "err", err)
		} else if code := query.Get("code"); code != "" {
			if err := m.Exchange(ctx, code); err != nil {
				a.logger.Warn("sign in failed", "identity", s.Identity(), "err", err)
			}
		}
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}

	switch st := a.state(m, s); st {
	case auth.NoToken, auth.AwaitingCode:
		a.signIn(w, r, m, st)
		return
	}

	api, err := a.visitorAPI(ctx, m)
	if errors.Is(err, shared.ErrNotAuthenticated) {
		a.signIn(w, r, m, auth.NoToken)
		return
	}
	if err != nil {
		a.fail(w, r, m, err)
		return
	}

	user, err := api.UserProfile(ctx)
	if err != nil {
		a.fail(w, r, m, err)
		return
	}
	a.render(w, http.StatusOK, pageHome, homeData{Visitor: user.Name()})
}

// signIn renders the consent link. A state still pending from an earlier visit is reused, so a reload or a
// second tab does not invalidate a consent screen that is already open.
func (a *App) signIn(w http.ResponseWriter, r *http.Request, m *auth.Manager, st auth.State) {
	s := sessionFrom(r.Context())
	state := s.OAuthState()
	if st != auth.AwaitingCode || state == "" {
		var err error
		if state, err = a.sessions.IssueState(w, s); err != nil {
			a.fail(w, r, nil, err)
			return
		}
	}
	a.render(w, http.StatusOK, pageSignIn, signInData{
		Reference:    a.config.Reference.DisplayName,
		AuthorizeURL: m.AuthorizeURL(state),
	})
}

// signOut deletes the visitor's token cache and session.
func (a *App) signOut(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	if m, err := a.manager(s); err == nil {
		if err := m.SignOut(); err != nil {
			a.logger.Error("failed to delete token cache", "identity", s.Identity(), "err", err)
		}
	}
	if err := a.sessions.Clear(w, s); err != nil {
		a.logger.Error("failed to delete session", "identity", s.Identity(), "err", err)
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

// commonTracks intersects both libraries and builds a playlist from the overlap on the reference account.
func (a *App) commonTracks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := sessionFrom(ctx)
	m, err := a.manager(s)
	if err != nil {
		a.fail(w, r, nil, err)
		return
	}

	visitor, err := a.visitorAPI(ctx, m)
	if err != nil {
		a.fail(w, r, m, err)
		return
	}
	user, err := visitor.UserProfile(ctx)
	if err != nil {
		a.fail(w, r, m, err)
		return
	}
	reference, err := a.referenceAPI(ctx)
	if err != nil {
		a.fail(w, r, m, err)
		return
	}

	mine, err := a.fetcher.SavedTracks(ctx, visitor, user.Name())
	if err != nil {
		a.fail(w, r, m, err)
		return
	}
	theirs, err := a.fetcher.SavedTracks(ctx, reference, a.config.Reference.DisplayName)
	if err != nil {
		a.fail(w, r, m, err)
		return
	}

	common := library.Intersect(mine.IDs, theirs.IDs)
	a.metrics.RecordComparison(models.KindTracks, common.Len())
	record := models.NewComparison(s.Identity(), user.Name(), models.KindTracks, common.Len())
	data := commonData{Reference: a.config.Reference.DisplayName, Count: common.Len()}

	materializer := library.NewMaterializer(reference, a.logger, a.metrics)
	name := library.PlaylistName(user.Name(), a.config.Reference.DisplayName)
	result, err := materializer.Materialize(ctx, a.config.Reference.UserID, name, common)

	var batchErr *library.BatchError
	switch {
	case errors.Is(err, shared.ErrNoOverlap):
		a.record(record)
		a.render(w, http.StatusOK, pageNoOverlap, data)
	case errors.As(err, &batchErr):
		record.SetPlaylist(result.Playlist.ID, result.Added)
		a.record(record)
		data.Added, data.Batch, data.EmbedURL = batchErr.Added, batchErr.Batch, embedURL(result.Playlist)
		a.render(w, http.StatusOK, pagePartial, data)
	case err != nil:
		a.fail(w, r, m, err)
	default:
		record.SetPlaylist(result.Playlist.ID, result.Added)
		a.record(record)
		data.Added, data.EmbedURL = result.Added, embedURL(result.Playlist)
		a.render(w, http.StatusOK, pageCommon, data)
	}
}

func embedURL(p *services.SpotifyPlaylist) string {
	if p == nil || p.ID == "" {
		return ""
	}
	return p.EmbedURL()
}

func (a *App) topArtists(w http.ResponseWriter, r *http.Request) {
	a.compareTop(w, r, models.KindTopArtists, pageTopArtists, library.CompareTopArtists)
}

func (a *App) topTracks(w http.ResponseWriter, r *http.Request) {
	a.compareTop(w, r, models.KindTopTracks, pageTopTracks, library.CompareTopTracks)
}

type compareFunc func(ctx context.Context, visitor, reference library.TopSource) (*library.Comparison, error)

// compareTop renders the overlap of the visitor's and the reference account's top items. No playlist is created.
func (a *App) compareTop(w http.ResponseWriter, r *http.Request, kind, page string, compare compareFunc) {
	ctx := r.Context()
	s := sessionFrom(ctx)
	m, err := a.manager(s)
	if err != nil {
		a.fail(w, r, nil, err)
		return
	}

	visitor, err := a.visitorAPI(ctx, m)
	if err != nil {
		a.fail(w, r, m, err)
		return
	}
	reference, err := a.referenceAPI(ctx)
	if err != nil {
		a.fail(w, r, m, err)
		return
	}

	result, err := compare(ctx, visitor, reference)
	if err != nil {
		a.fail(w, r, m, err)
		return
	}

	a.metrics.RecordComparison(kind, result.Count())
	visitorName := ""
	if user, err := visitor.UserProfile(ctx); err == nil {
		visitorName = user.Name()
	}
	a.record(models.NewComparison(s.Identity(), visitorName, kind, result.Count()))

	a.render(w, http.StatusOK, page, topData{
		Reference: a.config.Reference.DisplayName,
		Count:     result.Count(),
		Items:     result.Items,
	})
}

// playlists returns the visitor's playlists as the upstream JSON body.
func (a *App) playlists(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	m, err := a.manager(sessionFrom(ctx))
	if err != nil {
		a.fail(w, r, nil, err)
		return
	}

	visitor, err := a.visitorAPI(ctx, m)
	if err != nil {
		a.fail(w, r, m, err)
		return
	}
	body, err := visitor.UserPlaylistsRaw(ctx, playlistsPageSize, 0)
	if err != nil {
		a.fail(w, r, m, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// record saves comparison history. Failures are logged and never fail the request.
func (a *App) record(c *models.Comparison) {
	if err := a.comparisons.Create(c); err != nil {
		a.logger.Warn("failed to record comparison", "kind", c.Kind(), "err", err)
	}
}
