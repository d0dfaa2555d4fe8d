package testing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// FakeItem is a top artist or top track.
type FakeItem struct {
	ID   string
	Name string
}

// FakeUser is an account known to [FakeSpotify].
type FakeUser struct {
	ID          string
	DisplayName string
	// Saved track ids in library order. An empty id is a local file.
	Tracks        []string
	TopArtists    []FakeItem
	TopTracks     []FakeItem
	PlaylistsJSON string
}

// FakePlaylist records a playlist created through the fake API.
type FakePlaylist struct {
	ID      string
	Owner   string
	Name    string
	Public  bool
	Batches [][]string
}

// URIs returns every track uri added to the playlist in order.
func (p *FakePlaylist) URIs() []string {
	var out []string
	for _, b := range p.Batches {
		out = append(out, b...)
	}
	return out
}

// FakeSpotify serves the subset of the Spotify accounts and Web API used by the app.
//
// Tokens, codes and refresh tokens are issued in memory. Point the OAuth endpoint at [FakeSpotify.AuthURL] and
// [FakeSpotify.TokenURL] and the API base at [FakeSpotify.APIURL].
type FakeSpotify struct {
	*httptest.Server

	// FailAddBatch makes the nth add-tracks call (1-based, per playlist) fail with FailStatus.
	FailAddBatch int
	FailStatus   int
	// GrantedScope is echoed in token responses when set.
	GrantedScope string
	ExpiresIn    int

	mu        sync.Mutex
	seq       int
	users     map[string]*FakeUser
	access    map[string]string
	codes     map[string]string
	refresh   map[string]string
	revoked   map[string]bool
	playlists map[string]*FakePlaylist
	order     []string
	calls     map[string]int
}

// NewFakeSpotify starts a fake server that is closed when the test ends.
func NewFakeSpotify(t *testing.T) *FakeSpotify {
	t.Helper()
	f := &FakeSpotify{
		FailStatus: http.StatusInternalServerError,
		ExpiresIn:  3600,
		users:      make(map[string]*FakeUser),
		access:     make(map[string]string),
		codes:      make(map[string]string),
		refresh:    make(map[string]string),
		revoked:    make(map[string]bool),
		playlists:  make(map[string]*FakePlaylist),
		calls:      make(map[string]int),
	}

	r := chi.NewRouter()
	r.Get("/authorize", f.authorize)
	r.Post("/api/token", f.token)
	r.Route("/v1", func(r chi.Router) {
		r.Use(f.bearer)
		r.Get("/me", f.me)
		r.Get("/me/tracks", f.savedTracks)
		r.Get("/me/top/artists", f.top(func(u *FakeUser) []FakeItem { return u.TopArtists }))
		r.Get("/me/top/tracks", f.top(func(u *FakeUser) []FakeItem { return u.TopTracks }))
		r.Get("/me/playlists", f.myPlaylists)
		r.Post("/users/{userID}/playlists", f.createPlaylist)
		r.Post("/playlists/{playlistID}/tracks", f.addTracks)
	})

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Close)
	return f
}

func (f *FakeSpotify) AuthURL() string  { return f.URL + "/authorize" }
func (f *FakeSpotify) TokenURL() string { return f.URL + "/api/token" }
func (f *FakeSpotify) APIURL() string   { return f.URL + "/v1" }

// AddUser registers an account.
func (f *FakeSpotify) AddUser(u FakeUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = &u
}

// IssueCode returns a one-time authorization code for userID.
func (f *FakeSpotify) IssueCode(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	code := fmt.Sprintf("code-%d", f.seq)
	f.codes[code] = userID
	return code
}

// IssueToken returns an access and refresh token pair for userID.
func (f *FakeSpotify) IssueToken(userID string) (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.issueLocked(userID)
}

func (f *FakeSpotify) issueLocked(userID string) (string, string) {
	f.seq++
	access := fmt.Sprintf("access-%s-%d", userID, f.seq)
	refresh := fmt.Sprintf("refresh-%s-%d", userID, f.seq)
	f.access[access] = userID
	f.refresh[refresh] = userID
	return access, refresh
}

// Revoke makes a refresh token fail with invalid_grant.
func (f *FakeSpotify) Revoke(refreshToken string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[refreshToken] = true
}

// Playlists returns created playlists in creation order.
func (f *FakeSpotify) Playlists() []*FakePlaylist {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*FakePlaylist, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.playlists[id])
	}
	return out
}

// Calls returns how many requests hit the route pattern, e.g. "POST /api/token".
func (f *FakeSpotify) Calls(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

func (f *FakeSpotify) count(r *http.Request) {
	f.mu.Lock()
	f.calls[r.Method+" "+r.URL.Path]++
	f.mu.Unlock()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": map[string]any{"status": status, "message": message}})
}

func (f *FakeSpotify) authorize(w http.ResponseWriter, r *http.Request) {
	f.count(r)
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "consent page")
}

func (f *FakeSpotify) token(w http.ResponseWriter, r *http.Request) {
	f.count(r)
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var userID string
	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		code := r.PostForm.Get("code")
		id, ok := f.codes[code]
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Invalid authorization code"})
			return
		}
		delete(f.codes, code)
		userID = id
	case "refresh_token":
		rt := r.PostForm.Get("refresh_token")
		id, ok := f.refresh[rt]
		if !ok || f.revoked[rt] {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant", "error_description": "Refresh token revoked"})
			return
		}
		f.seq++
		access := fmt.Sprintf("access-%s-%d", id, f.seq)
		f.access[access] = id
		resp := map[string]any{"access_token": access, "token_type": "Bearer", "expires_in": f.ExpiresIn}
		if f.GrantedScope != "" {
			resp["scope"] = f.GrantedScope
		}
		writeJSON(w, http.StatusOK, resp)
		return
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	access, refresh := f.issueLocked(userID)
	resp := map[string]any{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    f.ExpiresIn,
	}
	if f.GrantedScope != "" {
		resp["scope"] = f.GrantedScope
	}
	writeJSON(w, http.StatusOK, resp)
}

type userKey struct{}

func (f *FakeSpotify) bearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.count(r)
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		f.mu.Lock()
		id, ok := f.access[tok]
		user := f.users[id]
		f.mu.Unlock()

		if !ok || user == nil {
			apiError(w, http.StatusUnauthorized, "Invalid access token")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r, user)))
	})
}

func (f *FakeSpotify) me(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	writeJSON(w, http.StatusOK, map[string]any{"id": u.ID, "display_name": u.DisplayName})
}

func pageParams(r *http.Request, defLimit int) (int, int) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = defLimit
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

func (f *FakeSpotify) savedTracks(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	limit, offset := pageParams(r, 20)
	if limit > 50 {
		apiError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	items := []map[string]any{}
	for i := offset; i < offset+limit && i < len(u.Tracks); i++ {
		id := u.Tracks[i]
		track := map[string]any{"id": nil, "name": "local file", "uri": "spotify:local:" + strconv.Itoa(i), "is_local": true}
		if id != "" {
			track = map[string]any{
				"id":      id,
				"name":    "Track " + id,
				"uri":     "spotify:track:" + id,
				"artists": []map[string]string{{"id": "artist-" + id, "name": "Artist " + id}},
			}
		}
		items = append(items, map[string]any{"added_at": "2024-01-01T00:00:00Z", "track": track})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(u.Tracks), "limit": limit, "offset": offset})
}

func (f *FakeSpotify) top(pick func(*FakeUser) []FakeItem) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u := userFrom(r)
		limit, _ := pageParams(r, 20)
		all := pick(u)
		items := []map[string]string{}
		for i := 0; i < limit && i < len(all); i++ {
			items = append(items, map[string]string{"id": all[i].ID, "name": all[i].Name})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(all)})
	}
}

func (f *FakeSpotify) myPlaylists(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	if u.PlaylistsJSON == "" {
		writeJSON(w, http.StatusOK, map[string]any{"items": []any{}, "total": 0})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, u.PlaylistsJSON)
}

func (f *FakeSpotify) createPlaylist(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	owner := chi.URLParam(r, "userID")
	if owner != u.ID {
		apiError(w, http.StatusForbidden, "You cannot create a playlist for another user")
		return
	}

	var body struct {
		Name   string `json:"name"`
		Public bool   `json:"public"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		apiError(w, http.StatusBadRequest, "Missing name")
		return
	}

	f.mu.Lock()
	f.seq++
	id := fmt.Sprintf("playlist%d", f.seq)
	f.playlists[id] = &FakePlaylist{ID: id, Owner: owner, Name: body.Name, Public: body.Public}
	f.order = append(f.order, id)
	f.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"id":            id,
		"name":          body.Name,
		"public":        body.Public,
		"uri":           "spotify:playlist:" + id,
		"owner":         map[string]string{"id": owner},
		"external_urls": map[string]string{"spotify": "https://open.spotify.com/playlist/" + id},
	})
}

func (f *FakeSpotify) addTracks(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URIs []string `json:"uris"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apiError(w, http.StatusBadRequest, "Invalid body")
		return
	}
	if len(body.URIs) == 0 || len(body.URIs) > 100 {
		apiError(w, http.StatusBadRequest, "Too many ids requested")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	pl, ok := f.playlists[chi.URLParam(r, "playlistID")]
	if !ok {
		apiError(w, http.StatusNotFound, "Not found")
		return
	}
	if f.FailAddBatch > 0 && len(pl.Batches)+1 == f.FailAddBatch {
		apiError(w, f.FailStatus, "Server error")
		return
	}
	pl.Batches = append(pl.Batches, body.URIs)
	writeJSON(w, http.StatusCreated, map[string]string{"snapshot_id": fmt.Sprintf("snap-%d", len(pl.Batches))})
}

func withUser(r *http.Request, u *FakeUser) context.Context {
	return context.WithValue(r.Context(), userKey{}, u)
}

func userFrom(r *http.Request) *FakeUser {
	return r.Context().Value(userKey{}).(*FakeUser)
}
