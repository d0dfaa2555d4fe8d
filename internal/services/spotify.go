// Spotify Web API client
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/incommon/internal/shared"
	"golang.org/x/oauth2"
)

const spotifyBaseURL = "https://api.spotify.com/v1"

// TrackURI returns the Spotify URI for a track id.
func TrackURI(id string) string { return "spotify:track:" + id }

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Images      []SpotifyImage `json:"images"`
}

// Name returns the display name, falling back to the user id.
func (u *SpotifyUser) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.ID
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

type externalURLs struct {
	Spotify string `json:"spotify"`
}

// SpotifyTrack represents a Spotify track. ID is empty for local files.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Popularity int             `json:"popularity"`
	URI        string          `json:"uri"`
	IsLocal    bool            `json:"is_local"`
}

// ArtistNames joins the track's artist names.
func (t SpotifyTrack) ArtistNames() string {
	var buf bytes.Buffer
	for i, a := range t.Artists {
		if i > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(a.Name)
	}
	return buf.String()
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Genres       []string       `json:"genres"`
	Images       []SpotifyImage `json:"images"`
	URI          string         `json:"uri"`
	ExternalURLs externalURLs   `json:"external_urls"`
}

// SpotifyAlbum represents a Spotify album.
type SpotifyAlbum struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ReleaseDate string         `json:"release_date"`
	Images      []SpotifyImage `json:"images"`
	URI         string         `json:"uri"`
}

type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// SpotifyPlaylist represents a playlist returned on creation.
type SpotifyPlaylist struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Owner        Owner        `json:"owner"`
	Public       bool         `json:"public"`
	URI          string       `json:"uri"`
	ExternalURLs externalURLs `json:"external_urls"`
}

// EmbedURL returns the open.spotify.com embed player URL for the playlist.
func (p *SpotifyPlaylist) EmbedURL() string {
	return "https://open.spotify.com/embed/playlist/" + url.PathEscape(p.ID)
}

// SpotifySavedTrack represents a track saved in the user's library.
type SpotifySavedTrack struct {
	AddedAt string       `json:"added_at"`
	Track   SpotifyTrack `json:"track"`
}

// SpotifyPaginatedTracks represents a paginated response of saved tracks.
type SpotifyPaginatedTracks struct {
	Items    []SpotifySavedTrack `json:"items"`
	Total    int                 `json:"total"`
	Limit    int                 `json:"limit"`
	Offset   int                 `json:"offset"`
	Next     *string             `json:"next"`
	Previous *string             `json:"previous"`
}

// NewPlaylist is the body of a create-playlist request.
type NewPlaylist struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Public      bool   `json:"public"`
}

// SpotifyService calls the Spotify Web API with an already-authorized [http.Client].
//
// Every attempt is paced by the shared limiter and bounded by the per-call timeout. Network errors, 429 and 5xx
// responses are retried with exponential backoff.
type SpotifyService struct {
	httpClient *http.Client
	opts       ClientOpts
	logger     *log.Logger
}

// NewSpotifyService creates a service using client, normally from [auth.Manager.Client].
func NewSpotifyService(client *http.Client, opts ClientOpts) *SpotifyService {
	if client == nil {
		client = http.DefaultClient
	}
	opts = opts.withDefaults()
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &SpotifyService{httpClient: client, opts: opts, logger: logger}
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// doRequest performs a request and decodes a JSON response into result when non-nil.
func (s *SpotifyService) doRequest(ctx context.Context, method, endpoint string, body, result any) error {
	data, err := s.doRaw(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if result == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}

// doRaw performs a request with retries and returns the raw 2xx body.
func (s *SpotifyService) doRaw(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		if err := s.opts.Limiter.Wait(ctx); err != nil {
			return nil, s.contextError(err)
		}

		data, err := s.attempt(ctx, method, endpoint, payload)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, s.contextError(ctx.Err())
		}

		retry, delay := s.shouldRetry(method, err, attempt)
		if !retry {
			return nil, err
		}

		s.opts.Metrics.RecordUpstreamRetry(endpointLabel(endpoint))
		s.logger.Warn("retrying spotify request", "method", method, "endpoint", endpoint, "attempt", attempt+1, "delay", delay, "err", err)
		if err := sleep(ctx, delay); err != nil {
			return nil, s.contextError(err)
		}
	}
}

// attempt performs exactly one HTTP round trip under the per-call timeout.
func (s *SpotifyService) attempt(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(callCtx, method, s.opts.BaseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.opts.Metrics.RecordUpstreamRequest(endpointLabel(endpoint), 0, time.Since(start))

		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: %w: %v", shared.ErrNotAuthenticated, shared.ErrRefreshFailed, err)
		}
		return nil, &APIError{Method: method, Endpoint: endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	s.opts.Metrics.RecordUpstreamRequest(endpointLabel(endpoint), resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, &APIError{Method: method, Endpoint: endpoint, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newAPIError(method, endpoint, resp, data)
	}
	return data, nil
}

func (s *SpotifyService) contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", shared.ErrTimeout, err)
	}
	return err
}

// endpointLabel strips the query string and ids so metric labels stay bounded.
func endpointLabel(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "unknown"
	}
	switch path := u.Path; {
	case strings.HasPrefix(path, "/users/"):
		return "/users/{id}/playlists"
	case strings.HasPrefix(path, "/playlists/"):
		return "/playlists/{id}/tracks"
	default:
		return path
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 50 {
		return 50
	}
	return limit
}

// UserProfile retrieves the current authenticated user's profile.
func (s *SpotifyService) UserProfile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SavedTracks retrieves one page of the user's saved tracks.
func (s *SpotifyService) SavedTracks(ctx context.Context, limit, offset int) (*SpotifyPaginatedTracks, error) {
	endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", clampLimit(limit), offset)

	var response SpotifyPaginatedTracks
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// TopArtists retrieves the user's top artists.
func (s *SpotifyService) TopArtists(ctx context.Context, limit int) ([]SpotifyArtist, error) {
	var response struct {
		Items []SpotifyArtist `json:"items"`
	}
	endpoint := fmt.Sprintf("/me/top/artists?limit=%d", clampLimit(limit))
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return response.Items, nil
}

// TopTracks retrieves the user's top tracks.
func (s *SpotifyService) TopTracks(ctx context.Context, limit int) ([]SpotifyTrack, error) {
	var response struct {
		Items []SpotifyTrack `json:"items"`
	}
	endpoint := fmt.Sprintf("/me/top/tracks?limit=%d", clampLimit(limit))
	if err := s.doRequest(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	return response.Items, nil
}

// CreatePlaylist creates a playlist owned by userID. The authorized user must be userID.
func (s *SpotifyService) CreatePlaylist(ctx context.Context, userID string, p NewPlaylist) (*SpotifyPlaylist, error) {
	if userID == "" || p.Name == "" {
		return nil, fmt.Errorf("%w: user id and playlist name are required", shared.ErrInvalidInput)
	}

	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(userID))
	var playlist SpotifyPlaylist
	if err := s.doRequest(ctx, http.MethodPost, endpoint, p, &playlist); err != nil {
		return nil, err
	}
	return &playlist, nil
}

// AddTracks appends up to 100 track URIs to a playlist and returns the new snapshot id.
func (s *SpotifyService) AddTracks(ctx context.Context, playlistID string, uris []string) (string, error) {
	if len(uris) == 0 {
		return "", fmt.Errorf("%w: no track uris provided", shared.ErrInvalidInput)
	}
	if len(uris) > 100 {
		return "", fmt.Errorf("%w: maximum 100 track uris per request", shared.ErrInvalidInput)
	}

	endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
	var response struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := s.doRequest(ctx, http.MethodPost, endpoint, map[string][]string{"uris": uris}, &response); err != nil {
		return "", err
	}
	return response.SnapshotID, nil
}

// UserPlaylistsRaw returns the current user's playlists page as the upstream JSON body.
func (s *SpotifyService) UserPlaylistsRaw(ctx context.Context, limit, offset int) ([]byte, error) {
	endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", clampLimit(limit), offset)
	return s.doRaw(ctx, http.MethodGet, endpoint, nil)
}
