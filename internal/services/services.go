package services

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/incommon/internal/metrics"
	"golang.org/x/time/rate"
)

// API is the subset of the Spotify Web API the app depends on.
//
// [SpotifyService] implements it. Callers that only page or write playlists accept this interface so tests can
// substitute a stub.
type API interface {
	UserProfile(ctx context.Context) (*SpotifyUser, error)
	SavedTracks(ctx context.Context, limit, offset int) (*SpotifyPaginatedTracks, error)
	TopArtists(ctx context.Context, limit int) ([]SpotifyArtist, error)
	TopTracks(ctx context.Context, limit int) ([]SpotifyTrack, error)
	CreatePlaylist(ctx context.Context, userID string, p NewPlaylist) (*SpotifyPlaylist, error)
	AddTracks(ctx context.Context, playlistID string, uris []string) (string, error)
	UserPlaylistsRaw(ctx context.Context, limit, offset int) ([]byte, error)
}

// ClientOpts configures a [SpotifyService].
type ClientOpts struct {
	BaseURL string
	// Timeout bounds each attempt, not the whole call.
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Limiter paces every attempt. Share one limiter across services to pace the whole process.
	Limiter *rate.Limiter
	Logger  *log.Logger
	Metrics metrics.Recorder
}

// DefaultClientOpts returns the production defaults.
//
// Zero BaseURL, Timeout and delay fields fall back to these. MaxRetries is taken as given.
func DefaultClientOpts() ClientOpts {
	return ClientOpts{
		BaseURL:    spotifyBaseURL,
		Timeout:    10 * time.Second,
		MaxRetries: 3,
		BaseDelay:  250 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

func (o ClientOpts) withDefaults() ClientOpts {
	d := DefaultClientOpts()
	if o.BaseURL == "" {
		o.BaseURL = d.BaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = d.BaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = d.MaxDelay
	}
	if o.Limiter == nil {
		o.Limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Nop{}
	}
	return o
}

// NewLimiter builds the shared upstream limiter. A non-positive rate disables pacing.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
