// Package web serves the incommon pages: sign-in, the common-tracks playlist, top artist and track comparisons, and
// the visitor's raw playlists.
//
// Every page request resolves the visitor's session first. The session's identity selects the visitor's token cache
// and an [auth.Manager] is built for it per request. The reference account is served by a single pinned manager.
package web

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/incommon/internal/auth"
	"github.com/desertthunder/incommon/internal/library"
	"github.com/desertthunder/incommon/internal/metrics"
	"github.com/desertthunder/incommon/internal/models"
	"github.com/desertthunder/incommon/internal/server"
	"github.com/desertthunder/incommon/internal/services"
	"github.com/desertthunder/incommon/internal/session"
	"github.com/desertthunder/incommon/internal/shared"
	"github.com/desertthunder/incommon/internal/tokens"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/oauth2"
)

// ComparisonStore persists comparison history.
type ComparisonStore interface {
	Create(c *models.Comparison) error
}

// Opts contains the dependencies of an [App].
type Opts struct {
	Config      *shared.Config
	OAuth       *oauth2.Config
	Tokens      *tokens.Store
	Sessions    *session.Manager
	Comparisons ComparisonStore
	// Client configures every upstream API client the app builds.
	Client  services.ClientOpts
	Metrics metrics.Recorder
	// Gatherer backs /metrics. The route is not registered when nil.
	Gatherer prometheus.Gatherer
	Logger   *log.Logger
}

// App holds the handlers and their shared dependencies.
type App struct {
	config      *shared.Config
	oauth       *oauth2.Config
	tokens      *tokens.Store
	sessions    *session.Manager
	comparisons ComparisonStore
	clientOpts  services.ClientOpts
	metrics     metrics.Recorder
	gatherer    prometheus.Gatherer
	logger      *log.Logger

	reference *auth.Manager
	fetcher   *library.Fetcher
	limiter   *server.RateLimiter
	pages     map[string]*template.Template
}

// NewApp wires an [App]. Config, OAuth, Tokens, Sessions and Comparisons are required.
func NewApp(opts Opts) (*App, error) {
	if opts.Config == nil || opts.OAuth == nil || opts.Tokens == nil || opts.Sessions == nil || opts.Comparisons == nil {
		return nil, fmt.Errorf("%w: web app is missing dependencies", shared.ErrMissingConfig)
	}

	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	recorder := opts.Metrics
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	clientOpts := opts.Client
	if clientOpts.Logger == nil {
		clientOpts.Logger = logger
	}
	if clientOpts.Metrics == nil {
		clientOpts.Metrics = recorder
	}

	reference, err := auth.NewManager(auth.ManagerOpts{
		Config:   opts.OAuth,
		Store:    opts.Tokens,
		Identity: opts.Config.Reference.Identity,
		Logger:   logger,
		Metrics:  recorder,
		Pinned:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("reference manager: %w", err)
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	a := &App{
		config:      opts.Config,
		oauth:       opts.OAuth,
		tokens:      opts.Tokens,
		sessions:    opts.Sessions,
		comparisons: opts.Comparisons,
		clientOpts:  clientOpts,
		metrics:     recorder,
		gatherer:    opts.Gatherer,
		logger:      logger,
		reference:   reference,
		pages:       pages,
		fetcher: library.NewFetcher(library.FetcherOpts{
			Observers: []library.Observer{library.NewSnapshotWriter(opts.Config.Storage.DataDir)},
			Logger:    logger,
		}),
	}
	if opts.Config.Server.RateLimit > 0 {
		a.limiter = server.NewRateLimiter(opts.Config.Server.RateLimit, opts.Config.Server.RateBurst, 10*time.Minute)
	}
	return a, nil
}

// Handler returns the app's router with its middleware stack.
func (a *App) Handler() http.Handler {
	r := server.NewRouter()
	r.Use(
		server.Recoverer(a.logger),
		server.Logging(a.logger),
		server.Instrument(a.metrics),
		server.SecurityHeaders(),
	)

	r.Handle(http.MethodGet, "/", a.visitor(a.index))
	r.Handle(http.MethodGet, "/sign_out", a.visitor(a.signOut))
	for _, path := range []string{"/common-tracks", "/common-tracks/"} {
		r.Handle(http.MethodGet, path, a.visitor(a.commonTracks))
	}
	for _, path := range []string{"/top_artists", "/top_artists/"} {
		r.Handle(http.MethodGet, path, a.visitor(a.topArtists))
	}
	for _, path := range []string{"/top_tracks", "/top_tracks/"} {
		r.Handle(http.MethodGet, path, a.visitor(a.topTracks))
	}
	r.Handle(http.MethodGet, "/playlists", a.visitor(a.playlists))

	r.Handle(http.MethodGet, "/healthz", http.HandlerFunc(healthz))
	if a.gatherer != nil {
		r.Handle(http.MethodGet, "/metrics", metrics.Handler(a.gatherer))
	}
	return r
}

// Prune removes expired sessions with their token caches and forgets idle rate limiter entries.
func (a *App) Prune() (int, error) {
	if a.limiter != nil {
		a.limiter.Sweep()
	}
	return a.sessions.Prune()
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
