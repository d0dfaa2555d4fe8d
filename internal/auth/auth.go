// Package auth runs the authorization-code OAuth flow against Spotify for a single identity.
//
// A [Manager] binds an [oauth2.Config] to one token cache file. It refreshes expired tokens before reporting failure
// and persists every token it mints, so the cache file always holds the latest refresh token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/incommon/internal/metrics"
	"github.com/desertthunder/incommon/internal/shared"
	"github.com/desertthunder/incommon/internal/tokens"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/spotify"
)

// Scopes requested on every authorization.
const Scopes = "user-library-read user-top-read user-read-currently-playing playlist-modify-public"

// State is the authorization state of an identity.
type State int

const (
	NoToken State = iota
	AwaitingCode
	HasValidToken
	Expired
)

func (s State) String() string {
	switch s {
	case NoToken:
		return "no_token"
	case AwaitingCode:
		return "awaiting_code"
	case HasValidToken:
		return "valid"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// NewOAuthConfig builds the Spotify OAuth config.
//
// AuthURL and TokenURL override [spotify.Endpoint] when set.
func NewOAuthConfig(creds shared.SpotifyConfig) *oauth2.Config {
	endpoint := spotify.Endpoint
	endpoint.AuthStyle = oauth2.AuthStyleInHeader
	if creds.AuthURL != "" {
		endpoint.AuthURL = creds.AuthURL
	}
	if creds.TokenURL != "" {
		endpoint.TokenURL = creds.TokenURL
	}

	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Scopes:       []string{Scopes},
		Endpoint:     endpoint,
	}
}

// ManagerOpts contains the dependencies of a [Manager].
type ManagerOpts struct {
	Config   *oauth2.Config
	Store    *tokens.Store
	Identity string
	Logger   *log.Logger
	Metrics  metrics.Recorder
	// Pinned managers ignore [Manager.SignOut]. Used for the reference identity.
	Pinned bool
}

// Manager handles authorization for one identity.
type Manager struct {
	config   *oauth2.Config
	store    *tokens.Store
	identity string
	logger   *log.Logger
	metrics  metrics.Recorder
	pinned   bool
}

// NewManager validates the identity and returns a Manager for it.
func NewManager(opts ManagerOpts) (*Manager, error) {
	if opts.Config == nil || opts.Store == nil {
		return nil, fmt.Errorf("%w: oauth config and token store are required", shared.ErrMissingConfig)
	}
	if err := opts.Store.ValidateIdentity(opts.Identity); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	recorder := opts.Metrics
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	return &Manager{
		config:   opts.Config,
		store:    opts.Store,
		identity: opts.Identity,
		logger:   shared.WithLogger(logger, "identity", opts.Identity),
		metrics:  recorder,
		pinned:   opts.Pinned,
	}, nil
}

// Identity returns the identity this manager is bound to.
func (m *Manager) Identity() string { return m.identity }

// AuthorizeURL returns the consent page URL. The dialog is always shown so a visitor can switch accounts.
func (m *Manager) AuthorizeURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))
}

// Exchange trades an authorization code for a token and caches it.
func (m *Manager) Exchange(ctx context.Context, code string) error {
	if code == "" {
		return fmt.Errorf("%w: empty authorization code", shared.ErrAuthFailed)
	}

	tok, err := m.config.Exchange(ctx, code)
	if err != nil {
		m.logger.Warn("code exchange failed", "err", err)
		return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}

	if err := m.store.Save(m.identity, tokens.NewEntry(tok, Scopes)); err != nil {
		return err
	}
	m.logger.Info("authorized")
	return nil
}

// Status reports the state of the cached token without refreshing it.
func (m *Manager) Status() (State, error) {
	entry, err := m.store.Load(m.identity)
	if errors.Is(err, tokens.ErrCorruptEntry) {
		return NoToken, nil
	}
	if err != nil {
		return NoToken, err
	}
	if entry == nil || !entry.HasScopes(Scopes) {
		return NoToken, nil
	}
	if !entry.Token().Valid() {
		return Expired, nil
	}
	return HasValidToken, nil
}

// ValidToken returns a usable access token, refreshing it when expired.
//
// Returns [shared.ErrNotAuthenticated] when there is no usable cache entry or the refresh token was rejected, and
// [shared.ErrAPIRequest] when the token endpoint could not be reached.
func (m *Manager) ValidToken(ctx context.Context) (*oauth2.Token, error) {
	unlock := m.store.Lock(m.identity)
	defer unlock()
	return m.validTokenLocked(ctx)
}

func (m *Manager) validTokenLocked(ctx context.Context) (*oauth2.Token, error) {
	entry, err := m.store.Load(m.identity)
	switch {
	case errors.Is(err, tokens.ErrCorruptEntry):
		m.logger.Warn("discarding unreadable token cache", "err", err)
		if err := m.store.DeleteLocked(m.identity); err != nil {
			m.logger.Error("failed to delete token cache", "err", err)
		}
		return nil, shared.ErrNotAuthenticated
	case err != nil:
		return nil, err
	case entry == nil:
		return nil, shared.ErrNotAuthenticated
	case !entry.HasScopes(Scopes):
		m.logger.Debug("cached token lacks required scopes", "scope", entry.Scope)
		return nil, shared.ErrNotAuthenticated
	}

	tok := entry.Token()
	if tok.Valid() {
		return tok, nil
	}
	return m.refreshLocked(ctx, entry)
}

func (m *Manager) refreshLocked(ctx context.Context, entry *tokens.Entry) (*oauth2.Token, error) {
	if entry.RefreshToken == "" {
		if err := m.store.DeleteLocked(m.identity); err != nil {
			m.logger.Error("failed to delete token cache", "err", err)
		}
		return nil, fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, shared.ErrNoRefreshToken)
	}

	tok, err := m.config.TokenSource(ctx, entry.Token()).Token()
	if err != nil {
		if isRevoked(err) {
			m.metrics.RecordTokenRefresh("revoked")
			m.logger.Warn("refresh token rejected, clearing cache", "err", err)
			if err := m.store.DeleteLocked(m.identity); err != nil {
				m.logger.Error("failed to delete token cache", "err", err)
			}
			return nil, fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, shared.ErrRefreshFailed)
		}
		m.metrics.RecordTokenRefresh("error")
		m.logger.Error("token refresh failed", "err", err)
		return nil, fmt.Errorf("%w: %w: %v", shared.ErrAPIRequest, shared.ErrRefreshFailed, err)
	}

	m.metrics.RecordTokenRefresh("ok")
	if err := m.store.SaveLocked(m.identity, tokens.NewEntry(tok, entry.Scope)); err != nil {
		return nil, err
	}
	m.logger.Debug("refreshed access token", "expiry", tok.Expiry)
	return tok, nil
}

// isRevoked reports whether the token endpoint rejected the refresh token itself.
func isRevoked(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	if re.ErrorCode == "invalid_grant" || re.ErrorCode == "invalid_client" {
		return true
	}
	return re.Response != nil &&
		(re.Response.StatusCode == http.StatusBadRequest || re.Response.StatusCode == http.StatusUnauthorized)
}

// Client returns an HTTP client authorized as this identity.
//
// Tokens minted by the client's token source during its lifetime are written back to the cache.
func (m *Manager) Client(ctx context.Context) (*http.Client, error) {
	tok, err := m.ValidToken(ctx)
	if err != nil {
		return nil, err
	}

	src := &persistingSource{
		manager: m,
		base:    m.config.TokenSource(ctx, tok),
		last:    tok.AccessToken,
	}
	return oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, src)), nil
}

// SignOut deletes the cached token. A missing cache file is not an error.
func (m *Manager) SignOut() error {
	if m.pinned {
		m.logger.Debug("ignoring sign out for pinned identity")
		return nil
	}
	if err := m.store.Delete(m.identity); err != nil {
		return err
	}
	m.logger.Info("signed out")
	return nil
}

type persistingSource struct {
	manager *Manager
	base    oauth2.TokenSource

	mu   sync.Mutex
	last string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	unlock := p.manager.store.Lock(p.manager.identity)
	defer unlock()

	tok, err := p.base.Token()
	if err != nil {
		p.manager.metrics.RecordTokenRefresh("error")
		return nil, err
	}
	if tok.AccessToken != p.last {
		p.manager.metrics.RecordTokenRefresh("ok")
		if err := p.manager.store.SaveLocked(p.manager.identity, tokens.NewEntry(tok, Scopes)); err != nil {
			p.manager.logger.Error("failed to persist refreshed token", "err", err)
		}
		p.last = tok.AccessToken
	}
	return tok, nil
}
