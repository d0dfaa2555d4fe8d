// Package session binds browser visitors to token-cache identities.
//
// A visitor carries a signed cookie (HS256 JWT) whose jti names a server-side session record. The record holds the
// visitor's identity, a random UUID that also names their token cache file, and any pending OAuth state.
//
// New visitors get an identity on every request, but nothing is stored and no cookie is set until the first consent
// redirect is issued.
package session

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/incommon/internal/models"
	"github.com/desertthunder/incommon/internal/shared"
	"github.com/desertthunder/incommon/internal/tokens"
	"github.com/golang-jwt/jwt/v5"
)

const issuer = "incommon"

// Repository is the subset of the session repository the manager needs.
type Repository interface {
	Create(s *models.Session) error
	Get(id string) (*models.Session, error)
	Update(s *models.Session) error
	Delete(id string) error
	DeleteExpired(now time.Time) ([]string, error)
}

// Opts configures a [Manager].
type Opts struct {
	Config shared.SessionConfig
	Repo   Repository
	// Tokens is used by [Manager.Prune] to remove the caches of expired identities.
	Tokens *tokens.Store
	Logger *log.Logger
	// Now defaults to [time.Now].
	Now func() time.Time
}

// Manager issues and resolves session cookies.
type Manager struct {
	repo   Repository
	tokens *tokens.Store
	logger *log.Logger
	now    func() time.Time

	secret []byte
	name   string
	ttl    time.Duration
	secure bool
}

// NewManager creates a [Manager]. A signing secret and repository are required.
func NewManager(opts Opts) (*Manager, error) {
	if opts.Config.Secret == "" {
		return nil, fmt.Errorf("%w: session secret is required", shared.ErrMissingConfig)
	}
	if opts.Repo == nil {
		return nil, fmt.Errorf("%w: session repository is required", shared.ErrMissingConfig)
	}

	m := &Manager{
		repo:   opts.Repo,
		tokens: opts.Tokens,
		logger: opts.Logger,
		now:    opts.Now,
		secret: []byte(opts.Config.Secret),
		name:   opts.Config.CookieName,
		ttl:    opts.Config.MaxAge.Duration,
		secure: opts.Config.Secure,
	}
	if m.logger == nil {
		m.logger = shared.NewLogger(nil)
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.name == "" {
		m.name = "incommon_session"
	}
	if m.ttl <= 0 {
		m.ttl = 24 * time.Hour
	}
	return m, nil
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string { return m.name }

// Resolve returns the visitor's session, or an unsaved one with a fresh identity when the request carries no
// usable cookie. Tampered, expired and unknown cookies are all treated as a new visitor.
func (m *Manager) Resolve(r *http.Request) (*models.Session, error) {
	if c, err := r.Cookie(m.name); err == nil && c.Value != "" {
		s, err := m.lookup(c.Value)
		switch {
		case err == nil:
			return s, nil
		case errors.Is(err, shared.ErrSessionNotFound), errors.Is(err, shared.ErrSessionExpired):
			m.logger.Debug("discarding session cookie", "reason", err)
		default:
			return nil, err
		}
	}
	return models.NewSession(shared.GenerateID(), m.ttl), nil
}

func (m *Manager) lookup(value string) (*models.Session, error) {
	id, err := m.parse(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrSessionNotFound, err)
	}

	s, err := m.repo.Get(id)
	if err != nil {
		return nil, err
	}
	if s.Expired(m.now()) {
		return nil, shared.ErrSessionExpired
	}
	return s, nil
}

// save writes s, inserting it and setting the cookie the first time.
func (m *Manager) save(w http.ResponseWriter, s *models.Session) error {
	if s.Stored() {
		return m.repo.Update(s)
	}
	if err := m.repo.Create(s); err != nil {
		return err
	}

	value, err := m.sign(s)
	if err != nil {
		return err
	}
	http.SetCookie(w, m.cookie(value, int(m.ttl.Seconds())))
	m.logger.Debug("created session", "identity", s.Identity())
	return nil
}

func (m *Manager) sign(s *models.Session) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        s.ID(),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(s.CreatedAt()),
		ExpiresAt: jwt.NewNumericDate(s.ExpiresAt()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session cookie: %w", err)
	}
	return signed, nil
}

func (m *Manager) parse(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims,
		func(t *jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return "", err
	}
	if claims.ID == "" {
		return "", errors.New("session cookie has no id")
	}
	return claims.ID, nil
}

func (m *Manager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     m.name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// IssueState generates the OAuth state for a consent redirect and stores it on the session.
func (m *Manager) IssueState(w http.ResponseWriter, s *models.Session) (string, error) {
	state := shared.GenerateID()
	s.SetOAuthState(state)
	if err := m.save(w, s); err != nil {
		return "", err
	}
	return state, nil
}

// CheckState consumes the session's pending OAuth state and compares it with the returned one.
//
// The pending state is cleared whether or not it matches.
func (m *Manager) CheckState(s *models.Session, state string) error {
	expected := s.OAuthState()
	if expected != "" {
		s.SetOAuthState("")
		if err := m.repo.Update(s); err != nil {
			return err
		}
	}

	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		return shared.ErrInvalidState
	}
	return nil
}

// Clear deletes the session record and expires the cookie.
func (m *Manager) Clear(w http.ResponseWriter, s *models.Session) error {
	http.SetCookie(w, m.cookie("", -1))
	if !s.Stored() {
		return nil
	}
	if err := m.repo.Delete(s.ID()); err != nil && !errors.Is(err, shared.ErrSessionNotFound) {
		return err
	}
	return nil
}

// Prune deletes expired sessions along with their token caches and returns how many were removed.
//
// Token cache failures are logged; the session records are already gone by then.
func (m *Manager) Prune() (int, error) {
	identities, err := m.repo.DeleteExpired(m.now())
	if err != nil {
		return 0, err
	}

	if m.tokens != nil {
		for _, identity := range identities {
			if err := m.tokens.Delete(identity); err != nil {
				m.logger.Warn("failed to delete token cache", "identity", identity, "err", err)
			}
		}
	}
	if len(identities) > 0 {
		m.logger.Info("pruned expired sessions", "count", len(identities))
	}
	return len(identities), nil
}
