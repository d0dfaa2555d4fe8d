package auth

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/incommon/internal/shared"
	tu "github.com/desertthunder/incommon/internal/testing"
	"github.com/desertthunder/incommon/internal/tokens"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fixture struct {
	fake     *tu.FakeSpotify
	store    *tokens.Store
	manager  *Manager
	identity string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := tu.NewFakeSpotify(t)
	fake.AddUser(tu.FakeUser{ID: "visitor", DisplayName: "Visitor"})

	cfg := NewOAuthConfig(shared.SpotifyConfig{
		ClientID:     "client",
		ClientSecret: "secret",
		RedirectURI:  "http://127.0.0.1:8080",
		AuthURL:      fake.AuthURL(),
		TokenURL:     fake.TokenURL(),
	})
	store := tokens.NewStore(t.TempDir(), "reference")
	identity := uuid.New().String()

	m, err := NewManager(ManagerOpts{Config: cfg, Store: store, Identity: identity, Logger: shared.NewLogger(io.Discard)})
	require.NoError(t, err)
	return &fixture{fake: fake, store: store, manager: m, identity: identity}
}

// seed writes a cache entry for the visitor whose access token expires at expiry.
func (f *fixture) seed(t *testing.T, expiry time.Time, scope string) *tokens.Entry {
	t.Helper()
	access, refresh := f.fake.IssueToken("visitor")
	entry := &tokens.Entry{AccessToken: access, RefreshToken: refresh, TokenType: "Bearer", Expiry: expiry, Scope: scope}
	require.NoError(t, f.store.Save(f.identity, entry))
	return entry
}

func TestNewManager(t *testing.T) {
	store := tokens.NewStore(t.TempDir(), "reference")
	cfg := NewOAuthConfig(shared.SpotifyConfig{ClientID: "c"})

	t.Run("rejects unsafe identity", func(t *testing.T) {
		_, err := NewManager(ManagerOpts{Config: cfg, Store: store, Identity: "../reference"})
		assert.ErrorIs(t, err, shared.ErrInvalidIdentity)
	})

	t.Run("requires store", func(t *testing.T) {
		_, err := NewManager(ManagerOpts{Config: cfg, Identity: "reference"})
		assert.ErrorIs(t, err, shared.ErrMissingConfig)
	})

	t.Run("named identity", func(t *testing.T) {
		m, err := NewManager(ManagerOpts{Config: cfg, Store: store, Identity: "reference"})
		require.NoError(t, err)
		assert.Equal(t, "reference", m.Identity())
	})
}

func TestNewOAuthConfig(t *testing.T) {
	cfg := NewOAuthConfig(shared.SpotifyConfig{ClientID: "c", ClientSecret: "s", RedirectURI: "http://x/"})
	assert.Equal(t, "https://accounts.spotify.com/authorize", cfg.Endpoint.AuthURL)
	assert.Equal(t, "https://accounts.spotify.com/api/token", cfg.Endpoint.TokenURL)
	assert.Equal(t, oauth2.AuthStyleInHeader, cfg.Endpoint.AuthStyle)
}

func TestAuthorizeURL(t *testing.T) {
	f := newFixture(t)
	raw := f.manager.AuthorizeURL("state-123")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "true", q.Get("show_dialog"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "client", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, Scopes, q.Get("scope"))
	assert.True(t, strings.HasPrefix(raw, f.fake.AuthURL()))
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("no cache means no token", func(t *testing.T) {
		f := newFixture(t)
		state, err := f.manager.Status()
		require.NoError(t, err)
		assert.Equal(t, NoToken, state)

		_, err = f.manager.ValidToken(ctx)
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
		assert.Zero(t, f.fake.Calls("POST /api/token"))
	})

	t.Run("exchange persists the token", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.manager.Exchange(ctx, f.fake.IssueCode("visitor")))

		state, err := f.manager.Status()
		require.NoError(t, err)
		assert.Equal(t, HasValidToken, state)

		entry, err := f.store.Load(f.identity)
		require.NoError(t, err)
		require.NotNil(t, entry)
		assert.NotEmpty(t, entry.RefreshToken)
		assert.Equal(t, Scopes, entry.Scope)
	})

	t.Run("failed exchange leaves no cache", func(t *testing.T) {
		f := newFixture(t)
		err := f.manager.Exchange(ctx, "bogus")
		assert.ErrorIs(t, err, shared.ErrAuthFailed)

		path, _ := f.store.Path(f.identity)
		tu.AssertNoFile(t, path)
	})

	t.Run("empty code", func(t *testing.T) {
		f := newFixture(t)
		assert.ErrorIs(t, f.manager.Exchange(ctx, ""), shared.ErrAuthFailed)
	})

	t.Run("valid token is returned without refresh", func(t *testing.T) {
		f := newFixture(t)
		entry := f.seed(t, time.Now().Add(time.Hour), Scopes)

		tok, err := f.manager.ValidToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, entry.AccessToken, tok.AccessToken)
		assert.Zero(t, f.fake.Calls("POST /api/token"))
	})

	t.Run("token expired ten seconds ago is refreshed", func(t *testing.T) {
		f := newFixture(t)
		old := f.seed(t, time.Now().Add(-10*time.Second), Scopes)

		state, err := f.manager.Status()
		require.NoError(t, err)
		assert.Equal(t, Expired, state)

		tok, err := f.manager.ValidToken(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, old.AccessToken, tok.AccessToken)
		assert.Equal(t, 1, f.fake.Calls("POST /api/token"))

		cached, err := f.store.Load(f.identity)
		require.NoError(t, err)
		assert.Equal(t, tok.AccessToken, cached.AccessToken)
		assert.Equal(t, old.RefreshToken, cached.RefreshToken)
		assert.Equal(t, Scopes, cached.Scope)
	})

	t.Run("revoked refresh token clears the cache", func(t *testing.T) {
		f := newFixture(t)
		entry := f.seed(t, time.Now().Add(-time.Minute), Scopes)
		f.fake.Revoke(entry.RefreshToken)

		_, err := f.manager.ValidToken(ctx)
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)

		path, _ := f.store.Path(f.identity)
		tu.AssertNoFile(t, path)
	})

	t.Run("missing refresh token clears the cache", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, f.store.Save(f.identity, &tokens.Entry{AccessToken: "a", Expiry: time.Now().Add(-time.Hour), Scope: Scopes}))

		_, err := f.manager.ValidToken(ctx)
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
		assert.ErrorIs(t, err, shared.ErrNoRefreshToken)
	})

	t.Run("unreachable token endpoint keeps the cache", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, time.Now().Add(-time.Minute), Scopes)

		dead := httptest.NewServer(http.NotFoundHandler())
		dead.Close()
		f.manager.config.Endpoint.TokenURL = dead.URL

		_, err := f.manager.ValidToken(ctx)
		assert.ErrorIs(t, err, shared.ErrAPIRequest)
		assert.ErrorIs(t, err, shared.ErrRefreshFailed)

		path, _ := f.store.Path(f.identity)
		tu.AssertFileExists(t, path)
	})

	t.Run("scope mismatch is treated as no token", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, time.Now().Add(time.Hour), "user-library-read")

		state, err := f.manager.Status()
		require.NoError(t, err)
		assert.Equal(t, NoToken, state)

		_, err = f.manager.ValidToken(ctx)
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
	})

	t.Run("corrupt cache is discarded", func(t *testing.T) {
		f := newFixture(t)
		path, _ := f.store.Path(f.identity)
		require.NoError(t, writeFile(path, "garbage"))

		_, err := f.manager.ValidToken(ctx)
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
		tu.AssertNoFile(t, path)
	})

	t.Run("concurrent callers refresh once", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, time.Now().Add(-time.Minute), Scopes)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.manager.ValidToken(ctx)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, f.fake.Calls("POST /api/token"))
	})
}

func TestClient(t *testing.T) {
	ctx := context.Background()

	t.Run("authorizes upstream requests", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, time.Now().Add(time.Hour), Scopes)

		client, err := f.manager.Client(ctx)
		require.NoError(t, err)

		resp, err := client.Get(f.fake.APIURL() + "/me")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("without token", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.manager.Client(ctx)
		assert.ErrorIs(t, err, shared.ErrNotAuthenticated)
	})

	t.Run("persists newly minted tokens", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, time.Now().Add(time.Hour), Scopes)

		minted := &oauth2.Token{AccessToken: "minted", RefreshToken: "r2", Expiry: time.Now().Add(time.Hour)}
		src := &persistingSource{manager: f.manager, base: oauth2.StaticTokenSource(minted), last: "old"}

		tok, err := src.Token()
		require.NoError(t, err)
		assert.Equal(t, "minted", tok.AccessToken)

		cached, err := f.store.Load(f.identity)
		require.NoError(t, err)
		assert.Equal(t, "minted", cached.AccessToken)
		assert.Equal(t, "r2", cached.RefreshToken)
	})
}

func TestSignOut(t *testing.T) {
	t.Run("twice is harmless", func(t *testing.T) {
		f := newFixture(t)
		f.seed(t, time.Now().Add(time.Hour), Scopes)

		assert.NoError(t, f.manager.SignOut())
		assert.NoError(t, f.manager.SignOut())

		state, err := f.manager.Status()
		require.NoError(t, err)
		assert.Equal(t, NoToken, state)
	})

	t.Run("pinned identity keeps its cache", func(t *testing.T) {
		f := newFixture(t)
		ref, err := NewManager(ManagerOpts{
			Config:   f.manager.config,
			Store:    f.store,
			Identity: "reference",
			Logger:   shared.NewLogger(io.Discard),
			Pinned:   true,
		})
		require.NoError(t, err)
		require.NoError(t, f.store.Save("reference", &tokens.Entry{AccessToken: "a", Scope: Scopes}))

		assert.NoError(t, ref.SignOut())
		path, _ := f.store.Path("reference")
		tu.AssertFileExists(t, path)
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "no_token", NoToken.String())
	assert.Equal(t, "awaiting_code", AwaitingCode.String())
	assert.Equal(t, "valid", HasValidToken.String())
	assert.Equal(t, "expired", Expired.String())
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o600)
}
