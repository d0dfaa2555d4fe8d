package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"time"

	"github.com/desertthunder/incommon/internal/auth"
	"github.com/desertthunder/incommon/internal/formatter"
	"github.com/desertthunder/incommon/internal/library"
	"github.com/desertthunder/incommon/internal/metrics"
	"github.com/desertthunder/incommon/internal/server"
	"github.com/desertthunder/incommon/internal/services"
	"github.com/desertthunder/incommon/internal/shared"
	"github.com/desertthunder/incommon/internal/ui"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"
)

const authTimeout = 2 * time.Minute

// ReferenceAuth authorizes the reference account through a one-shot local callback server.
func (r *Runner) ReferenceAuth(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	creds := config.Credentials.Spotify
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return fmt.Errorf("%w: Spotify client_id and client_secret must be set", shared.ErrMissingCredentials)
	}

	oauthConfig := auth.NewOAuthConfig(creds)
	oauthConfig.RedirectURL = fmt.Sprintf("http://%s:%d/callback", config.Server.Host, config.Server.CallbackPort)

	manager, err := r.referenceManager(config, oauthConfig, metrics.Nop{})
	if err != nil {
		return err
	}

	if err := r.doOAuth(r.withHTTPClient(ctx), manager, fmt.Sprintf("%s:%d", config.Server.Host, config.Server.CallbackPort)); err != nil {
		return err
	}

	r.writePlainln("%s", ui.Styles.OK("Reference account authorized"))
	r.writePlain("Token cached for identity %q in %s\n", manager.Identity(), config.Storage.CacheDir)
	return nil
}

// doOAuth serves the callback on addr, opens the consent page and waits for the exchange to finish.
func (r *Runner) doOAuth(ctx context.Context, manager *auth.Manager, addr string) error {
	state := shared.GenerateID()
	authURL := manager.AuthorizeURL(state)

	oauthHandler := server.NewOAuthHandler(exchangeWith(ctx, manager), state)
	router := server.NewRouter()
	router.Handler(oauthHandler)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("starting OAuth callback server at %v", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()

	time.Sleep(100 * time.Millisecond)

	r.writePlain("→ Opening browser for Spotify authorization...\n")
	if err := shared.OpenBrowser(authURL); err != nil {
		r.logger.Warnf("failed to open browser automatically %v", err)
		r.writePlainln("%s", ui.Styles.Warn("Could not open browser automatically."))
		r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
	}

	r.writePlain("→ Waiting for authorization (2 minute timeout)...\n")

	timeout := time.NewTimer(authTimeout)
	defer timeout.Stop()

	var result server.OAuthResult
	select {
	case result = <-oauthHandler.Result():
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case <-timeout.C:
		return fmt.Errorf("%w: authorization timed out after 2 minutes", shared.ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Warn("error shutting down server", "err", err)
	}

	if result.Error() != nil {
		return fmt.Errorf("authorization failed: %w", result.Error())
	}
	return nil
}

// exchangeFunc adapts a function to [server.Exchanger].
type exchangeFunc func(ctx context.Context, code string) error

func (f exchangeFunc) Exchange(ctx context.Context, code string) error { return f(ctx, code) }

// exchangeWith carries values from base, such as the oauth2 HTTP client, into the callback's exchange.
func exchangeWith(base context.Context, ex server.Exchanger) server.Exchanger {
	return exchangeFunc(func(ctx context.Context, code string) error {
		ctx, cancel := context.WithTimeout(base, 30*time.Second)
		defer cancel()
		return ex.Exchange(ctx, code)
	})
}

// ReferenceLibrary fetches the reference library with a progress bar and writes its snapshot.
func (r *Runner) ReferenceLibrary(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	ctx = r.withHTTPClient(ctx)

	manager, err := r.referenceManager(config, auth.NewOAuthConfig(config.Credentials.Spotify), metrics.Nop{})
	if err != nil {
		return err
	}
	client, err := manager.Client(ctx)
	if err != nil {
		if errors.Is(err, shared.ErrNotAuthenticated) {
			r.writePlain("%s\n", ui.Styles.Help("Run `incommon reference auth` first."))
		}
		return err
	}
	api := services.NewSpotifyService(client, r.clientOpts(config, metrics.Nop{}))

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(r.output),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("fetching saved tracks"),
	)
	snapshots := library.NewSnapshotWriter(config.Storage.DataDir)
	fetcher := library.NewFetcher(library.FetcherOpts{
		Observers: []library.Observer{snapshots},
		Logger:    r.logger,
		Progress: func(fetched, total int) {
			if total > 0 && bar.GetMax() != total {
				bar.ChangeMax(total)
			}
			_ = bar.Set(fetched)
		},
	})

	owner := config.Reference.DisplayName
	lib, err := fetcher.SavedTracks(ctx, api, owner)
	if err != nil {
		return err
	}
	_ = bar.Finish()

	path := snapshots.Path(owner)
	saved, err := library.ReadSnapshot(path)
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}

	r.writePlainln("%s", ui.Styles.OK(fmt.Sprintf("Fetched %d saved tracks (%d unique)", len(lib.Items), lib.IDs.Len())))
	r.writePlain("Snapshot of %d items written to %s\n", len(saved), path)
	return nil
}

// ReferenceExport converts the reference library snapshot to CSV, Markdown or text.
func (r *Runner) ReferenceExport(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	owner := config.Reference.DisplayName
	snapshot := library.NewSnapshotWriter(config.Storage.DataDir).Path(owner)
	items, err := library.ReadSnapshot(snapshot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			r.writePlain("%s\n", ui.Styles.Help("Run `incommon reference library` first."))
		}
		return fmt.Errorf("reading snapshot: %w", err)
	}

	out := cmd.String("output")
	if out == "" {
		out = filepath.Join(config.Storage.DataDir, shared.SafeFilename(owner)+"_liked_songs."+format.Extension())
	}
	path, err := formatter.WriteTracks(format, owner+"'s liked songs", items, out)
	if err != nil {
		return err
	}

	return r.writePlain("%s\n", ui.Styles.OK(fmt.Sprintf("Exported %d tracks to %s", len(items), path)))
}
