package main

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/incommon/internal/auth"
	"github.com/desertthunder/incommon/internal/metrics"
	"github.com/desertthunder/incommon/internal/shared"
	"github.com/desertthunder/incommon/internal/tokens"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Runner carries what every command needs. Each command action is a method on it.
type Runner struct {
	config     *shared.Config
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts overrides the defaults of [NewRunner].
//
// A nil Config makes every command load the file named by its --config flag.
type RunnerOpts struct {
	Config     *shared.Config
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner logs with the shared logger, prints to stdout and uses [http.DefaultClient] unless told otherwise.
func NewRunner(opts RunnerOpts) *Runner {
	r := &Runner{
		config:     opts.Config,
		httpClient: cmp.Or(opts.HTTPClient, http.DefaultClient),
		logger:     opts.Logger,
		output:     opts.Output,
	}
	if r.logger == nil {
		r.logger = shared.NewLogger(nil)
	}
	if r.output == nil {
		r.output = os.Stdout
	}
	return r
}

func (r *Runner) register() []*cli.Command {
	builders := []func(*Runner) *cli.Command{
		serveCommand, setupCommand, referenceCommand, historyCommand, sessionsCommand,
	}
	commands := make([]*cli.Command, 0, len(builders))
	for _, build := range builders {
		commands = append(commands, build(r))
	}
	return commands
}

// loadConfig returns the runner's config, loading it from path on first use.
func (r *Runner) loadConfig(path string) (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	config, err := shared.LoadConfigOrDefault(path)
	if err != nil {
		return nil, err
	}
	shared.SetLogLevel(r.logger, config.Log.Level)
	r.config = config
	return config, nil
}

// openDatabase opens the configured database with migrations applied.
func (r *Runner) openDatabase(ctx context.Context, config *shared.Config) (*sql.DB, error) {
	r.logger.Debug("opening database", "path", config.Database.Path)
	db, err := shared.OpenDatabase(ctx, config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// tokenStore returns the token cache store with the reference identity registered.
func (r *Runner) tokenStore(config *shared.Config) *tokens.Store {
	return tokens.NewStore(config.Storage.CacheDir, config.Reference.Identity)
}

// referenceManager builds the pinned manager for the reference account.
func (r *Runner) referenceManager(config *shared.Config, oauthConfig *oauth2.Config, recorder metrics.Recorder) (*auth.Manager, error) {
	return auth.NewManager(auth.ManagerOpts{
		Config:   oauthConfig,
		Store:    r.tokenStore(config),
		Identity: config.Reference.Identity,
		Logger:   r.logger,
		Metrics:  recorder,
		Pinned:   true,
	})
}

// withHTTPClient makes oauth2 token requests use the runner's client.
func (r *Runner) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, r.httpClient)
}

// writeJSON prints data followed by a newline in a single write.
func (r *Runner) writeJSON(data any, pretty bool) error {
	marshal := json.Marshal
	if pretty {
		marshal = func(v any) ([]byte, error) { return json.MarshalIndent(v, "", "  ") }
	}

	out, err := marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return r.write(append(out, '\n'))
}

func (r *Runner) writePlain(format string, args ...any) error {
	return r.write(fmt.Appendf(nil, format, args...))
}

// writePlainln surrounds the formatted line with blank lines.
func (r *Runner) writePlainln(format string, args ...any) error {
	return r.write(fmt.Appendf([]byte("\n"), format+"\n", args...))
}

func (r *Runner) write(p []byte) error {
	if _, err := r.output.Write(p); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
