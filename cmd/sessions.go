package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/desertthunder/incommon/internal/repositories"
	"github.com/desertthunder/incommon/internal/session"
	"github.com/desertthunder/incommon/internal/shared"
	"github.com/desertthunder/incommon/internal/ui"
	"github.com/urfave/cli/v3"
)

// sessionManager builds the session manager over db.
func (r *Runner) sessionManager(config *shared.Config, db *sql.DB) (*session.Manager, error) {
	return session.NewManager(session.Opts{
		Config: config.Session,
		Repo:   repositories.NewSessionRepository(db),
		Tokens: r.tokenStore(config),
		Logger: r.logger,
	})
}

// PruneSessions deletes expired session records and the token caches of their identities.
func (r *Runner) PruneSessions(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	db, err := r.openDatabase(ctx, config)
	if err != nil {
		return err
	}
	defer db.Close()

	sessions, err := r.sessionManager(config, db)
	if err != nil {
		return err
	}

	n, err := sessions.Prune()
	if err != nil {
		return err
	}
	return r.writePlain("%s\n", ui.Styles.OK(fmt.Sprintf("Pruned %d expired sessions", n)))
}
