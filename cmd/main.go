package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/incommon/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)
	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "incommon",
		Usage:    "See what music you have in common on Spotify",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		}
		logger.Fatalf("application error: %v", err)
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the web app",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Serve,
	}
}

func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create the config file, storage directories and database",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

func referenceCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "reference",
		Usage: "Manage the reference account every visitor is compared against",
		Commands: []*cli.Command{
			{
				Name:   "auth",
				Usage:  "Authorize the reference account in the browser",
				Flags:  []cli.Flag{configFlag()},
				Action: r.ReferenceAuth,
			},
			{
				Name:   "library",
				Usage:  "Fetch the reference library and write its snapshot",
				Flags:  []cli.Flag{configFlag()},
				Action: r.ReferenceLibrary,
			},
			{
				Name:  "export",
				Usage: "Export the reference library snapshot",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Export format: csv, markdown or text",
						Value:   "csv",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file (defaults to the snapshot name with the format extension)",
					},
				},
				Action: r.ReferenceExport,
			},
		},
	}
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded comparisons",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of comparisons to show",
				Value:   20,
			},
			&cli.StringFlag{
				Name:  "kind",
				Usage: "Only show comparisons of this kind (tracks, top_artists, top_tracks)",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: table, json, csv or markdown",
				Value:   "table",
			},
		},
		Action: r.History,
	}
}

func sessionsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "sessions",
		Usage: "Manage visitor sessions",
		Commands: []*cli.Command{
			{
				Name:   "prune",
				Usage:  "Delete expired sessions and their token caches",
				Flags:  []cli.Flag{configFlag()},
				Action: r.PruneSessions,
			},
		},
	}
}
