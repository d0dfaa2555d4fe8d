package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/incommon/internal/shared"
	"github.com/desertthunder/incommon/internal/ui"
	"github.com/urfave/cli/v3"
)

// Setup writes the config file when missing, creates the storage directories and migrates the database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err != nil {
		r.logger.Info("config file not found, creating from template", "path", configPath)
		if err := shared.CreateConfigFile(configPath); err != nil {
			return err
		}
		r.writePlain("%s\n", ui.Styles.OK("Created "+configPath))
	}

	config, err := r.loadConfig(configPath)
	if err != nil {
		return err
	}

	for _, dir := range []string{config.Storage.CacheDir, config.Storage.DataDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	db, err := r.openDatabase(ctx, config)
	if err != nil {
		return err
	}
	defer db.Close()

	r.writePlain("%s\n", ui.Styles.OK("Database ready at "+config.Database.Path))
	if err := config.Validate(); err != nil {
		r.writePlain("%s\n", ui.Styles.Warn(err.Error()))
		r.writePlain("%s\n", ui.Styles.Help("Fill in "+configPath+" before running `incommon serve`."))
	}
	return nil
}
