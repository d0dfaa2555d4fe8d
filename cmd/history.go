package main

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/desertthunder/incommon/internal/formatter"
	"github.com/desertthunder/incommon/internal/models"
	"github.com/desertthunder/incommon/internal/repositories"
	"github.com/desertthunder/incommon/internal/shared"
	"github.com/desertthunder/incommon/internal/ui"
	"github.com/urfave/cli/v3"
)

type comparisonView struct {
	ID          string    `json:"id"`
	VisitorName string    `json:"visitor_name"`
	Kind        string    `json:"kind"`
	CommonCount int       `json:"common_count"`
	PlaylistID  string    `json:"playlist_id,omitempty"`
	Added       int       `json:"added"`
	CreatedAt   time.Time `json:"created_at"`
}

// History lists recorded comparisons, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	db, err := r.openDatabase(ctx, config)
	if err != nil {
		return err
	}
	defer db.Close()

	repo := repositories.NewComparisonRepository(db)
	criteria := map[string]any{}
	if limit := cmd.Int("limit"); limit > 0 {
		criteria["limit"] = limit
	}
	if kind := cmd.String("kind"); kind != "" {
		criteria["kind"] = kind
	}

	records, err := repo.List(criteria)
	if err != nil {
		return err
	}

	switch format := cmd.String("format"); format {
	case "", "table":
	case "json":
		views := make([]comparisonView, 0, len(records))
		for _, c := range records {
			views = append(views, viewOf(c))
		}
		return r.writeJSON(views, true)
	case "csv", "markdown", "md":
		var data []byte
		if format == "csv" {
			data, err = formatter.HistoryToCSV(records)
		} else {
			data, err = formatter.HistoryToMarkdown(records)
		}
		if err != nil {
			return err
		}
		return r.writePlain("%s", data)
	default:
		return fmt.Errorf("%w: unknown format %q", shared.ErrInvalidInput, format)
	}

	if len(records) == 0 {
		return r.writePlain("%s\n", ui.Styles.Help("No comparisons recorded yet."))
	}

	counts, err := repo.CountByKind()
	if err != nil {
		return err
	}

	r.writePlain("%s\n", ui.Styles.Title("Comparisons"))
	r.writePlain("%s\n", ui.ComparisonTable(records))
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	for _, kind := range kinds {
		r.writePlain("%s: %d\n", kind, counts[kind])
	}
	return nil
}

func viewOf(c *models.Comparison) comparisonView {
	return comparisonView{
		ID:          c.ID(),
		VisitorName: c.VisitorName(),
		Kind:        c.Kind(),
		CommonCount: c.CommonCount(),
		PlaylistID:  c.PlaylistID(),
		Added:       c.Added(),
		CreatedAt:   c.CreatedAt(),
	}
}
