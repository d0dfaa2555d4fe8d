package ui

import (
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/incommon/internal/models"
)

var (
	headerStyle = fg(Accent).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	partialRow  = fg(Warning).Padding(0, 1)
)

// ComparisonTable renders comparison history, newest first as given.
//
// Rows whose playlist is missing tracks are highlighted.
func ComparisonTable(records []*models.Comparison) string {
	rows := make([][]string, 0, len(records))
	for _, c := range records {
		playlist := "-"
		if c.PlaylistID() != "" {
			playlist = c.PlaylistID()
		}
		rows = append(rows, []string{
			c.CreatedAt().Local().Format(time.DateTime),
			c.VisitorName(),
			c.Kind(),
			strconv.Itoa(c.CommonCount()),
			added(c),
			playlist,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(fg(Muted)).
		Headers("WHEN", "VISITOR", "KIND", "COMMON", "ADDED", "PLAYLIST").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row >= 0 && row < len(records) && records[row].Partial():
				return partialRow
			default:
				return cellStyle
			}
		})
	return t.String()
}

func added(c *models.Comparison) string {
	if c.PlaylistID() == "" {
		return "-"
	}
	return strconv.Itoa(c.Added())
}
