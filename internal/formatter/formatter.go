// package formatter exports saved-track snapshots and comparison history to CSV, Markdown and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/incommon/internal/models"
	"github.com/desertthunder/incommon/internal/services"
)

// Format names an export format.
type Format string

const (
	CSV      Format = "csv"
	Markdown Format = "markdown"
	Text     Format = "text"
)

// ParseFormat accepts a format name or its common file extension.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "csv":
		return CSV, nil
	case "markdown", "md":
		return Markdown, nil
	case "text", "txt":
		return Text, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want csv, markdown or text)", s)
	}
}

// Extension returns the file extension for f, without the dot.
func (f Format) Extension() string {
	switch f {
	case Markdown:
		return "md"
	case Text:
		return "txt"
	default:
		return string(f)
	}
}

// TracksToCSV converts saved tracks to CSV with columns: ID, Title, Artist, Album, Duration, Added
func TracksToCSV(items []services.SpotifySavedTrack) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"ID", "Title", "Artist", "Album", "Duration", "Added"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, item := range items {
		record := []string{
			item.Track.ID,
			item.Track.Name,
			item.Track.ArtistNames(),
			item.Track.Album.Name,
			strconv.Itoa(item.Track.DurationMS / 1000),
			item.AddedAt,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// TracksToMarkdown converts saved tracks to a numbered Markdown list under title.
func TracksToMarkdown(title string, items []services.SpotifySavedTrack) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", title))
	buf.WriteString(fmt.Sprintf("**Tracks**: %d\n\n", len(items)))

	buf.WriteString("## Tracks\n\n")
	for i, item := range items {
		albumPart := ""
		if item.Track.Album.Name != "" {
			albumPart = fmt.Sprintf(" (%s)", item.Track.Album.Name)
		}
		buf.WriteString(fmt.Sprintf("%d. %s - %s%s [%s]\n", i+1, item.Track.ArtistNames(), item.Track.Name, albumPart, formatDuration(item.Track.DurationMS)))
	}

	return buf.Bytes(), nil
}

// TracksToText converts saved tracks to plain text
func TracksToText(title string, items []services.SpotifySavedTrack) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("%s\n", title))
	buf.WriteString(fmt.Sprintf("Tracks: %d\n\n", len(items)))

	for i, item := range items {
		buf.WriteString(fmt.Sprintf("%d. %s - %s\n", i+1, item.Track.ArtistNames(), item.Track.Name))
	}

	return buf.Bytes(), nil
}

// ExportTracks renders items in format f.
func ExportTracks(f Format, title string, items []services.SpotifySavedTrack) ([]byte, error) {
	switch f {
	case CSV:
		return TracksToCSV(items)
	case Markdown:
		return TracksToMarkdown(title, items)
	case Text:
		return TracksToText(title, items)
	default:
		return nil, fmt.Errorf("unknown export format %q", f)
	}
}

// WriteTracks exports items to path in format f.
//
// Defaults to tracks.{ext} as the filename.
func WriteTracks(f Format, title string, items []services.SpotifySavedTrack, path string) (string, error) {
	if path == "" {
		path = "tracks." + f.Extension()
	}

	data, err := ExportTracks(f, title, items)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", f, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s file: %w", f, err)
	}

	return path, nil
}

// HistoryToCSV converts comparison history to CSV with columns: ID, When, Visitor, Kind, Common, Added, Playlist
func HistoryToCSV(records []*models.Comparison) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"ID", "When", "Visitor", "Kind", "Common", "Added", "Playlist"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, c := range records {
		record := []string{
			c.ID(),
			c.CreatedAt().UTC().Format(time.RFC3339),
			c.VisitorName(),
			c.Kind(),
			strconv.Itoa(c.CommonCount()),
			strconv.Itoa(c.Added()),
			c.PlaylistID(),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// HistoryToMarkdown converts comparison history to a Markdown table.
func HistoryToMarkdown(records []*models.Comparison) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString("# Comparisons\n\n")
	buf.WriteString("| When | Visitor | Kind | Common | Added | Playlist |\n")
	buf.WriteString("|---|---|---|---|---|---|\n")
	for _, c := range records {
		playlist := ""
		if c.PlaylistID() != "" {
			playlist = fmt.Sprintf("[%s](https://open.spotify.com/playlist/%s)", c.PlaylistID(), c.PlaylistID())
		}
		buf.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %d | %s |\n",
			c.CreatedAt().UTC().Format(time.DateTime), escapeCell(c.VisitorName()), c.Kind(), c.CommonCount(), c.Added(), playlist))
	}

	return buf.Bytes(), nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// formatDuration renders milliseconds as m:ss.
func formatDuration(ms int) string {
	seconds := ms / 1000
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
