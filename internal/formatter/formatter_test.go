package formatter

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/incommon/internal/models"
	"github.com/desertthunder/incommon/internal/services"
	th "github.com/desertthunder/incommon/internal/testing"
)

func testTracks() []services.SpotifySavedTrack {
	return []services.SpotifySavedTrack{
		{
			AddedAt: "2024-01-02T03:04:05Z",
			Track: services.SpotifyTrack{
				ID:         "track1",
				Name:       "Song One",
				Artists:    []services.SpotifyArtist{{Name: "Artist One"}, {Name: "Guest"}},
				Album:      services.SpotifyAlbum{Name: "Album One"},
				DurationMS: 185000,
			},
		},
		{
			AddedAt: "2024-01-03T03:04:05Z",
			Track: services.SpotifyTrack{
				Name:       "Local, \"demo\"",
				Artists:    []services.SpotifyArtist{{Name: "Me"}},
				DurationMS: 61000,
				IsLocal:    true,
			},
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"csv", CSV},
		{"md", Markdown},
		{"markdown", Markdown},
		{"txt", Text},
		{"text", Text},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if err != nil {
				t.Fatalf("ParseFormat(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("unknown", func(t *testing.T) {
		if _, err := ParseFormat("xlsx"); err == nil {
			t.Error("expected error for unknown format")
		}
	})

	t.Run("Extension", func(t *testing.T) {
		if CSV.Extension() != "csv" || Markdown.Extension() != "md" || Text.Extension() != "txt" {
			t.Errorf("unexpected extensions: %s %s %s", CSV.Extension(), Markdown.Extension(), Text.Extension())
		}
	})
}

func TestExporters(t *testing.T) {
	t.Run("TracksToCSV", func(t *testing.T) {
		data, err := TracksToCSV(testTracks())
		if err != nil {
			t.Fatalf("TracksToCSV failed: %v", err)
		}

		records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("output is not valid CSV: %v", err)
		}
		if len(records) != 3 {
			t.Fatalf("expected header and 2 rows, got %d", len(records))
		}
		if strings.Join(records[0], ",") != "ID,Title,Artist,Album,Duration,Added" {
			t.Errorf("unexpected headers: %v", records[0])
		}
		if records[1][0] != "track1" || records[1][2] != "Artist One, Guest" || records[1][4] != "185" {
			t.Errorf("unexpected first row: %v", records[1])
		}
		if records[2][1] != `Local, "demo"` {
			t.Errorf("expected quoted title to round trip, got %q", records[2][1])
		}
	})

	t.Run("TracksToMarkdown", func(t *testing.T) {
		data, err := TracksToMarkdown("Justin's liked songs", testTracks())
		if err != nil {
			t.Fatalf("TracksToMarkdown failed: %v", err)
		}

		output := string(data)
		for _, want := range []string{
			"# Justin's liked songs",
			"**Tracks**: 2",
			"1. Artist One, Guest - Song One (Album One) [3:05]",
			"2. Me - Local, \"demo\" [1:01]",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected %q in:\n%s", want, output)
			}
		}
	})

	t.Run("TracksToText", func(t *testing.T) {
		data, err := TracksToText("Liked", testTracks())
		if err != nil {
			t.Fatalf("TracksToText failed: %v", err)
		}

		output := string(data)
		if !strings.HasPrefix(output, "Liked\nTracks: 2\n\n") {
			t.Errorf("unexpected header: %q", output)
		}
		if !strings.Contains(output, "1. Artist One, Guest - Song One\n") {
			t.Errorf("missing first track: %q", output)
		}
	})

	t.Run("ExportTracks rejects unknown format", func(t *testing.T) {
		if _, err := ExportTracks(Format("xml"), "x", nil); err == nil {
			t.Error("expected error for unknown format")
		}
	})

	t.Run("WriteTracks", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "liked.csv")

		got, err := WriteTracks(CSV, "Liked", testTracks(), path)
		if err != nil {
			t.Fatalf("WriteTracks failed: %v", err)
		}
		if got != path {
			t.Errorf("expected %s, got %s", path, got)
		}
		th.AssertFileExists(t, path)
		if content := th.MustReadFile(t, path); !strings.Contains(content, "track1") {
			t.Errorf("expected track in file, got %q", content)
		}
	})

	t.Run("WriteTracks default filename", func(t *testing.T) {
		dir := t.TempDir()
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("Getwd failed: %v", err)
		}
		if err := os.Chdir(dir); err != nil {
			t.Fatalf("Chdir failed: %v", err)
		}
		defer os.Chdir(wd)

		got, err := WriteTracks(Markdown, "Liked", testTracks(), "")
		if err != nil {
			t.Fatalf("WriteTracks failed: %v", err)
		}
		if got != "tracks.md" {
			t.Errorf("expected tracks.md, got %s", got)
		}
		th.AssertFileExists(t, filepath.Join(dir, "tracks.md"))
	})

	t.Run("WriteTracks invalid path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "missing", "dir", "liked.txt")
		if _, err := WriteTracks(Text, "Liked", testTracks(), path); err == nil {
			t.Error("expected error writing to a missing directory")
		}
	})
}

func TestHistoryExporters(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []*models.Comparison{
		models.RestoreComparison("c1", "id-1", "Ada", models.KindTracks, 12, "pl1", 12, created),
		models.RestoreComparison("c2", "id-2", "A|B", models.KindTopArtists, 3, "", 0, created),
	}

	t.Run("HistoryToCSV", func(t *testing.T) {
		data, err := HistoryToCSV(records)
		if err != nil {
			t.Fatalf("HistoryToCSV failed: %v", err)
		}

		rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
		if err != nil {
			t.Fatalf("output is not valid CSV: %v", err)
		}
		if len(rows) != 3 {
			t.Fatalf("expected header and 2 rows, got %d", len(rows))
		}
		want := []string{"c1", "2024-03-01T12:00:00Z", "Ada", "tracks", "12", "12", "pl1"}
		if strings.Join(rows[1], ",") != strings.Join(want, ",") {
			t.Errorf("got %v, want %v", rows[1], want)
		}
	})

	t.Run("HistoryToMarkdown", func(t *testing.T) {
		data, err := HistoryToMarkdown(records)
		if err != nil {
			t.Fatalf("HistoryToMarkdown failed: %v", err)
		}

		output := string(data)
		if !strings.Contains(output, "| 2024-03-01 12:00:00 | Ada | tracks | 12 | 12 | [pl1](https://open.spotify.com/playlist/pl1) |") {
			t.Errorf("missing tracks row in:\n%s", output)
		}
		if !strings.Contains(output, `| A\|B | top_artists | 3 | 0 |  |`) {
			t.Errorf("expected escaped visitor name in:\n%s", output)
		}
	})
}
