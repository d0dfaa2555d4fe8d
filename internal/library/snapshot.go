package library

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/desertthunder/incommon/internal/services"
	"github.com/desertthunder/incommon/internal/shared"
)

// SnapshotWriter writes each fetched library to <dir>/<owner>_liked_songs.json.
//
// The owner is sanitized with [shared.SafeFilename], so a display name cannot escape dir.
type SnapshotWriter struct {
	dir string
}

func NewSnapshotWriter(dir string) *SnapshotWriter {
	return &SnapshotWriter{dir: dir}
}

// Path returns the snapshot file for owner.
func (w *SnapshotWriter) Path(owner string) string {
	return filepath.Join(w.dir, shared.SafeFilename(owner)+"_liked_songs.json")
}

// Observe implements [Observer].
func (w *SnapshotWriter) Observe(_ context.Context, lib *Library) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	items := lib.Items
	if items == nil {
		items = []services.SpotifySavedTrack{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	path := w.Path(lib.Owner)
	tmp, err := os.CreateTemp(w.dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("creating snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a snapshot written by [SnapshotWriter].
func ReadSnapshot(path string) ([]services.SpotifySavedTrack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var items []services.SpotifySavedTrack
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", path, err)
	}
	return items, nil
}
