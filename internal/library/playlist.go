package library

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/incommon/internal/metrics"
	"github.com/desertthunder/incommon/internal/services"
	"github.com/desertthunder/incommon/internal/shared"
)

// BatchSize is the most tracks one add-tracks call accepts.
const BatchSize = 100

// PlaylistWriter creates playlists and appends tracks to them.
type PlaylistWriter interface {
	CreatePlaylist(ctx context.Context, userID string, p services.NewPlaylist) (*services.SpotifyPlaylist, error)
	AddTracks(ctx context.Context, playlistID string, uris []string) (string, error)
}

// Result describes a materialized playlist.
type Result struct {
	Playlist  *services.SpotifyPlaylist
	Requested int
	Added     int
	Batches   int
}

// BatchError reports an add-tracks batch that failed after earlier batches succeeded.
type BatchError struct {
	// Batch is the 1-based number of the failed batch.
	Batch     int
	Added     int
	Requested int
	Err       error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d failed after adding %d of %d tracks: %v", e.Batch, e.Added, e.Requested, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Materializer turns a set of track ids into a playlist.
type Materializer struct {
	writer  PlaylistWriter
	logger  *log.Logger
	metrics metrics.Recorder
}

func NewMaterializer(writer PlaylistWriter, logger *log.Logger, recorder metrics.Recorder) *Materializer {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &Materializer{writer: writer, logger: logger, metrics: recorder}
}

// Materialize creates a public playlist named name owned by ownerID and adds ids in batches of [BatchSize].
//
// An empty set returns [shared.ErrNoOverlap] without creating anything. When a batch fails the partial [Result] is
// returned together with a [*BatchError].
func (m *Materializer) Materialize(ctx context.Context, ownerID, name string, ids *IDSet) (*Result, error) {
	if ids.Len() == 0 {
		return nil, shared.ErrNoOverlap
	}

	playlist, err := m.writer.CreatePlaylist(ctx, ownerID, services.NewPlaylist{
		Name:        name,
		Description: "Songs saved in both libraries.",
		Public:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating playlist: %w", err)
	}

	result := &Result{Playlist: playlist, Requested: ids.Len()}
	logger := m.logger.With("playlist", playlist.ID, "tracks", result.Requested)

	for i, chunk := range Chunk(ids.IDs(), BatchSize) {
		uris := make([]string, len(chunk))
		for j, id := range chunk {
			uris[j] = services.TrackURI(id)
		}

		if _, err := m.writer.AddTracks(ctx, playlist.ID, uris); err != nil {
			m.metrics.RecordPlaylistBatch(false)
			logger.Error("adding tracks failed", "batch", i+1, "added", result.Added, "err", err)
			return result, &BatchError{Batch: i + 1, Added: result.Added, Requested: result.Requested, Err: err}
		}
		m.metrics.RecordPlaylistBatch(true)
		result.Added += len(chunk)
		result.Batches++
	}

	logger.Info("playlist materialized", "batches", result.Batches)
	return result, nil
}

// PlaylistName is the title of a common-tracks playlist between a visitor and the reference account.
func PlaylistName(visitor, reference string) string {
	return fmt.Sprintf("Common Tracks - %s & %s", visitor, reference)
}
