package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/incommon/internal/shared"
)

// Comparison kinds.
const (
	KindTracks     = "tracks"
	KindTopArtists = "top_artists"
	KindTopTracks  = "top_tracks"
)

// Comparison records one comparison between a visitor and the reference account.
type Comparison struct {
	id          string
	identity    string
	visitorName string
	kind        string
	commonCount int
	playlistID  string
	added       int
	createdAt   time.Time
}

// NewComparison creates an unsaved comparison record.
func NewComparison(identity, visitorName, kind string, commonCount int) *Comparison {
	return &Comparison{
		identity:    identity,
		visitorName: visitorName,
		kind:        kind,
		commonCount: commonCount,
		createdAt:   time.Now().UTC(),
	}
}

// RestoreComparison rebuilds a comparison loaded from storage.
func RestoreComparison(id, identity, visitorName, kind string, commonCount int, playlistID string, added int, createdAt time.Time) *Comparison {
	return &Comparison{
		id:          id,
		identity:    identity,
		visitorName: visitorName,
		kind:        kind,
		commonCount: commonCount,
		playlistID:  playlistID,
		added:       added,
		createdAt:   createdAt,
	}
}

func (c *Comparison) ID() string           { return c.id }
func (c *Comparison) SetID(id string)      { c.id = id }
func (c *Comparison) Identity() string     { return c.identity }
func (c *Comparison) VisitorName() string  { return c.visitorName }
func (c *Comparison) Kind() string         { return c.kind }
func (c *Comparison) CommonCount() int     { return c.commonCount }
func (c *Comparison) PlaylistID() string   { return c.playlistID }
func (c *Comparison) Added() int           { return c.added }
func (c *Comparison) CreatedAt() time.Time { return c.createdAt }
func (c *Comparison) UpdatedAt() time.Time { return c.createdAt }

// SetPlaylist records the playlist built from the comparison and how many tracks made it in.
func (c *Comparison) SetPlaylist(id string, added int) {
	c.playlistID = id
	c.added = added
}

// Partial reports whether a playlist was created but not every common track was added.
func (c *Comparison) Partial() bool {
	return c.playlistID != "" && c.added < c.commonCount
}

func (c *Comparison) Validate() error {
	switch c.kind {
	case KindTracks, KindTopArtists, KindTopTracks:
	default:
		return fmt.Errorf("%w: unknown comparison kind %q", shared.ErrInvalidInput, c.kind)
	}
	if c.identity == "" {
		return fmt.Errorf("%w: comparison identity is required", shared.ErrInvalidInput)
	}
	if c.commonCount < 0 || c.added < 0 || c.added > c.commonCount {
		return fmt.Errorf("%w: added %d of %d", shared.ErrInvalidInput, c.added, c.commonCount)
	}
	return nil
}
