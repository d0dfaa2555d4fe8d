package library

import (
	"context"
	"fmt"

	"github.com/desertthunder/incommon/internal/services"
)

// TopLimit is how many top items are compared per side.
const TopLimit = 50

// TopSource returns a user's top artists and tracks.
type TopSource interface {
	TopArtists(ctx context.Context, limit int) ([]services.SpotifyArtist, error)
	TopTracks(ctx context.Context, limit int) ([]services.SpotifyTrack, error)
}

// CommonItem is an artist or track both sides have in their top list.
type CommonItem struct {
	ID       string
	Name     string
	Subtitle string
	URL      string
}

// Comparison is the overlap of two top lists, in the visitor's ranking order.
type Comparison struct {
	Kind  string
	Items []CommonItem
}

func (c *Comparison) Count() int { return len(c.Items) }

// CompareTopArtists compares top artists by upstream id, so two artists sharing a name never match.
func CompareTopArtists(ctx context.Context, visitor, reference TopSource) (*Comparison, error) {
	mine, err := visitor.TopArtists(ctx, TopLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching visitor top artists: %w", err)
	}
	theirs, err := reference.TopArtists(ctx, TopLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching reference top artists: %w", err)
	}

	ref := NewIDSet()
	for _, a := range theirs {
		ref.Add(a.ID)
	}

	out := &Comparison{Kind: "artists"}
	seen := NewIDSet()
	for _, a := range mine {
		if ref.Contains(a.ID) && seen.Add(a.ID) {
			out.Items = append(out.Items, CommonItem{ID: a.ID, Name: a.Name, URL: a.ExternalURLs.Spotify})
		}
	}
	return out, nil
}

// CompareTopTracks compares top tracks by upstream id.
func CompareTopTracks(ctx context.Context, visitor, reference TopSource) (*Comparison, error) {
	mine, err := visitor.TopTracks(ctx, TopLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching visitor top tracks: %w", err)
	}
	theirs, err := reference.TopTracks(ctx, TopLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching reference top tracks: %w", err)
	}

	ref := NewIDSet()
	for _, t := range theirs {
		ref.Add(t.ID)
	}

	out := &Comparison{Kind: "tracks"}
	seen := NewIDSet()
	for _, t := range mine {
		if ref.Contains(t.ID) && seen.Add(t.ID) {
			out.Items = append(out.Items, CommonItem{ID: t.ID, Name: t.Name, Subtitle: t.ArtistNames()})
		}
	}
	return out, nil
}
