package library

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/incommon/internal/services"
	"github.com/desertthunder/incommon/internal/shared"
)

// PageSize is the largest page the saved-tracks endpoint returns.
const PageSize = 50

// TrackSource returns one page of saved tracks.
type TrackSource interface {
	SavedTracks(ctx context.Context, limit, offset int) (*services.SpotifyPaginatedTracks, error)
}

// Library is a fetched saved-track collection.
//
// Items is the raw page concatenation and may hold duplicates or local files. IDs is the deduplicated set of
// track ids.
type Library struct {
	Owner string
	Items []services.SpotifySavedTrack
	IDs   *IDSet
}

// Observer is notified after every successful fetch. Errors are logged and never fail the fetch.
type Observer interface {
	Observe(ctx context.Context, lib *Library) error
}

// ObserverFunc adapts a function to [Observer].
type ObserverFunc func(ctx context.Context, lib *Library) error

func (f ObserverFunc) Observe(ctx context.Context, lib *Library) error { return f(ctx, lib) }

// FetcherOpts configures a [Fetcher].
type FetcherOpts struct {
	PageSize  int
	Observers []Observer
	Logger    *log.Logger
	// Progress is called after every page with the running item count and the last reported total.
	Progress func(fetched, total int)
}

// Fetcher pages through a user's saved tracks.
type Fetcher struct {
	pageSize  int
	observers []Observer
	logger    *log.Logger
	progress  func(fetched, total int)
}

func NewFetcher(opts FetcherOpts) *Fetcher {
	size := opts.PageSize
	if size <= 0 || size > PageSize {
		size = PageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Fetcher{pageSize: size, observers: opts.Observers, logger: logger, progress: opts.Progress}
}

// SavedTracks fetches the complete library of the user behind src.
//
// Pages are requested with an increasing offset until the offset reaches the total reported by the most recent page.
// An empty page also ends the loop, so a library shrinking mid-fetch cannot spin forever.
func (f *Fetcher) SavedTracks(ctx context.Context, src TrackSource, owner string) (*Library, error) {
	var items []services.SpotifySavedTrack
	offset, total := 0, 0

	for {
		page, err := src.SavedTracks(ctx, f.pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("fetching saved tracks at offset %d: %w", offset, err)
		}

		total = page.Total
		items = append(items, page.Items...)
		offset += len(page.Items)

		if f.progress != nil {
			f.progress(len(items), total)
		}
		if len(page.Items) == 0 || offset >= total {
			break
		}
	}

	lib := &Library{Owner: owner, Items: items, IDs: NewIDSet()}
	for _, item := range items {
		lib.IDs.Add(item.Track.ID)
	}
	f.logger.Debug("fetched library", "owner", owner, "items", len(items), "unique", lib.IDs.Len(), "total", total)

	for _, o := range f.observers {
		if err := o.Observe(ctx, lib); err != nil {
			f.logger.Warn("library observer failed", "owner", owner, "err", err)
		}
	}
	return lib, nil
}
