// Playwatch - Media Server Activity Monitoring and Playback History
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/playwatch

package sync

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/tomtom215/playwatch/internal/cache"
	"github.com/tomtom215/playwatch/internal/metrics"
	"github.com/tomtom215/playwatch/internal/models"
)

// MediaLookup resolves a rating key to library metadata.
type MediaLookup interface {
	GetItem(ctx context.Context, ratingKey string) (*models.MediaItem, error)
}

type metadataFetcher interface {
	GetMetadata(ctx context.Context, ratingKey string) (*models.PlexMetadata, error)
}

// CachedMediaLookup fronts Plex metadata with a TTL LRU. Misses are not cached.
type CachedMediaLookup struct {
	client metadataFetcher
	items  *cache.LRU[models.MediaItem]
}

// NewCachedMediaLookup creates a lookup holding up to size items for ttl.
func NewCachedMediaLookup(client metadataFetcher, size int, ttl time.Duration) *CachedMediaLookup {
	return &CachedMediaLookup{
		client: client,
		items:  cache.NewLRU[models.MediaItem](size, ttl),
	}
}

// GetItem returns the item for ratingKey. ErrItemNotFound means the item is gone.
func (l *CachedMediaLookup) GetItem(ctx context.Context, ratingKey string) (*models.MediaItem, error) {
	if item, ok := l.items.Get(ratingKey); ok {
		metrics.RecordMediaLookup("hit")
		return &item, nil
	}

	md, err := l.client.GetMetadata(ctx, ratingKey)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			metrics.RecordMediaLookup("not_found")
		} else {
			metrics.RecordMediaLookup("error")
		}
		return nil, err
	}
	metrics.RecordMediaLookup("miss")

	item := mediaItemFromMetadata(md)
	l.items.Add(ratingKey, item)
	return &item, nil
}

// Invalidate drops ratingKey from the cache.
func (l *CachedMediaLookup) Invalidate(ratingKey string) {
	l.items.Remove(ratingKey)
}

func mediaItemFromMetadata(md *models.PlexMetadata) models.MediaItem {
	item := models.MediaItem{
		RatingKey:            md.RatingKey,
		ParentRatingKey:      md.ParentRatingKey,
		GrandparentRatingKey: md.GrandparentRatingKey,
		MediaType:            md.Type,
		Title:                md.Title,
		ParentTitle:          md.ParentTitle,
		GrandparentTitle:     md.GrandparentTitle,
		Year:                 md.Year,
		Duration:             md.Duration,
	}
	if md.LibrarySectionID != 0 {
		item.LibrarySectionID = strconv.Itoa(md.LibrarySectionID)
	}
	return item
}
