// Package storage persists popular posts, keyed by URL.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IshaanNene/hotboard/internal/config"
	"github.com/IshaanNene/hotboard/internal/types"
)

// DefaultListLimit is the page size ListPosts uses when none is given.
const DefaultListLimit = 50

// Store is the interface for all post backends.
type Store interface {
	// UpsertMany inserts unseen URLs and refreshes the counters of known ones.
	UpsertMany(ctx context.Context, cands []types.ScoredCandidate) (UpsertResult, error)

	// ListPosts returns posts newest-crawled first.
	ListPosts(ctx context.Context, q Query) ([]types.Post, error)

	// Stats aggregates post counts.
	Stats(ctx context.Context) (Stats, error)

	// Close releases the connection.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// UpsertResult counts what one UpsertMany call did.
type UpsertResult struct {
	New     int `json:"new"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Query filters ListPosts. Zero values match everything.
type Query struct {
	Site     types.Site
	Category string
	Limit    int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultListLimit
	}
	return q.Limit
}

// Stats holds post totals.
type Stats struct {
	Total      int            `json:"total_posts"`
	BySite     map[string]int `json:"by_site"`
	ByCategory map[string]int `json:"by_category"`
}

// Open connects the backend named by cfg.Driver.
func Open(ctx context.Context, cfg *config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case DriverSQLite, DriverPostgres:
		s, err := NewSQLStore(ctx, cfg.Driver, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMongo:
		s, err := NewMongoStore(ctx, cfg.DSN, cfg.Database, cfg.Collection, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// newPost builds the row stored for a candidate seen for the first time.
func newPost(c types.ScoredCandidate, now time.Time) types.Post {
	return types.Post{
		Title:     c.Title,
		URL:       c.URL,
		Site:      c.Site,
		Category:  types.CategoryPopular,
		Author:    c.Author,
		Views:     c.Views,
		Likes:     c.Likes,
		Comments:  c.Comments,
		CreatedAt: now,
		CrawledAt: now,
	}
}
