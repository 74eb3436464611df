// Package fetcher retrieves listing pages over plain HTTP or through a
// headless browser. Both variants return a *types.Document on success and a
// *types.FetchError on failure.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/IshaanNene/hotboard/internal/config"
	"github.com/IshaanNene/hotboard/internal/types"
)

// Fetcher is the interface for all fetcher implementations.
type Fetcher interface {
	// Fetch retrieves the listing page at the request's URL.
	Fetch(ctx context.Context, req *types.Request) (*types.Document, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// New builds the fetcher named by kind ("http" or "browser").
func New(kind string, cfg *config.Config, logger *slog.Logger) (Fetcher, error) {
	switch kind {
	case "", "http":
		f, err := NewHTTPFetcher(cfg, logger)
		if err != nil {
			return nil, err
		}
		return f, nil
	case "browser":
		return NewBrowserFetcher(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown fetcher type %q", kind)
	}
}
