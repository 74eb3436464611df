package crawler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/IshaanNene/hotboard/internal/config"
	"github.com/IshaanNene/hotboard/internal/fetcher"
	"github.com/IshaanNene/hotboard/internal/observability"
	"github.com/IshaanNene/hotboard/internal/parser"
	"github.com/IshaanNene/hotboard/internal/policy"
	"github.com/IshaanNene/hotboard/internal/storage"
	"github.com/IshaanNene/hotboard/internal/types"
)

// FromConfig builds a coordinator with every enabled site in crawl.sites
// order. Fetchers are shared between sites of the same kind.
func FromConfig(cfg *config.Config, store storage.Store, metrics *observability.Metrics, logger *slog.Logger) (*Coordinator, error) {
	fetchers := make(map[string]fetcher.Fetcher)
	getFetcher := func(kind string) (fetcher.Fetcher, error) {
		if kind == "" {
			kind = "http"
		}
		if f, ok := fetchers[kind]; ok {
			return f, nil
		}
		f, err := fetcher.New(kind, cfg, logger)
		if err != nil {
			return nil, err
		}
		fetchers[kind] = f
		return f, nil
	}

	opts := []Option{
		WithPoliteness(cfg.Crawl.PolitenessDelay),
		WithMetrics(metrics),
	}
	if cfg.Crawl.BrowserFallback {
		bf, err := getFetcher("browser")
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithBrowserFallback(bf))
	}

	c := New(store, logger, opts...)
	filter := policy.FromConfig(cfg.Filter)

	for _, name := range cfg.Crawl.Sites {
		siteCfg, ok := cfg.Sites[name]
		if !ok || !siteCfg.Enabled {
			logger.Info("site disabled", "site", name)
			continue
		}

		site, err := types.ParseSite(name)
		if err != nil {
			return nil, err
		}
		spec, err := parser.SpecFor(site)
		if err != nil {
			return nil, err
		}
		f, err := getFetcher(siteCfg.Fetcher)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", name, err)
		}

		headers := make(http.Header, len(siteCfg.Headers))
		for k, v := range siteCfg.Headers {
			headers.Set(k, v)
		}

		err = c.Register(&Site{
			Name:    site,
			URLs:    siteCfg.ListingURLs,
			Headers: headers,
			Fetcher: f,
			Parser: parser.New(spec, filter, logger,
				parser.WithTopN(cfg.Crawl.TopN),
				parser.WithMinElements(cfg.Crawl.MinElements),
			),
		})
		if err != nil {
			return nil, err
		}
	}

	for _, f := range fetchers {
		c.closers = append(c.closers, f)
	}
	return c, nil
}
