// Package crawler runs the per-site fetch, parse and store cycle.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/IshaanNene/hotboard/internal/fetcher"
	"github.com/IshaanNene/hotboard/internal/observability"
	"github.com/IshaanNene/hotboard/internal/parser"
	"github.com/IshaanNene/hotboard/internal/storage"
	"github.com/IshaanNene/hotboard/internal/types"
)

// Failure stages recorded on SiteError.
const (
	StageFetch = "fetch"
	StageParse = "parse"
	StageStore = "store"
	StagePanic = "panic"
)

// Parser turns a fetched listing into ranked candidates.
type Parser interface {
	Parse(doc *types.Document) (*parser.Result, error)
}

// Site is one registered community.
type Site struct {
	Name    types.Site
	URLs    []string
	Headers http.Header
	Fetcher fetcher.Fetcher
	Parser  Parser
}

// SiteResult describes one site's part of a crawl run.
type SiteResult struct {
	Site       types.Site    `json:"site"`
	New        int           `json:"new"`
	Updated    int           `json:"updated"`
	Candidates int           `json:"candidates"`
	ListingURL string        `json:"listing_url,omitempty"`
	Duration   time.Duration `json:"duration"`
	Err        error         `json:"-"`
	Error      string        `json:"error,omitempty"`
}

// Summary is the outcome of CrawlAll.
type Summary struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	TotalNew  int           `json:"total_new"`
	Sites     []SiteResult  `json:"sites"`
}

// Failed returns the results that carry an error.
func (s *Summary) Failed() []SiteResult {
	var out []SiteResult
	for _, r := range s.Sites {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}

// Coordinator crawls registered sites one after another.
type Coordinator struct {
	sites    []*Site
	index    map[types.Site]*Site
	store    storage.Store
	fallback fetcher.Fetcher
	limiter  *rate.Limiter
	metrics  *observability.Metrics
	logger   *slog.Logger

	running atomic.Int32
	mu      sync.RWMutex
	last    *Summary
	closers []fetcher.Fetcher
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithPoliteness spaces consecutive fetches by at least d.
func WithPoliteness(d time.Duration) Option {
	return func(c *Coordinator) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithBrowserFallback retries a site with f after its own fetcher found
// nothing on every listing URL.
func WithBrowserFallback(f fetcher.Fetcher) Option {
	return func(c *Coordinator) { c.fallback = f }
}

// WithMetrics sets the counters the coordinator updates.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a coordinator with no sites registered.
func New(store storage.Store, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		index:   make(map[types.Site]*Site),
		store:   store,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  logger.With("component", "crawler"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = observability.NewMetrics(logger)
	}
	return c
}

// Register adds a site to the end of the crawl order.
func (c *Coordinator) Register(s *Site) error {
	if s.Fetcher == nil || s.Parser == nil {
		return fmt.Errorf("site %s: fetcher and parser are required", s.Name)
	}
	if _, dup := c.index[s.Name]; dup {
		return fmt.Errorf("site %s registered twice", s.Name)
	}
	c.sites = append(c.sites, s)
	c.index[s.Name] = s
	return nil
}

// Sites returns the registered sites in crawl order.
func (c *Coordinator) Sites() []*Site {
	return append([]*Site(nil), c.sites...)
}

// Running reports whether a crawl is in progress.
func (c *Coordinator) Running() bool {
	return c.running.Load() > 0
}

// LastSummary returns the most recent CrawlAll outcome, or nil.
func (c *Coordinator) LastSummary() *Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Metrics returns the coordinator's counters.
func (c *Coordinator) Metrics() *observability.Metrics {
	return c.metrics
}

// CrawlAll crawls every site in registration order. A failing site is
// logged and recorded; it never stops the others.
func (c *Coordinator) CrawlAll(ctx context.Context) *Summary {
	c.running.Add(1)
	defer c.running.Add(-1)
	c.metrics.CrawlRuns.Add(1)

	sum := &Summary{StartedAt: time.Now()}
	c.logger.Info("crawl run started", "sites", len(c.sites))

	failed := 0
	for _, s := range c.sites {
		if ctx.Err() != nil {
			c.logger.Warn("crawl run cancelled", "error", ctx.Err())
			break
		}
		res := c.crawlSite(ctx, s)
		if res.Err != nil {
			failed++
		}
		sum.TotalNew += res.New
		sum.Sites = append(sum.Sites, res)
	}
	sum.Duration = time.Since(sum.StartedAt)

	if len(c.sites) > 0 && failed == len(c.sites) {
		c.metrics.CrawlRunsFailed.Add(1)
	}

	c.mu.Lock()
	c.last = sum
	c.mu.Unlock()

	c.logger.Info("crawl run finished",
		"new_posts", sum.TotalNew,
		"failed_sites", failed,
		"duration", sum.Duration,
	)
	return sum
}

// CrawlOne crawls a single site by name and returns how many posts were new.
// Storage failures are returned; a site that yields nothing is not an error.
func (c *Coordinator) CrawlOne(ctx context.Context, name string) (int, error) {
	s, ok := c.index[types.Site(strings.ToLower(strings.TrimSpace(name)))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", types.ErrUnknownSite, name)
	}

	c.running.Add(1)
	defer c.running.Add(-1)

	res := c.crawlSite(ctx, s)
	var se *types.SiteError
	if errors.As(res.Err, &se) && (se.Stage == StageStore || se.Stage == StagePanic) {
		return 0, res.Err
	}
	return res.New, nil
}

// crawlSite is the isolation boundary for one site.
func (c *Coordinator) crawlSite(ctx context.Context, s *Site) (res SiteResult) {
	start := time.Now()
	res.Site = s.Name
	logger := c.logger.With("site", string(s.Name))
	c.metrics.SiteCrawls.Add(1)

	defer func() {
		if r := recover(); r != nil {
			res.Err = &types.SiteError{Site: s.Name, Stage: StagePanic, Err: fmt.Errorf("%v", r)}
			logger.Error("site crawl panicked", "panic", r)
		}
		res.Duration = time.Since(start)
		if res.Err != nil {
			res.Error = res.Err.Error()
			c.metrics.SiteFailures.Add(1)
		}
	}()

	cands, used, err := c.collect(ctx, s, s.Fetcher, logger)
	if len(cands) == 0 && c.fallback != nil && s.Fetcher.Type() != c.fallback.Type() && ctx.Err() == nil {
		logger.Info("retrying listing URLs with fallback fetcher", "fetcher", c.fallback.Type())
		cands, used, err = c.collect(ctx, s, c.fallback, logger)
	}
	if len(cands) == 0 {
		if err == nil {
			err = &types.SiteError{Site: s.Name, Stage: StageParse, Err: types.ErrNoElements}
		}
		res.Err = err
		logger.Warn("no candidates from any listing URL", "urls", len(s.URLs), "error", err)
		return res
	}
	res.Candidates = len(cands)
	res.ListingURL = used

	up, err := c.store.UpsertMany(ctx, cands)
	if err != nil {
		res.Err = &types.SiteError{Site: s.Name, Stage: StageStore, Err: err}
		logger.Error("storing candidates failed", "error", err)
		return res
	}

	res.New, res.Updated = up.New, up.Updated
	c.metrics.AddNewPosts(s.Name, up.New)
	c.metrics.PostsUpdated.Add(int64(up.Updated))
	c.metrics.PostsSkipped.Add(int64(up.Skipped))

	logger.Info("site crawled",
		"listing_url", used,
		"candidates", len(cands),
		"new", up.New,
		"updated", up.Updated,
		"duration", time.Since(start),
	)
	return res
}

// collect tries each listing URL in order and returns the first non-empty
// candidate list together with the URL that produced it.
func (c *Coordinator) collect(ctx context.Context, s *Site, f fetcher.Fetcher, logger *slog.Logger) ([]types.ScoredCandidate, string, error) {
	var lastErr error

	for _, rawURL := range s.URLs {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, "", &types.SiteError{Site: s.Name, Stage: StageFetch, Err: err}
		}

		req, err := types.NewRequest(rawURL)
		if err != nil {
			lastErr = &types.SiteError{Site: s.Name, Stage: StageFetch, Err: err}
			logger.Warn("invalid listing URL", "url", rawURL, "error", err)
			continue
		}
		req.Site = s.Name
		if s.Headers != nil {
			req.Headers = s.Headers.Clone()
		}

		c.metrics.FetchesTotal.Add(1)
		doc, err := f.Fetch(ctx, req)
		if err != nil {
			c.metrics.FetchesFailed.Add(1)
			if types.IsBlocked(err) {
				c.metrics.FetchesBlocked.Add(1)
				logger.Warn("listing blocked", "url", rawURL, "fetcher", f.Type(), "error", err)
			} else {
				logger.Warn("listing fetch failed", "url", rawURL, "fetcher", f.Type(), "error", err)
			}
			lastErr = &types.SiteError{Site: s.Name, Stage: StageFetch, Err: err}
			if ctx.Err() != nil {
				return nil, "", lastErr
			}
			continue
		}
		c.metrics.BytesDownloaded.Add(int64(len(doc.Body)))

		result, err := s.Parser.Parse(doc)
		if err != nil {
			lastErr = &types.SiteError{Site: s.Name, Stage: StageParse, Err: err}
			logger.Warn("listing parse failed", "url", rawURL, "error", err)
			continue
		}
		if len(result.Candidates) == 0 {
			logger.Info("listing yielded no candidates", "url", rawURL, "elements", result.Elements)
			continue
		}

		c.metrics.CandidatesParsed.Add(int64(len(result.Candidates)))
		return result.Candidates, rawURL, nil
	}

	return nil, "", lastErr
}

// Close releases the fetchers built by FromConfig.
func (c *Coordinator) Close() error {
	var firstErr error
	for _, f := range c.closers {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
