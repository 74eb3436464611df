package observability

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/IshaanNene/hotboard/internal/types"
)

// Metrics tracks crawl counters.
type Metrics struct {
	// Run metrics
	CrawlRuns       atomic.Int64
	CrawlRunsFailed atomic.Int64
	SiteCrawls      atomic.Int64
	SiteFailures    atomic.Int64

	// Fetch metrics
	FetchesTotal    atomic.Int64
	FetchesFailed   atomic.Int64
	FetchesBlocked  atomic.Int64
	BytesDownloaded atomic.Int64

	// Post metrics
	CandidatesParsed atomic.Int64
	PostsNew         atomic.Int64
	PostsUpdated     atomic.Int64
	PostsSkipped     atomic.Int64

	mu        sync.Mutex
	newBySite map[types.Site]int64

	logger *slog.Logger
}

// NewMetrics creates a new Metrics instance.
func NewMetrics(logger *slog.Logger) *Metrics {
	return &Metrics{
		newBySite: make(map[types.Site]int64),
		logger:    logger.With("component", "metrics"),
	}
}

// AddNewPosts records posts inserted for a site.
func (m *Metrics) AddNewPosts(site types.Site, n int) {
	m.PostsNew.Add(int64(n))
	m.mu.Lock()
	m.newBySite[site] += int64(n)
	m.mu.Unlock()
}

// NewPostsBySite returns a copy of the per-site insert counters.
func (m *Metrics) NewPostsBySite() map[types.Site]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[types.Site]int64, len(m.newBySite))
	for k, v := range m.newBySite {
		out[k] = v
	}
	return out
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	metrics := []struct {
		name  string
		help  string
		value int64
	}{
		{"hotboard_crawl_runs_total", "Total crawl runs", m.CrawlRuns.Load()},
		{"hotboard_crawl_runs_failed_total", "Crawl runs where every site failed", m.CrawlRunsFailed.Load()},
		{"hotboard_site_crawls_total", "Total per-site crawls", m.SiteCrawls.Load()},
		{"hotboard_site_failures_total", "Per-site crawls that stored nothing", m.SiteFailures.Load()},
		{"hotboard_fetches_total", "Total listing fetches", m.FetchesTotal.Load()},
		{"hotboard_fetches_failed_total", "Failed listing fetches", m.FetchesFailed.Load()},
		{"hotboard_fetches_blocked_total", "Fetches answered with an anti-bot page", m.FetchesBlocked.Load()},
		{"hotboard_bytes_downloaded_total", "Total bytes downloaded", m.BytesDownloaded.Load()},
		{"hotboard_candidates_parsed_total", "Candidates kept after filtering and ranking", m.CandidatesParsed.Load()},
		{"hotboard_posts_new_total", "Posts inserted", m.PostsNew.Load()},
		{"hotboard_posts_updated_total", "Posts refreshed", m.PostsUpdated.Load()},
		{"hotboard_posts_skipped_total", "Candidates the store rejected", m.PostsSkipped.Load()},
	}

	for _, metric := range metrics {
		fmt.Fprintf(w, "# HELP %s %s\n", metric.name, metric.help)
		fmt.Fprintf(w, "# TYPE %s counter\n", metric.name)
		fmt.Fprintf(w, "%s %d\n", metric.name, metric.value)
	}

	bySite := m.NewPostsBySite()
	sites := make([]string, 0, len(bySite))
	for s := range bySite {
		sites = append(sites, string(s))
	}
	sort.Strings(sites)

	fmt.Fprint(w, "# HELP hotboard_site_posts_new_total Posts inserted per site\n")
	fmt.Fprint(w, "# TYPE hotboard_site_posts_new_total counter\n")
	for _, s := range sites {
		fmt.Fprintf(w, "hotboard_site_posts_new_total{site=%q} %d\n", s, bySite[types.Site(s)])
	}
}

// Snapshot returns all metrics as a map.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"crawl_runs":        m.CrawlRuns.Load(),
		"crawl_runs_failed": m.CrawlRunsFailed.Load(),
		"site_crawls":       m.SiteCrawls.Load(),
		"site_failures":     m.SiteFailures.Load(),
		"fetches_total":     m.FetchesTotal.Load(),
		"fetches_failed":    m.FetchesFailed.Load(),
		"fetches_blocked":   m.FetchesBlocked.Load(),
		"bytes_downloaded":  m.BytesDownloaded.Load(),
		"candidates_parsed": m.CandidatesParsed.Load(),
		"posts_new":         m.PostsNew.Load(),
		"posts_updated":     m.PostsUpdated.Load(),
		"posts_skipped":     m.PostsSkipped.Load(),
	}
}
