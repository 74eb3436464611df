package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/IshaanNene/hotboard/internal/config"
	"github.com/IshaanNene/hotboard/internal/crawler"
	"github.com/IshaanNene/hotboard/internal/scheduler"
	"github.com/IshaanNene/hotboard/internal/storage"
	"github.com/IshaanNene/hotboard/internal/types"
)

// maxListLimit caps /api/posts page size.
const maxListLimit = 500

// Crawler is the interface the API uses to trigger crawls.
type Crawler interface {
	CrawlAll(ctx context.Context) *crawler.Summary
	CrawlOne(ctx context.Context, name string) (int, error)
	Sites() []*crawler.Site
	Running() bool
	LastSummary() *crawler.Summary
}

// Server provides the REST API over stored posts and crawl control.
type Server struct {
	mux      *http.ServeMux
	cfg      config.ServerConfig
	store    storage.Store
	crawler  Crawler
	schedule func() []scheduler.Entry
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts a metrics handler at path.
func WithMetrics(path string, h http.Handler) Option {
	return func(s *Server) { s.mux.Handle("GET "+path, h) }
}

// WithSchedule reports scheduler entries on /api/health.
func WithSchedule(entries func() []scheduler.Entry) Option {
	return func(s *Server) { s.schedule = entries }
}

// NewServer creates a new API server.
func NewServer(cfg config.ServerConfig, store storage.Store, c Crawler, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		cfg:     cfg,
		store:   store,
		crawler: c,
		logger:  logger.With("component", "api_server"),
	}

	s.registerRoutes()
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler with panic recovery.
func (s *Server) Handler() http.Handler {
	return s.recoverer(s.mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("API server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Posts
	s.mux.HandleFunc("GET /api/posts", s.handlePosts)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)

	// Crawl control
	s.mux.HandleFunc("GET /api/crawl", s.handleCrawlAll)
	s.mux.HandleFunc("POST /api/crawl", s.handleCrawlAll)
	s.mux.HandleFunc("POST /api/crawl/{site}", s.handleCrawlOne)
	s.mux.HandleFunc("GET /api/sites", s.handleSites)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":   "ok",
		"version":  config.Version,
		"storage":  s.store.Name(),
		"crawling": s.crawler.Running(),
	}
	if s.schedule != nil {
		resp["schedule"] = s.schedule()
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	q := storage.Query{Category: r.URL.Query().Get("category")}

	if raw := r.URL.Query().Get("site"); raw != "" {
		site, err := types.ParseSite(raw)
		if err != nil {
			s.jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		q.Site = site
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.jsonError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		q.Limit = min(n, maxListLimit)
	}

	posts, err := s.store.ListPosts(r.Context(), q)
	if err != nil {
		s.logger.Error("list posts failed", "error", err)
		s.jsonError(w, http.StatusInternalServerError, "failed to load posts")
		return
	}
	if posts == nil {
		posts = []types.Post{}
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(posts),
		"posts":   posts,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("stats failed", "error", err)
		s.jsonError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	resp := map[string]any{
		"success":     true,
		"total_posts": st.Total,
		"by_site":     st.BySite,
		"by_category": st.ByCategory,
	}
	if last := s.crawler.LastSummary(); last != nil {
		resp["last_crawl"] = last
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

func (s *Server) handleCrawlAll(w http.ResponseWriter, r *http.Request) {
	sum := s.crawler.CrawlAll(r.Context())
	failed := sum.Failed()

	msg := fmt.Sprintf("crawl finished: %d new posts from %d sites", sum.TotalNew, len(sum.Sites))
	if len(failed) > 0 {
		msg += fmt.Sprintf(" (%d sites failed)", len(failed))
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   msg,
		"new_posts": sum.TotalNew,
		"sites":     sum.Sites,
	})
}

func (s *Server) handleCrawlOne(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("site")
	n, err := s.crawler.CrawlOne(r.Context(), name)
	switch {
	case errors.Is(err, types.ErrUnknownSite):
		s.jsonError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.logger.Error("site crawl failed", "site", name, "error", err)
		s.jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"success":   true,
		"message":   fmt.Sprintf("%s: %d new posts", name, n),
		"site":      name,
		"new_posts": n,
	})
}

func (s *Server) handleSites(w http.ResponseWriter, r *http.Request) {
	type siteInfo struct {
		Name        types.Site `json:"name"`
		Fetcher     string     `json:"fetcher"`
		ListingURLs []string   `json:"listing_urls"`
	}
	sites := s.crawler.Sites()
	out := make([]siteInfo, 0, len(sites))
	for _, site := range sites {
		out = append(out, siteInfo{Name: site.Name, Fetcher: site.Fetcher.Type(), ListingURLs: site.URLs})
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"success": true, "sites": out})
}

// recoverer turns handler panics into a JSON 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.Error("handler panicked", "path", r.URL.Path, "panic", rec)
				s.jsonError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonError(w http.ResponseWriter, status int, msg string) {
	s.jsonResponse(w, status, map[string]any{"success": false, "message": msg})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
