package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/IshaanNene/hotboard/internal/config"
)

// ProxyManager rotates outbound proxies for both fetchers.
type ProxyManager struct {
	proxies  []*url.URL
	failed   map[string]bool
	rotation string
	index    atomic.Int64
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewProxyManager creates a ProxyManager from configuration. Unparseable
// proxy URLs are logged and skipped.
func NewProxyManager(cfg *config.ProxyConfig, logger *slog.Logger) *ProxyManager {
	pm := &ProxyManager{
		proxies:  make([]*url.URL, 0, len(cfg.URLs)),
		failed:   make(map[string]bool),
		rotation: cfg.Rotation,
		logger:   logger.With("component", "proxy_manager"),
	}

	for _, rawURL := range cfg.URLs {
		u, err := url.Parse(rawURL)
		if err != nil || u.Host == "" {
			pm.logger.Warn("invalid proxy URL", "url", rawURL, "error", err)
			continue
		}
		pm.proxies = append(pm.proxies, u)
	}

	pm.logger.Info("proxy manager initialized", "count", len(pm.proxies), "rotation", cfg.Rotation)
	return pm
}

// ProxyFunc returns an http.Transport-compatible proxy function. The chosen
// proxy is recorded on requests carrying a proxyChoice.
func (pm *ProxyManager) ProxyFunc() func(*http.Request) (*url.URL, error) {
	return func(r *http.Request) (*url.URL, error) {
		p := pm.Next()
		if c, ok := r.Context().Value(proxyChoiceKey{}).(*proxyChoice); ok {
			c.Store(p)
		}
		return p, nil
	}
}

type proxyChoiceKey struct{}

// proxyChoice remembers which proxy carried a request.
type proxyChoice struct {
	atomic.Pointer[url.URL]
}

func withProxyChoice(ctx context.Context, c *proxyChoice) context.Context {
	return context.WithValue(ctx, proxyChoiceKey{}, c)
}

// isProxyError reports whether err came from connecting to the proxy
// rather than from the target site.
func isProxyError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "proxyconnect"
}

// Next returns the next healthy proxy, or nil for a direct connection.
func (pm *ProxyManager) Next() *url.URL {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	healthy := make([]*url.URL, 0, len(pm.proxies))
	for _, p := range pm.proxies {
		if !pm.failed[p.String()] {
			healthy = append(healthy, p)
		}
	}
	if len(healthy) == 0 {
		return nil
	}

	if pm.rotation == "random" {
		return healthy[rand.Intn(len(healthy))]
	}
	idx := pm.index.Add(1) % int64(len(healthy))
	return healthy[idx]
}

// MarkFailed takes a proxy out of rotation.
func (pm *ProxyManager) MarkFailed(proxyURL *url.URL, err error) {
	if proxyURL == nil {
		return
	}
	key := proxyURL.String()
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for _, p := range pm.proxies {
		if p.String() == key {
			pm.failed[key] = true
			pm.logger.Warn("proxy marked unhealthy", "proxy", proxyURL.Host, "error", err)
			return
		}
	}
}

// HealthyCount returns the number of proxies still in rotation.
func (pm *ProxyManager) HealthyCount() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	n := 0
	for _, p := range pm.proxies {
		if !pm.failed[p.String()] {
			n++
		}
	}
	return n
}
