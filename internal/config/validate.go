package config

import (
	"fmt"
	"net/url"
	"time"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be > 0")
	}
	if cfg.Fetcher.MaxRetries < 0 {
		return fmt.Errorf("fetcher.max_retries must be >= 0, got %d", cfg.Fetcher.MaxRetries)
	}
	if cfg.Fetcher.RetryBackoff < 0 {
		return fmt.Errorf("fetcher.retry_backoff must be >= 0")
	}
	switch cfg.Fetcher.BackoffCurve {
	case "fixed", "linear", "exponential":
	default:
		return fmt.Errorf("fetcher.backoff_curve must be fixed/linear/exponential, got %q", cfg.Fetcher.BackoffCurve)
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if cfg.Browser.MaxScrolls < 0 {
		return fmt.Errorf("browser.max_scrolls must be >= 0, got %d", cfg.Browser.MaxScrolls)
	}
	if cfg.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be > 0")
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	if cfg.Crawl.TopN < 1 {
		return fmt.Errorf("crawl.top_n must be >= 1, got %d", cfg.Crawl.TopN)
	}
	if cfg.Crawl.MinElements < 1 {
		return fmt.Errorf("crawl.min_elements must be >= 1, got %d", cfg.Crawl.MinElements)
	}
	if cfg.Crawl.PolitenessDelay < 0 {
		return fmt.Errorf("crawl.politeness_delay must be >= 0")
	}
	seen := make(map[string]bool, len(cfg.Crawl.Sites))
	for _, name := range cfg.Crawl.Sites {
		if seen[name] {
			return fmt.Errorf("crawl.sites lists %q twice", name)
		}
		seen[name] = true
		site, ok := cfg.Sites[name]
		if !ok {
			return fmt.Errorf("crawl.sites references unknown site %q", name)
		}
		if site.Fetcher != "http" && site.Fetcher != "browser" {
			return fmt.Errorf("sites.%s.fetcher must be 'http' or 'browser', got %q", name, site.Fetcher)
		}
		if site.Enabled && len(site.ListingURLs) == 0 {
			return fmt.Errorf("sites.%s.listing_urls must not be empty", name)
		}
		for _, raw := range site.ListingURLs {
			if err := ValidateURL(raw); err != nil {
				return fmt.Errorf("sites.%s: %w", name, err)
			}
		}
	}

	if cfg.Filter.MinTitleLength < 0 || cfg.Filter.MaxTitleLength < cfg.Filter.MinTitleLength {
		return fmt.Errorf("filter title bounds invalid: min=%d max=%d", cfg.Filter.MinTitleLength, cfg.Filter.MaxTitleLength)
	}

	validDrivers := map[string]bool{
		"sqlite": true, "postgres": true, "mongodb": true,
	}
	if !validDrivers[cfg.Storage.Driver] {
		return fmt.Errorf("storage.driver %q is not supported (valid: sqlite, postgres, mongodb)", cfg.Storage.Driver)
	}
	if cfg.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn must be set")
	}

	if cfg.Scheduler.Enabled {
		if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
		if _, _, err := ParseClock(cfg.Scheduler.DailyAt); err != nil {
			return fmt.Errorf("scheduler.daily_at: %w", err)
		}
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", cfg.Server.Port)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	return nil
}

// ValidateURL checks if a URL string is valid for crawling.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ParseClock parses an "HH:MM" wall-clock time.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour(), t.Minute(), nil
}
