package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. HOTBOARD_STORAGE_DRIVER.
const EnvPrefix = "HOTBOARD"

// Load reads configuration from file, environment, and defaults.
// Priority (highest to lowest): env vars > config file > defaults.
// A .env file in the working directory is loaded first when present.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("storage.dsn", EnvPrefix+"_STORAGE_DSN", "DATABASE_URL")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("hotboard")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".hotboard"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("fetcher.timeout", cfg.Fetcher.Timeout)
	v.SetDefault("fetcher.max_retries", cfg.Fetcher.MaxRetries)
	v.SetDefault("fetcher.retry_backoff", cfg.Fetcher.RetryBackoff)
	v.SetDefault("fetcher.backoff_curve", cfg.Fetcher.BackoffCurve)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)
	v.SetDefault("fetcher.headers", cfg.Fetcher.Headers)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.block_markers", cfg.Fetcher.BlockMarkers)

	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.device", cfg.Browser.Device)
	v.SetDefault("browser.navigation_timeout", cfg.Browser.NavigationTimeout)
	v.SetDefault("browser.max_scrolls", cfg.Browser.MaxScrolls)
	v.SetDefault("browser.scroll_delay", cfg.Browser.ScrollDelay)
	v.SetDefault("browser.locale", cfg.Browser.Locale)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)

	v.SetDefault("crawl.sites", cfg.Crawl.Sites)
	v.SetDefault("crawl.top_n", cfg.Crawl.TopN)
	v.SetDefault("crawl.min_elements", cfg.Crawl.MinElements)
	v.SetDefault("crawl.politeness_delay", cfg.Crawl.PolitenessDelay)
	v.SetDefault("crawl.browser_fallback", cfg.Crawl.BrowserFallback)

	for name, site := range cfg.Sites {
		prefix := "sites." + name + "."
		v.SetDefault(prefix+"enabled", site.Enabled)
		v.SetDefault(prefix+"fetcher", site.Fetcher)
		v.SetDefault(prefix+"listing_urls", site.ListingURLs)
		if len(site.Headers) > 0 {
			v.SetDefault(prefix+"headers", site.Headers)
		}
	}

	v.SetDefault("filter.min_title_length", cfg.Filter.MinTitleLength)
	v.SetDefault("filter.max_title_length", cfg.Filter.MaxTitleLength)

	v.SetDefault("storage.driver", cfg.Storage.Driver)
	v.SetDefault("storage.dsn", cfg.Storage.DSN)
	v.SetDefault("storage.database", cfg.Storage.Database)
	v.SetDefault("storage.collection", cfg.Storage.Collection)
	v.SetDefault("storage.export_dir", cfg.Storage.ExportDir)

	v.SetDefault("scheduler.enabled", cfg.Scheduler.Enabled)
	v.SetDefault("scheduler.hourly", cfg.Scheduler.Hourly)
	v.SetDefault("scheduler.daily_at", cfg.Scheduler.DailyAt)
	v.SetDefault("scheduler.timezone", cfg.Scheduler.Timezone)

	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.read_timeout", cfg.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", cfg.Server.WriteTimeout)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
