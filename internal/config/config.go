package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for hotboard.
type Config struct {
	Fetcher   FetcherConfig         `mapstructure:"fetcher"   yaml:"fetcher"`
	Browser   BrowserConfig         `mapstructure:"browser"   yaml:"browser"`
	Proxy     ProxyConfig           `mapstructure:"proxy"     yaml:"proxy"`
	Crawl     CrawlConfig           `mapstructure:"crawl"     yaml:"crawl"`
	Sites     map[string]SiteConfig `mapstructure:"sites"     yaml:"sites"`
	Filter    FilterConfig          `mapstructure:"filter"    yaml:"filter"`
	Storage   StorageConfig         `mapstructure:"storage"   yaml:"storage"`
	Scheduler SchedulerConfig       `mapstructure:"scheduler" yaml:"scheduler"`
	Server    ServerConfig          `mapstructure:"server"    yaml:"server"`
	Logging   LoggingConfig         `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig         `mapstructure:"metrics"   yaml:"metrics"`
}

// FetcherConfig controls the HTTP fetcher and its retry policy.
type FetcherConfig struct {
	Timeout         time.Duration     `mapstructure:"timeout"           yaml:"timeout"`
	MaxRetries      int               `mapstructure:"max_retries"       yaml:"max_retries"`
	RetryBackoff    time.Duration     `mapstructure:"retry_backoff"     yaml:"retry_backoff"`
	BackoffCurve    string            `mapstructure:"backoff_curve"     yaml:"backoff_curve"` // fixed, linear, exponential
	UserAgents      []string          `mapstructure:"user_agents"       yaml:"user_agents"`
	Headers         map[string]string `mapstructure:"headers"           yaml:"headers"`
	FollowRedirects bool              `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int               `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64             `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool              `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration     `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	BlockMarkers    []string          `mapstructure:"block_markers"     yaml:"block_markers"`
}

// BrowserConfig controls the headless browser fetcher.
type BrowserConfig struct {
	Bin               string        `mapstructure:"bin"                yaml:"bin"`
	Headless          bool          `mapstructure:"headless"           yaml:"headless"`
	Device            string        `mapstructure:"device"             yaml:"device"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	MaxScrolls        int           `mapstructure:"max_scrolls"        yaml:"max_scrolls"`
	ScrollDelay       time.Duration `mapstructure:"scroll_delay"       yaml:"scroll_delay"`
	Locale            string        `mapstructure:"locale"             yaml:"locale"`
}

// ProxyConfig controls proxy rotation.
type ProxyConfig struct {
	Enabled  bool     `mapstructure:"enabled"  yaml:"enabled"`
	Rotation string   `mapstructure:"rotation" yaml:"rotation"`
	URLs     []string `mapstructure:"urls"     yaml:"urls"`
}

// CrawlConfig controls the crawl coordinator.
type CrawlConfig struct {
	Sites           []string      `mapstructure:"sites"            yaml:"sites"`
	TopN            int           `mapstructure:"top_n"            yaml:"top_n"`
	MinElements     int           `mapstructure:"min_elements"     yaml:"min_elements"`
	PolitenessDelay time.Duration `mapstructure:"politeness_delay" yaml:"politeness_delay"`
	BrowserFallback bool          `mapstructure:"browser_fallback" yaml:"browser_fallback"`
}

// SiteConfig overrides per-site crawl behavior.
type SiteConfig struct {
	Enabled     bool              `mapstructure:"enabled"      yaml:"enabled"`
	Fetcher     string            `mapstructure:"fetcher"      yaml:"fetcher"` // http, browser
	ListingURLs []string          `mapstructure:"listing_urls" yaml:"listing_urls"`
	Headers     map[string]string `mapstructure:"headers"      yaml:"headers"`
}

// FilterConfig controls the exclusion filter.
type FilterConfig struct {
	Keywords       []string `mapstructure:"keywords"         yaml:"keywords"`
	ExtraKeywords  []string `mapstructure:"extra_keywords"   yaml:"extra_keywords"`
	MinTitleLength int      `mapstructure:"min_title_length" yaml:"min_title_length"`
	MaxTitleLength int      `mapstructure:"max_title_length" yaml:"max_title_length"`
}

// StorageConfig controls the post store.
type StorageConfig struct {
	Driver     string `mapstructure:"driver"     yaml:"driver"` // sqlite, postgres, mongodb
	DSN        string `mapstructure:"dsn"        yaml:"dsn"`
	Database   string `mapstructure:"database"   yaml:"database"`
	Collection string `mapstructure:"collection" yaml:"collection"`
	ExportDir  string `mapstructure:"export_dir" yaml:"export_dir"`
}

// SchedulerConfig controls periodic crawls.
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"  yaml:"enabled"`
	Hourly   string `mapstructure:"hourly"   yaml:"hourly"`
	DailyAt  string `mapstructure:"daily_at" yaml:"daily_at"`
	Timezone string `mapstructure:"timezone" yaml:"timezone"`
}

// ServerConfig controls the JSON API.
type ServerConfig struct {
	Port         int           `mapstructure:"port"          yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"  yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultSites returns the built-in listing URLs for every site.
func DefaultSites() map[string]SiteConfig {
	return map[string]SiteConfig{
		"ppomppu": {
			Enabled:     true,
			Fetcher:     "http",
			ListingURLs: []string{"https://www.ppomppu.co.kr/hot.php?category=2"},
		},
		"fmkorea": {
			Enabled: true,
			Fetcher: "http",
			ListingURLs: []string{
				"https://www.fmkorea.com/best2",
				"https://www.fmkorea.com/best",
				"https://www.fmkorea.com/index.php?mid=best2",
				"https://www.fmkorea.com/index.php?mid=best",
				"https://m.fmkorea.com/best2",
				"https://m.fmkorea.com/best",
			},
			Headers: map[string]string{
				"Referer": "https://www.fmkorea.com/",
			},
		},
		"bobae": {
			Enabled:     true,
			Fetcher:     "http",
			ListingURLs: []string{"https://www.bobaedream.co.kr/board/bulletin/list.php?code=best&vdate=w"},
		},
		"dcinside": {
			Enabled:     true,
			Fetcher:     "http",
			ListingURLs: []string{"https://gall.dcinside.com/board/lists/?id=dcbest"},
		},
		"ruliweb": {
			Enabled:     true,
			Fetcher:     "http",
			ListingURLs: []string{"https://bbs.ruliweb.com/best/humor_only?orderby=recommend&range=24h"},
		},
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Fetcher: FetcherConfig{
			Timeout:      15 * time.Second,
			MaxRetries:   3,
			RetryBackoff: 2 * time.Second,
			BackoffCurve: "fixed",
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			},
			Headers: map[string]string{
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
				"Accept-Language": "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7",
				"Cache-Control":   "max-age=0",
				"DNT":             "1",
			},
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    20,
			BlockMarkers: []string{
				"Just a moment",
				"Checking your browser",
			},
		},
		Browser: BrowserConfig{
			Headless:          true,
			Device:            "iphonex",
			NavigationTimeout: 30 * time.Second,
			MaxScrolls:        15,
			ScrollDelay:       2 * time.Second,
			Locale:            "ko-KR",
		},
		Proxy: ProxyConfig{
			Enabled:  false,
			Rotation: "round_robin",
		},
		Crawl: CrawlConfig{
			Sites:           []string{"ppomppu", "fmkorea", "bobae", "dcinside", "ruliweb"},
			TopN:            10,
			MinElements:     5,
			PolitenessDelay: 1 * time.Second,
			BrowserFallback: false,
		},
		Sites: DefaultSites(),
		Filter: FilterConfig{
			MinTitleLength: 5,
			MaxTitleLength: 200,
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			DSN:        "hotboard.db",
			Database:   "hotboard",
			Collection: "posts",
			ExportDir:  "./output",
		},
		Scheduler: SchedulerConfig{
			Enabled:  true,
			Hourly:   "@hourly",
			DailyAt:  "09:00",
			Timezone: "Asia/Seoul",
		},
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
