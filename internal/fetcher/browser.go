package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/devices"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/hotboard/internal/automation"
	"github.com/IshaanNene/hotboard/internal/config"
	"github.com/IshaanNene/hotboard/internal/types"
)

// BrowserFetcher renders listing pages in a headless Chromium via Rod.
// Every Fetch launches and tears down its own browser session, so a
// crashed or hung page never leaks into the next site.
type BrowserFetcher struct {
	cfg      *config.Config
	proxyMgr *ProxyManager
	logger   *slog.Logger
}

// NewBrowserFetcher creates a browser fetcher. No browser is started
// until the first Fetch.
func NewBrowserFetcher(cfg *config.Config, logger *slog.Logger) *BrowserFetcher {
	bf := &BrowserFetcher{
		cfg:    cfg,
		logger: logger.With("component", "browser_fetcher"),
	}
	if cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
		bf.proxyMgr = NewProxyManager(&cfg.Proxy, logger)
	}
	return bf
}

// session owns the launcher and browser for one Fetch.
type session struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
}

func (s *session) close() {
	if s.browser != nil {
		_ = s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
}

// launch starts Chromium with automation fingerprints disabled.
func (bf *BrowserFetcher) launch() (*session, error) {
	l := launcher.New().
		Headless(bf.cfg.Browser.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled")

	if bf.cfg.Browser.Bin != "" {
		l = l.Bin(bf.cfg.Browser.Bin)
	}
	if bf.cfg.Browser.Locale != "" {
		l = l.Set("lang", bf.cfg.Browser.Locale)
	}
	if bf.proxyMgr != nil {
		if proxyURL := bf.proxyMgr.Next(); proxyURL != nil {
			l = l.Proxy(proxyURL.String())
		}
	}

	s := &session{launcher: l}
	controlURL, err := l.Launch()
	if err != nil {
		s.close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	s.browser = rod.New().ControlURL(controlURL)
	if err := s.browser.Connect(); err != nil {
		s.close()
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	return s, nil
}

// Fetch navigates to the listing, scrolls until the feed stops growing
// and returns the rendered markup.
func (bf *BrowserFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Document, error) {
	start := time.Now()

	s, err := bf.launch()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Kind: types.FetchTransient, Attempts: 1, Err: err}
	}
	defer s.close()

	timeout := bf.cfg.Browser.NavigationTimeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}

	page, err := stealth.Page(s.browser)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Kind: types.FetchTransient, Attempts: 1, Err: fmt.Errorf("stealth page: %w", err)}
	}
	page = page.Context(ctx)

	if dev, ok := deviceFor(bf.cfg.Browser.Device); ok {
		if err := page.Emulate(dev); err != nil {
			bf.logger.Warn("device emulation failed", "device", bf.cfg.Browser.Device, "error", err)
		}
	} else if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      MobileUserAgent,
		AcceptLanguage: bf.cfg.Browser.Locale,
	}); err != nil {
		bf.logger.Warn("failed to set user agent", "error", err)
	}

	if pairs := extraHeaderPairs(req.Headers); len(pairs) > 0 {
		if _, err := page.SetExtraHeaders(pairs); err != nil {
			bf.logger.Warn("failed to set headers", "error", err)
		}
	}

	navPage := page.Timeout(timeout)
	waitIdle := navPage.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
	if err := navPage.Navigate(req.URLString()); err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Kind: types.FetchTransient, Attempts: 1, Err: fmt.Errorf("navigate: %w", err)}
	}
	waitIdle()

	if _, err := automation.ScrollUntilStable(ctx, automation.NewPage(page), bf.cfg.Browser.MaxScrolls, bf.cfg.Browser.ScrollDelay, bf.logger); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, &types.FetchError{URL: req.URLString(), Kind: types.FetchTransient, Attempts: 1, Err: err}
		}
		bf.logger.Warn("scroll failed, using current content", "url", req.URLString(), "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Kind: types.FetchTransient, Attempts: 1, Err: fmt.Errorf("read html: %w", err)}
	}

	if kind, marker := DetectChallenge(html, bf.cfg.Fetcher.BlockMarkers); kind != "" {
		return nil, &types.FetchError{
			URL:      req.URLString(),
			Kind:     types.FetchBlocked,
			Attempts: 1,
			Err:      fmt.Errorf("%w: %s (%s)", types.ErrBlocked, kind, marker),
		}
	}

	finalURL := req.URLString()
	if info, err := page.Info(); err == nil && info != nil && info.URL != "" {
		finalURL = info.URL
	}

	duration := time.Since(start)
	// Rod does not expose the navigation status; a rendered page counts as 200.
	doc := types.NewDocument(req, 200, []byte(html), finalURL, duration)

	bf.logger.Debug("browser fetch complete",
		"url", req.URLString(),
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)

	return doc, nil
}

// Close is a no-op; sessions are closed by Fetch.
func (bf *BrowserFetcher) Close() error {
	return nil
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string {
	return "browser"
}

// deviceFor maps a configured device name to a Rod emulation profile.
func deviceFor(name string) (devices.Device, bool) {
	switch strings.ToLower(strings.ReplaceAll(name, " ", "")) {
	case "iphonex", "iphone":
		return devices.IPhoneX, true
	case "pixel2", "android":
		return devices.Pixel2, true
	case "ipad":
		return devices.IPad, true
	default:
		return devices.Device{}, false
	}
}
