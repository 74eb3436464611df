package fetcher

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/text/encoding/korean"

	"github.com/IshaanNene/hotboard/internal/config"
	"github.com/IshaanNene/hotboard/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

func newTestFetcher(t *testing.T) *HTTPFetcher {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Fetcher.RetryBackoff = time.Millisecond
	cfg.Fetcher.Timeout = 5 * time.Second
	f, err := NewHTTPFetcher(cfg, testLogger)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	f.policy.Jitter = false
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func newRequest(t *testing.T, rawURL string) *types.Request {
	t.Helper()
	req, err := types.NewRequest(rawURL)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	return req
}

const okPage = `<html><body><table><tr><td>인기 게시물</td></tr></table></body></html>`

func TestFetch_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(okPage))
	}))
	defer server.Close()

	f := newTestFetcher(t)
	doc, err := f.Fetch(context.Background(), newRequest(t, server.URL+"/hot"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", doc.StatusCode)
	}
	if !strings.Contains(string(doc.Body), "인기 게시물") {
		t.Errorf("body missing content: %q", doc.Body)
	}
	if doc.FinalURL != server.URL+"/hot" {
		t.Errorf("unexpected final URL %q", doc.FinalURL)
	}
}

func TestFetch_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(okPage))
	}))
	defer server.Close()

	f := newTestFetcher(t)
	if _, err := f.Fetch(context.Background(), newRequest(t, server.URL)); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestFetch_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	f := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), newRequest(t, server.URL))
	if !errors.Is(err, types.ErrMaxRetries) {
		t.Fatalf("expected ErrMaxRetries, got %v", err)
	}
	var ferr *types.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FetchError, got %T", err)
	}
	if ferr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected last status 502, got %d", ferr.StatusCode)
	}
	if want := int32(f.policy.MaxRetries + 1); calls.Load() != want {
		t.Errorf("expected %d attempts, got %d", want, calls.Load())
	}
}

func TestFetch_RetriesEmptyErrorBodies(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		encoding string
	}{
		{"503", http.StatusServiceUnavailable, ""},
		{"502 gzip", http.StatusBadGateway, "gzip"},
		{"429 br", http.StatusTooManyRequests, "br"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				if calls.Add(1) == 1 {
					if tt.encoding != "" {
						w.Header().Set("Content-Encoding", tt.encoding)
					}
					w.Header().Set("Retry-After", "0")
					w.WriteHeader(tt.status)
					return
				}
				w.Write([]byte(okPage))
			}))
			defer server.Close()

			f := newTestFetcher(t)
			doc, err := f.Fetch(context.Background(), newRequest(t, server.URL))
			if err != nil {
				t.Fatalf("expected success after an empty %d, got %v", tt.status, err)
			}
			if calls.Load() != 2 || string(doc.Body) != okPage {
				t.Errorf("expected a second attempt with the page, got %d calls body %q", calls.Load(), doc.Body)
			}
		})
	}
}

func TestFetch_EmptyOKBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	f := newTestFetcher(t)
	doc, err := f.Fetch(context.Background(), newRequest(t, server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(doc.Body) != 0 {
		t.Errorf("expected empty body, got %q", doc.Body)
	}
}

func TestFetch_DropsDeadProxy(t *testing.T) {
	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(okPage))
	}))
	defer server.Close()

	cfg := config.DefaultConfig()
	cfg.Fetcher.RetryBackoff = time.Millisecond
	cfg.Proxy.Enabled = true
	cfg.Proxy.URLs = []string{deadURL}
	f, err := NewHTTPFetcher(cfg, testLogger)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}
	defer f.Close()

	if _, err := f.Fetch(context.Background(), newRequest(t, server.URL)); err != nil {
		t.Fatalf("expected direct retry after proxy failure, got %v", err)
	}
	if f.proxyMgr.HealthyCount() != 0 {
		t.Errorf("expected dead proxy out of rotation, %d still healthy", f.proxyMgr.HealthyCount())
	}
	if calls.Load() != 1 {
		t.Errorf("expected one direct request, got %d", calls.Load())
	}
}

func TestFetch_NotFoundIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	f := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), newRequest(t, server.URL))
	var ferr *types.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if ferr.Kind != types.FetchStatus || ferr.StatusCode != 404 {
		t.Errorf("expected status failure 404, got kind=%s status=%d", ferr.Kind, ferr.StatusCode)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", calls.Load())
	}
}

func TestFetch_BlockedMarker(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`<html><title>Just a moment...</title></html>`))
	}))
	defer server.Close()

	f := newTestFetcher(t)
	_, err := f.Fetch(context.Background(), newRequest(t, server.URL))
	if !types.IsBlocked(err) {
		t.Fatalf("expected blocked error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("blocked pages must not be retried, got %d attempts", calls.Load())
	}
}

func TestFetch_RetryAfter(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(okPage))
	}))
	defer server.Close()

	f := newTestFetcher(t)
	if _, err := f.Fetch(context.Background(), newRequest(t, server.URL)); err != nil {
		t.Fatalf("expected success after 429, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestFetch_CancelledContext(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newTestFetcher(t)
	_, err := f.Fetch(ctx, newRequest(t, server.URL))
	var ferr *types.FetchError
	if !errors.As(err, &ferr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if ferr.Retryable || ferr.Attempts != 1 {
		t.Errorf("cancellation must end the loop, got retryable=%v attempts=%d", ferr.Retryable, ferr.Attempts)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no request to reach the server, got %d", calls.Load())
	}
}

func TestFetch_DecodesEUCKR(t *testing.T) {
	encoded, err := korean.EUCKR.NewEncoder().String(`<html><body><a href="/view.php?no=1">오늘의 인기 게시물</a></body></html>`)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=euc-kr")
		w.Write([]byte(encoded))
	}))
	defer server.Close()

	f := newTestFetcher(t)
	doc, err := f.Fetch(context.Background(), newRequest(t, server.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(doc.Body), "오늘의 인기 게시물") {
		t.Errorf("body was not decoded to UTF-8: %q", doc.Body)
	}
}

func TestFetch_ContentEncodings(t *testing.T) {
	tests := []struct {
		encoding string
		compress func(t *testing.T, b []byte) []byte
	}{
		{"gzip", func(t *testing.T, b []byte) []byte {
			var buf bytes.Buffer
			w := gzip.NewWriter(&buf)
			if _, err := w.Write(b); err != nil {
				t.Fatal(err)
			}
			w.Close()
			return buf.Bytes()
		}},
		{"br", func(t *testing.T, b []byte) []byte {
			var buf bytes.Buffer
			w := brotli.NewWriter(&buf)
			if _, err := w.Write(b); err != nil {
				t.Fatal(err)
			}
			w.Close()
			return buf.Bytes()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.encoding, func(t *testing.T) {
			payload := tt.compress(t, []byte(okPage))
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html; charset=utf-8")
				w.Header().Set("Content-Encoding", tt.encoding)
				w.Write(payload)
			}))
			defer server.Close()

			f := newTestFetcher(t)
			doc, err := f.Fetch(context.Background(), newRequest(t, server.URL))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(doc.Body) != okPage {
				t.Errorf("decoded body mismatch: %q", doc.Body)
			}
		})
	}
}

func TestFetch_Headers(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.Write([]byte(okPage))
	}))
	defer server.Close()

	f := newTestFetcher(t)
	req := newRequest(t, server.URL)
	req.Headers.Set("Referer", "https://www.fmkorea.com/")
	if _, err := f.Fetch(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasPrefix(got.Get("Accept-Language"), "ko-KR") {
		t.Errorf("expected Korean Accept-Language, got %q", got.Get("Accept-Language"))
	}
	if got.Get("Referer") != "https://www.fmkorea.com/" {
		t.Errorf("expected site Referer, got %q", got.Get("Referer"))
	}
	if got.Get("User-Agent") == "" {
		t.Error("expected a User-Agent")
	}
	if got.Get("Sec-Fetch-Mode") != "navigate" {
		t.Errorf("expected browser navigation headers, got %q", got.Get("Sec-Fetch-Mode"))
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	tests := []struct {
		curve string
		n     int
		want  time.Duration
	}{
		{CurveFixed, 1, 2 * time.Second},
		{CurveFixed, 3, 2 * time.Second},
		{CurveLinear, 3, 6 * time.Second},
		{CurveExponential, 1, 2 * time.Second},
		{CurveExponential, 3, 8 * time.Second},
		{CurveExponential, 20, maxBackoff},
	}

	for _, tt := range tests {
		p := RetryPolicy{Backoff: 2 * time.Second, Curve: tt.curve}
		if got := p.Delay(tt.n); got != tt.want {
			t.Errorf("%s curve, retry %d: expected %s, got %s", tt.curve, tt.n, tt.want, got)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 5 * time.Second},
		{"3", 3 * time.Second},
		{"600", 120 * time.Second},
		{"garbage", 5 * time.Second},
	}
	for _, tt := range tests {
		if got := parseRetryAfter(tt.header); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %s, want %s", tt.header, got, tt.want)
		}
	}
}

func TestDetectChallenge(t *testing.T) {
	tests := []struct {
		name string
		html string
		want Challenge
	}{
		{"clean page", `<html><body>게시판</body></html>`, ""},
		{"configured marker", `<title>Just a moment...</title>`, ChallengeMarker},
		{"cloudflare interstitial", `<div id="cf-challenge-running"></div>`, ChallengeCloudflare},
		{"cloudflare challenge options", `<script>window._cf_chl_opt={cvId:'3'}</script>`, ChallengeCloudflare},
		{"cloudflare script on a normal listing", `<table class="gall_list"><tr><td>인기글</td></tr></table>
<script>(function(){var a=document.createElement('script');a.src='/cdn-cgi/challenge-platform/scripts/jsd/main.js';document.head.appendChild(a)})();</script>`, ""},
		{"turnstile script without widget", `<script src="https://challenges.cloudflare.com/turnstile/v0/api.js"></script>`, ""},
		{"recaptcha widget", `<div class="g-recaptcha" data-sitekey="abc"></div>`, ChallengeReCaptcha},
		{"recaptcha mention only", `<p>we use g-recaptcha</p>`, ""},
		{"turnstile", `<div class="cf-turnstile" data-sitekey="k"></div>`, ChallengeTurnstile},
	}
	markers := config.DefaultConfig().Fetcher.BlockMarkers
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := DetectChallenge(tt.html, markers)
			if got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestApplyBrowserHeadersFollowsUserAgent(t *testing.T) {
	tests := []struct {
		name     string
		ua       string
		platform string
		mobile   string
		brand    string
	}{
		{"windows chrome", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", `"Windows"`, "?0", `v="120"`},
		{"mac chrome", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36", `"macOS"`, "?0", `v="121"`},
		{"android chrome", "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Mobile Safari/537.36", `"Android"`, "?1", `v="122"`},
		{"safari", MobileUserAgent, "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			h.Set("User-Agent", tt.ua)
			applyBrowserHeaders(h)

			if got := h.Get("Sec-Ch-Ua-Platform"); got != tt.platform {
				t.Errorf("platform: expected %q, got %q", tt.platform, got)
			}
			if got := h.Get("Sec-Ch-Ua-Mobile"); got != tt.mobile {
				t.Errorf("mobile: expected %q, got %q", tt.mobile, got)
			}
			if !strings.Contains(h.Get("Sec-Ch-Ua"), tt.brand) {
				t.Errorf("brand list %q does not carry %s", h.Get("Sec-Ch-Ua"), tt.brand)
			}
		})
	}
}

func TestExtraHeaderPairs(t *testing.T) {
	h := http.Header{}
	h.Set("User-Agent", "x")
	h.Set("Referer", "https://m.fmkorea.com/")
	pairs := extraHeaderPairs(h)
	if len(pairs) != 2 || pairs[0] != "Referer" {
		t.Errorf("expected only Referer, got %v", pairs)
	}
}

func TestDeviceFor(t *testing.T) {
	if _, ok := deviceFor("iPhoneX"); !ok {
		t.Error("expected iphonex profile")
	}
	if _, ok := deviceFor("none"); ok {
		t.Error("expected no profile for none")
	}
}

func TestProxyManagerRotation(t *testing.T) {
	pm := NewProxyManager(&config.ProxyConfig{
		Enabled:  true,
		Rotation: "round_robin",
		URLs:     []string{"http://p1:8080", "http://p2:8080", "::bad"},
	}, testLogger)

	if pm.HealthyCount() != 2 {
		t.Fatalf("expected 2 proxies, got %d", pm.HealthyCount())
	}
	first, second := pm.Next(), pm.Next()
	if first.Host == second.Host {
		t.Errorf("expected rotation, got %s twice", first.Host)
	}

	pm.MarkFailed(&url.URL{Scheme: "http", Host: "elsewhere:1"}, errors.New("refused"))
	if pm.HealthyCount() != 2 {
		t.Errorf("unknown proxy must not change the pool, got %d healthy", pm.HealthyCount())
	}

	pm.MarkFailed(first, errors.New("refused"))
	if pm.HealthyCount() != 1 {
		t.Errorf("expected 1 healthy proxy, got %d", pm.HealthyCount())
	}
	for range 3 {
		if p := pm.Next(); p.Host == first.Host {
			t.Errorf("failed proxy %s still in rotation", first.Host)
		}
	}

	pm.MarkFailed(second, errors.New("refused"))
	if p := pm.Next(); p != nil {
		t.Errorf("expected direct connection, got %s", p)
	}
}

func TestNewFetcherKinds(t *testing.T) {
	cfg := config.DefaultConfig()
	for _, kind := range []string{"http", "browser"} {
		f, err := New(kind, cfg, testLogger)
		if err != nil {
			t.Fatalf("New(%q): %v", kind, err)
		}
		if f.Type() != kind {
			t.Errorf("expected type %q, got %q", kind, f.Type())
		}
		f.Close()
	}
	if _, err := New("ftp", cfg, testLogger); err == nil {
		t.Error("expected error for unknown fetcher kind")
	}
}
