package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"

	"github.com/IshaanNene/hotboard/internal/config"
	"github.com/IshaanNene/hotboard/internal/types"
)

// HTTPFetcher implements Fetcher using net/http with retries.
type HTTPFetcher struct {
	client     *http.Client
	cfg        *config.FetcherConfig
	policy     RetryPolicy
	headers    http.Header
	proxyMgr   *ProxyManager
	logger     *slog.Logger
	userAgents []string
	uaIndex    atomic.Int64
}

// NewHTTPFetcher creates a new HTTP fetcher.
func NewHTTPFetcher(cfg *config.Config, logger *slog.Logger) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.Fetcher.MaxIdleConns,
		MaxIdleConnsPerHost: max(cfg.Fetcher.MaxIdleConns/4, 2),
		IdleConnTimeout:     cfg.Fetcher.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.Fetcher.TLSInsecure,
		},
		DisableCompression: true, // decoded below, including brotli
	}

	var proxyMgr *ProxyManager
	if cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
		proxyMgr = NewProxyManager(&cfg.Proxy, logger)
		transport.Proxy = proxyMgr.ProxyFunc()
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !cfg.Fetcher.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= cfg.Fetcher.MaxRedirects {
			return fmt.Errorf("max redirects (%d) reached", cfg.Fetcher.MaxRedirects)
		}
		return nil
	}

	headers := make(http.Header, len(cfg.Fetcher.Headers))
	for k, v := range cfg.Fetcher.Headers {
		headers.Set(k, v)
	}

	return &HTTPFetcher{
		client: &http.Client{
			Transport:     transport,
			Jar:           jar,
			Timeout:       cfg.Fetcher.Timeout,
			CheckRedirect: redirectPolicy,
		},
		cfg:        &cfg.Fetcher,
		policy:     PolicyFromConfig(&cfg.Fetcher),
		headers:    headers,
		proxyMgr:   proxyMgr,
		logger:     logger.With("component", "http_fetcher"),
		userAgents: cfg.Fetcher.UserAgents,
	}, nil
}

// Fetch retrieves the page, retrying transient failures per the retry policy.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Document, error) {
	var last *types.FetchError

	for attempt := 0; attempt <= f.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := f.policy.Delay(attempt)
			if last.RetryAfter > delay {
				delay = last.RetryAfter
			}
			f.logger.Warn("retrying fetch",
				"url", req.URLString(),
				"attempt", attempt+1,
				"delay", delay,
				"error", last.Err,
			)
			if err := wait(ctx, delay); err != nil {
				return nil, &types.FetchError{
					URL:      req.URLString(),
					Kind:     types.FetchTransient,
					Attempts: attempt,
					Err:      err,
				}
			}
		}

		doc, ferr := f.fetchOnce(ctx, req)
		if ferr == nil {
			return doc, nil
		}
		ferr.Attempts = attempt + 1
		if !ferr.Retryable {
			return nil, ferr
		}
		last = ferr
	}

	return nil, &types.FetchError{
		URL:        req.URLString(),
		Kind:       types.FetchTransient,
		StatusCode: last.StatusCode,
		Attempts:   last.Attempts,
		Err:        fmt.Errorf("%w after %d attempts: %w", types.ErrMaxRetries, last.Attempts, last.Err),
	}
}

// fetchOnce performs a single GET.
func (f *HTTPFetcher) fetchOnce(ctx context.Context, req *types.Request) (*types.Document, *types.FetchError) {
	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	var choice *proxyChoice
	if f.proxyMgr != nil {
		choice = &proxyChoice{}
		reqCtx = withProxyChoice(reqCtx, choice)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, req.URLString(), nil)
	if err != nil {
		return nil, &types.FetchError{URL: req.URLString(), Kind: types.FetchInvalid, Err: err}
	}

	httpReq.Header.Set("User-Agent", f.nextUserAgent())
	for key, values := range f.headers {
		for _, v := range values {
			httpReq.Header.Set(key, v)
		}
	}
	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Set(key, v)
		}
	}
	applyBrowserHeaders(httpReq.Header)

	start := time.Now()
	httpResp, err := f.client.Do(httpReq)
	duration := time.Since(start)

	if err != nil {
		if choice != nil && isProxyError(err) {
			f.proxyMgr.MarkFailed(choice.Load(), err)
		}
		return nil, &types.FetchError{
			URL:       req.URLString(),
			Kind:      types.FetchTransient,
			Err:       err,
			Retryable: isRetryableError(ctx, err),
		}
	}
	defer httpResp.Body.Close()

	raw, readErr := readBody(httpResp, f.cfg.MaxBodySize)
	body := decodeCharset(raw, httpResp.Header.Get("Content-Type"))

	if kind, marker := DetectChallenge(string(body), f.cfg.BlockMarkers); kind != "" {
		return nil, &types.FetchError{
			URL:        req.URLString(),
			Kind:       types.FetchBlocked,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("%w: %s (%s)", types.ErrBlocked, kind, marker),
		}
	}

	switch status := httpResp.StatusCode; {
	case status == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(httpResp.Header.Get("Retry-After"))
		return nil, &types.FetchError{
			URL:        req.URLString(),
			Kind:       types.FetchStatus,
			StatusCode: status,
			Err:        fmt.Errorf("HTTP 429: rate limited (retry after %s)", retryAfter),
			Retryable:  true,
			RetryAfter: retryAfter,
		}
	case status >= 500:
		return nil, &types.FetchError{
			URL:        req.URLString(),
			Kind:       types.FetchStatus,
			StatusCode: status,
			Err:        fmt.Errorf("HTTP %d: %s", status, snippet(body, 256)),
			Retryable:  true,
		}
	case readErr != nil:
		if errors.Is(readErr, gzip.ErrHeader) || errors.Is(readErr, gzip.ErrChecksum) {
			return nil, &types.FetchError{URL: req.URLString(), Kind: types.FetchInvalid, StatusCode: status, Err: readErr}
		}
		return nil, &types.FetchError{
			URL:        req.URLString(),
			Kind:       types.FetchTransient,
			StatusCode: status,
			Err:        readErr,
			Retryable:  isRetryableError(ctx, readErr),
		}
	case status < 200 || status >= 300:
		return nil, &types.FetchError{
			URL:        req.URLString(),
			Kind:       types.FetchStatus,
			StatusCode: status,
			Err:        fmt.Errorf("HTTP %d", status),
		}
	}

	doc := types.NewDocument(req, httpResp.StatusCode, body, httpResp.Request.URL.String(), duration)

	f.logger.Debug("fetch complete",
		"url", req.URLString(),
		"status", doc.StatusCode,
		"size", len(body),
		"duration", duration,
	)

	return doc, nil
}

// Close releases resources.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// Type returns the fetcher type identifier.
func (f *HTTPFetcher) Type() string {
	return "http"
}

// nextUserAgent returns the next User-Agent in rotation.
func (f *HTTPFetcher) nextUserAgent() string {
	if len(f.userAgents) == 0 {
		return "hotboard/" + config.Version
	}
	idx := f.uaIndex.Add(1) % int64(len(f.userAgents))
	return f.userAgents[idx]
}

// readBody reads the response body, undoing gzip, deflate or brotli
// encoding. An empty body is not an error whatever its encoding. The size
// limit applies to the decoded bytes.
func readBody(resp *http.Response, limit int64) ([]byte, error) {
	var reader io.Reader = resp.Body

	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		gz, err := gzip.NewReader(reader)
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("gzip body: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fr := flate.NewReader(reader)
		defer fr.Close()
		reader = fr
	case "br":
		reader = brotli.NewReader(reader)
	}

	if limit > 0 {
		reader = io.LimitReader(reader, limit)
	}
	body, err := io.ReadAll(reader)
	if err != nil && len(body) == 0 && errors.Is(err, io.EOF) {
		return nil, nil
	}
	return body, err
}

// decodeCharset converts body to UTF-8 using the Content-Type charset, a
// BOM or a <meta> declaration, falling back to the raw bytes.
func decodeCharset(body []byte, contentType string) []byte {
	if len(body) == 0 {
		return body
	}
	enc, name, _ := charset.DetermineEncoding(body, contentType)
	if name == "utf-8" {
		return body
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return decoded
}

// isRetryableError checks if a network error warrants a retry. Cancellation
// of the caller's context never does.
func isRetryableError(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED)
}

// parseRetryAfter parses the Retry-After header value.
// Supports both integer seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil {
		if secs > 120 {
			secs = 120
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		d := time.Until(t)
		if d < 0 {
			return time.Second
		}
		if d > 2*time.Minute {
			return 2 * time.Minute
		}
		return d
	}
	return 5 * time.Second
}

func snippet(body []byte, n int) string {
	if len(body) > n {
		body = body[:n]
	}
	return strings.TrimSpace(string(body))
}
