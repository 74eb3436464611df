package fetcher

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// MobileUserAgent is sent by the browser fetcher alongside device emulation.
const MobileUserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1"

// applyBrowserHeaders fills in the navigation headers a desktop Chrome sends
// on a top-level page load. Headers already present are left untouched.
func applyBrowserHeaders(h http.Header) {
	setDefault := func(key, value string) {
		if h.Get(key) == "" {
			h.Set(key, value)
		}
	}
	setDefault("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	setDefault("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	setDefault("Accept-Encoding", "gzip, deflate, br")
	setDefault("Connection", "keep-alive")
	setDefault("Upgrade-Insecure-Requests", "1")
	setDefault("Sec-Fetch-Dest", "document")
	setDefault("Sec-Fetch-Mode", "navigate")
	setDefault("Sec-Fetch-Site", "none")
	setDefault("Sec-Fetch-User", "?1")

	// Only Chromium sends client hints, and they must agree with the UA.
	if major, platform, mobile, ok := clientHints(h.Get("User-Agent")); ok {
		setDefault("Sec-Ch-Ua", fmt.Sprintf(`"Chromium";v="%s", "Not?A_Brand";v="8", "Google Chrome";v="%s"`, major, major))
		if mobile {
			setDefault("Sec-Ch-Ua-Mobile", "?1")
		} else {
			setDefault("Sec-Ch-Ua-Mobile", "?0")
		}
		setDefault("Sec-Ch-Ua-Platform", `"`+platform+`"`)
	}
}

var chromeVersion = regexp.MustCompile(`Chrome/(\d+)`)

// clientHints derives the Sec-Ch-Ua values a browser with this User-Agent
// would send. ok is false for non-Chromium agents.
func clientHints(ua string) (major, platform string, mobile, ok bool) {
	m := chromeVersion.FindStringSubmatch(ua)
	if m == nil {
		return "", "", false, false
	}
	switch {
	case strings.Contains(ua, "Android"):
		platform = "Android"
	case strings.Contains(ua, "Windows"):
		platform = "Windows"
	case strings.Contains(ua, "Macintosh"), strings.Contains(ua, "Mac OS X"):
		platform = "macOS"
	case strings.Contains(ua, "CrOS"):
		platform = "Chrome OS"
	case strings.Contains(ua, "Linux"):
		platform = "Linux"
	default:
		platform = "Unknown"
	}
	return m[1], platform, strings.Contains(ua, "Mobile"), true
}

// extraHeaderPairs flattens headers into rod's key/value list, skipping the
// ones the browser must own.
func extraHeaderPairs(h http.Header) []string {
	pairs := make([]string, 0, len(h)*2)
	for k, vals := range h {
		switch http.CanonicalHeaderKey(k) {
		case "User-Agent", "Accept-Encoding", "Connection", "Host":
			continue
		}
		for _, v := range vals {
			pairs = append(pairs, k, v)
		}
	}
	return pairs
}
