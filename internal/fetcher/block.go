package fetcher

import (
	"strings"
)

// Challenge identifies the kind of anti-bot page a site served.
type Challenge string

const (
	ChallengeMarker     Challenge = "marker"
	ChallengeCloudflare Challenge = "cloudflare"
	ChallengeReCaptcha  Challenge = "recaptcha"
	ChallengeHCaptcha   Challenge = "hcaptcha"
	ChallengeTurnstile  Challenge = "turnstile"
)

// cloudflareMarkers appear only on interstitial pages. Script paths under
// /cdn-cgi/challenge-platform/ are also injected into ordinary pages and do
// not count.
var cloudflareMarkers = []string{
	"cf-browser-verification",
	"cf-challenge-running",
	"window._cf_chl_opt",
	"<title>just a moment...</title>",
}

// DetectChallenge checks a page for anti-bot interstitials. Configured
// markers are matched case-sensitively as literal text; the returned string
// names what matched.
func DetectChallenge(html string, markers []string) (Challenge, string) {
	for _, m := range markers {
		if m != "" && strings.Contains(html, m) {
			return ChallengeMarker, m
		}
	}

	htmlLower := strings.ToLower(html)

	for _, m := range cloudflareMarkers {
		if strings.Contains(htmlLower, m) {
			return ChallengeCloudflare, m
		}
	}

	// Only widget markup with a site key counts; plain mentions do not.
	if strings.Contains(htmlLower, "g-recaptcha") {
		if siteKey := extractBetween(html, `data-sitekey="`, `"`); siteKey != "" {
			return ChallengeReCaptcha, siteKey
		}
	}
	if strings.Contains(htmlLower, "h-captcha") {
		if siteKey := extractBetween(html, `data-sitekey="`, `"`); siteKey != "" {
			return ChallengeHCaptcha, siteKey
		}
	}
	if strings.Contains(htmlLower, "cf-turnstile") {
		if siteKey := extractBetween(html, `data-sitekey="`, `"`); siteKey != "" {
			return ChallengeTurnstile, siteKey
		}
	}

	return "", ""
}

// extractBetween extracts a substring between two delimiters.
func extractBetween(s, start, end string) string {
	idx := strings.Index(s, start)
	if idx < 0 {
		return ""
	}
	s = s[idx+len(start):]
	idx = strings.Index(s, end)
	if idx < 0 {
		return ""
	}
	return s[:idx]
}
