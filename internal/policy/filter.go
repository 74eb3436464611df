package policy

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/IshaanNene/hotboard/internal/config"
)

// Default title length bounds, in characters.
const (
	DefaultMinTitleLength = 5
	DefaultMaxTitleLength = 200
)

// DefaultKeywords is the shared denylist. Matching is case-insensitive
// substring matching, so short Latin entries such as "pr" also hit longer words.
var DefaultKeywords = []string{
	// advertising and promotion
	"광고", "홍보", "이벤트", "쿠폰", "할인", "무료배송", "적립", "캐시백", "포인트",
	"마케팅", "스폰서", "협찬", "pr", "프로모션",
	// shopping mall tags
	"[g마켓]", "[쿠팡]", "[11번가]", "[티몬]", "[위메프]", "[ssg]", "[지마켓]",
	"[옥션]", "[인터파크]", "[롯데온]", "[네이버쇼핑]",
	// deal boilerplate
	"원/무료", "원/무배", "무료)", "배송비", "택배",
	// board notices
	"공지사항", "갤러리 이용 안내", "청소년보호정책", "개인정보처리방침", "이용약관",
	// livestreams
	"live", "라이브", "실시간", "방송", "스트리밍",
	// moderation and housekeeping posts
	"공지", "안내", "스팸", "spam", "관리자", "운영진", "신고", "문의", "건의", "제보",
	"bot", "봇", "테스트", "test", "실험",
}

// Filter decides whether a listing entry must be dropped. It is immutable
// and safe for concurrent use.
type Filter struct {
	keywords []string
	minLen   int
	maxLen   int
}

// NewFilter builds a filter. A nil keyword list selects DefaultKeywords.
func NewFilter(keywords []string, minLen, maxLen int) *Filter {
	if keywords == nil {
		keywords = DefaultKeywords
	}
	f := &Filter{minLen: minLen, maxLen: maxLen}
	f.keywords = appendLower(nil, keywords)
	return f
}

// DefaultFilter returns the filter with built-in keywords and bounds.
func DefaultFilter() *Filter {
	return NewFilter(nil, DefaultMinTitleLength, DefaultMaxTitleLength)
}

// FromConfig builds the shared filter from configuration.
func FromConfig(cfg config.FilterConfig) *Filter {
	f := NewFilter(cfg.Keywords, cfg.MinTitleLength, cfg.MaxTitleLength)
	return f.With(cfg.ExtraKeywords...)
}

// With returns a copy of f that also rejects the given keywords.
func (f *Filter) With(keywords ...string) *Filter {
	if len(keywords) == 0 {
		return f
	}
	out := &Filter{minLen: f.minLen, maxLen: f.maxLen}
	out.keywords = appendLower(append([]string(nil), f.keywords...), keywords)
	return out
}

// Keywords returns the lowercased denylist.
func (f *Filter) Keywords() []string {
	return append([]string(nil), f.keywords...)
}

// IsExcluded reports whether a listing entry must be dropped.
func (f *Filter) IsExcluded(title, content string) bool {
	return f.Reason(title, content) != ""
}

// Reason returns why an entry is excluded, or "" when it is kept.
func (f *Filter) Reason(title, content string) string {
	haystack := strings.ToLower(title + " " + content)
	for _, kw := range f.keywords {
		if strings.Contains(haystack, kw) {
			return "keyword:" + kw
		}
	}

	trimmed := strings.TrimSpace(title)
	n := utf8.RuneCountInString(trimmed)
	if n < f.minLen {
		return "too_short"
	}
	if f.maxLen > 0 && n > f.maxLen {
		return "too_long"
	}
	if symbolsOnly(trimmed) {
		return "symbols_only"
	}
	return ""
}

// symbolsOnly reports whether s has no letter, digit, underscore or space.
func symbolsOnly(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' {
			return false
		}
	}
	return s != ""
}

func appendLower(dst, keywords []string) []string {
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			dst = append(dst, kw)
		}
	}
	return dst
}
