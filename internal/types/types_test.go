package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseSite(t *testing.T) {
	s, err := ParseSite(" FMKorea ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != SiteFmkorea {
		t.Errorf("expected fmkorea, got %q", s)
	}

	if _, err := ParseSite("dogdrip"); !errors.Is(err, ErrUnknownSite) {
		t.Errorf("expected ErrUnknownSite, got %v", err)
	}
}

func TestCandidateValidate(t *testing.T) {
	ok := PostCandidate{Title: "제목입니다", URL: "https://a.com/1", Site: SiteBobae}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid candidate rejected: %v", err)
	}

	bad := []PostCandidate{
		{Title: "", URL: "https://a.com/1", Site: SiteBobae},
		{Title: "제목입니다", URL: "/relative", Site: SiteBobae},
		{Title: "제목입니다", URL: "https://a.com/1"},
		{Title: "제목입니다", URL: "https://a.com/1", Site: SiteBobae, Views: -1},
	}
	for i, c := range bad {
		if err := c.Validate(); !errors.Is(err, ErrInvalidCandidate) {
			t.Errorf("case %d: expected ErrInvalidCandidate, got %v", i, err)
		}
	}
}

func TestIsBlocked(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &FetchError{URL: "https://x", Kind: FetchBlocked, Err: ErrBlocked})
	if !IsBlocked(err) {
		t.Error("expected wrapped blocked error to be detected")
	}
	if IsBlocked(&FetchError{Kind: FetchStatus, StatusCode: 404, Err: errors.New("not found")}) {
		t.Error("status failure must not count as blocked")
	}
}

func TestDocumentDOM(t *testing.T) {
	doc, err := NewDocumentString("https://example.com/list", `<ul><li>a</li><li>b</li></ul>`)
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	dom, err := doc.DOM()
	if err != nil {
		t.Fatalf("dom: %v", err)
	}
	if n := dom.Find("li").Length(); n != 2 {
		t.Errorf("expected 2 items, got %d", n)
	}
	again, _ := doc.DOM()
	if again != dom {
		t.Error("expected DOM to be cached")
	}
}
