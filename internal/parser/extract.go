package parser

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/hotboard/internal/types"
)

var (
	errNoAnchor   = errors.New("no title anchor")
	errEmptyTitle = errors.New("empty title")
	errSkipRow    = errors.New("row matches skip selector")
	errFewCells   = errors.New("too few cells")
	errNoScope    = errors.New("title scope not found")

	digitRun   = regexp.MustCompile(`\d[\d,]*`)
	whitespace = regexp.MustCompile(`\s+`)
)

// extract reads one row. Any error means the row is skipped.
func (p *SiteParser) extract(row *goquery.Selection, link *Selector, base string) (types.PostCandidate, error) {
	spec := &p.spec
	cand := types.PostCandidate{Site: spec.Site}

	for _, skip := range spec.SkipSelectors {
		if row.Is(skip) || row.Find(skip).Length() > 0 {
			return cand, fmt.Errorf("%w: %s", errSkipRow, skip)
		}
	}

	hrefPattern := spec.HrefPattern
	if link.Href != nil {
		hrefPattern = link.Href
	}

	// Anchor rows have no cells; the anchor is both scope and title.
	cells := row.Find("td")
	scope := row
	fromScope := spec.TitleFromScope && !link.Anchor
	if !link.Anchor {
		if spec.MinCells > 0 && cells.Length() < spec.MinCells {
			return cand, fmt.Errorf("%w: %d < %d", errFewCells, cells.Length(), spec.MinCells)
		}
		if scope = locate(row, cells, spec.TitleScope); scope == nil {
			return cand, errNoScope
		}
	}

	anchor := p.titleAnchor(scope, hrefPattern)
	if anchor == nil {
		return cand, errNoAnchor
	}

	title := normalizeText(anchor.Text())
	if fromScope {
		title = normalizeText(scope.Text())
	}

	comments, commentsFound, err := firstNumber(row, cells, spec.Comments)
	if err != nil {
		return cand, err
	}
	// Title patterns written for full cell text do not apply to bare anchors.
	titleComments := spec.TitleComments
	if link.Anchor && spec.TitleFromScope {
		titleComments = nil
	}
	for _, re := range titleComments {
		m := re.FindStringSubmatchIndex(title)
		if m == nil {
			continue
		}
		if !commentsFound && len(m) >= 4 && m[2] >= 0 {
			n, err := parseCount(title[m[2]:m[3]])
			if err != nil {
				return cand, err
			}
			comments = n
		}
		title = normalizeText(re.ReplaceAllString(title, ""))
		break
	}
	if title == "" {
		return cand, errEmptyTitle
	}
	cand.Title = title

	href, _ := anchor.Attr("href")
	cand.URL = resolveURL(base, href)
	cand.Comments = comments

	if cand.Views, _, err = firstNumber(row, cells, spec.Views); err != nil {
		return cand, err
	}
	if cand.Likes, _, err = firstNumber(row, cells, spec.Likes); err != nil {
		return cand, err
	}

	cand.Author = spec.DefaultAuthor
	if !spec.Author.isZero() {
		if el := locate(row, cells, spec.Author); el != nil {
			author := normalizeText(el.Text())
			if spec.AuthorCutset != "" {
				author = strings.TrimSpace(strings.Trim(author, spec.AuthorCutset))
			}
			if author != "" {
				cand.Author = author
			}
		}
	}

	return cand, nil
}

// titleAnchor returns the anchor with the longest text above the minimum
// length, searching scope and scope itself.
func (p *SiteParser) titleAnchor(scope *goquery.Selection, hrefPattern *regexp.Regexp) *goquery.Selection {
	anchors := scope.Find("a")
	if scope.Is("a") {
		anchors = anchors.AddSelection(scope)
	}

	var best *goquery.Selection
	bestLen := p.spec.MinAnchorText
	anchors.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || !usableHref(href) {
			return
		}
		if hrefPattern != nil && !hrefPattern.MatchString(href) {
			return
		}
		n := utf8.RuneCountInString(normalizeText(a.Text()))
		if n > bestLen {
			best, bestLen = a, n
		}
	})
	return best
}

func (r FieldRule) isZero() bool {
	return r.Selector == "" && r.Cell == 0
}

// locate resolves a rule to an element inside row. A zero rule returns row.
func locate(row, cells *goquery.Selection, rule FieldRule) *goquery.Selection {
	switch {
	case rule.Selector != "":
		el := row.Find(rule.Selector).First()
		if el.Length() == 0 {
			return nil
		}
		return el
	case rule.Cell > 0:
		if cells.Length() < rule.Cell {
			return nil
		}
		return cells.Eq(rule.Cell - 1)
	default:
		return row
	}
}

// firstNumber evaluates rules in order and returns the first located value.
// Located elements without digits count as 0.
func firstNumber(row, cells *goquery.Selection, rules []FieldRule) (int, bool, error) {
	for _, rule := range rules {
		el := locate(row, cells, rule)
		if el == nil {
			continue
		}
		text := normalizeText(el.Text())
		if rule.Pattern != nil {
			m := rule.Pattern.FindStringSubmatch(text)
			if m == nil {
				continue
			}
			raw := m[0]
			if len(m) > 1 {
				raw = m[1]
			}
			n, err := parseCount(raw)
			return n, true, err
		}
		n, err := ExtractNumber(text)
		return n, true, err
	}
	return 0, false, nil
}

// ExtractNumber returns the first digit run in s with thousands separators
// removed, or 0 when s has no digits.
func ExtractNumber(s string) (int, error) {
	m := digitRun.FindString(s)
	if m == "" {
		return 0, nil
	}
	return parseCount(m)
}

func parseCount(s string) (int, error) {
	n, err := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", s, err)
	}
	return n, nil
}

// resolveURL makes href absolute against the site origin.
func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	switch {
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	case strings.HasPrefix(href, "/"):
		return base + href
	case strings.HasPrefix(href, "http://"), strings.HasPrefix(href, "https://"):
		return href
	default:
		return base + "/" + href
	}
}

// baseOrigin is scheme://host of the page the document came from.
func baseOrigin(doc *types.Document) string {
	raw := doc.FinalURL
	if raw == "" {
		raw = doc.URLString()
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		if doc.Request != nil {
			return doc.Request.Origin()
		}
		return ""
	}
	return u.Scheme + "://" + u.Host
}

func usableHref(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return false
	}
	lower := strings.ToLower(href)
	return !strings.HasPrefix(lower, "javascript:") && !strings.HasPrefix(lower, "mailto:")
}

func normalizeText(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
