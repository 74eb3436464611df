// Package parser turns listing pages into ranked post candidates.
//
// Every site runs through the same SiteParser; what differs per site is a
// Spec: an ordered chain of row selectors plus rules for locating the title,
// author and counters inside each row.
package parser

import (
	"fmt"
	"log/slog"
	"regexp"

	"github.com/IshaanNene/hotboard/internal/policy"
	"github.com/IshaanNene/hotboard/internal/types"
)

// DefaultMinElements is how many rows a selector must match to be trusted.
const DefaultMinElements = 5

// DefaultMinAnchorText is the length a title anchor's text must exceed.
const DefaultMinAnchorText = 5

// FieldRule locates one value inside a row.
type FieldRule struct {
	// Selector is a CSS selector evaluated inside the row.
	Selector string

	// Cell is a 1-based <td> index within the row. Used when Selector is empty.
	Cell int

	// Pattern extracts the value; its first capture group wins.
	// Numeric rules without a pattern take the first digit run.
	Pattern *regexp.Regexp
}

// Spec describes how one site's listing page is read.
type Spec struct {
	Site types.Site

	// Chain is tried in order; the first link matching MinElements rows wins.
	Chain []Selector

	// MinElements overrides DefaultMinElements when > 0.
	MinElements int

	// MaxElements caps the rows examined. 0 means all.
	MaxElements int

	// SkipSelectors drop rows that match or contain them (notices, ads).
	SkipSelectors []string

	// MinCells drops rows with fewer <td> cells.
	MinCells int

	// TitleScope narrows where the title anchor is searched. Zero means the row.
	TitleScope FieldRule

	// TitleFromScope takes the full scope text as the title instead of the
	// anchor text, for sites that print counters next to the title.
	TitleFromScope bool

	// HrefPattern, when set, must match the title anchor's href.
	HrefPattern *regexp.Regexp

	// MinAnchorText overrides DefaultMinAnchorText when > 0.
	MinAnchorText int

	Author        FieldRule
	AuthorCutset  string
	DefaultAuthor string

	// Counter rules are tried in order; the first located value wins.
	Views    []FieldRule
	Likes    []FieldRule
	Comments []FieldRule

	// TitleComments are tried in order against the title. The first pattern
	// that matches is removed from the title everywhere it occurs; its first
	// match supplies the comment count when no comment rule matched.
	TitleComments []*regexp.Regexp

	// ExtraKeywords extend the shared exclusion filter for this site.
	ExtraKeywords []string
}

// Result is the outcome of parsing one listing page.
type Result struct {
	Site       types.Site
	URL        string
	Selector   string
	Elements   int
	Candidates []types.ScoredCandidate
	Skipped    int
	Excluded   int
	Duplicates int
}

// SiteParser executes a Spec against fetched documents.
type SiteParser struct {
	spec   Spec
	filter *policy.Filter
	topN   int
	logger *slog.Logger
}

// Option configures a SiteParser.
type Option func(*SiteParser)

// WithTopN sets how many candidates survive ranking.
func WithTopN(n int) Option {
	return func(p *SiteParser) { p.topN = n }
}

// WithMinElements overrides the spec's row threshold.
func WithMinElements(n int) Option {
	return func(p *SiteParser) {
		if n > 0 {
			p.spec.MinElements = n
		}
	}
}

// New creates a parser for spec. filter is shared across sites and extended
// with the spec's extra keywords.
func New(spec Spec, filter *policy.Filter, logger *slog.Logger, opts ...Option) *SiteParser {
	if filter == nil {
		filter = policy.DefaultFilter()
	}
	if spec.MinElements <= 0 {
		spec.MinElements = DefaultMinElements
	}
	if spec.MinAnchorText <= 0 {
		spec.MinAnchorText = DefaultMinAnchorText
	}

	p := &SiteParser{
		spec:   spec,
		filter: filter.With(spec.ExtraKeywords...),
		topN:   policy.DefaultTopN,
		logger: logger.With("component", "parser", "site", string(spec.Site)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Site returns the site this parser reads.
func (p *SiteParser) Site() types.Site { return p.spec.Site }

// Parse extracts, filters and ranks the candidates on doc. A page where no
// selector matches enough rows yields an empty result, not an error.
func (p *SiteParser) Parse(doc *types.Document) (*Result, error) {
	dom, err := doc.DOM()
	if err != nil {
		return nil, &types.ParseError{URL: doc.URLString(), Err: err}
	}

	res := &Result{Site: p.spec.Site, URL: doc.URLString()}

	rows, sel := p.selectRows(dom)
	if sel == nil {
		p.logger.Warn("no selector matched enough elements",
			"url", doc.URLString(),
			"min_elements", p.spec.MinElements,
		)
		return res, nil
	}
	res.Selector = sel.String()
	res.Elements = rows.Length()

	base := baseOrigin(doc)
	seen := make(map[string]bool)
	var kept []types.PostCandidate

	for i := range rows.Nodes {
		cand, err := p.extract(rows.Eq(i), sel, base)
		if err != nil {
			res.Skipped++
			p.logger.Debug("row skipped", "index", i, "reason", err)
			continue
		}
		if seen[cand.Title] {
			res.Duplicates++
			continue
		}
		seen[cand.Title] = true

		if reason := p.filter.Reason(cand.Title, ""); reason != "" {
			res.Excluded++
			p.logger.Debug("row excluded", "title", cand.Title, "reason", reason)
			continue
		}
		kept = append(kept, cand)
	}

	res.Candidates = policy.Rank(kept, p.topN)

	p.logger.Info("listing parsed",
		"url", doc.URLString(),
		"selector", res.Selector,
		"elements", res.Elements,
		"candidates", len(res.Candidates),
		"skipped", res.Skipped,
		"excluded", res.Excluded,
		"duplicates", res.Duplicates,
	)
	return res, nil
}

func (r *Result) String() string {
	return fmt.Sprintf("%s: %d candidates from %d elements via %q", r.Site, len(r.Candidates), r.Elements, r.Selector)
}
