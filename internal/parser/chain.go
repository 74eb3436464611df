package parser

import (
	"regexp"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
)

// SelectorKind is the query language of a chain link.
type SelectorKind int

const (
	KindCSS SelectorKind = iota
	KindXPath
)

// Selector is one link in a fallback chain.
type Selector struct {
	Kind SelectorKind
	Expr string

	// Anchor marks a link whose matches are title anchors, not table rows.
	// Cell rules, MinCells and TitleScope do not apply to them.
	Anchor bool

	// Href replaces the spec's HrefPattern for this link when set.
	Href *regexp.Regexp
}

// CSS builds a CSS chain link.
func CSS(expr string) Selector { return Selector{Kind: KindCSS, Expr: expr} }

// XPath builds an XPath chain link.
func XPath(expr string) Selector { return Selector{Kind: KindXPath, Expr: expr} }

// Anchors builds a CSS link that selects title anchors directly, as found on
// the mobile pages the browser fetcher renders.
func Anchors(expr string, href *regexp.Regexp) Selector {
	return Selector{Kind: KindCSS, Expr: expr, Anchor: true, Href: href}
}

func (s Selector) String() string {
	switch {
	case s.Kind == KindXPath:
		return "xpath:" + s.Expr
	case s.Anchor:
		return "anchors:" + s.Expr
	}
	return s.Expr
}

// Match returns the elements s selects in dom.
func (s Selector) Match(dom *goquery.Document) (*goquery.Selection, error) {
	if s.Kind == KindCSS {
		return dom.Find(s.Expr), nil
	}
	var found *goquery.Selection
	for _, root := range dom.Nodes {
		nodes, err := htmlquery.QueryAll(root, s.Expr)
		if err != nil {
			return nil, err
		}
		found = dom.FindNodes(nodes...)
	}
	if found == nil {
		found = dom.FindNodes()
	}
	return found, nil
}

// selectRows walks the chain and returns the first link's rows that meet
// the element threshold, capped at MaxElements. It returns a nil selector
// when no link qualifies.
func (p *SiteParser) selectRows(dom *goquery.Document) (*goquery.Selection, *Selector) {
	for i := range p.spec.Chain {
		link := p.spec.Chain[i]
		rows, err := link.Match(dom)
		if err != nil {
			p.logger.Warn("invalid selector", "selector", link.String(), "error", err)
			continue
		}
		n := rows.Length()
		p.logger.Debug("selector tried", "selector", link.String(), "matches", n)
		if n < p.spec.MinElements {
			continue
		}
		if p.spec.MaxElements > 0 && n > p.spec.MaxElements {
			rows = rows.Slice(0, p.spec.MaxElements)
		}
		return rows, &link
	}
	return nil, nil
}
