package parser

import (
	"fmt"
	"regexp"

	"github.com/IshaanNene/hotboard/internal/types"
)

// Built-in specs. Desktop layouts come first in each chain; links for the
// mobile pages rendered by the browser fetcher follow.

// Post links on mobile pages, where only the anchor is available.
var (
	ppomppuMobileHref  = regexp.MustCompile(`zboard|view|hot`)
	bobaeMobileHref    = regexp.MustCompile(`view|read|best`)
	dcinsideMobileHref = regexp.MustCompile(`view|board`)
)

func ppomppuSpec() Spec {
	return Spec{
		Site: types.SitePpomppu,
		Chain: []Selector{
			CSS("tr.baseList"),
			XPath(`//table//tr[count(td)>=6][td[3]//a[contains(@href,"view.php")]]`),
			CSS("table tr"),
			Anchors("ul.bbsList li a, .list_wrap li a", ppomppuMobileHref),
			Anchors("table tr td a", ppomppuMobileHref),
			Anchors(`a[href*="zboard.php"]`, ppomppuMobileHref),
			Anchors(`a[href*="view.php"]`, ppomppuMobileHref),
			Anchors(".list a", ppomppuMobileHref),
		},
		MinCells:       6,
		TitleScope:     FieldRule{Cell: 3},
		TitleFromScope: true,
		HrefPattern:    regexp.MustCompile(`view\.php`),
		Author:         FieldRule{Cell: 4},
		DefaultAuthor:  "뽐뿌",
		Likes:          []FieldRule{{Cell: 6, Pattern: regexp.MustCompile(`^(\d+)`)}},
		Views:          []FieldRule{{Cell: 7}},
		Comments:       []FieldRule{{Selector: "span.list_comment2"}},
		TitleComments:  []*regexp.Regexp{regexp.MustCompile(`\s*(\d+)$`)},
		ExtraKeywords:  []string{"제휴"},
	}
}

func fmkoreaSpec() Spec {
	return Spec{
		Site: types.SiteFmkorea,
		Chain: []Selector{
			CSS(".fm_best_widget li"),
			CSS(".best-list li"),
			CSS(".widget li"),
			CSS(".fm_best li"),
			CSS("article"),
			CSS("a.hx"),
			CSS(".bd_lst li"),
			CSS(`a[href*="/best/"]`),
			CSS(`a[href*="document_srl"]`),
			CSS("li a"),
		},
		MaxElements:   50,
		HrefPattern:   regexp.MustCompile(`document_srl=\d+|/best2?/\d+|^(https?://[^/]+)?/\d{6,}`),
		Author:        FieldRule{Selector: "span.author"},
		AuthorCutset:  "/ ",
		DefaultAuthor: "fmkorea",
		Likes:         []FieldRule{{Selector: "span.count"}},
		Comments: []FieldRule{
			{Selector: "span.comment_count", Pattern: regexp.MustCompile(`\[(\d+)\]`)},
		},
		TitleComments: []*regexp.Regexp{regexp.MustCompile(`\s*\[(\d+)\]$`)},
	}
}

func bobaeSpec() Spec {
	return Spec{
		Site: types.SiteBobae,
		Chain: []Selector{
			CSS("tr:has(td.pl14)"),
			XPath(`//td[contains(concat(" ", normalize-space(@class), " "), " pl14 ")]/parent::tr`),
			CSS("table tbody tr"),
			Anchors("table tr td a", bobaeMobileHref),
			Anchors(`a[href*="view"]`, bobaeMobileHref),
			Anchors(".list a", bobaeMobileHref),
			Anchors(`div[class*="list"] a`, bobaeMobileHref),
		},
		MinCells:       2,
		TitleScope:     FieldRule{Cell: 2},
		TitleFromScope: true,
		Author:         FieldRule{Cell: 3},
		DefaultAuthor:  "보배드림",
		Likes:          []FieldRule{{Cell: 5}},
		Views:          []FieldRule{{Cell: 6}},
		TitleComments:  []*regexp.Regexp{regexp.MustCompile(`\s*\((\d+)\)`)},
	}
}

func dcinsideSpec() Spec {
	return Spec{
		Site: types.SiteDcinside,
		Chain: []Selector{
			CSS("tr.ub-content"),
			XPath(`//tr[contains(@class,"ub-content")]`),
			CSS(`tr[class*="content"]`),
			CSS(".gall_list tr"),
			CSS("tbody tr"),
			Anchors("tr.ub-content a", dcinsideMobileHref),
			Anchors(".gall_tit a", dcinsideMobileHref),
			Anchors(`a[href*="view"]`, dcinsideMobileHref),
			Anchors("td a", dcinsideMobileHref),
		},
		SkipSelectors: []string{
			`[data-type="icon_notice"]`,
			"em.icon_notice",
			`td.gall_num:contains("공지")`,
			`td.gall_num:contains("AD")`,
		},
		TitleScope:    FieldRule{Selector: "td.gall_tit"},
		Author:        FieldRule{Selector: "td.gall_writer"},
		DefaultAuthor: "디시",
		Views:         []FieldRule{{Selector: "td.gall_count"}},
		Likes:         []FieldRule{{Selector: "td.gall_recommend"}},
		Comments: []FieldRule{
			{Selector: "span.reply_num", Pattern: regexp.MustCompile(`\[(\d+)`)},
		},
		TitleComments: []*regexp.Regexp{
			regexp.MustCompile(`\s*\[(\d+)/\d+\]`),
			regexp.MustCompile(`\s*\[(\d+)\]`),
		},
	}
}

func ruliwebSpec() Spec {
	return Spec{
		Site: types.SiteRuliweb,
		Chain: []Selector{
			CSS("table.board_list_table tbody tr.table_body"),
			CSS("table.board_list tbody tr"),
			CSS("table tbody tr"),
			CSS(".board_list tr"),
			CSS("tr"),
		},
		SkipSelectors: []string{".notice", "tr.best_top_row"},
		TitleScope:    FieldRule{Selector: "td.subject"},
		HrefPattern:   regexp.MustCompile(`/read/\d+`),
		Author:        FieldRule{Selector: "td.writer"},
		DefaultAuthor: "루리웹",
		Likes:         []FieldRule{{Selector: "td.recomd"}},
		Views:         []FieldRule{{Selector: "td.hit"}},
		Comments: []FieldRule{
			{Selector: "span.num_reply", Pattern: regexp.MustCompile(`\((\d+)\)`)},
		},
	}
}

var builtin = map[types.Site]func() Spec{
	types.SitePpomppu:  ppomppuSpec,
	types.SiteFmkorea:  fmkoreaSpec,
	types.SiteBobae:    bobaeSpec,
	types.SiteDcinside: dcinsideSpec,
	types.SiteRuliweb:  ruliwebSpec,
}

// SpecFor returns a fresh copy of the built-in spec for site.
func SpecFor(site types.Site) (Spec, error) {
	build, ok := builtin[site]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", types.ErrUnknownSite, site)
	}
	return build(), nil
}
