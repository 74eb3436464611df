package types

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Site identifies a supported community.
type Site string

const (
	SitePpomppu  Site = "ppomppu"
	SiteFmkorea  Site = "fmkorea"
	SiteBobae    Site = "bobae"
	SiteDcinside Site = "dcinside"
	SiteRuliweb  Site = "ruliweb"
)

// AllSites lists the supported sites in default crawl order.
var AllSites = []Site{SitePpomppu, SiteFmkorea, SiteBobae, SiteDcinside, SiteRuliweb}

// ParseSite resolves a site name, case-insensitively.
func ParseSite(name string) (Site, error) {
	s := Site(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range AllSites {
		if s == known {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSite, name)
}

// CategoryPopular is the only category posts are stored under.
const CategoryPopular = "인기"

// PostCandidate is one listing entry extracted from a page.
type PostCandidate struct {
	Title    string `json:"title"`
	URL      string `json:"url"`
	Site     Site   `json:"site"`
	Author   string `json:"author"`
	Views    int    `json:"views"`
	Likes    int    `json:"likes"`
	Comments int    `json:"comments"`
}

// Validate checks the fields the store relies on.
func (c PostCandidate) Validate() error {
	if strings.TrimSpace(c.Title) == "" {
		return fmt.Errorf("%w: empty title", ErrInvalidCandidate)
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: url %q is not absolute", ErrInvalidCandidate, c.URL)
	}
	if c.Site == "" {
		return fmt.Errorf("%w: missing site", ErrInvalidCandidate)
	}
	if c.Views < 0 || c.Likes < 0 || c.Comments < 0 {
		return fmt.Errorf("%w: negative counter", ErrInvalidCandidate)
	}
	return nil
}

// ScoredCandidate pairs a candidate with its popularity score.
type ScoredCandidate struct {
	PostCandidate
	Score int `json:"score"`
}

// Post is a persisted listing entry, unique by URL.
type Post struct {
	ID        int64     `json:"id"         bson:"_id"`
	Title     string    `json:"title"      bson:"title"`
	URL       string    `json:"url"        bson:"url"`
	Site      Site      `json:"site"       bson:"site"`
	Category  string    `json:"category"   bson:"category"`
	Author    string    `json:"author"     bson:"author"`
	Views     int       `json:"views"      bson:"views"`
	Likes     int       `json:"likes"      bson:"likes"`
	Comments  int       `json:"comments"   bson:"comments"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	CrawledAt time.Time `json:"crawled_at" bson:"crawled_at"`
}
