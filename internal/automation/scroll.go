// Package automation drives in-page interactions for the browser fetcher.
package automation

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
)

// Scroller is the subset of page behaviour infinite scrolling needs.
type Scroller interface {
	ScrollHeight() (int, error)
	ScrollTo(y int) error
}

// Page adapts a Rod page to Scroller.
type Page struct {
	page *rod.Page
}

// NewPage wraps a Rod page.
func NewPage(page *rod.Page) *Page {
	return &Page{page: page}
}

// ScrollHeight returns document.body.scrollHeight.
func (p *Page) ScrollHeight() (int, error) {
	res, err := p.page.Eval(`() => document.body.scrollHeight`)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

// ScrollTo scrolls the window to vertical offset y.
func (p *Page) ScrollTo(y int) error {
	_, err := p.page.Eval(`(y) => window.scrollTo(0, y)`, y)
	return err
}

// ScrollUntilStable scrolls to the bottom until the page height stops
// growing or maxScrolls is reached, then returns to the top so lazy
// content above the fold is rendered. It reports how many scrolls ran.
func ScrollUntilStable(ctx context.Context, s Scroller, maxScrolls int, delay time.Duration, logger *slog.Logger) (int, error) {
	lastHeight := -1
	scrolls := 0

	for scrolls < maxScrolls {
		if err := ctx.Err(); err != nil {
			return scrolls, err
		}
		height, err := s.ScrollHeight()
		if err != nil {
			return scrolls, err
		}
		if height == lastHeight {
			break
		}
		lastHeight = height

		if err := s.ScrollTo(height); err != nil {
			return scrolls, err
		}
		scrolls++

		select {
		case <-ctx.Done():
			return scrolls, ctx.Err()
		case <-time.After(delay):
		}
	}

	if err := s.ScrollTo(0); err != nil {
		return scrolls, err
	}

	logger.Debug("scroll settled", "scrolls", scrolls, "height", lastHeight)
	return scrolls, nil
}
