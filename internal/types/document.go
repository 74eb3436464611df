package types

import (
	"bytes"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Document is the raw markup of one fetched listing page.
type Document struct {
	// Request is a reference to the original request.
	Request *Request

	// StatusCode is the HTTP status code. Browser fetches report 200.
	StatusCode int

	// Body is the page markup, already decoded to UTF-8.
	Body []byte

	// FinalURL is the URL after any redirects.
	FinalURL string

	// FetchDuration is how long the fetch took.
	FetchDuration time.Duration

	// FetchedAt is when the page was received.
	FetchedAt time.Time

	dom *goquery.Document
}

// NewDocument creates a Document for a completed fetch.
func NewDocument(req *Request, statusCode int, body []byte, finalURL string, duration time.Duration) *Document {
	if finalURL == "" && req != nil {
		finalURL = req.URLString()
	}
	return &Document{
		Request:       req,
		StatusCode:    statusCode,
		Body:          body,
		FinalURL:      finalURL,
		FetchDuration: duration,
		FetchedAt:     time.Now(),
	}
}

// NewDocumentString wraps literal markup, mostly for fixtures.
func NewDocumentString(rawURL, markup string) (*Document, error) {
	req, err := NewRequest(rawURL)
	if err != nil {
		return nil, err
	}
	return NewDocument(req, 200, []byte(markup), rawURL, 0), nil
}

// DOM returns the parsed goquery document, lazily initializing it.
func (d *Document) DOM() (*goquery.Document, error) {
	if d.dom != nil {
		return d.dom, nil
	}
	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(d.Body))
	if err != nil {
		return nil, err
	}
	d.dom = dom
	return dom, nil
}

// URLString returns the originally requested URL.
func (d *Document) URLString() string {
	if d.Request == nil {
		return d.FinalURL
	}
	return d.Request.URLString()
}

// IsSuccess returns true if the status is 2xx.
func (d *Document) IsSuccess() bool {
	return d.StatusCode >= 200 && d.StatusCode < 300
}
