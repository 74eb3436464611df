package types

import (
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Request describes a single listing page to fetch.
type Request struct {
	// URL is the listing URL to fetch.
	URL *url.URL

	// Site is the community the listing belongs to.
	Site Site

	// Headers are extra HTTP headers sent with the request.
	Headers http.Header

	// Timeout overrides the fetcher timeout for this request.
	Timeout time.Duration

	// CreatedAt is when this request was created.
	CreatedAt time.Time
}

// NewRequest creates a GET request for rawURL.
func NewRequest(rawURL string) (*Request, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidURL, rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidURL, rawURL)
	}

	return &Request{
		URL:       u,
		Headers:   make(http.Header),
		CreatedAt: time.Now(),
	}, nil
}

// URLString returns the string representation of the request URL.
func (r *Request) URLString() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// Origin returns scheme://host of the request URL.
func (r *Request) Origin() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.Scheme + "://" + r.URL.Host
}
