package types

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrMaxRetries       = errors.New("max retries exceeded")
	ErrBlocked          = errors.New("blocked by anti-bot challenge")
	ErrEmptyResponse    = errors.New("empty response body")
	ErrInvalidURL       = errors.New("invalid URL")
	ErrUnknownSite      = errors.New("unknown site")
	ErrInvalidCandidate = errors.New("invalid post candidate")
	ErrNoElements       = errors.New("no selector matched enough elements")
)

// FetchKind classifies why a fetch failed.
type FetchKind string

const (
	FetchTransient FetchKind = "transient"
	FetchStatus    FetchKind = "status"
	FetchBlocked   FetchKind = "blocked"
	FetchInvalid   FetchKind = "invalid"
)

// FetchError wraps errors that occur during fetching.
type FetchError struct {
	URL        string
	Kind       FetchKind
	StatusCode int
	Attempts   int
	Err        error
	Retryable  bool
	RetryAfter time.Duration // populated from Retry-After header on HTTP 429
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s error for %s (status %d): %v", e.Kind, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s error for %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// IsBlocked reports whether err is a soft-block fetch failure.
func IsBlocked(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Kind == FetchBlocked {
		return true
	}
	return errors.Is(err, ErrBlocked)
}

// ParseError wraps errors that occur during parsing.
type ParseError struct {
	URL      string
	Selector string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error for %s (selector=%q): %v", e.URL, e.Selector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("storage error (%s %s): %v", e.Backend, e.Op, e.Err)
	}
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// SiteError records a failure isolated to one site during a crawl run.
type SiteError struct {
	Site  Site
	Stage string
	Err   error
}

func (e *SiteError) Error() string {
	return fmt.Sprintf("site %s failed at %s: %v", e.Site, e.Stage, e.Err)
}

func (e *SiteError) Unwrap() error { return e.Err }
