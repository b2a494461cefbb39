// Package fetch turns a page URL into plain text for extraction. A chain of
// fetchers is tried in order: the reader API first, then a local HTTP
// fallback with block detection.
package fetch

import "context"

// Page is fetched page content ready for extraction.
type Page struct {
	URL     string
	Title   string
	Content string
	Source  string
}

// Fetcher fetches a single URL and returns its text content.
type Fetcher interface {
	GetText(ctx context.Context, url string) (*Page, error)
	Name() string
	Supports(url string) bool
}
