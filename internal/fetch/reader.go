package fetch

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/jobclip/jobclip-cli/internal/resilience"
	"github.com/jobclip/jobclip-cli/pkg/jina"
)

// ReaderFetcher wraps a reader API client behind a circuit breaker. Three
// consecutive failures open the circuit for a minute, sending traffic
// straight to the next fetcher in the chain.
type ReaderFetcher struct {
	client  jina.Client
	breaker *resilience.CircuitBreaker
}

// NewReaderFetcher creates a ReaderFetcher over the given client.
func NewReaderFetcher(client jina.Client) *ReaderFetcher {
	return &ReaderFetcher{
		client:  client,
		breaker: resilience.NewCircuitBreaker(3, time.Minute),
	}
}

func (r *ReaderFetcher) Name() string { return "reader" }

// Supports returns true unless the circuit breaker is open.
func (r *ReaderFetcher) Supports(_ string) bool {
	return r.breaker.State() != resilience.CircuitOpen
}

// GetText fetches a URL via the reader API and validates the response.
func (r *ReaderFetcher) GetText(ctx context.Context, url string) (*Page, error) {
	var page *Page
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		resp, err := r.client.Read(ctx, url)
		if err != nil {
			return err
		}
		if needsFallback(resp) {
			return eris.New("reader: response needs fallback")
		}
		page = &Page{
			URL:     resp.Data.URL,
			Title:   resp.Data.Title,
			Content: resp.Data.Content,
			Source:  r.Name(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// needsFallback checks whether a reader response contains usable content or
// indicates the page is blocked or empty.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return true
	}

	lower := strings.ToLower(content)
	challengeSignatures := []string{
		"checking your browser",
		"enable javascript",
		"please enable cookies",
		"access denied",
		"403 forbidden",
		"just a moment",
		"cloudflare",
		"attention required",
	}
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) && len(content) < 1000 {
			return true
		}
	}
	return false
}
