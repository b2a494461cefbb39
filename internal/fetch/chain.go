package fetch

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Chain tries fetchers in priority order, returning the first success.
type Chain struct {
	fetchers []Fetcher
}

// NewChain creates a Chain. Fetchers are tried in order; the first
// successful result wins.
func NewChain(fetchers ...Fetcher) *Chain {
	return &Chain{fetchers: fetchers}
}

// GetText tries each fetcher in order for a single URL.
func (c *Chain) GetText(ctx context.Context, url string) (*Page, error) {
	var lastErr error
	for _, f := range c.fetchers {
		if !f.Supports(url) {
			continue
		}
		page, err := f.GetText(ctx, url)
		if err == nil && page != nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "fetch: cancelled")
		}
		if err != nil {
			zap.L().Debug("fetch: fetcher failed, trying next",
				zap.String("fetcher", f.Name()),
				zap.String("url", url),
				zap.Error(err),
			)
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "fetch: all fetchers failed")
	}
	return nil, eris.Errorf("fetch: no suitable fetcher for url: %s", url)
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Supports(_ string) bool { return len(c.fetchers) > 0 }

var _ Fetcher = (*Chain)(nil)
