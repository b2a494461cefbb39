// Package upsert derives deduplication keys from source URLs and drives
// idempotent find-then-write cycles against record stores.
package upsert

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/jobclip/jobclip-cli/internal/model"
	"github.com/jobclip/jobclip-cli/internal/resilience"
	"github.com/jobclip/jobclip-cli/internal/sink"
)

// CanonicalKey normalizes a source URL into a deduplication key: scheme and
// host are lowercased, default ports and the fragment are dropped, path and
// query survive untouched. Two clips of the same page always produce the
// same key.
func CanonicalKey(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", eris.Wrapf(err, "parse url %q", rawURL)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", eris.Errorf("unsupported scheme %q", u.Scheme)
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return "", eris.Errorf("url %q has no host", rawURL)
	}
	switch {
	case scheme == "http" && strings.HasSuffix(host, ":80"):
		host = strings.TrimSuffix(host, ":80")
	case scheme == "https" && strings.HasSuffix(host, ":443"):
		host = strings.TrimSuffix(host, ":443")
	}

	key := scheme + "://" + host + u.EscapedPath()
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key, nil
}

// Coordinator performs find-then-write upserts with per-sink retries.
type Coordinator struct {
	retry resilience.RetryConfig
}

// New creates a Coordinator. A zero retry config gets the defaults.
func New(retry resilience.RetryConfig) *Coordinator {
	if retry.MaxAttempts == 0 {
		retry = resilience.DefaultRetryConfig()
	}
	retry.ShouldRetry = shouldRetry
	return &Coordinator{retry: retry}
}

// Upsert looks the record up by its deduplication key and creates or updates
// accordingly. The lookup and the write are not atomic; two concurrent clips
// of the same new URL can both observe a miss and create twice. The stores'
// own uniqueness constraints reject the loser where they exist.
func (c *Coordinator) Upsert(ctx context.Context, store sink.Store, rec sink.Record) (*model.UpsertResult, error) {
	cfg := c.retry
	cfg.OnRetry = resilience.RetryLogger(store.ID(), "upsert")

	type lookup struct {
		recordID string
		found    bool
	}
	got, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (lookup, error) {
		id, found, err := store.FindByKey(ctx, rec.Key)
		return lookup{recordID: id, found: found}, err
	})
	if err != nil {
		return nil, err
	}

	if got.found {
		err := resilience.Do(ctx, cfg, func(ctx context.Context) error {
			return store.Update(ctx, got.recordID, rec)
		})
		if err != nil {
			return nil, err
		}
		zap.L().Debug("record updated",
			zap.String("sink", store.ID()),
			zap.String("record_id", got.recordID),
			zap.String("key", rec.Key),
		)
		return &model.UpsertResult{
			SinkID:    store.ID(),
			Operation: model.OpUpdate,
			RecordID:  got.recordID,
		}, nil
	}

	recordID, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) (string, error) {
		return store.Create(ctx, rec)
	})
	if err != nil {
		return nil, err
	}
	zap.L().Debug("record created",
		zap.String("sink", store.ID()),
		zap.String("record_id", recordID),
		zap.String("key", rec.Key),
	)
	return &model.UpsertResult{
		SinkID:    store.ID(),
		Operation: model.OpCreate,
		RecordID:  recordID,
	}, nil
}

// shouldRetry honors the sink's own transience classification before falling
// back to the generic one.
func shouldRetry(err error) bool {
	var se *sink.Error
	if errors.As(err, &se) {
		return se.Transient
	}
	return resilience.IsTransient(err)
}
