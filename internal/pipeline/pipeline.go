// Package pipeline orchestrates a clip request end to end: fetch the page,
// snapshot the primary sink's schema, extract a record against it, then
// normalize and upsert into every configured sink independently.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jobclip/jobclip-cli/internal/contract"
	"github.com/jobclip/jobclip-cli/internal/extract"
	"github.com/jobclip/jobclip-cli/internal/fetch"
	"github.com/jobclip/jobclip-cli/internal/model"
	"github.com/jobclip/jobclip-cli/internal/normalize"
	"github.com/jobclip/jobclip-cli/internal/schemacache"
	"github.com/jobclip/jobclip-cli/internal/sink"
	"github.com/jobclip/jobclip-cli/internal/upsert"
)

// Stage identifies where in the pipeline a clip request failed.
type Stage string

const (
	StageValidate   Stage = "validate"
	StageFetch      Stage = "fetch"
	StageSchema     Stage = "schema"
	StageExtraction Stage = "extraction"
	StageNormalize  Stage = "normalization"
	StageWrite      Stage = "write"
)

// StageError wraps a failure with the pipeline stage it occurred in. Timeout
// is set when the underlying cause is a deadline expiry, so callers can tell
// a slow stage from a broken one without string matching.
type StageError struct {
	Stage   Stage
	Timeout bool
	Err     error
}

func (e *StageError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: timeout: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) *StageError {
	return &StageError{
		Stage:   stage,
		Timeout: errors.Is(err, context.DeadlineExceeded),
		Err:     err,
	}
}

// Clipper turns a page URL into records in one or more sinks.
type Clipper interface {
	Process(ctx context.Context, url string) (*model.ClipResult, error)
	ProcessMany(ctx context.Context, urls []string) []*model.ClipResult
}

// Pipeline is the production Clipper. The first store is the primary: its
// schema drives the extraction contract, and its schema being unreachable
// fails the whole request. Every other store degrades independently.
type Pipeline struct {
	fetcher       fetch.Fetcher
	cache         *schemacache.Cache
	extractor     *extract.Extractor
	coordinator   *upsert.Coordinator
	stores        []sink.Store
	normOpts      normalize.Options
	maxConcurrent int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithNormalizeOptions overrides the normalization settings.
func WithNormalizeOptions(opts normalize.Options) Option {
	return func(p *Pipeline) { p.normOpts = opts }
}

// WithMaxConcurrent bounds how many URLs ProcessMany clips at once.
func WithMaxConcurrent(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxConcurrent = n
		}
	}
}

// New creates a Pipeline over the given stores. Stores are used in the order
// given; the first is the primary.
func New(
	fetcher fetch.Fetcher,
	cache *schemacache.Cache,
	extractor *extract.Extractor,
	coordinator *upsert.Coordinator,
	stores []sink.Store,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		fetcher:       fetcher,
		cache:         cache,
		extractor:     extractor,
		coordinator:   coordinator,
		stores:        stores,
		normOpts:      normalize.DefaultOptions(),
		maxConcurrent: 5,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process clips one URL. A returned error means the request died before any
// sink was written; per-sink failures surface inside the result instead.
func (p *Pipeline) Process(ctx context.Context, url string) (*model.ClipResult, error) {
	start := time.Now()
	requestID := uuid.New().String()
	log := zap.L().With(zap.String("request_id", requestID), zap.String("url", url))

	if len(p.stores) == 0 {
		return nil, stageErr(StageValidate, eris.New("no sinks configured"))
	}

	key, err := upsert.CanonicalKey(url)
	if err != nil {
		return nil, stageErr(StageValidate, err)
	}

	page, err := p.fetcher.GetText(ctx, url)
	if err != nil {
		return nil, stageErr(StageFetch, err)
	}
	log.Debug("page fetched",
		zap.String("source", page.Source),
		zap.Int("content_len", len(page.Content)),
	)

	// The primary sink's schema defines what the model is asked for. If it
	// cannot be fetched there is nothing meaningful to extract.
	primary := p.stores[0]
	primarySnap, err := p.cache.Get(ctx, primary.ID())
	if err != nil {
		return nil, stageErr(StageSchema, err)
	}

	c := contract.Build(primarySnap)
	raw, err := p.extractor.Infer(ctx, page.Content, url, c)
	if err != nil {
		return nil, stageErr(StageExtraction, err)
	}

	outcomes := p.writeAll(ctx, key, raw)

	result := &model.ClipResult{
		RequestID: requestID,
		URL:       url,
		Status:    model.ComputeStatus(outcomes),
		Title:     titleOf(raw, c),
		Sinks:     outcomes,
		Elapsed:   time.Since(start),
	}
	log.Info("clip finished",
		zap.String("status", string(result.Status)),
		zap.String("title", result.Title),
		zap.Duration("elapsed", result.Elapsed),
	)
	return result, nil
}

// writeAll normalizes and upserts the record into every store concurrently.
// Each store gets the record normalized against its own schema snapshot, so
// a Notion-shaped extraction still lands cleanly in a Feishu table whose
// options differ.
func (p *Pipeline) writeAll(ctx context.Context, key string, raw *model.RawRecord) []model.SinkOutcome {
	outcomes := make([]model.SinkOutcome, len(p.stores))

	g, gctx := errgroup.WithContext(ctx)
	for i, store := range p.stores {
		g.Go(func() error {
			outcomes[i] = p.writeOne(gctx, store, key, raw)
			// Sink failures are isolated; never cancel the siblings.
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

func (p *Pipeline) writeOne(ctx context.Context, store sink.Store, key string, raw *model.RawRecord) model.SinkOutcome {
	outcome := model.SinkOutcome{SinkID: store.ID()}

	snap, err := p.cache.Get(ctx, store.ID())
	if err != nil {
		return p.failed(outcome, stageErr(StageSchema, err))
	}

	payload, err := normalize.Normalize(raw, snap, p.normOpts)
	if err != nil {
		return p.failed(outcome, stageErr(StageNormalize, err))
	}

	res, err := p.coordinator.Upsert(ctx, store, sink.Record{
		Key:      key,
		Snapshot: snap,
		Values:   payload.Values,
	})
	if err != nil {
		return p.failed(outcome, stageErr(StageWrite, err))
	}

	res.Warnings = payload.Warnings
	outcome.Result = res
	return outcome
}

func (p *Pipeline) failed(outcome model.SinkOutcome, err error) model.SinkOutcome {
	zap.L().Warn("sink write failed",
		zap.String("sink", outcome.SinkID),
		zap.Error(err),
	)
	outcome.Err = err
	outcome.ErrMsg = err.Error()
	return outcome
}

// ProcessMany clips a batch of URLs with bounded concurrency. Results come
// back in input order; a request that failed before reaching any sink is
// reported as a failed result rather than aborting the batch.
func (p *Pipeline) ProcessMany(ctx context.Context, urls []string) []*model.ClipResult {
	results := make([]*model.ClipResult, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.maxConcurrent)
	for i, url := range urls {
		g.Go(func() error {
			res, err := p.Process(gctx, url)
			if err != nil {
				res = &model.ClipResult{
					RequestID: uuid.New().String(),
					URL:       url,
					Status:    model.StatusFailed,
					Error:     err.Error(),
				}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// titleOf pulls the extracted title out of the raw record, if any.
func titleOf(raw *model.RawRecord, c model.ExtractionContract) string {
	field := c.FieldOfKind(model.KindTitle)
	if field == "" {
		return ""
	}
	s, _ := raw.Values[field].(string)
	return strings.TrimSpace(s)
}

var _ Clipper = (*Pipeline)(nil)
