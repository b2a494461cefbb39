// Package schemacache fetches and TTL-caches sink field schemas.
package schemacache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/jobclip/jobclip-cli/internal/model"
)

// Source provides the raw field definitions for one sink.
type Source interface {
	ID() string
	FetchSchema(ctx context.Context) ([]model.RawField, error)
}

// FetchError reports a failed schema fetch for one sink.
type FetchError struct {
	SinkID string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("schema fetch for sink %s: %v", e.SinkID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Cache holds one schema snapshot per sink, refreshed on TTL expiry.
// Concurrent misses for the same sink collapse into a single remote fetch.
type Cache struct {
	ttl     time.Duration
	sources map[string]Source

	mu      sync.RWMutex
	entries map[string]*model.SchemaSnapshot

	group singleflight.Group

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates a cache over the given schema sources. TTL outside the
// 10-60 minute range is clamped.
func New(sources []Source, ttl time.Duration) *Cache {
	if ttl < 10*time.Minute {
		ttl = 10 * time.Minute
	}
	if ttl > 60*time.Minute {
		ttl = 60 * time.Minute
	}
	byID := make(map[string]Source, len(sources))
	for _, s := range sources {
		byID[s.ID()] = s
	}
	return &Cache{
		ttl:     ttl,
		sources: byID,
		entries: make(map[string]*model.SchemaSnapshot),
		nowFunc: time.Now,
	}
}

// Get returns the snapshot for sinkID, fetching it when missing or expired.
func (c *Cache) Get(ctx context.Context, sinkID string) (*model.SchemaSnapshot, error) {
	c.mu.RLock()
	snap, ok := c.entries[sinkID]
	c.mu.RUnlock()
	if ok && !snap.Expired(c.nowFunc()) {
		return snap, nil
	}

	v, err, _ := c.group.Do(sinkID, func() (any, error) {
		// Another caller may have refreshed while we waited on the flight.
		c.mu.RLock()
		cur, ok := c.entries[sinkID]
		c.mu.RUnlock()
		if ok && !cur.Expired(c.nowFunc()) {
			return cur, nil
		}
		return c.refresh(ctx, sinkID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.SchemaSnapshot), nil
}

// Invalidate drops the cached snapshot for sinkID, forcing the next Get to
// fetch.
func (c *Cache) Invalidate(sinkID string) {
	c.mu.Lock()
	delete(c.entries, sinkID)
	c.mu.Unlock()
}

func (c *Cache) refresh(ctx context.Context, sinkID string) (*model.SchemaSnapshot, error) {
	src, ok := c.sources[sinkID]
	if !ok {
		return nil, &FetchError{SinkID: sinkID, Err: eris.New("unknown sink")}
	}

	raw, err := src.FetchSchema(ctx)
	if err != nil {
		return nil, &FetchError{SinkID: sinkID, Err: err}
	}

	snap, err := buildSnapshot(sinkID, raw, c.ttl, c.nowFunc())
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[sinkID] = snap
	c.mu.Unlock()

	zap.L().Debug("schema snapshot refreshed",
		zap.String("sink", sinkID),
		zap.String("fingerprint", snap.Fingerprint),
		zap.Int("fields", len(snap.Fields)),
		zap.Int("warnings", len(snap.Warnings)),
	)
	return snap, nil
}

// buildSnapshot validates raw fields into an immutable snapshot. Unknown
// kinds downgrade to text with a warning; entries missing a name or kind are
// skipped. Only a schema with no usable entries at all is an error.
func buildSnapshot(sinkID string, raw []model.RawField, ttl time.Duration, now time.Time) (*model.SchemaSnapshot, error) {
	fields := make([]model.FieldDefinition, 0, len(raw))
	var warnings []model.FieldWarning

	for _, r := range raw {
		if r.Name == "" || r.Kind == "" {
			continue
		}
		kind := model.FieldKind(r.Kind)
		if !kind.Supported() {
			warnings = append(warnings, model.FieldWarning{
				Field:   r.Name,
				Message: fmt.Sprintf("unsupported kind %q downgraded to text", r.Kind),
			})
			kind = model.KindText
		}
		def := model.FieldDefinition{Name: r.Name, Kind: kind, Required: r.Required}
		if kind.HasOptions() {
			def.Options = append([]string(nil), r.Options...)
		}
		fields = append(fields, def)
	}

	if len(fields) == 0 {
		return nil, &FetchError{SinkID: sinkID, Err: eris.New("schema has no usable fields")}
	}

	return &model.SchemaSnapshot{
		SinkID:      sinkID,
		Fields:      fields,
		Fingerprint: model.Fingerprint(fields),
		Warnings:    warnings,
		FetchedAt:   now,
		TTL:         ttl,
	}, nil
}
