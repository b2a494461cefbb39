// Package sink defines the record store abstraction and its Notion, Feishu
// Bitable, and local archive implementations. Each store exposes its schema
// for contract building and upserts normalized payloads keyed by a
// deduplication key.
package sink

import (
	"context"
	"fmt"

	"github.com/jobclip/jobclip-cli/internal/model"
)

// Record is one normalized payload bound for a store.
type Record struct {
	// Key is the deduplication key derived from the source URL. Stores
	// persist it so repeated clips of the same page update in place.
	Key string
	// Snapshot is the schema the payload was normalized against.
	Snapshot *model.SchemaSnapshot
	// Values maps field names to normalized values.
	Values map[string]any
}

// Store is a writable record destination. Implementations satisfy
// schemacache.Source as well, so one value serves both schema fetches and
// writes.
type Store interface {
	// ID identifies the store in results, logs, and cache keys.
	ID() string
	// FetchSchema returns the store's current field definitions.
	FetchSchema(ctx context.Context) ([]model.RawField, error)
	// FindByKey looks up an existing record by deduplication key.
	FindByKey(ctx context.Context, key string) (recordID string, found bool, err error)
	// Create inserts a new record and returns its store-native id.
	Create(ctx context.Context, rec Record) (recordID string, err error)
	// Update overwrites an existing record's fields.
	Update(ctx context.Context, recordID string, rec Record) error
}

// Error wraps a store failure with its origin and whether a retry could
// succeed.
type Error struct {
	Sink      string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err for the named sink.
func NewError(sinkID string, transient bool, err error) *Error {
	return &Error{Sink: sinkID, Transient: transient, Err: err}
}
