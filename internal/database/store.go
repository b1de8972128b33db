package database

import (
	"context"
)

// Document is a schemaless record as delivered by the stream.
type Document map[string]any

// Collection defines the operations the ingestion pipeline needs from a
// destination. Implementations must be safe to call repeatedly from a single
// consumer; no transaction semantics are required.
type Collection interface {
	// Name returns the collection name (bucket or table key).
	Name() string

	// Count returns the number of documents currently stored.
	Count(ctx context.Context) (int, error)

	// Insert appends a document.
	Insert(ctx context.Context, doc Document) error
}
