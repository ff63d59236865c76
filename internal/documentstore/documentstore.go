// Package documentstore is the system of record: named collections of
// schemaless JSON documents addressed by id. The cache layer treats it as
// an external collaborator — it only needs get-by-id, filtered list
// queries, and an atomic multi-document batch write.
package documentstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document id is absent from a collection.
var ErrNotFound = errors.New("documentstore: not found")

// Document is one schemaless record.
type Document map[string]any

// Query selects documents from a collection. Filters match on top-level
// field equality. OrderBy names a top-level field; Limit caps results.
type Query struct {
	Filters    map[string]any
	OrderBy    string
	Descending bool
	Limit      int
}

// BatchDoc pairs an id with its document for batched writes.
type BatchDoc struct {
	ID  string
	Doc Document
}

// Collection names used by this subsystem.
const (
	CollectionProducts      = "products"
	CollectionCategories    = "categories"
	CollectionOrders        = "orders"
	CollectionAdminLogs     = "admin_logs"
	CollectionCustomPricing = "custom_pricing"
)

// Store is the document store contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the document with the given id, or ErrNotFound.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Query returns documents matching q.
	Query(ctx context.Context, collection string, q Query) ([]Document, error)

	// Insert stores a new document under id.
	Insert(ctx context.Context, collection, id string, doc Document) error

	// Update merges fields into the document at id; ErrNotFound when absent.
	Update(ctx context.Context, collection, id string, fields Document) error

	// Delete removes the document at id; deleting an absent id is not an error.
	Delete(ctx context.Context, collection, id string) error

	// BatchWrite upserts all docs in one atomic operation.
	BatchWrite(ctx context.Context, collection string, docs []BatchDoc) error

	// Count returns the number of documents in a collection.
	Count(ctx context.Context, collection string) (int, error)
}
