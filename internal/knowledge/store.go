package knowledge

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a document or item id is unknown.
var ErrNotFound = errors.New("knowledge: not found")

// Store is the vector-indexed persistence for both corpora.
type Store interface {
	// TopDocuments returns the tenant's k most similar documents, best first.
	TopDocuments(ctx context.Context, tenantID string, query []float32, k int) ([]ScoredDocument, error)
	// TopInventory returns the tenant's k most similar unsold items, best first.
	TopInventory(ctx context.Context, tenantID string, query []float32, k int) ([]ScoredItem, error)

	GetDocument(ctx context.Context, id string) (*Document, error)
	UpsertDocument(ctx context.Context, doc *Document) error
	GetItem(ctx context.Context, id string) (*Item, error)
	UpsertItem(ctx context.Context, item *Item) error
}
