package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/autolead-ai-platform/internal/llm"
)

// Indexer writes documents and items, re-embedding only when the embedded
// text changed or no vector is stored yet.
type Indexer struct {
	store    Store
	embedder llm.Embedder
}

func NewIndexer(store Store, embedder llm.Embedder) *Indexer {
	if store == nil || embedder == nil {
		panic("knowledge: store and embedder required")
	}
	return &Indexer{store: store, embedder: embedder}
}

// SaveDocument validates and upserts doc.
func (x *Indexer) SaveDocument(ctx context.Context, doc *Document) error {
	if strings.TrimSpace(doc.TenantID) == "" || strings.TrimSpace(doc.Content) == "" {
		return errors.New("knowledge: document needs tenant and content")
	}
	if _, ok := ParseCategory(string(doc.Category)); !ok {
		return fmt.Errorf("knowledge: unknown category %q", doc.Category)
	}
	stale := true
	if doc.ID != "" {
		existing, err := x.store.GetDocument(ctx, doc.ID)
		switch {
		case err == nil:
			stale = existing.Content != doc.Content || !existing.Indexed
		case !errors.Is(err, ErrNotFound):
			return err
		}
	}
	doc.Embedding = nil
	if stale {
		vec, err := x.embedder.Embed(ctx, doc.Title+"\n"+doc.Content)
		if err != nil {
			return fmt.Errorf("knowledge: embed document: %w", err)
		}
		doc.Embedding = vec
	}
	return x.store.UpsertDocument(ctx, doc)
}

// SaveItem validates and upserts item.
func (x *Indexer) SaveItem(ctx context.Context, item *Item) error {
	if strings.TrimSpace(item.TenantID) == "" || strings.TrimSpace(item.Make) == "" {
		return errors.New("knowledge: item needs tenant and make")
	}
	stale := true
	if item.ID != "" {
		existing, err := x.store.GetItem(ctx, item.ID)
		switch {
		case err == nil:
			stale = existing.Description() != item.Description() || !existing.Indexed
		case !errors.Is(err, ErrNotFound):
			return err
		}
	}
	item.Embedding = nil
	if stale {
		vec, err := x.embedder.Embed(ctx, item.Description())
		if err != nil {
			return fmt.Errorf("knowledge: embed item: %w", err)
		}
		item.Embedding = vec
	}
	return x.store.UpsertItem(ctx, item)
}
