package knowledge

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore ranks both corpora with an in-process cosine similarity. It
// backs local runs without Postgres and the package tests.
type MemoryStore struct {
	mu    sync.RWMutex
	docs  map[string]Document
	items map[string]Item
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string]Document{}, items: map[string]Item{}}
}

func (s *MemoryStore) TopDocuments(ctx context.Context, tenantID string, query []float32, k int) ([]ScoredDocument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ScoredDocument
	for _, d := range s.docs {
		if d.TenantID != tenantID || len(d.Embedding) == 0 {
			continue
		}
		out = append(out, ScoredDocument{Document: d, Similarity: cosineSimilarity(query, d.Embedding)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return truncate(out, k), nil
}

func (s *MemoryStore) TopInventory(ctx context.Context, tenantID string, query []float32, k int) ([]ScoredItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ScoredItem
	for _, it := range s.items {
		if it.TenantID != tenantID || it.Sold || len(it.Embedding) == 0 {
			continue
		}
		out = append(out, ScoredItem{Item: it, Similarity: cosineSimilarity(query, it.Embedding)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return truncate(out, k), nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	d.Indexed = len(d.Embedding) > 0
	return &d, nil
}

func (s *MemoryStore) UpsertDocument(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	stored := *doc
	if len(stored.Embedding) == 0 {
		stored.Embedding = s.docs[doc.ID].Embedding
	}
	stored.UpdatedAt = time.Now().UTC()
	s.docs[doc.ID] = stored
	return nil
}

func (s *MemoryStore) GetItem(ctx context.Context, id string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	it.Indexed = len(it.Embedding) > 0
	return &it, nil
}

func (s *MemoryStore) UpsertItem(ctx context.Context, item *Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	stored := *item
	if len(stored.Embedding) == 0 {
		stored.Embedding = s.items[item.ID].Embedding
	}
	stored.UpdatedAt = time.Now().UTC()
	s.items[item.ID] = stored
	return nil
}

func truncate[T any](in []T, k int) []T {
	if k > 0 && len(in) > k {
		return in[:k]
	}
	return in
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
