package events

import (
	"context"
	"sync"
)

// MemoryProcessedStore is an in-process Deduper for tests and local runs.
type MemoryProcessedStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryProcessedStore() *MemoryProcessedStore {
	return &MemoryProcessedStore{seen: map[string]struct{}{}}
}

func (s *MemoryProcessedStore) MarkProcessed(_ context.Context, channel, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := channel + ":" + eventID
	if _, ok := s.seen[k]; ok {
		return false, nil
	}
	s.seen[k] = struct{}{}
	return true, nil
}

func (s *MemoryProcessedStore) Release(_ context.Context, channel, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, channel+":"+eventID)
	return nil
}

var _ Deduper = (*MemoryProcessedStore)(nil)
