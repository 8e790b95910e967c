// Package events deduplicates provider deliveries by external event id.
package events

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Deduper claims an event id before the item is processed. A failed item
// releases its claim so a replay can run it again.
type Deduper interface {
	// MarkProcessed returns false when the id was already claimed.
	MarkProcessed(ctx context.Context, channel, eventID string) (bool, error)
	Release(ctx context.Context, channel, eventID string) error
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ProcessedStore records handled events in the processed_events table.
type ProcessedStore struct {
	pool execer
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{pool: pool}
}

func newProcessedStoreWithExec(exec execer) *ProcessedStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &ProcessedStore{pool: exec}
}

func (s *ProcessedStore) MarkProcessed(ctx context.Context, channel, eventID string) (bool, error) {
	ct, err := s.pool.Exec(ctx, `
		INSERT INTO processed_events (channel, event_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, channel, eventID)
	if err != nil {
		return false, fmt.Errorf("events: mark processed: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *ProcessedStore) Release(ctx context.Context, channel, eventID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM processed_events WHERE channel = $1 AND event_id = $2`, channel, eventID); err != nil {
		return fmt.Errorf("events: release processed: %w", err)
	}
	return nil
}

var _ Deduper = (*ProcessedStore)(nil)
