package messaging

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// Store persists conversation messages.
type Store interface {
	// Insert assigns ID and CreatedAt on msg.
	Insert(ctx context.Context, msg *Message) error
	// UpdateStatus applies a delivery callback. It reports false when no
	// message carries externalID or the current status is further along.
	UpdateStatus(ctx context.Context, externalID string, status DeliveryStatus, errMsg string) (bool, error)
	// Recent returns up to limit of the lead's latest messages, oldest first.
	Recent(ctx context.Context, leadID string, limit int) ([]Message, error)
}

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists messages in conversation_messages.
type PostgresStore struct {
	pool PgxPool
}

func NewPostgresStore(pool PgxPool) *PostgresStore {
	if pool == nil {
		panic("messaging: pgx pool required")
	}
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Insert(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	var embedding *pgvector.Vector
	if len(msg.Embedding) > 0 {
		v := pgvector.NewVector(msg.Embedding)
		embedding = &v
	}
	query := `
		INSERT INTO conversation_messages (id, lead_id, direction, content, external_id, status, error_message, embedding, sent_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
		RETURNING created_at
	`
	if err := s.pool.QueryRow(ctx, query,
		msg.ID,
		msg.LeadID,
		string(msg.Direction),
		msg.Content,
		msg.ExternalID,
		string(msg.Status),
		msg.ErrorMessage,
		embedding,
		msg.SentAt,
	).Scan(&msg.CreatedAt); err != nil {
		return fmt.Errorf("messaging: insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, externalID string, status DeliveryStatus, errMsg string) (bool, error) {
	prior := status.replaceable()
	if prior == nil {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	query := `
		UPDATE conversation_messages
		SET status = $2, error_message = $3
		WHERE external_id = $1 AND status = ANY($4)
	`
	tag, err := s.pool.Exec(ctx, query, externalID, string(status), errMsg, prior)
	if err != nil {
		return false, fmt.Errorf("messaging: update status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) Recent(ctx context.Context, leadID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	query := `
		SELECT id::text, lead_id::text, direction, content, COALESCE(external_id, ''), status, error_message, sent_at, created_at
		FROM conversation_messages
		WHERE lead_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("messaging: recent messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m         Message
			direction string
			status    string
		)
		if err := rows.Scan(&m.ID, &m.LeadID, &direction, &m.Content, &m.ExternalID, &status, &m.ErrorMessage, &m.SentAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("messaging: scan message: %w", err)
		}
		m.Direction = Direction(direction)
		m.Status = DeliveryStatus(status)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messaging: iterate messages: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []Message
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: func() time.Time { return time.Now().UTC() }}
}

func (s *MemoryStore) Insert(ctx context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.ExternalID != "" {
		for _, existing := range s.messages {
			if existing.ExternalID == msg.ExternalID {
				return fmt.Errorf("messaging: insert message: duplicate external id %q", msg.ExternalID)
			}
		}
	}
	msg.CreatedAt = s.now()
	s.messages = append(s.messages, *msg)
	return nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, externalID string, status DeliveryStatus, errMsg string) (bool, error) {
	prior := status.replaceable()
	if prior == nil {
		return false, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		m := &s.messages[i]
		if m.ExternalID != externalID || !slices.Contains(prior, string(m.Status)) {
			continue
		}
		m.Status = status
		m.ErrorMessage = errMsg
		return true, nil
	}
	return false, nil
}

func (s *MemoryStore) Recent(ctx context.Context, leadID string, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Message
	for _, m := range s.messages {
		if m.LeadID == leadID {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// All returns every stored message for a lead, oldest first.
func (s *MemoryStore) All(leadID string) []Message {
	msgs, _ := s.Recent(context.Background(), leadID, 0)
	return msgs
}
