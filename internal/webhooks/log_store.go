// Package webhooks receives Meta deliveries for WhatsApp and Lead Ads, keeps
// a durable log of every body, and fans the sub-items out to the
// conversation engine and the lead repository.
package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrLogNotFound is returned when a log id is unknown.
var ErrLogNotFound = errors.New("webhooks: log entry not found")

// LogStatus is the processing state of a logged delivery.
type LogStatus string

const (
	LogReceived  LogStatus = "received"
	LogProcessed LogStatus = "processed"
	LogError     LogStatus = "error"
)

// LogEntry is one stored delivery.
type LogEntry struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	Payload      json.RawMessage `json:"payload"`
	Status       LogStatus       `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ReceivedAt   time.Time       `json:"received_at"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
}

// LogStore is the append-only record of webhook deliveries. Only the status
// columns change after Append.
type LogStore interface {
	Append(ctx context.Context, eventType string, payload []byte) (string, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkError(ctx context.Context, id, message string) error
	Get(ctx context.Context, id string) (*LogEntry, error)
}

// storablePayload keeps bodies that are not JSON by storing them as a JSON
// string, so the jsonb column accepts every delivery.
func storablePayload(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

// replayBody undoes storablePayload.
func replayBody(payload json.RawMessage) []byte {
	var s string
	if len(payload) > 0 && payload[0] == '"' && json.Unmarshal(payload, &s) == nil {
		return []byte(s)
	}
	return payload
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLogStore keeps deliveries in the webhook_logs table.
type PostgresLogStore struct {
	db pgxQuerier
}

func NewPostgresLogStore(db pgxQuerier) *PostgresLogStore {
	if db == nil {
		panic("webhooks: pgx pool required")
	}
	return &PostgresLogStore{db: db}
}

func (s *PostgresLogStore) Append(ctx context.Context, eventType string, payload []byte) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
		INSERT INTO webhook_logs (event_type, payload, status)
		VALUES ($1, $2::jsonb, $3)
		RETURNING id::text
	`, eventType, string(storablePayload(payload)), string(LogReceived)).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("webhooks: append log: %w", err)
	}
	return id, nil
}

func (s *PostgresLogStore) MarkProcessed(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, LogProcessed, "")
}

func (s *PostgresLogStore) MarkError(ctx context.Context, id, message string) error {
	return s.setStatus(ctx, id, LogError, message)
}

func (s *PostgresLogStore) setStatus(ctx context.Context, id string, status LogStatus, message string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE webhook_logs
		SET status = $2, error_message = NULLIF($3, ''), processed_at = NOW()
		WHERE id = $1
	`, id, string(status), message)
	if err != nil {
		return fmt.Errorf("webhooks: mark log %s: %w", status, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLogNotFound
	}
	return nil
}

func (s *PostgresLogStore) Get(ctx context.Context, id string) (*LogEntry, error) {
	var (
		e       LogEntry
		payload []byte
		status  string
		errMsg  *string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id::text, event_type, payload, status, error_message, received_at, processed_at
		FROM webhook_logs WHERE id = $1
	`, id).Scan(&e.ID, &e.EventType, &payload, &status, &errMsg, &e.ReceivedAt, &e.ProcessedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrLogNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("webhooks: get log: %w", err)
	}
	e.Payload = payload
	e.Status = LogStatus(status)
	if errMsg != nil {
		e.ErrorMessage = *errMsg
	}
	return &e, nil
}

// MemoryLogStore is a LogStore for tests and database-less runs.
type MemoryLogStore struct {
	mu      sync.Mutex
	entries map[string]*LogEntry
	order   []string
}

func NewMemoryLogStore() *MemoryLogStore {
	return &MemoryLogStore{entries: make(map[string]*LogEntry)}
}

func (s *MemoryLogStore) Append(ctx context.Context, eventType string, payload []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &LogEntry{
		ID:         uuid.New().String(),
		EventType:  eventType,
		Payload:    append(json.RawMessage(nil), storablePayload(payload)...),
		Status:     LogReceived,
		ReceivedAt: time.Now().UTC(),
	}
	s.entries[e.ID] = e
	s.order = append(s.order, e.ID)
	return e.ID, nil
}

func (s *MemoryLogStore) MarkProcessed(ctx context.Context, id string) error {
	return s.setStatus(id, LogProcessed, "")
}

func (s *MemoryLogStore) MarkError(ctx context.Context, id, message string) error {
	return s.setStatus(id, LogError, message)
}

func (s *MemoryLogStore) setStatus(id string, status LogStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return ErrLogNotFound
	}
	now := time.Now().UTC()
	e.Status = status
	e.ErrorMessage = message
	e.ProcessedAt = &now
	return nil
}

func (s *MemoryLogStore) Get(ctx context.Context, id string) (*LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrLogNotFound
	}
	cp := *e
	cp.Payload = append(json.RawMessage(nil), e.Payload...)
	return &cp, nil
}

// All returns the entries in append order.
func (s *MemoryLogStore) All() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.entries[id])
	}
	return out
}
