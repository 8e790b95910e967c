package knowledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps both corpora in pgvector columns and ranks them by
// cosine similarity inside the database.
type PostgresStore struct {
	db pgxQuerier
}

func NewPostgresStore(db pgxQuerier) *PostgresStore {
	if db == nil {
		panic("knowledge: pgx pool required")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) TopDocuments(ctx context.Context, tenantID string, query []float32, k int) ([]ScoredDocument, error) {
	sql := `
		SELECT id::text, tenant_id, title, category, content, source_file, updated_at,
		       1 - (embedding <=> $2) AS similarity
		FROM knowledge_documents
		WHERE tenant_id = $1 AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := s.db.Query(ctx, sql, tenantID, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("knowledge: query documents: %w", err)
	}
	defer rows.Close()

	var out []ScoredDocument
	for rows.Next() {
		var (
			d        ScoredDocument
			category string
		)
		if err := rows.Scan(&d.ID, &d.TenantID, &d.Title, &category, &d.Content, &d.SourceFile, &d.UpdatedAt, &d.Similarity); err != nil {
			return nil, fmt.Errorf("knowledge: scan document: %w", err)
		}
		d.Category = Category(category)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("knowledge: iterate documents: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) TopInventory(ctx context.Context, tenantID string, query []float32, k int) ([]ScoredItem, error) {
	sql := `
		SELECT id::text, tenant_id, make, model, trim, year, price_cents, mileage_km,
		       fuel_type, transmission, body_type, color, sold, updated_at,
		       1 - (embedding <=> $2) AS similarity
		FROM inventory_items
		WHERE tenant_id = $1 AND sold = FALSE AND embedding IS NOT NULL
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	rows, err := s.db.Query(ctx, sql, tenantID, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("knowledge: query inventory: %w", err)
	}
	defer rows.Close()

	var out []ScoredItem
	for rows.Next() {
		var it ScoredItem
		if err := rows.Scan(&it.ID, &it.TenantID, &it.Make, &it.Model, &it.Trim, &it.Year, &it.PriceCents, &it.MileageKm,
			&it.FuelType, &it.Transmission, &it.BodyType, &it.Color, &it.Sold, &it.UpdatedAt, &it.Similarity); err != nil {
			return nil, fmt.Errorf("knowledge: scan item: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("knowledge: iterate inventory: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	var (
		d        Document
		category string
	)
	err := s.db.QueryRow(ctx, `
		SELECT id::text, tenant_id, title, category, content, source_file, embedding IS NOT NULL, updated_at
		FROM knowledge_documents WHERE id = $1
	`, id).Scan(&d.ID, &d.TenantID, &d.Title, &category, &d.Content, &d.SourceFile, &d.Indexed, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("knowledge: get document: %w", err)
	}
	d.Category = Category(category)
	return &d, nil
}

// UpsertDocument writes doc. A nil Embedding keeps the stored vector.
func (s *PostgresStore) UpsertDocument(ctx context.Context, doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO knowledge_documents (id, tenant_id, title, category, content, source_file, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			category = EXCLUDED.category,
			content = EXCLUDED.content,
			source_file = EXCLUDED.source_file,
			embedding = COALESCE(EXCLUDED.embedding, knowledge_documents.embedding),
			updated_at = NOW()
	`, doc.ID, doc.TenantID, doc.Title, string(doc.Category), doc.Content, doc.SourceFile, vectorArg(doc.Embedding))
	if err != nil {
		return fmt.Errorf("knowledge: upsert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetItem(ctx context.Context, id string) (*Item, error) {
	var it Item
	err := s.db.QueryRow(ctx, `
		SELECT id::text, tenant_id, make, model, trim, year, price_cents, mileage_km,
		       fuel_type, transmission, body_type, color, sold, embedding IS NOT NULL, updated_at
		FROM inventory_items WHERE id = $1
	`, id).Scan(&it.ID, &it.TenantID, &it.Make, &it.Model, &it.Trim, &it.Year, &it.PriceCents, &it.MileageKm,
		&it.FuelType, &it.Transmission, &it.BodyType, &it.Color, &it.Sold, &it.Indexed, &it.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("knowledge: get item: %w", err)
	}
	return &it, nil
}

// UpsertItem writes item. A nil Embedding keeps the stored vector.
func (s *PostgresStore) UpsertItem(ctx context.Context, item *Item) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO inventory_items (id, tenant_id, make, model, trim, year, price_cents, mileage_km,
			fuel_type, transmission, body_type, color, sold, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			make = EXCLUDED.make,
			model = EXCLUDED.model,
			trim = EXCLUDED.trim,
			year = EXCLUDED.year,
			price_cents = EXCLUDED.price_cents,
			mileage_km = EXCLUDED.mileage_km,
			fuel_type = EXCLUDED.fuel_type,
			transmission = EXCLUDED.transmission,
			body_type = EXCLUDED.body_type,
			color = EXCLUDED.color,
			sold = EXCLUDED.sold,
			embedding = COALESCE(EXCLUDED.embedding, inventory_items.embedding),
			updated_at = NOW()
	`, item.ID, item.TenantID, item.Make, item.Model, item.Trim, item.Year, item.PriceCents, item.MileageKm,
		item.FuelType, item.Transmission, item.BodyType, item.Color, item.Sold, vectorArg(item.Embedding))
	if err != nil {
		return fmt.Errorf("knowledge: upsert item: %w", err)
	}
	return nil
}

func vectorArg(v []float32) *pgvector.Vector {
	if len(v) == 0 {
		return nil
	}
	vec := pgvector.NewVector(v)
	return &vec
}
