package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectLeadColumns = `
	SELECT id::text, tenant_id, name, COALESCE(phone, ''), COALESCE(email, ''), status,
	       budget, expected_purchase_timeframe, type, campaign_id, source,
	       last_contacted_at, last_message_at, next_follow_up_date,
	       version, created_at, updated_at
	FROM leads`

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	db querier
}

// NewPostgresRepository initializes a repo backed by pgxpool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{db: pool}
}

// GetOrCreateByPhone inserts a nuevo lead unless the phone already exists,
// then reads back whichever row owns the phone.
func (r *PostgresRepository) GetOrCreateByPhone(ctx context.Context, tenantID, phone, name, source string) (*Lead, bool, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, false, ErrMissingContact
	}
	if strings.TrimSpace(tenantID) == "" {
		return nil, false, ErrMissingTenantID
	}
	query := `
		INSERT INTO leads (id, tenant_id, name, phone, status, source)
		VALUES ($1, $2, $3, $4, 'nuevo', $5)
		ON CONFLICT (phone) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, uuid.New().String(), tenantID, strings.TrimSpace(name), phone, source)
	if err != nil {
		return nil, false, fmt.Errorf("leads: insert by phone failed: %w", err)
	}
	lead, err := r.GetByPhone(ctx, phone)
	if err != nil {
		return nil, false, err
	}
	return lead, tag.RowsAffected() > 0, nil
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	query := `
		INSERT INTO leads (id, tenant_id, name, phone, email, status, source, campaign_id)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8)
		RETURNING version, created_at, updated_at
	`
	lead := &Lead{
		ID:         id,
		TenantID:   req.TenantID,
		Name:       strings.TrimSpace(req.Name),
		Phone:      req.Phone,
		Email:      req.Email,
		Status:     req.status(),
		Source:     req.Source,
		CampaignID: req.CampaignID,
	}
	if err := r.db.QueryRow(ctx, query,
		id,
		lead.TenantID,
		lead.Name,
		lead.Phone,
		lead.Email,
		string(lead.Status),
		lead.Source,
		lead.CampaignID,
	).Scan(&lead.Version, &lead.CreatedAt, &lead.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateContact
		}
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}
	return lead, nil
}

// GetByID fetches a lead by primary key.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	return r.getOne(ctx, selectLeadColumns+` WHERE id = $1`, id)
}

// GetByPhone fetches the lead owning an E.164 phone.
func (r *PostgresRepository) GetByPhone(ctx context.Context, phone string) (*Lead, error) {
	return r.getOne(ctx, selectLeadColumns+` WHERE phone = $1`, phone)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*Lead, error) {
	lead, err := scanLead(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// Update performs a conditional write on version.
func (r *PostgresRepository) Update(ctx context.Context, lead *Lead) error {
	if lead == nil {
		return ErrLeadNotFound
	}
	if !lead.Status.Valid() {
		return ErrInvalidStatus
	}
	query := `
		UPDATE leads SET
			name = $2,
			email = NULLIF($3, ''),
			status = $4,
			budget = $5,
			expected_purchase_timeframe = $6,
			type = $7,
			campaign_id = $8,
			last_contacted_at = $9,
			last_message_at = $10,
			next_follow_up_date = $11,
			version = version + 1,
			updated_at = NOW()
		WHERE id = $1 AND version = $12
		RETURNING version, updated_at
	`
	var (
		version   int64
		updatedAt time.Time
	)
	err := r.db.QueryRow(ctx, query,
		lead.ID,
		lead.Name,
		lead.Email,
		string(lead.Status),
		lead.Budget,
		lead.ExpectedPurchaseTimeframe,
		lead.Type,
		lead.CampaignID,
		lead.LastContactedAt,
		lead.LastMessageAt,
		lead.NextFollowUpDate,
		lead.Version,
	).Scan(&version, &updatedAt)
	switch {
	case err == nil:
		lead.Version = version
		lead.UpdatedAt = updatedAt
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return r.classifyMissedUpdate(ctx, lead.ID)
	case isUniqueViolation(err):
		return ErrDuplicateContact
	default:
		return fmt.Errorf("leads: update failed: %w", err)
	}
}

// classifyMissedUpdate distinguishes a deleted lead from a stale version.
func (r *PostgresRepository) classifyMissedUpdate(ctx context.Context, id string) error {
	var current int64
	err := r.db.QueryRow(ctx, `SELECT version FROM leads WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrLeadNotFound
	}
	if err != nil {
		return fmt.Errorf("leads: version lookup failed: %w", err)
	}
	return ErrVersionConflict
}

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead   Lead
		status string
	)
	if err := row.Scan(
		&lead.ID,
		&lead.TenantID,
		&lead.Name,
		&lead.Phone,
		&lead.Email,
		&status,
		&lead.Budget,
		&lead.ExpectedPurchaseTimeframe,
		&lead.Type,
		&lead.CampaignID,
		&lead.Source,
		&lead.LastContactedAt,
		&lead.LastMessageAt,
		&lead.NextFollowUpDate,
		&lead.Version,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return nil, err
	}
	lead.Status = funnelStatus(status)
	return &lead, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
