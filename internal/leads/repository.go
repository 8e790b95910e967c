package leads

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for lead storage
type Repository interface {
	// GetOrCreateByPhone returns the lead owning phone, creating a nuevo lead
	// when none exists. The bool reports whether a lead was created.
	GetOrCreateByPhone(ctx context.Context, tenantID, phone, name, source string) (*Lead, bool, error)
	Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error)
	GetByID(ctx context.Context, id string) (*Lead, error)
	GetByPhone(ctx context.Context, phone string) (*Lead, error)
	// Update writes lead if its Version still matches the stored one and
	// bumps lead.Version on success. ErrVersionConflict otherwise.
	Update(ctx context.Context, lead *Lead) error
}

// InMemoryRepository is a Repository backed by maps, used in tests and
// when no DATABASE_URL is configured.
type InMemoryRepository struct {
	mu      sync.RWMutex
	leads   map[string]*Lead
	byPhone map[string]string
	byEmail map[string]string
	now     func() time.Time
}

// NewInMemoryRepository creates a new in-memory repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		leads:   make(map[string]*Lead),
		byPhone: make(map[string]string),
		byEmail: make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreateByPhone implements Repository.
func (r *InMemoryRepository) GetOrCreateByPhone(ctx context.Context, tenantID, phone, name, source string) (*Lead, bool, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, false, ErrMissingContact
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byPhone[phone]; ok {
		return r.leads[id].Clone(), false, nil
	}
	if strings.TrimSpace(tenantID) == "" {
		return nil, false, ErrMissingTenantID
	}
	lead := r.newLeadLocked(&CreateLeadRequest{TenantID: tenantID, Name: name, Phone: phone, Source: source})
	return lead.Clone(), true, nil
}

// Create creates a new lead in memory
func (r *InMemoryRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byPhone[req.Phone]; ok && req.Phone != "" {
		return nil, ErrDuplicateContact
	}
	if _, ok := r.byEmail[strings.ToLower(req.Email)]; ok && req.Email != "" {
		return nil, ErrDuplicateContact
	}
	return r.newLeadLocked(req).Clone(), nil
}

func (r *InMemoryRepository) newLeadLocked(req *CreateLeadRequest) *Lead {
	now := r.now()
	lead := &Lead{
		ID:         uuid.New().String(),
		TenantID:   req.TenantID,
		Name:       strings.TrimSpace(req.Name),
		Phone:      req.Phone,
		Email:      req.Email,
		Status:     req.status(),
		Source:     req.Source,
		CampaignID: req.CampaignID,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.leads[lead.ID] = lead
	if lead.Phone != "" {
		r.byPhone[lead.Phone] = lead.ID
	}
	if lead.Email != "" {
		r.byEmail[strings.ToLower(lead.Email)] = lead.ID
	}
	return lead
}

// GetByID retrieves a lead by ID
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lead, ok := r.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return lead.Clone(), nil
}

// GetByPhone retrieves a lead by its E.164 phone.
func (r *InMemoryRepository) GetByPhone(ctx context.Context, phone string) (*Lead, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byPhone[phone]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return r.leads[id].Clone(), nil
}

// Update implements Repository with a version check.
func (r *InMemoryRepository) Update(ctx context.Context, lead *Lead) error {
	if lead == nil {
		return ErrLeadNotFound
	}
	if !lead.Status.Valid() {
		return ErrInvalidStatus
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.leads[lead.ID]
	if !ok {
		return ErrLeadNotFound
	}
	if stored.Version != lead.Version {
		return ErrVersionConflict
	}
	if lead.Email != "" {
		if owner, ok := r.byEmail[strings.ToLower(lead.Email)]; ok && owner != lead.ID {
			return ErrDuplicateContact
		}
	}
	if stored.Email != "" && !strings.EqualFold(stored.Email, lead.Email) {
		delete(r.byEmail, strings.ToLower(stored.Email))
	}
	if lead.Email != "" {
		r.byEmail[strings.ToLower(lead.Email)] = lead.ID
	}

	next := lead.Clone()
	next.Version = stored.Version + 1
	next.UpdatedAt = r.now()
	next.CreatedAt = stored.CreatedAt
	next.Phone = stored.Phone
	r.leads[lead.ID] = next

	lead.Version = next.Version
	lead.UpdatedAt = next.UpdatedAt
	return nil
}
