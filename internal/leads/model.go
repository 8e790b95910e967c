package leads

import (
	"strings"
	"time"

	"github.com/wolfman30/autolead-ai-platform/internal/funnel"
)

// Sources recorded on a lead.
const (
	SourceWhatsApp = "whatsapp"
	SourceLeadAds  = "lead_ads"
)

// Lead is a prospective vehicle buyer tracked through the funnel.
type Lead struct {
	ID       string        `json:"id"`
	TenantID string        `json:"tenant_id"`
	Name     string        `json:"name"`
	Phone    string        `json:"phone,omitempty"`
	Email    string        `json:"email,omitempty"`
	Status   funnel.Status `json:"status"`

	Budget                    string `json:"budget,omitempty"`
	ExpectedPurchaseTimeframe string `json:"expected_purchase_timeframe,omitempty"`
	Type                      string `json:"type,omitempty"`

	CampaignID string `json:"campaign_id,omitempty"`
	Source     string `json:"source"`

	LastContactedAt  *time.Time `json:"last_contacted_at,omitempty"`
	LastMessageAt    *time.Time `json:"last_message_at,omitempty"`
	NextFollowUpDate *time.Time `json:"next_follow_up_date,omitempty"`

	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (l *Lead) Clone() *Lead {
	if l == nil {
		return nil
	}
	cp := *l
	cp.LastContactedAt = cloneTime(l.LastContactedAt)
	cp.LastMessageAt = cloneTime(l.LastMessageAt)
	cp.NextFollowUpDate = cloneTime(l.NextFollowUpDate)
	return &cp
}

// DisplayName falls back to the phone number when no name was captured.
func (l *Lead) DisplayName() string {
	if name := strings.TrimSpace(l.Name); name != "" {
		return name
	}
	if l.Phone != "" {
		return l.Phone
	}
	return l.ID
}

// ApplyAttributes copies the qualification attributes present in upd.
// Status is handled by funnel.Apply and ApplyTransition.
func (l *Lead) ApplyAttributes(upd funnel.Update) {
	if upd.Budget != nil {
		l.Budget = strings.TrimSpace(*upd.Budget)
	}
	if upd.ExpectedPurchaseTimeframe != nil {
		l.ExpectedPurchaseTimeframe = strings.TrimSpace(*upd.ExpectedPurchaseTimeframe)
	}
	if upd.Type != nil {
		l.Type = strings.TrimSpace(*upd.Type)
	}
	if upd.Name != nil && strings.TrimSpace(*upd.Name) != "" {
		l.Name = strings.TrimSpace(*upd.Name)
	}
}

// ApplyTransition records the funnel outcome on the lead.
func (l *Lead) ApplyTransition(t funnel.Transition) {
	l.Status = t.Next
	if t.ContactedAt != nil && l.LastContactedAt == nil {
		l.LastContactedAt = cloneTime(t.ContactedAt)
	}
	if t.FollowUpAt != nil {
		l.NextFollowUpDate = cloneTime(t.FollowUpAt)
	}
}

// CreateLeadRequest represents the request body for creating a lead
type CreateLeadRequest struct {
	TenantID   string        `json:"-"`
	Name       string        `json:"name"`
	Email      string        `json:"email"`
	Phone      string        `json:"phone"`
	Source     string        `json:"source"`
	CampaignID string        `json:"campaign_id"`
	Status     funnel.Status `json:"-"`
}

// Validate validates the create lead request
func (r *CreateLeadRequest) Validate() error {
	if strings.TrimSpace(r.TenantID) == "" {
		return ErrMissingTenantID
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrInvalidName
	}
	if r.Email == "" && r.Phone == "" {
		return ErrMissingContact
	}
	if r.Status != "" && !r.Status.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

func (r *CreateLeadRequest) status() funnel.Status {
	if r.Status == "" {
		return funnel.StatusNuevo
	}
	return r.Status
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// funnelStatus maps a stored value onto the vocabulary. The column carries a
// CHECK constraint, so an unknown value only appears on schema drift and is
// treated as nuevo.
func funnelStatus(raw string) funnel.Status {
	if s, ok := funnel.ParseStatus(raw); ok {
		return s
	}
	return funnel.StatusNuevo
}
