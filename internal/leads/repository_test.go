package leads

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/autolead-ai-platform/internal/funnel"
)

func TestInMemoryGetOrCreateByPhone(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	lead, created, err := repo.GetOrCreateByPhone(ctx, "norte", "+34600111222", "Lucía", SourceWhatsApp)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, funnel.StatusNuevo, lead.Status)
	assert.Equal(t, int64(1), lead.Version)

	again, created, err := repo.GetOrCreateByPhone(ctx, "norte", "+34600111222", "Otra", SourceWhatsApp)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, lead.ID, again.ID)
	assert.Equal(t, "Lucía", again.Name)

	_, _, err = repo.GetOrCreateByPhone(ctx, "norte", " ", "x", SourceWhatsApp)
	assert.ErrorIs(t, err, ErrMissingContact)
}

func TestInMemoryCreateRejectsDuplicates(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, &CreateLeadRequest{TenantID: "norte", Name: "Ana", Email: "ana@example.com", Phone: "+34600000001"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &CreateLeadRequest{TenantID: "norte", Name: "Ana B", Email: "ANA@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateContact)

	_, err = repo.Create(ctx, &CreateLeadRequest{TenantID: "norte", Name: "Ana C", Phone: "+34600000001"})
	assert.ErrorIs(t, err, ErrDuplicateContact)
}

func TestCreateLeadRequestValidate(t *testing.T) {
	cases := []struct {
		name string
		req  CreateLeadRequest
		want error
	}{
		{"missing tenant", CreateLeadRequest{Name: "a", Phone: "+1"}, ErrMissingTenantID},
		{"missing name", CreateLeadRequest{TenantID: "t", Phone: "+1"}, ErrInvalidName},
		{"missing contact", CreateLeadRequest{TenantID: "t", Name: "a"}, ErrMissingContact},
		{"bad status", CreateLeadRequest{TenantID: "t", Name: "a", Phone: "+1", Status: "ganado"}, ErrInvalidStatus},
		{"ok", CreateLeadRequest{TenantID: "t", Name: "a", Email: "a@b.c"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestInMemoryUpdateVersioning(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	lead, _, err := repo.GetOrCreateByPhone(ctx, "norte", "+34600111222", "Lucía", SourceWhatsApp)
	require.NoError(t, err)

	first, _ := repo.GetByID(ctx, lead.ID)
	second, _ := repo.GetByID(ctx, lead.ID)

	first.Status = funnel.StatusContactado
	require.NoError(t, repo.Update(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Budget = "20000€"
	assert.ErrorIs(t, repo.Update(ctx, second), ErrVersionConflict)

	second.Status = "ganado"
	assert.ErrorIs(t, repo.Update(ctx, second), ErrInvalidStatus)

	stored, err := repo.GetByID(ctx, lead.ID)
	require.NoError(t, err)
	assert.Equal(t, funnel.StatusContactado, stored.Status)
	assert.Empty(t, stored.Budget)

	assert.ErrorIs(t, repo.Update(ctx, &Lead{ID: "missing", Status: funnel.StatusNuevo}), ErrLeadNotFound)
}

func TestInMemoryConcurrentWritersOneWins(t *testing.T) {
	repo := NewInMemoryRepository()
	ctx := context.Background()
	lead, _, err := repo.GetOrCreateByPhone(ctx, "norte", "+34600111333", "Mario", SourceWhatsApp)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := lead.Clone()
			cp.Status = funnel.StatusActivo
			err := repo.Update(ctx, cp)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, ErrVersionConflict) {
				t.Errorf("unexpected error %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestLeadApplyTransitionKeepsFirstContact(t *testing.T) {
	first := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := first.Add(time.Hour)
	lead := &Lead{Status: funnel.StatusContactado, LastContactedAt: &first}

	lead.ApplyTransition(funnel.Transition{Previous: funnel.StatusNuevo, Next: funnel.StatusActivo, ContactedAt: &later})
	assert.Equal(t, first, *lead.LastContactedAt)
	assert.Equal(t, funnel.StatusActivo, lead.Status)

	budget, blank := " 15000€ ", "  "
	lead.ApplyAttributes(funnel.Update{Budget: &budget, Name: &blank})
	assert.Equal(t, "15000€", lead.Budget)
	assert.Empty(t, lead.Name)
	assert.Equal(t, lead.ID, lead.DisplayName())
}
