package tenancy

import (
	"context"
	"errors"
	"strings"
)

// ErrTenantNotFound is returned when an account id maps to no tenant and no
// default is configured.
var ErrTenantNotFound = errors.New("tenancy: tenant not found for account")

// Resolver maps a provider account id (WhatsApp phone-number id, Facebook
// page id) to the tenant that owns it.
type Resolver interface {
	ResolveTenant(ctx context.Context, accountID string) (string, error)
}

// StaticResolver is backed by an in-memory map with an optional fallback tenant.
type StaticResolver struct {
	mapping       map[string]string
	defaultTenant string
}

// NewStaticResolver builds a resolver. Blank keys or values are ignored.
func NewStaticResolver(mapping map[string]string, defaultTenant string) *StaticResolver {
	clean := make(map[string]string, len(mapping))
	for account, tenant := range mapping {
		account = strings.TrimSpace(account)
		tenant = strings.TrimSpace(tenant)
		if account == "" || tenant == "" {
			continue
		}
		clean[account] = tenant
	}
	return &StaticResolver{mapping: clean, defaultTenant: strings.TrimSpace(defaultTenant)}
}

// ResolveTenant implements Resolver.
func (r *StaticResolver) ResolveTenant(ctx context.Context, accountID string) (string, error) {
	if r == nil {
		return "", ErrTenantNotFound
	}
	if tenant, ok := r.mapping[strings.TrimSpace(accountID)]; ok {
		return tenant, nil
	}
	if r.defaultTenant != "" {
		return r.defaultTenant, nil
	}
	return "", ErrTenantNotFound
}
