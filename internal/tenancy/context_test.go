package tenancy

import (
	"context"
	"errors"
	"testing"
)

func TestWithTenantIDAndTenantIDFromContext(t *testing.T) {
	ctx := WithTenantID(context.Background(), "concesionario-norte")

	got, ok := TenantIDFromContext(ctx)
	if !ok {
		t.Fatalf("expected tenant id to be present")
	}
	if got != "concesionario-norte" {
		t.Fatalf("expected concesionario-norte, got %s", got)
	}
}

func TestTenantIDFromContext_EmptyOrMissing(t *testing.T) {
	ctx := context.Background()
	if _, ok := TenantIDFromContext(ctx); ok {
		t.Fatalf("expected missing tenant id to return false")
	}

	ctx = context.WithValue(ctx, tenantKey, 42)
	if _, ok := TenantIDFromContext(ctx); ok {
		t.Fatalf("expected non-string tenant id to return false")
	}

	ctx = WithTenantID(context.Background(), "")
	if _, ok := TenantIDFromContext(ctx); ok {
		t.Fatalf("expected empty tenant id to return false")
	}
}

func TestStaticResolver(t *testing.T) {
	r := NewStaticResolver(map[string]string{" 1098765 ": "norte", "": "ignored", "555": " "}, "default")
	ctx := context.Background()

	got, err := r.ResolveTenant(ctx, "1098765")
	if err != nil || got != "norte" {
		t.Fatalf("ResolveTenant mapped = %q, %v", got, err)
	}
	got, err = r.ResolveTenant(ctx, "555")
	if err != nil || got != "default" {
		t.Fatalf("ResolveTenant fallback = %q, %v", got, err)
	}

	strict := NewStaticResolver(nil, "")
	if _, err := strict.ResolveTenant(ctx, "x"); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
	var nilResolver *StaticResolver
	if _, err := nilResolver.ResolveTenant(ctx, "x"); !errors.Is(err, ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound from nil resolver, got %v", err)
	}
}
