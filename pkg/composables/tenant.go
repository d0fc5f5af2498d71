package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/k4lantar4/remnabot/pkg/constants"
)

var ErrNoTenant = errors.New("no tenant found in context")

// WithTenantID returns a new context carrying the resolved tenant id. The value
// lives exactly as long as the derived context, so it cannot outlive the call
// that set it.
func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, constants.TenantIDKey, tenantID)
}

// UseTenantID returns the tenant id from the context.
func UseTenantID(ctx context.Context) (uuid.UUID, error) {
	v := ctx.Value(constants.TenantIDKey)
	if v == nil {
		return uuid.Nil, ErrNoTenant
	}
	id, ok := v.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrNoTenant
	}
	return id, nil
}

// MustUseTenantID panics when no tenant is set. Reserved for code paths that
// run strictly below the webhook router, which always resolves a tenant first.
func MustUseTenantID(ctx context.Context) uuid.UUID {
	id, err := UseTenantID(ctx)
	if err != nil {
		panic(err)
	}
	return id
}
