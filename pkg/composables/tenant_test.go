package composables

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestUseTenantID_Unset(t *testing.T) {
	_, err := UseTenantID(context.Background())
	require.ErrorIs(t, err, ErrNoTenant)
}

func TestWithTenantID_ScopedToDerivedContext(t *testing.T) {
	base := context.Background()
	id := uuid.New()

	scoped := WithTenantID(base, id)
	got, err := UseTenantID(scoped)
	require.NoError(t, err)
	require.Equal(t, id, got)

	// The parent context never observes the tenant: the slot dies with the
	// derived context, on every exit path.
	_, err = UseTenantID(base)
	require.ErrorIs(t, err, ErrNoTenant)
}

func TestWithTenantID_InnerCallOverridesOuter(t *testing.T) {
	outer := uuid.New()
	inner := uuid.New()

	ctx := WithTenantID(context.Background(), outer)
	nested := WithTenantID(ctx, inner)

	got, err := UseTenantID(nested)
	require.NoError(t, err)
	require.Equal(t, inner, got)

	got, err = UseTenantID(ctx)
	require.NoError(t, err)
	require.Equal(t, outer, got)
}

func TestMustUseTenantID_PanicsWhenUnset(t *testing.T) {
	require.Panics(t, func() {
		MustUseTenantID(context.Background())
	})
}
