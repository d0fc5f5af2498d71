package services_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/k4lantar4/remnabot/modules/bots/services"
	"github.com/k4lantar4/remnabot/pkg/cache"
)

func newSettingsService() (*services.SettingsService, *memorySettingRepo) {
	repo := newMemorySettingRepo()
	return services.NewSettingsService(repo, cache.NewMemoryStore(), time.Minute), repo
}

func TestSettingsService_ValueReturnsDefaultWhenUnset(t *testing.T) {
	svc, _ := newSettingsService()
	ctx := txContext()
	tenantID := uuid.New()

	v, err := svc.Value(ctx, tenantID, "dispatch.workers", int64(2))
	require.NoError(t, err)
	require.Equal(t, int64(2), v)
}

func TestSettingsService_ReadYourWrite(t *testing.T) {
	svc, _ := newSettingsService()
	ctx := txContext()
	tenantID := uuid.New()

	require.NoError(t, svc.SetValue(ctx, tenantID, "greeting", "hi"))
	v, err := svc.Value(ctx, tenantID, "greeting", "default")
	require.NoError(t, err)
	require.Equal(t, "hi", v)

	require.NoError(t, svc.SetValue(ctx, tenantID, "greeting", "hello"))
	v, err = svc.Value(ctx, tenantID, "greeting", "default")
	require.NoError(t, err)
	require.Equal(t, "hello", v)
}

func TestSettingsService_FalsyValuesAreNotDefaults(t *testing.T) {
	svc, _ := newSettingsService()
	ctx := txContext()
	tenantID := uuid.New()

	require.NoError(t, svc.SetValue(ctx, tenantID, "enabled", false))
	v, err := svc.Value(ctx, tenantID, "enabled", true)
	require.NoError(t, err)
	require.Equal(t, false, v)

	require.NoError(t, svc.SetValue(ctx, tenantID, "limit", int64(0)))
	v, err = svc.Value(ctx, tenantID, "limit", int64(10))
	require.NoError(t, err)
	require.Equal(t, int64(0), v)

	require.NoError(t, svc.SetValue(ctx, tenantID, "suffix", ""))
	v, err = svc.Value(ctx, tenantID, "suffix", "fallback")
	require.NoError(t, err)
	require.Equal(t, "", v)
}

func TestSettingsService_DeleteRestoresDefault(t *testing.T) {
	svc, _ := newSettingsService()
	ctx := txContext()
	tenantID := uuid.New()

	require.NoError(t, svc.SetValue(ctx, tenantID, "greeting", "hi"))
	require.NoError(t, svc.DeleteValue(ctx, tenantID, "greeting"))

	v, err := svc.Value(ctx, tenantID, "greeting", "default")
	require.NoError(t, err)
	require.Equal(t, "default", v)
}

func TestSettingsService_AbsentFlagIsDisabled(t *testing.T) {
	svc, _ := newSettingsService()
	ctx := txContext()
	tenantID := uuid.New()

	enabled, err := svc.IsEnabled(ctx, tenantID, "auto_reply")
	require.NoError(t, err)
	require.False(t, enabled)

	cfg, err := svc.FeatureConfig(ctx, tenantID, "auto_reply")
	require.NoError(t, err)
	require.Nil(t, cfg)
}

func TestSettingsService_SetFeatureVisibleImmediately(t *testing.T) {
	svc, _ := newSettingsService()
	ctx := txContext()
	tenantID := uuid.New()

	require.NoError(t, svc.SetFeature(ctx, tenantID, "auto_reply", true, json.RawMessage(`{"text":"pong"}`)))

	enabled, err := svc.IsEnabled(ctx, tenantID, "auto_reply")
	require.NoError(t, err)
	require.True(t, enabled)

	cfg, err := svc.FeatureConfig(ctx, tenantID, "auto_reply")
	require.NoError(t, err)
	require.JSONEq(t, `{"text":"pong"}`, string(cfg))

	require.NoError(t, svc.SetFeature(ctx, tenantID, "auto_reply", false, nil))
	enabled, err = svc.IsEnabled(ctx, tenantID, "auto_reply")
	require.NoError(t, err)
	require.False(t, enabled)
}

func TestSettingsService_TenantsAreIsolated(t *testing.T) {
	svc, _ := newSettingsService()
	ctx := txContext()
	tenantA := uuid.New()
	tenantB := uuid.New()

	require.NoError(t, svc.SetValue(ctx, tenantA, "greeting", "salaam"))

	v, err := svc.Value(ctx, tenantB, "greeting", "default")
	require.NoError(t, err)
	require.Equal(t, "default", v)
}

func TestSettingsService_ReadThroughServesFromCache(t *testing.T) {
	svc, repo := newSettingsService()
	ctx := txContext()
	tenantID := uuid.New()

	require.NoError(t, svc.SetValue(ctx, tenantID, "greeting", "hi"))

	v, err := svc.Value(ctx, tenantID, "greeting", "default")
	require.NoError(t, err)
	require.Equal(t, "hi", v)

	// a write that bypasses the service is not observed until invalidation
	require.NoError(t, repo.DeleteSetting(ctx, tenantID, "greeting"))
	v, err = svc.Value(ctx, tenantID, "greeting", "default")
	require.NoError(t, err)
	require.Equal(t, "hi", v)
}
