package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/k4lantar4/remnabot/modules/bots/domain/entities/setting"
	"github.com/k4lantar4/remnabot/modules/bots/infrastructure/persistence"
	"github.com/k4lantar4/remnabot/pkg/cache"
	"github.com/k4lantar4/remnabot/pkg/composables"
)

// flagPayload is the cache representation of a feature flag. A missing row is
// cached as {Enabled: false} so hot disabled features do not hit the store on
// every update.
type flagPayload struct {
	Enabled bool            `json:"enabled"`
	Config  json.RawMessage `json:"config,omitempty"`
}

func flagCacheKey(tenantID uuid.UUID, feature string) string {
	return fmt.Sprintf("flags:%s:%s", tenantID, feature)
}

func settingCacheKey(tenantID uuid.UUID, key string) string {
	return fmt.Sprintf("settings:%s:%s", tenantID, key)
}

// SettingsService serves tenant feature flags and configuration values through
// a read-through cache. Writes go to the store inside a tenant transaction and
// invalidate the cached entry, so a read after a completed write always
// observes the new value.
type SettingsService struct {
	repo  setting.Repository
	cache cache.Store
	ttl   time.Duration
}

func NewSettingsService(repo setting.Repository, store cache.Store, ttl time.Duration) *SettingsService {
	return &SettingsService{
		repo:  repo,
		cache: store,
		ttl:   ttl,
	}
}

func (s *SettingsService) IsEnabled(ctx context.Context, tenantID uuid.UUID, feature string) (bool, error) {
	flag, err := s.loadFlag(ctx, tenantID, feature)
	if err != nil {
		return false, err
	}
	return flag.Enabled, nil
}

// FeatureConfig returns the flag's structured config blob. Disabled or absent
// features return a nil config.
func (s *SettingsService) FeatureConfig(ctx context.Context, tenantID uuid.UUID, feature string) (json.RawMessage, error) {
	flag, err := s.loadFlag(ctx, tenantID, feature)
	if err != nil {
		return nil, err
	}
	if !flag.Enabled {
		return nil, nil
	}
	return flag.Config, nil
}

func (s *SettingsService) SetFeature(ctx context.Context, tenantID uuid.UUID, feature string, enabled bool, config json.RawMessage) error {
	flag := setting.NewFeatureFlag(tenantID, feature, enabled, config)
	err := composables.InTenantTx(composables.WithTenantID(ctx, tenantID), func(txCtx context.Context) error {
		return s.repo.UpsertFlag(txCtx, flag)
	})
	if err != nil {
		return errors.Wrap(err, "failed to persist feature flag")
	}
	return s.cache.Delete(ctx, flagCacheKey(tenantID, feature))
}

func (s *SettingsService) loadFlag(ctx context.Context, tenantID uuid.UUID, feature string) (*flagPayload, error) {
	key := flagCacheKey(tenantID, feature)
	if raw, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var payload flagPayload
		if err := json.Unmarshal(raw, &payload); err == nil {
			return &payload, nil
		}
	}

	payload := &flagPayload{}
	flag, err := composables.InTenantTxResult(
		composables.WithTenantID(ctx, tenantID),
		func(txCtx context.Context) (*setting.FeatureFlag, error) {
			return s.repo.GetFlag(txCtx, tenantID, feature)
		},
	)
	switch {
	case err == nil:
		payload.Enabled = flag.Enabled()
		payload.Config = flag.Config()
	case errors.Is(err, persistence.ErrFlagNotFound):
		// absent flag means disabled
	default:
		return nil, err
	}

	if raw, err := json.Marshal(payload); err == nil {
		_ = s.cache.Set(ctx, key, raw, s.ttl)
	}
	return payload, nil
}

// Value returns the tenant's setting for key, or def when the key was never
// set. A stored false, zero or empty string is a real value and is returned as
// such, not replaced by the default.
func (s *SettingsService) Value(ctx context.Context, tenantID uuid.UUID, key string, def any) (any, error) {
	cacheKey := settingCacheKey(tenantID, key)
	if raw, ok, err := s.cache.Get(ctx, cacheKey); err == nil && ok {
		var v setting.Value
		if err := json.Unmarshal(raw, &v); err == nil {
			return v.Unwrap(), nil
		}
	}

	st, err := composables.InTenantTxResult(
		composables.WithTenantID(ctx, tenantID),
		func(txCtx context.Context) (*setting.Setting, error) {
			return s.repo.GetSetting(txCtx, tenantID, key)
		},
	)
	if err != nil {
		if errors.Is(err, persistence.ErrSettingNotFound) {
			return def, nil
		}
		return nil, err
	}

	if raw, err := json.Marshal(st.Value()); err == nil {
		_ = s.cache.Set(ctx, cacheKey, raw, s.ttl)
	}
	return st.Value().Unwrap(), nil
}

func (s *SettingsService) SetValue(ctx context.Context, tenantID uuid.UUID, key string, value any) error {
	v, err := setting.NewValue(value)
	if err != nil {
		return errors.Wrap(err, "invalid setting value")
	}
	st := setting.NewSetting(tenantID, key, v)
	err = composables.InTenantTx(composables.WithTenantID(ctx, tenantID), func(txCtx context.Context) error {
		return s.repo.UpsertSetting(txCtx, st)
	})
	if err != nil {
		return errors.Wrap(err, "failed to persist setting")
	}
	return s.cache.Delete(ctx, settingCacheKey(tenantID, key))
}

func (s *SettingsService) DeleteValue(ctx context.Context, tenantID uuid.UUID, key string) error {
	err := composables.InTenantTx(composables.WithTenantID(ctx, tenantID), func(txCtx context.Context) error {
		return s.repo.DeleteSetting(txCtx, tenantID, key)
	})
	if err != nil {
		return errors.Wrap(err, "failed to delete setting")
	}
	return s.cache.Delete(ctx, settingCacheKey(tenantID, key))
}
