package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/k4lantar4/remnabot/modules/bots/domain/entities/setting"
	"github.com/k4lantar4/remnabot/modules/bots/infrastructure/persistence/models"
	"github.com/k4lantar4/remnabot/pkg/composables"
)

var (
	ErrFlagNotFound    = fmt.Errorf("feature flag not found")
	ErrSettingNotFound = fmt.Errorf("setting not found")
)

type SettingRepository struct{}

func NewSettingRepository() setting.Repository {
	return &SettingRepository{}
}

func (r *SettingRepository) GetFlag(ctx context.Context, tenantID uuid.UUID, feature string) (*setting.FeatureFlag, error) {
	query := `
		SELECT tenant_id, feature, enabled, config, created_at, updated_at
		FROM bot_feature_flags
		WHERE tenant_id = $1 AND feature = $2
	`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	var m models.FeatureFlag
	if err := tx.QueryRow(ctx, query, tenantID.String(), feature).Scan(
		&m.TenantID,
		&m.Feature,
		&m.Enabled,
		&m.Config,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrFlagNotFound
		}
		return nil, errors.Wrap(err, "failed to query feature flag")
	}

	return toDomainFlag(&m)
}

func (r *SettingRepository) UpsertFlag(ctx context.Context, flag *setting.FeatureFlag) error {
	query := `
		INSERT INTO bot_feature_flags (tenant_id, feature, enabled, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, feature)
		DO UPDATE SET enabled = EXCLUDED.enabled, config = EXCLUDED.config, updated_at = EXCLUDED.updated_at
	`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		ctx,
		query,
		flag.TenantID().String(),
		flag.Feature(),
		flag.Enabled(),
		[]byte(flag.Config()),
		flag.CreatedAt(),
		flag.UpdatedAt(),
	)
	return errors.Wrap(err, "failed to upsert feature flag")
}

func (r *SettingRepository) GetSetting(ctx context.Context, tenantID uuid.UUID, key string) (*setting.Setting, error) {
	query := `
		SELECT tenant_id, key, value, created_at, updated_at
		FROM bot_settings
		WHERE tenant_id = $1 AND key = $2
	`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	var m models.Setting
	if err := tx.QueryRow(ctx, query, tenantID.String(), key).Scan(
		&m.TenantID,
		&m.Key,
		&m.Value,
		&m.CreatedAt,
		&m.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingNotFound
		}
		return nil, errors.Wrap(err, "failed to query setting")
	}

	return toDomainSetting(&m)
}

func (r *SettingRepository) UpsertSetting(ctx context.Context, s *setting.Setting) error {
	value, err := json.Marshal(s.Value())
	if err != nil {
		return errors.Wrap(err, "failed to encode setting value")
	}

	query := `
		INSERT INTO bot_settings (tenant_id, key, value, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
	`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(
		ctx,
		query,
		s.TenantID().String(),
		s.Key(),
		value,
		s.CreatedAt(),
		s.UpdatedAt(),
	)
	return errors.Wrap(err, "failed to upsert setting")
}

func (r *SettingRepository) DeleteSetting(ctx context.Context, tenantID uuid.UUID, key string) error {
	query := `DELETE FROM bot_settings WHERE tenant_id = $1 AND key = $2`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, query, tenantID.String(), key)
	return errors.Wrap(err, "failed to delete setting")
}

func toDomainFlag(m *models.FeatureFlag) (*setting.FeatureFlag, error) {
	tenantID, err := uuid.Parse(m.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid tenant id in feature flag row")
	}
	return setting.HydrateFeatureFlag(tenantID, m.Feature, m.Enabled, json.RawMessage(m.Config), m.CreatedAt, m.UpdatedAt), nil
}

func toDomainSetting(m *models.Setting) (*setting.Setting, error) {
	tenantID, err := uuid.Parse(m.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "invalid tenant id in setting row")
	}
	var value setting.Value
	if err := json.Unmarshal(m.Value, &value); err != nil {
		return nil, errors.Wrap(err, "failed to decode setting value")
	}
	return setting.HydrateSetting(tenantID, m.Key, value, m.CreatedAt, m.UpdatedAt), nil
}
