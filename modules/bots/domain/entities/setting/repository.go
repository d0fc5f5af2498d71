package setting

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetFlag(ctx context.Context, tenantID uuid.UUID, feature string) (*FeatureFlag, error)
	UpsertFlag(ctx context.Context, flag *FeatureFlag) error
	GetSetting(ctx context.Context, tenantID uuid.UUID, key string) (*Setting, error)
	UpsertSetting(ctx context.Context, s *Setting) error
	DeleteSetting(ctx context.Context, tenantID uuid.UUID, key string) error
}
