package setting

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// FeatureFlag is a (tenant, feature) switch with an optional structured
// config blob. Absence of the row means disabled, never an error.
type FeatureFlag struct {
	tenantID  uuid.UUID
	feature   string
	enabled   bool
	config    json.RawMessage
	createdAt time.Time
	updatedAt time.Time
}

func NewFeatureFlag(tenantID uuid.UUID, feature string, enabled bool, config json.RawMessage) *FeatureFlag {
	now := time.Now()
	return &FeatureFlag{
		tenantID:  tenantID,
		feature:   feature,
		enabled:   enabled,
		config:    config,
		createdAt: now,
		updatedAt: now,
	}
}

func HydrateFeatureFlag(tenantID uuid.UUID, feature string, enabled bool, config json.RawMessage, createdAt, updatedAt time.Time) *FeatureFlag {
	return &FeatureFlag{
		tenantID:  tenantID,
		feature:   feature,
		enabled:   enabled,
		config:    config,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

func (f *FeatureFlag) TenantID() uuid.UUID     { return f.tenantID }
func (f *FeatureFlag) Feature() string         { return f.feature }
func (f *FeatureFlag) Enabled() bool           { return f.enabled }
func (f *FeatureFlag) Config() json.RawMessage { return f.config }
func (f *FeatureFlag) CreatedAt() time.Time    { return f.createdAt }
func (f *FeatureFlag) UpdatedAt() time.Time    { return f.updatedAt }

// Setting is one (tenant, key) configuration value.
type Setting struct {
	tenantID  uuid.UUID
	key       string
	value     Value
	createdAt time.Time
	updatedAt time.Time
}

func NewSetting(tenantID uuid.UUID, key string, value Value) *Setting {
	now := time.Now()
	return &Setting{
		tenantID:  tenantID,
		key:       key,
		value:     value,
		createdAt: now,
		updatedAt: now,
	}
}

func HydrateSetting(tenantID uuid.UUID, key string, value Value, createdAt, updatedAt time.Time) *Setting {
	return &Setting{
		tenantID:  tenantID,
		key:       key,
		value:     value,
		createdAt: createdAt,
		updatedAt: updatedAt,
	}
}

func (s *Setting) TenantID() uuid.UUID  { return s.tenantID }
func (s *Setting) Key() string          { return s.key }
func (s *Setting) Value() Value         { return s.value }
func (s *Setting) CreatedAt() time.Time { return s.createdAt }
func (s *Setting) UpdatedAt() time.Time { return s.updatedAt }
