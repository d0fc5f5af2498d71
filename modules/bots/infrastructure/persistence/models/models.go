package models

import (
	"time"
)

type Bot struct {
	ID           string
	Name         string
	BotID        int64
	BotToken     string
	WebhookToken string
	IsPrimary    bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type FeatureFlag struct {
	TenantID  string
	Feature   string
	Enabled   bool
	Config    []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Setting struct {
	TenantID  string
	Key       string
	Value     []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}
