package bot

import (
	"time"

	"github.com/google/uuid"
)

// Bot is one independently-configured bot instance (tenant) sharing the
// backend process.
type Bot struct {
	id           uuid.UUID
	name         string
	botID        int64
	botToken     string
	webhookToken string
	isPrimary    bool
	isActive     bool
	createdAt    time.Time
	updatedAt    time.Time
}

type Option func(*Bot)

func WithID(id uuid.UUID) Option {
	return func(b *Bot) {
		b.id = id
	}
}

func WithBotID(botID int64) Option {
	return func(b *Bot) {
		b.botID = botID
	}
}

func WithBotToken(token string) Option {
	return func(b *Bot) {
		b.botToken = token
	}
}

func WithWebhookToken(token string) Option {
	return func(b *Bot) {
		b.webhookToken = token
	}
}

func WithIsPrimary(isPrimary bool) Option {
	return func(b *Bot) {
		b.isPrimary = isPrimary
	}
}

func WithIsActive(isActive bool) Option {
	return func(b *Bot) {
		b.isActive = isActive
	}
}

func WithCreatedAt(createdAt time.Time) Option {
	return func(b *Bot) {
		b.createdAt = createdAt
	}
}

func WithUpdatedAt(updatedAt time.Time) Option {
	return func(b *Bot) {
		b.updatedAt = updatedAt
	}
}

func New(name string, opts ...Option) *Bot {
	b := &Bot{
		id:        uuid.New(),
		name:      name,
		isActive:  true,
		createdAt: time.Now(),
		updatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bot) ID() uuid.UUID {
	return b.id
}

func (b *Bot) Name() string {
	return b.name
}

// BotID is the messaging platform's numeric id for this bot, used by the
// legacy webhook path form.
func (b *Bot) BotID() int64 {
	return b.botID
}

// BotToken is the outbound client credential. Never logged in full.
func (b *Bot) BotToken() string {
	return b.botToken
}

// WebhookToken is the opaque inbound path token. Unique and immutable once
// issued.
func (b *Bot) WebhookToken() string {
	return b.webhookToken
}

// IsPrimary marks the single bot that is never deactivated or deleted.
func (b *Bot) IsPrimary() bool {
	return b.isPrimary
}

func (b *Bot) IsActive() bool {
	return b.isActive
}

func (b *Bot) CreatedAt() time.Time {
	return b.createdAt
}

func (b *Bot) UpdatedAt() time.Time {
	return b.updatedAt
}

func (b *Bot) SetName(name string) {
	b.name = name
	b.updatedAt = time.Now()
}

func (b *Bot) SetIsActive(isActive bool) {
	b.isActive = isActive
	b.updatedAt = time.Now()
}
