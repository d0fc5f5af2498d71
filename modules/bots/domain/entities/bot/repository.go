package bot

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Bot, error)
	GetByWebhookToken(ctx context.Context, token string) (*Bot, error)
	GetByBotID(ctx context.Context, botID int64) (*Bot, error)
	GetPrimary(ctx context.Context) (*Bot, error)
	List(ctx context.Context) ([]*Bot, error)
	ListActive(ctx context.Context) ([]*Bot, error)
	Create(ctx context.Context, b *Bot) error
	Update(ctx context.Context, b *Bot) error
	Delete(ctx context.Context, id uuid.UUID) error
}
