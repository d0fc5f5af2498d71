package persistence

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/k4lantar4/remnabot/modules/bots/domain/entities/bot"
	"github.com/k4lantar4/remnabot/modules/bots/infrastructure/persistence/models"
	"github.com/k4lantar4/remnabot/pkg/composables"
)

var (
	ErrBotNotFound = fmt.Errorf("bot not found")
)

const (
	botFindQuery = `SELECT id, name, bot_id, bot_token, webhook_token, is_primary, is_active, created_at, updated_at FROM bots`
)

type BotRepository struct{}

func NewBotRepository() bot.Repository {
	return &BotRepository{}
}

func (r *BotRepository) GetByID(ctx context.Context, id uuid.UUID) (*bot.Bot, error) {
	query := botFindQuery + " WHERE id = $1"
	bots, err := r.queryBots(ctx, query, id.String())
	if err != nil {
		return nil, err
	}

	if len(bots) == 0 {
		return nil, ErrBotNotFound
	}

	return bots[0], nil
}

func (r *BotRepository) GetByWebhookToken(ctx context.Context, token string) (*bot.Bot, error) {
	query := botFindQuery + " WHERE webhook_token = $1"
	bots, err := r.queryBots(ctx, query, token)
	if err != nil {
		return nil, err
	}

	if len(bots) == 0 {
		return nil, ErrBotNotFound
	}

	return bots[0], nil
}

func (r *BotRepository) GetByBotID(ctx context.Context, botID int64) (*bot.Bot, error) {
	query := botFindQuery + " WHERE bot_id = $1"
	bots, err := r.queryBots(ctx, query, botID)
	if err != nil {
		return nil, err
	}

	if len(bots) == 0 {
		return nil, ErrBotNotFound
	}

	return bots[0], nil
}

func (r *BotRepository) GetPrimary(ctx context.Context) (*bot.Bot, error) {
	query := botFindQuery + " WHERE is_primary = true"
	bots, err := r.queryBots(ctx, query)
	if err != nil {
		return nil, err
	}

	if len(bots) == 0 {
		return nil, ErrBotNotFound
	}

	return bots[0], nil
}

func (r *BotRepository) List(ctx context.Context) ([]*bot.Bot, error) {
	return r.queryBots(ctx, botFindQuery+" ORDER BY created_at")
}

func (r *BotRepository) ListActive(ctx context.Context) ([]*bot.Bot, error) {
	return r.queryBots(ctx, botFindQuery+" WHERE is_active = true ORDER BY created_at")
}

func (r *BotRepository) Create(ctx context.Context, b *bot.Bot) error {
	query := `
		INSERT INTO bots (id, name, bot_id, bot_token, webhook_token, is_primary, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	if _, err := tx.Exec(
		ctx,
		query,
		b.ID().String(),
		b.Name(),
		b.BotID(),
		b.BotToken(),
		b.WebhookToken(),
		b.IsPrimary(),
		b.IsActive(),
		b.CreatedAt(),
		b.UpdatedAt(),
	); err != nil {
		return errors.Wrap(err, "failed to create bot")
	}
	return nil
}

func (r *BotRepository) Update(ctx context.Context, b *bot.Bot) error {
	// The webhook token is immutable once issued and is deliberately absent
	// from the update list.
	query := `
		UPDATE bots
		SET name = $1, bot_token = $2, is_active = $3, updated_at = $4
		WHERE id = $5
	`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(
		ctx,
		query,
		b.Name(),
		b.BotToken(),
		b.IsActive(),
		b.UpdatedAt(),
		b.ID().String(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to update bot")
	}
	if tag.RowsAffected() == 0 {
		return ErrBotNotFound
	}
	return nil
}

func (r *BotRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM bots WHERE id = $1`
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, query, id.String())
	return err
}

func (r *BotRepository) queryBots(ctx context.Context, query string, args ...interface{}) ([]*bot.Bot, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var bots []*bot.Bot
	for rows.Next() {
		var m models.Bot
		if err := rows.Scan(
			&m.ID,
			&m.Name,
			&m.BotID,
			&m.BotToken,
			&m.WebhookToken,
			&m.IsPrimary,
			&m.IsActive,
			&m.CreatedAt,
			&m.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan bot row")
		}
		bots = append(bots, toDomainBot(&m))
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	return bots, nil
}

func toDomainBot(m *models.Bot) *bot.Bot {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		id = uuid.Nil
	}

	return bot.New(
		m.Name,
		bot.WithID(id),
		bot.WithBotID(m.BotID),
		bot.WithBotToken(m.BotToken),
		bot.WithWebhookToken(m.WebhookToken),
		bot.WithIsPrimary(m.IsPrimary),
		bot.WithIsActive(m.IsActive),
		bot.WithCreatedAt(m.CreatedAt),
		bot.WithUpdatedAt(m.UpdatedAt),
	)
}
