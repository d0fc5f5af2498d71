package services

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/k4lantar4/remnabot/modules/bots/domain/entities/bot"
	"github.com/k4lantar4/remnabot/pkg/composables"
	"github.com/k4lantar4/remnabot/pkg/dispatch"
)

const (
	featureWelcomeMessage = "welcome_message"
	featureAutoReply      = "auto_reply"

	defaultWelcomeText = "Welcome! Use the menu to get started."
)

type replyConfig struct {
	Text string `json:"text"`
}

// UpdateDispatcher is the default per-tenant dispatcher: it answers /start
// with the tenant's configured welcome message and optionally auto-replies to
// other messages. Tenant behaviour is driven entirely by feature flags, never
// a process restart.
type UpdateDispatcher struct {
	bot      *bot.Bot
	client   dispatch.Client
	settings *SettingsService
}

func NewUpdateDispatcher(b *bot.Bot, client dispatch.Client, settings *SettingsService) *UpdateDispatcher {
	return &UpdateDispatcher{
		bot:      b,
		client:   client,
		settings: settings,
	}
}

func (d *UpdateDispatcher) Dispatch(ctx context.Context, upd *dispatch.Update) error {
	logger := composables.UseLogger(ctx)

	msg := upd.Message
	if msg == nil {
		msg = upd.EditedMessage
	}
	if msg == nil || msg.Chat.ID == 0 {
		logger.WithField("update_id", upd.UpdateID).Debug("skipping update without message")
		return nil
	}

	if strings.HasPrefix(msg.Text, "/start") {
		return d.sendWelcome(ctx, msg.Chat.ID)
	}
	return d.autoReply(ctx, msg.Chat.ID)
}

func (d *UpdateDispatcher) sendWelcome(ctx context.Context, chatID int64) error {
	text := defaultWelcomeText
	if cfg, err := d.settings.FeatureConfig(ctx, d.bot.ID(), featureWelcomeMessage); err != nil {
		return err
	} else if len(cfg) > 0 {
		var reply replyConfig
		if err := json.Unmarshal(cfg, &reply); err == nil && reply.Text != "" {
			text = reply.Text
		}
	}
	return d.client.SendMessage(ctx, chatID, text)
}

func (d *UpdateDispatcher) autoReply(ctx context.Context, chatID int64) error {
	cfg, err := d.settings.FeatureConfig(ctx, d.bot.ID(), featureAutoReply)
	if err != nil {
		return err
	}
	if len(cfg) == 0 {
		return nil
	}
	var reply replyConfig
	if err := json.Unmarshal(cfg, &reply); err != nil || reply.Text == "" {
		return nil
	}
	return d.client.SendMessage(ctx, chatID, reply.Text)
}
