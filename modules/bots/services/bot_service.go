package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/k4lantar4/remnabot/modules/bots/domain/entities/bot"
	"github.com/k4lantar4/remnabot/modules/bots/infrastructure/persistence"
	"github.com/k4lantar4/remnabot/modules/bots/infrastructure/telegram"
	"github.com/k4lantar4/remnabot/pkg/cache"
	"github.com/k4lantar4/remnabot/pkg/composables"
	"github.com/k4lantar4/remnabot/pkg/configuration"
	"github.com/k4lantar4/remnabot/pkg/dispatch"
	"github.com/k4lantar4/remnabot/pkg/eventbus"
	"github.com/k4lantar4/remnabot/pkg/serrors"
)

var (
	ErrBotNotFound = serrors.NewError("BOT_NOT_FOUND", "bot not found", "")
	// ErrPrimaryBot guards the one bot the operator relies on to reach the
	// system at all.
	ErrPrimaryBot  = serrors.NewError("BOT_PRIMARY_PROTECTED", "primary bot cannot be deactivated or deleted", "")
	ErrBotInactive = serrors.NewError("BOT_INACTIVE", "bot is not active", "")
)

// ClientFactory builds an outbound messaging client for a bot credential.
// Swapped out in tests.
type ClientFactory func(botToken string) dispatch.Client

// DispatcherFactory builds the per-tenant update dispatcher the queue workers
// invoke.
type DispatcherFactory func(b *bot.Bot, client dispatch.Client) dispatch.Dispatcher

// botSnapshot is the cache representation of a directory entry.
type botSnapshot struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	BotID        int64     `json:"bot_id"`
	BotToken     string    `json:"bot_token"`
	WebhookToken string    `json:"webhook_token"`
	IsPrimary    bool      `json:"is_primary"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func tokenCacheKey(webhookToken string) string {
	return "bots:token:" + webhookToken
}

func botIDCacheKey(botID int64) string {
	return fmt.Sprintf("bots:id:%d", botID)
}

type BotServiceOptions struct {
	Repo              bot.Repository
	Registry          *dispatch.Registry
	Cache             cache.Store
	Settings          *SettingsService
	Publisher         eventbus.EventBus
	Logger            *logrus.Logger
	Conf              *configuration.Configuration
	ClientFactory     ClientFactory
	DispatcherFactory DispatcherFactory
}

// BotService is the tenant directory plus the admin lifecycle operations.
// Lifecycle changes are synchronous with the dispatch registry, so inbound
// traffic reflects an activation or deactivation without a restart.
type BotService struct {
	repo              bot.Repository
	registry          *dispatch.Registry
	cache             cache.Store
	settings          *SettingsService
	publisher         eventbus.EventBus
	logger            *logrus.Logger
	conf              *configuration.Configuration
	clientFactory     ClientFactory
	dispatcherFactory DispatcherFactory
}

func NewBotService(opts BotServiceOptions) *BotService {
	if opts.ClientFactory == nil {
		opts.ClientFactory = func(botToken string) dispatch.Client {
			return telegram.NewClient(botToken)
		}
	}
	svc := &BotService{
		repo:              opts.Repo,
		registry:          opts.Registry,
		cache:             opts.Cache,
		settings:          opts.Settings,
		publisher:         opts.Publisher,
		logger:            opts.Logger,
		conf:              opts.Conf,
		clientFactory:     opts.ClientFactory,
		dispatcherFactory: opts.DispatcherFactory,
	}
	if svc.dispatcherFactory == nil {
		svc.dispatcherFactory = func(b *bot.Bot, client dispatch.Client) dispatch.Dispatcher {
			return NewUpdateDispatcher(b, client, opts.Settings)
		}
	}
	return svc
}

// GetByWebhookToken resolves the inbound path token to a bot, read-through
// cached. Unknown tokens return ErrBotNotFound.
func (s *BotService) GetByWebhookToken(ctx context.Context, webhookToken string) (*bot.Bot, error) {
	key := tokenCacheKey(webhookToken)
	if b, ok := s.cachedBot(ctx, key); ok {
		return b, nil
	}
	// the directory is resolved before any tenant is known, so this read runs
	// outside the tenant transaction scope
	b, err := s.repo.GetByWebhookToken(ctx, webhookToken)
	if err != nil {
		return nil, s.mapNotFound(err)
	}
	s.storeBot(ctx, b)
	return b, nil
}

// GetByBotID resolves the legacy numeric path form.
func (s *BotService) GetByBotID(ctx context.Context, botID int64) (*bot.Bot, error) {
	key := botIDCacheKey(botID)
	if b, ok := s.cachedBot(ctx, key); ok {
		return b, nil
	}
	b, err := s.repo.GetByBotID(ctx, botID)
	if err != nil {
		return nil, s.mapNotFound(err)
	}
	s.storeBot(ctx, b)
	return b, nil
}

func (s *BotService) GetByID(ctx context.Context, id uuid.UUID) (*bot.Bot, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapNotFound(err)
	}
	return b, nil
}

func (s *BotService) List(ctx context.Context) ([]*bot.Bot, error) {
	return s.repo.List(ctx)
}

// Create verifies the outbound credential against the messaging platform,
// issues the immutable webhook token and persists the bot. The bot is created
// inactive; Activate brings it into service.
func (s *BotService) Create(ctx context.Context, name, botToken string, isPrimary bool) (*bot.Bot, error) {
	client := s.clientFactory(botToken)
	botID, err := s.verifyCredential(ctx, client, botToken)
	if err != nil {
		return nil, err
	}

	webhookToken, err := newWebhookToken()
	if err != nil {
		return nil, err
	}

	b := bot.New(
		name,
		bot.WithBotID(botID),
		bot.WithBotToken(botToken),
		bot.WithWebhookToken(webhookToken),
		bot.WithIsPrimary(isPrimary),
		bot.WithIsActive(false),
	)
	err = composables.InTenantTx(composables.WithTenantID(ctx, b.ID()), func(txCtx context.Context) error {
		return s.repo.Create(txCtx, b)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create bot")
	}
	s.publisher.Publish(bot.CreatedEvent{Bot: b})
	return b, nil
}

// Activate marks the bot active, registers its dispatch queue and points the
// platform webhook at this deployment.
func (s *BotService) Activate(ctx context.Context, id uuid.UUID) (*bot.Bot, error) {
	b, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	b.SetIsActive(true)
	if err := s.update(ctx, b); err != nil {
		return nil, err
	}
	s.invalidate(ctx, b)

	entry, err := s.EnsureRegistered(ctx, b)
	if err != nil {
		return nil, err
	}
	if err := entry.Client.SetWebhook(ctx, s.webhookURL(b), s.conf.Webhook.SecretToken); err != nil {
		return nil, errors.Wrap(err, "failed to set webhook")
	}
	s.publisher.Publish(bot.ActivatedEvent{Bot: b})
	return b, nil
}

// Deactivate drains and removes the bot's queue, then marks it inactive.
// Updates already accepted are processed before the queue goes away.
func (s *BotService) Deactivate(ctx context.Context, id uuid.UUID) (*bot.Bot, error) {
	b, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.IsPrimary() {
		return nil, ErrPrimaryBot
	}

	if entry, ok := s.registry.Lookup(b.ID()); ok {
		if err := entry.Client.DeleteWebhook(ctx); err != nil {
			s.logger.WithError(err).WithField("bot", b.Name()).Warn("failed to delete webhook")
		}
	}
	s.registry.Unregister(ctx, b.ID())

	b.SetIsActive(false)
	if err := s.update(ctx, b); err != nil {
		return nil, err
	}
	s.invalidate(ctx, b)
	s.publisher.Publish(bot.DeactivatedEvent{Bot: b})
	return b, nil
}

// Delete removes the bot entirely. Active bots are drained first.
func (s *BotService) Delete(ctx context.Context, id uuid.UUID) error {
	b, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if b.IsPrimary() {
		return ErrPrimaryBot
	}

	if entry, ok := s.registry.Lookup(b.ID()); ok {
		if err := entry.Client.DeleteWebhook(ctx); err != nil {
			s.logger.WithError(err).WithField("bot", b.Name()).Warn("failed to delete webhook")
		}
	}
	s.registry.Unregister(ctx, b.ID())

	err = composables.InTenantTx(composables.WithTenantID(ctx, b.ID()), func(txCtx context.Context) error {
		return s.repo.Delete(txCtx, id)
	})
	if err != nil {
		return errors.Wrap(err, "failed to delete bot")
	}
	s.invalidate(ctx, b)
	s.publisher.Publish(bot.DeletedEvent{ID: id})
	return nil
}

// EnsureRegistered returns the bot's dispatch entry, creating and starting it
// on first use. The first accepted update for a tenant pays this cost; later
// ones find the entry in place.
func (s *BotService) EnsureRegistered(ctx context.Context, b *bot.Bot) (*dispatch.RegistryEntry, error) {
	if entry, ok := s.registry.Lookup(b.ID()); ok {
		return entry, nil
	}

	// The caller's snapshot may be stale: a concurrent Deactivate could have
	// drained the queue between resolution and this call. The directory
	// decides whether the bot is still servable.
	current, err := s.repo.GetByID(ctx, b.ID())
	if err != nil {
		return nil, s.mapNotFound(err)
	}
	if !current.IsActive() {
		return nil, ErrBotInactive
	}

	client := s.clientFactory(b.BotToken())
	dispatcher := s.dispatcherFactory(b, client)
	entry := &dispatch.RegistryEntry{
		Client:     client,
		Dispatcher: dispatcher,
		Queue: dispatch.NewQueue(dispatch.QueueOptions{
			TenantID:       b.ID(),
			Size:           s.conf.Dispatch.QueueSize,
			Workers:        s.workersFor(ctx, b),
			EnqueueTimeout: s.conf.Dispatch.EnqueueTimeout,
			DrainTimeout:   s.conf.Dispatch.DrainTimeout,
			JoinTimeout:    s.conf.Dispatch.JoinTimeout,
			Dispatcher:     dispatcher,
			Logger:         s.logger.WithField("bot", b.Name()),
		}),
	}
	return s.registry.Register(ctx, b.ID(), entry), nil
}

// StartAll registers every active bot, called once at boot so webhook traffic
// is servable immediately.
func (s *BotService) StartAll(ctx context.Context) error {
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list active bots")
	}
	for _, b := range active {
		if _, err := s.EnsureRegistered(ctx, b); err != nil {
			return err
		}
		s.logger.WithField("bot", b.Name()).Info("registered bot")
	}
	return nil
}

// workersFor reads the per-tenant worker count override, falling back to the
// process-wide default on absence or a bad value.
func (s *BotService) workersFor(ctx context.Context, b *bot.Bot) int {
	fallback := s.conf.Dispatch.Workers
	if s.settings == nil {
		return fallback
	}
	v, err := s.settings.Value(ctx, b.ID(), "dispatch.workers", int64(fallback))
	if err != nil {
		s.logger.WithError(err).WithField("bot", b.Name()).Warn("failed to read worker count setting")
		return fallback
	}
	n, ok := v.(int64)
	if !ok || n <= 0 {
		return fallback
	}
	return int(n)
}

func (s *BotService) verifyCredential(ctx context.Context, client dispatch.Client, botToken string) (int64, error) {
	if verifier, ok := client.(interface {
		GetMe(ctx context.Context) (*telegram.Me, error)
	}); ok {
		me, err := verifier.GetMe(ctx)
		if err != nil {
			return 0, errors.Wrap(err, "bot credential rejected by platform")
		}
		return me.ID, nil
	}
	return telegram.ParseBotID(botToken)
}

func (s *BotService) update(ctx context.Context, b *bot.Bot) error {
	err := composables.InTenantTx(composables.WithTenantID(ctx, b.ID()), func(txCtx context.Context) error {
		return s.repo.Update(txCtx, b)
	})
	if err != nil {
		return errors.Wrap(err, "failed to update bot")
	}
	return nil
}

func (s *BotService) webhookURL(b *bot.Bot) string {
	return s.conf.Origin + "/webhook/" + b.WebhookToken()
}

func (s *BotService) cachedBot(ctx context.Context, key string) (*bot.Bot, bool) {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var snap botSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, false
	}
	return bot.New(
		snap.Name,
		bot.WithID(snap.ID),
		bot.WithBotID(snap.BotID),
		bot.WithBotToken(snap.BotToken),
		bot.WithWebhookToken(snap.WebhookToken),
		bot.WithIsPrimary(snap.IsPrimary),
		bot.WithIsActive(snap.IsActive),
		bot.WithCreatedAt(snap.CreatedAt),
		bot.WithUpdatedAt(snap.UpdatedAt),
	), true
}

func (s *BotService) storeBot(ctx context.Context, b *bot.Bot) {
	raw, err := json.Marshal(botSnapshot{
		ID:           b.ID(),
		Name:         b.Name(),
		BotID:        b.BotID(),
		BotToken:     b.BotToken(),
		WebhookToken: b.WebhookToken(),
		IsPrimary:    b.IsPrimary(),
		IsActive:     b.IsActive(),
		CreatedAt:    b.CreatedAt(),
		UpdatedAt:    b.UpdatedAt(),
	})
	if err != nil {
		return
	}
	ttl := s.conf.CacheTTL
	_ = s.cache.Set(ctx, tokenCacheKey(b.WebhookToken()), raw, ttl)
	_ = s.cache.Set(ctx, botIDCacheKey(b.BotID()), raw, ttl)
}

func (s *BotService) invalidate(ctx context.Context, b *bot.Bot) {
	if err := s.cache.Delete(ctx, tokenCacheKey(b.WebhookToken()), botIDCacheKey(b.BotID())); err != nil {
		s.logger.WithError(err).WithField("bot", b.Name()).Warn("failed to invalidate bot cache")
	}
}

func (s *BotService) mapNotFound(err error) error {
	if errors.Is(err, persistence.ErrBotNotFound) {
		return ErrBotNotFound
	}
	return err
}

func newWebhookToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "failed to generate webhook token")
	}
	return hex.EncodeToString(buf), nil
}
