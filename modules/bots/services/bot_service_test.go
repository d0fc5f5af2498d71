package services_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/k4lantar4/remnabot/modules/bots/infrastructure/telegram"
	"github.com/k4lantar4/remnabot/modules/bots/services"
	"github.com/k4lantar4/remnabot/pkg/cache"
	"github.com/k4lantar4/remnabot/pkg/configuration"
	"github.com/k4lantar4/remnabot/pkg/dispatch"
	"github.com/k4lantar4/remnabot/pkg/eventbus"
)

type fakeClient struct {
	mu             sync.Mutex
	sent           []string
	webhookURL     string
	webhookSecret  string
	webhookDeleted bool
	me             telegram.Me
	getMeErr       error
}

func (c *fakeClient) SendMessage(_ context.Context, _ int64, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeClient) SetWebhook(_ context.Context, url, secretToken string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.webhookURL = url
	c.webhookSecret = secretToken
	return nil
}

func (c *fakeClient) DeleteWebhook(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.webhookDeleted = true
	return nil
}

func (c *fakeClient) GetMe(_ context.Context) (*telegram.Me, error) {
	if c.getMeErr != nil {
		return nil, c.getMeErr
	}
	me := c.me
	return &me, nil
}

type botServiceEnv struct {
	svc      *services.BotService
	repo     *memoryBotRepo
	registry *dispatch.Registry
	client   *fakeClient
}

func newBotServiceEnv(t *testing.T) *botServiceEnv {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	client := &fakeClient{me: telegram.Me{ID: 123456, IsBot: true, Username: "remna_bot"}}
	repo := newMemoryBotRepo()
	registry := dispatch.NewRegistry(logger)
	store := cache.NewMemoryStore()
	settings := services.NewSettingsService(newMemorySettingRepo(), store, time.Minute)

	svc := services.NewBotService(services.BotServiceOptions{
		Repo:      repo,
		Registry:  registry,
		Cache:     store,
		Settings:  settings,
		Publisher: eventbus.NewEventPublisher(logger),
		Logger:    logger,
		Conf:      configuration.Use(),
		ClientFactory: func(string) dispatch.Client {
			return client
		},
	})
	env := &botServiceEnv{svc: svc, repo: repo, registry: registry, client: client}
	t.Cleanup(func() {
		registry.Shutdown(context.Background())
	})
	return env
}

func TestBotService_CreateIssuesWebhookToken(t *testing.T) {
	env := newBotServiceEnv(t)
	ctx := txContext()

	b, err := env.svc.Create(ctx, "support", "123456:secret", false)
	require.NoError(t, err)
	require.Len(t, b.WebhookToken(), 48)
	require.Equal(t, int64(123456), b.BotID())
	require.False(t, b.IsActive())

	// bot id comes from the platform, not the caller
	require.Equal(t, env.client.me.ID, b.BotID())
}

func TestBotService_CreateRejectsBadCredential(t *testing.T) {
	env := newBotServiceEnv(t)
	env.client.getMeErr = context.DeadlineExceeded
	ctx := txContext()

	_, err := env.svc.Create(ctx, "support", "123456:secret", false)
	require.Error(t, err)
}

func TestBotService_ActivateRegistersQueueAndSetsWebhook(t *testing.T) {
	env := newBotServiceEnv(t)
	ctx := txContext()

	b, err := env.svc.Create(ctx, "support", "123456:secret", false)
	require.NoError(t, err)

	b, err = env.svc.Activate(ctx, b.ID())
	require.NoError(t, err)
	require.True(t, b.IsActive())

	entry, ok := env.registry.Lookup(b.ID())
	require.True(t, ok)
	require.Equal(t, dispatch.StateRunning, entry.Queue.State())
	require.True(t, strings.HasSuffix(env.client.webhookURL, "/webhook/"+b.WebhookToken()))
}

func TestBotService_DeactivateUnregistersQueue(t *testing.T) {
	env := newBotServiceEnv(t)
	ctx := txContext()

	b, err := env.svc.Create(ctx, "support", "123456:secret", false)
	require.NoError(t, err)
	_, err = env.svc.Activate(ctx, b.ID())
	require.NoError(t, err)

	b, err = env.svc.Deactivate(ctx, b.ID())
	require.NoError(t, err)
	require.False(t, b.IsActive())

	_, ok := env.registry.Lookup(b.ID())
	require.False(t, ok)
	require.True(t, env.client.webhookDeleted)
}

func TestBotService_EnsureRegisteredRefusesInactiveBot(t *testing.T) {
	env := newBotServiceEnv(t)
	ctx := txContext()

	b, err := env.svc.Create(ctx, "support", "123456:secret", false)
	require.NoError(t, err)
	activated, err := env.svc.Activate(ctx, b.ID())
	require.NoError(t, err)

	_, err = env.svc.Deactivate(ctx, b.ID())
	require.NoError(t, err)

	// A request that resolved the bot before the deactivation still holds an
	// active snapshot. It must not bring the drained queue back to life.
	_, err = env.svc.EnsureRegistered(ctx, activated)
	require.ErrorIs(t, err, services.ErrBotInactive)

	_, ok := env.registry.Lookup(b.ID())
	require.False(t, ok)
}

func TestBotService_PrimaryBotIsProtected(t *testing.T) {
	env := newBotServiceEnv(t)
	ctx := txContext()

	b, err := env.svc.Create(ctx, "main", "123456:secret", true)
	require.NoError(t, err)

	_, err = env.svc.Deactivate(ctx, b.ID())
	require.ErrorIs(t, err, services.ErrPrimaryBot)

	err = env.svc.Delete(ctx, b.ID())
	require.ErrorIs(t, err, services.ErrPrimaryBot)
}

func TestBotService_DeleteRemovesBot(t *testing.T) {
	env := newBotServiceEnv(t)
	ctx := txContext()

	b, err := env.svc.Create(ctx, "support", "123456:secret", false)
	require.NoError(t, err)
	_, err = env.svc.Activate(ctx, b.ID())
	require.NoError(t, err)

	require.NoError(t, env.svc.Delete(ctx, b.ID()))

	_, ok := env.registry.Lookup(b.ID())
	require.False(t, ok)
	_, err = env.svc.GetByID(ctx, b.ID())
	require.ErrorIs(t, err, services.ErrBotNotFound)
}

func TestBotService_GetByWebhookToken(t *testing.T) {
	env := newBotServiceEnv(t)
	ctx := txContext()

	b, err := env.svc.Create(ctx, "support", "123456:secret", false)
	require.NoError(t, err)

	got, err := env.svc.GetByWebhookToken(ctx, b.WebhookToken())
	require.NoError(t, err)
	require.Equal(t, b.ID(), got.ID())

	_, err = env.svc.GetByWebhookToken(ctx, "no-such-token")
	require.ErrorIs(t, err, services.ErrBotNotFound)
}

func TestBotService_GetByWebhookTokenServesFromCache(t *testing.T) {
	env := newBotServiceEnv(t)
	ctx := txContext()

	b, err := env.svc.Create(ctx, "support", "123456:secret", false)
	require.NoError(t, err)

	_, err = env.svc.GetByWebhookToken(ctx, b.WebhookToken())
	require.NoError(t, err)

	// remove the row behind the cache's back; resolution still succeeds
	require.NoError(t, env.repo.Delete(ctx, b.ID()))
	got, err := env.svc.GetByWebhookToken(ctx, b.WebhookToken())
	require.NoError(t, err)
	require.Equal(t, b.ID(), got.ID())
}

func TestBotService_GetByBotID(t *testing.T) {
	env := newBotServiceEnv(t)
	ctx := txContext()

	b, err := env.svc.Create(ctx, "support", "123456:secret", false)
	require.NoError(t, err)

	got, err := env.svc.GetByBotID(ctx, 123456)
	require.NoError(t, err)
	require.Equal(t, b.ID(), got.ID())

	_, err = env.svc.GetByBotID(ctx, 999)
	require.ErrorIs(t, err, services.ErrBotNotFound)
}

func TestBotService_StartAllRegistersActiveBots(t *testing.T) {
	env := newBotServiceEnv(t)
	ctx := txContext()

	active, err := env.svc.Create(ctx, "support", "123456:secret", false)
	require.NoError(t, err)
	_, err = env.svc.Activate(ctx, active.ID())
	require.NoError(t, err)
	env.registry.Shutdown(ctx)

	dormant, err := env.svc.Create(ctx, "backup", "123456:secret", false)
	require.NoError(t, err)

	require.NoError(t, env.svc.StartAll(ctx))
	_, ok := env.registry.Lookup(active.ID())
	require.True(t, ok)
	_, ok = env.registry.Lookup(dormant.ID())
	require.False(t, ok)

	b, err := env.svc.GetByID(ctx, active.ID())
	require.NoError(t, err)
	require.True(t, b.IsActive())
}
