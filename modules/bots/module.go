package bots

import (
	"github.com/redis/go-redis/v9"

	"github.com/k4lantar4/remnabot/modules/bots/infrastructure/persistence"
	"github.com/k4lantar4/remnabot/modules/bots/presentation/controllers"
	"github.com/k4lantar4/remnabot/modules/bots/services"
	"github.com/k4lantar4/remnabot/pkg/application"
	"github.com/k4lantar4/remnabot/pkg/cache"
	"github.com/k4lantar4/remnabot/pkg/configuration"
	"github.com/k4lantar4/remnabot/pkg/dispatch"
)

func NewModule() application.Module {
	return &Module{}
}

type Module struct{}

func (m *Module) Register(app application.Application) error {
	conf := configuration.Use()

	store, err := newCacheStore(conf)
	if err != nil {
		return err
	}

	registry := dispatch.NewRegistry(app.Logger())
	settings := services.NewSettingsService(persistence.NewSettingRepository(), store, conf.CacheTTL)
	botService := services.NewBotService(services.BotServiceOptions{
		Repo:      persistence.NewBotRepository(),
		Registry:  registry,
		Cache:     store,
		Settings:  settings,
		Publisher: app.EventPublisher(),
		Logger:    app.Logger(),
		Conf:      conf,
	})

	app.RegisterServices(
		settings,
		botService,
		registry,
	)

	app.RegisterControllers(
		controllers.NewWebhookController(app),
	)

	return nil
}

func (m *Module) Name() string {
	return "bots"
}

func newCacheStore(conf *configuration.Configuration) (cache.Store, error) {
	if conf.Redis.URL == "" {
		return cache.NewMemoryStore(), nil
	}
	opts, err := redis.ParseURL(conf.Redis.URL)
	if err != nil {
		return nil, err
	}
	if conf.Redis.Password != "" {
		opts.Password = conf.Redis.Password
	}
	opts.DB = conf.Redis.DB
	return cache.NewRedisStore(redis.NewClient(opts)), nil
}
