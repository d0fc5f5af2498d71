package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/k4lantar4/remnabot/internal/server"
	"github.com/k4lantar4/remnabot/migrations"
	"github.com/k4lantar4/remnabot/modules"
	"github.com/k4lantar4/remnabot/modules/bots/services"
	"github.com/k4lantar4/remnabot/pkg/application"
	"github.com/k4lantar4/remnabot/pkg/composables"
	"github.com/k4lantar4/remnabot/pkg/configuration"
	"github.com/k4lantar4/remnabot/pkg/dispatch"
	"github.com/k4lantar4/remnabot/pkg/eventbus"
	"github.com/k4lantar4/remnabot/pkg/logging"
	"github.com/k4lantar4/remnabot/pkg/metrics"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			configuration.Use().Unload()
			log.Println(r)
			debug.PrintStack()
			os.Exit(1)
		}
	}()

	conf := configuration.Use()
	logger := conf.Logger()

	if conf.OpenTelemetry.Enabled {
		logging.SetupTracing()
		logger.Info("opentelemetry trace propagation enabled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	pool, err := pgxpool.New(ctx, conf.Database.Opts)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	if err := runMigrations(pool); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	app := application.New(&application.ApplicationOptions{
		Pool:     pool,
		EventBus: eventbus.NewEventPublisher(logger),
		Logger:   logger,
	})
	if err := modules.Load(app, modules.BuiltInModules...); err != nil {
		log.Fatalf("failed to load modules: %v", err)
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	botService := app.Service(services.BotService{}).(*services.BotService)
	registry := app.Service(dispatch.Registry{}).(*dispatch.Registry)

	bootCtx := composables.WithPool(context.Background(), pool)
	if err := botService.StartAll(bootCtx); err != nil {
		log.Fatalf("failed to register active bots: %v", err)
	}

	serverInstance, err := server.Default(&server.DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Pool:          pool,
	})
	if err != nil {
		log.Fatalf("failed to create server: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Listening on: %s\n", conf.Origin)
		errCh <- serverInstance.Start(conf.SocketAddress)
	}()

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		log.Fatalf("server stopped: %v", err)
	case <-sigCtx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := serverInstance.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http server shutdown failed")
	}
	// accepted updates drain before the process exits
	registry.Shutdown(shutdownCtx)
	configuration.Use().Unload()
}

func runMigrations(pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		_ = db.Close()
	}()
	return goose.Up(db, ".")
}
