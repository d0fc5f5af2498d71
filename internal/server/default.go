package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"

	"github.com/k4lantar4/remnabot/pkg/application"
	"github.com/k4lantar4/remnabot/pkg/configuration"
	"github.com/k4lantar4/remnabot/pkg/constants"
	"github.com/k4lantar4/remnabot/pkg/httpapi"
	"github.com/k4lantar4/remnabot/pkg/middleware"
	"github.com/k4lantar4/remnabot/pkg/server"
)

type DefaultOptions struct {
	Logger        *logrus.Logger
	Configuration *configuration.Configuration
	Application   application.Application
	Pool          *pgxpool.Pool
}

func Default(options *DefaultOptions) (*server.HTTPServer, error) {
	app := options.Application
	conf := options.Configuration

	middlewares := []mux.MiddlewareFunc{
		middleware.WithLogger(options.Logger, middleware.DefaultLoggerOptions()),
		middleware.Provide(constants.AppKey, app),
		middleware.Provide(constants.PoolKey, options.Pool),
		middleware.Cors(conf.Origin),
	}

	if conf.RateLimit.Enabled {
		var store limiter.Store
		switch conf.RateLimit.Storage {
		case "redis":
			redisStore, err := middleware.NewRedisStore(conf.Redis.URL)
			if err != nil {
				options.Logger.WithError(err).Warn("failed to create redis store for rate limiting, falling back to memory")
				store = middleware.NewMemoryStore()
			} else {
				store = redisStore
			}
		default:
			store = middleware.NewMemoryStore()
		}
		middlewares = append(middlewares, middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerPeriod: conf.RateLimit.GlobalRPS,
			Store:             store,
		}))
	}

	middlewares = append(middlewares, middleware.RequestParams())

	app.RegisterMiddleware(middlewares...)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	methodNotAllowed := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = httpapi.WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	return server.NewHTTPServer(app, notFound, methodNotAllowed), nil
}
