package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/k4lantar4/remnabot/pkg/composables"
	"github.com/k4lantar4/remnabot/pkg/configuration"
	"github.com/k4lantar4/remnabot/pkg/httpapi"
)

type RateLimitConfig struct {
	RequestsPerPeriod int
	Period            time.Duration
	Store             limiter.Store
}

func NewMemoryStore() limiter.Store {
	return memory.NewStore()
}

func NewRedisStore(url string) (limiter.Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return sredis.NewStoreWithOptions(redis.NewClient(opts), limiter.StoreOptions{
		Prefix: "ratelimit",
	})
}

// RateLimit rejects callers above the configured request rate with 429. Keyed
// by client IP.
func RateLimit(config RateLimitConfig) mux.MiddlewareFunc {
	conf := configuration.Use()
	period := config.Period
	if period == 0 {
		period = time.Second
	}
	instance := limiter.New(config.Store, limiter.Rate{
		Period: period,
		Limit:  int64(config.RequestsPerPeriod),
	})

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiterCtx, err := instance.Get(r.Context(), getRealIP(r, conf))
			if err != nil {
				composables.UseLogger(r.Context()).WithError(err).Error("rate limiter failure")
				_ = httpapi.WriteError(w, http.StatusInternalServerError, "RATE_LIMIT_INTERNAL", "internal error", nil)
				return
			}
			if limiterCtx.Reached {
				_ = httpapi.WriteError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
