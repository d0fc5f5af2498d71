package controllers

import (
	"crypto/subtle"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/gorilla/mux"

	"github.com/k4lantar4/remnabot/modules/bots/domain/entities/bot"
	"github.com/k4lantar4/remnabot/modules/bots/services"
	"github.com/k4lantar4/remnabot/pkg/application"
	"github.com/k4lantar4/remnabot/pkg/composables"
	"github.com/k4lantar4/remnabot/pkg/configuration"
	"github.com/k4lantar4/remnabot/pkg/dispatch"
	"github.com/k4lantar4/remnabot/pkg/httpapi"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookController ingests platform updates. It resolves the path token to a
// tenant, validates the call and enqueues exactly one entry on the tenant's
// queue. Processing happens on the queue workers, never on the request
// goroutine.
type WebhookController struct {
	app      application.Application
	bots     *services.BotService
	conf     *configuration.Configuration
	basePath string
}

func NewWebhookController(app application.Application) application.Controller {
	return &WebhookController{
		app:      app,
		bots:     app.Service(services.BotService{}).(*services.BotService),
		conf:     configuration.Use(),
		basePath: "/webhook",
	}
}

func (c *WebhookController) Key() string {
	return c.basePath
}

func (c *WebhookController) Register(r *mux.Router) {
	router := r.PathPrefix(c.basePath).Subrouter()
	router.HandleFunc("/bot/{botID:[0-9]+}", c.ReceiveByBotID).Methods(http.MethodPost)
	router.HandleFunc("/{token}", c.Receive).Methods(http.MethodPost)
}

// Receive handles the canonical path form POST /webhook/{token}.
func (c *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	if token == "" {
		composables.UseLogger(r.Context()).Debug("webhook call without token")
		_ = httpapi.WriteError(w, http.StatusBadRequest, "WEBHOOK_BAD_REQUEST", "missing webhook token", nil)
		return
	}

	b, err := c.bots.GetByWebhookToken(r.Context(), token)
	if err != nil {
		c.writeLookupError(w, r, tokenPrefix(token), err)
		return
	}
	c.accept(w, r, b)
}

// ReceiveByBotID handles the legacy numeric form POST /webhook/bot/{botID}.
func (c *WebhookController) ReceiveByBotID(w http.ResponseWriter, r *http.Request) {
	botID, err := strconv.ParseInt(mux.Vars(r)["botID"], 10, 64)
	if err != nil {
		composables.UseLogger(r.Context()).Debug("webhook call with malformed bot id")
		_ = httpapi.WriteError(w, http.StatusBadRequest, "WEBHOOK_BAD_REQUEST", "malformed bot id", nil)
		return
	}

	b, err := c.bots.GetByBotID(r.Context(), botID)
	if err != nil {
		c.writeLookupError(w, r, strconv.FormatInt(botID, 10), err)
		return
	}
	c.accept(w, r, b)
}

func (c *WebhookController) accept(w http.ResponseWriter, r *http.Request, b *bot.Bot) {
	logger := composables.UseLogger(r.Context()).WithField("bot", b.Name())

	if !b.IsActive() {
		logger.Warn("webhook call for inactive bot")
		_ = httpapi.WriteError(w, http.StatusForbidden, "WEBHOOK_FORBIDDEN", "bot is not active", nil)
		return
	}

	if secret := c.conf.Webhook.SecretToken; secret != "" {
		got := r.Header.Get(secretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			logger.Warn("webhook secret token mismatch")
			_ = httpapi.WriteError(w, http.StatusUnauthorized, "WEBHOOK_UNAUTHORIZED", "invalid secret token", nil)
			return
		}
	}

	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/json" {
		logger.Debug("webhook call with unsupported content type")
		_ = httpapi.WriteError(w, http.StatusUnsupportedMediaType, "WEBHOOK_UNSUPPORTED_MEDIA", "expected application/json", nil)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, c.conf.Webhook.MaxBodyBytes))
	if err != nil {
		logger.Debug("webhook body rejected")
		_ = httpapi.WriteError(w, http.StatusBadRequest, "WEBHOOK_BAD_REQUEST", "unreadable or oversized body", nil)
		return
	}

	upd, err := dispatch.ParseUpdate(body)
	if err != nil {
		logger.WithError(err).Debug("webhook body malformed")
		_ = httpapi.WriteError(w, http.StatusBadRequest, "WEBHOOK_BAD_REQUEST", "malformed update", nil)
		return
	}

	// tenant is bound to this call's context only; the queue workers derive
	// their own per-entry contexts
	ctx := composables.WithTenantID(r.Context(), b.ID())
	entry, err := c.bots.EnsureRegistered(ctx, b)
	if err != nil {
		if errors.Is(err, services.ErrBotInactive) {
			logger.Warn("webhook call raced a deactivation")
			_ = httpapi.WriteError(w, http.StatusForbidden, "WEBHOOK_FORBIDDEN", "bot is not active", nil)
			return
		}
		logger.WithError(err).Warn("failed to register bot queue")
		c.writeOverloaded(w)
		return
	}

	if err := entry.Queue.Enqueue(upd); err != nil {
		if errors.Is(err, dispatch.ErrQueueFull) || errors.Is(err, dispatch.ErrNotRunning) {
			logger.WithError(err).WithField("update_id", upd.UpdateID).Warn("update rejected")
			c.writeOverloaded(w)
			return
		}
		logger.WithError(err).Error("enqueue failed")
		c.writeOverloaded(w)
		return
	}

	_ = httpapi.WriteAccepted(w)
}

func (c *WebhookController) writeLookupError(w http.ResponseWriter, r *http.Request, ref string, err error) {
	logger := composables.UseLogger(r.Context())
	if errors.Is(err, services.ErrBotNotFound) {
		logger.WithField("token_prefix", ref).Warn("webhook call for unknown bot")
		_ = httpapi.WriteError(w, http.StatusNotFound, "WEBHOOK_NOT_FOUND", "unknown bot", nil)
		return
	}
	logger.WithError(err).Error("bot lookup failed")
	_ = httpapi.WriteError(w, http.StatusInternalServerError, "WEBHOOK_INTERNAL", "internal error", nil)
}

func (c *WebhookController) writeOverloaded(w http.ResponseWriter) {
	w.Header().Set("Retry-After", "1")
	_ = httpapi.WriteError(w, http.StatusServiceUnavailable, "WEBHOOK_OVERLOADED", "processing queue unavailable", nil)
}

// tokenPrefix truncates an inbound token for logging. Full tokens never reach
// the logs.
func tokenPrefix(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8]
}
