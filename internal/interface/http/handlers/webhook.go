package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jbcub/studentdir/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TELEGRAM WEBHOOK
// Telegram posts each update as JSON and repeats the secret configured with
// setWebhook in a header. Anything else is refused before the bot sees it.
// ══════════════════════════════════════════════════════════════════════════════

// SecretTokenHeader carries the webhook secret.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// maxUpdateBytes bounds a single update body. Documents are fetched
// separately, so updates themselves are small.
const maxUpdateBytes = 1 << 20

// WebhookHandler processes one raw Telegram update.
type WebhookHandler interface {
	HandleTelegramUpdate(ctx context.Context, payload []byte) error
}

// TelegramWebhook is the HTTP endpoint for Telegram updates.
type TelegramWebhook struct {
	handler WebhookHandler
	secret  string
	logger  *logger.Logger
}

// NewTelegramWebhook creates the endpoint. An empty secret disables the
// header check.
func NewTelegramWebhook(handler WebhookHandler, secret string, log *logger.Logger) *TelegramWebhook {
	if log == nil {
		log = logger.Default()
	}
	return &TelegramWebhook{
		handler: handler,
		secret:  secret,
		logger:  log.With(logger.Component("webhook")),
	}
}

// ServeHTTP implements http.Handler.
func (h *TelegramWebhook) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			h.logger.Warn("webhook secret mismatch", logger.String("remote_addr", r.RemoteAddr))
			writeStatus(w, http.StatusForbidden, map[string]any{"ok": false, "error": "forbidden"})
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpdateBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeStatus(w, http.StatusRequestEntityTooLarge, map[string]any{"ok": false, "error": "too_large"})
			return
		}
		writeStatus(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "unreadable_body"})
		return
	}
	if !json.Valid(body) {
		writeStatus(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid_json"})
		return
	}

	if err := h.handler.HandleTelegramUpdate(r.Context(), body); err != nil {
		// Telegram retries non-2xx answers; a payload we could not decode
		// would only come back again.
		h.logger.Error("failed to accept update", logger.Err(err))
	}

	writeStatus(w, http.StatusOK, map[string]any{"ok": true})
}

func writeStatus(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
