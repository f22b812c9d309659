// Package handlers contains the HTTP building blocks of the directory service.
//
// # Health Checks
//
// CompositeHealthChecker runs named checks in parallel. Required checks decide
// readiness; optional ones only mark the service as degraded:
//
//	checker := handlers.NewCompositeHealthChecker(version)
//	checker.AddCheck("postgres", handlers.NewPingCheck(db))
//	checker.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
//
// # Telegram Webhook
//
// TelegramWebhook verifies the X-Telegram-Bot-Api-Secret-Token header and
// passes the raw update to a WebhookHandler (the bot):
//
//	mux.Handle("POST /telegram/webhook", handlers.NewTelegramWebhook(bot, secret, log))
//
// Telegram repeats updates that are not answered with 2xx, so the endpoint
// answers {"ok":true} once the payload is accepted, even if processing fails.
//
// # Middleware
//
//	h := handlers.ChainHandler(mux,
//	    handlers.Recover(log),
//	    handlers.RequestID,
//	    handlers.AccessLog(log),
//	    handlers.SecurityHeaders,
//	)
package handlers
