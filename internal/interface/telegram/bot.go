// Package telegram implements the Telegram bot of the student directory.
// This package is the entry point for all Telegram interactions: it receives
// updates, runs them through the middleware chain, routes them to handlers
// and manages the bot lifecycle.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jbcub/studentdir/internal/infrastructure/external/telegram"
	"github.com/jbcub/studentdir/internal/interface/telegram/handler"
	"github.com/jbcub/studentdir/internal/interface/telegram/handler/callback"
	"github.com/jbcub/studentdir/internal/interface/telegram/middleware"
	"github.com/jbcub/studentdir/internal/interface/telegram/presenter"
	"github.com/jbcub/studentdir/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Update receiving modes.
const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// BotConfig contains configuration for the Telegram bot.
type BotConfig struct {
	// Token is the Telegram Bot API token.
	Token string

	// Mode is the update receiving mode: "polling" or "webhook".
	Mode string

	// WebhookURL is the public URL Telegram posts updates to (webhook mode).
	WebhookURL string

	// WebhookSecret is echoed by Telegram in X-Telegram-Bot-Api-Secret-Token.
	WebhookSecret string

	// PollingTimeout is the timeout for long polling (in seconds).
	PollingTimeout int

	// Debug enables debug logging.
	Debug bool

	// Logger for structured logging.
	Logger *slog.Logger

	// Retrier wraps Bot API calls; nil uses the client default.
	Retrier *retry.Retrier

	// AllowedUpdates specifies which update types to receive.
	AllowedUpdates []string

	// MaxConcurrentUpdates limits concurrent update processing.
	MaxConcurrentUpdates int

	// GracefulShutdownTimeout is the timeout for graceful shutdown.
	GracefulShutdownTimeout time.Duration

	// Import limits uploads.
	Import handler.ImportConfig
}

// DefaultBotConfig returns sensible defaults.
func DefaultBotConfig(token string) BotConfig {
	return BotConfig{
		Token:                   token,
		Mode:                    ModePolling,
		PollingTimeout:          30,
		Logger:                  slog.Default(),
		AllowedUpdates:          []string{"message", "callback_query"},
		MaxConcurrentUpdates:    100,
		GracefulShutdownTimeout: 30 * time.Second,
		Import: handler.ImportConfig{
			MaxFileSize: 5 << 20,
			MaxRows:     5000,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT DEPENDENCIES
// Aggregates all dependencies needed by handlers.
// ══════════════════════════════════════════════════════════════════════════════

// BotDependencies contains all dependencies for the bot handlers.
type BotDependencies struct {
	// Queries
	Search      handler.StudentSearcher
	Cards       callback.CardReader
	CheckAccess middleware.AccessChecker
	LastReport  handler.LastReportReader

	// Commands
	Import       handler.Importer
	RedeemInvite handler.InviteRedeemer

	// InviteEnabled tells /start to mention /join.
	InviteEnabled bool

	// Limiter overrides the in-process token bucket (e.g. the Redis limiter).
	Limiter middleware.Limiter

	// RateLimit configures the in-process limiter when Limiter is nil.
	RateLimit middleware.RateLimitConfig

	// Metrics receives update counts; may be nil.
	Metrics middleware.UpdateRecorder

	// Denials counts refused requests; may be nil.
	Denials middleware.DenialRecorder
}

// API is the part of the Bot API client the bot uses.
type API interface {
	Messenger
	handler.FileFetcher

	GetMe(ctx context.Context) (*telegram.User, error)
	SetWebhook(ctx context.Context, url, secretToken string, allowedUpdates []string) error
	DeleteWebhook(ctx context.Context, dropPendingUpdates bool) error
	StartPolling(ctx context.Context, handler telegram.UpdateHandler) error
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// Main bot structure that orchestrates Telegram interactions.
// ══════════════════════════════════════════════════════════════════════════════

// Bot is the main Telegram bot controller.
type Bot struct {
	config BotConfig
	client API
	router *Router
	logger *slog.Logger

	// Middleware chain
	authMiddleware     *middleware.AuthMiddleware
	rateLimiter        middleware.Limiter
	ownLimiter         *middleware.RateLimiter
	recoveryMiddleware *middleware.RecoveryMiddleware
	metricsMiddleware  *middleware.MetricsMiddleware

	// Lifecycle management
	running   bool
	runningMu sync.RWMutex
	runCtx    context.Context
	updateSem chan struct{} // Semaphore for concurrent update limiting
	wg        sync.WaitGroup

	// Statistics
	startedAt       atomic.Int64
	updatesReceived atomic.Int64
	updatesHandled  atomic.Int64
	errorsCount     atomic.Int64
}

// NewBot creates a new Telegram bot talking to the real Bot API.
func NewBot(config BotConfig, deps BotDependencies) (*Bot, error) {
	if config.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	clientConfig := telegram.DefaultClientConfig(config.Token)
	clientConfig.Logger = config.Logger
	clientConfig.Debug = config.Debug
	clientConfig.Retrier = config.Retrier
	if config.PollingTimeout > 0 {
		clientConfig.PollingTimeout = config.PollingTimeout
	}

	return NewBotWithAPI(config, deps, telegram.NewClient(clientConfig))
}

// NewBotWithAPI creates a bot over an existing API client.
func NewBotWithAPI(config BotConfig, deps BotDependencies, api API) (*Bot, error) {
	if api == nil {
		return nil, errors.New("telegram api client is required")
	}
	if deps.Search == nil || deps.Cards == nil || deps.CheckAccess == nil {
		return nil, errors.New("search, cards and access dependencies are required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Mode == "" {
		config.Mode = ModePolling
	}
	if config.MaxConcurrentUpdates <= 0 {
		config.MaxConcurrentUpdates = 100
	}
	if config.GracefulShutdownTimeout <= 0 {
		config.GracefulShutdownTimeout = 30 * time.Second
	}
	if len(config.AllowedUpdates) == 0 {
		config.AllowedUpdates = []string{"message", "callback_query"}
	}

	// Create presenters
	cardPresenter := presenter.NewStudentCardPresenter()
	reportPresenter := presenter.NewReportPresenter()

	// Create handlers
	startHandler := handler.NewStartHandler(deps.InviteEnabled && deps.RedeemInvite != nil)
	helpHandler := handler.NewHelpHandler()
	searchHandler := handler.NewSearchHandler(deps.Search, cardPresenter, config.Logger)
	cardCallback := callback.NewCardHandler(deps.Cards, cardPresenter)

	// Create router with all handlers
	router := NewRouter(RouterConfig{
		Logger: config.Logger,
		Debug:  config.Debug,
	})

	router.RegisterCommand("start", startHandler, middleware.RequireNothing)
	router.RegisterCommand("help", helpHandler, middleware.RequireNothing)
	router.SetSearchHandler(searchHandler)

	if deps.RedeemInvite != nil {
		router.RegisterCommand("join", handler.NewJoinHandler(deps.RedeemInvite), middleware.RequireNothing)
	}

	if deps.Import != nil && deps.LastReport != nil {
		importHandler := handler.NewImportHandler(
			deps.Import,
			deps.LastReport,
			api,
			reportPresenter,
			config.Import,
			config.Logger,
		)
		router.RegisterCommand("import", importHandler, middleware.RequireAdmin)
		router.RegisterCommand("report", importHandler, middleware.RequireAdmin)
		router.SetDocumentHandler(importHandler)
	}

	for _, prefix := range callback.Prefixes() {
		router.RegisterCallbackPrefix(prefix, cardCallback, middleware.RequireMember)
	}

	// Create middleware
	bot := &Bot{
		config: config,
		client: api,
		router: router,
		logger: config.Logger,
		authMiddleware: middleware.NewAuthMiddleware(
			deps.CheckAccess,
			deps.Denials,
			middleware.DefaultAuthConfig(),
		),
		recoveryMiddleware: middleware.NewRecoveryMiddleware(recoveryConfig(config.Logger)),
		metricsMiddleware: middleware.NewMetricsMiddleware(middleware.MetricsConfig{
			Recorder:             deps.Metrics,
			SlowRequestThreshold: 10 * time.Second,
			OnSlowRequest: func(action string, d time.Duration, telegramID int64) {
				config.Logger.Warn("slow update", "action", action, "duration", d, "telegram_id", telegramID)
			},
		}),
		updateSem: make(chan struct{}, config.MaxConcurrentUpdates),
	}

	if deps.Limiter != nil {
		bot.rateLimiter = deps.Limiter
	} else {
		bot.ownLimiter = middleware.NewRateLimiter(deps.RateLimit)
		bot.rateLimiter = bot.ownLimiter
	}

	return bot, nil
}

func recoveryConfig(logger *slog.Logger) middleware.RecoveryConfig {
	cfg := middleware.DefaultRecoveryConfig()
	cfg.Logger = logger
	return cfg
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE MANAGEMENT
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the bot and blocks until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.runningMu.Lock()
	if b.running {
		b.runningMu.Unlock()
		return errors.New("bot is already running")
	}
	b.running = true
	b.runCtx = ctx
	b.startedAt.Store(time.Now().UnixNano())
	b.runningMu.Unlock()

	b.logger.Info("starting telegram bot",
		"mode", b.config.Mode,
		"debug", b.config.Debug,
	)

	// Verify bot token with getMe
	if err := b.verifyToken(ctx); err != nil {
		return fmt.Errorf("failed to verify bot token: %w", err)
	}

	switch b.config.Mode {
	case ModePolling:
		return b.startPolling(ctx)
	case ModeWebhook:
		return b.startWebhook(ctx)
	default:
		return fmt.Errorf("unknown bot mode: %s", b.config.Mode)
	}
}

// Stop waits for in-flight updates and releases background resources.
func (b *Bot) Stop(ctx context.Context) error {
	b.runningMu.Lock()
	if !b.running {
		b.runningMu.Unlock()
		return nil
	}
	b.running = false
	b.runningMu.Unlock()

	b.logger.Info("stopping telegram bot")

	if b.ownLimiter != nil {
		b.ownLimiter.Close()
	}

	// Wait for all handlers to complete with timeout
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.logger.Info("all handlers completed gracefully")
	case <-time.After(b.config.GracefulShutdownTimeout):
		b.logger.Warn("graceful shutdown timeout exceeded")
	case <-ctx.Done():
		b.logger.Warn("context cancelled during shutdown")
		return ctx.Err()
	}

	return nil
}

// IsRunning returns whether the bot is currently running.
func (b *Bot) IsRunning() bool {
	b.runningMu.RLock()
	defer b.runningMu.RUnlock()
	return b.running
}

// verifyToken verifies the bot token by calling getMe.
func (b *Bot) verifyToken(ctx context.Context) error {
	me, err := b.client.GetMe(ctx)
	if err != nil {
		return err
	}

	b.logger.Info("bot verified",
		"id", me.ID,
		"username", me.Username,
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// POLLING MODE
// ══════════════════════════════════════════════════════════════════════════════

// startPolling runs long polling until ctx is cancelled.
func (b *Bot) startPolling(ctx context.Context) error {
	// A webhook left over from a previous deployment blocks getUpdates.
	if err := b.client.DeleteWebhook(ctx, false); err != nil {
		b.logger.Warn("failed to delete webhook before polling", "error", err)
	}

	b.logger.Info("starting long polling")

	err := b.client.StartPolling(ctx, func(ctx context.Context, update *telegram.Update) error {
		return b.HandleUpdate(ctx, update)
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// WEBHOOK MODE
// Updates arrive through the HTTP server, which calls HandleTelegramUpdate.
// ══════════════════════════════════════════════════════════════════════════════

// startWebhook registers the webhook and blocks until ctx is cancelled.
func (b *Bot) startWebhook(ctx context.Context) error {
	if b.config.WebhookURL == "" {
		return errors.New("webhook URL is required for webhook mode")
	}

	b.logger.Info("registering webhook", "url", b.config.WebhookURL)

	if err := b.client.SetWebhook(ctx, b.config.WebhookURL, b.config.WebhookSecret, b.config.AllowedUpdates); err != nil {
		return fmt.Errorf("failed to set webhook: %w", err)
	}

	<-ctx.Done()
	return nil
}

// HandleTelegramUpdate decodes a webhook payload and processes it in the
// background, so Telegram gets its answer before the handler finishes.
func (b *Bot) HandleTelegramUpdate(_ context.Context, payload []byte) error {
	var update telegram.Update
	if err := json.Unmarshal(payload, &update); err != nil {
		return fmt.Errorf("decode update: %w", err)
	}

	ctx := b.backgroundContext()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		_ = b.HandleUpdate(ctx, &update)
	}()
	return nil
}

func (b *Bot) backgroundContext() context.Context {
	b.runningMu.RLock()
	defer b.runningMu.RUnlock()
	if b.runCtx != nil {
		return b.runCtx
	}
	return context.Background()
}

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// HandleUpdate processes a single Telegram update.
func (b *Bot) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	// Acquire semaphore slot
	select {
	case b.updateSem <- struct{}{}:
		defer func() { <-b.updateSem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	b.wg.Add(1)
	defer b.wg.Done()

	b.updatesReceived.Add(1)

	ctx = middleware.ContextWithTelegramID(ctx, extractTelegramID(update))
	ctx = middleware.ContextWithRequestID(ctx, uuid.NewString())

	var err error
	switch {
	case update.Message != nil:
		err = b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		err = b.handleCallbackQuery(ctx, update.CallbackQuery)
	default:
		// Edited messages and other update types are ignored.
		return nil
	}

	if err != nil {
		b.errorsCount.Add(1)
		b.logger.Error("failed to handle update",
			"update_id", update.UpdateID,
			"request_id", middleware.RequestIDFromContext(ctx),
			"error", err,
		)
		return err
	}

	b.updatesHandled.Add(1)
	return nil
}

// handleMessage sorts a message into command, document or search text.
func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) error {
	if msg.From == nil || msg.Chat == nil {
		return nil
	}

	if command := telegram.ExtractCommand(msg); command != "" {
		return b.handleCommand(ctx, msg, command, telegram.ExtractCommandArgs(msg))
	}

	if msg.Document != nil {
		return b.handleDocument(ctx, msg)
	}

	if text := strings.TrimSpace(msg.Text); text != "" {
		return b.handleSearch(ctx, msg, text)
	}

	return nil
}

// gate runs the rate limiter and the access check. When the update must not
// go further it has already been answered and ok is false.
func (b *Bot) gate(
	ctx context.Context,
	rc *middleware.RequestContext,
	user *telegram.User,
	need middleware.Requirement,
	reply func(text string) error,
) (auth *middleware.AuthResult, ok bool, err error) {
	if limit := b.rateLimiter.Check(ctx, user.ID); !limit.Allowed {
		rc.End(middleware.StatusLimited)
		return nil, false, reply(limit.ResponseMessage)
	}

	auth, err = b.authMiddleware.Authenticate(ctx, user.ID, user.Username, need)
	if err != nil {
		rc.End(middleware.StatusError)
		_ = reply(middleware.DefaultRecoveryConfig().UserErrorMessage)
		return nil, false, err
	}
	if !auth.ShouldContinue {
		rc.End(middleware.StatusDenied)
		return auth, false, reply(auth.ResponseMessage)
	}
	return auth, true, nil
}

// guard runs fn under the recovery middleware and closes the metrics record.
func (b *Bot) guard(ctx context.Context, rc *middleware.RequestContext, reply func(text string) error, fn func() error) error {
	result := b.recoveryMiddleware.RecoverWithHandler(ctx, rc.TelegramID, rc.Action, fn)
	if result.Recovered {
		rc.End(middleware.StatusPanic)
		return reply(result.UserMessage)
	}
	rc.EndWithError(result.Err)
	return result.Err
}

// handleCommand processes a bot command.
func (b *Bot) handleCommand(ctx context.Context, msg *telegram.Message, command, args string) error {
	rc := b.metricsMiddleware.Start(command, msg.From.ID)
	reply := b.replier(ctx, msg.Chat.ID)

	auth, ok, err := b.gate(ctx, rc, msg.From, b.router.CommandRequirement(command), reply)
	if !ok {
		return err
	}
	ctx = middleware.ContextWithRole(ctx, auth.Role)

	return b.guard(ctx, rc, reply, func() error {
		return b.router.HandleCommand(ctx, command, CommandContext{
			TelegramID: msg.From.ID,
			Username:   msg.From.Username,
			FirstName:  msg.From.FirstName,
			ChatID:     msg.Chat.ID,
			Args:       args,
			Role:       auth.Role,
			Message:    msg,
			Client:     b.client,
		})
	})
}

// handleDocument processes an uploaded file.
func (b *Bot) handleDocument(ctx context.Context, msg *telegram.Message) error {
	rc := b.metricsMiddleware.Start("document", msg.From.ID)
	reply := b.replier(ctx, msg.Chat.ID)

	auth, ok, err := b.gate(ctx, rc, msg.From, middleware.RequireAdmin, reply)
	if !ok {
		return err
	}
	ctx = middleware.ContextWithRole(ctx, auth.Role)

	return b.guard(ctx, rc, reply, func() error {
		return b.router.HandleDocument(ctx, DocumentContext{
			TelegramID: msg.From.ID,
			ChatID:     msg.Chat.ID,
			Document:   msg.Document,
			Caption:    msg.Caption,
			Client:     b.client,
		})
	})
}

// handleSearch treats free text as a search query.
func (b *Bot) handleSearch(ctx context.Context, msg *telegram.Message, text string) error {
	rc := b.metricsMiddleware.Start("search", msg.From.ID)
	reply := b.replier(ctx, msg.Chat.ID)

	auth, ok, err := b.gate(ctx, rc, msg.From, middleware.RequireMember, reply)
	if !ok {
		return err
	}
	ctx = middleware.ContextWithRole(ctx, auth.Role)

	return b.guard(ctx, rc, reply, func() error {
		return b.router.HandleTextInput(ctx, TextInputContext{
			TelegramID: msg.From.ID,
			ChatID:     msg.Chat.ID,
			Text:       text,
			Role:       auth.Role,
			Client:     b.client,
		})
	})
}

// handleCallbackQuery processes a press on an inline button.
func (b *Bot) handleCallbackQuery(ctx context.Context, cq *telegram.CallbackQuery) error {
	if cq.From == nil {
		return nil
	}

	var chatID, messageID int64
	if cq.Message != nil && cq.Message.Chat != nil {
		chatID = cq.Message.Chat.ID
		messageID = cq.Message.MessageID
	}

	rc := b.metricsMiddleware.Start(callbackAction(cq.Data), cq.From.ID)

	// Refusals are shown as an alert on the button.
	alert := func(text string) error {
		return b.client.AnswerCallbackQuery(ctx, cq.ID, text, true)
	}

	auth, ok, err := b.gate(ctx, rc, cq.From, b.router.CallbackRequirement(cq.Data), alert)
	if !ok {
		return err
	}
	ctx = middleware.ContextWithRole(ctx, auth.Role)

	reply := alert
	if chatID != 0 {
		reply = b.replier(ctx, chatID)
	}

	return b.guard(ctx, rc, reply, func() error {
		return b.router.HandleCallback(ctx, cq.Data, CallbackContext{
			TelegramID: cq.From.ID,
			ChatID:     chatID,
			MessageID:  messageID,
			QueryID:    cq.ID,
			Data:       cq.Data,
			Role:       auth.Role,
			Client:     b.client,
		})
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPER METHODS
// ══════════════════════════════════════════════════════════════════════════════

// replier returns a function that sends plain HTML text to the chat.
func (b *Bot) replier(ctx context.Context, chatID int64) func(text string) error {
	return func(text string) error {
		if text == "" {
			return nil
		}
		_, err := b.client.SendMessage(ctx, telegram.SendMessageParams{
			ChatID:    chatID,
			Text:      text,
			ParseMode: presenter.ParseModeHTML,
		})
		return err
	}
}

// callbackAction names a callback for metrics by its prefix.
func callbackAction(data string) string {
	if i := strings.IndexByte(data, ':'); i > 0 {
		return "callback_" + data[:i]
	}
	return "callback"
}

// extractTelegramID extracts the Telegram user ID from an update.
func extractTelegramID(update *telegram.Update) int64 {
	if update.Message != nil && update.Message.From != nil {
		return update.Message.From.ID
	}
	if update.CallbackQuery != nil && update.CallbackQuery.From != nil {
		return update.CallbackQuery.From.ID
	}
	return 0
}

// ══════════════════════════════════════════════════════════════════════════════
// STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

// BotStats is a snapshot of runtime statistics.
type BotStats struct {
	StartedAt       time.Time                   `json:"started_at"`
	Uptime          string                      `json:"uptime"`
	Running         bool                        `json:"running"`
	UpdatesReceived int64                       `json:"updates_received"`
	UpdatesHandled  int64                       `json:"updates_handled"`
	ErrorsCount     int64                       `json:"errors_count"`
	Actions         *middleware.MetricsSnapshot `json:"actions"`
}

// GetStats returns current bot statistics.
func (b *Bot) GetStats() *BotStats {
	stats := &BotStats{
		Running:         b.IsRunning(),
		UpdatesReceived: b.updatesReceived.Load(),
		UpdatesHandled:  b.updatesHandled.Load(),
		ErrorsCount:     b.errorsCount.Load(),
		Actions:         b.metricsMiddleware.Snapshot(),
	}
	if started := b.startedAt.Load(); started > 0 {
		stats.StartedAt = time.Unix(0, started)
		stats.Uptime = time.Since(stats.StartedAt).Round(time.Second).String()
	}
	return stats
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCESSORS
// ══════════════════════════════════════════════════════════════════════════════

// Client returns the Bot API client.
func (b *Bot) Client() API {
	return b.client
}

// Router returns the router for handler registration.
func (b *Bot) Router() *Router {
	return b.router
}
