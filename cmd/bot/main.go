// Package main - точка входа Telegram-бота справочника студентов.
//
// Бот ищет студентов по имени или известному идентификатору, показывает
// карточку и принимает от админов CSV-таблицы, которые сверяются со
// справочником.
//
// Архитектура следует принципам Clean Architecture:
// - Domain: нормализация, сверка, правила доступа
// - Application: команды и запросы (импорт, поиск, карточка, доступ)
// - Infrastructure: PostgreSQL, Redis, Telegram Bot API, метрики
// - Interface: обработчики Telegram и HTTP-эндпоинты
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jbcub/studentdir/config"

	// Application layer
	"github.com/jbcub/studentdir/internal/application/command"
	"github.com/jbcub/studentdir/internal/application/query"
	"github.com/jbcub/studentdir/internal/domain/access"

	// Infrastructure layer
	"github.com/jbcub/studentdir/internal/infrastructure/catalog"
	"github.com/jbcub/studentdir/internal/infrastructure/metrics"
	"github.com/jbcub/studentdir/internal/infrastructure/persistence/postgres"
	"github.com/jbcub/studentdir/internal/infrastructure/persistence/redis"

	// Interface layer
	httpserver "github.com/jbcub/studentdir/internal/interface/http"
	"github.com/jbcub/studentdir/internal/interface/http/handlers"
	"github.com/jbcub/studentdir/internal/interface/telegram"
	"github.com/jbcub/studentdir/internal/interface/telegram/handler"
	"github.com/jbcub/studentdir/internal/interface/telegram/middleware"

	// Packages
	"github.com/jbcub/studentdir/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg)
	log.Info("starting student directory bot",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"webhook", cfg.Telegram.UseWebhook,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRESQL
	// ─────────────────────────────────────────────────────────────────────────
	db, err := postgres.Connect(ctx, cfg.Database.URL, postgres.PoolOptions{
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		QueryTimeout:    cfg.Database.QueryTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		db.Close()
	}()
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		applied, err := postgres.NewMigrator(db).Migrate(ctx)
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("migrations completed", "applied", applied)
	}

	students := postgres.NewStudentRepository(db)
	fields := postgres.NewFieldRepository(db)
	users := postgres.NewUserRepository(db)

	if cfg.Import.SeedFields {
		if err := seedFields(ctx, cfg, fields, log); err != nil {
			return err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	var cache *redis.Cache
	if !cfg.Redis.Disabled {
		cache, err = redis.NewCache(ctx, redisConfig(cfg))
		if err != nil {
			log.Warn("redis unavailable, using in-process fallbacks", "error", err)
			cache = nil
		} else {
			defer cache.Close()
			log.Info("redis connection established")
		}
	}

	m := metrics.New()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	var (
		decisions  access.DecisionCache
		importLock command.ImportLock
		reports    command.ReportStore = command.NewMemoryReportStore()
		limiter    middleware.Limiter
	)
	whitelist := make(map[int64]bool, len(cfg.Access.AdminIDs))
	for _, id := range cfg.Access.AdminIDs {
		whitelist[id] = true
	}
	if cache != nil {
		decisions = redis.NewAccessCache(cache)
		importLock = redis.NewImportLock(cache, 10*time.Minute, log)
		reports = redis.NewReportStore(cache, cfg.Import.ReportTTL)
		limiter = middleware.NewSharedRateLimiter(
			redis.NewRateLimiter(cache, cfg.Telegram.UserRateLimit, time.Minute),
			time.Minute, whitelist, log,
		)
	}

	checkAccess := query.NewCheckAccessHandler(users, decisions, query.AccessPolicy{
		AdminIDs:       cfg.Access.AdminIDs,
		AdminUsernames: cfg.Access.AdminUsernames,
		Open:           cfg.Access.Open,
		CacheTTL:       cfg.Access.CacheTTL,
	}, log)
	grant := command.NewGrantAccessHandler(users, decisions, log)

	search := query.NewSearchStudentsHandler(students, fields, m, log)
	cards := query.NewGetStudentCardHandler(students, fields)
	lastReport := query.NewGetLastReportHandler(reports)
	importer := command.NewImportStudentsHandler(students, fields, importLock, reports, m,
		command.ImportStudentsConfig{
			DefaultAdmissionYear: cfg.Import.DefaultAdmissionYear,
			Logger:               log,
		})

	// ─────────────────────────────────────────────────────────────────────────
	// 5. TELEGRAM BOT
	// ─────────────────────────────────────────────────────────────────────────
	botConfig := telegram.DefaultBotConfig(cfg.Telegram.Token)
	if cfg.Telegram.UseWebhook {
		botConfig.Mode = telegram.ModeWebhook
		botConfig.WebhookURL = cfg.Telegram.WebhookURL
		botConfig.WebhookSecret = cfg.Telegram.WebhookSecret
	}
	botConfig.PollingTimeout = int(cfg.Telegram.PollingTimeout / time.Second)
	botConfig.Debug = cfg.App.Debug
	botConfig.Logger = log
	botConfig.MaxConcurrentUpdates = cfg.Telegram.MaxConcurrentUpdates
	botConfig.GracefulShutdownTimeout = cfg.App.ShutdownTimeout
	botConfig.Import = handler.ImportConfig{
		MaxFileSize: cfg.Import.MaxFileSize,
		MaxRows:     cfg.Import.MaxRows,
	}

	rateLimit := middleware.DefaultRateLimitConfig()
	rateLimit.RequestsPerMinute = cfg.Telegram.UserRateLimit
	rateLimit.BanDuration = cfg.Telegram.UserRateLimitBan
	rateLimit.WhitelistedUsers = whitelist

	botDeps := telegram.BotDependencies{
		Search:        search,
		Cards:         cards,
		CheckAccess:   checkAccess,
		LastReport:    lastReport,
		Import:        importer,
		InviteEnabled: cfg.Access.InviteCodeHash != "",
		Limiter:       limiter,
		RateLimit:     rateLimit,
		Metrics:       m,
		Denials:       m,
	}
	if cfg.Access.InviteCodeHash != "" {
		botDeps.RedeemInvite = command.NewRedeemInviteHandler(grant, cfg.Access.InviteCodeHash)
	}

	bot, err := telegram.NewBot(botConfig, botDeps)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", handlers.NewPingCheck(db))
	if cache != nil {
		health.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
	}

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Port = cfg.HTTP.Port
	httpConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	httpConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	httpConfig.WebhookPath = cfg.HTTP.WebhookPath
	httpConfig.WebhookSecret = cfg.Telegram.WebhookSecret
	httpConfig.EnableMetrics = cfg.Observability.MetricsEnabled
	httpConfig.MetricsPath = cfg.Observability.MetricsPath
	httpConfig.Version = cfg.App.Version

	httpDeps := httpserver.Dependencies{
		Logger:        httpLogger(cfg),
		HealthChecker: health,
		Metrics:       m.Handler(),
		Recorder:      m,
		Stats:         func() any { return bot.GetStats() },
	}
	if cfg.Telegram.UseWebhook {
		httpDeps.WebhookHandler = bot
	}
	server := httpserver.NewServer(httpConfig, httpDeps)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Start()
	})
	g.Go(func() error {
		if err := bot.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("telegram bot: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		// Сначала бот перестаёт брать новые апдейты, затем закрывается HTTP.
		botErr := bot.Stop(shutdownCtx)
		if botErr != nil {
			log.Error("failed to stop bot gracefully", "error", botErr)
		}
		httpErr := server.Shutdown(shutdownCtx)
		if httpErr != nil {
			log.Error("failed to stop HTTP server gracefully", "error", httpErr)
		}
		return errors.Join(botErr, httpErr)
	})

	log.Info("student directory bot is running",
		"http_address", server.Address(),
		"redis", cache != nil,
	)

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown completed")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает slog для доменного и прикладного слоёв.
func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch cfg.Observability.LogLevel {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}
	if cfg.App.Debug {
		opts.Level = slog.LevelDebug
	}

	var h slog.Handler
	if cfg.Observability.LogFormat == "text" {
		h = slog.NewTextHandler(os.Stdout, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}

	log := slog.New(h)
	slog.SetDefault(log)
	return log
}

// httpLogger создаёт логгер HTTP-слоя с теми же уровнем и форматом.
func httpLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		Format: logger.Format(cfg.Observability.LogFormat),
	})
}

func redisConfig(cfg *config.Config) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = cfg.Redis.URL
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = cfg.Redis.PoolSize
	rc.MinIdleConns = cfg.Redis.MinIdleConns
	rc.DialTimeout = cfg.Redis.DialTimeout
	rc.ReadTimeout = cfg.Redis.ReadTimeout
	rc.WriteTimeout = cfg.Redis.WriteTimeout
	return rc
}

// seedFields записывает каталог полей в пустую таблицу.
func seedFields(ctx context.Context, cfg *config.Config, fields *postgres.FieldRepository, log *slog.Logger) error {
	defs, err := catalog.Load(cfg.Import.FieldCatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load field catalogue: %w", err)
	}
	written, err := command.NewSeedFieldsHandler(fields, log).Handle(ctx, command.SeedFieldsCommand{Definitions: defs})
	if err != nil {
		return fmt.Errorf("failed to seed field catalogue: %w", err)
	}
	if written {
		log.Info("field catalogue seeded", "fields", len(defs))
	}
	return nil
}
