package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jbcub/studentdir/config"
	"github.com/jbcub/studentdir/internal/infrastructure/persistence/postgres"
	"github.com/jbcub/studentdir/internal/infrastructure/persistence/redis"
	"github.com/jbcub/studentdir/pkg/logger"
)

// app opens connections lazily so that commands like hash-invite work
// without a database.
type app struct {
	verbose bool

	cfg   *config.Config
	db    *postgres.Connection
	cache *redis.Cache
	log   *logger.Logger
}

func (a *app) settings() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.LoadForCLI()
	if err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

// logs writes to stderr so that command output stays pipeable.
func (a *app) logs() *logger.Logger {
	if a.log == nil {
		level := logger.LevelWarn
		if a.verbose {
			level = logger.LevelDebug
		}
		a.log = logger.New(logger.Options{Output: os.Stderr, Level: level, Format: logger.FormatText})
	}
	return a.log
}

// appLogger is handed to the application layer.
func (a *app) appLogger() *slog.Logger {
	level := slog.LevelWarn
	if a.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (a *app) database(ctx context.Context) (*postgres.Connection, error) {
	if a.db != nil {
		return a.db, nil
	}
	cfg, err := a.settings()
	if err != nil {
		return nil, err
	}
	db, err := postgres.Connect(ctx, cfg.Database.URL, postgres.PoolOptions{
		MaxConns:     2,
		QueryTimeout: cfg.Database.QueryTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	a.logs().Debug("database connected")
	a.db = db
	return db, nil
}

// redisCache returns nil when Redis is disabled or unreachable; callers fall back
// to in-process behaviour.
func (a *app) redisCache(ctx context.Context) *redis.Cache {
	if a.cache != nil {
		return a.cache
	}
	cfg, err := a.settings()
	if err != nil || cfg.Redis.Disabled {
		return nil
	}
	rc := redis.DefaultConfig()
	rc.URL = cfg.Redis.URL
	rc.Host = cfg.Redis.Host
	rc.Port = cfg.Redis.Port
	rc.Password = cfg.Redis.Password
	rc.DB = cfg.Redis.DB
	rc.PoolSize = 2
	rc.DialTimeout = cfg.Redis.DialTimeout

	cache, err := redis.NewCache(ctx, rc)
	if err != nil {
		a.logs().Warn("redis unavailable", logger.Err(err))
		return nil
	}
	a.cache = cache
	return cache
}

// Close releases whatever was opened.
func (a *app) Close() {
	if a.cache != nil {
		_ = a.cache.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
