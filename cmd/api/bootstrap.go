package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"salon/internal/app"
	"salon/internal/config"
	"salon/internal/infra/db"
	"salon/internal/logging"
	"salon/internal/notify"
	"salon/internal/oauth"
	"salon/internal/observability"
	"salon/internal/ratelimit"
	"salon/internal/repository/memory"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/oops"
	"gorm.io/gorm"
)

// .envは無くてもよい（本番は環境変数だけ）
func loadConfig() (config.Config, *slog.Logger, error) {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return config.Config{}, nil, oops.Code("CONFIG_INVALID").With("file", envFile).Wrap(err)
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	log := logging.Setup("salon-api", version, cfg.LogFormat, os.Stdout)
	slog.SetDefault(log)
	return cfg, log, nil
}

func openDB(cfg config.Config, log *slog.Logger) (*gorm.DB, func(), error) {
	gormDB, err := db.Connect(cfg.DSN(), log)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return gormDB, closeFn, nil
}

// openStoresはSTORE_DRIVERに合わせてストアを用意する。postgresならmigrateもする
func openStores(cfg config.Config, log *slog.Logger, metrics *observability.Metrics) (app.Stores, func(), error) {
	if cfg.StoreDriver == "memory" {
		log.Warn("using in-memory store, data is lost on restart")
		return app.MemoryStores(memory.NewStore()), func() {}, nil
	}

	gormDB, closeFn, err := openDB(cfg, log)
	if err != nil {
		return app.Stores{}, nil, err
	}
	if err := db.Migrate(gormDB); err != nil {
		closeFn()
		return app.Stores{}, nil, err
	}
	if reg := metrics.Registry(); reg != nil {
		if sqlDB, err := gormDB.DB(); err == nil {
			reg.MustRegister(collectors.NewDBStatsCollector(sqlDB, "salon"))
		}
	}
	return app.GormStores(gormDB), closeFn, nil
}

// REDIS_URLがあればRedis、無ければプロセス内のカウンタ
func newLimiter(ctx context.Context, cfg config.Config, log *slog.Logger) (ratelimit.Limiter, func(), error) {
	if cfg.RedisURL == "" {
		l := ratelimit.NewMemoryLimiter(cfg.RateLimitMax, cfg.RateLimitWindow, nil)
		l.Start(cfg.RateLimitWindow)
		return l, func() { _ = l.Close() }, nil
	}

	client, err := ratelimit.NewRedisClient(cfg.RedisURL)
	if err != nil {
		return nil, nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := client.Ping(ctx).Err(); err != nil {
		//起動はする。リクエスト時はfail-openになる
		log.Warn("redis unreachable at startup", "error", err)
	}
	return ratelimit.NewRedisLimiter(client, cfg.RateLimitMax, cfg.RateLimitWindow), func() { _ = client.Close() }, nil
}

func newSender(cfg config.Config, log *slog.Logger) notify.Sender {
	logSender := notify.NewLogSender(log)
	if cfg.SMTPHost == "" {
		return logSender
	}
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}, logSender)
}

func newProvider(cfg config.Config) oauth.Provider {
	if !cfg.GoogleEnabled() {
		return nil
	}
	return oauth.NewGoogleProvider(oauth.GoogleConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
}
