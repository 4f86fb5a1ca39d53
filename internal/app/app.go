// Package app は設定とストアから usecase / handler / server を組み立てる。
// cmd/api と HTTPテストの両方がここを通る。
package app

import (
	"context"
	"log/slog"

	"salon/internal/config"
	"salon/internal/handler"
	infrarepo "salon/internal/infra/repository"
	"salon/internal/notify"
	"salon/internal/oauth"
	"salon/internal/observability"
	"salon/internal/ratelimit"
	repo "salon/internal/repository"
	"salon/internal/repository/memory"
	"salon/internal/security"
	"salon/internal/server"
	"salon/internal/usecase"
	"salon/internal/worker"

	"github.com/samber/oops"
	"gorm.io/gorm"
)

// Storesは永続化まわり。postgresとmemoryで差し替える
type Stores struct {
	Users         repo.UserRepository
	RevokedTokens repo.RevokedTokenRepository
	OneTimeTokens repo.OneTimeTokenRepository
	Products      repo.ProductRepository
	AuditLogs     repo.AuditLogRepository
	Tx            repo.TransactionManager
	Ping          handler.Pinger
}

func MemoryStores(s *memory.Store) Stores {
	return Stores{
		Users:         s.Users(),
		RevokedTokens: s.RevokedTokens(),
		OneTimeTokens: s.OneTimeTokens(),
		Products:      s.Products(),
		AuditLogs:     s.AuditLogs(),
		Tx:            s,
	}
}

func GormStores(db *gorm.DB) Stores {
	return Stores{
		Users:         infrarepo.NewUserGormRepository(db),
		RevokedTokens: infrarepo.NewRevokedTokenGormRepository(db),
		OneTimeTokens: infrarepo.NewOneTimeTokenGormRepository(db),
		Products:      infrarepo.NewProductGormRepository(db),
		AuditLogs:     infrarepo.NewAuditLogGormRepository(db),
		Tx:            infrarepo.NewTxManagerGorm(db),
		Ping: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
}

// Externalsは外部とのやりとりと、テストで差し替えたいもの。
// nilのものはデフォルトを使う（Limiter/Providerはnilのまま＝無効）
type Externals struct {
	Clock     security.Clock
	Hasher    security.PasswordHasher
	Generator security.TokenGenerator
	Sender    notify.Sender
	Limiter   ratelimit.Limiter
	Provider  oauth.Provider
	Metrics   *observability.Metrics
	Log       *slog.Logger
}

type App struct {
	Server     *server.Server
	Deps       usecase.Deps
	Revocation *security.RevocationRegistry
	Inactivity *security.InactivityMonitor
	Tokens     repo.OneTimeTokenRepository
	Metrics    *observability.Metrics

	cfg config.Config
}

// Newは全部を1回だけ組み立てる
func New(cfg config.Config, st Stores, ext Externals) (*App, error) {
	if ext.Log == nil {
		ext.Log = slog.Default()
	}
	if ext.Clock == nil {
		ext.Clock = security.RealClock{}
	}
	if ext.Hasher == nil {
		ext.Hasher = security.NewBcryptHasher(cfg.BcryptCost)
	}
	if ext.Generator == nil {
		ext.Generator = security.RandomGenerator{}
	}
	if ext.Sender == nil {
		ext.Sender = notify.NewLogSender(ext.Log)
	}

	issuer, err := security.NewTokenIssuer(cfg.JWTSecret, ext.Clock)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	revocation := security.NewRevocationRegistry(st.RevokedTokens, st.Users, ext.Clock)
	inactivity := security.NewInactivityMonitor(st.Users, ext.Clock, ext.Log)

	d := usecase.Deps{
		Config:     cfg,
		Users:      st.Users,
		Tokens:     st.OneTimeTokens,
		AuditLogs:  st.AuditLogs,
		Tx:         st.Tx,
		Hasher:     ext.Hasher,
		Generator:  ext.Generator,
		Issuer:     issuer,
		Revocation: revocation,
		Inactivity: inactivity,
		Lockout:    security.NewLockoutGuard(st.Users, ext.Clock, cfg.MaxLoginAttempts, cfg.LockoutDuration),
		Clock:      ext.Clock,
		Sender:     ext.Sender,
		Metrics:    ext.Metrics,
		Log:        ext.Log,
	}

	authn := security.NewAuthenticator(issuer, revocation, inactivity, st.Users, cfg.InactivityTimeout)
	products := usecase.NewProductUsecase(st.Products, st.AuditLogs, ext.Clock, ext.Log)

	h := server.Handlers{
		System:       handler.NewSystemHandler(st.Ping, ext.Metrics, cfg.SessionTTL, cfg.CookieSecure),
		Auth:         handler.NewAuthHandler(usecase.NewAuthUsecase(d), cfg.SessionTTL, cfg.CookieSecure),
		OAuth:        handler.NewOAuthHandler(usecase.NewOAuthUsecase(d), ext.Provider, cfg.FrontendURL, cfg.CookieSecure, ext.Log),
		Recovery:     handler.NewRecoveryHandler(usecase.NewRecoveryUsecase(d)),
		Profile:      handler.NewProfileHandler(usecase.NewProfileUsecase(d)),
		Product:      handler.NewProductHandler(products),
		AdminProduct: handler.NewAdminProductHandler(products),
		AdminUser:    handler.NewAdminUserHandler(usecase.NewAdminUserUsecase(d)),
	}

	srv := server.New(h, server.Options{
		Log:           ext.Log,
		Metrics:       ext.Metrics,
		Authenticator: authn,
		Limiter:       ext.Limiter,
		FrontendURL:   cfg.FrontendURL,
		CSRFEnforce:   cfg.GoEnv == "prod",
	})

	return &App{
		Server:     srv,
		Deps:       d,
		Revocation: revocation,
		Inactivity: inactivity,
		Tokens:     st.OneTimeTokens,
		Metrics:    ext.Metrics,
		cfg:        cfg,
	}, nil
}

// NewSweeperは期限切れトークン掃除のworkerを作る（Startは呼び出し側）
func (a *App) NewSweeper() *worker.Sweeper {
	return worker.NewSweeper(a.Revocation, a.Tokens, a.cfg.SweepInterval, a.Deps.Clock, a.Metrics, a.Deps.Log)
}
