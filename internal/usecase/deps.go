package usecase

import (
	"log/slog"

	"salon/internal/config"
	"salon/internal/notify"
	"salon/internal/observability"
	repo "salon/internal/repository"
	"salon/internal/security"
)

// Depsはusecaseが共通で使う依存。main.goで1回組み立てる
type Deps struct {
	Config config.Config

	Users     repo.UserRepository
	Tokens    repo.OneTimeTokenRepository
	AuditLogs repo.AuditLogRepository
	Tx        repo.TransactionManager

	Hasher     security.PasswordHasher
	Generator  security.TokenGenerator
	Issuer     *security.TokenIssuer
	Revocation *security.RevocationRegistry
	Inactivity *security.InactivityMonitor
	Lockout    *security.LockoutGuard
	Clock      security.Clock

	Sender  notify.Sender
	Metrics *observability.Metrics
	Log     *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Log == nil {
		return slog.Default()
	}
	return d.Log
}

func (d Deps) clock() security.Clock {
	if d.Clock == nil {
		return security.RealClock{}
	}
	return d.Clock
}
