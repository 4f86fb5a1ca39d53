package repository

import (
	"context"

	repo "salon/internal/repository"

	"gorm.io/gorm"
)

type txReposGorm struct {
	users     repo.UserRepository
	tokens    repo.OneTimeTokenRepository
	auditLogs repo.AuditLogRepository
}

func (r *txReposGorm) Users() repo.UserRepository                 { return r.users }
func (r *txReposGorm) OneTimeTokens() repo.OneTimeTokenRepository { return r.tokens }
func (r *txReposGorm) AuditLogs() repo.AuditLogRepository         { return r.auditLogs }

type TxManagerGorm struct {
	db *gorm.DB
}

func NewTxManagerGorm(db *gorm.DB) *TxManagerGorm {
	return &TxManagerGorm{db: db}
}

var _ repo.TransactionManager = (*TxManagerGorm)(nil)

func (tm *TxManagerGorm) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return tm.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		//repoはtxを持ったDBで作り直す
		r := &txReposGorm{
			users:     NewUserGormRepository(tx),
			tokens:    NewOneTimeTokenGormRepository(tx),
			auditLogs: NewAuditLogGormRepository(tx),
		}
		return fn(r)
	})
}
