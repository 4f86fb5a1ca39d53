package repository

import (
	"context"
	"errors"
	"time"

	"salon/internal/domain/model"
	repo "salon/internal/repository"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type oneTimeTokenGormRepository struct {
	db *gorm.DB
}

func NewOneTimeTokenGormRepository(db *gorm.DB) repo.OneTimeTokenRepository {
	return &oneTimeTokenGormRepository{db: db}
}

func (r *oneTimeTokenGormRepository) Create(ctx context.Context, token *model.OneTimeToken) error {
	return mapWriteError(r.db.WithContext(ctx).Create(token).Error)
}

// 未使用・期限内・用途一致（・email一致）の条件
func (r *oneTimeTokenGormRepository) active(tx *gorm.DB, q repo.OneTimeTokenQuery, now time.Time) *gorm.DB {
	tx = tx.Where("token_hash = ? AND purpose IN ? AND used_at IS NULL AND expires_at > ?",
		q.TokenHash, q.Purposes, now)
	if q.Email != "" {
		tx = tx.Where("email = ?", q.Email)
	}
	return tx
}

func (r *oneTimeTokenGormRepository) FindActive(ctx context.Context, q repo.OneTimeTokenQuery, now time.Time) (*model.OneTimeToken, error) {
	var t model.OneTimeToken

	err := r.active(r.db.WithContext(ctx), q, now).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repo.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// 条件付きUPDATE 1回で消費する。0件なら使用済み/期限切れ/存在しない
func (r *oneTimeTokenGormRepository) Consume(ctx context.Context, q repo.OneTimeTokenQuery, now time.Time) (*model.OneTimeToken, error) {
	var consumed []model.OneTimeToken

	res := r.active(r.db.WithContext(ctx).Model(&consumed).Clauses(clause.Returning{}), q, now).
		Update("used_at", now)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 || len(consumed) == 0 {
		return nil, repo.ErrNotFound
	}
	return &consumed[0], nil
}

func (r *oneTimeTokenGormRepository) InvalidateForUser(ctx context.Context, userID int64, purposes []model.TokenPurpose, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.OneTimeToken{}).
		Where("user_id = ? AND purpose IN ? AND used_at IS NULL", userID, purposes).
		Update("used_at", now)
	return res.RowsAffected, res.Error
}

func (r *oneTimeTokenGormRepository) DeleteIfExpired(ctx context.Context, tokenHash string, now time.Time) error {
	return r.db.WithContext(ctx).
		Where("token_hash = ? AND expires_at <= ?", tokenHash, now).
		Delete(&model.OneTimeToken{}).Error
}

func (r *oneTimeTokenGormRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ? OR used_at IS NOT NULL", now).
		Delete(&model.OneTimeToken{})
	return res.RowsAffected, res.Error
}
