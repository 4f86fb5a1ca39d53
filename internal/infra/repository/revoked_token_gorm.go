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

type revokedTokenGormRepository struct {
	db *gorm.DB
}

func NewRevokedTokenGormRepository(db *gorm.DB) repo.RevokedTokenRepository {
	return &revokedTokenGormRepository{db: db}
}

// 同じjtiがあればexpires_atを上書き
func (r *revokedTokenGormRepository) Upsert(ctx context.Context, token model.RevokedToken) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "jti"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "expires_at"}),
		}).
		Create(&token).Error
}

func (r *revokedTokenGormRepository) Find(ctx context.Context, jti string) (*model.RevokedToken, error) {
	var t model.RevokedToken

	err := r.db.WithContext(ctx).
		Where("jti = ?", jti).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repo.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *revokedTokenGormRepository) Delete(ctx context.Context, jti string) error {
	return r.db.WithContext(ctx).
		Where("jti = ?", jti).
		Delete(&model.RevokedToken{}).Error
}

func (r *revokedTokenGormRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&model.RevokedToken{})
	return res.RowsAffected, res.Error
}
