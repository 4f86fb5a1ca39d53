package repository

import (
	"context"
	"errors"
	"time"

	"salon/internal/domain/model"
	domainrepo "salon/internal/repository"

	"gorm.io/gorm"
)

type userGormRepository struct {
	db *gorm.DB
}

// DI
// main.goでこれをnewしてusecaseに注入します。
func NewUserGormRepository(db *gorm.DB) domainrepo.UserRepository {
	return &userGormRepository{db: db}
}

// ユーザーを新規作成。email/google_idの重複はErrConflict
func (r *userGormRepository) Create(ctx context.Context, user *model.User) error {
	return mapWriteError(r.db.WithContext(ctx).Create(user).Error)
}

func (r *userGormRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.first(ctx, "email = ?", email)
}

func (r *userGormRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *userGormRepository) FindByGoogleID(ctx context.Context, googleID string) (*model.User, error) {
	return r.first(ctx, "google_id = ?", googleID)
}

func (r *userGormRepository) first(ctx context.Context, cond string, arg any) (*model.User, error) {
	var u model.User

	err := r.db.WithContext(ctx).
		Where(cond, arg).
		First(&u).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainrepo.ErrUserNotFound
		}
		return nil, err
	}

	return &u, nil
}

// 有効なユーザーをID順で返す
func (r *userGormRepository) ListActive(ctx context.Context, limit int, offset int) ([]model.User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var users []model.User
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// ユーザーを更新。
func (r *userGormRepository) Update(ctx context.Context, user *model.User) error {
	return mapWriteError(r.db.WithContext(ctx).Save(user).Error)
}

func (r *userGormRepository) UpdateLockout(ctx context.Context, userID int64, st domainrepo.LockoutState) error {
	return r.updateColumns(ctx, userID, map[string]any{
		"failed_login_attempts": st.FailedLoginAttempts,
		"locked_until":          st.LockedUntil,
		"last_failed_login_at":  st.LastFailedLoginAt,
	})
}

func (r *userGormRepository) TouchActivity(ctx context.Context, userID int64, at time.Time) error {
	return r.updateColumns(ctx, userID, map[string]any{"last_activity_at": at})
}

func (r *userGormRepository) RecordLogin(ctx context.Context, userID int64, at time.Time) error {
	return r.updateColumns(ctx, userID, map[string]any{
		"last_login_at":    at,
		"last_activity_at": at,
	})
}

// 全端末ログアウト。前回の値は上書き
func (r *userGormRepository) SetTokensRevokedBefore(ctx context.Context, userID int64, at time.Time) error {
	return r.updateColumns(ctx, userID, map[string]any{"tokens_revoked_before": at})
}

func (r *userGormRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string, confirm bool) error {
	cols := map[string]any{"password_hash": passwordHash}
	if confirm {
		cols["is_confirmed"] = true
	}
	return r.updateColumns(ctx, userID, cols)
}

// updated_atを含めて指定カラムだけ更新する
func (r *userGormRepository) updateColumns(ctx context.Context, userID int64, cols map[string]any) error {
	res := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", userID).
		Updates(cols)

	if res.Error != nil {
		return res.Error
	}

	// 0件更新は「対象がない」
	if res.RowsAffected == 0 {
		return domainrepo.ErrUserNotFound
	}
	return nil
}
