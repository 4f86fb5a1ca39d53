package repository

import (
	"context"
	"time"

	"salon/internal/domain/model"
)

// ロックアウト関連のカラムだけを書き換えるための値
type LockoutState struct {
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastFailedLoginAt   *time.Time
}

// 保存・取得を約束
type UserRepository interface {
	//新規ユーザー作成。email/google_idの重複はErrConflict
	Create(ctx context.Context, user *model.User) error
	//見つからなければErrUserNotFound
	FindByID(ctx context.Context, userID int64) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByGoogleID(ctx context.Context, googleID string) (*model.User, error)
	//有効なユーザーの一覧（管理者用）
	ListActive(ctx context.Context, limit int, offset int) ([]model.User, error)
	//全カラム保存（プロフィール更新など）
	Update(ctx context.Context, user *model.User) error

	//以下はカラム単位の更新。他のリクエストの書き込みを潰さないため。
	UpdateLockout(ctx context.Context, userID int64, st LockoutState) error
	TouchActivity(ctx context.Context, userID int64, at time.Time) error
	//ログイン成功時。last_login_atとlast_activity_atを同じ時刻にする
	RecordLogin(ctx context.Context, userID int64, at time.Time) error
	SetTokensRevokedBefore(ctx context.Context, userID int64, at time.Time) error
	UpdatePassword(ctx context.Context, userID int64, passwordHash string, confirm bool) error
}
