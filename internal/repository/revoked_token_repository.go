package repository

import (
	"context"
	"time"

	"salon/internal/domain/model"
)

// 失効済みjtiの保存・取得
type RevokedTokenRepository interface {
	//同じjtiなら上書き（何度呼んでも同じ結果）
	Upsert(ctx context.Context, token model.RevokedToken) error
	//見つからなければErrNotFound
	Find(ctx context.Context, jti string) (*model.RevokedToken, error)
	Delete(ctx context.Context, jti string) error
	//expires_at <= now を一括削除して件数を返す
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
