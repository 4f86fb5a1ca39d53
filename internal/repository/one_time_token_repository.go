package repository

import (
	"context"
	"time"

	"salon/internal/domain/model"
)

// 使い捨てトークンの検索条件。Emailが空ならemailで絞らない。
type OneTimeTokenQuery struct {
	TokenHash string
	Purposes  []model.TokenPurpose
	Email     string
}

// 使い捨てトークン（リセット・OAuth交換コード）の保存と消費
type OneTimeTokenRepository interface {
	Create(ctx context.Context, token *model.OneTimeToken) error
	//未使用かつ期限内のものだけ返す。なければErrNotFound
	FindActive(ctx context.Context, q OneTimeTokenQuery, now time.Time) (*model.OneTimeToken, error)
	//未使用かつ期限内なら1回の条件付きUPDATEでused_atを入れる。
	//同時に2回呼ばれても成功するのは片方だけ。失敗はErrNotFound
	Consume(ctx context.Context, q OneTimeTokenQuery, now time.Time) (*model.OneTimeToken, error)
	//ユーザーの未使用トークンをまとめて使用済みにする
	InvalidateForUser(ctx context.Context, userID int64, purposes []model.TokenPurpose, now time.Time) (int64, error)
	//期限切れならその1件を消す（読み取り時の掃除）
	DeleteIfExpired(ctx context.Context, tokenHash string, now time.Time) error
	//期限切れ・使用済みを一括削除
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
