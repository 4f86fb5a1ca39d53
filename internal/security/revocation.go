package security

import (
	"context"
	"errors"
	"time"

	"salon/internal/domain/model"
	repo "salon/internal/repository"

	"github.com/samber/oops"
)

// RevocationRegistryはjti単位の失効と、ユーザー単位の全端末ログアウト（watermark）を扱う
type RevocationRegistry struct {
	tokens repo.RevokedTokenRepository
	users  repo.UserRepository
	clock  Clock
}

func NewRevocationRegistry(tokens repo.RevokedTokenRepository, users repo.UserRepository, clock Clock) *RevocationRegistry {
	if clock == nil {
		clock = RealClock{}
	}
	return &RevocationRegistry{tokens: tokens, users: users, clock: clock}
}

// Revokeはjtiを失効させる。同じjtiで何度呼んでも同じ
func (r *RevocationRegistry) Revoke(ctx context.Context, jti string, userID int64, expiresAt time.Time) error {
	if jti == "" {
		return ErrInvalidToken
	}
	err := r.tokens.Upsert(ctx, model.RevokedToken{
		JTI:       jti,
		UserID:    userID,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		return oops.Code("REVOKE_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

// IsRevokedは期限内の失効エントリがあればtrue。
// 期限切れのエントリは無いものとして扱い、その場で消す
func (r *RevocationRegistry) IsRevoked(ctx context.Context, jti string) (bool, error) {
	entry, err := r.tokens.Find(ctx, jti)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, oops.Code("REVOCATION_LOOKUP_FAILED").Wrap(err)
	}

	if !entry.ExpiresAt.After(r.clock.Now()) {
		// 掃除に失敗しても判定は変わらない
		_ = r.tokens.Delete(ctx, jti)
		return false, nil
	}
	return true, nil
}

// RevokeAllForPrincipalはwatermarkを現在時刻で上書きする
func (r *RevocationRegistry) RevokeAllForPrincipal(ctx context.Context, userID int64) error {
	if err := r.users.SetTokensRevokedBefore(ctx, userID, r.clock.Now()); err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return err
		}
		return oops.Code("REVOKE_ALL_FAILED").With("user_id", userID).Wrap(err)
	}
	return nil
}

// IsRevokedByWatermarkはiat <= watermarkならtrue
func (r *RevocationRegistry) IsRevokedByWatermark(ctx context.Context, userID int64, issuedAt time.Time) (bool, error) {
	u, err := r.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return false, nil
		}
		return false, oops.Code("REVOCATION_LOOKUP_FAILED").With("user_id", userID).Wrap(err)
	}
	return WatermarkRejects(u.TokensRevokedBefore, issuedAt), nil
}

// マイクロ秒で比較する（Postgresのtimestamptzと同じ精度）。
// 秒精度のiatしかない古いトークンは、watermarkと同じ秒なら拒否される
func WatermarkRejects(watermark *time.Time, issuedAt time.Time) bool {
	if watermark == nil {
		return false
	}
	return issuedAt.UnixMicro() <= watermark.UnixMicro()
}

// CleanupExpiredは期限切れの失効エントリを一括削除する
func (r *RevocationRegistry) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := r.tokens.DeleteExpired(ctx, r.clock.Now())
	if err != nil {
		return 0, oops.Code("REVOCATION_CLEANUP_FAILED").Wrap(err)
	}
	return n, nil
}
