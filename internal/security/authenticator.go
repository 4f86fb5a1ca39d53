package security

import (
	"context"
	"errors"
	"time"

	"salon/internal/domain/model"
	repo "salon/internal/repository"

	"github.com/samber/oops"
)

// 認証失敗の理由。トークンを持っている本人にだけ返るので理由は分けてよい
var (
	ErrTokenRevoked    = errors.New("token revoked")
	ErrSessionRevoked  = errors.New("session revoked")
	ErrSessionInactive = errors.New("session expired due to inactivity")
	ErrAccountDisabled = errors.New("account disabled")
)

// 認証済みリクエストの主体
type Principal struct {
	UserID    int64
	Email     string
	Role      model.Role
	JTI       string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (p *Principal) IsAdmin() bool {
	return p.Role == model.RoleAdmin
}

// Authenticatorは毎リクエストの検証をまとめる。
// 署名/期限 → jti失効 → watermark → 無操作タイムアウト の順で見て、通ったら非同期でtouch
type Authenticator struct {
	issuer     *TokenIssuer
	revocation *RevocationRegistry
	inactivity *InactivityMonitor
	users      repo.UserRepository
	timeout    time.Duration
}

func NewAuthenticator(
	issuer *TokenIssuer,
	revocation *RevocationRegistry,
	inactivity *InactivityMonitor,
	users repo.UserRepository,
	timeout time.Duration,
) *Authenticator {
	return &Authenticator{
		issuer:     issuer,
		revocation: revocation,
		inactivity: inactivity,
		users:      users,
		timeout:    timeout,
	}
}

func (a *Authenticator) Authenticate(ctx context.Context, rawToken string) (*Principal, error) {
	claims, err := a.issuer.Parse(rawToken)
	if err != nil {
		return nil, ErrInvalidToken
	}

	revoked, err := a.revocation.IsRevoked(ctx, claims.JTI())
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenRevoked
	}

	// watermarkと無操作判定は同じユーザー行を使う
	u, err := a.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, ErrSessionInactive
		}
		return nil, oops.Code("AUTH_LOOKUP_FAILED").With("user_id", claims.UserID).Wrap(err)
	}

	if WatermarkRejects(u.TokensRevokedBefore, claims.IssuedAtTime()) {
		return nil, ErrSessionRevoked
	}

	if a.inactivity.IsUserInactive(ctx, u, a.timeout) {
		return nil, ErrSessionInactive
	}

	if !u.IsActive {
		return nil, ErrAccountDisabled
	}

	a.inactivity.TouchAsync(u.ID)

	return &Principal{
		UserID:    u.ID,
		Email:     u.Email,
		Role:      u.Role,
		JTI:       claims.JTI(),
		IssuedAt:  claims.IssuedAtTime(),
		ExpiresAt: claims.ExpiresAtTime(),
	}, nil
}

// IsAuthFailureは401にすべきエラーか
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrSessionRevoked) ||
		errors.Is(err, ErrSessionInactive) ||
		errors.Is(err, ErrAccountDisabled)
}
