package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

var (
	ErrMissingSecret = errors.New("jwt secret is required")
	ErrInvalidToken  = errors.New("invalid token")
)

// セッショントークンのclaims。
// id / email / jti / iat / iat_us / last_activity / exp を持つ。
// iatは秒なので、watermarkとの比較にはマイクロ秒のiat_usを使う
type Claims struct {
	UserID        int64  `json:"id"`
	Email         string `json:"email"`
	LastActivity  int64  `json:"last_activity"`
	IssuedAtMicro int64  `json:"iat_us,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) JTI() string {
	return c.ID
}

// iat_usのない古いトークンは秒精度のiatにフォールバック
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAtMicro > 0 {
		return time.UnixMicro(c.IssuedAtMicro).UTC()
	}
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// HS256でセッショントークンを発行・検証する
type TokenIssuer struct {
	secret []byte
	clock  Clock
}

// secretが空なら起動させない
func NewTokenIssuer(secret string, clock Clock) (*TokenIssuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &TokenIssuer{secret: []byte(secret), clock: clock}, nil
}

// Issueは新しいjtiでトークンを発行する
func (i *TokenIssuer) Issue(userID int64, email string, ttl time.Duration) (string, *Claims, error) {
	now := i.clock.Now().Truncate(time.Microsecond)

	claims := &Claims{
		UserID:        userID,
		Email:         email,
		LastActivity:  now.Unix(),
		IssuedAtMicro: now.UnixMicro(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, claims, nil
}

// Parseは署名と期限を確認してclaimsを返す。HS256以外は拒否
func (i *TokenIssuer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil || token == nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.UserID <= 0 || claims.ID == "" || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
