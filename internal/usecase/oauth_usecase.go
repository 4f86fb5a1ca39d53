package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"salon/internal/domain/model"
	"salon/internal/oauth"
	"salon/internal/observability"
	repo "salon/internal/repository"
	"salon/internal/security"
	"salon/internal/validator"
)

const authMethodGoogle = "google"

type ExchangeCodeRequest struct {
	Code string `json:"code"`
}

type ExchangeCodeResponse struct {
	User  UserDTO  `json:"user"`
	Token TokenDTO `json:"token"`
}

var errEmailNotVerified = NewCodedError(http.StatusForbidden, "EMAIL_NOT_VERIFIED", "the Google account email is not verified")

// OAuthUsecaseはGoogleログイン後のユーザー解決と、交換コードの発行・消費を扱う。
// セッショントークンはリダイレクトURLに載せずコード経由で渡す
type OAuthUsecase struct {
	d Deps
}

func NewOAuthUsecase(d Deps) *OAuthUsecase {
	return &OAuthUsecase{d: d}
}

// OAuthCallbackはidentityからユーザーを見つける（なければ作る）。
// 戻り値はフロントへのリダイレクト先（?code=...）
func (u *OAuthUsecase) OAuthCallback(ctx context.Context, id oauth.Identity) (string, error) {
	email := validator.SanitizeEmail(id.Email)
	if id.ProviderID == "" || email == "" {
		return "", NewHTTPError(http.StatusBadRequest, "incomplete identity")
	}
	if !id.EmailVerified {
		return "", errEmailNotVerified
	}

	user, err := u.resolveUser(ctx, id, email)
	if err != nil {
		return "", err
	}

	if !user.IsActive {
		u.d.Metrics.AuthAttempt(authMethodGoogle, observability.OutcomeDisabled)
		return "", errAccountDisabled
	}

	token, claims, err := u.d.Issuer.Issue(user.ID, user.Email, u.d.Config.OAuthSessionTTL)
	if err != nil {
		return "", internalError(u.d.logger(), "oauth: issue token", err)
	}

	if err := u.d.Users.RecordLogin(ctx, user.ID, u.d.clock().Now()); err != nil {
		return "", internalError(u.d.logger(), "oauth: record login", err)
	}

	code, err := u.IssueCode(ctx, user, token)
	if err != nil {
		return "", internalError(u.d.logger(), "oauth: issue code", err)
	}

	u.d.Metrics.AuthAttempt(authMethodGoogle, observability.OutcomeSuccess)
	u.d.logger().Info("google login", "user_id", user.ID, "jti", claims.JTI())

	q := url.Values{}
	q.Set("code", code)
	return strings.TrimRight(u.d.Config.FrontendURL, "/") + "/auth/callback?" + q.Encode(), nil
}

// google_id → email（紐付け） → 新規作成 の順
func (u *OAuthUsecase) resolveUser(ctx context.Context, id oauth.Identity, email string) (*model.User, error) {
	user, err := u.d.Users.FindByGoogleID(ctx, id.ProviderID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, repo.ErrUserNotFound) {
		return nil, internalError(u.d.logger(), "oauth: lookup by google id", err)
	}

	user, err = u.d.Users.FindByEmail(ctx, email)
	if err == nil {
		googleID := id.ProviderID
		user.GoogleID = &googleID
		user.IsConfirmed = true
		if user.PhotoURL == "" {
			user.PhotoURL = id.PictureURL
		}
		if err := u.d.Users.Update(ctx, user); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				return nil, NewHTTPError(http.StatusConflict, "google account already linked to another user")
			}
			return nil, internalError(u.d.logger(), "oauth: link google id", err)
		}
		return user, nil
	}
	if !errors.Is(err, repo.ErrUserNotFound) {
		return nil, internalError(u.d.logger(), "oauth: lookup by email", err)
	}

	//パスワードも秘密の質問もないユーザー。Googleで確認済みなのでOTPは不要
	googleID := id.ProviderID
	user = &model.User{
		Email:       email,
		GoogleID:    &googleID,
		Role:        model.RoleUser,
		IsActive:    true,
		IsConfirmed: true,
		Name:        validator.SanitizeInput(strings.TrimSpace(id.GivenName)),
		LastName:    validator.SanitizeInput(strings.TrimSpace(id.FamilyName)),
		PhotoURL:    id.PictureURL,
	}
	if err := u.d.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return nil, NewHTTPError(http.StatusConflict, "account already exists")
		}
		return nil, internalError(u.d.logger(), "oauth: create user", err)
	}
	return user, nil
}

// IssueCodeはセッショントークンに対応する5分間・1回限りのコードを作る
func (u *OAuthUsecase) IssueCode(ctx context.Context, user *model.User, sessionToken string) (string, error) {
	code, err := u.d.Generator.NewToken()
	if err != nil {
		return "", err
	}
	now := u.d.clock().Now()
	err = u.d.Tokens.Create(ctx, &model.OneTimeToken{
		TokenHash: security.HashToken(code),
		Purpose:   model.PurposeOAuthExchange,
		UserID:    user.ID,
		Email:     user.Email,
		Payload:   sessionToken,
		ExpiresAt: now.Add(u.d.Config.OAuthCodeTTL),
		CreatedAt: now,
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// ExchangeCodeはコードを消費してセッショントークンを返す。
// ない・使用済み・期限切れは同じ401
func (u *OAuthUsecase) ExchangeCode(ctx context.Context, req ExchangeCodeRequest) (*ExchangeCodeResponse, error) {
	code := strings.TrimSpace(req.Code)
	if code == "" {
		return nil, errInvalidCode
	}

	now := u.d.clock().Now()
	hash := security.HashToken(code)

	t, err := u.d.Tokens.Consume(ctx, repo.OneTimeTokenQuery{
		TokenHash: hash,
		Purposes:  []model.TokenPurpose{model.PurposeOAuthExchange},
	}, now)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := u.d.Tokens.DeleteIfExpired(ctx, hash, now); err != nil {
				u.d.logger().Warn("oauth: purge expired code failed", "error", err)
			}
			return nil, errInvalidCode
		}
		return nil, internalError(u.d.logger(), "oauth: consume code", err)
	}

	claims, err := u.d.Issuer.Parse(t.Payload)
	if err != nil {
		//コードより先にトークンが切れていた
		return nil, errInvalidCode
	}

	user, err := u.d.Users.FindByID(ctx, t.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, errInvalidCode
		}
		return nil, internalError(u.d.logger(), "oauth: lookup user", err)
	}

	return &ExchangeCodeResponse{
		User:  toUserDTO(user),
		Token: toTokenDTO(t.Payload, claims.ExpiresAtTime(), now),
	}, nil
}
