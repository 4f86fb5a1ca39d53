package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"salon/internal/domain/model"
	"salon/internal/logging"
	"salon/internal/notify"
	"salon/internal/observability"
	repo "salon/internal/repository"
	"salon/internal/security"
	"salon/internal/validator"
)

type SecurityQuestionRequest struct {
	Email string `json:"email"`
}

type SecurityQuestionResponse struct {
	Question string `json:"question"`
}

type SecurityAnswerRequest struct {
	Email  string `json:"email"`
	Answer string `json:"answer"`
}

// 質問フローで発行するリセットトークン
type ResetTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type ValidateResetTokenRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

type ValidateResetTokenResponse struct {
	Valid     bool `json:"valid"`
	ExpiresIn int  `json:"expires_in"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

const (
	flowQuestion = "question"
	flowEmail    = "email"

	msgResetRequested = "if an account exists for this email, we sent a link to reset the password"
	msgPasswordReset  = "password updated, sign in with your new password"
)

var (
	errNoAccount     = NewCodedError(http.StatusNotFound, "ACCOUNT_NOT_FOUND", "no active account for this email")
	errGoogleAccount = NewCodedError(http.StatusBadRequest, "GOOGLE_ACCOUNT", "this account signs in with Google; use Google sign-in or request a reset link")
	errNoQuestion    = NewCodedError(http.StatusBadRequest, "NO_SECURITY_QUESTION", "no security question configured; request a reset link instead")
	errWrongAnswer   = NewCodedError(http.StatusUnauthorized, "INVALID_ANSWER", "incorrect answer")
	errSamePassword  = NewCodedError(http.StatusBadRequest, "SAME_PASSWORD", "new password must differ from the current one")
)

// RecoveryUsecaseはパスワード再設定の2つのフローを扱う。
// A: 秘密の質問 → トークン → 再設定 / B: メールのリンク → 再設定
type RecoveryUsecase struct {
	d Deps
}

func NewRecoveryUsecase(d Deps) *RecoveryUsecase {
	return &RecoveryUsecase{d: d}
}

// 質問フローで対象にできるユーザー。
// 質問フローはアカウントの有無とGoogle専用かどうかを返す
func (u *RecoveryUsecase) questionUser(ctx context.Context, email string) (*model.User, error) {
	user, err := u.d.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, errNoAccount
		}
		return nil, internalError(u.d.logger(), "recovery: lookup failed", err)
	}
	if !user.IsActive {
		return nil, errNoAccount
	}
	if !user.HasSecurityQuestion() {
		if user.IsOAuthOnly() {
			return nil, errGoogleAccount
		}
		return nil, errNoQuestion
	}
	return user, nil
}

func (u *RecoveryUsecase) checkLocked(ctx context.Context, email string) error {
	status, err := u.d.Lockout.IsLocked(ctx, email)
	if err != nil {
		return internalError(u.d.logger(), "recovery: lockout check", err)
	}
	if status.Locked {
		return errAccountLocked(status.RemainingMinutes(u.d.clock().Now()))
	}
	return nil
}

func (u *RecoveryUsecase) GetSecurityQuestion(ctx context.Context, req SecurityQuestionRequest) (*SecurityQuestionResponse, error) {
	email := validator.SanitizeEmail(req.Email)
	if err := validator.ValidateEmail(email); err != nil {
		return nil, validationError(err)
	}
	if err := u.checkLocked(ctx, email); err != nil {
		return nil, err
	}

	user, err := u.questionUser(ctx, email)
	if err != nil {
		return nil, err
	}
	return &SecurityQuestionResponse{Question: *user.SecurityQuestion}, nil
}

// AnswerSecurityQuestionは答えが合えばリセットトークンを返す。
// 間違いはログイン失敗と同じカウンタに積む
func (u *RecoveryUsecase) AnswerSecurityQuestion(ctx context.Context, req SecurityAnswerRequest) (*ResetTokenResponse, error) {
	email := validator.SanitizeEmail(req.Email)
	if err := validator.ValidateEmail(email); err != nil {
		return nil, validationError(err)
	}
	answer := strings.TrimSpace(req.Answer)
	if answer == "" {
		return nil, NewHTTPError(http.StatusBadRequest, "answer is required")
	}
	if err := u.checkLocked(ctx, email); err != nil {
		return nil, err
	}

	user, err := u.questionUser(ctx, email)
	if err != nil {
		return nil, err
	}

	if !u.d.Hasher.Compare(*user.SecurityAnswerHash, answer) {
		u.d.Metrics.RecoveryEvent(flowQuestion, observability.OutcomeFailure)
		status, err := u.d.Lockout.RecordFailure(ctx, email)
		if err != nil {
			logging.LogError(u.d.logger(), "recovery: record failure", err)
		}
		if status.Locked {
			u.d.Metrics.Lockout()
			return nil, errAccountLocked(status.RemainingMinutes(u.d.clock().Now()))
		}
		return nil, errWrongAnswer
	}

	if err := u.d.Lockout.ResetOnSuccess(ctx, email); err != nil {
		logging.LogError(u.d.logger(), "recovery: lockout reset failed", err)
	}

	now := u.d.clock().Now()

	//前に発行した質問フローのトークンは使えなくする
	if _, err := u.d.Tokens.InvalidateForUser(ctx, user.ID, []model.TokenPurpose{model.PurposeRecoveryQuestion}, now); err != nil {
		return nil, internalError(u.d.logger(), "recovery: invalidate tokens", err)
	}

	plain, err := u.issueToken(ctx, user, model.PurposeRecoveryQuestion, u.d.Config.QuestionTokenTTL)
	if err != nil {
		return nil, internalError(u.d.logger(), "recovery: issue token", err)
	}

	u.d.Metrics.RecoveryEvent(flowQuestion, observability.OutcomeSuccess)
	return &ResetTokenResponse{
		Token:     plain,
		ExpiresIn: int(u.d.Config.QuestionTokenTTL.Seconds()),
	}, nil
}

// RequestPasswordResetは常に同じメッセージを返す（アカウントの有無・種類を漏らさない）
func (u *RecoveryUsecase) RequestPasswordReset(ctx context.Context, req PasswordResetRequest) (*SuccessResponse, error) {
	email := validator.SanitizeEmail(req.Email)
	if err := validator.ValidateEmail(email); err != nil {
		return nil, validationError(err)
	}

	generic := &SuccessResponse{Message: msgResetRequested}
	log := u.d.logger().With("email", logging.MaskEmail(email))

	user, err := u.d.Users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repo.ErrUserNotFound) {
			logging.LogError(log, "reset request: lookup failed", err)
		}
		return generic, nil
	}
	if !user.IsActive || user.IsOAuthOnly() {
		log.Debug("reset request ignored", "active", user.IsActive, "oauth_only", user.IsOAuthOnly())
		return generic, nil
	}

	now := u.d.clock().Now()
	if _, err := u.d.Tokens.InvalidateForUser(ctx, user.ID, []model.TokenPurpose{model.PurposeRecoveryEmail}, now); err != nil {
		logging.LogError(log, "reset request: invalidate tokens", err)
		return generic, nil
	}

	plain, err := u.issueToken(ctx, user, model.PurposeRecoveryEmail, u.d.Config.EmailTokenTTL)
	if err != nil {
		logging.LogError(log, "reset request: issue token", err)
		return generic, nil
	}

	link := notify.ResetLink(u.d.Config.FrontendURL, plain, user.Email)
	msg := notify.PasswordResetMessage(user.Email, user.Name, link, u.d.Config.EmailTokenTTL)
	if err := u.d.Sender.Send(ctx, msg); err != nil {
		u.d.Metrics.NotifyFailure(string(notify.ChannelEmail))
		log.Warn("reset mail delivery failed", "user_id", user.ID, "error", err)
	}

	u.d.Metrics.RecoveryEvent(flowEmail, "requested")
	return generic, nil
}

// ValidateResetTokenは消費せずに有効か確認する（画面の事前チェック用）
func (u *RecoveryUsecase) ValidateResetToken(ctx context.Context, req ValidateResetTokenRequest) (*ValidateResetTokenResponse, error) {
	email := validator.SanitizeEmail(req.Email)
	token := strings.TrimSpace(req.Token)
	if email == "" || token == "" {
		return nil, errInvalidResetToken
	}

	now := u.d.clock().Now()
	q := recoveryQuery(token, email)

	t, err := u.d.Tokens.FindActive(ctx, q, now)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			u.purgeIfExpired(ctx, q.TokenHash)
			return nil, errInvalidResetToken
		}
		return nil, internalError(u.d.logger(), "validate reset token: lookup failed", err)
	}

	return &ValidateResetTokenResponse{
		Valid:     true,
		ExpiresIn: int(t.ExpiresAt.Sub(now).Seconds()),
	}, nil
}

// ResetPasswordはトークンを1回だけ消費してパスワードを変える。
// 同じTxでロック解除・他のリセットトークン無効化・全セッション失効まで行う
func (u *RecoveryUsecase) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*SuccessResponse, error) {
	email := validator.SanitizeEmail(req.Email)
	token := strings.TrimSpace(req.Token)
	if email == "" || token == "" {
		return nil, errInvalidResetToken
	}

	user, err := u.d.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, errInvalidResetToken
		}
		return nil, internalError(u.d.logger(), "reset password: lookup failed", err)
	}
	if !user.IsActive {
		return nil, errInvalidResetToken
	}

	now := u.d.clock().Now()
	q := recoveryQuery(token, email)

	//パスワードの比較より先にトークンを確認する（トークンなしで現在のパスワードを探らせない）
	if _, err := u.d.Tokens.FindActive(ctx, q, now); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			u.purgeIfExpired(ctx, q.TokenHash)
			return nil, errInvalidResetToken
		}
		return nil, internalError(u.d.logger(), "reset password: token lookup failed", err)
	}

	if err := validator.ValidatePassword(req.NewPassword, personalData(user)); err != nil {
		return nil, validationError(err)
	}
	if !user.IsOAuthOnly() && u.d.Hasher.Compare(*user.PasswordHash, req.NewPassword) {
		return nil, errSamePassword
	}

	hash, err := u.d.Hasher.Hash(req.NewPassword)
	if err != nil {
		return nil, internalError(u.d.logger(), "reset password: hash", err)
	}

	var flow string
	err = u.d.Tx.WithinTx(ctx, func(r repo.TxRepos) error {
		consumed, err := r.OneTimeTokens().Consume(ctx, q, now)
		if err != nil {
			return err
		}
		if consumed.UserID != user.ID {
			return repo.ErrNotFound
		}

		//質問フローを通ったなら本人確認済みとみなす
		confirm := consumed.Purpose == model.PurposeRecoveryQuestion
		flow = flowEmail
		if confirm {
			flow = flowQuestion
		}

		if err := r.Users().UpdatePassword(ctx, user.ID, hash, confirm); err != nil {
			return err
		}
		if err := r.Users().UpdateLockout(ctx, user.ID, repo.LockoutState{LastFailedLoginAt: user.LastFailedLoginAt}); err != nil {
			return err
		}
		if _, err := r.OneTimeTokens().InvalidateForUser(ctx, user.ID, model.RecoveryPurposes, now); err != nil {
			return err
		}
		if err := r.Users().SetTokensRevokedBefore(ctx, user.ID, now); err != nil {
			return err
		}

		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  user.ID,
			Action:       model.AuditActionPasswordReset,
			ResourceType: model.AuditResourceUser,
			ResourceID:   user.ID,
			AfterJSON:    fmt.Sprintf(`{"flow":%q}`, flow),
			CreatedAt:    now,
		})
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			u.purgeIfExpired(ctx, q.TokenHash)
			u.d.Metrics.RecoveryEvent("reset", observability.OutcomeFailure)
			return nil, errInvalidResetToken
		}
		return nil, internalError(u.d.logger(), "reset password: tx failed", err)
	}

	u.d.Metrics.RecoveryEvent(flow, "reset")
	u.d.Metrics.Revocation(revocationKindAll)
	u.d.logger().Info("password reset", "user_id", user.ID, "flow", flow)

	if err := u.d.Sender.Send(ctx, notify.PasswordChangedMessage(user.Email, user.Name)); err != nil {
		u.d.Metrics.NotifyFailure(string(notify.ChannelEmail))
		u.d.logger().Warn("password changed mail failed", "user_id", user.ID, "error", err)
	}

	return &SuccessResponse{Message: msgPasswordReset}, nil
}

// 平文はレスポンス・メールにだけ出し、保存はhash
func (u *RecoveryUsecase) issueToken(ctx context.Context, user *model.User, purpose model.TokenPurpose, ttl time.Duration) (string, error) {
	plain, err := u.d.Generator.NewToken()
	if err != nil {
		return "", err
	}
	now := u.d.clock().Now()
	err = u.d.Tokens.Create(ctx, &model.OneTimeToken{
		TokenHash: security.HashToken(plain),
		Purpose:   purpose,
		UserID:    user.ID,
		Email:     user.Email,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
	if err != nil {
		return "", err
	}
	return plain, nil
}

// 期限切れの行は読んだついでに消す
func (u *RecoveryUsecase) purgeIfExpired(ctx context.Context, tokenHash string) {
	if err := u.d.Tokens.DeleteIfExpired(ctx, tokenHash, u.d.clock().Now()); err != nil {
		logging.LogError(u.d.logger(), "recovery: purge expired token", err)
	}
}

func recoveryQuery(plain string, email string) repo.OneTimeTokenQuery {
	return repo.OneTimeTokenQuery{
		TokenHash: security.HashToken(plain),
		Purposes:  model.RecoveryPurposes,
		Email:     email,
	}
}

func personalData(u *model.User) validator.PersonalData {
	return validator.PersonalData{
		Email:     u.Email,
		Name:      u.Name,
		LastName:  u.LastName,
		Phone:     u.Phone,
		BirthDate: u.BirthDate,
	}
}
