package usecase

import (
	"context"
	"errors"
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

const dateLayout = "2006-01-02"

type AuthRegisterRequest struct {
	Email             string  `json:"email"`
	Password          string  `json:"password"`
	Name              string  `json:"name"`
	LastName          string  `json:"last_name"`
	Phone             string  `json:"phone"`
	BirthDate         *string `json:"birth_date"`
	SecurityQuestion  string  `json:"security_question"`
	SecurityAnswer    string  `json:"security_answer"`
	AcceptedPrivacy   bool    `json:"accepted_privacy_notice"`
	AcceptsPromotions bool    `json:"accepts_promotions"`
	OTPChannel        string  `json:"otp_channel"`
}

type AuthRegisterResponse struct {
	User UserDTO `json:"user"`
	//通知に失敗してもアカウントは作られている
	NotificationSent bool   `json:"notification_sent"`
	Message          string `json:"message"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginResponse struct {
	User  UserDTO  `json:"user"`
	Token TokenDTO `json:"token"`
}

type VerifyOTPRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type ResendOTPRequest struct {
	Email   string `json:"email"`
	Channel string `json:"channel"`
}

type CheckEmailResponse struct {
	Available bool `json:"available"`
}

const (
	msgRegistered        = "account created, check your verification code"
	msgRegisteredNoOTP   = "account created, but the verification code could not be sent; request a new one"
	msgOTPResent         = "if the account exists and is pending confirmation, a new code was sent"
	msgConfirmed         = "account confirmed"
	msgLoggedOut         = "logged out"
	msgLoggedOutAll      = "logged out from all devices"
	authMethodPassword   = "password"
	authMethodOTP        = "otp"
	revocationKindSingle = "single"
	revocationKindAll    = "all"
)

type AuthUsecase struct {
	d Deps
}

func NewAuthUsecase(d Deps) *AuthUsecase {
	return &AuthUsecase{d: d}
}

func (u *AuthUsecase) Register(ctx context.Context, req AuthRegisterRequest) (*AuthRegisterResponse, error) {
	email := validator.SanitizeEmail(req.Email)

	var birthDate *time.Time
	if req.BirthDate != nil && strings.TrimSpace(*req.BirthDate) != "" {
		t, err := time.Parse(dateLayout, strings.TrimSpace(*req.BirthDate))
		if err != nil {
			return nil, NewHTTPError(http.StatusBadRequest, "birth_date must be YYYY-MM-DD")
		}
		birthDate = &t
	}

	//入力検証（validatorに寄せる）
	if err := validator.ValidateRegister(validator.RegisterInput{
		Email:            email,
		Password:         req.Password,
		Name:             req.Name,
		LastName:         req.LastName,
		Phone:            req.Phone,
		BirthDate:        birthDate,
		SecurityQuestion: req.SecurityQuestion,
		SecurityAnswer:   req.SecurityAnswer,
		AcceptedPrivacy:  req.AcceptedPrivacy,
		OTPChannel:       req.OTPChannel,
	}); err != nil {
		return nil, validationError(err)
	}

	_, err := u.d.Users.FindByEmail(ctx, email)
	if err == nil {
		return nil, errEmailTaken
	}
	if !errors.Is(err, repo.ErrUserNotFound) {
		return nil, internalError(u.d.logger(), "register: lookup failed", err)
	}

	//パスワードと答えは必ずハッシュ化して保存（平文保存しない）
	pwHash, err := u.d.Hasher.Hash(req.Password)
	if err != nil {
		return nil, internalError(u.d.logger(), "register: hash password", err)
	}
	answerHash, err := u.d.Hasher.Hash(strings.TrimSpace(req.SecurityAnswer))
	if err != nil {
		return nil, internalError(u.d.logger(), "register: hash answer", err)
	}

	channel := model.OTPChannelEmail
	if req.OTPChannel == string(model.OTPChannelSMS) {
		channel = model.OTPChannelSMS
	}

	code, otpHash, otpExpires, err := u.newOTP()
	if err != nil {
		return nil, internalError(u.d.logger(), "register: otp", err)
	}

	question := validator.SanitizeInput(strings.TrimSpace(req.SecurityQuestion))
	user := &model.User{
		Email:                 email,
		PasswordHash:          &pwHash,
		SecurityQuestion:      &question,
		SecurityAnswerHash:    &answerHash,
		Role:                  model.RoleUser,
		IsActive:              true,
		IsConfirmed:           false,
		OTPHash:               &otpHash,
		OTPExpiresAt:          &otpExpires,
		OTPChannel:            channel,
		Name:                  validator.SanitizeInput(strings.TrimSpace(req.Name)),
		LastName:              validator.SanitizeInput(strings.TrimSpace(req.LastName)),
		Phone:                 validator.SanitizePhone(req.Phone),
		BirthDate:             birthDate,
		AcceptedPrivacyNotice: req.AcceptedPrivacy,
		AcceptsPromotions:     req.AcceptsPromotions,
	}

	//保存（同時登録のemail重複はrepoがErrConflictにする）
	if err := u.d.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return nil, errEmailTaken
		}
		return nil, internalError(u.d.logger(), "register: create user", err)
	}

	sent := u.sendOTP(ctx, user, code)
	msg := msgRegistered
	if !sent {
		msg = msgRegisteredNoOTP
	}

	return &AuthRegisterResponse{
		User:             toUserDTO(user),
		NotificationSent: sent,
		Message:          msg,
	}, nil
}

// VerifyOTPは登録時のコードを確認してアカウントを有効にする
func (u *AuthUsecase) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*SuccessResponse, error) {
	email := validator.SanitizeEmail(req.Email)
	if err := validator.ValidateEmail(email); err != nil {
		return nil, validationError(err)
	}
	code := strings.TrimSpace(req.Code)
	if err := validator.ValidateOTP(code); err != nil {
		return nil, validationError(err)
	}

	user, err := u.d.Users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, errInvalidCode
		}
		return nil, internalError(u.d.logger(), "verify otp: lookup failed", err)
	}

	if user.IsConfirmed {
		return nil, NewCodedError(http.StatusBadRequest, "ALREADY_CONFIRMED", "account already confirmed")
	}
	if user.OTPHash == nil || user.OTPExpiresAt == nil {
		return nil, errInvalidCode
	}

	if !user.OTPExpiresAt.After(u.d.clock().Now()) {
		u.d.Metrics.AuthAttempt(authMethodOTP, observability.OutcomeFailure)
		return nil, NewCodedError(http.StatusUnauthorized, "OTP_EXPIRED", "code expired, request a new one")
	}
	if !security.TokenMatches(code, *user.OTPHash) {
		u.d.Metrics.AuthAttempt(authMethodOTP, observability.OutcomeFailure)
		return nil, errInvalidCode
	}

	user.IsConfirmed = true
	user.OTPHash = nil
	user.OTPExpiresAt = nil
	if err := u.d.Users.Update(ctx, user); err != nil {
		return nil, internalError(u.d.logger(), "verify otp: update user", err)
	}

	u.d.Metrics.AuthAttempt(authMethodOTP, observability.OutcomeSuccess)
	return &SuccessResponse{Message: msgConfirmed}, nil
}

// ResendOTPは新しいコードを発行する。
// アカウントの有無で応答を変えない
func (u *AuthUsecase) ResendOTP(ctx context.Context, req ResendOTPRequest) (*SuccessResponse, error) {
	email := validator.SanitizeEmail(req.Email)
	if err := validator.ValidateEmail(email); err != nil {
		return nil, validationError(err)
	}

	generic := &SuccessResponse{Message: msgOTPResent}

	user, err := u.d.Users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repo.ErrUserNotFound) {
			logging.LogError(u.d.logger(), "resend otp: lookup failed", err)
		}
		return generic, nil
	}
	if user.IsConfirmed || !user.IsActive {
		return generic, nil
	}

	switch req.Channel {
	case string(model.OTPChannelSMS):
		if user.Phone != "" {
			user.OTPChannel = model.OTPChannelSMS
		}
	case string(model.OTPChannelEmail):
		user.OTPChannel = model.OTPChannelEmail
	}

	code, otpHash, otpExpires, err := u.newOTP()
	if err != nil {
		return nil, internalError(u.d.logger(), "resend otp: otp", err)
	}
	user.OTPHash = &otpHash
	user.OTPExpiresAt = &otpExpires
	if err := u.d.Users.Update(ctx, user); err != nil {
		return nil, internalError(u.d.logger(), "resend otp: update user", err)
	}

	u.sendOTP(ctx, user, code)
	return generic, nil
}

func (u *AuthUsecase) CheckEmail(ctx context.Context, rawEmail string) (*CheckEmailResponse, error) {
	email := validator.SanitizeEmail(rawEmail)
	if err := validator.ValidateEmail(email); err != nil {
		return nil, validationError(err)
	}

	_, err := u.d.Users.FindByEmail(ctx, email)
	if err == nil {
		return &CheckEmailResponse{Available: false}, nil
	}
	if errors.Is(err, repo.ErrUserNotFound) {
		return &CheckEmailResponse{Available: true}, nil
	}
	return nil, internalError(u.d.logger(), "check email: lookup failed", err)
}

// Loginはロック確認 → パスワード照合 → トークン発行。
// 「メールがない」と「パスワード違い」は同じ401にする
func (u *AuthUsecase) Login(ctx context.Context, req AuthLoginRequest) (*AuthLoginResponse, error) {
	email := validator.SanitizeEmail(req.Email)
	if err := validator.ValidateLogin(email, req.Password); err != nil {
		return nil, validationError(err)
	}

	now := u.d.clock().Now()

	status, err := u.d.Lockout.IsLocked(ctx, email)
	if err != nil {
		return nil, internalError(u.d.logger(), "login: lockout check", err)
	}
	if status.Locked {
		u.d.Metrics.AuthAttempt(authMethodPassword, observability.OutcomeLocked)
		return nil, errAccountLocked(status.RemainingMinutes(now))
	}

	user, err := u.d.Users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repo.ErrUserNotFound) {
			return nil, internalError(u.d.logger(), "login: lookup failed", err)
		}
		//存在しない場合も同じだけ時間を使う
		u.d.Hasher.CompareDummy(req.Password)
		return nil, u.loginFailed(ctx, email, now)
	}

	if user.IsOAuthOnly() {
		u.d.Hasher.CompareDummy(req.Password)
		return nil, u.loginFailed(ctx, email, now)
	}
	if !u.d.Hasher.Compare(*user.PasswordHash, req.Password) {
		return nil, u.loginFailed(ctx, email, now)
	}

	//停止・未確認はパスワードが合っている場合だけ伝える
	if !user.IsActive {
		u.d.Metrics.AuthAttempt(authMethodPassword, observability.OutcomeDisabled)
		return nil, errAccountDisabled
	}
	if !user.IsConfirmed {
		u.d.Metrics.AuthAttempt(authMethodPassword, observability.OutcomeFailure)
		return nil, errAccountUnconfirmed
	}

	if err := u.d.Lockout.ResetOnSuccess(ctx, email); err != nil {
		logging.LogError(u.d.logger(), "login: lockout reset failed", err)
	}

	token, claims, err := u.d.Issuer.Issue(user.ID, user.Email, u.d.Config.SessionTTL)
	if err != nil {
		return nil, internalError(u.d.logger(), "login: issue token", err)
	}

	//無操作タイマーもここから数える
	if err := u.d.Users.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, internalError(u.d.logger(), "login: record login", err)
	}

	u.d.Metrics.AuthAttempt(authMethodPassword, observability.OutcomeSuccess)
	u.d.logger().Info("login succeeded", "user_id", user.ID)

	return &AuthLoginResponse{
		User:  toUserDTO(user),
		Token: toTokenDTO(token, claims.ExpiresAtTime(), now),
	}, nil
}

func (u *AuthUsecase) loginFailed(ctx context.Context, email string, now time.Time) error {
	status, err := u.d.Lockout.RecordFailure(ctx, email)
	if err != nil {
		logging.LogError(u.d.logger(), "login: record failure", err)
	}
	if status.Locked {
		u.d.Metrics.Lockout()
		u.d.Metrics.AuthAttempt(authMethodPassword, observability.OutcomeLocked)
		u.d.logger().Warn("account locked", "email", logging.MaskEmail(email))
		return errAccountLocked(status.RemainingMinutes(now))
	}
	u.d.Metrics.AuthAttempt(authMethodPassword, observability.OutcomeFailure)
	return errInvalidCredentials
}

// Logoutは今のトークンを失効させる。allなら全端末
func (u *AuthUsecase) Logout(ctx context.Context, p *security.Principal, all bool) (*SuccessResponse, error) {
	if p == nil {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	if err := u.d.Revocation.Revoke(ctx, p.JTI, p.UserID, p.ExpiresAt); err != nil {
		return nil, internalError(u.d.logger(), "logout: revoke", err)
	}
	u.d.Metrics.Revocation(revocationKindSingle)

	if !all {
		return &SuccessResponse{Message: msgLoggedOut}, nil
	}

	if err := u.d.Revocation.RevokeAllForPrincipal(ctx, p.UserID); err != nil {
		return nil, internalError(u.d.logger(), "logout: revoke all", err)
	}
	u.d.Metrics.Revocation(revocationKindAll)
	return &SuccessResponse{Message: msgLoggedOutAll}, nil
}

// Refreshは新しいトークンを発行して古いものを失効させる
func (u *AuthUsecase) Refresh(ctx context.Context, p *security.Principal) (*TokenDTO, error) {
	if p == nil {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	token, claims, err := u.d.Issuer.Issue(p.UserID, p.Email, u.d.Config.SessionTTL)
	if err != nil {
		return nil, internalError(u.d.logger(), "refresh: issue token", err)
	}

	if err := u.d.Revocation.Revoke(ctx, p.JTI, p.UserID, p.ExpiresAt); err != nil {
		return nil, internalError(u.d.logger(), "refresh: revoke old token", err)
	}

	dto := toTokenDTO(token, claims.ExpiresAtTime(), u.d.clock().Now())
	return &dto, nil
}

func (u *AuthUsecase) Me(ctx context.Context, userID int64) (*UserDTO, error) {
	if userID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	user, err := u.d.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
		}
		return nil, internalError(u.d.logger(), "me: lookup failed", err)
	}
	if !user.IsActive {
		return nil, errAccountDisabled
	}

	dto := toUserDTO(user)
	return &dto, nil
}

// 平文コード・hash・期限
func (u *AuthUsecase) newOTP() (string, string, time.Time, error) {
	code, err := u.d.Generator.NewOTP()
	if err != nil {
		return "", "", time.Time{}, err
	}
	return code, security.HashToken(code), u.d.clock().Now().Add(u.d.Config.OTPTTL), nil
}

// 送れなかったらfalse。エラーは返さない
func (u *AuthUsecase) sendOTP(ctx context.Context, user *model.User, code string) bool {
	channel := notify.ChannelEmail
	to := user.Email
	if user.OTPChannel == model.OTPChannelSMS && user.Phone != "" {
		channel = notify.ChannelSMS
		to = user.Phone
	}

	msg := notify.OTPMessage(channel, to, user.Name, code, u.d.Config.OTPTTL)
	if err := u.d.Sender.Send(ctx, msg); err != nil {
		u.d.Metrics.NotifyFailure(string(channel))
		u.d.logger().Warn("otp delivery failed", "user_id", user.ID, "channel", channel, "error", err)
		return false
	}
	return true
}
