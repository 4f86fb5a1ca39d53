package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"salon/internal/domain/model"
	repo "salon/internal/repository"
	"salon/internal/validator"
)

// プロフィール画面で返す全項目
type ProfileDTO struct {
	UserDTO
	Phone             string            `json:"phone"`
	BirthDate         *string           `json:"birth_date"`
	SecurityQuestion  string            `json:"security_question,omitempty"`
	Address           model.Address     `json:"address"`
	HairProfile       model.HairProfile `json:"hair_profile"`
	AcceptsPromotions bool              `json:"accepts_promotions"`
	LastLoginAt       *time.Time        `json:"last_login_at"`
}

// nilの項目は変更しない
type UpdateProfileRequest struct {
	Name              *string            `json:"name"`
	LastName          *string            `json:"last_name"`
	Phone             *string            `json:"phone"`
	BirthDate         *string            `json:"birth_date"`
	PhotoURL          *string            `json:"photo_url"`
	Address           *model.Address     `json:"address"`
	HairProfile       *model.HairProfile `json:"hair_profile"`
	AcceptsPromotions *bool              `json:"accepts_promotions"`
	SecurityQuestion  *string            `json:"security_question"`
	SecurityAnswer    *string            `json:"security_answer"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

const msgPasswordChanged = "password changed, sign in again on every device"

var errWrongPassword = NewCodedError(http.StatusUnauthorized, "INVALID_PASSWORD", "current password is incorrect")

type ProfileUsecase struct {
	d Deps
}

func NewProfileUsecase(d Deps) *ProfileUsecase {
	return &ProfileUsecase{d: d}
}

func (u *ProfileUsecase) load(ctx context.Context, userID int64) (*model.User, error) {
	user, err := u.d.Users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, NewHTTPError(http.StatusNotFound, "user not found")
		}
		return nil, internalError(u.d.logger(), "profile: lookup failed", err)
	}
	if !user.IsActive {
		return nil, errAccountDisabled
	}
	return user, nil
}

func (u *ProfileUsecase) GetProfile(ctx context.Context, userID int64) (*ProfileDTO, error) {
	user, err := u.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	dto := toProfileDTO(user)
	return &dto, nil
}

func (u *ProfileUsecase) UpdateProfile(ctx context.Context, userID int64, req UpdateProfileRequest) (*ProfileDTO, error) {
	user, err := u.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := applyProfile(user, req); err != nil {
		return nil, err
	}

	if req.SecurityQuestion != nil || req.SecurityAnswer != nil {
		q, a := "", ""
		if req.SecurityQuestion != nil {
			q = *req.SecurityQuestion
		}
		if req.SecurityAnswer != nil {
			a = *req.SecurityAnswer
		}
		if err := validator.ValidateSecurityQuestion(q, a); err != nil {
			return nil, validationError(err)
		}
		answerHash, err := u.d.Hasher.Hash(strings.TrimSpace(a))
		if err != nil {
			return nil, internalError(u.d.logger(), "profile: hash answer", err)
		}
		question := validator.SanitizeInput(q)
		user.SecurityQuestion = &question
		user.SecurityAnswerHash = &answerHash
	}

	if err := u.d.Users.Update(ctx, user); err != nil {
		return nil, internalError(u.d.logger(), "profile: update failed", err)
	}

	dto := toProfileDTO(user)
	return &dto, nil
}

// 自由入力はSQLインジェクションっぽいものを弾いてからHTMLエスケープして保存
func applyProfile(user *model.User, req UpdateProfileRequest) error {
	for _, s := range []*string{req.Name, req.LastName, req.PhotoURL} {
		if s != nil && validator.ContainsSQLInjection(*s) {
			return NewHTTPError(http.StatusBadRequest, "input contains invalid characters")
		}
	}

	if req.Name != nil {
		name := validator.SanitizeInput(*req.Name)
		if name == "" {
			return NewHTTPError(http.StatusBadRequest, "name is required")
		}
		user.Name = name
	}
	if req.LastName != nil {
		user.LastName = validator.SanitizeInput(*req.LastName)
	}
	if req.Phone != nil {
		phone := validator.SanitizePhone(*req.Phone)
		if phone != "" && len(phone) < 10 {
			return NewHTTPError(http.StatusBadRequest, "invalid phone number")
		}
		user.Phone = phone
	}
	if req.BirthDate != nil {
		if strings.TrimSpace(*req.BirthDate) == "" {
			user.BirthDate = nil
		} else {
			t, err := time.Parse(dateLayout, strings.TrimSpace(*req.BirthDate))
			if err != nil {
				return NewHTTPError(http.StatusBadRequest, "birth_date must be YYYY-MM-DD")
			}
			user.BirthDate = &t
		}
	}
	if req.PhotoURL != nil {
		user.PhotoURL = strings.TrimSpace(*req.PhotoURL)
	}
	if req.Address != nil {
		a := *req.Address
		for _, s := range []string{a.Street, a.Number, a.Neighborhood, a.City, a.State} {
			if validator.ContainsSQLInjection(s) {
				return NewHTTPError(http.StatusBadRequest, "address contains invalid characters")
			}
		}
		user.Address = model.Address{
			Street:       validator.SanitizeInput(a.Street),
			Number:       validator.SanitizeInput(a.Number),
			Neighborhood: validator.SanitizeInput(a.Neighborhood),
			City:         validator.SanitizeInput(a.City),
			State:        validator.SanitizeInput(a.State),
			PostalCode:   validator.SanitizePostalCode(a.PostalCode),
		}
	}
	if req.HairProfile != nil {
		h := *req.HairProfile
		switch h.HairType {
		case "", model.HairStraight, model.HairWavy, model.HairCurly:
		default:
			return NewHTTPError(http.StatusBadRequest, "hair_type must be liso, ondulado or rizado")
		}
		user.HairProfile = model.HairProfile{
			HairType:     h.HairType,
			NaturalColor: validator.SanitizeInput(h.NaturalColor),
			CurrentColor: validator.SanitizeInput(h.CurrentColor),
			ProductsUsed: validator.SanitizeInput(h.ProductsUsed),
			Allergies:    validator.SanitizeInput(h.Allergies),
		}
	}
	if req.AcceptsPromotions != nil {
		user.AcceptsPromotions = *req.AcceptsPromotions
	}
	return nil
}

// ChangePasswordは現在のパスワードを確認して変更し、全セッションを失効させる。
// Google専用（パスワード未設定）のユーザーは現在のパスワードなしで設定できる
func (u *ProfileUsecase) ChangePassword(ctx context.Context, userID int64, req ChangePasswordRequest) (*SuccessResponse, error) {
	user, err := u.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !user.IsOAuthOnly() {
		if req.CurrentPassword == "" || !u.d.Hasher.Compare(*user.PasswordHash, req.CurrentPassword) {
			return nil, errWrongPassword
		}
		if req.CurrentPassword == req.NewPassword {
			return nil, errSamePassword
		}
	}

	if err := validator.ValidatePassword(req.NewPassword, personalData(user)); err != nil {
		return nil, validationError(err)
	}

	hash, err := u.d.Hasher.Hash(req.NewPassword)
	if err != nil {
		return nil, internalError(u.d.logger(), "change password: hash", err)
	}
	// 再設定トークンの無効化とセッション失効もパスワード変更と同じTxで行う
	now := u.d.clock().Now()
	err = u.d.Tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := r.Users().UpdatePassword(ctx, user.ID, hash, false); err != nil {
			return err
		}
		if _, err := r.OneTimeTokens().InvalidateForUser(ctx, user.ID, model.RecoveryPurposes, now); err != nil {
			return err
		}
		return r.Users().SetTokensRevokedBefore(ctx, user.ID, now)
	})
	if err != nil {
		return nil, internalError(u.d.logger(), "change password", err)
	}
	u.d.Metrics.Revocation(revocationKindAll)

	return &SuccessResponse{Message: msgPasswordChanged}, nil
}

func toProfileDTO(u *model.User) ProfileDTO {
	var birth *string
	if u.BirthDate != nil {
		s := u.BirthDate.Format(dateLayout)
		birth = &s
	}
	question := ""
	if u.SecurityQuestion != nil {
		question = *u.SecurityQuestion
	}
	return ProfileDTO{
		UserDTO:           toUserDTO(u),
		Phone:             u.Phone,
		BirthDate:         birth,
		SecurityQuestion:  question,
		Address:           u.Address,
		HairProfile:       u.HairProfile,
		AcceptsPromotions: u.AcceptsPromotions,
		LastLoginAt:       u.LastLoginAt,
	}
}
