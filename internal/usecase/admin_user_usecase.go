package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"salon/internal/domain/model"
	repo "salon/internal/repository"
)

// 管理画面のユーザー一覧
type AdminUserDTO struct {
	UserDTO
	IsActive            bool       `json:"is_active"`
	FailedLoginAttempts int        `json:"failed_login_attempts"`
	LockedUntil         *time.Time `json:"locked_until"`
	LastLoginAt         *time.Time `json:"last_login_at"`
	LastActivityAt      *time.Time `json:"last_activity_at"`
	CreatedAt           time.Time  `json:"created_at"`
}

type AdminUserListOutput struct {
	Items []AdminUserDTO `json:"items"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

type ListAuditLogsInput struct {
	ActorUserID  *int64
	Action       string
	ResourceType string
	ResourceID   *int64
	From         *time.Time
	To           *time.Time
	Page         int
	Limit        int
}

type AuditLogListOutput struct {
	Items []model.AuditLog `json:"items"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

type ForceLogoutResponse struct {
	UserID    int64     `json:"user_id"`
	RevokedAt time.Time `json:"revoked_at"`
}

type AdminUserUsecase struct {
	d Deps
}

func NewAdminUserUsecase(d Deps) *AdminUserUsecase {
	return &AdminUserUsecase{d: d}
}

func (u *AdminUserUsecase) ListUsers(ctx context.Context, page int, limit int) (*AdminUserListOutput, error) {
	if page < 1 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if limit < 1 || limit > 100 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}

	users, err := u.d.Users.ListActive(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, internalError(u.d.logger(), "admin: list users", err)
	}

	items := make([]AdminUserDTO, 0, len(users))
	for i := range users {
		items = append(items, toAdminUserDTO(&users[i]))
	}
	return &AdminUserListOutput{Items: items, Page: page, Limit: limit}, nil
}

// 対象ユーザーを取る。自分自身は操作させない
func (u *AdminUserUsecase) target(ctx context.Context, adminID int64, targetID int64) (*model.User, error) {
	if targetID <= 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid user id")
	}
	if adminID == targetID {
		return nil, NewHTTPError(http.StatusBadRequest, "cannot apply this action to yourself")
	}
	user, err := u.d.Users.FindByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			return nil, NewHTTPError(http.StatusNotFound, "user not found")
		}
		return nil, internalError(u.d.logger(), "admin: lookup user", err)
	}
	return user, nil
}

// DeactivateUserは論理削除（is_active=false）して全セッションを切る。
// すでに停止済みなら何もしない
func (u *AdminUserUsecase) DeactivateUser(ctx context.Context, adminID int64, targetID int64) error {
	user, err := u.target(ctx, adminID, targetID)
	if err != nil {
		return err
	}
	if !user.IsActive {
		return nil
	}

	now := u.d.clock().Now()
	err = u.d.Tx.WithinTx(ctx, func(r repo.TxRepos) error {
		user.IsActive = false
		if err := r.Users().Update(ctx, user); err != nil {
			return err
		}
		if err := r.Users().SetTokensRevokedBefore(ctx, user.ID, now); err != nil {
			return err
		}
		if _, err := r.OneTimeTokens().InvalidateForUser(ctx, user.ID, allPurposes, now); err != nil {
			return err
		}
		return r.AuditLogs().Create(ctx, model.AuditLog{
			ActorUserID:  adminID,
			Action:       model.AuditActionDeactivateUser,
			ResourceType: model.AuditResourceUser,
			ResourceID:   user.ID,
			BeforeJSON:   `{"is_active":true}`,
			AfterJSON:    `{"is_active":false}`,
			CreatedAt:    now,
		})
	})
	if err != nil {
		return internalError(u.d.logger(), "admin: deactivate user", err)
	}

	u.d.Metrics.Revocation(revocationKindAll)
	u.d.logger().Info("user deactivated", "admin_id", adminID, "user_id", user.ID)
	return nil
}

// ForceLogoutはwatermarkを今にして、対象の発行済みトークンを全部無効にする
func (u *AdminUserUsecase) ForceLogout(ctx context.Context, adminID int64, targetID int64) (*ForceLogoutResponse, error) {
	user, err := u.target(ctx, adminID, targetID)
	if err != nil {
		return nil, err
	}

	if err := u.d.Revocation.RevokeAllForPrincipal(ctx, user.ID); err != nil {
		return nil, internalError(u.d.logger(), "admin: force logout", err)
	}
	u.d.Metrics.Revocation(revocationKindAll)

	now := u.d.clock().Now()
	before := "null"
	if user.TokensRevokedBefore != nil {
		before = fmt.Sprintf("%q", user.TokensRevokedBefore.UTC().Format(time.RFC3339))
	}
	if err := u.d.AuditLogs.Create(ctx, model.AuditLog{
		ActorUserID:  adminID,
		Action:       model.AuditActionForceLogout,
		ResourceType: model.AuditResourceUser,
		ResourceID:   user.ID,
		BeforeJSON:   fmt.Sprintf(`{"tokens_revoked_before":%s}`, before),
		AfterJSON:    fmt.Sprintf(`{"tokens_revoked_before":%q}`, now.UTC().Format(time.RFC3339)),
		CreatedAt:    now,
	}); err != nil {
		u.d.logger().Error("audit log write failed", "action", model.AuditActionForceLogout, "user_id", user.ID, "error", err)
	}

	return &ForceLogoutResponse{UserID: user.ID, RevokedAt: now}, nil
}

func (u *AdminUserUsecase) ListAuditLogs(ctx context.Context, in ListAuditLogsInput) (*AuditLogListOutput, error) {
	if in.Page < 1 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 200 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if in.From != nil && in.To != nil && in.From.After(*in.To) {
		return nil, NewHTTPError(http.StatusBadRequest, "from must be <= to")
	}

	f := repo.AuditLogFilter{
		ActorUserID: in.ActorUserID,
		ResourceID:  in.ResourceID,
		CreatedFrom: in.From,
		CreatedTo:   in.To,
		Limit:       in.Limit,
		Offset:      (in.Page - 1) * in.Limit,
	}
	if in.Action != "" {
		a := model.AuditAction(in.Action)
		f.Action = &a
	}
	if in.ResourceType != "" {
		rt := model.AuditResourceType(in.ResourceType)
		f.ResourceType = &rt
	}

	logs, err := u.d.AuditLogs.List(ctx, f)
	if err != nil {
		return nil, internalError(u.d.logger(), "admin: list audit logs", err)
	}
	if logs == nil {
		logs = []model.AuditLog{}
	}
	return &AuditLogListOutput{Items: logs, Page: in.Page, Limit: in.Limit}, nil
}

var allPurposes = []model.TokenPurpose{
	model.PurposeRecoveryQuestion,
	model.PurposeRecoveryEmail,
	model.PurposeOAuthExchange,
}

func toAdminUserDTO(u *model.User) AdminUserDTO {
	return AdminUserDTO{
		UserDTO:             toUserDTO(u),
		IsActive:            u.IsActive,
		FailedLoginAttempts: u.FailedLoginAttempts,
		LockedUntil:         u.LockedUntil,
		LastLoginAt:         u.LastLoginAt,
		LastActivityAt:      u.LastActivityAt,
		CreatedAt:           u.CreatedAt,
	}
}
