package repository

import (
	"context"
	"time"

	"salon/internal/domain/model"
)

// nilの項目は絞り込まない。CreatedFrom/CreatedToは両端を含む
type AuditLogFilter struct {
	ActorUserID  *int64
	Action       *model.AuditAction
	ResourceType *model.AuditResourceType
	ResourceID   *int64
	CreatedFrom  *time.Time
	CreatedTo    *time.Time

	Limit  int
	Offset int
}

// 管理者操作とパスワード再設定の記録
type AuditLogRepository interface {
	Create(ctx context.Context, log model.AuditLog) error
	// 新しい順
	List(ctx context.Context, filter AuditLogFilter) ([]model.AuditLog, error)
}
