package repository

import (
	"context"

	"salon/internal/domain/model"
)

// 公開カタログの検索条件。Page/Limitはusecaseで正規化済み
type ProductListQuery struct {
	Q        string
	Category string
	MinPrice *int64
	MaxPrice *int64
	// price_asc / price_desc / new（空は新しい順）
	Sort  string
	Page  int
	Limit int
}

type ProductRepository interface {
	// is_active=true かつ未削除のものだけ
	ListPublic(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	// presentationsは丸ごと差し替え。該当なしはErrNotFound
	Update(ctx context.Context, p model.Product) error
	SoftDelete(ctx context.Context, id int64) error
}
