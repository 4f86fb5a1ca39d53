package repository

import (
	"context"
	"errors"
	"strings"

	"salon/internal/domain/model"
	repo "salon/internal/repository"

	"github.com/samber/oops"
	"gorm.io/gorm"
)

type ProductGormRepository struct {
	db *gorm.DB
}

// DI
func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

var _ repo.ProductRepository = (*ProductGormRepository)(nil)

// 公開中の商品を検索条件つきで返す。totalはページング前の件数
func (r *ProductGormRepository) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	//Countと一覧で同じ条件を使い回す
	base := r.db.WithContext(ctx).
		Model(&model.Product{}).
		Scopes(publicProducts(q)).
		Session(&gorm.Session{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, oops.Code("PRODUCT_LIST_FAILED").Wrap(err)
	}

	var products []model.Product
	err := base.
		Scopes(productSort(q.Sort)).
		Preload("Presentations").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&products).Error
	if err != nil {
		return nil, 0, oops.Code("PRODUCT_LIST_FAILED").Wrap(err)
	}
	return products, total, nil
}

// 削除済み（deleted_at）はgormが自動で除外する
func publicProducts(q repo.ProductListQuery) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		tx = tx.Where("is_active = ?", true)
		if needle := strings.TrimSpace(q.Q); needle != "" {
			like := "%" + needle + "%"
			tx = tx.Where("name ILIKE ? OR brand ILIKE ?", like, like)
		}
		if q.Category != "" {
			tx = tx.Where("LOWER(category) = LOWER(?)", q.Category)
		}
		if q.MinPrice != nil {
			tx = tx.Where("price >= ?", *q.MinPrice)
		}
		if q.MaxPrice != nil {
			tx = tx.Where("price <= ?", *q.MaxPrice)
		}
		return tx
	}
}

func productSort(sort string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		switch sort {
		case "price_asc":
			return tx.Order("price ASC, id ASC")
		case "price_desc":
			return tx.Order("price DESC, id DESC")
		default:
			return tx.Order("created_at DESC, id DESC")
		}
	}
}

// IDで商品を取得
func (r *ProductGormRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).Preload("Presentations").First(&p, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, oops.Code("PRODUCT_FIND_FAILED").With("product_id", id).Wrap(err)
	}
	return p, nil
}

// 商品の作成（presentationsも一緒に保存される）
func (r *ProductGormRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return model.Product{}, oops.Code("PRODUCT_CREATE_FAILED").Wrap(err)
	}
	return p, nil
}

// 商品の更新。presentationsは削除して作り直す
func (r *ProductGormRepository) Update(ctx context.Context, p model.Product) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Product{}).Where("id = ?", p.ID).Updates(map[string]any{
			"name":             p.Name,
			"brand":            p.Brand,
			"description":      p.Description,
			"long_description": p.LongDescription,
			"price":            p.Price,
			"original_price":   p.OriginalPrice,
			"discount_percent": p.DiscountPercent,
			"category":         p.Category,
			"stock":            p.Stock,
			"is_active":        p.IsActive,
			"is_new":           p.IsNew,
			"cruelty_free":     p.CrueltyFree,
			"features":         gorm.Expr("?::jsonb", featuresJSON(p.Features)),
			"ingredients":      p.Ingredients,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}

		if err := tx.Where("product_id = ?", p.ID).Delete(&model.Presentation{}).Error; err != nil {
			return err
		}
		for i := range p.Presentations {
			p.Presentations[i].ID = 0
			p.Presentations[i].ProductID = p.ID
		}
		if len(p.Presentations) > 0 {
			if err := tx.Create(&p.Presentations).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return oops.Code("PRODUCT_UPDATE_FAILED").With("product_id", p.ID).Wrap(err)
	}
	return err
}

// 商品削除（論理削除）
func (r *ProductGormRepository) SoftDelete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Product{}, id)
	if res.Error != nil {
		return oops.Code("PRODUCT_DELETE_FAILED").With("product_id", id).Wrap(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
