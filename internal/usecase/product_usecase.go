package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"salon/internal/domain/model"
	repo "salon/internal/repository"
	"salon/internal/security"
	"salon/internal/validator"
)

type ProductUsecase struct {
	productRepo repo.ProductRepository
	auditRepo   repo.AuditLogRepository
	clock       security.Clock
	log         *slog.Logger
}

// DI
func NewProductUsecase(
	productRepo repo.ProductRepository,
	auditRepo repo.AuditLogRepository,
	clock security.Clock,
	log *slog.Logger,
) *ProductUsecase {
	if clock == nil {
		clock = security.RealClock{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &ProductUsecase{
		productRepo: productRepo,
		auditRepo:   auditRepo,
		clock:       clock,
		log:         log,
	}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page     int
	Limit    int
	Q        string
	Category string
	MinPrice *int64
	MaxPrice *int64
	Sort     string
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

var productSorts = map[string]bool{"": true, "new": true, "price_asc": true, "price_desc": true}

// 一覧の入力を検証して、リポジトリに渡す形にする
func buildListQuery(in ListProductsInput) (repo.ProductListQuery, error) {
	q := strings.TrimSpace(in.Q)
	category := strings.TrimSpace(in.Category)

	var msg string
	switch {
	case in.Page < 1:
		msg = "invalid page"
	case in.Limit < 1 || in.Limit > 100:
		msg = "invalid limit"
	case len(q) > 100:
		msg = "q too long"
	case validator.ContainsSQLInjection(q) || validator.ContainsSQLInjection(category):
		msg = "invalid search"
	case in.MinPrice != nil && *in.MinPrice < 0, in.MaxPrice != nil && *in.MaxPrice < 0:
		msg = "price filters must be >= 0"
	case in.MinPrice != nil && in.MaxPrice != nil && *in.MinPrice > *in.MaxPrice:
		msg = "min_price must be <= max_price"
	case !productSorts[in.Sort]:
		msg = "invalid sort"
	}
	if msg != "" {
		return repo.ProductListQuery{}, NewHTTPError(http.StatusBadRequest, msg)
	}

	return repo.ProductListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Q:        q,
		Category: category,
		MinPrice: in.MinPrice,
		MaxPrice: in.MaxPrice,
		Sort:     in.Sort,
	}, nil
}

// 公開中の商品だけ返す
func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	query, err := buildListQuery(in)
	if err != nil {
		return ProductListOutput{}, err
	}

	items, total, err := u.productRepo.ListPublic(ctx, query)
	if err != nil {
		return ProductListOutput{}, internalError(u.log, "list products", err)
	}
	if items == nil {
		items = []model.Product{}
	}
	return ProductListOutput{Items: items, Total: total, Page: in.Page, Limit: in.Limit}, nil
}

func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Product{}, internalError(u.log, "get product", err)
	}

	if !p.IsActive {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	return p, nil
}

type PresentationInput struct {
	Size          string `json:"size"`
	Price         int64  `json:"price"`
	OriginalPrice *int64 `json:"original_price"`
	Stock         int64  `json:"stock"`
	IsAvailable   bool   `json:"is_available"`
}

type AdminProductInput struct {
	Name            string              `json:"name"`
	Brand           string              `json:"brand"`
	Description     string              `json:"description"`
	LongDescription string              `json:"long_description"`
	Price           int64               `json:"price"`
	OriginalPrice   *int64              `json:"original_price"`
	DiscountPercent int                 `json:"discount_percent"`
	Category        string              `json:"category"`
	Stock           int64               `json:"stock"`
	IsActive        bool                `json:"is_active"`
	IsNew           bool                `json:"is_new"`
	CrueltyFree     bool                `json:"cruelty_free"`
	Features        []string            `json:"features"`
	Ingredients     string              `json:"ingredients"`
	Presentations   []PresentationInput `json:"presentations"`
}

func validateProductInput(in AdminProductInput) error {
	if strings.TrimSpace(in.Name) == "" {
		return NewHTTPError(http.StatusBadRequest, "name required")
	}
	if in.Price < 0 {
		return NewHTTPError(http.StatusBadRequest, "price must be >= 0")
	}
	if in.OriginalPrice != nil && *in.OriginalPrice < 0 {
		return NewHTTPError(http.StatusBadRequest, "original_price must be >= 0")
	}
	if in.Stock < 0 {
		return NewHTTPError(http.StatusBadRequest, "stock must be >= 0")
	}
	if in.DiscountPercent < 0 || in.DiscountPercent > 100 {
		return NewHTTPError(http.StatusBadRequest, "discount_percent must be between 0 and 100")
	}
	for _, s := range []string{in.Name, in.Brand, in.Category} {
		if validator.ContainsSQLInjection(s) {
			return NewHTTPError(http.StatusBadRequest, "input contains invalid characters")
		}
	}
	for _, p := range in.Presentations {
		if strings.TrimSpace(p.Size) == "" {
			return NewHTTPError(http.StatusBadRequest, "presentation size required")
		}
		if p.Price < 0 || p.Stock < 0 {
			return NewHTTPError(http.StatusBadRequest, "presentation price and stock must be >= 0")
		}
	}
	return nil
}

func toProductModel(in AdminProductInput) model.Product {
	features := make([]string, 0, len(in.Features))
	for _, f := range in.Features {
		if f = validator.SanitizeInput(f); f != "" {
			features = append(features, f)
		}
	}
	pres := make([]model.Presentation, 0, len(in.Presentations))
	for _, p := range in.Presentations {
		pres = append(pres, model.Presentation{
			Size:          validator.SanitizeInput(p.Size),
			Price:         p.Price,
			OriginalPrice: p.OriginalPrice,
			Stock:         p.Stock,
			IsAvailable:   p.IsAvailable,
		})
	}
	return model.Product{
		Name:            validator.SanitizeInput(in.Name),
		Brand:           validator.SanitizeInput(in.Brand),
		Description:     validator.SanitizeInput(in.Description),
		LongDescription: validator.SanitizeInput(in.LongDescription),
		Price:           in.Price,
		OriginalPrice:   in.OriginalPrice,
		DiscountPercent: in.DiscountPercent,
		Category:        strings.ToLower(strings.TrimSpace(in.Category)),
		Stock:           in.Stock,
		IsActive:        in.IsActive,
		IsNew:           in.IsNew,
		CrueltyFree:     in.CrueltyFree,
		Features:        features,
		Ingredients:     validator.SanitizeInput(in.Ingredients),
		Presentations:   pres,
	}
}

func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, adminUserID int64, in AdminProductInput) (int64, error) {
	if adminUserID <= 0 {
		return 0, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := validateProductInput(in); err != nil {
		return 0, err
	}

	now := u.clock.Now()
	p := toProductModel(in)
	p.CreatedAt = now
	p.UpdatedAt = now

	created, err := u.productRepo.Create(ctx, p)
	if err != nil {
		return 0, internalError(u.log, "create product", err)
	}

	u.audit(ctx, adminUserID, model.AuditActionCreateProduct, created.ID, nil, created)
	return created.ID, nil
}

func (u *ProductUsecase) AdminUpdateProduct(ctx context.Context, adminUserID int64, productID int64, in AdminProductInput) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if err := validateProductInput(in); err != nil {
		return err
	}

	//変更前（before）
	before, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return internalError(u.log, "update product: lookup", err)
	}

	p := toProductModel(in)
	p.ID = productID
	p.CreatedAt = before.CreatedAt
	p.UpdatedAt = u.clock.Now()

	err = u.productRepo.Update(ctx, p)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return internalError(u.log, "update product", err)
	}

	u.audit(ctx, adminUserID, model.AuditActionUpdateProduct, productID, before, p)
	return nil
}

func (u *ProductUsecase) AdminDeleteProduct(ctx context.Context, adminUserID int64, productID int64) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	before, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return internalError(u.log, "delete product: lookup", err)
	}

	err = u.productRepo.SoftDelete(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return internalError(u.log, "delete product", err)
	}

	u.audit(ctx, adminUserID, model.AuditActionDeleteProduct, productID, before, nil)
	return nil
}

// 監査ログを作成。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。失敗しても本体の操作は戻さない
func (u *ProductUsecase) audit(ctx context.Context, actorID int64, action model.AuditAction, productID int64, before any, after any) {
	err := u.auditRepo.Create(ctx, model.AuditLog{
		ActorUserID:  actorID,
		Action:       action,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   productID,
		BeforeJSON:   toAuditJSON(before),
		AfterJSON:    toAuditJSON(after),
		CreatedAt:    u.clock.Now(),
	})
	if err != nil {
		u.log.Error("audit log write failed", "action", action, "product_id", productID, "error", err)
	}
}

func toAuditJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
