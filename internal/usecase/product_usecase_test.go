package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"salon/internal/domain/model"
	repo "salon/internal/repository"
	"salon/internal/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =====================
// Mocks
// =====================

type ProductRepoMock struct{ mock.Mock }

func (m *ProductRepoMock) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	args := m.Called(ctx, q)
	items, _ := args.Get(0).([]model.Product)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *ProductRepoMock) FindByID(ctx context.Context, productID int64) (model.Product, error) {
	args := m.Called(ctx, productID)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *ProductRepoMock) Create(ctx context.Context, p model.Product) (model.Product, error) {
	args := m.Called(ctx, p)
	created, _ := args.Get(0).(model.Product)
	return created, args.Error(1)
}

func (m *ProductRepoMock) Update(ctx context.Context, p model.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *ProductRepoMock) SoftDelete(ctx context.Context, productID int64) error {
	args := m.Called(ctx, productID)
	return args.Error(0)
}

type AuditRepoMock struct{ mock.Mock }

func (m *AuditRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *AuditRepoMock) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	panic("not used in ProductUsecase tests")
}

func newProductUsecase(p repo.ProductRepository, a repo.AuditLogRepository) *ProductUsecase {
	return NewProductUsecase(p, a, security.NewManualClock(t0), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// =====================
// Public: List / Detail
// =====================

func TestProductUsecase_ListPublicProducts_InvalidInput(t *testing.T) {
	uc := newProductUsecase(new(ProductRepoMock), new(AuditRepoMock))
	neg := int64(-1)
	lo, hi := int64(500), int64(100)

	cases := []struct {
		name string
		in   ListProductsInput
	}{
		{"page", ListProductsInput{Page: 0, Limit: 20}},
		{"limit", ListProductsInput{Page: 1, Limit: 101}},
		{"sort", ListProductsInput{Page: 1, Limit: 20, Sort: "popular"}},
		{"negative price", ListProductsInput{Page: 1, Limit: 20, MinPrice: &neg}},
		{"price range", ListProductsInput{Page: 1, Limit: 20, MinPrice: &lo, MaxPrice: &hi}},
		{"sql in q", ListProductsInput{Page: 1, Limit: 20, Q: "' OR 1=1"}},
		{"sql in category", ListProductsInput{Page: 1, Limit: 20, Category: "x; drop"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.ListPublicProducts(context.Background(), tc.in)
			assertHTTPError(t, err, http.StatusBadRequest, "VALIDATION_ERROR")
		})
	}
}

func TestProductUsecase_ListPublicProducts_Success(t *testing.T) {
	ctx := context.Background()

	pRepo := new(ProductRepoMock)
	uc := newProductUsecase(pRepo, new(AuditRepoMock))

	in := ListProductsInput{Page: 1, Limit: 20, Q: " tinte ", Category: " coloracion ", Sort: "price_asc"}
	q := repo.ProductListQuery{Page: 1, Limit: 20, Q: "tinte", Category: "coloracion", Sort: "price_asc"}

	items := []model.Product{{ID: 1, Name: "Tinte Rubio", IsActive: true}}
	pRepo.On("ListPublic", mock.Anything, q).Return(items, int64(1), nil)

	out, err := uc.ListPublicProducts(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(1), out.Total)
	assert.Equal(t, 1, out.Page)
	assert.Equal(t, 20, out.Limit)
	assert.Len(t, out.Items, 1)

	pRepo.AssertExpectations(t)
}

func TestProductUsecase_ListPublicProducts_DBError(t *testing.T) {
	pRepo := new(ProductRepoMock)
	uc := newProductUsecase(pRepo, new(AuditRepoMock))

	pRepo.On("ListPublic", mock.Anything, mock.Anything).Return(nil, int64(0), errors.New("db down"))

	_, err := uc.ListPublicProducts(context.Background(), ListProductsInput{Page: 1, Limit: 20})
	assertHTTPError(t, err, http.StatusInternalServerError, "INTERNAL_ERROR")
}

func TestProductUsecase_GetProductDetail(t *testing.T) {
	ctx := context.Background()

	pRepo := new(ProductRepoMock)
	uc := newProductUsecase(pRepo, new(AuditRepoMock))

	pRepo.On("FindByID", mock.Anything, int64(1)).Return(model.Product{ID: 1, IsActive: true}, nil)
	pRepo.On("FindByID", mock.Anything, int64(2)).Return(model.Product{ID: 2, IsActive: false}, nil)
	pRepo.On("FindByID", mock.Anything, int64(99)).Return(model.Product{}, repo.ErrNotFound)

	p, err := uc.GetProductDetail(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.ID)

	//非公開は存在しないのと同じ
	_, err = uc.GetProductDetail(ctx, 2)
	assertHTTPError(t, err, http.StatusNotFound, "NOT_FOUND")

	_, err = uc.GetProductDetail(ctx, 99)
	assertHTTPError(t, err, http.StatusNotFound, "NOT_FOUND")

	_, err = uc.GetProductDetail(ctx, 0)
	assertHTTPError(t, err, http.StatusBadRequest, "")

	pRepo.AssertExpectations(t)
}

// =====================
// Admin: Product CRUD + audit
// =====================

func TestProductUsecase_AdminCreateProduct_Validation(t *testing.T) {
	uc := newProductUsecase(new(ProductRepoMock), new(AuditRepoMock))

	_, err := uc.AdminCreateProduct(context.Background(), 0, AdminProductInput{Name: "x"})
	assertHTTPError(t, err, http.StatusUnauthorized, "")

	_, err = uc.AdminCreateProduct(context.Background(), 1, AdminProductInput{Name: " "})
	assertHTTPError(t, err, http.StatusBadRequest, "")

	_, err = uc.AdminCreateProduct(context.Background(), 1, AdminProductInput{Name: "x", DiscountPercent: 120})
	assertHTTPError(t, err, http.StatusBadRequest, "")

	_, err = uc.AdminCreateProduct(context.Background(), 1, AdminProductInput{
		Name:          "x",
		Presentations: []PresentationInput{{Size: "", Price: 10}},
	})
	assertHTTPError(t, err, http.StatusBadRequest, "")
}

func TestProductUsecase_AdminCreateProduct_Success(t *testing.T) {
	ctx := context.Background()

	pRepo := new(ProductRepoMock)
	aRepo := new(AuditRepoMock)
	uc := newProductUsecase(pRepo, aRepo)

	pRepo.On("Create", mock.Anything, mock.MatchedBy(func(p model.Product) bool {
		return p.Name == "Shampoo &amp; Acondicionador" &&
			p.Category == "cuidado" &&
			len(p.Features) == 1 &&
			len(p.Presentations) == 2 &&
			p.CreatedAt.Equal(t0)
	})).Return(model.Product{ID: 123, Name: "Shampoo &amp; Acondicionador"}, nil)

	aRepo.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.ActorUserID == 1 &&
			l.Action == model.AuditActionCreateProduct &&
			l.ResourceType == model.AuditResourceProduct &&
			l.ResourceID == 123 &&
			l.BeforeJSON == "" &&
			json.Valid([]byte(l.AfterJSON))
	})).Return(nil)

	id, err := uc.AdminCreateProduct(ctx, 1, AdminProductInput{
		Name:     " Shampoo & Acondicionador ",
		Price:    25000,
		Category: " Cuidado ",
		Stock:    10,
		IsActive: true,
		Features: []string{"sin sulfatos", "  "},
		Presentations: []PresentationInput{
			{Size: "250ml", Price: 25000, Stock: 5, IsAvailable: true},
			{Size: "500ml", Price: 42000, Stock: 5, IsAvailable: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(123), id)

	pRepo.AssertExpectations(t)
	aRepo.AssertExpectations(t)
}

func TestProductUsecase_AdminUpdateProduct_NotFound(t *testing.T) {
	pRepo := new(ProductRepoMock)
	uc := newProductUsecase(pRepo, new(AuditRepoMock))

	pRepo.On("FindByID", mock.Anything, int64(999)).Return(model.Product{}, repo.ErrNotFound)

	err := uc.AdminUpdateProduct(context.Background(), 1, 999, AdminProductInput{Name: "X", Price: 1})
	assertHTTPError(t, err, http.StatusNotFound, "NOT_FOUND")
}

func TestProductUsecase_AdminUpdateProduct_WritesBeforeAndAfter(t *testing.T) {
	ctx := context.Background()

	pRepo := new(ProductRepoMock)
	aRepo := new(AuditRepoMock)
	uc := newProductUsecase(pRepo, aRepo)

	before := model.Product{ID: 10, Name: "Mascarilla", Price: 100, IsActive: true}
	pRepo.On("FindByID", mock.Anything, int64(10)).Return(before, nil)
	pRepo.On("Update", mock.Anything, mock.MatchedBy(func(p model.Product) bool {
		return p.ID == 10 && p.Price == 150
	})).Return(nil)
	aRepo.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionUpdateProduct &&
			l.ResourceID == 10 &&
			json.Valid([]byte(l.BeforeJSON)) &&
			json.Valid([]byte(l.AfterJSON))
	})).Return(nil)

	err := uc.AdminUpdateProduct(ctx, 1, 10, AdminProductInput{Name: "Mascarilla", Price: 150, IsActive: true})
	require.NoError(t, err)

	pRepo.AssertExpectations(t)
	aRepo.AssertExpectations(t)
}

// 監査ログの失敗で本体の操作は失敗させない
func TestProductUsecase_AdminDeleteProduct_AuditFailureIgnored(t *testing.T) {
	ctx := context.Background()

	pRepo := new(ProductRepoMock)
	aRepo := new(AuditRepoMock)
	uc := newProductUsecase(pRepo, aRepo)

	pRepo.On("FindByID", mock.Anything, int64(1)).Return(model.Product{ID: 1, IsActive: true}, nil)
	pRepo.On("SoftDelete", mock.Anything, int64(1)).Return(nil)
	aRepo.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionDeleteProduct && l.AfterJSON == ""
	})).Return(errors.New("audit down"))

	err := uc.AdminDeleteProduct(ctx, 1, 1)
	require.NoError(t, err)

	pRepo.AssertExpectations(t)
	aRepo.AssertExpectations(t)
}
