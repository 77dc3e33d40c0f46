package controllers

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/groceryhub-backend/api/middleware"
	"github.com/angelmondragon/groceryhub-backend/internal/priceupdates"
	product "github.com/angelmondragon/groceryhub-backend/internal/products"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
)

type stubProductService struct {
	product.Service
	listInput   product.ListProductsInput
	createInput product.CreateProductInput
	updateInput product.UpdateProductInput
	stockInput  product.StockAdjustmentInput
	uploaded    []byte
	getErr      error
	err         error
}

func (s *stubProductService) ListProducts(_ context.Context, input product.ListProductsInput) (pagination.Result[product.ProductDTO], error) {
	s.listInput = input
	return pagination.NewResult([]product.ProductDTO{}, input.Pagination, 0), s.err
}

func (s *stubProductService) GetProduct(_ context.Context, id uuid.UUID) (*product.ProductDTO, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &product.ProductDTO{ID: id}, nil
}

func (s *stubProductService) CreateProduct(_ context.Context, input product.CreateProductInput) (*product.ProductDTO, error) {
	s.createInput = input
	return &product.ProductDTO{ID: uuid.New(), Name: input.Name}, s.err
}

func (s *stubProductService) UpdateProduct(_ context.Context, id uuid.UUID, input product.UpdateProductInput) (*product.ProductDTO, error) {
	s.updateInput = input
	return &product.ProductDTO{ID: id}, s.err
}

func (s *stubProductService) AdjustStock(_ context.Context, id uuid.UUID, input product.StockAdjustmentInput) (*product.ProductDTO, error) {
	s.stockInput = input
	if s.err != nil {
		return nil, s.err
	}
	return &product.ProductDTO{ID: id}, nil
}

func (s *stubProductService) UploadImage(_ context.Context, id uuid.UUID, input product.ImageUploadInput) (*product.ProductDTO, error) {
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	s.uploaded = data
	return &product.ProductDTO{ID: id}, nil
}

type stubPriceHistory struct {
	priceupdates.Service
	historyInput priceupdates.HistoryInput
	bulkInput    priceupdates.BulkInput
}

func (s *stubPriceHistory) History(_ context.Context, input priceupdates.HistoryInput) (pagination.Result[priceupdates.PriceUpdateDTO], error) {
	s.historyInput = input
	return pagination.NewResult([]priceupdates.PriceUpdateDTO{}, input.Params, 0), nil
}

func (s *stubPriceHistory) BulkUpdate(_ context.Context, input priceupdates.BulkInput) (*priceupdates.BulkResult, error) {
	s.bulkInput = input
	return &priceupdates.BulkResult{BatchID: uuid.New(), UpdatedCount: 3}, nil
}

func TestProductListParsesFilters(t *testing.T) {
	svc := &stubProductService{}
	category := uuid.New()
	target := "/api/v1/products?category_id=" + category.String() +
		"&include_subcategories=false&min_price=1.50&max_price=10&in_stock=true&on_discount=false&sort=-price&page=2"
	rec := httptest.NewRecorder()

	ProductList(svc, nil).ServeHTTP(rec, newRequest(http.MethodGet, target, "", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	f := svc.listInput.Filters
	require.NotNil(t, f.CategoryID)
	assert.Equal(t, category, *f.CategoryID)
	assert.False(t, f.IncludeSubcategories)
	assert.True(t, f.MinPrice.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, f.MaxPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, *f.InStock)
	assert.False(t, *f.OnDiscount)
	assert.Equal(t, "-price", svc.listInput.Sort)
	assert.Equal(t, 2, svc.listInput.Pagination.Page)
}

func TestProductListDefaultsToSubcategories(t *testing.T) {
	svc := &stubProductService{}
	rec := httptest.NewRecorder()

	ProductList(svc, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/api/v1/products?category_id="+uuid.NewString(), "", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.listInput.Filters.IncludeSubcategories)
}

func TestProductListRejectsUnknownSort(t *testing.T) {
	rec := httptest.NewRecorder()

	ProductList(&stubProductService{}, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/api/v1/products?sort=color", "", nil))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Contains(t, env.Errors, "sort")
}

func TestProductCreateDefaultsDiscountToNone(t *testing.T) {
	svc := &stubProductService{}
	body := `{"category_id":"` + uuid.NewString() + `","item_code":"MLK-1","name":"Milk","unit":"l","price":"2.40","stock":12}`
	rec := httptest.NewRecorder()

	ProductCreate(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/products", body, nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, enums.DiscountTypeNone, svc.createInput.DiscountType)
	assert.Equal(t, enums.ProductUnitLiter, svc.createInput.Unit)
	assert.True(t, svc.createInput.Price.Equal(decimal.RequireFromString("2.40")))
	assert.Equal(t, 12, svc.createInput.Stock)
}

func TestProductCreateWithDiscountWindow(t *testing.T) {
	svc := &stubProductService{}
	body := `{"category_id":"` + uuid.NewString() + `","item_code":"EGG","name":"Eggs","unit":"dozen","price":3,` +
		`"discount_type":"percentage","discount_value":10,"discount_start_date":"2026-01-01","discount_end_date":"2026-01-31"}`
	rec := httptest.NewRecorder()

	ProductCreate(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/products", body, nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, enums.DiscountTypePercentage, svc.createInput.DiscountType)
	require.True(t, svc.createInput.DiscountValue.Valid)
	require.NotNil(t, svc.createInput.DiscountEndDate)
	assert.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), *svc.createInput.DiscountEndDate)
}

func TestProductCreateRejectsBadDate(t *testing.T) {
	body := `{"category_id":"` + uuid.NewString() + `","item_code":"EGG","name":"Eggs","unit":"dozen","price":3,"discount_start_date":"01/02/2026"}`
	rec := httptest.NewRecorder()

	ProductCreate(&stubProductService{}, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/products", body, nil))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestProductUpdateAttributesActor(t *testing.T) {
	svc := &stubProductService{}
	id := uuid.New()
	userID := uuid.New()
	req := newRequest(http.MethodPut, "/api/v1/products/"+id.String(), `{"price":"5.00","discount_value":null,"reason":"supplier"}`, map[string]string{"productId": id.String()})
	req = req.WithContext(middleware.WithPrincipal(req.Context(), middleware.Principal{UserID: userID, Role: enums.UserRoleAdmin}))
	rec := httptest.NewRecorder()

	ProductUpdate(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.updateInput.ChangedBy)
	assert.Equal(t, userID, *svc.updateInput.ChangedBy)
	assert.True(t, svc.updateInput.DiscountValue.Valid)
	assert.Nil(t, svc.updateInput.DiscountValue.Value)
	assert.False(t, svc.updateInput.DiscountStartDate.Valid)
	require.NotNil(t, svc.updateInput.Reason)
	assert.Equal(t, "supplier", *svc.updateInput.Reason)
}

func TestProductAdjustStock(t *testing.T) {
	svc := &stubProductService{}
	id := uuid.New()
	rec := httptest.NewRecorder()

	ProductAdjustStock(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", `{"delta":-3,"reason":"damaged"}`, map[string]string{"productId": id.String()}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -3, svc.stockInput.Delta)
	assert.Equal(t, "damaged", svc.stockInput.Reason)
}

func TestProductAdjustStockBelowZero(t *testing.T) {
	svc := &stubProductService{err: pkgerrors.New(pkgerrors.CodeValidation, "the given data was invalid").
		WithDetails(map[string]string{"delta": "stock cannot go below 0 (current stock 2)"})}
	rec := httptest.NewRecorder()

	ProductAdjustStock(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", `{"delta":-3,"reason":"count"}`, map[string]string{"productId": uuid.NewString()}))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Contains(t, env.Errors["delta"], "below 0")
}

func TestProductUploadImage(t *testing.T) {
	svc := &stubProductService{}
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "milk.png")
	require.NoError(t, err)
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\nfake"))
	require.NoError(t, mw.Close())

	id := uuid.New()
	req := newRequest(http.MethodPost, "/", "", map[string]string{"productId": id.String()})
	req.Body = io.NopCloser(&buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	ProductUploadImage(svc, 1<<20, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\nfake"), svc.uploaded)
}

func TestProductUploadImageMissingFile(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no file"))
	require.NoError(t, mw.Close())

	req := newRequest(http.MethodPost, "/", "", map[string]string{"productId": uuid.NewString()})
	req.Body = io.NopCloser(&buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	ProductUploadImage(&stubProductService{}, 1<<20, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "image is required", env.Errors["image"])
}

func TestProductPriceHistoryScopesToProduct(t *testing.T) {
	history := &stubPriceHistory{}
	id := uuid.New()
	rec := httptest.NewRecorder()

	ProductPriceHistory(&stubProductService{}, history, nil).ServeHTTP(rec,
		newRequest(http.MethodGet, "/?from=2026-03-01&to=2026-03-31&change_type=bulk", "", map[string]string{"productId": id.String()}))

	require.Equal(t, http.StatusOK, rec.Code)
	f := history.historyInput.Filter
	require.NotNil(t, f.ProductID)
	assert.Equal(t, id, *f.ProductID)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), *f.To)
	assert.Equal(t, enums.PriceChangeBulk, *f.ChangeType)
}

func TestProductPriceHistoryUnknownProduct(t *testing.T) {
	products := &stubProductService{getErr: pkgerrors.New(pkgerrors.CodeNotFound, "product not found")}
	rec := httptest.NewRecorder()

	ProductPriceHistory(products, &stubPriceHistory{}, nil).ServeHTTP(rec,
		newRequest(http.MethodGet, "/", "", map[string]string{"productId": uuid.NewString()}))

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPriceUpdateBulk(t *testing.T) {
	svc := &stubPriceHistory{}
	category := uuid.New()
	rec := httptest.NewRecorder()

	PriceUpdateBulk(svc, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/api/v1/price-updates/bulk",
		`{"category_id":"`+category.String()+`","adjustment_type":"percentage","amount":"-10"}`, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.BulkAdjustmentPercentage, svc.bulkInput.AdjustmentType)
	assert.True(t, svc.bulkInput.Amount.Equal(decimal.NewFromInt(-10)))
	assert.Equal(t, category, *svc.bulkInput.CategoryID)
}

func TestPriceUpdateBulkRejectsUnknownType(t *testing.T) {
	rec := httptest.NewRecorder()

	PriceUpdateBulk(&stubPriceHistory{}, nil).ServeHTTP(rec, newRequest(http.MethodPost, "/", `{"adjustment_type":"double","amount":1}`, nil))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Contains(t, env.Errors, "adjustment_type")
}

func TestPriceUpdateHistoryFilters(t *testing.T) {
	svc := &stubPriceHistory{}
	batch := uuid.New()
	rec := httptest.NewRecorder()

	PriceUpdateHistory(svc, nil).ServeHTTP(rec, newRequest(http.MethodGet, "/?batch_id="+batch.String(), "", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, batch, *svc.historyInput.Filter.BatchID)
	assert.Nil(t, svc.historyInput.Filter.ProductID)
}
