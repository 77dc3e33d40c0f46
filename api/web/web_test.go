package web

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/groceryhub-backend/internal/orders"
	product "github.com/angelmondragon/groceryhub-backend/internal/products"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
	"github.com/angelmondragon/groceryhub-backend/pkg/types"
)

type stubCatalog struct {
	products []product.ProductDTO
	input    product.ListProductsInput
}

func (s *stubCatalog) ListProducts(_ context.Context, input product.ListProductsInput) (pagination.Result[product.ProductDTO], error) {
	s.input = input
	return pagination.NewResult(s.products, input.Pagination, int64(len(s.products))), nil
}

type stubPlacer struct {
	placed *orders.PlaceInput
	err    error
}

func (s *stubPlacer) Place(_ context.Context, input orders.PlaceInput) (*orders.OrderDTO, error) {
	s.placed = &input
	if s.err != nil {
		return nil, s.err
	}
	return sampleOrder(), nil
}

func (s *stubPlacer) GetByNumber(_ context.Context, number string) (*orders.OrderDTO, error) {
	if number != "ORD-20260301-0001" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return sampleOrder(), nil
}

func sampleOrder() *orders.OrderDTO {
	return &orders.OrderDTO{
		OrderNumber:  "ORD-20260301-0001",
		CustomerName: "Rosa",
		Status:       string(enums.OrderStatusPending),
		Subtotal:     types.NewMoney(decimal.RequireFromString("9")),
		Total:        types.NewMoney(decimal.RequireFromString("9")),
		Items: []orders.OrderItemDTO{{
			ProductName:    "Milk",
			Unit:           "l",
			Quantity:       3,
			FinalUnitPrice: types.NewMoney(decimal.RequireFromString("3")),
			LineTotal:      types.NewMoney(decimal.RequireFromString("9")),
		}},
	}
}

func newTestHandler(t *testing.T, catalog *stubCatalog, placer *stubPlacer) *Handler {
	t.Helper()
	h, err := NewHandler(catalog, placer, "Corner Grocery", logger.New(logger.Options{ServiceName: "test", Level: logger.ParseLevel("error"), Output: io.Discard}))
	require.NoError(t, err)
	return h
}

func milk() product.ProductDTO {
	return product.ProductDTO{
		ID:         uuid.MustParse("8d1c5b62-0d0b-4a4e-9f55-0f1f1b8f7a11"),
		Name:       "Milk",
		ItemCode:   "MLK-1",
		Unit:       "l",
		Price:      types.NewMoney(decimal.RequireFromString("3")),
		FinalPrice: types.NewMoney(decimal.RequireFromString("3")),
		Stock:      10,
		InStock:    true,
		IsActive:   true,
	}
}

func postForm(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/order", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestFormListsActiveProducts(t *testing.T) {
	catalog := &stubCatalog{products: []product.ProductDTO{milk()}}
	h := newTestHandler(t, catalog, &stubPlacer{})
	rec := httptest.NewRecorder()

	h.Form(rec, httptest.NewRequest(http.MethodGet, "/order", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "Corner Grocery")
	assert.Contains(t, body, "Milk")
	assert.Contains(t, body, `name="qty[8d1c5b62-0d0b-4a4e-9f55-0f1f1b8f7a11]"`)
	assert.Contains(t, body, "3.00")
	require.NotNil(t, catalog.input.Filters.IsActive)
	assert.True(t, *catalog.input.Filters.IsActive)
}

func TestSubmitPlacesWebOrder(t *testing.T) {
	placer := &stubPlacer{}
	h := newTestHandler(t, &stubCatalog{products: []product.ProductDTO{milk()}}, placer)
	rec := httptest.NewRecorder()

	h.Submit(rec, postForm(url.Values{
		"name":    {"Rosa"},
		"phone":   {"5512345678"},
		"address": {"Calle 5"},
		"qty[8d1c5b62-0d0b-4a4e-9f55-0f1f1b8f7a11]": {"3"},
		"qty[" + uuid.NewString() + "]":             {""},
	}))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, placer.placed)
	assert.Equal(t, enums.OrderSourceWeb, placer.placed.Source)
	assert.Equal(t, "Rosa", placer.placed.CustomerName)
	require.Len(t, placer.placed.Items, 1)
	assert.Equal(t, 3, placer.placed.Items[0].Quantity)
	assert.Nil(t, placer.placed.Notes)
	assert.Contains(t, rec.Body.String(), "ORD-20260301-0001")
}

func TestSubmitWithoutItemsRerendersForm(t *testing.T) {
	placer := &stubPlacer{}
	h := newTestHandler(t, &stubCatalog{products: []product.ProductDTO{milk()}}, placer)
	rec := httptest.NewRecorder()

	h.Submit(rec, postForm(url.Values{"name": {"Rosa"}, "notes": {"<b>asap</b>"}}))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Nil(t, placer.placed)
	body := rec.Body.String()
	assert.Contains(t, body, "Choose at least one product.")
	assert.Contains(t, body, "&lt;b&gt;asap&lt;/b&gt;")
}

func TestSubmitShowsServiceValidation(t *testing.T) {
	placer := &stubPlacer{err: pkgerrors.New(pkgerrors.CodeValidation, "the given data was invalid").
		WithDetails(map[string]string{"items.0.quantity": "insufficient stock for MLK-1 (available 10)"})}
	h := newTestHandler(t, &stubCatalog{products: []product.ProductDTO{milk()}}, placer)
	rec := httptest.NewRecorder()

	h.Submit(rec, postForm(url.Values{
		"name": {"Rosa"},
		"qty[8d1c5b62-0d0b-4a4e-9f55-0f1f1b8f7a11]": {"30"},
	}))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "insufficient stock for MLK-1 (available 10)")
	assert.Contains(t, body, `value="30"`)
}

func TestSubmitRejectsNonNumericQuantity(t *testing.T) {
	placer := &stubPlacer{}
	h := newTestHandler(t, &stubCatalog{}, placer)
	rec := httptest.NewRecorder()

	h.Submit(rec, postForm(url.Values{
		"name": {"Rosa"},
		"qty[8d1c5b62-0d0b-4a4e-9f55-0f1f1b8f7a11]": {"two"},
	}))

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Nil(t, placer.placed)
	assert.Contains(t, rec.Body.String(), "is not a whole number")
}

func TestConfirmation(t *testing.T) {
	h := newTestHandler(t, &stubCatalog{}, &stubPlacer{})

	found := httptest.NewRecorder()
	h.Confirmation(found, withNumber("ORD-20260301-0001"))
	require.Equal(t, http.StatusOK, found.Code)
	assert.Contains(t, found.Body.String(), "Thank you, Rosa!")
	assert.Contains(t, found.Body.String(), "9.00")

	missing := httptest.NewRecorder()
	h.Confirmation(missing, withNumber("ORD-19990101-0001"))
	require.Equal(t, http.StatusNotFound, missing.Code)
	assert.Contains(t, missing.Body.String(), "Order not found")
}

func withNumber(number string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/order/"+number, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderNumber", number)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
