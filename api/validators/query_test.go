package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
)

type createThing struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity" validate:"min=1,max=10"`
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","quantity":1,"extra":true}`))
	var dest createThing
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	assert.Contains(t, typed.Details(), "extra")
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"quantity":20}`))
	var dest createThing
	err := DecodeJSONBody(req, &dest)
	require.Error(t, err)
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "the name field is required", details["name"])
	assert.Equal(t, "the quantity may not be greater than 10", details["quantity"])
}

func TestDecodeJSONBodyMalformed(t *testing.T) {
	for _, body := range []string{``, `{"name":`, `{"name":"x","quantity":"two"}`} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		var dest createThing
		err := DecodeJSONBody(req, &dest)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "body %q", body)
	}
}

func TestQueryHelpers(t *testing.T) {
	id := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/?category_id="+id.String()+"&in_stock=true&min_price=2.5&from=2026-03-01&page=2&per_page=500", nil)

	got, err := QueryUUID(req, "category_id")
	require.NoError(t, err)
	assert.Equal(t, id, *got)

	inStock, err := QueryBool(req, "in_stock")
	require.NoError(t, err)
	assert.True(t, *inStock)

	price, err := QueryDecimal(req, "min_price")
	require.NoError(t, err)
	assert.Equal(t, "2.5", price.String())

	from, err := QueryDate(req, "from")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", from.Format("2006-01-02"))

	params, err := Pagination(req)
	require.NoError(t, err)
	assert.Equal(t, 2, params.Page)
	assert.Equal(t, 100, params.PerPage)

	bad := httptest.NewRequest(http.MethodGet, "/?in_stock=maybe&page=abc", nil)
	_, err = QueryBool(bad, "in_stock")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = Pagination(bad)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPathUUIDTreatsGarbageAsNotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/products/abc", nil)
	rc := chi.NewRouteContext()
	rc.URLParams.Add("productId", "abc")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	_, err := PathUUID(req, "productId", "product")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestQueryStringNormalizesSearchTerms(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/products?search=%20%20beras%20%20%20merah%20", nil)
	assert.Equal(t, "beras merah", QueryString(req, "search"))

	long := strings.Repeat("é", maxQueryRunes+10)
	req = httptest.NewRequest(http.MethodGet, "/products?search="+url.QueryEscape(long), nil)
	got := QueryString(req, "search")
	assert.Equal(t, maxQueryRunes, len([]rune(got)))
}
