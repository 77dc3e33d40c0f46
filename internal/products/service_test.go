package product

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/internal/priceupdates"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
	"github.com/angelmondragon/groceryhub-backend/pkg/types"
)

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

type fakeTree struct {
	ids map[uuid.UUID][]uuid.UUID
}

func (f *fakeTree) DescendantIDs(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	if ids, ok := f.ids[id]; ok {
		return ids, nil
	}
	return []uuid.UUID{id}, nil
}

type fakeImages struct {
	uploads map[string][]byte
	deleted []string
	failUp  bool
}

func (f *fakeImages) Upload(_ context.Context, object, _ string, body io.Reader) (string, error) {
	if f.failUp {
		return "", errors.New("bucket unavailable")
	}
	data, _ := io.ReadAll(body)
	f.uploads[object] = data
	return "https://cdn.example/" + object, nil
}

func (f *fakeImages) Delete(_ context.Context, object string) error {
	f.deleted = append(f.deleted, object)
	return nil
}

func (f *fakeImages) ObjectFromURL(raw string) (string, bool) {
	return strings.CutPrefix(raw, "https://cdn.example/")
}

type fixture struct {
	svc    *service
	conn   *gorm.DB
	tree   *fakeTree
	images *fakeImages
	fruit  uuid.UUID
	citrus uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()

	fruit := &models.Category{Name: "Fruit", Slug: "fruit", IsActive: true}
	require.NoError(t, conn.Create(fruit).Error)
	citrus := &models.Category{Name: "Citrus", Slug: "citrus", ParentID: &fruit.ID, IsActive: true}
	require.NoError(t, conn.Create(citrus).Error)

	tree := &fakeTree{ids: map[uuid.UUID][]uuid.UUID{fruit.ID: {fruit.ID, citrus.ID}}}
	audit, err := priceupdates.NewService(priceupdates.NewRepository(conn), client, tree)
	require.NoError(t, err)
	images := &fakeImages{uploads: map[string][]byte{}}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	svc, err := NewService(NewRepository(conn), client, tree, audit, images, 1024, logg)
	require.NoError(t, err)
	s := svc.(*service)
	s.now = func() time.Time { return testNow }
	return &fixture{svc: s, conn: conn, tree: tree, images: images, fruit: fruit.ID, citrus: citrus.ID}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) *time.Time {
	d, err := types.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return &d
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) map[string]string {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	require.Equal(t, code, typed.Code(), typed.Message())
	details, _ := typed.Details().(map[string]string)
	return details
}

func (f *fixture) create(t *testing.T, input CreateProductInput) *ProductDTO {
	t.Helper()
	if input.CategoryID == uuid.Nil {
		input.CategoryID = f.fruit
	}
	if input.Unit == "" {
		input.Unit = enums.ProductUnitKG
	}
	if input.Name == "" {
		input.Name = "Item " + input.ItemCode
	}
	dto, err := f.svc.CreateProduct(context.Background(), input)
	require.NoError(t, err)
	return dto
}

func TestCreateProductNormalizesAndDerivesPrice(t *testing.T) {
	f := newFixture(t)

	dto := f.create(t, CreateProductInput{
		ItemCode:          "  apl-001 ",
		Name:              " Fuji Apple ",
		Price:             dec("20.00"),
		DiscountType:      enums.DiscountTypePercentage,
		DiscountValue:     decimal.NewNullDecimal(dec("12.5")),
		DiscountStartDate: day("2026-03-01"),
		DiscountEndDate:   day("2026-03-10"),
		Stock:             4,
	})

	assert.Equal(t, "APL-001", dto.ItemCode)
	assert.Equal(t, "Fuji Apple", dto.Name)
	assert.True(t, dto.HasActiveDiscount, "end date is inclusive")
	assert.Equal(t, "17.50", dto.FinalPrice.StringFixed(2))
	assert.Equal(t, "2.50", dto.DiscountAmount.StringFixed(2))
	assert.Equal(t, "12.5%", dto.DiscountLabel)
	assert.True(t, dto.InStock)
	require.NotNil(t, dto.Category)
	assert.Equal(t, "Fruit", dto.Category.Name)

	_, err := f.svc.CreateProduct(context.Background(), CreateProductInput{
		CategoryID: f.fruit, ItemCode: "APL-001", Name: "Dup", Unit: enums.ProductUnitKG, Price: dec("1"),
	})
	details := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Contains(t, details, "item_code")
}

func TestCreateProductRejectsInvalidDiscounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateProductInput
		field string
	}{
		{"fixed not below price", CreateProductInput{Price: dec("5"), DiscountType: enums.DiscountTypeFixed, DiscountValue: decimal.NewNullDecimal(dec("5"))}, "discount_value"},
		{"percentage over 100", CreateProductInput{Price: dec("5"), DiscountType: enums.DiscountTypePercentage, DiscountValue: decimal.NewNullDecimal(dec("101"))}, "discount_value"},
		{"missing value", CreateProductInput{Price: dec("5"), DiscountType: enums.DiscountTypeFixed}, "discount_value"},
		{"window inverted", CreateProductInput{Price: dec("5"), DiscountType: enums.DiscountTypeFixed, DiscountValue: decimal.NewNullDecimal(dec("1")),
			DiscountStartDate: day("2026-03-05"), DiscountEndDate: day("2026-03-04")}, "discount_end_date"},
		{"zero price", CreateProductInput{Price: dec("0")}, "price"},
		{"bad unit", CreateProductInput{Price: dec("1"), Unit: "crate"}, "unit"},
		{"negative stock", CreateProductInput{Price: dec("1"), Stock: -1}, "stock"},
		{"unknown category", CreateProductInput{Price: dec("1"), CategoryID: uuid.New()}, "category_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := tc.input
			input.ItemCode = "X-" + strings.ReplaceAll(tc.name, " ", "-")
			input.Name = "Case"
			if input.CategoryID == uuid.Nil {
				input.CategoryID = f.fruit
			}
			if input.Unit == "" {
				input.Unit = enums.ProductUnitPiece
			}
			_, err := f.svc.CreateProduct(ctx, input)
			details := requireCode(t, err, pkgerrors.CodeValidation)
			assert.Contains(t, details, tc.field)
		})
	}
}

func TestProductNameFitsColumn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	longest := strings.Repeat("é", maxNameLength)
	dto := f.create(t, CreateProductInput{ItemCode: "LONG-1", Name: longest, Price: dec("1")})
	assert.Equal(t, longest, dto.Name)

	_, err := f.svc.CreateProduct(ctx, CreateProductInput{ItemCode: "LONG-2", Name: longest + "x", Price: dec("1"),
		CategoryID: f.fruit, Unit: enums.ProductUnitPiece})
	details := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Contains(t, details, "name")
}

func TestUpdateProductRecordsPriceHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, CreateProductInput{ItemCode: "ORG-1", Price: dec("8.00"), Stock: 1})

	newPrice := dec("9.50")
	reason := "supplier"
	_, err := f.svc.UpdateProduct(ctx, created.ID, UpdateProductInput{Price: &newPrice, Reason: &reason})
	require.NoError(t, err)

	fixed := enums.DiscountTypeFixed
	_, err = f.svc.UpdateProduct(ctx, created.ID, UpdateProductInput{
		DiscountType:  &fixed,
		DiscountValue: types.NullableDecimal{Valid: true, Value: &newPrice},
	})
	details := requireCode(t, err, pkgerrors.CodeValidation)
	assert.Contains(t, details, "discount_value")

	one := dec("1.00")
	updated, err := f.svc.UpdateProduct(ctx, created.ID, UpdateProductInput{
		DiscountType:  &fixed,
		DiscountValue: types.NullableDecimal{Valid: true, Value: &one},
	})
	require.NoError(t, err)
	assert.Equal(t, "8.50", updated.FinalPrice.StringFixed(2))
	assert.Equal(t, "-1.00", updated.DiscountLabel)

	name := "Orange"
	_, err = f.svc.UpdateProduct(ctx, created.ID, UpdateProductInput{Name: &name})
	require.NoError(t, err)

	var count int64
	require.NoError(t, f.conn.Model(&models.PriceUpdate{}).Where("product_id = ?", created.ID).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	var manual models.PriceUpdate
	require.NoError(t, f.conn.First(&manual, "product_id = ? AND change_type = ?", created.ID, enums.PriceChangeManual).Error)
	assert.Equal(t, "8.00", manual.OldPrice.StringFixed(2))
	assert.Equal(t, "9.50", manual.NewPrice.StringFixed(2))
	require.NotNil(t, manual.Reason)
	assert.Equal(t, "supplier", *manual.Reason)

	var discount models.PriceUpdate
	require.NoError(t, f.conn.First(&discount, "product_id = ? AND change_type = ?", created.ID, enums.PriceChangeDiscount).Error)
	assert.Equal(t, enums.DiscountTypeNone, discount.OldDiscountType)
	assert.Equal(t, enums.DiscountTypeFixed, discount.NewDiscountType)

	none := enums.DiscountTypeNone
	cleared, err := f.svc.UpdateProduct(ctx, created.ID, UpdateProductInput{DiscountType: &none})
	require.NoError(t, err)
	assert.Nil(t, cleared.DiscountValue)
	assert.False(t, cleared.HasActiveDiscount)
	assert.Equal(t, "9.50", cleared.FinalPrice.StringFixed(2))
}

func TestListProductsFiltersAndSorts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.create(t, CreateProductInput{ItemCode: "APL", Name: "Apple", Price: dec("3.00"), Stock: 10})
	f.create(t, CreateProductInput{ItemCode: "LEM", Name: "Lemon", CategoryID: f.citrus, Price: dec("1.50"), Stock: 0})
	f.create(t, CreateProductInput{ItemCode: "LIM", Name: "Lime", CategoryID: f.citrus, Price: dec("2.00"), Stock: 3,
		DiscountType: enums.DiscountTypeFixed, DiscountValue: decimal.NewNullDecimal(dec("0.50")), DiscountEndDate: day("2026-03-09")})
	f.create(t, CreateProductInput{ItemCode: "GRP", Name: "Grapefruit", CategoryID: f.citrus, Price: dec("4.00"), Stock: 2,
		DiscountType: enums.DiscountTypePercentage, DiscountValue: decimal.NewNullDecimal(dec("10")), DiscountStartDate: day("2026-03-10")})

	list := func(filters ProductListFilters, sort string) []string {
		t.Helper()
		res, err := f.svc.ListProducts(ctx, ListProductsInput{Filters: filters, Sort: sort, Pagination: pagination.Params{Page: 1, PerPage: 50}})
		require.NoError(t, err)
		names := make([]string, 0, len(res.Items))
		for _, item := range res.Items {
			names = append(names, item.Name)
		}
		return names
	}
	yes, no := true, false

	assert.Equal(t, []string{"Apple"}, list(ProductListFilters{CategoryID: &f.fruit}, ""))
	assert.Equal(t, []string{"Apple", "Grapefruit", "Lemon", "Lime"},
		list(ProductListFilters{CategoryID: &f.fruit, IncludeSubcategories: true}, ""))
	assert.Equal(t, []string{"Grapefruit", "Apple", "Lime", "Lemon"}, list(ProductListFilters{}, "-price"))
	assert.Equal(t, []string{"Lemon"}, list(ProductListFilters{InStock: &no}, ""))
	assert.Equal(t, []string{"Grapefruit"}, list(ProductListFilters{OnDiscount: &yes}, ""))
	assert.Equal(t, []string{"Apple", "Lemon", "Lime"}, list(ProductListFilters{OnDiscount: &no}, "name"))
	assert.Equal(t, []string{"Lime"}, list(ProductListFilters{Search: "lim"}, ""))
	assert.Equal(t, []string{"Apple"}, list(ProductListFilters{Search: "apl"}, ""))

	minPrice, maxPrice := dec("2.00"), dec("3.00")
	assert.Equal(t, []string{"Lime", "Apple"}, list(ProductListFilters{MinPrice: &minPrice, MaxPrice: &maxPrice}, "price"))

	_, err := f.svc.ListProducts(ctx, ListProductsInput{Sort: "weight"})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestAdjustStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, CreateProductInput{ItemCode: "PEA", Price: dec("1"), Stock: 2})

	dto, err := f.svc.AdjustStock(ctx, created.ID, StockAdjustmentInput{Delta: 5, Reason: "delivery"})
	require.NoError(t, err)
	assert.Equal(t, 7, dto.Stock)

	_, err = f.svc.AdjustStock(ctx, created.ID, StockAdjustmentInput{Delta: -8, Reason: "spoiled"})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.AdjustStock(ctx, created.ID, StockAdjustmentInput{Delta: 0, Reason: "noop"})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.AdjustStock(ctx, uuid.New(), StockAdjustmentInput{Delta: 1, Reason: "x"})
	requireCode(t, err, pkgerrors.CodeNotFound)
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func TestUploadImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, CreateProductInput{ItemCode: "IMG", Price: dec("1"), Stock: 1})

	dto, err := f.svc.UploadImage(ctx, created.ID, ImageUploadInput{Filename: "a.png", Body: bytes.NewReader(pngHeader)})
	require.NoError(t, err)
	require.NotNil(t, dto.ImageURL)
	assert.True(t, strings.HasPrefix(*dto.ImageURL, "https://cdn.example/products/"+created.ID.String()+"/"))
	assert.True(t, strings.HasSuffix(*dto.ImageURL, ".png"))
	first := *dto.ImageURL

	dto, err = f.svc.UploadImage(ctx, created.ID, ImageUploadInput{Filename: "b.png", Body: bytes.NewReader(pngHeader)})
	require.NoError(t, err)
	assert.NotEqual(t, first, *dto.ImageURL)
	require.Len(t, f.images.deleted, 1)
	assert.Equal(t, strings.TrimPrefix(first, "https://cdn.example/"), f.images.deleted[0])

	_, err = f.svc.UploadImage(ctx, created.ID, ImageUploadInput{Body: strings.NewReader("plain text, not an image")})
	requireCode(t, err, pkgerrors.CodeValidation)

	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 2048)...)
	_, err = f.svc.UploadImage(ctx, created.ID, ImageUploadInput{Body: bytes.NewReader(big)})
	requireCode(t, err, pkgerrors.CodeValidation)

	f.images.failUp = true
	_, err = f.svc.UploadImage(ctx, created.ID, ImageUploadInput{Body: bytes.NewReader(pngHeader)})
	requireCode(t, err, pkgerrors.CodeDependency)
}

func TestDeleteProductRemovesImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	created := f.create(t, CreateProductInput{ItemCode: "DEL", Price: dec("1"), Stock: 1})
	_, err := f.svc.UploadImage(ctx, created.ID, ImageUploadInput{Body: bytes.NewReader(pngHeader)})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteProduct(ctx, created.ID))
	assert.Len(t, f.images.deleted, 1)
	_, err = f.svc.GetProduct(ctx, created.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)
}
