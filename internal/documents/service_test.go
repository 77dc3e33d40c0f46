package documents

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/groceryhub-backend/internal/orders"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/types"
)

var renderedAt = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

type fakeCatalog struct {
	rows []models.Product
	ids  []uuid.UUID
}

func (f *fakeCatalog) ListActiveForCatalog(_ context.Context, ids []uuid.UUID) ([]models.Product, error) {
	f.ids = ids
	return f.rows, nil
}

type fakeTree struct {
	known map[uuid.UUID][]uuid.UUID
}

func (f *fakeTree) DescendantIDs(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	ids, ok := f.known[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
	}
	return ids, nil
}

type fakeOrders struct {
	order *orders.OrderDTO
}

func (f *fakeOrders) Get(_ context.Context, id uuid.UUID) (*orders.OrderDTO, error) {
	if f.order == nil || f.order.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return f.order, nil
}

func catalogRows() []models.Product {
	fruit := &models.Category{ID: uuid.New(), Name: "Fruit"}
	dairy := &models.Category{ID: uuid.New(), Name: "Dairy"}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	return []models.Product{
		{CategoryID: fruit.ID, Category: fruit, ItemCode: "APL", Name: "Apple", Unit: enums.ProductUnitKG, Price: decimal.RequireFromString("2.50"),
			DiscountType: enums.DiscountTypePercentage, DiscountValue: decimal.NewNullDecimal(decimal.NewFromInt(10)), DiscountStartDate: &start, DiscountEndDate: &end},
		{CategoryID: fruit.ID, Category: fruit, ItemCode: "BAN", Name: "Banana", Unit: enums.ProductUnitKG, Price: decimal.RequireFromString("1.80"),
			DiscountType: enums.DiscountTypeFixed, DiscountValue: decimal.NewNullDecimal(decimal.RequireFromString("0.30")), DiscountEndDate: &start},
		{CategoryID: dairy.ID, Category: dairy, ItemCode: "MLK", Name: "Milk", Unit: enums.ProductUnitLiter, Price: decimal.RequireFromString("1.20")},
	}
}

func newTestService(t *testing.T, catalog *fakeCatalog, tree *fakeTree, source *fakeOrders) *service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Catalog:    catalog,
		Categories: tree,
		Orders:     source,
		StoreName:  "Fresh Mart",
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	require.NoError(t, err)
	s := svc.(*service)
	s.now = func() time.Time { return renderedAt }
	return s
}

func TestGroupByCategoryPricesAtRenderTime(t *testing.T) {
	groups := groupByCategory(catalogRows(), renderedAt)
	require.Len(t, groups, 2)
	assert.Equal(t, "Fruit", groups[0].name)
	require.Len(t, groups[0].rows, 2)

	apple := groups[0].rows[0]
	assert.Equal(t, "2.50", apple.price)
	assert.Equal(t, "10%", apple.discount)
	assert.Equal(t, "2.25", apple.final)

	// the banana discount ended on March 1st
	banana := groups[0].rows[1]
	assert.Equal(t, "-", banana.discount)
	assert.Equal(t, "1.80", banana.final)

	assert.Equal(t, "Dairy", groups[1].name)
	assert.Equal(t, "l", groups[1].rows[0].unit)
}

func TestPriceListRendersPDF(t *testing.T) {
	catalog := &fakeCatalog{rows: catalogRows()}
	s := newTestService(t, catalog, &fakeTree{}, &fakeOrders{})

	out, err := s.PriceList(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
	assert.Nil(t, catalog.ids)
}

func TestPriceListCategoryFilterIncludesDescendants(t *testing.T) {
	root, child := uuid.New(), uuid.New()
	catalog := &fakeCatalog{}
	s := newTestService(t, catalog, &fakeTree{known: map[uuid.UUID][]uuid.UUID{root: {root, child}}}, &fakeOrders{})

	_, err := s.PriceList(context.Background(), &root)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{root, child}, catalog.ids)

	missing := uuid.New()
	_, err = s.PriceList(context.Background(), &missing)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestPriceListPaginatesLongCatalogs(t *testing.T) {
	category := &models.Category{ID: uuid.New(), Name: "Pantry"}
	rows := make([]models.Product, 0, 120)
	for i := 0; i < 120; i++ {
		rows = append(rows, models.Product{CategoryID: category.ID, Category: category, ItemCode: fmt.Sprintf("P%03d", i),
			Name: "Product with a rather long descriptive name number " + fmt.Sprint(i), Unit: enums.ProductUnitPiece, Price: decimal.NewFromInt(3)})
	}
	pdf := renderPriceList("Fresh Mart", renderedAt, groupByCategory(rows, renderedAt))
	require.NoError(t, pdf.Error())
	assert.Greater(t, pdf.PageCount(), 2)
}

func TestInvoice(t *testing.T) {
	phone := "+6281234567890"
	notes := "Leave at the gate"
	order := &orders.OrderDTO{
		ID:            uuid.New(),
		OrderNumber:   "ORD-20260310-0007",
		CustomerName:  "Siti Rahma",
		CustomerPhone: &phone,
		Status:        "confirmed",
		Subtotal:      types.NewMoney(decimal.RequireFromString("11.10")),
		DiscountTotal: types.NewMoney(decimal.RequireFromString("0.75")),
		Total:         types.NewMoney(decimal.RequireFromString("10.35")),
		Notes:         &notes,
		PlacedAt:      renderedAt,
		Items: []orders.OrderItemDTO{{
			ItemCode: "APL", ProductName: "Apple", Unit: "kg", Quantity: 3,
			UnitPrice:      types.NewMoney(decimal.RequireFromString("2.50")),
			DiscountAmount: types.NewMoney(decimal.RequireFromString("0.25")),
			FinalUnitPrice: types.NewMoney(decimal.RequireFromString("2.25")),
			LineTotal:      types.NewMoney(decimal.RequireFromString("6.75")),
		}},
	}
	s := newTestService(t, &fakeCatalog{}, &fakeTree{}, &fakeOrders{order: order})

	doc, err := s.Invoice(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, "invoice-ORD-20260310-0007.pdf", doc.Filename)
	assert.True(t, bytes.HasPrefix(doc.Content, []byte("%PDF-")))

	_, err = s.Invoice(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
