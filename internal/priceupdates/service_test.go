package priceupdates

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
	"github.com/angelmondragon/groceryhub-backend/pkg/pricing"
)

type fakeTree struct {
	ids map[uuid.UUID][]uuid.UUID
}

func (f fakeTree) DescendantIDs(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	ids, ok := f.ids[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
	}
	return ids, nil
}

type fixture struct {
	svc      Service
	conn     *gorm.DB
	parent   uuid.UUID
	child    uuid.UUID
	products map[string]*models.Product
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()

	parent := &models.Category{Name: "Drinks", Slug: "drinks", IsActive: true}
	require.NoError(t, conn.Create(parent).Error)
	child := &models.Category{Name: "Tea", Slug: "tea", ParentID: &parent.ID, IsActive: true}
	require.NoError(t, conn.Create(child).Error)
	other := &models.Category{Name: "Snacks", Slug: "snacks", IsActive: true}
	require.NoError(t, conn.Create(other).Error)

	tea := &models.Product{
		CategoryID: child.ID, ItemCode: "TEA", Name: "Green Tea", Unit: enums.ProductUnitBox, Price: dec("4.00"), Stock: 5, IsActive: true,
		DiscountType: enums.DiscountTypeFixed, DiscountValue: decimal.NewNullDecimal(dec("1.50")),
	}
	products := map[string]*models.Product{
		"COLA":  {CategoryID: parent.ID, ItemCode: "COLA", Name: "Cola", Unit: enums.ProductUnitPiece, Price: dec("10.00"), Stock: 5, IsActive: true},
		"TEA":   tea,
		"CHIPS": {CategoryID: other.ID, ItemCode: "CHIPS", Name: "Chips", Unit: enums.ProductUnitPack, Price: dec("3.00"), Stock: 5, IsActive: true},
	}
	for _, p := range products {
		require.NoError(t, conn.Create(p).Error)
	}

	tree := fakeTree{ids: map[uuid.UUID][]uuid.UUID{
		parent.ID: {parent.ID, child.ID},
		child.ID:  {child.ID},
		other.ID:  {other.ID},
	}}
	svc, err := NewService(NewRepository(conn), client, tree)
	require.NoError(t, err)
	return &fixture{svc: svc, conn: conn, parent: parent.ID, child: child.ID, products: products}
}

func (f *fixture) price(t *testing.T, code string) decimal.Decimal {
	t.Helper()
	var p models.Product
	require.NoError(t, f.conn.First(&p, "item_code = ?", code).Error)
	return p.Price
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, code, typed.Code())
}

func TestBulkUpdateByCategoryIncludesDescendants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reason := "supplier increase"

	res, err := f.svc.BulkUpdate(ctx, BulkInput{
		CategoryID:     &f.parent,
		AdjustmentType: enums.BulkAdjustmentPercentage,
		Amount:         dec("10"),
		Reason:         &reason,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.UpdatedCount)
	assert.True(t, f.price(t, "COLA").Equal(dec("11.00")))
	assert.True(t, f.price(t, "TEA").Equal(dec("4.40")))
	assert.True(t, f.price(t, "CHIPS").Equal(dec("3.00")))

	history, err := f.svc.History(ctx, HistoryInput{Filter: HistoryFilter{BatchID: &res.BatchID}})
	require.NoError(t, err)
	require.Len(t, history.Items, 2)
	for _, row := range history.Items {
		assert.Equal(t, string(enums.PriceChangeBulk), row.ChangeType)
		assert.Equal(t, reason, *row.Reason)
		assert.NotEmpty(t, row.ItemCode)
	}
}

func TestBulkUpdateIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// TEA would drop to 0.00 while COLA stays positive.
	_, err := f.svc.BulkUpdate(ctx, BulkInput{
		ProductIDs:     []uuid.UUID{f.products["COLA"].ID, f.products["TEA"].ID},
		AdjustmentType: enums.BulkAdjustmentFixed,
		Amount:         dec("-4.00"),
	})
	requireCode(t, err, pkgerrors.CodeValidation)
	details := pkgerrors.As(err).Details().(map[string]string)
	assert.Contains(t, details, "TEA")
	assert.NotContains(t, details, "COLA")

	assert.True(t, f.price(t, "COLA").Equal(dec("10.00")))
	assert.True(t, f.price(t, "TEA").Equal(dec("4.00")))

	var count int64
	require.NoError(t, f.conn.Model(&models.PriceUpdate{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestBulkUpdateRejectsFixedDiscountAboveNewPrice(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.BulkUpdate(context.Background(), BulkInput{
		ProductIDs:     []uuid.UUID{f.products["TEA"].ID},
		AdjustmentType: enums.BulkAdjustmentPercentage,
		Amount:         dec("-70"),
	})
	requireCode(t, err, pkgerrors.CodeValidation)
	assert.True(t, f.price(t, "TEA").Equal(dec("4.00")))
}

func TestBulkUpdateValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []BulkInput{
		{AdjustmentType: enums.BulkAdjustmentFixed, Amount: dec("1")},
		{CategoryID: &f.parent, ProductIDs: []uuid.UUID{f.products["COLA"].ID}, AdjustmentType: enums.BulkAdjustmentFixed, Amount: dec("1")},
		{CategoryID: &f.parent, AdjustmentType: "double", Amount: dec("1")},
		{CategoryID: &f.parent, AdjustmentType: enums.BulkAdjustmentFixed},
		{ProductIDs: []uuid.UUID{uuid.New()}, AdjustmentType: enums.BulkAdjustmentFixed, Amount: dec("1")},
	}
	for i, input := range cases {
		_, err := f.svc.BulkUpdate(ctx, input)
		require.Error(t, err, "case %d", i)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "case %d: %v", i, err)
	}

	missing := uuid.New()
	_, err := f.svc.BulkUpdate(ctx, BulkInput{CategoryID: &missing, AdjustmentType: enums.BulkAdjustmentFixed, Amount: dec("1")})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestRecordChangeSkipsNoops(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	productID := f.products["COLA"].ID
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	same := Change{ProductID: productID, OldPrice: dec("10"), NewPrice: dec("10.00"), ChangeType: enums.PriceChangeManual}
	require.NoError(t, f.svc.RecordChange(ctx, nil, same))

	discount := Change{
		ProductID:   productID,
		OldPrice:    dec("10"),
		NewPrice:    dec("10"),
		NewDiscount: pricing.Discount{Type: enums.DiscountTypePercentage, Value: decimal.NewNullDecimal(dec("5")), StartDate: &start},
	}
	discount.ChangeType = ClassifyManual(discount)
	assert.Equal(t, enums.PriceChangeDiscount, discount.ChangeType)
	require.NoError(t, f.svc.RecordChange(ctx, nil, discount))

	history, err := f.svc.History(ctx, HistoryInput{Filter: HistoryFilter{ProductID: &productID}, Params: pagination.Params{Page: 1}})
	require.NoError(t, err)
	require.Len(t, history.Items, 1)
	assert.Equal(t, "percentage", history.Items[0].NewDiscountType)
	assert.Equal(t, "none", history.Items[0].OldDiscountType)
}

func TestChangeDetection(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)
	sameDay := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	base := Change{OldPrice: dec("5"), NewPrice: dec("5")}

	c := base
	c.OldDiscount = pricing.Discount{Type: enums.DiscountTypeFixed, Value: decimal.NewNullDecimal(dec("1")), StartDate: &start}
	c.NewDiscount = pricing.Discount{Type: enums.DiscountTypeFixed, Value: decimal.NewNullDecimal(dec("1.00")), StartDate: &sameDay}
	assert.False(t, c.Changed())

	c.NewDiscount.Value = decimal.NewNullDecimal(dec("2"))
	assert.True(t, c.DiscountChanged())

	c = base
	c.NewPrice = dec("6")
	assert.Equal(t, enums.PriceChangeManual, ClassifyManual(c))
}
