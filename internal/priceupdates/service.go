package priceupdates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/pkg/db"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
	"github.com/angelmondragon/groceryhub-backend/pkg/pricing"
	"github.com/angelmondragon/groceryhub-backend/pkg/types"
)

// Service owns the price audit trail and bulk price adjustments.
type Service interface {
	RecordChange(ctx context.Context, tx *gorm.DB, change Change) error
	BulkUpdate(ctx context.Context, input BulkInput) (*BulkResult, error)
	History(ctx context.Context, input HistoryInput) (pagination.Result[PriceUpdateDTO], error)
}

// Change describes one product price or discount transition.
type Change struct {
	ProductID   uuid.UUID
	OldPrice    decimal.Decimal
	NewPrice    decimal.Decimal
	OldDiscount pricing.Discount
	NewDiscount pricing.Discount
	ChangeType  enums.PriceChangeType
	Reason      *string
	ChangedBy   *uuid.UUID
	BatchID     *uuid.UUID
}

// PriceChanged reports whether the base price moved.
func (c Change) PriceChanged() bool {
	return !c.OldPrice.Equal(c.NewPrice)
}

// DiscountChanged compares type, value and window.
func (c Change) DiscountChanged() bool {
	o, n := pricing.Normalize(c.OldDiscount), pricing.Normalize(c.NewDiscount)
	if o.Type != n.Type || o.Value.Valid != n.Value.Valid {
		return true
	}
	if o.Value.Valid && !o.Value.Decimal.Equal(n.Value.Decimal) {
		return true
	}
	return !sameDate(o.StartDate, n.StartDate) || !sameDate(o.EndDate, n.EndDate)
}

// Changed reports whether the change is worth an audit row.
func (c Change) Changed() bool {
	return c.PriceChanged() || c.DiscountChanged()
}

// ClassifyManual picks "manual" when the base price moved and "discount"
// when only the discount did.
func ClassifyManual(c Change) enums.PriceChangeType {
	if c.PriceChanged() {
		return enums.PriceChangeManual
	}
	return enums.PriceChangeDiscount
}

// BulkInput targets either a category subtree or an explicit product list.
type BulkInput struct {
	CategoryID     *uuid.UUID
	ProductIDs     []uuid.UUID
	AdjustmentType enums.BulkAdjustmentType
	Amount         decimal.Decimal
	Reason         *string
	ChangedBy      *uuid.UUID
}

type HistoryInput struct {
	Filter HistoryFilter
	Params pagination.Params
}

type categoryTree interface {
	DescendantIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

type service struct {
	repo       *Repository
	dbClient   *db.Client
	categories categoryTree
}

// NewService constructs the price update service.
func NewService(repo *Repository, dbClient *db.Client, categories categoryTree) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("price update repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if categories == nil {
		return nil, fmt.Errorf("category tree required")
	}
	return &service{repo: repo, dbClient: dbClient, categories: categories}, nil
}

// RecordChange writes an audit row inside tx. Unchanged transitions are skipped.
func (s *service) RecordChange(ctx context.Context, tx *gorm.DB, change Change) error {
	if !change.Changed() {
		return nil
	}
	repo := s.repo
	if tx != nil {
		repo = repo.WithTx(tx)
	}
	if err := repo.Create(ctx, newRow(change)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert price update")
	}
	return nil
}

func newRow(change Change) *models.PriceUpdate {
	oldDiscount := pricing.Normalize(change.OldDiscount)
	newDiscount := pricing.Normalize(change.NewDiscount)
	return &models.PriceUpdate{
		ProductID:        change.ProductID,
		OldPrice:         change.OldPrice,
		NewPrice:         change.NewPrice,
		OldDiscountType:  oldDiscount.Type,
		OldDiscountValue: oldDiscount.Value,
		NewDiscountType:  newDiscount.Type,
		NewDiscountValue: newDiscount.Value,
		ChangeType:       change.ChangeType,
		Reason:           change.Reason,
		ChangedBy:        change.ChangedBy,
		BatchID:          change.BatchID,
	}
}

// BulkUpdate adjusts every targeted price in one transaction. A single
// product whose new price is invalid fails the whole batch.
func (s *service) BulkUpdate(ctx context.Context, input BulkInput) (*BulkResult, error) {
	if fields := validateBulk(input); len(fields) > 0 {
		return nil, validationError("the given data was invalid", fields)
	}

	var categoryIDs []uuid.UUID
	if len(input.ProductIDs) == 0 {
		ids, err := s.categories.DescendantIDs(ctx, *input.CategoryID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				return nil, validationError("the given data was invalid", map[string]string{"category_id": "the selected category does not exist"})
			}
			return nil, err
		}
		categoryIDs = ids
	}

	batchID := uuid.New()
	result := &BulkResult{BatchID: batchID}
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		products, err := txRepo.LockProducts(ctx, dedupe(input.ProductIDs), categoryIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load products for bulk update")
		}
		if len(input.ProductIDs) > 0 {
			if missing := missingIDs(input.ProductIDs, products); len(missing) > 0 {
				return validationError("the given data was invalid", map[string]string{
					"product_ids": "unknown products: " + strings.Join(missing, ", "),
				})
			}
		}
		if len(products) == 0 {
			return validationError("no products matched the selection", nil)
		}

		failures := map[string]string{}
		rows := make([]*models.PriceUpdate, 0, len(products))
		for i := range products {
			product := &products[i]
			newPrice := pricing.AdjustPrice(product.Price, input.AdjustmentType, input.Amount)
			discount := discountOf(product)
			switch {
			case !newPrice.IsPositive():
				failures[product.ItemCode] = fmt.Sprintf("new price %s must be greater than 0", newPrice.StringFixed(2))
				continue
			case discount.Type == enums.DiscountTypeFixed && discount.Value.Valid && discount.Value.Decimal.GreaterThanOrEqual(newPrice):
				failures[product.ItemCode] = fmt.Sprintf("fixed discount %s would not be less than the new price %s",
					discount.Value.Decimal.StringFixed(2), newPrice.StringFixed(2))
				continue
			}

			change := Change{
				ProductID:   product.ID,
				OldPrice:    product.Price,
				NewPrice:    newPrice,
				OldDiscount: discount,
				NewDiscount: discount,
				ChangeType:  enums.PriceChangeBulk,
				Reason:      input.Reason,
				ChangedBy:   input.ChangedBy,
				BatchID:     &batchID,
			}
			rows = append(rows, newRow(change))
			result.Products = append(result.Products, BulkProductDTO{
				ProductID: product.ID,
				ItemCode:  product.ItemCode,
				OldPrice:  types.NewMoney(product.Price),
				NewPrice:  types.NewMoney(newPrice),
			})
		}
		if len(failures) > 0 {
			return validationError("bulk update rejected: some prices would become invalid", failures)
		}

		for _, row := range rows {
			if err := txRepo.UpdateProductPrice(ctx, row.ProductID, row.NewPrice); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update product price")
			}
		}
		if err := txRepo.Create(ctx, rows...); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert price updates")
		}
		result.UpdatedCount = len(rows)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) History(ctx context.Context, input HistoryInput) (pagination.Result[PriceUpdateDTO], error) {
	params := pagination.Normalize(input.Params.Page, input.Params.PerPage)
	rows, total, err := s.repo.List(ctx, input.Filter, params)
	if err != nil {
		return pagination.Result[PriceUpdateDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list price updates")
	}
	items := make([]PriceUpdateDTO, 0, len(rows))
	for i := range rows {
		items = append(items, NewPriceUpdateDTO(&rows[i]))
	}
	return pagination.NewResult(items, params, total), nil
}

func validateBulk(input BulkInput) map[string]string {
	fields := map[string]string{}
	switch {
	case input.CategoryID == nil && len(input.ProductIDs) == 0:
		fields["target"] = "either category_id or product_ids is required"
	case input.CategoryID != nil && len(input.ProductIDs) > 0:
		fields["target"] = "category_id and product_ids cannot be combined"
	}
	if !input.AdjustmentType.IsValid() {
		fields["adjustment_type"] = "adjustment_type must be percentage or fixed"
	}
	if input.Amount.IsZero() {
		fields["amount"] = "amount must not be zero"
	}
	return fields
}

func discountOf(p *models.Product) pricing.Discount {
	return pricing.Discount{
		Type:      p.DiscountType,
		Value:     p.DiscountValue,
		StartDate: p.DiscountStartDate,
		EndDate:   p.DiscountEndDate,
	}
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func missingIDs(requested []uuid.UUID, found []models.Product) []string {
	present := make(map[uuid.UUID]bool, len(found))
	for _, p := range found {
		present[p.ID] = true
	}
	var missing []string
	for _, id := range dedupe(requested) {
		if !present[id] {
			missing = append(missing, id.String())
		}
	}
	return missing
}

func sameDate(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return pricing.DateOf(*a).Equal(pricing.DateOf(*b))
}

func validationError(message string, fields map[string]string) error {
	err := pkgerrors.New(pkgerrors.CodeValidation, message)
	if len(fields) > 0 {
		return err.WithDetails(fields)
	}
	return err
}
