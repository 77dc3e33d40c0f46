package product

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/internal/priceupdates"
	"github.com/angelmondragon/groceryhub-backend/pkg/db"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
	"github.com/angelmondragon/groceryhub-backend/pkg/pricing"
	"github.com/angelmondragon/groceryhub-backend/pkg/types"
)

const (
	maxItemCodeLength = 50
	maxNameLength     = 200
)

// Service exposes catalog product management operations.
type Service interface {
	CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error)
	GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	DeleteProduct(ctx context.Context, id uuid.UUID) error
	ListProducts(ctx context.Context, input ListProductsInput) (pagination.Result[ProductDTO], error)
	AdjustStock(ctx context.Context, id uuid.UUID, input StockAdjustmentInput) (*ProductDTO, error)
	UploadImage(ctx context.Context, id uuid.UUID, input ImageUploadInput) (*ProductDTO, error)
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	CategoryID        uuid.UUID
	ItemCode          string
	Name              string
	Description       *string
	Unit              enums.ProductUnit
	Price             decimal.Decimal
	DiscountType      enums.DiscountType
	DiscountValue     decimal.NullDecimal
	DiscountStartDate *time.Time
	DiscountEndDate   *time.Time
	Stock             int
	IsActive          *bool
}

// UpdateProductInput holds optional mutation values for a product. Discount
// value and dates use the nullable wrappers so an explicit null clears them.
type UpdateProductInput struct {
	CategoryID        *uuid.UUID
	ItemCode          *string
	Name              *string
	Description       *string
	Unit              *enums.ProductUnit
	Price             *decimal.Decimal
	DiscountType      *enums.DiscountType
	DiscountValue     types.NullableDecimal
	DiscountStartDate types.NullableDate
	DiscountEndDate   types.NullableDate
	Stock             *int
	IsActive          *bool
	Reason            *string
	ChangedBy         *uuid.UUID
}

// StockAdjustmentInput moves stock by Delta, which may be negative.
type StockAdjustmentInput struct {
	Delta  int
	Reason string
}

type categoryTree interface {
	DescendantIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

type priceAuditor interface {
	RecordChange(ctx context.Context, tx *gorm.DB, change priceupdates.Change) error
}

// service implements the product service.
type service struct {
	repo           *Repository
	dbClient       *db.Client
	categories     categoryTree
	audit          priceAuditor
	images         imageStore
	maxUploadBytes int64
	logg           *logger.Logger
	now            func() time.Time
}

// NewService constructs a product service instance.
func NewService(repo *Repository, dbClient *db.Client, categories categoryTree, audit priceAuditor, images imageStore, maxUploadBytes int64, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if categories == nil {
		return nil, fmt.Errorf("category tree required")
	}
	if audit == nil {
		return nil, fmt.Errorf("price auditor required")
	}
	if images == nil {
		return nil, fmt.Errorf("image store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 5 << 20
	}
	return &service{
		repo:           repo,
		dbClient:       dbClient,
		categories:     categories,
		audit:          audit,
		images:         images,
		maxUploadBytes: maxUploadBytes,
		logg:           logg,
		now:            time.Now,
	}, nil
}

// CreateProduct validates and inserts the product.
func (s *service) CreateProduct(ctx context.Context, input CreateProductInput) (*ProductDTO, error) {
	product := &models.Product{
		CategoryID:  input.CategoryID,
		ItemCode:    normalizeItemCode(input.ItemCode),
		Name:        strings.TrimSpace(input.Name),
		Description: trimOptional(input.Description),
		Unit:        input.Unit,
		Price:       input.Price,
		Stock:       input.Stock,
		IsActive:    true,
	}
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}
	applyDiscount(product, pricing.Discount{
		Type:      input.DiscountType,
		Value:     input.DiscountValue,
		StartDate: input.DiscountStartDate,
		EndDate:   input.DiscountEndDate,
	})
	if fields := validateProduct(product); len(fields) > 0 {
		return nil, validationError(fields)
	}

	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := ensureReferences(ctx, txRepo, product, nil); err != nil {
			return err
		}
		if err := txRepo.CreateProduct(ctx, product); err != nil {
			if db.IsUniqueViolation(err, "item_code") {
				return itemCodeTakenError()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert product")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := loadProduct(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	dto := NewProductDTO(product, s.now())
	return &dto, nil
}

// UpdateProduct applies the changes and records a price update row when the
// price or discount moved.
func (s *service) UpdateProduct(ctx context.Context, id uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		product, err := txRepo.FindForUpdate(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load product")
		}
		oldPrice := product.Price
		oldDiscount := DiscountOf(product)

		applyUpdateToProduct(product, input)
		if fields := validateProduct(product); len(fields) > 0 {
			return validationError(fields)
		}
		if err := ensureReferences(ctx, txRepo, product, &product.ID); err != nil {
			return err
		}
		if err := txRepo.UpdateProduct(ctx, product); err != nil {
			if db.IsUniqueViolation(err, "item_code") {
				return itemCodeTakenError()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update product")
		}

		change := priceupdates.Change{
			ProductID:   product.ID,
			OldPrice:    oldPrice,
			NewPrice:    product.Price,
			OldDiscount: oldDiscount,
			NewDiscount: DiscountOf(product),
			Reason:      trimOptional(input.Reason),
			ChangedBy:   input.ChangedBy,
		}
		change.ChangeType = priceupdates.ClassifyManual(change)
		return s.audit.RecordChange(ctx, tx, change)
	})
	if err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, id)
}

// DeleteProduct removes the product and its stored image. Order items keep
// their snapshot.
func (s *service) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	product, err := loadProduct(ctx, s.repo, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete product")
	}
	s.removeStoredImage(ctx, product.ImageURL)
	return nil
}

func (s *service) ListProducts(ctx context.Context, input ListProductsInput) (pagination.Result[ProductDTO], error) {
	params := pagination.Normalize(input.Pagination.Page, input.Pagination.PerPage)
	sort, err := ParseSort(input.Sort)
	if err != nil {
		return pagination.Result[ProductDTO]{}, validationError(map[string]string{"sort": err.Error()})
	}

	now := s.now()
	query := listQuery{Filters: input.Filters, Sort: sort, Today: now}
	if id := input.Filters.CategoryID; id != nil {
		query.CategoryIDs = []uuid.UUID{*id}
		if input.Filters.IncludeSubcategories {
			ids, err := s.categories.DescendantIDs(ctx, *id)
			if err != nil {
				return pagination.Result[ProductDTO]{}, err
			}
			query.CategoryIDs = ids
		}
	}

	rows, total, err := s.repo.ListProducts(ctx, query, params)
	if err != nil {
		return pagination.Result[ProductDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list products")
	}
	items := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		items = append(items, NewProductDTO(&rows[i], now))
	}
	return pagination.NewResult(items, params, total), nil
}

// AdjustStock applies a signed delta. The resulting stock may not be negative.
func (s *service) AdjustStock(ctx context.Context, id uuid.UUID, input StockAdjustmentInput) (*ProductDTO, error) {
	fields := map[string]string{}
	if input.Delta == 0 {
		fields["delta"] = "delta must not be zero"
	}
	if strings.TrimSpace(input.Reason) == "" {
		fields["reason"] = "reason is required"
	}
	if len(fields) > 0 {
		return nil, validationError(fields)
	}

	var before, after int
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		product, err := txRepo.FindForUpdate(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load product")
		}
		before = product.Stock
		after = product.Stock + input.Delta
		if after < 0 {
			return validationError(map[string]string{
				"delta": fmt.Sprintf("stock cannot go below 0 (current stock %d)", product.Stock),
			})
		}
		if err := txRepo.SetStock(ctx, id, after); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update stock")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"product_id":   id.String(),
		"stock_before": before,
		"stock_after":  after,
		"reason":       strings.TrimSpace(input.Reason),
	})
	s.logg.Info(logCtx, "product.stock_adjusted")
	return s.GetProduct(ctx, id)
}

func loadProduct(ctx context.Context, repo *Repository, id uuid.UUID) (*models.Product, error) {
	product, err := repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load product")
	}
	return product, nil
}

func ensureReferences(ctx context.Context, repo *Repository, product *models.Product, exclude *uuid.UUID) error {
	exists, err := repo.CategoryExists(ctx, product.CategoryID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: check category")
	}
	if !exists {
		return validationError(map[string]string{"category_id": "the selected category does not exist"})
	}
	taken, err := repo.ItemCodeTaken(ctx, product.ItemCode, exclude)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: check item code")
	}
	if taken {
		return itemCodeTakenError()
	}
	return nil
}

func applyUpdateToProduct(product *models.Product, input UpdateProductInput) {
	if input.CategoryID != nil {
		product.CategoryID = *input.CategoryID
	}
	if input.ItemCode != nil {
		product.ItemCode = normalizeItemCode(*input.ItemCode)
	}
	if input.Name != nil {
		product.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		product.Description = trimOptional(input.Description)
	}
	if input.Unit != nil {
		product.Unit = *input.Unit
	}
	if input.Price != nil {
		product.Price = *input.Price
	}
	if input.Stock != nil {
		product.Stock = *input.Stock
	}
	if input.IsActive != nil {
		product.IsActive = *input.IsActive
	}

	discount := DiscountOf(product)
	if input.DiscountType != nil {
		discount.Type = *input.DiscountType
	}
	if input.DiscountValue.Valid {
		discount.Value = input.DiscountValue.NullDecimal()
	}
	if input.DiscountStartDate.Valid {
		discount.StartDate = input.DiscountStartDate.Value
	}
	if input.DiscountEndDate.Valid {
		discount.EndDate = input.DiscountEndDate.Value
	}
	applyDiscount(product, discount)
}

// applyDiscount stores the normalized discount, which clears value and window
// for "none".
func applyDiscount(product *models.Product, d pricing.Discount) {
	if d.Type.IsValid() || d.Type == "" {
		d = pricing.Normalize(d)
	}
	product.DiscountType = d.Type
	product.DiscountValue = d.Value
	product.DiscountStartDate = d.StartDate
	product.DiscountEndDate = d.EndDate
}

func validateProduct(p *models.Product) map[string]string {
	fields := map[string]string{}
	switch {
	case p.ItemCode == "":
		fields["item_code"] = "item_code is required"
	case utf8.RuneCountInString(p.ItemCode) > maxItemCodeLength:
		fields["item_code"] = fmt.Sprintf("item_code may not be greater than %d characters", maxItemCodeLength)
	}
	switch {
	case p.Name == "":
		fields["name"] = "name is required"
	case utf8.RuneCountInString(p.Name) > maxNameLength:
		fields["name"] = fmt.Sprintf("name may not be greater than %d characters", maxNameLength)
	}
	if p.CategoryID == uuid.Nil {
		fields["category_id"] = "category_id is required"
	}
	if !p.Unit.IsValid() {
		fields["unit"] = "unit must be one of " + strings.Join(enums.ProductUnitValues(), ", ")
	}
	if p.Stock < 0 {
		fields["stock"] = "stock must be at least 0"
	}
	for k, v := range pricing.Validate(p.Price, DiscountOf(p)) {
		fields[k] = v
	}
	if !p.DiscountType.IsValid() {
		fields["discount_type"] = "discount_type must be one of none, fixed, percentage"
	}
	return fields
}

func normalizeItemCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func validationError(fields map[string]string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "the given data was invalid").WithDetails(fields)
}

func itemCodeTakenError() error {
	return validationError(map[string]string{"item_code": "the item code has already been taken"})
}
