package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/groceryhub-backend/api/middleware"
	"github.com/angelmondragon/groceryhub-backend/api/responses"
	"github.com/angelmondragon/groceryhub-backend/api/validators"
	"github.com/angelmondragon/groceryhub-backend/internal/priceupdates"
	product "github.com/angelmondragon/groceryhub-backend/internal/products"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/types"
)

// multipartOverhead leaves room for boundaries and form fields around the file.
const multipartOverhead = 1 << 20

type createProductRequest struct {
	CategoryID        uuid.UUID           `json:"category_id" validate:"required"`
	ItemCode          string              `json:"item_code" validate:"required,max=50"`
	Name              string              `json:"name" validate:"required,max=200"`
	Description       *string             `json:"description"`
	Unit              enums.ProductUnit   `json:"unit" validate:"required"`
	Price             decimal.Decimal     `json:"price"`
	DiscountType      enums.DiscountType  `json:"discount_type"`
	DiscountValue     decimal.NullDecimal `json:"discount_value"`
	DiscountStartDate types.NullableDate  `json:"discount_start_date"`
	DiscountEndDate   types.NullableDate  `json:"discount_end_date"`
	Stock             int                 `json:"stock" validate:"gte=0"`
	IsActive          *bool               `json:"is_active"`
}

func (r createProductRequest) toInput() product.CreateProductInput {
	return product.CreateProductInput{
		CategoryID:        r.CategoryID,
		ItemCode:          r.ItemCode,
		Name:              r.Name,
		Description:       r.Description,
		Unit:              r.Unit,
		Price:             r.Price,
		DiscountType:      r.DiscountType.OrNone(),
		DiscountValue:     r.DiscountValue,
		DiscountStartDate: r.DiscountStartDate.Value,
		DiscountEndDate:   r.DiscountEndDate.Value,
		Stock:             r.Stock,
		IsActive:          r.IsActive,
	}
}

type updateProductRequest struct {
	CategoryID        *uuid.UUID            `json:"category_id"`
	ItemCode          *string               `json:"item_code" validate:"omitempty,max=50"`
	Name              *string               `json:"name" validate:"omitempty,max=200"`
	Description       *string               `json:"description"`
	Unit              *enums.ProductUnit    `json:"unit"`
	Price             *decimal.Decimal      `json:"price"`
	DiscountType      *enums.DiscountType   `json:"discount_type"`
	DiscountValue     types.NullableDecimal `json:"discount_value"`
	DiscountStartDate types.NullableDate    `json:"discount_start_date"`
	DiscountEndDate   types.NullableDate    `json:"discount_end_date"`
	Stock             *int                  `json:"stock" validate:"omitempty,gte=0"`
	IsActive          *bool                 `json:"is_active"`
	Reason            *string               `json:"reason" validate:"omitempty,max=255"`
}

func (r updateProductRequest) toInput(changedBy *uuid.UUID) product.UpdateProductInput {
	return product.UpdateProductInput{
		CategoryID:        r.CategoryID,
		ItemCode:          r.ItemCode,
		Name:              r.Name,
		Description:       r.Description,
		Unit:              r.Unit,
		Price:             r.Price,
		DiscountType:      r.DiscountType,
		DiscountValue:     r.DiscountValue,
		DiscountStartDate: r.DiscountStartDate,
		DiscountEndDate:   r.DiscountEndDate,
		Stock:             r.Stock,
		IsActive:          r.IsActive,
		Reason:            r.Reason,
		ChangedBy:         changedBy,
	}
}

type stockAdjustmentRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required,max=255"`
}

// ProductList browses the catalog with filters, sort and pagination.
func ProductList(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		input, err := parseProductListQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListProducts(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, "Products retrieved successfully", page)
	}
}

func parseProductListQuery(r *http.Request) (product.ListProductsInput, error) {
	var input product.ListProductsInput
	params, err := validators.Pagination(r)
	if err != nil {
		return input, err
	}
	input.Pagination = params

	sort := validators.QueryString(r, "sort")
	if _, err := product.ParseSort(sort); err != nil {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "the given data was invalid").
			WithDetails(map[string]string{"sort": err.Error()})
	}
	input.Sort = sort

	f := &input.Filters
	f.Search = validators.QueryString(r, "search")
	if f.CategoryID, err = validators.QueryUUID(r, "category_id"); err != nil {
		return input, err
	}
	includeSubs, err := validators.QueryBool(r, "include_subcategories")
	if err != nil {
		return input, err
	}
	f.IncludeSubcategories = includeSubs == nil || *includeSubs
	if f.MinPrice, err = validators.QueryDecimal(r, "min_price"); err != nil {
		return input, err
	}
	if f.MaxPrice, err = validators.QueryDecimal(r, "max_price"); err != nil {
		return input, err
	}
	if f.InStock, err = validators.QueryBool(r, "in_stock"); err != nil {
		return input, err
	}
	if f.OnDiscount, err = validators.QueryBool(r, "on_discount"); err != nil {
		return input, err
	}
	if f.IsActive, err = validators.QueryBool(r, "is_active"); err != nil {
		return input, err
	}
	return input, nil
}

func ProductDetail(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "productId", "product")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.GetProduct(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Product retrieved successfully", dto)
	}
}

func ProductCreate(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.CreateProduct(r.Context(), body.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, "Product created successfully", dto)
	}
}

// ProductUpdate applies a partial update. Price and discount changes are
// attributed to the authenticated user in the audit trail.
func ProductUpdate(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "productId", "product")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.UpdateProduct(r.Context(), id, body.toInput(actorUserID(r)))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Product updated successfully", dto)
	}
}

func ProductDelete(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "productId", "product")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.DeleteProduct(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Product deleted successfully", nil)
	}
}

func ProductAdjustStock(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "productId", "product")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body stockAdjustmentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.AdjustStock(r.Context(), id, product.StockAdjustmentInput{
			Delta:  body.Delta,
			Reason: body.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Stock adjusted successfully", dto)
	}
}

// ProductUploadImage accepts a multipart form with an "image" file field.
func ProductUploadImage(svc product.Service, maxBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "productId", "product")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var tooLarge *http.MaxBytesError
			message := "image must be sent as multipart/form-data"
			if errors.As(err, &tooLarge) {
				message = "image is too large"
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "the given data was invalid").
				WithDetails(map[string]string{"image": message}))
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("image")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "the given data was invalid").
				WithDetails(map[string]string{"image": "image is required"}))
			return
		}
		defer file.Close()

		dto, err := svc.UploadImage(r.Context(), id, product.ImageUploadInput{
			Filename: header.Filename,
			Body:     file,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Product image uploaded successfully", dto)
	}
}

// ProductPriceHistory lists the audit trail of one product, newest first.
func ProductPriceHistory(products product.Service, history priceupdates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "productId", "product")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if _, err := products.GetProduct(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, params, err := parseHistoryQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.ProductID = &id
		page, err := history.History(r.Context(), priceupdates.HistoryInput{Filter: filter, Params: params})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, "Price history retrieved successfully", page)
	}
}

// actorUserID returns the authenticated user id, if any.
func actorUserID(r *http.Request) *uuid.UUID {
	actor := middleware.ActorFromContext(r.Context())
	if actor == nil || actor.UserID == uuid.Nil {
		return nil
	}
	id := actor.UserID
	return &id
}

func endOfDay(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	next := t.AddDate(0, 0, 1)
	return &next
}

