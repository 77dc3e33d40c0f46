package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/groceryhub-backend/api/responses"
	"github.com/angelmondragon/groceryhub-backend/api/validators"
	"github.com/angelmondragon/groceryhub-backend/internal/priceupdates"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
)

type bulkPriceUpdateRequest struct {
	CategoryID     *uuid.UUID               `json:"category_id"`
	ProductIDs     []uuid.UUID              `json:"product_ids" validate:"omitempty,max=1000"`
	AdjustmentType enums.BulkAdjustmentType `json:"adjustment_type" validate:"required,oneof=percentage fixed"`
	Amount         decimal.Decimal          `json:"amount"`
	Reason         *string                  `json:"reason" validate:"omitempty,max=255"`
}

// PriceUpdateHistory lists the price audit trail across all products.
func PriceUpdateHistory(svc priceupdates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, params, err := parseHistoryQuery(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.ProductID, err = validators.QueryUUID(r, "product_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.History(r.Context(), priceupdates.HistoryInput{Filter: filter, Params: params})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, "Price history retrieved successfully", page)
	}
}

// PriceUpdateBulk adjusts every targeted product price in one batch.
func PriceUpdateBulk(svc priceupdates.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body bulkPriceUpdateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.BulkUpdate(r.Context(), priceupdates.BulkInput{
			CategoryID:     body.CategoryID,
			ProductIDs:     body.ProductIDs,
			AdjustmentType: body.AdjustmentType,
			Amount:         body.Amount,
			Reason:         body.Reason,
			ChangedBy:      actorUserID(r),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Prices updated successfully", result)
	}
}

// parseHistoryQuery reads batch_id, change_type and the inclusive from/to
// date range shared by the history endpoints.
func parseHistoryQuery(r *http.Request) (priceupdates.HistoryFilter, pagination.Params, error) {
	var filter priceupdates.HistoryFilter
	params, err := validators.Pagination(r)
	if err != nil {
		return filter, params, err
	}
	if filter.BatchID, err = validators.QueryUUID(r, "batch_id"); err != nil {
		return filter, params, err
	}
	if raw := validators.QueryString(r, "change_type"); raw != "" {
		changeType, err := enums.ParsePriceChangeType(raw)
		if err != nil {
			return filter, params, pkgerrors.New(pkgerrors.CodeValidation, "the given data was invalid").
				WithDetails(map[string]string{"change_type": "change_type must be one of manual, bulk, discount"})
		}
		filter.ChangeType = &changeType
	}
	if filter.From, err = validators.QueryDate(r, "from"); err != nil {
		return filter, params, err
	}
	to, err := validators.QueryDate(r, "to")
	if err != nil {
		return filter, params, err
	}
	filter.To = endOfDay(to)
	return filter, params, nil
}
