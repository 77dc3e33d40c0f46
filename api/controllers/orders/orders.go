package orders

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/groceryhub-backend/api/middleware"
	"github.com/angelmondragon/groceryhub-backend/api/responses"
	"github.com/angelmondragon/groceryhub-backend/api/validators"
	"github.com/angelmondragon/groceryhub-backend/internal/documents"
	internalorders "github.com/angelmondragon/groceryhub-backend/internal/orders"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
)

type placeItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=10000"`
}

type placeOrderRequest struct {
	CustomerID      *uuid.UUID         `json:"customer_id"`
	CustomerName    string             `json:"customer_name" validate:"required_without=CustomerID,max=150"`
	CustomerPhone   *string            `json:"customer_phone" validate:"omitempty,max=30"`
	Items           []placeItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
	Notes           *string            `json:"notes" validate:"omitempty,max=1000"`
	DeliveryAddress *string            `json:"delivery_address" validate:"omitempty,max=1000"`
}

func (r placeOrderRequest) toInput() internalorders.PlaceInput {
	items := make([]internalorders.PlaceItemInput, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, internalorders.PlaceItemInput{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return internalorders.PlaceInput{
		CustomerID:      r.CustomerID,
		CustomerName:    r.CustomerName,
		CustomerPhone:   r.CustomerPhone,
		Items:           items,
		Notes:           r.Notes,
		DeliveryAddress: r.DeliveryAddress,
		Source:          enums.OrderSourceAPI,
	}
}

type updateStatusRequest struct {
	Status string  `json:"status" validate:"required"`
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Place creates an order from the public API.
func Place(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}
		var body placeOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := body.toInput()
		input.Actor = middleware.ActorFromContext(r.Context())

		order, err := svc.Place(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, "Order placed successfully", order)
	}
}

// List returns filtered order pages for the back office.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.Pagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := buildListFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, "Orders retrieved successfully", page)
	}
}

func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "orderId", "order")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Order retrieved successfully", order)
	}
}

// DetailByNumber is the public lookup by human readable order number.
func DetailByNumber(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
		if number == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}
		order, err := svc.GetByNumber(r.Context(), number)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Order retrieved successfully", order)
	}
}

func UpdateStatus(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "orderId", "order")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := parseStatus(body.Status, "status")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.UpdateStatus(r.Context(), internalorders.UpdateStatusInput{
			OrderID: id,
			Status:  *status,
			Reason:  body.Reason,
			Actor:   middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Order status updated successfully", order)
	}
}

// Cancel cancels an order and restores the reserved stock.
func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "orderId", "order")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body cancelRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Cancel(r.Context(), internalorders.CancelInput{
			OrderID: id,
			Reason:  body.Reason,
			Actor:   middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Order cancelled successfully", order)
	}
}

// Invoice streams the order invoice as a PDF attachment.
func Invoice(docs documents.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "orderId", "order")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		doc, err := docs.Invoice(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.Filename))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(doc.Content)
	}
}

func buildListFilters(r *http.Request) (internalorders.ListFilters, error) {
	var filters internalorders.ListFilters
	var err error

	if raw := validators.QueryString(r, "status"); raw != "" {
		if filters.Status, err = parseStatus(raw, "status"); err != nil {
			return filters, err
		}
	}
	if raw := validators.QueryString(r, "source"); raw != "" {
		source := enums.OrderSource(raw)
		if !source.IsValid() {
			return filters, invalidFilter("source", "source must be one of api, web")
		}
		filters.Source = &source
	}
	if filters.CustomerID, err = validators.QueryUUID(r, "customer_id"); err != nil {
		return filters, err
	}
	if filters.DateFrom, err = validators.QueryDate(r, "date_from"); err != nil {
		return filters, err
	}
	if filters.DateTo, err = validators.QueryDate(r, "date_to"); err != nil {
		return filters, err
	}
	if filters.DateFrom != nil && filters.DateTo != nil && filters.DateTo.Before(*filters.DateFrom) {
		return filters, invalidFilter("date_to", "date_to must be a date after or equal to date_from")
	}
	filters.Query = validators.QueryString(r, "search")
	return filters, nil
}

func parseStatus(raw, field string) (*enums.OrderStatus, error) {
	status, err := enums.ParseOrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return nil, invalidFilter(field, fmt.Sprintf("%s must be one of pending, confirmed, processing, ready, delivered, cancelled", field))
	}
	return &status, nil
}

func invalidFilter(field, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "the given data was invalid").
		WithDetails(map[string]string{field: message})
}
