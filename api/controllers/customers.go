package controllers

import (
	"net/http"

	"github.com/angelmondragon/groceryhub-backend/api/responses"
	"github.com/angelmondragon/groceryhub-backend/api/validators"
	"github.com/angelmondragon/groceryhub-backend/internal/customers"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
)

type customerRequest struct {
	Name           *string `json:"name" validate:"omitempty,max=150"`
	Email          *string `json:"email" validate:"omitempty,email,max=255"`
	Phone          *string `json:"phone" validate:"omitempty,max=30"`
	WhatsAppNumber *string `json:"whatsapp_number" validate:"omitempty,max=30"`
	Address        *string `json:"address"`
	Notes          *string `json:"notes"`
	WhatsAppOptIn  *bool   `json:"whatsapp_opt_in"`
	IsActive       *bool   `json:"is_active"`
}

type createCustomerRequest struct {
	customerRequest
	Name string `json:"name" validate:"required,max=150"`
}

func CustomerList(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.Pagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		optIn, err := validators.QueryBool(r, "whatsapp_opt_in")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		isActive, err := validators.QueryBool(r, "is_active")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), customers.ListInput{
			Filter: customers.ListFilter{
				Search:        validators.QueryString(r, "search"),
				WhatsAppOptIn: optIn,
				IsActive:      isActive,
			},
			Pagination: params,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, "Customers retrieved successfully", page)
	}
}

func CustomerDetail(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "customerId", "customer")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Customer retrieved successfully", dto)
	}
}

func CustomerCreate(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createCustomerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Create(r.Context(), customers.CreateInput{
			Name:           body.Name,
			Email:          body.Email,
			Phone:          body.Phone,
			WhatsAppNumber: body.WhatsAppNumber,
			Address:        body.Address,
			Notes:          body.Notes,
			WhatsAppOptIn:  body.WhatsAppOptIn,
			IsActive:       body.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, "Customer created successfully", dto)
	}
}

func CustomerUpdate(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "customerId", "customer")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body customerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dto, err := svc.Update(r.Context(), id, customers.UpdateInput{
			Name:           body.Name,
			Email:          body.Email,
			Phone:          body.Phone,
			WhatsAppNumber: body.WhatsAppNumber,
			Address:        body.Address,
			Notes:          body.Notes,
			WhatsAppOptIn:  body.WhatsAppOptIn,
			IsActive:       body.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Customer updated successfully", dto)
	}
}

// CustomerDelete hard-deletes customers without orders and deactivates the rest.
func CustomerDelete(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "customerId", "customer")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		deactivated, err := svc.Delete(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		message := "Customer deleted successfully"
		if deactivated {
			message = "Customer has orders and was deactivated instead of deleted"
		}
		responses.WriteSuccess(w, message, map[string]bool{"deactivated": deactivated})
	}
}

func CustomerOrders(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "customerId", "customer")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.Pagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.OrderHistory(r.Context(), id, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, "Customer orders retrieved successfully", page)
	}
}
