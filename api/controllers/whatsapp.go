package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/groceryhub-backend/api/middleware"
	"github.com/angelmondragon/groceryhub-backend/api/responses"
	"github.com/angelmondragon/groceryhub-backend/api/validators"
	"github.com/angelmondragon/groceryhub-backend/internal/whatsapp"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
)

type whatsAppSendRequest struct {
	CustomerID *uuid.UUID `json:"customer_id" validate:"required_without=ToNumber"`
	ToNumber   *string    `json:"to_number" validate:"omitempty,max=30"`
	Body       string     `json:"body" validate:"required,max=1600"`
	MediaURL   *string    `json:"media_url" validate:"omitempty,url"`
	Force      bool       `json:"force"`
}

type whatsAppBroadcastRequest struct {
	CustomerIDs []uuid.UUID `json:"customer_ids" validate:"omitempty,max=5000"`
	Body        string      `json:"body" validate:"required,max=1600"`
	MediaURL    *string     `json:"media_url" validate:"omitempty,url"`
}

type whatsAppPriceListRequest struct {
	CategoryID  *uuid.UUID  `json:"category_id"`
	CustomerIDs []uuid.UUID `json:"customer_ids" validate:"omitempty,max=5000"`
	Message     *string     `json:"message" validate:"omitempty,max=1000"`
}

// WhatsAppSend queues a single message. The 202 reflects the async dispatch.
func WhatsAppSend(svc whatsapp.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body whatsAppSendRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		msg, err := svc.Send(r.Context(), whatsapp.SendInput{
			CustomerID: body.CustomerID,
			ToNumber:   body.ToNumber,
			Body:       body.Body,
			MediaURL:   body.MediaURL,
			Force:      body.Force,
			Actor:      middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, "Message queued for delivery", msg)
	}
}

// WhatsAppBroadcast queues one message per opted-in recipient. An empty
// customer_ids list targets every opted-in active customer.
func WhatsAppBroadcast(svc whatsapp.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body whatsAppBroadcastRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Broadcast(r.Context(), whatsapp.BroadcastInput{
			CustomerIDs: body.CustomerIDs,
			Body:        body.Body,
			MediaURL:    body.MediaURL,
			Actor:       middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, "Broadcast queued for delivery", result)
	}
}

func WhatsAppPriceList(svc whatsapp.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body whatsAppPriceListRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.SendPriceList(r.Context(), whatsapp.PriceListInput{
			CategoryID:  body.CategoryID,
			CustomerIDs: body.CustomerIDs,
			Message:     body.Message,
			Actor:       middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, "Price list queued for delivery", result)
	}
}

func WhatsAppMessageList(svc whatsapp.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.Pagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := parseMessageFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.ListMessages(r.Context(), whatsapp.ListInput{Filter: filter, Pagination: params})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, "Messages retrieved successfully", page)
	}
}

func WhatsAppMessageDetail(svc whatsapp.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "messageId", "message")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		msg, err := svc.GetMessage(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Message retrieved successfully", msg)
	}
}

// WhatsAppMessageRetry requeues a failed message with a fresh attempt budget.
func WhatsAppMessageRetry(svc whatsapp.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "messageId", "message")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		msg, err := svc.Retry(r.Context(), id, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusAccepted, "Message requeued for delivery", msg)
	}
}

func parseMessageFilter(r *http.Request) (whatsapp.ListFilter, error) {
	var filter whatsapp.ListFilter
	var err error
	if raw := validators.QueryString(r, "status"); raw != "" {
		status, perr := enums.ParseWhatsAppMessageStatus(raw)
		if perr != nil {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, "the given data was invalid").
				WithDetails(map[string]string{"status": "status must be one of queued, sending, sent, retrying, failed"})
		}
		filter.Status = &status
	}
	if raw := validators.QueryString(r, "kind"); raw != "" {
		kind, perr := enums.ParseWhatsAppMessageKind(raw)
		if perr != nil {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, "the given data was invalid").
				WithDetails(map[string]string{"kind": "kind must be one of single, broadcast, price_list, order_update"})
		}
		filter.Kind = &kind
	}
	if filter.CustomerID, err = validators.QueryUUID(r, "customer_id"); err != nil {
		return filter, err
	}
	if filter.BroadcastID, err = validators.QueryUUID(r, "broadcast_id"); err != nil {
		return filter, err
	}
	return filter, nil
}
