package orders

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/pkg/db"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
	"github.com/angelmondragon/groceryhub-backend/pkg/pricing"
)

const (
	maxItemsPerOrder   = 100
	maxQuantityPerLine = 10000
	maxCancelReason    = 500
	maxCustomerName    = 150
	placeAttempts      = 3
	orderCounterTTL    = 48 * time.Hour
)

// Service defines order placement and lifecycle operations.
type Service interface {
	Place(ctx context.Context, input PlaceInput) (*OrderDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*OrderDTO, error)
	GetByNumber(ctx context.Context, number string) (*OrderDTO, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (pagination.Result[OrderDTO], error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderDTO, error)
	Cancel(ctx context.Context, input CancelInput) (*OrderDTO, error)
}

// PlaceItemInput is one requested line. Lines for the same product are merged.
type PlaceItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// PlaceInput carries either a registered customer or guest contact details.
type PlaceInput struct {
	CustomerID      *uuid.UUID
	CustomerName    string
	CustomerPhone   *string
	Items           []PlaceItemInput
	Notes           *string
	DeliveryAddress *string
	Source          enums.OrderSource
	Actor           *outbox.ActorRef
}

type UpdateStatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	Reason  *string
	Actor   *outbox.ActorRef
}

type CancelInput struct {
	OrderID uuid.UUID
	Reason  string
	Actor   *outbox.ActorRef
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outbox.Emitter
	counters counterStore
	phones   PhoneNormalizer
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(repo Repository, tx txRunner, emitter outbox.Emitter, counters counterStore, phones PhoneNormalizer, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if counters == nil {
		return nil, fmt.Errorf("counter store required")
	}
	if phones == nil {
		return nil, fmt.Errorf("phone normalizer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		outbox:   emitter,
		counters: counters,
		phones:   phones,
		logg:     logg,
		now:      time.Now,
	}, nil
}

// Place validates the request, snapshots prices and decrements stock in one
// transaction. A collision on the order number retries with a fresh number.
func (s *service) Place(ctx context.Context, input PlaceInput) (*OrderDTO, error) {
	lines, err := validatePlaceInput(&input)
	if err != nil {
		return nil, err
	}
	guestPhone, err := s.phones.NormalizeOptional(input.CustomerPhone)
	if err != nil {
		return nil, validationError(map[string]string{"customer_phone": "customer_phone is not a valid phone number"})
	}
	input.CustomerPhone = guestPhone

	var order *models.Order
	for attempt := 1; attempt <= placeAttempts; attempt++ {
		placedAt := s.now()
		number, err := s.nextOrderNumber(ctx, placedAt)
		if err != nil {
			return nil, err
		}
		order, err = s.placeOnce(ctx, input, lines, number, placedAt)
		if err == nil {
			break
		}
		if !db.IsUniqueViolation(err, "order_number") || attempt == placeAttempts {
			if pkgerrors.As(err) != nil {
				return nil, err
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: place order")
		}
		s.logg.Warn(s.logg.WithField(ctx, "order_number", number), "order number collision, retrying")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":     order.ID.String(),
		"order_number": order.OrderNumber,
		"total":        order.Total.StringFixed(2),
		"source":       string(order.Source),
	})
	s.logg.Info(logCtx, "order.placed")
	return s.Get(ctx, order.ID)
}

func (s *service) placeOnce(ctx context.Context, input PlaceInput, lines []PlaceItemInput, number string, placedAt time.Time) (*models.Order, error) {
	order := &models.Order{
		OrderNumber:     number,
		CustomerID:      input.CustomerID,
		CustomerName:    strings.TrimSpace(input.CustomerName),
		CustomerPhone:   input.CustomerPhone,
		Status:          enums.OrderStatusPending,
		Source:          input.Source,
		Notes:           trimOptional(input.Notes),
		DeliveryAddress: trimOptional(input.DeliveryAddress),
		PlacedAt:        placedAt.UTC(),
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if input.CustomerID != nil {
			if err := applyCustomer(ctx, repo, order, *input.CustomerID); err != nil {
				return err
			}
		}

		ids := make([]uuid.UUID, 0, len(lines))
		for _, line := range lines {
			ids = append(ids, line.ProductID)
		}
		products, err := repo.LockProducts(ctx, ids)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: lock products")
		}
		byID := make(map[uuid.UUID]*models.Product, len(products))
		for i := range products {
			byID[products[i].ID] = &products[i]
		}

		fields := map[string]string{}
		priced := make([]pricing.Line, 0, len(lines))
		for i, line := range lines {
			product, ok := byID[line.ProductID]
			switch {
			case !ok:
				fields[fmt.Sprintf("items.%d.product_id", i)] = "the selected product does not exist"
				continue
			case !product.IsActive:
				fields[fmt.Sprintf("items.%d.product_id", i)] = fmt.Sprintf("%s is not available", product.Name)
				continue
			case product.Stock < line.Quantity:
				fields[fmt.Sprintf("items.%d.quantity", i)] = fmt.Sprintf("insufficient stock for %s (available %d)", product.ItemCode, product.Stock)
				continue
			}
			discount := pricing.Discount{
				Type:      product.DiscountType,
				Value:     product.DiscountValue,
				StartDate: product.DiscountStartDate,
				EndDate:   product.DiscountEndDate,
			}
			snapshot := pricing.LineFor(product.Price, discount, placedAt, line.Quantity)
			priced = append(priced, snapshot)
			productID := product.ID
			order.Items = append(order.Items, models.OrderItem{
				ProductID:      &productID,
				ItemCode:       product.ItemCode,
				ProductName:    product.Name,
				Unit:           product.Unit,
				UnitPrice:      snapshot.UnitPrice,
				DiscountAmount: snapshot.DiscountAmount,
				FinalUnitPrice: snapshot.FinalUnitPrice,
				Quantity:       snapshot.Quantity,
				LineTotal:      snapshot.LineTotal,
			})
		}
		if len(fields) > 0 {
			return validationError(fields)
		}

		for _, item := range order.Items {
			ok, err := repo.DecrementStock(ctx, *item.ProductID, item.Quantity)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: decrement stock")
			}
			if !ok {
				return stockChangedError(item.ItemCode)
			}
		}

		totals := pricing.Summarize(priced)
		order.Subtotal = totals.Subtotal
		order.DiscountTotal = totals.DiscountTotal
		order.Total = totals.Total

		if err := repo.CreateOrder(ctx, order); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         input.Actor,
			OccurredAt:    order.PlacedAt,
			Data: payloads.OrderPlacedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				CustomerID:  order.CustomerID,
				Status:      order.Status,
				Total:       order.Total,
				ItemCount:   itemCount(order.Items),
				Source:      order.Source,
				PlacedAt:    order.PlacedAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// stockChangedError reports a decrement that lost a race with another order.
func stockChangedError(itemCode string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("stock for %s changed while placing the order", itemCode))
}

// applyCustomer checks the customer and fills the contact snapshot the request
// left empty.
func applyCustomer(ctx context.Context, repo Repository, order *models.Order, id uuid.UUID) error {
	customer, err := repo.FindCustomer(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return validationError(map[string]string{"customer_id": "the selected customer does not exist"})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load customer")
	}
	if !customer.IsActive {
		return validationError(map[string]string{"customer_id": "the selected customer is inactive"})
	}
	if order.CustomerName == "" {
		order.CustomerName = customer.Name
	}
	if order.CustomerPhone == nil {
		if customer.WhatsAppNumber != nil {
			order.CustomerPhone = customer.WhatsAppNumber
		} else {
			order.CustomerPhone = customer.Phone
		}
	}
	if order.DeliveryAddress == nil {
		order.DeliveryAddress = customer.Address
	}
	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*OrderDTO, error) {
	order, err := s.repo.FindOrder(ctx, id)
	if err != nil {
		return nil, mapLoadError(err)
	}
	dto := NewOrderDTO(order)
	return &dto, nil
}

func (s *service) GetByNumber(ctx context.Context, number string) (*OrderDTO, error) {
	order, err := s.repo.FindOrderByNumber(ctx, number)
	if err != nil {
		return nil, mapLoadError(err)
	}
	dto := NewOrderDTO(order)
	return &dto, nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (pagination.Result[OrderDTO], error) {
	params = pagination.Normalize(params.Page, params.PerPage)
	if filters.DateFrom != nil && filters.DateTo != nil && filters.DateTo.Before(*filters.DateFrom) {
		return pagination.Result[OrderDTO]{}, validationError(map[string]string{"date_to": "date_to must be on or after date_from"})
	}
	rows, total, err := s.repo.ListOrders(ctx, filters, params)
	if err != nil {
		return pagination.Result[OrderDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list orders")
	}
	items := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		items = append(items, NewOrderDTO(&rows[i]))
	}
	return pagination.NewResult(items, params, total), nil
}

// UpdateStatus moves the order along the lifecycle. Moving to cancelled goes
// through Cancel so stock is restored.
func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*OrderDTO, error) {
	if !input.Status.IsValid() {
		return nil, validationError(map[string]string{"status": "status must be one of pending, confirmed, processing, ready, delivered, cancelled"})
	}
	if input.Status == enums.OrderStatusCancelled {
		reason := ""
		if input.Reason != nil {
			reason = *input.Reason
		}
		return s.Cancel(ctx, CancelInput{OrderID: input.OrderID, Reason: reason, Actor: input.Actor})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return mapLoadError(err)
		}
		if err := checkTransition(order.Status, input.Status); err != nil {
			return err
		}
		if err := repo.UpdateOrderStatus(ctx, order.ID, map[string]any{"status": input.Status}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update order status")
		}
		return s.emitStatusChanged(ctx, tx, order, input.Status, trimmedValue(input.Reason), input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, input.OrderID)
}

// Cancel cancels the order and returns every snapshot quantity to stock.
func (s *service) Cancel(ctx context.Context, input CancelInput) (*OrderDTO, error) {
	reason := strings.TrimSpace(input.Reason)
	switch {
	case reason == "":
		return nil, validationError(map[string]string{"reason": "reason is required"})
	case utf8.RuneCountInString(reason) > maxCancelReason:
		return nil, validationError(map[string]string{"reason": fmt.Sprintf("reason may not be greater than %d characters", maxCancelReason)})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindOrderForUpdate(ctx, input.OrderID)
		if err != nil {
			return mapLoadError(err)
		}
		if err := checkTransition(order.Status, enums.OrderStatusCancelled); err != nil {
			return err
		}
		for _, item := range order.Items {
			if item.ProductID == nil {
				continue
			}
			if err := repo.RestoreStock(ctx, *item.ProductID, item.Quantity); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: restore stock")
			}
		}
		now := s.now().UTC()
		updates := map[string]any{
			"status":        enums.OrderStatusCancelled,
			"cancelled_at":  now,
			"cancel_reason": reason,
		}
		if err := repo.UpdateOrderStatus(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: cancel order")
		}
		return s.emitStatusChanged(ctx, tx, order, enums.OrderStatusCancelled, reason, input.Actor)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": input.OrderID.String(), "reason": reason})
	s.logg.Info(logCtx, "order.cancelled")
	return s.Get(ctx, input.OrderID)
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, next enums.OrderStatus, reason string, actor *outbox.ActorRef) error {
	changedAt := s.now().UTC()
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actor,
		OccurredAt:    changedAt,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:        order.ID,
			OrderNumber:    order.OrderNumber,
			CustomerID:     order.CustomerID,
			PreviousStatus: order.Status,
			Status:         next,
			Reason:         reason,
			ChangedAt:      changedAt,
		},
	})
}

// nextOrderNumber formats ORD-YYYYMMDD-NNNN from the daily Redis counter. When
// Redis is unreachable the sequence falls back to the day's order count. The
// day is always the UTC calendar day.
func (s *service) nextOrderNumber(ctx context.Context, placedAt time.Time) (string, error) {
	placedAt = placedAt.UTC()
	day := placedAt.Format("20060102")
	seq, err := s.counters.IncrWithTTL(ctx, s.counters.CounterKey("orders:"+day), orderCounterTTL)
	if err != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"day": day, "error": err.Error()})
		s.logg.Warn(logCtx, "order counter unavailable, falling back to database count")

		y, m, d := placedAt.Date()
		start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		count, dbErr := s.repo.CountOrdersPlacedBetween(ctx, start, start.AddDate(0, 0, 1))
		if dbErr != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, dbErr, "db: count orders for sequence")
		}
		seq = count + 1
	}
	return FormatOrderNumber(placedAt, seq), nil
}

// FormatOrderNumber renders the public order number for the UTC day of day.
func FormatOrderNumber(day time.Time, seq int64) string {
	return fmt.Sprintf("ORD-%s-%04d", day.UTC().Format("20060102"), seq)
}

// validatePlaceInput checks the request shape and merges duplicate product
// lines, keeping first-seen order.
func validatePlaceInput(input *PlaceInput) ([]PlaceItemInput, error) {
	fields := map[string]string{}
	if input.Source == "" {
		input.Source = enums.OrderSourceAPI
	}
	if !input.Source.IsValid() {
		fields["source"] = "source must be api or web"
	}
	if input.CustomerID == nil && strings.TrimSpace(input.CustomerName) == "" {
		fields["customer_name"] = "customer_name is required when customer_id is absent"
	}
	if utf8.RuneCountInString(strings.TrimSpace(input.CustomerName)) > maxCustomerName {
		fields["customer_name"] = fmt.Sprintf("customer_name may not be greater than %d characters", maxCustomerName)
	}
	switch {
	case len(input.Items) == 0:
		fields["items"] = "at least one item is required"
	case len(input.Items) > maxItemsPerOrder:
		fields["items"] = fmt.Sprintf("an order may contain at most %d items", maxItemsPerOrder)
	}

	merged := make([]PlaceItemInput, 0, len(input.Items))
	index := map[uuid.UUID]int{}
	for i, item := range input.Items {
		if item.ProductID == uuid.Nil {
			fields[fmt.Sprintf("items.%d.product_id", i)] = "product_id is required"
			continue
		}
		if item.Quantity < 1 {
			fields[fmt.Sprintf("items.%d.quantity", i)] = "quantity must be at least 1"
			continue
		}
		if pos, ok := index[item.ProductID]; ok {
			merged[pos].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	for i, item := range merged {
		if item.Quantity > maxQuantityPerLine {
			fields[fmt.Sprintf("items.%d.quantity", i)] = fmt.Sprintf("quantity may not be greater than %d", maxQuantityPerLine)
		}
	}
	if len(fields) > 0 {
		return nil, validationError(fields)
	}
	return merged, nil
}

func checkTransition(current, next enums.OrderStatus) error {
	if current.CanTransitionTo(next) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot change order status from %s to %s", current, next)).
		WithDetails(map[string]any{
			"current_status":      current.String(),
			"requested_status":    next.String(),
			"allowed_transitions": statusStrings(current.AllowedTransitions()),
		})
}

func mapLoadError(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load order")
}

func itemCount(items []models.OrderItem) int {
	n := 0
	for _, item := range items {
		n += item.Quantity
	}
	return n
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

func trimmedValue(v *string) string {
	if t := trimOptional(v); t != nil {
		return *t
	}
	return ""
}

func validationError(fields map[string]string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "the given data was invalid").WithDetails(fields)
}
