package whatsapp

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
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
	"github.com/angelmondragon/groceryhub-backend/pkg/metrics"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox"
	"github.com/angelmondragon/groceryhub-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
)

const (
	maxBodyLength      = 1600
	defaultChunkSize   = 100
	defaultMaxAttempts = 3
	defaultStaleAfter  = 90 * time.Second
	priceListCaption   = "Here is our latest price list."
)

// Service queues WhatsApp messages and exposes the message log.
type Service interface {
	Send(ctx context.Context, input SendInput) (*MessageDTO, error)
	Broadcast(ctx context.Context, input BroadcastInput) (*BroadcastResult, error)
	SendPriceList(ctx context.Context, input PriceListInput) (*BroadcastResult, error)
	QueueOrderUpdate(ctx context.Context, input OrderUpdateInput) (*MessageDTO, error)
	ListMessages(ctx context.Context, input ListInput) (pagination.Result[MessageDTO], error)
	GetMessage(ctx context.Context, id uuid.UUID) (*MessageDTO, error)
	Retry(ctx context.Context, id uuid.UUID, actor *outbox.ActorRef) (*MessageDTO, error)
	RequeueDue(ctx context.Context, limit int) (int, error)
}

// SendInput targets either a customer or a raw number, never both.
type SendInput struct {
	CustomerID *uuid.UUID
	ToNumber   *string
	Body       string
	MediaURL   *string
	Force      bool
	Actor      *outbox.ActorRef
}

type BroadcastInput struct {
	CustomerIDs []uuid.UUID
	Body        string
	MediaURL    *string
	Actor       *outbox.ActorRef
}

type PriceListInput struct {
	CategoryID  *uuid.UUID
	CustomerIDs []uuid.UUID
	Message     *string
	Actor       *outbox.ActorRef
}

// OrderUpdateInput describes an order event worth telling the customer about.
type OrderUpdateInput struct {
	CustomerID  uuid.UUID
	OrderNumber string
	Status      enums.OrderStatus
	Total       *string
	Reason      string
}

type ListInput struct {
	Filter     ListFilter
	Pagination pagination.Params
}

type recipientStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	ListOptedIn(ctx context.Context, ids []uuid.UUID) ([]models.Customer, error)
}

// PhoneNormalizer converts raw input into E.164.
type PhoneNormalizer interface {
	Normalize(raw string) (string, error)
}

type priceListRenderer interface {
	PriceList(ctx context.Context, categoryID *uuid.UUID) ([]byte, error)
}

type mediaStore interface {
	Upload(ctx context.Context, object, contentType string, body io.Reader) (string, error)
}

// ServiceParams bundles the dependencies required to build the WhatsApp service.
type ServiceParams struct {
	Repo        *Repository
	DB          *db.Client
	Outbox      outbox.Emitter
	Recipients  recipientStore
	Phones      PhoneNormalizer
	PriceLists  priceListRenderer
	Media       mediaStore
	Metrics     *metrics.WhatsAppMetrics
	StoreName   string
	ChunkSize   int
	MaxAttempts int
	// StaleAfter is how long a message may sit in sending before the retry
	// sweep counts it as a failed attempt.
	StaleAfter time.Duration
	Logger     *logger.Logger
}

type service struct {
	repo       *Repository
	dbClient   *db.Client
	outbox     outbox.Emitter
	recipients recipientStore
	phones     PhoneNormalizer
	priceLists priceListRenderer
	media      mediaStore
	metrics    *metrics.WhatsAppMetrics
	storeName  string
	chunkSize  int
	attempts   int
	staleAfter time.Duration
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("whatsapp repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Recipients == nil {
		return nil, fmt.Errorf("customer store required")
	}
	if params.Phones == nil {
		return nil, fmt.Errorf("phone normalizer required")
	}
	if params.PriceLists == nil {
		return nil, fmt.Errorf("price list renderer required")
	}
	if params.Media == nil {
		return nil, fmt.Errorf("media store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	chunk := params.ChunkSize
	if chunk <= 0 {
		chunk = defaultChunkSize
	}
	return &service{
		repo:       params.Repo,
		dbClient:   params.DB,
		outbox:     params.Outbox,
		recipients: params.Recipients,
		phones:     params.Phones,
		priceLists: params.PriceLists,
		media:      params.Media,
		metrics:    params.Metrics,
		storeName:  strings.TrimSpace(params.StoreName),
		chunkSize:  chunk,
		attempts:   cmp.Or(params.MaxAttempts, defaultMaxAttempts),
		staleAfter: cmp.Or(params.StaleAfter, defaultStaleAfter),
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

func (s *service) Send(ctx context.Context, input SendInput) (*MessageDTO, error) {
	body := strings.TrimSpace(input.Body)
	media := trimOptional(input.MediaURL)
	fields := validateBody(body)
	hasCustomer := input.CustomerID != nil
	hasNumber := input.ToNumber != nil && strings.TrimSpace(*input.ToNumber) != ""
	switch {
	case hasCustomer && hasNumber:
		fields["to_number"] = "provide either customer_id or to_number, not both"
	case !hasCustomer && !hasNumber:
		fields["customer_id"] = "customer_id or to_number is required"
	}
	if len(fields) > 0 {
		return nil, validationError(fields)
	}

	msg := models.WhatsAppMessage{
		Body:     body,
		MediaURL: media,
		Kind:     enums.WhatsAppKindSingle,
	}
	if hasCustomer {
		customer, err := s.recipients.FindByID(ctx, *input.CustomerID)
		if err != nil {
			if db.IsNotFound(err) {
				return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load customer")
		}
		if customer.WhatsAppNumber == nil || *customer.WhatsAppNumber == "" {
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "customer has no whatsapp number")
		}
		if !input.Force && (!customer.WhatsAppOptIn || !customer.IsActive) {
			return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "customer has not opted in to whatsapp messages")
		}
		msg.CustomerID = &customer.ID
		msg.ToNumber = *customer.WhatsAppNumber
	} else {
		number, err := s.phones.Normalize(*input.ToNumber)
		if err != nil {
			return nil, validationError(map[string]string{"to_number": "the to_number is not a valid phone number"})
		}
		msg.ToNumber = number
	}

	rows := []models.WhatsAppMessage{msg}
	if err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.enqueue(ctx, tx, rows, nil, input.Actor)
		return err
	}); err != nil {
		return nil, err
	}
	s.metrics.AddQueued(string(enums.WhatsAppKindSingle), 1)
	dto := NewMessageDTO(&rows[0])
	return &dto, nil
}

func (s *service) Broadcast(ctx context.Context, input BroadcastInput) (*BroadcastResult, error) {
	body := strings.TrimSpace(input.Body)
	if fields := validateBody(body); len(fields) > 0 {
		return nil, validationError(fields)
	}
	return s.broadcast(ctx, enums.WhatsAppKindBroadcast, input.CustomerIDs, body, trimOptional(input.MediaURL), input.Actor)
}

func (s *service) SendPriceList(ctx context.Context, input PriceListInput) (*BroadcastResult, error) {
	caption := priceListCaption
	if input.Message != nil && strings.TrimSpace(*input.Message) != "" {
		caption = strings.TrimSpace(*input.Message)
	}
	if fields := validateBody(caption); len(fields) > 0 {
		fields["message"] = fields["body"]
		delete(fields, "body")
		return nil, validationError(fields)
	}

	// Fail before rendering when nobody would receive the file.
	targets, err := s.recipients.ListOptedIn(ctx, input.CustomerIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list recipients")
	}
	if len(targets) == 0 {
		return nil, noRecipientsError()
	}

	pdf, err := s.priceLists.PriceList(ctx, input.CategoryID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	object := fmt.Sprintf("price-lists/%s-%s.pdf", now.Format("20060102"), uuid.NewString())
	url, err := s.media.Upload(ctx, object, "application/pdf", bytes.NewReader(pdf))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "upload price list")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"object": object, "bytes": len(pdf)}), "whatsapp.price_list_uploaded")

	result, err := s.queueBroadcast(ctx, enums.WhatsAppKindPriceList, targets, caption, &url, input.Actor)
	if err != nil {
		return nil, err
	}
	result.MediaURL = &url
	return result, nil
}

func (s *service) broadcast(ctx context.Context, kind enums.WhatsAppMessageKind, ids []uuid.UUID, body string, media *string, actor *outbox.ActorRef) (*BroadcastResult, error) {
	targets, err := s.recipients.ListOptedIn(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list recipients")
	}
	if len(targets) == 0 {
		return nil, noRecipientsError()
	}
	return s.queueBroadcast(ctx, kind, targets, body, media, actor)
}

func (s *service) queueBroadcast(ctx context.Context, kind enums.WhatsAppMessageKind, targets []models.Customer, body string, media *string, actor *outbox.ActorRef) (*BroadcastResult, error) {
	broadcastID := uuid.New()
	rows := make([]models.WhatsAppMessage, 0, len(targets))
	for i := range targets {
		c := targets[i]
		if c.WhatsAppNumber == nil {
			continue
		}
		rows = append(rows, models.WhatsAppMessage{
			CustomerID:  &c.ID,
			ToNumber:    *c.WhatsAppNumber,
			Body:        body,
			MediaURL:    media,
			Kind:        kind,
			BroadcastID: &broadcastID,
		})
	}

	var chunks int
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.enqueue(ctx, tx, rows, &broadcastID, actor)
		chunks = n
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AddQueued(string(kind), len(rows))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"broadcast_id": broadcastID.String(),
		"kind":         string(kind),
		"recipients":   len(rows),
		"chunks":       chunks,
	}), "whatsapp.broadcast_queued")

	return &BroadcastResult{
		BroadcastID: broadcastID,
		Kind:        string(kind),
		Recipients:  len(rows),
		Chunks:      chunks,
	}, nil
}

// QueueOrderUpdate queues an order_update message. It returns nil without an
// error when the customer cannot or does not want to receive it.
func (s *service) QueueOrderUpdate(ctx context.Context, input OrderUpdateInput) (*MessageDTO, error) {
	customer, err := s.recipients.FindByID(ctx, input.CustomerID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load customer")
	}
	if !customer.IsActive || !customer.WhatsAppOptIn || customer.WhatsAppNumber == nil {
		return nil, nil
	}
	body := orderUpdateBody(s.storeName, customer.Name, input)
	if body == "" {
		return nil, nil
	}

	rows := []models.WhatsAppMessage{{
		CustomerID: &customer.ID,
		ToNumber:   *customer.WhatsAppNumber,
		Body:       body,
		Kind:       enums.WhatsAppKindOrderUpdate,
	}}
	if err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		_, err := s.enqueue(ctx, tx, rows, nil, nil)
		return err
	}); err != nil {
		return nil, err
	}
	s.metrics.AddQueued(string(enums.WhatsAppKindOrderUpdate), 1)
	dto := NewMessageDTO(&rows[0])
	return &dto, nil
}

func (s *service) ListMessages(ctx context.Context, input ListInput) (pagination.Result[MessageDTO], error) {
	params := pagination.Normalize(input.Pagination.Page, input.Pagination.PerPage)
	rows, total, err := s.repo.List(ctx, input.Filter, params)
	if err != nil {
		return pagination.Result[MessageDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list whatsapp messages")
	}
	items := make([]MessageDTO, 0, len(rows))
	for i := range rows {
		items = append(items, NewMessageDTO(&rows[i]))
	}
	return pagination.NewResult(items, params, total), nil
}

func (s *service) GetMessage(ctx context.Context, id uuid.UUID) (*MessageDTO, error) {
	msg, err := s.loadMessage(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	dto := NewMessageDTO(msg)
	return &dto, nil
}

// Retry re-queues a failed message with a fresh attempt budget.
func (s *service) Retry(ctx context.Context, id uuid.UUID, actor *outbox.ActorRef) (*MessageDTO, error) {
	var out *models.WhatsAppMessage
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		msg, err := s.loadMessage(ctx, repo, id)
		if err != nil {
			return err
		}
		if msg.Status != enums.WhatsAppStatusFailed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only failed messages can be retried").
				WithDetails(map[string]string{"status": string(msg.Status)})
		}
		now := s.now().UTC()
		if err := repo.Requeue(ctx, []uuid.UUID{msg.ID}, true, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: requeue message")
		}
		if _, err := s.emitChunks(ctx, tx, []uuid.UUID{msg.ID}, msg.BroadcastID, true, actor); err != nil {
			return err
		}
		out, err = s.loadMessage(ctx, repo, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(ctx, "message_id", id.String()), "whatsapp.retry_requested")
	dto := NewMessageDTO(out)
	return &dto, nil
}

// RequeueDue moves retrying messages whose backoff elapsed back onto the
// dispatch topic and returns how many were re-queued. Sends stuck in sending
// longer than the stale window are first settled as failed attempts.
func (s *service) RequeueDue(ctx context.Context, limit int) (int, error) {
	now := s.now().UTC()
	reclaimed, err := s.repo.ReclaimStale(ctx, now.Add(-s.staleAfter), now, s.attempts)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: reclaim stale sends")
	}
	if reclaimed > 0 {
		s.logg.Warn(s.logg.WithField(ctx, "reclaimed", reclaimed), "whatsapp.stale_sends_reclaimed")
	}

	ids, err := s.repo.DueForRetry(ctx, now, limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: due retries")
	}
	if len(ids) == 0 {
		return 0, nil
	}
	err = s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Requeue(ctx, ids, false, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: requeue messages")
		}
		_, err := s.emitChunks(ctx, tx, ids, nil, true, nil)
		return err
	})
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *service) enqueue(ctx context.Context, tx *gorm.DB, rows []models.WhatsAppMessage, broadcastID *uuid.UUID, actor *outbox.ActorRef) (int, error) {
	if err := s.repo.WithTx(tx).CreateBatch(ctx, rows); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert whatsapp messages")
	}
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return s.emitChunks(ctx, tx, ids, broadcastID, false, actor)
}

// emitChunks writes one whatsapp.dispatch event per chunk of ids.
func (s *service) emitChunks(ctx context.Context, tx *gorm.DB, ids []uuid.UUID, broadcastID *uuid.UUID, retry bool, actor *outbox.ActorRef) (int, error) {
	chunks := ChunkIDs(ids, s.chunkSize)
	now := s.now().UTC()
	for i, chunk := range chunks {
		aggregate := chunk[0]
		if broadcastID != nil {
			aggregate = *broadcastID
		}
		err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventWhatsAppDispatch,
			AggregateType: enums.AggregateWhatsAppMessage,
			AggregateID:   aggregate,
			Actor:         actor,
			OccurredAt:    now,
			Data: payloads.WhatsAppDispatchEvent{
				MessageIDs:  chunk,
				BroadcastID: broadcastID,
				Chunk:       i + 1,
				Retry:       retry,
			},
		})
		if err != nil {
			return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit whatsapp dispatch")
		}
	}
	return len(chunks), nil
}

func (s *service) loadMessage(ctx context.Context, repo *Repository, id uuid.UUID) (*models.WhatsAppMessage, error) {
	msg, err := repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "whatsapp message not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load whatsapp message")
	}
	return msg, nil
}

// ChunkIDs splits ids into consecutive slices of at most size elements.
func ChunkIDs(ids []uuid.UUID, size int) [][]uuid.UUID {
	if size <= 0 {
		size = defaultChunkSize
	}
	out := make([][]uuid.UUID, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		out = append(out, ids[start:end])
	}
	return out
}

func validateBody(body string) map[string]string {
	fields := map[string]string{}
	switch {
	case body == "":
		fields["body"] = "the body field is required"
	case utf8.RuneCountInString(body) > maxBodyLength:
		fields["body"] = fmt.Sprintf("the body may not be greater than %d characters", maxBodyLength)
	}
	return fields
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

func noRecipientsError() error {
	return pkgerrors.New(pkgerrors.CodeBusinessRule, "no opted-in customers to message")
}
