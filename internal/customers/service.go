package customers

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/pkg/db"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
)

const maxNameLength = 150

// Service manages customers.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*CustomerDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*CustomerDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*CustomerDTO, error)
	// Delete removes the customer, or deactivates it when it has orders. The
	// returned flag reports the deactivation.
	Delete(ctx context.Context, id uuid.UUID) (deactivated bool, err error)
	List(ctx context.Context, input ListInput) (pagination.Result[CustomerDTO], error)
	OrderHistory(ctx context.Context, id uuid.UUID, params pagination.Params) (pagination.Result[OrderSummaryDTO], error)
}

type CreateInput struct {
	Name           string
	Email          *string
	Phone          *string
	WhatsAppNumber *string
	Address        *string
	Notes          *string
	WhatsAppOptIn  *bool
	IsActive       *bool
}

// UpdateInput holds optional changes. A pointer to an empty string clears the
// optional text columns.
type UpdateInput struct {
	Name           *string
	Email          *string
	Phone          *string
	WhatsAppNumber *string
	Address        *string
	Notes          *string
	WhatsAppOptIn  *bool
	IsActive       *bool
}

type ListInput struct {
	Filter     ListFilter
	Pagination pagination.Params
}

// PhoneNormalizer converts user supplied numbers to E.164.
type PhoneNormalizer interface {
	NormalizeOptional(raw *string) (*string, error)
}

type service struct {
	repo     *Repository
	dbClient *db.Client
	phones   PhoneNormalizer
	logg     *logger.Logger
}

func NewService(repo *Repository, dbClient *db.Client, phones PhoneNormalizer, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if phones == nil {
		return nil, fmt.Errorf("phone normalizer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, dbClient: dbClient, phones: phones, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*CustomerDTO, error) {
	customer := &models.Customer{
		Name:           strings.TrimSpace(input.Name),
		Email:          normalizeEmail(input.Email),
		Phone:          input.Phone,
		WhatsAppNumber: input.WhatsAppNumber,
		Address:        trimOptional(input.Address),
		Notes:          trimOptional(input.Notes),
		IsActive:       true,
	}
	if input.WhatsAppOptIn != nil {
		customer.WhatsAppOptIn = *input.WhatsAppOptIn
	}
	if input.IsActive != nil {
		customer.IsActive = *input.IsActive
	}
	if err := s.prepare(customer); err != nil {
		return nil, err
	}

	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := ensureUnique(ctx, txRepo, customer, nil); err != nil {
			return err
		}
		if err := txRepo.Create(ctx, customer); err != nil {
			return mapWriteError(err, "db: insert customer")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := NewCustomerDTO(customer)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*CustomerDTO, error) {
	customer, err := load(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	dto := NewCustomerDTO(customer)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*CustomerDTO, error) {
	var updated *models.Customer
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		customer, err := load(ctx, txRepo, id)
		if err != nil {
			return err
		}
		if input.Name != nil {
			customer.Name = strings.TrimSpace(*input.Name)
		}
		if input.Email != nil {
			customer.Email = normalizeEmail(input.Email)
		}
		if input.Phone != nil {
			customer.Phone = input.Phone
		}
		if input.WhatsAppNumber != nil {
			customer.WhatsAppNumber = input.WhatsAppNumber
		}
		if input.Address != nil {
			customer.Address = trimOptional(input.Address)
		}
		if input.Notes != nil {
			customer.Notes = trimOptional(input.Notes)
		}
		if input.WhatsAppOptIn != nil {
			customer.WhatsAppOptIn = *input.WhatsAppOptIn
		}
		if input.IsActive != nil {
			customer.IsActive = *input.IsActive
		}
		if err := s.prepare(customer); err != nil {
			return err
		}
		if err := ensureUnique(ctx, txRepo, customer, &customer.ID); err != nil {
			return err
		}
		if err := txRepo.Update(ctx, customer); err != nil {
			return mapWriteError(err, "db: update customer")
		}
		updated = customer
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := NewCustomerDTO(updated)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if _, err := load(ctx, s.repo, id); err != nil {
		return false, err
	}
	orders, err := s.repo.CountOrders(ctx, id)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: count customer orders")
	}
	if orders > 0 {
		if err := s.repo.Deactivate(ctx, id); err != nil {
			return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: deactivate customer")
		}
		logCtx := s.logg.WithFields(ctx, map[string]any{"customer_id": id.String(), "orders": orders})
		s.logg.Info(logCtx, "customer.deactivated")
		return true, nil
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete customer")
	}
	return false, nil
}

func (s *service) List(ctx context.Context, input ListInput) (pagination.Result[CustomerDTO], error) {
	params := pagination.Normalize(input.Pagination.Page, input.Pagination.PerPage)
	rows, total, err := s.repo.List(ctx, input.Filter, params)
	if err != nil {
		return pagination.Result[CustomerDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list customers")
	}
	items := make([]CustomerDTO, 0, len(rows))
	for i := range rows {
		items = append(items, NewCustomerDTO(&rows[i]))
	}
	return pagination.NewResult(items, params, total), nil
}

func (s *service) OrderHistory(ctx context.Context, id uuid.UUID, params pagination.Params) (pagination.Result[OrderSummaryDTO], error) {
	if _, err := load(ctx, s.repo, id); err != nil {
		return pagination.Result[OrderSummaryDTO]{}, err
	}
	params = pagination.Normalize(params.Page, params.PerPage)
	rows, total, err := s.repo.Orders(ctx, id, params)
	if err != nil {
		return pagination.Result[OrderSummaryDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list customer orders")
	}
	items := make([]OrderSummaryDTO, 0, len(rows))
	for i := range rows {
		items = append(items, newOrderSummaryDTO(&rows[i]))
	}
	return pagination.NewResult(items, params, total), nil
}

// prepare validates the customer and normalizes both numbers in place. The
// WhatsApp number falls back to the phone.
func (s *service) prepare(c *models.Customer) error {
	fields := map[string]string{}
	switch {
	case c.Name == "":
		fields["name"] = "name is required"
	case utf8.RuneCountInString(c.Name) > maxNameLength:
		fields["name"] = fmt.Sprintf("name may not be greater than %d characters", maxNameLength)
	}

	phone, err := s.phones.NormalizeOptional(c.Phone)
	if err != nil {
		fields["phone"] = "phone is not a valid phone number"
	}
	c.Phone = phone

	whatsapp, err := s.phones.NormalizeOptional(c.WhatsAppNumber)
	if err != nil {
		fields["whatsapp_number"] = "whatsapp_number is not a valid phone number"
	}
	if whatsapp == nil && c.Phone != nil {
		fallback := *c.Phone
		whatsapp = &fallback
	}
	c.WhatsAppNumber = whatsapp

	if c.WhatsAppOptIn && c.WhatsAppNumber == nil {
		if _, invalid := fields["whatsapp_number"]; !invalid {
			fields["whatsapp_number"] = "whatsapp_number is required when whatsapp_opt_in is true"
		}
	}

	if len(fields) > 0 {
		return validationError(fields)
	}
	return nil
}

func ensureUnique(ctx context.Context, repo *Repository, c *models.Customer, exclude *uuid.UUID) error {
	fields := map[string]string{}
	if c.Email != nil {
		taken, err := repo.ColumnTaken(ctx, "email", *c.Email, exclude)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: check customer email")
		}
		if taken {
			fields["email"] = "the email has already been taken"
		}
	}
	if c.WhatsAppNumber != nil {
		taken, err := repo.ColumnTaken(ctx, "whatsapp_number", *c.WhatsAppNumber, exclude)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: check customer whatsapp number")
		}
		if taken {
			fields["whatsapp_number"] = "the whatsapp number has already been taken"
		}
	}
	if len(fields) > 0 {
		return validationError(fields)
	}
	return nil
}

func load(ctx context.Context, repo *Repository, id uuid.UUID) (*models.Customer, error) {
	customer, err := repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load customer")
	}
	return customer, nil
}

// mapWriteError turns a unique index race into the same validation error the
// pre-check produces.
func mapWriteError(err error, msg string) error {
	switch {
	case db.IsUniqueViolation(err, "email"):
		return validationError(map[string]string{"email": "the email has already been taken"})
	case db.IsUniqueViolation(err, "whatsapp_number"):
		return validationError(map[string]string{"whatsapp_number": "the whatsapp number has already been taken"})
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}
}

func normalizeEmail(v *string) *string {
	trimmed := trimOptional(v)
	if trimmed == nil {
		return nil
	}
	lower := strings.ToLower(*trimmed)
	return &lower
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
