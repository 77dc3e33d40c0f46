package seed

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/internal/categories"
	"github.com/angelmondragon/groceryhub-backend/internal/customers"
	product "github.com/angelmondragon/groceryhub-backend/internal/products"
	"github.com/angelmondragon/groceryhub-backend/internal/users"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
)

type categoryStore interface {
	FindBySlug(ctx context.Context, slug string) (*models.Category, error)
}

type categoryCreator interface {
	Create(ctx context.Context, input categories.CreateInput) (*categories.CategoryDTO, error)
}

type productStore interface {
	ItemCodeTaken(ctx context.Context, code string, exclude *uuid.UUID) (bool, error)
}

type productCreator interface {
	CreateProduct(ctx context.Context, input product.CreateProductInput) (*product.ProductDTO, error)
}

type customerStore interface {
	FindByWhatsApp(ctx context.Context, number string) (*models.Customer, error)
}

type customerCreator interface {
	Create(ctx context.Context, input customers.CreateInput) (*customers.CustomerDTO, error)
}

type userProvisioner interface {
	Provision(ctx context.Context, input users.ProvisionInput) (*users.UserDTO, bool, error)
}

type phoneNormalizer interface {
	Normalize(raw string) (string, error)
}

type SeederParams struct {
	CategoryStore categoryStore
	Categories    categoryCreator
	ProductStore  productStore
	Products      productCreator
	CustomerStore customerStore
	Customers     customerCreator
	Users         userProvisioner
	Phones        phoneNormalizer
	Logger        *logger.Logger
}

// Seeder applies a seed file through the domain services so every write
// passes the same validation as the API. Existing rows are skipped, which
// makes repeated runs safe.
type Seeder struct {
	categoryStore categoryStore
	categories    categoryCreator
	productStore  productStore
	products      productCreator
	customerStore customerStore
	customers     customerCreator
	users         userProvisioner
	phones        phoneNormalizer
	logg          *logger.Logger
}

// Report counts what a run created and skipped.
type Report struct {
	CategoriesCreated int
	CategoriesSkipped int
	ProductsCreated   int
	ProductsSkipped   int
	CustomersCreated  int
	CustomersSkipped  int
	AdminCreated      bool
	AdminUpdated      bool
}

func NewSeeder(params SeederParams) (*Seeder, error) {
	switch {
	case params.CategoryStore == nil || params.Categories == nil:
		return nil, fmt.Errorf("category store and service required")
	case params.ProductStore == nil || params.Products == nil:
		return nil, fmt.Errorf("product store and service required")
	case params.CustomerStore == nil || params.Customers == nil:
		return nil, fmt.Errorf("customer store and service required")
	case params.Users == nil:
		return nil, fmt.Errorf("user service required")
	case params.Phones == nil:
		return nil, fmt.Errorf("phone normalizer required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Seeder{
		categoryStore: params.CategoryStore,
		categories:    params.Categories,
		productStore:  params.ProductStore,
		products:      params.Products,
		customerStore: params.CustomerStore,
		customers:     params.Customers,
		users:         params.Users,
		phones:        params.Phones,
		logg:          params.Logger,
	}, nil
}

// Apply writes the admin, categories (parents first), products and customers
// in that order and stops at the first failure.
func (s *Seeder) Apply(ctx context.Context, file *File) (*Report, error) {
	if file == nil {
		return nil, errors.New("seed file required")
	}
	report := &Report{}

	if file.Admin != nil {
		if err := s.applyAdmin(ctx, *file.Admin, report); err != nil {
			return report, err
		}
	}

	slugIDs := map[string]uuid.UUID{}
	if err := s.applyCategories(ctx, file.Categories, nil, slugIDs, report); err != nil {
		return report, err
	}
	for _, p := range file.Products {
		if err := s.applyProduct(ctx, p, slugIDs, report); err != nil {
			return report, err
		}
	}
	for _, c := range file.Customers {
		if err := s.applyCustomer(ctx, c, report); err != nil {
			return report, err
		}
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"categories_created": report.CategoriesCreated,
		"categories_skipped": report.CategoriesSkipped,
		"products_created":   report.ProductsCreated,
		"products_skipped":   report.ProductsSkipped,
		"customers_created":  report.CustomersCreated,
		"customers_skipped":  report.CustomersSkipped,
	}), "seed applied")
	return report, nil
}

func (s *Seeder) applyAdmin(ctx context.Context, admin Admin, report *Report) error {
	role := enums.UserRoleAdmin
	if admin.Role != "" {
		parsed, err := enums.ParseUserRole(admin.Role)
		if err != nil {
			return fmt.Errorf("admin: %w", err)
		}
		role = parsed
	}
	name := strings.TrimSpace(admin.Name)
	if name == "" {
		name = "Administrator"
	}
	_, created, err := s.users.Provision(ctx, users.ProvisionInput{
		Email:    admin.Email,
		Name:     name,
		Password: admin.password(),
		Role:     role,
	})
	if err != nil {
		return fmt.Errorf("admin %s: %w", admin.Email, err)
	}
	report.AdminCreated = created
	report.AdminUpdated = !created
	return nil
}

func (s *Seeder) applyCategories(ctx context.Context, list []Category, parentID *uuid.UUID, slugIDs map[string]uuid.UUID, report *Report) error {
	for i, c := range list {
		slug := c.slug()
		existing, err := s.categoryStore.FindBySlug(ctx, slug)
		switch {
		case err == nil:
			slugIDs[slug] = existing.ID
			report.CategoriesSkipped++
		case errors.Is(err, gorm.ErrRecordNotFound):
			created, err := s.categories.Create(ctx, categories.CreateInput{
				Name:        c.Name,
				Slug:        &slug,
				Description: optional(c.Description),
				ParentID:    parentID,
				SortOrder:   c.SortOrder,
			})
			if err != nil {
				return fmt.Errorf("category %s: %w", slug, err)
			}
			slugIDs[slug] = created.ID
			report.CategoriesCreated++
		default:
			return fmt.Errorf("lookup category %s: %w", slug, err)
		}

		id := slugIDs[slug]
		if err := s.applyCategories(ctx, list[i].Children, &id, slugIDs, report); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) applyProduct(ctx context.Context, p Product, slugIDs map[string]uuid.UUID, report *Report) error {
	code := strings.TrimSpace(p.ItemCode)
	taken, err := s.productStore.ItemCodeTaken(ctx, code, nil)
	if err != nil {
		return fmt.Errorf("lookup product %s: %w", code, err)
	}
	if taken {
		report.ProductsSkipped++
		return nil
	}

	categoryID, ok := slugIDs[p.Category]
	if !ok {
		existing, err := s.categoryStore.FindBySlug(ctx, p.Category)
		if err != nil {
			return fmt.Errorf("product %s: category %q: %w", code, p.Category, err)
		}
		categoryID = existing.ID
		slugIDs[p.Category] = categoryID
	}

	unit, err := enums.ParseProductUnit(p.Unit)
	if err != nil {
		return fmt.Errorf("product %s: %w", code, err)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(p.Price))
	if err != nil {
		return fmt.Errorf("product %s: price: %w", code, err)
	}
	if _, err := s.products.CreateProduct(ctx, product.CreateProductInput{
		CategoryID:   categoryID,
		ItemCode:     code,
		Name:         p.Name,
		Description:  optional(p.Description),
		Unit:         unit,
		Price:        price,
		DiscountType: enums.DiscountTypeNone,
		Stock:        p.Stock,
	}); err != nil {
		return fmt.Errorf("product %s: %w", code, err)
	}
	report.ProductsCreated++
	return nil
}

func (s *Seeder) applyCustomer(ctx context.Context, c Customer, report *Report) error {
	number, err := s.phones.Normalize(c.Phone)
	if err != nil {
		return fmt.Errorf("customer %s: %w", c.Name, err)
	}
	_, err = s.customerStore.FindByWhatsApp(ctx, number)
	switch {
	case err == nil:
		report.CustomersSkipped++
		return nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("lookup customer %s: %w", number, err)
	}

	if _, err := s.customers.Create(ctx, customers.CreateInput{
		Name:          c.Name,
		Phone:         &number,
		Email:         optional(c.Email),
		Address:       optional(c.Address),
		WhatsAppOptIn: c.WhatsAppOptIn,
	}); err != nil {
		return fmt.Errorf("customer %s: %w", c.Name, err)
	}
	report.CustomersCreated++
	return nil
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
