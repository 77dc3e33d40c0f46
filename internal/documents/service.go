// Package documents renders the price list and order invoices as PDF.
package documents

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"

	"github.com/angelmondragon/groceryhub-backend/internal/orders"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
)

// Service renders PDF documents.
type Service interface {
	PriceList(ctx context.Context, categoryID *uuid.UUID) ([]byte, error)
	Invoice(ctx context.Context, orderID uuid.UUID) (*Document, error)
}

// Document is a rendered file ready to stream.
type Document struct {
	Filename string
	Content  []byte
}

type catalogSource interface {
	ListActiveForCatalog(ctx context.Context, categoryIDs []uuid.UUID) ([]models.Product, error)
}

type categoryTree interface {
	DescendantIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

type orderSource interface {
	Get(ctx context.Context, id uuid.UUID) (*orders.OrderDTO, error)
}

type ServiceParams struct {
	Catalog    catalogSource
	Categories categoryTree
	Orders     orderSource
	StoreName  string
	Logger     *logger.Logger
}

type service struct {
	catalog    catalogSource
	categories categoryTree
	orders     orderSource
	storeName  string
	logg       *logger.Logger
	now        func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog source required")
	}
	if params.Categories == nil {
		return nil, fmt.Errorf("category tree required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order source required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	name := strings.TrimSpace(params.StoreName)
	if name == "" {
		name = "GroceryHub"
	}
	return &service{
		catalog:    params.Catalog,
		categories: params.Categories,
		orders:     params.Orders,
		storeName:  name,
		logg:       params.Logger,
		now:        time.Now,
	}, nil
}

// PriceList renders every active product, or only those under categoryID and
// its subcategories.
func (s *service) PriceList(ctx context.Context, categoryID *uuid.UUID) ([]byte, error) {
	var ids []uuid.UUID
	if categoryID != nil {
		var err error
		ids, err = s.categories.DescendantIDs(ctx, *categoryID)
		if err != nil {
			return nil, err
		}
	}
	rows, err := s.catalog.ListActiveForCatalog(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load catalog")
	}

	now := s.now()
	pdf := renderPriceList(s.storeName, now, groupByCategory(rows, now))
	out, err := output(pdf)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"products": len(rows),
		"bytes":    len(out),
	}), "documents.price_list_rendered")
	return out, nil
}

func (s *service) Invoice(ctx context.Context, orderID uuid.UUID) (*Document, error) {
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	out, err := output(renderInvoice(s.storeName, s.now(), order))
	if err != nil {
		return nil, err
	}
	return &Document{
		Filename: fmt.Sprintf("invoice-%s.pdf", order.OrderNumber),
		Content:  out,
	}, nil
}

func output(pdf *fpdf.Fpdf) ([]byte, error) {
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render pdf")
	}
	return buf.Bytes(), nil
}
