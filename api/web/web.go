// Package web serves the server-rendered order form used by walk-in and
// phone customers who do not go through the JSON API.
package web

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/groceryhub-backend/internal/orders"
	product "github.com/angelmondragon/groceryhub-backend/internal/products"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"money": func(v interface{ StringFixed(int32) string }) string { return v.StringFixed(2) },
}).ParseFS(templateFS, "templates/*.html"))

const maxFormBytes = 256 << 10

type catalog interface {
	ListProducts(ctx context.Context, input product.ListProductsInput) (pagination.Result[product.ProductDTO], error)
}

type placer interface {
	Place(ctx context.Context, input orders.PlaceInput) (*orders.OrderDTO, error)
	GetByNumber(ctx context.Context, number string) (*orders.OrderDTO, error)
}

type Handler struct {
	catalog   catalog
	orders    placer
	storeName string
	logg      *logger.Logger
}

func NewHandler(catalog catalog, orderSvc placer, storeName string, logg *logger.Logger) (*Handler, error) {
	if catalog == nil {
		return nil, fmt.Errorf("product service required")
	}
	if orderSvc == nil {
		return nil, fmt.Errorf("order service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Handler{catalog: catalog, orders: orderSvc, storeName: storeName, logg: logg}, nil
}

type formValues struct {
	Name       string
	Phone      string
	Address    string
	Notes      string
	Quantities map[string]string
}

type formPage struct {
	StoreName string
	Products  []product.ProductDTO
	Form      formValues
	Errors    []string
}

type confirmationPage struct {
	StoreName string
	Order     *orders.OrderDTO
}

type notFoundPage struct {
	StoreName string
	Number    string
}

// Form renders the order form with every active, in-stock product.
func (h *Handler) Form(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, formValues{Quantities: map[string]string{}}, nil)
}

// Submit places a web order from the form. Validation failures re-render the
// form with the submitted values.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		h.renderForm(w, r, http.StatusBadRequest, formValues{Quantities: map[string]string{}}, []string{"The form could not be read. Please try again."})
		return
	}

	values := formValues{
		Name:       strings.TrimSpace(r.PostForm.Get("name")),
		Phone:      strings.TrimSpace(r.PostForm.Get("phone")),
		Address:    strings.TrimSpace(r.PostForm.Get("address")),
		Notes:      strings.TrimSpace(r.PostForm.Get("notes")),
		Quantities: map[string]string{},
	}
	items, problems := parseQuantities(r, values.Quantities)
	if values.Name == "" {
		problems = append(problems, "Please enter your name.")
	}
	if len(items) == 0 && len(problems) == 0 {
		problems = append(problems, "Choose at least one product.")
	}
	if len(problems) > 0 {
		h.renderForm(w, r, http.StatusUnprocessableEntity, values, problems)
		return
	}

	order, err := h.orders.Place(r.Context(), orders.PlaceInput{
		CustomerName:    values.Name,
		CustomerPhone:   optional(values.Phone),
		Items:           items,
		Notes:           optional(values.Notes),
		DeliveryAddress: optional(values.Address),
		Source:          enums.OrderSourceWeb,
	})
	if err != nil {
		if messages := validationMessages(err); len(messages) > 0 {
			h.renderForm(w, r, http.StatusUnprocessableEntity, values, messages)
			return
		}
		h.logg.Error(r.Context(), "web.order_place_failed", err)
		h.renderForm(w, r, http.StatusServiceUnavailable, values, []string{"We could not place your order right now. Please try again shortly."})
		return
	}

	ctx := h.logg.WithField(r.Context(), "order_number", order.OrderNumber)
	h.logg.Info(ctx, "web.order_placed")
	h.render(w, r, http.StatusCreated, "order_confirmation.html", confirmationPage{StoreName: h.storeName, Order: order})
}

// Confirmation shows a previously placed order by number.
func (h *Handler) Confirmation(w http.ResponseWriter, r *http.Request) {
	number := strings.TrimSpace(chi.URLParam(r, "orderNumber"))
	order, err := h.orders.GetByNumber(r.Context(), number)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			h.render(w, r, http.StatusNotFound, "order_not_found.html", notFoundPage{StoreName: h.storeName, Number: number})
			return
		}
		h.logg.Error(r.Context(), "web.order_lookup_failed", err)
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	h.render(w, r, http.StatusOK, "order_confirmation.html", confirmationPage{StoreName: h.storeName, Order: order})
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, status int, values formValues, problems []string) {
	products, err := h.activeProducts(r.Context())
	if err != nil {
		h.logg.Error(r.Context(), "web.catalog_load_failed", err)
		http.Error(w, "Service unavailable", http.StatusServiceUnavailable)
		return
	}
	h.render(w, r, status, "order_form.html", formPage{
		StoreName: h.storeName,
		Products:  products,
		Form:      values,
		Errors:    problems,
	})
}

func (h *Handler) activeProducts(ctx context.Context) ([]product.ProductDTO, error) {
	active, inStock := true, true
	params := pagination.Normalize(1, pagination.MaxPerPage)
	var out []product.ProductDTO
	for {
		page, err := h.catalog.ListProducts(ctx, product.ListProductsInput{
			Filters:    product.ProductListFilters{IsActive: &active, InStock: &inStock},
			Sort:       "name",
			Pagination: params,
		})
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if params.Page >= page.Meta.LastPage {
			return out, nil
		}
		params.Page++
	}
}

// render buffers the template so a failed execution never leaks a half page.
func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		h.logg.Error(r.Context(), "web.render_failed", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// parseQuantities reads qty[<product_id>] fields. Blank and zero quantities
// are skipped; submitted values are echoed into dst.
func parseQuantities(r *http.Request, dst map[string]string) ([]orders.PlaceItemInput, []string) {
	var items []orders.PlaceItemInput
	var problems []string
	keys := make([]string, 0, len(r.PostForm))
	for key := range r.PostForm {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !strings.HasPrefix(key, "qty[") || !strings.HasSuffix(key, "]") {
			continue
		}
		rawID := strings.TrimSuffix(strings.TrimPrefix(key, "qty["), "]")
		raw := strings.TrimSpace(r.PostForm.Get(key))
		dst[rawID] = raw
		if raw == "" || raw == "0" {
			continue
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			problems = append(problems, "One of the selected products is not valid.")
			continue
		}
		qty, err := strconv.Atoi(raw)
		if err != nil || qty < 0 {
			problems = append(problems, fmt.Sprintf("Quantity %q is not a whole number.", raw))
			continue
		}
		items = append(items, orders.PlaceItemInput{ProductID: id, Quantity: qty})
	}
	return items, problems
}

func validationMessages(err error) []string {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		return nil
	}
	details, ok := typed.Details().(map[string]string)
	if !ok || len(details) == 0 {
		return []string{typed.Message()}
	}
	messages := make([]string, 0, len(details))
	for _, msg := range details {
		messages = append(messages, msg)
	}
	sort.Strings(messages)
	return messages
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
