package pagination

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

const (
	DefaultPerPage = 15
	MaxPerPage     = 100
)

// Params holds offset pagination inputs.
type Params struct {
	Page    int
	PerPage int
}

// Normalize clamps page to >= 1 and per_page to [1, MaxPerPage], using the
// defaults for unset values.
func Normalize(page, perPage int) Params {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Params{Page: page, PerPage: perPage}
}

// FromQuery reads page and per_page from a query string. Non-numeric values
// are rejected; numeric values are clamped by Normalize.
func FromQuery(values url.Values) (Params, error) {
	page, err := intParam(values, "page")
	if err != nil {
		return Params{}, err
	}
	perPage, err := intParam(values, "per_page")
	if err != nil {
		return Params{}, err
	}
	return Normalize(page, perPage), nil
}

func intParam(values url.Values, key string) (int, error) {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", key)
	}
	return n, nil
}

func (p Params) Offset() int {
	p = Normalize(p.Page, p.PerPage)
	return (p.Page - 1) * p.PerPage
}

// Scope applies LIMIT/OFFSET to a gorm query.
func (p Params) Scope() func(*gorm.DB) *gorm.DB {
	n := Normalize(p.Page, p.PerPage)
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(n.Offset()).Limit(n.PerPage)
	}
}

// Meta is the pagination block rendered under meta.pagination.
type Meta struct {
	CurrentPage int   `json:"current_page"`
	PerPage     int   `json:"per_page"`
	Total       int64 `json:"total"`
	LastPage    int   `json:"last_page"`
	From        int64 `json:"from"`
	To          int64 `json:"to"`
}

func NewMeta(p Params, total int64) Meta {
	p = Normalize(p.Page, p.PerPage)
	if total < 0 {
		total = 0
	}
	perPage := int64(p.PerPage)
	lastPage := int((total + perPage - 1) / perPage)
	if lastPage < 1 {
		lastPage = 1
	}
	meta := Meta{
		CurrentPage: p.Page,
		PerPage:     p.PerPage,
		Total:       total,
		LastPage:    lastPage,
	}
	from := int64(p.Page-1)*perPage + 1
	if from <= total {
		meta.From = from
		meta.To = min(int64(p.Page)*perPage, total)
	}
	return meta
}

// Result is one page of items plus its metadata.
type Result[T any] struct {
	Items []T
	Meta  Meta
}

func NewResult[T any](items []T, p Params, total int64) Result[T] {
	if items == nil {
		items = []T{}
	}
	return Result[T]{Items: items, Meta: NewMeta(p, total)}
}
