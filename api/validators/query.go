package validators

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
	"github.com/angelmondragon/groceryhub-backend/pkg/types"
)

func invalidQuery(key, message string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "the given data was invalid").WithDetails(map[string]string{key: message})
}

// PathUUID parses a chi URL parameter. Malformed ids read as missing
// resources.
func PathUUID(r *http.Request, key, resource string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, key)))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("%s not found", resource))
	}
	return id, nil
}

func Pagination(r *http.Request) (pagination.Params, error) {
	params, err := pagination.FromQuery(r.URL.Query())
	if err != nil {
		key := strings.SplitN(err.Error(), " ", 2)[0]
		return pagination.Params{}, invalidQuery(key, err.Error())
	}
	return params, nil
}

const maxQueryRunes = 255

// QueryString trims the value, folds runs of whitespace into one space and
// caps it at maxQueryRunes characters.
func QueryString(r *http.Request, key string) string {
	value := strings.Join(strings.Fields(r.URL.Query().Get(key)), " ")
	if utf8.RuneCountInString(value) > maxQueryRunes {
		value = string([]rune(value)[:maxQueryRunes])
	}
	return value
}

func QueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	raw := QueryString(r, key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, invalidQuery(key, fmt.Sprintf("the %s must be a valid id", key))
	}
	return &id, nil
}

// QueryBool accepts true/false/1/0.
func QueryBool(r *http.Request, key string) (*bool, error) {
	raw := QueryString(r, key)
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, invalidQuery(key, fmt.Sprintf("the %s field must be true or false", key))
	}
	return &value, nil
}

func QueryDecimal(r *http.Request, key string) (*decimal.Decimal, error) {
	raw := QueryString(r, key)
	if raw == "" {
		return nil, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, invalidQuery(key, fmt.Sprintf("the %s must be a number", key))
	}
	return &value, nil
}

// QueryDate parses a YYYY-MM-DD query value as UTC midnight.
func QueryDate(r *http.Request, key string) (*time.Time, error) {
	raw := QueryString(r, key)
	if raw == "" {
		return nil, nil
	}
	value, err := types.ParseDate(raw)
	if err != nil {
		return nil, invalidQuery(key, err.Error())
	}
	return &value, nil
}
