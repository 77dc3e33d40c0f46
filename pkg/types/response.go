package types

import "github.com/angelmondragon/groceryhub-backend/pkg/pagination"

// SuccessEnvelope wraps every successful JSON response.
type SuccessEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Meta    *Meta  `json:"meta,omitempty"`
}

type Meta struct {
	Pagination pagination.Meta `json:"pagination"`
}

// ErrorEnvelope wraps every error response. Errors carries field-level
// validation messages when present.
type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Errors  any    `json:"errors,omitempty"`
}
