package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/groceryhub-backend/api/responses"
	"github.com/angelmondragon/groceryhub-backend/api/validators"
	"github.com/angelmondragon/groceryhub-backend/internal/categories"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/types"
)

type createCategoryRequest struct {
	Name        string     `json:"name" validate:"required,max=150"`
	Slug        *string    `json:"slug"`
	Description *string    `json:"description"`
	ParentID    *uuid.UUID `json:"parent_id"`
	SortOrder   int        `json:"sort_order"`
	IsActive    *bool      `json:"is_active"`
}

type updateCategoryRequest struct {
	Name        *string            `json:"name" validate:"omitempty,max=150"`
	Slug        *string            `json:"slug"`
	Description *string            `json:"description"`
	ParentID    types.NullableUUID `json:"parent_id"`
	SortOrder   *int               `json:"sort_order"`
	IsActive    *bool              `json:"is_active"`
}

func CategoryList(svc categories.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.Pagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		parentID, err := validators.QueryUUID(r, "parent_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		isActive, err := validators.QueryBool(r, "is_active")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rootsOnly, err := validators.QueryBool(r, "roots_only")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), categories.ListInput{
			Filter: categories.ListFilter{
				ParentID:  parentID,
				RootsOnly: rootsOnly != nil && *rootsOnly,
				IsActive:  isActive,
				Search:    validators.QueryString(r, "search"),
			},
			Params: params,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WritePage(w, "Categories retrieved successfully", page)
	}
}

func CategoryTree(svc categories.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		includeInactive, err := validators.QueryBool(r, "include_inactive")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		tree, err := svc.Tree(r.Context(), includeInactive != nil && *includeInactive)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Category tree retrieved successfully", tree)
	}
}

func CategoryDetail(svc categories.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "categoryId", "category")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		category, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Category retrieved successfully", category)
	}
}

func CategoryCreate(svc categories.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createCategoryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		category, err := svc.Create(r.Context(), categories.CreateInput{
			Name:        body.Name,
			Slug:        body.Slug,
			Description: body.Description,
			ParentID:    body.ParentID,
			SortOrder:   body.SortOrder,
			IsActive:    body.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, "Category created successfully", category)
	}
}

func CategoryUpdate(svc categories.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "categoryId", "category")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateCategoryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		category, err := svc.Update(r.Context(), id, categories.UpdateInput{
			Name:        body.Name,
			Slug:        body.Slug,
			Description: body.Description,
			ParentID:    body.ParentID,
			SortOrder:   body.SortOrder,
			IsActive:    body.IsActive,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Category updated successfully", category)
	}
}

func CategoryDelete(svc categories.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "categoryId", "category")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, "Category deleted successfully", nil)
	}
}
