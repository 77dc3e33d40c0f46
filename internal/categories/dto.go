package categories

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
)

// CategoryDTO is the category payload returned to clients.
type CategoryDTO struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	Slug        string     `json:"slug"`
	Description *string    `json:"description,omitempty"`
	ParentID    *uuid.UUID `json:"parent_id"`
	SortOrder   int        `json:"sort_order"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TreeNodeDTO is a category with its nested children.
type TreeNodeDTO struct {
	CategoryDTO
	Children []TreeNodeDTO `json:"children"`
}

// SummaryDTO is the short form embedded in product payloads.
type SummaryDTO struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

func NewCategoryDTO(c *models.Category) CategoryDTO {
	return CategoryDTO{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		ParentID:    c.ParentID,
		SortOrder:   c.SortOrder,
		IsActive:    c.IsActive,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// NewSummaryDTO returns nil when the category was not preloaded.
func NewSummaryDTO(c *models.Category) *SummaryDTO {
	if c == nil {
		return nil
	}
	return &SummaryDTO{ID: c.ID, Name: c.Name, Slug: c.Slug}
}

// buildTree nests rows under their parents. Rows whose parent is absent from
// the set (for example an inactive parent) are dropped with their subtree.
func buildTree(rows []models.Category) []TreeNodeDTO {
	children := make(map[uuid.UUID][]models.Category)
	present := make(map[uuid.UUID]bool, len(rows))
	for _, row := range rows {
		present[row.ID] = true
	}
	var roots []models.Category
	for _, row := range rows {
		if row.ParentID == nil {
			roots = append(roots, row)
			continue
		}
		if present[*row.ParentID] {
			children[*row.ParentID] = append(children[*row.ParentID], row)
		}
	}

	var build func(list []models.Category) []TreeNodeDTO
	build = func(list []models.Category) []TreeNodeDTO {
		nodes := make([]TreeNodeDTO, 0, len(list))
		for i := range list {
			nodes = append(nodes, TreeNodeDTO{
				CategoryDTO: NewCategoryDTO(&list[i]),
				Children:    build(children[list[i].ID]),
			})
		}
		return nodes
	}
	return build(roots)
}
