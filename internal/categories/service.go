package categories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/angelmondragon/groceryhub-backend/pkg/db"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
	"github.com/angelmondragon/groceryhub-backend/pkg/types"
)

const maxNameLength = 150

// Service manages the category hierarchy.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*CategoryDTO, error)
	Get(ctx context.Context, id uuid.UUID) (*CategoryDTO, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*CategoryDTO, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, input ListInput) (pagination.Result[CategoryDTO], error)
	Tree(ctx context.Context, includeInactive bool) ([]TreeNodeDTO, error)
	DescendantIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

type CreateInput struct {
	Name        string
	Slug        *string
	Description *string
	ParentID    *uuid.UUID
	SortOrder   int
	IsActive    *bool
}

// UpdateInput carries optional changes. ParentID distinguishes "absent" from
// an explicit null, which moves the category to the root.
type UpdateInput struct {
	Name        *string
	Slug        *string
	Description *string
	ParentID    types.NullableUUID
	SortOrder   *int
	IsActive    *bool
}

type ListInput struct {
	Filter ListFilter
	Params pagination.Params
}

// TreeCache is the read-through cache used for the category tree.
type TreeCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CacheKey(parts ...string) string
}

type service struct {
	repo     *Repository
	dbClient *db.Client
	cache    TreeCache
	cacheTTL time.Duration
	logg     *logger.Logger
}

// NewService constructs a category service instance.
func NewService(repo *Repository, dbClient *db.Client, cache TreeCache, cacheTTL time.Duration, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("category repository required")
	}
	if dbClient == nil {
		return nil, fmt.Errorf("db client required")
	}
	if cache == nil {
		return nil, fmt.Errorf("tree cache required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	return &service{repo: repo, dbClient: dbClient, cache: cache, cacheTTL: cacheTTL, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*CategoryDTO, error) {
	name := strings.TrimSpace(input.Name)
	slug := deriveSlug(input.Slug, name)
	if fields := validateFields(name, slug); len(fields) > 0 {
		return nil, validationError(fields)
	}

	category := &models.Category{
		Name:        name,
		Slug:        slug,
		Description: trimOptional(input.Description),
		ParentID:    input.ParentID,
		SortOrder:   input.SortOrder,
		IsActive:    true,
	}
	if input.IsActive != nil {
		category.IsActive = *input.IsActive
	}

	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := s.ensureSlugFree(ctx, txRepo, slug, nil); err != nil {
			return err
		}
		if category.ParentID != nil {
			if err := ensureParentExists(ctx, txRepo, *category.ParentID); err != nil {
				return err
			}
		}
		if err := txRepo.Create(ctx, category); err != nil {
			if db.IsUniqueViolation(err, "slug") {
				return slugTakenError()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert category")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateTree(ctx)
	dto := NewCategoryDTO(category)
	return &dto, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*CategoryDTO, error) {
	category, err := loadCategory(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	dto := NewCategoryDTO(category)
	return &dto, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*CategoryDTO, error) {
	var updated *models.Category
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		category, err := loadCategory(ctx, txRepo, id)
		if err != nil {
			return err
		}

		if input.Name != nil {
			category.Name = strings.TrimSpace(*input.Name)
		}
		if input.Slug != nil {
			category.Slug = deriveSlug(input.Slug, category.Name)
		}
		if fields := validateFields(category.Name, category.Slug); len(fields) > 0 {
			return validationError(fields)
		}
		if input.Description != nil {
			category.Description = trimOptional(input.Description)
		}
		if input.SortOrder != nil {
			category.SortOrder = *input.SortOrder
		}
		if input.IsActive != nil {
			category.IsActive = *input.IsActive
		}
		if input.ParentID.Valid {
			if input.ParentID.Value != nil {
				if err := ensureValidParent(ctx, txRepo, id, *input.ParentID.Value); err != nil {
					return err
				}
			}
			category.ParentID = input.ParentID.Value
		}

		if err := s.ensureSlugFree(ctx, txRepo, category.Slug, &category.ID); err != nil {
			return err
		}
		if err := txRepo.Update(ctx, category); err != nil {
			if db.IsUniqueViolation(err, "slug") {
				return slugTakenError()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update category")
		}
		updated = category
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateTree(ctx)
	dto := NewCategoryDTO(updated)
	return &dto, nil
}

func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	err := s.dbClient.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if _, err := loadCategory(ctx, txRepo, id); err != nil {
			return err
		}
		children, err := txRepo.CountChildren(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: count child categories")
		}
		if children > 0 {
			return pkgerrors.New(pkgerrors.CodeBusinessRule, "cannot delete a category that has subcategories")
		}
		products, err := txRepo.CountProducts(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: count category products")
		}
		if products > 0 {
			return pkgerrors.New(pkgerrors.CodeBusinessRule, "cannot delete a category that has products")
		}
		if err := txRepo.Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete category")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.invalidateTree(ctx)
	return nil
}

func (s *service) List(ctx context.Context, input ListInput) (pagination.Result[CategoryDTO], error) {
	params := pagination.Normalize(input.Params.Page, input.Params.PerPage)
	rows, total, err := s.repo.List(ctx, input.Filter, params)
	if err != nil {
		return pagination.Result[CategoryDTO]{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: list categories")
	}
	items := make([]CategoryDTO, 0, len(rows))
	for i := range rows {
		items = append(items, NewCategoryDTO(&rows[i]))
	}
	return pagination.NewResult(items, params, total), nil
}

func (s *service) Tree(ctx context.Context, includeInactive bool) ([]TreeNodeDTO, error) {
	key := s.treeKey(includeInactive)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var cached []TreeNodeDTO
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			return cached, nil
		}
		s.logg.Warn(ctx, "category tree cache entry unreadable")
	} else if !errors.Is(err, goredis.Nil) {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "category tree cache read failed")
	}

	rows, err := s.repo.ListAll(ctx, includeInactive)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load category tree")
	}
	tree := buildTree(rows)

	if payload, err := json.Marshal(tree); err == nil {
		if err := s.cache.Set(ctx, key, payload, s.cacheTTL); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "category tree cache write failed")
		}
	}
	return tree, nil
}

// DescendantIDs returns id followed by every category below it.
func (s *service) DescendantIDs(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	links, err := s.repo.ParentLinks(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load category links")
	}
	if _, ok := links[id]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
	}
	return descendants(links, id), nil
}

func descendants(links map[uuid.UUID]*uuid.UUID, root uuid.UUID) []uuid.UUID {
	children := make(map[uuid.UUID][]uuid.UUID, len(links))
	for id, parent := range links {
		if parent != nil {
			children[*parent] = append(children[*parent], id)
		}
	}
	out := []uuid.UUID{root}
	seen := map[uuid.UUID]bool{root: true}
	for i := 0; i < len(out); i++ {
		for _, child := range children[out[i]] {
			if !seen[child] {
				seen[child] = true
				out = append(out, child)
			}
		}
	}
	return out
}

func (s *service) treeKey(includeInactive bool) string {
	if includeInactive {
		return s.cache.CacheKey("categories", "tree", "all")
	}
	return s.cache.CacheKey("categories", "tree", "active")
}

func (s *service) invalidateTree(ctx context.Context) {
	if err := s.cache.Del(ctx, s.treeKey(false), s.treeKey(true)); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "category tree cache invalidation failed")
	}
}

func (s *service) ensureSlugFree(ctx context.Context, repo *Repository, slug string, exclude *uuid.UUID) error {
	taken, err := repo.SlugTaken(ctx, slug, exclude)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: check category slug")
	}
	if taken {
		return slugTakenError()
	}
	return nil
}

func loadCategory(ctx context.Context, repo *Repository, id uuid.UUID) (*models.Category, error) {
	category, err := repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load category")
	}
	return category, nil
}

func ensureParentExists(ctx context.Context, repo *Repository, parentID uuid.UUID) error {
	if _, err := repo.FindByID(ctx, parentID); err != nil {
		if db.IsNotFound(err) {
			return validationError(map[string]string{"parent_id": "the selected parent category does not exist"})
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load parent category")
	}
	return nil
}

// ensureValidParent rejects a parent that is the category itself or one of
// its descendants.
func ensureValidParent(ctx context.Context, repo *Repository, id, parentID uuid.UUID) error {
	if parentID == id {
		return validationError(map[string]string{"parent_id": "a category cannot be its own parent"})
	}
	links, err := repo.ParentLinks(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: load category links")
	}
	if _, ok := links[parentID]; !ok {
		return validationError(map[string]string{"parent_id": "the selected parent category does not exist"})
	}
	steps := 0
	for cursor := links[parentID]; cursor != nil && steps <= len(links); cursor = links[*cursor] {
		steps++
		if *cursor == id {
			return validationError(map[string]string{"parent_id": "a category cannot be moved under its own descendant"})
		}
	}
	return nil
}

func deriveSlug(explicit *string, name string) string {
	if explicit != nil && strings.TrimSpace(*explicit) != "" {
		return Slugify(*explicit)
	}
	return Slugify(name)
}

func validateFields(name, slug string) map[string]string {
	fields := map[string]string{}
	switch {
	case name == "":
		fields["name"] = "name is required"
	case utf8.RuneCountInString(name) > maxNameLength:
		fields["name"] = fmt.Sprintf("name may not be greater than %d characters", maxNameLength)
	}
	if slug == "" && name != "" {
		fields["slug"] = "slug could not be derived from the name"
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

func slugTakenError() error {
	return validationError(map[string]string{"slug": "the slug has already been taken"})
}
