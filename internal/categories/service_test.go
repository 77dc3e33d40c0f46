package categories

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/groceryhub-backend/pkg/db"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/dbtest"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/groceryhub-backend/pkg/errors"
	"github.com/angelmondragon/groceryhub-backend/pkg/logger"
	"github.com/angelmondragon/groceryhub-backend/pkg/pagination"
	"github.com/angelmondragon/groceryhub-backend/pkg/types"
)

type fakeCache struct {
	values map[string]string
	gets   int
	dels   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}}
}

func (c *fakeCache) Get(_ context.Context, key string) (string, error) {
	c.gets++
	v, ok := c.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	switch v := value.(type) {
	case []byte:
		c.values[key] = string(v)
	case string:
		c.values[key] = v
	}
	return nil
}

func (c *fakeCache) Del(_ context.Context, keys ...string) error {
	c.dels++
	for _, key := range keys {
		delete(c.values, key)
	}
	return nil
}

func (c *fakeCache) CacheKey(parts ...string) string {
	return "gh:cache:" + strings.Join(parts, ":")
}

func newTestService(t *testing.T) (*service, *db.Client, *fakeCache) {
	t.Helper()
	client := dbtest.Client(t)
	cache := newFakeCache()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(NewRepository(client.DB()), client, cache, time.Minute, logg)
	require.NoError(t, err)
	return svc.(*service), client, cache
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed, "expected typed error, got %v", err)
	assert.Equal(t, code, typed.Code())
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Fruit & Vegetables": "fruit-vegetables",
		"  Dairy  ":          "dairy",
		"Café Crème":         "cafe-creme",
		"Snacks -- 2024!":    "snacks-2024",
		"***":                "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestCreateDerivesSlugAndRejectsDuplicates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Name: "Fresh Produce"})
	require.NoError(t, err)
	assert.Equal(t, "fresh-produce", created.Slug)
	assert.True(t, created.IsActive)

	_, err = svc.Create(ctx, CreateInput{Name: "Fresh produce!"})
	requireCode(t, err, pkgerrors.CodeValidation)
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "slug")
}

func TestCreateValidatesNameAndParent(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "   "})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.Create(ctx, CreateInput{Name: strings.Repeat("a", maxNameLength+1)})
	requireCode(t, err, pkgerrors.CodeValidation)

	missing := uuid.New()
	_, err = svc.Create(ctx, CreateInput{Name: "Orphan", ParentID: &missing})
	requireCode(t, err, pkgerrors.CodeValidation)
}

func TestUpdatePreventsCycles(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, CreateInput{Name: "Beverages"})
	require.NoError(t, err)
	child, err := svc.Create(ctx, CreateInput{Name: "Juice", ParentID: &root.ID})
	require.NoError(t, err)
	grandchild, err := svc.Create(ctx, CreateInput{Name: "Orange Juice", ParentID: &child.ID})
	require.NoError(t, err)

	_, err = svc.Update(ctx, root.ID, UpdateInput{ParentID: types.NullableUUID{Valid: true, Value: &root.ID}})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = svc.Update(ctx, root.ID, UpdateInput{ParentID: types.NullableUUID{Valid: true, Value: &grandchild.ID}})
	requireCode(t, err, pkgerrors.CodeValidation)

	moved, err := svc.Update(ctx, grandchild.ID, UpdateInput{ParentID: types.NullableUUID{Valid: true}})
	require.NoError(t, err)
	assert.Nil(t, moved.ParentID)
}

func TestDeleteGuardsChildrenAndProducts(t *testing.T) {
	svc, client, _ := newTestService(t)
	ctx := context.Background()

	parent, err := svc.Create(ctx, CreateInput{Name: "Bakery"})
	require.NoError(t, err)
	child, err := svc.Create(ctx, CreateInput{Name: "Bread", ParentID: &parent.ID})
	require.NoError(t, err)

	requireCode(t, svc.Delete(ctx, parent.ID), pkgerrors.CodeBusinessRule)

	require.NoError(t, client.DB().Create(&models.Product{
		CategoryID: child.ID,
		ItemCode:   "BRD-001",
		Name:       "Sourdough",
		Unit:       enums.ProductUnitPiece,
		Price:      decimal.RequireFromString("4.50"),
		Stock:      3,
		IsActive:   true,
	}).Error)
	requireCode(t, svc.Delete(ctx, child.ID), pkgerrors.CodeBusinessRule)

	requireCode(t, svc.Delete(ctx, uuid.New()), pkgerrors.CodeNotFound)
}

func TestTreeCachesAndInvalidates(t *testing.T) {
	svc, _, cache := newTestService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, CreateInput{Name: "Pantry", SortOrder: 1})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Name: "Rice", ParentID: &root.ID})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateInput{Name: "Hidden", ParentID: &root.ID, IsActive: boolPtr(false)})
	require.NoError(t, err)

	tree, err := svc.Tree(ctx, false)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "Rice", tree[0].Children[0].Name)
	assert.Contains(t, cache.values, "gh:cache:categories:tree:active")

	all, err := svc.Tree(ctx, true)
	require.NoError(t, err)
	require.Len(t, all[0].Children, 2)

	_, err = svc.Create(ctx, CreateInput{Name: "Noodles", ParentID: &root.ID})
	require.NoError(t, err)
	assert.Empty(t, cache.values)

	tree, err = svc.Tree(ctx, false)
	require.NoError(t, err)
	assert.Len(t, tree[0].Children, 2)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, CreateInput{Name: "Frozen"})
	require.NoError(t, err)
	for _, name := range []string{"Ice Cream", "Frozen Peas", "Dumplings"} {
		_, err := svc.Create(ctx, CreateInput{Name: name, ParentID: &root.ID})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, ListInput{Filter: ListFilter{ParentID: &root.ID}, Params: pagination.Params{Page: 1, PerPage: 2}})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, int64(3), page.Meta.Total)
	assert.Equal(t, 2, page.Meta.LastPage)

	search, err := svc.List(ctx, ListInput{Filter: ListFilter{Search: "PEAS"}})
	require.NoError(t, err)
	require.Len(t, search.Items, 1)
	assert.Equal(t, "Frozen Peas", search.Items[0].Name)

	roots, err := svc.List(ctx, ListInput{Filter: ListFilter{RootsOnly: true, IsActive: boolPtr(true)}})
	require.NoError(t, err)
	assert.Len(t, roots.Items, 1)
}

func TestDescendantIDs(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	root, err := svc.Create(ctx, CreateInput{Name: "Household"})
	require.NoError(t, err)
	child, err := svc.Create(ctx, CreateInput{Name: "Cleaning", ParentID: &root.ID})
	require.NoError(t, err)
	leaf, err := svc.Create(ctx, CreateInput{Name: "Detergent", ParentID: &child.ID})
	require.NoError(t, err)
	other, err := svc.Create(ctx, CreateInput{Name: "Garden", Description: strPtr("  outdoor  ")})
	require.NoError(t, err)
	assert.Equal(t, "outdoor", *other.Description)

	ids, err := svc.DescendantIDs(ctx, root.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{root.ID, child.ID, leaf.ID}, ids)
	assert.Equal(t, root.ID, ids[0])

	_, err = svc.DescendantIDs(ctx, uuid.New())
	requireCode(t, err, pkgerrors.CodeNotFound)
}
