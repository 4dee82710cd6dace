package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"storefront/internal/models"
	"storefront/internal/store"
)

// fakeCatalogStore implements the category and product methods the tests
// exercise; anything else panics through the nil embedded interface.
type fakeCatalogStore struct {
	CatalogStore

	categories []*models.Category
	lists      int
	products   map[int64]*models.Product
	meta       map[int64]datatypes.JSON
}

func ptr(v int64) *int64 { return &v }

func newFakeCatalogStore() *fakeCatalogStore {
	return &fakeCatalogStore{
		// already in (position, name) order
		categories: []*models.Category{
			{ID: 1, Name: "Clothes", Position: 0},
			{ID: 2, Name: "Shirts", ParentID: ptr(1), Position: 0},
			{ID: 3, Name: "Linen", ParentID: ptr(2), Position: 0},
			{ID: 4, Name: "Trousers", ParentID: ptr(1), Position: 1},
			{ID: 5, Name: "Shoes", Position: 1},
		},
		products: map[int64]*models.Product{},
		meta:     map[int64]datatypes.JSON{},
	}
}

func (f *fakeCatalogStore) ListCategories(_ context.Context, opts store.ListOptions) ([]*models.Category, error) {
	f.lists++
	out := []*models.Category{}
	for _, c := range f.categories {
		if opts.Search != "" && c.Name != opts.Search {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeCatalogStore) GetCategory(_ context.Context, id int64) (*models.Category, error) {
	for _, c := range f.categories {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeCatalogStore) CategoryAncestors(_ context.Context, id int64) ([]int64, error) {
	ids := []int64{}
	for cur := &id; cur != nil; {
		c, err := f.GetCategory(context.Background(), *cur)
		if err != nil {
			break
		}
		ids = append(ids, c.ID)
		cur = c.ParentID
	}
	return ids, nil
}

func (f *fakeCatalogStore) UpdateCategory(_ context.Context, c *models.Category) error {
	for i, existing := range f.categories {
		if existing.ID == c.ID {
			cp := *c
			f.categories[i] = &cp
			return nil
		}
	}
	return store.ErrNotFound
}

func (f *fakeCatalogStore) CreateProduct(_ context.Context, p *models.Product) error {
	p.ID = int64(len(f.products) + 1)
	f.products[p.ID] = p
	return nil
}

func (f *fakeCatalogStore) SetProductMeta(_ context.Context, id int64, meta datatypes.JSON) error {
	f.meta[id] = meta
	return nil
}

type fakeCache struct {
	data    map[string][]byte
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}}
}

func (c *fakeCache) GetCache(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) SetCache(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *fakeCache) DeleteCache(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.data, k)
	}
	c.deletes++
	return nil
}

func TestBuildCategoryTree(t *testing.T) {
	st := newFakeCatalogStore()
	all, _ := st.ListCategories(context.Background(), store.ListOptions{})

	roots := BuildCategoryTree(all)
	require.Len(t, roots, 2)
	assert.Equal(t, "Clothes", roots[0].Name)
	assert.Equal(t, "Shoes", roots[1].Name)

	require.Len(t, roots[0].Children, 2)
	assert.Equal(t, "Shirts", roots[0].Children[0].Name)
	assert.Equal(t, "Trousers", roots[0].Children[1].Name)
	require.Len(t, roots[0].Children[0].Children, 1)
	assert.Equal(t, "Linen", roots[0].Children[0].Children[0].Name)
	assert.NotNil(t, roots[1].Children)
	assert.Empty(t, roots[1].Children)
}

func TestListCategoriesFlatHasNoChildren(t *testing.T) {
	svc := NewCatalogService(newFakeCatalogStore(), nil, time.Minute, nil)

	flat, err := svc.ListCategories(context.Background(), store.ListOptions{}, false)
	require.NoError(t, err)
	assert.Len(t, flat, 5)
	for _, c := range flat {
		assert.Nil(t, c.Children)
	}
	raw, err := json.Marshal(flat[0])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"children":null`)
}

func TestListCategoriesTreeIsCached(t *testing.T) {
	st := newFakeCatalogStore()
	cache := newFakeCache()
	svc := NewCatalogService(st, cache, time.Minute, nil)

	first, err := svc.ListCategories(context.Background(), store.ListOptions{}, true)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, 1, st.lists)

	second, err := svc.ListCategories(context.Background(), store.ListOptions{}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, st.lists, "second tree read is served from cache")
	require.Len(t, second, 2)
	require.Len(t, second[0].Children, 2)
	assert.Equal(t, "Linen", second[0].Children[0].Children[0].Name)

	c, err := svc.GetCategory(context.Background(), 5)
	require.NoError(t, err)
	c.Position = 9
	require.NoError(t, svc.UpdateCategory(context.Background(), c))
	assert.Empty(t, cache.data, "writes invalidate the tree")

	_, err = svc.ListCategories(context.Background(), store.ListOptions{}, true)
	require.NoError(t, err)
	assert.Equal(t, 2, st.lists)
}

func TestListCategoriesTreeWithSearch(t *testing.T) {
	svc := NewCatalogService(newFakeCatalogStore(), newFakeCache(), time.Minute, nil)

	roots, err := svc.ListCategories(context.Background(), store.ListOptions{Search: "Shoes"}, true)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "Shoes", roots[0].Name)
}

func TestUpdateCategoryRejectsCycles(t *testing.T) {
	svc := NewCatalogService(newFakeCatalogStore(), nil, time.Minute, nil)

	cases := []struct {
		name   string
		id     int64
		parent int64
	}{
		{"self", 1, 1},
		{"child", 1, 2},
		{"grandchild", 1, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, err := svc.GetCategory(context.Background(), tc.id)
			require.NoError(t, err)
			c.ParentID = ptr(tc.parent)

			err = svc.UpdateCategory(context.Background(), c)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields, "parent")
		})
	}

	c, err := svc.GetCategory(context.Background(), 5)
	require.NoError(t, err)
	c.ParentID = ptr(3)
	assert.NoError(t, svc.UpdateCategory(context.Background(), c))
}

func TestCreateProductPublishesAndStoresStreamID(t *testing.T) {
	st := newFakeCatalogStore()
	pub := newFakePublisher("1700000000000-0")
	svc := NewCatalogService(st, nil, time.Minute, pub)

	in := &ProductInput{
		Name:        "Shirt",
		Slug:        "shirt",
		CategoryID:  2,
		BrandID:     1,
		SKU:         "SH-1",
		Price:       models.MustMoney("1490.5"),
		IsPublished: true,
		Meta:        datatypes.JSON(`{"origin":"import"}`),
	}
	p, err := svc.CreateProduct(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, "RUB", p.Currency)
	assert.Equal(t, models.ProductInStock, p.Status)
	require.Len(t, pub.records[models.EventKindProduct], 1)
	assert.Equal(t, "1490.50", pub.records[models.EventKindProduct][0]["price"])
	assert.JSONEq(t, `{"origin":"import","last_stream_id":"1700000000000-0"}`, string(st.meta[p.ID]))
}

func TestCreateProductOfflineAndUnpublished(t *testing.T) {
	st := newFakeCatalogStore()
	pub := newFakePublisher(models.StreamOffline)
	svc := NewCatalogService(st, nil, time.Minute, pub)

	p, err := svc.CreateProduct(context.Background(), &ProductInput{Name: "A", Slug: "a", SKU: "A", IsPublished: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"last_stream_id":"offline"}`, string(st.meta[p.ID]))

	draft, err := svc.CreateProduct(context.Background(), &ProductInput{Name: "B", Slug: "b", SKU: "B"})
	require.NoError(t, err)
	assert.NotContains(t, st.meta, draft.ID)
	assert.Len(t, pub.records[models.EventKindProduct], 1)
}
