package service

import (
	"context"
	"testing"

	"registration-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	items map[string]*models.CatalogItem
}

func (f *fakeCatalog) GetCatalogItemByName(_ context.Context, name string) (*models.CatalogItem, error) {
	return f.items[name], nil
}

func testCatalog() *fakeCatalog {
	return &fakeCatalog{items: map[string]*models.CatalogItem{
		"Chess (Boys)":  {ID: 1, Name: "Chess (Boys)", Price: 150},
		"Chess (Girls)": {ID: 2, Name: "Chess (Girls)", Price: 0},
		"Kabaddi":       {ID: 3, Name: "Kabaddi", Price: 1100},
		"Box Cricket":   {ID: 4, Name: "Box Cricket", Price: 1100},
	}}
}

func TestResolveVariantLookup(t *testing.T) {
	r := NewPricingResolver(testCatalog())

	item, err := r.Resolve(context.Background(), "Chess", "Boys")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "Chess (Boys)", item.Name)
	assert.Equal(t, int64(150), item.Price)
}

func TestResolveCategoryCaseInsensitive(t *testing.T) {
	r := NewPricingResolver(testCatalog())

	item, err := r.Resolve(context.Background(), "Chess", "boys")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "Chess (Boys)", item.Name)
}

func TestResolveOpenCategoryUsesExactName(t *testing.T) {
	r := NewPricingResolver(testCatalog())

	item, err := r.Resolve(context.Background(), "Kabaddi", "Open")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "Kabaddi", item.Name)
}

func TestResolveFallsBackToExactName(t *testing.T) {
	r := NewPricingResolver(testCatalog())

	// No "Box Cricket (Boys)" variant exists; the plain entry must win.
	item, err := r.Resolve(context.Background(), "Box Cricket", "Boys")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, int64(1100), item.Price)
}

func TestResolveCartTotalsFromCatalog(t *testing.T) {
	r := NewPricingResolver(testCatalog())

	resolved, total, err := r.ResolveCart(context.Background(), []CartItem{
		{Name: "Chess", Category: "Boys"},
		{Name: "Kabaddi", Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 2)
	assert.Equal(t, int64(150+2*1100), total)
	assert.Equal(t, "Chess (Boys)", resolved[0].Name)
	assert.Equal(t, 1, resolved[0].Quantity)
	assert.Equal(t, 2, resolved[1].Quantity)
}

func TestResolveCartRejectsUnknownItems(t *testing.T) {
	r := NewPricingResolver(testCatalog())

	_, _, err := r.ResolveCart(context.Background(), []CartItem{
		{Name: "Chess", Category: "Boys"},
		{Name: "Underwater Hockey"},
		{Name: "Sepak Takraw"},
	})

	var itemErr *models.ItemNotFoundError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, []string{"Underwater Hockey", "Sepak Takraw"}, itemErr.Names)
}

func TestResolveCartSkipsBlankLines(t *testing.T) {
	r := NewPricingResolver(testCatalog())

	resolved, total, err := r.ResolveCart(context.Background(), []CartItem{
		{Name: "  "},
		{Name: "Kabaddi"},
	})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, int64(1100), total)
}
