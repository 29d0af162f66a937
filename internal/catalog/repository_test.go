package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	require.NoError(t, repo.RunMigrations())
	return repo
}

func TestRunMigrations_Idempotent(t *testing.T) {
	repo := setupTestDB(t)
	assert.NoError(t, repo.RunMigrations())
}

func TestSeed_FillsEmptyCatalogOnce(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	n, err := repo.Seed(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(seedProducts), n)

	n, err = repo.Seed(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	products, err := repo.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, len(seedProducts))
	assert.Equal(t, "Ultra-Lazr Cutter 2000", products[0].Name)
	assert.Equal(t, "Lazr Cutter Pro 5000", products[len(products)-1].Name)
}

func TestGetProduct(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	_, err := repo.Seed(ctx)
	require.NoError(t, err)

	p, err := repo.GetProduct(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Lazr Cutter Pro 5000", p.Name)
	assert.Equal(t, int64(12500000), p.Price)
	assert.Equal(t, 5, p.StockCount)
	assert.True(t, p.InStock)

	p, err = repo.GetProduct(ctx, 4)
	require.NoError(t, err)
	assert.False(t, p.InStock)

	_, err = repo.GetProduct(ctx, 999)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCreateProduct(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	repo.now = func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }

	p, err := repo.CreateProduct(ctx, NewProduct{Name: "  Desktop Engraver ", Price: 99900, Category: "Desktop"})
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, "Desktop Engraver", p.Name)
	assert.False(t, p.InStock)

	got, err := repo.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, int64(99900), got.Price)
	assert.True(t, got.CreatedAt.Equal(p.CreatedAt))

	p, err = repo.CreateProduct(ctx, NewProduct{Name: "Stocked", Price: 1, Category: "Desktop", StockCount: 3})
	require.NoError(t, err)
	assert.True(t, p.InStock)
}

func TestCreateProduct_Invalid(t *testing.T) {
	repo := setupTestDB(t)

	for name, in := range map[string]NewProduct{
		"missing name":     {Price: 100, Category: "Desktop"},
		"zero price":       {Name: "X", Category: "Desktop"},
		"missing category": {Name: "X", Price: 100},
		"negative stock":   {Name: "X", Price: 100, Category: "Desktop", StockCount: -1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := repo.CreateProduct(context.Background(), in)
			assert.ErrorIs(t, err, ErrInvalidProduct)
		})
	}
}

func TestListProducts_CancelledContext(t *testing.T) {
	repo := setupTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.ListProducts(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
