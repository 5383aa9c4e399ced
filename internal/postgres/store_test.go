package postgres_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verdance/verdance/platform/internal/catalog"
	"github.com/verdance/verdance/platform/internal/domain"
	"github.com/verdance/verdance/platform/internal/postgres"
)

// --- CatalogStore ---

func TestCatalogStore_LoadSnapshot(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	insertItem(t, pool, "plant", "p2", 2, `{"name":"Snake Plant","compatible_locations":"bedroom, kitchen","difficulty":"2"}`)
	insertItem(t, pool, "plant", "p1", 1, `{"name":"Pothos","compatible_locations":["kitchen","office"],"watering_frequency":"weekly"}`)
	insertItem(t, pool, "product", "x1", 0, `{"name":"Terracotta Pot","is_premium_content":"false"}`)
	insertItem(t, pool, "kit", "k1", 0, `{"name":"Kitchen Starter","plant_ids":"p1,p2"}`)
	insertPlantProduct(t, pool, "p1", "x1", `{"compatibility_rating":9,"primary_purpose":"potting"}`)

	snap, err := postgres.NewCatalogStore(pool).LoadSnapshot(ctx)
	require.NoError(t, err)

	require.Len(t, snap.Plants, 2)
	assert.Equal(t, "p1", snap.Plants[0].ID, "position orders items")
	assert.Equal(t, "Pothos", snap.Plants[0].Name)
	assert.True(t, snap.Plants[1].HasLocation("bedroom"))
	assert.Len(t, snap.Products, 1)
	assert.Len(t, snap.Kits, 1)

	require.Len(t, snap.PlantProducts, 1)
	assert.Equal(t, 5, snap.PlantProducts[0].CompatibilityRating, "ratings clamp to 5")
	assert.Equal(t, "potting", snap.PlantProducts[0].PrimaryPurpose)
}

func TestCatalogStore_EmptyTables(t *testing.T) {
	pool := testPool(t)

	snap, err := postgres.NewCatalogStore(pool).LoadSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, catalog.Counts{}, snap.Counts())
}

func TestCatalogStore_CanceledContext(t *testing.T) {
	pool := testPool(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := postgres.NewCatalogStore(pool).LoadSnapshot(ctx)
	assert.Error(t, err)
}

// --- UserStore ---

func TestUserStore_GetUser(t *testing.T) {
	pool := testPool(t)
	insertUser(t, pool, "Ada@Example.com", "premium",
		`{"recommendations":{"period_key":"2026-10-17","count":4}}`)

	u, err := postgres.NewUserStore(pool).GetUser(context.Background(), "  ada@example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "Ada@Example.com", u.Email)
	assert.Equal(t, domain.TierPremium, u.Tier)
	assert.Equal(t, 4, u.RequestTracking["recommendations"].Count)
}

func TestUserStore_UnknownStatusIsFree(t *testing.T) {
	pool := testPool(t)
	insertUser(t, pool, "bob@example.com", "canceled", `{}`)

	u, err := postgres.NewUserStore(pool).GetUser(context.Background(), "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, u.Tier)
	assert.Empty(t, u.RequestTracking)
}

func TestUserStore_NotFound(t *testing.T) {
	pool := testPool(t)

	_, err := postgres.NewUserStore(pool).GetUser(context.Background(), "nobody@example.com")
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrUserNotFound))
}

func TestHealthChecker(t *testing.T) {
	pool := testPool(t)
	h := postgres.NewHealthChecker(pool)
	assert.Equal(t, "postgres", h.Name())
	assert.NoError(t, h.HealthCheck(context.Background()))
}
