package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdance/verdance/platform/internal/postgres"
)

// testPool returns a pgxpool.Pool connected to the test database.
// It skips the test if DATABASE_URL is not set.
// It runs migrations and empties all tables before returning.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, url)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := postgres.Migrate(ctx, pool); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cleanTables(t, pool)

	return pool
}

func cleanTables(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()
	for _, table := range []string{"plant_products", "catalog_items", "users"} {
		if _, err := pool.Exec(ctx, "TRUNCATE "+table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}

func insertItem(t *testing.T, pool *pgxpool.Pool, kind, id string, position int, doc string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO catalog_items (kind, id, position, doc) VALUES ($1, $2, $3, $4::jsonb)`,
		kind, id, position, doc)
	if err != nil {
		t.Fatalf("insert %s %s: %v", kind, id, err)
	}
}

func insertPlantProduct(t *testing.T, pool *pgxpool.Pool, plantID, productID, doc string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO plant_products (plant_id, product_id, doc) VALUES ($1, $2, $3::jsonb)`,
		plantID, productID, doc)
	if err != nil {
		t.Fatalf("insert plant product %s/%s: %v", plantID, productID, err)
	}
}

func insertUser(t *testing.T, pool *pgxpool.Pool, email, status, tracking string) {
	t.Helper()
	_, err := pool.Exec(context.Background(),
		`INSERT INTO users (email, subscription_status, request_tracking) VALUES ($1, $2, $3::jsonb)`,
		email, status, tracking)
	if err != nil {
		t.Fatalf("insert user %s: %v", email, err)
	}
}
