package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verdance/verdance/platform/internal/catalog"
	"github.com/verdance/verdance/platform/internal/domain"
)

// CatalogStore implements catalog.Source over the catalog_items and
// plant_products tables.
type CatalogStore struct {
	pool *pgxpool.Pool
}

// NewCatalogStore creates a CatalogStore backed by the given pool.
func NewCatalogStore(pool *pgxpool.Pool) *CatalogStore {
	return &CatalogStore{pool: pool}
}

// LoadSnapshot reads every catalog document in one read-only transaction
// and normalizes the result. Items keep (position, id) order.
func (s *CatalogStore) LoadSnapshot(ctx context.Context) (*catalog.Snapshot, error) {
	var raw catalog.Raw
	err := readSnapshot(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		if raw.Plants, raw.Products, raw.Kits, err = loadItems(ctx, tx); err != nil {
			return err
		}
		raw.PlantProducts, err = loadPlantProducts(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return catalog.Build(raw), nil
}

func loadItems(ctx context.Context, tx pgx.Tx) (plants, products, kits []map[string]any, err error) {
	rows, err := tx.Query(ctx,
		`SELECT kind, id, doc FROM catalog_items ORDER BY kind, position, id`)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("query catalog items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, id string
		var data []byte
		if err := rows.Scan(&kind, &id, &data); err != nil {
			return nil, nil, nil, fmt.Errorf("scan catalog item: %w", err)
		}
		doc, err := decodeDoc(data)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%s %s: %w", kind, id, err)
		}
		withKey(doc, "id", id)

		switch domain.ItemKind(kind) {
		case domain.KindPlant:
			plants = append(plants, doc)
		case domain.KindProduct:
			products = append(products, doc)
		case domain.KindKit:
			kits = append(kits, doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, nil, fmt.Errorf("iterate catalog items: %w", err)
	}
	return plants, products, kits, nil
}

func loadPlantProducts(ctx context.Context, tx pgx.Tx) ([]map[string]any, error) {
	rows, err := tx.Query(ctx,
		`SELECT plant_id, product_id, doc FROM plant_products ORDER BY plant_id, product_id`)
	if err != nil {
		return nil, fmt.Errorf("query plant products: %w", err)
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		var plantID, productID string
		var data []byte
		if err := rows.Scan(&plantID, &productID, &data); err != nil {
			return nil, fmt.Errorf("scan plant product: %w", err)
		}
		doc, err := decodeDoc(data)
		if err != nil {
			return nil, fmt.Errorf("plant product %s/%s: %w", plantID, productID, err)
		}
		doc["plant_id"] = plantID
		doc["product_id"] = productID
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plant products: %w", err)
	}
	return out, nil
}
