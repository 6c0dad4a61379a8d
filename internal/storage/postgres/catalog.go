package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/boutique-checkout/internal/domain/catalog"
)

const (
	variantColumns = `v.id, v.product_id, p.name, v.sku, v.size, v.color, v.price, v.active,
		v.quantity, v.reserved, v.low_stock_threshold`

	getVariantsSQL = `SELECT ` + variantColumns + `
		FROM product_variants v JOIN products p ON p.id = v.product_id
		WHERE v.id = ANY($1) AND v.active = TRUE`

	listVariantsSQL = `SELECT ` + variantColumns + `
		FROM product_variants v JOIN products p ON p.id = v.product_id
		WHERE v.active = TRUE
		ORDER BY p.name, v.sku`
)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// GetVariants returns the active variants among ids. Unknown and inactive
// ids are absent from the result.
func (r *CatalogRepository) GetVariants(ctx context.Context, ids []string) ([]catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, getVariantsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

// ListVariants returns every active variant.
func (r *CatalogRepository) ListVariants(ctx context.Context) ([]catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, listVariantsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing variants: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var v catalog.Variant
	err := row.Scan(
		&v.ID, &v.ProductID, &v.ProductName, &v.SKU, &v.Size, &v.Color, &v.Price, &v.Active,
		&v.Stock.Quantity, &v.Stock.Reserved, &v.Stock.LowStockThreshold,
	)
	return v, err
}
