package inventory_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockpos/internal/core/apperror"
	"stockpos/internal/core/id"
	"stockpos/internal/domain/catalog"
	"stockpos/internal/infrastructure/storage/postgres"
)

const (
	productsTable = "cat_products"
	settingsTable = "store_settings"
)

var (
	productColumns  = postgres.ExtractDBColumns[catalog.Product]()
	settingsColumns = postgres.ExtractDBColumns[catalog.StoreSettings]()
)

// CatalogRepo reads products and store settings. Both tables are written by
// the catalog service; this repo never modifies them.
type CatalogRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var (
	_ catalog.Reader         = (*CatalogRepo)(nil)
	_ catalog.SettingsReader = (*CatalogRepo)(nil)
)

// NewCatalogRepo creates a new catalog repository.
func NewCatalogRepo(txManager *postgres.TxManager) *CatalogRepo {
	return &CatalogRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetProduct returns the store's view of a product.
func (r *CatalogRepo) GetProduct(ctx context.Context, storeID, productID id.ID) (*catalog.Product, error) {
	sql, args, err := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"id": productID, "store_id": storeID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var p catalog.Product
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID.String()).
				WithDetail("store_id", storeID.String())
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// ListProducts returns all products of a store ordered by name.
func (r *CatalogRepo) ListProducts(ctx context.Context, storeID id.ID) ([]catalog.Product, error) {
	sql, args, err := r.builder.Select(productColumns...).
		From(productsTable).
		Where(squirrel.Eq{"store_id": storeID}).
		OrderBy("name", "id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var products []catalog.Product
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &products, sql, args...); err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	return products, nil
}

// GetStoreSettings returns the store's settings, or the defaults when none are stored.
func (r *CatalogRepo) GetStoreSettings(ctx context.Context, storeID id.ID) (*catalog.StoreSettings, error) {
	sql, args, err := r.builder.Select(settingsColumns...).
		From(settingsTable).
		Where(squirrel.Eq{"store_id": storeID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var s catalog.StoreSettings
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &s, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return catalog.DefaultStoreSettings(storeID), nil
		}
		return nil, fmt.Errorf("get store settings: %w", err)
	}
	return &s, nil
}
