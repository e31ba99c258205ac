// Package catalog describes the product catalog and store settings as the
// ledger sees them. Both are owned by other services and only read here.
package catalog

import (
	"context"
	"time"

	"stockpos/internal/core/id"
	"stockpos/internal/core/types"
)

// Product is the catalog view used to seed records and refresh snapshots.
type Product struct {
	ID              id.ID       `db:"id" json:"id"`
	StoreID         id.ID       `db:"store_id" json:"storeId"`
	Name            string      `db:"name" json:"name"`
	Barcode         string      `db:"barcode" json:"barcode"`
	Category        string      `db:"category" json:"category"`
	CostPrice       types.Money `db:"cost_price" json:"costPrice"`
	SellingPrice    types.Money `db:"selling_price" json:"sellingPrice"`
	ReorderPoint    int64       `db:"reorder_point" json:"reorderPoint"`
	ReorderQuantity int64       `db:"reorder_quantity" json:"reorderQuantity"`
	MaxStockLevel   int64       `db:"max_stock_level" json:"maxStockLevel"`
	ExpiryDate      *time.Time  `db:"expiry_date" json:"expiryDate,omitempty"`
	UpdatedAt       time.Time   `db:"updated_at" json:"updatedAt"`
}

// StoreSettings are the per-store switches the ledger consults.
type StoreSettings struct {
	StoreID            id.ID  `db:"store_id" json:"storeId"`
	AllowNegativeStock bool   `db:"allow_negative_stock" json:"allowNegativeStock"`
	// NegativeStockRule optionally narrows AllowNegativeStock with a CEL expression.
	NegativeStockRule string `db:"negative_stock_rule" json:"negativeStockRule,omitempty"`
}

// DefaultStoreSettings is used when a store has no settings row: hard floor, no rule.
func DefaultStoreSettings(storeID id.ID) *StoreSettings {
	return &StoreSettings{StoreID: storeID}
}

// Reader reads catalog data. GetProduct returns apperror NOT_FOUND for unknown products.
type Reader interface {
	GetProduct(ctx context.Context, storeID, productID id.ID) (*Product, error)
	ListProducts(ctx context.Context, storeID id.ID) ([]Product, error)
}

// SettingsReader reads store settings. Missing rows yield DefaultStoreSettings.
type SettingsReader interface {
	GetStoreSettings(ctx context.Context, storeID id.ID) (*StoreSettings, error)
}
