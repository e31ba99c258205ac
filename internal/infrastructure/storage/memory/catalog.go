package memory

import (
	"context"
	"sync"

	"stockpos/internal/core/apperror"
	"stockpos/internal/core/id"
	"stockpos/internal/domain/catalog"
)

type productKey struct {
	storeID   id.ID
	productID id.ID
}

// Catalog holds products and store settings.
type Catalog struct {
	mu       sync.RWMutex
	products map[productKey]catalog.Product
	settings map[id.ID]catalog.StoreSettings
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		products: make(map[productKey]catalog.Product),
		settings: make(map[id.ID]catalog.StoreSettings),
	}
}

// PutProduct adds or replaces a product.
func (c *Catalog) PutProduct(p catalog.Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[productKey{p.StoreID, p.ID}] = p
}

// PutStoreSettings adds or replaces store settings.
func (c *Catalog) PutStoreSettings(s catalog.StoreSettings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings[s.StoreID] = s
}

func (c *Catalog) GetProduct(_ context.Context, storeID, productID id.ID) (*catalog.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.products[productKey{storeID, productID}]
	if !ok {
		return nil, apperror.NewNotFound("product", productID).WithDetail("store_id", storeID)
	}
	return &p, nil
}

func (c *Catalog) ListProducts(_ context.Context, storeID id.ID) ([]catalog.Product, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []catalog.Product
	for k, p := range c.products {
		if k.storeID == storeID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *Catalog) GetStoreSettings(_ context.Context, storeID id.ID) (*catalog.StoreSettings, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if s, ok := c.settings[storeID]; ok {
		return &s, nil
	}
	return catalog.DefaultStoreSettings(storeID), nil
}

var (
	_ catalog.Reader         = (*Catalog)(nil)
	_ catalog.SettingsReader = (*Catalog)(nil)
)
