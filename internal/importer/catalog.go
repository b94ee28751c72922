package importer

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dshomebg/dshome-docker-sub001/internal/models"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrWarehouseNotFound = errors.New("warehouse not found")
	ErrTimeout           = errors.New("import timed out")
)

// PriceUpdate carries the price fields to write; nil fields are left untouched
type PriceUpdate struct {
	SalePrice     *float64
	PurchasePrice *float64
}

// Empty reports whether the update would write nothing
func (u PriceUpdate) Empty() bool {
	return u.SalePrice == nil && u.PurchasePrice == nil
}

// Catalog is the product and warehouse collaborator the executor writes to.
// FindProductBySKU and FindWarehouse return ErrProductNotFound and
// ErrWarehouseNotFound respectively when nothing matches.
type Catalog interface {
	FindProductBySKU(ctx context.Context, tenantID, sku string) (*models.Product, error)
	// FindWarehouse resolves a warehouse by id or by code
	FindWarehouse(ctx context.Context, tenantID, ref string) (*models.Warehouse, error)
	UpdatePrice(ctx context.Context, tenantID string, productID uuid.UUID, update PriceUpdate) error
	// SetInventory replaces the on-hand quantity of a product at a warehouse
	// and reports whether the stored quantity changed
	SetInventory(ctx context.Context, tenantID string, productID, warehouseID uuid.UUID, quantity int) (bool, error)
	WithTransaction(ctx context.Context, fn func(tx Catalog) error) error
}
