package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dshomebg/dshome-docker-sub001/internal/importer"
	"github.com/dshomebg/dshome-docker-sub001/internal/models"
)

// CatalogRepository is the gorm-backed product and warehouse collaborator of
// the import executor.
type CatalogRepository struct {
	db *gorm.DB
}

var _ importer.Catalog = (*CatalogRepository)(nil)

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// WithTransaction runs fn against a repository bound to one transaction
func (r *CatalogRepository) WithTransaction(ctx context.Context, fn func(tx importer.Catalog) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&CatalogRepository{db: tx})
	})
}

// FindProductBySKU matches the SKU exactly. Inside a transaction on postgres
// the product row stays locked until commit.
func (r *CatalogRepository) FindProductBySKU(ctx context.Context, tenantID, sku string) (*models.Product, error) {
	var product models.Product
	query := r.db.WithContext(ctx).Where("tenant_id = ? AND sku = ?", tenantID, sku)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	err := query.First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, importer.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// FindWarehouse resolves ref as a warehouse id first and then as a code.
// Closed warehouses never resolve.
func (r *CatalogRepository) FindWarehouse(ctx context.Context, tenantID, ref string) (*models.Warehouse, error) {
	var warehouse models.Warehouse
	query := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status <> ?", tenantID, models.WarehouseStatusClosed)

	if id, err := uuid.Parse(ref); err == nil {
		query = query.Where("id = ? OR code = ?", id, ref)
	} else {
		query = query.Where("code = ?", ref)
	}

	err := query.First(&warehouse).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, importer.ErrWarehouseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &warehouse, nil
}

// UpdatePrice writes the supplied price fields only
func (r *CatalogRepository) UpdatePrice(ctx context.Context, tenantID string, productID uuid.UUID, update importer.PriceUpdate) error {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if update.SalePrice != nil {
		updates["sale_price"] = *update.SalePrice
	}
	if update.PurchasePrice != nil {
		updates["purchase_price"] = *update.PurchasePrice
	}

	result := r.db.WithContext(ctx).Model(&models.Product{}).
		Where("tenant_id = ? AND id = ?", tenantID, productID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return importer.ErrProductNotFound
	}
	return nil
}

// SetInventory replaces the on-hand quantity. Reservations are kept, so the
// available quantity becomes on-hand minus reserved, floored at zero. It
// reports false without writing when on-hand already equals quantity.
func (r *CatalogRepository) SetInventory(ctx context.Context, tenantID string, productID, warehouseID uuid.UUID, quantity int) (bool, error) {
	now := time.Now()

	var stock models.StockLevel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND warehouse_id = ? AND product_id = ?", tenantID, warehouseID, productID).
		First(&stock).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		stock = models.StockLevel{
			TenantID:          tenantID,
			WarehouseID:       warehouseID,
			ProductID:         productID,
			QuantityOnHand:    quantity,
			QuantityAvailable: quantity,
			LastRestockedAt:   &now,
		}
		if err := r.db.WithContext(ctx).Create(&stock).Error; err != nil {
			return false, err
		}
		return true, nil
	case err != nil:
		return false, err
	case stock.QuantityOnHand == quantity:
		return false, nil
	}

	err = r.db.WithContext(ctx).Model(&models.StockLevel{}).
		Where("id = ?", stock.ID).
		Updates(map[string]interface{}{
			"quantity_on_hand":   quantity,
			"quantity_available": gorm.Expr("CASE WHEN ? > quantity_reserved THEN ? - quantity_reserved ELSE 0 END", quantity, quantity),
			"last_restocked_at":  now,
			"updated_at":         now,
		}).Error
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetStockLevel returns the stock row of a product at a warehouse
func (r *CatalogRepository) GetStockLevel(ctx context.Context, tenantID string, warehouseID, productID uuid.UUID) (*models.StockLevel, error) {
	var stock models.StockLevel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND warehouse_id = ? AND product_id = ?", tenantID, warehouseID, productID).
		First(&stock).Error
	if err != nil {
		return nil, err
	}
	return &stock, nil
}

// ListActiveWarehouses returns the tenant's active warehouses in slot order
func (r *CatalogRepository) ListActiveWarehouses(ctx context.Context, tenantID string) ([]models.Warehouse, error) {
	var warehouses []models.Warehouse
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, models.WarehouseStatusActive).
		Order("is_default DESC, priority DESC, code ASC").
		Find(&warehouses).Error
	return warehouses, err
}
