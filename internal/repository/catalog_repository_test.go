package repository

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dshomebg/dshome-docker-sub001/internal/config"
	"github.com/dshomebg/dshome-docker-sub001/internal/database"
	"github.com/dshomebg/dshome-docker-sub001/internal/importer"
	"github.com/dshomebg/dshome-docker-sub001/internal/models"
)

const testTenant = "tenant-1"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := config.InitDB(&config.Config{
		DBDriver:    "sqlite",
		SQLitePath:  filepath.Join(t.TempDir(), "repository.db"),
		Environment: "test",
	})
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	require.NoError(t, database.RunMigrations(db, logger))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, tenantID, sku string, price float64) *models.Product {
	t.Helper()
	p := &models.Product{TenantID: tenantID, SKU: sku, Name: sku, SalePrice: price}
	require.NoError(t, db.Create(p).Error)
	return p
}

func seedWarehouse(t *testing.T, db *gorm.DB, tenantID, code string, status models.WarehouseStatus) *models.Warehouse {
	t.Helper()
	w := &models.Warehouse{TenantID: tenantID, Code: code, Name: code, Status: status}
	require.NoError(t, db.Create(w).Error)
	return w
}

func TestCatalogRepository_FindProductBySKU(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCatalogRepository(db)
	ctx := context.Background()
	seeded := seedProduct(t, db, testTenant, "TSH-001", 19.99)
	seedProduct(t, db, "other-tenant", "TSH-002", 5)

	p, err := repo.FindProductBySKU(ctx, testTenant, "TSH-001")
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, p.ID)
	assert.Equal(t, 19.99, p.SalePrice)

	_, err = repo.FindProductBySKU(ctx, testTenant, "tsh-001")
	assert.ErrorIs(t, err, importer.ErrProductNotFound)

	_, err = repo.FindProductBySKU(ctx, testTenant, "TSH-002")
	assert.ErrorIs(t, err, importer.ErrProductNotFound)
}

func TestCatalogRepository_FindWarehouse(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCatalogRepository(db)
	ctx := context.Background()
	main := seedWarehouse(t, db, testTenant, "MAIN", models.WarehouseStatusActive)
	seedWarehouse(t, db, testTenant, "OLD", models.WarehouseStatusClosed)
	seedWarehouse(t, db, "other-tenant", "FOREIGN", models.WarehouseStatusActive)

	byID, err := repo.FindWarehouse(ctx, testTenant, main.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "MAIN", byID.Code)

	byCode, err := repo.FindWarehouse(ctx, testTenant, "MAIN")
	require.NoError(t, err)
	assert.Equal(t, main.ID, byCode.ID)

	for _, ref := range []string{"OLD", "FOREIGN", uuid.NewString(), ""} {
		_, err := repo.FindWarehouse(ctx, testTenant, ref)
		assert.ErrorIs(t, err, importer.ErrWarehouseNotFound, ref)
	}
}

func TestCatalogRepository_UpdatePriceOnlyWritesSuppliedFields(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCatalogRepository(db)
	ctx := context.Background()
	p := seedProduct(t, db, testTenant, "SKU1", 10)

	cost := 6.5
	require.NoError(t, repo.UpdatePrice(ctx, testTenant, p.ID, importer.PriceUpdate{PurchasePrice: &cost}))

	got, err := repo.FindProductBySKU(ctx, testTenant, "SKU1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.SalePrice)
	require.NotNil(t, got.PurchasePrice)
	assert.Equal(t, 6.5, *got.PurchasePrice)

	err = repo.UpdatePrice(ctx, testTenant, uuid.New(), importer.PriceUpdate{PurchasePrice: &cost})
	assert.ErrorIs(t, err, importer.ErrProductNotFound)
}

func TestCatalogRepository_SetInventoryReplacesQuantity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCatalogRepository(db)
	ctx := context.Background()
	p := seedProduct(t, db, testTenant, "SKU1", 1)
	w := seedWarehouse(t, db, testTenant, "MAIN", models.WarehouseStatusActive)

	changed, err := repo.SetInventory(ctx, testTenant, p.ID, w.ID, 12)
	require.NoError(t, err)
	assert.True(t, changed)
	stock, err := repo.GetStockLevel(ctx, testTenant, w.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 12, stock.QuantityOnHand)
	assert.Equal(t, 12, stock.QuantityAvailable)
	assert.NotNil(t, stock.LastRestockedAt)

	require.NoError(t, db.Model(&models.StockLevel{}).Where("id = ?", stock.ID).Update("quantity_reserved", 4).Error)

	changed, err = repo.SetInventory(ctx, testTenant, p.ID, w.ID, 7)
	require.NoError(t, err)
	assert.True(t, changed)
	stock, err = repo.GetStockLevel(ctx, testTenant, w.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, stock.QuantityOnHand)
	assert.Equal(t, 3, stock.QuantityAvailable)
	assert.Equal(t, 4, stock.QuantityReserved)

	changed, err = repo.SetInventory(ctx, testTenant, p.ID, w.ID, 2)
	require.NoError(t, err)
	assert.True(t, changed)
	stock, err = repo.GetStockLevel(ctx, testTenant, w.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stock.QuantityAvailable)

	var count int64
	db.Model(&models.StockLevel{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCatalogRepository_SetInventoryUnchangedQuantity(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCatalogRepository(db)
	ctx := context.Background()
	p := seedProduct(t, db, testTenant, "SKU1", 1)
	w := seedWarehouse(t, db, testTenant, "MAIN", models.WarehouseStatusActive)

	_, err := repo.SetInventory(ctx, testTenant, p.ID, w.ID, 9)
	require.NoError(t, err)
	before, err := repo.GetStockLevel(ctx, testTenant, w.ID, p.ID)
	require.NoError(t, err)

	changed, err := repo.SetInventory(ctx, testTenant, p.ID, w.ID, 9)
	require.NoError(t, err)
	assert.False(t, changed)

	after, err := repo.GetStockLevel(ctx, testTenant, w.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, after.QuantityOnHand)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestCatalogRepository_WithTransactionRollsBack(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCatalogRepository(db)
	ctx := context.Background()
	p := seedProduct(t, db, testTenant, "SKU1", 10)

	boom := errors.New("boom")
	err := repo.WithTransaction(ctx, func(tx importer.Catalog) error {
		price := 99.0
		if err := tx.UpdatePrice(ctx, testTenant, p.ID, importer.PriceUpdate{SalePrice: &price}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := repo.FindProductBySKU(ctx, testTenant, "SKU1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, got.SalePrice)
}

func TestCatalogRepository_ListActiveWarehouses(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCatalogRepository(db)
	seedWarehouse(t, db, testTenant, "B", models.WarehouseStatusActive)
	seedWarehouse(t, db, testTenant, "A", models.WarehouseStatusActive)
	seedWarehouse(t, db, testTenant, "C", models.WarehouseStatusInactive)
	def := &models.Warehouse{TenantID: testTenant, Code: "Z", Name: "Z", Status: models.WarehouseStatusActive, IsDefault: true}
	require.NoError(t, db.Create(def).Error)

	warehouses, err := repo.ListActiveWarehouses(context.Background(), testTenant)
	require.NoError(t, err)

	codes := make([]string, 0, len(warehouses))
	for _, w := range warehouses {
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []string{"Z", "A", "B"}, codes)
}
