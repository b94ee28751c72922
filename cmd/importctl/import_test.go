package main

import (
	"bytes"
	"io"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/dshomebg/dshome-docker-sub001/internal/config"
	"github.com/dshomebg/dshome-docker-sub001/internal/database"
	"github.com/dshomebg/dshome-docker-sub001/internal/models"
)

const cliTenant = "tenant-cli"

// setupCLIDatabase points the command at a fresh sqlite file and returns a
// handle for seeding and inspection
func setupCLIDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "importctl.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", path)
	t.Setenv("ENVIRONMENT", "test")
	t.Setenv("SLOT_WAREHOUSES", "")
	t.Setenv("DYNAMIC_WAREHOUSE_SLOTS", "false")

	db, err := config.InitDB(&config.Config{DBDriver: "sqlite", SQLitePath: path, Environment: "test"})
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

func writeWorkbook(t *testing.T, rows ...[]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(t.TempDir(), "prices.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func executeImport(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newImportCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestImportCommand_AppliesWorkbook(t *testing.T) {
	db := setupCLIDatabase(t)
	sku1 := &models.Product{TenantID: cliTenant, SKU: "SKU1", Name: "SKU1", SalePrice: 10}
	sku2 := &models.Product{TenantID: cliTenant, SKU: "SKU2", Name: "SKU2", SalePrice: 15.5}
	require.NoError(t, db.Create(sku1).Error)
	require.NoError(t, db.Create(sku2).Error)
	wh := &models.Warehouse{TenantID: cliTenant, Code: "WH-A", Name: "WH-A", Status: models.WarehouseStatusActive}
	require.NoError(t, db.Create(wh).Error)

	path := writeWorkbook(t,
		[]interface{}{"Ref", "Price", "Stock-A"},
		[]interface{}{"SKU1", "19.99", "5"},
		[]interface{}{"SKU2", "", "3"},
		[]interface{}{"SKU-UNKNOWN", "9.99", "1"},
	)

	out, err := executeImport(t,
		"--file", path,
		"--tenant", cliTenant,
		"--map", "Ref=sku,Price=salePrice,Stock-A=warehouse1Qty",
		"--slot-warehouse", "1=WH-A",
		"--workers", "2",
	)

	assert.ErrorIs(t, err, errPartialImport)
	assert.Contains(t, out, `warehouse 1: qty <- "Stock-A", warehouse <- fixed "WH-A"`)
	assert.Contains(t, out, "=== Import Report ===")
	assert.Contains(t, out, "Status:              completed with errors")
	assert.Contains(t, out, "Total rows:          3")
	assert.Contains(t, out, "Processed:           2")
	assert.Contains(t, out, "Prices updated:      1")
	assert.Contains(t, out, "Inventories updated: 2")
	assert.Contains(t, out, "Row 4: SKU SKU-UNKNOWN — product not found\n")

	var product models.Product
	require.NoError(t, db.Where("sku = ?", "SKU1").First(&product).Error)
	assert.Equal(t, 19.99, product.SalePrice)
	var stock models.StockLevel
	require.NoError(t, db.Where("product_id = ? AND warehouse_id = ?", sku2.ID, wh.ID).First(&stock).Error)
	assert.Equal(t, 3, stock.QuantityOnHand)
}

func TestImportCommand_CleanRunSucceeds(t *testing.T) {
	db := setupCLIDatabase(t)
	require.NoError(t, db.Create(&models.Product{TenantID: cliTenant, SKU: "SKU1", Name: "SKU1", SalePrice: 1}).Error)

	path := writeWorkbook(t,
		[]interface{}{"sku", "salePrice"},
		[]interface{}{"SKU1", "2.50"},
	)

	out, err := executeImport(t, "--file", path, "--tenant", cliTenant, "--map", "sku=sku,salePrice=salePrice")

	require.NoError(t, err)
	assert.Contains(t, out, "Status:              completed\n")
	assert.NotContains(t, out, "Row ")
}

func TestImportCommand_DryRunWritesNothing(t *testing.T) {
	db := setupCLIDatabase(t)
	require.NoError(t, db.Create(&models.Product{TenantID: cliTenant, SKU: "SKU1", Name: "SKU1", SalePrice: 1}).Error)

	path := writeWorkbook(t,
		[]interface{}{"Ref", "Price"},
		[]interface{}{"SKU1", "99"},
	)

	out, err := executeImport(t, "--file", path, "--tenant", cliTenant, "--map", "Ref=sku,Price=salePrice", "--dry-run")

	require.NoError(t, err)
	assert.Contains(t, out, "Dry run, nothing written.")
	assert.NotContains(t, out, "=== Import Report ===")
	var product models.Product
	require.NoError(t, db.Where("sku = ?", "SKU1").First(&product).Error)
	assert.Equal(t, 1.0, product.SalePrice)
}

func TestImportCommand_RejectsBadInput(t *testing.T) {
	setupCLIDatabase(t)
	path := writeWorkbook(t,
		[]interface{}{"Ref", "Price"},
		[]interface{}{"SKU1", "99"},
	)

	_, err := executeImport(t, "--file", path, "--tenant", cliTenant, "--map", "Price=salePrice")
	assert.ErrorContains(t, err, "mapping is not executable")

	_, err = executeImport(t, "--file", path, "--tenant", cliTenant, "--map", "Ref=sku", "--slot-warehouse", "WH-A")
	assert.ErrorContains(t, err, "--slot-warehouse")

	t.Setenv("SLOT_WAREHOUSES", "1:WH-A")
	_, err = executeImport(t, "--file", path, "--tenant", cliTenant, "--map", "Ref=sku")
	assert.ErrorContains(t, err, "SLOT_WAREHOUSES")

	_, err = executeImport(t, "--tenant", cliTenant)
	assert.ErrorContains(t, err, "file")
}
