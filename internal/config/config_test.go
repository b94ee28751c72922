package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, 6, cfg.WarehouseSlots)
	assert.False(t, cfg.DynamicWarehouseSlots)
	assert.Equal(t, 10*time.Minute, cfg.ImportTimeout)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 50000, cfg.MaxImportRows)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("WAREHOUSE_SLOTS", "3")
	t.Setenv("DYNAMIC_WAREHOUSE_SLOTS", "true")
	t.Setenv("IMPORT_TIMEOUT", "90s")
	t.Setenv("SESSION_TTL", "not-a-duration")
	t.Setenv("IMPORT_WORKERS", "8")

	cfg := Load()

	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 3, cfg.WarehouseSlots)
	assert.True(t, cfg.DynamicWarehouseSlots)
	assert.Equal(t, 90*time.Second, cfg.ImportTimeout)
	assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 8, cfg.ImportWorkers)
}

func TestInitDB_SQLite(t *testing.T) {
	cfg := &Config{
		DBDriver:    "sqlite",
		SQLitePath:  filepath.Join(t.TempDir(), "test.db"),
		Environment: "test",
	}

	db, err := InitDB(cfg)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", db.Dialector.Name())
	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestLoad_ListsAndSlotWarehouses(t *testing.T) {
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com,")
	t.Setenv("SLOT_WAREHOUSES", "1=WH-A, 3 = WH-C")

	cfg := Load()

	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, map[int]string{1: "WH-A", 3: "WH-C"}, cfg.SlotWarehouses)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_InvalidSlotWarehouses(t *testing.T) {
	t.Setenv("SLOT_WAREHOUSES", "1:WH-A")

	cfg := Load()

	assert.Empty(t, cfg.SlotWarehouses)
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SLOT_WAREHOUSES")
	assert.Contains(t, err.Error(), "1:WH-A")
}

func TestValidate_SlotBeyondWarehouseSlots(t *testing.T) {
	t.Setenv("WAREHOUSE_SLOTS", "2")
	t.Setenv("SLOT_WAREHOUSES", "3=WH-C")

	assert.ErrorContains(t, Load().Validate(), "slot 3 exceeds WAREHOUSE_SLOTS=2")

	t.Setenv("DYNAMIC_WAREHOUSE_SLOTS", "true")
	assert.NoError(t, Load().Validate())
}

func TestParseSlotWarehouses_Rejects(t *testing.T) {
	for _, in := range []string{"WH-A", "0=WH-A", "x=WH-A", "1="} {
		_, err := ParseSlotWarehouses(in)
		assert.Error(t, err, in)
	}

	out, err := ParseSlotWarehouses("")
	require.NoError(t, err)
	assert.Empty(t, out)
}
