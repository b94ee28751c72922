package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	// Database
	DBDriver   string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// Server
	Port        string
	Environment string
	CORSOrigins []string

	// Redis (optional, in-memory sessions when empty)
	RedisURL   string
	SessionTTL time.Duration

	// NATS
	NATSURL string

	// Import
	WarehouseSlots        int
	DynamicWarehouseSlots bool
	ImportWorkers         int
	ImportTimeout         time.Duration
	MaxUploadBytes        int64
	MaxImportRows         int
	PreviewRows           int
	SessionSweepSchedule  string
	// SlotWarehouses fixes the warehouse of quantity-only slots, e.g. "1=WH-A,2=WH-B"
	SlotWarehouses map[int]string

	// errors found while reading the environment, see Validate
	loadErrs []error
}

func Load() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	warehouseSlots, _ := strconv.Atoi(getEnv("WAREHOUSE_SLOTS", "6"))
	importWorkers, _ := strconv.Atoi(getEnv("IMPORT_WORKERS", "4"))
	maxUploadBytes, _ := strconv.ParseInt(getEnv("MAX_UPLOAD_BYTES", "10485760"), 10, 64)
	maxImportRows, _ := strconv.Atoi(getEnv("MAX_IMPORT_ROWS", "50000"))
	previewRows, _ := strconv.Atoi(getEnv("PREVIEW_ROWS", "5"))
	var loadErrs []error
	slotWarehouses, err := ParseSlotWarehouses(os.Getenv("SLOT_WAREHOUSES"))
	if err != nil {
		loadErrs = append(loadErrs, fmt.Errorf("SLOT_WAREHOUSES: %w", err))
		slotWarehouses = map[int]string{}
	}

	return &Config{
		// Database
		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "catalog_import_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "catalog_import.db"),

		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),
		CORSOrigins: getList("CORS_ORIGINS"),

		// Redis
		RedisURL:   getEnv("REDIS_URL", ""),
		SessionTTL: getDuration("SESSION_TTL", 2*time.Hour),

		// NATS
		NATSURL: getEnv("NATS_URL", ""),

		// Import
		WarehouseSlots:        warehouseSlots,
		DynamicWarehouseSlots: getBool("DYNAMIC_WAREHOUSE_SLOTS", false),
		ImportWorkers:         importWorkers,
		ImportTimeout:         getDuration("IMPORT_TIMEOUT", 10*time.Minute),
		MaxUploadBytes:        maxUploadBytes,
		MaxImportRows:         maxImportRows,
		PreviewRows:           previewRows,
		SessionSweepSchedule:  getEnv("SESSION_SWEEP_SCHEDULE", "@every 10m"),
		SlotWarehouses:        slotWarehouses,

		loadErrs: loadErrs,
	}
}

// Validate reports settings that Load could not use. Callers fail startup on
// a non-nil error rather than run with a silently dropped setting.
func (c *Config) Validate() error {
	errs := append([]error(nil), c.loadErrs...)
	if !c.DynamicWarehouseSlots {
		for slot := range c.SlotWarehouses {
			if slot > c.WarehouseSlots {
				errs = append(errs, fmt.Errorf("SLOT_WAREHOUSES: slot %d exceeds WAREHOUSE_SLOTS=%d", slot, c.WarehouseSlots))
			}
		}
	}
	return errors.Join(errs...)
}

// ParseSlotWarehouses parses "slot=warehouse" pairs separated by commas
func ParseSlotWarehouses(s string) (map[int]string, error) {
	out := make(map[int]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		slot, ref, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid slot warehouse %q, want slot=warehouse", pair)
		}
		n, err := strconv.Atoi(strings.TrimSpace(slot))
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid slot number in %q", pair)
		}
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return nil, fmt.Errorf("missing warehouse in %q", pair)
		}
		out[n] = ref
	}
	return out, nil
}

// InitDB opens postgres, or sqlite when DB_DRIVER=sqlite
func InitDB(cfg *Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	switch cfg.Environment {
	case "production":
		logLevel = logger.Error
	case "test":
		logLevel = logger.Silent
	default:
		logLevel = logger.Info
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	if strings.EqualFold(cfg.DBDriver, "sqlite") {
		db, err := gorm.Open(sqlite.Open(cfg.SQLitePath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"), gormConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sqlite pool: %w", err)
		}
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}

	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode)

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}
