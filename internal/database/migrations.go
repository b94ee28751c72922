package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/dshomebg/dshome-docker-sub001/internal/models"
)

// RunMigrations brings the schema up to date, one model at a time so a
// failure names the table it broke on.
func RunMigrations(db *gorm.DB, logger *logrus.Logger) error {
	log := logger.WithField("component", "migrations")
	log.Debug("Starting database migrations")

	modelsToMigrate := []struct {
		name  string
		model interface{}
	}{
		{"Product", &models.Product{}},
		{"Warehouse", &models.Warehouse{}},
		{"StockLevel", &models.StockLevel{}},
		{"MappingTemplate", &models.MappingTemplate{}},
	}
	for _, m := range modelsToMigrate {
		if err := db.AutoMigrate(m.model); err != nil {
			return fmt.Errorf("failed to auto-migrate %s: %w", m.name, err)
		}
		log.WithField("model", m.name).Debug("Migrated")
	}

	log.Info("Database migrations completed")
	return nil
}
