package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Row-level failure codes recorded in ImportResult.Errors
const (
	OutcomeMissingSku      = "MissingSku"
	OutcomeProductNotFound = "ProductNotFound"
	OutcomeInvalidValue    = "InvalidValue"
	OutcomeUpdateFailed    = "UpdateFailed"
)

// ImportRowOutcome records why a single sheet row failed to apply
type ImportRowOutcome struct {
	RowNumber int    `json:"rowNumber"`
	SKU       string `json:"sku"`
	Code      string `json:"code"`
	Reason    string `json:"reason"`
}

// String renders the outcome the way the results screen lists it
func (o ImportRowOutcome) String() string {
	return fmt.Sprintf("Row %d: SKU %s — %s", o.RowNumber, o.SKU, o.Reason)
}

// ImportResult represents the result of one batch import run
type ImportResult struct {
	Success            bool               `json:"success"`
	Cancelled          bool               `json:"cancelled,omitempty"`
	TotalRows          int                `json:"totalRows"`
	ProcessedRows      int                `json:"processedRows"`
	SkippedRows        int                `json:"skippedRows"`
	UpdatedProducts    int                `json:"updatedProducts"`
	UpdatedPrices      int                `json:"updatedPrices"`
	UpdatedInventories int                `json:"updatedInventories"`
	Errors             []ImportRowOutcome `json:"errors"`
	DurationMs         int64              `json:"durationMs"`
}

// MappingTemplate is the persisted form of a named column mapping
type MappingTemplate struct {
	ID            uuid.UUID         `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID      string            `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	Name          string            `json:"name" gorm:"type:varchar(255);not null"`
	ColumnMapping datatypes.JSONMap `json:"columnMapping"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (t *MappingTemplate) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

func (MappingTemplate) TableName() string {
	return "mapping_templates"
}

type ErrorResponse struct {
	Success bool  `json:"success"`
	Error   Error `json:"error"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message *string     `json:"message,omitempty"`
}
