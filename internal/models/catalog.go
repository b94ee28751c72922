package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is the slice of the catalog the import pipeline reads and writes.
// Products are never created by an import; they are matched by SKU only.
type Product struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID      string    `json:"tenantId" gorm:"type:varchar(255);not null;uniqueIndex:idx_tenant_product_sku"`
	SKU           string    `json:"sku" gorm:"type:varchar(100);not null;uniqueIndex:idx_tenant_product_sku"`
	Name          string    `json:"name" gorm:"type:varchar(255);not null"`
	SalePrice     float64   `json:"salePrice" gorm:"type:decimal(12,2);not null;default:0"`
	PurchasePrice *float64  `json:"purchasePrice,omitempty" gorm:"type:decimal(12,2)"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// WarehouseStatus represents the status of a warehouse
type WarehouseStatus string

const (
	WarehouseStatusActive   WarehouseStatus = "ACTIVE"
	WarehouseStatusInactive WarehouseStatus = "INACTIVE"
	WarehouseStatusClosed   WarehouseStatus = "CLOSED"
)

// Warehouse represents a storage location
type Warehouse struct {
	ID        uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID  string          `json:"tenantId" gorm:"type:varchar(255);not null;uniqueIndex:idx_tenant_warehouse_code"`
	Code      string          `json:"code" gorm:"type:varchar(50);not null;uniqueIndex:idx_tenant_warehouse_code"`
	Name      string          `json:"name" gorm:"type:varchar(255);not null"`
	Status    WarehouseStatus `json:"status" gorm:"type:varchar(20);not null;default:'ACTIVE'"`
	IsDefault bool            `json:"isDefault" gorm:"default:false"`
	Priority  int             `json:"priority" gorm:"default:0"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (w *Warehouse) BeforeCreate(tx *gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// StockLevel represents current inventory level of a product at a warehouse
type StockLevel struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	TenantID    string    `json:"tenantId" gorm:"type:varchar(255);not null;index"`
	WarehouseID uuid.UUID `json:"warehouseId" gorm:"type:uuid;not null;uniqueIndex:idx_stock_warehouse_product"`
	ProductID   uuid.UUID `json:"productId" gorm:"type:uuid;not null;uniqueIndex:idx_stock_warehouse_product"`

	QuantityOnHand    int `json:"quantityOnHand" gorm:"not null;default:0"`
	QuantityReserved  int `json:"quantityReserved" gorm:"not null;default:0"`
	QuantityAvailable int `json:"quantityAvailable" gorm:"not null;default:0"`

	LastRestockedAt *time.Time `json:"lastRestockedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *StockLevel) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// TableName implementations
func (Product) TableName() string {
	return "products"
}

func (Warehouse) TableName() string {
	return "warehouses"
}

func (StockLevel) TableName() string {
	return "stock_levels"
}
