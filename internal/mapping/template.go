package mapping

import (
	"context"
	"time"
)

// Template is a named, reusable column mapping. It is matched to a new sheet
// by exact header text only.
type Template struct {
	ID        string        `json:"id"`
	TenantID  string        `json:"tenantId"`
	Name      string        `json:"name"`
	Mapping   ColumnMapping `json:"columnMapping"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// TemplateStore persists mapping templates per tenant. Get, Update and
// Delete return ErrTemplateNotFound for unknown ids.
type TemplateStore interface {
	List(ctx context.Context, tenantID string) ([]Template, error)
	Get(ctx context.Context, tenantID, id string) (*Template, error)
	Create(ctx context.Context, tenantID, name string, m ColumnMapping) (*Template, error)
	Update(ctx context.Context, tenantID, id, name string, m ColumnMapping) (*Template, error)
	Delete(ctx context.Context, tenantID, id string) error
}
