package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/dshomebg/dshome-docker-sub001/internal/mapping"
	"github.com/dshomebg/dshome-docker-sub001/internal/models"
)

// TemplateRepository stores mapping templates in the mapping_templates table
type TemplateRepository struct {
	db *gorm.DB
}

var _ mapping.TemplateStore = (*TemplateRepository)(nil)

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// List returns the tenant's templates ordered by name
func (r *TemplateRepository) List(ctx context.Context, tenantID string) ([]mapping.Template, error) {
	var rows []models.MappingTemplate
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("name ASC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	templates := make([]mapping.Template, 0, len(rows))
	for i := range rows {
		t, err := toTemplate(&rows[i])
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, nil
}

func (r *TemplateRepository) Get(ctx context.Context, tenantID, id string) (*mapping.Template, error) {
	row, err := r.find(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return toTemplate(row)
}

// FindByName returns the most recently updated template with the given name
func (r *TemplateRepository) FindByName(ctx context.Context, tenantID, name string) (*mapping.Template, error) {
	var row models.MappingTemplate
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND name = ?", tenantID, name).
		Order("updated_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %q", mapping.ErrTemplateNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return toTemplate(&row)
}

func (r *TemplateRepository) Create(ctx context.Context, tenantID, name string, m mapping.ColumnMapping) (*mapping.Template, error) {
	row := &models.MappingTemplate{
		TenantID:      tenantID,
		Name:          name,
		ColumnMapping: toJSONMap(m),
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}
	return toTemplate(row)
}

func (r *TemplateRepository) Update(ctx context.Context, tenantID, id, name string, m mapping.ColumnMapping) (*mapping.Template, error) {
	row, err := r.find(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	row.Name = name
	row.ColumnMapping = toJSONMap(m)
	if err := r.db.WithContext(ctx).Save(row).Error; err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}
	return toTemplate(row)
}

func (r *TemplateRepository) Delete(ctx context.Context, tenantID, id string) error {
	templateID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: %s", mapping.ErrTemplateNotFound, id)
	}

	result := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, templateID).
		Delete(&models.MappingTemplate{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", mapping.ErrTemplateNotFound, id)
	}
	return nil
}

func (r *TemplateRepository) find(ctx context.Context, tenantID, id string) (*models.MappingTemplate, error) {
	templateID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", mapping.ErrTemplateNotFound, id)
	}

	var row models.MappingTemplate
	err = r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, templateID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", mapping.ErrTemplateNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func toJSONMap(m mapping.ColumnMapping) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(m))
	for header, target := range m {
		out[header] = target.String()
	}
	return out
}

// toTemplate decodes the stored JSON mapping through FieldTarget's text form
func toTemplate(row *models.MappingTemplate) (*mapping.Template, error) {
	var m mapping.ColumnMapping
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.TextUnmarshallerHookFunc(),
		Result:     &m,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(map[string]interface{}(row.ColumnMapping)); err != nil {
		return nil, fmt.Errorf("template %s has an invalid mapping: %w", row.ID, err)
	}
	if m == nil {
		m = mapping.ColumnMapping{}
	}

	return &mapping.Template{
		ID:        row.ID.String(),
		TenantID:  row.TenantID,
		Name:      row.Name,
		Mapping:   m,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}
