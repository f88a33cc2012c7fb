package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/invoo/backend/internal/domain/shared"
	"github.com/invoo/backend/internal/infrastructure/persistence/models"
)

// GormCredentialRepository implements API credential storage using GORM
type GormCredentialRepository struct {
	db *gorm.DB
}

// NewGormCredentialRepository creates a new GormCredentialRepository
func NewGormCredentialRepository(db *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: db}
}

// Save inserts or updates a tenant's credentials
func (r *GormCredentialRepository) Save(ctx context.Context, credential *models.APICredential) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "company_tax_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"api_key", "is_production", "webhook_secret", "active", "updated_at",
			}),
		}).
		Create(credential).Error
}

// FindByTaxID returns the active credentials for a company
func (r *GormCredentialRepository) FindByTaxID(ctx context.Context, companyTaxID string) (*models.APICredential, error) {
	var credential models.APICredential
	if err := r.db.WithContext(ctx).
		Where("company_tax_id = ? AND active = ?", companyTaxID, true).
		First(&credential).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &credential, nil
}

// Deactivate disables a company's credentials without deleting them
func (r *GormCredentialRepository) Deactivate(ctx context.Context, companyTaxID string) error {
	result := r.db.WithContext(ctx).
		Model(&models.APICredential{}).
		Where("company_tax_id = ?", companyTaxID).
		Update("active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
