package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/invoo/backend/internal/domain/shared"
	"github.com/invoo/backend/internal/infrastructure/persistence/models"
	"github.com/invoo/backend/internal/infrastructure/verifactu"
)

// GormInvoiceRecordRepository implements invoice record storage using GORM
type GormInvoiceRecordRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRecordRepository creates a new GormInvoiceRecordRepository
func NewGormInvoiceRecordRepository(db *gorm.DB) *GormInvoiceRecordRepository {
	return &GormInvoiceRecordRepository{db: db}
}

// Save inserts the record, or updates it when the series/number identity
// already exists
func (r *GormInvoiceRecordRepository) Save(ctx context.Context, record *models.InvoiceRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "series"}, {Name: "number"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"issue_date", "invoice_type", "description", "total",
				"status", "verifactu_id", "hash", "signature", "qr_code_url",
				"last_error", "submitted_at", "cancelled_at", "updated_at",
			}),
		}).
		Create(record).Error
}

// FindBySeriesNumber finds a record by its ledger identity
func (r *GormInvoiceRecordRepository) FindBySeriesNumber(ctx context.Context, series, number string) (*models.InvoiceRecord, error) {
	var record models.InvoiceRecord
	if err := r.db.WithContext(ctx).
		Where("series = ? AND number = ?", series, number).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// FindByVerifactuID finds a record by the remote ledger's identifier
func (r *GormInvoiceRecordRepository) FindByVerifactuID(ctx context.Context, verifactuID string) (*models.InvoiceRecord, error) {
	var record models.InvoiceRecord
	if err := r.db.WithContext(ctx).
		Where("verifactu_id = ?", verifactuID).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// ApplySubmission writes the remote response fields back onto the record
func (r *GormInvoiceRecordRepository) ApplySubmission(ctx context.Context, series, number string, resp *verifactu.SubmissionResponse) error {
	now := time.Now()
	updates := map[string]any{
		"status":       resp.Status,
		"verifactu_id": resp.ID,
		"hash":         resp.Hash,
		"signature":    resp.Signature,
		"qr_code_url":  resp.QRCodeURL,
		"last_error":   "",
		"submitted_at": &now,
		"updated_at":   now,
	}
	if resp.Status == verifactu.StatusCancelled {
		updates["cancelled_at"] = &now
	}
	return r.updateByIdentity(ctx, series, number, updates)
}

// MarkFailed records a terminal submission failure
func (r *GormInvoiceRecordRepository) MarkFailed(ctx context.Context, series, number, errorDetail string) error {
	return r.updateByIdentity(ctx, series, number, map[string]any{
		"status":     verifactu.StatusError,
		"last_error": errorDetail,
		"updated_at": time.Now(),
	})
}

// UpdateStatus sets just the submission status, used by webhook and sync paths
func (r *GormInvoiceRecordRepository) UpdateStatus(ctx context.Context, series, number, status string) error {
	return r.updateByIdentity(ctx, series, number, map[string]any{
		"status":     status,
		"updated_at": time.Now(),
	})
}

// ListPending returns records whose submission status is not yet terminal
func (r *GormInvoiceRecordRepository) ListPending(ctx context.Context, limit int) ([]models.InvoiceRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []models.InvoiceRecord
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []string{verifactu.StatusPending, verifactu.StatusProcessing, verifactu.StatusSubmitted}).
		Order("created_at").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *GormInvoiceRecordRepository) updateByIdentity(ctx context.Context, series, number string, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.InvoiceRecord{}).
		Where("series = ? AND number = ?", series, number).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}
