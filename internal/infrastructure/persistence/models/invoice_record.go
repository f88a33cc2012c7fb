package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceRecord stores an invoice's submission state as mirrored from the
// remote ledger. The core reads nothing back from it during submission; it
// only writes response fields after a network attempt.
type InvoiceRecord struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key"`
	Series      string          `gorm:"size:60;not null;uniqueIndex:idx_invoice_identity,priority:1"`
	Number      string          `gorm:"size:60;not null;uniqueIndex:idx_invoice_identity,priority:2"`
	IssueDate   string          `gorm:"size:10;not null"`
	InvoiceType string          `gorm:"size:2;not null"`
	Description string          `gorm:"size:500"`
	Total       decimal.Decimal `gorm:"type:numeric(14,2);not null"`

	// Remote submission state
	Status       string     `gorm:"size:20;not null;index"`
	VerifactuID  string     `gorm:"size:64;index"`
	Hash         string     `gorm:"size:128"`
	Signature    string     `gorm:"size:512"`
	QRCodeURL    string     `gorm:"size:512"`
	LastError    string     `gorm:"size:1000"`
	SubmittedAt  *time.Time
	CancelledAt  *time.Time

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName overrides the table name
func (InvoiceRecord) TableName() string {
	return "invoice_records"
}

// BeforeCreate assigns an id if none is set
func (r *InvoiceRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// APICredential stores one tenant's remote API credentials. A process hosts
// several of these side by side; the company tax id selects among them.
type APICredential struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	CompanyTaxID  string    `gorm:"size:20;not null;uniqueIndex"`
	APIKey        string    `gorm:"size:128;not null"`
	IsProduction  bool      `gorm:"not null;default:false"`
	WebhookSecret string    `gorm:"size:128"`
	Active        bool      `gorm:"not null;default:true"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName overrides the table name
func (APICredential) TableName() string {
	return "api_credentials"
}

// BeforeCreate assigns an id if none is set
func (c *APICredential) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
