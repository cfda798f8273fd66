package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// DocumentType identifies the numbering series a document belongs to.
type DocumentType string

const (
	DocumentReimbursement DocumentType = "reimbursement"
	DocumentPayable       DocumentType = "payable"
	DocumentReceipt       DocumentType = "receipt"
)

var prefixes = map[DocumentType]string{
	DocumentReimbursement: "A",
	DocumentPayable:       "B",
	DocumentReceipt:       "C",
}

// Prefix returns the single-letter serial prefix for the document type.
func (t DocumentType) Prefix() (string, bool) {
	prefix, ok := prefixes[t]
	return prefix, ok
}

// DocumentSequence is the per-(type, business date) counter row. The row is
// locked while a new value is reserved.
type DocumentSequence struct {
	DocumentType DocumentType `gorm:"type:varchar(32);primaryKey"`
	BusinessDate string       `gorm:"type:varchar(8);primaryKey"`
	LastValue    int64        `gorm:"not null;default:0"`
	UpdatedAt    time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (DocumentSequence) TableName() string { return "document_sequences" }

type Repository interface {
	// Reserve increments and returns the counter for the given key. It must
	// run inside the caller's transaction.
	Reserve(ctx context.Context, tx *gorm.DB, documentType DocumentType, businessDate string, now time.Time) (int64, error)
}

// Generator issues unique, date-scoped document serial numbers.
type Generator interface {
	Next(ctx context.Context, tx *gorm.DB, documentType DocumentType, at time.Time) (string, error)
}

var (
	ErrUnknownDocumentType = errors.New("unknown_document_type")
	ErrInvalidSequence     = errors.New("invalid_sequence")
	ErrTransactionRequired = errors.New("transaction_required")
)
