package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus accepts a status in any letter case.
func ParseStatus(raw string) (Status, bool) {
	switch Status(upper(raw)) {
	case StatusPending:
		return StatusPending, true
	case StatusConfirmed:
		return StatusConfirmed, true
	case StatusCancelled:
		return StatusCancelled, true
	default:
		return "", false
	}
}

// CanTransition reports whether a receipt may move from one status to another.
// Only PENDING receipts move; CONFIRMED and CANCELLED are final.
func CanTransition(from, to Status) bool {
	if from != StatusPending {
		return false
	}
	return to == StatusConfirmed || to == StatusCancelled
}

type Receipt struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	ReceiptNumber string          `gorm:"type:varchar(32);not null;uniqueIndex" json:"receiptNumber"`
	ReceiptDate   time.Time       `gorm:"not null" json:"receiptDate"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"amount"`
	PaymentMethod string          `gorm:"type:varchar(64);not null" json:"paymentMethod"`
	Payer         string          `gorm:"type:varchar(255);not null" json:"payer"`
	AccountID     snowflake.ID    `gorm:"not null;index" json:"accountId"`
	Description   string          `gorm:"type:text" json:"description"`
	Attachments   datatypes.JSON  `json:"attachments"`
	Status        Status          `gorm:"type:varchar(16);not null;index" json:"status"`
	ConfirmedAt   *time.Time      `json:"confirmedAt,omitempty"`
	CreatedBy     snowflake.ID    `gorm:"not null;index" json:"createdBy"`
	CreatedAt     time.Time       `gorm:"not null;index" json:"createdAt"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updatedAt"`
}

func (Receipt) TableName() string { return "receipts" }
