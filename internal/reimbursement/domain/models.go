package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Type string

const (
	TypeReimbursement Type = "reimbursement"
	TypePayable       Type = "payable"
)

func (t Type) Valid() bool {
	return t == TypeReimbursement || t == TypePayable
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusPaid      Status = "paid"
)

type Reimbursement struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	SerialNumber  string          `gorm:"type:varchar(32);not null;uniqueIndex" json:"serialNumber"`
	Type          Type            `gorm:"type:varchar(16);not null" json:"type"`
	Title         string          `gorm:"type:varchar(255);not null" json:"title"`
	Payee         string          `gorm:"type:varchar(255);not null" json:"payee"`
	PaymentTarget string          `gorm:"type:varchar(255)" json:"paymentTarget"`
	AccountNumber string          `gorm:"type:varchar(64)" json:"accountNumber"`
	BankInfo      string          `gorm:"type:varchar(255)" json:"bankInfo"`
	Currency      string          `gorm:"type:varchar(3);not null" json:"currency"`
	Status        Status          `gorm:"type:varchar(16);not null;index" json:"status"`
	TotalAmount   decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"totalAmount"`
	SubmitterID   snowflake.ID    `gorm:"not null;index" json:"submitterId"`
	ReviewerID    *snowflake.ID   `json:"reviewerId,omitempty"`
	ReviewedAt    *time.Time      `json:"reviewedAt,omitempty"`
	ReviewComment string          `gorm:"type:text" json:"reviewComment"`
	AccountID     *snowflake.ID   `gorm:"index" json:"accountId,omitempty"`
	PaymentDate   *time.Time      `json:"paymentDate,omitempty"`
	Attachments   datatypes.JSON  `json:"attachments"`
	CreatedAt     time.Time       `gorm:"not null;index" json:"createdAt"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updatedAt"`

	Items []Item `gorm:"-" json:"items"`
}

func (Reimbursement) TableName() string { return "reimbursements" }

type Item struct {
	ID              snowflake.ID    `gorm:"primaryKey" json:"id"`
	ReimbursementID snowflake.ID    `gorm:"not null;index" json:"reimbursementId"`
	AccountCode     string          `gorm:"type:varchar(64)" json:"accountCode"`
	Date            time.Time       `gorm:"not null" json:"date"`
	Description     string          `gorm:"type:text" json:"description"`
	Amount          decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"amount"`
	Tax             decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"tax"`
	Fee             decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"fee"`
	Total           decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"total"`
}

func (Item) TableName() string { return "reimbursement_items" }

// ItemTotal is amount + tax + fee.
func ItemTotal(amount, tax, fee decimal.Decimal) decimal.Decimal {
	return amount.Add(tax).Add(fee)
}

// SumItems returns the sum of item totals.
func SumItems(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Total)
	}
	return total
}
