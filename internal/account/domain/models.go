package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Account struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name           string          `gorm:"type:varchar(255);not null" json:"name"`
	Currency       string          `gorm:"type:varchar(3);not null" json:"currency"`
	InitialBalance decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"initialBalance"`
	CurrentBalance decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"currentBalance"`
	IsDeleted      bool            `gorm:"not null;default:false;index" json:"isDeleted"`
	CreatedBy      snowflake.ID    `gorm:"not null" json:"createdBy"`
	UpdatedBy      snowflake.ID    `gorm:"not null" json:"updatedBy"`
	CreatedAt      time.Time       `gorm:"not null" json:"createdAt"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updatedAt"`
}

func (Account) TableName() string { return "accounts" }

// MoneyScale is the number of decimal places every money column stores.
const MoneyScale = 4

// FitsMoneyScale reports whether d is stored without rounding.
func FitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale))
}

type EntrySourceType string

const (
	SourceReceiptConfirmed  EntrySourceType = "receipt_confirmed"
	SourceReceiptReversed   EntrySourceType = "receipt_reversed"
	SourceReimbursementPaid EntrySourceType = "reimbursement_paid"
)

// Entry is an append-only journal line written alongside every balance
// change. Balances are never recomputed from entries.
type Entry struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	AccountID    snowflake.ID    `gorm:"not null;index" json:"accountId"`
	SourceType   EntrySourceType `gorm:"type:varchar(32);not null" json:"sourceType"`
	SourceID     snowflake.ID    `gorm:"not null;index" json:"sourceId"`
	Delta        decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"delta"`
	BalanceAfter decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"balanceAfter"`
	CreatedBy    snowflake.ID    `gorm:"not null" json:"createdBy"`
	CreatedAt    time.Time       `gorm:"not null" json:"createdAt"`
}

func (Entry) TableName() string { return "account_entries" }

// Mutation describes one signed change to an account balance.
type Mutation struct {
	AccountID  snowflake.ID
	Delta      decimal.Decimal
	SourceType EntrySourceType
	SourceID   snowflake.ID
	ActorID    snowflake.ID
	// Currency, when set, must equal the account currency.
	Currency string
	// AllowNegative permits the resulting balance to drop below zero.
	AllowNegative bool
}

// CreditResult is the account state after a mutation, inside the
// transaction that applied it.
type CreditResult struct {
	Account Account
	Entry   Entry
}
