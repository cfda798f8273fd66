package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateAccountRequest struct {
	Name           string
	Currency       string
	InitialBalance decimal.Decimal
}

type Service interface {
	Create(ctx context.Context, req CreateAccountRequest) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	List(ctx context.Context) ([]Account, error)
	Delete(ctx context.Context, id string) error
	ListEntries(ctx context.Context, id string) ([]Entry, error)
}

// Ledger is the only writer of Account.CurrentBalance. Every method runs on
// the caller's transaction.
type Ledger interface {
	// Lock takes the row lock on the account and returns its current state.
	Lock(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Account, error)
	// Credit applies m.Delta (negative for debits) under the row lock, writes
	// a journal entry and returns the new state.
	Credit(ctx context.Context, tx *gorm.DB, m Mutation) (CreditResult, error)
}

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidID           = errors.New("invalid_id")
	ErrInvalidName         = errors.New("invalid_name")
	ErrInvalidCurrency     = errors.New("invalid_currency")
	ErrInvalidBalance      = errors.New("invalid_initial_balance")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidSource       = errors.New("invalid_source")
	ErrNotFound            = errors.New("account_not_found")
	ErrAccountDeleted      = errors.New("account_deleted")
	ErrCurrencyMismatch    = errors.New("currency_mismatch")
	ErrInsufficientBalance = errors.New("insufficient_balance")
	ErrAccountInUse        = errors.New("account_in_use")
	ErrTransactionRequired = errors.New("transaction_required")
)
