package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/officeflow/pkg/db/filter"
	"github.com/smallbiznis/officeflow/pkg/db/pagination"
)

type ItemInput struct {
	AccountCode string
	Date        time.Time
	Description string
	Amount      decimal.Decimal
	Tax         decimal.Decimal
	Fee         decimal.Decimal
}

// DocumentInput holds the editable fields shared by create and update.
type DocumentInput struct {
	Type          string
	Title         string
	Payee         string
	PaymentTarget string
	AccountNumber string
	BankInfo      string
	Currency      string
	Items         []ItemInput
	Attachments   []string
}

type CreateRequest struct {
	DocumentInput
}

type UpdateRequest struct {
	ID string
	DocumentInput
}

type ReviewRequest struct {
	ID            string
	Status        string
	ReviewComment string
	BankInfo      string
	AccountID     string
}

type ListRequest struct {
	pagination.Pagination
	Filters []filter.Filter
}

type ListResponse struct {
	pagination.PageInfo
	Reimbursements []Reimbursement `json:"reimbursements"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (Reimbursement, error)
	Update(ctx context.Context, req UpdateRequest) (Reimbursement, error)
	Delete(ctx context.Context, id string) error
	Review(ctx context.Context, req ReviewRequest) (Reimbursement, error)
	GetByID(ctx context.Context, id string) (Reimbursement, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

// PayRequest carries a validated payment instruction to the settlement
// engine.
type PayRequest struct {
	ReimbursementID string
	AccountID       string
	BankInfo        string
	ReviewComment   string
}

// Payer settles an approved reimbursement against an account.
type Payer interface {
	PayReimbursement(ctx context.Context, req PayRequest) (Reimbursement, error)
}

var (
	ErrInvalidActor       = errors.New("invalid_actor")
	ErrInvalidID          = errors.New("invalid_id")
	ErrInvalidType        = errors.New("invalid_type")
	ErrInvalidTitle       = errors.New("invalid_title")
	ErrInvalidPayee       = errors.New("invalid_payee")
	ErrInvalidCurrency    = errors.New("invalid_currency")
	ErrInvalidItems       = errors.New("invalid_items")
	ErrInvalidItemAmount  = errors.New("invalid_item_amount")
	ErrInvalidItemDate    = errors.New("invalid_item_date")
	ErrInvalidTotal       = errors.New("invalid_total_amount")
	ErrInvalidStatus      = errors.New("invalid_status")
	ErrMissingBankInfo    = errors.New("missing_bank_info")
	ErrMissingAccount     = errors.New("missing_account_id")
	ErrInvalidAccount     = errors.New("invalid_account")
	ErrInvalidPageToken   = errors.New("invalid_page_token")
	ErrNotFound           = errors.New("reimbursement_not_found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidTransition  = errors.New("invalid_status_transition")
	ErrNotPending         = errors.New("reimbursement_not_pending")
	ErrPaymentUnavailable = errors.New("payment_unavailable")
)
