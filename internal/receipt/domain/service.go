package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/officeflow/pkg/db/filter"
	"github.com/smallbiznis/officeflow/pkg/db/pagination"
)

type CreateReceiptRequest struct {
	ReceiptDate   time.Time
	Amount        decimal.Decimal
	PaymentMethod string
	Payer         string
	AccountID     string
	Description   string
	Attachments   []string
}

type UpdateStatusRequest struct {
	ID     string
	Status string
}

type ListReceiptRequest struct {
	pagination.Pagination
	Filters []filter.Filter
}

type ListReceiptResponse struct {
	pagination.PageInfo
	Receipts []Receipt `json:"receipts"`
}

// StatusResult is a receipt after a status change. Balance is set when the
// change moved money.
type StatusResult struct {
	Receipt Receipt         `json:"receipt"`
	Balance *AccountBalance `json:"account,omitempty"`
}

type DeleteResult struct {
	ID      string          `json:"id"`
	Deleted bool            `json:"deleted"`
	Balance *AccountBalance `json:"account,omitempty"`
}

type AccountBalance struct {
	AccountID      string          `json:"id"`
	Currency       string          `json:"currency"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
}

type Service interface {
	Create(ctx context.Context, req CreateReceiptRequest) (Receipt, error)
	GetByID(ctx context.Context, id string) (Receipt, error)
	List(ctx context.Context, req ListReceiptRequest) (ListReceiptResponse, error)
	UpdateStatus(ctx context.Context, req UpdateStatusRequest) (StatusResult, error)
	Delete(ctx context.Context, id string) (DeleteResult, error)
}

// Settler performs the receipt transitions that may move money.
type Settler interface {
	ConfirmReceipt(ctx context.Context, id snowflake.ID) (StatusResult, error)
	CancelReceipt(ctx context.Context, id snowflake.ID) (StatusResult, error)
	DeleteReceipt(ctx context.Context, id snowflake.ID) (DeleteResult, error)
}

var (
	ErrInvalidActor          = errors.New("invalid_actor")
	ErrInvalidID             = errors.New("invalid_id")
	ErrInvalidAmount         = errors.New("invalid_amount")
	ErrInvalidReceiptDate    = errors.New("invalid_receipt_date")
	ErrInvalidPaymentMethod  = errors.New("invalid_payment_method")
	ErrInvalidPayer          = errors.New("invalid_payer")
	ErrInvalidAccount        = errors.New("invalid_account")
	ErrInvalidStatus         = errors.New("invalid_status")
	ErrInvalidPageToken      = errors.New("invalid_page_token")
	ErrNotFound              = errors.New("receipt_not_found")
	ErrNotPending            = errors.New("receipt_not_pending")
	ErrSettlementUnavailable = errors.New("settlement_unavailable")
)

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
