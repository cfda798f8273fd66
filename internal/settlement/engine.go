// Package settlement ties workflow transitions to account balance changes.
// Every operation runs in exactly one database transaction: the document
// row is locked first, then the account row, and either everything commits
// or nothing does.
package settlement

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/officeflow/internal/account/domain"
	"github.com/smallbiznis/officeflow/internal/actorcontext"
	auditdomain "github.com/smallbiznis/officeflow/internal/audit/domain"
	"github.com/smallbiznis/officeflow/internal/authorization"
	"github.com/smallbiznis/officeflow/internal/clock"
	obsmetrics "github.com/smallbiznis/officeflow/internal/observability/metrics"
	receiptdomain "github.com/smallbiznis/officeflow/internal/receipt/domain"
	reimbursementdomain "github.com/smallbiznis/officeflow/internal/reimbursement/domain"
	reimbursementservice "github.com/smallbiznis/officeflow/internal/reimbursement/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Clock          clock.Clock
	Authz          authorization.Service
	AuditSvc       auditdomain.Service
	Ledger         accountdomain.Ledger
	Receipts       receiptdomain.Repository
	Reimbursements reimbursementdomain.Repository
	Metrics        *obsmetrics.Metrics `optional:"true"`
}

type Engine struct {
	db             *gorm.DB
	log            *zap.Logger
	clock          clock.Clock
	authz          authorization.Service
	auditSvc       auditdomain.Service
	ledger         accountdomain.Ledger
	receipts       receiptdomain.Repository
	reimbursements reimbursementdomain.Repository
	metrics        *obsmetrics.Metrics
}

func New(p Params) *Engine {
	return &Engine{
		db:             p.DB,
		log:            p.Log.Named("settlement.engine"),
		clock:          p.Clock,
		authz:          p.Authz,
		auditSvc:       p.AuditSvc,
		ledger:         p.Ledger,
		receipts:       p.Receipts,
		reimbursements: p.Reimbursements,
		metrics:        p.Metrics,
	}
}

// ConfirmReceipt moves a PENDING receipt to CONFIRMED and credits its amount
// to the receipt's account.
func (e *Engine) ConfirmReceipt(ctx context.Context, id snowflake.ID) (result receiptdomain.StatusResult, err error) {
	defer func() { e.metrics.RecordSettlement(obsmetrics.SettlementOperationConfirm, err) }()

	actor, err := e.receiptActor(ctx, authorization.ActionReceiptSettle)
	if err != nil {
		return receiptdomain.StatusResult{}, err
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receipt, err := e.lockReceipt(ctx, tx, id)
		if err != nil {
			return err
		}
		if !receiptdomain.CanTransition(receipt.Status, receiptdomain.StatusConfirmed) {
			return receiptdomain.ErrNotPending
		}

		credit, err := e.ledger.Credit(ctx, tx, accountdomain.Mutation{
			AccountID:  receipt.AccountID,
			Delta:      receipt.Amount,
			SourceType: accountdomain.SourceReceiptConfirmed,
			SourceID:   receipt.ID,
			ActorID:    actor.UserID,
		})
		if err != nil {
			return err
		}

		now := e.now()
		if err := e.receipts.UpdateStatus(ctx, tx, receipt.ID, receiptdomain.StatusConfirmed, &now, now); err != nil {
			return err
		}
		if err := e.auditSvc.Record(ctx, tx, "receipt.confirmed", auditdomain.TargetReceipt, receipt.ID, map[string]any{
			"account_id":    receipt.AccountID.String(),
			"amount":        receipt.Amount.String(),
			"balance_after": credit.Account.CurrentBalance.String(),
		}); err != nil {
			return err
		}

		receipt.Status = receiptdomain.StatusConfirmed
		receipt.ConfirmedAt = &now
		receipt.UpdatedAt = now
		result = receiptdomain.StatusResult{Receipt: *receipt, Balance: balanceOf(credit.Account)}
		return nil
	})
	if err != nil {
		return receiptdomain.StatusResult{}, err
	}

	e.metrics.RecordBalanceMutation(string(accountdomain.SourceReceiptConfirmed))
	e.metrics.RecordTransition("receipt", string(receiptdomain.StatusPending), string(receiptdomain.StatusConfirmed))
	e.log.Info("receipt confirmed",
		zap.String("receipt_id", id.String()),
		zap.String("account_id", result.Receipt.AccountID.String()),
		zap.String("amount", result.Receipt.Amount.String()),
	)
	return result, nil
}

// CancelReceipt moves a PENDING receipt to CANCELLED. Balances are untouched.
func (e *Engine) CancelReceipt(ctx context.Context, id snowflake.ID) (result receiptdomain.StatusResult, err error) {
	defer func() { e.metrics.RecordSettlement(obsmetrics.SettlementOperationCancel, err) }()

	if _, err = e.receiptActor(ctx, authorization.ActionReceiptSettle); err != nil {
		return receiptdomain.StatusResult{}, err
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receipt, err := e.lockReceipt(ctx, tx, id)
		if err != nil {
			return err
		}
		if !receiptdomain.CanTransition(receipt.Status, receiptdomain.StatusCancelled) {
			return receiptdomain.ErrNotPending
		}

		now := e.now()
		if err := e.receipts.UpdateStatus(ctx, tx, receipt.ID, receiptdomain.StatusCancelled, nil, now); err != nil {
			return err
		}
		if err := e.auditSvc.Record(ctx, tx, "receipt.cancelled", auditdomain.TargetReceipt, receipt.ID, nil); err != nil {
			return err
		}

		receipt.Status = receiptdomain.StatusCancelled
		receipt.UpdatedAt = now
		result = receiptdomain.StatusResult{Receipt: *receipt}
		return nil
	})
	if err != nil {
		return receiptdomain.StatusResult{}, err
	}

	e.metrics.RecordTransition("receipt", string(receiptdomain.StatusPending), string(receiptdomain.StatusCancelled))
	return result, nil
}

// DeleteReceipt removes a receipt. A CONFIRMED receipt is reversed against
// its account in the same transaction.
func (e *Engine) DeleteReceipt(ctx context.Context, id snowflake.ID) (result receiptdomain.DeleteResult, err error) {
	defer func() { e.metrics.RecordSettlement(obsmetrics.SettlementOperationDelete, err) }()

	actor, err := e.receiptActor(ctx, authorization.ActionReceiptDelete)
	if err != nil {
		return receiptdomain.DeleteResult{}, err
	}

	reversed := false
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		receipt, err := e.lockReceipt(ctx, tx, id)
		if err != nil {
			return err
		}

		result = receiptdomain.DeleteResult{ID: receipt.ID.String(), Deleted: true}
		if receipt.Status == receiptdomain.StatusConfirmed {
			credit, err := e.ledger.Credit(ctx, tx, accountdomain.Mutation{
				AccountID:     receipt.AccountID,
				Delta:         receipt.Amount.Neg(),
				SourceType:    accountdomain.SourceReceiptReversed,
				SourceID:      receipt.ID,
				ActorID:       actor.UserID,
				AllowNegative: true,
			})
			if err != nil {
				return err
			}
			result.Balance = balanceOf(credit.Account)
			reversed = true
		}

		if err := e.receipts.Delete(ctx, tx, receipt.ID); err != nil {
			return err
		}
		return e.auditSvc.Record(ctx, tx, "receipt.deleted", auditdomain.TargetReceipt, receipt.ID, map[string]any{
			"receipt_number": receipt.ReceiptNumber,
			"status":         string(receipt.Status),
			"reversed":       reversed,
		})
	})
	if err != nil {
		return receiptdomain.DeleteResult{}, err
	}

	if reversed {
		e.metrics.RecordBalanceMutation(string(accountdomain.SourceReceiptReversed))
	}
	return result, nil
}

// PayReimbursement marks an approved reimbursement paid and debits its total
// from the chosen account.
func (e *Engine) PayReimbursement(ctx context.Context, req reimbursementdomain.PayRequest) (result reimbursementdomain.Reimbursement, err error) {
	defer func() { e.metrics.RecordSettlement(obsmetrics.SettlementOperationPayment, err) }()

	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return reimbursementdomain.Reimbursement{}, reimbursementdomain.ErrInvalidActor
	}
	id, err := snowflake.ParseString(strings.TrimSpace(req.ReimbursementID))
	if err != nil || id == 0 {
		return reimbursementdomain.Reimbursement{}, reimbursementdomain.ErrInvalidID
	}
	bankInfo := strings.TrimSpace(req.BankInfo)
	if bankInfo == "" {
		return reimbursementdomain.Reimbursement{}, reimbursementdomain.ErrMissingBankInfo
	}
	if strings.TrimSpace(req.AccountID) == "" {
		return reimbursementdomain.Reimbursement{}, reimbursementdomain.ErrMissingAccount
	}
	accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
	if err != nil || accountID == 0 {
		return reimbursementdomain.Reimbursement{}, reimbursementdomain.ErrInvalidAccount
	}

	workflowActor := reimbursementservice.WorkflowActor(e.authz, actor)
	var from reimbursementdomain.Status
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		started := time.Now()
		item, err := e.reimbursements.FindByIDForUpdate(ctx, tx, id)
		e.metrics.ObserveLockWait(obsmetrics.LockResourceReimbursement, time.Since(started))
		if err != nil {
			return err
		}
		if item == nil {
			return reimbursementdomain.ErrNotFound
		}
		if err := reimbursementdomain.Transition(*item, workflowActor, reimbursementdomain.StatusPaid); err != nil {
			return err
		}
		from = item.Status

		credit, err := e.ledger.Credit(ctx, tx, accountdomain.Mutation{
			AccountID:  accountID,
			Delta:      item.TotalAmount.Neg(),
			SourceType: accountdomain.SourceReimbursementPaid,
			SourceID:   item.ID,
			ActorID:    actor.UserID,
			Currency:   item.Currency,
		})
		if errors.Is(err, accountdomain.ErrNotFound) || errors.Is(err, accountdomain.ErrAccountDeleted) {
			return reimbursementdomain.ErrInvalidAccount
		}
		if err != nil {
			return err
		}

		now := e.now()
		item.MarkPaid(bankInfo, accountID, strings.TrimSpace(req.ReviewComment), now)
		if err := e.reimbursements.Update(ctx, tx, item); err != nil {
			return err
		}
		if err := e.auditSvc.Record(ctx, tx, "reimbursement.paid", auditdomain.TargetReimbursement, item.ID, map[string]any{
			"account_id":    accountID.String(),
			"amount":        item.TotalAmount.String(),
			"balance_after": credit.Account.CurrentBalance.String(),
			"bank_info":     bankInfo,
		}); err != nil {
			return err
		}
		result = *item
		return nil
	})
	if err != nil {
		return reimbursementdomain.Reimbursement{}, err
	}

	e.metrics.RecordBalanceMutation(string(accountdomain.SourceReimbursementPaid))
	e.metrics.RecordTransition("reimbursement", string(from), string(reimbursementdomain.StatusPaid))
	e.log.Info("reimbursement paid",
		zap.String("reimbursement_id", id.String()),
		zap.String("account_id", accountID.String()),
		zap.String("amount", result.TotalAmount.String()),
	)
	return result, nil
}

func (e *Engine) receiptActor(ctx context.Context, action string) (actorcontext.Actor, error) {
	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return actorcontext.Actor{}, receiptdomain.ErrInvalidActor
	}
	if err := e.authz.Authorize(actor, authorization.ObjectReceipt, action); err != nil {
		return actorcontext.Actor{}, err
	}
	return actor, nil
}

func (e *Engine) lockReceipt(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*receiptdomain.Receipt, error) {
	started := time.Now()
	receipt, err := e.receipts.FindByIDForUpdate(ctx, tx, id)
	e.metrics.ObserveLockWait(obsmetrics.LockResourceReceipt, time.Since(started))
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, receiptdomain.ErrNotFound
	}
	return receipt, nil
}

func (e *Engine) now() time.Time {
	return e.clock.Now().UTC().Truncate(time.Microsecond)
}

func balanceOf(account accountdomain.Account) *receiptdomain.AccountBalance {
	return &receiptdomain.AccountBalance{
		AccountID:      account.ID.String(),
		Currency:       account.Currency,
		CurrentBalance: account.CurrentBalance,
	}
}
