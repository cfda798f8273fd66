package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/officeflow/internal/account/domain"
	"github.com/smallbiznis/officeflow/internal/clock"
	obsmetrics "github.com/smallbiznis/officeflow/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type LedgerParams struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Ledger struct {
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	metrics *obsmetrics.Metrics
}

func NewLedger(p LedgerParams) domain.Ledger {
	return &Ledger{
		log:     p.Log.Named("account.ledger"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (l *Ledger) Lock(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Account, error) {
	if tx == nil {
		return nil, domain.ErrTransactionRequired
	}
	if id == 0 {
		return nil, domain.ErrInvalidID
	}

	started := time.Now()
	account, err := l.repo.FindByIDForUpdate(ctx, tx, id)
	l.metrics.ObserveLockWait(obsmetrics.LockResourceAccount, time.Since(started))
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrNotFound
	}
	return account, nil
}

func (l *Ledger) Credit(ctx context.Context, tx *gorm.DB, m domain.Mutation) (domain.CreditResult, error) {
	if m.Delta.IsZero() {
		return domain.CreditResult{}, domain.ErrInvalidAmount
	}
	if m.SourceID == 0 || m.SourceType == "" {
		return domain.CreditResult{}, domain.ErrInvalidSource
	}

	account, err := l.Lock(ctx, tx, m.AccountID)
	if err != nil {
		return domain.CreditResult{}, err
	}
	if account.IsDeleted {
		return domain.CreditResult{}, domain.ErrAccountDeleted
	}
	if m.Currency != "" && m.Currency != account.Currency {
		return domain.CreditResult{}, domain.ErrCurrencyMismatch
	}

	balance := account.CurrentBalance.Add(m.Delta)
	if balance.IsNegative() && m.Delta.IsNegative() && !m.AllowNegative {
		return domain.CreditResult{}, domain.ErrInsufficientBalance
	}

	now := l.clock.Now().UTC()
	if err := l.repo.UpdateBalance(ctx, tx, account.ID, balance, m.ActorID, now); err != nil {
		return domain.CreditResult{}, err
	}

	entry := domain.Entry{
		ID:           l.genID.Generate(),
		AccountID:    account.ID,
		SourceType:   m.SourceType,
		SourceID:     m.SourceID,
		Delta:        m.Delta,
		BalanceAfter: balance,
		CreatedBy:    m.ActorID,
		CreatedAt:    now,
	}
	if err := l.repo.InsertEntry(ctx, tx, &entry); err != nil {
		return domain.CreditResult{}, err
	}

	l.log.Debug("account balance changed",
		zap.String("account_id", account.ID.String()),
		zap.String("source_type", string(m.SourceType)),
		zap.String("source_id", m.SourceID.String()),
		zap.String("delta", m.Delta.String()),
		zap.String("balance_after", balance.String()),
	)

	account.CurrentBalance = balance
	account.UpdatedBy = m.ActorID
	account.UpdatedAt = now
	return domain.CreditResult{Account: *account, Entry: entry}, nil
}
