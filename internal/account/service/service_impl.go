package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/officeflow/internal/account/domain"
	"github.com/smallbiznis/officeflow/internal/actorcontext"
	auditdomain "github.com/smallbiznis/officeflow/internal/audit/domain"
	"github.com/smallbiznis/officeflow/internal/authorization"
	"github.com/smallbiznis/officeflow/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Authz    authorization.Service
	AuditSvc auditdomain.Service
	Repo     domain.Repository
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	authz    authorization.Service
	auditSvc auditdomain.Service
	repo     domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("account.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		authz:    p.Authz,
		auditSvc: p.AuditSvc,
		repo:     p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateAccountRequest) (domain.Account, error) {
	actor, err := s.authorize(ctx, authorization.ActionAccountManage)
	if err != nil {
		return domain.Account{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Account{}, domain.ErrInvalidName
	}
	currency, err := NormalizeCurrency(req.Currency)
	if err != nil {
		return domain.Account{}, err
	}
	if req.InitialBalance.IsNegative() || !domain.FitsMoneyScale(req.InitialBalance) {
		return domain.Account{}, domain.ErrInvalidBalance
	}

	now := s.clock.Now().UTC()
	account := domain.Account{
		ID:             s.genID.Generate(),
		Name:           name,
		Currency:       currency,
		InitialBalance: req.InitialBalance,
		CurrentBalance: req.InitialBalance,
		CreatedBy:      actor.UserID,
		UpdatedBy:      actor.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, &account); err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, "account.created", auditdomain.TargetAccount, account.ID, map[string]any{
			"name":            account.Name,
			"currency":        account.Currency,
			"initial_balance": account.InitialBalance.String(),
		})
	})
	if err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Account, error) {
	if _, err := s.authorize(ctx, authorization.ActionAccountView); err != nil {
		return domain.Account{}, err
	}
	accountID, err := parseID(id)
	if err != nil {
		return domain.Account{}, err
	}

	account, err := s.repo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil || account.IsDeleted {
		return domain.Account{}, domain.ErrNotFound
	}
	return *account, nil
}

func (s *Service) List(ctx context.Context) ([]domain.Account, error) {
	if _, err := s.authorize(ctx, authorization.ActionAccountView); err != nil {
		return nil, err
	}

	items, err := s.repo.List(ctx, s.db)
	if err != nil {
		return nil, err
	}
	accounts := make([]domain.Account, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		accounts = append(accounts, *item)
	}
	return accounts, nil
}

// Delete soft-deletes an account that no pending or confirmed receipt
// references.
func (s *Service) Delete(ctx context.Context, id string) error {
	actor, err := s.authorize(ctx, authorization.ActionAccountManage)
	if err != nil {
		return err
	}
	accountID, err := parseID(id)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.repo.FindByIDForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if account == nil || account.IsDeleted {
			return domain.ErrNotFound
		}

		open, err := s.repo.CountOpenReceipts(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if open > 0 {
			return domain.ErrAccountInUse
		}

		if err := s.repo.SoftDelete(ctx, tx, accountID, actor.UserID, s.clock.Now().UTC()); err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, "account.deleted", auditdomain.TargetAccount, accountID, nil)
	})
}

func (s *Service) ListEntries(ctx context.Context, id string) ([]domain.Entry, error) {
	if _, err := s.authorize(ctx, authorization.ActionAccountView); err != nil {
		return nil, err
	}
	accountID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	account, err := s.repo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrNotFound
	}

	items, err := s.repo.ListEntries(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	entries := make([]domain.Entry, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		entries = append(entries, *item)
	}
	return entries, nil
}

func (s *Service) authorize(ctx context.Context, action string) (actorcontext.Actor, error) {
	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return actorcontext.Actor{}, domain.ErrInvalidActor
	}
	if err := s.authz.Authorize(actor, authorization.ObjectAccount, action); err != nil {
		return actorcontext.Actor{}, err
	}
	return actor, nil
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}

// NormalizeCurrency upper-cases a three letter ISO-4217 code.
func NormalizeCurrency(value string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(value))
	if len(code) != 3 {
		return "", domain.ErrInvalidCurrency
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", domain.ErrInvalidCurrency
		}
	}
	return code, nil
}
