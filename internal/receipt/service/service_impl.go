package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/officeflow/internal/account/domain"
	"github.com/smallbiznis/officeflow/internal/actorcontext"
	auditdomain "github.com/smallbiznis/officeflow/internal/audit/domain"
	"github.com/smallbiznis/officeflow/internal/authorization"
	"github.com/smallbiznis/officeflow/internal/clock"
	"github.com/smallbiznis/officeflow/internal/receipt/domain"
	serialdomain "github.com/smallbiznis/officeflow/internal/serial/domain"
	"github.com/smallbiznis/officeflow/pkg/db/filter"
	"github.com/smallbiznis/officeflow/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Authz       authorization.Service
	AuditSvc    auditdomain.Service
	Serials     serialdomain.Generator
	Repo        domain.Repository
	AccountRepo accountdomain.Repository
	Settler     domain.Settler `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	authz       authorization.Service
	auditSvc    auditdomain.Service
	serials     serialdomain.Generator
	repo        domain.Repository
	accountRepo accountdomain.Repository
	settler     domain.Settler
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("receipt.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		authz:       p.Authz,
		auditSvc:    p.AuditSvc,
		serials:     p.Serials,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		settler:     p.Settler,
	}
}

// Create records a PENDING receipt. The account balance is untouched until
// the receipt is confirmed.
func (s *Service) Create(ctx context.Context, req domain.CreateReceiptRequest) (domain.Receipt, error) {
	actor, err := s.authorize(ctx, authorization.ActionReceiptCreate)
	if err != nil {
		return domain.Receipt{}, err
	}

	if !req.Amount.IsPositive() || !accountdomain.FitsMoneyScale(req.Amount) {
		return domain.Receipt{}, domain.ErrInvalidAmount
	}
	if req.ReceiptDate.IsZero() {
		return domain.Receipt{}, domain.ErrInvalidReceiptDate
	}
	paymentMethod := strings.TrimSpace(req.PaymentMethod)
	if paymentMethod == "" {
		return domain.Receipt{}, domain.ErrInvalidPaymentMethod
	}
	payer := strings.TrimSpace(req.Payer)
	if payer == "" {
		return domain.Receipt{}, domain.ErrInvalidPayer
	}
	accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
	if err != nil || accountID == 0 {
		return domain.Receipt{}, domain.ErrInvalidAccount
	}
	attachments, err := encodeAttachments(req.Attachments)
	if err != nil {
		return domain.Receipt{}, err
	}

	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	receipt := domain.Receipt{
		ID:            s.genID.Generate(),
		ReceiptDate:   req.ReceiptDate.UTC(),
		Amount:        req.Amount,
		PaymentMethod: paymentMethod,
		Payer:         payer,
		AccountID:     accountID,
		Description:   strings.TrimSpace(req.Description),
		Attachments:   attachments,
		Status:        domain.StatusPending,
		CreatedBy:     actor.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Locked so a concurrent account delete sees this receipt or wins first.
		account, err := s.accountRepo.FindByIDForUpdate(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if account == nil || account.IsDeleted {
			return domain.ErrInvalidAccount
		}

		number, err := s.serials.Next(ctx, tx, serialdomain.DocumentReceipt, now)
		if err != nil {
			return err
		}
		receipt.ReceiptNumber = number

		if err := s.repo.Insert(ctx, tx, &receipt); err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, "receipt.created", auditdomain.TargetReceipt, receipt.ID, map[string]any{
			"receipt_number": receipt.ReceiptNumber,
			"amount":         receipt.Amount.String(),
			"account_id":     receipt.AccountID.String(),
		})
	})
	if err != nil {
		return domain.Receipt{}, err
	}
	return receipt, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Receipt, error) {
	if _, err := s.authorize(ctx, authorization.ActionReceiptView); err != nil {
		return domain.Receipt{}, err
	}
	receiptID, err := parseID(id)
	if err != nil {
		return domain.Receipt{}, err
	}

	receipt, err := s.repo.FindByID(ctx, s.db, receiptID)
	if err != nil {
		return domain.Receipt{}, err
	}
	if receipt == nil {
		return domain.Receipt{}, domain.ErrNotFound
	}
	return *receipt, nil
}

func (s *Service) List(ctx context.Context, req domain.ListReceiptRequest) (domain.ListReceiptResponse, error) {
	if _, err := s.authorize(ctx, authorization.ActionReceiptView); err != nil {
		return domain.ListReceiptResponse{}, err
	}
	page, err := req.Pagination.Normalize(pagination.DefaultPageSize, pagination.MaxPageSize)
	if err != nil {
		return domain.ListReceiptResponse{}, domain.ErrInvalidPageToken
	}

	items, err := s.repo.List(ctx, s.db, req.Filters, page)
	if err != nil {
		return domain.ListReceiptResponse{}, err
	}

	receipts, info := pagination.Page(items, page.PageSize, func(r *domain.Receipt) pagination.Cursor {
		return pagination.CursorAt(int64(r.ID), r.CreatedAt)
	})
	return domain.ListReceiptResponse{PageInfo: info, Receipts: receipts}, nil
}

func (s *Service) UpdateStatus(ctx context.Context, req domain.UpdateStatusRequest) (domain.StatusResult, error) {
	if _, ok := actorcontext.FromContext(ctx); !ok {
		return domain.StatusResult{}, domain.ErrInvalidActor
	}
	id, err := parseID(req.ID)
	if err != nil {
		return domain.StatusResult{}, err
	}
	status, ok := domain.ParseStatus(req.Status)
	if !ok || status == domain.StatusPending {
		return domain.StatusResult{}, domain.ErrInvalidStatus
	}
	if s.settler == nil {
		return domain.StatusResult{}, domain.ErrSettlementUnavailable
	}

	if status == domain.StatusConfirmed {
		return s.settler.ConfirmReceipt(ctx, id)
	}
	return s.settler.CancelReceipt(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id string) (domain.DeleteResult, error) {
	if _, ok := actorcontext.FromContext(ctx); !ok {
		return domain.DeleteResult{}, domain.ErrInvalidActor
	}
	receiptID, err := parseID(id)
	if err != nil {
		return domain.DeleteResult{}, err
	}
	if s.settler == nil {
		return domain.DeleteResult{}, domain.ErrSettlementUnavailable
	}
	return s.settler.DeleteReceipt(ctx, receiptID)
}

func (s *Service) authorize(ctx context.Context, action string) (actorcontext.Actor, error) {
	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return actorcontext.Actor{}, domain.ErrInvalidActor
	}
	if err := s.authz.Authorize(actor, authorization.ObjectReceipt, action); err != nil {
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

func encodeAttachments(refs []string) (datatypes.JSON, error) {
	cleaned := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref = strings.TrimSpace(ref); ref != "" {
			cleaned = append(cleaned, ref)
		}
	}
	raw, err := json.Marshal(cleaned)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// ListFilters builds the closed filter set from optional query values.
func ListFilters(from, to *time.Time, statuses []string, query string) ([]filter.Filter, error) {
	var filters []filter.Filter
	if from != nil || to != nil {
		var dr filter.DateRange
		if from != nil {
			dr.From = *from
		}
		if to != nil {
			dr.To = *to
		}
		filters = append(filters, dr)
	}
	if len(statuses) > 0 {
		set := filter.StatusSet{}
		for _, raw := range statuses {
			status, ok := domain.ParseStatus(raw)
			if !ok {
				return nil, domain.ErrInvalidStatus
			}
			set.Statuses = append(set.Statuses, string(status))
		}
		filters = append(filters, set)
	}
	if q := strings.TrimSpace(query); q != "" {
		filters = append(filters, filter.TextSearch{Query: q})
	}
	return filters, nil
}
