package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/officeflow/internal/account/domain"
	accountservice "github.com/smallbiznis/officeflow/internal/account/service"
	"github.com/smallbiznis/officeflow/internal/actorcontext"
	auditdomain "github.com/smallbiznis/officeflow/internal/audit/domain"
	"github.com/smallbiznis/officeflow/internal/authorization"
	"github.com/smallbiznis/officeflow/internal/clock"
	obsmetrics "github.com/smallbiznis/officeflow/internal/observability/metrics"
	"github.com/smallbiznis/officeflow/internal/reimbursement/domain"
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

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Authz    authorization.Service
	AuditSvc auditdomain.Service
	Serials  serialdomain.Generator
	Repo     domain.Repository
	Payer    domain.Payer        `optional:"true"`
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	clock    clock.Clock
	authz    authorization.Service
	auditSvc auditdomain.Service
	serials  serialdomain.Generator
	repo     domain.Repository
	payer    domain.Payer
	metrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("reimbursement.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		authz:    p.Authz,
		auditSvc: p.AuditSvc,
		serials:  p.Serials,
		repo:     p.Repo,
		payer:    p.Payer,
		metrics:  p.Metrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (domain.Reimbursement, error) {
	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return domain.Reimbursement{}, domain.ErrInvalidActor
	}

	input, err := normalizeInput(req.DocumentInput)
	if err != nil {
		return domain.Reimbursement{}, err
	}

	now := s.now()
	item := domain.Reimbursement{
		ID:            s.genID.Generate(),
		Type:          input.docType,
		Title:         input.Title,
		Payee:         input.Payee,
		PaymentTarget: input.PaymentTarget,
		AccountNumber: input.AccountNumber,
		BankInfo:      input.BankInfo,
		Currency:      input.Currency,
		Status:        domain.StatusPending,
		SubmitterID:   actor.UserID,
		Attachments:   input.attachments,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	item.Items = s.buildItems(item.ID, input.Items)
	item.TotalAmount = domain.SumItems(item.Items)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		serial, err := s.serials.Next(ctx, tx, serialTypeFor(item.Type), now)
		if err != nil {
			return err
		}
		item.SerialNumber = serial

		if err := s.repo.Insert(ctx, tx, &item); err != nil {
			return err
		}
		if err := s.repo.InsertItems(ctx, tx, item.Items); err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, "reimbursement.created", auditdomain.TargetReimbursement, item.ID, map[string]any{
			"serial_number":  item.SerialNumber,
			"type":           string(item.Type),
			"total_amount":   item.TotalAmount.String(),
			"currency":       item.Currency,
			"account_number": item.AccountNumber,
		})
	})
	if err != nil {
		return domain.Reimbursement{}, err
	}
	return item, nil
}

// Update replaces the header fields and the full item set of a pending
// document in one transaction.
func (s *Service) Update(ctx context.Context, req domain.UpdateRequest) (domain.Reimbursement, error) {
	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return domain.Reimbursement{}, domain.ErrInvalidActor
	}
	id, err := parseID(req.ID)
	if err != nil {
		return domain.Reimbursement{}, err
	}
	input, err := normalizeInput(req.DocumentInput)
	if err != nil {
		return domain.Reimbursement{}, err
	}

	var result domain.Reimbursement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if item.SubmitterID != actor.UserID {
			return domain.ErrForbidden
		}
		if !item.Editable() {
			return domain.ErrNotPending
		}

		now := s.now()
		if input.docType != item.Type {
			// The serial prefix belongs to the original type.
			return domain.ErrInvalidType
		}
		item.Title = input.Title
		item.Payee = input.Payee
		item.PaymentTarget = input.PaymentTarget
		item.AccountNumber = input.AccountNumber
		item.BankInfo = input.BankInfo
		item.Currency = input.Currency
		item.Attachments = input.attachments
		item.Items = s.buildItems(item.ID, input.Items)
		item.TotalAmount = domain.SumItems(item.Items)
		item.UpdatedAt = now

		if err := s.repo.DeleteItems(ctx, tx, item.ID); err != nil {
			return err
		}
		if err := s.repo.InsertItems(ctx, tx, item.Items); err != nil {
			return err
		}
		if err := s.repo.Update(ctx, tx, item); err != nil {
			return err
		}
		if err := s.auditSvc.Record(ctx, tx, "reimbursement.updated", auditdomain.TargetReimbursement, item.ID, map[string]any{
			"total_amount": item.TotalAmount.String(),
			"item_count":   len(item.Items),
		}); err != nil {
			return err
		}
		result = *item
		return nil
	})
	if err != nil {
		return domain.Reimbursement{}, err
	}
	return result, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return domain.ErrInvalidActor
	}
	reimbursementID, err := parseID(id)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.lock(ctx, tx, reimbursementID)
		if err != nil {
			return err
		}
		deleteAny := s.authz.Can(actor, authorization.ObjectReimbursement, authorization.ActionReimbursementDeleteAny)
		if err := item.CanDelete(actor.UserID, deleteAny); err != nil {
			return err
		}

		if err := s.repo.DeleteItems(ctx, tx, item.ID); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, item.ID); err != nil {
			return err
		}
		return s.auditSvc.Record(ctx, tx, "reimbursement.deleted", auditdomain.TargetReimbursement, item.ID, map[string]any{
			"serial_number": item.SerialNumber,
		})
	})
}

// Review moves a document along the workflow. Payment is delegated to the
// settlement engine so the status change and the account debit commit
// together.
func (s *Service) Review(ctx context.Context, req domain.ReviewRequest) (domain.Reimbursement, error) {
	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return domain.Reimbursement{}, domain.ErrInvalidActor
	}
	id, err := parseID(req.ID)
	if err != nil {
		return domain.Reimbursement{}, err
	}
	target, ok := domain.ParseStatus(req.Status)
	if !ok || target == domain.StatusPending {
		return domain.Reimbursement{}, domain.ErrInvalidStatus
	}
	comment := strings.TrimSpace(req.ReviewComment)

	if target == domain.StatusPaid {
		if s.payer == nil {
			return domain.Reimbursement{}, domain.ErrPaymentUnavailable
		}
		if !s.workflowActor(actor).CanPay {
			return domain.Reimbursement{}, domain.ErrForbidden
		}
		if strings.TrimSpace(req.BankInfo) == "" {
			return domain.Reimbursement{}, domain.ErrMissingBankInfo
		}
		if strings.TrimSpace(req.AccountID) == "" {
			return domain.Reimbursement{}, domain.ErrMissingAccount
		}
		return s.payer.PayReimbursement(ctx, domain.PayRequest{
			ReimbursementID: id.String(),
			AccountID:       strings.TrimSpace(req.AccountID),
			BankInfo:        strings.TrimSpace(req.BankInfo),
			ReviewComment:   comment,
		})
	}

	var (
		result domain.Reimbursement
		from   domain.Status
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := domain.Transition(*item, s.workflowActor(actor), target); err != nil {
			return err
		}

		from = item.Status
		now := s.now()
		if target == domain.StatusSubmitted {
			item.Submit(now)
		} else {
			item.Review(target, actor.UserID, comment, now)
		}

		if err := s.repo.Update(ctx, tx, item); err != nil {
			return err
		}
		if err := s.auditSvc.Record(ctx, tx, "reimbursement."+string(target), auditdomain.TargetReimbursement, item.ID, map[string]any{
			"from":           string(from),
			"to":             string(target),
			"review_comment": comment,
		}); err != nil {
			return err
		}
		result = *item
		return nil
	})
	if err != nil {
		return domain.Reimbursement{}, err
	}

	s.metrics.RecordTransition("reimbursement", string(from), string(target))
	return result, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Reimbursement, error) {
	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return domain.Reimbursement{}, domain.ErrInvalidActor
	}
	reimbursementID, err := parseID(id)
	if err != nil {
		return domain.Reimbursement{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, reimbursementID)
	if err != nil {
		return domain.Reimbursement{}, err
	}
	if item == nil {
		return domain.Reimbursement{}, domain.ErrNotFound
	}
	if item.SubmitterID != actor.UserID && !s.canViewAll(actor) {
		return domain.Reimbursement{}, domain.ErrNotFound
	}
	return *item, nil
}

// List returns the caller's documents, or every document for callers who may
// view all.
func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	actor, ok := actorcontext.FromContext(ctx)
	if !ok {
		return domain.ListResponse{}, domain.ErrInvalidActor
	}
	page, err := req.Pagination.Normalize(pagination.DefaultPageSize, pagination.MaxPageSize)
	if err != nil {
		return domain.ListResponse{}, domain.ErrInvalidPageToken
	}

	f := domain.ListFilter{Filters: req.Filters}
	if !s.canViewAll(actor) {
		f.SubmitterID = actor.UserID
	}

	items, err := s.repo.List(ctx, s.db, f, page)
	if err != nil {
		return domain.ListResponse{}, err
	}

	out, info := pagination.Page(items, page.PageSize, func(r *domain.Reimbursement) pagination.Cursor {
		return pagination.CursorAt(int64(r.ID), r.CreatedAt)
	})
	return domain.ListResponse{PageInfo: info, Reimbursements: out}, nil
}

func (s *Service) lock(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Reimbursement, error) {
	started := time.Now()
	item, err := s.repo.FindByIDForUpdate(ctx, tx, id)
	s.metrics.ObserveLockWait(obsmetrics.LockResourceReimbursement, time.Since(started))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) workflowActor(actor actorcontext.Actor) domain.Actor {
	return WorkflowActor(s.authz, actor)
}

// WorkflowActor resolves the workflow capabilities of actor.
func WorkflowActor(authz authorization.Service, actor actorcontext.Actor) domain.Actor {
	return domain.Actor{
		ID:        actor.UserID,
		CanReview: authz.Can(actor, authorization.ObjectReimbursement, authorization.ActionReimbursementReview),
		CanPay:    authz.Can(actor, authorization.ObjectReimbursement, authorization.ActionReimbursementPay),
	}
}

func (s *Service) canViewAll(actor actorcontext.Actor) bool {
	return s.authz.Can(actor, authorization.ObjectReimbursement, authorization.ActionReimbursementViewAll)
}

func (s *Service) buildItems(reimbursementID snowflake.ID, inputs []domain.ItemInput) []domain.Item {
	items := make([]domain.Item, 0, len(inputs))
	for _, in := range inputs {
		items = append(items, domain.Item{
			ID:              s.genID.Generate(),
			ReimbursementID: reimbursementID,
			AccountCode:     strings.TrimSpace(in.AccountCode),
			Date:            in.Date.UTC(),
			Description:     strings.TrimSpace(in.Description),
			Amount:          in.Amount,
			Tax:             in.Tax,
			Fee:             in.Fee,
			Total:           domain.ItemTotal(in.Amount, in.Tax, in.Fee),
		})
	}
	return items
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

type normalizedInput struct {
	domain.DocumentInput
	docType     domain.Type
	attachments datatypes.JSON
}

func normalizeInput(in domain.DocumentInput) (normalizedInput, error) {
	out := normalizedInput{DocumentInput: in}

	out.docType = domain.Type(strings.ToLower(strings.TrimSpace(in.Type)))
	if !out.docType.Valid() {
		return normalizedInput{}, domain.ErrInvalidType
	}
	out.Title = strings.TrimSpace(in.Title)
	if out.Title == "" {
		return normalizedInput{}, domain.ErrInvalidTitle
	}
	out.Payee = strings.TrimSpace(in.Payee)
	if out.Payee == "" {
		return normalizedInput{}, domain.ErrInvalidPayee
	}
	currency, err := accountservice.NormalizeCurrency(in.Currency)
	if err != nil {
		return normalizedInput{}, domain.ErrInvalidCurrency
	}
	out.Currency = currency
	out.PaymentTarget = strings.TrimSpace(in.PaymentTarget)
	out.AccountNumber = strings.TrimSpace(in.AccountNumber)
	out.BankInfo = strings.TrimSpace(in.BankInfo)

	if len(in.Items) == 0 {
		return normalizedInput{}, domain.ErrInvalidItems
	}
	total := decimal.Zero
	for _, item := range in.Items {
		if item.Amount.IsNegative() || item.Tax.IsNegative() || item.Fee.IsNegative() {
			return normalizedInput{}, domain.ErrInvalidItemAmount
		}
		if !accountdomain.FitsMoneyScale(item.Amount) || !accountdomain.FitsMoneyScale(item.Tax) || !accountdomain.FitsMoneyScale(item.Fee) {
			return normalizedInput{}, domain.ErrInvalidItemAmount
		}
		if item.Date.IsZero() {
			return normalizedInput{}, domain.ErrInvalidItemDate
		}
		total = total.Add(domain.ItemTotal(item.Amount, item.Tax, item.Fee))
	}
	if !total.IsPositive() {
		return normalizedInput{}, domain.ErrInvalidTotal
	}

	attachments, err := encodeAttachments(in.Attachments)
	if err != nil {
		return normalizedInput{}, err
	}
	out.attachments = attachments
	return out, nil
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

func serialTypeFor(t domain.Type) serialdomain.DocumentType {
	if t == domain.TypePayable {
		return serialdomain.DocumentPayable
	}
	return serialdomain.DocumentReimbursement
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
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
