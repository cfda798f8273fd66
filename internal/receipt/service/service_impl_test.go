package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/officeflow/internal/account/domain"
	accountrepository "github.com/smallbiznis/officeflow/internal/account/repository"
	auditrepository "github.com/smallbiznis/officeflow/internal/audit/repository"
	auditservice "github.com/smallbiznis/officeflow/internal/audit/service"
	"github.com/smallbiznis/officeflow/internal/authorization"
	"github.com/smallbiznis/officeflow/internal/clock"
	"github.com/smallbiznis/officeflow/internal/config"
	"github.com/smallbiznis/officeflow/internal/receipt/domain"
	"github.com/smallbiznis/officeflow/internal/receipt/repository"
	serialrepository "github.com/smallbiznis/officeflow/internal/serial/repository"
	serialservice "github.com/smallbiznis/officeflow/internal/serial/service"
	"github.com/smallbiznis/officeflow/internal/testutil"
	"github.com/smallbiznis/officeflow/pkg/db/filter"
	"github.com/smallbiznis/officeflow/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type settlerStub struct {
	confirmed []snowflake.ID
	cancelled []snowflake.ID
	deleted   []snowflake.ID
}

func (s *settlerStub) ConfirmReceipt(ctx context.Context, id snowflake.ID) (domain.StatusResult, error) {
	s.confirmed = append(s.confirmed, id)
	return domain.StatusResult{Receipt: domain.Receipt{ID: id, Status: domain.StatusConfirmed}}, nil
}

func (s *settlerStub) CancelReceipt(ctx context.Context, id snowflake.ID) (domain.StatusResult, error) {
	s.cancelled = append(s.cancelled, id)
	return domain.StatusResult{Receipt: domain.Receipt{ID: id, Status: domain.StatusCancelled}}, nil
}

func (s *settlerStub) DeleteReceipt(ctx context.Context, id snowflake.ID) (domain.DeleteResult, error) {
	s.deleted = append(s.deleted, id)
	return domain.DeleteResult{ID: id.String(), Deleted: true}, nil
}

type fixture struct {
	db      *gorm.DB
	node    *snowflake.Node
	clock   *clock.FakeClock
	settler *settlerStub
	svc     domain.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return newFixtureWithAccounts(t, accountrepository.Provide())
}

func newFixtureWithAccounts(t *testing.T, accounts accountdomain.Repository) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2024, 3, 9, 17, 30, 0, 0, time.UTC))
	authz := testutil.NewAuthz(t)
	settler := &settlerStub{}

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Authz: authz,
		AuditSvc: auditservice.NewService(auditservice.Params{
			DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Authz: authz, Repo: auditrepository.Provide(),
		}),
		Serials: serialservice.New(serialservice.Params{
			Cfg: config.Config{BusinessTZOffsetHours: 8}, Log: zap.NewNop(), Repo: serialrepository.Provide(),
		}),
		Repo:        repository.Provide(),
		AccountRepo: accounts,
		Settler:     settler,
	})
	return fixture{db: db, node: node, clock: clk, settler: settler, svc: svc}
}

func (f fixture) account(t *testing.T, deleted bool) snowflake.ID {
	t.Helper()
	now := f.clock.Now()
	acct := accountdomain.Account{
		ID:             f.node.Generate(),
		Name:           "Operating",
		Currency:       "IDR",
		InitialBalance: decimal.NewFromInt(1000),
		CurrentBalance: decimal.NewFromInt(1000),
		IsDeleted:      deleted,
		CreatedBy:      1,
		UpdatedBy:      1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	require.NoError(t, f.db.Create(&acct).Error)
	return acct.ID
}

func paymentRequest(accountID snowflake.ID) domain.CreateReceiptRequest {
	return domain.CreateReceiptRequest{
		ReceiptDate:   time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
		Amount:        decimal.NewFromInt(500),
		PaymentMethod: "transfer",
		Payer:         "PT Maju Jaya",
		AccountID:     accountID.String(),
		Description:   "March consulting fee",
		Attachments:   []string{"s3://receipts/march.pdf"},
	}
}

func TestCreateReceiptIsPendingAndLeavesBalance(t *testing.T) {
	f := newFixture(t)
	accountID := f.account(t, false)
	ctx := testutil.MemberContext(f.node.Generate())

	receipt, err := f.svc.Create(ctx, paymentRequest(accountID))
	require.NoError(t, err)

	// 17:30 UTC on the 9th is already the 10th at UTC+8.
	assert.Equal(t, "C20240310001", receipt.ReceiptNumber)
	assert.Equal(t, domain.StatusPending, receipt.Status)
	assert.Nil(t, receipt.ConfirmedAt)

	stored, err := f.svc.GetByID(ctx, receipt.ID.String())
	require.NoError(t, err)
	testutil.AssertDecimal(t, "500", stored.Amount)
	assert.Equal(t, accountID, stored.AccountID)
	assert.JSONEq(t, `["s3://receipts/march.pdf"]`, string(stored.Attachments))

	var acct accountdomain.Account
	require.NoError(t, f.db.First(&acct, "id = ?", accountID).Error)
	testutil.AssertDecimal(t, "1000", acct.CurrentBalance)

	next, err := f.svc.Create(ctx, paymentRequest(accountID))
	require.NoError(t, err)
	assert.Equal(t, "C20240310002", next.ReceiptNumber)
}

type lockRecordingAccounts struct {
	accountdomain.Repository
	locked     []snowflake.ID
	plainReads int
}

func (r *lockRecordingAccounts) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*accountdomain.Account, error) {
	r.plainReads++
	return r.Repository.FindByID(ctx, db, id)
}

func (r *lockRecordingAccounts) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*accountdomain.Account, error) {
	r.locked = append(r.locked, id)
	return r.Repository.FindByIDForUpdate(ctx, tx, id)
}

func TestCreateReceiptLocksAccount(t *testing.T) {
	accounts := &lockRecordingAccounts{Repository: accountrepository.Provide()}
	f := newFixtureWithAccounts(t, accounts)
	accountID := f.account(t, false)

	_, err := f.svc.Create(testutil.MemberContext(f.node.Generate()), paymentRequest(accountID))
	require.NoError(t, err)

	assert.Equal(t, []snowflake.ID{accountID}, accounts.locked)
	assert.Zero(t, accounts.plainReads)
}

func TestCreateReceiptValidation(t *testing.T) {
	f := newFixture(t)
	live := f.account(t, false)
	gone := f.account(t, true)
	ctx := testutil.MemberContext(f.node.Generate())

	cases := map[string]struct {
		mutate func(*domain.CreateReceiptRequest)
		want   error
	}{
		"zero amount":     {func(r *domain.CreateReceiptRequest) { r.Amount = decimal.Zero }, domain.ErrInvalidAmount},
		"negative amount": {func(r *domain.CreateReceiptRequest) { r.Amount = decimal.NewFromInt(-5) }, domain.ErrInvalidAmount},
		"sub-unit amount": {func(r *domain.CreateReceiptRequest) { r.Amount = decimal.RequireFromString("0.00001") }, domain.ErrInvalidAmount},
		"amount scale":    {func(r *domain.CreateReceiptRequest) { r.Amount = decimal.RequireFromString("12.34567") }, domain.ErrInvalidAmount},
		"date":            {func(r *domain.CreateReceiptRequest) { r.ReceiptDate = time.Time{} }, domain.ErrInvalidReceiptDate},
		"method":          {func(r *domain.CreateReceiptRequest) { r.PaymentMethod = " " }, domain.ErrInvalidPaymentMethod},
		"payer":           {func(r *domain.CreateReceiptRequest) { r.Payer = "" }, domain.ErrInvalidPayer},
		"malformed":       {func(r *domain.CreateReceiptRequest) { r.AccountID = "acc-1" }, domain.ErrInvalidAccount},
		"unknown":         {func(r *domain.CreateReceiptRequest) { r.AccountID = f.node.Generate().String() }, domain.ErrInvalidAccount},
		"deleted":         {func(r *domain.CreateReceiptRequest) { r.AccountID = gone.String() }, domain.ErrInvalidAccount},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := paymentRequest(live)
			tc.mutate(&req)
			_, err := f.svc.Create(ctx, req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&domain.Receipt{}).Count(&count).Error)
	assert.Zero(t, count)

	_, err := f.svc.Create(context.Background(), paymentRequest(live))
	assert.ErrorIs(t, err, domain.ErrInvalidActor)
}

func TestUpdateStatusDelegatesToSettler(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.MemberContext(f.node.Generate())
	id := f.node.Generate()

	res, err := f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{ID: id.String(), Status: "confirmed"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, res.Receipt.Status)
	assert.Equal(t, []snowflake.ID{id}, f.settler.confirmed)

	_, err = f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{ID: id.String(), Status: "CANCELLED"})
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{id}, f.settler.cancelled)

	_, err = f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{ID: id.String(), Status: "PENDING"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	_, err = f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{ID: id.String(), Status: "REFUNDED"})
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	_, err = f.svc.UpdateStatus(ctx, domain.UpdateStatusRequest{ID: "nope", Status: "CONFIRMED"})
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	deleted, err := f.svc.Delete(ctx, id.String())
	require.NoError(t, err)
	assert.True(t, deleted.Deleted)
	assert.Equal(t, []snowflake.ID{id}, f.settler.deleted)
}

func TestListReceiptsFilters(t *testing.T) {
	f := newFixture(t)
	accountID := f.account(t, false)
	ctx := testutil.MemberContext(f.node.Generate())

	early := paymentRequest(accountID)
	early.ReceiptDate = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	early.Payer = "Toko Sinar"
	first, err := f.svc.Create(ctx, early)
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	_, err = f.svc.Create(ctx, paymentRequest(accountID))
	require.NoError(t, err)

	f.clock.Advance(time.Minute)
	late := paymentRequest(accountID)
	late.ReceiptDate = time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)
	_, err = f.svc.Create(ctx, late)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&domain.Receipt{}).Where("id = ?", first.ID).Update("status", domain.StatusCancelled).Error)

	all, err := f.svc.List(ctx, domain.ListReceiptRequest{})
	require.NoError(t, err)
	assert.Len(t, all.Receipts, 3)
	assert.False(t, all.HasMore)

	from := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	filters, err := ListFilters(&from, &to, nil, "")
	require.NoError(t, err)
	window, err := f.svc.List(ctx, domain.ListReceiptRequest{Filters: filters})
	require.NoError(t, err)
	assert.Len(t, window.Receipts, 1)

	filters, err = ListFilters(nil, nil, []string{"cancelled"}, "")
	require.NoError(t, err)
	cancelled, err := f.svc.List(ctx, domain.ListReceiptRequest{Filters: filters})
	require.NoError(t, err)
	require.Len(t, cancelled.Receipts, 1)
	assert.Equal(t, first.ID, cancelled.Receipts[0].ID)

	filters, err = ListFilters(nil, nil, nil, "SINAR")
	require.NoError(t, err)
	search, err := f.svc.List(ctx, domain.ListReceiptRequest{Filters: filters})
	require.NoError(t, err)
	require.Len(t, search.Receipts, 1)
	assert.Equal(t, first.ID, search.Receipts[0].ID)

	page, err := f.svc.List(ctx, domain.ListReceiptRequest{Pagination: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	assert.Len(t, page.Receipts, 2)
	assert.True(t, page.HasMore)

	rest, err := f.svc.List(ctx, domain.ListReceiptRequest{Pagination: pagination.Pagination{PageSize: 2, PageToken: page.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, rest.Receipts, 1)
	assert.Equal(t, first.ID, rest.Receipts[0].ID)

	_, err = f.svc.List(ctx, domain.ListReceiptRequest{Filters: []filter.Filter{filter.DateRange{From: to, To: from}}})
	assert.ErrorIs(t, err, filter.ErrInvalidFilter)

	_, err = ListFilters(nil, nil, []string{"VOID"}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestGetReceiptNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.AdminContext(f.node.Generate())

	_, err := f.svc.GetByID(ctx, f.node.Generate().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.GetByID(ctx, "0")
	assert.ErrorIs(t, err, domain.ErrInvalidID)
}

func TestReceiptRequiresKnownRole(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.RoleContext(f.node.Generate(), "auditor")

	_, err := f.svc.List(ctx, domain.ListReceiptRequest{})
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}
