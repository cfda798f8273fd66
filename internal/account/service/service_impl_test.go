package service

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/officeflow/internal/account/domain"
	"github.com/smallbiznis/officeflow/internal/account/repository"
	auditrepository "github.com/smallbiznis/officeflow/internal/audit/repository"
	auditservice "github.com/smallbiznis/officeflow/internal/audit/service"
	"github.com/smallbiznis/officeflow/internal/authorization"
	"github.com/smallbiznis/officeflow/internal/clock"
	receiptdomain "github.com/smallbiznis/officeflow/internal/receipt/domain"
	"github.com/smallbiznis/officeflow/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db     *gorm.DB
	node   *snowflake.Node
	clock  *clock.FakeClock
	svc    domain.Service
	ledger domain.Ledger
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC))
	authz := testutil.NewAuthz(t)
	repo := repository.Provide()

	auditSvc := auditservice.NewService(auditservice.Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Authz: authz, Repo: auditrepository.Provide(),
	})
	svc := New(Params{
		DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Authz: authz, AuditSvc: auditSvc, Repo: repo,
	})
	ledger := NewLedger(LedgerParams{Log: zap.NewNop(), GenID: node, Clock: clk, Repo: repo})

	return fixture{db: db, node: node, clock: clk, svc: svc, ledger: ledger}
}

func TestCreateAccountStartsAtInitialBalance(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.AdminContext(f.node.Generate())

	account, err := f.svc.Create(ctx, domain.CreateAccountRequest{
		Name:           " Operating ",
		Currency:       "idr",
		InitialBalance: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	assert.Equal(t, "Operating", account.Name)
	assert.Equal(t, "IDR", account.Currency)
	testutil.AssertDecimal(t, "1000", account.CurrentBalance)

	stored, err := f.svc.GetByID(ctx, account.ID.String())
	require.NoError(t, err)
	testutil.AssertDecimal(t, "1000", stored.InitialBalance)
	testutil.AssertDecimal(t, "1000", stored.CurrentBalance)

	var audits int64
	require.NoError(t, f.db.Table("audit_logs").Where("action = ?", "account.created").Count(&audits).Error)
	assert.Equal(t, int64(1), audits)
}

func TestCreateAccountValidation(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.AdminContext(f.node.Generate())

	_, err := f.svc.Create(ctx, domain.CreateAccountRequest{Name: "", Currency: "IDR"})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = f.svc.Create(ctx, domain.CreateAccountRequest{Name: "Cash", Currency: "RUPIAH"})
	assert.ErrorIs(t, err, domain.ErrInvalidCurrency)

	_, err = f.svc.Create(ctx, domain.CreateAccountRequest{Name: "Cash", Currency: "IDR", InitialBalance: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, domain.ErrInvalidBalance)

	_, err = f.svc.Create(ctx, domain.CreateAccountRequest{Name: "Cash", Currency: "IDR", InitialBalance: decimal.RequireFromString("10.00001")})
	assert.ErrorIs(t, err, domain.ErrInvalidBalance)

	account, err := f.svc.Create(ctx, domain.CreateAccountRequest{Name: "Cash", Currency: "IDR", InitialBalance: decimal.RequireFromString("10.1234")})
	require.NoError(t, err)
	testutil.AssertDecimal(t, "10.1234", account.CurrentBalance)
}

func TestMembersCannotManageAccounts(t *testing.T) {
	f := newFixture(t)
	member := testutil.MemberContext(f.node.Generate())

	_, err := f.svc.Create(member, domain.CreateAccountRequest{Name: "Cash", Currency: "IDR"})
	assert.ErrorIs(t, err, authorization.ErrForbidden)

	admin := testutil.AdminContext(f.node.Generate())
	account, err := f.svc.Create(admin, domain.CreateAccountRequest{Name: "Cash", Currency: "IDR"})
	require.NoError(t, err)

	_, err = f.svc.GetByID(member, account.ID.String())
	assert.NoError(t, err)

	err = f.svc.Delete(member, account.ID.String())
	assert.ErrorIs(t, err, authorization.ErrForbidden)
}

func TestDeleteAccountRejectedWhileReceiptsAreOpen(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.AdminContext(f.node.Generate())

	account, err := f.svc.Create(ctx, domain.CreateAccountRequest{Name: "Cash", Currency: "IDR"})
	require.NoError(t, err)

	receipt := receiptdomain.Receipt{
		ID:            f.node.Generate(),
		ReceiptNumber: "C20240101001",
		ReceiptDate:   f.clock.Now(),
		Amount:        decimal.NewFromInt(10),
		PaymentMethod: "cash",
		Payer:         "Acme",
		AccountID:     account.ID,
		Status:        receiptdomain.StatusPending,
		CreatedBy:     1,
		CreatedAt:     f.clock.Now(),
		UpdatedAt:     f.clock.Now(),
	}
	require.NoError(t, f.db.Create(&receipt).Error)

	err = f.svc.Delete(ctx, account.ID.String())
	assert.ErrorIs(t, err, domain.ErrAccountInUse)

	require.NoError(t, f.db.Model(&receiptdomain.Receipt{}).Where("id = ?", receipt.ID).
		Update("status", receiptdomain.StatusCancelled).Error)

	require.NoError(t, f.svc.Delete(ctx, account.ID.String()))

	_, err = f.svc.GetByID(ctx, account.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	accounts, err := f.svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	err = f.svc.Delete(ctx, account.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetAccountRejectsMalformedID(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.AdminContext(f.node.Generate())

	_, err := f.svc.GetByID(ctx, "not-a-number")
	assert.ErrorIs(t, err, domain.ErrInvalidID)

	_, err = f.svc.GetByID(ctx, f.node.Generate().String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestNormalizeCurrency(t *testing.T) {
	code, err := NormalizeCurrency(" usd ")
	require.NoError(t, err)
	assert.Equal(t, "USD", code)

	for _, bad := range []string{"", "US", "US1", "EURO"} {
		_, err := NormalizeCurrency(bad)
		assert.ErrorIs(t, err, domain.ErrInvalidCurrency, bad)
	}
}
