package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	accountrepository "github.com/smallbiznis/officeflow/internal/account/repository"
	accountservice "github.com/smallbiznis/officeflow/internal/account/service"
	auditrepository "github.com/smallbiznis/officeflow/internal/audit/repository"
	auditservice "github.com/smallbiznis/officeflow/internal/audit/service"
	"github.com/smallbiznis/officeflow/internal/clock"
	"github.com/smallbiznis/officeflow/internal/config"
	"github.com/smallbiznis/officeflow/internal/ratelimit"
	receiptrepository "github.com/smallbiznis/officeflow/internal/receipt/repository"
	receiptservice "github.com/smallbiznis/officeflow/internal/receipt/service"
	reimbursementrepository "github.com/smallbiznis/officeflow/internal/reimbursement/repository"
	reimbursementservice "github.com/smallbiznis/officeflow/internal/reimbursement/service"
	serialrepository "github.com/smallbiznis/officeflow/internal/serial/repository"
	serialservice "github.com/smallbiznis/officeflow/internal/serial/service"
	"github.com/smallbiznis/officeflow/internal/settlement"
	"github.com/smallbiznis/officeflow/internal/testutil"
	"github.com/smallbiznis/officeflow/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Data     json.RawMessage      `json:"data"`
	PageInfo *pagination.PageInfo `json:"page_info"`
	Error    *errorPayload        `json:"error"`
}

type testServer struct {
	engine *gin.Engine
	admin  snowflake.ID
	member snowflake.ID
}

func newTestServer(t *testing.T, limiter *ratelimit.WriteLimiter) testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2024, 5, 2, 3, 0, 0, 0, time.UTC))
	authz := testutil.NewAuthz(t)
	log := zap.NewNop()
	cfg := config.Config{BusinessTZOffsetHours: 8}

	audits := auditservice.NewService(auditservice.Params{
		DB: db, Log: log, GenID: node, Clock: clk, Authz: authz, Repo: auditrepository.Provide(),
	})
	serials := serialservice.New(serialservice.Params{Cfg: cfg, Log: log, Repo: serialrepository.Provide()})
	accountRepo := accountrepository.Provide()
	receiptRepo := receiptrepository.Provide()
	reimbursementRepo := reimbursementrepository.Provide()

	engine := settlement.New(settlement.Params{
		DB:             db,
		Log:            log,
		Clock:          clk,
		Authz:          authz,
		AuditSvc:       audits,
		Ledger:         accountservice.NewLedger(accountservice.LedgerParams{Log: log, GenID: node, Clock: clk, Repo: accountRepo}),
		Receipts:       receiptRepo,
		Reimbursements: reimbursementRepo,
	})

	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	NewServer(ServerParams{
		Gin: r,
		Cfg: cfg,
		Log: log,
		AccountSvc: accountservice.New(accountservice.Params{
			DB: db, Log: log, GenID: node, Clock: clk, Authz: authz, AuditSvc: audits, Repo: accountRepo,
		}),
		AuditSvc: audits,
		ReceiptSvc: receiptservice.New(receiptservice.Params{
			DB: db, Log: log, GenID: node, Clock: clk, Authz: authz, AuditSvc: audits,
			Serials: serials, Repo: receiptRepo, AccountRepo: accountRepo, Settler: engine,
		}),
		ReimbursementSvc: reimbursementservice.New(reimbursementservice.Params{
			DB: db, Log: log, GenID: node, Clock: clk, Authz: authz, AuditSvc: audits,
			Serials: serials, Repo: reimbursementRepo, Payer: engine,
		}),
		WriteLimiter: limiter,
	})

	return testServer{engine: r, admin: node.Generate(), member: node.Generate()}
}

func (ts testServer) do(t *testing.T, method, path string, userID snowflake.ID, role string, body any) (int, envelope, http.Header) {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != 0 {
		req.Header.Set(HeaderUserID, userID.String())
	}
	if role != "" {
		req.Header.Set(HeaderRole, role)
	}

	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec.Code, env, rec.Header()
}

func (ts testServer) asAdmin(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	code, env, _ := ts.do(t, method, path, ts.admin, "admin", body)
	return code, env
}

func (ts testServer) asMember(t *testing.T, method, path string, body any) (int, envelope) {
	t.Helper()
	code, env, _ := ts.do(t, method, path, ts.member, "member", body)
	return code, env
}

type accountView struct {
	ID             string          `json:"id"`
	Currency       string          `json:"currency"`
	CurrentBalance decimal.Decimal `json:"currentBalance"`
}

func (ts testServer) openAccount(t *testing.T, balance string) accountView {
	t.Helper()
	code, env := ts.asAdmin(t, http.MethodPost, "/accounts", map[string]any{
		"name":           "Operating",
		"currency":       "idr",
		"initialBalance": balance,
	})
	require.Equal(t, http.StatusCreated, code)
	var acct accountView
	require.NoError(t, json.Unmarshal(env.Data, &acct))
	return acct
}

func (ts testServer) accountBalance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	code, env := ts.asMember(t, http.MethodGet, "/accounts/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	var acct accountView
	require.NoError(t, json.Unmarshal(env.Data, &acct))
	return acct.CurrentBalance
}

func TestActorHeadersAreRequired(t *testing.T) {
	ts := newTestServer(t, nil)

	code, env, _ := ts.do(t, http.MethodGet, "/receipts", 0, "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "unauthorized", env.Error.Type)

	req := httptest.NewRequest(http.MethodGet, "/receipts", nil)
	req.Header.Set(HeaderUserID, "not-a-number")
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	code, _, _ = ts.do(t, http.MethodGet, "/receipts", ts.member, "", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	ts := newTestServer(t, nil)

	code, env := ts.asAdmin(t, http.MethodGet, "/invoices", nil)
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "not_found", env.Error.Type)
}

func TestReceiptLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	acct := ts.openAccount(t, "1000")
	assert.Equal(t, "IDR", acct.Currency)

	code, env := ts.asMember(t, http.MethodPost, "/receipts", map[string]any{
		"receiptDate":   "2024-05-02",
		"amount":        "500",
		"paymentMethod": "transfer",
		"payer":         "PT Sentosa",
		"accountId":     acct.ID,
	})
	require.Equal(t, http.StatusCreated, code)
	var receipt struct {
		ID            string `json:"id"`
		ReceiptNumber string `json:"receiptNumber"`
		Status        string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &receipt))
	assert.Equal(t, "C20240502001", receipt.ReceiptNumber)
	assert.Equal(t, "PENDING", receipt.Status)
	testutil.AssertDecimal(t, "1000", ts.accountBalance(t, acct.ID))

	code, env = ts.asMember(t, http.MethodPatch, "/receipts/"+receipt.ID+"/status", map[string]any{"status": "confirmed"})
	require.Equal(t, http.StatusOK, code)
	var confirmed struct {
		Receipt struct {
			Status string `json:"status"`
		} `json:"receipt"`
		Account *accountView `json:"account"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &confirmed))
	assert.Equal(t, "CONFIRMED", confirmed.Receipt.Status)
	require.NotNil(t, confirmed.Account)
	testutil.AssertDecimal(t, "1500", confirmed.Account.CurrentBalance)

	code, env = ts.asMember(t, http.MethodPatch, "/receipts/"+receipt.ID+"/status", map[string]any{"status": "CANCELLED"})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "conflict", env.Error.Type)
	assert.Equal(t, "receipt_not_pending", env.Error.Reason)

	code, env = ts.asMember(t, http.MethodDelete, "/receipts/"+receipt.ID, nil)
	assert.Equal(t, http.StatusForbidden, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "forbidden", env.Error.Type)

	code, env = ts.asAdmin(t, http.MethodDelete, "/receipts/"+receipt.ID, nil)
	require.Equal(t, http.StatusOK, code)
	var deleted struct {
		Deleted bool         `json:"deleted"`
		Account *accountView `json:"account"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &deleted))
	assert.True(t, deleted.Deleted)
	require.NotNil(t, deleted.Account)
	testutil.AssertDecimal(t, "1000", deleted.Account.CurrentBalance)

	code, _ = ts.asMember(t, http.MethodGet, "/receipts/"+receipt.ID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func reimbursementBody(title string) map[string]any {
	return map[string]any{
		"type":     "reimbursement",
		"title":    title,
		"payee":    "Sari",
		"currency": "IDR",
		"items": []map[string]any{
			{"date": "2024-05-01", "description": "Flight", "amount": "100", "tax": "10", "fee": "5"},
			{"date": "2024-05-01", "description": "Hotel", "amount": "200", "tax": "0", "fee": "0"},
		},
	}
}

func TestReimbursementWorkflowOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)
	acct := ts.openAccount(t, "1000")

	code, env := ts.asMember(t, http.MethodPost, "/reimbursements", reimbursementBody("Site visit"))
	require.Equal(t, http.StatusCreated, code)
	var doc struct {
		ID           string          `json:"id"`
		SerialNumber string          `json:"serialNumber"`
		Status       string          `json:"status"`
		TotalAmount  decimal.Decimal `json:"totalAmount"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	assert.Equal(t, "A20240502001", doc.SerialNumber)
	assert.Equal(t, "pending", doc.Status)
	testutil.AssertDecimal(t, "315", doc.TotalAmount)

	review := "/reimbursements/" + doc.ID + "/review"

	code, env = ts.asMember(t, http.MethodPost, review, map[string]any{"status": "approved"})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_status_transition", env.Error.Reason)

	code, _ = ts.asMember(t, http.MethodPost, review, map[string]any{"status": "submitted"})
	require.Equal(t, http.StatusOK, code)

	code, _ = ts.asMember(t, http.MethodPost, review, map[string]any{"status": "approved"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = ts.asAdmin(t, http.MethodPost, review, map[string]any{"status": "approved", "reviewComment": "ok"})
	require.Equal(t, http.StatusOK, code)

	code, env = ts.asAdmin(t, http.MethodPost, review, map[string]any{"status": "paid", "accountId": acct.ID})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_error", env.Error.Type)
	require.Len(t, env.Error.Errors, 1)
	assert.Equal(t, "missing_bank_info", env.Error.Errors[0].Code)

	code, env = ts.asAdmin(t, http.MethodPost, review, map[string]any{
		"status":    "paid",
		"accountId": acct.ID,
		"bankInfo":  "BCA 1234567890",
	})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	assert.Equal(t, "paid", doc.Status)
	testutil.AssertDecimal(t, "685", ts.accountBalance(t, acct.ID))

	code, env = ts.asAdmin(t, http.MethodPost, review, map[string]any{
		"status":    "paid",
		"accountId": acct.ID,
		"bankInfo":  "BCA 1234567890",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "conflict", env.Error.Type)
	testutil.AssertDecimal(t, "685", ts.accountBalance(t, acct.ID))

	code, env = ts.asAdmin(t, http.MethodGet, "/audit-logs?target_id="+doc.ID, nil)
	require.Equal(t, http.StatusOK, code)
	var logs []struct {
		Action string `json:"action"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &logs))
	assert.Len(t, logs, 4)
	require.NotNil(t, env.PageInfo)
	assert.False(t, env.PageInfo.HasMore)

	code, _ = ts.asMember(t, http.MethodGet, "/audit-logs", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestPayWithoutFundsIsConflict(t *testing.T) {
	ts := newTestServer(t, nil)
	acct := ts.openAccount(t, "100")

	code, env := ts.asMember(t, http.MethodPost, "/reimbursements", reimbursementBody("Conference"))
	require.Equal(t, http.StatusCreated, code)
	var doc struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &doc))
	review := "/reimbursements/" + doc.ID + "/review"

	code, _ = ts.asMember(t, http.MethodPost, review, map[string]any{"status": "submitted"})
	require.Equal(t, http.StatusOK, code)
	code, _ = ts.asAdmin(t, http.MethodPost, review, map[string]any{"status": "approved"})
	require.Equal(t, http.StatusOK, code)

	code, env = ts.asAdmin(t, http.MethodPost, review, map[string]any{
		"status":    "paid",
		"accountId": acct.ID,
		"bankInfo":  "BCA 1234567890",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "insufficient_balance", env.Error.Reason)
	testutil.AssertDecimal(t, "100", ts.accountBalance(t, acct.ID))
}

func TestRequestValidation(t *testing.T) {
	ts := newTestServer(t, nil)

	code, env := ts.asMember(t, http.MethodPost, "/reimbursements", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	require.Len(t, env.Error.Errors, 1)
	assert.Equal(t, "invalid_request", env.Error.Errors[0].Code)

	body := reimbursementBody("")
	code, env = ts.asMember(t, http.MethodPost, "/reimbursements", body)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "validation_error", env.Error.Type)
	require.Len(t, env.Error.Errors, 1)
	assert.Equal(t, "title", env.Error.Errors[0].Field)
	assert.Equal(t, "invalid_required", env.Error.Errors[0].Code)

	body = reimbursementBody("Trip")
	body["currency"] = "RUPIAH"
	code, env = ts.asMember(t, http.MethodPost, "/reimbursements", body)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	require.Len(t, env.Error.Errors, 1)
	assert.Equal(t, "invalid_currency", env.Error.Errors[0].Code)
	assert.Equal(t, "currency", env.Error.Errors[0].Field)

	body = reimbursementBody("Trip")
	body["items"] = []map[string]any{{"date": "01/05/2024", "amount": "10"}}
	code, env = ts.asMember(t, http.MethodPost, "/reimbursements", body)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	require.Len(t, env.Error.Errors, 1)
	assert.Equal(t, "items[0].date", env.Error.Errors[0].Field)

	code, env = ts.asMember(t, http.MethodGet, "/reimbursements?status=archived", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	require.Len(t, env.Error.Errors, 1)
	assert.Equal(t, "invalid_status", env.Error.Errors[0].Code)

	code, env = ts.asMember(t, http.MethodGet, "/receipts?from=2024-05-03&to=2024-05-01", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, env.Error)
	require.Len(t, env.Error.Errors, 1)
	assert.Equal(t, "invalid_filter", env.Error.Errors[0].Code)

	code, _ = ts.asMember(t, http.MethodGet, "/receipts?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = ts.asMember(t, http.MethodGet, "/receipts/abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestListReimbursementsFiltersAndPages(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, title := range []string{"Taxi", "Hotel", "Taxi again"} {
		code, _ := ts.asMember(t, http.MethodPost, "/reimbursements", reimbursementBody(title))
		require.Equal(t, http.StatusCreated, code)
	}

	code, env := ts.asMember(t, http.MethodGet, "/reimbursements?q=taxi&status=pending", nil)
	require.Equal(t, http.StatusOK, code)
	var docs []struct {
		Title string `json:"title"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &docs))
	assert.Len(t, docs, 2)

	code, env = ts.asMember(t, http.MethodGet, "/reimbursements?page_size=2", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &docs))
	assert.Len(t, docs, 2)
	require.NotNil(t, env.PageInfo)
	require.True(t, env.PageInfo.HasMore)

	code, env = ts.asMember(t, http.MethodGet, "/reimbursements?page_size=2&page_token="+env.PageInfo.NextPageToken, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &docs))
	assert.Len(t, docs, 1)
	assert.False(t, env.PageInfo.HasMore)

	code, env, _ = ts.do(t, http.MethodGet, "/reimbursements", snowflake.ID(424242), "member", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &docs))
	assert.Empty(t, docs)
}

func TestDocumentWriteGuardRejectsConcurrentWrite(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cfg := config.Config{WriteRateLimit: config.WriteRateLimitConfig{
		Enabled: true, PerSecond: 5, Burst: 20, DocumentLockTTL: 10 * time.Second,
	}}
	limiter, err := ratelimit.NewWriteLimiter(cfg, client)
	require.NoError(t, err)

	s := &Server{log: zap.NewNop(), writeLimiter: limiter}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandlingMiddleware())
	r.DELETE("/receipts/:id", s.DocumentWriteGuard("receipt"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"data": "deleted"})
	})

	mock.Regexp().ExpectSetNX("officeflow:write:document:receipt:42", `.+`, 10*time.Second).SetVal(false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/receipts/42", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	assert.Equal(t, "write_in_progress", env.Error.Reason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteRateLimitFailsClosedWhenRedisIsDown(t *testing.T) {
	client, _ := redismock.NewClientMock()
	cfg := config.Config{WriteRateLimit: config.WriteRateLimitConfig{Enabled: true, PerSecond: 5, Burst: 20}}
	limiter, err := ratelimit.NewWriteLimiter(cfg, client)
	require.NoError(t, err)

	ts := newTestServer(t, limiter)

	code, env := ts.asMember(t, http.MethodPost, "/reimbursements", reimbursementBody("Taxi"))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "service_unavailable", env.Error.Type)

	code, _ = ts.asMember(t, http.MethodGet, "/reimbursements", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestMapErrorDefaultsToInternal(t *testing.T) {
	status, payload := mapError(assert.AnError)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", payload.Type)

	errType, errCode := classifyErrorForLog(ErrWriteInProgress)
	assert.Equal(t, "conflict", errType)
	assert.Equal(t, "write_in_progress", errCode)
}
