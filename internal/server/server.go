package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/officeflow/internal/account"
	accountdomain "github.com/smallbiznis/officeflow/internal/account/domain"
	"github.com/smallbiznis/officeflow/internal/audit"
	auditdomain "github.com/smallbiznis/officeflow/internal/audit/domain"
	"github.com/smallbiznis/officeflow/internal/authorization"
	"github.com/smallbiznis/officeflow/internal/config"
	"github.com/smallbiznis/officeflow/internal/observability"
	obsmiddleware "github.com/smallbiznis/officeflow/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/officeflow/internal/observability/metrics"
	obstracing "github.com/smallbiznis/officeflow/internal/observability/tracing"
	"github.com/smallbiznis/officeflow/internal/ratelimit"
	"github.com/smallbiznis/officeflow/internal/receipt"
	receiptdomain "github.com/smallbiznis/officeflow/internal/receipt/domain"
	"github.com/smallbiznis/officeflow/internal/reimbursement"
	reimbursementdomain "github.com/smallbiznis/officeflow/internal/reimbursement/domain"
	"github.com/smallbiznis/officeflow/internal/serial"
	"github.com/smallbiznis/officeflow/internal/settlement"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	authorization.Module,
	audit.Module,
	serial.Module,
	account.Module,
	receipt.Module,
	reimbursement.Module,
	settlement.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine           *gin.Engine
	cfg              config.Config
	log              *zap.Logger
	validate         *validator.Validate
	accountSvc       accountdomain.Service
	auditSvc         auditdomain.Service
	receiptSvc       receiptdomain.Service
	reimbursementSvc reimbursementdomain.Service
	writeLimiter     *ratelimit.WriteLimiter
}

type ServerParams struct {
	fx.In

	Gin              *gin.Engine
	Cfg              config.Config
	Log              *zap.Logger
	AccountSvc       accountdomain.Service
	AuditSvc         auditdomain.Service
	ReceiptSvc       receiptdomain.Service
	ReimbursementSvc reimbursementdomain.Service
	WriteLimiter     *ratelimit.WriteLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:           p.Gin,
		cfg:              p.Cfg,
		log:              p.Log.Named("http.server"),
		validate:         newValidator(),
		accountSvc:       p.AccountSvc,
		auditSvc:         p.AuditSvc,
		receiptSvc:       p.ReceiptSvc,
		reimbursementSvc: p.ReimbursementSvc,
		writeLimiter:     p.WriteLimiter,
	}

	svc.registerRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	api := s.engine.Group("/", s.ActorRequired())
	write := s.WriteRateLimit()

	// -------- Reimbursements --------
	api.GET("/reimbursements", s.ListReimbursements)
	api.POST("/reimbursements", write, s.CreateReimbursement)
	api.GET("/reimbursements/:id", s.GetReimbursementByID)
	api.PUT("/reimbursements/:id", write, s.DocumentWriteGuard("reimbursement"), s.UpdateReimbursement)
	api.DELETE("/reimbursements/:id", write, s.DocumentWriteGuard("reimbursement"), s.DeleteReimbursement)
	api.POST("/reimbursements/:id/review", write, s.DocumentWriteGuard("reimbursement"), s.ReviewReimbursement)

	// -------- Receipts --------
	api.GET("/receipts", s.ListReceipts)
	api.POST("/receipts", write, s.CreateReceipt)
	api.GET("/receipts/:id", s.GetReceiptByID)
	api.PATCH("/receipts/:id/status", write, s.DocumentWriteGuard("receipt"), s.UpdateReceiptStatus)
	api.DELETE("/receipts/:id", write, s.DocumentWriteGuard("receipt"), s.DeleteReceipt)

	// -------- Accounts --------
	api.GET("/accounts", s.ListAccounts)
	api.POST("/accounts", write, s.CreateAccount)
	api.GET("/accounts/:id", s.GetAccountByID)
	api.GET("/accounts/:id/entries", s.ListAccountEntries)
	api.DELETE("/accounts/:id", write, s.DocumentWriteGuard("account"), s.DeleteAccount)

	// -------- Audit --------
	api.GET("/audit-logs", s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
