package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	receiptdomain "github.com/smallbiznis/officeflow/internal/receipt/domain"
	receiptservice "github.com/smallbiznis/officeflow/internal/receipt/service"
	"github.com/smallbiznis/officeflow/pkg/db/pagination"
)

type createReceiptRequest struct {
	ReceiptDate   string          `json:"receiptDate" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"paymentMethod" validate:"required,max=64"`
	Payer         string          `json:"payer" validate:"required,max=255"`
	AccountID     string          `json:"accountId" validate:"required,max=32"`
	Description   string          `json:"description" validate:"max=2048"`
	Attachments   []string        `json:"attachments" validate:"max=20,dive,max=1024"`
}

type updateReceiptStatusRequest struct {
	Status string `json:"status" validate:"required,max=16"`
}

func (s *Server) CreateReceipt(c *gin.Context) {
	var req createReceiptRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	receiptDate, err := parseOptionalTime(req.ReceiptDate, false, s.cfg.BusinessLocation())
	if err != nil || receiptDate == nil {
		AbortWithError(c, newValidationError("receiptDate", "invalid_receipt_date", "invalid receipt date"))
		return
	}

	resp, err := s.receiptSvc.Create(c.Request.Context(), receiptdomain.CreateReceiptRequest{
		ReceiptDate:   *receiptDate,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		Payer:         req.Payer,
		AccountID:     req.AccountID,
		Description:   req.Description,
		Attachments:   req.Attachments,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) UpdateReceiptStatus(c *gin.Context) {
	var req updateReceiptStatusRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.receiptSvc.UpdateStatus(c.Request.Context(), receiptdomain.UpdateStatusRequest{
		ID:     strings.TrimSpace(c.Param("id")),
		Status: req.Status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteReceipt(c *gin.Context) {
	resp, err := s.receiptSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetReceiptByID(c *gin.Context) {
	resp, err := s.receiptSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListReceipts(c *gin.Context) {
	var query listQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	from, to, err := query.dateRange(s.cfg.BusinessLocation())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	filters, err := receiptservice.ListFilters(from, to, parseStatusList(query.Status), query.Query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.receiptSvc.List(c.Request.Context(), receiptdomain.ListReceiptRequest{
		Pagination: pagination.Pagination{
			PageToken: strings.TrimSpace(query.PageToken),
			PageSize:  query.PageSize,
		},
		Filters: filters,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Receipts, "page_info": resp.PageInfo})
}
