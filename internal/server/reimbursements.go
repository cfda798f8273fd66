package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	reimbursementdomain "github.com/smallbiznis/officeflow/internal/reimbursement/domain"
	reimbursementservice "github.com/smallbiznis/officeflow/internal/reimbursement/service"
	"github.com/smallbiznis/officeflow/pkg/db/pagination"
)

type reimbursementItemRequest struct {
	AccountCode string          `json:"accountCode" validate:"max=64"`
	Date        string          `json:"date" validate:"required"`
	Description string          `json:"description" validate:"max=1024"`
	Amount      decimal.Decimal `json:"amount"`
	Tax         decimal.Decimal `json:"tax"`
	Fee         decimal.Decimal `json:"fee"`
}

type reimbursementDocumentRequest struct {
	Type          string                     `json:"type" validate:"required"`
	Title         string                     `json:"title" validate:"required,max=255"`
	Payee         string                     `json:"payee" validate:"required,max=255"`
	PaymentTarget string                     `json:"paymentTarget" validate:"max=255"`
	AccountNumber string                     `json:"accountNumber" validate:"max=64"`
	BankInfo      string                     `json:"bankInfo" validate:"max=255"`
	Currency      string                     `json:"currency" validate:"required"`
	Items         []reimbursementItemRequest `json:"items" validate:"required,min=1,dive"`
	Attachments   []string                   `json:"attachments" validate:"max=20,dive,max=1024"`
}

type reviewReimbursementRequest struct {
	Status        string `json:"status" validate:"required,max=16"`
	ReviewComment string `json:"reviewComment" validate:"max=2048"`
	BankInfo      string `json:"bankInfo" validate:"max=255"`
	AccountID     string `json:"accountId" validate:"max=32"`
}

func (s *Server) documentInput(req reimbursementDocumentRequest) (reimbursementdomain.DocumentInput, error) {
	items := make([]reimbursementdomain.ItemInput, 0, len(req.Items))
	for i, item := range req.Items {
		date, err := parseOptionalTime(item.Date, false, s.cfg.BusinessLocation())
		if err != nil || date == nil {
			return reimbursementdomain.DocumentInput{}, newValidationError(
				"items["+strconv.Itoa(i)+"].date", "invalid_item_date", "invalid item date",
			)
		}
		items = append(items, reimbursementdomain.ItemInput{
			AccountCode: item.AccountCode,
			Date:        *date,
			Description: item.Description,
			Amount:      item.Amount,
			Tax:         item.Tax,
			Fee:         item.Fee,
		})
	}

	return reimbursementdomain.DocumentInput{
		Type:          req.Type,
		Title:         req.Title,
		Payee:         req.Payee,
		PaymentTarget: req.PaymentTarget,
		AccountNumber: req.AccountNumber,
		BankInfo:      req.BankInfo,
		Currency:      req.Currency,
		Items:         items,
		Attachments:   req.Attachments,
	}, nil
}

func (s *Server) CreateReimbursement(c *gin.Context) {
	var req reimbursementDocumentRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	input, err := s.documentInput(req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.reimbursementSvc.Create(c.Request.Context(), reimbursementdomain.CreateRequest{
		DocumentInput: input,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) UpdateReimbursement(c *gin.Context) {
	var req reimbursementDocumentRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	input, err := s.documentInput(req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.reimbursementSvc.Update(c.Request.Context(), reimbursementdomain.UpdateRequest{
		ID:            strings.TrimSpace(c.Param("id")),
		DocumentInput: input,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteReimbursement(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if err := s.reimbursementSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"id": id, "deleted": true}})
}

func (s *Server) ReviewReimbursement(c *gin.Context) {
	var req reviewReimbursementRequest
	if err := s.bindJSON(c, &req); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.reimbursementSvc.Review(c.Request.Context(), reimbursementdomain.ReviewRequest{
		ID:            strings.TrimSpace(c.Param("id")),
		Status:        req.Status,
		ReviewComment: req.ReviewComment,
		BankInfo:      req.BankInfo,
		AccountID:     req.AccountID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetReimbursementByID(c *gin.Context) {
	resp, err := s.reimbursementSvc.GetByID(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListReimbursements(c *gin.Context) {
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
	filters, err := reimbursementservice.ListFilters(from, to, parseStatusList(query.Status), query.Query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.reimbursementSvc.List(c.Request.Context(), reimbursementdomain.ListRequest{
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

	c.JSON(http.StatusOK, gin.H{"data": resp.Reimbursements, "page_info": resp.PageInfo})
}
