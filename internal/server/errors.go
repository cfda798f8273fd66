package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/officeflow/internal/account/domain"
	auditdomain "github.com/smallbiznis/officeflow/internal/audit/domain"
	"github.com/smallbiznis/officeflow/internal/authorization"
	receiptdomain "github.com/smallbiznis/officeflow/internal/receipt/domain"
	reimbursementdomain "github.com/smallbiznis/officeflow/internal/reimbursement/domain"
	"github.com/smallbiznis/officeflow/pkg/db"
	"github.com/smallbiznis/officeflow/pkg/db/filter"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Reason  string            `json:"reason,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrTooManyRequests    = errors.New("too_many_requests")
	ErrWriteInProgress    = errors.New("write_in_progress")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, reimbursementdomain.ErrInvalidActor),
		errors.Is(err, receiptdomain.ErrInvalidActor),
		errors.Is(err, accountdomain.ErrInvalidActor),
		errors.Is(err, auditdomain.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, reimbursementdomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		// State conflicts share 400 with validation failures; the reason
		// tells them apart.
		return http.StatusBadRequest, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
			Reason:  conflictReason(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, receiptdomain.ErrSettlementUnavailable),
		errors.Is(err, reimbursementdomain.ErrPaymentUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog reports the response type and a machine code for the
// request log.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	switch {
	case payload.Reason != "":
		return payload.Type, payload.Reason
	case len(payload.Errors) > 0:
		return payload.Type, payload.Errors[0].Code
	default:
		return payload.Type, payload.Type
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, filter.ErrInvalidFilter):
		return true
	case isReimbursementValidationError(err),
		isReceiptValidationError(err),
		isAccountValidationError(err),
		isAuditValidationError(err):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrWriteInProgress),
		errors.Is(err, db.ErrDuplicateKey),
		errors.Is(err, reimbursementdomain.ErrInvalidTransition),
		errors.Is(err, reimbursementdomain.ErrNotPending),
		errors.Is(err, receiptdomain.ErrNotPending),
		errors.Is(err, accountdomain.ErrInsufficientBalance),
		errors.Is(err, accountdomain.ErrCurrencyMismatch),
		errors.Is(err, accountdomain.ErrAccountDeleted),
		errors.Is(err, accountdomain.ErrAccountInUse):
		return true
	default:
		return false
	}
}

func conflictReason(err error) string {
	for _, sentinel := range []error{
		ErrWriteInProgress,
		db.ErrDuplicateKey,
		reimbursementdomain.ErrInvalidTransition,
		reimbursementdomain.ErrNotPending,
		receiptdomain.ErrNotPending,
		accountdomain.ErrInsufficientBalance,
		accountdomain.ErrCurrencyMismatch,
		accountdomain.ErrAccountDeleted,
		accountdomain.ErrAccountInUse,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "conflict"
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, receiptdomain.ErrNotPending):
		return "receipt is not pending"
	case errors.Is(err, reimbursementdomain.ErrNotPending):
		return "reimbursement is not pending"
	case errors.Is(err, reimbursementdomain.ErrInvalidTransition):
		return "status transition not allowed"
	case errors.Is(err, accountdomain.ErrInsufficientBalance):
		return "insufficient account balance"
	case errors.Is(err, accountdomain.ErrCurrencyMismatch):
		return "account currency does not match"
	case errors.Is(err, accountdomain.ErrAccountInUse):
		return "account has open receipts"
	case errors.Is(err, ErrWriteInProgress):
		return "another write on this document is in progress"
	case errors.Is(err, db.ErrDuplicateKey):
		return "document number already issued, retry the request"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, reimbursementdomain.ErrNotFound),
		errors.Is(err, receiptdomain.ErrNotFound),
		errors.Is(err, accountdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func isReimbursementValidationError(err error) bool {
	switch {
	case errors.Is(err, reimbursementdomain.ErrInvalidID),
		errors.Is(err, reimbursementdomain.ErrInvalidType),
		errors.Is(err, reimbursementdomain.ErrInvalidTitle),
		errors.Is(err, reimbursementdomain.ErrInvalidPayee),
		errors.Is(err, reimbursementdomain.ErrInvalidCurrency),
		errors.Is(err, reimbursementdomain.ErrInvalidItems),
		errors.Is(err, reimbursementdomain.ErrInvalidItemAmount),
		errors.Is(err, reimbursementdomain.ErrInvalidItemDate),
		errors.Is(err, reimbursementdomain.ErrInvalidTotal),
		errors.Is(err, reimbursementdomain.ErrInvalidStatus),
		errors.Is(err, reimbursementdomain.ErrMissingBankInfo),
		errors.Is(err, reimbursementdomain.ErrMissingAccount),
		errors.Is(err, reimbursementdomain.ErrInvalidAccount),
		errors.Is(err, reimbursementdomain.ErrInvalidPageToken):
		return true
	default:
		return false
	}
}

func isReceiptValidationError(err error) bool {
	switch {
	case errors.Is(err, receiptdomain.ErrInvalidID),
		errors.Is(err, receiptdomain.ErrInvalidAmount),
		errors.Is(err, receiptdomain.ErrInvalidReceiptDate),
		errors.Is(err, receiptdomain.ErrInvalidPaymentMethod),
		errors.Is(err, receiptdomain.ErrInvalidPayer),
		errors.Is(err, receiptdomain.ErrInvalidAccount),
		errors.Is(err, receiptdomain.ErrInvalidStatus),
		errors.Is(err, receiptdomain.ErrInvalidPageToken):
		return true
	default:
		return false
	}
}

func isAccountValidationError(err error) bool {
	switch {
	case errors.Is(err, accountdomain.ErrInvalidID),
		errors.Is(err, accountdomain.ErrInvalidName),
		errors.Is(err, accountdomain.ErrInvalidCurrency),
		errors.Is(err, accountdomain.ErrInvalidBalance),
		errors.Is(err, accountdomain.ErrInvalidAmount):
		return true
	default:
		return false
	}
}

func isAuditValidationError(err error) bool {
	return errors.Is(err, auditdomain.ErrInvalidTargetID) ||
		errors.Is(err, auditdomain.ErrInvalidPageToken)
}

// validationErrorCode returns the sentinel text, which is always a
// snake_case reason.
func validationErrorCode(err error) string {
	for _, known := range []error{ErrInvalidRequest, filter.ErrInvalidFilter} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	code := err.Error()
	if i := strings.Index(code, ":"); i > 0 {
		code = code[:i]
	}
	return code
}

func validationErrorField(code string) string {
	switch {
	case code == "invalid_request":
		return "request"
	case strings.HasPrefix(code, "invalid_"):
		return strings.TrimPrefix(code, "invalid_")
	case strings.HasPrefix(code, "missing_"):
		return strings.TrimPrefix(code, "missing_")
	default:
		return ""
	}
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "invalid_filter":
		return "invalid list filter"
	default:
		return "invalid value"
	}
}
