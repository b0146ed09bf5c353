package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bytebank-ledger/internal/api_gateway/middleware"
	"github.com/bytebank-ledger/internal/domain/account"
	"github.com/bytebank-ledger/internal/domain/identity"
	"github.com/bytebank-ledger/internal/domain/ledger"
	"github.com/bytebank-ledger/internal/domain/receipt"
	"github.com/bytebank-ledger/internal/domain/shared"
	"github.com/bytebank-ledger/internal/domain/transaction"
)

// Error codes carried in ErrorInfo.Code
const (
	CodeBadRequest           = "BAD_REQUEST"
	CodeValidation           = "VALIDATION_ERROR"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodeProvisioningFailed   = "PROVISIONING_FAILED"
	CodeReceiptUploadFailed  = "RECEIPT_UPLOAD_FAILED"
	CodeInternalServerError  = "INTERNAL_SERVER_ERROR"
	internalServerErrMessage = "An internal server error occurred"
)

// Response represents a standard API response
type Response struct {
	Data          interface{}             `json:"data,omitempty"`
	Error         *ErrorInfo              `json:"error,omitempty"`
	CorrelationID string                  `json:"correlation_id,omitempty"`
	Meta          *transaction.Pagination `json:"meta,omitempty"`
}

// ErrorInfo represents error information in a response
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// NewResponse creates a new response with data
func NewResponse(data interface{}) *Response {
	return &Response{
		Data: data,
	}
}

// NewErrorResponse creates a new error response
func NewErrorResponse(code, message string) *Response {
	return &Response{
		Error: &ErrorInfo{
			Code:    code,
			Message: message,
		},
	}
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	response := NewResponse(data)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithError sends a JSON response with an error
func RespondWithError(c *gin.Context, statusCode int, code, message string) {
	response := NewErrorResponse(code, message)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithPage sends one page of rows with its pagination metadata
func RespondWithPage[T any](c *gin.Context, page *transaction.PaginatedResult[T]) {
	response := NewResponse(page.Data)
	response.Meta = &page.Pagination
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(http.StatusOK, response)
}

// RespondOK sends a 200 OK response with data
func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

// RespondCreated sends a 201 Created response with data
func RespondCreated(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusCreated, data)
}

// RespondNoContent sends a 204 No Content response
func RespondNoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// RespondBadRequest sends a 400 Bad Request response with an error
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithError(c, http.StatusBadRequest, CodeBadRequest, message)
}

// RespondInternalError sends a 500 Internal Server Error response with an error
func RespondInternalError(c *gin.Context) {
	RespondWithError(c, http.StatusInternalServerError, CodeInternalServerError, internalServerErrMessage)
}

// RespondError maps a service error to its HTTP status and error code. Only
// unexpected failures are logged at ERROR.
func RespondError(c *gin.Context, logger *slog.Logger, op string, err error) {
	status, info := classify(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", "op", op, "error", err, "correlation_id", middleware.GetCorrelationID(c))
	} else {
		logger.Debug("Request rejected", "op", op, "error", err, "status", status)
	}

	response := &Response{Error: info, CorrelationID: middleware.GetCorrelationID(c)}
	c.JSON(status, response)
}

func classify(err error) (int, *ErrorInfo) {
	var validationErr shared.ValidationError
	var provisioningErr *account.ProvisioningFailedError
	var uploadErr *receipt.UploadFailedError

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, &ErrorInfo{Code: CodeValidation, Message: validationErr.Message, Field: validationErr.Field}
	case errors.Is(err, identity.ErrInvalidCredentials):
		return http.StatusUnauthorized, &ErrorInfo{Code: CodeUnauthorized, Message: "Invalid login credentials"}
	case errors.Is(err, shared.ErrAuthenticationRequired), errors.Is(err, identity.ErrInvalidToken):
		return http.StatusUnauthorized, &ErrorInfo{Code: CodeUnauthorized, Message: "Authentication required"}
	case errors.Is(err, identity.ErrEmailNotConfirmed):
		return http.StatusForbidden, &ErrorInfo{Code: CodeForbidden, Message: "Email not confirmed"}
	case errors.Is(err, identity.ErrUserAlreadyRegistered):
		return http.StatusConflict, &ErrorInfo{Code: CodeConflict, Message: "User already registered"}
	case errors.Is(err, account.ErrActiveAccountExists{}):
		return http.StatusConflict, &ErrorInfo{Code: CodeConflict, Message: "User already holds an active account"}
	case errors.Is(err, transaction.ErrTransactionNotFound{}):
		return http.StatusNotFound, &ErrorInfo{Code: CodeNotFound, Message: "Transaction not found"}
	case errors.Is(err, account.ErrAccountNotFound{}):
		return http.StatusNotFound, &ErrorInfo{Code: CodeNotFound, Message: "Account not found"}
	case errors.Is(err, ledger.ErrEventNotFound{}):
		return http.StatusNotFound, &ErrorInfo{Code: CodeNotFound, Message: "Event not found"}
	case errors.As(err, &provisioningErr):
		return http.StatusServiceUnavailable, &ErrorInfo{Code: CodeProvisioningFailed, Message: "Account could not be provisioned, try again later"}
	case errors.As(err, &uploadErr):
		return http.StatusBadGateway, &ErrorInfo{Code: CodeReceiptUploadFailed, Message: "Receipt could not be stored"}
	default:
		return http.StatusInternalServerError, &ErrorInfo{Code: CodeInternalServerError, Message: internalServerErrMessage}
	}
}
