package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bytebank-ledger/internal/api_gateway/middleware"
	"github.com/bytebank-ledger/internal/api_gateway/service"
	"github.com/bytebank-ledger/internal/domain/receipt"
	"github.com/bytebank-ledger/internal/domain/transaction"
)

// TransactionHandler handles HTTP requests for transaction operations. Writes
// accept either a JSON body or a multipart form with a JSON "payload" field and
// an optional "receipt" file.
type TransactionHandler struct {
	transactionService service.TransactionService
	maxReceiptBytes    int64
	logger             *slog.Logger
}

// NewTransactionHandler creates a new transaction handler. maxReceiptBytes <= 0
// means receipt.MaxSize.
func NewTransactionHandler(logger *slog.Logger, transactionService service.TransactionService, maxReceiptBytes int64) *TransactionHandler {
	if maxReceiptBytes <= 0 {
		maxReceiptBytes = receipt.MaxSize
	}
	return &TransactionHandler{
		transactionService: transactionService,
		maxReceiptBytes:    maxReceiptBytes,
		logger:             logger,
	}
}

// ListRecent returns the caller's newest transactions
func (h *TransactionHandler) ListRecent(c *gin.Context) {
	transactions, err := h.transactionService.ListRecent(c.Request.Context())
	if err != nil {
		RespondError(c, h.logger, "list recent transactions", err)
		return
	}
	RespondOK(c, transactions)
}

// List returns one filtered page of the caller's transactions
func (h *TransactionHandler) List(c *gin.Context) {
	var filters transaction.FilterOptions
	if err := c.ShouldBindQuery(&filters); err != nil {
		RespondBadRequest(c, "Invalid filter parameters")
		return
	}
	var pagination transaction.PaginationOptions
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	page, err := h.transactionService.GetFilteredPage(c.Request.Context(), filters, pagination)
	if err != nil {
		RespondError(c, h.logger, "list transactions", err)
		return
	}
	RespondWithPage(c, page)
}

// GetByID returns one transaction, 404 when it is missing or not the caller's
func (h *TransactionHandler) GetByID(c *gin.Context) {
	id, ok := h.transactionID(c)
	if !ok {
		return
	}

	t, err := h.transactionService.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondError(c, h.logger, "get transaction", err)
		return
	}
	RespondOK(c, t)
}

// Create records a transaction. When only the receipt upload fails the saved
// transaction is still returned with a RECEIPT_UPLOAD_FAILED error attached.
func (h *TransactionHandler) Create(c *gin.Context) {
	var input transaction.NewTransaction
	attachment, err := h.bindWrite(c, &input)
	if err != nil {
		RespondBadRequest(c, "Invalid request: "+err.Error())
		return
	}
	input.Receipt = attachment

	t, err := h.transactionService.Create(c.Request.Context(), input)
	if err != nil {
		var uploadErr *receipt.UploadFailedError
		if t != nil && errors.As(err, &uploadErr) {
			h.logger.Warn("Transaction saved without receipt", "transaction_id", t.ID.String(), "error", err)
			c.JSON(http.StatusCreated, &Response{
				Data:          t,
				Error:         &ErrorInfo{Code: CodeReceiptUploadFailed, Message: "Transaction saved but the receipt could not be stored"},
				CorrelationID: middleware.GetCorrelationID(c),
			})
			return
		}
		RespondError(c, h.logger, "create transaction", err)
		return
	}
	RespondCreated(c, t)
}

// Update applies a partial update
func (h *TransactionHandler) Update(c *gin.Context) {
	id, ok := h.transactionID(c)
	if !ok {
		return
	}

	var patch transaction.Patch
	attachment, err := h.bindWrite(c, &patch)
	if err != nil {
		RespondBadRequest(c, "Invalid request: "+err.Error())
		return
	}
	patch.Receipt = attachment
	if patch.IsEmpty() {
		RespondBadRequest(c, "Nothing to update")
		return
	}

	t, err := h.transactionService.Update(c.Request.Context(), id, patch)
	if err != nil {
		RespondError(c, h.logger, "update transaction", err)
		return
	}
	RespondOK(c, t)
}

// Delete removes a transaction and its receipt
func (h *TransactionHandler) Delete(c *gin.Context) {
	id, ok := h.transactionID(c)
	if !ok {
		return
	}

	if err := h.transactionService.Delete(c.Request.Context(), id); err != nil {
		RespondError(c, h.logger, "delete transaction", err)
		return
	}
	RespondNoContent(c)
}

func (h *TransactionHandler) transactionID(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		RespondBadRequest(c, "Invalid transaction ID")
		return uuid.Nil, false
	}
	return id, true
}

// bindWrite decodes a write body into dest and returns the attached receipt, if any
func (h *TransactionHandler) bindWrite(c *gin.Context, dest any) (*receipt.Attachment, error) {
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		if err := c.ShouldBindJSON(dest); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %v", err)
		}
		return nil, nil
	}

	payload := c.PostForm(formFieldPayload)
	if payload == "" {
		return nil, fmt.Errorf("missing %q form field", formFieldPayload)
	}
	if err := json.Unmarshal([]byte(payload), dest); err != nil {
		return nil, fmt.Errorf("invalid %s field: %v", formFieldPayload, err)
	}

	fileHeader, err := c.FormFile(formFieldReceipt)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, fmt.Errorf("invalid %s file: %v", formFieldReceipt, err)
	}
	return h.readAttachment(fileHeader)
}

// readAttachment reads at most one byte past the limit so oversized files
// still fail validation
func (h *TransactionHandler) readAttachment(fileHeader *multipart.FileHeader) (*receipt.Attachment, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, fmt.Errorf("unreadable %s file: %v", formFieldReceipt, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxReceiptBytes+1))
	if err != nil {
		return nil, fmt.Errorf("unreadable %s file: %v", formFieldReceipt, err)
	}

	return &receipt.Attachment{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
