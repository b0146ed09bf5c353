package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/bytebank-ledger/internal/api_gateway/service"
	"github.com/bytebank-ledger/internal/domain/account"
	"github.com/bytebank-ledger/internal/domain/identity"
)

// AccountHandler handles HTTP requests for the caller's bank accounts
type AccountHandler struct {
	accountService service.AccountService
	logger         *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(logger *slog.Logger, accountService service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		logger:         logger,
	}
}

// List returns every account of the caller, active first
func (h *AccountHandler) List(c *gin.Context) {
	accounts, err := h.accountService.ListAccounts(c.Request.Context())
	if err != nil {
		RespondError(c, h.logger, "list accounts", err)
		return
	}
	RespondOK(c, accounts)
}

// Status reports whether the caller holds an active account
func (h *AccountHandler) Status(c *gin.Context) {
	principal, err := identity.RequirePrincipal(c.Request.Context())
	if err != nil {
		RespondError(c, h.logger, "account status", err)
		return
	}

	active, err := h.accountService.HasActiveAccount(c.Request.Context(), principal.UserID)
	if err != nil {
		RespondError(c, h.logger, "account status", err)
		return
	}
	RespondOK(c, AccountStatusResponse{HasActiveAccount: active})
}

// Ensure returns the caller's active account, provisioning it when missing.
// Repeated calls return the same account.
func (h *AccountHandler) Ensure(c *gin.Context) {
	h.provision(c, "ensure account", h.accountService.Ensure)
}

// ProvisionManually runs the database-side provisioning routine, the fallback
// when automatic provisioning keeps failing
func (h *AccountHandler) ProvisionManually(c *gin.Context) {
	h.provision(c, "provision account manually", h.accountService.ProvisionManually)
}

type provisionFunc func(ctx context.Context, userID uuid.UUID, accountType account.Type, currency string) (*account.Account, error)

// provision accepts an empty body, in which case the configured defaults apply
func (h *AccountHandler) provision(c *gin.Context, op string, fn provisionFunc) {
	principal, err := identity.RequirePrincipal(c.Request.Context())
	if err != nil {
		RespondError(c, h.logger, op, err)
		return
	}

	var req ProvisionAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	acc, err := fn(c.Request.Context(), principal.UserID, account.Type(req.AccountType), req.Currency)
	if err != nil {
		RespondError(c, h.logger, op, err)
		return
	}
	RespondOK(c, acc)
}
