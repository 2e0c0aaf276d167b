package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/preset/credits/internal/domain/ledger"
	"github.com/preset/credits/internal/model"
	"github.com/preset/credits/internal/port/inbound"
	"github.com/preset/credits/internal/shared/response"
)

// LedgerHandler handles credit account HTTP requests.
type LedgerHandler struct {
	domain inbound.LedgerDomain
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(domain inbound.LedgerDomain) *LedgerHandler {
	return &LedgerHandler{domain: domain}
}

// RegisterRoutes registers ledger routes.
func (h *LedgerHandler) RegisterRoutes(r *gin.RouterGroup) {
	accounts := r.Group("/accounts")
	{
		accounts.POST("", h.EnsureAccount)
		accounts.GET("/:user_id/balance", h.GetBalance)
		accounts.POST("/:user_id/credits", h.GrantCredits)
		accounts.POST("/:user_id/reset", h.ResetAllowance)
		accounts.GET("/:user_id/transactions", h.ListTransactions)
	}
}

var ledgerErrorMappings = []response.ErrorMapping{
	{Err: ledger.ErrAccountNotFound, Status: http.StatusNotFound},
	{Err: ledger.ErrInsufficientCredits, Status: http.StatusPaymentRequired, Code: "insufficient_credits"},
	{Err: ledger.ErrInvalidAmount, Status: http.StatusBadRequest},
	{Err: ledger.ErrInvalidTier, Status: http.StatusBadRequest},
}

type ensureAccountRequest struct {
	UserID uuid.UUID              `json:"user_id" binding:"required"`
	Tier   model.SubscriptionTier `json:"tier" binding:"required"`
}

// EnsureAccount creates the account for a user if it does not exist.
func (h *LedgerHandler) EnsureAccount(c *gin.Context) {
	var req ensureAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	acct, err := h.domain.EnsureAccount(c.Request.Context(), req.UserID, req.Tier)
	if err != nil {
		response.HandleError(c, err, ledgerErrorMappings)
		return
	}

	c.JSON(http.StatusOK, acct)
}

// GetBalance returns a user's credit account.
func (h *LedgerHandler) GetBalance(c *gin.Context) {
	userID := parseUUIDParam(c, "user_id")
	if userID == uuid.Nil {
		response.BadRequest(c, "invalid user_id")
		return
	}

	acct, err := h.domain.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.HandleError(c, err, ledgerErrorMappings)
		return
	}

	c.JSON(http.StatusOK, acct)
}

type grantCreditsRequest struct {
	Amount      int64  `json:"amount" binding:"required"`
	Description string `json:"description"`
}

// GrantCredits adds credits to a user's balance.
func (h *LedgerHandler) GrantCredits(c *gin.Context) {
	userID := parseUUIDParam(c, "user_id")
	if userID == uuid.Nil {
		response.BadRequest(c, "invalid user_id")
		return
	}

	var req grantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if req.Description == "" {
		req.Description = "manual grant"
	}

	if err := h.domain.Credit(c.Request.Context(), userID, req.Amount, req.Description, nil); err != nil {
		response.HandleError(c, err, ledgerErrorMappings)
		return
	}

	acct, err := h.domain.GetBalance(c.Request.Context(), userID)
	if err != nil {
		response.HandleError(c, err, ledgerErrorMappings)
		return
	}

	c.JSON(http.StatusOK, acct)
}

// ResetAllowance applies the monthly allowance reset for a user.
func (h *LedgerHandler) ResetAllowance(c *gin.Context) {
	userID := parseUUIDParam(c, "user_id")
	if userID == uuid.Nil {
		response.BadRequest(c, "invalid user_id")
		return
	}

	acct, err := h.domain.ResetMonthlyAllowance(c.Request.Context(), userID)
	if err != nil {
		response.HandleError(c, err, ledgerErrorMappings)
		return
	}

	c.JSON(http.StatusOK, acct)
}

// ListTransactions returns a user's ledger entries.
func (h *LedgerHandler) ListTransactions(c *gin.Context) {
	userID := parseUUIDParam(c, "user_id")
	if userID == uuid.Nil {
		response.BadRequest(c, "invalid user_id")
		return
	}

	limit, offset := parsePagination(c)
	txns, err := h.domain.ListTransactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.HandleError(c, err, ledgerErrorMappings)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}
