package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/preset/credits/internal/domain/refund"
	"github.com/preset/credits/internal/port/inbound"
	"github.com/preset/credits/internal/shared/response"
)

// RefundHandler handles refund HTTP requests.
type RefundHandler struct {
	domain inbound.RefundDomain
}

// NewRefundHandler creates a new refund handler.
func NewRefundHandler(domain inbound.RefundDomain) *RefundHandler {
	return &RefundHandler{domain: domain}
}

// RegisterRoutes registers refund routes.
func (h *RefundHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/tasks/:task_id/refund", h.ProcessRefund)
	r.GET("/accounts/:user_id/refunds", h.ListRefunds)
}

// RegisterAdminRoutes registers refund admin routes.
func (h *RefundHandler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/refunds/test", h.TestRefund)
	r.PUT("/policies", h.UpsertPolicy)
	r.GET("/tasks/:task_id/decisions", h.ListDecisions)
}

var refundErrorMappings = []response.ErrorMapping{
	{Err: refund.ErrTaskNotFound, Status: http.StatusNotFound},
	{Err: refund.ErrTaskNotEligible, Status: http.StatusConflict},
	{Err: refund.ErrNotOwner, Status: http.StatusForbidden},
	{Err: refund.ErrInvalidPolicy, Status: http.StatusBadRequest},
}

// ProcessRefund evaluates the refund for a failed task.
func (h *RefundHandler) ProcessRefund(c *gin.Context) {
	taskID := parseUUIDParam(c, "task_id")
	if taskID == uuid.Nil {
		response.BadRequest(c, "invalid task_id")
		return
	}

	result, err := h.domain.ProcessRefund(c.Request.Context(), taskID)
	if err != nil {
		response.HandleError(c, err, refundErrorMappings)
		return
	}

	c.JSON(http.StatusOK, result)
}

type testRefundRequest struct {
	TaskID uuid.UUID `json:"task_id" binding:"required"`
	UserID uuid.UUID `json:"user_id" binding:"required"`
	Reason string    `json:"reason" binding:"required"`
}

// TestRefund runs the production refund path on behalf of an operator.
func (h *RefundHandler) TestRefund(c *gin.Context) {
	var req testRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.domain.TestRefund(c.Request.Context(), req.TaskID, req.UserID, req.Reason)
	if err != nil {
		response.HandleError(c, err, refundErrorMappings)
		return
	}

	c.JSON(http.StatusOK, result)
}

type upsertPolicyRequest struct {
	ErrorType    string `json:"error_type" binding:"required"`
	ShouldRefund *bool  `json:"should_refund" binding:"required"`
	Description  string `json:"description"`
}

// UpsertPolicy creates or updates the refund rule for a classification.
func (h *RefundHandler) UpsertPolicy(c *gin.Context) {
	var req upsertPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	policy, err := h.domain.UpsertPolicy(c.Request.Context(), req.ErrorType, *req.ShouldRefund, req.Description)
	if err != nil {
		response.HandleError(c, err, refundErrorMappings)
		return
	}

	c.JSON(http.StatusOK, policy)
}

// ListDecisions returns every refund evaluation recorded for a task.
func (h *RefundHandler) ListDecisions(c *gin.Context) {
	taskID := parseUUIDParam(c, "task_id")
	if taskID == uuid.Nil {
		response.BadRequest(c, "invalid task_id")
		return
	}

	decisions, err := h.domain.ListDecisions(c.Request.Context(), taskID)
	if err != nil {
		response.HandleError(c, err, refundErrorMappings)
		return
	}

	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}

// ListRefunds returns a user's refund audit records.
func (h *RefundHandler) ListRefunds(c *gin.Context) {
	userID := parseUUIDParam(c, "user_id")
	if userID == uuid.Nil {
		response.BadRequest(c, "invalid user_id")
		return
	}

	limit, offset := parsePagination(c)
	refunds, err := h.domain.ListRefunds(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.HandleError(c, err, refundErrorMappings)
		return
	}

	c.JSON(http.StatusOK, gin.H{"refunds": refunds})
}
