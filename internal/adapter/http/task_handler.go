package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/preset/credits/internal/domain/ledger"
	"github.com/preset/credits/internal/domain/task"
	"github.com/preset/credits/internal/model"
	"github.com/preset/credits/internal/port/inbound"
	"github.com/preset/credits/internal/shared/response"
)

// TaskHandler handles billable task HTTP requests.
type TaskHandler struct {
	domain inbound.TaskDomain
}

// NewTaskHandler creates a new task handler.
func NewTaskHandler(domain inbound.TaskDomain) *TaskHandler {
	return &TaskHandler{domain: domain}
}

// RegisterRoutes registers task routes.
func (h *TaskHandler) RegisterRoutes(r *gin.RouterGroup) {
	tasks := r.Group("/tasks")
	{
		tasks.POST("", h.CreateTask)
		tasks.GET("/:task_id", h.GetTask)
		tasks.POST("/:task_id/transition", h.Transition)
	}
	r.GET("/accounts/:user_id/tasks", h.ListTasks)
}

var taskErrorMappings = []response.ErrorMapping{
	{Err: task.ErrTaskNotFound, Status: http.StatusNotFound},
	{Err: task.ErrInvalidInput, Status: http.StatusBadRequest},
	{Err: task.ErrInvalidTransition, Status: http.StatusConflict},
	{Err: task.ErrMissingClassification, Status: http.StatusBadRequest},
	{Err: task.ErrPoolExhausted, Status: http.StatusServiceUnavailable, Code: "pool_exhausted"},
	{Err: ledger.ErrAccountNotFound, Status: http.StatusNotFound},
	{Err: ledger.ErrInsufficientCredits, Status: http.StatusPaymentRequired, Code: "insufficient_credits"},
}

// CreateTask debits the user and records the new task.
func (h *TaskHandler) CreateTask(c *gin.Context) {
	var input inbound.CreateTaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	created, err := h.domain.CreateTask(c.Request.Context(), &input)
	if err != nil {
		response.HandleError(c, err, taskErrorMappings)
		return
	}

	c.JSON(http.StatusCreated, created)
}

// GetTask returns a task by ID.
func (h *TaskHandler) GetTask(c *gin.Context) {
	taskID := parseUUIDParam(c, "task_id")
	if taskID == uuid.Nil {
		response.BadRequest(c, "invalid task_id")
		return
	}

	out, err := h.domain.GetTask(c.Request.Context(), taskID)
	if err != nil {
		response.HandleError(c, err, taskErrorMappings)
		return
	}

	c.JSON(http.StatusOK, out)
}

type transitionRequest struct {
	Status              model.TaskStatus          `json:"status" binding:"required"`
	ErrorClassification model.ErrorClassification `json:"error_classification"`
	ErrorMessage        string                    `json:"error_message"`
}

// Transition moves a task to a new lifecycle status. Failure statuses
// trigger the refund evaluation before the response is written.
func (h *TaskHandler) Transition(c *gin.Context) {
	taskID := parseUUIDParam(c, "task_id")
	if taskID == uuid.Nil {
		response.BadRequest(c, "invalid task_id")
		return
	}

	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	out, err := h.domain.Transition(c.Request.Context(), taskID, req.Status, req.ErrorClassification, req.ErrorMessage)
	if err != nil {
		response.HandleError(c, err, taskErrorMappings)
		return
	}

	c.JSON(http.StatusOK, out)
}

// ListTasks returns a user's tasks.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	userID := parseUUIDParam(c, "user_id")
	if userID == uuid.Nil {
		response.BadRequest(c, "invalid user_id")
		return
	}

	limit, offset := parsePagination(c)
	tasks, err := h.domain.ListTasks(c.Request.Context(), userID, limit, offset)
	if err != nil {
		response.HandleError(c, err, taskErrorMappings)
		return
	}

	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}
