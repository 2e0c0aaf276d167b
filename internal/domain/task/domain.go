package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/preset/credits/internal/domain/ledger"
	"github.com/preset/credits/internal/model"
	"github.com/preset/credits/internal/port/inbound"
	"github.com/preset/credits/internal/port/outbound"
	"github.com/preset/credits/internal/shared/config"
	"github.com/preset/credits/internal/shared/metrics"
	"go.uber.org/zap"
)

// Domain implements the billable task lifecycle. A task only exists once
// its debit committed, and the debit only commits together with the task
// row, so credits and tasks can never drift apart.
type Domain struct {
	uow      outbound.UnitOfWork
	stores   outbound.Stores
	alerts   outbound.AlertStore
	estimate outbound.PoolEstimateCache
	refunds  inbound.RefundDomain
	pool     inbound.ReconcilerDomain
	cfg      *config.ProviderConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewTaskDomain creates a new task domain service.
func NewTaskDomain(
	uow outbound.UnitOfWork,
	stores outbound.Stores,
	alerts outbound.AlertStore,
	estimate outbound.PoolEstimateCache,
	refunds inbound.RefundDomain,
	pool inbound.ReconcilerDomain,
	cfg *config.ProviderConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Domain {
	return &Domain{
		uow:      uow,
		stores:   stores,
		alerts:   alerts,
		estimate: estimate,
		refunds:  refunds,
		pool:     pool,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// Compile-time interface check
var _ inbound.TaskDomain = (*Domain)(nil)

// CreateTask debits the user and records the task in one transaction. The
// debited amount is fixed on the task row; later price changes never
// affect how much a refund returns.
func (d *Domain) CreateTask(ctx context.Context, in *inbound.CreateTaskInput) (*model.BillableTask, error) {
	if in == nil || strings.TrimSpace(in.TaskType) == "" {
		return nil, ErrInvalidInput
	}
	if in.CreditsToCharge <= 0 {
		return nil, fmt.Errorf("%w: credits_to_charge must be positive", ErrInvalidInput)
	}

	provider := in.Provider
	if provider == "" {
		provider = d.cfg.Name
	}

	providerCredits := float64(in.CreditsToCharge * d.cfg.ConversionRatio)

	// Availability is a hint from the local estimate; the reconciler
	// corrects drift on its next pass.
	ok, err := d.pool.HasAvailable(ctx, provider, providerCredits)
	if err != nil {
		d.logger.Warn("pool availability check failed, accepting task",
			zap.String("provider", provider),
			zap.Error(err),
		)
	} else if !ok {
		return nil, ErrPoolExhausted
	}

	now := time.Now()
	newTask := &model.BillableTask{
		ID:             uuid.New(),
		UserID:         in.UserID,
		Provider:       provider,
		ProviderTaskID: in.ProviderTaskID,
		TaskType:       in.TaskType,
		Status:         model.TaskStatusQueued,
		CreditsDebited: in.CreditsToCharge,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = d.uow.Do(ctx, func(s outbound.Stores) error {
		err := ledger.ApplyDebit(ctx, s, in.UserID, in.CreditsToCharge,
			fmt.Sprintf("task debit: %s", in.TaskType),
			&newTask.ID,
			map[string]any{"task_type": in.TaskType, "provider": provider},
		)
		if err != nil {
			return err
		}
		return s.Tasks().Create(ctx, newTask)
	})

	switch {
	case err == nil:
		d.metrics.DebitsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, ledger.ErrInsufficientCredits):
		d.metrics.DebitsTotal.WithLabelValues("insufficient").Inc()
		return nil, err
	case errors.Is(err, ledger.ErrAccountNotFound), errors.Is(err, ledger.ErrInvalidAmount):
		return nil, err
	default:
		d.metrics.DebitsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("create task: %w", err)
	}

	// Best-effort decrement of the local pool estimate.
	if _, err := d.estimate.DecrementAvailable(ctx, provider, providerCredits); err != nil {
		d.logger.Warn("pool estimate decrement failed",
			zap.String("provider", provider),
			zap.Error(err),
		)
	}

	d.logger.Info("task created",
		zap.String("task_id", newTask.ID.String()),
		zap.String("user_id", in.UserID.String()),
		zap.String("task_type", in.TaskType),
		zap.Int64("credits_debited", in.CreditsToCharge),
	)

	return newTask, nil
}

// Transition moves a task to a new lifecycle status. Failure transitions
// carry the error classification and trigger the refund evaluation
// synchronously; a refund failure never rolls back the transition.
func (d *Domain) Transition(ctx context.Context, taskID uuid.UUID, newStatus model.TaskStatus, classification model.ErrorClassification, message string) (*model.BillableTask, error) {
	if !newStatus.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, newStatus)
	}

	cur, err := d.stores.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, ErrTaskNotFound
	}

	if !cur.Status.CanTransitionTo(newStatus) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.Status, newStatus)
	}

	var classPtr *model.ErrorClassification
	if newStatus.IsFailure() {
		if classification == "" {
			return nil, ErrMissingClassification
		}
		classPtr = &classification
	}

	ok, err := d.stores.Tasks().UpdateStatusFrom(ctx, taskID, cur.Status, newStatus, classPtr, message)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !ok {
		// Lost a race against a concurrent transition.
		return nil, fmt.Errorf("%w: task already left %s", ErrInvalidTransition, cur.Status)
	}

	d.logger.Info("task transitioned",
		zap.String("task_id", taskID.String()),
		zap.String("from", cur.Status.String()),
		zap.String("to", newStatus.String()),
	)

	if newStatus.IsFailure() {
		d.triggerRefund(ctx, taskID, cur.UserID)
	}

	updated, err := d.stores.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrTaskNotFound
	}
	return updated, nil
}

// triggerRefund runs the refund evaluation for a failed task. Errors are
// surfaced as alerts so operators can replay the refund; they never fail
// the transition that produced them.
func (d *Domain) triggerRefund(ctx context.Context, taskID, userID uuid.UUID) {
	result, err := d.refunds.ProcessRefund(ctx, taskID)
	if err != nil {
		d.logger.Error("refund processing failed",
			zap.String("task_id", taskID.String()),
			zap.Error(err),
		)

		alert := &model.PlatformAlert{
			ID:       uuid.New(),
			Type:     model.AlertTypeRefundFailed,
			Severity: model.AlertSeverityCritical,
			Message:  fmt.Sprintf("refund failed for task %s: %v", taskID, err),
			Metadata: map[string]any{
				"task_id": taskID.String(),
				"user_id": userID.String(),
			},
			CreatedAt: time.Now(),
		}
		if alertErr := d.alerts.Create(ctx, alert); alertErr != nil {
			d.logger.Error("refund failure alert not recorded",
				zap.String("task_id", taskID.String()),
				zap.Error(alertErr),
			)
		}
		return
	}

	d.logger.Info("refund evaluated",
		zap.String("task_id", taskID.String()),
		zap.Bool("refunded", result.Success),
		zap.String("reason", result.Reason),
		zap.Int64("credits_refunded", result.CreditsRefunded),
	)
}

// GetTask returns a task by ID.
func (d *Domain) GetTask(ctx context.Context, taskID uuid.UUID) (*model.BillableTask, error) {
	t, err := d.stores.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTaskNotFound
	}
	return t, nil
}

// ListTasks returns the user's tasks, newest first.
func (d *Domain) ListTasks(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.BillableTask, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return d.stores.Tasks().ListByUser(ctx, userID, limit, offset)
}
