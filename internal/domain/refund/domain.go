package refund

import (
	"context"
	"errors"
	"fmt"
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

// Refund decision labels.
const (
	decisionRefunded        = "refunded"
	decisionNotRefundable   = "not_refundable"
	decisionAlreadyRefunded = "already_refunded"
)

// Domain implements refund evaluation and execution. A refund returns the
// exact credits the task debited, flags the task, and books the permanent
// provider-credit loss against the pool, all in one transaction. The
// unique audit record per task makes the whole operation idempotent.
type Domain struct {
	uow      outbound.UnitOfWork
	stores   outbound.Stores
	policies outbound.RefundPolicyStore
	cfg      *config.ProviderConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewRefundDomain creates a new refund domain service.
func NewRefundDomain(
	uow outbound.UnitOfWork,
	stores outbound.Stores,
	policies outbound.RefundPolicyStore,
	cfg *config.ProviderConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Domain {
	return &Domain{
		uow:      uow,
		stores:   stores,
		policies: policies,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
	}
}

// Compile-time interface check
var _ inbound.RefundDomain = (*Domain)(nil)

// ProcessRefund evaluates and, when the policy allows, executes the
// refund for a failed task. Calling it again for the same task returns
// the recorded outcome without moving credits twice.
func (d *Domain) ProcessRefund(ctx context.Context, taskID uuid.UUID) (*inbound.RefundResult, error) {
	t, err := d.stores.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTaskNotFound
	}

	if t.Refunded {
		d.metrics.RefundsTotal.WithLabelValues(decisionAlreadyRefunded).Inc()
		return d.resultFromAudit(ctx, t)
	}

	if !t.Status.IsFailure() {
		return nil, fmt.Errorf("%w: status %s", ErrTaskNotEligible, t.Status)
	}

	classification := t.Classification()
	refundable := d.isRefundable(ctx, classification)

	decision := &model.RefundDecision{
		ID:         uuid.New(),
		TaskID:     t.ID,
		UserID:     t.UserID,
		ErrorType:  string(classification),
		Refundable: refundable,
		CreatedAt:  time.Now(),
	}

	if !refundable {
		decision.Reason = fmt.Sprintf("classification %q is not refundable", classification)
		if err := d.stores.RefundDecisions().Create(ctx, decision); err != nil {
			d.logger.Warn("refund decision not recorded",
				zap.String("task_id", t.ID.String()),
				zap.Error(err),
			)
		}
		d.metrics.RefundsTotal.WithLabelValues(decisionNotRefundable).Inc()
		return &inbound.RefundResult{
			Success: false,
			Reason:  inbound.RefundReasonNotRefundable,
		}, nil
	}

	loss := float64(t.CreditsDebited * d.cfg.ConversionRatio)
	decision.Reason = fmt.Sprintf("classification %q is refundable", classification)

	err = d.uow.Do(ctx, func(s outbound.Stores) error {
		ok, err := s.Tasks().MarkRefunded(ctx, t.ID, time.Now())
		if err != nil {
			return fmt.Errorf("mark refunded: %w", err)
		}
		if !ok {
			return outbound.ErrDuplicateKey
		}

		err = ledger.ApplyCredit(ctx, s, t.UserID, t.CreditsDebited,
			fmt.Sprintf("refund: %s (%s)", t.TaskType, classification),
			&t.ID,
			map[string]any{"error_type": string(classification)},
		)
		if err != nil {
			return err
		}

		rec := &model.RefundAuditRecord{
			ID:                  uuid.New(),
			TaskID:              t.ID,
			UserID:              t.UserID,
			CreditsRefunded:     t.CreditsDebited,
			PlatformCreditsLost: loss,
			RefundReason:        string(classification),
			CreatedAt:           time.Now(),
		}
		if err := s.RefundAudits().Create(ctx, rec); err != nil {
			return fmt.Errorf("create audit record: %w", err)
		}

		if err := s.Pools().AdjustAvailable(ctx, t.Provider, -loss); err != nil {
			if errors.Is(err, outbound.ErrNotFound) {
				// No pool row for this provider yet; the loss still
				// shows up at the next reconciliation.
				d.logger.Warn("no credit pool row for provider",
					zap.String("provider", t.Provider),
				)
				return nil
			}
			return fmt.Errorf("adjust pool: %w", err)
		}
		return nil
	})
	if err != nil {
		// A concurrent refund already won; report its recorded outcome.
		if errors.Is(err, outbound.ErrDuplicateKey) {
			d.metrics.RefundsTotal.WithLabelValues(decisionAlreadyRefunded).Inc()
			return d.resultFromAudit(ctx, t)
		}
		return nil, err
	}

	if err := d.stores.RefundDecisions().Create(ctx, decision); err != nil {
		d.logger.Warn("refund decision not recorded",
			zap.String("task_id", t.ID.String()),
			zap.Error(err),
		)
	}

	d.metrics.RefundsTotal.WithLabelValues(decisionRefunded).Inc()
	d.metrics.RefundCreditsReturned.Add(float64(t.CreditsDebited))
	d.metrics.RefundCreditsLost.Add(loss)

	d.logger.Info("refund executed",
		zap.String("task_id", t.ID.String()),
		zap.String("user_id", t.UserID.String()),
		zap.String("error_type", string(classification)),
		zap.Int64("credits_refunded", t.CreditsDebited),
		zap.Float64("platform_credits_lost", loss),
	)

	return &inbound.RefundResult{
		Success:             true,
		Reason:              inbound.RefundReasonRefunded,
		CreditsRefunded:     t.CreditsDebited,
		PlatformCreditsLost: loss,
	}, nil
}

// TestRefund runs the production refund path for a task on behalf of an
// administrator, recording why it was invoked.
func (d *Domain) TestRefund(ctx context.Context, taskID, userID uuid.UUID, reason string) (*inbound.RefundResult, error) {
	t, err := d.stores.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrTaskNotFound
	}
	if t.UserID != userID {
		return nil, ErrNotOwner
	}

	d.logger.Info("manual refund requested",
		zap.String("task_id", taskID.String()),
		zap.String("user_id", userID.String()),
		zap.String("reason", reason),
	)

	return d.ProcessRefund(ctx, taskID)
}

// ListDecisions returns every refund evaluation recorded for a task, in
// the order they were made.
func (d *Domain) ListDecisions(ctx context.Context, taskID uuid.UUID) ([]*model.RefundDecision, error) {
	return d.stores.RefundDecisions().ListByTaskID(ctx, taskID)
}

// ListRefunds returns the user's refund audit records, newest first.
func (d *Domain) ListRefunds(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.RefundAuditRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return d.stores.RefundAudits().ListByUser(ctx, userID, limit, offset)
}

// resultFromAudit reconstructs the original refund outcome for a task
// that was already refunded.
func (d *Domain) resultFromAudit(ctx context.Context, t *model.BillableTask) (*inbound.RefundResult, error) {
	rec, err := d.stores.RefundAudits().GetByTaskID(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// Flag without audit row should not happen; fall back to the
		// immutable amounts on the task.
		return &inbound.RefundResult{
			Success:             true,
			Reason:              inbound.RefundReasonRefunded,
			CreditsRefunded:     t.CreditsDebited,
			PlatformCreditsLost: float64(t.CreditsDebited * d.cfg.ConversionRatio),
		}, nil
	}
	return &inbound.RefundResult{
		Success:             true,
		Reason:              inbound.RefundReasonRefunded,
		CreditsRefunded:     rec.CreditsRefunded,
		PlatformCreditsLost: rec.PlatformCreditsLost,
	}, nil
}
