package refund

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/preset/credits/internal/model"
	"go.uber.org/zap"
)

// defaultPolicies is the built-in refund policy. Database rows override
// these; classifications absent from both are never refundable.
var defaultPolicies = map[string]bool{
	string(model.ErrorInternal):       true,
	string(model.ErrorContentPolicy):  true,
	string(model.ErrorGenerationFail): true,
	string(model.ErrorTimeout):        true,
	string(model.ErrorStorage):        true,
	string(model.ErrorInvalidInput):   false,
	string(model.ErrorNoCredits):      false,
	string(model.ErrorRateLimit):      false,
}

// loadPolicies merges the operator-editable policy table over the
// built-in defaults. A read failure falls back to the defaults so refund
// processing keeps working when the policy table is unreachable.
func (d *Domain) loadPolicies(ctx context.Context) map[string]bool {
	merged := make(map[string]bool, len(defaultPolicies))
	for k, v := range defaultPolicies {
		merged[k] = v
	}

	rows, err := d.policies.GetAll(ctx)
	if err != nil {
		d.logger.Warn("refund policy table unavailable, using defaults", zap.Error(err))
		return merged
	}
	for _, p := range rows {
		merged[p.ErrorType] = p.ShouldRefund
	}
	return merged
}

// isRefundable decides refund eligibility for a failure classification.
// Unknown classifications are not refundable.
func (d *Domain) isRefundable(ctx context.Context, classification model.ErrorClassification) bool {
	if classification == "" {
		return false
	}
	return d.loadPolicies(ctx)[string(classification)]
}

// UpsertPolicy creates or updates the refund rule for a classification.
// The change takes effect on the next refund evaluation; policies are
// read per evaluation, not cached.
func (d *Domain) UpsertPolicy(ctx context.Context, errorType string, shouldRefund bool, description string) (*model.RefundPolicy, error) {
	errorType = strings.TrimSpace(errorType)
	if errorType == "" {
		return nil, ErrInvalidPolicy
	}

	policy := &model.RefundPolicy{
		ErrorType:    errorType,
		ShouldRefund: shouldRefund,
		Description:  description,
		UpdatedAt:    time.Now(),
	}
	if err := d.policies.Upsert(ctx, policy); err != nil {
		return nil, fmt.Errorf("upsert policy: %w", err)
	}

	d.logger.Info("refund policy updated",
		zap.String("error_type", errorType),
		zap.Bool("should_refund", shouldRefund),
	)

	return policy, nil
}
