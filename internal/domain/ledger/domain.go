package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/preset/credits/internal/model"
	"github.com/preset/credits/internal/port/inbound"
	"github.com/preset/credits/internal/port/outbound"
	"github.com/preset/credits/internal/shared/metrics"
	"go.uber.org/zap"
)

// Debit result labels.
const (
	debitResultOK           = "ok"
	debitResultInsufficient = "insufficient"
	debitResultError        = "error"
)

// Credit source labels.
const (
	creditSourceManual         = "manual"
	creditSourceAllowanceReset = "allowance_reset"
)

// Domain implements the credit ledger business logic. The account balance
// is the authoritative running total; every mutation also appends one
// entry to the transaction log inside the same unit of work.
type Domain struct {
	uow     outbound.UnitOfWork
	stores  outbound.Stores
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewLedgerDomain creates a new ledger domain service.
func NewLedgerDomain(uow outbound.UnitOfWork, stores outbound.Stores, m *metrics.Metrics, logger *zap.Logger) *Domain {
	return &Domain{
		uow:     uow,
		stores:  stores,
		metrics: m,
		logger:  logger,
	}
}

// Compile-time interface check
var _ inbound.LedgerDomain = (*Domain)(nil)

// EnsureAccount returns the user's credit account, creating one seeded
// with the tier's monthly allowance when none exists. Safe to call
// concurrently; a lost create race falls back to the winner's row.
func (d *Domain) EnsureAccount(ctx context.Context, userID uuid.UUID, tier model.SubscriptionTier) (*model.UserCreditAccount, error) {
	if !tier.IsValid() {
		return nil, ErrInvalidTier
	}

	existing, err := d.stores.Accounts().GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now()
	acct := &model.UserCreditAccount{
		ID:               uuid.New(),
		UserID:           userID,
		SubscriptionTier: tier,
		CurrentBalance:   tier.MonthlyAllowance(),
		MonthlyAllowance: tier.MonthlyAllowance(),
		LastResetAt:      now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := d.stores.Accounts().Create(ctx, acct); err != nil {
		if errors.Is(err, outbound.ErrDuplicateKey) {
			return d.stores.Accounts().GetByUserID(ctx, userID)
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	d.logger.Info("credit account created",
		zap.String("user_id", userID.String()),
		zap.String("tier", tier.String()),
		zap.Int64("allowance", acct.MonthlyAllowance),
	)

	return acct, nil
}

// GetBalance returns the user's credit account.
func (d *Domain) GetBalance(ctx context.Context, userID uuid.UUID) (*model.UserCreditAccount, error) {
	acct, err := d.stores.Accounts().GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}
	return acct, nil
}

// Debit atomically spends credits and logs the transaction.
func (d *Domain) Debit(ctx context.Context, userID uuid.UUID, amount int64, description string, relatedTaskID *uuid.UUID) error {
	err := d.uow.Do(ctx, func(s outbound.Stores) error {
		return ApplyDebit(ctx, s, userID, amount, description, relatedTaskID, nil)
	})

	switch {
	case err == nil:
		d.metrics.DebitsTotal.WithLabelValues(debitResultOK).Inc()
	case errors.Is(err, ErrInsufficientCredits):
		d.metrics.DebitsTotal.WithLabelValues(debitResultInsufficient).Inc()
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrAccountNotFound):
		// Caller mistakes, not debit failures.
	default:
		d.metrics.DebitsTotal.WithLabelValues(debitResultError).Inc()
		d.logger.Error("debit failed",
			zap.String("user_id", userID.String()),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
	}

	return err
}

// Credit atomically grants credits and logs the transaction.
func (d *Domain) Credit(ctx context.Context, userID uuid.UUID, amount int64, description string, relatedTaskID *uuid.UUID) error {
	err := d.uow.Do(ctx, func(s outbound.Stores) error {
		return ApplyCredit(ctx, s, userID, amount, description, relatedTaskID, nil)
	})
	if err != nil {
		return err
	}

	d.metrics.CreditsTotal.WithLabelValues(creditSourceManual).Inc()
	d.logger.Info("credits granted",
		zap.String("user_id", userID.String()),
		zap.Int64("amount", amount),
		zap.String("description", description),
	)

	return nil
}

// ResetMonthlyAllowance sets the balance back to the monthly allowance at
// the start of a new calendar month. Repeated calls within the same month
// are no-ops; the guard lives in the store's conditional update, so
// concurrent resets apply at most once.
func (d *Domain) ResetMonthlyAllowance(ctx context.Context, userID uuid.UUID) (*model.UserCreditAccount, error) {
	now := time.Now().UTC()
	periodStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var reset bool
	err := d.uow.Do(ctx, func(s outbound.Stores) error {
		acct, err := s.Accounts().GetByUserID(ctx, userID)
		if err != nil {
			return err
		}
		if acct == nil {
			return ErrAccountNotFound
		}

		ok, err := s.Accounts().ResetAllowance(ctx, userID, periodStart, now)
		if err != nil {
			return fmt.Errorf("reset allowance: %w", err)
		}
		if !ok {
			return nil
		}
		reset = true

		// The reconciling entry records the delta the reset applied, so
		// folding the log still reproduces the balance. A balance above
		// the allowance makes the reset a debit.
		delta := acct.MonthlyAllowance - acct.CurrentBalance
		txnType := model.TransactionTypeCredit
		if delta < 0 {
			txnType = model.TransactionTypeDebit
			delta = -delta
		}
		txn := &model.CreditTransaction{
			ID:          uuid.New(),
			UserID:      userID,
			Type:        txnType,
			Amount:      delta,
			Description: "monthly allowance reset",
			Metadata: map[string]any{
				"balance_before": acct.CurrentBalance,
				"period_start":   periodStart.Format(time.RFC3339),
			},
			CreatedAt: now,
		}
		return s.Transactions().Append(ctx, txn)
	})
	if err != nil {
		return nil, err
	}

	if reset {
		d.metrics.CreditsTotal.WithLabelValues(creditSourceAllowanceReset).Inc()
		d.logger.Info("monthly allowance reset",
			zap.String("user_id", userID.String()),
			zap.Time("period_start", periodStart),
		)
	}

	return d.GetBalance(ctx, userID)
}

// ListTransactions returns the user's ledger entries, newest first.
func (d *Domain) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.CreditTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return d.stores.Transactions().ListByUser(ctx, userID, limit, offset)
}
