package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/preset/credits/internal/model"
	"github.com/preset/credits/internal/port/outbound"
)

// ApplyDebit decrements the balance and appends the matching ledger entry
// within the caller's unit of work. The decrement is conditional on the
// balance covering the amount, so two concurrent debits can never spend
// the same credit twice.
func ApplyDebit(ctx context.Context, s outbound.Stores, userID uuid.UUID, amount int64, description string, relatedTaskID *uuid.UUID, metadata map[string]any) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	ok, err := s.Accounts().DebitBalance(ctx, userID, amount)
	if err != nil {
		return fmt.Errorf("debit balance: %w", err)
	}
	if !ok {
		acct, err := s.Accounts().GetByUserID(ctx, userID)
		if err != nil {
			return fmt.Errorf("load account: %w", err)
		}
		if acct == nil {
			return ErrAccountNotFound
		}
		return ErrInsufficientCredits
	}

	txn := &model.CreditTransaction{
		ID:            uuid.New(),
		UserID:        userID,
		Type:          model.TransactionTypeDebit,
		Amount:        amount,
		Description:   description,
		RelatedTaskID: relatedTaskID,
		Metadata:      metadata,
		CreatedAt:     time.Now(),
	}
	if err := s.Transactions().Append(ctx, txn); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}

	return nil
}

// ApplyCredit increments the balance and appends the matching ledger entry
// within the caller's unit of work.
func ApplyCredit(ctx context.Context, s outbound.Stores, userID uuid.UUID, amount int64, description string, relatedTaskID *uuid.UUID, metadata map[string]any) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	if err := s.Accounts().CreditBalance(ctx, userID, amount); err != nil {
		if errors.Is(err, outbound.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("credit balance: %w", err)
	}

	txn := &model.CreditTransaction{
		ID:            uuid.New(),
		UserID:        userID,
		Type:          model.TransactionTypeCredit,
		Amount:        amount,
		Description:   description,
		RelatedTaskID: relatedTaskID,
		Metadata:      metadata,
		CreatedAt:     time.Now(),
	}
	if err := s.Transactions().Append(ctx, txn); err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}

	return nil
}
