package ledger

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/preset/credits/internal/model"
	"github.com/preset/credits/internal/port/outbound"
	"github.com/preset/credits/internal/shared/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

// Shared across subtests; promauto registers globally once per binary.
var testMetrics = metrics.New("test_ledger")

// --- Mock implementations ---

type MockAccountStore struct {
	mock.Mock
}

func (m *MockAccountStore) Create(ctx context.Context, acct *model.UserCreditAccount) error {
	args := m.Called(ctx, acct)
	return args.Error(0)
}

func (m *MockAccountStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.UserCreditAccount, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.UserCreditAccount), args.Error(1)
}

func (m *MockAccountStore) DebitBalance(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) {
	args := m.Called(ctx, userID, amount)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccountStore) CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) error {
	args := m.Called(ctx, userID, amount)
	return args.Error(0)
}

func (m *MockAccountStore) ResetAllowance(ctx context.Context, userID uuid.UUID, periodStart, now time.Time) (bool, error) {
	args := m.Called(ctx, userID, periodStart, now)
	return args.Bool(0), args.Error(1)
}

type MockTransactionStore struct {
	mock.Mock
}

func (m *MockTransactionStore) Append(ctx context.Context, txn *model.CreditTransaction) error {
	args := m.Called(ctx, txn)
	return args.Error(0)
}

func (m *MockTransactionStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.CreditTransaction, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.CreditTransaction), args.Error(1)
}

// mockStores bundles mocks behind the transactional stores interface.
type mockStores struct {
	accounts outbound.CreditAccountStore
	txns     outbound.CreditTransactionStore
}

func (s *mockStores) Accounts() outbound.CreditAccountStore         { return s.accounts }
func (s *mockStores) Transactions() outbound.CreditTransactionStore { return s.txns }
func (s *mockStores) Tasks() outbound.BillableTaskStore             { return nil }
func (s *mockStores) RefundAudits() outbound.RefundAuditStore       { return nil }
func (s *mockStores) RefundDecisions() outbound.RefundDecisionStore { return nil }
func (s *mockStores) Pools() outbound.CreditPoolStore               { return nil }

// fakeUnitOfWork runs the closure against the same mocks without a real
// transaction.
type fakeUnitOfWork struct {
	stores outbound.Stores
}

func (u *fakeUnitOfWork) Do(ctx context.Context, fn func(s outbound.Stores) error) error {
	return fn(u.stores)
}

func newTestDomain(accounts *MockAccountStore, txns *MockTransactionStore) *Domain {
	stores := &mockStores{accounts: accounts, txns: txns}
	return NewLedgerDomain(&fakeUnitOfWork{stores: stores}, stores, testMetrics, zap.NewNop())
}

// --- Tests ---

func TestLedgerDomain_EnsureAccount(t *testing.T) {
	t.Run("creates account seeded with allowance", func(t *testing.T) {
		mockAccounts := new(MockAccountStore)
		domain := newTestDomain(mockAccounts, nil)

		userID := uuid.New()
		mockAccounts.On("GetByUserID", mock.Anything, userID).Return(nil, nil)
		mockAccounts.On("Create", mock.Anything, mock.AnythingOfType("*model.UserCreditAccount")).Return(nil)

		acct, err := domain.EnsureAccount(context.Background(), userID, model.TierPlus)

		assert.NoError(t, err)
		assert.Equal(t, int64(50), acct.CurrentBalance)
		assert.Equal(t, int64(50), acct.MonthlyAllowance)
		assert.Equal(t, model.TierPlus, acct.SubscriptionTier)
		mockAccounts.AssertExpectations(t)
	})

	t.Run("returns existing account", func(t *testing.T) {
		mockAccounts := new(MockAccountStore)
		domain := newTestDomain(mockAccounts, nil)

		userID := uuid.New()
		existing := &model.UserCreditAccount{ID: uuid.New(), UserID: userID, CurrentBalance: 3}
		mockAccounts.On("GetByUserID", mock.Anything, userID).Return(existing, nil)

		acct, err := domain.EnsureAccount(context.Background(), userID, model.TierFree)

		assert.NoError(t, err)
		assert.Equal(t, existing, acct)
		mockAccounts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("lost create race falls back to winner", func(t *testing.T) {
		mockAccounts := new(MockAccountStore)
		domain := newTestDomain(mockAccounts, nil)

		userID := uuid.New()
		winner := &model.UserCreditAccount{ID: uuid.New(), UserID: userID, CurrentBalance: 5}

		mockAccounts.On("GetByUserID", mock.Anything, userID).Return(nil, nil).Once()
		mockAccounts.On("Create", mock.Anything, mock.Anything).Return(outbound.ErrDuplicateKey)
		mockAccounts.On("GetByUserID", mock.Anything, userID).Return(winner, nil).Once()

		acct, err := domain.EnsureAccount(context.Background(), userID, model.TierFree)

		assert.NoError(t, err)
		assert.Equal(t, winner, acct)
	})

	t.Run("rejects invalid tier", func(t *testing.T) {
		domain := newTestDomain(new(MockAccountStore), nil)

		acct, err := domain.EnsureAccount(context.Background(), uuid.New(), model.SubscriptionTier("platinum"))

		assert.ErrorIs(t, err, ErrInvalidTier)
		assert.Nil(t, acct)
	})
}

func TestLedgerDomain_GetBalance(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		mockAccounts := new(MockAccountStore)
		domain := newTestDomain(mockAccounts, nil)

		userID := uuid.New()
		mockAccounts.On("GetByUserID", mock.Anything, userID).Return(nil, nil)

		acct, err := domain.GetBalance(context.Background(), userID)

		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.Nil(t, acct)
	})
}

func TestLedgerDomain_Debit(t *testing.T) {
	t.Run("debits and appends transaction", func(t *testing.T) {
		mockAccounts := new(MockAccountStore)
		mockTxns := new(MockTransactionStore)
		domain := newTestDomain(mockAccounts, mockTxns)

		userID := uuid.New()
		mockAccounts.On("DebitBalance", mock.Anything, userID, int64(10)).Return(true, nil)
		mockTxns.On("Append", mock.Anything, mock.MatchedBy(func(txn *model.CreditTransaction) bool {
			return txn.Type == model.TransactionTypeDebit && txn.Amount == 10 && txn.UserID == userID
		})).Return(nil)

		err := domain.Debit(context.Background(), userID, 10, "video generation", nil)

		assert.NoError(t, err)
		mockAccounts.AssertExpectations(t)
		mockTxns.AssertExpectations(t)
	})

	t.Run("insufficient balance", func(t *testing.T) {
		mockAccounts := new(MockAccountStore)
		mockTxns := new(MockTransactionStore)
		domain := newTestDomain(mockAccounts, mockTxns)

		userID := uuid.New()
		acct := &model.UserCreditAccount{UserID: userID, CurrentBalance: 2}
		mockAccounts.On("DebitBalance", mock.Anything, userID, int64(10)).Return(false, nil)
		mockAccounts.On("GetByUserID", mock.Anything, userID).Return(acct, nil)

		err := domain.Debit(context.Background(), userID, 10, "video generation", nil)

		assert.ErrorIs(t, err, ErrInsufficientCredits)
		mockTxns.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})

	t.Run("account missing", func(t *testing.T) {
		mockAccounts := new(MockAccountStore)
		domain := newTestDomain(mockAccounts, nil)

		userID := uuid.New()
		mockAccounts.On("DebitBalance", mock.Anything, userID, int64(10)).Return(false, nil)
		mockAccounts.On("GetByUserID", mock.Anything, userID).Return(nil, nil)

		err := domain.Debit(context.Background(), userID, 10, "video generation", nil)

		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		domain := newTestDomain(new(MockAccountStore), nil)

		err := domain.Debit(context.Background(), uuid.New(), 0, "noop", nil)

		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestLedgerDomain_Credit(t *testing.T) {
	t.Run("credits and appends transaction", func(t *testing.T) {
		mockAccounts := new(MockAccountStore)
		mockTxns := new(MockTransactionStore)
		domain := newTestDomain(mockAccounts, mockTxns)

		userID := uuid.New()
		mockAccounts.On("CreditBalance", mock.Anything, userID, int64(7)).Return(nil)
		mockTxns.On("Append", mock.Anything, mock.MatchedBy(func(txn *model.CreditTransaction) bool {
			return txn.Type == model.TransactionTypeCredit && txn.Amount == 7
		})).Return(nil)

		err := domain.Credit(context.Background(), userID, 7, "support grant", nil)

		assert.NoError(t, err)
		mockAccounts.AssertExpectations(t)
		mockTxns.AssertExpectations(t)
	})

	t.Run("account missing", func(t *testing.T) {
		mockAccounts := new(MockAccountStore)
		domain := newTestDomain(mockAccounts, nil)

		userID := uuid.New()
		mockAccounts.On("CreditBalance", mock.Anything, userID, int64(7)).Return(outbound.ErrNotFound)

		err := domain.Credit(context.Background(), userID, 7, "support grant", nil)

		assert.ErrorIs(t, err, ErrAccountNotFound)
	})
}

func TestLedgerDomain_ResetMonthlyAllowance(t *testing.T) {
	t.Run("resets once per period, logging the applied delta", func(t *testing.T) {
		mockAccounts := new(MockAccountStore)
		mockTxns := new(MockTransactionStore)
		domain := newTestDomain(mockAccounts, mockTxns)

		userID := uuid.New()
		acct := &model.UserCreditAccount{
			UserID:           userID,
			CurrentBalance:   5,
			MonthlyAllowance: 50,
			LastResetAt:      time.Now().AddDate(0, -1, 0),
		}
		after := &model.UserCreditAccount{
			UserID:           userID,
			CurrentBalance:   50,
			MonthlyAllowance: 50,
		}

		mockAccounts.On("GetByUserID", mock.Anything, userID).Return(acct, nil).Once()
		mockAccounts.On("ResetAllowance", mock.Anything, userID, mock.Anything, mock.Anything).Return(true, nil)
		// The entry must carry the balance delta (45), not the allowance
		// (50), so folding the log reproduces the balance.
		mockTxns.On("Append", mock.Anything, mock.MatchedBy(func(txn *model.CreditTransaction) bool {
			return txn.Type == model.TransactionTypeCredit &&
				txn.Amount == 45 &&
				txn.Metadata["balance_before"] == int64(5)
		})).Return(nil)
		mockAccounts.On("GetByUserID", mock.Anything, userID).Return(after, nil).Once()

		out, err := domain.ResetMonthlyAllowance(context.Background(), userID)

		assert.NoError(t, err)
		assert.Equal(t, int64(50), out.CurrentBalance)
		mockAccounts.AssertExpectations(t)
		mockTxns.AssertExpectations(t)
	})

	t.Run("balance above allowance logs the reset as a debit", func(t *testing.T) {
		mockAccounts := new(MockAccountStore)
		mockTxns := new(MockTransactionStore)
		domain := newTestDomain(mockAccounts, mockTxns)

		userID := uuid.New()
		acct := &model.UserCreditAccount{
			UserID:           userID,
			CurrentBalance:   80,
			MonthlyAllowance: 50,
			LastResetAt:      time.Now().AddDate(0, -1, 0),
		}
		after := &model.UserCreditAccount{
			UserID:           userID,
			CurrentBalance:   50,
			MonthlyAllowance: 50,
		}

		mockAccounts.On("GetByUserID", mock.Anything, userID).Return(acct, nil).Once()
		mockAccounts.On("ResetAllowance", mock.Anything, userID, mock.Anything, mock.Anything).Return(true, nil)
		mockTxns.On("Append", mock.Anything, mock.MatchedBy(func(txn *model.CreditTransaction) bool {
			return txn.Type == model.TransactionTypeDebit && txn.Amount == 30
		})).Return(nil)
		mockAccounts.On("GetByUserID", mock.Anything, userID).Return(after, nil).Once()

		out, err := domain.ResetMonthlyAllowance(context.Background(), userID)

		assert.NoError(t, err)
		assert.Equal(t, int64(50), out.CurrentBalance)
		mockTxns.AssertExpectations(t)
	})

	t.Run("second reset in same period is a no-op", func(t *testing.T) {
		mockAccounts := new(MockAccountStore)
		mockTxns := new(MockTransactionStore)
		domain := newTestDomain(mockAccounts, mockTxns)

		userID := uuid.New()
		acct := &model.UserCreditAccount{
			UserID:           userID,
			CurrentBalance:   50,
			MonthlyAllowance: 50,
			LastResetAt:      time.Now(),
		}

		mockAccounts.On("GetByUserID", mock.Anything, userID).Return(acct, nil)
		mockAccounts.On("ResetAllowance", mock.Anything, userID, mock.Anything, mock.Anything).Return(false, nil)

		out, err := domain.ResetMonthlyAllowance(context.Background(), userID)

		assert.NoError(t, err)
		assert.Equal(t, int64(50), out.CurrentBalance)
		mockTxns.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})

	t.Run("account missing", func(t *testing.T) {
		mockAccounts := new(MockAccountStore)
		domain := newTestDomain(mockAccounts, nil)

		userID := uuid.New()
		mockAccounts.On("GetByUserID", mock.Anything, userID).Return(nil, nil)

		out, err := domain.ResetMonthlyAllowance(context.Background(), userID)

		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.Nil(t, out)
	})
}

// memAccountStore holds one account row and applies the same conditional
// check-and-decrement the database adapter runs as a single statement.
type memAccountStore struct {
	mu   sync.Mutex
	acct model.UserCreditAccount
}

func (s *memAccountStore) Create(ctx context.Context, acct *model.UserCreditAccount) error {
	return nil
}

func (s *memAccountStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*model.UserCreditAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := s.acct
	return &cp, nil
}

func (s *memAccountStore) DebitBalance(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.acct.CurrentBalance < amount {
		return false, nil
	}
	s.acct.CurrentBalance -= amount
	s.acct.ConsumedThisMonth += amount
	s.acct.LifetimeConsumed += amount
	return true, nil
}

func (s *memAccountStore) CreditBalance(ctx context.Context, userID uuid.UUID, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acct.CurrentBalance += amount
	s.acct.ConsumedThisMonth -= amount
	if s.acct.ConsumedThisMonth < 0 {
		s.acct.ConsumedThisMonth = 0
	}
	return nil
}

func (s *memAccountStore) ResetAllowance(ctx context.Context, userID uuid.UUID, periodStart, now time.Time) (bool, error) {
	return false, nil
}

type memTxnStore struct {
	mu   sync.Mutex
	txns []*model.CreditTransaction
}

func (s *memTxnStore) Append(ctx context.Context, txn *model.CreditTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns = append(s.txns, txn)
	return nil
}

func (s *memTxnStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*model.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*model.CreditTransaction(nil), s.txns...), nil
}

func TestLedgerDomain_ConcurrentDebits(t *testing.T) {
	const (
		initialBalance = 100
		debiters       = 25
		debitAmount    = 7
		crediters      = 3
		creditAmount   = 4
	)

	userID := uuid.New()
	accounts := &memAccountStore{acct: model.UserCreditAccount{
		UserID:           userID,
		CurrentBalance:   initialBalance,
		MonthlyAllowance: initialBalance,
	}}
	txns := &memTxnStore{}
	stores := &mockStores{accounts: accounts, txns: txns}
	domain := NewLedgerDomain(&fakeUnitOfWork{stores: stores}, stores, testMetrics, zap.NewNop())

	var wg sync.WaitGroup
	var succeededDebits atomic.Int64
	unexpected := make(chan error, debiters+crediters)

	for i := 0; i < debiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := domain.Debit(context.Background(), userID, debitAmount, "concurrent debit", nil)
			switch {
			case err == nil:
				succeededDebits.Add(1)
			case errors.Is(err, ErrInsufficientCredits):
				// Losing the race is the expected outcome past the balance.
			default:
				unexpected <- err
			}
		}()
	}
	for i := 0; i < crediters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := domain.Credit(context.Background(), userID, creditAmount, "concurrent credit", nil); err != nil {
				unexpected <- err
			}
		}()
	}
	wg.Wait()
	close(unexpected)
	for err := range unexpected {
		t.Errorf("unexpected error: %v", err)
	}

	acct, err := domain.GetBalance(context.Background(), userID)
	assert.NoError(t, err)
	assert.GreaterOrEqual(t, acct.CurrentBalance, int64(0))

	expected := int64(initialBalance) - succeededDebits.Load()*debitAmount + crediters*creditAmount
	assert.Equal(t, expected, acct.CurrentBalance)

	// Folding the log reproduces the balance, and only successful debits
	// left an entry.
	folded := int64(initialBalance)
	var debitEntries int64
	for _, txn := range txns.txns {
		folded += txn.SignedAmount()
		if txn.Type == model.TransactionTypeDebit {
			debitEntries++
		}
	}
	assert.Equal(t, acct.CurrentBalance, folded)
	assert.Equal(t, succeededDebits.Load(), debitEntries)
}

func TestLedgerDomain_ListTransactions(t *testing.T) {
	t.Run("clamps limit", func(t *testing.T) {
		mockTxns := new(MockTransactionStore)
		domain := newTestDomain(new(MockAccountStore), mockTxns)

		userID := uuid.New()
		mockTxns.On("ListByUser", mock.Anything, userID, 50, 0).Return([]*model.CreditTransaction{}, nil)

		_, err := domain.ListTransactions(context.Background(), userID, 0, -5)

		assert.NoError(t, err)
		mockTxns.AssertExpectations(t)
	})
}
