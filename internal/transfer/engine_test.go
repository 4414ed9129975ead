package transfer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banker_api/internal/account"
	"banker_api/internal/domain"
	"banker_api/internal/ledger"
	"banker_api/internal/retry"
	"banker_api/internal/store"
	"banker_api/internal/store/memory"
	"banker_api/internal/store/storetest"
)

const banker = "UBANKER"

type harness struct {
	mem      *memory.Store
	faulty   *storetest.Faulty
	accounts *account.Store
	ledger   *ledger.Recorder
	engine   *Engine
}

func newHarness(t *testing.T, policy retry.Policy) *harness {
	t.Helper()
	mem := memory.New()
	faulty := storetest.Wrap(mem)
	accounts := account.NewStore(faulty)
	rec := ledger.NewRecorder(faulty)
	return &harness{
		mem:      mem,
		faulty:   faulty,
		accounts: accounts,
		ledger:   rec,
		engine:   NewEngine(accounts, rec, policy, banker),
	}
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxRetries: 5, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func (h *harness) fund(t *testing.T, user string, amount int64) {
	t.Helper()
	ctx := context.Background()
	bal, ver, err := h.accounts.GetBalance(ctx, user)
	require.NoError(t, err)
	_, err = h.accounts.CompareAndSetBalance(ctx, user, ver, bal+amount)
	require.NoError(t, err)
}

func (h *harness) balance(t *testing.T, user string) int64 {
	t.Helper()
	bal, _, err := h.accounts.GetBalance(context.Background(), user)
	require.NoError(t, err)
	return bal
}

func (h *harness) entries(t *testing.T) []domain.LedgerEntry {
	t.Helper()
	entries, err := h.ledger.List(context.Background(), ledger.Filter{})
	require.NoError(t, err)
	return entries
}

func (h *harness) recordID(t *testing.T, user string) string {
	t.Helper()
	acct, err := h.accounts.Get(context.Background(), user)
	require.NoError(t, err)
	return acct.RecordID
}

func TestTransferMovesFunds(t *testing.T) {
	h := newHarness(t, fastPolicy())
	h.fund(t, "alice", 100)
	h.fund(t, "bob", 50)

	entry, err := h.engine.Transfer(context.Background(), "alice", "bob", 30, "lunch")
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Positive(t, entry.Timestamp)

	assert.Equal(t, int64(70), h.balance(t, "alice"))
	assert.Equal(t, int64(80), h.balance(t, "bob"))

	entries := h.entries(t)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Equal(t, "alice", entries[0].From)
	assert.Equal(t, "bob", entries[0].To)
	assert.Equal(t, int64(30), entries[0].Amount)
	assert.Equal(t, "lunch", entries[0].Note)
	assert.True(t, entries[0].Success)
	assert.Equal(t, entry.Timestamp, entries[0].Timestamp)
}

func TestLedgerFailureAfterCommitIsUnrecorded(t *testing.T) {
	h := newHarness(t, fastPolicy())
	h.fund(t, "alice", 100)
	h.fund(t, "bob", 50)

	h.faulty.OnCreate(func(table, _ string, _ store.Fields) error {
		if table == store.TableLedger {
			return errors.New("ledger down")
		}
		return nil
	})

	entry, err := h.engine.Transfer(context.Background(), "alice", "bob", 30, "lunch")
	assert.Nil(t, entry)
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.ErrorIs(t, err, domain.ErrUnrecorded)
	assert.NotErrorIs(t, err, domain.ErrPendingCredit)
	assert.True(t, domain.MovedFunds(err))

	h.faulty.OnCreate(nil)
	// both sides committed even though the entry is missing
	assert.Equal(t, int64(70), h.balance(t, "alice"))
	assert.Equal(t, int64(80), h.balance(t, "bob"))
	assert.Empty(t, h.entries(t))

	_, err = h.engine.Deposit(context.Background(), 10, "mint")
	require.NoError(t, err)
	h.faulty.OnCreate(func(table, _ string, _ store.Fields) error {
		if table == store.TableLedger {
			return errors.New("ledger down")
		}
		return nil
	})
	_, err = h.engine.Deposit(context.Background(), 10, "mint")
	assert.ErrorIs(t, err, domain.ErrUnrecorded)
	h.faulty.OnCreate(nil)
	assert.Equal(t, int64(20), h.balance(t, banker))
}

func TestTransferInsufficientFundsIsNoop(t *testing.T) {
	h := newHarness(t, fastPolicy())
	h.fund(t, "alice", 10)
	h.fund(t, "bob", 5)

	_, err := h.engine.Transfer(context.Background(), "alice", "bob", 30, "x")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	assert.Equal(t, int64(10), h.balance(t, "alice"))
	assert.Equal(t, int64(5), h.balance(t, "bob"))
	assert.Empty(t, h.entries(t))
}

func TestTransferValidation(t *testing.T) {
	h := newHarness(t, fastPolicy())
	h.fund(t, "alice", 100)

	tests := []struct {
		name     string
		from, to string
		amount   int64
	}{
		{"self transfer", "alice", "alice", 10},
		{"zero amount", "alice", "bob", 0},
		{"negative amount", "alice", "bob", -5},
		{"missing from", "", "bob", 10},
		{"missing to", "alice", "", 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.Transfer(context.Background(), tt.from, tt.to, tt.amount, "")
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
	assert.Equal(t, int64(100), h.balance(t, "alice"))
	assert.Empty(t, h.entries(t))
}

func TestTransferCreatesRecipientLazily(t *testing.T) {
	h := newHarness(t, fastPolicy())
	h.fund(t, "alice", 20)

	_, err := h.engine.Transfer(context.Background(), "alice", "newbie", 20, "welcome")
	require.NoError(t, err)
	assert.Equal(t, int64(0), h.balance(t, "alice"))
	assert.Equal(t, int64(20), h.balance(t, "newbie"))
}

func TestTransferRetriesDebitConflicts(t *testing.T) {
	h := newHarness(t, fastPolicy())
	h.fund(t, "alice", 100)
	h.fund(t, "bob", 0)

	var conflicts atomic.Int32
	h.faulty.OnUpdate(func(table, _ string, _ store.Fields) error {
		if table == store.TableAccounts && conflicts.Add(1) <= 2 {
			return store.ErrConflict
		}
		return nil
	})

	_, err := h.engine.Transfer(context.Background(), "alice", "bob", 40, "retry")
	require.NoError(t, err)
	assert.Equal(t, int64(60), h.balance(t, "alice"))
	assert.Equal(t, int64(40), h.balance(t, "bob"))
	assert.Len(t, h.entries(t), 1)
}

func TestTransferRevalidatesAfterConflict(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fastPolicy())
	h.fund(t, "alice", 100)
	aliceID := h.recordID(t, "alice")

	// A competing writer drains alice between our read and our CAS.
	var once sync.Once
	h.faulty.OnUpdate(func(table, recordID string, _ store.Fields) error {
		if table != store.TableAccounts || recordID != aliceID {
			return nil
		}
		once.Do(func() {
			rec, err := h.mem.Get(ctx, store.TableAccounts, aliceID)
			require.NoError(t, err)
			_, err = h.mem.Update(ctx, store.TableAccounts, aliceID, store.Fields{"balance": int64(10)}, rec.Version)
			require.NoError(t, err)
		})
		return nil
	})

	_, err := h.engine.Transfer(ctx, "alice", "bob", 60, "too late")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, int64(10), h.balance(t, "alice"))
	assert.Equal(t, int64(0), h.balance(t, "bob"))
	assert.Empty(t, h.entries(t))
}

func TestTransferDebitConflictExhaustion(t *testing.T) {
	h := newHarness(t, fastPolicy())
	h.fund(t, "alice", 100)
	h.fund(t, "bob", 0)

	h.faulty.OnUpdate(func(table, _ string, _ store.Fields) error {
		if table == store.TableAccounts {
			return store.ErrConflict
		}
		return nil
	})

	_, err := h.engine.Transfer(context.Background(), "alice", "bob", 10, "")
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	h.faulty.OnUpdate(nil)
	assert.Equal(t, int64(100), h.balance(t, "alice"))
	assert.Equal(t, int64(0), h.balance(t, "bob"))
	assert.Empty(t, h.entries(t))
}

func TestTransferCreditExhaustionRecordsPendingEntry(t *testing.T) {
	h := newHarness(t, fastPolicy())
	h.fund(t, "alice", 100)
	h.fund(t, "bob", 50)
	bobID := h.recordID(t, "bob")

	h.faulty.OnUpdate(func(_, recordID string, _ store.Fields) error {
		if recordID == bobID {
			return errors.New("connection reset")
		}
		return nil
	})

	_, err := h.engine.Transfer(context.Background(), "alice", "bob", 30, "lunch")
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.ErrorIs(t, err, domain.ErrPendingCredit)

	h.faulty.OnUpdate(nil)
	// the debit is final, the credit never happened
	assert.Equal(t, int64(70), h.balance(t, "alice"))
	assert.Equal(t, int64(50), h.balance(t, "bob"))

	entries := h.entries(t)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Equal(t, int64(30), entries[0].Amount)
	require.NotNil(t, entries[0].AdminNote)
	assert.Contains(t, *entries[0].AdminNote, "pending credit")
}

func TestTransferDeadlineStopsRetries(t *testing.T) {
	policy := retry.Policy{MaxRetries: 100, BaseBackoff: 20 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}
	h := newHarness(t, policy)
	h.fund(t, "alice", 100)

	h.faulty.OnUpdate(func(table, _ string, _ store.Fields) error {
		if table == store.TableAccounts {
			return store.ErrConflict
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := h.engine.Transfer(ctx, "alice", "bob", 10, "")
	assert.ErrorIs(t, err, domain.ErrTimeout)

	h.faulty.OnUpdate(nil)
	assert.Equal(t, int64(100), h.balance(t, "alice"))
	assert.Empty(t, h.entries(t))
}

func TestTransferDeadlineDuringCreditIsRecorded(t *testing.T) {
	policy := retry.Policy{MaxRetries: 100, BaseBackoff: 20 * time.Millisecond, MaxBackoff: 20 * time.Millisecond}
	h := newHarness(t, policy)
	h.fund(t, "alice", 100)
	bobID := h.recordID(t, "bob")

	h.faulty.OnUpdate(func(_, recordID string, _ store.Fields) error {
		if recordID == bobID {
			return store.ErrConflict
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := h.engine.Transfer(ctx, "alice", "bob", 10, "")
	assert.ErrorIs(t, err, domain.ErrTimeout)

	entries := h.entries(t)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
}

func TestConcurrentTransfersNeverOverdraw(t *testing.T) {
	h := newHarness(t, fastPolicy())
	h.fund(t, "alice", 100)
	h.fund(t, "bob", 0)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = h.engine.Transfer(context.Background(), "alice", "bob", 60, "race")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, domain.ErrInsufficientFunds) || errors.Is(err, domain.ErrConcurrencyConflict), err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(40), h.balance(t, "alice"))
	assert.Equal(t, int64(60), h.balance(t, "bob"))
	assert.Len(t, h.entries(t), 1)
}

func TestConcurrentTransfersConserveTotal(t *testing.T) {
	policy := retry.Policy{MaxRetries: 200, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
	h := newHarness(t, policy)
	users := []string{"alice", "bob", "carol", "dave"}
	for _, u := range users {
		h.fund(t, u, 100)
	}

	// A read hook slows interleavings down enough to force CAS races.
	h.faulty.AfterRead(func(string) { time.Sleep(50 * time.Microsecond) })

	var wg sync.WaitGroup
	var ok atomic.Int64
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			from, to := users[i%4], users[(i+1)%4]
			if _, err := h.engine.Transfer(context.Background(), from, to, 30, "churn"); err == nil {
				ok.Add(1)
			}
		}(i)
	}
	wg.Wait()
	h.faulty.AfterRead(nil)

	var total int64
	for _, u := range users {
		bal := h.balance(t, u)
		assert.GreaterOrEqual(t, bal, int64(0), u)
		total += bal
	}
	assert.Equal(t, int64(400), total)

	succeeded := 0
	for _, e := range h.entries(t) {
		require.True(t, e.Success)
		succeeded++
	}
	assert.Equal(t, int(ok.Load()), succeeded)
}

func TestGiveAndFineUseBanker(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, fastPolicy())
	h.fund(t, banker, 1000)

	_, err := h.engine.Give(ctx, "alice", 25, "hackathon prize")
	require.NoError(t, err)
	assert.Equal(t, int64(975), h.balance(t, banker))
	assert.Equal(t, int64(25), h.balance(t, "alice"))

	_, err = h.engine.Fine(ctx, "alice", 5, "spam")
	require.NoError(t, err)
	assert.Equal(t, int64(980), h.balance(t, banker))
	assert.Equal(t, int64(20), h.balance(t, "alice"))

	_, err = h.engine.Fine(ctx, "alice", 50, "too much")
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	entries := h.entries(t)
	require.Len(t, entries, 2)
	assert.Equal(t, banker, entries[0].From)
	assert.Equal(t, banker, entries[1].To)
}

func TestDepositFundsBanker(t *testing.T) {
	h := newHarness(t, fastPolicy())

	entry, err := h.engine.Deposit(context.Background(), 500, "initial supply")
	require.NoError(t, err)
	assert.Equal(t, domain.MintAccount, entry.From)
	assert.Positive(t, entry.Timestamp)
	assert.Equal(t, int64(500), h.balance(t, banker))

	_, err = h.engine.Deposit(context.Background(), 0, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBankerOperationsNeedBanker(t *testing.T) {
	h := newHarness(t, fastPolicy())
	e := NewEngine(h.accounts, h.ledger, fastPolicy(), "")

	_, err := e.Give(context.Background(), "alice", 1, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = e.Fine(context.Background(), "alice", 1, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = e.Deposit(context.Background(), 1, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}
