package account

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banker_api/internal/domain"
	"banker_api/internal/store"
	"banker_api/internal/store/memory"
	"banker_api/internal/store/storetest"
)

func TestGetBalanceCreatesZeroAccount(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	s := NewStore(mem)

	bal, ver, err := s.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)
	assert.Equal(t, int64(1), ver)
	assert.Equal(t, 1, mem.Len(store.TableAccounts))

	// second read does not create again
	_, _, err = s.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, mem.Len(store.TableAccounts))
}

func TestGetBalanceRejectsEmptyUser(t *testing.T) {
	_, _, err := NewStore(memory.New()).GetBalance(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestConcurrentFirstAccessCreatesOneRecord(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	faulty := storetest.Wrap(mem)
	s := NewStore(faulty)

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bal, _, err := s.GetBalance(ctx, "newcomer")
			if err == nil && bal != 0 {
				err = errors.New("non-zero opening balance")
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, mem.Len(store.TableAccounts))
	assert.Equal(t, int64(1), faulty.Creates.Load())
}

func TestCompareAndSetBalance(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memory.New())

	_, ver, err := s.GetBalance(ctx, "alice")
	require.NoError(t, err)

	next, err := s.CompareAndSetBalance(ctx, "alice", ver, 100)
	require.NoError(t, err)
	assert.Greater(t, next, ver)

	// the old version is stale now
	_, err = s.CompareAndSetBalance(ctx, "alice", ver, 5)
	assert.ErrorIs(t, err, domain.ErrConflict)

	bal, cur, err := s.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal)
	assert.Equal(t, next, cur)
}

func TestCompareAndSetBalanceRejectsNegative(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memory.New())

	_, ver, err := s.GetBalance(ctx, "alice")
	require.NoError(t, err)

	_, err = s.CompareAndSetBalance(ctx, "alice", ver, -1)
	assert.ErrorIs(t, err, domain.ErrValidation)

	bal, _, err := s.GetBalance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal)
}

func TestCompareAndSetBalanceUnknownUser(t *testing.T) {
	_, err := NewStore(memory.New()).CompareAndSetBalance(context.Background(), "ghost", 1, 10)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStoreFailureIsStoreError(t *testing.T) {
	ctx := context.Background()
	faulty := storetest.Wrap(memory.New())
	s := NewStore(faulty)

	_, ver, err := s.GetBalance(ctx, "alice")
	require.NoError(t, err)

	faulty.OnUpdate(func(string, string, store.Fields) error { return errors.New("disk on fire") })
	_, err = s.CompareAndSetBalance(ctx, "alice", ver, 10)
	assert.ErrorIs(t, err, domain.ErrStore)
	assert.True(t, domain.IsRetryable(err))
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memory.New())

	for _, u := range []string{"alice", "bob"} {
		_, _, err := s.GetBalance(ctx, u)
		require.NoError(t, err)
	}
	accts, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, accts, 2)
	assert.Equal(t, "alice", accts[0].UserID)
	assert.Equal(t, "bob", accts[1].UserID)
}

func TestSeparateStoresShareOneRecord(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	// Two AccountStores over one RecordStore behave like two processes
	// sharing a database: their creation locks know nothing of each other.
	server, cli := NewStore(mem), NewStore(mem)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		for _, s := range []*Store{server, cli} {
			wg.Add(1)
			go func(s *Store) {
				defer wg.Done()
				_, _, err := s.GetBalance(ctx, "newcomer")
				errs <- err
			}(s)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, mem.Len(store.TableAccounts))

	a, err := server.Get(ctx, "newcomer")
	require.NoError(t, err)
	b, err := cli.Get(ctx, "newcomer")
	require.NoError(t, err)
	assert.Equal(t, a.RecordID, b.RecordID)
}
