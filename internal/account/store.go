// Package account owns balance records: lazy zero-balance creation and
// compare-and-set balance updates on top of a store.RecordStore.
package account

import (
	"context" // Request-scoped context
	"errors"  // Error matching
	"fmt"     // Error wrapping
	"sync"    // Creation locks

	"github.com/sirupsen/logrus" // Logging library

	"banker_api/internal/domain" // Models and error kinds
	"banker_api/internal/store"  // RecordStore contract
)

// Store is the AccountStore. It is the only writer of the accounts table.
type Store struct {
	records store.RecordStore
	log     *logrus.Entry

	mu       sync.Mutex             // protects creating
	creating map[string]*sync.Mutex // per-user creation locks
	ids      sync.Map               // user -> record id, records are never deleted
}

// NewStore returns an AccountStore writing through records.
func NewStore(records store.RecordStore) *Store {
	return &Store{
		records:  records,
		log:      logrus.WithField("component", "account"),
		creating: make(map[string]*sync.Mutex),
	}
}

// Get returns the account of user, creating it with a zero balance first if
// it does not exist yet.
func (s *Store) Get(ctx context.Context, user string) (domain.Account, error) {
	if user == "" {
		return domain.Account{}, domain.Invalid("user", "must not be empty")
	}
	acct, found, err := s.find(ctx, user)
	if err != nil || found {
		return acct, err
	}
	return s.create(ctx, user)
}

// GetBalance returns the balance of user and the version to CAS against.
func (s *Store) GetBalance(ctx context.Context, user string) (int64, store.Version, error) {
	acct, err := s.Get(ctx, user)
	if err != nil {
		return 0, 0, err
	}
	return acct.Balance, acct.Version, nil
}

// CompareAndSetBalance writes newBalance only if the account is still at
// expected. A lost race yields domain.ErrConflict and changes nothing.
func (s *Store) CompareAndSetBalance(ctx context.Context, user string, expected store.Version, newBalance int64) (store.Version, error) {
	if newBalance < 0 {
		return 0, domain.Invalid("balance", "must not be negative")
	}
	recordID, err := s.recordID(ctx, user)
	if err != nil {
		return 0, err
	}
	rec, err := s.records.Update(ctx, store.TableAccounts, recordID, store.Fields{"balance": newBalance}, expected)
	switch {
	case errors.Is(err, store.ErrConflict):
		return 0, fmt.Errorf("account %s: %w", user, domain.ErrConflict)
	case err != nil:
		return 0, storeErr(ctx, err)
	}
	return rec.Version, nil
}

// List returns every account ordered by creation.
func (s *Store) List(ctx context.Context) ([]domain.Account, error) {
	recs, err := s.records.Query(ctx, store.TableAccounts, nil)
	if err != nil {
		return nil, storeErr(ctx, err)
	}
	out := make([]domain.Account, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec))
	}
	return out, nil
}

func (s *Store) find(ctx context.Context, user string) (domain.Account, bool, error) {
	rec, err := s.records.Lookup(ctx, store.TableAccounts, user)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Account{}, false, nil
	}
	if err != nil {
		return domain.Account{}, false, storeErr(ctx, err)
	}
	acct := fromRecord(rec)
	s.ids.Store(user, acct.RecordID)
	return acct, true, nil
}

// create holds the per-user lock only around the re-check and the create.
// The lock spares concurrent callers in this process a doomed insert; the
// store's unique key is what keeps other processes from adding a second
// record.
func (s *Store) create(ctx context.Context, user string) (domain.Account, error) {
	lock := s.creationLock(user)
	lock.Lock()
	defer lock.Unlock()

	acct, found, err := s.find(ctx, user)
	if err != nil || found {
		return acct, err
	}

	s.log.WithField("user", user).Info("Creating zero balance account")
	rec, err := s.records.CreateUnique(ctx, store.TableAccounts, user, store.Fields{"user": user, "balance": int64(0)})
	if errors.Is(err, store.ErrExists) {
		// Another process created it between our lookup and insert.
		acct, found, err := s.find(ctx, user)
		if err == nil && !found {
			err = fmt.Errorf("account %s: %w", user, domain.ErrConflict)
		}
		if err == nil {
			s.releaseLock(user)
		}
		return acct, err
	}
	if err != nil {
		return domain.Account{}, storeErr(ctx, err)
	}
	acct = fromRecord(rec)
	s.ids.Store(user, acct.RecordID)
	// Dropped only on success: later callers find the record instead.
	s.releaseLock(user)
	return acct, nil
}

func (s *Store) creationLock(user string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.creating[user]
	if !ok {
		lock = &sync.Mutex{}
		s.creating[user] = lock
	}
	return lock
}

func (s *Store) releaseLock(user string) {
	s.mu.Lock()
	delete(s.creating, user)
	s.mu.Unlock()
}

func (s *Store) recordID(ctx context.Context, user string) (string, error) {
	if v, ok := s.ids.Load(user); ok {
		return v.(string), nil
	}
	acct, found, err := s.find(ctx, user)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("account %s: %w", user, domain.ErrNotFound)
	}
	return acct.RecordID, nil
}

func fromRecord(rec store.Record) domain.Account {
	return domain.Account{
		RecordID: rec.ID,
		UserID:   rec.Fields.String("user"),
		Balance:  rec.Fields.Int64("balance"),
		Version:  rec.Version,
	}
}

// storeErr classifies a RecordStore failure.
func storeErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrStore, err)
}
