// Package transfer moves money between two accounts on a store that only
// offers single-record compare-and-set.
//
// A transfer is a debit CAS followed by a credit CAS. The debit re-validates
// sufficiency against the balance read in the same attempt, so concurrent
// debits can never overdraw an account. Once the debit commits it is final;
// only the credit is retried, and a credit that cannot be applied leaves a
// failed ledger entry for an operator to reconcile.
package transfer

import (
	"context" // Request-scoped context
	"errors"  // Error matching
	"fmt"     // Error wrapping

	"github.com/sirupsen/logrus" // Logging library

	"banker_api/internal/domain" // Models and error kinds
	"banker_api/internal/retry"  // Retry policy
	"banker_api/internal/store"  // Version token
)

// Accounts is the part of the AccountStore the engine uses.
type Accounts interface {
	GetBalance(ctx context.Context, user string) (int64, store.Version, error)
	CompareAndSetBalance(ctx context.Context, user string, expected store.Version, newBalance int64) (store.Version, error)
}

// Ledger is the part of the LedgerRecorder the engine uses.
type Ledger interface {
	Append(ctx context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, error)
}

// Engine is the TransferEngine.
type Engine struct {
	accounts Accounts
	ledger   Ledger
	policy   retry.Policy
	banker   string
	log      *logrus.Entry
}

// NewEngine wires an Engine. banker is the system account used by Give,
// Fine and Deposit; it may be empty if those are not used.
func NewEngine(accounts Accounts, ledger Ledger, policy retry.Policy, banker string) *Engine {
	return &Engine{
		accounts: accounts,
		ledger:   ledger,
		policy:   policy,
		banker:   banker,
		log:      logrus.WithField("component", "transfer"),
	}
}

// Banker returns the system account id.
func (e *Engine) Banker() string {
	return e.banker
}

// Transfer moves amount from one user to another and returns the ledger
// entry recording it.
func (e *Engine) Transfer(ctx context.Context, from, to string, amount int64, note string) (*domain.LedgerEntry, error) {
	if err := validate(from, to, amount); err != nil {
		return nil, err
	}
	fields := logrus.Fields{"from": from, "to": to, "amount": amount}
	e.log.WithFields(fields).Info("Moving funds")

	// Both accounts must exist before any money moves.
	if err := e.touch(ctx, to); err != nil {
		e.log.WithFields(fields).WithError(err).Error("Transfer failed")
		return nil, err
	}
	if err := e.debit(ctx, from, amount); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			e.log.WithFields(fields).Warn("Transfer failed, insufficient funds")
		} else {
			e.log.WithFields(fields).WithError(err).Error("Transfer failed")
		}
		return nil, err
	}

	entry := domain.LedgerEntry{From: from, To: to, Amount: amount, Note: note}
	if err := e.credit(ctx, to, amount); err != nil {
		return nil, e.pendingCredit(ctx, entry, err)
	}
	entry.Success = true
	if err := e.record(ctx, &entry); err != nil {
		return nil, e.unrecorded(entry, err)
	}
	e.log.WithFields(fields).WithField("entry_id", entry.ID).Info("Transfer complete")
	return &entry, nil
}

// Give pays amount from the banker account to user.
func (e *Engine) Give(ctx context.Context, to string, amount int64, note string) (*domain.LedgerEntry, error) {
	if e.banker == "" {
		return nil, domain.Invalid("banker", "no banker account configured")
	}
	return e.Transfer(ctx, e.banker, to, amount, note)
}

// Fine moves amount from user to the banker account.
func (e *Engine) Fine(ctx context.Context, from string, amount int64, note string) (*domain.LedgerEntry, error) {
	if e.banker == "" {
		return nil, domain.Invalid("banker", "no banker account configured")
	}
	return e.Transfer(ctx, from, e.banker, amount, note)
}

// Deposit credits the banker account with newly minted funds.
func (e *Engine) Deposit(ctx context.Context, amount int64, note string) (*domain.LedgerEntry, error) {
	if e.banker == "" {
		return nil, domain.Invalid("banker", "no banker account configured")
	}
	if amount <= 0 {
		return nil, domain.Invalid("amount", "must be positive")
	}
	if err := e.credit(ctx, e.banker, amount); err != nil {
		e.log.WithFields(logrus.Fields{"to": e.banker, "amount": amount}).WithError(err).Error("Deposit failed")
		return nil, err
	}
	entry := domain.LedgerEntry{From: domain.MintAccount, To: e.banker, Amount: amount, Note: note, Success: true}
	if err := e.record(ctx, &entry); err != nil {
		return nil, e.unrecorded(entry, err)
	}
	e.log.WithFields(logrus.Fields{"to": e.banker, "amount": amount, "entry_id": entry.ID}).Info("Deposit complete")
	return &entry, nil
}

func validate(from, to string, amount int64) error {
	switch {
	case from == "":
		return domain.Invalid("from", "must not be empty")
	case to == "":
		return domain.Invalid("to", "must not be empty")
	case from == to:
		return domain.Invalid("to", "cannot transfer to the same account")
	case amount <= 0:
		return domain.Invalid("amount", "must be positive")
	}
	return nil
}

// touch reads user once so that a missing account is created up front.
func (e *Engine) touch(ctx context.Context, user string) error {
	return e.loop(ctx, func() error {
		_, _, err := e.accounts.GetBalance(ctx, user)
		return err
	})
}

// debit re-reads the balance on every attempt and checks sufficiency
// against that fresh read, never against an earlier snapshot.
func (e *Engine) debit(ctx context.Context, user string, amount int64) error {
	return e.loop(ctx, func() error {
		balance, version, err := e.accounts.GetBalance(ctx, user)
		if err != nil {
			return err
		}
		if balance < amount {
			return fmt.Errorf("%w: %s has %d, needs %d", domain.ErrInsufficientFunds, user, balance, amount)
		}
		_, err = e.accounts.CompareAndSetBalance(ctx, user, version, balance-amount)
		return err
	})
}

func (e *Engine) credit(ctx context.Context, user string, amount int64) error {
	return e.loop(ctx, func() error {
		balance, version, err := e.accounts.GetBalance(ctx, user)
		if err != nil {
			return err
		}
		_, err = e.accounts.CompareAndSetBalance(ctx, user, version, balance+amount)
		return err
	})
}

// loop runs attempt until it succeeds, fails terminally, the retry budget is
// spent or ctx ends.
func (e *Engine) loop(ctx context.Context, attempt func() error) error {
	var last error
	for n := 0; n < e.policy.Attempts(); n++ {
		if n > 0 {
			if err := e.policy.Wait(ctx, n-1); err != nil {
				return err
			}
		} else if err := retry.Check(ctx); err != nil {
			return err
		}
		err := attempt()
		if err == nil || !domain.IsRetryable(err) {
			return err
		}
		last = err
	}
	if errors.Is(last, domain.ErrConflict) {
		return fmt.Errorf("%w after %d attempts: %v", domain.ErrConcurrencyConflict, e.policy.Attempts(), last)
	}
	return last
}

// pendingCredit records a committed debit whose credit could not be applied.
// The caller's context may be done, so the write detaches from its deadline.
func (e *Engine) pendingCredit(ctx context.Context, entry domain.LedgerEntry, cause error) error {
	note := fmt.Sprintf("pending credit: %d debited from %s, credit to %s not applied: %v", entry.Amount, entry.From, entry.To, cause)
	entry.Success = false
	entry.AdminNote = &note

	fields := logrus.Fields{"from": entry.From, "to": entry.To, "amount": entry.Amount, "error": cause.Error()}
	if err := e.record(context.WithoutCancel(ctx), &entry); err != nil {
		e.log.WithFields(fields).WithField("record_error", err.Error()).Error("Pending credit could not be recorded, reconcile manually")
	} else {
		e.log.WithFields(fields).WithField("entry_id", entry.ID).Error("Credit failed after debit, recorded for reconciliation")
	}

	if errors.Is(cause, domain.ErrTimeout) {
		return fmt.Errorf("%w: %w: credit to %s after debit of %s", domain.ErrTimeout, domain.ErrPendingCredit, entry.To, entry.From)
	}
	return fmt.Errorf("%w: %w: credit to %s after debit of %s: %v", domain.ErrStore, domain.ErrPendingCredit, entry.To, entry.From, cause)
}

// unrecorded reports a movement that committed on both accounts but has no
// ledger entry. Callers must not retry it.
func (e *Engine) unrecorded(entry domain.LedgerEntry, cause error) error {
	e.log.WithFields(logrus.Fields{
		"from":   entry.From,
		"to":     entry.To,
		"amount": entry.Amount,
		"note":   entry.Note,
		"error":  cause.Error(),
	}).Error("Funds moved but ledger entry not written, reconcile manually")
	return fmt.Errorf("%w: %w: %d from %s to %s: %v", domain.ErrStore, domain.ErrUnrecorded, entry.Amount, entry.From, entry.To, cause)
}

// record appends entry, retrying store failures, and copies the stored id
// and timestamp back. Balances have already moved, so the caller's deadline
// no longer applies.
func (e *Engine) record(ctx context.Context, entry *domain.LedgerEntry) error {
	ctx = context.WithoutCancel(ctx)
	return e.loop(ctx, func() error {
		stored, err := e.ledger.Append(ctx, *entry)
		if err != nil {
			return err
		}
		entry.ID = stored.ID
		entry.Timestamp = stored.Timestamp
		return nil
	})
}
