// Package invoice manages payment requests: Processing until paid or denied.
package invoice

import (
	"context" // Request-scoped context
	"errors"  // Error matching
	"fmt"     // Error wrapping
	"sort"    // Ordering claimed invoices
	"time"    // Claim timestamps

	"github.com/google/uuid"     // Claim tokens
	"github.com/sirupsen/logrus" // Logging library

	"banker_api/internal/domain" // Models and error kinds
	"banker_api/internal/retry"  // Retry policy
	"banker_api/internal/store"  // RecordStore contract
)

// Transferer moves money; the TransferEngine satisfies it.
type Transferer interface {
	Transfer(ctx context.Context, from, to string, amount int64, note string) (*domain.LedgerEntry, error)
}

// Role selects which side of an invoice a listing is for.
type Role int

const (
	// Payer lists invoices the user has to pay (to == user).
	Payer Role = iota
	// Payee lists invoices the user has issued (from == user).
	Payee
)

// ParseRole reads "payer" (the default when empty) or "payee".
func ParseRole(s string) (Role, error) {
	switch s {
	case "", "payer":
		return Payer, nil
	case "payee":
		return Payee, nil
	}
	return Payer, domain.Invalid("as", "must be payer or payee")
}

// Manager is the InvoiceManager. It is the only writer of the invoices table.
type Manager struct {
	records   store.RecordStore
	transfers Transferer
	policy    retry.Policy
	log       *logrus.Entry
}

// NewManager wires a Manager.
func NewManager(records store.RecordStore, transfers Transferer, policy retry.Policy) *Manager {
	return &Manager{
		records:   records,
		transfers: transfers,
		policy:    policy,
		log:       logrus.WithField("component", "invoice"),
	}
}

// CreateInvoice asks to (the payer) to pay amount to from (the payee).
func (m *Manager) CreateInvoice(ctx context.Context, from, to, reason string, amount int64) (string, error) {
	switch {
	case from == "":
		return "", domain.Invalid("from", "must not be empty")
	case to == "":
		return "", domain.Invalid("to", "must not be empty")
	case from == to:
		return "", domain.Invalid("to", "cannot invoice yourself")
	case amount <= 0:
		return "", domain.Invalid("amount", "must be positive")
	}

	rec, err := m.records.Create(ctx, store.TableInvoices, store.Fields{
		"from":       from,
		"to":         to,
		"reason":     reason,
		"amount":     amount,
		"status":     string(domain.InvoiceProcessing),
		"claim":      "",
		"claimed_at": int64(0),
	})
	if err != nil {
		return "", storeErr(ctx, err)
	}
	m.log.WithFields(logrus.Fields{
		"invoice_id": rec.ID,
		"from":       from,
		"to":         to,
		"amount":     amount,
		"reason":     reason,
	}).Info("Invoice created")
	return rec.ID, nil
}

// GetInvoice returns the invoice with id.
func (m *Manager) GetInvoice(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	rec, err := m.records.Get(ctx, store.TableInvoices, invoiceID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Invoice{}, fmt.Errorf("invoice %s: %w", invoiceID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Invoice{}, storeErr(ctx, err)
	}
	return fromRecord(rec), nil
}

// PayInvoice moves the invoiced amount from the payer to the payee and marks
// the invoice Paid.
//
// The invoice is claimed with a CAS before any money moves, so of two
// concurrent payments only one ever reaches the transfer.
func (m *Manager) PayInvoice(ctx context.Context, invoiceID string) error {
	inv, err := m.claim(ctx, invoiceID)
	if err != nil {
		return err
	}
	fields := logrus.Fields{"invoice_id": inv.ID, "payer": inv.To, "payee": inv.From, "amount": inv.Amount}

	// Funds move from the payer (to) to the payee (from).
	if _, err := m.transfers.Transfer(ctx, inv.To, inv.From, inv.Amount, inv.Reason); err != nil {
		switch {
		case errors.Is(err, domain.ErrUnrecorded):
			// Both balances moved; only the ledger entry is missing.
			if serr := m.settle(ctx, inv, domain.InvoicePaid); serr != nil {
				m.log.WithFields(fields).WithError(serr).Error("Invoice paid without ledger entry and status not updated, invoice stays claimed")
			} else {
				m.log.WithFields(fields).WithError(err).Error("Invoice paid without ledger entry")
			}
			return err
		case errors.Is(err, domain.ErrPendingCredit):
			// Money already left the payer; keep the claim so nobody pays twice.
			m.log.WithFields(fields).WithError(err).Error("Invoice payment left pending credit, invoice stays claimed")
			return err
		}
		m.release(ctx, inv)
		m.log.WithFields(fields).WithError(err).Warn("Invoice payment failed")
		return err
	}

	if err := m.settle(ctx, inv, domain.InvoicePaid); err != nil {
		m.log.WithFields(fields).WithError(err).Error("Invoice paid but status not updated, reconcile manually")
		return err
	}
	m.log.WithFields(fields).Info("Invoice paid")
	return nil
}

// DenyInvoice moves the invoice from Processing to Denied.
func (m *Manager) DenyInvoice(ctx context.Context, invoiceID string) error {
	for n := 0; n < m.policy.Attempts(); n++ {
		if n > 0 {
			if err := m.policy.Wait(ctx, n-1); err != nil {
				return err
			}
		}
		inv, err := m.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := checkOpen(inv); err != nil {
			return err
		}
		_, err = m.records.Update(ctx, store.TableInvoices, inv.ID, store.Fields{"status": string(domain.InvoiceDenied)}, inv.Version)
		if err == nil {
			m.log.WithField("invoice_id", inv.ID).Info("Invoice denied")
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			if err = storeErr(ctx, err); !domain.IsRetryable(err) {
				return err
			}
		}
	}
	return fmt.Errorf("invoice %s: %w", invoiceID, domain.ErrConcurrencyConflict)
}

// ListPendingInvoices returns the Processing invoices where user is on the
// given side.
func (m *Manager) ListPendingInvoices(ctx context.Context, user string, role Role) ([]domain.Invoice, error) {
	if user == "" {
		return nil, domain.Invalid("user", "must not be empty")
	}
	side := "to"
	if role == Payee {
		side = "from"
	}
	recs, err := m.records.Query(ctx, store.TableInvoices, store.Filter{
		side:     user,
		"status": string(domain.InvoiceProcessing),
	})
	if err != nil {
		return nil, storeErr(ctx, err)
	}
	out := make([]domain.Invoice, 0, len(recs))
	for _, rec := range recs {
		out = append(out, fromRecord(rec))
	}
	return out, nil
}

// ListClaimedInvoices returns Processing invoices with a payment in progress,
// oldest claim first. An entry that stays here was left by a failed or
// interrupted payment and needs ReleaseInvoice or SettleInvoice.
func (m *Manager) ListClaimedInvoices(ctx context.Context) ([]domain.Invoice, error) {
	recs, err := m.records.Query(ctx, store.TableInvoices, store.Filter{"status": string(domain.InvoiceProcessing)})
	if err != nil {
		return nil, storeErr(ctx, err)
	}
	var out []domain.Invoice
	for _, rec := range recs {
		if inv := fromRecord(rec); inv.Claim != "" {
			out = append(out, inv)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ClaimedAt < out[j].ClaimedAt })
	return out, nil
}

// ReleaseInvoice drops a stuck claim so the invoice can be paid or denied
// again. Only use it once the ledger shows no money moved for it.
func (m *Manager) ReleaseInvoice(ctx context.Context, invoiceID string) error {
	inv, err := m.claimed(ctx, invoiceID)
	if err != nil {
		return err
	}
	if _, err := m.update(ctx, inv, store.Fields{"claim": "", "claimed_at": int64(0)}); err != nil {
		return err
	}
	m.log.WithField("invoice_id", inv.ID).Warn("Invoice claim released by operator")
	return nil
}

// SettleInvoice marks a claimed invoice Paid without moving money, for a
// payment an operator has reconciled by hand.
func (m *Manager) SettleInvoice(ctx context.Context, invoiceID string) error {
	inv, err := m.claimed(ctx, invoiceID)
	if err != nil {
		return err
	}
	if err := m.settle(ctx, inv, domain.InvoicePaid); err != nil {
		return err
	}
	m.log.WithField("invoice_id", inv.ID).Warn("Invoice settled by operator")
	return nil
}

// claimed loads an invoice that has a payment in progress.
func (m *Manager) claimed(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	inv, err := m.GetInvoice(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if inv.Status != domain.InvoiceProcessing {
		return domain.Invoice{}, fmt.Errorf("invoice %s is %s: %w", inv.ID, inv.Status, domain.ErrAlreadyProcessed)
	}
	if inv.Claim == "" {
		return domain.Invoice{}, domain.Invalid("invoice_id", "no payment in progress")
	}
	return inv, nil
}

// claim marks an open invoice as being paid.
func (m *Manager) claim(ctx context.Context, invoiceID string) (domain.Invoice, error) {
	inv, err := m.GetInvoice(ctx, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if err := checkOpen(inv); err != nil {
		return domain.Invoice{}, err
	}
	token := uuid.NewString()
	rec, err := m.records.Update(ctx, store.TableInvoices, inv.ID, store.Fields{
		"claim":      token,
		"claimed_at": time.Now().UnixMilli(),
	}, inv.Version)
	if errors.Is(err, store.ErrConflict) {
		// Someone else moved first; report what they did.
		current, gerr := m.GetInvoice(ctx, invoiceID)
		if gerr != nil {
			return domain.Invoice{}, gerr
		}
		if err := checkOpen(current); err != nil {
			return domain.Invoice{}, err
		}
		return domain.Invoice{}, fmt.Errorf("invoice %s: %w", invoiceID, domain.ErrConcurrencyConflict)
	}
	if err != nil {
		return domain.Invoice{}, storeErr(ctx, err)
	}
	return fromRecord(rec), nil
}

// release drops the claim after a payment that moved no money.
func (m *Manager) release(ctx context.Context, inv domain.Invoice) {
	if _, err := m.update(ctx, inv, store.Fields{"claim": "", "claimed_at": int64(0)}); err != nil {
		m.log.WithFields(logrus.Fields{"invoice_id": inv.ID, "error": err.Error()}).Error("Failed to release invoice claim")
	}
}

// settle moves a claimed invoice to a terminal status.
func (m *Manager) settle(ctx context.Context, inv domain.Invoice, next domain.InvoiceStatus) error {
	if !inv.Status.CanTransition(next) {
		return fmt.Errorf("invoice %s is %s: %w", inv.ID, inv.Status, domain.ErrAlreadyProcessed)
	}
	_, err := m.update(ctx, inv, store.Fields{"status": string(next), "claim": "", "claimed_at": int64(0)})
	return err
}

// update writes to a claimed invoice. Nobody else writes while the claim is
// held, so only store failures are retried; the caller's deadline is ignored
// because money has already moved or must be released.
func (m *Manager) update(ctx context.Context, inv domain.Invoice, fields store.Fields) (store.Record, error) {
	ctx = context.WithoutCancel(ctx)
	var last error
	for n := 0; n < m.policy.Attempts(); n++ {
		if n > 0 {
			if err := m.policy.Wait(ctx, n-1); err != nil {
				return store.Record{}, err
			}
		}
		rec, err := m.records.Update(ctx, store.TableInvoices, inv.ID, fields, inv.Version)
		if err == nil {
			return rec, nil
		}
		if errors.Is(err, store.ErrConflict) {
			return store.Record{}, fmt.Errorf("invoice %s changed while claimed: %w", inv.ID, domain.ErrConcurrencyConflict)
		}
		last = storeErr(ctx, err)
	}
	return store.Record{}, last
}

func checkOpen(inv domain.Invoice) error {
	if inv.Status != domain.InvoiceProcessing {
		return fmt.Errorf("invoice %s is %s: %w", inv.ID, inv.Status, domain.ErrAlreadyProcessed)
	}
	if inv.Claim != "" {
		return fmt.Errorf("invoice %s has a payment in progress: %w", inv.ID, domain.ErrConcurrencyConflict)
	}
	return nil
}

func fromRecord(rec store.Record) domain.Invoice {
	return domain.Invoice{
		ID:        rec.ID,
		From:      rec.Fields.String("from"),
		To:        rec.Fields.String("to"),
		Reason:    rec.Fields.String("reason"),
		Amount:    rec.Fields.Int64("amount"),
		Status:    domain.InvoiceStatus(rec.Fields.String("status")),
		Claim:     rec.Fields.String("claim"),
		ClaimedAt: rec.Fields.Int64("claimed_at"),
		Version:   rec.Version,
	}
}

func storeErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", domain.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrStore, err)
}
