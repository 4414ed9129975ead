// Package ledger is the append-only transaction log.
package ledger

import (
	"context" // Request-scoped context
	"errors"  // Error matching
	"fmt"     // Error wrapping
	"time"    // Timestamps and publish deadline

	"github.com/sirupsen/logrus" // Logging library

	"banker_api/internal/domain" // Ledger entry model
	"banker_api/internal/store"  // RecordStore contract
)

// DefaultPublishTimeout bounds how long Append waits on the publisher.
const DefaultPublishTimeout = 2 * time.Second

// Publisher receives every entry after it has been durably appended.
type Publisher interface {
	Publish(ctx context.Context, entry domain.LedgerEntry) error
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	User    string // entries where from or to equals User
	From    string
	To      string
	Success *bool
	Limit   int // newest Limit entries, 0 for all
}

// Recorder is the LedgerRecorder. It only ever creates ledger records.
type Recorder struct {
	records        store.RecordStore
	publisher      Publisher
	publishTimeout time.Duration
	now            func() time.Time
	log            *logrus.Entry
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithPublisher forwards appended entries to p.
func WithPublisher(p Publisher) Option {
	return func(r *Recorder) { r.publisher = p }
}

// WithPublishTimeout overrides DefaultPublishTimeout.
func WithPublishTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.publishTimeout = d }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// NewRecorder returns a Recorder writing to records.
func NewRecorder(records store.RecordStore, opts ...Option) *Recorder {
	r := &Recorder{
		records:        records,
		publishTimeout: DefaultPublishTimeout,
		now:            time.Now,
		log:            logrus.WithField("component", "ledger"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Append writes entry once with a server timestamp and returns it as stored,
// id and timestamp included. Ids are ULIDs, so they increase with every
// append.
func (r *Recorder) Append(ctx context.Context, entry domain.LedgerEntry) (domain.LedgerEntry, error) {
	if entry.Amount <= 0 {
		return domain.LedgerEntry{}, domain.Invalid("amount", "must be positive")
	}
	entry.Timestamp = r.now().UnixMilli()

	fields := store.Fields{
		"from":       entry.From,
		"to":         entry.To,
		"amount":     entry.Amount,
		"note":       entry.Note,
		"success":    entry.Success,
		"admin_note": nil,
		"timestamp":  entry.Timestamp,
		"private":    false, // kept for compatibility with the legacy ledger table
	}
	if entry.AdminNote != nil {
		fields["admin_note"] = *entry.AdminNote
	}

	rec, err := r.records.Create(ctx, store.TableLedger, fields)
	if err != nil {
		if ctx.Err() != nil {
			return domain.LedgerEntry{}, fmt.Errorf("%w: append ledger entry: %v", domain.ErrTimeout, err)
		}
		return domain.LedgerEntry{}, fmt.Errorf("%w: append ledger entry: %v", domain.ErrStore, err)
	}
	entry.ID = rec.ID

	r.log.WithFields(logrus.Fields{
		"entry_id": entry.ID,
		"from":     entry.From,
		"to":       entry.To,
		"amount":   entry.Amount,
		"success":  entry.Success,
	}).Info("Logged ledger entry")

	if r.publisher != nil {
		r.publish(ctx, entry)
	}
	return entry, nil
}

// publish hands entry to the publisher. The entry is durable already; a lost
// event never fails the append.
func (r *Recorder) publish(ctx context.Context, entry domain.LedgerEntry) {
	ctx, cancel := context.WithTimeout(ctx, r.publishTimeout)
	defer cancel()
	if err := r.publisher.Publish(ctx, entry); err != nil {
		r.log.WithFields(logrus.Fields{
			"entry_id": entry.ID,
			"error":    err.Error(),
		}).Warn("Failed to publish ledger entry")
	}
}

// Get returns the entry with id.
func (r *Recorder) Get(ctx context.Context, entryID string) (domain.LedgerEntry, error) {
	rec, err := r.records.Get(ctx, store.TableLedger, entryID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.LedgerEntry{}, fmt.Errorf("ledger entry %s: %w", entryID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}
	return fromRecord(rec), nil
}

// List returns matching entries in append order.
func (r *Recorder) List(ctx context.Context, f Filter) ([]domain.LedgerEntry, error) {
	q := store.Filter{}
	if f.From != "" {
		q["from"] = f.From
	}
	if f.To != "" {
		q["to"] = f.To
	}
	if f.Success != nil {
		q["success"] = *f.Success
	}
	var (
		recs []store.Record
		err  error
	)
	if f.User != "" && f.From == "" && f.To == "" {
		recs, err = r.queryUser(ctx, q, f.User)
	} else {
		recs, err = r.records.Query(ctx, store.TableLedger, q)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStore, err)
	}

	out := make([]domain.LedgerEntry, 0, len(recs))
	for _, rec := range recs {
		e := fromRecord(rec)
		if f.User != "" && e.From != f.User && e.To != f.User {
			continue
		}
		out = append(out, e)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out, nil
}

// queryUser runs one query per side so the store can filter on from and to,
// then merges both id-ordered results.
func (r *Recorder) queryUser(ctx context.Context, q store.Filter, user string) ([]store.Record, error) {
	sent, err := r.records.Query(ctx, store.TableLedger, with(q, "from", user))
	if err != nil {
		return nil, err
	}
	received, err := r.records.Query(ctx, store.TableLedger, with(q, "to", user))
	if err != nil {
		return nil, err
	}
	out := make([]store.Record, 0, len(sent)+len(received))
	i, j := 0, 0
	for i < len(sent) || j < len(received) {
		switch {
		case j == len(received) || (i < len(sent) && sent[i].ID < received[j].ID):
			out = append(out, sent[i])
			i++
		case i == len(sent) || received[j].ID < sent[i].ID:
			out = append(out, received[j])
			j++
		default: // from == to, seen on both sides
			out = append(out, sent[i])
			i++
			j++
		}
	}
	return out, nil
}

func with(q store.Filter, key string, value any) store.Filter {
	out := make(store.Filter, len(q)+1)
	for k, v := range q {
		out[k] = v
	}
	out[key] = value
	return out
}

func fromRecord(rec store.Record) domain.LedgerEntry {
	return domain.LedgerEntry{
		ID:        rec.ID,
		From:      rec.Fields.String("from"),
		To:        rec.Fields.String("to"),
		Amount:    rec.Fields.Int64("amount"),
		Note:      rec.Fields.String("note"),
		Success:   rec.Fields.Bool("success"),
		AdminNote: rec.Fields.StringPtr("admin_note"),
		Timestamp: rec.Fields.Int64("timestamp"),
	}
}
