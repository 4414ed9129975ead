// Package store defines the keyed-record persistence the accounting core
// depends on. Implementations live in the memory and sqlstore subpackages.
package store

import (
	"context"       // Request-scoped context
	"encoding/json" // JSON number handling
	"errors"        // Sentinel errors
	"fmt"           // Value formatting
	"strconv"       // Numeric coercion
)

// Tables used by the core. Each is owned by exactly one component.
const (
	TableAccounts = "accounts"
	TableLedger   = "ledger"
	TableInvoices = "invoices"
	TableApps     = "apps"
)

var (
	// ErrNotFound is returned by Get and Update when no record has the id.
	ErrNotFound = errors.New("store: record not found")
	// ErrConflict is returned by Update when the stored version moved on.
	ErrConflict = errors.New("store: version conflict")
	// ErrExists is returned by CreateUnique when the key is already taken.
	ErrExists = errors.New("store: key already exists")
)

// Version is the optimistic-concurrency token of a record. It starts at 1
// and is bumped by every successful Update.
type Version = int64

// Fields holds the column values of a record.
type Fields map[string]any

// Filter matches records whose fields equal every given value.
type Filter map[string]any

// Record is a single stored row.
type Record struct {
	ID      string  `json:"id"`
	Version Version `json:"version"`
	Fields  Fields  `json:"fields"`
}

// RecordStore is generic keyed-record persistence with a conditional update.
type RecordStore interface {
	// Query returns the records of table matching filter, ordered by id.
	Query(ctx context.Context, table string, filter Filter) ([]Record, error)
	// Get returns one record by id or ErrNotFound.
	Get(ctx context.Context, table, id string) (Record, error)
	// Create stores a new record, assigning its id and version 1.
	Create(ctx context.Context, table string, fields Fields) (Record, error)
	// CreateUnique is Create for a record addressed by key. At most one record
	// per table holds a key; a second create yields ErrExists.
	CreateUnique(ctx context.Context, table, key string, fields Fields) (Record, error)
	// Lookup returns the record holding key or ErrNotFound.
	Lookup(ctx context.Context, table, key string) (Record, error)
	// Update merges fields into the record if its version equals expected.
	Update(ctx context.Context, table, id string, fields Fields, expected Version) (Record, error)
}

// Matches reports whether f satisfies filter.
func (f Fields) Matches(filter Filter) bool {
	for k, want := range filter {
		got, ok := f[k]
		if !ok || !equal(got, want) {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// String returns the string stored under key, or "".
func (f Fields) String(key string) string {
	switch v := f[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int64 returns the integer stored under key. JSON round-trips may have
// turned it into a float64 or json.Number.
func (f Fields) Int64(key string) int64 {
	switch v := f[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// Bool returns the boolean stored under key.
func (f Fields) Bool(key string) bool {
	v, _ := f[key].(bool)
	return v
}

// StringPtr returns nil when key is absent or null.
func (f Fields) StringPtr(key string) *string {
	v, ok := f[key].(string)
	if !ok {
		return nil
	}
	return &v
}

// Strings returns the string list stored under key.
func (f Fields) Strings(key string) []string {
	switch v := f[key].(type) {
	case []string:
		return append([]string(nil), v...)
	case []any:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, fmt.Sprint(s))
		}
		return out
	}
	return nil
}

func equal(got, want any) bool {
	switch w := want.(type) {
	case string:
		g, ok := got.(string)
		return ok && g == w
	case bool:
		g, ok := got.(bool)
		return ok && g == w
	case int, int32, int64, float64, json.Number:
		// Numbers may differ in representation after a JSON round-trip.
		return Fields{"v": got}.Int64("v") == Fields{"v": want}.Int64("v")
	}
	return fmt.Sprint(got) == fmt.Sprint(want)
}
