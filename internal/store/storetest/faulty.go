// Package storetest provides RecordStore wrappers for exercising failure paths.
package storetest

import (
	"context"     // Request-scoped context
	"sync"        // Hook guard
	"sync/atomic" // Call counters

	"banker_api/internal/store" // RecordStore contract
)

// Hook may return an error to fail the call before it reaches the wrapped store.
type Hook func(table, id string, fields store.Fields) error

// Faulty wraps a RecordStore, counting calls and running optional hooks.
type Faulty struct {
	store.RecordStore

	mu           sync.Mutex
	beforeCreate Hook
	beforeUpdate Hook
	afterRead    func(table string)

	Creates atomic.Int64
	Updates atomic.Int64
}

// Wrap returns a Faulty around inner.
func Wrap(inner store.RecordStore) *Faulty {
	return &Faulty{RecordStore: inner}
}

// OnCreate installs a hook run before every Create.
func (f *Faulty) OnCreate(h Hook) {
	f.mu.Lock()
	f.beforeCreate = h
	f.mu.Unlock()
}

// OnUpdate installs a hook run before every Update.
func (f *Faulty) OnUpdate(h Hook) {
	f.mu.Lock()
	f.beforeUpdate = h
	f.mu.Unlock()
}

// AfterRead installs a callback run after every successful Query or Get.
func (f *Faulty) AfterRead(fn func(table string)) {
	f.mu.Lock()
	f.afterRead = fn
	f.mu.Unlock()
}

func (f *Faulty) Query(ctx context.Context, table string, filter store.Filter) ([]store.Record, error) {
	recs, err := f.RecordStore.Query(ctx, table, filter)
	if err == nil {
		f.read(table)
	}
	return recs, err
}

func (f *Faulty) Get(ctx context.Context, table, id string) (store.Record, error) {
	rec, err := f.RecordStore.Get(ctx, table, id)
	if err == nil {
		f.read(table)
	}
	return rec, err
}

func (f *Faulty) Create(ctx context.Context, table string, fields store.Fields) (store.Record, error) {
	f.mu.Lock()
	h := f.beforeCreate
	f.mu.Unlock()
	if h != nil {
		if err := h(table, "", fields); err != nil {
			return store.Record{}, err
		}
	}
	f.Creates.Add(1)
	return f.RecordStore.Create(ctx, table, fields)
}

func (f *Faulty) Lookup(ctx context.Context, table, key string) (store.Record, error) {
	rec, err := f.RecordStore.Lookup(ctx, table, key)
	if err == nil {
		f.read(table)
	}
	return rec, err
}

func (f *Faulty) CreateUnique(ctx context.Context, table, key string, fields store.Fields) (store.Record, error) {
	f.mu.Lock()
	h := f.beforeCreate
	f.mu.Unlock()
	if h != nil {
		if err := h(table, "", fields); err != nil {
			return store.Record{}, err
		}
	}
	f.Creates.Add(1)
	return f.RecordStore.CreateUnique(ctx, table, key, fields)
}

func (f *Faulty) Update(ctx context.Context, table, id string, fields store.Fields, expected store.Version) (store.Record, error) {
	f.mu.Lock()
	h := f.beforeUpdate
	f.mu.Unlock()
	if h != nil {
		if err := h(table, id, fields); err != nil {
			return store.Record{}, err
		}
	}
	f.Updates.Add(1)
	return f.RecordStore.Update(ctx, table, id, fields, expected)
}

func (f *Faulty) read(table string) {
	f.mu.Lock()
	fn := f.afterRead
	f.mu.Unlock()
	if fn != nil {
		fn(table)
	}
}

var _ store.RecordStore = (*Faulty)(nil)
