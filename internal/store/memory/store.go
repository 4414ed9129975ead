package memory

import (
	"context" // Request-scoped context
	"sort"    // Ordering query results
	"sync"    // Concurrency primitives

	"banker_api/internal/id"    // Record ids
	"banker_api/internal/store" // RecordStore contract
)

// Store is an in-memory implementation of store.RecordStore.
// It is safe for concurrent use; every Update is an atomic compare-and-set.
type Store struct {
	mu     sync.RWMutex                       // protects tables and keys
	tables map[string]map[string]store.Record // table -> id -> record
	keys   map[string]map[string]string       // table -> key -> id
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		tables: make(map[string]map[string]store.Record),
		keys:   make(map[string]map[string]string),
	}
}

// Query returns copies of the matching records ordered by id.
func (s *Store) Query(ctx context.Context, table string, filter store.Filter) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()         // lock for reading
	defer s.mu.RUnlock() // unlock automatically when function exits

	var out []store.Record
	for _, rec := range s.tables[table] {
		if rec.Fields.Matches(filter) {
			out = append(out, copyRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get returns one record by id.
func (s *Store) Get(ctx context.Context, table, recordID string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tables[table][recordID]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return copyRecord(rec), nil
}

// Create stores fields under a freshly assigned id with version 1.
func (s *Store) Create(ctx context.Context, table string, fields store.Fields) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	s.mu.Lock()         // lock to prevent concurrent writes
	defer s.mu.Unlock() // unlock automatically when function exits
	return s.insert(table, fields), nil
}

// CreateUnique stores fields under key unless another record holds it.
func (s *Store) CreateUnique(ctx context.Context, table, key string, fields store.Fields) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.keys[table][key]; taken {
		return store.Record{}, store.ErrExists
	}
	rec := s.insert(table, fields)
	if s.keys[table] == nil {
		s.keys[table] = make(map[string]string)
	}
	s.keys[table][key] = rec.ID
	return rec, nil
}

// Lookup returns the record holding key.
func (s *Store) Lookup(ctx context.Context, table, key string) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	recordID, ok := s.keys[table][key]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	return copyRecord(s.tables[table][recordID]), nil
}

// Update merges fields when the stored version equals expected.
func (s *Store) Update(ctx context.Context, table, recordID string, fields store.Fields, expected store.Version) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tables[table][recordID]
	if !ok {
		return store.Record{}, store.ErrNotFound
	}
	if rec.Version != expected {
		return store.Record{}, store.ErrConflict
	}
	merged := rec.Fields.Clone()
	for k, v := range fields {
		merged[k] = v
	}
	rec = store.Record{ID: rec.ID, Version: rec.Version + 1, Fields: merged}
	s.tables[table][recordID] = rec
	return copyRecord(rec), nil
}

// Len returns the number of records in table.
func (s *Store) Len(table string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tables[table])
}

// insert adds a record; callers hold mu.
func (s *Store) insert(table string, fields store.Fields) store.Record {
	rows, ok := s.tables[table]
	if !ok {
		rows = make(map[string]store.Record)
		s.tables[table] = rows
	}
	rec := store.Record{ID: id.New(), Version: 1, Fields: fields.Clone()}
	rows[rec.ID] = rec
	return copyRecord(rec)
}

func copyRecord(rec store.Record) store.Record {
	return store.Record{ID: rec.ID, Version: rec.Version, Fields: rec.Fields.Clone()}
}

// Compile-time check: ensure Store implements RecordStore
var _ store.RecordStore = (*Store)(nil)
