// Package sqlstore implements store.RecordStore on a single gorm table.
// Every logical table is a partition of the records table; fields are kept
// as a JSON document, the version column carries the CAS token and the
// (tbl, record_key) unique index backs CreateUnique.
package sqlstore

import (
	"bytes"         // JSON decoding
	"context"       // Request-scoped context
	"encoding/json" // Field documents
	"errors"        // Error matching
	"fmt"           // Error wrapping
	"regexp"        // Field name check

	"gorm.io/gorm" // GORM ORM library

	"banker_api/internal/id"    // Record ids
	"banker_api/internal/store" // RecordStore contract
)

// recordRow maps to the records table
type recordRow struct {
	ID        string  `gorm:"primaryKey;size:26"`                                                // ULID
	Tbl       string  `gorm:"size:32;not null;index;uniqueIndex:idx_records_tbl_key,priority:1"` // Logical table
	RecordKey *string `gorm:"size:191;uniqueIndex:idx_records_tbl_key,priority:2"`               // Unique key within Tbl, NULL when unkeyed
	Version   int64   `gorm:"not null"`                                                          // CAS token
	Data      string  `gorm:"type:text;not null"`                                                // JSON encoded fields
	CreatedAt int64   `gorm:"autoCreateTime:milli"`                                              // Timestamp of creation in milliseconds
	UpdatedAt int64   `gorm:"autoUpdateTime:milli"`                                              // Timestamp of last write in milliseconds
}

func (*recordRow) TableName() string {
	return "records"
}

// fieldName limits which filter keys are turned into JSON paths.
var fieldName = regexp.MustCompile(`^[a-z_]+$`)

// Store is a gorm backed RecordStore.
type Store struct {
	db      *gorm.DB
	extract string // SQL expression reading one string field out of data
}

// New wraps db. Call Migrate once before use.
func New(db *gorm.DB) *Store {
	extract := "json_extract(data, ?)" // SQLite returns JSON strings as text
	if db.Dialector.Name() == "mysql" {
		extract = "JSON_UNQUOTE(JSON_EXTRACT(data, ?))"
	}
	return &Store{db: db, extract: extract}
}

// Migrate creates or updates the records table.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&recordRow{})
}

// Query returns the rows of table matching filter, ordered by id. String
// values are matched in SQL; every value is checked again after decoding.
func (s *Store) Query(ctx context.Context, table string, filter store.Filter) ([]store.Record, error) {
	var rows []recordRow
	q := s.db.WithContext(ctx).Where("tbl = ?", table)
	for k, v := range filter {
		str, ok := v.(string)
		if !ok || !fieldName.MatchString(k) {
			continue
		}
		q = q.Where(s.extract+" = ?", "$."+k, str)
	}
	if err := q.Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlstore: query %s: %w", table, err)
	}
	out := make([]store.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, err
		}
		if rec.Fields.Matches(filter) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Get returns one record by id.
func (s *Store) Get(ctx context.Context, table, recordID string) (store.Record, error) {
	row, err := s.load(ctx, table, recordID)
	if err != nil {
		return store.Record{}, err
	}
	return row.record()
}

// Create inserts a new row with version 1.
func (s *Store) Create(ctx context.Context, table string, fields store.Fields) (store.Record, error) {
	return s.insert(ctx, table, nil, fields)
}

// CreateUnique inserts a row holding key. The unique index decides races
// between processes sharing the database.
func (s *Store) CreateUnique(ctx context.Context, table, key string, fields store.Fields) (store.Record, error) {
	rec, err := s.insert(ctx, table, &key, fields)
	if err == nil {
		return rec, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return store.Record{}, store.ErrExists
	}
	// Not every driver translates constraint errors.
	if _, lerr := s.Lookup(ctx, table, key); lerr == nil {
		return store.Record{}, store.ErrExists
	}
	return store.Record{}, err
}

// Lookup returns the row holding key.
func (s *Store) Lookup(ctx context.Context, table, key string) (store.Record, error) {
	var row recordRow
	err := s.db.WithContext(ctx).Where("tbl = ? AND record_key = ?", table, key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Record{}, store.ErrNotFound
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("sqlstore: lookup %s/%s: %w", table, key, err)
	}
	return row.record()
}

func (s *Store) insert(ctx context.Context, table string, key *string, fields store.Fields) (store.Record, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return store.Record{}, fmt.Errorf("sqlstore: encode %s: %w", table, err)
	}
	row := recordRow{ID: id.New(), Tbl: table, RecordKey: key, Version: 1, Data: string(data)}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return store.Record{}, fmt.Errorf("sqlstore: create %s: %w", table, err)
	}
	return row.record()
}

// Update merges fields into the row and bumps its version, but only while the
// stored version still equals expected.
func (s *Store) Update(ctx context.Context, table, recordID string, fields store.Fields, expected store.Version) (store.Record, error) {
	row, err := s.load(ctx, table, recordID)
	if err != nil {
		return store.Record{}, err
	}
	if row.Version != expected {
		return store.Record{}, store.ErrConflict
	}
	current, err := row.record()
	if err != nil {
		return store.Record{}, err
	}
	for k, v := range fields {
		current.Fields[k] = v
	}
	data, err := json.Marshal(current.Fields)
	if err != nil {
		return store.Record{}, fmt.Errorf("sqlstore: encode %s: %w", table, err)
	}

	// The WHERE on version is what makes this a compare-and-set.
	res := s.db.WithContext(ctx).Model(&recordRow{}).
		Where("id = ? AND tbl = ? AND version = ?", recordID, table, expected).
		Updates(map[string]any{"data": string(data), "version": expected + 1})
	if res.Error != nil {
		return store.Record{}, fmt.Errorf("sqlstore: update %s/%s: %w", table, recordID, res.Error)
	}
	if res.RowsAffected == 0 {
		return store.Record{}, store.ErrConflict
	}
	return store.Record{ID: recordID, Version: expected + 1, Fields: current.Fields}, nil
}

func (s *Store) load(ctx context.Context, table, recordID string) (recordRow, error) {
	var row recordRow
	err := s.db.WithContext(ctx).Where("id = ? AND tbl = ?", recordID, table).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return recordRow{}, store.ErrNotFound
	}
	if err != nil {
		return recordRow{}, fmt.Errorf("sqlstore: get %s/%s: %w", table, recordID, err)
	}
	return row, nil
}

func (r recordRow) record() (store.Record, error) {
	fields := store.Fields{}
	dec := json.NewDecoder(bytes.NewReader([]byte(r.Data)))
	dec.UseNumber() // keep integers exact
	if err := dec.Decode(&fields); err != nil {
		return store.Record{}, fmt.Errorf("sqlstore: decode %s/%s: %w", r.Tbl, r.ID, err)
	}
	return store.Record{ID: r.ID, Version: r.Version, Fields: fields}, nil
}

var _ store.RecordStore = (*Store)(nil)
