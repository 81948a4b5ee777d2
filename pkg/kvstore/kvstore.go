// Package kvstore provides durable named collections of JSON documents.
//
// A Store holds one sub-collection per entity type. Single operations are
// atomic within one collection; Update groups writes across collections
// into one transaction.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Collection names. Keep in sync with deployed data.
const (
	CollectionGrades     = "grades"
	CollectionClasses    = "classes"
	CollectionStudents   = "students"
	CollectionAttendance = "attendance"
	CollectionSettings   = "settings"
	CollectionAssets     = "assets"
	CollectionExports    = "exports"
)

// SchemaVersion is bumped whenever collections or indexes change.
// Version 2 added the exports collection.
const SchemaVersion = 2

// minUpgradableVersion is the oldest stored version Open upgrades in place.
// Upgrades from it only add collections, so no records are rewritten.
const minUpgradableVersion = 1

// Collections lists every collection created by Open.
var Collections = []string{
	CollectionGrades,
	CollectionClasses,
	CollectionStudents,
	CollectionAttendance,
	CollectionSettings,
	CollectionAssets,
	CollectionExports,
}

// Index describes a secondary index over a JSON field of a collection.
type Index struct {
	Name       string
	Collection string
	Field      string
}

// IndexStudentsByClass looks students up by their classId.
var IndexStudentsByClass = Index{Name: "students_by_class", Collection: CollectionStudents, Field: "classId"}

// Indexes lists the indexes defined at Open.
var Indexes = []Index{IndexStudentsByClass}

var (
	ErrUnknownCollection = errors.New("kvstore: unknown collection")
	ErrUnknownIndex      = errors.New("kvstore: unknown index")
	ErrQuotaExceeded     = errors.New("kvstore: storage quota exceeded")
	ErrSchemaVersion     = errors.New("kvstore: schema version mismatch")
	ErrNotOpen           = errors.New("kvstore: store not open")
	ErrEmptyKey          = errors.New("kvstore: empty key")
)

// Record is a stored document.
type Record struct {
	Key   string
	Value []byte
}

// Decode unmarshals the record value into dest.
func (r Record) Decode(dest interface{}) error {
	if err := json.Unmarshal(r.Value, dest); err != nil {
		return fmt.Errorf("decode %s: %w", r.Key, err)
	}
	return nil
}

// Tx is the write handle passed to Update.
type Tx interface {
	Get(collection, key string) (Record, bool, error)
	Put(collection, key string, value []byte) error
	Delete(collection, key string) error
}

// Store is the persistence port used by the repositories.
type Store interface {
	Open(ctx context.Context) error
	GetAll(ctx context.Context, collection string) ([]Record, error)
	Get(ctx context.Context, collection, key string) (Record, bool, error)
	ByIndex(ctx context.Context, index Index, value string) ([]Record, error)
	Put(ctx context.Context, collection, key string, value []byte) error
	Delete(ctx context.Context, collection, key string) error
	Clear(ctx context.Context, collection string) error
	Update(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// PutJSON marshals value and stores it under key.
func PutJSON(ctx context.Context, s Store, collection, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, key, err)
	}
	return s.Put(ctx, collection, key, payload)
}

// TxPutJSON is PutJSON inside a transaction.
func TxPutJSON(tx Tx, collection, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, key, err)
	}
	return tx.Put(collection, key, payload)
}

// GetJSON loads key into dest and reports whether it existed.
func GetJSON(ctx context.Context, s Store, collection, key string, dest interface{}) (bool, error) {
	rec, ok, err := s.Get(ctx, collection, key)
	if err != nil || !ok {
		return false, err
	}
	if err := rec.Decode(dest); err != nil {
		return false, err
	}
	return true, nil
}

// checkSchemaVersion reports whether a store written at stored must have its
// version rewritten before use.
func checkSchemaVersion(stored int) (upgrade bool, err error) {
	switch {
	case stored == SchemaVersion:
		return false, nil
	case stored >= minUpgradableVersion && stored < SchemaVersion:
		return true, nil
	default:
		return false, fmt.Errorf("%w: stored %d, want %d", ErrSchemaVersion, stored, SchemaVersion)
	}
}

func validCollection(name string) error {
	for _, c := range Collections {
		if c == name {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownCollection, name)
}

func validIndex(idx Index) error {
	for _, known := range Indexes {
		if known == idx {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownIndex, idx.Name)
}

func indexesFor(collection string) []Index {
	var out []Index
	for _, idx := range Indexes {
		if idx.Collection == collection {
			out = append(out, idx)
		}
	}
	return out
}

// indexValue extracts the string value of the indexed field. Non-string or
// missing fields are not indexed.
func indexValue(idx Index, value []byte) (string, bool) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(value, &doc); err != nil {
		return "", false
	}
	raw, ok := doc[idx.Field]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || s == "" {
		return "", false
	}
	return s, true
}

// OperationObserver receives timing for every store operation.
type OperationObserver interface {
	ObserveStoreOperation(op string, duration time.Duration, err error)
}

// Instrument wraps s so that each operation is reported to obs.
func Instrument(s Store, obs OperationObserver) Store {
	if obs == nil {
		return s
	}
	return &instrumented{next: s, obs: obs}
}

type instrumented struct {
	next Store
	obs  OperationObserver
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.obs.ObserveStoreOperation(op, time.Since(start), err)
}

func (i *instrumented) Open(ctx context.Context) error {
	start := time.Now()
	err := i.next.Open(ctx)
	i.observe("open", start, err)
	return err
}

func (i *instrumented) GetAll(ctx context.Context, collection string) ([]Record, error) {
	start := time.Now()
	recs, err := i.next.GetAll(ctx, collection)
	i.observe("get_all", start, err)
	return recs, err
}

func (i *instrumented) Get(ctx context.Context, collection, key string) (Record, bool, error) {
	start := time.Now()
	rec, ok, err := i.next.Get(ctx, collection, key)
	i.observe("get", start, err)
	return rec, ok, err
}

func (i *instrumented) ByIndex(ctx context.Context, index Index, value string) ([]Record, error) {
	start := time.Now()
	recs, err := i.next.ByIndex(ctx, index, value)
	i.observe("by_index", start, err)
	return recs, err
}

func (i *instrumented) Put(ctx context.Context, collection, key string, value []byte) error {
	start := time.Now()
	err := i.next.Put(ctx, collection, key, value)
	i.observe("put", start, err)
	return err
}

func (i *instrumented) Delete(ctx context.Context, collection, key string) error {
	start := time.Now()
	err := i.next.Delete(ctx, collection, key)
	i.observe("delete", start, err)
	return err
}

func (i *instrumented) Clear(ctx context.Context, collection string) error {
	start := time.Now()
	err := i.next.Clear(ctx, collection)
	i.observe("clear", start, err)
	return err
}

func (i *instrumented) Update(ctx context.Context, fn func(tx Tx) error) error {
	start := time.Now()
	err := i.next.Update(ctx, fn)
	i.observe("update", start, err)
	return err
}

func (i *instrumented) Close() error {
	return i.next.Close()
}
