package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

const (
	badgerSchemaKey   = "meta/schema_version"
	badgerIndexPrefix = "idx/"
)

// BadgerOptions configures the embedded store.
type BadgerOptions struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	Logger   *zap.Logger
}

// Badger stores collections in an embedded Badger database. Records live
// under "<collection>/<key>" and index entries under
// "idx/<index>/<value>/<key>".
type Badger struct {
	opts BadgerOptions

	mu sync.Mutex
	db *badger.DB
}

// NewBadger returns an unopened Badger store.
func NewBadger(opts BadgerOptions) *Badger {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Badger{opts: opts}
}

// Open opens the database directory and checks the schema version. Calling
// it on an open store is a no-op.
func (b *Badger) Open(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db != nil {
		return nil
	}
	opts := badger.DefaultOptions(b.opts.Dir).WithLogger(nil)
	if b.opts.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return fmt.Errorf("open badger %s: %w", b.opts.Dir, err)
	}
	if err := ensureBadgerSchema(db, b.opts.Logger); err != nil {
		_ = db.Close()
		return err
	}
	b.db = db
	b.opts.Logger.Info("kvstore opened", zap.String("driver", "badger"), zap.String("dir", b.opts.Dir), zap.Bool("in_memory", b.opts.InMemory))
	return nil
}

func ensureBadgerSchema(db *badger.DB, logger *zap.Logger) error {
	return db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerSchemaKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return txn.Set([]byte(badgerSchemaKey), []byte(strconv.Itoa(SchemaVersion)))
		}
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read schema version: %w", err)
		}
		version, err := strconv.Atoi(string(raw))
		if err != nil {
			return fmt.Errorf("%w: stored %q, want %d", ErrSchemaVersion, raw, SchemaVersion)
		}
		upgrade, err := checkSchemaVersion(version)
		if err != nil || !upgrade {
			return err
		}
		logger.Info("kvstore schema upgraded", zap.String("driver", "badger"), zap.Int("from", version), zap.Int("to", SchemaVersion))
		return txn.Set([]byte(badgerSchemaKey), []byte(strconv.Itoa(SchemaVersion)))
	})
}

func (b *Badger) handle() (*badger.DB, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil, ErrNotOpen
	}
	return b.db, nil
}

// GetAll iterates the collection prefix in key order.
func (b *Badger) GetAll(_ context.Context, collection string) ([]Record, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	db, err := b.handle()
	if err != nil {
		return nil, err
	}
	prefix := []byte(collection + "/")
	records := make([]Record, 0)
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			key := strings.TrimPrefix(string(item.Key()), string(prefix))
			records = append(records, Record{Key: key, Value: value})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger get all %s: %w", collection, err)
	}
	return records, nil
}

// Get fetches one record.
func (b *Badger) Get(_ context.Context, collection, key string) (Record, bool, error) {
	db, err := b.handle()
	if err != nil {
		return Record{}, false, err
	}
	var (
		rec Record
		ok  bool
	)
	err = db.View(func(txn *badger.Txn) error {
		var getErr error
		rec, ok, getErr = (&badgerTx{txn: txn}).Get(collection, key)
		return getErr
	})
	return rec, ok, err
}

// ByIndex resolves index entries and loads the referenced records.
func (b *Badger) ByIndex(_ context.Context, index Index, value string) ([]Record, error) {
	if err := validIndex(index); err != nil {
		return nil, err
	}
	db, err := b.handle()
	if err != nil {
		return nil, err
	}
	prefix := []byte(indexPrefix(index, value))
	records := make([]Record, 0)
	err = db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := strings.TrimPrefix(string(it.Item().Key()), string(prefix))
			rec, ok, err := (&badgerTx{txn: txn}).Get(index.Collection, key)
			if err != nil {
				return err
			}
			if ok {
				records = append(records, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger index %s: %w", index.Name, err)
	}
	return records, nil
}

// Put writes one record.
func (b *Badger) Put(ctx context.Context, collection, key string, value []byte) error {
	return b.Update(ctx, func(tx Tx) error { return tx.Put(collection, key, value) })
}

// Delete removes one record.
func (b *Badger) Delete(ctx context.Context, collection, key string) error {
	return b.Update(ctx, func(tx Tx) error { return tx.Delete(collection, key) })
}

// Clear drops the collection and its index entries.
func (b *Badger) Clear(_ context.Context, collection string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	db, err := b.handle()
	if err != nil {
		return err
	}
	prefixes := [][]byte{[]byte(collection + "/")}
	for _, idx := range indexesFor(collection) {
		prefixes = append(prefixes, []byte(badgerIndexPrefix+idx.Name+"/"))
	}
	if err := db.DropPrefix(prefixes...); err != nil {
		return fmt.Errorf("badger clear %s: %w", collection, err)
	}
	return nil
}

// Update runs fn in a single read-write transaction.
func (b *Badger) Update(_ context.Context, fn func(tx Tx) error) error {
	db, err := b.handle()
	if err != nil {
		return err
	}
	err = db.Update(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

// Close releases the database.
func (b *Badger) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}

type badgerTx struct {
	txn *badger.Txn
}

func (t *badgerTx) Get(collection, key string) (Record, bool, error) {
	if err := validCollection(collection); err != nil {
		return Record{}, false, err
	}
	item, err := t.txn.Get([]byte(collection + "/" + key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("badger get %s/%s: %w", collection, key, err)
	}
	value, err := item.ValueCopy(nil)
	if err != nil {
		return Record{}, false, fmt.Errorf("badger read %s/%s: %w", collection, key, err)
	}
	return Record{Key: key, Value: value}, true, nil
}

func (t *badgerTx) Put(collection, key string, value []byte) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("put %s: %w", collection, ErrEmptyKey)
	}
	if err := t.dropIndexEntries(collection, key); err != nil {
		return err
	}
	if err := t.txn.Set([]byte(collection+"/"+key), value); err != nil {
		return err
	}
	for _, idx := range indexesFor(collection) {
		if v, ok := indexValue(idx, value); ok {
			if err := t.txn.Set([]byte(indexPrefix(idx, v)+key), nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *badgerTx) Delete(collection, key string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	if err := t.dropIndexEntries(collection, key); err != nil {
		return err
	}
	return t.txn.Delete([]byte(collection + "/" + key))
}

func (t *badgerTx) dropIndexEntries(collection, key string) error {
	indexes := indexesFor(collection)
	if len(indexes) == 0 {
		return nil
	}
	prev, ok, err := t.Get(collection, key)
	if err != nil || !ok {
		return err
	}
	for _, idx := range indexes {
		if v, ok := indexValue(idx, prev.Value); ok {
			if err := t.txn.Delete([]byte(indexPrefix(idx, v) + key)); err != nil {
				return err
			}
		}
	}
	return nil
}

func indexPrefix(idx Index, value string) string {
	return badgerIndexPrefix + idx.Name + "/" + value + "/"
}
