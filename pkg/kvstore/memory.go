package kvstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is a map-backed Store. MaxBytes, when positive, caps the total size
// of stored values and makes writes beyond it fail with ErrQuotaExceeded.
type Memory struct {
	MaxBytes int

	mu     sync.RWMutex
	opened bool
	data   map[string]map[string][]byte
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Open creates the collections. Calling it again keeps existing data.
func (m *Memory) Open(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string]map[string][]byte, len(Collections))
	}
	for _, c := range Collections {
		if _, ok := m.data[c]; !ok {
			m.data[c] = make(map[string][]byte)
		}
	}
	m.opened = true
	return nil
}

func (m *Memory) collection(name string) (map[string][]byte, error) {
	if !m.opened {
		return nil, ErrNotOpen
	}
	if err := validCollection(name); err != nil {
		return nil, err
	}
	return m.data[name], nil
}

// GetAll returns every record of the collection ordered by key.
func (m *Memory) GetAll(_ context.Context, collection string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, err := m.collection(collection)
	if err != nil {
		return nil, err
	}
	return sortedRecords(coll, nil), nil
}

// Get returns a single record.
func (m *Memory) Get(_ context.Context, collection, key string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, err := m.collection(collection)
	if err != nil {
		return Record{}, false, err
	}
	v, ok := coll[key]
	if !ok {
		return Record{}, false, nil
	}
	return Record{Key: key, Value: clone(v)}, true, nil
}

// ByIndex scans the indexed collection for matching records.
func (m *Memory) ByIndex(_ context.Context, index Index, value string) ([]Record, error) {
	if err := validIndex(index); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll, err := m.collection(index.Collection)
	if err != nil {
		return nil, err
	}
	return sortedRecords(coll, func(v []byte) bool {
		got, ok := indexValue(index, v)
		return ok && got == value
	}), nil
}

// Put stores value under key.
func (m *Memory) Put(ctx context.Context, collection, key string, value []byte) error {
	return m.Update(ctx, func(tx Tx) error { return tx.Put(collection, key, value) })
}

// Delete removes key; missing keys are ignored.
func (m *Memory) Delete(ctx context.Context, collection, key string) error {
	return m.Update(ctx, func(tx Tx) error { return tx.Delete(collection, key) })
}

// Clear drops every record of the collection.
func (m *Memory) Clear(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.collection(collection); err != nil {
		return err
	}
	m.data[collection] = make(map[string][]byte)
	return nil
}

// Update stages writes and applies them only when fn succeeds and the
// result fits into MaxBytes.
func (m *Memory) Update(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opened {
		return ErrNotOpen
	}
	tx := &memoryTx{store: m, pending: make(map[string]map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	if m.MaxBytes > 0 && tx.sizeAfter() > m.MaxBytes {
		return ErrQuotaExceeded
	}
	for coll, writes := range tx.pending {
		for key, v := range writes {
			if v == nil {
				delete(m.data[coll], key)
				continue
			}
			m.data[coll][key] = v
		}
	}
	return nil
}

// Close is a no-op kept for interface parity.
func (m *Memory) Close() error {
	return nil
}

// Size reports the total byte size of stored values.
func (m *Memory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, coll := range m.data {
		for _, v := range coll {
			total += len(v)
		}
	}
	return total
}

type memoryTx struct {
	store   *Memory
	pending map[string]map[string][]byte
}

func (t *memoryTx) Get(collection, key string) (Record, bool, error) {
	coll, err := t.store.collection(collection)
	if err != nil {
		return Record{}, false, err
	}
	if writes, ok := t.pending[collection]; ok {
		if v, staged := writes[key]; staged {
			if v == nil {
				return Record{}, false, nil
			}
			return Record{Key: key, Value: clone(v)}, true, nil
		}
	}
	v, ok := coll[key]
	if !ok {
		return Record{}, false, nil
	}
	return Record{Key: key, Value: clone(v)}, true, nil
}

func (t *memoryTx) Put(collection, key string, value []byte) error {
	if _, err := t.store.collection(collection); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("put %s: %w", collection, ErrEmptyKey)
	}
	if value == nil {
		value = []byte{}
	}
	t.stage(collection)[key] = clone(value)
	return nil
}

func (t *memoryTx) Delete(collection, key string) error {
	if _, err := t.store.collection(collection); err != nil {
		return err
	}
	t.stage(collection)[key] = nil
	return nil
}

func (t *memoryTx) stage(collection string) map[string][]byte {
	writes, ok := t.pending[collection]
	if !ok {
		writes = make(map[string][]byte)
		t.pending[collection] = writes
	}
	return writes
}

func (t *memoryTx) sizeAfter() int {
	total := 0
	for coll, records := range t.store.data {
		writes := t.pending[coll]
		for key, v := range records {
			if _, staged := writes[key]; staged {
				continue
			}
			total += len(v)
		}
		for _, v := range writes {
			total += len(v)
		}
	}
	return total
}

func sortedRecords(coll map[string][]byte, keep func([]byte) bool) []Record {
	out := make([]Record, 0, len(coll))
	for k, v := range coll {
		if keep != nil && !keep(v) {
			continue
		}
		out = append(out, Record{Key: k, Value: clone(v)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func clone(v []byte) []byte {
	if v == nil {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}
