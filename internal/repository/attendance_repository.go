package repository

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/hudoor/internal/models"
	"github.com/noah-isme/hudoor/pkg/kvstore"
)

// AttendanceRepository keeps every attendance record in memory keyed by
// "{date}-{studentId}" and writes each change through to the store.
type AttendanceRepository struct {
	notifier

	store  kvstore.Store
	logger *zap.Logger

	mu      sync.RWMutex
	records map[string]models.AttendanceRecord
}

// NewAttendanceRepository constructs the repository. Call Load before use.
func NewAttendanceRepository(store kvstore.Store, logger *zap.Logger) *AttendanceRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceRepository{
		store:   store,
		logger:  logger,
		records: make(map[string]models.AttendanceRecord),
	}
}

// Load reads the attendance collection once.
func (r *AttendanceRepository) Load(ctx context.Context) error {
	var list []models.AttendanceRecord
	if err := loadCollection(ctx, r.store, kvstore.CollectionAttendance, &list); err != nil {
		return err
	}
	records := make(map[string]models.AttendanceRecord, len(list))
	for _, rec := range list {
		records[rec.Key()] = rec
	}
	r.mu.Lock()
	r.records = records
	r.mu.Unlock()
	r.logger.Info("attendance loaded", zap.Int("records", len(records)))
	return nil
}

// Get returns the record stored for the student on date.
func (r *AttendanceRepository) Get(date, studentID string) (models.AttendanceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[models.AttendanceKey(date, studentID)]
	return rec, ok
}

// Save upserts a record. The in-memory map only changes after the store
// accepted the write.
func (r *AttendanceRepository) Save(ctx context.Context, rec models.AttendanceRecord) error {
	return r.SaveMany(ctx, []models.AttendanceRecord{rec})
}

// SaveMany upserts records in one store transaction.
func (r *AttendanceRepository) SaveMany(ctx context.Context, recs []models.AttendanceRecord) error {
	if len(recs) == 0 {
		return nil
	}
	r.mu.Lock()
	err := r.store.Update(ctx, func(tx kvstore.Tx) error {
		for _, rec := range recs {
			if err := kvstore.TxPutJSON(tx, kvstore.CollectionAttendance, rec.Key(), rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("save attendance: %w", err)
	}
	events := make([]ChangeEvent, len(recs))
	for i, rec := range recs {
		r.records[rec.Key()] = rec
		events[i] = ChangeEvent{Kind: ChangeAttendance, Op: OpUpdated, ID: rec.Key()}
	}
	r.mu.Unlock()

	r.publish(events...)
	return nil
}

// Scan calls fn for every record while holding the read lock. fn must not
// call back into the repository.
func (r *AttendanceRepository) Scan(fn func(models.AttendanceRecord)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rec := range r.records {
		fn(rec)
	}
}

// Count returns the number of stored records.
func (r *AttendanceRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// DeleteWhere removes every record for which match returns true in one
// transaction and returns how many were removed.
func (r *AttendanceRepository) DeleteWhere(ctx context.Context, match func(models.AttendanceRecord) bool) (int, error) {
	r.mu.Lock()
	var keys []string
	for key, rec := range r.records {
		if match(rec) {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		r.mu.Unlock()
		return 0, nil
	}
	err := r.store.Update(ctx, func(tx kvstore.Tx) error {
		for _, key := range keys {
			if err := tx.Delete(kvstore.CollectionAttendance, key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.mu.Unlock()
		return 0, fmt.Errorf("delete attendance: %w", err)
	}
	events := make([]ChangeEvent, len(keys))
	for i, key := range keys {
		delete(r.records, key)
		events[i] = ChangeEvent{Kind: ChangeAttendance, Op: OpDeleted, ID: key}
	}
	r.mu.Unlock()

	r.publish(events...)
	return len(keys), nil
}
