package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"modernc.org/sqlite"
)

const (
	sqliteFullCode       = 13
	postgresDiskFullCode = "53100"
)

var sqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS kv_schema (version INTEGER NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS kv_records (
    collection TEXT NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    index_value TEXT,
    PRIMARY KEY (collection, key)
)`,
	`CREATE INDEX IF NOT EXISTS kv_records_index_value ON kv_records (collection, index_value)`,
}

// SQL stores collections in a single kv_records table. It works with any
// sqlx handle opened on the postgres (lib/pq) or sqlite (modernc) driver.
// Only one index per collection is supported by the table layout.
type SQL struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQL wraps an existing handle.
func NewSQL(db *sqlx.DB, logger *zap.Logger) *SQL {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQL{db: db, logger: logger}
}

// Open creates the tables when missing and verifies the schema version.
func (s *SQL) Open(ctx context.Context) error {
	for _, stmt := range sqlSchema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create kv schema: %w", err)
		}
	}
	var version int
	err := s.db.GetContext(ctx, &version, `SELECT version FROM kv_schema LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.ExecContext(ctx, s.db.Rebind(`INSERT INTO kv_schema (version) VALUES (?)`), SchemaVersion); err != nil {
			return fmt.Errorf("store schema version: %w", err)
		}
		s.logger.Info("kvstore opened", zap.String("driver", s.db.DriverName()), zap.Int("schema_version", SchemaVersion))
		return nil
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	upgrade, err := checkSchemaVersion(version)
	if err != nil || !upgrade {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE kv_schema SET version = ?`), SchemaVersion); err != nil {
		return fmt.Errorf("upgrade schema version: %w", err)
	}
	s.logger.Info("kvstore schema upgraded", zap.String("driver", s.db.DriverName()), zap.Int("from", version), zap.Int("to", SchemaVersion))
	return nil
}

type kvRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

func rowsToRecords(rows []kvRow) []Record {
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = Record{Key: row.Key, Value: []byte(row.Value)}
	}
	return out
}

// GetAll returns every record of the collection ordered by key.
func (s *SQL) GetAll(ctx context.Context, collection string) ([]Record, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	var rows []kvRow
	query := s.db.Rebind(`SELECT key, value FROM kv_records WHERE collection = ? ORDER BY key`)
	if err := s.db.SelectContext(ctx, &rows, query, collection); err != nil {
		return nil, fmt.Errorf("get all %s: %w", collection, err)
	}
	return rowsToRecords(rows), nil
}

// Get fetches one record.
func (s *SQL) Get(ctx context.Context, collection, key string) (Record, bool, error) {
	return sqlGet(ctx, s.db, collection, key)
}

// ByIndex reads records through the index_value column.
func (s *SQL) ByIndex(ctx context.Context, index Index, value string) ([]Record, error) {
	if err := validIndex(index); err != nil {
		return nil, err
	}
	var rows []kvRow
	query := s.db.Rebind(`SELECT key, value FROM kv_records WHERE collection = ? AND index_value = ? ORDER BY key`)
	if err := s.db.SelectContext(ctx, &rows, query, index.Collection, value); err != nil {
		return nil, fmt.Errorf("index %s: %w", index.Name, err)
	}
	return rowsToRecords(rows), nil
}

// Put upserts one record.
func (s *SQL) Put(ctx context.Context, collection, key string, value []byte) error {
	return mapSQLError(sqlPut(ctx, s.db, collection, key, value))
}

// Delete removes one record.
func (s *SQL) Delete(ctx context.Context, collection, key string) error {
	return sqlDelete(ctx, s.db, collection, key)
}

// Clear drops every record of the collection.
func (s *SQL) Clear(ctx context.Context, collection string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM kv_records WHERE collection = ?`), collection); err != nil {
		return fmt.Errorf("clear %s: %w", collection, err)
	}
	return nil
}

// Update runs fn inside a database transaction.
func (s *SQL) Update(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin kv transaction: %w", err)
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&sqlTx{ctx: ctx, tx: tx}); err != nil {
		return mapSQLError(err)
	}
	if err := tx.Commit(); err != nil {
		return mapSQLError(fmt.Errorf("commit kv transaction: %w", err))
	}
	commit = true
	return nil
}

// Close closes the handle.
func (s *SQL) Close() error {
	return s.db.Close()
}

type sqlExecer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

type sqlTx struct {
	ctx context.Context
	tx  *sqlx.Tx
}

func (t *sqlTx) Get(collection, key string) (Record, bool, error) {
	return sqlGet(t.ctx, t.tx, collection, key)
}

func (t *sqlTx) Put(collection, key string, value []byte) error {
	return sqlPut(t.ctx, t.tx, collection, key, value)
}

func (t *sqlTx) Delete(collection, key string) error {
	return sqlDelete(t.ctx, t.tx, collection, key)
}

func sqlGet(ctx context.Context, db sqlExecer, collection, key string) (Record, bool, error) {
	if err := validCollection(collection); err != nil {
		return Record{}, false, err
	}
	var row kvRow
	query := db.Rebind(`SELECT key, value FROM kv_records WHERE collection = ? AND key = ?`)
	if err := db.GetContext(ctx, &row, query, collection, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, fmt.Errorf("get %s/%s: %w", collection, key, err)
	}
	return Record{Key: row.Key, Value: []byte(row.Value)}, true, nil
}

func sqlPut(ctx context.Context, db sqlExecer, collection, key string, value []byte) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("put %s: %w", collection, ErrEmptyKey)
	}
	var indexed sql.NullString
	for _, idx := range indexesFor(collection) {
		if v, ok := indexValue(idx, value); ok {
			indexed = sql.NullString{String: v, Valid: true}
		}
	}
	query := db.Rebind(`INSERT INTO kv_records (collection, key, value, index_value) VALUES (?, ?, ?, ?)
ON CONFLICT (collection, key) DO UPDATE SET value = excluded.value, index_value = excluded.index_value`)
	if _, err := db.ExecContext(ctx, query, collection, key, string(value), indexed); err != nil {
		return fmt.Errorf("put %s/%s: %w", collection, key, err)
	}
	return nil
}

func sqlDelete(ctx context.Context, db sqlExecer, collection, key string) error {
	if err := validCollection(collection); err != nil {
		return err
	}
	query := db.Rebind(`DELETE FROM kv_records WHERE collection = ? AND key = ?`)
	if _, err := db.ExecContext(ctx, query, collection, key); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, key, err)
	}
	return nil
}

// mapSQLError turns driver "disk full" errors into ErrQuotaExceeded.
func mapSQLError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == postgresDiskFullCode {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code()&0xff == sqliteFullCode {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	if strings.Contains(err.Error(), "database or disk is full") {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}
