package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/hudoor/pkg/config"
	"github.com/noah-isme/hudoor/pkg/kvstore"
)

// NewStore opens the key-value backend selected by STORE_DRIVER. The store
// still needs Open before use.
func NewStore(cfg *config.Config, logger *zap.Logger) (kvstore.Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Store.Driver {
	case config.StoreBadger, "":
		if err := os.MkdirAll(cfg.Store.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		return kvstore.NewBadger(kvstore.BadgerOptions{Dir: cfg.Store.Path, Logger: logger}), nil
	case config.StoreSQLite:
		db, err := NewSQLite(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		return kvstore.NewSQL(db, logger), nil
	case config.StorePostgres:
		db, err := NewPostgres(cfg.Database)
		if err != nil {
			return nil, err
		}
		return kvstore.NewSQL(db, logger), nil
	case config.StoreMemory:
		logger.Warn("memory store selected, data is lost on exit")
		return kvstore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// NewSQLite opens a sqlite file database with the pure Go modernc driver.
func NewSQLite(path string) (*sqlx.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewPostgres returns a configured PostgreSQL client.
func NewPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
