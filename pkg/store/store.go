// Package store implements the metadata store: durable records of meetings,
// wrapped meeting keys and the revision log, backed by an embedded SQLite
// database via GORM. All operations are serialized by the database; callers
// may invoke them concurrently.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/alfredjoe/Talktrace-backend/pkg/store/models"
)

// Config contains database configuration.
type Config struct {
	// Path is the SQLite database file. ":memory:" is supported for tests.
	Path string
}

// Store persists meetings, keys and revisions. The master key is held only
// in memory and used to wrap and unwrap per-meeting data keys; it is
// read-only after construction.
type Store struct {
	db        *gorm.DB
	masterKey []byte
}

// New opens the metadata store and migrates the schema.
func New(cfg Config, masterKey []byte) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("master key must be 32 bytes, got %d", len(masterKey))
	}

	dsn := cfg.Path
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		// WAL for concurrent readers with a single writer; busy_timeout so
		// concurrent API requests wait instead of failing.
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return nil, fmt.Errorf("failed to run database migration: %w", err)
	}

	key := make([]byte, len(masterKey))
	copy(key, masterKey)

	return &Store{db: db, masterKey: key}, nil
}

// DB returns the underlying GORM handle. Useful for tests.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// isUniqueConstraintError checks if the error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// convertNotFoundError converts gorm.ErrRecordNotFound to the domain error.
func convertNotFoundError(err error, notFoundErr error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFoundErr
	}
	return err
}
