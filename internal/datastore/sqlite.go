package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tphakala/vocalcoach/internal/conf"
	"github.com/tphakala/vocalcoach/internal/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// SQLiteStore implements Interface on a SQLite file
type SQLiteStore struct {
	DataStore
	Path string
}

// New returns a store for the configured path; call Open before use
func New(settings *conf.Settings) *SQLiteStore {
	return &SQLiteStore{Path: settings.Datastore.Path}
}

// Open connects to the database, creating the file and schema if needed
func (store *SQLiteStore) Open() error {
	if store.Path == "" {
		return dbError(fmt.Errorf("sqlite path is empty"), "open")
	}

	path := store.Path
	if path != ":memory:" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return dbError(err, "resolve_path")
		}
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return dbError(err, "create_dir")
		}
		path = abs
	}

	gormLogger := logger.NewGormLoggerAdapter(GetLogger(), slowQueryThreshold)
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return dbError(fmt.Errorf("failed to open SQLite database: %w", err), "open")
	}

	store.DB = db
	return performAutoMigration(db, "SQLite", path)
}

// Close releases the connection
func (store *SQLiteStore) Close() error {
	if store.DB == nil {
		return nil
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return dbError(err, "close")
	}
	store.DB = nil
	return sqlDB.Close()
}

var _ Interface = (*SQLiteStore)(nil)
