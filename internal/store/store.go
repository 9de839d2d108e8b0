// Package store is the single source of truth shared by the three lifecycle
// jobs. There is no in-memory state: every job step re-reads and re-writes
// through here, and per-row updates are the atomic unit of progress.
// Transitions are status-gated (UPDATE ... WHERE status = expected) so
// duplicate or replayed runs are no-ops instead of corruption.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps the gorm handle. All methods take a context and are safe to
// call from the jobs and the HTTP layer concurrently (SQLite WAL).
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the SQLite database at path and migrates
// the schema.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: database path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	return open(dsn)
}

// OpenInMemory opens a private in-memory database, used by tests. Each call
// gets its own namespace; cache=shared only spans the connection pool of this
// one Store.
func OpenInMemory() (*Store, error) {
	return open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.NewString()))
}

func open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open failed: %w", err)
	}
	if err := db.AutoMigrate(
		&AnalysisDecision{},
		&TradeJournal{},
		&OrderExecution{},
		&PositionTracking{},
		&TickerWatchlist{},
	); err != nil {
		return nil, fmt.Errorf("store: migrate failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// Keep lock contention low; the jobs are sequential and only the HTTP
	// reads benefit from a second connection.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
