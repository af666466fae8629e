// Package database provides storage backends for the document cache.
package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/bryan-buckman/spacetraveling/internal/model"
)

// ErrMiss is returned when a key is not cached.
var ErrMiss = errors.New("database: cache miss")

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// SupportsHighConcurrency returns true if the database can handle
	// many concurrent write operations (e.g., PostgreSQL).
	// SQLite returns false due to write locking limitations.
	SupportsHighConcurrency() bool

	// Entry operations
	GetEntry(key string) (*model.CacheEntry, error)
	PutEntry(entry *model.CacheEntry) error
	DeleteEntry(key string) error
	ListKeys(prefix string) ([]string, error)
	PurgeEntries(before time.Time) (int64, error)

	// Settings operations
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the backend named by driver.
func Open(driver, dsn string) (Store, error) {
	switch driver {
	case DriverSQLite, "":
		return New(dsn)
	case DriverPostgres:
		return NewPostgres(dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
