// Package store provides storage backends for BotWeave.
//
// It includes an in-memory store for tests, an SQLite store for single-node
// deployments, and a PostgreSQL store. All three persist sessions, the
// trigger routing table, and immutable flow version documents.
package store

import (
	"strings"
	"time"

	"github.com/BotWeave/BotWeave/internal/models"
)

// Store is the full persistence contract. The flow engine itself depends
// only on the narrow interfaces it declares; Store is their union plus the
// admin-facing registration operations.
type Store interface {
	FindOrCreateSession(phone string) (*models.Session, error)
	GetSession(phone string) (*models.Session, error)
	SaveSession(s *models.Session) error
	ListIdleSessions(before time.Time) ([]*models.Session, error)

	ListActiveTriggers() ([]models.Trigger, error)
	SaveTrigger(t models.Trigger) error

	SaveFlowVersion(ref string, definition []byte) error
	GetFlowVersion(ref string) ([]byte, error)

	Close() error
}

// Opts holds configuration options for database-backed stores.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType reports "postgres" for PostgreSQL-looking connection
// strings and "sqlite" for everything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}
