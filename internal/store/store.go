// Package store provides storage backends for drilldial.
//
// It implements the dialog event log and state cache, the user-progress and
// drill-instance projections, the reminder-trigger log, drill-initiation
// dedup records, and the inbound command queue, backed by either SQLite or
// PostgreSQL behind per-concern repository interfaces.
package store

import (
	"strings"

	"github.com/relieftext/drilldial/internal/dialog"
)

// Opts holds configuration for store backends.
type Opts struct {
	// DSN is the database connection string: a postgres:// URL or key=value
	// DSN for PostgreSQL, or a file path for SQLite.
	DSN string
	// DrillSlugs is the drill catalog's fixed slug order. The user-progress
	// projection seeds one drill status row per slug for every new user.
	DrillSlugs []string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithDrillSlugs sets the catalog slug order used to seed drill statuses.
func WithDrillSlugs(slugs []string) Option {
	return func(o *Opts) { o.DrillSlugs = slugs }
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". File paths and
// anything unrecognized default to SQLite.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Store is the full storage surface used by the service. Both backends
// implement it.
type Store interface {
	dialog.Repository
	ProgressRepo
	InstanceRepo
	ReminderLogRepo
	InitiationRepo
	CommandQueue
	Close() error
}
