// Package store provides storage backends for flowbot sessions and users.
//
// Backends share a single Store interface: a simple in-memory store, a JSON
// file store matching the legacy sessions.json/users.json layout, and
// SQLite, PostgreSQL and Redis stores for durable deployments.
package store

import (
	"strings"

	"github.com/e2g-ufsm/flowbot/internal/models"
)

// Store is the persistence abstraction consumed by the flow engine. The
// engine is the sole mutator; writes are expected to be write-through.
type Store interface {
	// GetSession returns the session keyed by channel plus channel-scoped
	// user id, or nil if none exists. The same user id on two channels
	// addresses two distinct sessions.
	GetSession(channel models.Channel, channelUserID string) (*models.Session, error)
	// SaveSession inserts or replaces a session under its (channel, id) key.
	SaveSession(session models.Session) error
	// DeleteSession removes a session. Deleting a missing session is not an error.
	DeleteSession(channel models.Channel, channelUserID string) error
	// ListSessions returns all sessions.
	ListSessions() ([]models.Session, error)

	// GetUser returns the user with the given identity id, or nil.
	GetUser(userID string) (*models.User, error)
	// GetUserByCPF returns the user registered under the normalized CPF, or nil.
	GetUserByCPF(cpf string) (*models.User, error)
	// GetUserByMessenger returns the user owning the channel binding, or nil.
	GetUserByMessenger(source models.Channel, id string) (*models.User, error)
	// SaveUser inserts or replaces a user and its channel bindings.
	SaveUser(user models.User) error
	// ListUsers returns all registered users.
	ListUsers() ([]models.User, error)

	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the connection string: a file path for SQLite, a postgres://
	// or key=value DSN for PostgreSQL, a redis:// URL for Redis.
	DSN string
	// Dir is the state directory for the JSON file store.
	Dir string
}

// Option defines a configuration option for store construction.
type Option func(*Opts)

// WithSQLiteDSN sets a SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithPostgresDSN sets a PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithRedisDSN sets a Redis connection URL.
func WithRedisDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithJSONDir sets the directory holding sessions.json and users.json.
func WithJSONDir(dir string) Option {
	return func(o *Opts) { o.Dir = dir }
}

// sessionKey builds the composite map/cache key for a session.
func sessionKey(channel models.Channel, channelUserID string) string {
	return string(channel) + ":" + channelUserID
}

// DetectDSNType classifies a DSN as "postgres", "redis" or "sqlite".
// File paths and anything unrecognized default to SQLite.
func DetectDSNType(dsn string) string {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return "postgres"
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return "redis"
	default:
		return "sqlite"
	}
}
