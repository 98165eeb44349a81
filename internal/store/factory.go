package store

import "log/slog"

// NewStore selects a backend from the configured options. The DSN type
// decides between SQLite, PostgreSQL and Redis; a state directory selects
// the JSON file store; no options yields the in-memory store.
func NewStore(options ...Option) (Store, error) {
	var opts Opts
	for _, opt := range options {
		opt(&opts)
	}

	switch {
	case opts.DSN != "":
		switch DetectDSNType(opts.DSN) {
		case "postgres":
			slog.Info("Store factory selected PostgreSQL backend")
			return NewPostgresStore(options...)
		case "redis":
			slog.Info("Store factory selected Redis backend")
			return NewRedisStore(options...)
		default:
			slog.Info("Store factory selected SQLite backend", "path", opts.DSN)
			return NewSQLiteStore(options...)
		}
	case opts.Dir != "":
		slog.Info("Store factory selected JSON file backend", "dir", opts.Dir)
		return NewJSONStore(options...)
	default:
		slog.Info("Store factory selected in-memory backend")
		return NewInMemoryStore(), nil
	}
}
