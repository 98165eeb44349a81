package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/e2g-ufsm/flowbot/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL with the configured DSN and
// applies migrations.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL store ready")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) GetSession(channel models.Channel, channelUserID string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT channel_user_id, channel, user_id, current_step, last_activity, retries, initial_prompt_sent, inputs, optin_result FROM sessions WHERE channel = $1 AND channel_user_id = $2`, channel, channelUserID)
	return scanSessionRow(row)
}

func (s *PostgresStore) SaveSession(session models.Session) error {
	inputs, optin, lastActivity, err := sessionColumns(session)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO sessions (channel_user_id, channel, user_id, current_step, last_activity, retries, initial_prompt_sent, inputs, optin_result)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (channel, channel_user_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			current_step = EXCLUDED.current_step,
			last_activity = EXCLUDED.last_activity,
			retries = EXCLUDED.retries,
			initial_prompt_sent = EXCLUDED.initial_prompt_sent,
			inputs = EXCLUDED.inputs,
			optin_result = EXCLUDED.optin_result`,
		session.ChannelUserID, session.Channel, session.UserID, session.CurrentStep, lastActivity, session.Retries, session.InitialPromptSent, inputs, optin)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "channel_user_id", session.ChannelUserID)
		return fmt.Errorf("failed to save session for %s: %w", session.ChannelUserID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteSession(channel models.Channel, channelUserID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE channel = $1 AND channel_user_id = $2`, channel, channelUserID); err != nil {
		slog.Error("PostgresStore DeleteSession failed", "error", err, "channel", channel, "channel_user_id", channelUserID)
		return fmt.Errorf("failed to delete session for %s: %w", channelUserID, err)
	}
	return nil
}

func (s *PostgresStore) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT channel_user_id, channel, user_id, current_step, last_activity, retries, initial_prompt_sent, inputs, optin_result FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	return scanSessionRows(rows)
}

func (s *PostgresStore) GetUser(userID string) (*models.User, error) {
	return s.userByQuery(`SELECT user_id, name, cpf FROM users WHERE user_id = $1`, userID)
}

func (s *PostgresStore) GetUserByCPF(cpf string) (*models.User, error) {
	return s.userByQuery(`SELECT user_id, name, cpf FROM users WHERE cpf = $1`, cpf)
}

func (s *PostgresStore) GetUserByMessenger(source models.Channel, id string) (*models.User, error) {
	return s.userByQuery(`SELECT u.user_id, u.name, u.cpf FROM users u JOIN messengers m ON m.user_id = u.user_id WHERE m.source = $1 AND m.id = $2`, source, id)
}

func (s *PostgresStore) userByQuery(query string, args ...interface{}) (*models.User, error) {
	var user models.User
	err := s.db.QueryRow(query, args...).Scan(&user.UserID, &user.Name, &user.CPF)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if err := s.loadMessengers(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *PostgresStore) loadMessengers(user *models.User) error {
	rows, err := s.db.Query(`SELECT source, id FROM messengers WHERE user_id = $1`, user.UserID)
	if err != nil {
		return fmt.Errorf("failed to query messengers for %s: %w", user.UserID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var m models.Messenger
		if err := rows.Scan(&m.Source, &m.ID); err != nil {
			return fmt.Errorf("failed to scan messenger row: %w", err)
		}
		user.Messengers = append(user.Messengers, m)
	}
	return rows.Err()
}

func (s *PostgresStore) SaveUser(user models.User) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO users (user_id, name, cpf) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET name = EXCLUDED.name, cpf = EXCLUDED.cpf`, user.UserID, user.Name, user.CPF); err != nil {
		slog.Error("PostgresStore SaveUser failed", "error", err, "user_id", user.UserID)
		return fmt.Errorf("failed to save user %s: %w", user.UserID, err)
	}
	if _, err := tx.Exec(`DELETE FROM messengers WHERE user_id = $1`, user.UserID); err != nil {
		return fmt.Errorf("failed to clear messengers for %s: %w", user.UserID, err)
	}
	for _, m := range user.Messengers {
		if _, err := tx.Exec(`INSERT INTO messengers (source, id, user_id) VALUES ($1, $2, $3)
			ON CONFLICT (source, id) DO UPDATE SET user_id = EXCLUDED.user_id`, m.Source, m.ID, user.UserID); err != nil {
			return fmt.Errorf("failed to save messenger binding for %s: %w", user.UserID, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) ListUsers() ([]models.User, error) {
	rows, err := s.db.Query(`SELECT user_id, name, cpf FROM users`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var user models.User
		if err := rows.Scan(&user.UserID, &user.Name, &user.CPF); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate user rows: %w", err)
	}
	for i := range users {
		if err := s.loadMessengers(&users[i]); err != nil {
			return nil, err
		}
	}
	return users, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }
