package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/e2g-ufsm/flowbot/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the SQLite database at the
// configured DSN and applies migrations.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0755); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", filepath.Dir(cfg.DSN))
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite store ready", "path", cfg.DSN)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetSession(channel models.Channel, channelUserID string) (*models.Session, error) {
	row := s.db.QueryRow(`SELECT channel_user_id, channel, user_id, current_step, last_activity, retries, initial_prompt_sent, inputs, optin_result FROM sessions WHERE channel = ? AND channel_user_id = ?`, channel, channelUserID)
	return scanSessionRow(row)
}

func (s *SQLiteStore) SaveSession(session models.Session) error {
	inputs, optin, lastActivity, err := sessionColumns(session)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT OR REPLACE INTO sessions (channel_user_id, channel, user_id, current_step, last_activity, retries, initial_prompt_sent, inputs, optin_result) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ChannelUserID, session.Channel, session.UserID, session.CurrentStep, lastActivity, session.Retries, session.InitialPromptSent, inputs, optin)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "channel_user_id", session.ChannelUserID)
		return fmt.Errorf("failed to save session for %s: %w", session.ChannelUserID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteSession(channel models.Channel, channelUserID string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE channel = ? AND channel_user_id = ?`, channel, channelUserID); err != nil {
		slog.Error("SQLiteStore DeleteSession failed", "error", err, "channel", channel, "channel_user_id", channelUserID)
		return fmt.Errorf("failed to delete session for %s: %w", channelUserID, err)
	}
	return nil
}

func (s *SQLiteStore) ListSessions() ([]models.Session, error) {
	rows, err := s.db.Query(`SELECT channel_user_id, channel, user_id, current_step, last_activity, retries, initial_prompt_sent, inputs, optin_result FROM sessions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	return scanSessionRows(rows)
}

func (s *SQLiteStore) GetUser(userID string) (*models.User, error) {
	return s.userByQuery(`SELECT user_id, name, cpf FROM users WHERE user_id = ?`, userID)
}

func (s *SQLiteStore) GetUserByCPF(cpf string) (*models.User, error) {
	return s.userByQuery(`SELECT user_id, name, cpf FROM users WHERE cpf = ?`, cpf)
}

func (s *SQLiteStore) GetUserByMessenger(source models.Channel, id string) (*models.User, error) {
	return s.userByQuery(`SELECT u.user_id, u.name, u.cpf FROM users u JOIN messengers m ON m.user_id = u.user_id WHERE m.source = ? AND m.id = ?`, source, id)
}

func (s *SQLiteStore) userByQuery(query string, args ...interface{}) (*models.User, error) {
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

func (s *SQLiteStore) loadMessengers(user *models.User) error {
	rows, err := s.db.Query(`SELECT source, id FROM messengers WHERE user_id = ?`, user.UserID)
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

func (s *SQLiteStore) SaveUser(user models.User) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO users (user_id, name, cpf) VALUES (?, ?, ?)`, user.UserID, user.Name, user.CPF); err != nil {
		slog.Error("SQLiteStore SaveUser failed", "error", err, "user_id", user.UserID)
		return fmt.Errorf("failed to save user %s: %w", user.UserID, err)
	}
	if _, err := tx.Exec(`DELETE FROM messengers WHERE user_id = ?`, user.UserID); err != nil {
		return fmt.Errorf("failed to clear messengers for %s: %w", user.UserID, err)
	}
	for _, m := range user.Messengers {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO messengers (source, id, user_id) VALUES (?, ?, ?)`, m.Source, m.ID, user.UserID); err != nil {
			return fmt.Errorf("failed to save messenger binding for %s: %w", user.UserID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListUsers() ([]models.User, error) {
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

func (s *SQLiteStore) Close() error { return s.db.Close() }

// rowScanner abstracts sql.Row and sql.Rows for session scanning.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(scanner rowScanner) (*models.Session, error) {
	var sess models.Session
	var inputs, optin string
	var lastActivity int64
	err := scanner.Scan(&sess.ChannelUserID, &sess.Channel, &sess.UserID, &sess.CurrentStep, &lastActivity, &sess.Retries, &sess.InitialPromptSent, &inputs, &optin)
	if err != nil {
		return nil, err
	}
	if err := scanSessionColumns(&sess, inputs, optin, lastActivity); err != nil {
		return nil, err
	}
	return &sess, nil
}

func scanSessionRow(row *sql.Row) (*models.Session, error) {
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return sess, nil
}

func scanSessionRows(rows *sql.Rows) ([]models.Session, error) {
	var sessions []models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return sessions, nil
}
