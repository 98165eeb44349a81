package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/e2g-ufsm/flowbot/internal/models"
)

// File names inside the state directory, matching the legacy layout.
const (
	SessionsFileName = "sessions.json"
	UsersFileName    = "users.json"
)

// JSONStore persists sessions and users as two JSON files that are rewritten
// in full on every mutation. Mutations are serialized by an in-process mutex;
// concurrent writers from other processes are not supported (the state
// directory lockfile guards against that).
type JSONStore struct {
	mu       sync.Mutex
	dir      string
	sessions map[string]models.Session
	users    []models.User
}

// NewJSONStore creates a store rooted at the configured directory, loading
// any existing sessions.json and users.json. Missing files start empty.
func NewJSONStore(opts ...Option) (*JSONStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Dir == "" {
		slog.Error("JSONStore state directory not set")
		return nil, fmt.Errorf("state directory not set")
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		slog.Error("Failed to create state directory", "error", err, "dir", cfg.Dir)
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	s := &JSONStore{
		dir:      cfg.Dir,
		sessions: make(map[string]models.Session),
	}
	if err := loadJSONFile(filepath.Join(cfg.Dir, SessionsFileName), &s.sessions); err != nil {
		return nil, err
	}
	// Re-key from the session values so files written under an older key
	// shape still resolve.
	rekeyed := make(map[string]models.Session, len(s.sessions))
	for _, sess := range s.sessions {
		rekeyed[sessionKey(sess.Channel, sess.ChannelUserID)] = sess
	}
	s.sessions = rekeyed
	if err := loadJSONFile(filepath.Join(cfg.Dir, UsersFileName), &s.users); err != nil {
		return nil, err
	}
	slog.Debug("JSONStore loaded", "dir", cfg.Dir, "sessions", len(s.sessions), "users", len(s.users))
	return s, nil
}

// loadJSONFile reads filename into out, treating a missing file as empty state.
func loadJSONFile(filename string, out interface{}) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		slog.Error("Failed to read store file", "error", err, "file", filename)
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		slog.Error("Failed to parse store file", "error", err, "file", filename)
		return fmt.Errorf("failed to parse %s: %w", filename, err)
	}
	return nil
}

// writeJSONFile rewrites filename atomically via a temp file rename.
func writeJSONFile(filename string, in interface{}) error {
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filename, err)
	}
	tmp := filename + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		slog.Error("Failed to write store file", "error", err, "file", tmp)
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		slog.Error("Failed to replace store file", "error", err, "file", filename)
		return fmt.Errorf("failed to replace %s: %w", filename, err)
	}
	return nil
}

func (s *JSONStore) saveSessionsLocked() error {
	return writeJSONFile(filepath.Join(s.dir, SessionsFileName), s.sessions)
}

func (s *JSONStore) saveUsersLocked() error {
	return writeJSONFile(filepath.Join(s.dir, UsersFileName), s.users)
}

func (s *JSONStore) GetSession(channel models.Channel, channelUserID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionKey(channel, channelUserID)]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *JSONStore) SaveSession(session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKey(session.Channel, session.ChannelUserID)] = session
	return s.saveSessionsLocked()
}

func (s *JSONStore) DeleteSession(channel models.Channel, channelUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(channel, channelUserID))
	return s.saveSessionsLocked()
}

func (s *JSONStore) ListSessions() ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (s *JSONStore) GetUser(userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.UserID == userID {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func (s *JSONStore) GetUserByCPF(cpf string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.CPF == cpf {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func (s *JSONStore) GetUserByMessenger(source models.Channel, id string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.HasMessenger(source, id) {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func (s *JSONStore) SaveUser(user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.users {
		if existing.UserID == user.UserID {
			s.users[i] = user
			return s.saveUsersLocked()
		}
	}
	s.users = append(s.users, user)
	return s.saveUsersLocked()
}

func (s *JSONStore) ListUsers() ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]models.User, len(s.users))
	copy(users, s.users)
	return users, nil
}

func (s *JSONStore) Close() error { return nil }
