package store

import (
	"sync"

	"github.com/e2g-ufsm/flowbot/internal/models"
)

// InMemoryStore is a non-persistent Store used in tests and as a fallback
// when no DSN is configured.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	users    map[string]models.User
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.Session),
		users:    make(map[string]models.User),
	}
}

func (s *InMemoryStore) GetSession(channel models.Channel, channelUserID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[sessionKey(channel, channelUserID)]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *InMemoryStore) SaveSession(session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionKey(session.Channel, session.ChannelUserID)] = session
	return nil
}

func (s *InMemoryStore) DeleteSession(channel models.Channel, channelUserID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionKey(channel, channelUserID))
	return nil
}

func (s *InMemoryStore) ListSessions() ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]models.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (s *InMemoryStore) GetUser(userID string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (s *InMemoryStore) GetUserByCPF(cpf string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.CPF == cpf {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) GetUserByMessenger(source models.Channel, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.HasMessenger(source, id) {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) SaveUser(user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.UserID] = user
	return nil
}

func (s *InMemoryStore) ListUsers() ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]models.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	return users, nil
}

func (s *InMemoryStore) Close() error { return nil }
