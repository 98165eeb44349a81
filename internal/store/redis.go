package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/e2g-ufsm/flowbot/internal/models"
	"github.com/redis/go-redis/v9"
)

// Key prefixes for the Redis store. Lookup indexes (cpf, messenger) map to
// the owning user id.
const (
	redisSessionPrefix   = "flowbot:session:"
	redisUserPrefix      = "flowbot:user:"
	redisCPFPrefix       = "flowbot:cpf:"
	redisMessengerPrefix = "flowbot:messenger:"
)

// RedisStore is a Store backed by Redis, with sessions and users held as
// JSON values and secondary indexes for CPF and channel-binding lookups.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis using the configured redis:// URL.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewRedisStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("RedisStore DSN not set")
		return nil, fmt.Errorf("redis DSN not set")
	}
	redisOpts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		slog.Error("Failed to parse Redis URL", "error", err)
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		slog.Error("Redis ping failed", "error", err)
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	slog.Debug("Redis store ready", "addr", redisOpts.Addr)
	return &RedisStore{client: client}, nil
}

// NewRedisStoreWithClient wraps an existing client. Used in tests.
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) GetSession(channel models.Channel, channelUserID string) (*models.Session, error) {
	var sess models.Session
	ok, err := s.getJSON(redisSessionPrefix+sessionKey(channel, channelUserID), &sess)
	if err != nil || !ok {
		return nil, err
	}
	return &sess, nil
}

func (s *RedisStore) SaveSession(session models.Session) error {
	return s.setJSON(redisSessionPrefix+sessionKey(session.Channel, session.ChannelUserID), session)
}

func (s *RedisStore) DeleteSession(channel models.Channel, channelUserID string) error {
	if err := s.client.Del(context.Background(), redisSessionPrefix+sessionKey(channel, channelUserID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session for %s: %w", channelUserID, err)
	}
	return nil
}

func (s *RedisStore) ListSessions() ([]models.Session, error) {
	var sessions []models.Session
	err := s.scanPrefix(redisSessionPrefix, func(data []byte) error {
		var sess models.Session
		if err := json.Unmarshal(data, &sess); err != nil {
			return fmt.Errorf("failed to decode session: %w", err)
		}
		sessions = append(sessions, sess)
		return nil
	})
	return sessions, err
}

func (s *RedisStore) GetUser(userID string) (*models.User, error) {
	var user models.User
	ok, err := s.getJSON(redisUserPrefix+userID, &user)
	if err != nil || !ok {
		return nil, err
	}
	return &user, nil
}

func (s *RedisStore) GetUserByCPF(cpf string) (*models.User, error) {
	return s.userByIndex(redisCPFPrefix + cpf)
}

func (s *RedisStore) GetUserByMessenger(source models.Channel, id string) (*models.User, error) {
	return s.userByIndex(redisMessengerPrefix + string(source) + ":" + id)
}

func (s *RedisStore) userByIndex(indexKey string) (*models.User, error) {
	userID, err := s.client.Get(context.Background(), indexKey).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", indexKey, err)
	}
	return s.GetUser(userID)
}

func (s *RedisStore) SaveUser(user models.User) error {
	ctx := context.Background()
	if err := s.setJSON(redisUserPrefix+user.UserID, user); err != nil {
		return err
	}
	if err := s.client.Set(ctx, redisCPFPrefix+user.CPF, user.UserID, 0).Err(); err != nil {
		return fmt.Errorf("failed to write cpf index for %s: %w", user.UserID, err)
	}
	for _, m := range user.Messengers {
		key := redisMessengerPrefix + string(m.Source) + ":" + m.ID
		if err := s.client.Set(ctx, key, user.UserID, 0).Err(); err != nil {
			return fmt.Errorf("failed to write messenger index for %s: %w", user.UserID, err)
		}
	}
	return nil
}

func (s *RedisStore) ListUsers() ([]models.User, error) {
	var users []models.User
	err := s.scanPrefix(redisUserPrefix, func(data []byte) error {
		var user models.User
		if err := json.Unmarshal(data, &user); err != nil {
			return fmt.Errorf("failed to decode user: %w", err)
		}
		users = append(users, user)
		return nil
	})
	return users, err
}

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) getJSON(key string, out interface{}) (bool, error) {
	data, err := s.client.Get(context.Background(), key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}

func (s *RedisStore) setJSON(key string, in interface{}) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.client.Set(context.Background(), key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) scanPrefix(prefix string, visit func(data []byte) error) error {
	ctx := context.Background()
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", iter.Val(), err)
		}
		if err := visit(data); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan %s keys: %w", prefix, err)
	}
	return nil
}
