package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agusgarcia3007/learnbase/backend/internal/model/chat"
)

var (
	ErrNotFound        = errors.New("conversation not found")
	ErrExists          = errors.New("conversation already exists")
	ErrVersionConflict = errors.New("conversation version conflict")
)

const (
	DriverMemory = "memory"
	DriverRedis  = "redis"

	conversationKeyPrefix = "authoring:conversation:"
	defaultTTL            = 24 * time.Hour
)

// Store persists conversation records with optimistic locking.
type Store interface {
	// Create stores a new record with Version set to 1.
	Create(ctx context.Context, c *chat.Conversation) error

	// Get returns ErrNotFound when the record does not exist.
	Get(ctx context.Context, id string) (*chat.Conversation, error)

	// Update persists c when its Version matches the stored one, then
	// increments it. Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, c *chat.Conversation) error

	Close() error
}

// MemoryStore keeps conversations in process memory.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]chat.Conversation
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{conversations: make(map[string]chat.Conversation)}
}

func (s *MemoryStore) Create(_ context.Context, c *chat.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[c.ID]; ok {
		return ErrExists
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Version = 1
	s.conversations[c.ID] = c.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*chat.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := c.Clone()
	return &out, nil
}

func (s *MemoryStore) Update(_ context.Context, c *chat.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.conversations[c.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != c.Version {
		return ErrVersionConflict
	}
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	s.conversations[c.ID] = c.Clone()
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// RedisStore shares conversation records between API instances.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore wraps client. Keys expire ttl after their last write.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Create(ctx context.Context, c *chat.Conversation) error {
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Version = 1

	val, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(c.ID), val, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	if !ok {
		return ErrExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*chat.Conversation, error) {
	val, err := s.client.Get(ctx, s.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	var c chat.Conversation
	if err := json.Unmarshal([]byte(val), &c); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	return &c, nil
}

func (s *RedisStore) Update(ctx context.Context, c *chat.Conversation) error {
	key := s.key(c.ID)

	return s.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored chat.Conversation
		if err := json.Unmarshal([]byte(val), &stored); err != nil {
			return err
		}
		if stored.Version != c.Version {
			return ErrVersionConflict
		}

		next := c.Clone()
		next.Version++
		next.UpdatedAt = time.Now().UTC()
		newVal, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, newVal, s.ttl)
			return nil
		})
		if errors.Is(err, redis.TxFailedErr) {
			return ErrVersionConflict
		}
		if err == nil {
			*c = next
		}
		return err
	}, key)
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(id string) string {
	return conversationKeyPrefix + id
}

// RedisOptions configures NewStore for the redis driver.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewStore builds the store for driver and verifies redis connectivity.
func NewStore(ctx context.Context, driver string, opts RedisOptions) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
		}
		return NewRedisStore(client, opts.TTL), nil
	default:
		return nil, fmt.Errorf("unknown conversation driver %q", driver)
	}
}
