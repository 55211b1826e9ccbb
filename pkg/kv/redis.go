package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 3 * time.Second

// RedisConfig configures a Redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	// Prefix namespaces keys and the change channel, like a browser origin.
	Prefix string
	Logger *slog.Logger
}

// RedisStore shares values between processes. Every write is announced on
// "<prefix>:changes"; writes from other processes surface as Remote changes.
type RedisStore struct {
	client  *redis.Client
	pubsub  *redis.PubSub
	prefix  string
	channel string
	origin  string
	logger  *slog.Logger
	hub     *hub

	closeOnce sync.Once
	done      chan struct{}
}

type redisChange struct {
	Origin string   `json:"origin"`
	Keys   []string `json:"keys"`
}

// NewRedisStore connects, subscribes to the change channel and starts
// relaying remote changes.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr required")
	}
	prefix := strings.TrimSpace(cfg.Prefix)
	if prefix == "" {
		prefix = "ecomarket"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: cfg.Password})
	s := &RedisStore{
		client:  client,
		prefix:  prefix,
		channel: prefix + ":changes",
		origin:  uuid.NewString(),
		logger:  logger,
		hub:     newHub(),
		done:    make(chan struct{}),
	}
	subCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	s.pubsub = client.Subscribe(subCtx, s.channel)
	if _, err := s.pubsub.Receive(subCtx); err != nil {
		_ = s.pubsub.Close()
		_ = client.Close()
		return nil, fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	go s.relay()
	return s, nil
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.Apply(ctx, Batch{Set: map[string]string{key: value}})
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	return s.Apply(ctx, Batch{Delete: keys})
}

func (s *RedisStore) Apply(ctx context.Context, b Batch) error {
	if b.empty() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range b.Set {
			pipe.Set(ctx, s.key(k), v, 0)
		}
		if len(b.Delete) > 0 {
			full := make([]string, 0, len(b.Delete))
			for _, k := range b.Delete {
				full = append(full, s.key(k))
			}
			pipe.Del(ctx, full...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply batch: %w", err)
	}
	keys := b.keys()
	payload, err := json.Marshal(redisChange{Origin: s.origin, Keys: keys})
	if err != nil {
		return err
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		// The write landed; other processes just miss the notification.
		s.logger.Warn("kv change publish failed", "channel", s.channel, "err", err)
	}
	s.hub.publish(Change{Keys: keys})
	return nil
}

func (s *RedisStore) Subscribe() (<-chan Change, func()) {
	return s.hub.subscribe()
}

func (s *RedisStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.pubsub.Close()
		s.hub.close()
		err = s.client.Close()
	})
	return err
}

func (s *RedisStore) relay() {
	ch := s.pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var c redisChange
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				s.logger.Warn("kv change decode failed", "err", err)
				continue
			}
			if c.Origin == s.origin {
				continue
			}
			s.hub.publish(Change{Keys: c.Keys, Remote: true})
		}
	}
}
