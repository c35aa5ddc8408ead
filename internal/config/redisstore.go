package config

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	tuningKey     = "taskdb:pool:tuning"
	reloadChannel = "taskdb:pool:reload"
)

// Tuning is the subset of pool.Config an operator can publish live.
// MaxIdleSeconds, MaxExecCount and MaxWaitTimeoutCount take effect without a
// restart; Size is stored and reported but pool.Pool.ApplyTuning does not
// apply it, so a Size change needs a new Pool.
type Tuning struct {
	Size                int           `json:"size"`
	MaxIdleSeconds      time.Duration `json:"max_idle_seconds"`
	MaxExecCount        int64         `json:"max_exec_count"`
	MaxWaitTimeoutCount int           `json:"max_wait_timeout_count"`
}

// RedisStore publishes the pool's active tuning to Redis and notifies
// subscribers (other processes, or this one's own admin API) when it
// changes.
type RedisStore struct {
	client   *redis.Client
	pubsub   *redis.PubSub
	reloadCh chan Tuning
	closeCh  chan struct{}
}

// NewRedisStore connects to Redis per cfg and verifies the connection with
// a ping.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.Database,
		PoolSize: cfg.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client:   client,
		reloadCh: make(chan Tuning, 10),
		closeCh:  make(chan struct{}),
	}, nil
}

// SaveTuning persists the active tuning and notifies subscribers.
func (s *RedisStore) SaveTuning(ctx context.Context, t Tuning) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal tuning: %w", err)
	}
	if err := s.client.Set(ctx, tuningKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save tuning to Redis: %w", err)
	}
	return s.client.Publish(ctx, reloadChannel, "reload").Err()
}

// LoadTuning reads the currently persisted tuning.
func (s *RedisStore) LoadTuning(ctx context.Context) (Tuning, error) {
	data, err := s.client.Get(ctx, tuningKey).Result()
	if err == redis.Nil {
		return Tuning{}, fmt.Errorf("tuning not found in Redis")
	} else if err != nil {
		return Tuning{}, fmt.Errorf("failed to load tuning from Redis: %w", err)
	}
	var t Tuning
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return Tuning{}, fmt.Errorf("failed to unmarshal tuning: %w", err)
	}
	return t, nil
}

// Watch subscribes to reload notifications and streams the freshly loaded
// tuning on the returned channel.
func (s *RedisStore) Watch(ctx context.Context) (<-chan Tuning, error) {
	s.pubsub = s.client.Subscribe(ctx, reloadChannel)
	if _, err := s.pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to reload channel: %w", err)
	}
	go s.watchLoop(ctx)
	return s.reloadCh, nil
}

func (s *RedisStore) watchLoop(ctx context.Context) {
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closeCh:
			return
		case msg := <-ch:
			if msg == nil {
				continue
			}
			t, err := s.LoadTuning(ctx)
			if err != nil {
				continue
			}
			select {
			case s.reloadCh <- t:
			default:
			}
		}
	}
}

// Health pings Redis.
func (s *RedisStore) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close stops the watch loop and releases the Redis connection.
func (s *RedisStore) Close() error {
	close(s.closeCh)
	if s.pubsub != nil {
		if err := s.pubsub.Close(); err != nil {
			return err
		}
	}
	close(s.reloadCh)
	return s.client.Close()
}
