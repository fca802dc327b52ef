package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/cloo-solutions/coverstats/internal/domain"
)

// DefaultLeaseTTL bounds how long a crashed run can keep the slot locked.
// Every stored token extends the lease.
const DefaultLeaseTTL = 10 * time.Minute

// releaseScript deletes the lock only when it is still held by this owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisSlot is a Slot shared by every process using the same Redis, so a
// scheduled run and a manual run cannot paginate at the same time.
type RedisSlot struct {
	client   *redis.Client
	key      string
	lockKey  string
	owner    string
	leaseTTL time.Duration
}

// NewRedisSlot creates a RedisSlot under SlotKey.
func NewRedisSlot(client *redis.Client) *RedisSlot {
	return &RedisSlot{
		client:   client,
		key:      SlotKey,
		lockKey:  SlotKey + ":lock",
		owner:    uuid.New().String(),
		leaseTTL: DefaultLeaseTTL,
	}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisSlot) Acquire(ctx context.Context) error {
	ok, err := s.client.SetNX(ctx, s.lockKey, s.owner, s.leaseTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to acquire scroll slot: %w", err)
	}
	if !ok {
		return domain.ErrScrollSlotBusy
	}
	return nil
}

func (s *RedisSlot) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.lockKey}, s.owner).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release scroll slot: %w", err)
	}
	return nil
}

func (s *RedisSlot) Token(ctx context.Context) (string, bool, error) {
	token, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read scroll token: %w", err)
	}
	return token, true, nil
}

func (s *RedisSlot) Store(ctx context.Context, token string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key, token, ScrollTTL)
		pipe.Expire(ctx, s.lockKey, s.leaseTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store scroll token: %w", err)
	}
	return nil
}

func (s *RedisSlot) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("failed to clear scroll token: %w", err)
	}
	return nil
}
