package sink

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisStream is used when no stream key is configured.
const DefaultRedisStream = "kbelog:logs"

// StreamAdder is the subset of *redis.Client used by the Redis sink.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisConfig configures DialRedis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Stream is the stream key (default: DefaultRedisStream).
	Stream string

	// MaxLen caps the stream length approximately. 0 leaves it unbounded.
	MaxLen int64
}

// Redis appends each payload to a Redis stream.
type Redis struct {
	client StreamAdder
	stream string
	maxLen int64
	owned  *redis.Client
}

// NewRedis writes through client. The caller keeps ownership of client.
func NewRedis(client StreamAdder, stream string, maxLen int64) *Redis {
	if stream == "" {
		stream = DefaultRedisStream
	}
	return &Redis{client: client, stream: stream, maxLen: maxLen}
}

// DialRedis connects and pings the server.
func DialRedis(ctx context.Context, config RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", config.Addr, err)
	}
	s := NewRedis(client, config.Stream, config.MaxLen)
	s.owned = client
	return s, nil
}

// Name returns "redis".
func (s *Redis) Name() string { return "redis" }

// Write adds one stream entry per payload. It stops at the first failure.
func (s *Redis) Write(ctx context.Context, payloads [][]byte) error {
	for _, p := range payloads {
		err := s.client.XAdd(ctx, &redis.XAddArgs{
			Stream: s.stream,
			MaxLen: s.maxLen,
			Approx: s.maxLen > 0,
			Values: map[string]any{"payload": p},
		}).Err()
		if err != nil {
			return fmt.Errorf("xadd %s: %w", s.stream, err)
		}
	}
	return nil
}

// Close closes the client if DialRedis opened it.
func (s *Redis) Close() error {
	if s.owned == nil {
		return nil
	}
	return s.owned.Close()
}
