package persist

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrInvalidRedisConfig indicates that the Redis configuration is invalid.
	ErrInvalidRedisConfig = errors.New("persist: invalid redis configuration")
	// ErrEmptyAddress indicates that the Redis address is empty.
	ErrEmptyAddress = errors.New("persist: redis address cannot be empty")
)

// RedisConfig holds the connection settings for RedisBackend.
type RedisConfig struct {
	Addr         string        `json:"addr" yaml:"addr" mapstructure:"addr"`
	Password     string        `json:"password" yaml:"password" mapstructure:"password"`
	DB           int           `json:"db" yaml:"db" mapstructure:"db"`
	KeyPrefix    string        `json:"key_prefix" yaml:"key_prefix" mapstructure:"key_prefix"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
}

// DefaultRedisConfig returns a configuration for a local Redis.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:         "localhost:6379",
		KeyPrefix:    "storefront:",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Validate checks the configuration.
func (c *RedisConfig) Validate() error {
	if c == nil {
		return ErrInvalidRedisConfig
	}
	if strings.TrimSpace(c.Addr) == "" {
		return ErrEmptyAddress
	}
	if c.DB < 0 {
		return fmt.Errorf("%w: db must be >= 0", ErrInvalidRedisConfig)
	}
	return nil
}

// RedisBackend stores entries as plain Redis strings. Multi-key writes run in
// a MULTI/EXEC pipeline and removals use a single DEL.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend connects using cfg and verifies connectivity with a ping.
func NewRedisBackend(ctx context.Context, cfg *RedisConfig) (*RedisBackend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("persist: failed to ping redis: %w", err)
	}
	return NewRedisBackendFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client redis.UniversalClient, prefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := b.client.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("persist: redis get %q: %w", key, err)
	}
	return value, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := b.client.Set(ctx, b.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("persist: redis set %q: %w", key, err)
	}
	return nil
}

func (b *RedisBackend) SetMany(ctx context.Context, entries map[string][]byte) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for key, value := range entries {
			pipe.Set(ctx, b.key(key), value, 0)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("persist: redis set many: %w", err)
	}
	return nil
}

func (b *RedisBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = b.key(key)
	}
	if err := b.client.Del(ctx, prefixed...).Err(); err != nil {
		return fmt.Errorf("persist: redis del: %w", err)
	}
	return nil
}

// Close releases the client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) key(key string) string {
	return b.prefix + key
}
