package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisBackend persiste la sesión en una key de Redis.
// Útil cuando varios procesos del mismo usuario comparten sesión.
type redisBackend struct {
	client *redis.Client
	key    string
}

// RedisConfig configura el backend Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedis crea un backend Redis y verifica la conexión.
func NewRedis(cfg RedisConfig) (Backend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "authgate"
	}
	return &redisBackend{client: rdb, key: prefix + ":session"}, nil
}

func (r *redisBackend) Read(ctx context.Context) ([]byte, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *redisBackend) Write(ctx context.Context, data []byte) error {
	return r.client.Set(ctx, r.key, data, 0).Err()
}

func (r *redisBackend) Delete(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}
