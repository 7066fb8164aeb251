package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "chainoverflow:proof:"

// Redis keeps claims in redis so they survive restarts and are shared
// between replicas
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps a connected client
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{
		client: client,
		ttl:    ttl,
	}
}

// DialRedis connects and pings the server
func DialRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrUnavailable, addr, err)
	}

	return NewRedis(client, ttl), nil
}

// Claim implements Ledger
func (r *Redis) Claim(ctx context.Context, proof string) (bool, error) {
	ok, err := r.client.SetNX(ctx, keyPrefix+normalize(proof), time.Now().Unix(), r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

// Close closes the client
func (r *Redis) Close() error {
	return r.client.Close()
}
