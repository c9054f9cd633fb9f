package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisSink keeps the latest wallet under {prefix}:wallet and publishes every event
// on {prefix}:trades / {prefix}:wallet.
type RedisSink struct {
	client redisClient
	prefix string
}

// NewRedisSink connects and pings the server.
func NewRedisSink(ctx context.Context, addr, password string, db int, prefix string) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return newRedisSink(client, prefix), nil
}

func newRedisSink(client redisClient, prefix string) *RedisSink {
	if prefix == "" {
		prefix = "quantbox"
	}
	return &RedisSink{client: client, prefix: prefix}
}

func (r *RedisSink) Name() string { return "redis" }

func (r *RedisSink) key(k string) string { return r.prefix + ":" + k }

func (r *RedisSink) SendTrade(ctx context.Context, t Trade) error {
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.key("trades"), data).Err()
}

func (r *RedisSink) SendWallet(ctx context.Context, w Wallet) error {
	data, err := json.Marshal(w)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key("wallet"), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set wallet: %w", err)
	}
	return r.client.Publish(ctx, r.key("wallet"), data).Err()
}

func (r *RedisSink) Close() error { return r.client.Close() }
