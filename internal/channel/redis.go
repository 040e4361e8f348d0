package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andygmpub/gpsbridge/internal/bundle"
)

// opTimeout bounds individual Redis commands so a dead broker cannot stall
// the event loop.
const opTimeout = 3 * time.Second

// Redis publishes bundles on a Redis pub/sub channel named after the remote
// endpoint. Consumers subscribe to "<appid>:<port>".
type Redis struct {
	client  *redis.Client
	channel string
}

// RedisConfig holds configuration for the Redis transport.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"` // e.g. 127.0.0.1:6379
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// NewRedis creates a Redis channel for the given endpoint.
func NewRedis(cfg RedisConfig, ep Endpoint) *Redis {
	addr := cfg.Addr
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		channel: ep.Name(),
	}
}

func (r *Redis) Name() string { return "redis " + r.channel }

// CheckRemote pings the broker.
func (r *Redis) CheckRemote() (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		return false, fmt.Errorf("channel: redis ping: %w", err)
	}
	return true, nil
}

func (r *Redis) Send(b bundle.Bundle) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("channel: encode bundle: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		return fmt.Errorf("channel: publish to %s: %w", r.channel, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
