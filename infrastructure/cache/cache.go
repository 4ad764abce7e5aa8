package cache

import (
	"context"
	"fmt"

	"linkhealth/infrastructure/logger"

	"github.com/redis/go-redis/v9"
)

// NewCache connects to Redis and pings it once.
func NewCache(ctx context.Context, addr, username, password string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: username,
		Password: password,
		DB:       0,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		logger.GetLogger().WithField("error", err).WithField("addr", addr).Warn("Redis ping failed")
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}
