package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects the client that backs idempotency records and the
// distributed account locks. The connection is tagged with the application
// name so lock holders can be traced with CLIENT LIST.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, errors.New("redis url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opt.ClientName == "" {
		opt.ClientName = applicationName
	}

	client := redis.NewClient(opt)
	if err := pingRedis(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func pingRedis(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis %s: %w", client.Options().Addr, err)
	}
	return nil
}
