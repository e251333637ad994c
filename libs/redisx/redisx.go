package redisx

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

func Open(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

func ReadyCheck(client *redis.Client) func(context.Context) error {
	return func(ctx context.Context) error {
		if client == nil {
			return errors.New("redis not configured")
		}
		return client.Ping(ctx).Err()
	}
}

// ChangeChannel names the tenant-scoped change-feed channel for one table,
// e.g. "salon:abc:appointments". Writers publish here after a committed
// write; every open calendar session for the salon subscribes.
func ChangeChannel(salonID, table string) string {
	return "salon:" + salonID + ":" + table
}
