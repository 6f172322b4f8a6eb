package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Connect opens and verifies a Redis client.
func Connect(ctx context.Context, addr, password string, db int, log *zap.Logger) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("could not connect to Redis at %s: %w", addr, err)
	}
	log.Info("connected to Redis", zap.String("addr", addr))
	return rdb, nil
}

func Close(rdb *redis.Client, log *zap.Logger) {
	if rdb == nil {
		return
	}
	if err := rdb.Close(); err != nil {
		log.Warn("closing Redis", zap.Error(err))
		return
	}
	log.Info("Redis connection closed")
}
