package database

import (
	"context"
	"log"

	"github.com/go-redis/redis/v8"

	"github.com/openbank/backend/internal/config"
)

// InitRedis connects the Redis client used as the event bus transport.
// Unlike a cache, the bus is not optional: a failed connection is fatal.
func InitRedis(cfg config.Redis) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("Redis connection failed: %v", err)
	}

	log.Println("Redis connection established")
	return rdb
}
