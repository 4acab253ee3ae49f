package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stellar-sleep/patients-api/pkg/common/config"
	"github.com/stellar-sleep/patients-api/pkg/common/logger"
)

// OpenRedis returns nil when no redis host is configured.
func OpenRedis(cfg *config.Config) *redis.Client {
	if !cfg.RedisEnabled() {
		logger.Log.Info("Redis not configured, custom field cache disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Log.WithError(err).Warn("Failed to connect to Redis, cache reads will fall back to the database")
	} else {
		logger.Log.Info("Connected to Redis")
	}

	return client
}
