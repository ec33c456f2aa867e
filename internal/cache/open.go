package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/estimapres/edgehub/internal/config"
)

// Open 根据 Store 配置选择驱动。redis 驱动会先 Ping 一次，尽早暴露连接问题。
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "", config.StoreDriverFS:
		return NewStore(cfg.Path)
	case config.StoreDriverMemory:
		return NewMemoryStore(cfg.MaxMemoryCost)
	case config.StoreDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return NewRedisStore(client, cfg.RedisPrefix, true)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}
