package repo

import (
	"context"

	"roulette-service/internal/config"
	"roulette-service/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var RDB *redis.Client

// InitRedis connects the replica store. It is a no-op when replication is
// disabled so single-node deployments can run without Redis.
func InitRedis() {
	if !config.GlobalConfig.Replica.Enabled {
		logger.Log.Info("Replica disabled, skipping Redis")
		return
	}
	conf := config.GlobalConfig.Redis
	RDB = redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})

	_, err := RDB.Ping(context.Background()).Result()
	if err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
}
