package repositories

import (
	"roomlink/internal/core/ports"
	"roomlink/internal/infrastructure/reliability"
	"roomlink/internal/infrastructure/repositories/memory"
	redisrepo "roomlink/internal/infrastructure/repositories/redis"
	"roomlink/pkg/circuitbreaker"
	"roomlink/pkg/config"
	"roomlink/pkg/retry"

	"go.uber.org/zap"
)

// NewRoomRepository selects the membership backend from configuration:
// Redis when enabled, otherwise in-process memory. The Redis backend is
// wrapped with retry and a circuit breaker since it crosses the network.
func NewRoomRepository(cfg *config.Config, logger *zap.SugaredLogger) (ports.RoomRepository, error) {
	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			return nil, err
		}
		return reliability.NewRoomRepositoryWrapper(
			redisrepo.NewRedisRoomRepository(client),
			retry.DefaultConfig(),
			circuitbreaker.DefaultConfig(),
			logger,
		), nil
	}

	return memory.NewMemoryRoomRepository(), nil
}
