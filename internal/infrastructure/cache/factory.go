package cache

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/invoo/backend/internal/domain/shared"
	"github.com/invoo/backend/internal/infrastructure/config"
)

// NewIdempotencyStore creates the webhook dedup store for the given config.
// When Redis is enabled it is required; otherwise the process-local store is
// used, which is fine for single-instance deployments.
func NewIdempotencyStore(cfg config.RedisConfig, logger *zap.Logger) (shared.IdempotencyStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if !cfg.Enabled {
		logger.Info("using in-memory webhook idempotency store")
		return NewInMemoryIdempotencyStore(), nil
	}

	store, err := NewRedisIdempotencyStore(RedisConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("redis idempotency store: %w", err)
	}

	logger.Info("using Redis webhook idempotency store", zap.String("addr", cfg.Addr()))
	return store, nil
}
