package persistence

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// NewStore creates a Store for cfg.Type.
func NewStore(ctx context.Context, cfg StoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		store Store
		err   error
	)
	switch cfg.Type {
	case StoreTypeMemory, "":
		store = NewMemoryStore()
	case StoreTypeFile:
		store, err = NewFileStore(cfg.BaseDir)
	case StoreTypeRedis:
		store, err = NewRedisStore(ctx, cfg.Redis)
	case StoreTypeSQL:
		store, err = NewSQLStore(cfg.SQL, logger)
	case StoreTypeMongo:
		store, err = NewMongoStore(ctx, cfg.Mongo)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("session store ready", zap.String("type", string(cfg.Type)))
	return store, nil
}
