package store

import (
	"fmt"

	"oficiogen/backend/pkg/config"
)

// Backend names accepted by STORE_BACKEND
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Open builds the backend selected by cfg.Store.Backend
func Open(cfg *config.Config) (Backend, error) {
	switch cfg.Store.Backend {
	case BackendMemory, "":
		return NewMemory(), nil
	case BackendRedis:
		return NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB), nil
	case BackendPostgres:
		db, err := config.NewDB(cfg)
		if err != nil {
			return nil, err
		}
		return NewPostgres(db)
	case BackendSQLite:
		return OpenSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
