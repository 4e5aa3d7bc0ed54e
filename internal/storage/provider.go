package storage

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/agentcom/agentcom/internal/common/config"
	"github.com/agentcom/agentcom/internal/common/logger"
)

// Provide opens the configured store backend. The returned cleanup closes
// the store and, for SQLite, runs PRAGMA optimize so the query planner
// statistics stay current across restarts.
func Provide(cfg config.StorageConfig, log *logger.Logger) (Store, func() error, error) {
	switch cfg.Driver {
	case "", "sqlite":
		writer, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		reader, err := OpenSQLiteReader(cfg.SQLitePath)
		if err != nil {
			_ = writer.Close()
			return nil, nil, fmt.Errorf("failed to open sqlite read pool: %w", err)
		}
		store := NewSQLStore(NewPool(writer, reader), log)
		if log != nil {
			log.Info("storage initialized",
				zap.String("driver", "sqlite"),
				zap.String("path", cfg.SQLitePath))
		}
		cleanup := func() error {
			_, _ = writer.Exec("PRAGMA optimize")
			return store.Close()
		}
		return store, cleanup, nil

	case "postgres":
		db, err := OpenPostgres(cfg.DSN(), cfg.MaxConns)
		if err != nil {
			return nil, nil, err
		}
		store := NewSQLStore(NewPool(db, db), log)
		if log != nil {
			log.Info("storage initialized",
				zap.String("driver", "postgres"),
				zap.String("host", cfg.Host),
				zap.String("database", cfg.DBName))
		}
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}
