// Package storage selects and opens the configured repository backend.
package storage

import (
	"context"
	"fmt"

	"github.com/iwvelando/loan-engine/internal/repository"
	"github.com/iwvelando/loan-engine/internal/repository/memory"
	"github.com/iwvelando/loan-engine/internal/repository/sqlite"
	"github.com/iwvelando/loan-engine/pkg/constants"
	"go.uber.org/zap"
)

// Config selects a backend.
type Config struct {
	Backend    string
	SQLitePath string
}

// CleanupFunc releases backend resources.
type CleanupFunc func() error

// Result is an opened backend.
type Result struct {
	Repositories *repository.Set
	Cleanup      CleanupFunc
}

// Open creates the repositories for cfg.Backend.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Backend {
	case constants.StorageMemory, "":
		logger.Info("initialized memory storage", zap.String("op", "storage.Open"))
		return &Result{
			Repositories: memory.NewSet(),
			Cleanup:      func() error { return nil },
		}, nil
	case constants.StorageSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = constants.DefaultSQLitePath
		}
		db, err := sqlite.Open(ctx, path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sqlite storage: %w", err)
		}
		return &Result{
			Repositories: db.Set(),
			Cleanup:      db.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
