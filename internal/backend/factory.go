package backend

import (
	"context"
	"errors"
	"fmt"

	"fintrack/internal/log"
	"fintrack/internal/remote"
	remotemem "fintrack/internal/remote/memory"
	"fintrack/internal/storage"
	storagemem "fintrack/internal/storage/memory"
)

// DefaultFactory implements the Factory interface.
type DefaultFactory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Nop()
	}
	return &DefaultFactory{logger: logger.WithComponent(log.ComponentStorage)}
}

// Open implements Factory.Open. On failure every backend opened so far is
// closed again.
func (f *DefaultFactory) Open(ctx context.Context, config Config) (*Result, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	blobs, err := f.openStorage(config)
	if err != nil {
		return nil, err
	}

	rem, err := f.openRemote(ctx, config)
	if err != nil {
		_ = blobs.Close()
		return nil, err
	}

	return &Result{
		Blobs:  blobs,
		Remote: rem,
		Cleanup: func() error {
			var errs []error
			if rem != nil {
				errs = append(errs, rem.Close())
			}
			errs = append(errs, blobs.Close())
			return errors.Join(errs...)
		},
	}, nil
}

func (f *DefaultFactory) openStorage(config Config) (Blobs, error) {
	switch config.Storage {
	case SQLiteStorage:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite storage", log.FieldPath, config.SQLiteDBPath)
		return repo, nil
	case MemoryStorage:
		f.logger.Warn("Using in-memory storage, state is lost on exit")
		return storagemem.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", config.Storage)
	}
}

func (f *DefaultFactory) openRemote(ctx context.Context, config Config) (Remote, error) {
	switch config.Remote {
	case "", NoRemote:
		f.logger.Info("No remote store configured, auth and sync disabled")
		return nil, nil
	case MemoryRemote:
		f.logger.Info("Initialized in-memory remote store")
		return remotemem.New(), nil
	case PostgresRemote:
		pg, err := remote.OpenPostgres(ctx, config.DatabaseURL, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres remote: %w", err)
		}
		f.logger.Info("Initialized postgres remote store")
		return pg, nil
	default:
		return nil, fmt.Errorf("unsupported remote backend: %s", config.Remote)
	}
}
