package backend

import (
	"context"
	"fmt"

	"fincast/internal/ledger/google"
	"fincast/internal/ledger/memory"
	"fincast/internal/log"
	"fincast/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLBackend(ctx, config.Type, func() (*storage.Repository, error) {
			return storage.NewSQLiteRepository(config.SQLiteDBPath)
		})
	case PostgresBackend:
		return f.createSQLBackend(ctx, config.Type, func() (*storage.Repository, error) {
			return storage.NewPostgresRepository(config.PostgresDSN)
		})
	case SheetsBackend:
		return f.createSheetsBackend(ctx)
	case MemoryBackend:
		return f.createMemoryBackend(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLBackend(ctx context.Context, bt BackendType, open func() (*storage.Repository, error)) (*BackendResult, error) {
	repo, err := open()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s repository: %w", bt, err)
	}

	f.logger.InfoContext(ctx, "Initialized SQL backend", log.FieldBackend, bt.String())

	return &BackendResult{
		Reader:  repo,
		Store:   repo,
		Ping:    repo.Ping,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context) (*BackendResult, error) {
	cli, err := google.NewFromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized Google Sheets backend")

	return &BackendResult{Reader: cli}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config) (*BackendResult, error) {
	dataDir := config.DataDirectory
	if dataDir == "" {
		dataDir = "data"
	}

	store, err := memory.NewFromFiles(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory ledger: %w", err)
	}

	f.logger.InfoContext(ctx, "Initialized memory backend", "data_directory", dataDir, log.FieldSkipped, store.Skipped())

	return &BackendResult{Reader: store}, nil
}
