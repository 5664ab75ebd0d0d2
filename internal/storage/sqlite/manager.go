package sqlite

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/stash/internal/common"
	"github.com/ternarybob/stash/internal/interfaces"
)

// Manager owns the shared database connection and the stores built on
// it.
type Manager struct {
	conn     *DB
	metadata *MetadataStorage
	users    *UserStorage
	logger   arbor.ILogger
}

// NewManager opens the connection and initializes both tables.
func NewManager(ctx context.Context, logger arbor.ILogger, config *common.DatabaseConfig) (*Manager, error) {
	conn, err := NewDB(logger, config)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		conn:     conn,
		metadata: NewMetadataStorage(conn, logger, config.TransactionRetries),
		users:    NewUserStorage(conn, logger),
		logger:   logger,
	}

	if result := m.metadata.Init(ctx); result.Err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize metadata store: %w", result.Err)
	}
	if err := m.users.Init(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	return m, nil
}

// MetadataStore returns the job metadata store.
func (m *Manager) MetadataStore() interfaces.MetadataStore {
	return m.metadata
}

// UserStore returns the user store.
func (m *Manager) UserStore() interfaces.UserStore {
	return m.users
}

// Ping verifies the connection.
func (m *Manager) Ping(ctx context.Context) error {
	return m.conn.Ping(ctx)
}

// Close closes the shared connection.
func (m *Manager) Close() error {
	m.logger.Info().Msg("Closing database")
	return m.conn.Close()
}
