package admincli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/schoolhub/internal/config"
	"github.com/magabrotheeeer/schoolhub/internal/migrations"
	"github.com/magabrotheeeer/schoolhub/internal/storage/repository"
)

type sqlMigrator struct {
	db   *sql.DB
	path string
}

func (m sqlMigrator) Up() error { return migrations.Run(m.db, m.path) }
func (m sqlMigrator) Down(steps int) error { return migrations.Down(m.db, m.path, steps) }
func (m sqlMigrator) Version() (uint, bool, error) { return migrations.Version(m.db, m.path) }

// OpenPostgres читает конфиг и подключается к PostgreSQL.
func OpenPostgres(_ context.Context, configPath string) (*Backend, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect storage: %w", err)
	}
	return &Backend{
		Store:    db,
		Migrator: sqlMigrator{db: db.DB, path: cfg.MigrationsPath},
		Close:    db.Close,
	}, nil
}
