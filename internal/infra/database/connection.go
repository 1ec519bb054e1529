package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"wafleet/internal/domain/authsession"
	"wafleet/internal/domain/instance"
	"wafleet/pkg/logger"
)

// NewDatabase cria uma nova conexão com o banco de dados PostgreSQL
func NewDatabase(dsn string, debug bool, log logger.Logger) (*bun.DB, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))

	db := bun.NewDB(sqldb, pgdialect.New())

	if debug {
		db.AddQueryHook(logger.NewBunQueryHook(log))
	}

	sqldb.SetMaxOpenConns(25)
	sqldb.SetMaxIdleConns(25)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return db, nil
}

// RunMigrations cria as tabelas do registro de instâncias e das sessões
func RunMigrations(db *bun.DB) error {
	ctx := context.Background()

	if _, err := db.NewCreateTable().
		Model((*instance.Instance)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create whatsapp_instances table: %w", err)
	}

	if _, err := db.NewCreateTable().
		Model((*authsession.Record)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("failed to create whatsapp_sessions table: %w", err)
	}

	return nil
}
