package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"wafleet/internal/domain/authsession"
)

// sessionRepository implementa a interface authsession.Repository
type sessionRepository struct {
	db *bun.DB
}

// NewSessionRepository cria uma nova instância do repositório de sessões
func NewSessionRepository(db *bun.DB) authsession.Repository {
	return &sessionRepository{db: db}
}

// Get busca a sessão pelo nome da instância
func (r *sessionRepository) Get(ctx context.Context, name string) (*authsession.Record, error) {
	rec := new(authsession.Record)
	err := r.db.NewSelect().Model(rec).Where("id = ?", name).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authsession.ErrSessionNotFound
		}
		return nil, err
	}
	return rec, nil
}

// Upsert grava creds e keys em uma única escrita de linha
func (r *sessionRepository) Upsert(ctx context.Context, name string, creds, keys json.RawMessage) error {
	now := time.Now().UTC()
	rec := &authsession.Record{
		ID:        name,
		Creds:     creds,
		Keys:      keys,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.NewInsert().
		Model(rec).
		On("CONFLICT (id) DO UPDATE").
		Set("creds = EXCLUDED.creds").
		Set("keys = EXCLUDED.keys").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// UpdateKeys grava apenas o documento de chaves; cria a linha se preciso
func (r *sessionRepository) UpdateKeys(ctx context.Context, name string, keys json.RawMessage) error {
	now := time.Now().UTC()
	rec := &authsession.Record{
		ID:        name,
		Creds:     json.RawMessage("null"),
		Keys:      keys,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.NewInsert().
		Model(rec).
		On("CONFLICT (id) DO UPDATE").
		Set("keys = EXCLUDED.keys").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

// Delete remove a linha; não reclama quando ela não existe
func (r *sessionRepository) Delete(ctx context.Context, name string) error {
	_, err := r.db.NewDelete().
		Model((*authsession.Record)(nil)).
		Where("id = ?", name).
		Exec(ctx)
	return err
}

// List retorna todas as sessões persistidas, sem os blobs
func (r *sessionRepository) List(ctx context.Context) ([]*authsession.Record, error) {
	var records []*authsession.Record
	err := r.db.NewSelect().
		Model(&records).
		Column("id", "created_at", "updated_at").
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Exists verifica se há sessão persistida para o nome
func (r *sessionRepository) Exists(ctx context.Context, name string) (bool, error) {
	count, err := r.db.NewSelect().
		Model((*authsession.Record)(nil)).
		Where("id = ?", name).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
