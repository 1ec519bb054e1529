package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"wafleet/internal/domain/instance"
)

// instanceRepository implementa a interface instance.Repository
type instanceRepository struct {
	db *bun.DB
}

// NewInstanceRepository cria uma nova instância do repositório de instâncias
func NewInstanceRepository(db *bun.DB) instance.Repository {
	return &instanceRepository{db: db}
}

// Create insere uma nova instância no registro
func (r *instanceRepository) Create(ctx context.Context, inst *instance.Instance) error {
	now := time.Now().UTC()
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	inst.CreatedAt = now
	inst.UpdatedAt = now
	if inst.ConnectionStatus == "" {
		inst.ConnectionStatus = instance.StatusDisconnected
	}

	_, err := r.db.NewInsert().Model(inst).Exec(ctx)
	if err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

// mapUniqueViolation traduz violações de unicidade em erros de domínio
func mapUniqueViolation(err error) error {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == "23505" {
		constraint := pgErr.Field('n')
		if strings.Contains(constraint, "user_id") {
			return instance.ErrUserAlreadyHasInstance
		}
		return instance.ErrInstanceAlreadyExists
	}
	return err
}

// GetByID busca uma instância pelo ID
func (r *instanceRepository) GetByID(ctx context.Context, id uuid.UUID) (*instance.Instance, error) {
	inst := new(instance.Instance)
	err := r.db.NewSelect().Model(inst).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, instance.ErrInstanceNotFound
		}
		return nil, err
	}
	return inst, nil
}

// GetByName busca uma instância pelo nome
func (r *instanceRepository) GetByName(ctx context.Context, name string) (*instance.Instance, error) {
	inst := new(instance.Instance)
	err := r.db.NewSelect().Model(inst).Where("instance_name = ?", name).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, instance.ErrInstanceNotFound
		}
		return nil, err
	}
	return inst, nil
}

// List retorna todas as instâncias, mais recentes primeiro
func (r *instanceRepository) List(ctx context.Context) ([]*instance.Instance, error) {
	var instances []*instance.Instance
	err := r.db.NewSelect().
		Model(&instances).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return instances, nil
}

// UpdateStatus atualiza o status de conexão; fora de qr_pending os
// campos de QR são anulados para manter o invariante da linha
func (r *instanceRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status instance.ConnectionStatus) error {
	q := r.db.NewUpdate().
		Model((*instance.Instance)(nil)).
		Set("connection_status = ?", status).
		Set("is_connected = ?", status == instance.StatusConnected).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id)

	if status != instance.StatusQRPending {
		q = q.Set("qr_code = NULL").Set("qr_code_expires_at = NULL")
	}

	_, err := q.Exec(ctx)
	return err
}

// UpdateQRCode registra um QR pendente de pareamento
func (r *instanceRepository) UpdateQRCode(ctx context.Context, id uuid.UUID, qrCode string, expiresAt time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*instance.Instance)(nil)).
		Set("connection_status = ?", instance.StatusQRPending).
		Set("is_connected = ?", false).
		Set("qr_code = ?", qrCode).
		Set("qr_code_expires_at = ?", expiresAt).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// UpdateConnected marca a instância como conectada
func (r *instanceRepository) UpdateConnected(ctx context.Context, id uuid.UUID, phoneNumber string) error {
	now := time.Now().UTC()
	_, err := r.db.NewUpdate().
		Model((*instance.Instance)(nil)).
		Set("connection_status = ?", instance.StatusConnected).
		Set("is_connected = ?", true).
		Set("qr_code = NULL").
		Set("qr_code_expires_at = NULL").
		Set("owner_phone_number = ?", phoneNumber).
		Set("last_connected_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// UpdateDisconnected limpa o estado de conexão da instância
func (r *instanceRepository) UpdateDisconnected(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*instance.Instance)(nil)).
		Set("connection_status = ?", instance.StatusDisconnected).
		Set("is_connected = ?", false).
		Set("qr_code = NULL").
		Set("qr_code_expires_at = NULL").
		Set("owner_phone_number = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// Delete remove uma instância do registro
func (r *instanceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*instance.Instance)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return instance.ErrInstanceNotFound
	}
	return nil
}

// ListRecoverable retorna instâncias em status recuperável para o boot,
// mais antigas primeiro
func (r *instanceRepository) ListRecoverable(ctx context.Context, limit int) ([]*instance.Instance, error) {
	var instances []*instance.Instance
	err := r.db.NewSelect().
		Model(&instances).
		Where("connection_status IN (?)", bun.In(instance.RecoverableStatuses())).
		OrderExpr("last_connected_at ASC NULLS FIRST").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return instances, nil
}
