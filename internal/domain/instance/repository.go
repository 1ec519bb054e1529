package instance

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository define as operações de persistência para o registro de instâncias
type Repository interface {
	// Create insere uma nova instância; conflito de nome ou de usuário
	// é sinalizado com ErrInstanceAlreadyExists / ErrUserAlreadyHasInstance
	Create(ctx context.Context, inst *Instance) error

	// GetByID busca uma instância pelo ID
	GetByID(ctx context.Context, id uuid.UUID) (*Instance, error)

	// GetByName busca uma instância pelo nome
	GetByName(ctx context.Context, name string) (*Instance, error)

	// List retorna todas as instâncias, mais recentes primeiro
	List(ctx context.Context) ([]*Instance, error)

	// UpdateStatus atualiza o status de conexão; campos de QR são
	// anulados sempre que o status não for qr_pending
	UpdateStatus(ctx context.Context, id uuid.UUID, status ConnectionStatus) error

	// UpdateQRCode registra um QR pendente com sua expiração
	UpdateQRCode(ctx context.Context, id uuid.UUID, qrCode string, expiresAt time.Time) error

	// UpdateConnected marca a instância como conectada
	UpdateConnected(ctx context.Context, id uuid.UUID, phoneNumber string) error

	// UpdateDisconnected limpa o estado de conexão da instância
	UpdateDisconnected(ctx context.Context, id uuid.UUID) error

	// Delete remove a instância do registro
	Delete(ctx context.Context, id uuid.UUID) error

	// ListRecoverable retorna instâncias em status recuperável, ordenadas
	// por last_connected_at ascendente, limitadas a limit
	ListRecoverable(ctx context.Context, limit int) ([]*Instance, error)
}
