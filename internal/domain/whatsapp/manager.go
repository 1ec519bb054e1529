// Package whatsapp define o contrato do gerenciador da frota de conexões.
package whatsapp

import (
	"context"

	"github.com/google/uuid"

	"wafleet/internal/domain/instance"
)

// FleetManager é a fachada do plano de conexão consumida pelos casos de
// uso: criação, consulta, reinício e remoção de instâncias da frota
type FleetManager interface {
	// CreateInstance registra uma instância nova e dispara a primeira conexão
	CreateInstance(ctx context.Context, userID uuid.UUID, name, webhookURL string) (*instance.Instance, error)

	// ListInstances retorna todas as instâncias registradas
	ListInstances(ctx context.Context) ([]*instance.Instance, error)

	// GetInstance busca uma instância pelo ID
	GetInstance(ctx context.Context, id uuid.UUID) (*instance.Instance, error)

	// GetQRCode retorna o QR corrente (espelho em memória tem preferência)
	// e o status de conexão da instância
	GetQRCode(ctx context.Context, id uuid.UUID) (string, instance.ConnectionStatus, error)

	// RestartInstance força um ciclo completo de reconexão
	RestartInstance(ctx context.Context, id uuid.UUID) error

	// DeleteInstance remove socket, espelhos, sessão persistida e registro
	DeleteInstance(ctx context.Context, id uuid.UUID) error
}
