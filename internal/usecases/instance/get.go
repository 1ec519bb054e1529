package instance

import (
	"context"

	"github.com/google/uuid"

	"wafleet/internal/domain/instance"
	"wafleet/internal/domain/whatsapp"
	"wafleet/pkg/logger"
)

// GetInstanceUseCase implementa o caso de uso para consultar uma instância
type GetInstanceUseCase struct {
	fleet  whatsapp.FleetManager
	logger logger.Logger
}

// NewGetInstanceUseCase cria uma nova instância do caso de uso
func NewGetInstanceUseCase(
	fleet whatsapp.FleetManager,
	logger logger.Logger,
) *GetInstanceUseCase {
	return &GetInstanceUseCase{
		fleet:  fleet,
		logger: logger.WithComponent("get-instance-usecase"),
	}
}

// Execute executa o caso de uso para buscar uma instância pelo ID
func (uc *GetInstanceUseCase) Execute(ctx context.Context, id uuid.UUID) (*instance.Instance, error) {
	inst, err := uc.fleet.GetInstance(ctx, id)
	if err != nil {
		uc.logger.WithError(err).WithField("instanceId", id).Warn().Msg("Failed to get instance")
		return nil, err
	}
	return inst, nil
}
