package instance

import (
	"context"

	"wafleet/internal/domain/instance"
	"wafleet/internal/domain/whatsapp"
	"wafleet/pkg/logger"
)

// ListInstancesUseCase implementa o caso de uso para listar instâncias
type ListInstancesUseCase struct {
	fleet  whatsapp.FleetManager
	logger logger.Logger
}

// NewListInstancesUseCase cria uma nova instância do caso de uso
func NewListInstancesUseCase(
	fleet whatsapp.FleetManager,
	logger logger.Logger,
) *ListInstancesUseCase {
	return &ListInstancesUseCase{
		fleet:  fleet,
		logger: logger.WithComponent("list-instances-usecase"),
	}
}

// Execute executa o caso de uso para listar todas as instâncias
func (uc *ListInstancesUseCase) Execute(ctx context.Context) ([]*instance.Instance, error) {
	instances, err := uc.fleet.ListInstances(ctx)
	if err != nil {
		uc.logger.WithError(err).Error().Msg("Failed to list instances")
		return nil, err
	}

	uc.logger.WithField("count", len(instances)).Debug().Msg("Instances listed")
	return instances, nil
}
