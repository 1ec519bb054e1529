package instance

import (
	"context"

	"github.com/google/uuid"

	"wafleet/internal/domain/whatsapp"
	"wafleet/pkg/logger"
)

// DeleteInstanceUseCase implementa o caso de uso para remover uma instância
type DeleteInstanceUseCase struct {
	fleet  whatsapp.FleetManager
	logger logger.Logger
}

// NewDeleteInstanceUseCase cria uma nova instância do caso de uso
func NewDeleteInstanceUseCase(
	fleet whatsapp.FleetManager,
	logger logger.Logger,
) *DeleteInstanceUseCase {
	return &DeleteInstanceUseCase{
		fleet:  fleet,
		logger: logger.WithComponent("delete-instance-usecase"),
	}
}

// Execute executa o caso de uso para remover a instância e sua sessão
func (uc *DeleteInstanceUseCase) Execute(ctx context.Context, id uuid.UUID) error {
	uc.logger.WithField("instanceId", id).Info().Msg("Deleting instance")

	if err := uc.fleet.DeleteInstance(ctx, id); err != nil {
		uc.logger.WithError(err).Error().Msg("Failed to delete instance")
		return err
	}

	uc.logger.WithField("instanceId", id).Info().Msg("Instance deleted successfully")
	return nil
}
