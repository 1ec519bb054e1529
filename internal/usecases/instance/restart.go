package instance

import (
	"context"

	"github.com/google/uuid"

	"wafleet/internal/domain/whatsapp"
	"wafleet/pkg/logger"
)

// RestartInstanceUseCase implementa o caso de uso para reiniciar a conexão
type RestartInstanceUseCase struct {
	fleet  whatsapp.FleetManager
	logger logger.Logger
}

// NewRestartInstanceUseCase cria uma nova instância do caso de uso
func NewRestartInstanceUseCase(
	fleet whatsapp.FleetManager,
	logger logger.Logger,
) *RestartInstanceUseCase {
	return &RestartInstanceUseCase{
		fleet:  fleet,
		logger: logger.WithComponent("restart-instance-usecase"),
	}
}

// Execute executa o caso de uso para reiniciar a instância; a sessão
// persistida é preservada
func (uc *RestartInstanceUseCase) Execute(ctx context.Context, id uuid.UUID) error {
	uc.logger.WithField("instanceId", id).Info().Msg("Restarting instance")

	if err := uc.fleet.RestartInstance(ctx, id); err != nil {
		uc.logger.WithError(err).Error().Msg("Failed to restart instance")
		return err
	}

	uc.logger.WithField("instanceId", id).Info().Msg("Instance restart triggered")
	return nil
}
