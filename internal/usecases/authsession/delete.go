package authsession

import (
	"context"

	"wafleet/pkg/logger"
)

// SessionRemover descarta uma sessão por completo: escritas pendentes em
// memória e a linha persistida. Implementado pelo armazém de estado.
type SessionRemover interface {
	RemoveSession(ctx context.Context, name string) error
}

// DeleteSessionUseCase implementa o caso de uso para apagar uma sessão
type DeleteSessionUseCase struct {
	remover SessionRemover
	logger  logger.Logger
}

// NewDeleteSessionUseCase cria uma nova instância do caso de uso
func NewDeleteSessionUseCase(
	remover SessionRemover,
	logger logger.Logger,
) *DeleteSessionUseCase {
	return &DeleteSessionUseCase{
		remover: remover,
		logger:  logger.WithComponent("delete-session-usecase"),
	}
}

// Execute executa o caso de uso para apagar a sessão persistida; a
// instância dona precisará parear de novo na próxima conexão
func (uc *DeleteSessionUseCase) Execute(ctx context.Context, name string) error {
	uc.logger.WithField("session", name).Info().Msg("Deleting auth session")

	if err := uc.remover.RemoveSession(ctx, name); err != nil {
		uc.logger.WithError(err).Error().Msg("Failed to delete auth session")
		return err
	}
	return nil
}
