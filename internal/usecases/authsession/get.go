package authsession

import (
	"context"

	"wafleet/internal/domain/authsession"
	"wafleet/pkg/logger"
)

// GetSessionUseCase implementa o caso de uso para consultar uma sessão
type GetSessionUseCase struct {
	sessions authsession.Repository
	logger   logger.Logger
}

// NewGetSessionUseCase cria uma nova instância do caso de uso
func NewGetSessionUseCase(
	sessions authsession.Repository,
	logger logger.Logger,
) *GetSessionUseCase {
	return &GetSessionUseCase{
		sessions: sessions,
		logger:   logger.WithComponent("get-session-usecase"),
	}
}

// SessionExistence informa se a sessão persistida existe
type SessionExistence struct {
	Exists bool `json:"exists"`
}

// Execute consulta a existência da sessão pelo nome; ausência não é erro
func (uc *GetSessionUseCase) Execute(ctx context.Context, name string) (*SessionExistence, error) {
	exists, err := uc.sessions.Exists(ctx, name)
	if err != nil {
		uc.logger.WithError(err).WithField("session", name).Error().Msg("Failed to check auth session")
		return nil, err
	}

	return &SessionExistence{Exists: exists}, nil
}
