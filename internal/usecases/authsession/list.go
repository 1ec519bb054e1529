// Package authsession contém os casos de uso de consulta e limpeza das
// sessões de autenticação persistidas.
package authsession

import (
	"context"
	"time"

	"wafleet/internal/domain/authsession"
	"wafleet/pkg/logger"
)

// SessionInfo é a projeção pública de uma sessão persistida; os blobs de
// credenciais nunca saem pela API
type SessionInfo struct {
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ListSessionsUseCase implementa o caso de uso para listar sessões
type ListSessionsUseCase struct {
	sessions authsession.Repository
	logger   logger.Logger
}

// NewListSessionsUseCase cria uma nova instância do caso de uso
func NewListSessionsUseCase(
	sessions authsession.Repository,
	logger logger.Logger,
) *ListSessionsUseCase {
	return &ListSessionsUseCase{
		sessions: sessions,
		logger:   logger.WithComponent("list-sessions-usecase"),
	}
}

// Execute executa o caso de uso para listar as sessões persistidas
func (uc *ListSessionsUseCase) Execute(ctx context.Context) ([]SessionInfo, error) {
	records, err := uc.sessions.List(ctx)
	if err != nil {
		uc.logger.WithError(err).Error().Msg("Failed to list auth sessions")
		return nil, err
	}

	infos := make([]SessionInfo, 0, len(records))
	for _, rec := range records {
		infos = append(infos, SessionInfo{
			Name:      rec.ID,
			CreatedAt: rec.CreatedAt.Format(time.RFC3339),
			UpdatedAt: rec.UpdatedAt.Format(time.RFC3339),
		})
	}
	return infos, nil
}
