package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"wafleet/internal/http/responses"
	"wafleet/internal/usecases/authsession"
	"wafleet/pkg/logger"
)

// AuthSessionHandler implementa os handlers das sessões de autenticação
type AuthSessionHandler struct {
	listUseCase   *authsession.ListSessionsUseCase
	getUseCase    *authsession.GetSessionUseCase
	deleteUseCase *authsession.DeleteSessionUseCase
	logger        logger.Logger
}

// NewAuthSessionHandler cria uma nova instância do auth session handler
func NewAuthSessionHandler(
	listUseCase *authsession.ListSessionsUseCase,
	getUseCase *authsession.GetSessionUseCase,
	deleteUseCase *authsession.DeleteSessionUseCase,
	logger logger.Logger,
) *AuthSessionHandler {
	return &AuthSessionHandler{
		listUseCase:   listUseCase,
		getUseCase:    getUseCase,
		deleteUseCase: deleteUseCase,
		logger:        logger.WithComponent("authsession-handler"),
	}
}

// ListSessions lista as sessões persistidas, sem os blobs de credenciais
func (h *AuthSessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.listUseCase.Execute(r.Context())
	if err != nil {
		responses.InternalError(w, "Falha ao listar sessões")
		return
	}

	responses.Success(w, "Sessões listadas com sucesso", sessions)
}

// GetSession consulta a existência de uma sessão persistida pelo nome da
// instância; sessão ausente não é erro, é {exists: false}
func (h *AuthSessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "sessionName")

	existence, err := h.getUseCase.Execute(r.Context(), name)
	if err != nil {
		responses.InternalError(w, "Falha ao consultar sessão")
		return
	}

	responses.Success(w, "Sessão consultada com sucesso", existence)
}

// DeleteSession apaga a sessão persistida; a instância dona terá que
// parear de novo na próxima conexão
func (h *AuthSessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "sessionName")

	if err := h.deleteUseCase.Execute(r.Context(), name); err != nil {
		responses.InternalError(w, "Falha ao remover sessão")
		return
	}

	responses.Success(w, "Sessão removida com sucesso", nil)
}
