package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	domain "wafleet/internal/domain/instance"
	"wafleet/internal/http/responses"
	"wafleet/internal/usecases/instance"
	"wafleet/pkg/logger"
)

// InstanceHandler implementa os handlers das instâncias da frota
type InstanceHandler struct {
	createUseCase  *instance.CreateInstanceUseCase
	listUseCase    *instance.ListInstancesUseCase
	getUseCase     *instance.GetInstanceUseCase
	qrUseCase      *instance.GetQRCodeUseCase
	restartUseCase *instance.RestartInstanceUseCase
	deleteUseCase  *instance.DeleteInstanceUseCase
	logger         logger.Logger
}

// NewInstanceHandler cria uma nova instância do instance handler
func NewInstanceHandler(
	createUseCase *instance.CreateInstanceUseCase,
	listUseCase *instance.ListInstancesUseCase,
	getUseCase *instance.GetInstanceUseCase,
	qrUseCase *instance.GetQRCodeUseCase,
	restartUseCase *instance.RestartInstanceUseCase,
	deleteUseCase *instance.DeleteInstanceUseCase,
	logger logger.Logger,
) *InstanceHandler {
	return &InstanceHandler{
		createUseCase:  createUseCase,
		listUseCase:    listUseCase,
		getUseCase:     getUseCase,
		qrUseCase:      qrUseCase,
		restartUseCase: restartUseCase,
		deleteUseCase:  deleteUseCase,
		logger:         logger.WithComponent("instance-handler"),
	}
}

// CreateInstance cria uma nova instância e dispara a primeira conexão
func (h *InstanceHandler) CreateInstance(w http.ResponseWriter, r *http.Request) {
	var req instance.CreateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WithError(err).Warn().Msg("Failed to decode create instance request")
		responses.BadRequest(w, "Invalid request body", err.Error())
		return
	}

	inst, err := h.createUseCase.Execute(r.Context(), req)
	if err != nil {
		h.writeCreateError(w, err)
		return
	}

	responses.Created(w, "Instância criada com sucesso", inst)
}

// writeCreateError traduz os erros de criação em status HTTP
func (h *InstanceHandler) writeCreateError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		responses.BadRequest(w, "Dados inválidos", validationErrs.Error())
	case errors.Is(err, domain.ErrUserAlreadyHasInstance):
		responses.Conflict(w, "Usuário já possui uma instância", "USER_ALREADY_HAS_INSTANCE")
	case errors.Is(err, domain.ErrInstanceAlreadyExists):
		responses.Conflict(w, "Nome de instância já está em uso", "INSTANCE_ALREADY_EXISTS")
	case errors.Is(err, domain.ErrMaxInstancesReached):
		responses.Conflict(w, "Limite de instâncias da frota atingido", "MAX_INSTANCES_REACHED")
	default:
		responses.InternalError(w, "Falha ao criar instância")
	}
}

// ListInstances lista todas as instâncias da frota
func (h *InstanceHandler) ListInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := h.listUseCase.Execute(r.Context())
	if err != nil {
		responses.InternalError(w, "Falha ao listar instâncias")
		return
	}

	responses.Success(w, "Instâncias listadas com sucesso", instances)
}

// GetInstance obtém uma instância específica pelo ID
func (h *InstanceHandler) GetInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.instanceID(w, r)
	if !ok {
		return
	}

	inst, err := h.getUseCase.Execute(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrInstanceNotFound) {
			responses.NotFound(w, "Instância não encontrada")
			return
		}
		responses.InternalError(w, "Falha ao buscar instância")
		return
	}

	responses.Success(w, "Instância encontrada", inst)
}

// GetQRCode obtém o QR de pareamento corrente da instância
func (h *InstanceHandler) GetQRCode(w http.ResponseWriter, r *http.Request) {
	id, ok := h.instanceID(w, r)
	if !ok {
		return
	}

	qr, err := h.qrUseCase.Execute(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrInstanceNotFound) {
			responses.NotFound(w, "Instância não encontrada")
			return
		}
		responses.InternalError(w, "Falha ao obter QR code")
		return
	}

	responses.Success(w, "QR code obtido com sucesso", qr)
}

// RestartInstance força um ciclo completo de reconexão da instância
func (h *InstanceHandler) RestartInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.instanceID(w, r)
	if !ok {
		return
	}

	if err := h.restartUseCase.Execute(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrInstanceNotFound) {
			responses.NotFound(w, "Instância não encontrada")
			return
		}
		responses.InternalError(w, "Falha ao reiniciar instância")
		return
	}

	responses.Success(w, "Reinício da instância disparado", nil)
}

// DeleteInstance remove a instância, sua sessão e seu socket
func (h *InstanceHandler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	id, ok := h.instanceID(w, r)
	if !ok {
		return
	}

	if err := h.deleteUseCase.Execute(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrInstanceNotFound) {
			responses.NotFound(w, "Instância não encontrada")
			return
		}
		responses.InternalError(w, "Falha ao remover instância")
		return
	}

	responses.Success(w, "Instância removida com sucesso", nil)
}

// instanceID extrai e valida o ID da instância da URL
func (h *InstanceHandler) instanceID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "instanceID")
	id, err := uuid.Parse(raw)
	if err != nil {
		responses.BadRequest(w, "ID de instância inválido", raw)
		return uuid.Nil, false
	}
	return id, true
}
