package handlers

import (
	"net/http"

	"wafleet/internal/http/responses"
)

// HealthHandler implementa o handler para health check
type HealthHandler struct{}

// NewHealthHandler cria uma nova instância do health handler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Health verifica a saúde da aplicação
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	responses.Success(w, "Service is healthy", map[string]interface{}{
		"status":  "ok",
		"service": "wafleet-api",
	})
}
