// Package instance contém os casos de uso de gestão de instâncias da frota.
package instance

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"wafleet/internal/domain/instance"
	"wafleet/internal/domain/whatsapp"
	"wafleet/pkg/logger"
)

// CreateInstanceUseCase implementa o caso de uso para criar uma instância
type CreateInstanceUseCase struct {
	fleet     whatsapp.FleetManager
	logger    logger.Logger
	validator *validator.Validate
}

// NewCreateInstanceUseCase cria uma nova instância do caso de uso
func NewCreateInstanceUseCase(
	fleet whatsapp.FleetManager,
	logger logger.Logger,
) *CreateInstanceUseCase {
	return &CreateInstanceUseCase{
		fleet:     fleet,
		logger:    logger.WithComponent("create-instance-usecase"),
		validator: validator.New(),
	}
}

// CreateInstanceRequest representa os dados necessários para criar uma instância
type CreateInstanceRequest struct {
	UserID       string `json:"user_id" validate:"required,uuid"`
	InstanceName string `json:"instance_name" validate:"required,min=3,max=100"`
	WebhookURL   string `json:"webhook_url,omitempty" validate:"omitempty,url"`
}

// Execute executa o caso de uso para criar uma instância
func (uc *CreateInstanceUseCase) Execute(ctx context.Context, req CreateInstanceRequest) (*instance.Instance, error) {
	uc.logger.WithFields(map[string]interface{}{
		"userId":       req.UserID,
		"instanceName": req.InstanceName,
	}).Info().Msg("Creating new instance")

	if err := uc.validator.Struct(req); err != nil {
		uc.logger.WithError(err).Warn().Msg("Invalid create instance request")
		return nil, err
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, err
	}

	inst, err := uc.fleet.CreateInstance(ctx, userID, req.InstanceName, req.WebhookURL)
	if err != nil {
		uc.logger.WithError(err).Error().Msg("Failed to create instance")
		return nil, err
	}

	uc.logger.WithFields(map[string]interface{}{
		"instanceId":   inst.ID,
		"instanceName": inst.InstanceName,
	}).Info().Msg("Instance created successfully")

	return inst, nil
}
