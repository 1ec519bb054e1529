package instance

import (
	"context"

	"github.com/google/uuid"

	"wafleet/internal/domain/whatsapp"
	"wafleet/pkg/logger"
)

// GetQRCodeUseCase implementa o caso de uso para obter o QR de pareamento
type GetQRCodeUseCase struct {
	fleet  whatsapp.FleetManager
	logger logger.Logger
}

// NewGetQRCodeUseCase cria uma nova instância do caso de uso
func NewGetQRCodeUseCase(
	fleet whatsapp.FleetManager,
	logger logger.Logger,
) *GetQRCodeUseCase {
	return &GetQRCodeUseCase{
		fleet:  fleet,
		logger: logger.WithComponent("get-qr-usecase"),
	}
}

// QRCodeResponse representa a resposta do QR code
type QRCodeResponse struct {
	QRCode string `json:"qr_code"`
	Status string `json:"status"`
}

// Execute executa o caso de uso para obter o QR code da instância
func (uc *GetQRCodeUseCase) Execute(ctx context.Context, id uuid.UUID) (*QRCodeResponse, error) {
	qrCode, status, err := uc.fleet.GetQRCode(ctx, id)
	if err != nil {
		uc.logger.WithError(err).WithField("instanceId", id).Warn().Msg("Failed to get QR code")
		return nil, err
	}

	uc.logger.WithFields(map[string]interface{}{
		"instanceId": id,
		"hasQRCode":  qrCode != "",
		"status":     status,
	}).Debug().Msg("QR code retrieved")

	return &QRCodeResponse{
		QRCode: qrCode,
		Status: string(status),
	}, nil
}
