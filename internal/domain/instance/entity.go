package instance

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ConnectionStatus representa o status de conexão de uma instância
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusQRPending    ConnectionStatus = "qr_pending"
	StatusConnected    ConnectionStatus = "connected"
	StatusFailed       ConnectionStatus = "failed"
)

// Instance representa uma instância WhatsApp de um tenant
type Instance struct {
	bun.BaseModel `bun:"table:whatsapp_instances,alias:i"`

	ID               uuid.UUID        `bun:"id,pk,type:uuid" json:"id"`
	UserID           uuid.UUID        `bun:"user_id,type:uuid,notnull,unique" json:"user_id"`
	InstanceName     string           `bun:"instance_name,type:text,notnull,unique" json:"instance_name"`
	WebhookURL       string           `bun:"webhook_url,type:text" json:"webhook_url"`
	IsConnected      bool             `bun:"is_connected,type:boolean,notnull,default:false" json:"is_connected"`
	ConnectionStatus ConnectionStatus `bun:"connection_status,type:text,notnull" json:"connection_status"`
	QRCode           *string          `bun:"qr_code,type:text,nullzero" json:"qr_code,omitempty"`
	QRCodeExpiresAt  *time.Time       `bun:"qr_code_expires_at,type:timestamptz,nullzero" json:"qr_code_expires_at,omitempty"`
	OwnerPhoneNumber *string          `bun:"owner_phone_number,type:text,nullzero" json:"owner_phone_number,omitempty"`
	CreatedAt        time.Time        `bun:"created_at,type:timestamptz,notnull" json:"created_at"`
	UpdatedAt        time.Time        `bun:"updated_at,type:timestamptz,notnull" json:"updated_at"`
	LastConnectedAt  *time.Time       `bun:"last_connected_at,type:timestamptz,nullzero" json:"last_connected_at,omitempty"`
}

// RecoverableStatuses são os status que disparam reconexão no boot
func RecoverableStatuses() []ConnectionStatus {
	return []ConnectionStatus{StatusConnected, StatusConnecting, StatusQRPending}
}

// Connected verifica se a instância está conectada
func (i *Instance) Connected() bool {
	return i.ConnectionStatus == StatusConnected
}

// SetConnecting define o status como conectando e limpa campos de QR
func (i *Instance) SetConnecting() {
	i.ConnectionStatus = StatusConnecting
	i.IsConnected = false
	i.QRCode = nil
	i.QRCodeExpiresAt = nil
	i.UpdatedAt = time.Now().UTC()
}

// SetQRPending registra um QR code pendente de pareamento
func (i *Instance) SetQRPending(qrCode string, expiresAt time.Time) {
	i.ConnectionStatus = StatusQRPending
	i.IsConnected = false
	i.QRCode = &qrCode
	i.QRCodeExpiresAt = &expiresAt
	i.UpdatedAt = time.Now().UTC()
}

// SetConnected marca a instância como conectada ao WhatsApp
func (i *Instance) SetConnected(phoneNumber string) {
	now := time.Now().UTC()
	i.ConnectionStatus = StatusConnected
	i.IsConnected = true
	i.QRCode = nil
	i.QRCodeExpiresAt = nil
	i.OwnerPhoneNumber = &phoneNumber
	i.LastConnectedAt = &now
	i.UpdatedAt = now
}

// SetDisconnected limpa todo o estado de conexão da instância
func (i *Instance) SetDisconnected() {
	i.ConnectionStatus = StatusDisconnected
	i.IsConnected = false
	i.QRCode = nil
	i.QRCodeExpiresAt = nil
	i.OwnerPhoneNumber = nil
	i.UpdatedAt = time.Now().UTC()
}

// SetFailed marca a instância como falha após esgotar as tentativas de reconexão
func (i *Instance) SetFailed() {
	i.ConnectionStatus = StatusFailed
	i.IsConnected = false
	i.QRCode = nil
	i.QRCodeExpiresAt = nil
	i.UpdatedAt = time.Now().UTC()
}
