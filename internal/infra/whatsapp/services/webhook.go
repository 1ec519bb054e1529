// Package services contém colaboradores finos do plano de conexão.
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"wafleet/pkg/logger"
)

// WebhookNotifier entrega eventos de ciclo de vida ao webhook configurado
// da instância. A entrega é assíncrona e de melhor esforço: falhas são
// logadas e nunca interrompem o fluxo de conexão.
type WebhookNotifier struct {
	client *http.Client
	log    logger.Logger
}

// webhookPayload é o corpo enviado ao endpoint do usuário
type webhookPayload struct {
	InstanceID uuid.UUID      `json:"instance_id"`
	Event      string         `json:"event"`
	Timestamp  time.Time      `json:"timestamp"`
	Data       map[string]any `json:"data,omitempty"`
}

// NewWebhookNotifier cria o notificador de webhooks
func NewWebhookNotifier(log logger.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.WithComponent("webhook"),
	}
}

// Notify envia o evento em background; url vazia desliga a entrega
func (n *WebhookNotifier) Notify(instanceID uuid.UUID, url, event string, data map[string]any) {
	if url == "" {
		return
	}

	payload := webhookPayload{
		InstanceID: instanceID,
		Event:      event,
		Timestamp:  time.Now().UTC(),
		Data:       data,
	}

	go func() {
		if err := n.deliver(url, payload); err != nil {
			n.log.WithError(err).Warn().
				Str("instance_id", instanceID.String()).
				Str("event", event).
				Msg("Failed to deliver webhook")
		}
	}()
}

// deliver tenta a entrega até 3 vezes com backoff quadrático
func (n *WebhookNotifier) deliver(url string, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if attempt > 1 {
			time.Sleep(time.Duration(attempt*attempt) * time.Second)
		}

		resp, err := n.client.Post(url, "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return lastErr
}
