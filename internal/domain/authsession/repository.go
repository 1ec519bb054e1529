package authsession

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrSessionNotFound indica que não há sessão persistida com esse nome
var ErrSessionNotFound = errors.New("auth session not found")

// Repository define as operações de linha sobre whatsapp_sessions
type Repository interface {
	// Get busca a sessão pelo nome da instância
	Get(ctx context.Context, name string) (*Record, error)

	// Upsert grava creds e keys em uma única escrita de linha
	Upsert(ctx context.Context, name string, creds, keys json.RawMessage) error

	// UpdateKeys grava apenas o documento de chaves
	UpdateKeys(ctx context.Context, name string, keys json.RawMessage) error

	// Delete remove a linha; é silencioso quando ela não existe
	Delete(ctx context.Context, name string) error

	// List retorna todas as sessões persistidas (sem os blobs)
	List(ctx context.Context) ([]*Record, error)

	// Exists verifica se há sessão persistida para o nome
	Exists(ctx context.Context, name string) (bool, error)
}
