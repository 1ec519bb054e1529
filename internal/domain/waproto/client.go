// Package waproto define a fronteira com a biblioteca de protocolo WhatsApp.
// O núcleo só conhece estas interfaces; a implementação real (ou o fake de
// teste) é injetada na construção do coordenador.
package waproto

import "context"

// Version identifica a versão do protocolo negociada com o servidor
type Version [3]uint32

// Logger é a interface de logging esperada pela biblioteca de protocolo
type Logger interface {
	Errorf(format string, args ...any)
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
	Debugf(format string, args ...any)
}

// NopLogger descarta todo o logging da biblioteca de protocolo
type NopLogger struct{}

func (NopLogger) Errorf(string, ...any) {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Debugf(string, ...any) {}

// SocketConfig reúne os parâmetros de construção de um socket
type SocketConfig struct {
	Version Version
	Auth    *AuthState
	Browser [3]string
	Logger  Logger

	GenerateHighQualityLinkPreview bool
	SyncFullHistory                bool
}

// Socket representa uma conexão viva com o WhatsApp
type Socket interface {
	// Events entrega o fluxo de eventos da conexão; o canal é fechado
	// quando o socket termina
	Events() <-chan Event

	// UserID retorna a identidade autenticada do socket
	// (ex.: "5511999999999:12@s.whatsapp.net"); vazio antes do pareamento
	UserID() string

	// Close encerra o socket sem efeitos colaterais de logout
	Close()
}

// SocketFactory constrói sockets de protocolo
type SocketFactory interface {
	NewSocket(cfg SocketConfig) (Socket, error)
}

// VersionFetcher obtém a versão mais recente do protocolo
type VersionFetcher interface {
	FetchLatestVersion(ctx context.Context) (Version, error)
}
