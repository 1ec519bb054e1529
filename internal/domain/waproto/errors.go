package waproto

import "errors"

var (
	// ErrLoggedOut é o motivo de desconexão emitido quando o usuário
	// removeu o aparelho; a sessão está morta e não deve reconectar
	ErrLoggedOut = errors.New("logged out from whatsapp")

	// ErrConnectionFailure cobre quedas transitórias de conexão
	ErrConnectionFailure = errors.New("connection failure")
)
