package instance

import "errors"

// Erros de domínio específicos para instâncias
var (
	// ErrInstanceNotFound indica que a instância não foi encontrada
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrInstanceAlreadyExists indica que já existe instância com o mesmo nome
	ErrInstanceAlreadyExists = errors.New("instance name already in use")

	// ErrUserAlreadyHasInstance indica que o usuário já possui uma instância
	ErrUserAlreadyHasInstance = errors.New("user already has an instance")

	// ErrMaxInstancesReached indica que o limite da frota foi atingido
	ErrMaxInstancesReached = errors.New("maximum number of instances reached")

	// ErrReconnectLimitReached indica que as tentativas de reconexão se esgotaram
	ErrReconnectLimitReached = errors.New("reconnect attempt limit reached")
)
