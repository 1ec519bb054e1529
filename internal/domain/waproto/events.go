package waproto

// Event é o tipo marcador dos eventos emitidos por um Socket.
// A entrega é serializada: um consumidor por socket preserva a ordem.
type Event interface {
	isEvent()
}

// QREvent carrega um novo desafio de pareamento emitido pelo servidor
type QREvent struct {
	Code string
}

// ConnectionOpen indica que o socket autenticou e está pronto
type ConnectionOpen struct{}

// ConnectionClosed indica que o socket caiu; Reason descreve o motivo.
// errors.Is(Reason, ErrLoggedOut) identifica um logout definitivo.
type ConnectionClosed struct {
	Reason error
}

// CredsUpdate indica que o documento de credenciais mudou e deve ser persistido
type CredsUpdate struct{}

func (*QREvent) isEvent()          {}
func (*ConnectionOpen) isEvent()   {}
func (*ConnectionClosed) isEvent() {}
func (*CredsUpdate) isEvent()      {}
