// Package waprototest fornece um cliente de protocolo em memória para testes:
// os sockets não falam rede e os eventos são injetados pelo próprio teste.
package waprototest

import (
	"context"
	"sync"
	"time"

	"wafleet/internal/domain/waproto"
)

// Factory implementa waproto.SocketFactory criando sockets falsos
type Factory struct {
	mu      sync.Mutex
	sockets []*Socket
	calls   []time.Time

	// Err, quando definido, faz NewSocket falhar
	Err error

	// OnConnect, quando definido, roda em goroutine própria logo após
	// a criação de cada socket; o teste usa para emitir eventos
	OnConnect func(s *Socket)
}

// NewFactory cria uma fábrica de sockets falsos
func NewFactory() *Factory {
	return &Factory{}
}

// NewSocket implementa waproto.SocketFactory
func (f *Factory) NewSocket(cfg waproto.SocketConfig) (waproto.Socket, error) {
	f.mu.Lock()
	f.calls = append(f.calls, time.Now())
	if f.Err != nil {
		err := f.Err
		f.mu.Unlock()
		return nil, err
	}
	s := &Socket{
		cfg:    cfg,
		events: make(chan waproto.Event, 32),
	}
	f.sockets = append(f.sockets, s)
	onConnect := f.OnConnect
	f.mu.Unlock()

	if onConnect != nil {
		go onConnect(s)
	}
	return s, nil
}

// Sockets retorna todos os sockets criados até agora
func (f *Factory) Sockets() []*Socket {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Socket, len(f.sockets))
	copy(out, f.sockets)
	return out
}

// CallTimes retorna os instantes de cada chamada a NewSocket
func (f *Factory) CallTimes() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Time, len(f.calls))
	copy(out, f.calls)
	return out
}

// Calls retorna quantas vezes NewSocket foi chamada
func (f *Factory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// Socket é um waproto.Socket controlado pelo teste
type Socket struct {
	cfg    waproto.SocketConfig
	events chan waproto.Event

	mu     sync.Mutex
	userID string
	closed bool
}

// Events implementa waproto.Socket
func (s *Socket) Events() <-chan waproto.Event {
	return s.events
}

// UserID implementa waproto.Socket
func (s *Socket) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Close implementa waproto.Socket; fechar duas vezes é seguro
func (s *Socket) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

// Config retorna a configuração usada na construção do socket
func (s *Socket) Config() waproto.SocketConfig {
	return s.cfg
}

// Emit injeta um evento; eventos após Close são descartados
func (s *Socket) Emit(evt waproto.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- evt
}

// EmitQR injeta um desafio de pareamento
func (s *Socket) EmitQR(code string) {
	s.Emit(&waproto.QREvent{Code: code})
}

// EmitOpen injeta a abertura da conexão com a identidade dada
func (s *Socket) EmitOpen(userID string) {
	s.mu.Lock()
	s.userID = userID
	s.mu.Unlock()
	s.Emit(&waproto.ConnectionOpen{})
}

// EmitClose injeta uma queda de conexão com o motivo dado
func (s *Socket) EmitClose(reason error) {
	s.Emit(&waproto.ConnectionClosed{Reason: reason})
}

// EmitCredsUpdate injeta uma rotação de credenciais
func (s *Socket) EmitCredsUpdate() {
	s.Emit(&waproto.CredsUpdate{})
}

// Versions implementa waproto.VersionFetcher com resposta fixa
type Versions struct {
	mu    sync.Mutex
	V     waproto.Version
	Err   error
	calls int
}

// FetchLatestVersion implementa waproto.VersionFetcher
func (v *Versions) FetchLatestVersion(_ context.Context) (waproto.Version, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.Err != nil {
		return waproto.Version{}, v.Err
	}
	return v.V, nil
}

// FetchCalls retorna quantas buscas de versão aconteceram
func (v *Versions) FetchCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}
