package waclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"wafleet/internal/domain/waproto"
	"wafleet/internal/infra/whatsapp/authstate"
	"wafleet/pkg/logger"
)

// Factory implementa waproto.SocketFactory sobre a ponte WebSocket com o
// engine de protocolo. O engine é quem fala o protocolo binário com o
// WhatsApp; este processo fica dono do estado de sessão e do ciclo de
// vida, e os dois conversam por frames JSON.
type Factory struct {
	engineURL string
	dialer    *websocket.Dialer
	log       logger.Logger
}

// NewFactory cria a fábrica de sockets apontando para o engine
func NewFactory(engineURL string, log logger.Logger) *Factory {
	return &Factory{
		engineURL: engineURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
		log: log.WithComponent("waclient"),
	}
}

// frame é a unidade de conversa com o engine, nos dois sentidos
type frame struct {
	Type string `json:"type"`

	// init
	Version waproto.Version `json:"version,omitempty"`
	Browser []string        `json:"browser,omitempty"`
	Creds   json.RawMessage `json:"creds,omitempty"`

	// qr / open / close
	Code   string `json:"code,omitempty"`
	UserID string `json:"user_id,omitempty"`
	Reason string `json:"reason,omitempty"`

	// keys.get / keys.get.result / keys.set
	ID      int64           `json:"id,omitempty"`
	KeyType string          `json:"key_type,omitempty"`
	IDs     []string        `json:"ids,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Patch   json.RawMessage `json:"patch,omitempty"`
}

// NewSocket implementa waproto.SocketFactory: abre a ponte, entrega o
// estado de autenticação ao engine e passa a traduzir frames em eventos
func (f *Factory) NewSocket(cfg waproto.SocketConfig) (waproto.Socket, error) {
	conn, _, err := f.dialer.Dial(f.engineURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial protocol engine: %w", err)
	}

	cfg.Auth.CredsMu.Lock()
	creds, err := authstate.Encode(cfg.Auth.Creds)
	cfg.Auth.CredsMu.Unlock()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to encode creds for engine: %w", err)
	}

	s := &bridgeSocket{
		conn:   conn,
		cfg:    cfg,
		events: make(chan waproto.Event, 32),
		log:    f.log,
	}

	if err := s.write(frame{
		Type:    "init",
		Version: cfg.Version,
		Browser: cfg.Browser[:],
		Creds:   creds,
	}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send init frame: %w", err)
	}

	go s.readLoop()
	return s, nil
}

// bridgeSocket é um waproto.Socket cujos eventos chegam do engine
type bridgeSocket struct {
	conn   *websocket.Conn
	cfg    waproto.SocketConfig
	events chan waproto.Event
	log    logger.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	userID   string
	closed   bool
	sawClose bool
}

// Events implementa waproto.Socket
func (s *bridgeSocket) Events() <-chan waproto.Event {
	return s.events
}

// UserID implementa waproto.Socket
func (s *bridgeSocket) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Close implementa waproto.Socket; derruba a ponte sem efeitos de logout
func (s *bridgeSocket) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.conn.Close()
}

func (s *bridgeSocket) write(fr frame) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(fr)
}

// emit entrega um evento a menos que o socket já tenha sido fechado
func (s *bridgeSocket) emit(evt waproto.Event) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if !closed {
		s.events <- evt
	}
}

// readLoop consome frames do engine até a conexão cair. Uma queda sem
// frame de close é tratada como falha de conexão.
func (s *bridgeSocket) readLoop() {
	defer func() {
		s.mu.Lock()
		sawClose := s.sawClose
		closed := s.closed
		s.closed = true
		s.mu.Unlock()

		if !sawClose && !closed {
			s.events <- &waproto.ConnectionClosed{Reason: waproto.ErrConnectionFailure}
		}
		close(s.events)
		s.conn.Close()
	}()

	for {
		var fr frame
		if err := s.conn.ReadJSON(&fr); err != nil {
			return
		}
		if err := s.handle(fr); err != nil {
			s.log.WithError(err).Error().Str("frame", fr.Type).Msg("Failed to handle engine frame")
		}
	}
}

func (s *bridgeSocket) handle(fr frame) error {
	switch fr.Type {
	case "qr":
		s.emit(&waproto.QREvent{Code: fr.Code})

	case "open":
		s.mu.Lock()
		s.userID = fr.UserID
		s.mu.Unlock()
		s.emit(&waproto.ConnectionOpen{})

	case "close":
		s.mu.Lock()
		s.sawClose = true
		s.mu.Unlock()
		s.emit(&waproto.ConnectionClosed{Reason: closeReason(fr.Reason)})

	case "creds.update":
		creds, err := authstate.DecodeDocument(fr.Creds)
		if err != nil {
			return err
		}
		// o engine manda o documento inteiro; substituição campo a campo
		// sob CredsMu mantém o mapa compartilhado com o armazém de estado
		// consistente com uma persistência concorrente
		s.cfg.Auth.CredsMu.Lock()
		for k, v := range creds {
			s.cfg.Auth.Creds[k] = v
		}
		s.cfg.Auth.CredsMu.Unlock()
		s.emit(&waproto.CredsUpdate{})

	case "keys.get":
		return s.handleKeysGet(fr)

	case "keys.set":
		return s.handleKeysSet(fr)
	}
	return nil
}

func closeReason(reason string) error {
	if reason == "logged_out" {
		return waproto.ErrLoggedOut
	}
	return fmt.Errorf("%w: %s", waproto.ErrConnectionFailure, reason)
}

func (s *bridgeSocket) handleKeysGet(fr frame) error {
	values, err := s.cfg.Auth.Keys.Get(context.Background(), fr.KeyType, fr.IDs)
	if err != nil {
		return err
	}

	lowered := make(map[string]any, len(values))
	for id, v := range values {
		lowered[id] = lowerKeyValue(v)
	}
	data, err := authstate.Encode(lowered)
	if err != nil {
		return err
	}

	return s.write(frame{Type: "keys.get.result", ID: fr.ID, Data: data})
}

func (s *bridgeSocket) handleKeysSet(fr frame) error {
	decoded, err := authstate.Decode(fr.Patch)
	if err != nil {
		return err
	}
	doc, ok := decoded.(map[string]any)
	if !ok {
		return fmt.Errorf("keys.set: patch is not an object")
	}

	patch := make(map[string]map[string]any, len(doc))
	for keyType, entries := range doc {
		byID, ok := entries.(map[string]any)
		if !ok {
			return fmt.Errorf("keys.set: entries for %s are not an object", keyType)
		}
		patch[keyType] = byID
	}

	return s.cfg.Auth.Keys.Set(context.Background(), patch)
}

// lowerKeyValue rebaixa valores estruturados para a forma de documento
// que o engine espera no fio
func lowerKeyValue(v any) any {
	key, ok := v.(*waproto.AppStateSyncKey)
	if !ok {
		return v
	}
	return map[string]any{
		"keyData": key.KeyData,
		"fingerprint": map[string]any{
			"rawId":         key.Fingerprint.RawID,
			"currentIndex":  key.Fingerprint.CurrentIndex,
			"deviceIndexes": key.Fingerprint.DeviceIndexes,
		},
		"timestamp": key.Timestamp,
	}
}
