// Package supervisor cuida de uma conexão WhatsApp: constrói o socket,
// consome seu fluxo de eventos em uma goroutine dedicada e traduz cada
// evento em transições de status, espelho de QR e notificações.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"wafleet/internal/domain/instance"
	"wafleet/internal/domain/waproto"
	"wafleet/internal/infra/whatsapp/authstate"
	"wafleet/internal/infra/whatsapp/services"
	"wafleet/pkg/logger"
)

// ErrSupervisorClosed indica operação sobre um supervisor já encerrado
var ErrSupervisorClosed = errors.New("supervisor is closed")

// Coordinator é o que o supervisor precisa do coordenador da frota:
// espelhos de QR, contadores de retry e a fila de readmissão
type Coordinator interface {
	PublishQR(id uuid.UUID, qrDataURL string)
	ClearQR(id uuid.UUID)
	ResetRetries(id uuid.UUID)
	ScheduleReconnect(s *Supervisor)
}

// Config reúne as dependências de um supervisor
type Config struct {
	ID         uuid.UUID
	Name       string
	WebhookURL string

	Registry instance.Repository
	Auth     *authstate.Store
	Factory  waproto.SocketFactory
	Versions waproto.VersionFetcher
	Coord    Coordinator
	Webhooks *services.WebhookNotifier
	Logger   logger.Logger

	QRExpiry  time.Duration
	ConsoleQR bool
}

// Supervisor gerencia o ciclo de vida de uma única instância
type Supervisor struct {
	id         uuid.UUID
	name       string
	webhookURL string

	registry instance.Repository
	auth     *authstate.Store
	factory  waproto.SocketFactory
	versions waproto.VersionFetcher
	coord    Coordinator
	webhooks *services.WebhookNotifier
	log      logger.Logger

	qrExpiry  time.Duration
	consoleQR bool

	mu           sync.Mutex
	sock         waproto.Socket
	saveCreds    authstate.SaveCreds
	reconnecting bool
	closed       bool
}

// New cria um supervisor parado; Connect dispara a primeira conexão
func New(cfg Config) *Supervisor {
	qrExpiry := cfg.QRExpiry
	if qrExpiry <= 0 {
		qrExpiry = 60 * time.Second
	}
	return &Supervisor{
		id:         cfg.ID,
		name:       cfg.Name,
		webhookURL: cfg.WebhookURL,
		registry:   cfg.Registry,
		auth:       cfg.Auth,
		factory:    cfg.Factory,
		versions:   cfg.Versions,
		coord:      cfg.Coord,
		webhooks:   cfg.Webhooks,
		log: cfg.Logger.WithComponent("supervisor").
			WithField("instance", cfg.Name),
		qrExpiry:  qrExpiry,
		consoleQR: cfg.ConsoleQR,
	}
}

// ID retorna o identificador da instância supervisionada
func (s *Supervisor) ID() uuid.UUID {
	return s.id
}

// InstanceName retorna o nome da instância supervisionada
func (s *Supervisor) InstanceName() string {
	return s.name
}

// Reconnecting informa se há uma readmissão pendente para a instância
func (s *Supervisor) Reconnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnecting
}

// Connect derruba qualquer socket anterior e abre uma conexão nova:
// marca a instância como connecting, carrega o estado de autenticação,
// resolve a versão do protocolo e assina o fluxo de eventos do socket
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSupervisorClosed
	}

	if s.sock != nil {
		s.sock.Close()
		s.sock = nil
	}
	s.reconnecting = false

	if err := s.registry.UpdateStatus(ctx, s.id, instance.StatusConnecting); err != nil {
		s.log.WithError(err).Error().Msg("Failed to mark instance as connecting")
	}

	state, saveCreds, err := s.auth.Open(ctx, s.name)
	if err != nil {
		return fmt.Errorf("failed to open auth state: %w", err)
	}

	version, err := s.versions.FetchLatestVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch protocol version: %w", err)
	}

	sock, err := s.factory.NewSocket(waproto.SocketConfig{
		Version: version,
		Auth:    state,
		Browser: [3]string{"WAFleet", "Chrome", "120.0"},
		Logger:  waproto.NopLogger{},
	})
	if err != nil {
		return fmt.Errorf("failed to build socket: %w", err)
	}

	s.sock = sock
	s.saveCreds = saveCreds

	go s.eventLoop(sock)

	s.log.Info().Msg("Connection attempt started")
	return nil
}

// Restart força um ciclo completo de reconexão preservando a sessão
func (s *Supervisor) Restart(ctx context.Context) error {
	return s.Connect(ctx)
}

// Close encerra o socket sem escrever status; usado no delete e no
// desligamento do processo
func (s *Supervisor) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.sock != nil {
		s.sock.Close()
		s.sock = nil
	}
}

// eventLoop consome os eventos de um socket até o canal fechar. Uma
// goroutine por socket: os eventos de uma instância são tratados em série
func (s *Supervisor) eventLoop(sock waproto.Socket) {
	for evt := range sock.Events() {
		switch e := evt.(type) {
		case *waproto.QREvent:
			s.handleQR(sock, e.Code)
		case *waproto.ConnectionOpen:
			s.handleOpen(sock)
		case *waproto.ConnectionClosed:
			s.handleClose(sock, e.Reason)
		case *waproto.CredsUpdate:
			s.handleCredsUpdate(sock)
		}
	}
}

// current descarta eventos de sockets já substituídos por Connect
func (s *Supervisor) current(sock waproto.Socket) bool {
	return s.sock == sock && !s.closed
}

func (s *Supervisor) handleQR(sock waproto.Socket, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(sock) {
		return
	}

	dataURL, err := renderQRDataURL(code)
	if err != nil {
		s.log.WithError(err).Error().Msg("Failed to render QR code")
		return
	}
	expiresAt := time.Now().UTC().Add(s.qrExpiry)

	s.coord.PublishQR(s.id, dataURL)

	if err := s.registry.UpdateQRCode(context.Background(), s.id, dataURL, expiresAt); err != nil {
		s.log.WithError(err).Error().Msg("Failed to persist QR code")
	}

	s.webhooks.Notify(s.id, s.webhookURL, "qr", map[string]any{
		"qr_code":    dataURL,
		"expires_at": expiresAt,
	})

	if s.consoleQR {
		printConsoleQR(code)
	}

	s.log.Info().Msg("QR code generated")
}

func (s *Supervisor) handleOpen(sock waproto.Socket) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(sock) {
		return
	}

	s.reconnecting = false
	phone := phoneFromUserID(sock.UserID())

	s.coord.ClearQR(s.id)
	s.coord.ResetRetries(s.id)

	if err := s.registry.UpdateConnected(context.Background(), s.id, phone); err != nil {
		s.log.WithError(err).Error().Msg("Failed to mark instance as connected")
	}

	s.webhooks.Notify(s.id, s.webhookURL, "connected", map[string]any{
		"phone_number": phone,
	})

	s.log.Info().Str("phone", phone).Msg("Instance connected")
}

func (s *Supervisor) handleClose(sock waproto.Socket, reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(sock) {
		return
	}

	if errors.Is(reason, waproto.ErrLoggedOut) {
		// o socket morre antes da sessão: um creds.update atrasado do
		// mesmo socket não pode recriar a linha recém-apagada
		s.sock = nil
		sock.Close()

		s.coord.ClearQR(s.id)

		if err := s.registry.UpdateDisconnected(context.Background(), s.id); err != nil {
			s.log.WithError(err).Error().Msg("Failed to mark instance as disconnected")
		}
		if err := s.auth.RemoveSession(context.Background(), s.name); err != nil {
			s.log.WithError(err).Error().Msg("Failed to remove auth session after logout")
		}

		s.webhooks.Notify(s.id, s.webhookURL, "logged_out", nil)
		s.log.Info().Msg("Instance logged out, session wiped")
		return
	}

	// a readmissão só pode ser agendada uma vez por queda
	if s.reconnecting {
		return
	}
	s.reconnecting = true

	if err := s.registry.UpdateStatus(context.Background(), s.id, instance.StatusConnecting); err != nil {
		s.log.WithError(err).Error().Msg("Failed to mark instance as reconnecting")
	}

	s.webhooks.Notify(s.id, s.webhookURL, "disconnected", map[string]any{
		"reason": errorString(reason),
	})

	s.log.Warn().Str("reason", errorString(reason)).Msg("Connection lost, scheduling reconnect")
	s.coord.ScheduleReconnect(s)
}

func (s *Supervisor) handleCredsUpdate(sock waproto.Socket) {
	s.mu.Lock()
	if !s.current(sock) {
		s.mu.Unlock()
		return
	}
	saveCreds := s.saveCreds
	s.mu.Unlock()

	if err := saveCreds(context.Background()); err != nil {
		s.log.WithError(err).Error().Msg("Failed to persist credentials")
	}
}

// phoneFromUserID extrai o número de "5511999999999:12@s.whatsapp.net"
func phoneFromUserID(userID string) string {
	if at := strings.Index(userID, "@"); at >= 0 {
		userID = userID[:at]
	}
	if colon := strings.Index(userID, ":"); colon >= 0 {
		userID = userID[:colon]
	}
	return userID
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
