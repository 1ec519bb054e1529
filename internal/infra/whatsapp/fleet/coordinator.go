// Package fleet implementa o coordenador da frota de conexões WhatsApp:
// registro de supervisores, espelho de QR codes, recuperação escalonada
// no boot e a fila de readmissão com semáforo e jitter.
package fleet

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"wafleet/internal/domain/instance"
	"wafleet/internal/domain/waproto"
	"wafleet/internal/infra/whatsapp/authstate"
	"wafleet/internal/infra/whatsapp/services"
	"wafleet/internal/infra/whatsapp/supervisor"
	"wafleet/pkg/logger"
)

// Config parametriza o coordenador; zero values caem nos padrões de produção
type Config struct {
	MaxInstances         int
	BootBatchSize        int
	StaggeredBootDelay   time.Duration
	MaxReconnectAttempts int
	ReconnectConcurrency int
	ReconnectJitterMin   time.Duration
	ReconnectJitterMax   time.Duration
	QRExpiry             time.Duration
	VersionCacheTTL      time.Duration
	ConsoleQR            bool
}

func (c Config) withDefaults() Config {
	if c.MaxInstances <= 0 {
		c.MaxInstances = 80
	}
	if c.BootBatchSize <= 0 {
		c.BootBatchSize = 5
	}
	if c.StaggeredBootDelay <= 0 {
		c.StaggeredBootDelay = 500 * time.Millisecond
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectConcurrency <= 0 {
		c.ReconnectConcurrency = 5
	}
	if c.ReconnectJitterMin <= 0 {
		c.ReconnectJitterMin = 1 * time.Second
	}
	if c.ReconnectJitterMax <= c.ReconnectJitterMin {
		c.ReconnectJitterMax = 5 * time.Second
	}
	if c.QRExpiry <= 0 {
		c.QRExpiry = 60 * time.Second
	}
	if c.VersionCacheTTL <= 0 {
		c.VersionCacheTTL = 1 * time.Hour
	}
	return c
}

// Coordinator é o dono da frota: um supervisor por instância registrada,
// mais o estado de admissão compartilhado (contadores de retry, semáforo
// de reconexão e cache de versão do protocolo)
type Coordinator struct {
	cfg      Config
	registry instance.Repository
	auth     *authstate.Store
	factory  waproto.SocketFactory
	versions *VersionCache
	webhooks *services.WebhookNotifier
	log      logger.Logger

	mu       sync.RWMutex
	sockets  map[uuid.UUID]*supervisor.Supervisor
	qrCodes  map[uuid.UUID]string
	attempts map[uuid.UUID]int
	active   int

	sem chan struct{}
}

// NewCoordinator cria o coordenador da frota
func NewCoordinator(
	cfg Config,
	registry instance.Repository,
	auth *authstate.Store,
	factory waproto.SocketFactory,
	fetcher waproto.VersionFetcher,
	webhooks *services.WebhookNotifier,
	log logger.Logger,
) *Coordinator {
	cfg = cfg.withDefaults()
	return &Coordinator{
		cfg:      cfg,
		registry: registry,
		auth:     auth,
		factory:  factory,
		versions: NewVersionCache(fetcher, cfg.VersionCacheTTL),
		webhooks: webhooks,
		log:      log.WithComponent("fleet"),
		sockets:  make(map[uuid.UUID]*supervisor.Supervisor),
		qrCodes:  make(map[uuid.UUID]string),
		attempts: make(map[uuid.UUID]int),
		sem:      make(chan struct{}, cfg.ReconnectConcurrency),
	}
}

// ==================== OPERAÇÕES DE FROTA ====================

// CreateInstance registra uma instância nova e dispara a primeira conexão.
// A frota tem teto fixo: acima dele a criação falha, nunca despeja ninguém.
func (c *Coordinator) CreateInstance(ctx context.Context, userID uuid.UUID, name, webhookURL string) (*instance.Instance, error) {
	c.mu.RLock()
	full := len(c.sockets) >= c.cfg.MaxInstances
	c.mu.RUnlock()
	if full {
		return nil, instance.ErrMaxInstancesReached
	}

	inst := &instance.Instance{
		UserID:           userID,
		InstanceName:     name,
		WebhookURL:       webhookURL,
		ConnectionStatus: instance.StatusConnecting,
	}
	if err := c.registry.Create(ctx, inst); err != nil {
		return nil, err
	}

	sup, err := c.ensureSupervisor(inst)
	if err != nil {
		// outra criação ocupou a última vaga entre a checagem e o registro
		if derr := c.registry.Delete(ctx, inst.ID); derr != nil {
			c.log.WithError(derr).Error().
				Str("instance", name).
				Msg("Failed to roll back instance row after capacity race")
		}
		return nil, err
	}
	if err := sup.Connect(ctx); err != nil {
		// a linha existe e pode ser reconectada via restart
		c.log.WithError(err).Error().
			Str("instance", name).
			Msg("Initial connection attempt failed")
	}

	c.log.Info().
		Str("instance", name).
		Str("instance_id", inst.ID.String()).
		Msg("Instance created")
	return inst, nil
}

// ListInstances retorna todas as instâncias registradas
func (c *Coordinator) ListInstances(ctx context.Context) ([]*instance.Instance, error) {
	return c.registry.List(ctx)
}

// GetInstance busca uma instância pelo ID
func (c *Coordinator) GetInstance(ctx context.Context, id uuid.UUID) (*instance.Instance, error) {
	return c.registry.GetByID(ctx, id)
}

// GetQRCode retorna o QR corrente e o status da instância. O espelho em
// memória tem preferência sobre a linha: ele é sempre o mais fresco.
func (c *Coordinator) GetQRCode(ctx context.Context, id uuid.UUID) (string, instance.ConnectionStatus, error) {
	inst, err := c.registry.GetByID(ctx, id)
	if err != nil {
		return "", "", err
	}

	c.mu.RLock()
	qr := c.qrCodes[id]
	c.mu.RUnlock()

	if qr == "" && inst.QRCode != nil {
		qr = *inst.QRCode
	}
	return qr, inst.ConnectionStatus, nil
}

// RestartInstance força um ciclo completo de reconexão preservando a
// sessão persistida. Não zera o contador de readmissão: um operador em
// loop de restart não ganha crédito infinito de retry.
func (c *Coordinator) RestartInstance(ctx context.Context, id uuid.UUID) error {
	c.mu.RLock()
	sup := c.sockets[id]
	c.mu.RUnlock()

	if sup == nil {
		inst, err := c.registry.GetByID(ctx, id)
		if err != nil {
			return err
		}
		sup, err = c.ensureSupervisor(inst)
		if err != nil {
			return err
		}
	}

	c.log.Info().Str("instance", sup.InstanceName()).Msg("Restarting instance")
	return sup.Restart(ctx)
}

// DeleteInstance remove a instância por completo, nesta ordem: socket,
// espelhos em memória, sessão persistida e por fim a linha do registro
func (c *Coordinator) DeleteInstance(ctx context.Context, id uuid.UUID) error {
	inst, err := c.registry.GetByID(ctx, id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	sup := c.sockets[id]
	delete(c.sockets, id)
	delete(c.qrCodes, id)
	delete(c.attempts, id)
	c.mu.Unlock()

	if sup != nil {
		sup.Close()
	}

	if err := c.auth.RemoveSession(ctx, inst.InstanceName); err != nil {
		return err
	}
	if err := c.registry.Delete(ctx, id); err != nil {
		return err
	}

	c.log.Info().Str("instance", inst.InstanceName).Msg("Instance deleted")
	return nil
}

// RecoverInstances religa as instâncias recuperáveis após um boot, em
// lotes com atraso escalonado para não esmagar o servidor nem o banco.
// Falhas individuais são logadas; o boot nunca é abortado por elas.
func (c *Coordinator) RecoverInstances(ctx context.Context) error {
	instances, err := c.registry.ListRecoverable(ctx, c.cfg.MaxInstances)
	if err != nil {
		return err
	}
	if len(instances) == 0 {
		c.log.Info().Msg("No instances to recover")
		return nil
	}

	c.log.Info().Int("count", len(instances)).Msg("Recovering instances")

	for start := 0; start < len(instances); start += c.cfg.BootBatchSize {
		end := start + c.cfg.BootBatchSize
		if end > len(instances) {
			end = len(instances)
		}

		for _, inst := range instances[start:end] {
			sup, err := c.ensureSupervisor(inst)
			if err != nil {
				c.log.WithError(err).Error().
					Str("instance", inst.InstanceName).
					Msg("Failed to register instance for recovery")
				continue
			}
			go func(sup *supervisor.Supervisor) {
				if err := sup.Connect(context.Background()); err != nil {
					c.log.WithError(err).Error().
						Str("instance", sup.InstanceName()).
						Msg("Failed to recover instance")
				}
			}(sup)
		}

		if end < len(instances) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.StaggeredBootDelay):
			}
		}
	}
	return nil
}

// Shutdown encerra todos os sockets sem escrever status (os registros
// ficam recuperáveis para o próximo boot) e descarrega as escritas de
// chaves pendentes
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	sups := make([]*supervisor.Supervisor, 0, len(c.sockets))
	for _, sup := range c.sockets {
		sups = append(sups, sup)
	}
	c.sockets = make(map[uuid.UUID]*supervisor.Supervisor)
	c.qrCodes = make(map[uuid.UUID]string)
	c.mu.Unlock()

	for _, sup := range sups {
		sup.Close()
	}

	c.log.Info().Int("count", len(sups)).Msg("Fleet shut down, flushing session writes")
	return c.auth.Flush(ctx)
}

// ensureSupervisor devolve o supervisor registrado da instância, criando
// um novo quando ela ainda não tem. O teto da frota é imposto aqui, sob o
// lock: ele conta supervisores vivos, nunca linhas mortas de boots antigos
func (c *Coordinator) ensureSupervisor(inst *instance.Instance) (*supervisor.Supervisor, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sup, ok := c.sockets[inst.ID]; ok {
		return sup, nil
	}
	if len(c.sockets) >= c.cfg.MaxInstances {
		return nil, instance.ErrMaxInstancesReached
	}

	sup := supervisor.New(supervisor.Config{
		ID:         inst.ID,
		Name:       inst.InstanceName,
		WebhookURL: inst.WebhookURL,
		Registry:   c.registry,
		Auth:       c.auth,
		Factory:    c.factory,
		Versions:   c.versions,
		Coord:      c,
		Webhooks:   c.webhooks,
		Logger:     c.log,
		QRExpiry:   c.cfg.QRExpiry,
		ConsoleQR:  c.cfg.ConsoleQR,
	})
	c.sockets[inst.ID] = sup
	return sup, nil
}

// ==================== CALLBACKS DO SUPERVISOR ====================

// PublishQR atualiza o espelho em memória do QR da instância
func (c *Coordinator) PublishQR(id uuid.UUID, qrDataURL string) {
	c.mu.Lock()
	c.qrCodes[id] = qrDataURL
	c.mu.Unlock()
}

// ClearQR descarta o espelho de QR da instância
func (c *Coordinator) ClearQR(id uuid.UUID) {
	c.mu.Lock()
	delete(c.qrCodes, id)
	c.mu.Unlock()
}

// ResetRetries zera o contador de readmissão após uma conexão bem-sucedida
func (c *Coordinator) ResetRetries(id uuid.UUID) {
	c.mu.Lock()
	delete(c.attempts, id)
	c.mu.Unlock()
}

// ScheduleReconnect enfileira uma readmissão para o supervisor. O trabalho
// roda em goroutine própria: o chamador está dentro do loop de eventos.
func (c *Coordinator) ScheduleReconnect(s *supervisor.Supervisor) {
	go c.reconnect(s)
}

// ActiveReconnections informa quantas reconexões seguram vaga no semáforo
func (c *Coordinator) ActiveReconnections() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

// admit cobra o preço de uma readmissão: a instância precisa seguir
// registrada e abaixo do teto de tentativas
func (c *Coordinator) admit(id uuid.UUID) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sockets[id]; !ok {
		return 0, instance.ErrInstanceNotFound
	}
	if c.attempts[id] >= c.cfg.MaxReconnectAttempts {
		return c.attempts[id], instance.ErrReconnectLimitReached
	}
	c.attempts[id]++
	return c.attempts[id], nil
}

// reconnect aplica a disciplina de admissão: teto de tentativas, vaga no
// semáforo e jitter antes de reconectar de fato
func (c *Coordinator) reconnect(s *supervisor.Supervisor) {
	id := s.ID()

	attempt, err := c.admit(id)
	if errors.Is(err, instance.ErrInstanceNotFound) {
		return
	}
	if errors.Is(err, instance.ErrReconnectLimitReached) {
		c.log.WithError(err).Warn().
			Str("instance", s.InstanceName()).
			Int("attempts", c.cfg.MaxReconnectAttempts).
			Msg("Reconnect attempts exhausted, marking instance as failed")
		if err := c.registry.UpdateStatus(context.Background(), id, instance.StatusFailed); err != nil {
			c.log.WithError(err).Error().
				Str("instance", s.InstanceName()).
				Msg("Failed to mark instance as failed")
		}
		return
	}

	c.sem <- struct{}{}
	c.mu.Lock()
	c.active++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.active--
		c.mu.Unlock()
		<-c.sem
	}()

	delay := c.jitter()
	c.log.Info().
		Str("instance", s.InstanceName()).
		Int("attempt", attempt).
		Dur("jitter", delay).
		Msg("Reconnecting instance")
	time.Sleep(delay)

	// a instância pode ter sido deletada durante a espera
	c.mu.RLock()
	_, alive := c.sockets[id]
	c.mu.RUnlock()
	if !alive {
		return
	}

	if err := s.Connect(context.Background()); err != nil {
		c.log.WithError(err).Error().
			Str("instance", s.InstanceName()).
			Msg("Reconnect attempt failed")
	}
}

// jitter sorteia um atraso uniforme no intervalo configurado
func (c *Coordinator) jitter() time.Duration {
	span := c.cfg.ReconnectJitterMax - c.cfg.ReconnectJitterMin
	if span <= 0 {
		return c.cfg.ReconnectJitterMin
	}
	return c.cfg.ReconnectJitterMin + time.Duration(rand.Int63n(int64(span)))
}
