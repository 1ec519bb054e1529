package app

import (
	"github.com/uptrace/bun"

	"wafleet/internal/app/config"
	domainauth "wafleet/internal/domain/authsession"
	domaininstance "wafleet/internal/domain/instance"
	"wafleet/internal/domain/waproto"
	"wafleet/internal/http/handlers"
	"wafleet/internal/infra/database"
	"wafleet/internal/infra/whatsapp/authstate"
	"wafleet/internal/infra/whatsapp/fleet"
	"wafleet/internal/infra/whatsapp/services"
	"wafleet/internal/infra/whatsapp/waclient"
	authsessionUseCases "wafleet/internal/usecases/authsession"
	instanceUseCases "wafleet/internal/usecases/instance"
	"wafleet/pkg/logger"
)

// Container gerencia todas as dependências da aplicação
type Container struct {
	// Database
	DB *bun.DB

	// Repositories
	InstanceRepo domaininstance.Repository
	SessionRepo  domainauth.Repository

	// Plano de conexão
	AuthStore   *authstate.Store
	Coordinator *fleet.Coordinator

	// Use Cases
	CreateInstanceUC  *instanceUseCases.CreateInstanceUseCase
	ListInstancesUC   *instanceUseCases.ListInstancesUseCase
	GetInstanceUC     *instanceUseCases.GetInstanceUseCase
	GetQRCodeUC       *instanceUseCases.GetQRCodeUseCase
	RestartInstanceUC *instanceUseCases.RestartInstanceUseCase
	DeleteInstanceUC  *instanceUseCases.DeleteInstanceUseCase
	ListSessionsUC    *authsessionUseCases.ListSessionsUseCase
	GetSessionUC      *authsessionUseCases.GetSessionUseCase
	DeleteSessionUC   *authsessionUseCases.DeleteSessionUseCase

	// Handlers
	InstanceHandler    *handlers.InstanceHandler
	AuthSessionHandler *handlers.AuthSessionHandler
	HealthHandler      *handlers.HealthHandler

	// Logger
	Logger logger.Logger
}

// NewContainer cria um novo container de dependências
func NewContainer(cfg *config.Config, db *bun.DB, log logger.Logger) (*Container, error) {
	c := &Container{
		DB:     db,
		Logger: log.WithComponent("di-container"),
	}

	c.initRepositories()
	c.initFleet(cfg, log)
	c.initUseCases(log)
	c.initHandlers(log)

	c.Logger.Info().Msg("Container initialized successfully")
	return c, nil
}

// initRepositories inicializa os repositórios
func (c *Container) initRepositories() {
	c.InstanceRepo = database.NewInstanceRepository(c.DB)
	c.SessionRepo = database.NewSessionRepository(c.DB)
}

// initFleet inicializa o armazém de estado e o coordenador da frota
func (c *Container) initFleet(cfg *config.Config, log logger.Logger) {
	c.AuthStore = authstate.NewStore(c.SessionRepo, authstate.DefaultDebounceWindow, log)

	var factory waproto.SocketFactory = waclient.NewFactory(cfg.Engine.URL, log)
	var fetcher waproto.VersionFetcher = waclient.NewHTTPVersionFetcher()

	c.Coordinator = fleet.NewCoordinator(
		fleet.Config{
			MaxInstances:       cfg.Fleet.MaxInstances,
			StaggeredBootDelay: cfg.Fleet.StaggeredBootDelay,
			ConsoleQR:          cfg.IsDevelopment(),
		},
		c.InstanceRepo,
		c.AuthStore,
		factory,
		fetcher,
		services.NewWebhookNotifier(log),
		log,
	)
}

// initUseCases inicializa os casos de uso
func (c *Container) initUseCases(log logger.Logger) {
	c.CreateInstanceUC = instanceUseCases.NewCreateInstanceUseCase(c.Coordinator, log)
	c.ListInstancesUC = instanceUseCases.NewListInstancesUseCase(c.Coordinator, log)
	c.GetInstanceUC = instanceUseCases.NewGetInstanceUseCase(c.Coordinator, log)
	c.GetQRCodeUC = instanceUseCases.NewGetQRCodeUseCase(c.Coordinator, log)
	c.RestartInstanceUC = instanceUseCases.NewRestartInstanceUseCase(c.Coordinator, log)
	c.DeleteInstanceUC = instanceUseCases.NewDeleteInstanceUseCase(c.Coordinator, log)

	c.ListSessionsUC = authsessionUseCases.NewListSessionsUseCase(c.SessionRepo, log)
	c.GetSessionUC = authsessionUseCases.NewGetSessionUseCase(c.SessionRepo, log)
	c.DeleteSessionUC = authsessionUseCases.NewDeleteSessionUseCase(c.AuthStore, log)
}

// initHandlers inicializa os handlers
func (c *Container) initHandlers(log logger.Logger) {
	c.InstanceHandler = handlers.NewInstanceHandler(
		c.CreateInstanceUC,
		c.ListInstancesUC,
		c.GetInstanceUC,
		c.GetQRCodeUC,
		c.RestartInstanceUC,
		c.DeleteInstanceUC,
		log,
	)

	c.AuthSessionHandler = handlers.NewAuthSessionHandler(
		c.ListSessionsUC,
		c.GetSessionUC,
		c.DeleteSessionUC,
		log,
	)

	c.HealthHandler = handlers.NewHealthHandler()
}

// Close encerra o container e todos os seus recursos
func (c *Container) Close() error {
	c.Logger.Info().Msg("Closing container")

	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.WithError(err).Error().Msg("Failed to close database")
			return err
		}
	}

	c.Logger.Info().Msg("Container closed successfully")
	return nil
}
