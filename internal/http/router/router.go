package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"wafleet/internal/app/config"
	"wafleet/internal/http/handlers"
	appMiddleware "wafleet/internal/http/middleware"
	"wafleet/internal/http/responses"
	"wafleet/pkg/logger"
)

// Router representa o roteador principal da aplicação
type Router struct {
	*chi.Mux
	config          *config.Config
	logger          logger.Logger
	instanceHandler *handlers.InstanceHandler
	sessionHandler  *handlers.AuthSessionHandler
	healthHandler   *handlers.HealthHandler
}

// New cria uma nova instância do router
func New(
	cfg *config.Config,
	log logger.Logger,
	instanceHandler *handlers.InstanceHandler,
	sessionHandler *handlers.AuthSessionHandler,
	healthHandler *handlers.HealthHandler,
) *Router {
	r := &Router{
		Mux:             chi.NewRouter(),
		config:          cfg,
		logger:          log.WithComponent("router"),
		instanceHandler: instanceHandler,
		sessionHandler:  sessionHandler,
		healthHandler:   healthHandler,
	}

	r.setupMiddlewares()
	r.setupRoutes()

	return r
}

// setupMiddlewares configura os middlewares globais
func (r *Router) setupMiddlewares() {
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Use(appMiddleware.NewCORS(r.config.CORS.AllowedOrigins))
	r.Use(appMiddleware.NewLoggingMiddleware(r.logger))
	r.Use(appMiddleware.NewRecoveryMiddleware(r.logger))
	r.Use(appMiddleware.NewRateLimit(r.config.RateLimit.Requests, r.config.RateLimit.Window))
}

// setupRoutes configura as rotas da aplicação
func (r *Router) setupRoutes() {
	// Health check
	r.Get("/health", r.healthHandler.Health)

	// Rotas de instâncias da frota
	r.Route("/instances", func(rt chi.Router) {
		rt.Post("/create", r.instanceHandler.CreateInstance)
		rt.Get("/", r.instanceHandler.ListInstances)

		rt.Route("/{instanceID}", func(rt chi.Router) {
			rt.Get("/", r.instanceHandler.GetInstance)
			rt.Get("/qr", r.instanceHandler.GetQRCode)
			rt.Post("/restart", r.instanceHandler.RestartInstance)
			rt.Delete("/", r.instanceHandler.DeleteInstance)
		})
	})

	// Rotas das sessões de autenticação persistidas
	r.Route("/auth/sessions", func(rt chi.Router) {
		rt.Get("/", r.sessionHandler.ListSessions)

		rt.Route("/{sessionName}", func(rt chi.Router) {
			rt.Get("/", r.sessionHandler.GetSession)
			rt.Delete("/", r.sessionHandler.DeleteSession)
		})
	})

	// Rota catch-all para 404
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		responses.NotFound(w, "Endpoint não encontrado")
	})
}
