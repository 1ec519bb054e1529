package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wafleet/internal/app"
	"wafleet/internal/app/config"
	"wafleet/internal/app/server"
	"wafleet/internal/http/router"
	"wafleet/internal/infra/database"
	"wafleet/pkg/logger"
)

func main() {
	// Carregar configuração
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Configurar logger usando as configurações do .env
	log := logger.Setup(cfg).WithComponent("main")

	log.WithFields(map[string]interface{}{
		"env":           cfg.App.Env,
		"port":          cfg.App.Port,
		"max_instances": cfg.Fleet.MaxInstances,
	}).Info().Msg("Starting WAFleet API")

	// Conectar ao banco de dados
	db, err := database.NewDatabase(cfg.GetDatabaseDSN(), cfg.IsDevelopment(), log)
	if err != nil {
		log.WithError(err).Fatal().Msg("Failed to connect to database")
	}

	log.Info().Msg("Connected to database successfully")

	// Executar migrações
	if err := database.RunMigrations(db); err != nil {
		log.WithError(err).Fatal().Msg("Failed to run migrations")
	}

	// Inicializar container de dependências
	container, err := app.NewContainer(cfg, db, log)
	if err != nil {
		log.WithError(err).Fatal().Msg("Failed to initialize container")
	}
	defer container.Close()

	// Recuperar as conexões que estavam de pé antes do último desligamento
	if err := container.Coordinator.RecoverInstances(context.Background()); err != nil {
		log.WithError(err).Error().Msg("Failed to recover instances")
	}

	// Configurar router e servidor
	handler := router.New(cfg, log, container.InstanceHandler, container.AuthSessionHandler, container.HealthHandler)
	srv := server.New(cfg, handler, log)

	// Canal para capturar sinais do sistema
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Iniciar servidor em goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.WithError(err).Fatal().Msg("Failed to start server")
		}
	}()

	log.Info().Msg("WAFleet API started successfully")

	// Aguardar sinal de parada
	<-stop

	// Graceful shutdown: HTTP primeiro, depois a frota (que descarrega as
	// escritas de sessão pendentes), por fim o banco via container.Close
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		log.WithError(err).Error().Msg("Error during server shutdown")
	}

	if err := container.Coordinator.Shutdown(ctx); err != nil {
		log.WithError(err).Error().Msg("Error during fleet shutdown")
	}

	log.Info().Msg("Application stopped")
}
