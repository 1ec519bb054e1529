package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config concentra toda a configuração da aplicação carregada do ambiente
type Config struct {
	App struct {
		Env  string
		Port string
		Host string
	}

	Database struct {
		// URL completa tem precedência sobre os campos compostos
		URL      string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
	}

	Fleet struct {
		MaxInstances          int
		StaggeredBootDelay    time.Duration
		MessagesRetentionDays int
	}

	Engine struct {
		// URL do engine de protocolo (sidecar) falado via WebSocket
		URL string
	}

	Logging struct {
		Level          string
		Output         string
		FilePath       string
		FileMaxSize    int
		FileMaxBackups int
		FileMaxAge     int
		FileCompress   bool
		ConsoleColors  bool
	}

	RateLimit struct {
		Requests int
		Window   time.Duration
	}

	CORS struct {
		AllowedOrigins []string
	}
}

// LoadConfig carrega a configuração a partir do .env e das variáveis de ambiente
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// App
	cfg.App.Env = getEnv("APP_ENV", "development")
	cfg.App.Port = getEnv("PORT", "3000")
	cfg.App.Host = getEnv("APP_HOST", "0.0.0.0")

	// Database
	cfg.Database.URL = getEnv("DATABASE_URL", "")
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnv("DB_PORT", "5432")
	cfg.Database.User = getEnv("DB_USER", "wafleet")
	cfg.Database.Password = getEnv("DB_PASSWORD", "wafleet123")
	cfg.Database.Name = getEnv("DB_NAME", "wafleet")
	cfg.Database.SSLMode = getEnv("DB_SSL_MODE", "disable")

	// Fleet
	cfg.Fleet.MaxInstances = getEnvAsInt("MAX_INSTANCES", 80)
	cfg.Fleet.StaggeredBootDelay = time.Duration(getEnvAsInt("STAGGERED_BOOT_DELAY_MS", 500)) * time.Millisecond
	cfg.Fleet.MessagesRetentionDays = getEnvAsInt("MESSAGES_RETENTION_DAYS", 7)

	// Engine
	cfg.Engine.URL = getEnv("WA_ENGINE_URL", "ws://localhost:3001/ws")

	// Logging
	cfg.Logging.Level = getEnv("LOG_LEVEL", "info")
	cfg.Logging.Output = getEnv("LOG_OUTPUT", "dual")
	cfg.Logging.FilePath = getEnv("LOG_FILE_PATH", "logs/wafleet.log")
	cfg.Logging.FileMaxSize = getEnvAsInt("LOG_FILE_MAX_SIZE", 100)
	cfg.Logging.FileMaxBackups = getEnvAsInt("LOG_FILE_MAX_BACKUPS", 3)
	cfg.Logging.FileMaxAge = getEnvAsInt("LOG_FILE_MAX_AGE", 28)
	cfg.Logging.FileCompress = getEnvAsBool("LOG_FILE_COMPRESS", true)
	cfg.Logging.ConsoleColors = getEnvAsBool("LOG_CONSOLE_COLORS", true)

	// Rate Limit
	cfg.RateLimit.Requests = getEnvAsInt("RATE_LIMIT_REQUESTS", 100)
	window, err := time.ParseDuration(getEnv("RATE_LIMIT_WINDOW", "1m"))
	if err != nil {
		window = time.Minute
	}
	cfg.RateLimit.Window = window

	// CORS
	cfg.CORS.AllowedOrigins = strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "*"), ",")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetDatabaseDSN monta a DSN do PostgreSQL; DATABASE_URL tem precedência
func (c *Config) GetDatabaseDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}
	return "postgres://" + c.Database.User + ":" + c.Database.Password +
		"@" + c.Database.Host + ":" + c.Database.Port +
		"/" + c.Database.Name + "?sslmode=" + c.Database.SSLMode
}

// IsDevelopment indica se a aplicação roda em ambiente de desenvolvimento
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// Implementação da interface logger.ConfigProvider
func (c *Config) GetLogLevel() string       { return c.Logging.Level }
func (c *Config) GetLogOutput() string      { return c.Logging.Output }
func (c *Config) GetLogFilePath() string    { return c.Logging.FilePath }
func (c *Config) GetLogFileMaxSize() int    { return c.Logging.FileMaxSize }
func (c *Config) GetLogFileMaxBackups() int { return c.Logging.FileMaxBackups }
func (c *Config) GetLogFileMaxAge() int     { return c.Logging.FileMaxAge }
func (c *Config) GetLogFileCompress() bool  { return c.Logging.FileCompress }
func (c *Config) GetLogConsoleColors() bool { return c.Logging.ConsoleColors }
