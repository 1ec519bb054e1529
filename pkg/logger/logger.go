package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger interface define os métodos disponíveis para logging
type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	Fatal() *zerolog.Event

	// Métodos para adicionar contexto
	WithComponent(component string) Logger
	WithFields(fields map[string]interface{}) Logger
	WithField(key string, value interface{}) Logger
	WithError(err error) Logger
}

// ConfigProvider interface para configuração do logger
type ConfigProvider interface {
	GetLogLevel() string
	GetLogOutput() string
	GetLogFilePath() string
	GetLogFileMaxSize() int
	GetLogFileMaxBackups() int
	GetLogFileMaxAge() int
	GetLogFileCompress() bool
	GetLogConsoleColors() bool
}

// ZerologLogger implementa a interface Logger usando zerolog
type ZerologLogger struct {
	logger *zerolog.Logger
}

// NewZerologLogger cria uma nova instância do ZerologLogger
func NewZerologLogger(zl *zerolog.Logger) Logger {
	return &ZerologLogger{logger: zl}
}

func (l *ZerologLogger) Trace() *zerolog.Event { return l.logger.Trace() }
func (l *ZerologLogger) Debug() *zerolog.Event { return l.logger.Debug() }
func (l *ZerologLogger) Info() *zerolog.Event  { return l.logger.Info() }
func (l *ZerologLogger) Warn() *zerolog.Event  { return l.logger.Warn() }
func (l *ZerologLogger) Error() *zerolog.Event { return l.logger.Error() }
func (l *ZerologLogger) Fatal() *zerolog.Event { return l.logger.Fatal() }

func (l *ZerologLogger) WithComponent(component string) Logger {
	newLogger := l.logger.With().Str("component", component).Logger()
	return NewZerologLogger(&newLogger)
}

func (l *ZerologLogger) WithFields(fields map[string]interface{}) Logger {
	ctx := l.logger.With()
	for key, value := range fields {
		ctx = ctx.Interface(key, value)
	}
	newLogger := ctx.Logger()
	return NewZerologLogger(&newLogger)
}

func (l *ZerologLogger) WithField(key string, value interface{}) Logger {
	newLogger := l.logger.With().Interface(key, value).Logger()
	return NewZerologLogger(&newLogger)
}

func (l *ZerologLogger) WithError(err error) Logger {
	newLogger := l.logger.With().Err(err).Logger()
	return NewZerologLogger(&newLogger)
}

// logger padrão usado pelas funções globais até Setup ser chamado
var defaultLogger = newStderrLogger()

// Setup configura o logger principal da aplicação
func Setup(cfg ConfigProvider) Logger {
	zerolog.SetGlobalLevel(parseLogLevel(cfg.GetLogLevel()))

	writers := setupWriters(cfg)

	var zl zerolog.Logger
	if len(writers) == 1 {
		zl = zerolog.New(writers[0])
	} else {
		zl = zerolog.New(io.MultiWriter(writers...))
	}

	zl = zl.With().Timestamp().Caller().Logger()

	log := NewZerologLogger(&zl)
	defaultLogger = log
	return log
}

// WithComponent cria um logger com componente específico a partir do logger global
func WithComponent(component string) Logger {
	return defaultLogger.WithComponent(component)
}

// SetupForTesting configura logger silencioso para testes
func SetupForTesting() Logger {
	zl := zerolog.New(io.Discard)
	return NewZerologLogger(&zl)
}

// setupWriters configura os writers baseado na configuração
func setupWriters(cfg ConfigProvider) []io.Writer {
	switch cfg.GetLogOutput() {
	case "console":
		return []io.Writer{setupConsoleWriter(cfg)}
	case "file":
		return []io.Writer{setupFileWriter(cfg)}
	case "stdout":
		return []io.Writer{os.Stdout}
	case "stderr":
		return []io.Writer{os.Stderr}
	default: // dual
		return []io.Writer{setupConsoleWriter(cfg), setupFileWriter(cfg)}
	}
}

// setupConsoleWriter configura o writer para console
func setupConsoleWriter(cfg ConfigProvider) io.Writer {
	return zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
		NoColor:    !cfg.GetLogConsoleColors(),
	}
}

// setupFileWriter configura o writer para arquivo com rotação
func setupFileWriter(cfg ConfigProvider) io.Writer {
	filePath := cfg.GetLogFilePath()

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		fmt.Printf("Failed to create log directory: %v\n", err)
		return os.Stdout
	}

	return &lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    cfg.GetLogFileMaxSize(),
		MaxBackups: cfg.GetLogFileMaxBackups(),
		MaxAge:     cfg.GetLogFileMaxAge(),
		Compress:   cfg.GetLogFileCompress(),
	}
}

// parseLogLevel converte string para zerolog.Level
func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func newStderrLogger() Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
	return NewZerologLogger(&zl)
}
