package logger

import (
	"context"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

// ============================================================================
// BUN ORM ADAPTER
// ============================================================================

// BunQueryHook implementa hook para logging de queries do Bun ORM
type BunQueryHook struct {
	logger Logger
}

// NewBunQueryHook cria um novo hook para logging de queries do Bun
func NewBunQueryHook(logger Logger) bun.QueryHook {
	return &BunQueryHook{
		logger: logger.WithComponent("database"),
	}
}

// BeforeQuery é chamado antes da execução da query
func (h *BunQueryHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

// AfterQuery é chamado após a execução da query
func (h *BunQueryHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	duration := time.Since(event.StartTime)
	durationMs := duration.Milliseconds()

	if event.Err != nil {
		h.logger.Error().
			Err(event.Err).
			Str("query", sanitizeQuery(event.Query)).
			Int64("duration_ms", durationMs).
			Msg("Database query failed")
		return
	}

	// Queries lentas sempre como warning; o resto só em debug
	if durationMs > 100 {
		h.logger.Warn().
			Str("query", sanitizeQuery(event.Query)).
			Int64("duration_ms", durationMs).
			Msg("Slow database query")
		return
	}

	h.logger.Debug().
		Str("operation", queryOperation(event.Query)).
		Int64("duration_ms", durationMs).
		Msg("DB operation completed")
}

// sanitizeQuery trunca queries longas para não poluir o log
func sanitizeQuery(query string) string {
	const maxLen = 300
	query = strings.Join(strings.Fields(query), " ")
	if len(query) > maxLen {
		return query[:maxLen] + "..."
	}
	return query
}

// queryOperation extrai o tipo de operação da query
func queryOperation(query string) string {
	query = strings.TrimSpace(strings.ToUpper(query))
	for _, op := range []string{"SELECT", "INSERT", "UPDATE", "DELETE", "CREATE", "ALTER", "DROP"} {
		if strings.HasPrefix(query, op) {
			return op
		}
	}
	return "UNKNOWN"
}
