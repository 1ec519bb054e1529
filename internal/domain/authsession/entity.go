package authsession

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// Record é a linha durável de estado criptográfico de uma instância.
// O ID é o instance_name; creds e keys são documentos JSON que passam
// pelo codec binário antes de chegar aqui.
type Record struct {
	bun.BaseModel `bun:"table:whatsapp_sessions,alias:ws"`

	ID        string          `bun:"id,pk,type:text" json:"id"`
	Creds     json.RawMessage `bun:"creds,type:jsonb" json:"-"`
	Keys      json.RawMessage `bun:"keys,type:jsonb" json:"-"`
	CreatedAt time.Time       `bun:"created_at,type:timestamptz,notnull" json:"created_at"`
	UpdatedAt time.Time       `bun:"updated_at,type:timestamptz,notnull" json:"updated_at"`
}
