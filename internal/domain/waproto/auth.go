package waproto

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
)

// Categorias de chave do protocolo signal, usadas como prefixo do
// índice composto "<type>-<id>" no mapa de chaves
const (
	KeyTypePreKey              = "pre-key"
	KeyTypeSession             = "session"
	KeyTypeSenderKey           = "sender-key"
	KeyTypeSenderKeyMemory     = "sender-key-memory"
	KeyTypeAppStateSyncKey     = "app-state-sync-key"
	KeyTypeAppStateSyncVersion = "app-state-sync-version"
)

// Document é um documento JSON de credenciais; sequências binárias
// aparecem como []byte e sobrevivem ao codec sem perda
type Document = map[string]any

// SignalKeyStore é o contrato de armazenamento das chaves rotativas
type SignalKeyStore interface {
	// Get retorna os valores decodificados dos ids presentes; ids
	// ausentes simplesmente não aparecem no resultado
	Get(ctx context.Context, keyType string, ids []string) (map[string]any, error)

	// Set aplica um patch {type: {id: value}}; value nil remove a chave.
	// A persistência é agendada e acontece depois do retorno.
	Set(ctx context.Context, patch map[string]map[string]any) error
}

// AuthState agrupa credenciais e o armazém de chaves de uma sessão. O
// documento de credenciais é compartilhado entre o socket e a camada de
// persistência: toda leitura ou mutação de Creds segura CredsMu.
type AuthState struct {
	Creds   Document
	Keys    SignalKeyStore
	CredsMu *sync.Mutex
}

// AppStateSyncKeyFingerprint identifica o aparelho dono de uma chave de sync
type AppStateSyncKeyFingerprint struct {
	RawID         uint32   `json:"rawId"`
	CurrentIndex  uint32   `json:"currentIndex"`
	DeviceIndexes []uint32 `json:"deviceIndexes"`
}

// AppStateSyncKey é a forma estruturada das chaves app-state-sync-key
type AppStateSyncKey struct {
	KeyData     []byte                     `json:"keyData"`
	Fingerprint AppStateSyncKeyFingerprint `json:"fingerprint"`
	Timestamp   int64                      `json:"timestamp"`
}

// LiftAppStateSyncKey converte o valor decodificado do armazém na forma
// estruturada do protocolo
func LiftAppStateSyncKey(v any) (*AppStateSyncKey, error) {
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("app state sync key: unexpected value type %T", v)
	}

	key := &AppStateSyncKey{}
	if data, ok := doc["keyData"].([]byte); ok {
		key.KeyData = data
	}
	if ts, ok := doc["timestamp"].(float64); ok {
		key.Timestamp = int64(ts)
	}
	if fp, ok := doc["fingerprint"].(map[string]any); ok {
		if raw, ok := fp["rawId"].(float64); ok {
			key.Fingerprint.RawID = uint32(raw)
		}
		if idx, ok := fp["currentIndex"].(float64); ok {
			key.Fingerprint.CurrentIndex = uint32(idx)
		}
		if devs, ok := fp["deviceIndexes"].([]any); ok {
			for _, d := range devs {
				if n, ok := d.(float64); ok {
					key.Fingerprint.DeviceIndexes = append(key.Fingerprint.DeviceIndexes, uint32(n))
				}
			}
		}
	}
	return key, nil
}

// InitCredentials produz um documento de credenciais novo, equivalente ao
// inicializador da biblioteca de protocolo: pares de chave aleatórios e
// contadores zerados, prontos para o primeiro pareamento via QR
func InitCredentials() Document {
	return Document{
		"noiseKey":                randomKeyPair(),
		"pairingEphemeralKeyPair": randomKeyPair(),
		"signedIdentityKey":       randomKeyPair(),
		"signedPreKey": Document{
			"keyPair":   randomKeyPair(),
			"signature": randomBytes(64),
			"keyId":     1,
		},
		"registrationId":           randomRegistrationID(),
		"advSecretKey":             randomBytes(32),
		"nextPreKeyId":             1,
		"firstUnuploadedPreKeyId":  1,
		"accountSyncCounter":       0,
		"accountSettings":          Document{"unarchiveChats": false},
		"registered":               false,
		"processedHistoryMessages": []any{},
	}
}

func randomKeyPair() Document {
	return Document{
		"private": randomBytes(32),
		"public":  randomBytes(32),
	}
}

func randomBytes(n int) []byte {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return buf
}

// randomRegistrationID gera um id de registro no intervalo [1, 16380]
func randomRegistrationID() int {
	return int(binary.BigEndian.Uint16(randomBytes(2)))%16380 + 1
}
