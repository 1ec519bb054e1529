package authstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"wafleet/internal/domain/authsession"
	"wafleet/internal/domain/waproto"
	"wafleet/pkg/logger"
)

// DefaultDebounceWindow é a janela de coalescência das escritas de chaves
const DefaultDebounceWindow = 500 * time.Millisecond

// SaveCreds persiste o snapshot atual de credenciais e chaves da sessão
type SaveCreds func(ctx context.Context) error

// Store mantém o estado de autenticação de cada instância: o documento de
// credenciais em memória, o mapa de chaves rotativas e o timer de debounce
// que coalesce rajadas de atualizações em uma única escrita de linha.
type Store struct {
	repo   authsession.Repository
	window time.Duration
	log    logger.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState
}

// sessionState é o estado em memória de uma sessão aberta
type sessionState struct {
	name  string
	store *Store

	mu    sync.Mutex
	creds waproto.Document
	keys  map[string]json.RawMessage
	timer *time.Timer
	dirty bool
}

// NewStore cria o armazém de estado de sessão sobre o repositório
func NewStore(repo authsession.Repository, window time.Duration, log logger.Logger) *Store {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Store{
		repo:     repo,
		window:   window,
		log:      log.WithComponent("authstate"),
		sessions: make(map[string]*sessionState),
	}
}

// Open carrega (ou inicializa) o estado de autenticação da instância e
// devolve o callback de persistência de credenciais. Quando a instância já
// tem estado aberto em memória, ele é reutilizado: atualizações de chaves
// ainda não descarregadas não podem ser perdidas por uma reconexão.
func (s *Store) Open(ctx context.Context, name string) (*waproto.AuthState, SaveCreds, error) {
	s.mu.Lock()
	st, ok := s.sessions[name]
	if !ok {
		st = &sessionState{name: name, store: s}
		s.sessions[name] = st
	}
	s.mu.Unlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.creds == nil {
		if err := st.load(ctx); err != nil {
			return nil, nil, err
		}
	}

	state := &waproto.AuthState{
		Creds:   st.creds,
		Keys:    &signalKeyStore{session: st},
		CredsMu: &st.mu,
	}
	return state, st.saveCreds, nil
}

// load busca a linha persistida; ausência de linha (ou creds nulas) começa
// uma sessão nova com credenciais recém-geradas
func (st *sessionState) load(ctx context.Context) error {
	rec, err := st.store.repo.Get(ctx, st.name)
	if err != nil {
		if errors.Is(err, authsession.ErrSessionNotFound) {
			st.creds = waproto.InitCredentials()
			st.keys = make(map[string]json.RawMessage)
			return nil
		}
		return fmt.Errorf("failed to load auth session: %w", err)
	}

	creds, err := DecodeDocument(rec.Creds)
	if err != nil {
		return fmt.Errorf("failed to decode creds document: %w", err)
	}
	if creds == nil {
		creds = waproto.InitCredentials()
	}

	keys := make(map[string]json.RawMessage)
	if len(rec.Keys) > 0 && string(rec.Keys) != "null" {
		if err := json.Unmarshal(rec.Keys, &keys); err != nil {
			return fmt.Errorf("failed to decode keys document: %w", err)
		}
	}

	st.creds = creds
	st.keys = keys
	return nil
}

// saveCreds grava creds e o snapshot corrente de chaves em uma única linha.
// Um debounce de chaves pendente segue agendado; a escrita extra é inócua
// porque o snapshot posterior já contém tudo que este contém.
func (st *sessionState) saveCreds(ctx context.Context) error {
	st.mu.Lock()
	creds, err := Encode(st.creds)
	if err != nil {
		st.mu.Unlock()
		return fmt.Errorf("failed to encode creds document: %w", err)
	}
	keys, err := json.Marshal(st.keys)
	if err != nil {
		st.mu.Unlock()
		return fmt.Errorf("failed to encode keys document: %w", err)
	}
	st.mu.Unlock()

	return st.store.repo.Upsert(ctx, st.name, creds, keys)
}

// scheduleKeyFlush (re)arma o timer de debounce; chamadas dentro da janela
// empurram a escrita para frente e só o último snapshot vai ao banco
func (st *sessionState) scheduleKeyFlush() {
	st.dirty = true
	if st.timer != nil {
		st.timer.Stop()
	}
	st.timer = time.AfterFunc(st.store.window, func() {
		if err := st.flushKeys(context.Background()); err != nil {
			st.store.log.WithError(err).Error().
				Str("instance", st.name).
				Msg("Failed to persist session keys")
		}
	})
}

// flushKeys grava o snapshot corrente de chaves, se houver algo pendente
func (st *sessionState) flushKeys(ctx context.Context) error {
	st.mu.Lock()
	if !st.dirty {
		st.mu.Unlock()
		return nil
	}
	st.dirty = false
	keys, err := json.Marshal(st.keys)
	st.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode keys document: %w", err)
	}
	return st.store.repo.UpdateKeys(ctx, st.name, keys)
}

// Flush cancela todos os timers pendentes e descarrega as escritas de
// chaves de forma síncrona. Usado no desligamento do processo.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	states := make([]*sessionState, 0, len(s.sessions))
	for _, st := range s.sessions {
		states = append(states, st)
	}
	s.mu.Unlock()

	var firstErr error
	for _, st := range states {
		st.mu.Lock()
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		st.mu.Unlock()

		if err := st.flushKeys(ctx); err != nil {
			s.log.WithError(err).Error().
				Str("instance", st.name).
				Msg("Failed to flush session keys on shutdown")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// RemoveSession descarta o estado em memória (incluindo escritas pendentes)
// e apaga a linha persistida. Idempotente: remover o que não existe é ok.
func (s *Store) RemoveSession(ctx context.Context, name string) error {
	s.mu.Lock()
	st, ok := s.sessions[name]
	if ok {
		delete(s.sessions, name)
	}
	s.mu.Unlock()

	if ok {
		st.mu.Lock()
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		st.dirty = false
		st.mu.Unlock()
	}

	return s.repo.Delete(ctx, name)
}

// ==================== SIGNAL KEY STORE ====================

// signalKeyStore expõe o mapa de chaves da sessão no contrato esperado
// pelo socket. As chaves são endereçadas por "<tipo>-<id>".
type signalKeyStore struct {
	session *sessionState
}

func compoundKey(keyType, id string) string {
	return keyType + "-" + id
}

// Get busca chaves por tipo e ids; ids ausentes ficam fora do resultado
func (k *signalKeyStore) Get(_ context.Context, keyType string, ids []string) (map[string]any, error) {
	st := k.session
	st.mu.Lock()
	defer st.mu.Unlock()

	result := make(map[string]any, len(ids))
	for _, id := range ids {
		raw, ok := st.keys[compoundKey(keyType, id)]
		if !ok {
			continue
		}
		value, err := Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode key %s:%s: %w", keyType, id, err)
		}
		if keyType == waproto.KeyTypeAppStateSyncKey {
			lifted, err := waproto.LiftAppStateSyncKey(value)
			if err != nil {
				return nil, fmt.Errorf("failed to lift key %s:%s: %w", keyType, id, err)
			}
			result[id] = lifted
			continue
		}
		result[id] = value
	}
	return result, nil
}

// Set aplica um patch de chaves: valores nulos removem a entrada, os demais
// a substituem. A persistência é agendada no debounce, nunca imediata.
func (k *signalKeyStore) Set(_ context.Context, patch map[string]map[string]any) error {
	st := k.session
	st.mu.Lock()
	defer st.mu.Unlock()

	for keyType, entries := range patch {
		for id, value := range entries {
			ck := compoundKey(keyType, id)
			if value == nil {
				delete(st.keys, ck)
				continue
			}
			raw, err := Encode(value)
			if err != nil {
				return fmt.Errorf("failed to encode key %s:%s: %w", keyType, id, err)
			}
			st.keys[ck] = raw
		}
	}

	st.scheduleKeyFlush()
	return nil
}
