package waclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wafleet/internal/domain/waproto"
	"wafleet/internal/infra/whatsapp/authstate"
	"wafleet/pkg/logger"
)

// memKeyStore é um SignalKeyStore de teste sem persistência
type memKeyStore struct {
	mu   sync.Mutex
	keys map[string]map[string]any
}

func newMemKeyStore() *memKeyStore {
	return &memKeyStore{keys: make(map[string]map[string]any)}
}

func (m *memKeyStore) Get(_ context.Context, keyType string, ids []string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]any)
	for _, id := range ids {
		if v, ok := m.keys[keyType][id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

func (m *memKeyStore) Set(_ context.Context, patch map[string]map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for keyType, entries := range patch {
		if m.keys[keyType] == nil {
			m.keys[keyType] = make(map[string]any)
		}
		for id, v := range entries {
			if v == nil {
				delete(m.keys[keyType], id)
				continue
			}
			m.keys[keyType][id] = v
		}
	}
	return nil
}

// startEngine sobe um engine de mentira que conversa a ponte de frames
func startEngine(t *testing.T, handler func(t *testing.T, conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		handler(t, conn)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testSocketConfig() waproto.SocketConfig {
	return waproto.SocketConfig{
		Version: waproto.Version{2, 3000, 1},
		Auth: &waproto.AuthState{
			Creds:   waproto.InitCredentials(),
			Keys:    newMemKeyStore(),
			CredsMu: &sync.Mutex{},
		},
		Browser: [3]string{"WAFleet", "Chrome", "120.0"},
		Logger:  waproto.NopLogger{},
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	var fr frame
	require.NoError(t, conn.ReadJSON(&fr))
	return fr
}

func TestBridgeHandshakeAndEvents(t *testing.T) {
	url := startEngine(t, func(t *testing.T, conn *websocket.Conn) {
		init := readFrame(t, conn)
		assert.Equal(t, "init", init.Type)
		assert.Equal(t, waproto.Version{2, 3000, 1}, init.Version)
		assert.Equal(t, []string{"WAFleet", "Chrome", "120.0"}, init.Browser)
		assert.Contains(t, string(init.Creds), "noiseKey")

		require.NoError(t, conn.WriteJSON(frame{Type: "qr", Code: "challenge-1"}))
		require.NoError(t, conn.WriteJSON(frame{Type: "open", UserID: "5511999999999:12@s.whatsapp.net"}))
		require.NoError(t, conn.WriteJSON(frame{Type: "close", Reason: "logged_out"}))
	})

	factory := NewFactory(url, logger.SetupForTesting())
	sock, err := factory.NewSocket(testSocketConfig())
	require.NoError(t, err)
	defer sock.Close()

	evt := <-sock.Events()
	qr, ok := evt.(*waproto.QREvent)
	require.True(t, ok)
	assert.Equal(t, "challenge-1", qr.Code)

	evt = <-sock.Events()
	_, ok = evt.(*waproto.ConnectionOpen)
	require.True(t, ok)
	assert.Equal(t, "5511999999999:12@s.whatsapp.net", sock.UserID())

	evt = <-sock.Events()
	closed, ok := evt.(*waproto.ConnectionClosed)
	require.True(t, ok)
	assert.ErrorIs(t, closed.Reason, waproto.ErrLoggedOut)
}

func TestBridgeKeysRoundTrip(t *testing.T) {
	got := make(chan frame, 1)
	url := startEngine(t, func(t *testing.T, conn *websocket.Conn) {
		readFrame(t, conn) // init

		// engine grava uma chave e depois a lê de volta
		patch, err := json.Marshal(map[string]any{
			"pre-key": map[string]any{
				"1": map[string]any{
					"private": map[string]any{"type": "Buffer", "data": []int{1, 2, 3}},
				},
			},
		})
		require.NoError(t, err)
		require.NoError(t, conn.WriteJSON(frame{Type: "keys.set", Patch: patch}))

		require.NoError(t, conn.WriteJSON(frame{
			Type:    "keys.get",
			ID:      7,
			KeyType: "pre-key",
			IDs:     []string{"1", "missing"},
		}))

		got <- readFrame(t, conn)
	})

	factory := NewFactory(url, logger.SetupForTesting())
	sock, err := factory.NewSocket(testSocketConfig())
	require.NoError(t, err)
	defer sock.Close()

	select {
	case result := <-got:
		assert.Equal(t, "keys.get.result", result.Type)
		assert.Equal(t, int64(7), result.ID)
		assert.Contains(t, string(result.Data), `"data":[1,2,3]`,
			"binary fields travel back buffer-tagged")
		assert.NotContains(t, string(result.Data), "missing")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for keys.get.result")
	}
}

func TestBridgeCredsMergeSafeDuringPersistence(t *testing.T) {
	const updates = 200
	url := startEngine(t, func(t *testing.T, conn *websocket.Conn) {
		readFrame(t, conn) // init

		// rajada de rotações de credenciais, como um pareamento real produz
		for i := 0; i < updates; i++ {
			creds, err := json.Marshal(map[string]any{"accountSyncCounter": i})
			require.NoError(t, err)
			require.NoError(t, conn.WriteJSON(frame{Type: "creds.update", Creds: creds}))
		}
		require.NoError(t, conn.WriteJSON(frame{Type: "close", Reason: "stream errored"}))
	})

	cfg := testSocketConfig()
	factory := NewFactory(url, logger.SetupForTesting())
	sock, err := factory.NewSocket(cfg)
	require.NoError(t, err)
	defer sock.Close()

	// cada rotação dispara uma serialização do documento inteiro, que é o
	// que a persistência de credenciais faz a cada CredsUpdate
	seen := 0
	for evt := range sock.Events() {
		if _, ok := evt.(*waproto.CredsUpdate); !ok {
			continue
		}
		seen++
		cfg.Auth.CredsMu.Lock()
		snapshot, err := authstate.Encode(cfg.Auth.Creds)
		cfg.Auth.CredsMu.Unlock()
		require.NoError(t, err)
		require.NotEmpty(t, snapshot)
	}
	assert.Equal(t, updates, seen)

	cfg.Auth.CredsMu.Lock()
	defer cfg.Auth.CredsMu.Unlock()
	assert.EqualValues(t, updates-1, cfg.Auth.Creds["accountSyncCounter"],
		"the last merged document wins")
}

func TestBridgeDropWithoutCloseFrameIsConnectionFailure(t *testing.T) {
	url := startEngine(t, func(t *testing.T, conn *websocket.Conn) {
		readFrame(t, conn) // init
		// derruba a conexão sem avisar
	})

	factory := NewFactory(url, logger.SetupForTesting())
	sock, err := factory.NewSocket(testSocketConfig())
	require.NoError(t, err)
	defer sock.Close()

	evt := <-sock.Events()
	closed, ok := evt.(*waproto.ConnectionClosed)
	require.True(t, ok)
	assert.ErrorIs(t, closed.Reason, waproto.ErrConnectionFailure)
}

func TestParseVersion(t *testing.T) {
	v, err := parseVersion("2.3000.1026")
	require.NoError(t, err)
	assert.Equal(t, waproto.Version{2, 3000, 1026}, v)

	_, err = parseVersion("2.3000")
	assert.Error(t, err)

	_, err = parseVersion("2.x.1")
	assert.Error(t, err)
}

func TestHTTPVersionFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"isBroken":       false,
			"currentVersion": "2.3000.1026",
		})
	}))
	t.Cleanup(srv.Close)

	fetcher := NewHTTPVersionFetcherWithURL(srv.URL)
	v, err := fetcher.FetchLatestVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, waproto.Version{2, 3000, 1026}, v)
}

func TestHTTPVersionFetcherBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	fetcher := NewHTTPVersionFetcherWithURL(srv.URL)
	_, err := fetcher.FetchLatestVersion(context.Background())
	assert.Error(t, err)
}
