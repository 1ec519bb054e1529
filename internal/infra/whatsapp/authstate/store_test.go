package authstate

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wafleet/internal/domain/authsession"
	"wafleet/internal/domain/waproto"
	"wafleet/pkg/logger"
)

// fakeSessionRepo guarda as linhas em memória e conta as escritas
type fakeSessionRepo struct {
	mu             sync.Mutex
	rows           map[string]*authsession.Record
	upsertCalls    int
	updateKeyCalls int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{rows: make(map[string]*authsession.Record)}
}

func (r *fakeSessionRepo) Get(_ context.Context, name string) (*authsession.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[name]
	if !ok {
		return nil, authsession.ErrSessionNotFound
	}
	clone := *rec
	return &clone, nil
}

func (r *fakeSessionRepo) Upsert(_ context.Context, name string, creds, keys json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertCalls++
	r.rows[name] = &authsession.Record{ID: name, Creds: creds, Keys: keys}
	return nil
}

func (r *fakeSessionRepo) UpdateKeys(_ context.Context, name string, keys json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateKeyCalls++
	rec, ok := r.rows[name]
	if !ok {
		rec = &authsession.Record{ID: name, Creds: json.RawMessage("null")}
		r.rows[name] = rec
	}
	rec.Keys = keys
	return nil
}

func (r *fakeSessionRepo) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, name)
	return nil
}

func (r *fakeSessionRepo) List(_ context.Context) ([]*authsession.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*authsession.Record, 0, len(r.rows))
	for _, rec := range r.rows {
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}

func (r *fakeSessionRepo) Exists(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[name]
	return ok, nil
}

func (r *fakeSessionRepo) keyWrites() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateKeyCalls
}

func (r *fakeSessionRepo) storedKeys(t *testing.T, name string) map[string]json.RawMessage {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[name]
	require.True(t, ok, "expected a persisted row for %s", name)
	keys := make(map[string]json.RawMessage)
	require.NoError(t, json.Unmarshal(rec.Keys, &keys))
	return keys
}

func newTestStore(repo authsession.Repository, window time.Duration) *Store {
	return NewStore(repo, window, logger.SetupForTesting())
}

func TestOpenNewSessionInitializesCredentials(t *testing.T) {
	repo := newFakeSessionRepo()
	store := newTestStore(repo, time.Hour)

	state, saveCreds, err := store.Open(context.Background(), "alpha")
	require.NoError(t, err)
	require.NotNil(t, saveCreds)

	assert.NotEmpty(t, state.Creds["registrationId"])
	assert.False(t, state.Creds["registered"].(bool))

	// abrir uma sessão nova não escreve nada até save_creds
	assert.Equal(t, 0, repo.upsertCalls)
}

func TestSaveCredsRoundTripsThroughRow(t *testing.T) {
	repo := newFakeSessionRepo()
	store := newTestStore(repo, time.Hour)
	ctx := context.Background()

	state, saveCreds, err := store.Open(ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, saveCreds(ctx))

	// reabre a partir da linha persistida em um armazém limpo
	reopened := newTestStore(repo, time.Hour)
	state2, _, err := reopened.Open(ctx, "alpha")
	require.NoError(t, err)

	noise := state.Creds["noiseKey"].(map[string]any)
	noise2 := state2.Creds["noiseKey"].(map[string]any)
	assert.Equal(t, noise["private"], noise2["private"])
	assert.Equal(t, noise["public"], noise2["public"])
}

func TestKeyStoreSetAndGet(t *testing.T) {
	repo := newFakeSessionRepo()
	store := newTestStore(repo, time.Hour)
	ctx := context.Background()

	state, _, err := store.Open(ctx, "alpha")
	require.NoError(t, err)

	err = state.Keys.Set(ctx, map[string]map[string]any{
		waproto.KeyTypePreKey: {
			"1": map[string]any{"private": []byte{1, 2}, "public": []byte{3, 4}},
			"2": map[string]any{"private": []byte{5, 6}, "public": []byte{7, 8}},
		},
	})
	require.NoError(t, err)

	got, err := state.Keys.Get(ctx, waproto.KeyTypePreKey, []string{"1", "2", "missing"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	one := got["1"].(map[string]any)
	assert.Equal(t, []byte{1, 2}, one["private"])
	assert.NotContains(t, got, "missing")
}

func TestKeyStoreNilValueDeletes(t *testing.T) {
	repo := newFakeSessionRepo()
	store := newTestStore(repo, time.Hour)
	ctx := context.Background()

	state, _, err := store.Open(ctx, "alpha")
	require.NoError(t, err)

	require.NoError(t, state.Keys.Set(ctx, map[string]map[string]any{
		waproto.KeyTypeSession: {"s1": map[string]any{"blob": []byte{1}}},
	}))
	require.NoError(t, state.Keys.Set(ctx, map[string]map[string]any{
		waproto.KeyTypeSession: {"s1": nil},
	}))

	got, err := state.Keys.Get(ctx, waproto.KeyTypeSession, []string{"s1"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKeyStoreLiftsAppStateSyncKeys(t *testing.T) {
	repo := newFakeSessionRepo()
	store := newTestStore(repo, time.Hour)
	ctx := context.Background()

	state, _, err := store.Open(ctx, "alpha")
	require.NoError(t, err)

	require.NoError(t, state.Keys.Set(ctx, map[string]map[string]any{
		waproto.KeyTypeAppStateSyncKey: {
			"AAAA": map[string]any{
				"keyData": []byte{10, 20, 30},
				"fingerprint": map[string]any{
					"rawId":         float64(77),
					"currentIndex":  float64(2),
					"deviceIndexes": []any{float64(0), float64(1)},
				},
				"timestamp": float64(1700000000),
			},
		},
	}))

	got, err := state.Keys.Get(ctx, waproto.KeyTypeAppStateSyncKey, []string{"AAAA"})
	require.NoError(t, err)

	key, ok := got["AAAA"].(*waproto.AppStateSyncKey)
	require.True(t, ok, "app-state-sync-key values come back in structured form")
	assert.Equal(t, []byte{10, 20, 30}, key.KeyData)
	assert.Equal(t, uint32(77), key.Fingerprint.RawID)
	assert.Equal(t, []uint32{0, 1}, key.Fingerprint.DeviceIndexes)
	assert.Equal(t, int64(1700000000), key.Timestamp)
}

func TestDebounceCoalescesBurstIntoOneWrite(t *testing.T) {
	repo := newFakeSessionRepo()
	store := newTestStore(repo, 30*time.Millisecond)
	ctx := context.Background()

	state, _, err := store.Open(ctx, "alpha")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, state.Keys.Set(ctx, map[string]map[string]any{
			waproto.KeyTypePreKey: {
				"1": map[string]any{"round": float64(i)},
			},
		}))
	}

	assert.Eventually(t, func() bool { return repo.keyWrites() == 1 },
		time.Second, 5*time.Millisecond, "burst of sets collapses into one row write")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, repo.keyWrites(), "no further writes after the window closes")

	keys := repo.storedKeys(t, "alpha")
	var stored map[string]any
	require.NoError(t, json.Unmarshal(keys["pre-key-1"], &stored))
	assert.Equal(t, float64(4), stored["round"], "only the last snapshot reaches the row")
}

func TestFlushWritesPendingKeysSynchronously(t *testing.T) {
	repo := newFakeSessionRepo()
	store := newTestStore(repo, time.Hour)
	ctx := context.Background()

	state, _, err := store.Open(ctx, "alpha")
	require.NoError(t, err)

	require.NoError(t, state.Keys.Set(ctx, map[string]map[string]any{
		waproto.KeyTypeSenderKey: {"g1": map[string]any{"blob": []byte{1, 2, 3}}},
	}))
	require.Equal(t, 0, repo.keyWrites(), "write is still parked behind the debounce")

	require.NoError(t, store.Flush(ctx))
	assert.Equal(t, 1, repo.keyWrites())

	keys := repo.storedKeys(t, "alpha")
	assert.Contains(t, keys, "sender-key-g1")
}

func TestFlushWithNothingPendingIsNoop(t *testing.T) {
	repo := newFakeSessionRepo()
	store := newTestStore(repo, time.Hour)
	ctx := context.Background()

	_, _, err := store.Open(ctx, "alpha")
	require.NoError(t, err)

	require.NoError(t, store.Flush(ctx))
	assert.Equal(t, 0, repo.keyWrites())
}

func TestRemoveSessionDropsRowAndPendingWrites(t *testing.T) {
	repo := newFakeSessionRepo()
	store := newTestStore(repo, time.Hour)
	ctx := context.Background()

	state, saveCreds, err := store.Open(ctx, "alpha")
	require.NoError(t, err)
	require.NoError(t, saveCreds(ctx))

	require.NoError(t, state.Keys.Set(ctx, map[string]map[string]any{
		waproto.KeyTypePreKey: {"1": map[string]any{"blob": []byte{1}}},
	}))

	require.NoError(t, store.RemoveSession(ctx, "alpha"))

	exists, err := repo.Exists(ctx, "alpha")
	require.NoError(t, err)
	assert.False(t, exists)

	// escritas pendentes morrem com a sessão
	require.NoError(t, store.Flush(ctx))
	assert.Equal(t, 0, repo.keyWrites())

	// remover de novo é inócuo
	require.NoError(t, store.RemoveSession(ctx, "alpha"))
}

func TestReopenReusesInMemoryState(t *testing.T) {
	repo := newFakeSessionRepo()
	store := newTestStore(repo, time.Hour)
	ctx := context.Background()

	state, _, err := store.Open(ctx, "alpha")
	require.NoError(t, err)

	require.NoError(t, state.Keys.Set(ctx, map[string]map[string]any{
		waproto.KeyTypePreKey: {"1": map[string]any{"blob": []byte{9}}},
	}))

	// uma reconexão reabre a sessão antes do debounce descarregar
	state2, _, err := store.Open(ctx, "alpha")
	require.NoError(t, err)

	got, err := state2.Keys.Get(ctx, waproto.KeyTypePreKey, []string{"1"})
	require.NoError(t, err)
	require.Len(t, got, 1, "pending key updates survive a reopen")
}
