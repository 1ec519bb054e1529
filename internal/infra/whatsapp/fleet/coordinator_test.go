package fleet

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wafleet/internal/domain/authsession"
	"wafleet/internal/domain/instance"
	"wafleet/internal/domain/waproto"
	"wafleet/internal/domain/waproto/waprototest"
	"wafleet/internal/infra/whatsapp/authstate"
	"wafleet/internal/infra/whatsapp/services"
	"wafleet/pkg/logger"
)

// ==================== FAKES ====================

type fakeRegistry struct {
	mu    sync.Mutex
	order []uuid.UUID
	rows  map[uuid.UUID]*instance.Instance
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{rows: make(map[uuid.UUID]*instance.Instance)}
}

func (r *fakeRegistry) Create(_ context.Context, inst *instance.Instance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inst.ID == uuid.Nil {
		inst.ID = uuid.New()
	}
	if inst.ConnectionStatus == "" {
		inst.ConnectionStatus = instance.StatusDisconnected
	}
	clone := *inst
	r.rows[inst.ID] = &clone
	r.order = append(r.order, inst.ID)
	return nil
}

func (r *fakeRegistry) GetByID(_ context.Context, id uuid.UUID) (*instance.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.rows[id]
	if !ok {
		return nil, instance.ErrInstanceNotFound
	}
	clone := *inst
	return &clone, nil
}

func (r *fakeRegistry) GetByName(_ context.Context, name string) (*instance.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.rows {
		if inst.InstanceName == name {
			clone := *inst
			return &clone, nil
		}
	}
	return nil, instance.ErrInstanceNotFound
}

func (r *fakeRegistry) List(_ context.Context) ([]*instance.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*instance.Instance, 0, len(r.order))
	for _, id := range r.order {
		if inst, ok := r.rows[id]; ok {
			clone := *inst
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeRegistry) UpdateStatus(_ context.Context, id uuid.UUID, status instance.ConnectionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.rows[id]
	if !ok {
		return nil
	}
	inst.ConnectionStatus = status
	inst.IsConnected = status == instance.StatusConnected
	if status != instance.StatusQRPending {
		inst.QRCode = nil
		inst.QRCodeExpiresAt = nil
	}
	return nil
}

func (r *fakeRegistry) UpdateQRCode(_ context.Context, id uuid.UUID, qrCode string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.rows[id]
	if !ok {
		return nil
	}
	inst.ConnectionStatus = instance.StatusQRPending
	inst.IsConnected = false
	inst.QRCode = &qrCode
	inst.QRCodeExpiresAt = &expiresAt
	return nil
}

func (r *fakeRegistry) UpdateConnected(_ context.Context, id uuid.UUID, phoneNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.rows[id]
	if !ok {
		return nil
	}
	now := time.Now().UTC()
	inst.ConnectionStatus = instance.StatusConnected
	inst.IsConnected = true
	inst.QRCode = nil
	inst.QRCodeExpiresAt = nil
	inst.OwnerPhoneNumber = &phoneNumber
	inst.LastConnectedAt = &now
	return nil
}

func (r *fakeRegistry) UpdateDisconnected(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.rows[id]
	if !ok {
		return nil
	}
	inst.ConnectionStatus = instance.StatusDisconnected
	inst.IsConnected = false
	inst.QRCode = nil
	inst.QRCodeExpiresAt = nil
	inst.OwnerPhoneNumber = nil
	return nil
}

func (r *fakeRegistry) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[id]; !ok {
		return instance.ErrInstanceNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *fakeRegistry) ListRecoverable(_ context.Context, limit int) ([]*instance.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	recoverable := make(map[instance.ConnectionStatus]bool)
	for _, st := range instance.RecoverableStatuses() {
		recoverable[st] = true
	}
	out := make([]*instance.Instance, 0, limit)
	for _, id := range r.order {
		inst, ok := r.rows[id]
		if !ok || !recoverable[inst.ConnectionStatus] {
			continue
		}
		clone := *inst
		out = append(out, &clone)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *fakeRegistry) status(t *testing.T, id uuid.UUID) instance.ConnectionStatus {
	t.Helper()
	inst, err := r.GetByID(context.Background(), id)
	require.NoError(t, err)
	return inst.ConnectionStatus
}

type fakeSessions struct {
	mu        sync.Mutex
	rows      map[string]*authsession.Record
	keyWrites int
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{rows: make(map[string]*authsession.Record)}
}

func (r *fakeSessions) Get(_ context.Context, name string) (*authsession.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[name]
	if !ok {
		return nil, authsession.ErrSessionNotFound
	}
	clone := *rec
	return &clone, nil
}

func (r *fakeSessions) Upsert(_ context.Context, name string, creds, keys json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[name] = &authsession.Record{ID: name, Creds: creds, Keys: keys}
	return nil
}

func (r *fakeSessions) UpdateKeys(_ context.Context, name string, keys json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keyWrites++
	rec, ok := r.rows[name]
	if !ok {
		rec = &authsession.Record{ID: name, Creds: json.RawMessage("null")}
		r.rows[name] = rec
	}
	rec.Keys = keys
	return nil
}

func (r *fakeSessions) Delete(_ context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, name)
	return nil
}

func (r *fakeSessions) List(_ context.Context) ([]*authsession.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*authsession.Record, 0, len(r.rows))
	for _, rec := range r.rows {
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}

func (r *fakeSessions) Exists(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rows[name]
	return ok, nil
}

// ==================== HELPERS ====================

type fixture struct {
	coord    *Coordinator
	registry *fakeRegistry
	sessions *fakeSessions
	factory  *waprototest.Factory
	versions *waprototest.Versions
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	log := logger.SetupForTesting()
	registry := newFakeRegistry()
	sessions := newFakeSessions()
	factory := waprototest.NewFactory()
	versions := &waprototest.Versions{V: waproto.Version{2, 3000, 1}}
	auth := authstate.NewStore(sessions, time.Hour, log)

	coord := NewCoordinator(cfg, registry, auth, factory, versions,
		services.NewWebhookNotifier(log), log)
	return &fixture{
		coord:    coord,
		registry: registry,
		sessions: sessions,
		factory:  factory,
		versions: versions,
	}
}

func fastReconnectConfig() Config {
	return Config{
		ReconnectJitterMin: time.Millisecond,
		ReconnectJitterMax: 2 * time.Millisecond,
	}
}

// ==================== TESTS ====================

func TestCreateInstanceStartsConnection(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	inst, err := fx.coord.CreateInstance(ctx, uuid.New(), "sales-bot", "")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, inst.ID)

	assert.Equal(t, instance.StatusConnecting, fx.registry.status(t, inst.ID))
	assert.Equal(t, 1, fx.factory.Calls())

	sock := fx.factory.Sockets()[0]
	assert.Equal(t, [3]string{"WAFleet", "Chrome", "120.0"}, sock.Config().Browser)
	assert.Equal(t, waproto.Version{2, 3000, 1}, sock.Config().Version)
}

func TestCreateInstanceRespectsFleetCeiling(t *testing.T) {
	fx := newFixture(t, Config{MaxInstances: 1})
	ctx := context.Background()

	_, err := fx.coord.CreateInstance(ctx, uuid.New(), "first", "")
	require.NoError(t, err)

	_, err = fx.coord.CreateInstance(ctx, uuid.New(), "second", "")
	assert.ErrorIs(t, err, instance.ErrMaxInstancesReached)
}

func TestFleetCeilingCountsLiveSocketsOnly(t *testing.T) {
	fx := newFixture(t, Config{MaxInstances: 1})
	ctx := context.Background()

	// sobra de uma vida anterior do processo: linha failed sem supervisor
	require.NoError(t, fx.registry.Create(ctx, &instance.Instance{
		UserID:           uuid.New(),
		InstanceName:     "stale-bot",
		ConnectionStatus: instance.StatusFailed,
	}))

	_, err := fx.coord.CreateInstance(ctx, uuid.New(), "fresh-bot", "")
	require.NoError(t, err, "dead rows do not hold fleet slots")

	_, err = fx.coord.CreateInstance(ctx, uuid.New(), "one-too-many", "")
	assert.ErrorIs(t, err, instance.ErrMaxInstancesReached)
}

func TestQRCodeIsMirroredAndPersisted(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	inst, err := fx.coord.CreateInstance(ctx, uuid.New(), "sales-bot", "")
	require.NoError(t, err)

	fx.factory.Sockets()[0].EmitQR("pairing-challenge-1")

	require.Eventually(t, func() bool {
		qr, _, err := fx.coord.GetQRCode(ctx, inst.ID)
		return err == nil && qr != ""
	}, time.Second, 5*time.Millisecond)

	qr, status, err := fx.coord.GetQRCode(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, instance.StatusQRPending, status)
	assert.True(t, strings.HasPrefix(qr, "data:image/png;base64,"),
		"QR is served as an embeddable PNG data URL")

	row, err := fx.registry.GetByID(ctx, inst.ID)
	require.NoError(t, err)
	require.NotNil(t, row.QRCodeExpiresAt)
	ttl := time.Until(*row.QRCodeExpiresAt)
	assert.Greater(t, ttl, 50*time.Second)
	assert.LessOrEqual(t, ttl, 60*time.Second)
}

func TestConnectionOpenPromotesInstance(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	inst, err := fx.coord.CreateInstance(ctx, uuid.New(), "sales-bot", "")
	require.NoError(t, err)

	sock := fx.factory.Sockets()[0]
	sock.EmitQR("pairing-challenge-1")
	sock.EmitOpen("5511999999999:12@s.whatsapp.net")

	require.Eventually(t, func() bool {
		return fx.registry.status(t, inst.ID) == instance.StatusConnected
	}, time.Second, 5*time.Millisecond)

	row, err := fx.registry.GetByID(ctx, inst.ID)
	require.NoError(t, err)
	require.NotNil(t, row.OwnerPhoneNumber)
	assert.Equal(t, "5511999999999", *row.OwnerPhoneNumber)
	assert.True(t, row.IsConnected)
	assert.Nil(t, row.QRCode, "pairing artifacts are gone once connected")

	qr, _, err := fx.coord.GetQRCode(ctx, inst.ID)
	require.NoError(t, err)
	assert.Empty(t, qr, "QR mirror is cleared on open")
}

func TestLogoutWipesSessionWithoutReconnect(t *testing.T) {
	fx := newFixture(t, fastReconnectConfig())
	ctx := context.Background()

	inst, err := fx.coord.CreateInstance(ctx, uuid.New(), "sales-bot", "")
	require.NoError(t, err)

	sock := fx.factory.Sockets()[0]
	sock.EmitOpen("5511999999999:12@s.whatsapp.net")
	sock.EmitCredsUpdate()

	require.Eventually(t, func() bool {
		ok, _ := fx.sessions.Exists(ctx, "sales-bot")
		return ok
	}, time.Second, 5*time.Millisecond, "creds update persists the session row")

	sock.EmitClose(waproto.ErrLoggedOut)

	require.Eventually(t, func() bool {
		return fx.registry.status(t, inst.ID) == instance.StatusDisconnected
	}, time.Second, 5*time.Millisecond)

	ok, err := fx.sessions.Exists(ctx, "sales-bot")
	require.NoError(t, err)
	assert.False(t, ok, "logout wipes the persisted session")

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, fx.factory.Calls(), "logout never triggers a reconnect")
}

func TestLogoutDiscardsLateCredsUpdate(t *testing.T) {
	fx := newFixture(t, fastReconnectConfig())
	ctx := context.Background()

	_, err := fx.coord.CreateInstance(ctx, uuid.New(), "sales-bot", "")
	require.NoError(t, err)

	sock := fx.factory.Sockets()[0]
	sock.EmitOpen("5511999999999:12@s.whatsapp.net")
	sock.EmitCredsUpdate()

	require.Eventually(t, func() bool {
		ok, _ := fx.sessions.Exists(ctx, "sales-bot")
		return ok
	}, time.Second, 5*time.Millisecond)

	// o logout chega com uma rotação de credenciais já na fila atrás dele
	sock.EmitClose(waproto.ErrLoggedOut)
	sock.EmitCredsUpdate()

	require.Eventually(t, func() bool {
		ok, _ := fx.sessions.Exists(ctx, "sales-bot")
		return !ok
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	ok, err := fx.sessions.Exists(ctx, "sales-bot")
	require.NoError(t, err)
	assert.False(t, ok, "a late creds update cannot resurrect the wiped session")
}

func TestDroppedConnectionReconnects(t *testing.T) {
	fx := newFixture(t, fastReconnectConfig())
	ctx := context.Background()

	inst, err := fx.coord.CreateInstance(ctx, uuid.New(), "sales-bot", "")
	require.NoError(t, err)

	fx.factory.Sockets()[0].EmitClose(waproto.ErrConnectionFailure)

	require.Eventually(t, func() bool {
		return fx.factory.Calls() == 2
	}, time.Second, 5*time.Millisecond, "a dropped connection is re-admitted")

	fx.factory.Sockets()[1].EmitOpen("5511999999999:12@s.whatsapp.net")

	require.Eventually(t, func() bool {
		return fx.registry.status(t, inst.ID) == instance.StatusConnected
	}, time.Second, 5*time.Millisecond)
}

func TestReconnectGivesUpAfterRetryBudget(t *testing.T) {
	fx := newFixture(t, fastReconnectConfig())
	ctx := context.Background()

	// todo socket cai imediatamente: a readmissão nunca vai vingar
	fx.factory.OnConnect = func(s *waprototest.Socket) {
		s.EmitClose(waproto.ErrConnectionFailure)
	}

	inst, err := fx.coord.CreateInstance(ctx, uuid.New(), "sales-bot", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return fx.registry.status(t, inst.ID) == instance.StatusFailed
	}, 5*time.Second, 5*time.Millisecond)

	// conexão inicial + 5 readmissões, e nada depois do teto
	assert.Equal(t, 6, fx.factory.Calls())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 6, fx.factory.Calls())
}

func TestRestartKeepsRetryBudgetSpent(t *testing.T) {
	fx := newFixture(t, fastReconnectConfig())
	ctx := context.Background()

	fx.factory.OnConnect = func(s *waprototest.Socket) {
		s.EmitClose(waproto.ErrConnectionFailure)
	}

	inst, err := fx.coord.CreateInstance(ctx, uuid.New(), "sales-bot", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return fx.registry.status(t, inst.ID) == instance.StatusFailed
	}, 5*time.Second, 5*time.Millisecond)
	callsAtFailure := fx.factory.Calls()

	// restart manual religa, mas não devolve crédito de readmissão
	require.NoError(t, fx.coord.RestartInstance(ctx, inst.ID))

	require.Eventually(t, func() bool {
		return fx.registry.status(t, inst.ID) == instance.StatusFailed
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, callsAtFailure+1, fx.factory.Calls())
}

func TestRestartUnknownInstance(t *testing.T) {
	fx := newFixture(t, Config{})

	err := fx.coord.RestartInstance(context.Background(), uuid.New())
	assert.ErrorIs(t, err, instance.ErrInstanceNotFound)
}

func TestDeleteInstanceCleansEverything(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	inst, err := fx.coord.CreateInstance(ctx, uuid.New(), "sales-bot", "")
	require.NoError(t, err)

	sock := fx.factory.Sockets()[0]
	sock.EmitOpen("5511999999999:12@s.whatsapp.net")
	sock.EmitCredsUpdate()

	require.Eventually(t, func() bool {
		ok, _ := fx.sessions.Exists(ctx, "sales-bot")
		return ok
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, fx.coord.DeleteInstance(ctx, inst.ID))

	_, err = fx.coord.GetInstance(ctx, inst.ID)
	assert.ErrorIs(t, err, instance.ErrInstanceNotFound)

	ok, err := fx.sessions.Exists(ctx, "sales-bot")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, fx.coord.DeleteInstance(ctx, inst.ID), instance.ErrInstanceNotFound)
}

func TestRecoverInstancesStaggersBatches(t *testing.T) {
	delay := 60 * time.Millisecond
	fx := newFixture(t, Config{
		BootBatchSize:      5,
		StaggeredBootDelay: delay,
	})
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		require.NoError(t, fx.registry.Create(ctx, &instance.Instance{
			UserID:           uuid.New(),
			InstanceName:     "bot-" + uuid.NewString()[:8],
			ConnectionStatus: instance.StatusConnected,
		}))
	}

	require.NoError(t, fx.coord.RecoverInstances(ctx))

	require.Eventually(t, func() bool {
		return fx.factory.Calls() == 12
	}, 2*time.Second, 5*time.Millisecond)

	times := fx.factory.CallTimes()
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	// lotes de 5 separados por pelo menos o atraso escalonado
	assert.GreaterOrEqual(t, times[5].Sub(times[4]), delay/2)
	assert.GreaterOrEqual(t, times[10].Sub(times[9]), delay/2)
	assert.Less(t, times[4].Sub(times[0]), delay)
}

func TestRecoverInstancesSkipsFailedAndDisconnected(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	for _, st := range []instance.ConnectionStatus{
		instance.StatusConnected,
		instance.StatusFailed,
		instance.StatusDisconnected,
		instance.StatusConnecting,
		instance.StatusQRPending,
	} {
		require.NoError(t, fx.registry.Create(ctx, &instance.Instance{
			UserID:           uuid.New(),
			InstanceName:     "bot-" + string(st),
			ConnectionStatus: st,
		}))
	}

	require.NoError(t, fx.coord.RecoverInstances(ctx))

	require.Eventually(t, func() bool {
		return fx.factory.Calls() == 3
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, fx.factory.Calls(),
		"failed and disconnected instances stay down across boots")
}

func TestShutdownFlushesPendingKeyWrites(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	_, err := fx.coord.CreateInstance(ctx, uuid.New(), "sales-bot", "")
	require.NoError(t, err)

	// uma rotação de chave fica parada atrás do debounce de uma hora
	auth := fx.factory.Sockets()[0].Config().Auth
	require.NoError(t, auth.Keys.Set(ctx, map[string]map[string]any{
		waproto.KeyTypePreKey: {"1": map[string]any{"blob": []byte{1}}},
	}))

	require.NoError(t, fx.coord.Shutdown(ctx))

	fx.sessions.mu.Lock()
	writes := fx.sessions.keyWrites
	fx.sessions.mu.Unlock()
	assert.Equal(t, 1, writes, "shutdown flushes the parked write synchronously")
}

func TestVersionFetchedOnceForWholeFleet(t *testing.T) {
	fx := newFixture(t, Config{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := fx.coord.CreateInstance(ctx, uuid.New(), "bot-"+uuid.NewString()[:8], "")
		require.NoError(t, err)
	}

	assert.Equal(t, 3, fx.factory.Calls())
	assert.Equal(t, 1, fx.versions.FetchCalls(), "protocol version is cached across sockets")
}
