package debugapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factorylink/factorylink/internal/debugapi"
	"github.com/factorylink/factorylink/internal/deviceinfo"
	"github.com/factorylink/factorylink/internal/lifecycle"
	"github.com/factorylink/factorylink/internal/provider/resilience"
	"github.com/factorylink/factorylink/internal/registry"
	"github.com/factorylink/factorylink/internal/session"
	"github.com/factorylink/factorylink/internal/transport"
)

type stubRegistry struct {
	mu            sync.Mutex
	device        deviceinfo.Info
	sessions      session.Provider
	registrations int
}

func (s *stubRegistry) Device() deviceinfo.Info { return s.device }

func (s *stubRegistry) RegisterDevice(context.Context, registry.DeviceRegistration) (time.Time, error) {
	if sess, ok := s.sessions.Current(); !ok || sess.FactoryID == "" {
		return time.Time{}, registry.ErrMissingTenant
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrations++
	return time.Now(), nil
}

func (s *stubRegistry) UnregisterDevice(context.Context) {}

func (s *stubRegistry) UpdateDeviceToken(context.Context, string) error { return nil }

type fixture struct {
	server   *httptest.Server
	runtime  *transport.MemoryRuntime
	sessions *session.Store
	tapped   chan transport.Notification
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	runtime := transport.NewMemoryRuntime()
	adapter := transport.NewAdapter(transport.AdapterConfig{
		Runtime: runtime,
		Logger:  zerolog.Nop(),
	})
	sessions := session.NewStore()
	device := deviceinfo.Info{DeviceID: "dev-1", Platform: deviceinfo.PlatformAndroid}
	tapped := make(chan transport.Notification, 1)

	ctrl, err := lifecycle.NewController(lifecycle.ControllerConfig{
		Transport: adapter,
		Registry:  &stubRegistry{device: device, sessions: sessions},
		Sessions:  sessions,
		OnNotificationTapped: func(n transport.Notification) {
			tapped <- n
		},
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	ctrl.Start(context.Background())
	t.Cleanup(ctrl.Stop)

	router := debugapi.NewRouter(debugapi.RouterConfig{
		Version:    "test",
		Logger:     zerolog.Nop(),
		Controller: ctrl,
		Adapter:    adapter,
		Runtime:    runtime,
		Sessions:   sessions,
		Device:     device,
		Health:     resilience.NewHealthRegistry(),
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &fixture{server: server, runtime: runtime, sessions: sessions, tapped: tapped}
}

func (f *fixture) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	resp, err := http.Post(f.server.URL+path, "application/json", &buf)
	require.NoError(t, err)
	return resp
}

func (f *fixture) getState(t *testing.T) map[string]any {
	t.Helper()
	resp, err := http.Get(f.server.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var state map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	return state
}

func TestRouter_Healthz(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestRouter_StateReflectsLoginTransition(t *testing.T) {
	f := newFixture(t)

	state := f.getState(t)
	assert.Equal(t, "ready", state["adapterState"])
	assert.Equal(t, false, state["authenticated"])
	assert.Equal(t, false, state["registered"])
	assert.Equal(t, "dev-1", state["deviceId"])

	resp := f.post(t, "/session/login", map[string]string{"userId": "u-1", "factoryId": "f-7"})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool {
		state := f.getState(t)
		return state["registered"] == true
	}, 2*time.Second, 5*time.Millisecond)

	state = f.getState(t)
	assert.Equal(t, true, state["authenticated"])
	assert.Equal(t, "f-7", state["factoryId"])
}

func TestRouter_LoginValidatesBody(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/session/login", map[string]string{"userId": "u-1"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_SimulateTapDispatchesToHandler(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/simulate/tap", map[string]any{
		"title":    "Batch complete",
		"source":   "batch",
		"sourceId": "b-12",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	select {
	case n := <-f.tapped:
		assert.Equal(t, "Batch complete", n.Title)
		assert.Equal(t, "batch", n.Source())
		assert.Equal(t, "b-12", n.SourceID())
	case <-time.After(2 * time.Second):
		t.Fatal("tap never reached the handler")
	}
}

func TestRouter_RotateTokenRequiresToken(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/simulate/rotate-token", map[string]string{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouter_ManualRegisterWithoutSessionFails(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/device/register", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRouter_BackendsListsTrackedResources(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/backends")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body, "backends")
}
