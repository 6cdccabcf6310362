package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/berfenger/echarge2mqtt/internal/core/domain"
	"github.com/berfenger/echarge2mqtt/internal/core/port"
	"github.com/berfenger/echarge2mqtt/internal/util"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCoordinator struct {
	snapshot *domain.Snapshot
	err      error
	calls    []string
}

var _ port.Coordinator = (*fakeCoordinator)(nil)

func (f *fakeCoordinator) result(call string) (*domain.Snapshot, error) {
	f.calls = append(f.calls, call)
	if f.err != nil {
		return nil, f.err
	}
	return f.snapshot, nil
}

func (f *fakeCoordinator) Refresh(context.Context) (*domain.Snapshot, error) {
	return f.result("refresh")
}

func (f *fakeCoordinator) SetChargingCurrent(_ context.Context, value float64) (*domain.Snapshot, error) {
	return f.result(fmt.Sprintf("current=%v", value))
}

func (f *fakeCoordinator) SetLockState(_ context.Context, locked bool) (*domain.Snapshot, error) {
	return f.result(fmt.Sprintf("lock=%v", locked))
}

func (f *fakeCoordinator) SetChargingMode(_ context.Context, mode string) (*domain.Snapshot, error) {
	return f.result("mode=" + mode)
}

func (f *fakeCoordinator) SetAutoMode(_ context.Context, on bool) (*domain.Snapshot, error) {
	return f.result(fmt.Sprintf("auto=%v", on))
}

func (f *fakeCoordinator) Validate(context.Context) error { return f.err }

func (f *fakeCoordinator) StationTitle(context.Context) (domain.StationTitle, error) {
	return domain.StationTitle{}, f.err
}

func (f *fakeCoordinator) UpdateCredentials(context.Context, string, string) error { return nil }

func (f *fakeCoordinator) Snapshot() *domain.Snapshot { return f.snapshot }

func (f *fakeCoordinator) SessionState() domain.SessionState { return domain.SessionAuthenticated }

func (f *fakeCoordinator) Subscribe(context.Context, port.Subscriber) error { return nil }

func (f *fakeCoordinator) Unsubscribe(context.Context, port.Subscriber) error { return nil }

func (f *fakeCoordinator) Timeout() time.Duration { return 162 * time.Second }

func testSnapshot() *domain.Snapshot {
	b := domain.NewSnapshotBuilder()
	b.Set(domain.FIELD_STATE, "Charging")
	b.Set(domain.FIELD_MAX_AVAILABLE_CURRENT, 16.0)
	return b.Build(4, time.Now())
}

func testServer(t *testing.T, coord *fakeCoordinator, healthy bool) http.Handler {
	system := actor.NewActorSystem()
	t.Cleanup(system.Shutdown)
	master := system.Root.Spawn(actor.PropsFromFunc(func(ctx actor.Context) {
		if _, ok := ctx.Message().(domain.ActorHealthRequest); ok {
			ctx.Respond(domain.ActorHealthResponse{Id: domain.ACTOR_ID_MASTER, Healthy: healthy})
		}
	}))
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "echarge_test_total", Help: "test"}))

	s := &Server{
		port:        util.LoadTestConfig().Port,
		rootContext: system.Root,
		masterActor: master,
		coordinator: coord,
		gatherer:    reg,
	}
	return s.RegisterRoutes()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	rec := do(testServer(t, &fakeCoordinator{}, true), http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "health_check: OK", rec.Body.String())

	rec = do(testServer(t, &fakeCoordinator{}, false), http.MethodGet, "/healthcheck", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSnapshotEndpoint(t *testing.T) {
	coord := &fakeCoordinator{}
	h := testServer(t, coord, true)

	rec := do(h, http.MethodGet, "/api/snapshot", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	coord.snapshot = testSnapshot()
	rec = do(h, http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 4.0, body["version"])
	assert.Equal(t, "authenticated", body["session"])
	fields := body["fields"].(map[string]any)
	assert.Equal(t, "Charging", fields[domain.FIELD_STATE])
	assert.Equal(t, 16.0, fields[domain.FIELD_MAX_AVAILABLE_CURRENT])
}

func TestCommandEndpoints(t *testing.T) {
	coord := &fakeCoordinator{snapshot: testSnapshot()}
	h := testServer(t, coord, true)

	assert.Equal(t, http.StatusOK, do(h, http.MethodPost, "/api/refresh", "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPut, "/api/charging-current", `{"value": 12}`).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPut, "/api/lock", `{"locked": true}`).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPut, "/api/mode", `{"mode": "quick"}`).Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodPut, "/api/auto-mode", `{"on": false}`).Code)

	assert.Equal(t, []string{"refresh", "current=12", "lock=true", "mode=quick", "auto=false"}, coord.calls)
}

func TestBadRequests(t *testing.T) {
	coord := &fakeCoordinator{snapshot: testSnapshot()}
	h := testServer(t, coord, true)

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/api/charging-current", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/api/lock", `{"locked": "yes"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/api/mode", `{"mode": ""}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/api/auto-mode", `not json`).Code)
	assert.Empty(t, coord.calls)
}

func TestErrorMapping(t *testing.T) {
	coord := &fakeCoordinator{}
	h := testServer(t, coord, true)

	coord.err = fmt.Errorf("login: %w", domain.ErrAuthDenied)
	assert.Equal(t, http.StatusUnauthorized, do(h, http.MethodPost, "/api/refresh", "").Code)

	coord.err = &domain.PartialRefreshError{Read: "readMeters", Err: domain.ErrConnectivity}
	assert.Equal(t, http.StatusBadGateway, do(h, http.MethodPost, "/api/refresh", "").Code)

	coord.err = &domain.CommandError{Command: domain.COMMAND_SET_CHARGING_CURRENT, Stage: domain.COMMAND_STAGE_CHECK, Err: domain.ErrInvalidCommand}
	rec := do(h, http.MethodPut, "/api/charging-current", `{"value": 40}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid command")
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(testServer(t, &fakeCoordinator{}, true), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "echarge_test_total 0")
}

func TestServerWriteTimeoutCoversCoordinator(t *testing.T) {
	system := actor.NewActorSystem()
	t.Cleanup(system.Shutdown)
	coord := &fakeCoordinator{}

	srv := NewServer(util.LoadTestConfig(), system.Root, nil, coord, nil)
	assert.Greater(t, srv.WriteTimeout, coord.Timeout())
	assert.Equal(t, coord.Timeout()+WRITE_TIMEOUT_MARGIN, srv.WriteTimeout)
}
