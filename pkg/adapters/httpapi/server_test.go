package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ensemble "github.com/ensemble-dev/ensemble"
	"github.com/ensemble-dev/ensemble/internal/chantest"
	"github.com/ensemble-dev/ensemble/pkg/adapters/httpapi"
	"github.com/ensemble-dev/ensemble/pkg/adapters/memory"
	"github.com/ensemble-dev/ensemble/pkg/domain"
	"github.com/ensemble-dev/ensemble/pkg/ports"
)

type staticDialer struct {
	devices map[string]*chantest.Channel
}

func (d *staticDialer) Dial(ctx context.Context, selector ports.DeviceSelector) (ports.Channel, string, error) {
	for name, ch := range d.devices {
		if selector.Matches(name) {
			return ch, name, nil
		}
	}
	return nil, "", &domain.ConnectionError{Device: selector.Name, Err: fmt.Errorf("no matching device")}
}

func newTestServer(t *testing.T, devices map[string]*chantest.Channel) (*httptest.Server, *ensemble.Orchestrator) {
	t.Helper()
	o := ensemble.New(memory.NewStore(), &staticDialer{devices: devices})
	t.Cleanup(o.Close)
	srv := httptest.NewServer(httpapi.NewHandler(o))
	t.Cleanup(srv.Close)
	return srv, o
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDeviceLifecycle(t *testing.T) {
	srv, _ := newTestServer(t, map[string]*chantest.Channel{"pup-alpha": chantest.New()})

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/devices/connect", map[string]string{"name": "pup-alpha"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	info := decodeBody[domain.SessionInfo](t, resp)
	assert.Equal(t, "pup-alpha", info.Name)

	resp, err := http.Get(srv.URL + "/api/devices")
	require.NoError(t, err)
	devices := decodeBody[[]domain.SessionInfo](t, resp)
	require.Len(t, devices, 1)

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/devices/%d", srv.URL, info.ID), nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Detach is asynchronous.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = http.Get(srv.URL + "/api/devices")
		require.NoError(t, err)
		if len(decodeBody[[]domain.SessionInfo](t, resp)) == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("device never detached")
}

func TestConnectUnknownDeviceIsBadGateway(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/devices/connect", map[string]string{"name": "ghost"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestActionCRUD(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	action := domain.Action{
		Name:         "Greet",
		Instructions: []domain.Instruction{{Capability: "pose", Args: map[string]any{"p": "sit"}, DelayMS: 500}},
	}
	resp := doJSON(t, http.MethodPut, srv.URL+"/api/actions/greet", action)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved := decodeBody[domain.Action](t, resp)
	assert.Equal(t, "greet", saved.ID)

	resp, err := http.Get(srv.URL + "/api/actions/greet")
	require.NoError(t, err)
	got := decodeBody[domain.Action](t, resp)
	assert.Equal(t, "Greet", got.Name)

	resp, err = http.Get(srv.URL + "/api/actions")
	require.NoError(t, err)
	list := decodeBody[[]domain.Action](t, resp)
	require.Len(t, list, 1)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/actions/greet", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/actions/greet")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestActionValidationIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/actions/empty", domain.Action{Name: "Empty"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRunRejections(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	// Unknown action.
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/run", map[string]string{"action_id": "missing"})
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Known action but no connected devices.
	doJSON(t, http.MethodPut, srv.URL+"/api/actions/greet", domain.Action{
		Name:         "Greet",
		Instructions: []domain.Instruction{{Capability: "pose"}},
	}).Body.Close()
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/run", map[string]string{"action_id": "greet"})
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRunAndStatus(t *testing.T) {
	srv, _ := newTestServer(t, map[string]*chantest.Channel{"pup-alpha": chantest.New()})

	doJSON(t, http.MethodPost, srv.URL+"/api/devices/connect", map[string]string{"name": "pup-alpha"}).Body.Close()
	doJSON(t, http.MethodPut, srv.URL+"/api/actions/greet", domain.Action{
		Name:         "Greet",
		Instructions: []domain.Instruction{{Capability: "pose", Args: map[string]any{"p": "sit"}}},
	}).Body.Close()

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/run", map[string]string{"action_id": "greet"})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + "/api/run")
		require.NoError(t, err)
		status := decodeBody[domain.RunStatus](t, resp)
		if status.Phase == domain.PhaseIdle && status.ActionID == "greet" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("run never settled")
}

func TestImportExport(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	raw := `[{"id":"greet","name":"Greet","instructions":[{"capability":"pose","delay_ms":500}]}]`
	resp, err := http.Post(srv.URL+"/api/actions/import", "application/json", strings.NewReader(raw))
	require.NoError(t, err)
	counts := decodeBody[map[string]int](t, resp)
	assert.Equal(t, 1, counts["imported"])

	resp, err = http.Get(srv.URL + "/api/actions/export")
	require.NoError(t, err)
	exported := decodeBody[[]domain.Action](t, resp)
	require.Len(t, exported, 1)
	assert.Equal(t, "greet", exported[0].ID)
}

func TestInboundDeviceAttach(t *testing.T) {
	srv, o := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/device?name=pup-inbound"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// The coordinator greets the device with a capability discovery request.
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tools/list")

	require.Len(t, o.Devices(), 1)
	assert.Equal(t, "pup-inbound", o.Devices()[0].Name)
}
