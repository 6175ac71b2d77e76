package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/barometer/internal/barometer"
	"github.com/relabs-tech/barometer/internal/listeners"
	"github.com/relabs-tech/barometer/internal/measurement"
	"github.com/relabs-tech/barometer/internal/sensors"
	"github.com/relabs-tech/barometer/internal/session"
)

func quietLogger() *log.Logger { return log.New(&bytes.Buffer{}, "", 0) }

func mockBarometer(auth, answer sensors.AuthStatus) (*barometer.Barometer, *sensors.MockDriver) {
	d := sensors.NewMockDriver(101.325, 2*time.Millisecond, auth, answer)
	return barometer.New(sensors.NewNativeAdapter(d, sensors.WithLogger(quietLogger()))), d
}

func newTestWeb(t *testing.T, api *barometer.Barometer) (*WebServer, *httptest.Server) {
	t.Helper()
	ws := NewWebServer(api, prometheus.NewRegistry(), quietLogger())
	srv := httptest.NewServer(ws.Handler())
	t.Cleanup(func() {
		ws.Shutdown(context.Background())
		srv.Close()
	})
	return ws, srv
}

func doJSON(t *testing.T, method, url string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestWebMeasurementGranted(t *testing.T) {
	b, _ := mockBarometer(sensors.AuthAuthorized, sensors.AuthAuthorized)
	_, srv := newTestWeb(t, b)

	var m measurement.Measurement
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/measurement", &m))
	assert.Equal(t, 0.0, m.Pressure)
	assert.NotZero(t, m.Timestamp)
}

func TestWebMeasurementDenied(t *testing.T) {
	b, _ := mockBarometer(sensors.AuthNotDetermined, sensors.AuthDenied)
	_, srv := newTestWeb(t, b)

	var body errorBody
	assert.Equal(t, http.StatusForbidden, doJSON(t, http.MethodGet, srv.URL+"/api/measurement", &body))
	assert.Equal(t, measurement.PermissionDenied, body.State)
}

func TestWebStubIsForbidden(t *testing.T) {
	_, srv := newTestWeb(t, barometer.New(sensors.NewStubAdapter()))

	var status session.Status
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/status", &status))
	assert.False(t, status.Available)
	assert.Equal(t, measurement.PermissionDenied, status.Permission)
	assert.Equal(t, session.Idle, status.State)

	assert.Equal(t, http.StatusForbidden, doJSON(t, http.MethodPost, srv.URL+"/api/updates/start", nil))
}

func TestWebPermissionEndpoints(t *testing.T) {
	b, d := mockBarometer(sensors.AuthNotDetermined, sensors.AuthAuthorized)
	_, srv := newTestWeb(t, b)

	var p measurement.PermissionStatus
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, srv.URL+"/api/permissions", &p))
	assert.Equal(t, measurement.PermissionPrompt, p.Barometer)
	assert.Equal(t, 0, d.Prompts())

	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/permissions/request", &p))
	assert.Equal(t, measurement.PermissionGranted, p.Barometer)
	assert.Equal(t, 1, d.Prompts())
}

func TestWebStartStop(t *testing.T) {
	b, _ := mockBarometer(sensors.AuthAuthorized, sensors.AuthAuthorized)
	_, srv := newTestWeb(t, b)

	var st session.Status
	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/updates/start", &st))
	assert.Equal(t, session.Active, st.State)

	assert.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/updates/stop", &st))
	assert.Equal(t, session.Idle, st.State)
}

func TestWebStatusJSON(t *testing.T) {
	b, _ := mockBarometer(sensors.AuthAuthorized, sensors.AuthAuthorized)
	_, srv := newTestWeb(t, b)

	resp, err := http.Get(srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"available":true,"permission":"granted","state":"idle"}`, string(data))
}

func TestWebSocketStream(t *testing.T) {
	b, _ := mockBarometer(sensors.AuthAuthorized, sensors.AuthAuthorized)
	ws, srv := newTestWeb(t, b)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return ws.clientCount() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodPost, srv.URL+"/api/updates/start", nil))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var m measurement.Measurement
	require.NoError(t, json.Unmarshal(data, &m))
	assert.InDelta(t, 1013.25, m.Pressure, 5)
}

func TestWebMetricsEndpoint(t *testing.T) {
	b, _ := mockBarometer(sensors.AuthDenied, sensors.AuthDenied)
	_, srv := newTestWeb(t, b)

	doJSON(t, http.MethodGet, srv.URL+"/api/measurement", nil)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `barometer_permission_denials_total{state="denied"} 1`)
}

func TestBroadcastDropsSlowClient(t *testing.T) {
	ws := NewWebServer(barometer.New(sensors.NewStubAdapter()), prometheus.NewRegistry(), quietLogger())
	slow := &wsClient{send: make(chan []byte, 1)}
	ws.clients[slow] = struct{}{}

	ws.broadcast([]byte("a"))
	assert.Equal(t, 1, ws.clientCount())
	ws.broadcast([]byte("b"))
	assert.Equal(t, 0, ws.clientCount())

	_, open := <-slow.send
	assert.True(t, open, "buffered message is still readable")
	_, open = <-slow.send
	assert.False(t, open)
}

// flakyAPI grants permission but loses the sensor before the read.
type flakyAPI struct {
	mock.Mock
}

func (f *flakyAPI) GetMeasurement(ctx context.Context) (measurement.Measurement, error) {
	args := f.Called()
	return args.Get(0).(measurement.Measurement), args.Error(1)
}

func (f *flakyAPI) IsAvailable(ctx context.Context) measurement.AvailabilityResult {
	return measurement.AvailabilityResult{}
}

func (f *flakyAPI) StartMeasurementUpdates(ctx context.Context) error { return f.Called().Error(0) }
func (f *flakyAPI) StopMeasurementUpdates(ctx context.Context)       {}

func (f *flakyAPI) CheckPermissions(ctx context.Context) measurement.PermissionStatus {
	return measurement.PermissionStatus{Barometer: measurement.PermissionGranted}
}

func (f *flakyAPI) RequestPermissions(ctx context.Context) measurement.PermissionStatus {
	return measurement.PermissionStatus{Barometer: measurement.PermissionGranted}
}

func (f *flakyAPI) AddListener(eventName string, fn listeners.Listener) (*listeners.Handle, error) {
	return listeners.NewRegistry().AddListener(eventName, fn)
}

func (f *flakyAPI) RemoveAllListeners() {}

func TestWebUnavailableIs503(t *testing.T) {
	api := new(flakyAPI)
	api.On("GetMeasurement").Return(measurement.Measurement{}, sensors.ErrUnavailable)
	api.On("StartMeasurementUpdates").Return(sensors.ErrUnavailable)

	ws := NewWebServer(api, prometheus.NewRegistry(), quietLogger())
	srv := httptest.NewServer(ws.Handler())
	defer srv.Close()

	assert.Equal(t, http.StatusServiceUnavailable, doJSON(t, http.MethodGet, srv.URL+"/api/measurement", nil))
	assert.Equal(t, http.StatusServiceUnavailable, doJSON(t, http.MethodPost, srv.URL+"/api/updates/start", nil))
	api.AssertExpectations(t)
}
