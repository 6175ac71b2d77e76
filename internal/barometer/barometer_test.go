package barometer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/barometer/internal/config"
	"github.com/relabs-tech/barometer/internal/listeners"
	"github.com/relabs-tech/barometer/internal/measurement"
	"github.com/relabs-tech/barometer/internal/sensors"
)

type mockAdapter struct {
	mock.Mock
}

func (m *mockAdapter) Platform() string { return m.Called().String(0) }

func (m *mockAdapter) IsAvailable(ctx context.Context) measurement.AvailabilityResult {
	return m.Called(ctx).Get(0).(measurement.AvailabilityResult)
}

func (m *mockAdapter) CheckPermissions(ctx context.Context) measurement.PermissionStatus {
	return m.Called(ctx).Get(0).(measurement.PermissionStatus)
}

func (m *mockAdapter) RequestPermissions(ctx context.Context) measurement.PermissionStatus {
	return m.Called(ctx).Get(0).(measurement.PermissionStatus)
}

func (m *mockAdapter) GetMeasurement(ctx context.Context) (measurement.Measurement, error) {
	args := m.Called(ctx)
	return args.Get(0).(measurement.Measurement), args.Error(1)
}

func (m *mockAdapter) StartMeasurementUpdates(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockAdapter) StopMeasurementUpdates(ctx context.Context) { m.Called(ctx) }

func (m *mockAdapter) AddListener(eventName string, fn listeners.Listener) (*listeners.Handle, error) {
	args := m.Called(eventName, fn)
	h, _ := args.Get(0).(*listeners.Handle)
	return h, args.Error(1)
}

func (m *mockAdapter) RemoveAllListeners() { m.Called() }

func TestForwarding(t *testing.T) {
	ctx := context.Background()
	a := new(mockAdapter)
	want := measurement.Measurement{Pressure: 1001.5, Timestamp: 42}

	a.On("Platform").Return("mock")
	a.On("IsAvailable", ctx).Return(measurement.AvailabilityResult{IsAvailable: true})
	a.On("CheckPermissions", ctx).Return(measurement.PermissionStatus{Barometer: measurement.PermissionPrompt})
	a.On("RequestPermissions", ctx).Return(measurement.PermissionStatus{Barometer: measurement.PermissionGranted})
	a.On("GetMeasurement", ctx).Return(want, nil)
	a.On("StartMeasurementUpdates", ctx).Return(nil)
	a.On("StopMeasurementUpdates", ctx).Return()

	b := New(a)
	assert.Equal(t, "mock", b.Platform())
	assert.True(t, b.IsAvailable(ctx).IsAvailable)
	assert.Equal(t, measurement.PermissionPrompt, b.CheckPermissions(ctx).Barometer)
	assert.Equal(t, measurement.PermissionGranted, b.RequestPermissions(ctx).Barometer)

	got, err := b.GetMeasurement(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, b.StartMeasurementUpdates(ctx))
	b.StopMeasurementUpdates(ctx)
	a.AssertExpectations(t)
}

func TestShutdownStopsAndClearsListeners(t *testing.T) {
	ctx := context.Background()
	a := new(mockAdapter)
	a.On("StopMeasurementUpdates", ctx).Return().Once()
	a.On("RemoveAllListeners").Return().Once()

	New(a).Shutdown(ctx)
	a.AssertExpectations(t)
}

func TestOpenStubEndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Platform = config.PlatformStub

	b, err := Open(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, sensors.PlatformStub, b.Platform())

	_, err = b.GetMeasurement(ctx)
	assert.ErrorIs(t, err, sensors.ErrUnavailable)
	assert.ErrorIs(t, b.StartMeasurementUpdates(ctx), sensors.ErrUnavailable)

	_, err = b.AddListener("altitude", func(measurement.Measurement) {})
	assert.ErrorIs(t, err, listeners.ErrInvalidEvent)
	b.Shutdown(ctx)
}
