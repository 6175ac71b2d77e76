package sensors

import (
	"bytes"
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/barometer/internal/config"
	"github.com/relabs-tech/barometer/internal/listeners"
	"github.com/relabs-tech/barometer/internal/measurement"
)

func TestStubAdapter(t *testing.T) {
	ctx := context.Background()
	s := NewStubAdapter()

	assert.Equal(t, PlatformStub, s.Platform())
	assert.False(t, s.IsAvailable(ctx).IsAvailable)
	assert.Equal(t, measurement.PermissionDenied, s.CheckPermissions(ctx).Barometer)
	assert.Equal(t, measurement.PermissionDenied, s.RequestPermissions(ctx).Barometer)

	_, err := s.GetMeasurement(ctx)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, s.StartMeasurementUpdates(ctx), ErrUnavailable)
	assert.NotPanics(t, func() { s.StopMeasurementUpdates(ctx) })

	h, err := s.AddListener(listeners.EventMeasurement, func(measurement.Measurement) {})
	require.NoError(t, err)
	h.Remove()
	_, err = s.AddListener("pressure", func(measurement.Measurement) {})
	assert.ErrorIs(t, err, listeners.ErrInvalidEvent)
	s.RemoveAllListeners()
}

func TestPermissionAuthRoundTrip(t *testing.T) {
	for _, p := range []measurement.PermissionState{
		measurement.PermissionPrompt,
		measurement.PermissionPromptWithRationale,
		measurement.PermissionGranted,
		measurement.PermissionDenied,
		measurement.PermissionLimited,
	} {
		assert.Equal(t, p, PermissionFromAuth(AuthFromPermission(p)), string(p))
	}
}

func quietLogger() *log.Logger { return log.New(&bytes.Buffer{}, "", 0) }

func TestOpenStub(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = config.PlatformStub

	a, err := Open(cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, PlatformStub, a.Platform())
}

func TestOpenMock(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = config.PlatformMock
	cfg.MockPermission = "prompt"
	cfg.MockPromptAnswer = "denied"

	a, err := Open(cfg, quietLogger())
	require.NoError(t, err)
	ctx := context.Background()
	assert.Equal(t, PlatformMock, a.Platform())
	assert.True(t, a.IsAvailable(ctx).IsAvailable)
	assert.Equal(t, measurement.PermissionPrompt, a.CheckPermissions(ctx).Barometer)
	assert.Equal(t, measurement.PermissionDenied, a.RequestPermissions(ctx).Barometer)
}

func TestOpenIIO(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "iio:device0")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, iioPressureInput), []byte("100.0\n"), 0o644))

	cfg := config.Default()
	cfg.Platform = config.PlatformIIO
	cfg.IIORoot = root

	a, err := Open(cfg, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, PlatformIIO, a.Platform())
	assert.Equal(t, measurement.PermissionGranted, a.CheckPermissions(context.Background()).Barometer)
}

func TestOpenExplicitPlatformMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = config.PlatformIIO
	cfg.IIORoot = t.TempDir()
	_, err := Open(cfg, quietLogger())
	assert.ErrorIs(t, err, ErrUnavailable)

	cfg = config.Default()
	cfg.Platform = config.PlatformNMEA
	cfg.NMEASerialPort = filepath.Join(t.TempDir(), "ttyUSB0")
	_, err = Open(cfg, quietLogger())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestOpenUnknownPlatform(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = "android"
	_, err := Open(cfg, quietLogger())
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestOpenAutoFallsBackToStub(t *testing.T) {
	cfg := config.Default()
	cfg.Platform = config.PlatformAuto
	cfg.IIORoot = t.TempDir()
	cfg.BMPI2CBus = "no-such-bus"

	var logs bytes.Buffer
	a, err := Open(cfg, log.New(&logs, "", 0))
	require.NoError(t, err)
	assert.Equal(t, PlatformStub, a.Platform())
	assert.Contains(t, logs.String(), "no pressure sensor found")
}
