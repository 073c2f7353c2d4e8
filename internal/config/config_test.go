package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	serial "github.com/luhtfiimanal/go-serial-telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "telemetry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/dev/ttyUSB0", cfg.Serial.Device)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 100*time.Millisecond, cfg.Serial.ReadTimeout.Std())
	assert.Equal(t, 2*time.Second, cfg.Serial.SettleDelay.Std())
	assert.Equal(t, 200, cfg.Acquisition.ViewerCapacity)
	assert.Equal(t, 500, cfg.Acquisition.DashboardCapacity)
	assert.Equal(t, 10*time.Second, cfg.Capture.Duration.Std())
	assert.Equal(t, "datos_planta.csv", cfg.Capture.Output)
	assert.Equal(t, 30*time.Millisecond, cfg.HTTP.Refresh.Std())
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
logLevel: debug
serial:
  device: /dev/ttyACM0
  baudRate: 9600
  readTimeout: 250ms
  backend: portable
capture:
  duration: 2s
  output: run.csv
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, serial.Config{
		Device:      "/dev/ttyACM0",
		BaudRate:    9600,
		Delimiter:   "\n",
		ReadTimeout: 250 * time.Millisecond,
		SettleDelay: 2 * time.Second,
		Backend:     serial.BackendPortable,
	}, cfg.Serial.Transport())
	assert.Equal(t, 2*time.Second, cfg.Capture.Duration.Std())
	assert.Equal(t, "run.csv", cfg.Capture.Output)
	// untouched sections keep their defaults
	assert.Equal(t, Default().Acquisition, cfg.Acquisition)
	assert.Equal(t, Default().HTTP, cfg.HTTP)
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "serial:\n  readTimeout: soon\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "soon")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_ValidationErrors(t *testing.T) {
	_, err := Load(writeConfig(t, `
logLevel: loud
serial:
  baudRate: 0
  backend: usb
acquisition:
  queueSize: -1
`))
	require.Error(t, err)
	for _, field := range []string{"logLevel", "serial.baudRate", "serial.backend", "acquisition.queueSize"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestDuration_MarshalYAML(t *testing.T) {
	out, err := yaml.Marshal(CaptureConfig{Duration: Duration(2500 * time.Millisecond), Output: "run.csv"})
	require.NoError(t, err)
	assert.Equal(t, "duration: 2.5s\noutput: run.csv\n", string(out))
}
