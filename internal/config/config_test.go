package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "mbus.yaml", `
link:
  kind: tcp
  address: 192.168.1.20:10001
scheduler:
  rxTimeout: 1500ms
  maxQueueDepth: 16
meters:
  readoutInterval: 5m
  devices:
    - name: heat
      address: 1
    - name: water
      address: 12
    - name: gas
      address: 253
      id: 12345678
      manufacturer: ELS
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tcp", cfg.Link.Kind)
	assert.Equal(t, "192.168.1.20:10001", cfg.Link.Address)
	assert.Equal(t, 1500*time.Millisecond, cfg.Scheduler.RxTimeout)
	assert.Equal(t, 16, cfg.Scheduler.MaxQueueDepth)
	assert.Equal(t, 3, cfg.Scheduler.MaxSendRetries)
	assert.Equal(t, 5*time.Minute, cfg.Meters.ReadoutInterval)
	assert.Equal(t, []MeterConfig{
		{Name: "heat", Address: 1},
		{Name: "water", Address: 12},
		{Name: "gas", Address: 253, ID: 12345678, Manufacturer: "ELS"},
	}, cfg.Meters.Devices)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 2400, cfg.Link.BaudRate)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "mbus.toml", `
[link]
kind = "serial"
address = "/dev/ttyAMA0"
baudRate = 9600

[metrics]
enable = false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyAMA0", cfg.Link.Address)
	assert.Equal(t, 9600, cfg.Link.BaudRate)
	assert.False(t, cfg.Metrics.Enable)
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, "mbus.yaml", "link:\n  address: /dev/ttyUSB1\n")
	t.Setenv("MBUS_LINK_ADDRESS", "/dev/ttyS0")
	t.Setenv("MBUS_SCHEDULER_RXTIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS0", cfg.Link.Address)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.RxTimeout)
}

func TestLoad_Defaults(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "serial", cfg.Link.Kind)
	assert.Equal(t, "E", cfg.Link.Parity)
	assert.Equal(t, time.Second, cfg.Scheduler.RxTimeout)
	assert.Equal(t, 10*time.Millisecond, cfg.Scheduler.TickInterval)
	assert.Equal(t, time.Minute, cfg.Meters.ReadoutInterval)
	assert.Empty(t, cfg.Meters.Devices)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	tests := map[string]string{
		"bad kind":          "link:\n  kind: usb\n",
		"bad parity":        "link:\n  parity: X\n",
		"address too high":  "meters:\n  devices:\n    - name: a\n      address: 251\n",
		"duplicate address": "meters:\n  devices:\n    - name: a\n      address: 3\n    - name: b\n      address: 3\n",
		"bad yaml":          "link: [",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "mbus.yaml", content))
			assert.Error(t, err)
		})
	}
}
