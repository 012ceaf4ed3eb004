package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/securestream/transport"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1024, cfg.MaxFrameLength)
	assert.Equal(t, 24*time.Hour, cfg.RotationPeriod)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "securestream.yaml")
	data := []byte(`
log_level: debug
log_format: json
pbkdf_target_millis: 250
worker_pool_size: 3
rotation_period: 12h
reordering_window: 64
key_store_dir: /var/lib/securestream
proxy:
  type: socks5
  host: 127.0.0.1
  port: 9050
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 250, cfg.PBKDFTargetMillis)
	assert.Equal(t, 3, cfg.WorkerPoolSize)
	assert.Equal(t, 12*time.Hour, cfg.RotationPeriod)
	assert.Equal(t, 64, cfg.ReorderingWindow)
	assert.Equal(t, "/var/lib/securestream", cfg.KeyStoreDir)
	require.NotNil(t, cfg.Proxy)
	assert.Equal(t, uint16(9050), cfg.Proxy.Port)
	assert.Equal(t, 1024, cfg.MaxFrameLength, "unset keys keep their defaults")
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("log_level: [unclosed"), 0o600))
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	invalid := filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("max_frame_length: 2048\n"), 0o600))
	_, err = LoadConfig(invalid)
	assert.ErrorContains(t, err, "max_frame_length")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := DefaultConfig()
	cfg.RotationPeriod = 90 * time.Minute
	cfg.Proxy = &transport.ProxyConfig{Type: "http", Host: "proxy.local", Port: 3128}
	require.NoError(t, SaveConfig(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"pbkdf too fast", func(c *Config) { c.PBKDFTargetMillis = 1 }},
		{"negative pool", func(c *Config) { c.WorkerPoolSize = -1 }},
		{"short rotation", func(c *Config) { c.RotationPeriod = time.Second }},
		{"tiny window", func(c *Config) { c.ReorderingWindow = 1 }},
		{"proxy type", func(c *Config) { c.Proxy = &transport.ProxyConfig{Type: "ftp", Host: "h", Port: 1} }},
		{"proxy host", func(c *Config) { c.Proxy = &transport.ProxyConfig{Type: "socks5", Port: 1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SECURESTREAM_LOG_LEVEL", "warn")
	t.Setenv("SECURESTREAM_PBKDF_TARGET_MILLIS", "1000")
	t.Setenv("SECURESTREAM_WORKER_POOL_SIZE", "not-a-number")
	t.Setenv("SECURESTREAM_REORDERING_WINDOW", "1")
	t.Setenv("SECURESTREAM_ROTATION_PERIOD", "2h")
	t.Setenv("SECURESTREAM_PROXY", "127.0.0.1:9050")

	cfg := DefaultConfig()
	ApplyEnvironmentOverrides(cfg)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 1000, cfg.PBKDFTargetMillis)
	assert.Equal(t, 0, cfg.WorkerPoolSize, "unparseable values are ignored")
	assert.Equal(t, transport.DefaultWindowSize, cfg.ReorderingWindow, "out of range values are ignored")
	assert.Equal(t, 2*time.Hour, cfg.RotationPeriod)
	require.NotNil(t, cfg.Proxy)
	assert.Equal(t, "socks5", cfg.Proxy.Type)
	assert.Equal(t, "127.0.0.1", cfg.Proxy.Host)
	assert.Equal(t, uint16(9050), cfg.Proxy.Port)
}

func TestParseProxy(t *testing.T) {
	p, err := parseProxy("http://[::1]:8080")
	require.NoError(t, err)
	assert.Equal(t, "http", p.Type)
	assert.Equal(t, "::1", p.Host)

	_, err = parseProxy("ftp://host:21")
	assert.Error(t, err)
	_, err = parseProxy("host:0")
	assert.Error(t, err)
	_, err = parseProxy("no-port")
	assert.Error(t, err)
}

func TestApplyLogging(t *testing.T) {
	defer logrus.SetLevel(logrus.GetLevel())
	defer logrus.SetFormatter(logrus.StandardLogger().Formatter)

	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"
	require.NoError(t, cfg.ApplyLogging())
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	cfg.LogLevel = "nope"
	assert.Error(t, cfg.ApplyLogging())
}
