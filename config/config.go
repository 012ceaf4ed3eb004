// Package config loads the settings shared by the library facade and the
// command-line tool.
package config

import (
	"fmt"
	"math"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/opd-ai/securestream/limits"
	"github.com/opd-ai/securestream/transport"
)

// Bounds for validated settings.
const (
	MinPBKDFTargetMillis = 10
	MaxPBKDFTargetMillis = 60000
	MaxWorkerPoolSize    = 1024
	MinRotationPeriod    = time.Minute
	MaxReorderingWindow  = 1 << 16
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SECURESTREAM_"

// Config holds every tunable setting.
type Config struct {
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // text or json

	// PBKDFTargetMillis is how long password key derivation should take.
	PBKDFTargetMillis int `yaml:"pbkdf_target_millis"`

	// WorkerPoolSize of 0 uses one worker per CPU.
	WorkerPoolSize int `yaml:"worker_pool_size"`

	// MaxFrameLength is fixed by the wire format; it is only checked.
	MaxFrameLength int `yaml:"max_frame_length"`

	RotationPeriod   time.Duration `yaml:"rotation_period"`
	ReorderingWindow int           `yaml:"reordering_window"`

	// KeyStoreDir holds password-encrypted secrets. Empty keeps state in memory.
	KeyStoreDir string `yaml:"key_store_dir"`

	Proxy *transport.ProxyConfig `yaml:"proxy,omitempty"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		PBKDFTargetMillis: 500,
		WorkerPoolSize:    0,
		MaxFrameLength:    limits.MaxFrameLength,
		RotationPeriod:    transport.DefaultRotationPeriod,
		ReorderingWindow:  transport.DefaultWindowSize,
	}
}

// LoadConfig reads a YAML file over the defaults, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	ApplyEnvironmentOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML, readable only by the owner.
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks every setting.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json (got %q)", c.LogFormat)
	}
	if c.PBKDFTargetMillis < MinPBKDFTargetMillis || c.PBKDFTargetMillis > MaxPBKDFTargetMillis {
		return fmt.Errorf("pbkdf_target_millis must be between %d and %d", MinPBKDFTargetMillis, MaxPBKDFTargetMillis)
	}
	if c.WorkerPoolSize < 0 || c.WorkerPoolSize > MaxWorkerPoolSize {
		return fmt.Errorf("worker_pool_size must be between 0 and %d", MaxWorkerPoolSize)
	}
	if c.MaxFrameLength != limits.MaxFrameLength {
		return fmt.Errorf("max_frame_length is fixed at %d by the wire format", limits.MaxFrameLength)
	}
	if c.RotationPeriod < MinRotationPeriod {
		return fmt.Errorf("rotation_period must be at least %s", MinRotationPeriod)
	}
	if c.ReorderingWindow < 2 || c.ReorderingWindow > MaxReorderingWindow {
		return fmt.Errorf("reordering_window must be between 2 and %d", MaxReorderingWindow)
	}
	if c.Proxy != nil {
		switch c.Proxy.Type {
		case "socks5", "http":
		default:
			return fmt.Errorf("proxy.type must be socks5 or http (got %q)", c.Proxy.Type)
		}
		if c.Proxy.Host == "" || c.Proxy.Port == 0 {
			return fmt.Errorf("proxy needs host and port")
		}
	}
	return nil
}

// ApplyLogging configures the global logrus logger.
func (c *Config) ApplyLogging() error {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logrus.SetLevel(level)
	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// ApplyEnvironmentOverrides reads SECURESTREAM_* variables into cfg.
// Unparseable or out-of-range values are logged and ignored.
func ApplyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		if _, err := logrus.ParseLevel(v); err != nil {
			warnEnv("LOG_LEVEL", v, err, cfg.LogLevel)
		} else {
			cfg.LogLevel = v
		}
	}
	if v := os.Getenv(EnvPrefix + "LOG_FORMAT"); v != "" {
		if v != "text" && v != "json" {
			warnEnv("LOG_FORMAT", v, fmt.Errorf("must be text or json"), cfg.LogFormat)
		} else {
			cfg.LogFormat = v
		}
	}
	parseIntSetting("PBKDF_TARGET_MILLIS", &cfg.PBKDFTargetMillis, MinPBKDFTargetMillis, MaxPBKDFTargetMillis)
	parseIntSetting("WORKER_POOL_SIZE", &cfg.WorkerPoolSize, 0, MaxWorkerPoolSize)
	parseIntSetting("REORDERING_WINDOW", &cfg.ReorderingWindow, 2, MaxReorderingWindow)

	if v := os.Getenv(EnvPrefix + "ROTATION_PERIOD"); v != "" {
		d, err := time.ParseDuration(v)
		switch {
		case err != nil:
			warnEnv("ROTATION_PERIOD", v, err, cfg.RotationPeriod)
		case d < MinRotationPeriod:
			warnEnv("ROTATION_PERIOD", v, fmt.Errorf("below minimum %s", MinRotationPeriod), cfg.RotationPeriod)
		default:
			cfg.RotationPeriod = d
		}
	}
	if v := os.Getenv(EnvPrefix + "KEY_STORE_DIR"); v != "" {
		cfg.KeyStoreDir = v
	}
	if v := os.Getenv(EnvPrefix + "PROXY"); v != "" {
		proxy, err := parseProxy(v)
		if err != nil {
			warnEnv("PROXY", v, err, cfg.Proxy)
		} else {
			cfg.Proxy = proxy
		}
	}
}

func parseIntSetting(name string, target *int, lo, hi int) {
	v := os.Getenv(EnvPrefix + name)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		warnEnv(name, v, err, *target)
		return
	}
	if n < lo || n > hi {
		logrus.WithFields(logrus.Fields{
			"function":    "parseIntSetting",
			"env_var":     EnvPrefix + name,
			"value":       n,
			"min":         lo,
			"max":         hi,
			"using_value": *target,
		}).Warn("Environment override out of bounds, using default")
		return
	}
	*target = n
}

func warnEnv(name, value string, err error, using interface{}) {
	logrus.WithFields(logrus.Fields{
		"function":    "ApplyEnvironmentOverrides",
		"env_var":     EnvPrefix + name,
		"value":       value,
		"error":       err.Error(),
		"using_value": using,
	}).Warn("Failed to parse environment override, using default")
}

// parseProxy accepts "host:port" (SOCKS5) or "socks5://host:port" and
// "http://host:port".
func parseProxy(v string) (*transport.ProxyConfig, error) {
	kind := "socks5"
	if i := strings.Index(v, "://"); i >= 0 {
		kind, v = v[:i], v[i+3:]
	}
	if kind != "socks5" && kind != "http" {
		return nil, fmt.Errorf("unsupported proxy scheme %q", kind)
	}
	host, portStr, err := net.SplitHostPort(v)
	if err != nil {
		return nil, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > math.MaxUint16 {
		return nil, fmt.Errorf("bad proxy port %q", portStr)
	}
	return &transport.ProxyConfig{Type: kind, Host: host, Port: uint16(port)}, nil
}
