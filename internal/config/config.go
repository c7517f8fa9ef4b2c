// Package config loads kbelog settings from YAML and the environment.
//
// Precedence, lowest first: Default(), the YAML file, KBELOG_* environment
// variables, then command-line flags applied by the CLI.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kbe-tools/kbelog/pkg/discovery"
	"github.com/kbe-tools/kbelog/pkg/sink"
	"github.com/kbe-tools/kbelog/pkg/wire"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Config is the complete kbelog configuration.
type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Receive   ReceiveConfig   `yaml:"receive"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Sinks     SinksConfig     `yaml:"sinks"`
	Discovery DiscoveryConfig `yaml:"discovery"`
}

// LoggerConfig locates the logger service and names this watcher.
type LoggerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	UID  int32  `yaml:"uid"`
}

// ProtocolConfig holds the wire constants.
type ProtocolConfig struct {
	ComponentTypeCount int    `yaml:"component_type_count"`
	WatcherType        int32  `yaml:"watcher_type"`
	ByteOrder          string `yaml:"byte_order"`
	FramedHeartbeat    bool   `yaml:"framed_heartbeat"`
}

// ReceiveConfig tunes the receive loop.
type ReceiveConfig struct {
	PollTimeout time.Duration `yaml:"poll_timeout"`
	ChunkSize   int           `yaml:"chunk_size"`
}

// LogConfig controls operational logging and protocol capture.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`

	// Capture is a CBOR capture file path. Empty disables capture.
	Capture string `yaml:"capture"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the HTTP listen address. Empty disables the endpoint.
	Listen string `yaml:"listen"`
}

// SinksConfig selects where received logs go.
type SinksConfig struct {
	Console ConsoleSinkConfig `yaml:"console"`
	File    FileSinkConfig    `yaml:"file"`
	NATS    NATSSinkConfig    `yaml:"nats"`
	Redis   RedisSinkConfig   `yaml:"redis"`
}

// ConsoleSinkConfig configures stdout output.
type ConsoleSinkConfig struct {
	Enabled bool `yaml:"enabled"`
	Hex     bool `yaml:"hex"`
}

// FileSinkConfig configures the rotating file sink. Empty Path disables it.
type FileSinkConfig struct {
	Path       string `yaml:"path"`
	Format     string `yaml:"format"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// NATSSinkConfig configures the NATS sink. Empty URL disables it.
type NATSSinkConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// RedisSinkConfig configures the Redis stream sink. Empty Addr disables it.
type RedisSinkConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Stream   string `yaml:"stream"`
	MaxLen   int64  `yaml:"max_len"`
}

// DiscoveryConfig controls mDNS lookup of the logger.
type DiscoveryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Interface string        `yaml:"interface"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	wc := wire.DefaultConfig()
	return &Config{
		Logger: LoggerConfig{
			Host: "127.0.0.1",
			Port: discovery.DefaultPort,
		},
		Protocol: ProtocolConfig{
			ComponentTypeCount: wc.ComponentTypeCount,
			WatcherType:        wc.WatcherType,
			ByteOrder:          "little",
			FramedHeartbeat:    wc.FramedHeartbeat,
		},
		Receive: ReceiveConfig{
			PollTimeout: time.Second,
			ChunkSize:   4096,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Sinks: SinksConfig{
			Console: ConsoleSinkConfig{Enabled: true},
			File:    FileSinkConfig{Format: sink.FormatRaw},
			NATS:    NATSSinkConfig{Subject: sink.DefaultNATSSubject},
			Redis:   RedisSinkConfig{Stream: sink.DefaultRedisStream},
		},
		Discovery: DiscoveryConfig{
			Timeout: discovery.DefaultTimeout,
		},
	}
}

// Load reads a YAML file on top of Default(). Fields missing from the file
// keep their defaults. The result is not yet validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from KBELOG_* environment variables.
// KBE_UID is honored as a fallback for the watcher uid, like the KBEngine
// tools do.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalid, key, v, err)
		}
		*dst = n
		return nil
	}

	str("KBELOG_HOST", &c.Logger.Host)
	if err := integer("KBELOG_PORT", &c.Logger.Port); err != nil {
		return err
	}

	uidKey := "KBELOG_UID"
	if _, ok := lookup(uidKey); !ok {
		uidKey = "KBE_UID"
	}
	if v, ok := lookup(uidKey); ok {
		uid, err := strconv.ParseInt(strings.TrimSpace(v), 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %w", ErrInvalid, uidKey, v, err)
		}
		c.Logger.UID = int32(uid)
	}

	str("KBELOG_BYTE_ORDER", &c.Protocol.ByteOrder)
	str("KBELOG_LOG_LEVEL", &c.Log.Level)
	str("KBELOG_LOG_FORMAT", &c.Log.Format)
	str("KBELOG_CAPTURE", &c.Log.Capture)
	str("KBELOG_METRICS_LISTEN", &c.Metrics.Listen)
	str("KBELOG_FILE_PATH", &c.Sinks.File.Path)
	str("KBELOG_NATS_URL", &c.Sinks.NATS.URL)
	str("KBELOG_NATS_SUBJECT", &c.Sinks.NATS.Subject)
	str("KBELOG_REDIS_ADDR", &c.Sinks.Redis.Addr)
	str("KBELOG_REDIS_PASSWORD", &c.Sinks.Redis.Password)
	str("KBELOG_REDIS_STREAM", &c.Sinks.Redis.Stream)

	if v, ok := lookup("KBELOG_POLL_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: KBELOG_POLL_TIMEOUT=%q: %w", ErrInvalid, v, err)
		}
		c.Receive.PollTimeout = d
	}
	return nil
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Logger.Host == "" && !c.Discovery.Enabled {
		fail("logger.host is required unless discovery is enabled")
	}
	if c.Logger.Port < 1 || c.Logger.Port > 65535 {
		fail("logger.port %d out of range", c.Logger.Port)
	}
	if c.Protocol.ComponentTypeCount < 0 || c.Protocol.ComponentTypeCount > 255 {
		fail("protocol.component_type_count %d out of range 0..255", c.Protocol.ComponentTypeCount)
	}
	if _, err := wire.ParseByteOrder(c.Protocol.ByteOrder); err != nil {
		fail("protocol.byte_order: %v", err)
	}
	if c.Receive.PollTimeout <= 0 {
		fail("receive.poll_timeout must be positive")
	}
	if c.Receive.ChunkSize <= 0 {
		fail("receive.chunk_size must be positive")
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		fail("log.level: %v", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		fail("log.format %q: want text or json", c.Log.Format)
	}
	if c.Sinks.File.Path != "" {
		switch c.Sinks.File.Format {
		case "", sink.FormatRaw, sink.FormatJSON:
		default:
			fail("sinks.file.format %q: want raw or json", c.Sinks.File.Format)
		}
	}
	if c.Sinks.Redis.MaxLen < 0 {
		fail("sinks.redis.max_len must not be negative")
	}
	return errors.Join(errs...)
}

// WireConfig returns the encoder configuration.
func (c *Config) WireConfig() (wire.Config, error) {
	order, err := wire.ParseByteOrder(c.Protocol.ByteOrder)
	if err != nil {
		return wire.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	wc := wire.DefaultConfig()
	wc.ComponentTypeCount = c.Protocol.ComponentTypeCount
	wc.WatcherType = c.Protocol.WatcherType
	wc.ByteOrder = order
	wc.FramedHeartbeat = c.Protocol.FramedHeartbeat
	return wc, wc.Validate()
}

// SlogLevel returns the configured log level, or info if it does not parse.
func (c *Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	err := level.UnmarshalText([]byte(s))
	return level, err
}

// Addr returns host:port of the logger service.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Logger.Host, strconv.Itoa(c.Logger.Port))
}
